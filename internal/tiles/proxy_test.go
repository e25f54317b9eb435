package tiles

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/hexplorer/internal/fetcher"
	"github.com/sells-group/hexplorer/internal/resilience"
)

type stubFetcher struct {
	mu   sync.Mutex
	urls []string
	body string
	err  error
}

func (f *stubFetcher) Download(_ context.Context, rawURL string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.urls = append(f.urls, rawURL)
	if f.err != nil {
		return nil, f.err
	}
	return io.NopCloser(strings.NewReader(f.body)), nil
}

func (f *stubFetcher) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.urls)
}

func overlayLayers(url string) map[string]ProxyLayer {
	return map[string]ProxyLayer{"gas": {URL: url, MinZoom: 0, MaxZoom: 18}}
}

func serveProxy(p *Proxy, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	p.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestMercatorBBox(t *testing.T) {
	world := MercatorBBox(0, 0, 0)
	assert.InDelta(t, -webMercatorExtent, world[0], 1e-6)
	assert.InDelta(t, -webMercatorExtent, world[1], 1e-6)
	assert.InDelta(t, webMercatorExtent, world[2], 1e-6)
	assert.InDelta(t, webMercatorExtent, world[3], 1e-6)

	ne := MercatorBBox(1, 1, 0)
	assert.InDelta(t, 0, ne[0], 1e-6)
	assert.InDelta(t, 0, ne[1], 1e-6)
	assert.InDelta(t, webMercatorExtent, ne[2], 1e-6)
	assert.InDelta(t, webMercatorExtent, ne[3], 1e-6)
}

func TestTileURL(t *testing.T) {
	assert.Equal(t, "https://tiles.example.com/3/2/1.png", TileURL("https://tiles.example.com/{z}/{x}/{y}.png", 3, 2, 1))

	got := TileURL("https://gis.example.com/export?bbox={bbox-epsg-3857}&f=image", 1, 1, 0)
	assert.Equal(t, "https://gis.example.com/export?bbox=0,0,20037508.342789244,20037508.342789244&f=image", got)
}

func TestProxy_CachesUpstreamTiles(t *testing.T) {
	f := &stubFetcher{body: "PNGDATA"}
	p := NewProxy(f, overlayLayers("https://gis.example.com/{z}/{x}/{y}"), NewCache(10, time.Minute))

	w := serveProxy(p, "/tiles/overlay/gas/4/3/5.png")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "PNGDATA", w.Body.String())
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Equal(t, "miss", w.Header().Get("X-Cache"))

	w = serveProxy(p, "/tiles/overlay/gas/4/3/5.png")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "hit", w.Header().Get("X-Cache"))

	assert.Equal(t, 1, f.calls())
	assert.Equal(t, "https://gis.example.com/4/3/5", f.urls[0])
}

func TestProxy_BadRequests(t *testing.T) {
	f := &stubFetcher{body: "x"}
	p := NewProxy(f, map[string]ProxyLayer{"gas": {URL: "u", MinZoom: 4, MaxZoom: 10}}, nil)

	tests := []struct {
		path string
		code int
	}{
		{"/tiles/overlay/gas/5/1", http.StatusBadRequest},
		{"/tiles/overlay/roads/5/1/1.png", http.StatusNotFound},
		{"/tiles/overlay/gas/a/1/1.png", http.StatusBadRequest},
		{"/tiles/overlay/gas/5/1/b.png", http.StatusBadRequest},
		{"/tiles/overlay/gas/2/0/0.png", http.StatusNoContent},
		{"/tiles/overlay/gas/12/0/0.png", http.StatusNoContent},
		{"/tiles/overlay/gas/5/32/0.png", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.code, serveProxy(p, tt.path).Code)
		})
	}
	assert.Equal(t, 0, f.calls())
}

func TestProxy_UpstreamFailure(t *testing.T) {
	cache := NewCache(10, time.Minute)
	p := NewProxy(&stubFetcher{err: errors.New("connection refused")}, overlayLayers("u"), cache)

	w := serveProxy(p, "/tiles/overlay/gas/1/0/0.png")
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, 0, cache.Stats().Entries)
}

func TestProxy_ThroughHTTPFetcher(t *testing.T) {
	var gotBBox string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBBox = r.URL.Query().Get("bbox")
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("tile"))
	}))
	defer upstream.Close()

	h := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		RatePerHost: 1000,
		Retry:       resilience.RetryConfig{MaxAttempts: 1},
	})
	p := NewProxy(h, overlayLayers(upstream.URL+"/export?bbox={bbox-epsg-3857}&f=image"), nil)

	data, hit, err := p.Fetch(context.Background(), "gas", 0, 0, 0)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "tile", string(data))
	assert.Equal(t, "-20037508.342789244,-20037508.342789244,20037508.342789244,20037508.342789244", gotBBox)

	_, _, err = p.Fetch(context.Background(), "roads", 0, 0, 0)
	assert.Error(t, err)
}
