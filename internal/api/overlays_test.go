package api

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/hexplorer/internal/fetcher"
	"github.com/sells-group/hexplorer/internal/overlay"
	"github.com/sells-group/hexplorer/internal/resilience"
	"github.com/sells-group/hexplorer/internal/tiles"
)

const wfsBody = `{"type":"FeatureCollection","features":[
  {"type":"Feature","id":"1","geometry":{"type":"Point","coordinates":[46.7,24.7]},"properties":{"Name":"Riyadh Station"}}
]}`

type upstreamHits struct {
	wfs    atomic.Int32
	export atomic.Int32
}

func newOverlayFixture(t *testing.T) (fixture, *upstreamHits) {
	t.Helper()
	hits := &upstreamHits{}
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/wfs":
			hits.wfs.Add(1)
			_, _ = w.Write([]byte(wfsBody))
		case "/export":
			hits.export.Add(1)
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write([]byte("PNG:" + r.URL.Query().Get("bbox")))
		default:
			http.Error(w, "gone", http.StatusGone)
		}
	}))
	t.Cleanup(upstream.Close)

	h := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		Timeout:     5 * time.Second,
		RatePerHost: 1000,
		Retry:       resilience.RetryConfig{MaxAttempts: 1},
	})
	f := newFixtureWith(t, Options{}, func(d *Deps) {
		svc, err := overlay.NewService([]overlay.Overlay{
			{Name: "kapsarc-gas", Kind: overlay.KindRaster, URL: upstream.URL + "/export?bbox={bbox-epsg-3857}", Opacity: 0.7, MaxZoom: 22},
			{Name: "gas-infrastructure", Title: "Gas Infrastructure", Kind: overlay.KindGeoJSON, URL: upstream.URL + "/wfs", Opacity: 1, MaxZoom: 22},
			{Name: "broken", Kind: overlay.KindGeoJSON, URL: upstream.URL + "/missing", Opacity: 1, MaxZoom: 22},
		}, h, d.Cache)
		require.NoError(t, err)
		d.Overlays = svc
		d.Proxy = tiles.NewProxy(h, svc.ProxyLayers(), d.Cache)
	})
	return f, hits
}

func TestListOverlays(t *testing.T) {
	f, _ := newOverlayFixture(t)
	resp := f.do(t, http.MethodGet, "/api/overlays", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[[]map[string]any](t, resp)
	require.Len(t, body, 3)
	assert.Equal(t, "kapsarc-gas", body[0]["name"])
	assert.Equal(t, "/tiles/overlay/kapsarc-gas/{z}/{x}/{y}.png", body[0]["source"])
	assert.Equal(t, "/api/overlays/gas-infrastructure.geojson", body[1]["source"])
	assert.NotContains(t, body[0], "url", "upstream urls stay server side")
}

func TestListOverlays_NoneConfigured(t *testing.T) {
	f := newFixture(t, Options{})
	resp := f.do(t, http.MethodGet, "/api/overlays", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decode[[]map[string]any](t, resp))

	resp = f.do(t, http.MethodGet, "/api/overlays/gas-infrastructure.geojson", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestOverlayGeoJSON_Cached(t *testing.T) {
	f, hits := newOverlayFixture(t)

	resp := f.do(t, http.MethodGet, "/api/overlays/gas-infrastructure.geojson", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/geo+json", resp.Header.Get("Content-Type"))
	assert.Equal(t, "miss", resp.Header.Get("X-Cache"))
	body := decode[map[string]any](t, resp)
	assert.Equal(t, "FeatureCollection", body["type"])
	assert.Len(t, body["features"], 1)

	resp = f.do(t, http.MethodGet, "/api/overlays/gas-infrastructure.geojson", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "hit", resp.Header.Get("X-Cache"))
	assert.Equal(t, int32(1), hits.wfs.Load())
}

func TestOverlayGeoJSON_Errors(t *testing.T) {
	f, _ := newOverlayFixture(t)

	resp := f.do(t, http.MethodGet, "/api/overlays/roads.geojson", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/api/overlays/kapsarc-gas.geojson", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "raster overlays have no geojson")

	resp = f.do(t, http.MethodGet, "/api/overlays/broken.geojson", "")
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestOverlayTiles(t *testing.T) {
	f, hits := newOverlayFixture(t)

	resp := f.do(t, http.MethodGet, "/tiles/overlay/kapsarc-gas/0/0/0.png", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	assert.Equal(t, "miss", resp.Header.Get("X-Cache"))
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "PNG:-20037508.342789244,-20037508.342789244,20037508.342789244,20037508.342789244", string(data))

	resp = f.do(t, http.MethodGet, "/tiles/overlay/kapsarc-gas/0/0/0.png", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "hit", resp.Header.Get("X-Cache"))
	assert.Equal(t, int32(1), hits.export.Load())

	resp = f.do(t, http.MethodGet, "/tiles/overlay/gas-infrastructure/0/0/0.png", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
