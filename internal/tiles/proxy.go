package tiles

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/hexplorer/internal/fetcher"
)

// maxTileBytes caps one upstream raster tile.
const maxTileBytes = 8 << 20

// webMercatorExtent is half the EPSG:3857 world width in meters.
const webMercatorExtent = 20037508.342789244

// ProxyLayer is one upstream raster source. URL may contain {z}, {x}, {y}
// and {bbox-epsg-3857}, the placeholders of the browser renderer's raster
// sources, so ArcGIS export and WMS GetMap URLs work unchanged.
type ProxyLayer struct {
	URL         string
	ContentType string // default image/png
	MinZoom     int
	MaxZoom     int
}

// Proxy serves upstream raster overlay tiles through the shared cache.
type Proxy struct {
	fetch  fetcher.Fetcher
	layers map[string]ProxyLayer
	cache  *Cache
}

// NewProxy creates an overlay tile proxy. cache may be nil.
func NewProxy(f fetcher.Fetcher, layers map[string]ProxyLayer, cache *Cache) *Proxy {
	return &Proxy{fetch: f, layers: layers, cache: cache}
}

// OverlayPrefix is the key prefix of every cached tile of an overlay.
func OverlayPrefix(name string) string { return "overlay/" + name + "/" }

// MercatorBBox is the EPSG:3857 bounding box of tile z/x/y as
// minx, miny, maxx, maxy.
func MercatorBBox(z, x, y int) [4]float64 {
	size := 2 * webMercatorExtent / math.Exp2(float64(z))
	minX := -webMercatorExtent + float64(x)*size
	maxY := webMercatorExtent - float64(y)*size
	return [4]float64{minX, maxY - size, minX + size, maxY}
}

// TileURL expands the placeholders of template for tile z/x/y.
func TileURL(template string, z, x, y int) string {
	bbox := MercatorBBox(z, x, y)
	parts := make([]string, len(bbox))
	for i, v := range bbox {
		parts[i] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return strings.NewReplacer(
		"{bbox-epsg-3857}", strings.Join(parts, ","),
		"{z}", strconv.Itoa(z),
		"{x}", strconv.Itoa(x),
		"{y}", strconv.Itoa(y),
	).Replace(template)
}

// Fetch returns the tile from cache or upstream.
func (p *Proxy) Fetch(ctx context.Context, name string, z, x, y int) ([]byte, bool, error) {
	layer, ok := p.layers[name]
	if !ok {
		return nil, false, eris.Errorf("tiles: unknown overlay %q", name)
	}
	key := fmt.Sprintf("%s%d/%d/%d", OverlayPrefix(name), z, x, y)
	if p.cache != nil {
		if cached, ok := p.cache.Get(key); ok {
			return cached, true, nil
		}
	}

	url := TileURL(layer.URL, z, x, y)
	body, err := p.fetch.Download(ctx, url)
	if err != nil {
		return nil, false, eris.Wrapf(err, "tiles: fetch overlay %s", name)
	}
	defer body.Close() //nolint:errcheck

	data, err := io.ReadAll(io.LimitReader(body, maxTileBytes+1))
	if err != nil {
		return nil, false, eris.Wrapf(err, "tiles: read overlay %s tile", name)
	}
	if len(data) > maxTileBytes {
		return nil, false, eris.Errorf("tiles: overlay %s tile exceeds %d bytes", name, maxTileBytes)
	}

	if p.cache != nil {
		p.cache.Put(key, data)
	}
	zap.L().Debug("tiles: fetched overlay tile", zap.String("overlay", name), zap.Int("bytes", len(data)))
	return data, false, nil
}

// ServeHTTP handles /tiles/overlay/{name}/{z}/{x}/{y}.{ext}.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/tiles/overlay/")
	parts := strings.Split(path, "/")
	if len(parts) != 4 {
		http.Error(w, "invalid tile path", http.StatusBadRequest)
		return
	}
	name := parts[0]
	layer, ok := p.layers[name]
	if !ok {
		http.Error(w, "unknown overlay", http.StatusNotFound)
		return
	}

	yPart, _, _ := strings.Cut(parts[3], ".")
	z, errZ := strconv.Atoi(parts[1])
	x, errX := strconv.Atoi(parts[2])
	y, errY := strconv.Atoi(yPart)
	if errZ != nil || errX != nil || errY != nil {
		http.Error(w, "invalid tile coordinates", http.StatusBadRequest)
		return
	}
	if z < layer.MinZoom || z > layer.MaxZoom {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if n := 1 << z; x < 0 || y < 0 || x >= n || y >= n {
		http.Error(w, "tile out of range", http.StatusBadRequest)
		return
	}

	data, hit, err := p.Fetch(r.Context(), name, z, x, y)
	if err != nil {
		zap.L().Warn("tiles: overlay fetch failed",
			zap.String("overlay", name),
			zap.Int("z", z), zap.Int("x", x), zap.Int("y", y),
			zap.Error(err),
		)
		http.Error(w, "upstream fetch failed", http.StatusBadGateway)
		return
	}

	ct := layer.ContentType
	if ct == "" {
		ct = "image/png"
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set("Cache-Control", "public, max-age=3600")
	if hit {
		w.Header().Set("X-Cache", "hit")
	} else {
		w.Header().Set("X-Cache", "miss")
	}
	_, _ = w.Write(data)
}
