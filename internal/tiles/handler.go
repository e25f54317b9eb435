package tiles

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/hexplorer/internal/db"
)

// Handler serves MVT vector tiles over HTTP.
type Handler struct {
	pool   db.Pool
	layers map[string]LayerConfig
	cache  *Cache
}

// NewHandler creates a tile handler. cache may be nil.
func NewHandler(pool db.Pool, layers map[string]LayerConfig, cache *Cache) *Handler {
	return &Handler{
		pool:   pool,
		layers: layers,
		cache:  cache,
	}
}

// CacheKey is the cache key of one tile. Every key of a layer starts with
// CachePrefix(layer).
func CacheKey(layer string, z, x, y int) string {
	return fmt.Sprintf("%s%d/%d/%d", CachePrefix(layer), z, x, y)
}

// CachePrefix is the key prefix shared by all tiles of layer.
func CachePrefix(layer string) string { return "tile/" + layer + "/" }

// ServeHTTP handles requests at /tiles/{layer}/{z}/{x}/{y}.pbf.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/tiles/")
	parts := strings.Split(path, "/")
	if len(parts) != 4 {
		http.Error(w, "invalid tile path", http.StatusBadRequest)
		return
	}

	layerName := parts[0]
	layer, ok := h.layers[layerName]
	if !ok {
		http.Error(w, "unknown layer", http.StatusNotFound)
		return
	}

	z, err := strconv.Atoi(parts[1])
	if err != nil {
		http.Error(w, "invalid z coordinate", http.StatusBadRequest)
		return
	}
	x, err := strconv.Atoi(parts[2])
	if err != nil {
		http.Error(w, "invalid x coordinate", http.StatusBadRequest)
		return
	}
	y, err := strconv.Atoi(strings.TrimSuffix(parts[3], ".pbf"))
	if err != nil {
		http.Error(w, "invalid y coordinate", http.StatusBadRequest)
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

	key := CacheKey(layerName, z, x, y)
	if h.cache != nil {
		if cached, ok := h.cache.Get(key); ok {
			w.Header().Set("Content-Type", "application/vnd.mapbox-vector-tile")
			w.Header().Set("X-Cache", "hit")
			_, _ = w.Write(cached)
			return
		}
	}

	tile, err := GenerateMVT(r.Context(), h.pool, layerName, layer, z, x, y)
	if err != nil {
		zap.L().Error("tiles: generation failed",
			zap.String("layer", layerName),
			zap.Int("z", z), zap.Int("x", x), zap.Int("y", y),
			zap.Error(err),
		)
		http.Error(w, "tile generation failed", http.StatusInternalServerError)
		return
	}

	if h.cache != nil {
		h.cache.Put(key, tile)
	}
	w.Header().Set("Content-Type", "application/vnd.mapbox-vector-tile")
	w.Header().Set("X-Cache", "miss")
	w.Header().Set("Cache-Control", "public, max-age=300")
	_, _ = w.Write(tile)
}

// Invalidate drops every cached tile, e.g. after the cell table was
// replaced.
func (h *Handler) Invalidate() {
	if h.cache == nil {
		return
	}
	for name := range h.layers {
		h.cache.Invalidate(CachePrefix(name))
	}
}

// StatsHandler returns cache statistics as plain text.
func (h *Handler) StatsHandler(w http.ResponseWriter, _ *http.Request) {
	if h.cache == nil {
		_, _ = w.Write([]byte("cache disabled"))
		return
	}
	stats := h.cache.Stats()
	_, _ = fmt.Fprintf(w, "entries=%d max=%d hits=%d misses=%d rate=%.2f%%\n",
		stats.Entries, stats.MaxEntries, stats.Hits, stats.Misses, stats.HitRate*100)
}
