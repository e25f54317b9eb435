// Package overlay serves third-party map overlays next to the hexagon grid:
// raster layers proxied tile by tile and vector layers fetched once as
// GeoJSON, both through the shared tile cache.
package overlay

import (
	"context"
	"encoding/json"
	"regexp"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"github.com/sells-group/hexplorer/internal/fetcher"
	"github.com/sells-group/hexplorer/internal/tiles"
)

// Overlay kinds.
const (
	KindRaster  = "raster"
	KindGeoJSON = "geojson"
)

// ErrUnknownOverlay is returned for a name no overlay is configured under.
var ErrUnknownOverlay = eris.New("overlay: unknown overlay")

var validName = regexp.MustCompile(`^[a-z0-9_-]+$`)

// Overlay is one configured upstream layer.
type Overlay struct {
	Name        string  `json:"name"`
	Title       string  `json:"title"`
	Kind        string  `json:"kind"`
	URL         string  `json:"-"`
	Attribution string  `json:"attribution,omitempty"`
	ContentType string  `json:"-"`
	Opacity     float64 `json:"opacity"`
	MinZoom     int     `json:"min_zoom"`
	MaxZoom     int     `json:"max_zoom"`
	Color       string  `json:"color,omitempty"`
}

// Validate checks one overlay definition.
func (o Overlay) Validate() error {
	if !validName.MatchString(o.Name) {
		return eris.Errorf("overlay: name %q must match %s", o.Name, validName)
	}
	switch o.Kind {
	case KindRaster, KindGeoJSON:
	default:
		return eris.Errorf("overlay %s: kind %q must be raster or geojson", o.Name, o.Kind)
	}
	if o.URL == "" {
		return eris.Errorf("overlay %s: url is required", o.Name)
	}
	if o.Opacity < 0 || o.Opacity > 1 {
		return eris.Errorf("overlay %s: opacity %g must be between 0 and 1", o.Name, o.Opacity)
	}
	if o.MinZoom < 0 || o.MaxZoom > 22 || o.MinZoom > o.MaxZoom {
		return eris.Errorf("overlay %s: zoom range [%d, %d] must be within [0, 22]", o.Name, o.MinZoom, o.MaxZoom)
	}
	return nil
}

// Service answers overlay listings, GeoJSON requests and feature popups.
type Service struct {
	fetch    fetcher.Fetcher
	cache    *tiles.Cache
	overlays map[string]Overlay
	order    []string
	log      *zap.Logger
}

// NewService validates overlays. cache may be nil.
func NewService(overlays []Overlay, f fetcher.Fetcher, cache *tiles.Cache) (*Service, error) {
	s := &Service{
		fetch:    f,
		cache:    cache,
		overlays: make(map[string]Overlay, len(overlays)),
		log:      zap.L().With(zap.String("component", "overlay")),
	}
	for _, o := range overlays {
		if err := o.Validate(); err != nil {
			return nil, err
		}
		if _, dup := s.overlays[o.Name]; dup {
			return nil, eris.Errorf("overlay: duplicate name %q", o.Name)
		}
		s.overlays[o.Name] = o
		s.order = append(s.order, o.Name)
	}
	return s, nil
}

// List returns the overlays in configuration order.
func (s *Service) List() []Overlay {
	out := make([]Overlay, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.overlays[name])
	}
	return out
}

// Lookup returns the overlay called name.
func (s *Service) Lookup(name string) (Overlay, error) {
	o, ok := s.overlays[name]
	if !ok {
		return Overlay{}, eris.Wrapf(ErrUnknownOverlay, "%q", name)
	}
	return o, nil
}

// ProxyLayers are the raster overlays in the form the tile proxy serves.
func (s *Service) ProxyLayers() map[string]tiles.ProxyLayer {
	out := make(map[string]tiles.ProxyLayer)
	for name, o := range s.overlays {
		if o.Kind != KindRaster {
			continue
		}
		out[name] = tiles.ProxyLayer{
			URL:         o.URL,
			ContentType: o.ContentType,
			MinZoom:     o.MinZoom,
			MaxZoom:     o.MaxZoom,
		}
	}
	return out
}

// CacheKey is the tile cache key of a GeoJSON overlay.
func CacheKey(name string) string { return "overlay/" + name + ".geojson" }

// GeoJSON returns the feature collection of a geojson overlay, from cache
// when possible. Features without geometry are dropped.
func (s *Service) GeoJSON(ctx context.Context, name string) ([]byte, bool, error) {
	o, err := s.Lookup(name)
	if err != nil {
		return nil, false, err
	}
	if o.Kind != KindGeoJSON {
		return nil, false, eris.Wrapf(ErrUnknownOverlay, "%q is not a geojson overlay", name)
	}
	key := CacheKey(name)
	if s.cache != nil {
		if data, ok := s.cache.Get(key); ok {
			return data, true, nil
		}
	}

	fc, err := fetcher.FetchJSON[geojson.FeatureCollection](ctx, s.fetch, o.URL)
	if err != nil {
		return nil, false, eris.Wrapf(err, "overlay %s: fetch", name)
	}
	kept := fc.Features[:0]
	for _, f := range fc.Features {
		if f != nil && f.Geometry != nil {
			kept = append(kept, f)
		}
	}
	if dropped := len(fc.Features) - len(kept); dropped > 0 {
		s.log.Debug("dropped features without geometry", zap.String("overlay", name), zap.Int("dropped", dropped))
	}
	fc.Features = kept

	data, err := json.Marshal(fc)
	if err != nil {
		return nil, false, eris.Wrapf(err, "overlay %s: encode", name)
	}
	if s.cache != nil {
		s.cache.Put(key, data)
	}
	s.log.Info("fetched overlay", zap.String("overlay", name), zap.Int("features", len(kept)), zap.Int("bytes", len(data)))
	return data, false, nil
}

