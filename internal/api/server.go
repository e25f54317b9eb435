// Package api serves the explorer's HTTP surface: metric metadata, paint
// rules, cell GeoJSON and info panels, dataset status, viewer sessions, map
// overlays and the renderer WebSocket.
package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/hexplorer/internal/dataset"
	"github.com/sells-group/hexplorer/internal/metric"
	"github.com/sells-group/hexplorer/internal/overlay"
	"github.com/sells-group/hexplorer/internal/render"
	"github.com/sells-group/hexplorer/internal/session"
	"github.com/sells-group/hexplorer/internal/tiles"
)

// Deps are the components the API serves. Cache, Tiles, Overlays and Proxy
// may be nil.
type Deps struct {
	Registry *metric.Registry
	Data     *dataset.Manager
	Sessions *session.Manager
	Hub      *render.Hub
	Cache    *tiles.Cache
	Tiles    *tiles.Handler
	Overlays *overlay.Service
	Proxy    *tiles.Proxy
	Render   render.Options
	// DefaultMetric is selected by new sessions. Empty means the registry's
	// first metric.
	DefaultMetric string
}

// Options tune the HTTP layer.
type Options struct {
	CORSOrigins []string
	// ReloadPerMinute caps POST /api/dataset/reload. Zero disables the
	// endpoint's limit.
	ReloadPerMinute int
}

// Server is the API router.
type Server struct {
	deps   Deps
	router chi.Router
	reload *rate.Limiter
	log    *zap.Logger

	mu     sync.Mutex
	unsubs []func()
}

// New builds the router. Call Close to stop listening for dataset installs.
func New(deps Deps, opts Options) *Server {
	if deps.DefaultMetric == "" || !deps.Registry.Has(deps.DefaultMetric) {
		deps.DefaultMetric = deps.Registry.First()
	}
	s := &Server{
		deps: deps,
		log:  zap.L().With(zap.String("component", "api")),
	}
	if opts.ReloadPerMinute > 0 {
		s.reload = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.ReloadPerMinute)), 1)
	}
	s.unsubs = append(s.unsubs, deps.Data.Subscribe(s.onDataset))
	s.router = s.routes(opts)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close unsubscribes from dataset installs.
func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.unsubs {
		u()
	}
	s.unsubs = nil
}

func (s *Server) routes(opts Options) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.log))
	r.Use(middleware.Recoverer)

	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Route("/metrics", func(r chi.Router) {
			r.Get("/", s.handleListMetrics)
			r.Route("/{key}", func(r chi.Router) {
				r.Get("/", s.handleGetMetric)
				r.Get("/range", s.handleMetricRange)
				r.Get("/legend", s.handleMetricLegend)
				r.Get("/paint", s.handleMetricPaint)
				r.Get("/color", s.handleMetricColor)
			})
		})

		r.Get("/cells.geojson", s.handleCellsGeoJSON)
		r.Get("/cells/{id}", s.handleCellInfo)
		r.Get("/cells/{id}/popup", s.handleCellPopup)
		r.Get("/bounds", s.handleBounds)

		r.Get("/overlays", s.handleListOverlays)
		r.Get("/overlays/{name}.geojson", s.handleOverlayGeoJSON)

		r.Get("/dataset", s.handleDataset)
		r.Post("/dataset/reload", s.handleReload)

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", s.handleCreateSession)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetSession)
				r.Delete("/", s.handleDeleteSession)
				r.Put("/metric", s.handleSelectMetric)
				r.Put("/filter", s.handleSetFilter)
				r.Delete("/filter", s.handleClearFilter)
				r.Get("/ws", s.handleSessionWS)
			})
		})
	})

	if s.deps.Proxy != nil {
		r.Handle("/tiles/overlay/*", s.deps.Proxy)
	}
	if s.deps.Tiles != nil {
		r.Get("/tiles/stats", s.deps.Tiles.StatsHandler)
		r.Handle("/tiles/*", s.deps.Tiles)
	}
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status := "ok"
	ds := s.deps.Data.Current()
	switch {
	case ds == nil:
		status = "loading"
	case ds.IsFallback():
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

// onDataset drops payloads built from an older dataset.
func (s *Server) onDataset(ds *dataset.Dataset) {
	if s.deps.Cache != nil {
		if n := s.deps.Cache.Invalidate(geojsonPrefix); n > 0 {
			s.log.Debug("invalidated cached geojson", zap.Int("entries", n), zap.Uint64("version", ds.Version()))
		}
	}
	if s.deps.Tiles != nil {
		s.deps.Tiles.Invalidate()
	}
}
