package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sells-group/hexplorer/internal/overlay"
)

type overlayView struct {
	overlay.Overlay
	Source string `json:"source"`
}

func overlaySource(o overlay.Overlay) string {
	if o.Kind == overlay.KindRaster {
		return "/tiles/overlay/" + o.Name + "/{z}/{x}/{y}.png"
	}
	return "/api/overlays/" + o.Name + ".geojson"
}

func (s *Server) handleListOverlays(w http.ResponseWriter, _ *http.Request) {
	views := []overlayView{}
	if s.deps.Overlays != nil {
		for _, o := range s.deps.Overlays.List() {
			views = append(views, overlayView{Overlay: o, Source: overlaySource(o)})
		}
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleOverlayGeoJSON(w http.ResponseWriter, r *http.Request) {
	if s.deps.Overlays == nil {
		writeError(w, http.StatusNotFound, "unknown overlay")
		return
	}
	name := chi.URLParam(r, "name")
	body, hit, err := s.deps.Overlays.GeoJSON(r.Context(), name)
	switch {
	case errors.Is(err, overlay.ErrUnknownOverlay):
		writeError(w, http.StatusNotFound, "unknown overlay")
		return
	case err != nil:
		s.log.Warn("overlay fetch failed", zap.String("overlay", name), zap.Error(err))
		writeError(w, http.StatusBadGateway, "overlay source unavailable")
		return
	}

	w.Header().Set("Content-Type", "application/geo+json")
	if hit {
		w.Header().Set("X-Cache", "hit")
	} else {
		w.Header().Set("X-Cache", "miss")
	}
	_, _ = w.Write(body)
}
