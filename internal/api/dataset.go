package api

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/hexplorer/internal/dataset"
)

type datasetView struct {
	Version  uint64    `json:"version"`
	Source   string    `json:"source"`
	Fallback bool      `json:"fallback"`
	Records  int       `json:"records"`
	LoadedAt time.Time `json:"loaded_at"`
	Error    string    `json:"error,omitempty"`
}

func newDatasetView(ds *dataset.Dataset) datasetView {
	v := datasetView{
		Version:  ds.Version(),
		Source:   ds.Source(),
		Fallback: ds.IsFallback(),
		Records:  ds.Len(),
		LoadedAt: ds.LoadedAt(),
	}
	if err := ds.LoadErr(); err != nil {
		v.Error = err.Error()
	}
	return v
}

func (s *Server) handleDataset(w http.ResponseWriter, _ *http.Request) {
	ds, ok := s.current(w)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newDatasetView(ds))
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if s.reload != nil && !s.reload.Allow() {
		w.Header().Set("Retry-After", "60")
		writeError(w, http.StatusTooManyRequests, "reload rate limit exceeded")
		return
	}
	ds, err := s.deps.Data.Reload(r.Context())
	if err != nil {
		s.log.Warn("reload failed", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "reload did not finish")
		return
	}
	writeJSON(w, http.StatusOK, newDatasetView(ds))
}
