package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sells-group/hexplorer/internal/dataset"
	"github.com/sells-group/hexplorer/internal/hexgrid"
)

const geojsonPrefix = "geojson/"

func geojsonKey(version uint64) string {
	return geojsonPrefix + "v" + strconv.FormatUint(version, 10)
}

// current writes a 503 while no dataset is installed.
func (s *Server) current(w http.ResponseWriter) (*dataset.Dataset, bool) {
	ds := s.deps.Data.Current()
	if ds == nil {
		writeError(w, http.StatusServiceUnavailable, "dataset not loaded")
		return nil, false
	}
	return ds, true
}

func (s *Server) handleCellsGeoJSON(w http.ResponseWriter, r *http.Request) {
	ds, ok := s.current(w)
	if !ok {
		return
	}
	key := geojsonKey(ds.Version())

	w.Header().Set("Content-Type", "application/geo+json")
	w.Header().Set("ETag", strconv.Quote(key))
	if s.deps.Cache != nil {
		if body, hit := s.deps.Cache.Get(key); hit {
			w.Header().Set("X-Cache", "hit")
			_, _ = w.Write(body)
			return
		}
	}

	fc, err := hexgrid.Features(r.Context(), ds.Records(), s.deps.Registry.Keys())
	if err != nil {
		s.log.Error("build feature collection", zap.Uint64("version", ds.Version()), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not build cells")
		return
	}
	body, err := json.Marshal(fc)
	if err != nil {
		s.log.Error("encode feature collection", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not encode cells")
		return
	}
	if s.deps.Cache != nil {
		s.deps.Cache.Put(key, body)
	}
	w.Header().Set("X-Cache", "miss")
	_, _ = w.Write(body)
}

func (s *Server) lookupCell(w http.ResponseWriter, r *http.Request) (dataset.Record, bool) {
	ds, ok := s.current(w)
	if !ok {
		return dataset.Record{}, false
	}
	rec, ok := ds.Lookup(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown cell")
		return dataset.Record{}, false
	}
	return rec, true
}

func (s *Server) handleCellInfo(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.lookupCell(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Registry.Describe(rec))
}

func (s *Server) handleCellPopup(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.lookupCell(w, r)
	if !ok {
		return
	}
	key := r.URL.Query().Get("metric")
	if key == "" {
		key = s.deps.DefaultMetric
	}
	p, err := s.deps.Registry.Popup(rec, key)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleBounds(w http.ResponseWriter, _ *http.Request) {
	ds, ok := s.current(w)
	if !ok {
		return
	}
	recs := ds.Records()
	ids := make([]string, len(recs))
	for i, rec := range recs {
		ids[i] = rec.ID
	}
	ext, ok := hexgrid.Bounds(ids)
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, ext)
}
