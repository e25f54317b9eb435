package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sells-group/hexplorer/internal/session"
)

type createSessionRequest struct {
	Metric string `json:"metric"`
}

type selectMetricRequest struct {
	Metric string `json:"metric"`
}

type filterRequest struct {
	Min *float64 `json:"min"`
	Max *float64 `json:"max"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Metric == "" {
		req.Metric = s.deps.DefaultMetric
	}
	st, err := s.deps.Sessions.Create(req.Metric)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, st)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	st, err := s.deps.Sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if !s.deps.Sessions.Delete(chi.URLParam(r, "id")) {
		s.writeDomainError(w, session.ErrNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSelectMetric(w http.ResponseWriter, r *http.Request) {
	var req selectMetricRequest
	if err := decodeJSON(w, r, &req); err != nil || req.Metric == "" {
		writeError(w, http.StatusBadRequest, "metric is required")
		return
	}
	st, err := s.deps.Sessions.SelectMetric(chi.URLParam(r, "id"), req.Metric)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleSetFilter(w http.ResponseWriter, r *http.Request) {
	var req filterRequest
	if err := decodeJSON(w, r, &req); err != nil || req.Min == nil || req.Max == nil {
		writeError(w, http.StatusBadRequest, errFilterPair.Error())
		return
	}
	st, err := s.deps.Sessions.SetFilter(chi.URLParam(r, "id"), *req.Min, *req.Max)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleClearFilter(w http.ResponseWriter, r *http.Request) {
	st, err := s.deps.Sessions.ClearFilter(chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleSessionWS(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.deps.Sessions.Get(id); err != nil {
		s.writeDomainError(w, err)
		return
	}
	s.deps.Hub.ServeWS(w, r, id)
}
