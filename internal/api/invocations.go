package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/seantiz/courier/internal/engine"
	"github.com/seantiz/courier/internal/httpcall"
	"github.com/seantiz/courier/internal/invocation"
	"github.com/seantiz/courier/internal/model"
	"github.com/seantiz/courier/internal/store"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
	maxBodySize      = 1 << 20 // 1 MB
	maxDelayMS       = 60_000
)

// createInvocationRequest is the JSON body for POST /v1/invocations.
type createInvocationRequest struct {
	Name            string `json:"name"`
	URL             string `json:"url"`
	DelayMS         int    `json:"delay_ms"`
	SimulateFailure bool   `json:"simulate_failure"`
}

// listInvocationsResponse wraps the paginated list response.
type listInvocationsResponse struct {
	Invocations []*model.Invocation `json:"invocations"`
	Total       int                 `json:"total"`
	Limit       int                 `json:"limit"`
	Offset      int                 `json:"offset"`
}

func (s *Server) handleCreateInvocation(w http.ResponseWriter, r *http.Request) {
	var req createInvocationRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if req.URL == "" {
		s.writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	if err := httpcall.ValidateURL(req.URL); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.DelayMS < 0 || req.DelayMS > maxDelayMS {
		s.writeError(w, http.StatusBadRequest, "delay_ms must be between 0 and "+strconv.Itoa(maxDelayMS))
		return
	}
	if req.Name == "" {
		req.Name = req.URL
	}

	// The call outlives the request, so it must not use the request context.
	supplier := httpcall.Get(context.Background(), s.client, req.URL, httpcall.Text)
	d := invocation.New(req.Name, supplier).
		WithDelay(time.Duration(req.DelayMS) * time.Millisecond).
		WithSimulatingFailure(req.SimulateFailure)

	sub, err := engine.Submit(r.Context(), s.engine, d, engine.WithTarget(req.URL))
	if err != nil {
		s.logger.Error("submit invocation", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to submit invocation")
		return
	}

	rec, err := s.store.GetInvocation(r.Context(), sub.ID)
	if err != nil {
		s.logger.Error("get submitted invocation", "invocation_id", sub.ID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to retrieve invocation")
		return
	}

	s.writeJSON(w, http.StatusAccepted, rec)
}

func (s *Server) handleGetInvocation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	rec, err := s.store.GetInvocation(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "invocation not found")
		return
	}
	if err != nil {
		s.logger.Error("get invocation", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get invocation")
		return
	}

	s.writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleListInvocations(w http.ResponseWriter, r *http.Request) {
	limit := parseIntQuery(r, "limit", defaultListLimit)
	offset := parseIntQuery(r, "offset", 0)

	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}
	if offset < 0 {
		offset = 0
	}

	invocations, total, err := s.store.ListInvocations(r.Context(), limit, offset)
	if err != nil {
		s.logger.Error("list invocations", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list invocations")
		return
	}

	if invocations == nil {
		invocations = []*model.Invocation{}
	}

	s.writeJSON(w, http.StatusOK, listInvocationsResponse{
		Invocations: invocations,
		Total:       total,
		Limit:       limit,
		Offset:      offset,
	})
}

// handleCancelInvocation marks an in-flight invocation as cancelled. The call
// is not interrupted.
func (s *Server) handleCancelInvocation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	err := s.engine.Cancel(id)
	if errors.Is(err, engine.ErrNotInFlight) {
		_, getErr := s.store.GetInvocation(r.Context(), id)
		switch {
		case errors.Is(getErr, store.ErrNotFound):
			s.writeError(w, http.StatusNotFound, "invocation not found")
		case getErr != nil:
			s.logger.Error("get invocation for cancel", "error", getErr)
			s.writeError(w, http.StatusInternalServerError, "failed to get invocation")
		default:
			s.writeError(w, http.StatusConflict, "invocation already settled")
		}
		return
	}
	if err != nil {
		s.logger.Error("cancel invocation", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to cancel invocation")
		return
	}

	s.writeJSON(w, http.StatusAccepted, map[string]any{"id": id, "cancelled": true})
}

// writeJSON writes a JSON response with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// parseIntQuery parses an integer query parameter with a default value.
func parseIntQuery(r *http.Request, key string, defaultVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}
