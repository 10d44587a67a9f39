package api

import (
	"net/http"
)

type healthResponse struct {
	Status   string `json:"status"`
	InFlight int    `json:"in_flight"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, healthResponse{
		Status:   "ok",
		InFlight: s.engine.InFlight(),
	})
}
