package httpserver

import (
	"net/http"
)

type nearbyRequest struct {
	Longitude *float64 `json:"longitude"`
	Latitude  *float64 `json:"latitude"`
}

func (s *Server) handleNearby(w http.ResponseWriter, r *http.Request) {
	var req nearbyRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		s.respondDecodeError(w, err)
		return
	}
	if req.Longitude == nil || req.Latitude == nil {
		s.respondError(w, http.StatusBadRequest, "INVALID_INPUT", "longitude and latitude are required")
		return
	}

	views, err := s.restrooms.Nearby(r.Context(), *req.Longitude, *req.Latitude)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, views)
}
