package httpserver

import (
	"context"
	"net/http"

	"github.com/Clark-Hu/restroom-finder/internal/repository"
)

type scoreRequest struct {
	Score *float64 `json:"score"`
}

type ratingResponse struct {
	Message     string  `json:"message"`
	RestroomID  int64   `json:"RestroomID"`
	Score       float64 `json:"Score"`
	Rating      float64 `json:"Rating"`
	RatingCount int64   `json:"RatingCount"`
}

type hasRatedResponse struct {
	HasRated bool `json:"HasRated"`
}

type transitionFunc func(ctx context.Context, userID, restroomID int64, score *float64) (repository.RatingTransition, error)

func (s *Server) handlePostRating(w http.ResponseWriter, r *http.Request, userID int64) {
	s.handleTransition(w, r, userID, s.ratings.PostRating, "Rating submitted successfully")
}

func (s *Server) handleEditRating(w http.ResponseWriter, r *http.Request, userID int64) {
	s.handleTransition(w, r, userID, s.ratings.EditRating, "Rating updated successfully")
}

func (s *Server) handleTransition(w http.ResponseWriter, r *http.Request, userID int64, apply transitionFunc, message string) {
	restroomID, err := parseRestroomID(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "INVALID_INPUT", err.Error())
		return
	}

	var req scoreRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		s.respondDecodeError(w, err)
		return
	}

	transition, err := apply(r.Context(), userID, restroomID, req.Score)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}

	s.respondJSON(w, http.StatusOK, ratingResponse{
		Message:     message,
		RestroomID:  restroomID,
		Score:       transition.Rating.Score,
		Rating:      transition.After.Average,
		RatingCount: transition.After.Count,
	})
}

func (s *Server) handleHasRated(w http.ResponseWriter, r *http.Request, userID int64) {
	restroomID, err := parseRestroomID(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "INVALID_INPUT", err.Error())
		return
	}

	rated, err := s.ratings.HasRated(r.Context(), userID, restroomID)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, hasRatedResponse{HasRated: rated})
}
