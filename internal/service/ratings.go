package service

import (
	"context"
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/Clark-Hu/restroom-finder/internal/events"
	"github.com/Clark-Hu/restroom-finder/internal/logging"
	"github.com/Clark-Hu/restroom-finder/internal/metrics"
	"github.com/Clark-Hu/restroom-finder/internal/repository"
)

// DefaultMaxScore is the highest accepted score when none is configured.
const DefaultMaxScore = 5.0

// RatingStore applies rating transitions atomically.
type RatingStore interface {
	Post(ctx context.Context, userID, restroomID int64, score float64) (repository.RatingTransition, error)
	Edit(ctx context.Context, userID, restroomID int64, score float64) (repository.RatingTransition, error)
	Exists(ctx context.Context, userID, restroomID int64) (bool, error)
}

// RatingServiceOptions carries the optional collaborators of RatingService.
type RatingServiceOptions struct {
	MaxScore float64
	Events   events.Publisher
	Metrics  *metrics.Metrics
	Logger   *zap.Logger
}

// RatingService drives the per user/restroom rating state machine:
// Unrated --post--> Rated --edit--> Rated.
type RatingService struct {
	store    RatingStore
	maxScore float64
	events   events.Publisher
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// NewRatingService returns a RatingService over store. A non-positive
// MaxScore selects DefaultMaxScore and a nil Events publisher discards events.
func NewRatingService(store RatingStore, opts RatingServiceOptions) *RatingService {
	if opts.MaxScore <= 0 {
		opts.MaxScore = DefaultMaxScore
	}
	if opts.Events == nil {
		opts.Events = events.Nop{}
	}
	return &RatingService{
		store:    store,
		maxScore: opts.MaxScore,
		events:   opts.Events,
		metrics:  opts.Metrics,
		logger:   logging.OrNop(opts.Logger).Named("ratings"),
	}
}

func (s *RatingService) validate(userID, restroomID int64, score *float64) (float64, error) {
	if userID <= 0 {
		return 0, invalidInput("user id must be positive")
	}
	if restroomID <= 0 {
		return 0, invalidInput("restroom id must be positive")
	}
	if score == nil {
		return 0, invalidInput("score is required")
	}
	v := *score
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 || v > s.maxScore {
		return 0, invalidInput("score must be between 0 and %g", s.maxScore)
	}
	return v, nil
}

// PostRating records the first rating of userID for restroomID.
func (s *RatingService) PostRating(ctx context.Context, userID, restroomID int64, score *float64) (repository.RatingTransition, error) {
	v, err := s.validate(userID, restroomID, score)
	if err != nil {
		s.metrics.ObserveRating(events.KindPosted, "invalid")
		return repository.RatingTransition{}, err
	}

	transition, err := s.store.Post(ctx, userID, restroomID, v)
	if err != nil {
		err = translateTransitionError(err, ErrAlreadyRated, ErrRestroomNotFound)
		s.finish(events.KindPosted, userID, restroomID, err)
		return repository.RatingTransition{}, err
	}

	s.finish(events.KindPosted, userID, restroomID, nil)
	s.publish(ctx, events.KindPosted, transition)
	return transition, nil
}

// EditRating replaces the score userID gave restroomID.
func (s *RatingService) EditRating(ctx context.Context, userID, restroomID int64, score *float64) (repository.RatingTransition, error) {
	v, err := s.validate(userID, restroomID, score)
	if err != nil {
		s.metrics.ObserveRating(events.KindEdited, "invalid")
		return repository.RatingTransition{}, err
	}

	transition, err := s.store.Edit(ctx, userID, restroomID, v)
	if err != nil {
		err = translateTransitionError(err, nil, ErrNotYetRated)
		s.finish(events.KindEdited, userID, restroomID, err)
		return repository.RatingTransition{}, err
	}

	s.finish(events.KindEdited, userID, restroomID, nil)
	s.publish(ctx, events.KindEdited, transition)
	return transition, nil
}

// HasRated reports whether userID has rated restroomID.
func (s *RatingService) HasRated(ctx context.Context, userID, restroomID int64) (bool, error) {
	if userID <= 0 || restroomID <= 0 {
		return false, invalidInput("user id and restroom id must be positive")
	}
	rated, err := s.store.Exists(ctx, userID, restroomID)
	if err != nil {
		return false, storageUnavailable("has rated", err)
	}
	return rated, nil
}

func translateTransitionError(err, onExists, onNotFound error) error {
	switch {
	case errors.Is(err, repository.ErrUserNotFound):
		return fmt.Errorf("%w: rater does not exist", ErrInvalidCredentials)
	case onExists != nil && errors.Is(err, repository.ErrAlreadyExists):
		return onExists
	case errors.Is(err, repository.ErrNotFound):
		return onNotFound
	case errors.Is(err, repository.ErrPartialFailure):
		return fmt.Errorf("%w: %w", ErrPartialFailure, err)
	}
	return storageUnavailable("rating transition", err)
}

func (s *RatingService) finish(kind string, userID, restroomID int64, err error) {
	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, ErrAlreadyRated):
		outcome = "already_rated"
	case errors.Is(err, ErrNotYetRated):
		outcome = "not_yet_rated"
	case errors.Is(err, ErrRestroomNotFound):
		outcome = "not_found"
	case errors.Is(err, ErrInvalidCredentials):
		outcome = "unknown_user"
	case errors.Is(err, ErrPartialFailure):
		outcome = "partial_failure"
		s.logger.Error("rating transition partially failed",
			zap.String("kind", kind), zap.Int64("user_id", userID), zap.Int64("restroom_id", restroomID), zap.Error(err))
	default:
		outcome = "error"
		s.logger.Error("rating transition failed",
			zap.String("kind", kind), zap.Int64("user_id", userID), zap.Int64("restroom_id", restroomID), zap.Error(err))
	}
	s.metrics.ObserveRating(kind, outcome)
}

func (s *RatingService) publish(ctx context.Context, kind string, t repository.RatingTransition) {
	event := events.NewRatedEvent(kind, t.Rating.UserID, t.Rating.RestroomID, t.Rating.Score, t.PreviousScore, t.After.Average, t.After.Count)
	err := s.events.PublishRated(ctx, event)
	s.metrics.ObserveEvent(err)
	if err != nil {
		s.logger.Warn("publish rating event failed", zap.String("event_id", event.ID), zap.Error(err))
	}
}
