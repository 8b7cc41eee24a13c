// Package events publishes rating transitions to RabbitMQ so downstream
// consumers can react to new and edited ratings.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	KindPosted = "posted"
	KindEdited = "edited"
)

// RatedEvent describes one accepted rating transition.
type RatedEvent struct {
	ID            string    `json:"id"`
	Kind          string    `json:"kind"`
	UserID        int64     `json:"user_id"`
	RestroomID    int64     `json:"restroom_id"`
	Score         float64   `json:"score"`
	PreviousScore *float64  `json:"previous_score,omitempty"`
	Rating        float64   `json:"rating"`
	RatingCount   int64     `json:"rating_count"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// NewRatedEvent stamps an event with a fresh identifier and the current time.
func NewRatedEvent(kind string, userID, restroomID int64, score float64, previous *float64, rating float64, count int64) RatedEvent {
	return RatedEvent{
		ID:            uuid.NewString(),
		Kind:          kind,
		UserID:        userID,
		RestroomID:    restroomID,
		Score:         score,
		PreviousScore: previous,
		Rating:        rating,
		RatingCount:   count,
		OccurredAt:    time.Now().UTC(),
	}
}

// Publisher delivers rating events.
type Publisher interface {
	PublishRated(ctx context.Context, event RatedEvent) error
	Close() error
}

// Nop discards every event. It is used when no broker is configured.
type Nop struct{}

func (Nop) PublishRated(context.Context, RatedEvent) error { return nil }

func (Nop) Close() error { return nil }
