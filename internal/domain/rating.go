package domain

import (
	"errors"
	"math"
	"time"
)

// ErrNoRaters is returned when an edit is applied to an aggregate with no raters.
var ErrNoRaters = errors.New("domain: aggregate has no raters")

// Rating represents a single user's rating for a restroom.
type Rating struct {
	UserID     int64
	RestroomID int64
	Score      float64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// RatingAggregate is the running mean and count of all scores for a restroom.
type RatingAggregate struct {
	Average float64
	Count   int64
}

// Normalize enforces Count == 0 => Average == 0 and zeroes invalid values.
func (a RatingAggregate) Normalize() RatingAggregate {
	if a.Count <= 0 || math.IsNaN(a.Average) || math.IsInf(a.Average, 0) {
		return RatingAggregate{}
	}
	return a
}

// Add folds a new rater's score into the aggregate.
func (a RatingAggregate) Add(score float64) RatingAggregate {
	a = a.Normalize()
	next := a.Count + 1
	return RatingAggregate{
		Average: (a.Average*float64(a.Count) + score) / float64(next),
		Count:   next,
	}
}

// Replace swaps an existing rater's score. The count is unchanged.
func (a RatingAggregate) Replace(oldScore, newScore float64) (RatingAggregate, error) {
	if a.Count <= 0 {
		return RatingAggregate{}, ErrNoRaters
	}
	n := float64(a.Count)
	return RatingAggregate{
		Average: (a.Average*n - oldScore + newScore) / n,
		Count:   a.Count,
	}, nil
}
