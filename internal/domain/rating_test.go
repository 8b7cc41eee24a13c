package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestRatingAggregateScenario(t *testing.T) {
	var agg RatingAggregate

	agg = agg.Add(4)
	assert.Equal(t, RatingAggregate{Average: 4, Count: 1}, agg)

	agg, err := agg.Replace(4, 2)
	require.NoError(t, err)
	assert.Equal(t, RatingAggregate{Average: 2, Count: 1}, agg)

	agg = agg.Add(5)
	assert.InDelta(t, 3.5, agg.Average, 1e-9)
	assert.Equal(t, int64(2), agg.Count)
}

func TestRatingAggregateMatchesMean(t *testing.T) {
	scores := []float64{0, 5, 3.5, 1, 4.25, 2, 5, 0.5}
	var agg RatingAggregate
	sum := 0.0
	for _, s := range scores {
		agg = agg.Add(s)
		sum += s
	}
	assert.Equal(t, int64(len(scores)), agg.Count)
	assert.InDelta(t, sum/float64(len(scores)), agg.Average, 1e-9)

	// Editing one score keeps the aggregate equal to the new mean.
	edited, err := agg.Replace(scores[1], 1)
	require.NoError(t, err)
	assert.Equal(t, agg.Count, edited.Count)
	assert.InDelta(t, (sum-scores[1]+1)/float64(len(scores)), edited.Average, 1e-9)
}

func TestRatingAggregateReplaceIdempotent(t *testing.T) {
	agg := RatingAggregate{Average: 3, Count: 4}
	once, err := agg.Replace(2, 2)
	require.NoError(t, err)
	assert.InDelta(t, agg.Average, once.Average, 1e-12)
}

func TestRatingAggregateReplaceWithoutRaters(t *testing.T) {
	_, err := RatingAggregate{}.Replace(1, 2)
	assert.ErrorIs(t, err, ErrNoRaters)
}

func TestRatingAggregateNormalize(t *testing.T) {
	assert.Equal(t, RatingAggregate{}, RatingAggregate{Average: 4, Count: 0}.Normalize())
	assert.Equal(t, RatingAggregate{}, RatingAggregate{Average: math.NaN(), Count: 2}.Normalize())
	assert.Equal(t, RatingAggregate{Average: 2, Count: 2}, RatingAggregate{Average: 2, Count: 2}.Normalize())
}

func TestRestroomAggregateDefaults(t *testing.T) {
	assert.Equal(t, RatingAggregate{}, Restroom{}.Aggregate())
	assert.Equal(t, RatingAggregate{}, Restroom{Rating: ptr(3.0)}.Aggregate())
	assert.Equal(t, RatingAggregate{Average: 0, Count: 2}, Restroom{RatingCount: ptr(int64(2))}.Aggregate())
	assert.Equal(t, RatingAggregate{Average: 3, Count: 2}, Restroom{Rating: ptr(3.0), RatingCount: ptr(int64(2))}.Aggregate())
}
