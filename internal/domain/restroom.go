package domain

import "time"

// Restroom represents a public restroom and its rating aggregate.
// Rating and RatingCount are nil when the stored record has no aggregate yet.
type Restroom struct {
	ID          int64
	Name        *string
	Longitude   float64
	Latitude    float64
	Rating      *float64
	RatingCount *int64
	Version     int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NearbyRestroom is a Restroom returned by a proximity query along with its
// distance from the query point.
type NearbyRestroom struct {
	Restroom
	DistanceMeters float64
}

// Aggregate returns the rating aggregate, treating absent fields as zero.
func (r Restroom) Aggregate() RatingAggregate {
	var agg RatingAggregate
	if r.Rating != nil {
		agg.Average = *r.Rating
	}
	if r.RatingCount != nil {
		agg.Count = *r.RatingCount
	}
	return agg.Normalize()
}
