package service

import (
	"context"
	"strconv"

	"go.uber.org/zap"

	"github.com/Clark-Hu/restroom-finder/internal/domain"
	"github.com/Clark-Hu/restroom-finder/internal/geo"
	"github.com/Clark-Hu/restroom-finder/internal/logging"
	"github.com/Clark-Hu/restroom-finder/internal/metrics"
	"github.com/Clark-Hu/restroom-finder/internal/repository"
)

// RestroomView is the public shape of a nearby restroom. Rating and
// RatingCount are always present.
type RestroomView struct {
	RestroomID  int64   `json:"RestroomID"`
	Name        string  `json:"Name"`
	Longitude   float64 `json:"Longitude"`
	Latitude    float64 `json:"Latitude"`
	Rating      float64 `json:"Rating"`
	RatingCount int64   `json:"RatingCount"`
	Distance    float64 `json:"Distance"`
}

// RestroomFinder answers proximity queries.
type RestroomFinder interface {
	Nearest(ctx context.Context, q repository.NearestQuery) ([]domain.NearbyRestroom, error)
}

// NearbyCache stores recent nearby answers.
type NearbyCache interface {
	Get(ctx context.Context, key string) ([]RestroomView, bool, error)
	Set(ctx context.Context, key string, views []RestroomView) error
}

// RestroomServiceOptions carries the optional collaborators of RestroomService.
type RestroomServiceOptions struct {
	Limit             int
	MaxDistanceMeters float64
	Cache             NearbyCache
	Metrics           *metrics.Metrics
	Logger            *zap.Logger
}

// RestroomService answers nearby queries.
type RestroomService struct {
	finder      RestroomFinder
	limit       int
	maxDistance float64
	cache       NearbyCache
	metrics     *metrics.Metrics
	logger      *zap.Logger
}

// NewRestroomService returns a RestroomService over finder. Limit and
// MaxDistanceMeters fall back to the repository defaults when unset.
func NewRestroomService(finder RestroomFinder, opts RestroomServiceOptions) *RestroomService {
	if opts.Limit <= 0 {
		opts.Limit = repository.DefaultNearestLimit
	}
	if opts.MaxDistanceMeters <= 0 {
		opts.MaxDistanceMeters = repository.DefaultNearestMaxDistance
	}
	return &RestroomService{
		finder:      finder,
		limit:       opts.Limit,
		maxDistance: opts.MaxDistanceMeters,
		cache:       opts.Cache,
		metrics:     opts.Metrics,
		logger:      logging.OrNop(opts.Logger).Named("restrooms"),
	}
}

// Nearby returns up to the configured limit of restrooms within the configured
// radius of (longitude, latitude), nearest first.
func (s *RestroomService) Nearby(ctx context.Context, longitude, latitude float64) ([]RestroomView, error) {
	if err := (geo.Point{Lon: longitude, Lat: latitude}).Validate(); err != nil {
		return nil, invalidInput("%v", err)
	}

	key := nearbyKey(longitude, latitude)
	if s.cache != nil {
		views, ok, err := s.cache.Get(ctx, key)
		switch {
		case err != nil:
			s.logger.Warn("nearby cache read failed", zap.Error(err))
		case ok:
			s.metrics.ObserveCache(true)
			return views, nil
		default:
			s.metrics.ObserveCache(false)
		}
	}

	found, err := s.finder.Nearest(ctx, repository.NearestQuery{
		Longitude:         longitude,
		Latitude:          latitude,
		Limit:             s.limit,
		MaxDistanceMeters: s.maxDistance,
	})
	if err != nil {
		return nil, storageUnavailable("nearest restrooms", err)
	}

	views := make([]RestroomView, 0, len(found))
	for _, r := range found {
		views = append(views, ToRestroomView(r))
	}
	s.metrics.ObserveNearby(len(views))

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, views); err != nil {
			s.logger.Warn("nearby cache write failed", zap.Error(err))
		}
	}
	return views, nil
}

// ToRestroomView maps a stored restroom to its public view, defaulting an
// absent aggregate to zero.
func ToRestroomView(r domain.NearbyRestroom) RestroomView {
	agg := r.Aggregate()
	view := RestroomView{
		RestroomID:  r.ID,
		Longitude:   r.Longitude,
		Latitude:    r.Latitude,
		Rating:      agg.Average,
		RatingCount: agg.Count,
		Distance:    r.DistanceMeters,
	}
	if r.Name != nil {
		view.Name = *r.Name
	}
	return view
}

func nearbyKey(longitude, latitude float64) string {
	return "nearby:" + strconv.FormatFloat(longitude, 'g', -1, 64) + ":" + strconv.FormatFloat(latitude, 'g', -1, 64)
}
