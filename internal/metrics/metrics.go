package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors exported on /metrics. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal     *prometheus.CounterVec
	RequestDuration   *prometheus.HistogramVec
	RatingTransitions *prometheus.CounterVec
	NearbyResults     prometheus.Histogram
	CacheLookups      *prometheus.CounterVec
	EventsPublished   *prometheus.CounterVec
	RateLimited       prometheus.Counter
}

// New registers every collector on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "restroom_http_requests_total",
			Help: "Total HTTP requests by route and status",
		}, []string{"method", "route", "status"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "restroom_http_request_duration_ms",
			Help:    "HTTP request duration in milliseconds",
			Buckets: []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000},
		}, []string{"method", "route"}),
		RatingTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "restroom_rating_transitions_total",
			Help: "Rating posts and edits by outcome",
		}, []string{"kind", "outcome"}),
		NearbyResults: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "restroom_nearby_results",
			Help:    "Number of restrooms returned by nearby queries",
			Buckets: []float64{0, 1, 2, 5, 10},
		}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "restroom_nearby_cache_lookups_total",
			Help: "Nearby cache lookups by result",
		}, []string{"result"}),
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "restroom_events_published_total",
			Help: "Rating events handed to the broker by outcome",
		}, []string{"outcome"}),
		RateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "restroom_rate_limited_total",
			Help: "Requests rejected by the rate limiter",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.RequestsTotal,
		m.RequestDuration,
		m.RatingTransitions,
		m.NearbyResults,
		m.CacheLookups,
		m.EventsPublished,
		m.RateLimited,
	)
	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveRequest records one served request under its route pattern.
// All Observe methods are no-ops on a nil *Metrics.
func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.RequestDuration.WithLabelValues(method, route).Observe(float64(elapsed.Microseconds()) / 1000)
}

// ObserveRating counts a rating transition by kind and outcome.
func (m *Metrics) ObserveRating(kind, outcome string) {
	if m == nil {
		return
	}
	m.RatingTransitions.WithLabelValues(kind, outcome).Inc()
}

// ObserveNearby records how many restrooms a nearby query returned.
func (m *Metrics) ObserveNearby(results int) {
	if m == nil {
		return
	}
	m.NearbyResults.Observe(float64(results))
}

// ObserveCache counts a nearby cache hit or miss.
func (m *Metrics) ObserveCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

// ObserveEvent counts a rating event publish attempt.
func (m *Metrics) ObserveEvent(err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.EventsPublished.WithLabelValues(outcome).Inc()
}

// ObserveRateLimited counts a request rejected by the rate limiter.
func (m *Metrics) ObserveRateLimited() {
	if m == nil {
		return
	}
	m.RateLimited.Inc()
}
