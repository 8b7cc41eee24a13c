// Package feed reads restroom datasets from an upstream open-data service or a
// local JSON file.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Clark-Hu/restroom-finder/internal/geo"
	"github.com/Clark-Hu/restroom-finder/internal/logging"
	"github.com/Clark-Hu/restroom-finder/internal/repository"
)

// ErrNotFound is returned when upstream has no dataset at the requested path.
var ErrNotFound = errors.New("feed: not found")

// ErrInvalidRating marks a record whose rating lies outside the score range.
var ErrInvalidRating = errors.New("feed: rating out of range")

// DefaultMaxScore bounds imported ratings when no maximum is configured.
const DefaultMaxScore = 5.0

// Record is one restroom as published by the feed. Field names follow the
// document layout of the public restroom dataset.
type Record struct {
	RestroomID  *int64   `json:"RestroomID"`
	Name        *string  `json:"Name"`
	Longitude   *float64 `json:"Longitude"`
	Latitude    *float64 `json:"Latitude"`
	Rating      *float64 `json:"Rating"`
	RatingCount *int64   `json:"RatingCount"`
}

// Source yields restroom records.
type Source interface {
	Fetch(ctx context.Context) ([]Record, error)
}

// HTTPClient implements Source over HTTP.
type HTTPClient struct {
	baseURL *url.URL
	apiKey  string
	client  *http.Client
	logger  *zap.Logger
}

// NewHTTPClient constructs a feed client for the dataset served at baseURL.
func NewHTTPClient(baseURL, apiKey string, timeout time.Duration, logger *zap.Logger) (*HTTPClient, error) {
	parsed, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse feed url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("parse feed url: %q is not absolute", baseURL)
	}
	return &HTTPClient{
		baseURL: parsed,
		apiKey:  apiKey,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   timeout,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout:   timeout,
				ResponseHeaderTimeout: timeout,
				ExpectContinueTimeout: 1 * time.Second,
			},
		},
		logger: logging.OrNop(logger).Named("feed"),
	}, nil
}

// Fetch downloads the full restroom dataset.
func (c *HTTPClient) Fetch(ctx context.Context) ([]Record, error) {
	endpoint := c.baseURL.ResolveReference(&url.URL{Path: c.baseURL.Path + "/restrooms"})

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, err
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return Decode(resp.Body)
	case http.StatusNotFound:
		return nil, ErrNotFound
	default:
		c.logger.Warn("unexpected upstream status",
			zap.Int("status", resp.StatusCode),
			zap.String("url", endpoint.String()),
		)
		return nil, fmt.Errorf("feed: upstream returned %d", resp.StatusCode)
	}
}

// FileSource reads a dataset from a JSON file on disk.
type FileSource struct {
	Path string
}

// Fetch reads and decodes the file.
func (f FileSource) Fetch(context.Context) ([]Record, error) {
	file, err := os.Open(f.Path)
	if err != nil {
		return nil, fmt.Errorf("open feed file: %w", err)
	}
	defer file.Close()
	return Decode(file)
}

// Decode parses a dataset. Both a bare JSON array and an object of the form
// {"restrooms": [...]} are accepted.
func Decode(r io.Reader) ([]Record, error) {
	payload, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read feed: %w", err)
	}
	trimmed := strings.TrimSpace(string(payload))
	if strings.HasPrefix(trimmed, "{") {
		var wrapped struct {
			Restrooms []Record `json:"restrooms"`
		}
		if err := json.Unmarshal(payload, &wrapped); err != nil {
			return nil, fmt.Errorf("decode feed: %w", err)
		}
		return wrapped.Restrooms, nil
	}
	var records []Record
	if err := json.Unmarshal(payload, &records); err != nil {
		return nil, fmt.Errorf("decode feed: %w", err)
	}
	return records, nil
}

// ToImport validates a record and converts it for the restroom repository.
// Records without both coordinates, with coordinates out of range, with a
// negative rating count, or with a rating outside [0, maxScore] are rejected.
// The aggregate is dropped unless both rating fields are present, and a zero
// count forces the rating to zero.
func ToImport(rec Record, maxScore float64) (repository.RestroomImport, error) {
	if maxScore <= 0 {
		maxScore = DefaultMaxScore
	}
	if rec.Longitude == nil || rec.Latitude == nil {
		return repository.RestroomImport{}, fmt.Errorf("%w: missing coordinates", geo.ErrInvalidCoordinates)
	}
	if err := (geo.Point{Lon: *rec.Longitude, Lat: *rec.Latitude}).Validate(); err != nil {
		return repository.RestroomImport{}, err
	}
	if rec.RatingCount != nil && *rec.RatingCount < 0 {
		return repository.RestroomImport{}, fmt.Errorf("feed: negative rating count %d", *rec.RatingCount)
	}
	if rec.RestroomID != nil && *rec.RestroomID <= 0 {
		return repository.RestroomImport{}, fmt.Errorf("feed: non-positive restroom id %d", *rec.RestroomID)
	}

	out := repository.RestroomImport{
		ID:        rec.RestroomID,
		Name:      rec.Name,
		Longitude: *rec.Longitude,
		Latitude:  *rec.Latitude,
	}
	switch {
	case rec.RatingCount == nil || (rec.Rating == nil && *rec.RatingCount > 0):
		// Half an aggregate is no aggregate.
	case *rec.RatingCount == 0:
		zero, count := 0.0, int64(0)
		out.Rating, out.RatingCount = &zero, &count
	default:
		rating := *rec.Rating
		if math.IsNaN(rating) || rating < 0 || rating > maxScore {
			return repository.RestroomImport{}, fmt.Errorf("%w: %v not in [0, %v]", ErrInvalidRating, rating, maxScore)
		}
		count := *rec.RatingCount
		out.Rating, out.RatingCount = &rating, &count
	}
	return out, nil
}
