// Package geo holds the spherical-earth helpers behind proximity queries.
// Coordinates are WGS84 degrees; distances are meters.
package geo

import (
	"errors"
	"fmt"
	"math"
)

// EarthRadiusMeters is the mean earth radius used for every distance computation,
// in Go and in SQL.
const EarthRadiusMeters = 6371008.8

// ErrInvalidCoordinates reports a longitude/latitude outside the valid range.
var ErrInvalidCoordinates = errors.New("geo: invalid coordinates")

// Point is a (longitude, latitude) pair.
type Point struct {
	Lon float64
	Lat float64
}

// Box is an axis-aligned longitude/latitude rectangle.
type Box struct {
	MinLon, MinLat float64
	MaxLon, MaxLat float64
}

// Validate checks that p is finite and within [-180,180] x [-90,90].
func (p Point) Validate() error {
	if math.IsNaN(p.Lon) || math.IsNaN(p.Lat) || math.IsInf(p.Lon, 0) || math.IsInf(p.Lat, 0) {
		return fmt.Errorf("%w: non-finite value", ErrInvalidCoordinates)
	}
	if p.Lon < -180 || p.Lon > 180 {
		return fmt.Errorf("%w: longitude %v out of range", ErrInvalidCoordinates, p.Lon)
	}
	if p.Lat < -90 || p.Lat > 90 {
		return fmt.Errorf("%w: latitude %v out of range", ErrInvalidCoordinates, p.Lat)
	}
	return nil
}

// Distance returns the great-circle distance between a and b (haversine).
func Distance(a, b Point) float64 {
	dLat := radians(b.Lat - a.Lat)
	dLon := radians(b.Lon - a.Lon)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(radians(a.Lat))*math.Cos(radians(b.Lat))*math.Sin(dLon/2)*math.Sin(dLon/2)
	h = math.Min(1, h)
	return 2 * EarthRadiusMeters * math.Asin(math.Sqrt(h))
}

// BoundingBox returns a box containing every point within radius meters of
// center. When the box would cross the antimeridian or touch a pole the full
// longitude range is used, so the result is always a superset.
func BoundingBox(center Point, radius float64) Box {
	latDelta := degrees(radius / EarthRadiusMeters)
	box := Box{
		MinLat: math.Max(-90, center.Lat-latDelta),
		MaxLat: math.Min(90, center.Lat+latDelta),
		MinLon: -180,
		MaxLon: 180,
	}
	if box.MinLat <= -90 || box.MaxLat >= 90 {
		return box
	}

	// Widest longitude span occurs at the box latitude nearest a pole.
	maxAbsLat := math.Max(math.Abs(box.MinLat), math.Abs(box.MaxLat))
	cos := math.Cos(radians(maxAbsLat))
	if cos < 1e-9 {
		return box
	}
	lonDelta := latDelta / cos
	if center.Lon-lonDelta < -180 || center.Lon+lonDelta > 180 {
		return box
	}
	box.MinLon = center.Lon - lonDelta
	box.MaxLon = center.Lon + lonDelta
	return box
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }

func degrees(rad float64) float64 { return rad * 180 / math.Pi }
