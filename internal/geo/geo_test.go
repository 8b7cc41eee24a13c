package geo

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDistanceKnownPairs(t *testing.T) {
	tests := []struct {
		name string
		a, b Point
		want float64
		tol  float64
	}{
		{"same point", Point{103.85, 1.29}, Point{103.85, 1.29}, 0, 1e-9},
		{"one degree latitude", Point{0, 0}, Point{0, 1}, 111195, 5},
		{"one degree longitude at equator", Point{0, 0}, Point{1, 0}, 111195, 5},
		{"antipodal", Point{0, 0}, Point{180, 0}, math.Pi * EarthRadiusMeters, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Distance(tt.a, tt.b), tt.tol)
		})
	}
}

func TestDistanceSymmetric(t *testing.T) {
	a := Point{Lon: 121.5654, Lat: 25.0330}
	b := Point{Lon: 121.5700, Lat: 25.0400}
	assert.InDelta(t, Distance(a, b), Distance(b, a), 1e-9)
}

func TestValidate(t *testing.T) {
	valid := []Point{{0, 0}, {180, 90}, {-180, -90}, {121.5, 25}}
	for _, p := range valid {
		require.NoError(t, p.Validate(), "%+v", p)
	}

	invalid := []Point{{181, 0}, {0, 91}, {-180.5, 0}, {0, -90.1}, {math.NaN(), 0}, {0, math.Inf(1)}}
	for _, p := range invalid {
		assert.ErrorIs(t, p.Validate(), ErrInvalidCoordinates, "%+v", p)
	}
}

func TestBoundingBoxContainsRadius(t *testing.T) {
	rnd := rand.New(rand.NewSource(7))
	for i := 0; i < 500; i++ {
		center := Point{Lon: rnd.Float64()*358 - 179, Lat: rnd.Float64()*170 - 85}
		radius := 1000.0
		box := BoundingBox(center, radius)

		// Points at exactly radius in eight compass directions must be inside.
		for k := 0; k < 8; k++ {
			bearing := float64(k) * math.Pi / 4
			p := destination(center, bearing, radius*0.999)
			assert.GreaterOrEqual(t, p.Lat, box.MinLat, "center %+v bearing %d", center, k)
			assert.LessOrEqual(t, p.Lat, box.MaxLat, "center %+v bearing %d", center, k)
			assert.GreaterOrEqual(t, p.Lon, box.MinLon, "center %+v bearing %d", center, k)
			assert.LessOrEqual(t, p.Lon, box.MaxLon, "center %+v bearing %d", center, k)
		}
	}
}

func TestBoundingBoxNearAntimeridianUsesFullRange(t *testing.T) {
	box := BoundingBox(Point{Lon: 179.9999, Lat: 10}, 1000)
	assert.Equal(t, -180.0, box.MinLon)
	assert.Equal(t, 180.0, box.MaxLon)
}

func TestBoundingBoxNearPole(t *testing.T) {
	box := BoundingBox(Point{Lon: 10, Lat: 89.999}, 1000)
	assert.Equal(t, 90.0, box.MaxLat)
	assert.Equal(t, -180.0, box.MinLon)
	assert.Equal(t, 180.0, box.MaxLon)
}

// destination walks distance meters from p along bearing (radians from north).
func destination(p Point, bearing, distance float64) Point {
	ang := distance / EarthRadiusMeters
	lat1 := radians(p.Lat)
	lon1 := radians(p.Lon)
	lat2 := math.Asin(math.Sin(lat1)*math.Cos(ang) + math.Cos(lat1)*math.Sin(ang)*math.Cos(bearing))
	lon2 := lon1 + math.Atan2(math.Sin(bearing)*math.Sin(ang)*math.Cos(lat1), math.Cos(ang)-math.Sin(lat1)*math.Sin(lat2))
	return Point{Lon: degrees(lon2), Lat: degrees(lat2)}
}
