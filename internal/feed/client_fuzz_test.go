package feed

import (
	"math"
	"strings"
	"testing"
)

func FuzzToImport(f *testing.F) {
	f.Add(int64(1), "Station", 121.5, 25.0, 4.0, int64(3))
	f.Add(int64(0), "", 181.0, -91.0, 0.0, int64(-1))
	f.Add(int64(2), "Hall", 10.0, 10.0, 99.0, int64(3))

	f.Fuzz(func(t *testing.T, id int64, name string, lon, lat, rating float64, count int64) {
		rec := Record{
			RestroomID:  &id,
			Name:        optionalString(name),
			Longitude:   &lon,
			Latitude:    &lat,
			Rating:      &rating,
			RatingCount: &count,
		}
		out, err := ToImport(rec, DefaultMaxScore)
		if err != nil {
			return
		}
		if math.Abs(out.Longitude) > 180 || math.Abs(out.Latitude) > 90 {
			t.Fatalf("accepted out-of-range coordinates %v,%v", out.Longitude, out.Latitude)
		}
		if *out.RatingCount < 0 || *out.ID <= 0 {
			t.Fatalf("accepted invalid record %+v", out)
		}
		if *out.RatingCount == 0 && *out.Rating != 0 {
			t.Fatalf("unrated record kept rating %v", *out.Rating)
		}
		if *out.Rating < 0 || *out.Rating > DefaultMaxScore {
			t.Fatalf("accepted rating %v outside [0, %v]", *out.Rating, DefaultMaxScore)
		}
	})
}

func FuzzDecode(f *testing.F) {
	f.Add(sample)
	f.Add(`{"restrooms": []}`)
	f.Add(`[{"Longitude": "x"}]`)

	f.Fuzz(func(t *testing.T, payload string) {
		records, err := Decode(strings.NewReader(payload))
		if err != nil {
			return
		}
		for _, rec := range records {
			_, _ = ToImport(rec, DefaultMaxScore)
		}
	})
}

func optionalString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
