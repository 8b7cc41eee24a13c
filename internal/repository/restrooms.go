package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Clark-Hu/restroom-finder/internal/domain"
	"github.com/Clark-Hu/restroom-finder/internal/geo"
)

// RestroomsRepository provides persistence and proximity queries for restrooms.
type RestroomsRepository struct {
	pool *pgxpool.Pool
}

const (
	// DefaultNearestLimit caps the number of restrooms a proximity query returns.
	DefaultNearestLimit = 10
	// DefaultNearestMaxDistance is the proximity search radius in meters.
	DefaultNearestMaxDistance = 1000.0
)

const restroomColumns = `
    id,
    name,
    longitude,
    latitude,
    rating,
    rating_count,
    version,
    created_at,
    updated_at
`

// RestroomCreateParams bundles the fields required to create a restroom.
type RestroomCreateParams struct {
	Name      *string
	Longitude float64
	Latitude  float64
}

// NearestQuery describes a k-nearest-within-radius lookup.
type NearestQuery struct {
	Longitude         float64
	Latitude          float64
	Limit             int
	MaxDistanceMeters float64
}

// Create inserts a restroom and derives its location point from the coordinates.
func (r *RestroomsRepository) Create(ctx context.Context, params RestroomCreateParams) (domain.Restroom, error) {
	if err := (geo.Point{Lon: params.Longitude, Lat: params.Latitude}).Validate(); err != nil {
		return domain.Restroom{}, err
	}

	query := fmt.Sprintf(`
        INSERT INTO restrooms (name, longitude, latitude, location)
        VALUES ($1, $2::float8, $3::float8, point($2::float8, $3::float8))
        RETURNING %s
    `, restroomColumns)

	return scanRestroom(r.pool.QueryRow(ctx, query, params.Name, params.Longitude, params.Latitude))
}

// RestroomImport is a restroom record coming from an external dataset. ID is
// kept when present so repeated imports update rows in place. Rating and
// RatingCount may be absent.
type RestroomImport struct {
	ID          *int64
	Name        *string
	Longitude   float64
	Latitude    float64
	Rating      *float64
	RatingCount *int64
}

// Import inserts or updates an externally sourced restroom. The record's
// aggregate seeds a restroom nobody has rated through the service yet; once
// rating rows exist the stored aggregate is left alone.
func (r *RestroomsRepository) Import(ctx context.Context, rec RestroomImport) (domain.Restroom, error) {
	if err := (geo.Point{Lon: rec.Longitude, Lat: rec.Latitude}).Validate(); err != nil {
		return domain.Restroom{}, err
	}
	if rec.ID == nil {
		query := fmt.Sprintf(`
            INSERT INTO restrooms (name, longitude, latitude, location, rating, rating_count)
            VALUES ($1, $2::float8, $3::float8, point($2::float8, $3::float8), $4, $5)
            RETURNING %s
        `, restroomColumns)
		return scanRestroom(r.pool.QueryRow(ctx, query, rec.Name, rec.Longitude, rec.Latitude, rec.Rating, rec.RatingCount))
	}

	query := fmt.Sprintf(`
        INSERT INTO restrooms (id, name, longitude, latitude, location, rating, rating_count)
        VALUES ($1, $2, $3::float8, $4::float8, point($3::float8, $4::float8), $5, $6)
        ON CONFLICT (id) DO UPDATE
        SET name = EXCLUDED.name,
            longitude = EXCLUDED.longitude,
            latitude = EXCLUDED.latitude,
            location = EXCLUDED.location,
            rating = CASE
                WHEN EXISTS (SELECT 1 FROM ratings WHERE restroom_id = restrooms.id) THEN restrooms.rating
                ELSE COALESCE(EXCLUDED.rating, restrooms.rating)
            END,
            rating_count = CASE
                WHEN EXISTS (SELECT 1 FROM ratings WHERE restroom_id = restrooms.id) THEN restrooms.rating_count
                ELSE COALESCE(EXCLUDED.rating_count, restrooms.rating_count)
            END,
            version = restrooms.version + 1,
            updated_at = now()
        RETURNING %s
    `, restroomColumns)

	var restroom domain.Restroom
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		// FOR UPDATE conflicts with the key-share lock a rating insert holds on
		// its restroom, so every rating committed before the upsert is visible
		// to its EXISTS checks.
		if _, err := tx.Exec(ctx, `SELECT 1 FROM restrooms WHERE id = $1 FOR UPDATE`, *rec.ID); err != nil {
			return fmt.Errorf("lock restroom: %w", err)
		}
		var err error
		restroom, err = scanRestroom(tx.QueryRow(ctx, query, *rec.ID, rec.Name, rec.Longitude, rec.Latitude, rec.Rating, rec.RatingCount))
		return err
	})
	if err != nil {
		return domain.Restroom{}, err
	}
	return restroom, nil
}

// SyncIDSequence moves the identifier sequence past the largest imported id.
func (r *RestroomsRepository) SyncIDSequence(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `
        SELECT setval(pg_get_serial_sequence('restrooms', 'id'),
                      GREATEST((SELECT COALESCE(MAX(id), 0) FROM restrooms), 1))
    `)
	if err != nil {
		return fmt.Errorf("sync restroom id sequence: %w", err)
	}
	return nil
}

// GetByID fetches a restroom by its identifier.
func (r *RestroomsRepository) GetByID(ctx context.Context, id int64) (domain.Restroom, error) {
	query := fmt.Sprintf(`SELECT %s FROM restrooms WHERE id = $1`, restroomColumns)
	restroom, err := scanRestroom(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Restroom{}, ErrNotFound
		}
		return domain.Restroom{}, err
	}
	return restroom, nil
}

// UpdateCoordinates moves a restroom and rebuilds its location point in the same statement.
func (r *RestroomsRepository) UpdateCoordinates(ctx context.Context, id int64, longitude, latitude float64) (domain.Restroom, error) {
	if err := (geo.Point{Lon: longitude, Lat: latitude}).Validate(); err != nil {
		return domain.Restroom{}, err
	}

	query := fmt.Sprintf(`
        UPDATE restrooms
        SET longitude = $2::float8,
            latitude = $3::float8,
            location = point($2::float8, $3::float8),
            updated_at = now()
        WHERE id = $1
        RETURNING %s
    `, restroomColumns)

	restroom, err := scanRestroom(r.pool.QueryRow(ctx, query, id, longitude, latitude))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Restroom{}, ErrNotFound
		}
		return domain.Restroom{}, err
	}
	return restroom, nil
}

// RebuildLocations re-derives the location point of every restroom whose point
// is missing or no longer matches its coordinates. It returns the rows fixed.
func (r *RestroomsRepository) RebuildLocations(ctx context.Context) (int64, error) {
	const query = `
        UPDATE restrooms
        SET location = point(longitude, latitude),
            updated_at = now()
        WHERE location IS NULL
           OR NOT (location ~= point(longitude, latitude))
    `
	tag, err := r.pool.Exec(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("rebuild locations: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Count returns the number of stored restrooms.
func (r *RestroomsRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx, `SELECT count(*) FROM restrooms`).Scan(&n)
	return n, err
}

// Nearest returns restrooms within q.MaxDistanceMeters of the query point,
// closest first, truncated to q.Limit. Distance is great-circle distance
// computed from the stored location point. Restrooms without a location are
// invisible to this query.
func (r *RestroomsRepository) Nearest(ctx context.Context, q NearestQuery) ([]domain.NearbyRestroom, error) {
	center := geo.Point{Lon: q.Longitude, Lat: q.Latitude}
	if err := center.Validate(); err != nil {
		return nil, err
	}
	if q.Limit <= 0 {
		q.Limit = DefaultNearestLimit
	}
	if q.MaxDistanceMeters <= 0 {
		q.MaxDistanceMeters = DefaultNearestMaxDistance
	}
	box := geo.BoundingBox(center, q.MaxDistanceMeters)

	query := fmt.Sprintf(`
        SELECT %s, distance
        FROM (
            SELECT *,
                   2 * $1::float8 * asin(sqrt(least(1.0,
                       power(sin(radians(location[1] - $3::float8) / 2), 2) +
                       cos(radians($3::float8)) * cos(radians(location[1])) *
                       power(sin(radians(location[0] - $2::float8) / 2), 2)
                   ))) AS distance
            FROM restrooms
            WHERE location IS NOT NULL
              AND location <@ box(point($4::float8, $5::float8), point($6::float8, $7::float8))
        ) candidates
        WHERE distance <= $8::float8
        ORDER BY distance, id
        LIMIT $9
    `, restroomColumns)

	rows, err := r.pool.Query(ctx, query,
		geo.EarthRadiusMeters,
		center.Lon, center.Lat,
		box.MinLon, box.MinLat, box.MaxLon, box.MaxLat,
		q.MaxDistanceMeters,
		int64(q.Limit),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]domain.NearbyRestroom, 0, q.Limit)
	for rows.Next() {
		var item domain.NearbyRestroom
		err := rows.Scan(
			&item.ID,
			&item.Name,
			&item.Longitude,
			&item.Latitude,
			&item.Rating,
			&item.RatingCount,
			&item.Version,
			&item.CreatedAt,
			&item.UpdatedAt,
			&item.DistanceMeters,
		)
		if err != nil {
			return nil, err
		}
		results = append(results, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func scanRestroom(row pgx.Row) (domain.Restroom, error) {
	var restroom domain.Restroom
	err := row.Scan(
		&restroom.ID,
		&restroom.Name,
		&restroom.Longitude,
		&restroom.Latitude,
		&restroom.Rating,
		&restroom.RatingCount,
		&restroom.Version,
		&restroom.CreatedAt,
		&restroom.UpdatedAt,
	)
	if err != nil {
		return domain.Restroom{}, err
	}
	return restroom, nil
}
