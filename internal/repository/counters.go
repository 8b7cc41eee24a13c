package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// UserIDCounter names the counter that issues user identifiers.
const UserIDCounter = "UserID"

// CountersRepository issues monotonically increasing identifiers from named
// counter rows.
type CountersRepository struct {
	pool *pgxpool.Pool
}

// Next atomically increments the named counter and returns the new value.
// A missing counter is created, so the first value is 1.
func (r *CountersRepository) Next(ctx context.Context, name string) (int64, error) {
	const query = `
        INSERT INTO counters (name, seq)
        VALUES ($1, 1)
        ON CONFLICT (name)
        DO UPDATE SET seq = counters.seq + 1
        RETURNING seq
    `
	return withRetry(ctx, func(ctx context.Context) (int64, error) {
		var seq int64
		if err := r.pool.QueryRow(ctx, query, name).Scan(&seq); err != nil {
			return 0, fmt.Errorf("increment counter %s: %w", name, err)
		}
		return seq, nil
	})
}

// NextUserID returns the next user identifier.
func (r *CountersRepository) NextUserID(ctx context.Context) (int64, error) {
	return r.Next(ctx, UserIDCounter)
}

// Current returns the last value issued by the named counter without changing it.
func (r *CountersRepository) Current(ctx context.Context, name string) (int64, error) {
	var seq int64
	err := r.pool.QueryRow(ctx, `SELECT seq FROM counters WHERE name = $1`, name).Scan(&seq)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return seq, nil
}
