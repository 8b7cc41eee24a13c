package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Clark-Hu/restroom-finder/internal/domain"
)

const defaultCASAttempts = 32

// constraintRatingsUser is the foreign key from ratings to users.
const constraintRatingsUser = "ratings_user_id_fkey"

// RatingsRepository owns the rating records and the aggregate fields of
// restrooms. Every transition runs in a single transaction: the rating row and
// the aggregate either both change or neither does.
type RatingsRepository struct {
	pool           *pgxpool.Pool
	maxCASAttempts int
}

// RatingTransition reports the outcome of a successful post or edit.
type RatingTransition struct {
	Rating        domain.Rating
	PreviousScore *float64
	Before        domain.RatingAggregate
	After         domain.RatingAggregate
}

const ratingColumns = `user_id, restroom_id, score, created_at, updated_at`

// Post records the first rating of userID for restroomID and folds the score
// into the restroom aggregate. A second post for the same pair returns
// ErrAlreadyExists without touching anything; an unknown restroom returns
// ErrNotFound and an unknown user ErrUserNotFound.
func (r *RatingsRepository) Post(ctx context.Context, userID, restroomID int64, score float64) (RatingTransition, error) {
	return withRetry(ctx, func(ctx context.Context) (RatingTransition, error) {
		return r.post(ctx, userID, restroomID, score)
	})
}

func (r *RatingsRepository) post(ctx context.Context, userID, restroomID int64, score float64) (RatingTransition, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return RatingTransition{}, fmt.Errorf("begin post rating: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := `
        INSERT INTO ratings (user_id, restroom_id, score)
        VALUES ($1, $2, $3)
        ON CONFLICT (user_id, restroom_id) DO NOTHING
        RETURNING ` + ratingColumns

	rating, err := scanRating(tx.QueryRow(ctx, query, userID, restroomID, score))
	if err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return RatingTransition{}, ErrAlreadyExists
		case pgErrorCode(err) == codeForeignKeyViolation:
			if pgConstraintName(err) == constraintRatingsUser {
				return RatingTransition{}, ErrUserNotFound
			}
			return RatingTransition{}, ErrNotFound
		}
		return RatingTransition{}, fmt.Errorf("insert rating: %w", err)
	}

	before, after, err := r.swapAggregate(ctx, tx, restroomID, func(agg domain.RatingAggregate) (domain.RatingAggregate, error) {
		return agg.Add(score), nil
	})
	if err != nil {
		return RatingTransition{}, aggregateFailure(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return RatingTransition{}, fmt.Errorf("%w: commit post rating: %w", ErrPartialFailure, err)
	}

	return RatingTransition{Rating: rating, Before: before, After: after}, nil
}

// Edit replaces the score of an existing rating and adjusts the aggregate
// without changing the rater count. It returns ErrNotFound when userID has not
// rated restroomID yet.
func (r *RatingsRepository) Edit(ctx context.Context, userID, restroomID int64, score float64) (RatingTransition, error) {
	return withRetry(ctx, func(ctx context.Context) (RatingTransition, error) {
		return r.edit(ctx, userID, restroomID, score)
	})
}

func (r *RatingsRepository) edit(ctx context.Context, userID, restroomID int64, score float64) (RatingTransition, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return RatingTransition{}, fmt.Errorf("begin edit rating: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// The row lock keeps concurrent edits by the same rater in order, so each
	// one subtracts the score the previous one wrote.
	var previous float64
	err = tx.QueryRow(ctx, `
        SELECT score FROM ratings
        WHERE user_id = $1 AND restroom_id = $2
        FOR UPDATE
    `, userID, restroomID).Scan(&previous)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return RatingTransition{}, ErrNotFound
		}
		return RatingTransition{}, fmt.Errorf("lock rating: %w", err)
	}

	query := `
        UPDATE ratings
        SET score = $3, updated_at = now()
        WHERE user_id = $1 AND restroom_id = $2
        RETURNING ` + ratingColumns

	rating, err := scanRating(tx.QueryRow(ctx, query, userID, restroomID, score))
	if err != nil {
		return RatingTransition{}, fmt.Errorf("update rating: %w", err)
	}

	before, after, err := r.swapAggregate(ctx, tx, restroomID, func(agg domain.RatingAggregate) (domain.RatingAggregate, error) {
		return agg.Replace(previous, score)
	})
	if err != nil {
		return RatingTransition{}, aggregateFailure(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return RatingTransition{}, fmt.Errorf("%w: commit edit rating: %w", ErrPartialFailure, err)
	}

	return RatingTransition{Rating: rating, PreviousScore: &previous, Before: before, After: after}, nil
}

// swapAggregate applies next to the restroom aggregate with a compare-and-swap
// on restrooms.version, re-reading after every lost race.
func (r *RatingsRepository) swapAggregate(
	ctx context.Context,
	tx pgx.Tx,
	restroomID int64,
	next func(domain.RatingAggregate) (domain.RatingAggregate, error),
) (domain.RatingAggregate, domain.RatingAggregate, error) {
	attempts := r.maxCASAttempts
	if attempts <= 0 {
		attempts = defaultCASAttempts
	}

	for i := 0; i < attempts; i++ {
		var current domain.Restroom
		err := tx.QueryRow(ctx, `
            SELECT rating, rating_count, version FROM restrooms WHERE id = $1
        `, restroomID).Scan(&current.Rating, &current.RatingCount, &current.Version)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.RatingAggregate{}, domain.RatingAggregate{}, ErrNotFound
			}
			return domain.RatingAggregate{}, domain.RatingAggregate{}, fmt.Errorf("read aggregate: %w", err)
		}

		before := current.Aggregate()
		after, err := next(before)
		if err != nil {
			return domain.RatingAggregate{}, domain.RatingAggregate{}, err
		}

		tag, err := tx.Exec(ctx, `
            UPDATE restrooms
            SET rating = $2, rating_count = $3, version = version + 1, updated_at = now()
            WHERE id = $1 AND version = $4
        `, restroomID, after.Average, after.Count, current.Version)
		if err != nil {
			return domain.RatingAggregate{}, domain.RatingAggregate{}, fmt.Errorf("write aggregate: %w", err)
		}
		if tag.RowsAffected() == 1 {
			return before, after, nil
		}
	}
	return domain.RatingAggregate{}, domain.RatingAggregate{}, ErrConflict
}

// aggregateFailure classifies an error raised after the rating row was written.
// Transient errors pass through so the rolled-back transaction is retried as a
// whole; anything else is a partial failure.
func aggregateFailure(err error) error {
	if isRetryable(err) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrPartialFailure, err)
}

// Exists reports whether userID has rated restroomID.
func (r *RatingsRepository) Exists(ctx context.Context, userID, restroomID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
        SELECT EXISTS (SELECT 1 FROM ratings WHERE user_id = $1 AND restroom_id = $2)
    `, userID, restroomID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("rating exists: %w", err)
	}
	return exists, nil
}

// get retrieves the rating userID gave restroomID.
func (r *RatingsRepository) get(ctx context.Context, userID, restroomID int64) (domain.Rating, error) {
	query := `SELECT ` + ratingColumns + ` FROM ratings WHERE user_id = $1 AND restroom_id = $2`
	rating, err := scanRating(r.pool.QueryRow(ctx, query, userID, restroomID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Rating{}, ErrNotFound
		}
		return domain.Rating{}, err
	}
	return rating, nil
}

// AggregateFromRatings recomputes the mean and count of a restroom directly
// from its rating records.
func (r *RatingsRepository) AggregateFromRatings(ctx context.Context, restroomID int64) (domain.RatingAggregate, error) {
	const query = `
        SELECT COALESCE(AVG(score), 0)::float8 AS average,
               COUNT(*)::int8 AS count
        FROM ratings
        WHERE restroom_id = $1
    `

	var agg domain.RatingAggregate
	err := r.pool.QueryRow(ctx, query, restroomID).Scan(&agg.Average, &agg.Count)
	if err != nil {
		return domain.RatingAggregate{}, fmt.Errorf("aggregate ratings: %w", err)
	}
	return agg, nil
}

func scanRating(row pgx.Row) (domain.Rating, error) {
	var rating domain.Rating
	err := row.Scan(
		&rating.UserID,
		&rating.RestroomID,
		&rating.Score,
		&rating.CreatedAt,
		&rating.UpdatedAt,
	)
	if err != nil {
		return domain.Rating{}, err
	}
	return rating, nil
}
