package repository

import (
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Clark-Hu/restroom-finder/internal/store"
)

var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("repository: not found")
	// ErrUserNotFound indicates a write referenced a user that does not exist.
	ErrUserNotFound = errors.New("repository: user not found")
	// ErrAlreadyExists indicates a uniqueness constraint rejected the write.
	ErrAlreadyExists = errors.New("repository: already exists")
	// ErrConflict indicates an optimistic update kept losing to concurrent writers.
	ErrConflict = errors.New("repository: concurrent update conflict")
	// ErrPartialFailure indicates a dependent write failed after an earlier
	// write in the same transition succeeded. The transaction was rolled back
	// or its outcome is unknown; nothing was applied twice.
	ErrPartialFailure = errors.New("repository: partial failure")
)

// Repository aggregates all domain-specific repositories.
type Repository struct {
	Restrooms *RestroomsRepository
	Ratings   *RatingsRepository
	Users     *UsersRepository
	Counters  *CountersRepository
}

// New constructs a Repository backed by the provided store.
func New(st *store.Store) *Repository {
	return NewWithPool(st.Pool())
}

// NewWithPool allows constructing repositories directly from a pgx pool.
func NewWithPool(pool *pgxpool.Pool) *Repository {
	return &Repository{
		Restrooms: &RestroomsRepository{pool: pool},
		Ratings:   &RatingsRepository{pool: pool, maxCASAttempts: defaultCASAttempts},
		Users:     &UsersRepository{pool: pool},
		Counters:  &CountersRepository{pool: pool},
	}
}
