// Package service holds the application use cases behind the HTTP surface:
// registration and login, nearby queries and the rating state machine.
package service

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrAlreadyRated       = errors.New("restroom already rated by this user")
	ErrNotYetRated        = errors.New("restroom not yet rated by this user")
	ErrDuplicateEmail     = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrRestroomNotFound   = errors.New("restroom not found")
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrPartialFailure means the aggregate update failed after the rating
	// record was written. Nothing was committed twice; the client may retry.
	ErrPartialFailure = errors.New("rating transition partially failed")
)

func invalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

func storageUnavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorageUnavailable, op, err)
}
