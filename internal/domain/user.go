package domain

import "time"

// User is a registered account. PasswordHash is a bcrypt digest.
type User struct {
	ID           int64
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}
