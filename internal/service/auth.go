package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/Clark-Hu/restroom-finder/internal/auth"
	"github.com/Clark-Hu/restroom-finder/internal/domain"
	"github.com/Clark-Hu/restroom-finder/internal/logging"
	"github.com/Clark-Hu/restroom-finder/internal/repository"
)

// UserStore persists accounts.
type UserStore interface {
	EmailExists(ctx context.Context, email string) (bool, error)
	Create(ctx context.Context, user domain.User) (domain.User, error)
	GetByEmail(ctx context.Context, email string) (domain.User, error)
}

// SequenceStore issues user identifiers.
type SequenceStore interface {
	NextUserID(ctx context.Context) (int64, error)
}

// PasswordHasher hashes and verifies passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}

// TokenIssuer signs access tokens.
type TokenIssuer interface {
	Issue(userID int64) (string, error)
}

// AuthService registers accounts and exchanges credentials for tokens.
type AuthService struct {
	users  UserStore
	seq    SequenceStore
	hasher PasswordHasher
	tokens TokenIssuer
	logger *zap.Logger
}

// NewAuthService wires the account store, identifier sequence, password
// hasher and token issuer into an AuthService.
func NewAuthService(users UserStore, seq SequenceStore, hasher PasswordHasher, tokens TokenIssuer, logger *zap.Logger) *AuthService {
	return &AuthService{
		users:  users,
		seq:    seq,
		hasher: hasher,
		tokens: tokens,
		logger: logging.OrNop(logger).Named("auth"),
	}
}

// NormalizeEmail trims and lower-cases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates an account for email. The identifier comes from the
// sequence generator; a taken email yields ErrDuplicateEmail.
func (s *AuthService) Register(ctx context.Context, email, password string) (domain.User, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return domain.User{}, invalidInput("email and password are required")
	}

	exists, err := s.users.EmailExists(ctx, email)
	if err != nil {
		return domain.User{}, storageUnavailable("check email", err)
	}
	if exists {
		return domain.User{}, ErrDuplicateEmail
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return domain.User{}, invalidInput("password cannot be hashed: %v", err)
	}

	id, err := s.seq.NextUserID(ctx)
	if err != nil {
		return domain.User{}, storageUnavailable("next user id", err)
	}

	user, err := s.users.Create(ctx, domain.User{ID: id, Email: email, PasswordHash: hash})
	if err != nil {
		// Lost a race with a concurrent registration of the same email.
		if errors.Is(err, repository.ErrAlreadyExists) {
			return domain.User{}, ErrDuplicateEmail
		}
		return domain.User{}, storageUnavailable("create user", err)
	}

	s.logger.Info("user registered", zap.Int64("user_id", user.ID))
	return user, nil
}

// Login verifies credentials and returns a signed access token.
func (s *AuthService) Login(ctx context.Context, email, password string) (string, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return "", invalidInput("email and password are required")
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", ErrInvalidCredentials
		}
		return "", storageUnavailable("get user", err)
	}

	if err := s.hasher.Compare(user.PasswordHash, password); err != nil {
		if !errors.Is(err, auth.ErrPasswordMismatch) {
			s.logger.Warn("password check failed", zap.Int64("user_id", user.ID), zap.Error(err))
		}
		return "", ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return "", fmt.Errorf("issue token: %w", err)
	}
	return token, nil
}
