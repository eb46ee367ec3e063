package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/opticavillalba/authcore/internal/auth/domain"
	"github.com/opticavillalba/authcore/internal/auth/store"
	"github.com/opticavillalba/authcore/pkg/cryptox"
	"github.com/opticavillalba/authcore/pkg/idx"
	"github.com/opticavillalba/authcore/pkg/slogx"
)

const (
	// DefaultLogLimit is the page size for login attempt listings.
	DefaultLogLimit = 50
	// MaxLogLimit caps any login attempt listing.
	MaxLogLimit = 500
	// MinPasswordLength applies to passwords set through this service.
	MinPasswordLength = 12
)

var ErrUserExists = errors.New("user_exists")

// UserService holds the administrative operations behind authctl and the
// admin API. None of them enroll MFA; enrollment only happens through the
// login flow.
type UserService struct {
	Store  store.Store
	Hasher *cryptox.PasswordHasher
	Now    func() time.Time
}

func (s *UserService) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

// CreateUser provisions an active user without MFA.
func (s *UserService) CreateUser(ctx context.Context, username, email, password string) (domain.User, error) {
	u, err := buildUser(s.Hasher, s.now(), username, email, password)
	if err != nil {
		return domain.User{}, err
	}
	if err := s.Store.Users().CreateUser(ctx, u); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return domain.User{}, ErrUserExists
		}
		return domain.User{}, unavailable("create user", err)
	}
	slogx.FromContext(ctx).Info("user created", slog.String("user_id", u.ID), slog.String("username", u.Username))
	return u, nil
}

// ListUsers returns every user ordered by username.
func (s *UserService) ListUsers(ctx context.Context) ([]domain.User, error) {
	users, err := s.Store.Users().ListUsers(ctx)
	if err != nil {
		return nil, unavailable("list users", err)
	}
	return users, nil
}

// ResetMFA clears the secret and disables MFA. The next login goes through
// setup again.
func (s *UserService) ResetMFA(ctx context.Context, username string) error {
	user, err := s.get(ctx, username)
	if err != nil {
		return err
	}
	if err := s.Store.Users().UpdateMFA(ctx, user.ID, nil, false, 0); err != nil {
		return unavailable("reset mfa", err)
	}
	slogx.FromContext(ctx).Info("mfa reset", slog.String("user_id", user.ID))
	return nil
}

// SetActive enables or disables an account.
func (s *UserService) SetActive(ctx context.Context, username string, active bool) error {
	user, err := s.get(ctx, username)
	if err != nil {
		return err
	}
	if err := s.Store.Users().SetActive(ctx, user.ID, active); err != nil {
		return unavailable("set active", err)
	}
	slogx.FromContext(ctx).Info("user activation changed",
		slog.String("user_id", user.ID),
		slog.Bool("active", active),
	)
	return nil
}

// SetPassword replaces a user's password.
func (s *UserService) SetPassword(ctx context.Context, username, password string) error {
	if err := validatePassword(password); err != nil {
		return err
	}
	user, err := s.get(ctx, username)
	if err != nil {
		return err
	}
	hash, err := s.Hasher.Hash(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.Store.Users().UpdatePasswordHash(ctx, user.ID, hash); err != nil {
		return unavailable("update password", err)
	}
	return nil
}

// LoginAttempts returns the newest audit records. A non-positive limit means
// DefaultLogLimit and anything above MaxLogLimit is capped.
func (s *UserService) LoginAttempts(ctx context.Context, limit int) ([]domain.LoginAttempt, error) {
	if limit <= 0 {
		limit = DefaultLogLimit
	}
	limit = min(limit, MaxLogLimit)

	attempts, err := s.Store.LoginAttempts().ListRecent(ctx, limit)
	if err != nil {
		return nil, unavailable("list login attempts", err)
	}
	return attempts, nil
}

func (s *UserService) get(ctx context.Context, username string) (domain.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return domain.User{}, fmt.Errorf("%w: username is required", ErrValidation)
	}
	user, err := s.Store.Users().GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.User{}, ErrNotFound
		}
		return domain.User{}, unavailable("lookup user", err)
	}
	return user, nil
}

func buildUser(hasher *cryptox.PasswordHasher, now time.Time, username, email, password string) (domain.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return domain.User{}, fmt.Errorf("%w: username is required", ErrValidation)
	}
	if err := validatePassword(password); err != nil {
		return domain.User{}, err
	}

	hash, err := hasher.Hash(password)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}

	return domain.User{
		ID:           idx.NewAt(now).String(),
		Username:     username,
		Email:        strings.TrimSpace(email),
		PasswordHash: hash,
		IsActive:     true,
		CreatedAt:    now.UTC(),
		UpdatedAt:    now.UTC(),
	}, nil
}

func validatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrValidation, MinPasswordLength)
	}
	return nil
}
