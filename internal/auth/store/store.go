package store

import (
	"context"
	"errors"
	"time"

	"github.com/opticavillalba/authcore/internal/auth/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers implement this.
// It exposes sub-repositories rather than flat methods so a transaction can
// hand out the same repositories bound to its own connection, and so nobody
// can start a transaction from inside one.
type Store interface {
	Users() Users
	LoginAttempts() LoginAttempts

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes fn within a transaction. The transaction is committed
	// when fn returns nil and rolled back otherwise.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Users interface {
	// GetUserByID returns a user by id.
	GetUserByID(ctx context.Context, id string) (domain.User, error)

	// GetUserByUsername matches the username case-insensitively.
	GetUserByUsername(ctx context.Context, username string) (domain.User, error)

	// ListUsers returns every user ordered by username.
	ListUsers(ctx context.Context) ([]domain.User, error)

	// CreateUser inserts a new user (id is provided by app via ULID).
	// A duplicate username yields ErrAlreadyExists.
	CreateUser(ctx context.Context, u domain.User) error

	// UpdateMFA replaces the MFA secret, the enabled flag and the last
	// accepted step in one statement. A nil secret clears it.
	UpdateMFA(ctx context.Context, userID string, secret *string, enabled bool, lastStep uint64) error

	// AdvanceMFAStep records step as the last accepted TOTP step, but only
	// when it is strictly greater than the stored one. It reports whether the
	// row moved, which makes concurrent reuse of one code lose the race.
	AdvanceMFAStep(ctx context.Context, userID string, step uint64) (bool, error)

	// UpdateLastLogin stamps a successful authentication.
	UpdateLastLogin(ctx context.Context, userID string, at time.Time) error

	// UpdatePasswordHash sets the password_hash and bumps updated_at.
	UpdatePasswordHash(ctx context.Context, userID string, newHash string) error

	// SetActive enables or disables the account.
	SetActive(ctx context.Context, userID string, active bool) error

	// CountUsers returns the number of stored users.
	CountUsers(ctx context.Context) (int, error)
}

// LoginAttempts is the audit sink. Records are never updated.
type LoginAttempts interface {
	// Append writes one audit record.
	Append(ctx context.Context, a domain.LoginAttempt) error

	// ListRecent returns at most limit records, newest first.
	ListRecent(ctx context.Context, limit int) ([]domain.LoginAttempt, error)

	// DeleteBefore removes records created before cutoff (retention sweep).
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
