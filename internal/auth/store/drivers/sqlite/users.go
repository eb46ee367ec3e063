package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/opticavillalba/authcore/internal/auth/domain"
	"github.com/opticavillalba/authcore/internal/auth/store"
	"github.com/opticavillalba/authcore/pkg/cryptox"
)

const userColumns = `id, username, email, password_hash, mfa_secret, mfa_enabled,
	mfa_last_step, is_active, last_login, created_at, updated_at`

type userRow struct {
	ID           string         `db:"id"`
	Username     string         `db:"username"`
	Email        string         `db:"email"`
	PasswordHash string         `db:"password_hash"`
	MFASecret    sql.NullString `db:"mfa_secret"`
	MFAEnabled   bool           `db:"mfa_enabled"`
	MFALastStep  int64          `db:"mfa_last_step"`
	IsActive     bool           `db:"is_active"`
	LastLogin    sql.NullInt64  `db:"last_login"`
	CreatedAt    int64          `db:"created_at"`
	UpdatedAt    int64          `db:"updated_at"`
}

type usersRepo struct {
	db  sqlx.ExtContext
	box *cryptox.SecretBox
	now func() time.Time
}

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	var row userRow
	err := sqlx.GetContext(ctx, r.db, &row, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	return r.mapUser(row)
}

func (r *usersRepo) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	var row userRow
	// username carries COLLATE NOCASE, so "Alice" finds "alice".
	err := sqlx.GetContext(ctx, r.db, &row, `SELECT `+userColumns+` FROM users WHERE username = ?`, username)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	return r.mapUser(row)
}

func (r *usersRepo) ListUsers(ctx context.Context) ([]domain.User, error) {
	var rows []userRow
	if err := sqlx.SelectContext(ctx, r.db, &rows, `SELECT `+userColumns+` FROM users ORDER BY username`); err != nil {
		return nil, err
	}
	users := make([]domain.User, 0, len(rows))
	for _, row := range rows {
		u, err := r.mapUser(row)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, nil
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	now := r.now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	if u.UpdatedAt.IsZero() {
		u.UpdatedAt = u.CreatedAt
	}

	secret, err := r.seal(u.MFASecret)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID,
		u.Username,
		u.Email,
		u.PasswordHash,
		secret,
		u.MFAEnabled,
		int64(u.MFALastStep),
		u.IsActive,
		mapOptionalMillis(u.LastLogin),
		toMillis(u.CreatedAt),
		toMillis(u.UpdatedAt),
	)
	if isUniqueViolation(err) {
		return store.ErrAlreadyExists
	}
	return err
}

func (r *usersRepo) UpdateMFA(
	ctx context.Context,
	userID string,
	secret *string,
	enabled bool,
	lastStep uint64,
) error {
	sealed, err := r.seal(secret)
	if err != nil {
		return err
	}
	return expectOne(r.db.ExecContext(ctx, `
		UPDATE users
		SET mfa_secret = ?, mfa_enabled = ?, mfa_last_step = ?, updated_at = ?
		WHERE id = ?`,
		sealed, enabled, int64(lastStep), toMillis(r.now()), userID,
	))
}

func (r *usersRepo) AdvanceMFAStep(ctx context.Context, userID string, step uint64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET mfa_last_step = ?, updated_at = ?
		WHERE id = ? AND mfa_last_step < ?`,
		int64(step), toMillis(r.now()), userID, int64(step),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: rows affected: %w", err)
	}
	return n == 1, nil
}

func (r *usersRepo) UpdateLastLogin(ctx context.Context, userID string, at time.Time) error {
	return expectOne(r.db.ExecContext(ctx,
		`UPDATE users SET last_login = ? WHERE id = ?`,
		toMillis(at), userID,
	))
}

func (r *usersRepo) UpdatePasswordHash(ctx context.Context, userID string, newHash string) error {
	return expectOne(r.db.ExecContext(ctx,
		`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`,
		newHash, toMillis(r.now()), userID,
	))
}

func (r *usersRepo) SetActive(ctx context.Context, userID string, active bool) error {
	return expectOne(r.db.ExecContext(ctx,
		`UPDATE users SET is_active = ?, updated_at = ? WHERE id = ?`,
		active, toMillis(r.now()), userID,
	))
}

func (r *usersRepo) CountUsers(ctx context.Context) (int, error) {
	var n int
	if err := sqlx.GetContext(ctx, r.db, &n, `SELECT COUNT(*) FROM users`); err != nil {
		return 0, err
	}
	return n, nil
}

func (r *usersRepo) seal(secret *string) (sql.NullString, error) {
	if secret == nil {
		return sql.NullString{}, nil
	}
	if r.box == nil {
		return sql.NullString{String: *secret, Valid: true}, nil
	}
	sealed, err := r.box.Seal(*secret)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("sqlite: seal mfa secret: %w", err)
	}
	return sql.NullString{String: sealed, Valid: true}, nil
}

func (r *usersRepo) mapUser(row userRow) (domain.User, error) {
	u := domain.User{
		ID:           row.ID,
		Username:     row.Username,
		Email:        row.Email,
		PasswordHash: row.PasswordHash,
		MFAEnabled:   row.MFAEnabled,
		MFALastStep:  uint64(max(row.MFALastStep, 0)),
		IsActive:     row.IsActive,
		LastLogin:    mapNullMillisPtr(row.LastLogin),
		CreatedAt:    fromMillis(row.CreatedAt),
		UpdatedAt:    fromMillis(row.UpdatedAt),
	}

	if row.MFASecret.Valid {
		secret := row.MFASecret.String
		if cryptox.IsSealed(secret) {
			if r.box == nil {
				return domain.User{}, fmt.Errorf("sqlite: user %s has an encrypted mfa secret but no master key is configured", row.ID)
			}
			opened, err := r.box.Open(secret)
			if err != nil {
				return domain.User{}, fmt.Errorf("sqlite: open mfa secret for user %s: %w", row.ID, err)
			}
			secret = opened
		}
		u.MFASecret = &secret
	}
	return u, nil
}
