package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/opticavillalba/authcore/internal/auth/domain"
	"github.com/opticavillalba/authcore/pkg/idx"
)

type loginAttemptRow struct {
	ID         string `db:"id"`
	Username   string `db:"username"`
	Identifier string `db:"identifier"`
	Event      string `db:"event"`
	Success    bool   `db:"success"`
	Reason     string `db:"reason"`
	CreatedAt  int64  `db:"created_at"`
}

type loginAttemptsRepo struct {
	db  sqlx.ExtContext
	now func() time.Time
}

func (r *loginAttemptsRepo) Append(ctx context.Context, a domain.LoginAttempt) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = r.now().UTC()
	}
	if a.ID == "" {
		a.ID = idx.NewAt(a.CreatedAt).String()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO login_attempts (id, username, identifier, event, success, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Username, a.Identifier, a.Event, a.Success, a.Reason, toMillis(a.CreatedAt),
	)
	return err
}

func (r *loginAttemptsRepo) ListRecent(ctx context.Context, limit int) ([]domain.LoginAttempt, error) {
	if limit <= 0 {
		return []domain.LoginAttempt{}, nil
	}

	var rows []loginAttemptRow
	err := sqlx.SelectContext(ctx, r.db, &rows, `
		SELECT id, username, identifier, event, success, reason, created_at
		FROM login_attempts
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}

	out := make([]domain.LoginAttempt, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.LoginAttempt{
			ID:         row.ID,
			Username:   row.Username,
			Identifier: row.Identifier,
			Event:      row.Event,
			Success:    row.Success,
			Reason:     row.Reason,
			CreatedAt:  fromMillis(row.CreatedAt),
		})
	}
	return out, nil
}

func (r *loginAttemptsRepo) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM login_attempts WHERE created_at < ?`, toMillis(cutoff))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: rows affected: %w", err)
	}
	return n, nil
}
