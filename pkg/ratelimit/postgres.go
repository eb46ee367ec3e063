package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS auth_rate_limit_events (
	key        TEXT        NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS auth_rate_limit_events_key_created_at
	ON auth_rate_limit_events (key, created_at);
`

// Postgres is a Limiter shared by every instance pointed at the same database.
// Each call runs in its own transaction holding pg_advisory_xact_lock on the
// key's hash, which serializes concurrent attempts for one key across
// processes without blocking other keys.
type Postgres struct {
	pool   *pgxpool.Pool
	limit  int
	window time.Duration
	now    func() time.Time
}

var _ Limiter = (*Postgres)(nil)

// NewPostgres wraps an existing pool. Call EnsureSchema once before use.
func NewPostgres(pool *pgxpool.Pool, cfg Config) (*Postgres, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Postgres{
		pool:   pool,
		limit:  cfg.Limit,
		window: cfg.Window,
		now:    cfg.clock(),
	}, nil
}

// Connect opens a pool for dsn and verifies connectivity.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("ratelimit: open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ratelimit: ping: %w", err)
	}
	return pool, nil
}

// EnsureSchema creates the events table and index if missing.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ratelimit: ensure schema: %w", err)
	}
	return nil
}

// Allow reports whether fewer than limit attempts were recorded for key
// within the trailing window.
func (p *Postgres) Allow(ctx context.Context, key string) (bool, error) {
	var count int
	err := p.locked(ctx, key, func(tx pgx.Tx, now time.Time) error {
		return tx.QueryRow(ctx,
			`SELECT count(*) FROM auth_rate_limit_events WHERE key = $1`, key,
		).Scan(&count)
	})
	if err != nil {
		return false, err
	}
	return count < p.limit, nil
}

// Record appends an attempt for key.
func (p *Postgres) Record(ctx context.Context, key string) error {
	return p.locked(ctx, key, func(tx pgx.Tx, now time.Time) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO auth_rate_limit_events (key, created_at) VALUES ($1, $2)`, key, now,
		)
		return err
	})
}

// Reserve records an attempt for key if it is under the limit. The count and
// the insert share the advisory lock, so concurrent reservations for one key
// are decided one at a time across every instance.
func (p *Postgres) Reserve(ctx context.Context, key string) (Reservation, bool, error) {
	var (
		r  Reservation
		ok bool
	)
	err := p.locked(ctx, key, func(tx pgx.Tx, now time.Time) error {
		var count int
		if err := tx.QueryRow(ctx,
			`SELECT count(*) FROM auth_rate_limit_events WHERE key = $1`, key,
		).Scan(&count); err != nil {
			return err
		}
		if count >= p.limit {
			return nil
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO auth_rate_limit_events (key, created_at) VALUES ($1, $2)`, key, now,
		); err != nil {
			return err
		}
		r, ok = Reservation{Key: key, At: now}, true
		return nil
	})
	if err != nil {
		return Reservation{}, false, err
	}
	return r, ok, nil
}

// Release deletes the one event recorded by r.
func (p *Postgres) Release(ctx context.Context, r Reservation) error {
	_, err := p.pool.Exec(ctx, `
		DELETE FROM auth_rate_limit_events
		WHERE ctid = (
			SELECT ctid FROM auth_rate_limit_events
			WHERE key = $1 AND created_at = $2
			LIMIT 1
		)`, r.Key, r.At)
	if err != nil {
		return fmt.Errorf("ratelimit: release %q: %w", r.Key, err)
	}
	return nil
}

// Sweep deletes every expired event and returns how many were removed.
func (p *Postgres) Sweep(ctx context.Context) (int64, error) {
	tag, err := p.pool.Exec(ctx,
		`DELETE FROM auth_rate_limit_events WHERE created_at <= $1`, p.now().Add(-p.window),
	)
	if err != nil {
		return 0, fmt.Errorf("ratelimit: sweep: %w", err)
	}
	return tag.RowsAffected(), nil
}

// locked runs fn inside a transaction that holds the advisory lock for key
// and has already pruned its expired events.
func (p *Postgres) locked(ctx context.Context, key string, fn func(tx pgx.Tx, now time.Time) error) error {
	err := pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key); err != nil {
			return err
		}
		// timestamptz keeps microseconds; Release matches on the stored value.
		now := p.now().UTC().Truncate(time.Microsecond)
		if _, err := tx.Exec(ctx,
			`DELETE FROM auth_rate_limit_events WHERE key = $1 AND created_at <= $2`,
			key, now.Add(-p.window),
		); err != nil {
			return err
		}
		return fn(tx, now)
	})
	if err != nil {
		return fmt.Errorf("ratelimit: %q: %w", key, err)
	}
	return nil
}
