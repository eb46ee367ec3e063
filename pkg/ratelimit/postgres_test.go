package ratelimit_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/opticavillalba/authcore/pkg/ratelimit"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupPostgres starts a throwaway Postgres container and returns its DSN.
func setupPostgres(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "auth",
				"POSTGRES_PASSWORD": "auth",
				"POSTGRES_DB":       "auth",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	return fmt.Sprintf("postgres://auth:auth@%s:%s/auth?sslmode=disable", host, port.Port())
}

func TestPostgres(t *testing.T) {
	dsn := setupPostgres(t)
	ctx := context.Background()

	pool, err := ratelimit.Connect(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	t.Run("sliding window scenario", func(t *testing.T) {
		clock := newFakeClock()
		start := clock.Now()
		at := func(sec int) time.Time { return start.Add(time.Duration(sec) * time.Second) }

		lim, err := ratelimit.NewPostgres(pool, ratelimit.Config{
			Limit:  ratelimit.DefaultLimit,
			Window: ratelimit.DefaultWindow,
			Now:    clock.Now,
		})
		require.NoError(t, err)
		require.NoError(t, lim.EnsureSchema(ctx))
		require.NoError(t, lim.EnsureSchema(ctx), "schema creation must be idempotent")

		const key = "203.0.113.5"
		for _, sec := range []int{0, 60, 120, 180, 240} {
			clock.Set(at(sec))
			require.NoError(t, lim.Record(ctx, key))
		}

		clock.Set(at(241))
		allowed, err := lim.Allow(ctx, key)
		require.NoError(t, err)
		require.False(t, allowed)

		clock.Set(at(301))
		allowed, err = lim.Allow(ctx, key)
		require.NoError(t, err)
		require.True(t, allowed)

		clock.Set(at(1000))
		removed, err := lim.Sweep(ctx)
		require.NoError(t, err)
		require.EqualValues(t, 4, removed)
	})

	t.Run("instances share counts", func(t *testing.T) {
		a, err := ratelimit.NewPostgres(pool, ratelimit.Config{Limit: 3, Window: time.Minute})
		require.NoError(t, err)
		require.NoError(t, a.EnsureSchema(ctx))
		b, err := ratelimit.NewPostgres(pool, ratelimit.Config{Limit: 3, Window: time.Minute})
		require.NoError(t, err)

		require.NoError(t, a.Record(ctx, "shared:alice"))
		require.NoError(t, b.Record(ctx, "shared:alice"))
		require.NoError(t, a.Record(ctx, "shared:alice"))

		allowed, err := b.Allow(ctx, "shared:alice")
		require.NoError(t, err)
		require.False(t, allowed)
	})

	t.Run("concurrent records are not lost", func(t *testing.T) {
		lim, err := ratelimit.NewPostgres(pool, ratelimit.Config{Limit: 1000, Window: time.Hour})
		require.NoError(t, err)
		require.NoError(t, lim.EnsureSchema(ctx))

		var wg sync.WaitGroup
		for range 20 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = lim.Record(ctx, "burst")
			}()
		}
		wg.Wait()

		var n int
		require.NoError(t, pool.QueryRow(ctx,
			`SELECT count(*) FROM auth_rate_limit_events WHERE key = 'burst'`).Scan(&n))
		require.Equal(t, 20, n)
	})

	t.Run("reserve is atomic across instances", func(t *testing.T) {
		a, err := ratelimit.NewPostgres(pool, ratelimit.Config{Limit: 5, Window: time.Hour})
		require.NoError(t, err)
		require.NoError(t, a.EnsureSchema(ctx))
		b, err := ratelimit.NewPostgres(pool, ratelimit.Config{Limit: 5, Window: time.Hour})
		require.NoError(t, err)

		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			granted []ratelimit.Reservation
		)
		for i := range 30 {
			lim := a
			if i%2 == 1 {
				lim = b
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				r, ok, err := lim.Reserve(ctx, "reserve-burst")
				if err == nil && ok {
					mu.Lock()
					granted = append(granted, r)
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		require.Len(t, granted, 5)

		require.NoError(t, b.Release(ctx, granted[0]))
		var n int
		require.NoError(t, pool.QueryRow(ctx,
			`SELECT count(*) FROM auth_rate_limit_events WHERE key = 'reserve-burst'`).Scan(&n))
		require.Equal(t, 4, n)
	})
}
