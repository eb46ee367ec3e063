package ratelimit_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/opticavillalba/authcore/pkg/ratelimit"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

func newMemory(t *testing.T, clock *fakeClock) *ratelimit.Memory {
	t.Helper()
	m, err := ratelimit.NewMemory(ratelimit.Config{
		Limit:  ratelimit.DefaultLimit,
		Window: ratelimit.DefaultWindow,
		Now:    clock.Now,
	})
	require.NoError(t, err)
	return m
}

func TestMemory_SlidingWindowScenario(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	clock := newFakeClock()
	start := clock.Now()
	at := func(sec int) time.Time { return start.Add(time.Duration(sec) * time.Second) }

	m := newMemory(t, clock)
	const key = "203.0.113.5"

	for _, sec := range []int{0, 60, 120, 180, 240} {
		clock.Set(at(sec))
		allowed, err := m.Allow(ctx, key)
		require.NoError(t, err)
		require.True(t, allowed, "attempt at t=%d should be allowed", sec)
		require.NoError(t, m.Record(ctx, key))
	}

	clock.Set(at(241))
	allowed, err := m.Allow(ctx, key)
	require.NoError(t, err)
	require.False(t, allowed, "five attempts inside the window must deny")

	clock.Set(at(299))
	allowed, err = m.Allow(ctx, key)
	require.NoError(t, err)
	require.False(t, allowed)

	clock.Set(at(301))
	allowed, err = m.Allow(ctx, key)
	require.NoError(t, err)
	require.True(t, allowed, "the t=0 attempt has aged out")
	require.Equal(t, 4, m.Count(key))
}

func TestMemory_KeysAreIndependent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := newMemory(t, newFakeClock())

	for range ratelimit.DefaultLimit {
		require.NoError(t, m.Record(ctx, "198.51.100.1"))
	}

	allowed, err := m.Allow(ctx, "198.51.100.1")
	require.NoError(t, err)
	require.False(t, allowed)

	allowed, err = m.Allow(ctx, "198.51.100.2")
	require.NoError(t, err)
	require.True(t, allowed)

	allowed, err = m.Allow(ctx, "198.51.100.1:alice")
	require.NoError(t, err)
	require.True(t, allowed)
}

func TestMemory_ConcurrentRecordsAreNotLost(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m, err := ratelimit.NewMemory(ratelimit.Config{Limit: 1000, Window: time.Hour})
	require.NoError(t, err)

	const workers, perWorker = 16, 50
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perWorker {
				_ = m.Record(ctx, "shared")
				_, _ = m.Allow(ctx, "shared")
			}
		}()
	}
	wg.Wait()

	require.Equal(t, workers*perWorker, m.Count("shared"))
}

func TestMemory_ConcurrentReserveStopsAtLimit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := newMemory(t, newFakeClock())

	const workers = 40
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted int
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok, _ := m.Reserve(ctx, "burst"); ok {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Equal(t, ratelimit.DefaultLimit, granted)
	require.Equal(t, ratelimit.DefaultLimit, m.Count("burst"))
}

func TestMemory_ReleaseGivesBackOneAttempt(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	clock := newFakeClock()
	m := newMemory(t, clock)

	var held []ratelimit.Reservation
	for range ratelimit.DefaultLimit {
		r, ok, err := m.Reserve(ctx, "k")
		require.NoError(t, err)
		require.True(t, ok)
		held = append(held, r)
	}
	_, ok, err := m.Reserve(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok, "a denied reservation records nothing")
	require.Equal(t, ratelimit.DefaultLimit, m.Count("k"))

	require.NoError(t, m.Release(ctx, held[0]))
	require.Equal(t, ratelimit.DefaultLimit-1, m.Count("k"))

	_, ok, err = m.Reserve(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)

	// Releasing after the attempt aged out is a no-op.
	clock.Set(clock.Now().Add(ratelimit.DefaultWindow))
	require.NoError(t, m.Release(ctx, held[1]))
	require.Zero(t, m.Count("k"))
}

func TestMemory_Sweep(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	clock := newFakeClock()
	m := newMemory(t, clock)

	require.NoError(t, m.Record(ctx, "old"))
	clock.Set(clock.Now().Add(200 * time.Second))
	require.NoError(t, m.Record(ctx, "recent"))
	require.Equal(t, 2, m.Len())

	clock.Set(clock.Now().Add(150 * time.Second))
	require.Equal(t, 1, m.Sweep())
	require.Equal(t, 1, m.Len())
	require.Equal(t, 1, m.Count("recent"))
}

func TestNewMemory_InvalidConfig(t *testing.T) {
	t.Parallel()

	for _, cfg := range []ratelimit.Config{
		{Limit: 0, Window: time.Minute},
		{Limit: 5, Window: 0},
		{Limit: -1, Window: -time.Second},
	} {
		_, err := ratelimit.NewMemory(cfg)
		require.ErrorIs(t, err, ratelimit.ErrInvalidConfig)
	}
}

// Replays a random sequence of records against a reference model: Allow is
// true exactly when fewer than limit records fall within (now-window, now].
func TestMemory_Property(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ctx := context.Background()
		limit := rapid.IntRange(1, 8).Draw(t, "limit")
		windowSec := rapid.IntRange(1, 600).Draw(t, "window")
		window := time.Duration(windowSec) * time.Second

		clock := newFakeClock()
		start := clock.Now()
		m, err := ratelimit.NewMemory(ratelimit.Config{Limit: limit, Window: window, Now: clock.Now})
		if err != nil {
			t.Fatalf("new: %v", err)
		}

		var recorded []time.Time
		elapsed := 0
		steps := rapid.IntRange(1, 60).Draw(t, "steps")
		for i := range steps {
			elapsed += rapid.IntRange(0, 120).Draw(t, "gap")
			now := start.Add(time.Duration(elapsed) * time.Second)
			clock.Set(now)

			inWindow := 0
			for _, r := range recorded {
				if now.Sub(r) < window {
					inWindow++
				}
			}

			allowed, _ := m.Allow(ctx, "k")
			if allowed != (inWindow < limit) {
				t.Fatalf("step %d: allowed=%v with %d in window (limit %d)", i, allowed, inWindow, limit)
			}
			if rapid.Bool().Draw(t, "record") {
				_ = m.Record(ctx, "k")
				recorded = append(recorded, now)
			}
		}
	})
}
