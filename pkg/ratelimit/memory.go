package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Memory is a process-local Limiter.
//
// The key map is guarded by one mutex that is only held long enough to find
// or create a window. Each window carries its own mutex, so attempts for
// different keys never wait on each other while attempts for the same key are
// applied one at a time.
type Memory struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	windows map[string]*window
}

type window struct {
	mu   sync.Mutex
	hits []time.Time // ascending
	refs int         // guarded by Memory.mu
}

var _ Limiter = (*Memory)(nil)

// NewMemory creates an in-memory limiter.
func NewMemory(cfg Config) (*Memory, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Memory{
		limit:   cfg.Limit,
		window:  cfg.Window,
		now:     cfg.clock(),
		windows: make(map[string]*window),
	}, nil
}

// Allow reports whether fewer than limit attempts were recorded for key
// within the trailing window.
func (m *Memory) Allow(_ context.Context, key string) (bool, error) {
	var allowed bool
	m.withWindow(key, func(w *window, now time.Time) {
		w.prune(now, m.window)
		allowed = len(w.hits) < m.limit
	})
	return allowed, nil
}

// Record appends an attempt for key.
func (m *Memory) Record(_ context.Context, key string) error {
	m.withWindow(key, func(w *window, now time.Time) {
		w.prune(now, m.window)
		w.hits = append(w.hits, now)
	})
	return nil
}

// Reserve records an attempt for key if it is under the limit.
func (m *Memory) Reserve(_ context.Context, key string) (Reservation, bool, error) {
	var (
		r  Reservation
		ok bool
	)
	m.withWindow(key, func(w *window, now time.Time) {
		w.prune(now, m.window)
		if len(w.hits) >= m.limit {
			return
		}
		w.hits = append(w.hits, now)
		r, ok = Reservation{Key: key, At: now}, true
	})
	return r, ok, nil
}

// Release removes the attempt recorded by r. A reservation that has already
// left the window is ignored.
func (m *Memory) Release(_ context.Context, r Reservation) error {
	m.withWindow(r.Key, func(w *window, now time.Time) {
		w.prune(now, m.window)
		for i := len(w.hits) - 1; i >= 0; i-- {
			if w.hits[i].Equal(r.At) {
				w.hits = append(w.hits[:i], w.hits[i+1:]...)
				return
			}
		}
	})
	return nil
}

// Count returns the number of attempts currently inside the window for key.
func (m *Memory) Count(key string) int {
	var n int
	m.withWindow(key, func(w *window, now time.Time) {
		w.prune(now, m.window)
		n = len(w.hits)
	})
	return n
}

// Sweep prunes every idle window and drops the ones left empty. It returns
// the number of keys removed.
func (m *Memory) Sweep() int {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key, w := range m.windows {
		if w.refs > 0 {
			continue
		}
		// No goroutine holds or waits on w.mu when refs is zero.
		w.mu.Lock()
		w.prune(now, m.window)
		empty := len(w.hits) == 0
		w.mu.Unlock()
		if empty {
			delete(m.windows, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked keys.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.windows)
}

func (m *Memory) withWindow(key string, fn func(w *window, now time.Time)) {
	m.mu.Lock()
	w, ok := m.windows[key]
	if !ok {
		w = &window{}
		m.windows[key] = w
	}
	w.refs++
	m.mu.Unlock()

	w.mu.Lock()
	fn(w, m.now())
	w.mu.Unlock()

	m.mu.Lock()
	w.refs--
	m.mu.Unlock()
}

func (w *window) prune(now time.Time, length time.Duration) {
	i := 0
	for i < len(w.hits) && expired(now, w.hits[i], length) {
		i++
	}
	if i > 0 {
		w.hits = append(w.hits[:0], w.hits[i:]...)
	}
}
