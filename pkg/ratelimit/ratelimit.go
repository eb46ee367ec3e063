// Package ratelimit implements sliding-window attempt counters used to slow
// down password and MFA guessing.
//
// A window is keyed by an arbitrary identifier (a client address, or an
// address:username composite). Allow reports whether fewer than Limit events
// were recorded within the trailing Window, and Record appends one event.
// Both prune expired events on every access.
//
// Reserve is the check and the record in one step under the key's lock: it
// counts an attempt before the guess is evaluated, so a parallel burst cannot
// all pass the check while the count is still low. Release takes a
// reservation back once the attempt turned out not to be a failed guess.
//
// Two backends are provided. Memory keeps windows in process and serializes
// each key with its own mutex. Postgres keeps events in a shared table and
// serializes each key with a transaction-scoped advisory lock, so several
// service instances observe the same counts.
package ratelimit

import (
	"context"
	"errors"
	"time"
)

// Defaults used by the login flow.
const (
	DefaultLimit  = 5
	DefaultWindow = 300 * time.Second
)

// ErrInvalidConfig is returned for non-positive limits or windows.
var ErrInvalidConfig = errors.New("ratelimit: limit and window must be positive")

// Limiter is a sliding-window attempt counter.
type Limiter interface {
	// Allow reports whether the key is still under its limit.
	Allow(ctx context.Context, key string) (bool, error)
	// Record appends an attempt for the key at the current time.
	Record(ctx context.Context, key string) error
	// Reserve records an attempt only if the key is under its limit, and
	// reports whether it did.
	Reserve(ctx context.Context, key string) (Reservation, bool, error)
	// Release removes an attempt taken by Reserve.
	Release(ctx context.Context, r Reservation) error
}

// Reservation identifies one attempt recorded by Reserve.
type Reservation struct {
	Key string
	At  time.Time
}

// Config holds the parameters shared by every backend.
type Config struct {
	Limit  int              // Events allowed within Window
	Window time.Duration    // Trailing window length
	Now    func() time.Time // Clock, time.Now when nil
}

func (c Config) validate() error {
	if c.Limit <= 0 || c.Window <= 0 {
		return ErrInvalidConfig
	}
	return nil
}

func (c Config) clock() func() time.Time {
	if c.Now == nil {
		return time.Now
	}
	return c.Now
}

// expired reports whether an event at t has left the window at now.
func expired(now, t time.Time, window time.Duration) bool {
	return now.Sub(t) >= window
}
