package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/opticavillalba/authcore/internal/auth/store"
)

// SweepFunc drops idle rate-limit windows and reports how many went away.
type SweepFunc func(ctx context.Context) (int64, error)

// HousekeepingService periodically trims state that would otherwise grow
// without bound: idle rate-limit windows and audit records older than the
// retention period.
type HousekeepingService struct {
	Store    store.Store
	Logger   *slog.Logger
	Interval time.Duration

	// Retention is how long login attempts are kept. Zero keeps them forever.
	Retention time.Duration

	// SweepLimiter is optional.
	SweepLimiter SweepFunc

	Now func() time.Time

	// Internal channels for lifecycle management
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService creates a new housekeeping service with the given interval.
// If interval is 0 or negative, defaults to 5 minutes.
func NewHousekeepingService(
	store store.Store,
	logger *slog.Logger,
	interval, retention time.Duration,
	sweep SweepFunc,
) *HousekeepingService {
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	return &HousekeepingService{
		Store:        store,
		Logger:       logger,
		Interval:     interval,
		Retention:    retention,
		SweepLimiter: sweep,
		Now:          time.Now,
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}
}

// Start begins the background worker. It is non-blocking; call Stop to
// shut the worker down.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping service started",
		"interval", s.Interval,
		"audit_retention", s.Retention,
	)
}

// Stop blocks until the worker has finished any in-progress cleanup.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	s.cleanup(context.Background())

	for {
		select {
		case <-ticker.C:
			s.cleanup(context.Background())
		case <-s.stopCh:
			return
		}
	}
}

// cleanup runs each task independently; one failing does not stop the others.
func (s *HousekeepingService) cleanup(ctx context.Context) {
	if s.SweepLimiter != nil {
		n, err := s.SweepLimiter(ctx)
		if err != nil {
			s.Logger.Error("failed to sweep rate limit windows", "error", err)
		} else {
			s.Logger.Debug("swept rate limit windows", "removed", n)
		}
	}

	if s.Retention > 0 {
		cutoff := s.Now().Add(-s.Retention)
		n, err := s.Store.LoginAttempts().DeleteBefore(ctx, cutoff)
		if err != nil {
			s.Logger.Error("failed to purge login attempts", "error", err)
		} else if n > 0 {
			s.Logger.Info("purged login attempts", "deleted", n, "cutoff", cutoff)
		}
	}
}
