package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/authcorehq/authcore/internal/auth/store"
)

// HousekeepingService periodically deletes refresh tokens whose expiry
// passed more than Retention ago. Revoked but unexpired rows are kept so
// the ledger stays auditable.
type HousekeepingService struct {
	Store     store.Store
	Logger    *slog.Logger
	Interval  time.Duration
	Retention time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService creates the background purger. Interval defaults
// to 1 hour, retention to 30 days.
func NewHousekeepingService(st store.Store, logger *slog.Logger, interval, retention time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = time.Hour
	}
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}

	return &HousekeepingService{
		Store:     st,
		Logger:    logger,
		Interval:  interval,
		Retention: retention,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start begins the background worker. Non-blocking; call Stop to shut it
// down.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping started", "interval", s.Interval, "retention", s.Retention)
}

// Stop shuts the worker down, blocking until any in-progress sweep ends.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	// Sweep once on startup
	s.sweep()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stopCh:
			return
		}
	}
}

func (s *HousekeepingService) sweep() {
	ctx := context.Background()
	cutoff := time.Now().UTC().Add(-s.Retention)

	if err := s.Store.RefreshTokens().DeleteExpiredBefore(ctx, cutoff); err != nil {
		s.Logger.Error("failed to purge expired refresh tokens", "error", err)
		return
	}
	s.Logger.Debug("purged refresh tokens expired before cutoff", "cutoff", cutoff)
}
