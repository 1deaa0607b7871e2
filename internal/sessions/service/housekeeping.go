package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/sessions/pkg/jwtx"
)

// HousekeepingService periodically prunes expired revocation entries,
// long-dead sessions and expired signing keys so tables stay bounded.
type HousekeepingService struct {
	Revocations *RevocationStore
	Logger      *slog.Logger
	Interval    time.Duration

	// Retention is how long inactive sessions are kept after their last
	// activity.
	Retention time.Duration

	// Keys, when set, is reloaded each pass so keys created or retired
	// elsewhere take effect here.
	Keys *jwtx.KeyManager

	Now func() time.Time

	// Internal channels for lifecycle management
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService creates a new housekeeping service with the given interval.
// If interval is 0 or negative, defaults to 1 hour.
func NewHousekeepingService(revocations *RevocationStore, logger *slog.Logger, interval, retention time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = 1 * time.Hour
	}
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}

	return &HousekeepingService{
		Revocations: revocations,
		Logger:      logger,
		Interval:    interval,
		Retention:   retention,
		Now:         time.Now,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
}

// Start begins the background worker that periodically runs cleanup.
// Call Stop() to gracefully shutdown the worker.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval, "retention", s.Retention)
}

// Stop gracefully shuts down the background worker.
// Blocks until the worker has finished any in-progress cleanup.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	// Run cleanup immediately on startup
	s.Cleanup(context.Background())

	for {
		select {
		case <-ticker.C:
			s.Cleanup(context.Background())
		case <-s.stopCh:
			return
		}
	}
}

// CleanupReport counts what one cleanup pass removed.
type CleanupReport struct {
	Tokens      int64
	Sessions    int64
	SigningKeys int64
	Failures    int
}

// Cleanup performs one pass. Each deletion is independent; failures in one
// won't stop the others.
func (s *HousekeepingService) Cleanup(ctx context.Context) CleanupReport {
	now := s.Now().UTC()
	st := s.Revocations.store
	var rep CleanupReport

	n, err := s.Revocations.GC(ctx, now)
	if err != nil {
		s.Logger.Error("failed to delete expired revocation entries", "error", err)
		rep.Failures++
	}
	rep.Tokens = n

	n, err = st.Sessions().DeleteInactiveSessionsBefore(ctx, now.Add(-s.Retention))
	if err != nil {
		s.Logger.Error("failed to prune sessions", "error", err)
		rep.Failures++
	}
	rep.Sessions = n

	n, err = st.SigningKeys().DeleteExpiredSigningKeys(ctx, now)
	if err != nil {
		s.Logger.Error("failed to delete expired signing keys", "error", err)
		rep.Failures++
	}
	rep.SigningKeys = n

	if s.Keys != nil {
		if err := s.Keys.Reload(ctx); err != nil {
			s.Logger.Error("failed to reload signing keys", "error", err)
			rep.Failures++
		}
	}

	s.Logger.Info("housekeeping cleanup completed",
		"tokens", rep.Tokens,
		"sessions", rep.Sessions,
		"signing_keys", rep.SigningKeys,
		"failures", rep.Failures,
	)
	return rep
}
