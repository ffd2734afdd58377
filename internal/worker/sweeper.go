// Package worker runs the service's background work: detached sync tasks and
// the periodic sweep of abandoned sync logs.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"strava-mirror/internal/metrics"
)

// SyncLogStore is the storage the sweeper needs
type SyncLogStore interface {
	SweepStaleSyncLogs(ctx context.Context, startedBefore time.Time, message string, skip []int64) (int64, error)
}

// RunningSyncs reports the sync logs whose run is still in progress
type RunningSyncs interface {
	RunningSyncLogs() []int64
}

// Sweeper marks sync logs stuck in the started state as failed. A log ends
// up there when the process stops while a sync is running. Logs of runs
// still in progress in this process are never swept, however long they take.
type Sweeper struct {
	db         SyncLogStore
	running    RunningSyncs
	staleAfter time.Duration
	interval   time.Duration
	logger     *slog.Logger
	now        func() time.Time
}

// NewSweeper creates a sweeper treating logs older than staleAfter as
// abandoned. running may be nil when no syncs run in this process.
func NewSweeper(db SyncLogStore, running RunningSyncs, staleAfter, interval time.Duration) *Sweeper {
	return &Sweeper{
		db:         db,
		running:    running,
		staleAfter: staleAfter,
		interval:   interval,
		logger:     slog.Default(),
		now:        time.Now,
	}
}

// Start sweeps once immediately and then every interval until ctx is done
func (s *Sweeper) Start(ctx context.Context) error {
	s.logger.Info("Starting sync log sweeper", "stale_after", s.staleAfter, "interval", s.interval)
	metrics.SweeperActive.Set(1)
	defer metrics.SweeperActive.Set(0)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.Sweep(ctx); err != nil {
			s.logger.Error("Failed to sweep stale sync logs", "error", err)
		}

		select {
		case <-ctx.Done():
			s.logger.Info("Stopping sync log sweeper")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Sweep fails every started log older than the stale threshold and returns
// how many were changed
func (s *Sweeper) Sweep(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.staleAfter)
	message := fmt.Sprintf("sync abandoned: no result recorded within %s", s.staleAfter)

	var skip []int64
	if s.running != nil {
		skip = s.running.RunningSyncLogs()
	}

	swept, err := s.db.SweepStaleSyncLogs(ctx, cutoff, message, skip)
	if err != nil {
		return 0, err
	}

	if swept > 0 {
		metrics.SyncLogsSweptTotal.Add(float64(swept))
		s.logger.Warn("Marked abandoned sync logs as failed", "count", swept, "started_before", cutoff)
	}
	return swept, nil
}
