package metrics

import (
	"context"
	"log/slog"
	"time"
)

// DB is the subset of the database used to report sync log state
type DB interface {
	CountSyncLogsByStatus(ctx context.Context, status string) (int, error)
}

// StartSyncLogCollector starts a background loop that periodically reports
// how many sync logs are still in the started state
func StartSyncLogCollector(ctx context.Context, db DB, interval time.Duration) {
	logger := slog.Default()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Collect once immediately
	collectSyncLogs(ctx, db, logger)

	for {
		select {
		case <-ctx.Done():
			logger.Info("Sync log collector stopping")
			return
		case <-ticker.C:
			collectSyncLogs(ctx, db, logger)
		}
	}
}

func collectSyncLogs(ctx context.Context, db DB, logger *slog.Logger) {
	started, err := db.CountSyncLogsByStatus(ctx, "started")
	if err != nil {
		logger.Error("Failed to count in-progress sync logs", "error", err)
		return
	}
	SyncLogsInProgress.Set(float64(started))
}
