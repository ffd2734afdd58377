// Package syncer mirrors an athlete's Strava profile, stats and activity
// history into local storage and records every run in the sync log.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"strava-mirror/internal/database"
	"strava-mirror/internal/metrics"
	"strava-mirror/internal/strava"
)

// ErrAthleteNotFound is returned by IncrementalSync for an athlete that has
// never connected
var ErrAthleteNotFound = errors.New("athlete not found")

// API is the part of the Strava client a sync needs
type API interface {
	GetAthlete(ctx context.Context, accessToken string) (*strava.Athlete, error)
	GetAthleteStats(ctx context.Context, accessToken string, athleteID int64) (*strava.Stats, error)
	ListAllActivities(ctx context.Context, accessToken string) ([]strava.Activity, error)
	GetActivity(ctx context.Context, accessToken string, activityID int64) (*strava.Activity, error)
}

// TokenSource hands out valid access tokens
type TokenSource interface {
	GetValidAccessToken(ctx context.Context, athleteID int64) (string, error)
}

// Result describes a completed sync run
type Result struct {
	SyncLogID int64
	Counts
}

// Orchestrator runs full and incremental syncs
type Orchestrator struct {
	db         *database.DB
	api        API
	tokens     TokenSource
	reconciler *Reconciler
	logger     *slog.Logger

	mu      sync.Mutex
	running map[int64]struct{} // sync log ids of runs in progress
}

func NewOrchestrator(db *database.DB, api API, tokens TokenSource) *Orchestrator {
	return &Orchestrator{
		db:         db,
		api:        api,
		tokens:     tokens,
		reconciler: NewReconciler(),
		logger:     slog.Default(),
		running:    make(map[int64]struct{}),
	}
}

// RunningSyncLogs returns the ids of sync logs whose run is still in
// progress in this process
func (o *Orchestrator) RunningSyncLogs() []int64 {
	o.mu.Lock()
	defer o.mu.Unlock()

	ids := make([]int64, 0, len(o.running))
	for id := range o.running {
		ids = append(ids, id)
	}
	return ids
}

func (o *Orchestrator) track(id int64) func() {
	o.mu.Lock()
	o.running[id] = struct{}{}
	o.mu.Unlock()

	return func() {
		o.mu.Lock()
		delete(o.running, id)
		o.mu.Unlock()
	}
}

// prelude refreshes the athlete row and returns the access token for the run
type prelude func(ctx context.Context) (string, error)

// FullSync runs right after authorization. The athlete profile comes from
// the token exchange so no extra profile request is made. The athlete row is
// stored before the sync log, which references it.
func (o *Orchestrator) FullSync(ctx context.Context, athlete *strava.Athlete, accessToken string) (*Result, error) {
	if _, err := NewProfileRepository(o.db).SaveAthlete(ctx, athlete); err != nil {
		o.observe(database.SyncTypeFull, database.SyncStatusFailed, time.Now())
		return nil, err
	}

	return o.run(ctx, athlete.ID, database.SyncTypeFull, func(ctx context.Context) (string, error) {
		return accessToken, nil
	})
}

// IncrementalSync refreshes a connected athlete using the stored token,
// refreshing it first if it has expired
func (o *Orchestrator) IncrementalSync(ctx context.Context, athleteID int64) (*Result, error) {
	existing, err := o.db.GetAthlete(ctx, athleteID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, fmt.Errorf("%w: %d", ErrAthleteNotFound, athleteID)
	}

	return o.run(ctx, athleteID, database.SyncTypeIncremental, func(ctx context.Context) (string, error) {
		accessToken, err := o.tokens.GetValidAccessToken(ctx, athleteID)
		if err != nil {
			return "", err
		}

		athlete, err := o.api.GetAthlete(ctx, accessToken)
		if err != nil {
			return "", fmt.Errorf("failed to fetch athlete: %w", err)
		}
		if _, err := NewProfileRepository(o.db).SaveAthlete(ctx, athlete); err != nil {
			return "", err
		}
		return accessToken, nil
	})
}

// RefreshActivity refetches one stored activity in full detail and writes it
// back. No sync log is recorded.
func (o *Orchestrator) RefreshActivity(ctx context.Context, athleteID, activityID int64) error {
	stored, err := o.db.GetActivity(ctx, activityID)
	if err != nil {
		return err
	}
	if stored == nil || stored.AthleteID != athleteID {
		return fmt.Errorf("%w: %d", ErrActivityNotFound, activityID)
	}

	accessToken, err := o.tokens.GetValidAccessToken(ctx, athleteID)
	if err != nil {
		return err
	}

	activity, err := o.api.GetActivity(ctx, accessToken, activityID)
	if strava.IsNotFound(err) {
		// Deleted or made private upstream; the stored copy is left alone
		return fmt.Errorf("%w at Strava: %w", ErrActivityNotFound, err)
	}
	if err != nil {
		return describeUpstream(err)
	}

	if _, err := o.reconciler.Reconcile(ctx, o.db, athleteID, []strava.Activity{*activity}); err != nil {
		return err
	}

	o.logger.Info("Activity refreshed", "athlete_id", athleteID, "activity_id", activityID)
	return nil
}

func (o *Orchestrator) run(ctx context.Context, athleteID int64, syncType string, pre prelude) (*Result, error) {
	start := time.Now()

	syncLog, err := o.db.CreateSyncLog(ctx, athleteID, syncType)
	if err != nil {
		o.observe(syncType, database.SyncStatusFailed, start)
		return nil, err
	}

	defer o.track(syncLog.ID)()

	logger := o.logger.With("athlete_id", athleteID, "sync_log_id", syncLog.ID, "sync_type", syncType)
	logger.Info("Sync started")

	counts, err := o.sync(ctx, athleteID, pre)
	err = describeUpstream(err)

	// The log must reach a terminal state even if ctx was cancelled mid-run
	bookkeeping := context.WithoutCancel(ctx)

	if err != nil {
		if failErr := o.db.FailSyncLog(bookkeeping, syncLog.ID, err.Error()); failErr != nil {
			logger.Error("Failed to record sync failure", "error", failErr)
		}
		o.observe(syncType, database.SyncStatusFailed, start)
		logger.Error("Sync failed", "error", err, "duration_ms", time.Since(start).Milliseconds())
		return nil, err
	}

	err = o.db.CompleteSyncLog(bookkeeping, syncLog.ID, counts.Total, counts.New, counts.Updated)
	switch {
	case errors.Is(err, database.ErrSyncLogNotStarted):
		// Swept by another process while running; the data is committed
		logger.Warn("Sync log was finished elsewhere before the run completed", "error", err)
	case err != nil:
		o.observe(syncType, database.SyncStatusFailed, start)
		logger.Error("Failed to record sync completion", "error", err)
		return nil, err
	}

	o.observe(syncType, database.SyncStatusCompleted, start)
	metrics.ActivitiesReconciledTotal.WithLabelValues(metrics.ClassificationNew).Add(float64(counts.New))
	metrics.ActivitiesReconciledTotal.WithLabelValues(metrics.ClassificationUpdated).Add(float64(counts.Updated))

	logger.Info("Sync completed",
		"total", counts.Total,
		"new", counts.New,
		"updated", counts.Updated,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return &Result{SyncLogID: syncLog.ID, Counts: counts}, nil
}

// sync fetches everything over the network first, then writes stats and
// activities in one transaction
func (o *Orchestrator) sync(ctx context.Context, athleteID int64, pre prelude) (Counts, error) {
	accessToken, err := pre(ctx)
	if err != nil {
		return Counts{}, err
	}

	stats, err := o.api.GetAthleteStats(ctx, accessToken, athleteID)
	if err != nil {
		return Counts{}, fmt.Errorf("failed to fetch stats: %w", err)
	}

	activities, err := o.api.ListAllActivities(ctx, accessToken)
	if err != nil {
		return Counts{}, fmt.Errorf("failed to fetch activities: %w", err)
	}
	metrics.SyncActivitiesCount.Observe(float64(len(activities)))

	var counts Counts
	err = o.db.InTx(ctx, func(q *database.Queries) error {
		if err := NewProfileRepository(q).SaveStats(ctx, athleteID, stats); err != nil {
			return err
		}
		c, err := o.reconciler.Reconcile(ctx, q, athleteID, activities)
		if err != nil {
			return err
		}
		counts = c
		return nil
	})
	if err != nil {
		return Counts{}, err
	}

	return counts, nil
}

func (o *Orchestrator) observe(syncType, status string, start time.Time) {
	metrics.SyncRunsTotal.WithLabelValues(syncType, status).Inc()
	metrics.SyncRunDuration.WithLabelValues(syncType, status).Observe(time.Since(start).Seconds())
}
