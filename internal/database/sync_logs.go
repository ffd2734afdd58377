package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"strava-mirror/internal/metrics"
)

// Sync types
const (
	SyncTypeFull        = "full"
	SyncTypeIncremental = "incremental"
	SyncTypeProfile     = "profile"
	SyncTypeActivities  = "activities"
	SyncTypeStats       = "stats"
)

// Sync statuses
const (
	SyncStatusStarted   = "started"
	SyncStatusCompleted = "completed"
	SyncStatusFailed    = "failed"
)

// ErrSyncLogNotStarted is returned when finishing a log that is missing or
// has already been completed or failed
var ErrSyncLogNotStarted = errors.New("sync log is not in the started state")

// SyncLog records one sync run. Status moves from started to exactly one of
// completed or failed.
type SyncLog struct {
	ID                int64      `json:"id"`
	AthleteID         int64      `json:"athleteId"`
	SyncType          string     `json:"syncType"`
	Status            string     `json:"status"`
	ActivitiesSynced  int        `json:"activitiesSynced"`
	NewActivities     int        `json:"newActivities"`
	UpdatedActivities int        `json:"updatedActivities"`
	ErrorMessage      *string    `json:"errorMessage"`
	StartedAt         time.Time  `json:"startedAt"`
	CompletedAt       *time.Time `json:"completedAt"`
}

const syncLogColumns = `id, athlete_id, sync_type, status, activities_synced, new_activities,
	updated_activities, error_message, started_at, completed_at`

func scanSyncLog(row rowScanner) (*SyncLog, error) {
	var l SyncLog
	var startedAt int64
	var completedAt *int64

	err := row.Scan(
		&l.ID, &l.AthleteID, &l.SyncType, &l.Status, &l.ActivitiesSynced, &l.NewActivities,
		&l.UpdatedActivities, &l.ErrorMessage, &startedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	l.StartedAt = time.Unix(startedAt, 0)
	l.CompletedAt = timePtr(completedAt)
	return &l, nil
}

// CreateSyncLog records the start of a sync run
func (q *Queries) CreateSyncLog(ctx context.Context, athleteID int64, syncType string) (*SyncLog, error) {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpCreateSyncLog))
	defer timer.ObserveDuration()

	l := &SyncLog{
		AthleteID: athleteID,
		SyncType:  syncType,
		Status:    SyncStatusStarted,
		StartedAt: time.Now(),
	}

	result, err := q.q.ExecContext(ctx, `
		INSERT INTO sync_logs (athlete_id, sync_type, status, started_at)
		VALUES (?, ?, ?, ?)
	`, l.AthleteID, l.SyncType, l.Status, l.StartedAt.Unix())
	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpCreateSyncLog).Inc()
		return nil, fmt.Errorf("failed to create sync log: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get sync log id: %w", err)
	}
	l.ID = id

	return l, nil
}

// CompleteSyncLog marks a started log completed with its counts
func (q *Queries) CompleteSyncLog(ctx context.Context, id int64, synced, created, updated int) error {
	return q.finishSyncLog(ctx, `
		UPDATE sync_logs
		SET status = 'completed', activities_synced = ?, new_activities = ?,
		    updated_activities = ?, completed_at = ?
		WHERE id = ? AND status = 'started'
	`, synced, created, updated, time.Now().Unix(), id)
}

// FailSyncLog marks a started log failed with the error that ended the run
func (q *Queries) FailSyncLog(ctx context.Context, id int64, message string) error {
	return q.finishSyncLog(ctx, `
		UPDATE sync_logs
		SET status = 'failed', error_message = ?, completed_at = ?
		WHERE id = ? AND status = 'started'
	`, message, time.Now().Unix(), id)
}

func (q *Queries) finishSyncLog(ctx context.Context, query string, args ...any) error {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpFinishSyncLog))
	defer timer.ObserveDuration()

	result, err := q.q.ExecContext(ctx, query, args...)
	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpFinishSyncLog).Inc()
		return fmt.Errorf("failed to finish sync log: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrSyncLogNotStarted
	}
	return nil
}

// GetSyncLog retrieves a sync log by ID. Returns nil if not found.
func (q *Queries) GetSyncLog(ctx context.Context, id int64) (*SyncLog, error) {
	row := q.q.QueryRowContext(ctx, `SELECT `+syncLogColumns+` FROM sync_logs WHERE id = ?`, id)

	l, err := scanSyncLog(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sync log: %w", err)
	}
	return l, nil
}

// ListSyncLogs returns an athlete's most recent sync logs, newest first
func (q *Queries) ListSyncLogs(ctx context.Context, athleteID int64, limit int) ([]*SyncLog, error) {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpListSyncLogs))
	defer timer.ObserveDuration()

	rows, err := q.q.QueryContext(ctx, `
		SELECT `+syncLogColumns+`
		FROM sync_logs
		WHERE athlete_id = ?
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, athleteID, limit)
	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpListSyncLogs).Inc()
		return nil, fmt.Errorf("failed to list sync logs: %w", err)
	}
	defer rows.Close()

	logs := []*SyncLog{}
	for rows.Next() {
		l, err := scanSyncLog(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync log: %w", err)
		}
		logs = append(logs, l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sync logs: %w", err)
	}

	return logs, nil
}

// SweepStaleSyncLogs fails every log still started before the cutoff, except
// the ids in skip. Returns the number of logs swept.
func (q *Queries) SweepStaleSyncLogs(ctx context.Context, startedBefore time.Time, message string, skip []int64) (int64, error) {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpSweepSyncLogs))
	defer timer.ObserveDuration()

	query := `
		UPDATE sync_logs
		SET status = 'failed', error_message = ?, completed_at = ?
		WHERE status = 'started' AND started_at < ?`
	args := []any{message, time.Now().Unix(), startedBefore.Unix()}

	if len(skip) > 0 {
		query += ` AND id NOT IN (?` + strings.Repeat(`, ?`, len(skip)-1) + `)`
		for _, id := range skip {
			args = append(args, id)
		}
	}

	result, err := q.q.ExecContext(ctx, query, args...)
	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpSweepSyncLogs).Inc()
		return 0, fmt.Errorf("failed to sweep sync logs: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows, nil
}

// CountSyncLogsByStatus counts sync logs across all athletes in a status
func (q *Queries) CountSyncLogsByStatus(ctx context.Context, status string) (int, error) {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpCountSyncLogs))
	defer timer.ObserveDuration()

	var count int
	err := q.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM sync_logs WHERE status = ?`, status).Scan(&count)
	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpCountSyncLogs).Inc()
		return 0, fmt.Errorf("failed to count sync logs: %w", err)
	}
	return count, nil
}
