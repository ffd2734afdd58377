package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"strava-mirror/internal/metrics"
)

// Totals is one aggregate block of the stats snapshot, stored as JSON
type Totals struct {
	Count            int     `json:"count"`
	Distance         float64 `json:"distance"`
	MovingTime       int     `json:"movingTime"`
	ElapsedTime      int     `json:"elapsedTime"`
	ElevationGain    float64 `json:"elevationGain"`
	AchievementCount int     `json:"achievementCount"`
}

// Value implements driver.Valuer
func (t Totals) Value() (driver.Value, error) {
	b, err := json.Marshal(t)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner
func (t *Totals) Scan(src any) error {
	switch v := src.(type) {
	case string:
		return json.Unmarshal([]byte(v), t)
	case []byte:
		return json.Unmarshal(v, t)
	case nil:
		*t = Totals{}
		return nil
	default:
		return fmt.Errorf("cannot scan %T into Totals", src)
	}
}

// Stats is the latest aggregate statistics snapshot for an athlete
type Stats struct {
	AthleteID                 int64     `json:"athleteId"`
	BiggestRideDistance       float64   `json:"biggestRideDistance"`
	BiggestClimbElevationGain float64   `json:"biggestClimbElevationGain"`
	RecentRideTotals          Totals    `json:"recentRideTotals"`
	RecentRunTotals           Totals    `json:"recentRunTotals"`
	RecentSwimTotals          Totals    `json:"recentSwimTotals"`
	YTDRideTotals             Totals    `json:"ytdRideTotals"`
	YTDRunTotals              Totals    `json:"ytdRunTotals"`
	YTDSwimTotals             Totals    `json:"ytdSwimTotals"`
	AllRideTotals             Totals    `json:"allRideTotals"`
	AllRunTotals              Totals    `json:"allRunTotals"`
	AllSwimTotals             Totals    `json:"allSwimTotals"`
	CreatedAt                 time.Time `json:"createdAt"`
	UpdatedAt                 time.Time `json:"updatedAt"`
}

// UpsertStats replaces the athlete's stats snapshot whole
func (q *Queries) UpsertStats(ctx context.Context, s *Stats) error {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpUpsertStats))
	defer timer.ObserveDuration()

	now := time.Now()
	s.UpdatedAt = now
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}

	_, err := q.q.ExecContext(ctx, `
		INSERT INTO athlete_stats (
			athlete_id, biggest_ride_distance, biggest_climb_elevation_gain,
			recent_ride_totals, recent_run_totals, recent_swim_totals,
			ytd_ride_totals, ytd_run_totals, ytd_swim_totals,
			all_ride_totals, all_run_totals, all_swim_totals,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(athlete_id) DO UPDATE SET
			biggest_ride_distance = excluded.biggest_ride_distance,
			biggest_climb_elevation_gain = excluded.biggest_climb_elevation_gain,
			recent_ride_totals = excluded.recent_ride_totals,
			recent_run_totals = excluded.recent_run_totals,
			recent_swim_totals = excluded.recent_swim_totals,
			ytd_ride_totals = excluded.ytd_ride_totals,
			ytd_run_totals = excluded.ytd_run_totals,
			ytd_swim_totals = excluded.ytd_swim_totals,
			all_ride_totals = excluded.all_ride_totals,
			all_run_totals = excluded.all_run_totals,
			all_swim_totals = excluded.all_swim_totals,
			updated_at = excluded.updated_at
	`, s.AthleteID, s.BiggestRideDistance, s.BiggestClimbElevationGain,
		s.RecentRideTotals, s.RecentRunTotals, s.RecentSwimTotals,
		s.YTDRideTotals, s.YTDRunTotals, s.YTDSwimTotals,
		s.AllRideTotals, s.AllRunTotals, s.AllSwimTotals,
		s.CreatedAt.Unix(), s.UpdatedAt.Unix())

	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpUpsertStats).Inc()
		return fmt.Errorf("failed to upsert stats: %w", err)
	}
	return nil
}

// GetStats retrieves an athlete's stats snapshot. Returns nil if not found.
func (q *Queries) GetStats(ctx context.Context, athleteID int64) (*Stats, error) {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpGetStats))
	defer timer.ObserveDuration()

	var s Stats
	var createdAt, updatedAt int64

	err := q.q.QueryRowContext(ctx, `
		SELECT athlete_id, biggest_ride_distance, biggest_climb_elevation_gain,
		       recent_ride_totals, recent_run_totals, recent_swim_totals,
		       ytd_ride_totals, ytd_run_totals, ytd_swim_totals,
		       all_ride_totals, all_run_totals, all_swim_totals,
		       created_at, updated_at
		FROM athlete_stats WHERE athlete_id = ?
	`, athleteID).Scan(
		&s.AthleteID, &s.BiggestRideDistance, &s.BiggestClimbElevationGain,
		&s.RecentRideTotals, &s.RecentRunTotals, &s.RecentSwimTotals,
		&s.YTDRideTotals, &s.YTDRunTotals, &s.YTDSwimTotals,
		&s.AllRideTotals, &s.AllRunTotals, &s.AllSwimTotals,
		&createdAt, &updatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpGetStats).Inc()
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}

	s.CreatedAt = time.Unix(createdAt, 0)
	s.UpdatedAt = time.Unix(updatedAt, 0)

	return &s, nil
}
