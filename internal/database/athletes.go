package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"strava-mirror/internal/metrics"
)

// Athlete is the locally mirrored Strava profile of a connected user
type Athlete struct {
	ID              int64      `json:"id"`
	Username        string     `json:"username"`
	FirstName       string     `json:"firstName"`
	LastName        string     `json:"lastName"`
	ProfileMedium   string     `json:"profileMedium"`
	Profile         string     `json:"profile"`
	City            string     `json:"city"`
	State           string     `json:"state"`
	Country         string     `json:"country"`
	Sex             string     `json:"sex"`
	Weight          *float64   `json:"weight"`
	FollowerCount   int        `json:"followerCount"`
	FriendCount     int        `json:"friendCount"`
	Premium         bool       `json:"premium"`
	Summit          bool       `json:"summit"`
	StravaCreatedAt *time.Time `json:"stravaCreatedAt"`
	StravaUpdatedAt *time.Time `json:"stravaUpdatedAt"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// UpsertAthlete inserts an athlete or overwrites every profile field of the
// existing row. created_at is only set on first insert.
func (q *Queries) UpsertAthlete(ctx context.Context, a *Athlete) error {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpUpsertAthlete))
	defer timer.ObserveDuration()

	now := time.Now()
	a.UpdatedAt = now
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}

	_, err := q.q.ExecContext(ctx, `
		INSERT INTO athletes (
			id, username, first_name, last_name, profile_medium, profile,
			city, state, country, sex, weight, follower_count, friend_count,
			premium, summit, strava_created_at, strava_updated_at,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			username = excluded.username,
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			profile_medium = excluded.profile_medium,
			profile = excluded.profile,
			city = excluded.city,
			state = excluded.state,
			country = excluded.country,
			sex = excluded.sex,
			weight = excluded.weight,
			follower_count = excluded.follower_count,
			friend_count = excluded.friend_count,
			premium = excluded.premium,
			summit = excluded.summit,
			strava_created_at = excluded.strava_created_at,
			strava_updated_at = excluded.strava_updated_at,
			updated_at = excluded.updated_at
	`, a.ID, a.Username, a.FirstName, a.LastName, a.ProfileMedium, a.Profile,
		a.City, a.State, a.Country, a.Sex, a.Weight, a.FollowerCount, a.FriendCount,
		a.Premium, a.Summit, unixPtr(a.StravaCreatedAt), unixPtr(a.StravaUpdatedAt),
		a.CreatedAt.Unix(), a.UpdatedAt.Unix())

	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpUpsertAthlete).Inc()
		return fmt.Errorf("failed to upsert athlete: %w", err)
	}
	return nil
}

// GetAthlete retrieves an athlete by Strava ID. Returns nil if not found.
func (q *Queries) GetAthlete(ctx context.Context, athleteID int64) (*Athlete, error) {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpGetAthlete))
	defer timer.ObserveDuration()

	var a Athlete
	var stravaCreatedAt, stravaUpdatedAt *int64
	var createdAt, updatedAt int64

	err := q.q.QueryRowContext(ctx, `
		SELECT id, username, first_name, last_name, profile_medium, profile,
		       city, state, country, sex, weight, follower_count, friend_count,
		       premium, summit, strava_created_at, strava_updated_at,
		       created_at, updated_at
		FROM athletes WHERE id = ?
	`, athleteID).Scan(
		&a.ID, &a.Username, &a.FirstName, &a.LastName, &a.ProfileMedium, &a.Profile,
		&a.City, &a.State, &a.Country, &a.Sex, &a.Weight, &a.FollowerCount, &a.FriendCount,
		&a.Premium, &a.Summit, &stravaCreatedAt, &stravaUpdatedAt,
		&createdAt, &updatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpGetAthlete).Inc()
		return nil, fmt.Errorf("failed to get athlete: %w", err)
	}

	a.StravaCreatedAt = timePtr(stravaCreatedAt)
	a.StravaUpdatedAt = timePtr(stravaUpdatedAt)
	a.CreatedAt = time.Unix(createdAt, 0)
	a.UpdatedAt = time.Unix(updatedAt, 0)

	return &a, nil
}

// DeleteAthleteData removes an athlete together with its activities, stats
// snapshot and sync history. Dependent rows are deleted explicitly so the
// result does not depend on the foreign_keys pragma. The OAuth token must be
// removed first through the token store. Run it inside InTx.
func (q *Queries) DeleteAthleteData(ctx context.Context, athleteID int64) error {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpDeleteAthleteData))
	defer timer.ObserveDuration()

	statements := []string{
		`DELETE FROM sync_logs WHERE athlete_id = ?`,
		`DELETE FROM athlete_stats WHERE athlete_id = ?`,
		`DELETE FROM activities WHERE athlete_id = ?`,
		`DELETE FROM athletes WHERE id = ?`,
	}

	for _, stmt := range statements {
		if _, err := q.q.ExecContext(ctx, stmt, athleteID); err != nil {
			metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpDeleteAthleteData).Inc()
			return fmt.Errorf("failed to delete athlete data: %w", err)
		}
	}

	return nil
}
