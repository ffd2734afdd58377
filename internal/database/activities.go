package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"strava-mirror/internal/metrics"
)

// LatLng is a [lat, lng] pair stored as a JSON array. Empty means unknown.
type LatLng []float64

// Value implements driver.Valuer
func (l LatLng) Value() (driver.Value, error) {
	if len(l) == 0 {
		return nil, nil
	}
	b, err := json.Marshal([]float64(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner
func (l *LatLng) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*l = nil
		return nil
	case string:
		return json.Unmarshal([]byte(v), (*[]float64)(l))
	case []byte:
		return json.Unmarshal(v, (*[]float64)(l))
	default:
		return fmt.Errorf("cannot scan %T into LatLng", src)
	}
}

// Activity is a mirrored Strava activity summary
type Activity struct {
	ID                   int64     `json:"id"`
	AthleteID            int64     `json:"athleteId"`
	Name                 string    `json:"name"`
	Type                 string    `json:"type"`
	SportType            string    `json:"sportType"`
	Distance             float64   `json:"distance"`
	MovingTime           int       `json:"movingTime"`
	ElapsedTime          int       `json:"elapsedTime"`
	TotalElevationGain   float64   `json:"totalElevationGain"`
	StartDate            time.Time `json:"startDate"`
	StartDateLocal       time.Time `json:"startDateLocal"`
	Timezone             string    `json:"timezone"`
	UTCOffset            float64   `json:"utcOffset"`
	StartLatLng          LatLng    `json:"startLatlng"`
	EndLatLng            LatLng    `json:"endLatlng"`
	AchievementCount     int       `json:"achievementCount"`
	KudosCount           int       `json:"kudosCount"`
	CommentCount         int       `json:"commentCount"`
	AthleteCount         int       `json:"athleteCount"`
	PhotoCount           int       `json:"photoCount"`
	Trainer              bool      `json:"trainer"`
	Commute              bool      `json:"commute"`
	Manual               bool      `json:"manual"`
	Private              bool      `json:"private"`
	Flagged              bool      `json:"flagged"`
	WorkoutType          *int      `json:"workoutType"`
	AverageSpeed         float64   `json:"averageSpeed"`
	MaxSpeed             float64   `json:"maxSpeed"`
	AverageCadence       *float64  `json:"averageCadence"`
	AverageHeartrate     *float64  `json:"averageHeartrate"`
	MaxHeartrate         *float64  `json:"maxHeartrate"`
	AverageWatts         *float64  `json:"averageWatts"`
	MaxWatts             *int      `json:"maxWatts"`
	WeightedAverageWatts *int      `json:"weightedAverageWatts"`
	Kilojoules           *float64  `json:"kilojoules"`
	DeviceWatts          *bool     `json:"deviceWatts"`
	HasHeartrate         bool      `json:"hasHeartrate"`
	Calories             float64   `json:"calories"`
	SufferScore          *int      `json:"sufferScore"`
	MapID                *string   `json:"mapId"`
	MapSummaryPolyline   *string   `json:"mapSummaryPolyline"`
	MapResourceState     *int      `json:"mapResourceState"`
	GearID               *string   `json:"gearId"`
	DeviceName           *string   `json:"deviceName"`
	Description          *string   `json:"description"`
	LocationCity         *string   `json:"locationCity"`
	LocationState        *string   `json:"locationState"`
	LocationCountry      *string   `json:"locationCountry"`
	CreatedAt            time.Time `json:"createdAt"`
	UpdatedAt            time.Time `json:"updatedAt"`
}

// ActivityFilter narrows ListActivities and CountActivities. Zero values
// disable a filter; bounds are inclusive.
type ActivityFilter struct {
	Type   string
	After  *time.Time
	Before *time.Time
	Limit  int
	Offset int
}

// activityDataColumns are every column except id, created_at and updated_at
const activityDataColumns = `athlete_id, name, type, sport_type, distance, moving_time, elapsed_time,
	total_elevation_gain, start_date, start_date_local, timezone, utc_offset,
	start_latlng, end_latlng, achievement_count, kudos_count, comment_count,
	athlete_count, photo_count, trainer, commute, manual, private, flagged,
	workout_type, average_speed, max_speed, average_cadence, average_heartrate,
	max_heartrate, average_watts, max_watts, weighted_average_watts, kilojoules,
	device_watts, has_heartrate, calories, suffer_score, map_id,
	map_summary_polyline, map_resource_state, gear_id, device_name, description,
	location_city, location_state, location_country`

const activitySelectColumns = `id, ` + activityDataColumns + `, created_at, updated_at`

func activityDataArgs(a *Activity) []any {
	return []any{
		a.AthleteID, a.Name, a.Type, a.SportType, a.Distance, a.MovingTime, a.ElapsedTime,
		a.TotalElevationGain, a.StartDate.Unix(), a.StartDateLocal.Unix(), a.Timezone, a.UTCOffset,
		a.StartLatLng, a.EndLatLng, a.AchievementCount, a.KudosCount, a.CommentCount,
		a.AthleteCount, a.PhotoCount, a.Trainer, a.Commute, a.Manual, a.Private, a.Flagged,
		a.WorkoutType, a.AverageSpeed, a.MaxSpeed, a.AverageCadence, a.AverageHeartrate,
		a.MaxHeartrate, a.AverageWatts, a.MaxWatts, a.WeightedAverageWatts, a.Kilojoules,
		a.DeviceWatts, a.HasHeartrate, a.Calories, a.SufferScore, a.MapID,
		a.MapSummaryPolyline, a.MapResourceState, a.GearID, a.DeviceName, a.Description,
		a.LocationCity, a.LocationState, a.LocationCountry,
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanActivity(row rowScanner) (*Activity, error) {
	var a Activity
	var startDate, startDateLocal, createdAt, updatedAt int64

	err := row.Scan(
		&a.ID, &a.AthleteID, &a.Name, &a.Type, &a.SportType, &a.Distance, &a.MovingTime, &a.ElapsedTime,
		&a.TotalElevationGain, &startDate, &startDateLocal, &a.Timezone, &a.UTCOffset,
		&a.StartLatLng, &a.EndLatLng, &a.AchievementCount, &a.KudosCount, &a.CommentCount,
		&a.AthleteCount, &a.PhotoCount, &a.Trainer, &a.Commute, &a.Manual, &a.Private, &a.Flagged,
		&a.WorkoutType, &a.AverageSpeed, &a.MaxSpeed, &a.AverageCadence, &a.AverageHeartrate,
		&a.MaxHeartrate, &a.AverageWatts, &a.MaxWatts, &a.WeightedAverageWatts, &a.Kilojoules,
		&a.DeviceWatts, &a.HasHeartrate, &a.Calories, &a.SufferScore, &a.MapID,
		&a.MapSummaryPolyline, &a.MapResourceState, &a.GearID, &a.DeviceName, &a.Description,
		&a.LocationCity, &a.LocationState, &a.LocationCountry,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	a.StartDate = time.Unix(startDate, 0).UTC()
	a.StartDateLocal = time.Unix(startDateLocal, 0).UTC()
	a.CreatedAt = time.Unix(createdAt, 0)
	a.UpdatedAt = time.Unix(updatedAt, 0)

	return &a, nil
}

// CreateActivity inserts a new activity into the database
func (q *Queries) CreateActivity(ctx context.Context, a *Activity) error {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpCreateActivity))
	defer timer.ObserveDuration()

	now := time.Now()
	a.CreatedAt = now
	a.UpdatedAt = now

	args := append([]any{a.ID}, activityDataArgs(a)...)
	args = append(args, a.CreatedAt.Unix(), a.UpdatedAt.Unix())

	query := fmt.Sprintf(`INSERT INTO activities (%s) VALUES (%s)`,
		activitySelectColumns, placeholders(len(args)))

	if _, err := q.q.ExecContext(ctx, query, args...); err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpCreateActivity).Inc()
		return fmt.Errorf("failed to create activity: %w", err)
	}
	return nil
}

// UpdateActivity overwrites every stored field of an existing activity
func (q *Queries) UpdateActivity(ctx context.Context, a *Activity) error {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpUpdateActivity))
	defer timer.ObserveDuration()

	a.UpdatedAt = time.Now()

	columns := strings.Split(activityDataColumns, ",")
	assignments := make([]string, 0, len(columns)+1)
	for _, c := range columns {
		assignments = append(assignments, strings.TrimSpace(c)+" = ?")
	}
	assignments = append(assignments, "updated_at = ?")

	args := append(activityDataArgs(a), a.UpdatedAt.Unix(), a.ID)
	query := fmt.Sprintf(`UPDATE activities SET %s WHERE id = ?`, strings.Join(assignments, ", "))

	result, err := q.q.ExecContext(ctx, query, args...)
	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpUpdateActivity).Inc()
		return fmt.Errorf("failed to update activity: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("activity not found")
	}

	return nil
}

// GetActivity retrieves an activity by ID. Returns nil if not found.
func (q *Queries) GetActivity(ctx context.Context, activityID int64) (*Activity, error) {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpGetActivity))
	defer timer.ObserveDuration()

	row := q.q.QueryRowContext(ctx,
		`SELECT `+activitySelectColumns+` FROM activities WHERE id = ?`, activityID)

	a, err := scanActivity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpGetActivity).Inc()
		return nil, fmt.Errorf("failed to get activity: %w", err)
	}
	return a, nil
}

func (f ActivityFilter) where(athleteID int64) (string, []any) {
	clauses := []string{"athlete_id = ?"}
	args := []any{athleteID}

	if f.Type != "" {
		clauses = append(clauses, "type = ?")
		args = append(args, f.Type)
	}
	if f.After != nil {
		clauses = append(clauses, "start_date >= ?")
		args = append(args, f.After.Unix())
	}
	if f.Before != nil {
		clauses = append(clauses, "start_date <= ?")
		args = append(args, f.Before.Unix())
	}

	return " WHERE " + strings.Join(clauses, " AND "), args
}

// ListActivities returns an athlete's activities, newest first
func (q *Queries) ListActivities(ctx context.Context, athleteID int64, f ActivityFilter) ([]*Activity, error) {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpListActivities))
	defer timer.ObserveDuration()

	where, args := f.where(athleteID)
	query := `SELECT ` + activitySelectColumns + ` FROM activities` + where + ` ORDER BY start_date DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, f.Limit, f.Offset)
	}

	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpListActivities).Inc()
		return nil, fmt.Errorf("failed to list activities: %w", err)
	}
	defer rows.Close()

	activities := []*Activity{}
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		activities = append(activities, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating activities: %w", err)
	}

	return activities, nil
}

// CountActivities counts an athlete's activities matching the filter.
// Limit and Offset are ignored.
func (q *Queries) CountActivities(ctx context.Context, athleteID int64, f ActivityFilter) (int, error) {
	where, args := f.where(athleteID)

	var count int
	if err := q.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM activities`+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count activities: %w", err)
	}
	return count, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
