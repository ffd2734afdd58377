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

// DefaultTokenType is stored when the provider does not report one
const DefaultTokenType = "Bearer"

// Token is the OAuth credential set held for one athlete
type Token struct {
	AthleteID    int64
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	TokenType    string
	Scope        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsExpired reports whether the access token can no longer be used at now.
// A token expiring exactly at now counts as expired.
func (t *Token) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// UpsertToken replaces the athlete's token record whole
func (q *Queries) UpsertToken(ctx context.Context, t *Token) error {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpUpsertToken))
	defer timer.ObserveDuration()

	now := time.Now()
	t.UpdatedAt = now
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	if t.TokenType == "" {
		t.TokenType = DefaultTokenType
	}

	_, err := q.q.ExecContext(ctx, `
		INSERT INTO oauth_tokens (
			athlete_id, access_token, refresh_token, expires_at,
			token_type, scope, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(athlete_id) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			expires_at = excluded.expires_at,
			token_type = excluded.token_type,
			scope = excluded.scope,
			updated_at = excluded.updated_at
	`, t.AthleteID, t.AccessToken, t.RefreshToken, t.ExpiresAt.Unix(),
		t.TokenType, t.Scope, t.CreatedAt.Unix(), t.UpdatedAt.Unix())

	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpUpsertToken).Inc()
		return fmt.Errorf("failed to upsert token: %w", err)
	}
	return nil
}

// GetToken retrieves the token for an athlete. Returns nil if not found.
func (q *Queries) GetToken(ctx context.Context, athleteID int64) (*Token, error) {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpGetToken))
	defer timer.ObserveDuration()

	var t Token
	var expiresAt, createdAt, updatedAt int64

	err := q.q.QueryRowContext(ctx, `
		SELECT athlete_id, access_token, refresh_token, expires_at,
		       token_type, scope, created_at, updated_at
		FROM oauth_tokens WHERE athlete_id = ?
	`, athleteID).Scan(
		&t.AthleteID, &t.AccessToken, &t.RefreshToken, &expiresAt,
		&t.TokenType, &t.Scope, &createdAt, &updatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpGetToken).Inc()
		return nil, fmt.Errorf("failed to get token: %w", err)
	}

	t.ExpiresAt = time.Unix(expiresAt, 0)
	t.CreatedAt = time.Unix(createdAt, 0)
	t.UpdatedAt = time.Unix(updatedAt, 0)

	return &t, nil
}

// DeleteToken removes an athlete's token, if any
func (q *Queries) DeleteToken(ctx context.Context, athleteID int64) error {
	timer := prometheus.NewTimer(metrics.DBOperationDuration.WithLabelValues(metrics.DBOpDeleteToken))
	defer timer.ObserveDuration()

	if _, err := q.q.ExecContext(ctx, `DELETE FROM oauth_tokens WHERE athlete_id = ?`, athleteID); err != nil {
		metrics.DBOperationErrorsTotal.WithLabelValues(metrics.DBOpDeleteToken).Inc()
		return fmt.Errorf("failed to delete token: %w", err)
	}
	return nil
}
