// Package tokens keeps one OAuth credential set per athlete and hands out
// access tokens, refreshing them when they have expired.
package tokens

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"strava-mirror/internal/database"
	"strava-mirror/internal/metrics"
	"strava-mirror/internal/strava"
)

// ErrTokenNotFound is returned when an athlete has no stored token
var ErrTokenNotFound = errors.New("no token stored for athlete")

// DB is the persistence the store needs
type DB interface {
	GetToken(ctx context.Context, athleteID int64) (*database.Token, error)
	UpsertToken(ctx context.Context, t *database.Token) error
	DeleteToken(ctx context.Context, athleteID int64) error
}

// Refresher exchanges a refresh token for new credentials
type Refresher interface {
	RefreshToken(ctx context.Context, refreshToken string) (*strava.Credentials, error)
}

// Store is the single place that decides whether a token needs refreshing
type Store struct {
	db        DB
	refresher Refresher
	logger    *slog.Logger
	now       func() time.Time
}

// NewStore creates a token store
func NewStore(db DB, refresher Refresher) *Store {
	return &Store{
		db:        db,
		refresher: refresher,
		logger:    slog.Default(),
		now:       time.Now,
	}
}

// Save replaces the athlete's token record with creds. scope is recorded as
// granted by the authorization redirect.
func (s *Store) Save(ctx context.Context, athleteID int64, creds *strava.Credentials, scope string) error {
	token := &database.Token{
		AthleteID:    athleteID,
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		ExpiresAt:    creds.ExpiresAt,
		TokenType:    creds.TokenType,
		Scope:        scope,
	}
	if err := s.db.UpsertToken(ctx, token); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	return nil
}

// Delete removes the athlete's token
func (s *Store) Delete(ctx context.Context, athleteID int64) error {
	return s.db.DeleteToken(ctx, athleteID)
}

// GetValidAccessToken returns a usable access token for the athlete. An
// expired token is refreshed and the new record persisted before returning.
func (s *Store) GetValidAccessToken(ctx context.Context, athleteID int64) (string, error) {
	token, err := s.db.GetToken(ctx, athleteID)
	if err != nil {
		return "", err
	}
	if token == nil {
		return "", fmt.Errorf("%w %d: please re-authorize with Strava", ErrTokenNotFound, athleteID)
	}

	if !token.IsExpired(s.now()) {
		return token.AccessToken, nil
	}

	s.logger.Info("refreshing token", "athlete_id", athleteID, "expired_at", token.ExpiresAt)

	creds, err := s.refresher.RefreshToken(ctx, token.RefreshToken)
	if err != nil {
		metrics.TokenRefreshesTotal.WithLabelValues(metrics.ResultFailure).Inc()
		s.logger.Error("token refresh failed", "athlete_id", athleteID, "error", err)
		return "", err
	}

	// The refresh grant does not report scope, so the granted scope carries forward
	if err := s.Save(ctx, athleteID, creds, token.Scope); err != nil {
		metrics.TokenRefreshesTotal.WithLabelValues(metrics.ResultFailure).Inc()
		return "", err
	}

	metrics.TokenRefreshesTotal.WithLabelValues(metrics.ResultSuccess).Inc()
	return creds.AccessToken, nil
}
