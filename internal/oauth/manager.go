package oauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"strava-mirror/internal/database"
	"strava-mirror/internal/session"
	"strava-mirror/internal/strava"
	"strava-mirror/internal/syncer"
	"strava-mirror/internal/tokens"
)

// ErrAuthorizationDenied is returned when Strava redirects back with an
// error or without an authorization code
var ErrAuthorizationDenied = errors.New("authorization denied")

// Exchanger is the part of the Strava client the OAuth flow needs
type Exchanger interface {
	AuthorizationURL() string
	ExchangeCode(ctx context.Context, code string) (*strava.Credentials, error)
}

// Connection is the result of a completed authorization
type Connection struct {
	Athlete      *strava.Athlete
	AccessToken  string
	SessionToken string
}

// Manager handles the OAuth 2.0 flow with Strava
type Manager struct {
	client   Exchanger
	db       *database.DB
	sessions *session.Issuer
	logger   *slog.Logger
}

// NewManager creates a new OAuth manager
func NewManager(client Exchanger, db *database.DB, sessions *session.Issuer) *Manager {
	return &Manager{
		client:   client,
		db:       db,
		sessions: sessions,
		logger:   slog.Default(),
	}
}

// AuthURL returns the Strava authorization URL the user is sent to
func (m *Manager) AuthURL() string {
	return m.client.AuthorizationURL()
}

// CompleteAuthorization exchanges code for tokens, stores the athlete and
// token, and issues a session for the app. scope is the value Strava
// reported on the redirect.
func (m *Manager) CompleteAuthorization(ctx context.Context, code, scope string) (*Connection, error) {
	if code == "" {
		return nil, fmt.Errorf("%w: missing authorization code", ErrAuthorizationDenied)
	}

	m.logger.Info("Handling OAuth callback", "code_length", len(code))

	creds, err := m.client.ExchangeCode(ctx, code)
	if err != nil {
		return nil, err
	}

	athleteID := creds.Athlete.ID
	m.logger.Info("Exchanged code for tokens", "athlete_id", athleteID)

	// The athlete row must exist before its token, and both land together
	err = m.db.InTx(ctx, func(q *database.Queries) error {
		if _, err := syncer.NewProfileRepository(q).SaveAthlete(ctx, creds.Athlete); err != nil {
			return err
		}
		return tokens.NewStore(q, nil).Save(ctx, athleteID, creds, scope)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store authorization: %w", err)
	}

	m.logger.Info("Stored athlete and token", "athlete_id", athleteID, "scope", scope)

	sessionToken, err := m.sessions.Issue(athleteID)
	if err != nil {
		return nil, err
	}

	return &Connection{
		Athlete:      creds.Athlete,
		AccessToken:  creds.AccessToken,
		SessionToken: sessionToken,
	}, nil
}
