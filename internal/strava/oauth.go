package strava

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/oauth2"
	"strava-mirror/internal/metrics"
)

// Credentials is the result of a token exchange or refresh
type Credentials struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	TokenType    string
	Scope        string
	// Athlete is only present on authorization-code exchange
	Athlete *Athlete
}

// AuthorizationURL returns the URL that starts Strava's consent flow. It is
// a pure function of the configuration.
func (c *Client) AuthorizationURL() string {
	return c.oauth.AuthCodeURL("")
}

// ExchangeCode trades an authorization code for credentials and the
// athlete's profile
func (c *Client) ExchangeCode(ctx context.Context, code string) (*Credentials, error) {
	start := time.Now()
	tok, err := c.oauth.Exchange(c.oauthContext(ctx), code)
	c.recordTokenRequest(metrics.OpExchangeCode, start, err)
	if err != nil {
		return nil, newTokenError(ErrTokenExchange, err)
	}

	creds, err := credentialsFromToken(tok)
	if err != nil {
		return nil, &TokenError{Kind: ErrTokenExchange, Message: err.Error(), Err: err}
	}
	if creds.Athlete == nil || creds.Athlete.ID == 0 {
		return nil, &TokenError{Kind: ErrTokenExchange, Message: "response did not include the athlete"}
	}

	c.logger.Info("token_exchange", "athlete_id", creds.Athlete.ID, "duration_ms", time.Since(start).Milliseconds())
	return creds, nil
}

// RefreshToken obtains a new access token using a refresh token
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*Credentials, error) {
	start := time.Now()
	// A seed without an access token is never valid, so the source always
	// performs the refresh grant
	src := c.oauth.TokenSource(c.oauthContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	c.recordTokenRequest(metrics.OpRefreshToken, start, err)
	if err != nil {
		return nil, newTokenError(ErrTokenRefresh, err)
	}

	creds, err := credentialsFromToken(tok)
	if err != nil {
		return nil, &TokenError{Kind: ErrTokenRefresh, Message: err.Error(), Err: err}
	}
	if creds.RefreshToken == "" {
		// Strava may omit an unchanged refresh token
		creds.RefreshToken = refreshToken
	}

	c.logger.Info("token_refresh", "duration_ms", time.Since(start).Milliseconds())
	return creds, nil
}

// oauthContext makes the oauth2 package use the client's http.Client
func (c *Client) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

func (c *Client) recordTokenRequest(op string, start time.Time, err error) {
	status := "200"
	if err != nil {
		status = "error"
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil {
			status = strconv.Itoa(re.Response.StatusCode)
		}
	}
	metrics.StravaAPIRequestsTotal.WithLabelValues(op, status).Inc()
	metrics.StravaAPIRequestDuration.WithLabelValues(op, status).Observe(time.Since(start).Seconds())
}

func newTokenError(kind, err error) *TokenError {
	te := &TokenError{Kind: kind, Message: err.Error(), Err: err}

	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		if re.Response != nil {
			te.StatusCode = re.Response.StatusCode
		}
		if msg := upstreamMessage(re.Body); msg != "" {
			te.Message = msg
		} else if len(re.Body) > 0 {
			te.Message = string(re.Body)
		}
	}

	return te
}

func credentialsFromToken(tok *oauth2.Token) (*Credentials, error) {
	if tok.AccessToken == "" {
		return nil, errors.New("response did not include an access token")
	}

	creds := &Credentials{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry,
		TokenType:    tok.TokenType,
	}

	// expires_at is authoritative; oauth2 only derives Expiry from expires_in
	if v, ok := tok.Extra("expires_at").(float64); ok && v > 0 {
		creds.ExpiresAt = time.Unix(int64(v), 0)
	}
	if scope, ok := tok.Extra("scope").(string); ok {
		creds.Scope = scope
	}

	if raw := tok.Extra("athlete"); raw != nil {
		b, err := json.Marshal(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to encode athlete: %w", err)
		}
		var athlete Athlete
		if err := json.Unmarshal(b, &athlete); err != nil {
			return nil, fmt.Errorf("failed to decode athlete: %w", err)
		}
		creds.Athlete = &athlete
	}

	return creds, nil
}
