package strava

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrTokenExchange marks a failed authorization-code exchange
	ErrTokenExchange = errors.New("token exchange failed")
	// ErrTokenRefresh marks a failed refresh-token grant
	ErrTokenRefresh = errors.New("token refresh failed")
	// ErrQuotaExhausted is returned without sending a request while the
	// current rate limit window is used up
	ErrQuotaExhausted = errors.New("strava rate limit quota exhausted")
)

// HTTPError is returned when the Strava API answers with a non-2xx status
type HTTPError struct {
	StatusCode int
	Body       string
	// Message is the upstream "message" field when the body carried one
	Message string
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("strava API error (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("strava API error (status %d): %s", e.StatusCode, e.Body)
}

// IsNotFound reports whether err is a Strava 404
func IsNotFound(err error) bool {
	return hasStatus(err, http.StatusNotFound)
}

// IsUnauthorized reports whether err is a Strava 401
func IsUnauthorized(err error) bool {
	return hasStatus(err, http.StatusUnauthorized)
}

// IsTooManyRequests reports whether err is a Strava 429 or a request skipped
// because the quota was already used up
func IsTooManyRequests(err error) bool {
	return errors.Is(err, ErrQuotaExhausted) || hasStatus(err, http.StatusTooManyRequests)
}

func hasStatus(err error, status int) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.StatusCode == status
}

// TokenError describes a failed token grant. Kind is ErrTokenExchange or
// ErrTokenRefresh so callers can match with errors.Is.
type TokenError struct {
	Kind       error
	StatusCode int
	Message    string
	Err        error
}

func (e *TokenError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (status %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *TokenError) Is(target error) bool {
	return target == e.Kind
}

func (e *TokenError) Unwrap() error {
	return e.Err
}

// upstreamMessage extracts the "message" field Strava puts in error bodies
func upstreamMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	return payload.Message
}
