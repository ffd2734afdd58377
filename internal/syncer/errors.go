package syncer

import (
	"errors"
	"fmt"

	"strava-mirror/internal/strava"
)

var (
	// ErrReauthorizationRequired means Strava rejected the athlete's token
	ErrReauthorizationRequired = errors.New("strava rejected the access token, please re-authorize with Strava")
	// ErrRateLimited means the Strava request quota is used up
	ErrRateLimited = errors.New("strava rate limit reached, try again later")
	// ErrActivityNotFound means the activity is not stored for the athlete or
	// is gone at Strava
	ErrActivityNotFound = errors.New("activity not found")
)

// describeUpstream prefixes Strava failures the athlete can act on so the
// sync log message says what to do
func describeUpstream(err error) error {
	switch {
	case err == nil:
		return nil
	case strava.IsUnauthorized(err):
		return fmt.Errorf("%w: %w", ErrReauthorizationRequired, err)
	case strava.IsTooManyRequests(err):
		return fmt.Errorf("%w: %w", ErrRateLimited, err)
	}
	return err
}
