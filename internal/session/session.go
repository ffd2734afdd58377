// Package session issues the application session credential returned to the
// mobile app after a successful Strava authorization.
package session

import (
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const issuer = "strava-mirror"

// Claims carried by a session token. Subject is the Strava athlete id.
type Claims struct {
	AthleteID int64 `json:"athleteId"`
	jwt.RegisteredClaims
}

// Issuer signs HS256 session tokens. Verification belongs to the app
// backend that consumes them.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewIssuer(secret string, ttl time.Duration) *Issuer {
	return &Issuer{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue creates a session token bound to athleteID
func (i *Issuer) Issue(athleteID int64) (string, error) {
	now := i.now()
	claims := &Claims{
		AthleteID: athleteID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(athleteID, 10),
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, nil
}
