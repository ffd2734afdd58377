package session

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func parse(t *testing.T, token, secret string, now time.Time) (*Claims, error) {
	t.Helper()

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	return claims, err
}

func TestIssue(t *testing.T) {
	issuer := NewIssuer("test-secret", time.Hour)

	token, err := issuer.Issue(42)
	if err != nil {
		t.Fatalf("Failed to issue token: %v", err)
	}

	claims, err := parse(t, token, "test-secret", time.Now())
	if err != nil {
		t.Fatalf("Failed to parse token: %v", err)
	}
	if claims.AthleteID != 42 {
		t.Errorf("Expected athlete 42, got %d", claims.AthleteID)
	}
	if claims.Subject != "42" {
		t.Errorf("Expected subject 42, got %s", claims.Subject)
	}
	if claims.ID == "" {
		t.Error("Expected token id to be set")
	}
}

func TestIssueUniqueIDs(t *testing.T) {
	issuer := NewIssuer("test-secret", time.Hour)

	first, _ := issuer.Issue(42)
	second, _ := issuer.Issue(42)
	if first == second {
		t.Error("Expected distinct tokens for repeated issues")
	}
}

func TestIssueExpiresAfterTTL(t *testing.T) {
	issuer := NewIssuer("test-secret", time.Hour)
	issued := time.Now().Add(-2 * time.Hour)
	issuer.now = func() time.Time { return issued }

	token, err := issuer.Issue(42)
	if err != nil {
		t.Fatalf("Failed to issue token: %v", err)
	}

	if _, err := parse(t, token, "test-secret", issued.Add(30*time.Minute)); err != nil {
		t.Errorf("Expected token to be valid within its TTL, got %v", err)
	}
	if _, err := parse(t, token, "test-secret", time.Now()); err == nil {
		t.Error("Expected token to be expired after its TTL")
	}
}

func TestIssueSignsWithSecret(t *testing.T) {
	token, _ := NewIssuer("secret-a", time.Hour).Issue(42)

	if _, err := parse(t, token, "secret-b", time.Now()); err == nil {
		t.Error("Expected verification with another secret to fail")
	}
}
