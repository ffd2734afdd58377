package strava

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"strava-mirror/internal/config"
)

func setupTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := &config.Config{
		StravaClientID:     "test_client_id",
		StravaClientSecret: "test_client_secret",
		StravaRedirectURI:  "http://localhost:4101/auth/strava/callback",
		StravaAPIURL:       server.URL + "/api/v3",
		StravaOAuthURL:     server.URL + "/oauth",
	}

	return NewClient(cfg), server
}

func writeJSON(t *testing.T, w http.ResponseWriter, status int, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Errorf("Failed to encode response: %v", err)
	}
}

func TestAuthorizationURL(t *testing.T) {
	client, server := setupTestClient(t, http.NotFoundHandler())

	first := client.AuthorizationURL()
	if second := client.AuthorizationURL(); first != second {
		t.Errorf("Expected deterministic URL, got %s and %s", first, second)
	}

	u, err := url.Parse(first)
	if err != nil {
		t.Fatalf("Failed to parse authorization URL: %v", err)
	}
	if got := u.Scheme + "://" + u.Host + u.Path; got != server.URL+"/oauth/authorize" {
		t.Errorf("Expected authorize endpoint, got %s", got)
	}

	q := u.Query()
	if q.Get("client_id") != "test_client_id" {
		t.Errorf("Expected client_id test_client_id, got %s", q.Get("client_id"))
	}
	if q.Get("redirect_uri") != "http://localhost:4101/auth/strava/callback" {
		t.Errorf("Unexpected redirect_uri %s", q.Get("redirect_uri"))
	}
	if q.Get("response_type") != "code" {
		t.Errorf("Expected response_type code, got %s", q.Get("response_type"))
	}
	if q.Get("scope") != Scope {
		t.Errorf("Expected scope %s, got %s", Scope, q.Get("scope"))
	}
	if q.Has("state") {
		t.Error("Expected no state parameter")
	}
}

func TestExchangeCode(t *testing.T) {
	expiresAt := time.Now().Add(6 * time.Hour).Unix()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /oauth/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Failed to parse form", http.StatusBadRequest)
			return
		}
		if r.FormValue("code") != "test_code" {
			writeJSON(t, w, http.StatusBadRequest, map[string]any{"message": "Bad Request"})
			return
		}
		if r.FormValue("client_id") != "test_client_id" || r.FormValue("client_secret") != "test_client_secret" {
			t.Errorf("Expected client credentials in form params, got %v", r.Form)
		}
		if r.FormValue("grant_type") != "authorization_code" {
			t.Errorf("Expected grant_type authorization_code, got %s", r.FormValue("grant_type"))
		}

		writeJSON(t, w, http.StatusOK, map[string]any{
			"token_type":    "Bearer",
			"access_token":  "A",
			"refresh_token": "R",
			"expires_at":    expiresAt,
			"expires_in":    21600,
			"athlete": map[string]any{
				"id":        42,
				"username":  "rider",
				"firstname": "Jo",
				"lastname":  "Bloggs",
				"profile":   "https://example.com/p.jpg",
				"premium":   true,
				"unknown":   "ignored",
			},
		})
	})
	client, _ := setupTestClient(t, mux)

	creds, err := client.ExchangeCode(context.Background(), "test_code")
	if err != nil {
		t.Fatalf("Failed to exchange code: %v", err)
	}

	if creds.AccessToken != "A" {
		t.Errorf("Expected access token A, got %s", creds.AccessToken)
	}
	if creds.RefreshToken != "R" {
		t.Errorf("Expected refresh token R, got %s", creds.RefreshToken)
	}
	if creds.ExpiresAt.Unix() != expiresAt {
		t.Errorf("Expected expires at %d, got %d", expiresAt, creds.ExpiresAt.Unix())
	}
	if creds.TokenType != "Bearer" {
		t.Errorf("Expected token type Bearer, got %s", creds.TokenType)
	}
	if creds.Athlete == nil {
		t.Fatal("Expected athlete in credentials")
	}
	if creds.Athlete.ID != 42 {
		t.Errorf("Expected athlete 42, got %d", creds.Athlete.ID)
	}
	if creds.Athlete.FirstName != "Jo" || !creds.Athlete.Premium {
		t.Errorf("Unexpected athlete %+v", creds.Athlete)
	}
}

func TestExchangeCodeRejected(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /oauth/token", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusBadRequest, map[string]any{
			"message": "Bad Request",
			"errors":  []map[string]string{{"resource": "AuthorizationCode", "code": "invalid"}},
		})
	})
	client, _ := setupTestClient(t, mux)

	_, err := client.ExchangeCode(context.Background(), "bad_code")
	if err == nil {
		t.Fatal("Expected error for rejected code")
	}
	if !errors.Is(err, ErrTokenExchange) {
		t.Errorf("Expected ErrTokenExchange, got %v", err)
	}
	if errors.Is(err, ErrTokenRefresh) {
		t.Error("Did not expect ErrTokenRefresh")
	}

	var tokenErr *TokenError
	if !errors.As(err, &tokenErr) {
		t.Fatalf("Expected *TokenError, got %T", err)
	}
	if tokenErr.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", tokenErr.StatusCode)
	}
	if tokenErr.Message != "Bad Request" {
		t.Errorf("Expected upstream message 'Bad Request', got %q", tokenErr.Message)
	}
}

func TestExchangeCodeMissingAthlete(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /oauth/token", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, map[string]any{
			"token_type":    "Bearer",
			"access_token":  "A",
			"refresh_token": "R",
			"expires_at":    time.Now().Add(time.Hour).Unix(),
		})
	})
	client, _ := setupTestClient(t, mux)

	_, err := client.ExchangeCode(context.Background(), "code")
	if !errors.Is(err, ErrTokenExchange) {
		t.Errorf("Expected ErrTokenExchange for missing athlete, got %v", err)
	}
}

func TestRefreshToken(t *testing.T) {
	expiresAt := time.Now().Add(6 * time.Hour).Unix()
	calls := 0

	mux := http.NewServeMux()
	mux.HandleFunc("POST /oauth/token", func(w http.ResponseWriter, r *http.Request) {
		calls++
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Failed to parse form", http.StatusBadRequest)
			return
		}
		if r.FormValue("grant_type") != "refresh_token" {
			t.Errorf("Expected grant_type refresh_token, got %s", r.FormValue("grant_type"))
		}
		if r.FormValue("refresh_token") != "old_refresh" {
			t.Errorf("Expected refresh_token old_refresh, got %s", r.FormValue("refresh_token"))
		}

		writeJSON(t, w, http.StatusOK, map[string]any{
			"token_type":    "Bearer",
			"access_token":  "new_access",
			"refresh_token": "new_refresh",
			"expires_at":    expiresAt,
		})
	})
	client, _ := setupTestClient(t, mux)

	creds, err := client.RefreshToken(context.Background(), "old_refresh")
	if err != nil {
		t.Fatalf("Failed to refresh token: %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected 1 token request, got %d", calls)
	}
	if creds.AccessToken != "new_access" || creds.RefreshToken != "new_refresh" {
		t.Errorf("Unexpected credentials %+v", creds)
	}
	if creds.ExpiresAt.Unix() != expiresAt {
		t.Errorf("Expected expires at %d, got %d", expiresAt, creds.ExpiresAt.Unix())
	}
	if creds.Athlete != nil {
		t.Error("Expected no athlete on refresh")
	}
}

func TestRefreshTokenRejected(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /oauth/token", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusUnauthorized, map[string]any{"message": "Authorization Error"})
	})
	client, _ := setupTestClient(t, mux)

	_, err := client.RefreshToken(context.Background(), "revoked")
	if !errors.Is(err, ErrTokenRefresh) {
		t.Fatalf("Expected ErrTokenRefresh, got %v", err)
	}

	var tokenErr *TokenError
	if errors.As(err, &tokenErr) && tokenErr.Message != "Authorization Error" {
		t.Errorf("Expected upstream message, got %q", tokenErr.Message)
	}
}

func TestGetAthleteAndStats(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v3/athlete", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer token" {
			t.Errorf("Expected bearer token, got %s", r.Header.Get("Authorization"))
		}
		w.Header().Set("X-RateLimit-Limit", "200,2000")
		w.Header().Set("X-RateLimit-Usage", "10,100")
		writeJSON(t, w, http.StatusOK, map[string]any{
			"id":         42,
			"firstname":  "Jo",
			"weight":     68.2,
			"created_at": "2015-03-01T10:00:00Z",
		})
	})
	mux.HandleFunc("GET /api/v3/athletes/42/stats", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, map[string]any{
			"biggest_ride_distance": 175000.5,
			"all_ride_totals": map[string]any{
				"count": 12, "distance": 1234.5, "moving_time": 3600,
				"elapsed_time": 4000, "elevation_gain": 300, "achievement_count": 2,
			},
		})
	})
	client, _ := setupTestClient(t, mux)
	ctx := context.Background()

	athlete, err := client.GetAthlete(ctx, "token")
	if err != nil {
		t.Fatalf("Failed to get athlete: %v", err)
	}
	if athlete.ID != 42 || athlete.FirstName != "Jo" {
		t.Errorf("Unexpected athlete %+v", athlete)
	}
	if athlete.Weight == nil || *athlete.Weight != 68.2 {
		t.Errorf("Expected weight 68.2, got %v", athlete.Weight)
	}
	if athlete.CreatedAt == nil || athlete.CreatedAt.Year() != 2015 {
		t.Errorf("Expected created at in 2015, got %v", athlete.CreatedAt)
	}

	if usage := client.GetRateLimitStatus().Overall.Usage15Min; usage != 10 {
		t.Errorf("Expected rate limit usage 10 from headers, got %d", usage)
	}

	stats, err := client.GetAthleteStats(ctx, "token", 42)
	if err != nil {
		t.Fatalf("Failed to get stats: %v", err)
	}
	if stats.BiggestRideDistance != 175000.5 {
		t.Errorf("Expected biggest ride 175000.5, got %f", stats.BiggestRideDistance)
	}
	if stats.AllRideTotals.Count != 12 || stats.AllRideTotals.MovingTime != 3600 {
		t.Errorf("Unexpected all ride totals %+v", stats.AllRideTotals)
	}
}

func TestGetAthleteUpstreamError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v3/athlete", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusUnauthorized, map[string]any{"message": "Authorization Error"})
	})
	client, _ := setupTestClient(t, mux)

	_, err := client.GetAthlete(context.Background(), "expired")
	if !IsUnauthorized(err) {
		t.Fatalf("Expected unauthorized HTTPError, got %v", err)
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) && httpErr.Message != "Authorization Error" {
		t.Errorf("Expected upstream message, got %q", httpErr.Message)
	}
}

func TestRequestsSkippedWhileQuotaExhausted(t *testing.T) {
	requests := 0
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v3/athlete", func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.Header().Set("X-RateLimit-Limit", "200,2000")
		w.Header().Set("X-RateLimit-Usage", "200,900")
		writeJSON(t, w, http.StatusOK, map[string]any{"id": 42})
	})
	client, _ := setupTestClient(t, mux)
	ctx := context.Background()

	if _, err := client.GetAthlete(ctx, "token"); err != nil {
		t.Fatalf("Failed to get athlete: %v", err)
	}

	_, err := client.GetAthlete(ctx, "token")
	if !errors.Is(err, ErrQuotaExhausted) {
		t.Fatalf("Expected ErrQuotaExhausted, got %v", err)
	}
	if !IsTooManyRequests(err) {
		t.Error("Expected a skipped request to count as too many requests")
	}
	if requests != 1 {
		t.Errorf("Expected 1 request to reach Strava, got %d", requests)
	}

	// A status from an earlier window no longer blocks requests
	if client.quotaExhausted(time.Now().Add(quotaWindow)) {
		t.Error("Expected the next window to allow requests")
	}
}

func TestGetActivity(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v3/activities/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "1001" {
			writeJSON(t, w, http.StatusNotFound, map[string]any{"message": "Record Not Found"})
			return
		}
		if r.URL.Query().Get("include_all_efforts") != "true" {
			t.Errorf("Expected include_all_efforts=true, got %s", r.URL.RawQuery)
		}
		writeJSON(t, w, http.StatusOK, map[string]any{
			"id":          1001,
			"name":        "Morning Run",
			"type":        "Run",
			"description": "Easy loop",
			"calories":    512.5,
			"start_date":  "2024-05-04T07:30:00Z",
		})
	})
	client, _ := setupTestClient(t, mux)
	ctx := context.Background()

	activity, err := client.GetActivity(ctx, "token", 1001)
	if err != nil {
		t.Fatalf("Failed to get activity: %v", err)
	}
	if activity.Name != "Morning Run" || activity.Calories != 512.5 {
		t.Errorf("Unexpected activity %+v", activity)
	}
	if activity.Description == nil || *activity.Description != "Easy loop" {
		t.Errorf("Expected description, got %v", activity.Description)
	}

	if _, err := client.GetActivity(ctx, "token", 7); !IsNotFound(err) {
		t.Errorf("Expected not found error, got %v", err)
	}
}

func TestDeauthorize(t *testing.T) {
	var gotAuth string
	mux := http.NewServeMux()
	mux.HandleFunc("POST /oauth/deauthorize", func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		writeJSON(t, w, http.StatusOK, map[string]any{"access_token": "token"})
	})
	client, _ := setupTestClient(t, mux)

	if err := client.Deauthorize(context.Background(), "token"); err != nil {
		t.Fatalf("Failed to deauthorize: %v", err)
	}
	if gotAuth != "Bearer token" {
		t.Errorf("Expected bearer token, got %s", gotAuth)
	}
}

func TestHTTPError_Helpers(t *testing.T) {
	notFoundErr := &HTTPError{StatusCode: 404, Body: "Not Found"}
	if !IsNotFound(notFoundErr) {
		t.Error("Expected IsNotFound to return true for 404")
	}

	unauthorizedErr := &HTTPError{StatusCode: 401, Body: "Unauthorized"}
	if !IsUnauthorized(unauthorizedErr) {
		t.Error("Expected IsUnauthorized to return true for 401")
	}

	rateLimitErr := &HTTPError{StatusCode: 429, Body: "Too Many Requests"}
	if !IsTooManyRequests(rateLimitErr) {
		t.Error("Expected IsTooManyRequests to return true for 429")
	}

	// Helpers see through wrapping
	wrapped := errors.Join(errors.New("context"), notFoundErr)
	if !IsNotFound(wrapped) {
		t.Error("Expected IsNotFound to match a wrapped 404")
	}
	if IsNotFound(errors.New("plain")) {
		t.Error("Expected IsNotFound to be false for a plain error")
	}
}
