package strava

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"strava-mirror/internal/config"
	"strava-mirror/internal/metrics"
)

const (
	// Scope is requested as a single comma-joined value; Strava does not
	// accept space-separated scopes
	Scope = "read,read_all,profile:read_all,activity:read,activity:read_all"

	requestTimeout = 30 * time.Second

	// MaxPerPage is the largest page Strava serves for activity listings
	MaxPerPage = 200

	// quotaWindow is Strava's short rate limit window; windows start on the
	// quarter hour
	quotaWindow = 15 * time.Minute
)

// Client is a Strava API client. It holds no per-athlete state and is safe
// for concurrent use.
type Client struct {
	httpClient        *http.Client
	oauth             *oauth2.Config
	apiURL            string
	oauthURL          string
	activitiesPerPage int
	logger            *slog.Logger
	rateLimiter       *RateLimiter
}

// NewClient creates a new Strava API client
func NewClient(cfg *config.Config) *Client {
	oauthURL := strings.TrimSuffix(cfg.StravaOAuthURL, "/")

	return &Client{
		httpClient: &http.Client{Timeout: requestTimeout},
		oauth: &oauth2.Config{
			ClientID:     cfg.StravaClientID,
			ClientSecret: cfg.StravaClientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:   oauthURL + "/authorize",
				TokenURL:  oauthURL + "/token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
			RedirectURL: cfg.StravaRedirectURI,
			Scopes:      []string{Scope},
		},
		apiURL:            strings.TrimSuffix(cfg.StravaAPIURL, "/"),
		oauthURL:          oauthURL,
		activitiesPerPage: MaxPerPage,
		logger:            slog.Default(),
		rateLimiter:       NewRateLimiter(),
	}
}

// GetRateLimitStatus returns the quotas reported by the last API response
func (c *Client) GetRateLimitStatus() RateLimitStatus {
	return c.rateLimiter.Status()
}

// GetAthlete fetches the authenticated athlete's profile
func (c *Client) GetAthlete(ctx context.Context, accessToken string) (*Athlete, error) {
	var athlete Athlete
	if err := c.get(ctx, metrics.OpGetAthlete, accessToken, "/athlete", nil, &athlete); err != nil {
		return nil, fmt.Errorf("failed to get athlete: %w", err)
	}
	return &athlete, nil
}

// GetAthleteStats fetches aggregate statistics for an athlete
func (c *Client) GetAthleteStats(ctx context.Context, accessToken string, athleteID int64) (*Stats, error) {
	var stats Stats
	path := fmt.Sprintf("/athletes/%d/stats", athleteID)
	if err := c.get(ctx, metrics.OpGetAthleteStats, accessToken, path, nil, &stats); err != nil {
		return nil, fmt.Errorf("failed to get athlete stats: %w", err)
	}
	return &stats, nil
}

// Deauthorize revokes the application's access for the token's athlete
func (c *Client) Deauthorize(ctx context.Context, accessToken string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.oauthURL+"/deauthorize", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.do(req, metrics.OpDeauthorize)
	if err != nil {
		return fmt.Errorf("failed to deauthorize: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newHTTPError(resp)
	}
	return nil
}

// quotaExhausted reports whether a response in the current window showed a
// quota fully used. Once the window rolls over the next request goes out and
// refreshes the status.
func (c *Client) quotaExhausted(now time.Time) bool {
	status := c.GetRateLimitStatus()
	if status.LastUpdated.IsZero() || !status.LastUpdated.Truncate(quotaWindow).Equal(now.Truncate(quotaWindow)) {
		return false
	}
	return c.rateLimiter.IsNearLimit(100)
}

// get performs an authenticated GET against the API and decodes the JSON body
func (c *Client) get(ctx context.Context, op, accessToken, path string, params url.Values, out any) error {
	if c.quotaExhausted(time.Now()) {
		metrics.StravaAPIRequestsTotal.WithLabelValues(op, "skipped").Inc()
		c.logger.Warn("Skipping Strava request, rate limit quota exhausted", "operation", op)
		return ErrQuotaExhausted
	}

	reqURL := c.apiURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.do(req, op)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newHTTPError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// do sends the request once, recording metrics and rate-limit headers
func (c *Client) do(req *http.Request, op string) (*http.Response, error) {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)

	if err != nil {
		metrics.StravaAPIRequestsTotal.WithLabelValues(op, "error").Inc()
		metrics.StravaAPIRequestDuration.WithLabelValues(op, "error").Observe(duration.Seconds())
		c.logger.Error("strava request failed", "operation", op, "error", err, "duration_ms", duration.Milliseconds())
		return nil, fmt.Errorf("request failed: %w", err)
	}

	statusStr := strconv.Itoa(resp.StatusCode)
	metrics.StravaAPIRequestsTotal.WithLabelValues(op, statusStr).Inc()
	metrics.StravaAPIRequestDuration.WithLabelValues(op, statusStr).Observe(duration.Seconds())

	c.rateLimiter.UpdateFromHeaders(resp.Header)

	c.logger.Debug("strava_api_request",
		"operation", op,
		"path", req.URL.Path,
		"status", resp.StatusCode,
		"duration_ms", duration.Milliseconds(),
	)

	return resp, nil
}

func newHTTPError(resp *http.Response) *HTTPError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	return &HTTPError{
		StatusCode: resp.StatusCode,
		Body:       string(body),
		Message:    upstreamMessage(body),
	}
}
