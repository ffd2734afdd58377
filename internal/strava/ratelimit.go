package strava

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"strava-mirror/internal/metrics"
)

// RateLimitWindow is one Strava quota: a 15 minute and a daily allowance
type RateLimitWindow struct {
	Limit15Min int
	Usage15Min int
	LimitDaily int
	UsageDaily int
}

// Usage15MinPct returns 15 minute usage as a percentage of the limit
func (w RateLimitWindow) Usage15MinPct() float64 {
	if w.Limit15Min <= 0 {
		return 0
	}
	return float64(w.Usage15Min) / float64(w.Limit15Min) * 100
}

// UsageDailyPct returns daily usage as a percentage of the limit
func (w RateLimitWindow) UsageDailyPct() float64 {
	if w.LimitDaily <= 0 {
		return 0
	}
	return float64(w.UsageDaily) / float64(w.LimitDaily) * 100
}

// RateLimitStatus is a snapshot of the last reported quotas
type RateLimitStatus struct {
	Overall     RateLimitWindow
	Read        RateLimitWindow
	LastUpdated time.Time
}

// RateLimiter tracks the quotas Strava reports on every API response.
// Requests are never delayed; the client only skips them while a quota in
// the current window is used up.
type RateLimiter struct {
	mu          sync.RWMutex
	overall     RateLimitWindow
	read        RateLimitWindow
	lastUpdated time.Time
}

// NewRateLimiter creates a rate limiter seeded with Strava's default limits
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		overall: RateLimitWindow{Limit15Min: 200, LimitDaily: 2000},
		read:    RateLimitWindow{Limit15Min: 100, LimitDaily: 1000},
	}
}

// UpdateFromHeaders reads the X-RateLimit-* and X-ReadRateLimit-* headers.
// Header values have the form "15min,daily". Returns false when the response
// carried no usable overall quota.
func (rl *RateLimiter) UpdateFromHeaders(h http.Header) bool {
	overall, ok := parseWindow(h.Get("X-RateLimit-Limit"), h.Get("X-RateLimit-Usage"))
	if !ok {
		return false
	}
	read, readOK := parseWindow(h.Get("X-ReadRateLimit-Limit"), h.Get("X-ReadRateLimit-Usage"))

	rl.mu.Lock()
	rl.overall = overall
	if readOK {
		rl.read = read
	}
	rl.lastUpdated = time.Now()
	rl.mu.Unlock()

	setWindowGauges(metrics.RateLimitOverall15Min, metrics.RateLimitOverallDaily, overall)
	if readOK {
		setWindowGauges(metrics.RateLimitRead15Min, metrics.RateLimitReadDaily, read)
	}

	return true
}

// Status returns the current rate limit status
func (rl *RateLimiter) Status() RateLimitStatus {
	rl.mu.RLock()
	defer rl.mu.RUnlock()

	return RateLimitStatus{
		Overall:     rl.overall,
		Read:        rl.read,
		LastUpdated: rl.lastUpdated,
	}
}

// IsNearLimit returns true if any quota is at or above threshold percent
func (rl *RateLimiter) IsNearLimit(threshold float64) bool {
	s := rl.Status()
	for _, w := range []RateLimitWindow{s.Overall, s.Read} {
		if w.Usage15MinPct() >= threshold || w.UsageDailyPct() >= threshold {
			return true
		}
	}
	return false
}

func parseWindow(limitHeader, usageHeader string) (RateLimitWindow, bool) {
	if limitHeader == "" || usageHeader == "" {
		return RateLimitWindow{}, false
	}

	limits := strings.Split(limitHeader, ",")
	usages := strings.Split(usageHeader, ",")
	if len(limits) != 2 || len(usages) != 2 {
		return RateLimitWindow{}, false
	}

	values := make([]int, 0, 4)
	for _, s := range []string{limits[0], usages[0], limits[1], usages[1]} {
		v, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return RateLimitWindow{}, false
		}
		values = append(values, v)
	}

	return RateLimitWindow{
		Limit15Min: values[0],
		Usage15Min: values[1],
		LimitDaily: values[2],
		UsageDaily: values[3],
	}, true
}

func setWindowGauges(label15Min, labelDaily string, w RateLimitWindow) {
	metrics.StravaRateLimitUsage.WithLabelValues(label15Min, metrics.BucketLimit).Set(float64(w.Limit15Min))
	metrics.StravaRateLimitUsage.WithLabelValues(label15Min, metrics.BucketUsage).Set(float64(w.Usage15Min))
	metrics.StravaRateLimitUsage.WithLabelValues(labelDaily, metrics.BucketLimit).Set(float64(w.LimitDaily))
	metrics.StravaRateLimitUsage.WithLabelValues(labelDaily, metrics.BucketUsage).Set(float64(w.UsageDaily))
}
