package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Label value constants to prevent typos
const (
	// Results
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultDropped = "dropped"
	ResultPanic   = "panic"

	// Activity classifications
	ClassificationNew     = "new"
	ClassificationUpdated = "updated"

	// HTTP endpoints
	EndpointOAuthStart        = "oauth_start"
	EndpointOAuthCallback     = "oauth_callback"
	EndpointAthleteProfile    = "athlete_profile"
	EndpointAthleteActivities = "athlete_activities"
	EndpointAthleteStats      = "athlete_stats"
	EndpointAthleteSync       = "athlete_sync"
	EndpointSyncHistory       = "sync_history"
	EndpointDisconnect        = "disconnect"
	EndpointHealth            = "health"

	// Strava API operations
	OpExchangeCode    = "exchange_code"
	OpRefreshToken    = "refresh_token"
	OpGetAthlete      = "get_athlete"
	OpGetAthleteStats = "get_athlete_stats"
	OpListActivities  = "list_activities"
	OpGetActivity     = "get_activity"
	OpDeauthorize     = "deauthorize"

	// Rate limit types
	RateLimitOverall15Min = "overall_15min"
	RateLimitOverallDaily = "overall_daily"
	RateLimitRead15Min    = "read_15min"
	RateLimitReadDaily    = "read_daily"

	// Rate limit buckets
	BucketLimit = "limit"
	BucketUsage = "usage"

	// Database operations
	DBOpGetAthlete        = "get_athlete"
	DBOpUpsertAthlete     = "upsert_athlete"
	DBOpGetToken          = "get_token"
	DBOpUpsertToken       = "upsert_token"
	DBOpDeleteToken       = "delete_token"
	DBOpGetActivity       = "get_activity"
	DBOpCreateActivity    = "create_activity"
	DBOpUpdateActivity    = "update_activity"
	DBOpListActivities    = "list_activities"
	DBOpUpsertStats       = "upsert_stats"
	DBOpGetStats          = "get_stats"
	DBOpCreateSyncLog     = "create_sync_log"
	DBOpFinishSyncLog     = "finish_sync_log"
	DBOpListSyncLogs      = "list_sync_logs"
	DBOpSweepSyncLogs     = "sweep_sync_logs"
	DBOpCountSyncLogs     = "count_sync_logs"
	DBOpDeleteAthleteData = "delete_athlete_data"
)

// HTTP Metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"endpoint", "status_code"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"endpoint", "status_code"},
	)
)

// Background pool metrics
var (
	PoolTasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_pool_tasks_total",
			Help: "Total number of background tasks by outcome",
		},
		[]string{"result"},
	)

	PoolTasksRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sync_pool_tasks_running",
			Help: "Number of background tasks currently running",
		},
	)

	PoolTasksQueued = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sync_pool_tasks_queued",
			Help: "Number of background tasks waiting for a free slot",
		},
	)

	SweeperActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sync_log_sweeper_active",
			Help: "Whether the stale sync log sweeper is currently active (1) or not (0)",
		},
	)

	SyncLogsSweptTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sync_logs_swept_total",
			Help: "Total number of abandoned sync logs marked failed",
		},
	)

	SyncLogsInProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sync_logs_in_progress",
			Help: "Number of sync logs currently in the started state",
		},
	)
)

// Strava API Metrics
var (
	StravaAPIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "strava_api_requests_total",
			Help: "Total number of Strava API requests",
		},
		[]string{"operation", "status_code"},
	)

	StravaAPIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "strava_api_request_duration_seconds",
			Help:    "Strava API request latency in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"operation", "status_code"},
	)

	StravaRateLimitUsage = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "strava_rate_limit_usage",
			Help: "Strava API rate limit usage",
		},
		[]string{"limit_type", "bucket"},
	)

	TokenRefreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "token_refreshes_total",
			Help: "Total number of access token refreshes by outcome",
		},
		[]string{"result"},
	)
)

// Database Metrics
var (
	DBOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_operation_duration_seconds",
			Help:    "Database operation latency in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"operation"},
	)

	DBOperationErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_operation_errors_total",
			Help: "Total number of database operation errors",
		},
		[]string{"operation"},
	)
)

// Sync Metrics
var (
	SyncRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_runs_total",
			Help: "Total number of sync runs by type and final status",
		},
		[]string{"sync_type", "status"},
	)

	SyncRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sync_run_duration_seconds",
			Help:    "Time spent on a sync run",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"sync_type", "status"},
	)

	SyncActivitiesCount = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sync_activities_count",
			Help:    "Number of activities fetched per sync run",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
	)

	ActivitiesReconciledTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "activities_reconciled_total",
			Help: "Total number of activities reconciled by classification",
		},
		[]string{"classification"},
	)
)
