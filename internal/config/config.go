package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultStravaAPIURL   = "https://www.strava.com/api/v3"
	DefaultStravaOAuthURL = "https://www.strava.com/oauth"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Host string
	Port int

	// Database configuration
	DatabasePath string

	// Strava API configuration
	StravaClientID     string
	StravaClientSecret string
	StravaRedirectURI  string
	StravaAPIURL       string
	StravaOAuthURL     string

	// Session credentials handed to the native app
	JWTSecret      string
	SessionTTL     time.Duration
	DeepLinkScheme string

	// Background sync configuration
	SyncWorkers       int
	SyncLogStaleAfter time.Duration
	SyncSweepInterval time.Duration

	// Metrics configuration
	MetricsEnabled bool
	MetricsHost    string
	MetricsPort    int

	// Logging configuration
	LogLevel string
}

// Load reads configuration from environment variables, seeded from a .env
// file in the working directory when one exists.
// It fails fast if required variables are missing
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		// Optional values with defaults
		Host:              getEnv("HOST", "localhost"),
		Port:              getEnvInt("PORT", 4101),
		DatabasePath:      getEnv("DATABASE_PATH", "./data.db"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		StravaAPIURL:      getEnv("STRAVA_API_URL", DefaultStravaAPIURL),
		StravaOAuthURL:    getEnv("STRAVA_OAUTH_URL", DefaultStravaOAuthURL),
		DeepLinkScheme:    getEnv("DEEP_LINK_SCHEME", "app"),
		SessionTTL:        time.Duration(getEnvInt("SESSION_TTL_HOURS", 720)) * time.Hour,
		SyncWorkers:       getEnvInt("SYNC_WORKERS", 4),
		SyncLogStaleAfter: time.Duration(getEnvInt("SYNC_LOG_STALE_AFTER_MINUTES", 120)) * time.Minute,
		SyncSweepInterval: time.Duration(getEnvInt("SYNC_SWEEP_INTERVAL_MINUTES", 10)) * time.Minute,
		MetricsEnabled:    getEnvBool("METRICS_ENABLED", false),
		MetricsHost:       getEnv("METRICS_HOST", "localhost"),
		MetricsPort:       getEnvInt("METRICS_PORT", 9090),
	}

	// Required values
	var missingVars []string

	cfg.StravaClientID = os.Getenv("STRAVA_CLIENT_ID")
	if cfg.StravaClientID == "" {
		missingVars = append(missingVars, "STRAVA_CLIENT_ID")
	}

	cfg.StravaClientSecret = os.Getenv("STRAVA_CLIENT_SECRET")
	if cfg.StravaClientSecret == "" {
		missingVars = append(missingVars, "STRAVA_CLIENT_SECRET")
	}

	cfg.StravaRedirectURI = os.Getenv("STRAVA_REDIRECT_URI")
	if cfg.StravaRedirectURI == "" {
		missingVars = append(missingVars, "STRAVA_REDIRECT_URI")
	}

	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if cfg.JWTSecret == "" {
		missingVars = append(missingVars, "JWT_SECRET")
	}

	if len(missingVars) > 0 {
		return nil, fmt.Errorf("missing required environment variables: %v", missingVars)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port)
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of: debug, info, warn, error")
	}

	if c.SyncWorkers < 1 {
		return fmt.Errorf("SYNC_WORKERS must be at least 1, got %d", c.SyncWorkers)
	}

	if c.SyncLogStaleAfter <= 0 || c.SyncSweepInterval <= 0 {
		return fmt.Errorf("SYNC_LOG_STALE_AFTER_MINUTES and SYNC_SWEEP_INTERVAL_MINUTES must be positive")
	}

	return nil
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvInt gets an integer environment variable or returns a default value
func getEnvInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvBool gets a boolean environment variable or returns a default value
func getEnvBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}
