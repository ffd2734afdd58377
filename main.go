package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"strava-mirror/internal/config"
	"strava-mirror/internal/database"
	"strava-mirror/internal/handlers"
	"strava-mirror/internal/metrics"
	"strava-mirror/internal/middleware"
	"strava-mirror/internal/oauth"
	"strava-mirror/internal/session"
	"strava-mirror/internal/strava"
	"strava-mirror/internal/syncer"
	"strava-mirror/internal/tokens"
	"strava-mirror/internal/worker"
)

func main() {
	migrateOnly := flag.Bool("migrate", false, "Apply database migrations and exit")
	flag.Parse()

	runServer(*migrateOnly)
}

func runServer(migrateOnly bool) {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Set up logger
	logLevel := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Starting strava-mirror server",
		"host", cfg.Host,
		"port", cfg.Port,
		"database", cfg.DatabasePath,
		"log_level", cfg.LogLevel,
		"sync_workers", cfg.SyncWorkers)

	// Open database
	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		logger.Error("Failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		logger.Error("Failed to migrate database", "error", err)
		os.Exit(1)
	}

	logger.Info("Database opened successfully")

	if migrateOnly {
		return
	}

	// Services
	stravaClient := strava.NewClient(cfg)
	tokenStore := tokens.NewStore(db, stravaClient)
	sessions := session.NewIssuer(cfg.JWTSecret, cfg.SessionTTL)
	orchestrator := syncer.NewOrchestrator(db, stravaClient, tokenStore)
	oauthManager := oauth.NewManager(stravaClient, db, sessions)
	pool := worker.NewPool(cfg.SyncWorkers)

	// Create handlers
	oauthHandler := handlers.NewOAuthHandler(oauthManager, orchestrator, pool, cfg.DeepLinkScheme)
	athleteHandler := handlers.NewAthleteHandler(db, orchestrator, stravaClient)

	// Set up HTTP routes
	mux := http.NewServeMux()

	// OAuth endpoints
	mux.Handle("GET /auth/strava", middleware.WrapHandler(metrics.EndpointOAuthStart, oauthHandler.HandleAuthStart))
	mux.Handle("GET /auth/strava/callback", middleware.WrapHandler(metrics.EndpointOAuthCallback, oauthHandler.HandleCallback))

	// Athlete endpoints
	mux.Handle("GET /athlete/{id}/profile", middleware.WrapHandler(metrics.EndpointAthleteProfile, athleteHandler.HandleProfile))
	mux.Handle("GET /athlete/{id}/activities", middleware.WrapHandler(metrics.EndpointAthleteActivities, athleteHandler.HandleActivities))
	mux.Handle("GET /athlete/{id}/stats", middleware.WrapHandler(metrics.EndpointAthleteStats, athleteHandler.HandleStats))
	mux.Handle("POST /athlete/{id}/sync", middleware.WrapHandler(metrics.EndpointAthleteSync, athleteHandler.HandleSync))
	mux.Handle("GET /athlete/{id}/sync-history", middleware.WrapHandler(metrics.EndpointSyncHistory, athleteHandler.HandleSyncHistory))
	mux.Handle("DELETE /athlete/{id}/disconnect", middleware.WrapHandler(metrics.EndpointDisconnect, athleteHandler.HandleDisconnect))

	// Health check endpoint
	mux.Handle("GET /health", middleware.WrapHandler(metrics.EndpointHealth, func(w http.ResponseWriter, r *http.Request) {
		if err := db.Health(r.Context()); err != nil {
			http.Error(w, "Database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}))

	// Create HTTP server. WriteTimeout is generous because POST
	// /athlete/{id}/sync pages through the whole activity history.
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	backgroundCtx, backgroundCancel := context.WithCancel(context.Background())
	defer backgroundCancel()

	// Start stale sync log sweeper in background
	sweeper := worker.NewSweeper(db, orchestrator, cfg.SyncLogStaleAfter, cfg.SyncSweepInterval)
	go func() {
		if err := sweeper.Start(backgroundCtx); err != nil && err != context.Canceled {
			logger.Error("Sync log sweeper failed", "error", err)
		}
	}()

	// Start sync log collector if metrics are enabled
	if cfg.MetricsEnabled {
		go func() {
			logger.Info("Starting sync log collector")
			metrics.StartSyncLogCollector(backgroundCtx, db, 15*time.Second)
		}()
	}

	// Start metrics server if enabled
	var metricsServer *http.Server
	if cfg.MetricsEnabled {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())

		metricsAddr := fmt.Sprintf("%s:%d", cfg.MetricsHost, cfg.MetricsPort)
		metricsServer = &http.Server{
			Addr:    metricsAddr,
			Handler: metricsMux,
		}

		go func() {
			logger.Info("Metrics server listening", "addr", metricsAddr)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("Metrics server failed", "error", err)
			}
		}()
	}

	// Start HTTP server in background
	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Stop taking requests first so no new syncs are submitted
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", "error", err)
	}

	if err := pool.Shutdown(shutdownCtx); err != nil {
		logger.Error("Background syncs did not finish before shutdown", "error", err)
	}

	backgroundCancel()

	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("Metrics server shutdown failed", "error", err)
		}
	}

	logger.Info("Server stopped")
}
