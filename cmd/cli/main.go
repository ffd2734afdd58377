package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"strava-mirror/internal/config"
	"strava-mirror/internal/database"
	"strava-mirror/internal/strava"
	"strava-mirror/internal/syncer"
	"strava-mirror/internal/tokens"
	"strava-mirror/internal/worker"
)

func main() {
	// Disable structured logging for CLI
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError, // Only show errors
	})))

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	if command == "help" {
		printUsage()
		return
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	client := strava.NewClient(cfg)

	if command == "auth-url" {
		fmt.Println(client.AuthorizationURL())
		return
	}

	// Open database
	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to migrate database: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()

	switch command {
	case "sync":
		handleSync(ctx, db, client)
	case "activity":
		handleActivity(ctx, db, client)
	case "history":
		handleHistory(ctx, db)
	case "sweep":
		handleSweep(ctx, db, cfg)
	default:
		fmt.Fprintf(os.Stderr, "Error: Unknown command '%s'\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`strava-mirror CLI - Athlete Mirror Maintenance

Usage:
  cli <command> [options]

Commands:
  auth-url                 Print the Strava authorization URL
  sync <athlete_id>        Run an incremental sync for a connected athlete
  activity <athlete_id> <activity_id>
                           Refetch one stored activity in full detail
  history <athlete_id> [n] Show the n most recent sync logs (default: 10)
  sweep                    Mark abandoned in-progress sync logs as failed
  help                     Show this help message

Examples:
  cli auth-url
  cli sync 12345
  cli activity 12345 987654321
  cli history 12345 5
  cli sweep

Environment Variables Required:
  STRAVA_CLIENT_ID       - Strava application client ID
  STRAVA_CLIENT_SECRET   - Strava application client secret
  STRAVA_REDIRECT_URI    - OAuth callback URL registered with Strava
  JWT_SECRET             - Secret used to sign session tokens
  DATABASE_PATH          - SQLite database file (default: ./data.db)`)
}

func athleteIDArg(usage string) int64 {
	if len(os.Args) < 3 {
		fmt.Fprintln(os.Stderr, "Error: Athlete ID required")
		fmt.Fprintf(os.Stderr, "Usage: %s\n", usage)
		os.Exit(1)
	}

	athleteID, err := strconv.ParseInt(os.Args[2], 10, 64)
	if err != nil || athleteID <= 0 {
		fmt.Fprintf(os.Stderr, "Error: Invalid athlete ID: %s\n", os.Args[2])
		os.Exit(1)
	}
	return athleteID
}

func handleSync(ctx context.Context, db *database.DB, client *strava.Client) {
	athleteID := athleteIDArg("cli sync <athlete_id>")

	orchestrator := syncer.NewOrchestrator(db, client, tokens.NewStore(db, client))

	fmt.Printf("Syncing athlete %d...\n", athleteID)

	result, err := orchestrator.IncrementalSync(ctx, athleteID)
	if err != nil {
		switch {
		case errors.Is(err, syncer.ErrAthleteNotFound):
			fmt.Fprintf(os.Stderr, "Error: Athlete %d is not connected\n", athleteID)
		case errors.Is(err, tokens.ErrTokenNotFound):
			fmt.Fprintf(os.Stderr, "Error: No token stored for athlete %d, re-authorize with Strava\n", athleteID)
		case errors.Is(err, syncer.ErrReauthorizationRequired), errors.Is(err, syncer.ErrRateLimited):
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		default:
			var httpErr *strava.HTTPError
			if errors.As(err, &httpErr) {
				fmt.Fprintf(os.Stderr, "Error: Strava request failed (HTTP %d)\n", httpErr.StatusCode)
				fmt.Fprintf(os.Stderr, "Response: %s\n", httpErr.Body)
			} else {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			}
		}
		os.Exit(1)
	}

	fmt.Println("✓ Sync completed successfully!")
	fmt.Printf("  Sync Log ID: %d\n", result.SyncLogID)
	fmt.Printf("  Activities: %d\n", result.Total)
	fmt.Printf("  New: %d\n", result.New)
	fmt.Printf("  Updated: %d\n", result.Updated)
}

func handleActivity(ctx context.Context, db *database.DB, client *strava.Client) {
	usage := "cli activity <athlete_id> <activity_id>"
	athleteID := athleteIDArg(usage)

	if len(os.Args) < 4 {
		fmt.Fprintln(os.Stderr, "Error: Activity ID required")
		fmt.Fprintf(os.Stderr, "Usage: %s\n", usage)
		os.Exit(1)
	}
	activityID, err := strconv.ParseInt(os.Args[3], 10, 64)
	if err != nil || activityID <= 0 {
		fmt.Fprintf(os.Stderr, "Error: Invalid activity ID: %s\n", os.Args[3])
		os.Exit(1)
	}

	orchestrator := syncer.NewOrchestrator(db, client, tokens.NewStore(db, client))

	if err := orchestrator.RefreshActivity(ctx, athleteID, activityID); err != nil {
		switch {
		case errors.Is(err, syncer.ErrActivityNotFound):
			fmt.Fprintf(os.Stderr, "Error: Activity %d not found for athlete %d\n", activityID, athleteID)
		case errors.Is(err, tokens.ErrTokenNotFound):
			fmt.Fprintf(os.Stderr, "Error: No token stored for athlete %d, re-authorize with Strava\n", athleteID)
		default:
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}

	activity, err := db.GetActivity(ctx, activityID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to read activity: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("✓ Activity refreshed")
	fmt.Printf("  ID: %d\n", activity.ID)
	fmt.Printf("  Name: %s\n", activity.Name)
	fmt.Printf("  Type: %s\n", activity.Type)
	fmt.Printf("  Start: %s\n", activity.StartDate.Format("2006-01-02 15:04:05"))
	fmt.Printf("  Distance: %.1f m\n", activity.Distance)
}

func handleHistory(ctx context.Context, db *database.DB) {
	athleteID := athleteIDArg("cli history <athlete_id> [limit]")

	limit := 10
	if len(os.Args) > 3 {
		n, err := strconv.Atoi(os.Args[3])
		if err != nil || n < 1 {
			fmt.Fprintf(os.Stderr, "Error: Invalid limit: %s\n", os.Args[3])
			os.Exit(1)
		}
		limit = n
	}

	logs, err := db.ListSyncLogs(ctx, athleteID, limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to list sync logs: %v\n", err)
		os.Exit(1)
	}

	if len(logs) == 0 {
		fmt.Printf("No syncs recorded for athlete %d.\n", athleteID)
		return
	}

	fmt.Printf("\nFound %d sync log(s):\n\n", len(logs))
	for _, l := range logs {
		fmt.Printf("ID: %d\n", l.ID)
		fmt.Printf("  Type: %s\n", l.SyncType)
		fmt.Printf("  Status: %s\n", l.Status)
		fmt.Printf("  Started: %s\n", l.StartedAt.Format("2006-01-02 15:04:05"))
		if l.CompletedAt != nil {
			fmt.Printf("  Completed: %s\n", l.CompletedAt.Format("2006-01-02 15:04:05"))
		}
		if l.Status == database.SyncStatusCompleted {
			fmt.Printf("  Activities: %d (%d new, %d updated)\n", l.ActivitiesSynced, l.NewActivities, l.UpdatedActivities)
		}
		if l.ErrorMessage != nil {
			fmt.Printf("  Error: %s\n", *l.ErrorMessage)
		}
		fmt.Println()
	}
}

func handleSweep(ctx context.Context, db *database.DB, cfg *config.Config) {
	// Runs in a server process are not visible from here
	sweeper := worker.NewSweeper(db, nil, cfg.SyncLogStaleAfter, cfg.SyncSweepInterval)

	swept, err := sweeper.Sweep(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to sweep sync logs: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("✓ Marked %d abandoned sync log(s) as failed\n", swept)
}
