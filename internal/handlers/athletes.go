package handlers

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"time"

	"strava-mirror/internal/database"
	"strava-mirror/internal/syncer"
	"strava-mirror/internal/tokens"
)

const (
	defaultActivityLimit = 30
	maxActivityLimit     = 200

	defaultHistoryLimit = 10
	maxHistoryLimit     = 100

	dateLayout = "2006-01-02"
)

// IncrementalSyncer refreshes a connected athlete on demand
type IncrementalSyncer interface {
	IncrementalSync(ctx context.Context, athleteID int64) (*syncer.Result, error)
}

// Revoker revokes an access token at Strava
type Revoker interface {
	Deauthorize(ctx context.Context, accessToken string) error
}

// AthleteHandler serves the mirrored data of connected athletes
type AthleteHandler struct {
	db      *database.DB
	syncer  IncrementalSyncer
	revoker Revoker
	logger  *slog.Logger
}

// NewAthleteHandler creates a new athlete handler
func NewAthleteHandler(db *database.DB, incrementalSyncer IncrementalSyncer, revoker Revoker) *AthleteHandler {
	return &AthleteHandler{
		db:      db,
		syncer:  incrementalSyncer,
		revoker: revoker,
		logger:  slog.Default(),
	}
}

// HandleProfile returns the stored athlete profile
func (h *AthleteHandler) HandleProfile(w http.ResponseWriter, r *http.Request) {
	athleteID, err := athleteIDParam(r)
	if err != nil {
		writeRequestError(w, err)
		return
	}

	athlete, err := h.db.GetAthlete(r.Context(), athleteID)
	if err != nil {
		h.logger.Error("Failed to get athlete", "athlete_id", athleteID, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if athlete == nil {
		writeError(w, http.StatusNotFound, "Athlete not found")
		return
	}

	writeData(w, athlete)
}

// HandleActivities returns a page of stored activities, newest first
func (h *AthleteHandler) HandleActivities(w http.ResponseWriter, r *http.Request) {
	athleteID, err := athleteIDParam(r)
	if err != nil {
		writeRequestError(w, err)
		return
	}

	page, limit, filter, err := activityQuery(r)
	if err != nil {
		writeRequestError(w, err)
		return
	}

	activities, err := h.db.ListActivities(r.Context(), athleteID, filter)
	if err != nil {
		h.logger.Error("Failed to list activities", "athlete_id", athleteID, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	total, err := h.db.CountActivities(r.Context(), athleteID, filter)
	if err != nil {
		h.logger.Error("Failed to count activities", "athlete_id", athleteID, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, response{
		Success: true,
		Data:    activities,
		Pagination: &pagination{
			Page:  page,
			Limit: limit,
			Total: total,
			Pages: (total + limit - 1) / limit,
		},
	})
}

// activityQuery parses paging and filter parameters. Filters combine with
// AND and both date bounds are inclusive.
func activityQuery(r *http.Request) (page, limit int, filter database.ActivityFilter, err error) {
	page, err = intParam(r, "page", 1)
	if err != nil {
		return
	}
	limit, err = intParam(r, "limit", defaultActivityLimit)
	if err != nil {
		return
	}
	limit = min(limit, maxActivityLimit)
	if page > math.MaxInt/limit {
		err = invalidParam("page")
		return
	}

	query := r.URL.Query()
	filter = database.ActivityFilter{
		Type:   query.Get("type"),
		Limit:  limit,
		Offset: (page - 1) * limit,
	}

	if raw := query.Get("startDate"); raw != "" {
		start, _, perr := parseDate(raw)
		if perr != nil {
			err = invalidParam("startDate")
			return
		}
		filter.After = &start
	}

	if raw := query.Get("endDate"); raw != "" {
		end, dateOnly, perr := parseDate(raw)
		if perr != nil {
			err = invalidParam("endDate")
			return
		}
		// A bare date includes the whole day
		if dateOnly {
			end = end.Add(24*time.Hour - time.Second)
		}
		filter.Before = &end
	}

	return page, limit, filter, nil
}

// parseDate accepts RFC 3339 timestamps or YYYY-MM-DD dates in UTC
func parseDate(raw string) (t time.Time, dateOnly bool, err error) {
	if t, err = time.Parse(time.RFC3339, raw); err == nil {
		return t, false, nil
	}
	if t, err = time.Parse(dateLayout, raw); err == nil {
		return t, true, nil
	}
	return time.Time{}, false, err
}

// HandleStats returns the stored stats snapshot
func (h *AthleteHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	athleteID, err := athleteIDParam(r)
	if err != nil {
		writeRequestError(w, err)
		return
	}

	stats, err := h.db.GetStats(r.Context(), athleteID)
	if err != nil {
		h.logger.Error("Failed to get stats", "athlete_id", athleteID, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if stats == nil {
		writeError(w, http.StatusNotFound, "Stats not found")
		return
	}

	writeData(w, stats)
}

// HandleSync runs an incremental sync and waits for it to finish. A sync
// refused for Strava quota answers 429.
func (h *AthleteHandler) HandleSync(w http.ResponseWriter, r *http.Request) {
	athleteID, err := athleteIDParam(r)
	if err != nil {
		writeRequestError(w, err)
		return
	}

	result, err := h.syncer.IncrementalSync(r.Context(), athleteID)
	if errors.Is(err, syncer.ErrAthleteNotFound) {
		writeError(w, http.StatusNotFound, "Athlete not found")
		return
	}
	if errors.Is(err, syncer.ErrRateLimited) {
		h.logger.Warn("Sync rate limited", "athlete_id", athleteID, "error", err)
		writeError(w, http.StatusTooManyRequests, err.Error())
		return
	}
	if err != nil {
		h.logger.Error("Sync failed", "athlete_id", athleteID, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeData(w, result.Counts)
}

// HandleSyncHistory returns the athlete's recent sync logs, newest first
func (h *AthleteHandler) HandleSyncHistory(w http.ResponseWriter, r *http.Request) {
	athleteID, err := athleteIDParam(r)
	if err != nil {
		writeRequestError(w, err)
		return
	}

	limit, err := intParam(r, "limit", defaultHistoryLimit)
	if err != nil {
		writeRequestError(w, err)
		return
	}
	limit = min(limit, maxHistoryLimit)

	logs, err := h.db.ListSyncLogs(r.Context(), athleteID, limit)
	if err != nil {
		h.logger.Error("Failed to list sync logs", "athlete_id", athleteID, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeData(w, logs)
}

// HandleDisconnect revokes the athlete's token at Strava, when there is one,
// and deletes everything stored for the athlete. A failed revoke does not
// stop the local delete.
func (h *AthleteHandler) HandleDisconnect(w http.ResponseWriter, r *http.Request) {
	athleteID, err := athleteIDParam(r)
	if err != nil {
		writeRequestError(w, err)
		return
	}
	ctx := r.Context()

	token, err := h.db.GetToken(ctx, athleteID)
	if err != nil {
		h.logger.Error("Failed to get token", "athlete_id", athleteID, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if token != nil {
		if err := h.revoker.Deauthorize(ctx, token.AccessToken); err != nil {
			h.logger.Warn("Failed to revoke token, deleting local data anyway", "athlete_id", athleteID, "error", err)
		}
	}

	err = h.db.InTx(ctx, func(q *database.Queries) error {
		if err := tokens.NewStore(q, nil).Delete(ctx, athleteID); err != nil {
			return err
		}
		return q.DeleteAthleteData(ctx, athleteID)
	})
	if err != nil {
		h.logger.Error("Failed to delete athlete data", "athlete_id", athleteID, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.logger.Info("Athlete disconnected", "athlete_id", athleteID, "had_token", token != nil)
	writeJSON(w, http.StatusOK, response{Success: true, Message: "Strava account disconnected"})
}
