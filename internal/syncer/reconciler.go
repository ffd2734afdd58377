package syncer

import (
	"context"
	"fmt"
	"log/slog"

	"strava-mirror/internal/database"
	"strava-mirror/internal/strava"
)

// ActivityStore is the storage the reconciler writes through. Both
// *database.DB and the *database.Queries handed out by InTx satisfy it.
type ActivityStore interface {
	GetActivity(ctx context.Context, activityID int64) (*database.Activity, error)
	CreateActivity(ctx context.Context, a *database.Activity) error
	UpdateActivity(ctx context.Context, a *database.Activity) error
}

// Counts summarises one reconcile pass. New + Updated == Total.
type Counts struct {
	Total   int `json:"totalActivities"`
	New     int `json:"newActivities"`
	Updated int `json:"updatedActivities"`
}

// Reconciler writes fetched activities into storage, classifying each as
// new or updated
type Reconciler struct {
	logger *slog.Logger
}

func NewReconciler() *Reconciler {
	return &Reconciler{logger: slog.Default()}
}

// Reconcile inserts activities not yet stored and overwrites the stored
// fields of those that are. Running it twice over the same input leaves the
// store unchanged apart from updated_at.
func (r *Reconciler) Reconcile(ctx context.Context, store ActivityStore, athleteID int64, activities []strava.Activity) (Counts, error) {
	var counts Counts

	for i := range activities {
		record := activityRecord(athleteID, &activities[i])

		existing, err := store.GetActivity(ctx, record.ID)
		if err != nil {
			return counts, fmt.Errorf("failed to look up activity %d: %w", record.ID, err)
		}

		if existing == nil {
			if err := store.CreateActivity(ctx, record); err != nil {
				return counts, err
			}
			counts.New++
		} else {
			if err := store.UpdateActivity(ctx, record); err != nil {
				return counts, fmt.Errorf("failed to update activity %d: %w", record.ID, err)
			}
			counts.Updated++
		}
		counts.Total++
	}

	r.logger.Debug("Reconciled activities",
		"athlete_id", athleteID,
		"total", counts.Total,
		"new", counts.New,
		"updated", counts.Updated,
	)

	return counts, nil
}
