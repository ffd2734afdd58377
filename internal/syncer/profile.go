package syncer

import (
	"context"
	"fmt"

	"strava-mirror/internal/database"
	"strava-mirror/internal/strava"
)

// ProfileStore is the storage behind ProfileRepository
type ProfileStore interface {
	UpsertAthlete(ctx context.Context, a *database.Athlete) error
	UpsertStats(ctx context.Context, s *database.Stats) error
}

// ProfileRepository persists athlete profiles and stats snapshots fetched
// from Strava
type ProfileRepository struct {
	store ProfileStore
}

func NewProfileRepository(store ProfileStore) *ProfileRepository {
	return &ProfileRepository{store: store}
}

// SaveAthlete creates or refreshes the athlete row from the API profile
func (p *ProfileRepository) SaveAthlete(ctx context.Context, athlete *strava.Athlete) (*database.Athlete, error) {
	record := athleteRecord(athlete)
	if err := p.store.UpsertAthlete(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to save athlete %d: %w", athlete.ID, err)
	}
	return record, nil
}

// SaveStats replaces the athlete's stats snapshot
func (p *ProfileRepository) SaveStats(ctx context.Context, athleteID int64, stats *strava.Stats) error {
	if err := p.store.UpsertStats(ctx, statsRecord(athleteID, stats)); err != nil {
		return fmt.Errorf("failed to save stats for athlete %d: %w", athleteID, err)
	}
	return nil
}
