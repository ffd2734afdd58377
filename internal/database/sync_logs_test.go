package database

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSyncLogCompletesOnce(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	createTestAthlete(t, db, 12345)

	log, err := db.CreateSyncLog(ctx, 12345, SyncTypeFull)
	if err != nil {
		t.Fatalf("Failed to create sync log: %v", err)
	}
	if log.ID == 0 {
		t.Fatal("Expected non-zero sync log id")
	}
	if log.Status != SyncStatusStarted {
		t.Errorf("Expected status started, got %s", log.Status)
	}

	if err := db.CompleteSyncLog(ctx, log.ID, 5, 3, 2); err != nil {
		t.Fatalf("Failed to complete sync log: %v", err)
	}

	retrieved, err := db.GetSyncLog(ctx, log.ID)
	if err != nil {
		t.Fatalf("Failed to get sync log: %v", err)
	}
	if retrieved.Status != SyncStatusCompleted {
		t.Errorf("Expected status completed, got %s", retrieved.Status)
	}
	if retrieved.ActivitiesSynced != 5 || retrieved.NewActivities != 3 || retrieved.UpdatedActivities != 2 {
		t.Errorf("Unexpected counts: %+v", retrieved)
	}
	if retrieved.CompletedAt == nil {
		t.Error("Expected completed_at to be set")
	}

	// A finished log cannot transition again
	if err := db.FailSyncLog(ctx, log.ID, "late failure"); !errors.Is(err, ErrSyncLogNotStarted) {
		t.Errorf("Expected ErrSyncLogNotStarted, got %v", err)
	}
	if err := db.CompleteSyncLog(ctx, log.ID, 0, 0, 0); !errors.Is(err, ErrSyncLogNotStarted) {
		t.Errorf("Expected ErrSyncLogNotStarted, got %v", err)
	}

	retrieved, _ = db.GetSyncLog(ctx, log.ID)
	if retrieved.Status != SyncStatusCompleted || retrieved.ErrorMessage != nil {
		t.Errorf("Expected log to remain completed, got %+v", retrieved)
	}
}

func TestSyncLogFails(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	createTestAthlete(t, db, 12345)

	log, _ := db.CreateSyncLog(ctx, 12345, SyncTypeIncremental)
	if err := db.FailSyncLog(ctx, log.ID, "upstream 500"); err != nil {
		t.Fatalf("Failed to fail sync log: %v", err)
	}

	retrieved, _ := db.GetSyncLog(ctx, log.ID)
	if retrieved.Status != SyncStatusFailed {
		t.Errorf("Expected status failed, got %s", retrieved.Status)
	}
	if retrieved.ErrorMessage == nil || *retrieved.ErrorMessage != "upstream 500" {
		t.Errorf("Expected error message 'upstream 500', got %v", retrieved.ErrorMessage)
	}
	if retrieved.CompletedAt == nil {
		t.Error("Expected completed_at to be set on failure")
	}
}

func TestListSyncLogsNewestFirst(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	createTestAthlete(t, db, 12345)

	var ids []int64
	for i := 0; i < 3; i++ {
		log, err := db.CreateSyncLog(ctx, 12345, SyncTypeIncremental)
		if err != nil {
			t.Fatalf("Failed to create sync log: %v", err)
		}
		ids = append(ids, log.ID)
	}

	logs, err := db.ListSyncLogs(ctx, 12345, 2)
	if err != nil {
		t.Fatalf("Failed to list sync logs: %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("Expected 2 logs, got %d", len(logs))
	}
	if logs[0].ID != ids[2] || logs[1].ID != ids[1] {
		t.Errorf("Expected newest first, got %d then %d", logs[0].ID, logs[1].ID)
	}
}

func TestSweepStaleSyncLogs(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	createTestAthlete(t, db, 12345)

	stale, _ := db.CreateSyncLog(ctx, 12345, SyncTypeFull)
	done, _ := db.CreateSyncLog(ctx, 12345, SyncTypeFull)
	if err := db.CompleteSyncLog(ctx, done.ID, 0, 0, 0); err != nil {
		t.Fatalf("Failed to complete sync log: %v", err)
	}

	count, err := db.CountSyncLogsByStatus(ctx, SyncStatusStarted)
	if err != nil {
		t.Fatalf("Failed to count sync logs: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 started log, got %d", count)
	}

	// Cutoff in the past leaves the fresh log alone
	swept, err := db.SweepStaleSyncLogs(ctx, time.Now().Add(-time.Hour), "abandoned", nil)
	if err != nil {
		t.Fatalf("Failed to sweep: %v", err)
	}
	if swept != 0 {
		t.Errorf("Expected nothing swept, got %d", swept)
	}

	swept, err = db.SweepStaleSyncLogs(ctx, time.Now().Add(time.Hour), "abandoned", nil)
	if err != nil {
		t.Fatalf("Failed to sweep: %v", err)
	}
	if swept != 1 {
		t.Errorf("Expected 1 swept log, got %d", swept)
	}

	retrieved, _ := db.GetSyncLog(ctx, stale.ID)
	if retrieved.Status != SyncStatusFailed {
		t.Errorf("Expected stale log to be failed, got %s", retrieved.Status)
	}
	retrieved, _ = db.GetSyncLog(ctx, done.ID)
	if retrieved.Status != SyncStatusCompleted {
		t.Errorf("Expected completed log untouched, got %s", retrieved.Status)
	}
}

func TestSweepSkipsRunningSyncLogs(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	createTestAthlete(t, db, 12345)

	running, _ := db.CreateSyncLog(ctx, 12345, SyncTypeFull)
	abandoned, _ := db.CreateSyncLog(ctx, 12345, SyncTypeIncremental)

	swept, err := db.SweepStaleSyncLogs(ctx, time.Now().Add(time.Hour), "abandoned", []int64{running.ID})
	if err != nil {
		t.Fatalf("Failed to sweep: %v", err)
	}
	if swept != 1 {
		t.Errorf("Expected 1 swept log, got %d", swept)
	}

	retrieved, _ := db.GetSyncLog(ctx, running.ID)
	if retrieved.Status != SyncStatusStarted {
		t.Errorf("Expected running log to stay started, got %s", retrieved.Status)
	}
	retrieved, _ = db.GetSyncLog(ctx, abandoned.ID)
	if retrieved.Status != SyncStatusFailed {
		t.Errorf("Expected abandoned log to be failed, got %s", retrieved.Status)
	}
}
