package status

import (
	"testing"
	"time"

	"github.com/marcus/rollcall/internal/db"
	"github.com/marcus/rollcall/internal/models"
	"github.com/marcus/rollcall/internal/syncerr"
)

type fixedOnline bool

func (f fixedOnline) IsOnline() bool { return bool(f) }

func event(id, student string, state models.SyncState) models.AttendanceEvent {
	return models.AttendanceEvent{
		LocalID:    id,
		StudentID:  student,
		ClassID:    "c-7a",
		Date:       "2026-03-02",
		Status:     models.StatusPresent,
		Method:     models.MethodRFID,
		CapturedAt: time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC),
		SyncState:  state,
	}
}

func TestSnapshot(t *testing.T) {
	database, err := db.Open(t.TempDir())
	if err != nil {
		t.Fatalf("db.Open: %v", err)
	}
	defer database.Close()

	failed := event("l-3", "s-3", models.SyncFailed)
	failed.ErrorKind = string(syncerr.KindServerRejection)
	failed.LastError = "unknown student"
	for _, ev := range []models.AttendanceEvent{
		event("l-1", "s-1", models.SyncPending),
		event("l-2", "s-2", models.SyncInFlight),
		failed,
		event("l-4", "s-4", models.SyncSynced),
	} {
		if _, err := database.Put(ev); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}
	synced := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	if err := database.UpdateSyncMetadata(models.SyncMetadata{LastSyncAt: &synced, LastPassAt: &synced}); err != nil {
		t.Fatalf("UpdateSyncMetadata: %v", err)
	}

	r := New(database, fixedOnline(true))
	snap, err := r.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.PendingCount != 3 || snap.InFlightCount != 1 || snap.FailedCount != 1 || snap.SyncedCount != 1 {
		t.Errorf("counts = %+v", snap)
	}
	if !snap.Online {
		t.Error("expected online")
	}
	if snap.LastSyncAt == nil || !snap.LastSyncAt.Equal(synced) {
		t.Errorf("LastSyncAt = %v", snap.LastSyncAt)
	}
	if len(snap.Problems) != 1 {
		t.Fatalf("Problems = %+v", snap.Problems)
	}
	p := snap.Problems[0]
	if p.LocalID != "l-3" || p.Kind != syncerr.KindServerRejection || p.Message != "unknown student" {
		t.Errorf("problem = %+v", p)
	}

	if n, _ := r.PendingCount(); n != 3 {
		t.Errorf("PendingCount = %d", n)
	}
	if n, _ := r.FailedCount(); n != 1 {
		t.Errorf("FailedCount = %d", n)
	}
}

func TestReadsAreLive(t *testing.T) {
	database, err := db.Open(t.TempDir())
	if err != nil {
		t.Fatalf("db.Open: %v", err)
	}
	defer database.Close()

	r := New(database, nil)
	if r.IsOnline() {
		t.Error("nil observer should read as offline")
	}
	if ts, err := r.LastSyncTimestamp(); err != nil || ts != nil {
		t.Errorf("LastSyncTimestamp = %v, %v", ts, err)
	}
	if n, _ := r.PendingCount(); n != 0 {
		t.Fatalf("PendingCount = %d", n)
	}

	database.Put(event("l-1", "s-1", models.SyncPending))
	if n, _ := r.PendingCount(); n != 1 {
		t.Errorf("PendingCount after put = %d, want 1", n)
	}
}
