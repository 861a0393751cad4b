package db

import (
	"fmt"
	"testing"
	"time"

	"github.com/marcus/rollcall/internal/models"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

var baseCapture = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

func testEvent(n int, studentID string) models.AttendanceEvent {
	return models.AttendanceEvent{
		LocalID:    fmt.Sprintf("local-%03d", n),
		StudentID:  studentID,
		TeacherID:  "t-1",
		ClassID:    "c-7a",
		Date:       "2026-03-02",
		Status:     models.StatusPresent,
		Method:     models.MethodManual,
		CapturedAt: baseCapture.Add(time.Duration(n) * time.Second),
		SyncState:  models.SyncPending,
	}
}

func mustPut(t *testing.T, db *DB, ev models.AttendanceEvent) {
	t.Helper()
	if _, err := db.Put(ev); err != nil {
		t.Fatalf("Put(%s): %v", ev.LocalID, err)
	}
}
