package serverdb

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/marcus/rollcall/internal/models"
)

func newTestDB(t *testing.T) *ServerDB {
	t.Helper()
	conn, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	conn.SetMaxOpenConns(1)
	db, err := New(conn, DialectSQLite)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	err = db.ImportRoster(context.Background(),
		[]models.Class{{ID: "c-7a", Name: "7A", TeacherID: "t-1"}},
		[]models.Student{
			{ID: "s-1", ClassID: "c-7a", Name: "Ada", RollNumber: "01"},
			{ID: "s-2", ClassID: "c-7a", Name: "Grace", RollNumber: "02"},
		})
	if err != nil {
		t.Fatalf("ImportRoster: %v", err)
	}
	return db
}

var morning = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

func rec(localID, student, status string, captured time.Time) Record {
	return Record{
		LocalID: localID, StudentID: student, TeacherID: "t-1", ClassID: "c-7a",
		Date: "2026-03-02", Status: status, Method: "manual", CapturedAt: captured,
	}
}

func TestSubmitBatch(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	res, err := db.SubmitBatch(ctx, "dev-1", []Record{
		rec("l-1", "s-1", "present", morning),
		rec("l-2", "s-404", "present", morning),
	})
	if err != nil {
		t.Fatalf("SubmitBatch: %v", err)
	}
	if len(res.Accepted) != 1 || res.Accepted[0] != "l-1" {
		t.Errorf("Accepted = %v", res.Accepted)
	}
	if len(res.Rejected) != 1 || res.Rejected[0].Code != CodeUnknownStudent {
		t.Errorf("Rejected = %+v", res.Rejected)
	}

	marks, err := db.ListAttendance(ctx, "c-7a", "2026-03-02")
	if err != nil {
		t.Fatalf("ListAttendance: %v", err)
	}
	if len(marks) != 1 || marks[0].LocalID != "l-1" || marks[0].DeviceID != "dev-1" {
		t.Errorf("marks = %+v", marks)
	}
}

func TestResubmissionIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	batch := []Record{rec("l-1", "s-1", "present", morning), rec("l-2", "s-2", "absent", morning)}

	for i := range 3 {
		res, err := db.SubmitBatch(ctx, "dev-1", batch)
		if err != nil {
			t.Fatalf("SubmitBatch #%d: %v", i, err)
		}
		if len(res.Accepted) != 2 {
			t.Fatalf("submit #%d accepted %v", i, res.Accepted)
		}
		if i > 0 && res.Duplicates != 2 {
			t.Errorf("submit #%d duplicates = %d, want 2", i, res.Duplicates)
		}
	}

	n, err := db.CountSubmissions(ctx)
	if err != nil || n != 2 {
		t.Errorf("CountSubmissions = %d, %v", n, err)
	}
	marks, _ := db.ListAttendance(ctx, "", "2026-03-02")
	if len(marks) != 2 {
		t.Errorf("expected 2 marks, got %d", len(marks))
	}
}

func TestLaterCaptureWinsSlot(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	// The correction arrives first, the stale mark second.
	if _, err := db.SubmitBatch(ctx, "dev-1", []Record{rec("l-new", "s-1", "absent", morning.Add(time.Hour))}); err != nil {
		t.Fatal(err)
	}
	if _, err := db.SubmitBatch(ctx, "dev-2", []Record{rec("l-old", "s-1", "present", morning)}); err != nil {
		t.Fatal(err)
	}

	marks, _ := db.ListAttendance(ctx, "c-7a", "2026-03-02")
	if len(marks) != 1 {
		t.Fatalf("marks = %+v", marks)
	}
	if marks[0].Status != "absent" || marks[0].LocalID != "l-new" {
		t.Errorf("stale mark overwrote newer one: %+v", marks[0])
	}
}

func TestRoster(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	students, classes, err := db.Roster(ctx, "c-7a")
	if err != nil {
		t.Fatalf("Roster: %v", err)
	}
	if len(students) != 2 || len(classes) != 1 {
		t.Fatalf("got %d students, %d classes", len(students), len(classes))
	}
	if students[0].Name != "Ada" {
		t.Errorf("ordering by roll number: %+v", students)
	}

	students, _, _ = db.Roster(ctx, "c-none")
	if students == nil || len(students) != 0 {
		t.Errorf("unknown class should give an empty, non-nil list: %v", students)
	}
}

func TestRebind(t *testing.T) {
	db := &ServerDB{dialect: DialectPostgres}
	got := db.rebind(`SELECT 1 FROM t WHERE a = ? AND b = ?`)
	if got != `SELECT 1 FROM t WHERE a = $1 AND b = $2` {
		t.Errorf("rebind = %q", got)
	}
	db.dialect = DialectSQLite
	if q := `x = ?`; db.rebind(q) != q {
		t.Error("sqlite queries should be unchanged")
	}
}
