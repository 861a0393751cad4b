package serverdb

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Rejection codes.
const (
	CodeUnknownStudent = "unknown_student"
	CodeInvalid        = "invalid"
)

// Record is one submitted attendance mark.
type Record struct {
	LocalID    string
	StudentID  string
	TeacherID  string
	ClassID    string
	Subject    string
	Period     string
	Date       string
	Status     string
	Method     string
	CapturedAt time.Time
}

// Rejection is a record the ledger refused.
type Rejection struct {
	LocalID string
	Code    string
	Reason  string
}

// BatchResult is the ledger's verdict on one batch.
type BatchResult struct {
	Accepted   []string
	Duplicates int // accepted because the local id was already recorded
	Rejected   []Rejection
}

// Mark is the current server-side attendance for one slot.
type Mark struct {
	StudentID  string
	Date       string
	Period     string
	ClassID    string
	TeacherID  string
	Subject    string
	Status     string
	Method     string
	CapturedAt time.Time
	LocalID    string
	DeviceID   string
	ReceivedAt time.Time
}

// SubmitBatch applies a batch in one transaction. A local id seen before is
// acknowledged without being applied again. Within a slot the mark with the
// later capture time wins, whatever order they arrive in.
func (db *ServerDB) SubmitBatch(ctx context.Context, deviceID string, recs []Record) (BatchResult, error) {
	var res BatchResult
	now := formatTime(time.Now())

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return res, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, rec := range recs {
		seen, err := db.exists(ctx, tx, `SELECT 1 FROM submissions WHERE local_id = ?`, rec.LocalID)
		if err != nil {
			return res, fmt.Errorf("check submission %s: %w", rec.LocalID, err)
		}
		if seen {
			res.Accepted = append(res.Accepted, rec.LocalID)
			res.Duplicates++
			continue
		}

		known, err := db.exists(ctx, tx, `SELECT 1 FROM students WHERE id = ?`, rec.StudentID)
		if err != nil {
			return res, fmt.Errorf("check student %s: %w", rec.StudentID, err)
		}
		if !known {
			res.Rejected = append(res.Rejected, Rejection{
				LocalID: rec.LocalID,
				Code:    CodeUnknownStudent,
				Reason:  fmt.Sprintf("unknown student %q", rec.StudentID),
			})
			continue
		}

		if _, err := tx.ExecContext(ctx, db.rebind(`
			INSERT INTO attendance (student_id, date, period, class_id, teacher_id, subject, status, method,
				captured_at, local_id, device_id, received_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (student_id, date, period) DO UPDATE SET
				class_id = excluded.class_id,
				teacher_id = excluded.teacher_id,
				subject = excluded.subject,
				status = excluded.status,
				method = excluded.method,
				captured_at = excluded.captured_at,
				local_id = excluded.local_id,
				device_id = excluded.device_id,
				received_at = excluded.received_at
			WHERE excluded.captured_at > attendance.captured_at
		`), rec.StudentID, rec.Date, rec.Period, rec.ClassID, rec.TeacherID, rec.Subject, rec.Status, rec.Method,
			formatTime(rec.CapturedAt), rec.LocalID, deviceID, now); err != nil {
			return res, fmt.Errorf("upsert attendance %s: %w", rec.LocalID, err)
		}
		if _, err := tx.ExecContext(ctx, db.rebind(`
			INSERT INTO submissions (local_id, device_id, student_id, received_at) VALUES (?, ?, ?, ?)
		`), rec.LocalID, deviceID, rec.StudentID, now); err != nil {
			return res, fmt.Errorf("record submission %s: %w", rec.LocalID, err)
		}
		res.Accepted = append(res.Accepted, rec.LocalID)
	}

	if err := tx.Commit(); err != nil {
		return res, fmt.Errorf("commit: %w", err)
	}
	return res, nil
}

func (db *ServerDB) exists(ctx context.Context, q execer, query string, args ...any) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx, db.rebind(query), args...).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

// ListAttendance returns the marks for a class on a date. An empty classID
// lists every class.
func (db *ServerDB) ListAttendance(ctx context.Context, classID, date string) ([]Mark, error) {
	query := `SELECT student_id, date, period, class_id, teacher_id, subject, status, method,
		captured_at, local_id, device_id, received_at FROM attendance WHERE date = ?`
	args := []any{date}
	if classID != "" {
		query += ` AND class_id = ?`
		args = append(args, classID)
	}
	query += ` ORDER BY student_id, period`

	rows, err := db.conn.QueryContext(ctx, db.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var marks []Mark
	for rows.Next() {
		var m Mark
		var captured, received string
		if err := rows.Scan(&m.StudentID, &m.Date, &m.Period, &m.ClassID, &m.TeacherID, &m.Subject,
			&m.Status, &m.Method, &captured, &m.LocalID, &m.DeviceID, &received); err != nil {
			return nil, err
		}
		m.CapturedAt = parseTime(captured)
		m.ReceivedAt = parseTime(received)
		marks = append(marks, m)
	}
	return marks, rows.Err()
}

// CountSubmissions returns how many distinct local ids were accepted.
func (db *ServerDB) CountSubmissions(ctx context.Context) (int, error) {
	var n int
	err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM submissions`).Scan(&n)
	return n, err
}
