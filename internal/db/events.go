package db

import (
	"database/sql"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/marcus/rollcall/internal/models"
	"github.com/marcus/rollcall/internal/syncerr"
)

const eventColumns = `local_id, student_id, teacher_id, class_id, subject, period, date,
	status, method, captured_at, sync_state, attempts, error_kind, last_error`

// maxHistoryRows bounds the sync_history table.
const maxHistoryRows = 10000

type rowScanner interface {
	Scan(dest ...any) error
}

type querier interface {
	Query(query string, args ...any) (*sql.Rows, error)
}

func scanEvent(s rowScanner) (models.AttendanceEvent, error) {
	var ev models.AttendanceEvent
	var status, method, state, captured string
	err := s.Scan(&ev.LocalID, &ev.StudentID, &ev.TeacherID, &ev.ClassID, &ev.Subject, &ev.Period, &ev.Date,
		&status, &method, &captured, &state, &ev.Attempts, &ev.ErrorKind, &ev.LastError)
	if err != nil {
		return ev, err
	}
	ev.Status = models.Status(status)
	ev.Method = models.Method(method)
	ev.SyncState = models.SyncState(state)
	if ev.CapturedAt, err = parseTime(captured); err != nil {
		return ev, fmt.Errorf("parse captured_at for %s: %w", ev.LocalID, err)
	}
	return ev, nil
}

// queryEvents drains the result set before returning; with a single
// connection an open cursor would block every other statement.
func queryEvents(q querier, query string, args ...any) ([]models.AttendanceEvent, error) {
	rows, err := q.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []models.AttendanceEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func activeStateArgs() []any {
	args := make([]any, len(models.ActiveStates))
	for i, s := range models.ActiveStates {
		args[i] = string(s)
	}
	return args
}

func stringArgs(ids []string) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

// Put stores ev, inserting or updating by local id. Any other record that
// occupies the same (student, date, period) slot is deleted first, whatever
// its sync state. Returns the local id of the displaced record, if any.
func (db *DB) Put(ev models.AttendanceEvent) (string, error) {
	var replaced string
	err := db.withTx("put event", func(tx *sql.Tx) error {
		err := tx.QueryRow(`
			SELECT local_id FROM attendance_events
			WHERE student_id = ? AND date = ? AND period = ? AND local_id != ?
		`, ev.StudentID, ev.Date, ev.Period, ev.LocalID).Scan(&replaced)
		if err != nil && err != sql.ErrNoRows {
			return err
		}
		if replaced != "" {
			if _, err := tx.Exec(`DELETE FROM attendance_events WHERE local_id = ?`, replaced); err != nil {
				return err
			}
		}

		_, err = tx.Exec(`
			INSERT INTO attendance_events (`+eventColumns+`, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(local_id) DO UPDATE SET
				student_id = excluded.student_id,
				teacher_id = excluded.teacher_id,
				class_id = excluded.class_id,
				subject = excluded.subject,
				period = excluded.period,
				date = excluded.date,
				status = excluded.status,
				method = excluded.method,
				captured_at = excluded.captured_at,
				sync_state = excluded.sync_state,
				attempts = excluded.attempts,
				error_kind = excluded.error_kind,
				last_error = excluded.last_error,
				updated_at = excluded.updated_at
		`, ev.LocalID, ev.StudentID, ev.TeacherID, ev.ClassID, ev.Subject, ev.Period, ev.Date,
			string(ev.Status), string(ev.Method), formatTime(ev.CapturedAt), string(ev.SyncState),
			ev.Attempts, ev.ErrorKind, ev.LastError, formatTime(time.Now()))
		return err
	})
	return replaced, err
}

// Get returns the event with localID, or nil if none exists.
func (db *DB) Get(localID string) (*models.AttendanceEvent, error) {
	row := db.conn.QueryRow(`SELECT `+eventColumns+` FROM attendance_events WHERE local_id = ?`, localID)
	ev, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, syncerr.Store("get event", err)
	}
	return &ev, nil
}

// GetByState returns events in state, oldest capture first.
func (db *DB) GetByState(state models.SyncState) ([]models.AttendanceEvent, error) {
	events, err := queryEvents(db.conn, `
		SELECT `+eventColumns+` FROM attendance_events
		WHERE sync_state = ?
		ORDER BY captured_at, rowid
	`, string(state))
	return events, syncerr.Store("get events by state", err)
}

// GetByStudent returns a student's events ordered by date and period.
func (db *DB) GetByStudent(studentID string) ([]models.AttendanceEvent, error) {
	events, err := queryEvents(db.conn, `
		SELECT `+eventColumns+` FROM attendance_events
		WHERE student_id = ?
		ORDER BY date, period
	`, studentID)
	return events, syncerr.Store("get events by student", err)
}

// ActiveEvents returns the pending queue: pending, in-flight and failed
// events, oldest capture first.
func (db *DB) ActiveEvents() ([]models.AttendanceEvent, error) {
	events, err := queryEvents(db.conn, `
		SELECT `+eventColumns+` FROM attendance_events
		WHERE sync_state IN (`+placeholders(len(models.ActiveStates))+`)
		ORDER BY captured_at, rowid
	`, activeStateArgs()...)
	return events, syncerr.Store("get active events", err)
}

// CountActive returns the pending queue length.
func (db *DB) CountActive() (int, error) {
	var n int
	err := db.conn.QueryRow(`
		SELECT COUNT(*) FROM attendance_events WHERE sync_state IN (`+placeholders(len(models.ActiveStates))+`)
	`, activeStateArgs()...).Scan(&n)
	return n, syncerr.Store("count active events", err)
}

// CountByState returns event counts keyed by sync state.
func (db *DB) CountByState() (map[models.SyncState]int, error) {
	rows, err := db.conn.Query(`SELECT sync_state, COUNT(*) FROM attendance_events GROUP BY sync_state`)
	if err != nil {
		return nil, syncerr.Store("count events by state", err)
	}
	defer rows.Close()

	counts := make(map[models.SyncState]int)
	for rows.Next() {
		var state string
		var n int
		if err := rows.Scan(&state, &n); err != nil {
			return nil, syncerr.Store("count events by state", err)
		}
		counts[models.SyncState(state)] = n
	}
	return counts, syncerr.Store("count events by state", rows.Err())
}

// Delete removes an event. Deleting a missing event is not an error.
func (db *DB) Delete(localID string) error {
	return db.withTx("delete event", func(tx *sql.Tx) error {
		_, err := tx.Exec(`DELETE FROM attendance_events WHERE local_id = ?`, localID)
		return err
	})
}

// ClearAll wipes events, the roster cache, metadata and history.
func (db *DB) ClearAll() error {
	return db.withTx("clear all", func(tx *sql.Tx) error {
		for _, table := range []string{
			"attendance_events", "roster_students", "roster_classes", "roster_fetches",
			"sync_metadata", "sync_history",
		} {
			if _, err := tx.Exec("DELETE FROM " + table); err != nil {
				return fmt.Errorf("clear %s: %w", table, err)
			}
		}
		return nil
	})
}

// ClaimPending moves up to max pending events to in-flight, oldest capture
// first, and returns them. Selection and transition share one transaction
// so a record is never claimed twice.
func (db *DB) ClaimPending(max int) ([]models.AttendanceEvent, error) {
	var claimed []models.AttendanceEvent
	err := db.withTx("claim pending", func(tx *sql.Tx) error {
		events, err := queryEvents(tx, `
			SELECT `+eventColumns+` FROM attendance_events
			WHERE sync_state = 'pending'
			ORDER BY captured_at, rowid
			LIMIT ?
		`, max)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			return nil
		}

		ids := make([]string, len(events))
		for i := range events {
			ids[i] = events[i].LocalID
			events[i].SyncState = models.SyncInFlight
		}
		args := append([]any{formatTime(time.Now())}, stringArgs(ids)...)
		if _, err := tx.Exec(`
			UPDATE attendance_events SET sync_state = 'in-flight', updated_at = ?
			WHERE local_id IN (`+placeholders(len(ids))+`)
		`, args...); err != nil {
			return err
		}
		claimed = events
		return nil
	})
	return claimed, err
}

// RecoverInFlight returns every in-flight event to pending. Run at startup:
// a process that died mid-pass leaves its claims behind.
func (db *DB) RecoverInFlight() (int, error) {
	var n int64
	err := db.withTx("recover in-flight", func(tx *sql.Tx) error {
		res, err := tx.Exec(`
			UPDATE attendance_events SET sync_state = 'pending', updated_at = ?
			WHERE sync_state = 'in-flight'
		`, formatTime(time.Now()))
		if err != nil {
			return err
		}
		n, _ = res.RowsAffected()
		return nil
	})
	return int(n), err
}

// ResetFailed returns failed events to pending with a fresh attempt count.
// With no ids, every failed event is reset.
func (db *DB) ResetFailed(ids []string) (int, error) {
	var n int64
	err := db.withTx("reset failed", func(tx *sql.Tx) error {
		query := `
			UPDATE attendance_events
			SET sync_state = 'pending', attempts = 0, error_kind = '', last_error = '', updated_at = ?
			WHERE sync_state = 'failed'`
		args := []any{formatTime(time.Now())}
		if len(ids) > 0 {
			query += ` AND local_id IN (` + placeholders(len(ids)) + `)`
			args = append(args, stringArgs(ids)...)
		}
		res, err := tx.Exec(query, args...)
		if err != nil {
			return err
		}
		n, _ = res.RowsAffected()
		return nil
	})
	return int(n), err
}

// Outcome is the reconciliation verdict for one claimed batch. Only events
// still in-flight are touched: an event replaced or reset since it was
// claimed ignores the verdict.
type Outcome struct {
	Accepted    []string
	Rejected    map[string]string // local id -> server reason
	Retry       []string          // counted attempt; pending, or failed at the ceiling
	RetryKind   syncerr.Kind
	RetryReason string
	Requeue     []string // back to pending without counting an attempt
	MaxAttempts int      // <= 0 means unbounded
	At          time.Time
}

// Applied lists the local ids each transition actually affected.
type Applied struct {
	Synced    []string
	Rejected  []string
	Retried   []string
	Exhausted []string
	Requeued  []string
}

type claimedRow struct {
	studentID string
	attempts  int
}

func getClaimed(tx *sql.Tx, localID string) (*claimedRow, error) {
	var c claimedRow
	err := tx.QueryRow(`
		SELECT student_id, attempts FROM attendance_events
		WHERE local_id = ? AND sync_state = 'in-flight'
	`, localID).Scan(&c.studentID, &c.attempts)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ApplyOutcome applies a batch verdict and records history in one
// transaction. Accepted events become synced and leave the queue; they are
// kept until PruneSynced for local display.
func (db *DB) ApplyOutcome(o Outcome) (Applied, error) {
	var applied Applied
	at := o.At
	if at.IsZero() {
		at = time.Now()
	}
	ts := formatTime(at)

	err := db.withTx("apply outcome", func(tx *sql.Tx) error {
		applied = Applied{}
		var history []SyncHistoryEntry
		record := func(localID, studentID string, outcome models.SyncOutcome, reason string) {
			history = append(history, SyncHistoryEntry{
				LocalID: localID, StudentID: studentID, Outcome: outcome, Reason: reason, Timestamp: at,
			})
		}

		for _, id := range o.Accepted {
			c, err := getClaimed(tx, id)
			if err != nil {
				return err
			}
			if c == nil {
				continue
			}
			if _, err := tx.Exec(`
				UPDATE attendance_events
				SET sync_state = 'synced', error_kind = '', last_error = '', updated_at = ?
				WHERE local_id = ?
			`, ts, id); err != nil {
				return err
			}
			applied.Synced = append(applied.Synced, id)
			record(id, c.studentID, models.OutcomeSynced, "")
		}

		for _, id := range slices.Sorted(maps.Keys(o.Rejected)) {
			reason := o.Rejected[id]
			c, err := getClaimed(tx, id)
			if err != nil {
				return err
			}
			if c == nil {
				continue
			}
			if _, err := tx.Exec(`
				UPDATE attendance_events
				SET sync_state = 'failed', error_kind = ?, last_error = ?, updated_at = ?
				WHERE local_id = ?
			`, string(syncerr.KindServerRejection), reason, ts, id); err != nil {
				return err
			}
			applied.Rejected = append(applied.Rejected, id)
			record(id, c.studentID, models.OutcomeRejected, reason)
		}

		for _, id := range o.Retry {
			c, err := getClaimed(tx, id)
			if err != nil {
				return err
			}
			if c == nil {
				continue
			}
			attempts := c.attempts + 1
			state := models.SyncPending
			outcome := models.OutcomeRetried
			if o.MaxAttempts > 0 && attempts >= o.MaxAttempts {
				state = models.SyncFailed
				outcome = models.OutcomeFailed
			}
			if _, err := tx.Exec(`
				UPDATE attendance_events
				SET sync_state = ?, attempts = ?, error_kind = ?, last_error = ?, updated_at = ?
				WHERE local_id = ?
			`, string(state), attempts, string(o.RetryKind), o.RetryReason, ts, id); err != nil {
				return err
			}
			if state == models.SyncFailed {
				applied.Exhausted = append(applied.Exhausted, id)
			} else {
				applied.Retried = append(applied.Retried, id)
			}
			record(id, c.studentID, outcome, o.RetryReason)
		}

		for _, id := range o.Requeue {
			res, err := tx.Exec(`
				UPDATE attendance_events SET sync_state = 'pending', updated_at = ?
				WHERE local_id = ? AND sync_state = 'in-flight'
			`, ts, id)
			if err != nil {
				return err
			}
			if n, _ := res.RowsAffected(); n > 0 {
				applied.Requeued = append(applied.Requeued, id)
			}
		}

		if err := RecordSyncHistoryTx(tx, history); err != nil {
			return fmt.Errorf("record history: %w", err)
		}
		return PruneSyncHistory(tx, maxHistoryRows)
	})
	return applied, err
}

// PruneSynced deletes synced events last touched before cutoff.
func (db *DB) PruneSynced(cutoff time.Time) (int, error) {
	var n int64
	err := db.withTx("prune synced", func(tx *sql.Tx) error {
		res, err := tx.Exec(`
			DELETE FROM attendance_events WHERE sync_state = 'synced' AND updated_at < ?
		`, formatTime(cutoff))
		if err != nil {
			return err
		}
		n, _ = res.RowsAffected()
		return nil
	})
	return int(n), err
}
