package db

import (
	"database/sql"
	"time"

	"github.com/marcus/rollcall/internal/models"
	"github.com/marcus/rollcall/internal/syncerr"
)

// SyncHistoryEntry is one per-record outcome of a reconciliation pass.
type SyncHistoryEntry struct {
	ID        int64
	LocalID   string
	StudentID string
	Outcome   models.SyncOutcome
	Reason    string
	Timestamp time.Time
}

// RecordSyncHistoryTx batch-inserts history entries within tx.
func RecordSyncHistoryTx(tx *sql.Tx, entries []SyncHistoryEntry) error {
	if len(entries) == 0 {
		return nil
	}

	stmt, err := tx.Prepare(`
		INSERT INTO sync_history (local_id, student_id, outcome, reason, timestamp)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.Exec(e.LocalID, e.StudentID, string(e.Outcome), e.Reason, formatTime(e.Timestamp)); err != nil {
			return err
		}
	}
	return nil
}

func scanHistory(rows *sql.Rows) ([]SyncHistoryEntry, error) {
	defer rows.Close()

	var entries []SyncHistoryEntry
	for rows.Next() {
		var e SyncHistoryEntry
		var outcome, ts string
		if err := rows.Scan(&e.ID, &e.LocalID, &e.StudentID, &outcome, &e.Reason, &ts); err != nil {
			return nil, err
		}
		e.Outcome = models.SyncOutcome(outcome)
		parsed, err := parseTime(ts)
		if err != nil {
			return nil, err
		}
		e.Timestamp = parsed
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// GetSyncHistoryTail returns the last limit entries, oldest first.
func (db *DB) GetSyncHistoryTail(limit int) ([]SyncHistoryEntry, error) {
	rows, err := db.conn.Query(`
		SELECT id, local_id, student_id, outcome, reason, timestamp
		FROM sync_history
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, syncerr.Store("history tail", err)
	}
	entries, err := scanHistory(rows)
	if err != nil {
		return nil, syncerr.Store("history tail", err)
	}

	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

// GetSyncHistory returns entries with id > afterID in id order. Used by
// follow mode.
func (db *DB) GetSyncHistory(afterID int64, limit int) ([]SyncHistoryEntry, error) {
	rows, err := db.conn.Query(`
		SELECT id, local_id, student_id, outcome, reason, timestamp
		FROM sync_history
		WHERE id > ?
		ORDER BY id ASC
		LIMIT ?
	`, afterID, limit)
	if err != nil {
		return nil, syncerr.Store("history", err)
	}
	entries, err := scanHistory(rows)
	return entries, syncerr.Store("history", err)
}

// PruneSyncHistory deletes rows not in the newest maxRows entries.
func PruneSyncHistory(tx *sql.Tx, maxRows int) error {
	_, err := tx.Exec(`
		DELETE FROM sync_history WHERE id NOT IN (
			SELECT id FROM sync_history ORDER BY id DESC LIMIT ?
		)
	`, maxRows)
	return err
}
