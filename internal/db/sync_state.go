package db

import (
	"database/sql"

	"github.com/marcus/rollcall/internal/models"
	"github.com/marcus/rollcall/internal/syncerr"
)

// GetSyncMetadata returns the singleton sync metadata. A store that has
// never completed a pass returns the zero value.
func (db *DB) GetSyncMetadata() (models.SyncMetadata, error) {
	var m models.SyncMetadata
	var lastSync, lastPass sql.NullString

	err := db.conn.QueryRow(`
		SELECT last_sync_at, last_pass_at, pending_count, last_error_kind, last_error
		FROM sync_metadata WHERE id = 1
	`).Scan(&lastSync, &lastPass, &m.PendingCount, &m.LastErrorKind, &m.LastError)
	if err == sql.ErrNoRows {
		return m, nil
	}
	if err != nil {
		return m, syncerr.Store("get sync metadata", err)
	}

	if m.LastSyncAt, err = parseNullTime(lastSync); err != nil {
		return m, syncerr.Store("parse last_sync_at", err)
	}
	if m.LastPassAt, err = parseNullTime(lastPass); err != nil {
		return m, syncerr.Store("parse last_pass_at", err)
	}
	return m, nil
}

// UpdateSyncMetadata replaces the singleton sync metadata.
func (db *DB) UpdateSyncMetadata(m models.SyncMetadata) error {
	return db.withTx("save sync metadata", func(tx *sql.Tx) error {
		var lastSync, lastPass sql.NullString
		if m.LastSyncAt != nil {
			lastSync = sql.NullString{String: formatTime(*m.LastSyncAt), Valid: true}
		}
		if m.LastPassAt != nil {
			lastPass = sql.NullString{String: formatTime(*m.LastPassAt), Valid: true}
		}
		_, err := tx.Exec(`
			INSERT INTO sync_metadata (id, last_sync_at, last_pass_at, pending_count, last_error_kind, last_error)
			VALUES (1, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				last_sync_at = excluded.last_sync_at,
				last_pass_at = excluded.last_pass_at,
				pending_count = excluded.pending_count,
				last_error_kind = excluded.last_error_kind,
				last_error = excluded.last_error
		`, lastSync, lastPass, m.PendingCount, m.LastErrorKind, m.LastError)
		return err
	})
}
