package db

import (
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/marcus/rollcall/internal/syncerr"
)

// Migration defines a schema migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// Migrations is the list of all schema migrations in order. A database at
// version N has every migration <= N applied.
var Migrations = []Migration{
	{
		Version:     2,
		Description: "Record error kind and message on attendance events",
		SQL: `ALTER TABLE attendance_events ADD COLUMN error_kind TEXT NOT NULL DEFAULT '';
ALTER TABLE attendance_events ADD COLUMN last_error TEXT NOT NULL DEFAULT '';`,
	},
	{
		Version:     3,
		Description: "Track roster fetch times per class scope",
		SQL: `CREATE TABLE IF NOT EXISTS roster_fetches (
    scope TEXT PRIMARY KEY,
    fetched_at TEXT NOT NULL
);`,
	},
}

// quarantinedTables are the tables dropped (or renamed, for events) when
// the database was written by a newer, incompatible build.
var quarantinedTables = []string{
	"roster_students", "roster_classes", "roster_fetches", "sync_metadata", "sync_history",
}

var attendanceIndexes = []string{
	"idx_attendance_slot", "idx_attendance_state", "idx_attendance_student",
}

// columnExists checks whether a column exists on a table
func (db *DB) columnExists(table, column string) (bool, error) {
	rows, err := db.conn.Query(fmt.Sprintf("PRAGMA table_info(%s);", table))
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid       int
			name      string
			ctype     string
			notnull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

// tableExists checks whether a table exists in the database
func (db *DB) tableExists(table string) (bool, error) {
	var count int
	err := db.conn.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetSchemaVersion returns the current schema version from the database
func (db *DB) GetSchemaVersion() (int, error) {
	var version string
	err := db.conn.QueryRow("SELECT value FROM schema_info WHERE key = 'version'").Scan(&version)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var v int
	fmt.Sscanf(version, "%d", &v)
	return v, nil
}

func (db *DB) setSchemaVersion(version int) error {
	_, err := db.conn.Exec(`INSERT OR REPLACE INTO schema_info (key, value) VALUES ('version', ?)`,
		fmt.Sprintf("%d", version))
	return err
}

// migrate brings the database to SchemaVersion. A database from a newer
// build has its events quarantined and everything else rebuilt.
func (db *DB) migrate() error {
	return db.withWriteLock(func() error {
		if _, err := db.conn.Exec(`CREATE TABLE IF NOT EXISTS schema_info (key TEXT PRIMARY KEY, value TEXT NOT NULL)`); err != nil {
			return fmt.Errorf("create schema_info: %w", err)
		}
		version, err := db.GetSchemaVersion()
		if err != nil {
			return fmt.Errorf("get schema version: %w", err)
		}
		exists, err := db.tableExists("attendance_events")
		if err != nil {
			return fmt.Errorf("check attendance table: %w", err)
		}

		if version > SchemaVersion {
			if err := db.quarantine(version, exists); err != nil {
				return fmt.Errorf("quarantine v%d schema: %w", version, err)
			}
			exists = false
		}

		if !exists {
			if _, err := db.conn.Exec(schema); err != nil {
				return fmt.Errorf("create schema: %w", err)
			}
			return db.setSchemaVersion(SchemaVersion)
		}

		if version == 0 {
			// Tables without a recorded version predate versioning.
			version = 1
		}
		n, err := db.runMigrations(version)
		if err != nil {
			return err
		}
		if n > 0 {
			slog.Info("db: migrated", "from", version, "to", SchemaVersion, "applied", n)
		}
		return nil
	})
}

func (db *DB) runMigrations(current int) (int, error) {
	run := 0
	for _, m := range Migrations {
		if m.Version <= current {
			continue
		}
		if m.Version == 2 {
			exists, err := db.columnExists("attendance_events", "error_kind")
			if err != nil {
				return run, fmt.Errorf("check column error_kind: %w", err)
			}
			if exists {
				if err := db.setSchemaVersion(m.Version); err != nil {
					return run, fmt.Errorf("set version %d: %w", m.Version, err)
				}
				run++
				continue
			}
		}
		for _, stmt := range strings.Split(m.SQL, ";") {
			if strings.TrimSpace(stmt) == "" {
				continue
			}
			if _, err := db.conn.Exec(stmt); err != nil {
				return run, fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
			}
		}
		if err := db.setSchemaVersion(m.Version); err != nil {
			return run, fmt.Errorf("set version %d: %w", m.Version, err)
		}
		run++
	}
	return run, nil
}

// quarantine renames the attendance table out of the way so no mark is lost,
// and drops the caches which can be refetched.
func (db *DB) quarantine(version int, hasEvents bool) error {
	name := fmt.Sprintf("attendance_events_quarantine_v%d", version)

	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if hasEvents {
		if _, err := tx.Exec(fmt.Sprintf("DROP TABLE IF EXISTS %s", name)); err != nil {
			return err
		}
		if _, err := tx.Exec(fmt.Sprintf("ALTER TABLE attendance_events RENAME TO %s", name)); err != nil {
			return err
		}
		// Indexes follow the renamed table; free their names for the new one.
		for _, idx := range attendanceIndexes {
			if _, err := tx.Exec(fmt.Sprintf("DROP INDEX IF EXISTS %s", idx)); err != nil {
				return err
			}
		}
	}
	for _, table := range quarantinedTables {
		if _, err := tx.Exec(fmt.Sprintf("DROP TABLE IF EXISTS %s", table)); err != nil {
			return err
		}
	}
	if _, err := tx.Exec(`DELETE FROM schema_info`); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	slog.Warn("db: schema from newer version quarantined", "version", version, "table", name)
	return nil
}

// QuarantinedTables lists attendance tables set aside by quarantine.
func (db *DB) QuarantinedTables() ([]string, error) {
	rows, err := db.conn.Query(`SELECT name FROM sqlite_master WHERE type='table' AND name LIKE 'attendance_events_quarantine_%' ORDER BY name`)
	if err != nil {
		return nil, syncerr.Store("list quarantined tables", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, syncerr.Store("list quarantined tables", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
