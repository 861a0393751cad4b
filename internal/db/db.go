package db

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/marcus/rollcall/internal/syncerr"
	_ "modernc.org/sqlite"
)

const dbFileName = "rollcall.db"

// timeLayout is fixed width so stored timestamps sort correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// DB is the device-local store. It is explicitly opened and closed and
// passed to the components that need it.
type DB struct {
	conn    *sql.DB
	dir     string
	writeMu sync.Mutex
}

// Open opens (creating if needed) the store in dir and migrates it to the
// current schema.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, syncerr.Store("create data dir", err)
	}
	dbPath := filepath.Join(dir, dbFileName)

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, syncerr.Store("open database", err)
	}

	// One connection: transactions from different goroutines serialize.
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, syncerr.Store("enable WAL mode", err)
	}
	if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		conn.Close()
		return nil, syncerr.Store("set busy timeout", err)
	}
	// Marks taken offline must survive power loss, not just process exit.
	if _, err := conn.Exec("PRAGMA synchronous=FULL"); err != nil {
		slog.Debug("db: set synchronous failed", "err", err)
	}

	db := &DB{conn: conn, dir: dir}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, syncerr.Store("migrate", err)
	}
	return db, nil
}

// Close checkpoints the WAL and closes the database.
func (db *DB) Close() error {
	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		slog.Debug("db: wal checkpoint failed", "err", err)
	}
	return db.conn.Close()
}

// Dir returns the directory holding the database file.
func (db *DB) Dir() string {
	return db.dir
}

// Path returns the database file path.
func (db *DB) Path() string {
	return filepath.Join(db.dir, dbFileName)
}

// Ping reports whether the store is usable.
func (db *DB) Ping() error {
	if err := db.conn.Ping(); err != nil {
		return syncerr.Store("ping", err)
	}
	return nil
}

// withWriteLock executes fn while holding the in-process mutex and the
// cross-process file lock, so the CLI and the agent never write concurrently.
func (db *DB) withWriteLock(fn func() error) error {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	locker := newWriteLocker(db.dir)
	if err := locker.acquire(defaultTimeout); err != nil {
		return err
	}
	defer locker.release()
	return fn()
}

// withTx runs fn in a single write transaction. Any error rolls back, so a
// failure (or a crash) leaves the pre-transaction state.
func (db *DB) withTx(op string, fn func(tx *sql.Tx) error) error {
	err := db.withWriteLock(func() error {
		tx, err := db.conn.Begin()
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback()

		if err := fn(tx); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit: %w", err)
		}
		return nil
	})
	if err != nil {
		slog.Debug("db: tx failed", "op", op, "err", err)
		return syncerr.Store(op, err)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// parseTime accepts the fixed layout plus the formats SQLite itself writes.
func parseTime(s string) (time.Time, error) {
	for _, layout := range []string{
		timeLayout,
		time.RFC3339Nano,
		"2006-01-02 15:04:05",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, &time.ParseError{Layout: timeLayout, Value: s}
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
