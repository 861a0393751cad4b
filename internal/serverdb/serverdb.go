// Package serverdb is the reference server's attendance ledger. It runs on
// SQLite for development and tests and on Postgres (pgx) in production.
package serverdb

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Dialect selects placeholder syntax.
type Dialect int

const (
	DialectSQLite Dialect = iota
	DialectPostgres
)

// timeLayout is fixed width so stored timestamps compare correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// ServerDB wraps the server database connection.
type ServerDB struct {
	conn    *sql.DB
	dialect Dialect
}

// Open opens the ledger. driver is "sqlite" (file path dsn) or "pgx"
// (connection string).
func Open(driver, dsn string) (*ServerDB, error) {
	switch driver {
	case "sqlite":
		if err := os.MkdirAll(filepath.Dir(dsn), 0755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
		conn, err := sql.Open("sqlite", dsn)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		conn.SetMaxOpenConns(1)
		if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
			conn.Close()
			return nil, fmt.Errorf("enable WAL mode: %w", err)
		}
		if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
			conn.Close()
			return nil, fmt.Errorf("set busy timeout: %w", err)
		}
		conn.Exec("PRAGMA synchronous=NORMAL")
		return New(conn, DialectSQLite)

	case "pgx", "postgres":
		conn, err := sql.Open("pgx", dsn)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		conn.SetMaxOpenConns(10)
		conn.SetMaxIdleConns(5)
		conn.SetConnMaxLifetime(time.Hour)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := conn.PingContext(ctx); err != nil {
			conn.Close()
			return nil, fmt.Errorf("ping database: %w", err)
		}
		return New(conn, DialectPostgres)

	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// New wraps an open connection and creates the schema. The caller's
// connection is closed by Close.
func New(conn *sql.DB, dialect Dialect) (*ServerDB, error) {
	db := &ServerDB{conn: conn, dialect: dialect}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// Ping checks the database connection is alive.
func (db *ServerDB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Close closes the database connection.
func (db *ServerDB) Close() error {
	if db.dialect == DialectSQLite {
		db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	}
	return db.conn.Close()
}

func (db *ServerDB) migrate() error {
	for _, stmt := range schemaStatements {
		if _, err := db.conn.Exec(stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}

	current, err := db.schemaVersion()
	if err != nil {
		return err
	}
	if current > SchemaVersion {
		return fmt.Errorf("database schema v%d is newer than this server (v%d)", current, SchemaVersion)
	}
	if current == SchemaVersion {
		return nil
	}
	if _, err := db.exec(context.Background(), `DELETE FROM schema_info WHERE key = 'version'`); err != nil {
		return err
	}
	if _, err := db.exec(context.Background(), `INSERT INTO schema_info (key, value) VALUES ('version', ?)`,
		strconv.Itoa(SchemaVersion)); err != nil {
		return err
	}
	slog.Debug("serverdb: schema ready", "version", SchemaVersion)
	return nil
}

func (db *ServerDB) schemaVersion() (int, error) {
	var v string
	err := db.conn.QueryRow(`SELECT value FROM schema_info WHERE key = 'version'`).Scan(&v)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	n, _ := strconv.Atoi(v)
	return n, nil
}

// rebind rewrites ? placeholders as $1, $2, ... for Postgres.
func (db *ServerDB) rebind(query string) string {
	if db.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (db *ServerDB) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return db.conn.ExecContext(ctx, db.rebind(query), args...)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t.UTC()
}
