package db

// SchemaVersion is the current local store schema version
const SchemaVersion = 3

const schema = `
-- Attendance events waiting for (or retired by) the server
CREATE TABLE IF NOT EXISTS attendance_events (
    local_id TEXT PRIMARY KEY,
    student_id TEXT NOT NULL,
    teacher_id TEXT NOT NULL DEFAULT '',
    class_id TEXT NOT NULL,
    subject TEXT NOT NULL DEFAULT '',
    period TEXT NOT NULL DEFAULT '',
    date TEXT NOT NULL,
    status TEXT NOT NULL,
    method TEXT NOT NULL,
    captured_at TEXT NOT NULL,
    sync_state TEXT NOT NULL DEFAULT 'pending',
    attempts INTEGER NOT NULL DEFAULT 0,
    error_kind TEXT NOT NULL DEFAULT '',
    last_error TEXT NOT NULL DEFAULT '',
    updated_at TEXT NOT NULL
);

-- One record per (student, date, period)
CREATE UNIQUE INDEX IF NOT EXISTS idx_attendance_slot ON attendance_events(student_id, date, period);
CREATE INDEX IF NOT EXISTS idx_attendance_state ON attendance_events(sync_state, captured_at);
CREATE INDEX IF NOT EXISTS idx_attendance_student ON attendance_events(student_id);

-- Roster cache
CREATE TABLE IF NOT EXISTS roster_students (
    id TEXT PRIMARY KEY,
    class_id TEXT NOT NULL,
    name TEXT NOT NULL,
    roll_number TEXT NOT NULL DEFAULT '',
    rfid_tag TEXT NOT NULL DEFAULT '',
    photo_uri TEXT NOT NULL DEFAULT '',
    last_updated TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_roster_students_class ON roster_students(class_id);

CREATE TABLE IF NOT EXISTS roster_classes (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    grade TEXT NOT NULL DEFAULT '',
    teacher_id TEXT NOT NULL DEFAULT '',
    last_updated TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS roster_fetches (
    scope TEXT PRIMARY KEY,
    fetched_at TEXT NOT NULL
);

-- Singleton sync metadata
CREATE TABLE IF NOT EXISTS sync_metadata (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    last_sync_at TEXT,
    last_pass_at TEXT,
    pending_count INTEGER NOT NULL DEFAULT 0,
    last_error_kind TEXT NOT NULL DEFAULT '',
    last_error TEXT NOT NULL DEFAULT ''
);

-- Per-record outcomes of reconciliation passes
CREATE TABLE IF NOT EXISTS sync_history (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    local_id TEXT NOT NULL,
    student_id TEXT NOT NULL DEFAULT '',
    outcome TEXT NOT NULL,
    reason TEXT NOT NULL DEFAULT '',
    timestamp TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS schema_info (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`
