package serverdb

// SchemaVersion is the current server database schema version.
const SchemaVersion = 1

// Statements are portable between SQLite and Postgres and run one at a time.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS classes (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    grade TEXT NOT NULL DEFAULT '',
    teacher_id TEXT NOT NULL DEFAULT '',
    updated_at TEXT NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS students (
    id TEXT PRIMARY KEY,
    class_id TEXT NOT NULL,
    name TEXT NOT NULL,
    roll_number TEXT NOT NULL DEFAULT '',
    rfid_tag TEXT NOT NULL DEFAULT '',
    photo_uri TEXT NOT NULL DEFAULT '',
    updated_at TEXT NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_students_class ON students(class_id)`,

	// One row per (student, date, period); the latest capture wins.
	`CREATE TABLE IF NOT EXISTS attendance (
    student_id TEXT NOT NULL,
    date TEXT NOT NULL,
    period TEXT NOT NULL DEFAULT '',
    class_id TEXT NOT NULL,
    teacher_id TEXT NOT NULL DEFAULT '',
    subject TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL,
    method TEXT NOT NULL,
    captured_at TEXT NOT NULL,
    local_id TEXT NOT NULL,
    device_id TEXT NOT NULL DEFAULT '',
    received_at TEXT NOT NULL,
    PRIMARY KEY (student_id, date, period)
)`,
	`CREATE INDEX IF NOT EXISTS idx_attendance_class_date ON attendance(class_id, date)`,

	// Every local id ever accepted, so resubmissions are acknowledged
	// without being applied twice.
	`CREATE TABLE IF NOT EXISTS submissions (
    local_id TEXT PRIMARY KEY,
    device_id TEXT NOT NULL DEFAULT '',
    student_id TEXT NOT NULL,
    received_at TEXT NOT NULL
)`,

	`CREATE TABLE IF NOT EXISTS schema_info (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
)`,
}
