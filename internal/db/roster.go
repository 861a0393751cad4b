package db

import (
	"database/sql"
	"time"

	"github.com/marcus/rollcall/internal/models"
	"github.com/marcus/rollcall/internal/syncerr"
)

const studentColumns = `id, class_id, name, roll_number, rfid_tag, photo_uri, last_updated`

func scanStudent(s rowScanner) (models.Student, error) {
	var st models.Student
	var updated string
	if err := s.Scan(&st.ID, &st.ClassID, &st.Name, &st.RollNumber, &st.RFIDTag, &st.PhotoURI, &updated); err != nil {
		return st, err
	}
	t, err := parseTime(updated)
	if err != nil {
		return st, err
	}
	st.LastUpdated = t
	return st, nil
}

// ReplaceRoster swaps the cached roster for snap's scope wholesale. An
// all-classes snapshot replaces everything; a class snapshot replaces only
// that class.
func (db *DB) ReplaceRoster(snap models.RosterSnapshot) error {
	fetched := snap.FetchedAt
	if fetched.IsZero() {
		fetched = time.Now()
	}

	return db.withTx("replace roster", func(tx *sql.Tx) error {
		if snap.ClassID == "" {
			for _, stmt := range []string{
				`DELETE FROM roster_students`,
				`DELETE FROM roster_classes`,
				`DELETE FROM roster_fetches`,
			} {
				if _, err := tx.Exec(stmt); err != nil {
					return err
				}
			}
		} else {
			if _, err := tx.Exec(`DELETE FROM roster_students WHERE class_id = ?`, snap.ClassID); err != nil {
				return err
			}
			if _, err := tx.Exec(`DELETE FROM roster_classes WHERE id = ?`, snap.ClassID); err != nil {
				return err
			}
		}

		for _, st := range snap.Students {
			updated := st.LastUpdated
			if updated.IsZero() {
				updated = fetched
			}
			if _, err := tx.Exec(`
				INSERT OR REPLACE INTO roster_students (`+studentColumns+`)
				VALUES (?, ?, ?, ?, ?, ?, ?)
			`, st.ID, st.ClassID, st.Name, st.RollNumber, st.RFIDTag, st.PhotoURI, formatTime(updated)); err != nil {
				return err
			}
		}
		for _, c := range snap.Classes {
			updated := c.LastUpdated
			if updated.IsZero() {
				updated = fetched
			}
			if _, err := tx.Exec(`
				INSERT OR REPLACE INTO roster_classes (id, name, grade, teacher_id, last_updated)
				VALUES (?, ?, ?, ?, ?)
			`, c.ID, c.Name, c.Grade, c.TeacherID, formatTime(updated)); err != nil {
				return err
			}
		}

		_, err := tx.Exec(`INSERT OR REPLACE INTO roster_fetches (scope, fetched_at) VALUES (?, ?)`,
			snap.ClassID, formatTime(fetched))
		return err
	})
}

// RosterSnapshot returns the cached roster for classID ("" for all
// classes), or nil if that scope was never fetched.
func (db *DB) RosterSnapshot(classID string) (*models.RosterSnapshot, error) {
	fetched, err := db.rosterFetchedAt(classID)
	if err != nil {
		return nil, syncerr.Store("roster fetch time", err)
	}
	if fetched == nil && classID != "" {
		// A full fetch covers every class.
		if fetched, err = db.rosterFetchedAt(""); err != nil {
			return nil, syncerr.Store("roster fetch time", err)
		}
	}
	if fetched == nil {
		return nil, nil
	}

	snap := &models.RosterSnapshot{ClassID: classID, FetchedAt: *fetched}
	if snap.Students, err = db.GetStudents(classID); err != nil {
		return nil, err
	}
	if snap.Classes, err = db.GetClasses(classID); err != nil {
		return nil, err
	}
	return snap, nil
}

func (db *DB) rosterFetchedAt(scope string) (*time.Time, error) {
	var ts sql.NullString
	err := db.conn.QueryRow(`SELECT fetched_at FROM roster_fetches WHERE scope = ?`, scope).Scan(&ts)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return parseNullTime(ts)
}

// GetStudents returns cached students for classID ("" for all), ordered by
// roll number then name.
func (db *DB) GetStudents(classID string) ([]models.Student, error) {
	query := `SELECT ` + studentColumns + ` FROM roster_students`
	var args []any
	if classID != "" {
		query += ` WHERE class_id = ?`
		args = append(args, classID)
	}
	query += ` ORDER BY roll_number, name`

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, syncerr.Store("get students", err)
	}
	defer rows.Close()

	var students []models.Student
	for rows.Next() {
		st, err := scanStudent(rows)
		if err != nil {
			return nil, syncerr.Store("get students", err)
		}
		students = append(students, st)
	}
	return students, syncerr.Store("get students", rows.Err())
}

// GetClasses returns cached classes; with a classID, just that class.
func (db *DB) GetClasses(classID string) ([]models.Class, error) {
	query := `SELECT id, name, grade, teacher_id, last_updated FROM roster_classes`
	var args []any
	if classID != "" {
		query += ` WHERE id = ?`
		args = append(args, classID)
	}
	query += ` ORDER BY name`

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, syncerr.Store("get classes", err)
	}
	defer rows.Close()

	var classes []models.Class
	for rows.Next() {
		var c models.Class
		var updated string
		if err := rows.Scan(&c.ID, &c.Name, &c.Grade, &c.TeacherID, &updated); err != nil {
			return nil, syncerr.Store("get classes", err)
		}
		if c.LastUpdated, err = parseTime(updated); err != nil {
			return nil, syncerr.Store("get classes", err)
		}
		classes = append(classes, c)
	}
	return classes, syncerr.Store("get classes", rows.Err())
}

// GetStudent returns a cached student, or nil if unknown.
func (db *DB) GetStudent(id string) (*models.Student, error) {
	st, err := scanStudent(db.conn.QueryRow(`SELECT `+studentColumns+` FROM roster_students WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, syncerr.Store("get student", err)
	}
	return &st, nil
}

// GetStudentByRFID resolves a scanned tag to a cached student, or nil.
func (db *DB) GetStudentByRFID(tag string) (*models.Student, error) {
	if tag == "" {
		return nil, nil
	}
	st, err := scanStudent(db.conn.QueryRow(`SELECT `+studentColumns+` FROM roster_students WHERE rfid_tag = ?`, tag))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, syncerr.Store("get student by rfid", err)
	}
	return &st, nil
}
