package serverdb

import (
	"context"
	"fmt"
	"time"

	"github.com/marcus/rollcall/internal/models"
)

// ImportRoster upserts classes and students.
func (db *ServerDB) ImportRoster(ctx context.Context, classes []models.Class, students []models.Student) error {
	now := formatTime(time.Now())

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, c := range classes {
		if _, err := tx.ExecContext(ctx, db.rebind(`
			INSERT INTO classes (id, name, grade, teacher_id, updated_at) VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET
				name = excluded.name, grade = excluded.grade,
				teacher_id = excluded.teacher_id, updated_at = excluded.updated_at
		`), c.ID, c.Name, c.Grade, c.TeacherID, now); err != nil {
			return fmt.Errorf("upsert class %s: %w", c.ID, err)
		}
	}
	for _, s := range students {
		if _, err := tx.ExecContext(ctx, db.rebind(`
			INSERT INTO students (id, class_id, name, roll_number, rfid_tag, photo_uri, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET
				class_id = excluded.class_id, name = excluded.name, roll_number = excluded.roll_number,
				rfid_tag = excluded.rfid_tag, photo_uri = excluded.photo_uri, updated_at = excluded.updated_at
		`), s.ID, s.ClassID, s.Name, s.RollNumber, s.RFIDTag, s.PhotoURI, now); err != nil {
			return fmt.Errorf("upsert student %s: %w", s.ID, err)
		}
	}
	return tx.Commit()
}

// Roster returns students and classes, limited to classID when set.
func (db *ServerDB) Roster(ctx context.Context, classID string) ([]models.Student, []models.Class, error) {
	sq := `SELECT id, class_id, name, roll_number, rfid_tag, photo_uri, updated_at FROM students`
	cq := `SELECT id, name, grade, teacher_id, updated_at FROM classes`
	var args []any
	if classID != "" {
		sq += ` WHERE class_id = ?`
		cq += ` WHERE id = ?`
		args = append(args, classID)
	}

	rows, err := db.conn.QueryContext(ctx, db.rebind(sq+` ORDER BY class_id, roll_number, name`), args...)
	if err != nil {
		return nil, nil, fmt.Errorf("query students: %w", err)
	}
	students := []models.Student{}
	for rows.Next() {
		var s models.Student
		var updated string
		if err := rows.Scan(&s.ID, &s.ClassID, &s.Name, &s.RollNumber, &s.RFIDTag, &s.PhotoURI, &updated); err != nil {
			rows.Close()
			return nil, nil, err
		}
		s.LastUpdated = parseTime(updated)
		students = append(students, s)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	rows, err = db.conn.QueryContext(ctx, db.rebind(cq+` ORDER BY name`), args...)
	if err != nil {
		return nil, nil, fmt.Errorf("query classes: %w", err)
	}
	defer rows.Close()
	classes := []models.Class{}
	for rows.Next() {
		var c models.Class
		var updated string
		if err := rows.Scan(&c.ID, &c.Name, &c.Grade, &c.TeacherID, &updated); err != nil {
			return nil, nil, err
		}
		c.LastUpdated = parseTime(updated)
		classes = append(classes, c)
	}
	return students, classes, rows.Err()
}
