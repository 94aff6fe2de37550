package store

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/edutest/internal/model"
)

const (
	joinCodeLength   = 5
	joinCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	joinCodeRetries  = 8
)

// CreateClassroom creates a classroom owned by teacherID with a fresh join code.
func (s *Store) CreateClassroom(ctx context.Context, name, teacherID string) (model.Classroom, error) {
	c := model.Classroom{
		ID:         uuid.NewString(),
		TeacherID:  teacherID,
		Name:       strings.TrimSpace(name),
		StudentIDs: []string{},
	}
	for attempt := 0; attempt < joinCodeRetries; attempt++ {
		code, err := newJoinCode()
		if err != nil {
			return model.Classroom{}, err
		}
		var taken int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM classrooms WHERE code = ?`, code).Scan(&taken); err != nil {
			return model.Classroom{}, err
		}
		if taken > 0 {
			continue
		}
		c.Code = code
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO classrooms (id, teacher_id, name, code) VALUES (?, ?, ?, ?)`,
			c.ID, c.TeacherID, c.Name, c.Code,
		); err != nil {
			return model.Classroom{}, err
		}
		slog.Info("created classroom", "id", c.ID, "teacher_id", teacherID, "code", c.Code)
		return c, nil
	}
	return model.Classroom{}, fmt.Errorf("no free join code after %d tries", joinCodeRetries)
}

// ListClassrooms returns classrooms matching the filter, with their rosters.
func (s *Store) ListClassrooms(ctx context.Context, f model.ClassroomFilter) ([]model.Classroom, error) {
	query := `SELECT id, teacher_id, name, code FROM classrooms WHERE 1=1`
	var args []any
	if f.ID != "" {
		query += ` AND id = ?`
		args = append(args, f.ID)
	}
	if f.TeacherID != "" {
		query += ` AND teacher_id = ?`
		args = append(args, f.TeacherID)
	}
	if f.Code != "" {
		query += ` AND code = ? COLLATE NOCASE`
		args = append(args, strings.TrimSpace(f.Code))
	}
	if f.StudentID != "" {
		query += ` AND id IN (SELECT classroom_id FROM classroom_students WHERE student_id = ?)`
		args = append(args, f.StudentID)
	}
	query += ` ORDER BY name, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	var classrooms []model.Classroom
	for rows.Next() {
		c := model.Classroom{StudentIDs: []string{}}
		if err := rows.Scan(&c.ID, &c.TeacherID, &c.Name, &c.Code); err != nil {
			rows.Close()
			return nil, err
		}
		classrooms = append(classrooms, c)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range classrooms {
		ids, err := s.classroomStudents(ctx, classrooms[i].ID)
		if err != nil {
			return nil, err
		}
		classrooms[i].StudentIDs = ids
	}
	return classrooms, nil
}

func (s *Store) classroomStudents(ctx context.Context, classroomID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT student_id FROM classroom_students WHERE classroom_id = ? ORDER BY joined_at, student_id`, classroomID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// AddStudentToClassroom enrolls a student. Enrolling twice has no additional effect.
func (s *Store) AddStudentToClassroom(ctx context.Context, classroomID, studentID string) error {
	var exists int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM classrooms WHERE id = ?`, classroomID).Scan(&exists); err != nil {
		return err
	}
	if exists == 0 {
		return ErrNotFound
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO classroom_students (classroom_id, student_id, joined_at) VALUES (?, ?, ?)`,
		classroomID, studentID, time.Now(),
	)
	return err
}

func newJoinCode() (string, error) {
	b := make([]byte, joinCodeLength)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate join code: %w", err)
	}
	for i := range b {
		b[i] = joinCodeAlphabet[int(b[i])%len(joinCodeAlphabet)]
	}
	return string(b), nil
}
