package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/edutest/internal/model"
)

const testColumns = `id, teacher_id, title, description, questions, visibility, allow_multiple_attempts,
	show_feedback_immediately, randomize_questions, randomize_options, is_active, created_at`

// UpsertTest creates the test when its ID is empty or unknown, and otherwise replaces the
// stored record wholesale. CreatedAt of an existing test is preserved.
func (s *Store) UpsertTest(ctx context.Context, t model.Test) (model.Test, error) {
	questions, err := json.Marshal(t.Questions)
	if err != nil {
		return model.Test{}, fmt.Errorf("encode questions: %w", err)
	}
	if t.AllowedClassIDs == nil {
		t.AllowedClassIDs = []string{}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Test{}, err
	}
	defer tx.Rollback()

	var createdAt time.Time
	err = tx.QueryRowContext(ctx, `SELECT created_at FROM tests WHERE id = ?`, t.ID).Scan(&createdAt)
	switch {
	case t.ID == "" || err == sql.ErrNoRows:
		if t.ID == "" {
			t.ID = uuid.NewString()
		}
		t.CreatedAt = time.Now()
		_, err = tx.ExecContext(ctx,
			`INSERT INTO tests (`+testColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			t.ID, t.TeacherID, t.Title, t.Description, string(questions), t.Visibility,
			t.AllowMultipleAttempts, t.ShowFeedbackImmediately, t.RandomizeQuestions, t.RandomizeOptions,
			t.IsActive, t.CreatedAt,
		)
		if err != nil {
			return model.Test{}, err
		}
	case err != nil:
		return model.Test{}, err
	default:
		t.CreatedAt = createdAt
		_, err = tx.ExecContext(ctx,
			`UPDATE tests SET teacher_id = ?, title = ?, description = ?, questions = ?, visibility = ?,
			 allow_multiple_attempts = ?, show_feedback_immediately = ?, randomize_questions = ?,
			 randomize_options = ?, is_active = ? WHERE id = ?`,
			t.TeacherID, t.Title, t.Description, string(questions), t.Visibility,
			t.AllowMultipleAttempts, t.ShowFeedbackImmediately, t.RandomizeQuestions, t.RandomizeOptions,
			t.IsActive, t.ID,
		)
		if err != nil {
			return model.Test{}, err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM test_classes WHERE test_id = ?`, t.ID); err != nil {
			return model.Test{}, err
		}
	}

	for _, classID := range t.AllowedClassIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO test_classes (test_id, classroom_id) VALUES (?, ?)`, t.ID, classID,
		); err != nil {
			return model.Test{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return model.Test{}, err
	}
	return t, nil
}

// SetTestActive sets the publication gate of a test.
func (s *Store) SetTestActive(ctx context.Context, id string, active bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE tests SET is_active = ? WHERE id = ?`, active, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// ListTests returns tests matching the filter, oldest first, with their allowed class ids.
func (s *Store) ListTests(ctx context.Context, f model.TestFilter) ([]model.Test, error) {
	query := `SELECT ` + testColumns + ` FROM tests WHERE 1=1`
	var args []any
	if f.ID != "" {
		query += ` AND id = ?`
		args = append(args, f.ID)
	}
	if f.TeacherID != "" {
		query += ` AND teacher_id = ?`
		args = append(args, f.TeacherID)
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	var tests []model.Test
	for rows.Next() {
		var t model.Test
		var questions string
		if err := rows.Scan(&t.ID, &t.TeacherID, &t.Title, &t.Description, &questions, &t.Visibility,
			&t.AllowMultipleAttempts, &t.ShowFeedbackImmediately, &t.RandomizeQuestions, &t.RandomizeOptions,
			&t.IsActive, &t.CreatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		if err := json.Unmarshal([]byte(questions), &t.Questions); err != nil {
			rows.Close()
			return nil, fmt.Errorf("decode questions of test %s: %w", t.ID, err)
		}
		tests = append(tests, t)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range tests {
		ids, err := s.testClasses(ctx, tests[i].ID)
		if err != nil {
			return nil, err
		}
		tests[i].AllowedClassIDs = ids
	}
	return tests, nil
}

// GetTest returns a single test or ErrNotFound.
func (s *Store) GetTest(ctx context.Context, id string) (model.Test, error) {
	tests, err := s.ListTests(ctx, model.TestFilter{ID: id})
	if err != nil {
		return model.Test{}, err
	}
	if len(tests) == 0 {
		return model.Test{}, ErrNotFound
	}
	return tests[0], nil
}

func (s *Store) testClasses(ctx context.Context, testID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT classroom_id FROM test_classes WHERE test_id = ? ORDER BY classroom_id`, testID,
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
