package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/edutest/internal/model"
)

const attemptColumns = `id, test_id, student_id, score, total_questions, answers, layout, created_at`

// CreateAttempt appends an attempt record. A caller-supplied ID makes the call idempotent:
// writing the same ID twice leaves the first record in place and returns it.
func (s *Store) CreateAttempt(ctx context.Context, a model.Attempt) (model.Attempt, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	if a.Answers == nil {
		a.Answers = []int{}
	}
	if a.Layout == nil {
		a.Layout = []model.SlotLayout{}
	}
	answers, err := json.Marshal(a.Answers)
	if err != nil {
		return model.Attempt{}, fmt.Errorf("encode answers: %w", err)
	}
	layout, err := json.Marshal(a.Layout)
	if err != nil {
		return model.Attempt{}, fmt.Errorf("encode layout: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO attempts (`+attemptColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		a.ID, a.TestID, a.StudentID, a.Score, a.TotalQuestions, string(answers), string(layout), a.CreatedAt,
	)
	if err != nil {
		return model.Attempt{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		slog.Warn("attempt already recorded, returning stored copy", "id", a.ID)
		return s.getAttempt(ctx, a.ID)
	}
	slog.Info("recorded attempt", "id", a.ID, "test_id", a.TestID, "student_id", a.StudentID,
		"score", a.Score, "total", a.TotalQuestions)
	return a, nil
}

// ListAttempts returns attempts matching the filter, oldest first.
func (s *Store) ListAttempts(ctx context.Context, f model.AttemptFilter) ([]model.Attempt, error) {
	query := `SELECT ` + attemptColumns + ` FROM attempts WHERE 1=1`
	var args []any
	if f.TestID != "" {
		query += ` AND test_id = ?`
		args = append(args, f.TestID)
	}
	if f.StudentID != "" {
		query += ` AND student_id = ?`
		args = append(args, f.StudentID)
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var attempts []model.Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

func (s *Store) getAttempt(ctx context.Context, id string) (model.Attempt, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+attemptColumns+` FROM attempts WHERE id = ?`, id)
	a, err := scanAttempt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Attempt{}, ErrNotFound
	}
	return a, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAttempt(r rowScanner) (model.Attempt, error) {
	var a model.Attempt
	var answers, layout string
	if err := r.Scan(&a.ID, &a.TestID, &a.StudentID, &a.Score, &a.TotalQuestions, &answers, &layout, &a.CreatedAt); err != nil {
		return model.Attempt{}, err
	}
	if err := json.Unmarshal([]byte(answers), &a.Answers); err != nil {
		return model.Attempt{}, fmt.Errorf("decode answers of attempt %s: %w", a.ID, err)
	}
	if err := json.Unmarshal([]byte(layout), &a.Layout); err != nil {
		return model.Attempt{}, fmt.Errorf("decode layout of attempt %s: %w", a.ID, err)
	}
	return a, nil
}
