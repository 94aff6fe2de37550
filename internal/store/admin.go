package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pavelanni/edutest/internal/model"
)

// RemoveEntity hard-deletes one record and the membership rows that point at it.
// Attempts referencing a removed test or user are kept; they are immutable history.
func (s *Store) RemoveEntity(ctx context.Context, kind model.EntityKind, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var stmts []string
	switch kind {
	case model.EntityUsers:
		stmts = []string{
			`DELETE FROM classroom_students WHERE student_id = ?`,
			`DELETE FROM auth_sessions WHERE user_id = ?`,
			`DELETE FROM users WHERE id = ?`,
		}
	case model.EntityClassrooms:
		stmts = []string{
			`DELETE FROM test_classes WHERE classroom_id = ?`,
			`DELETE FROM classroom_students WHERE classroom_id = ?`,
			`DELETE FROM classrooms WHERE id = ?`,
		}
	case model.EntityTests:
		stmts = []string{
			`DELETE FROM test_classes WHERE test_id = ?`,
			`DELETE FROM tests WHERE id = ?`,
		}
	case model.EntityAttempts:
		stmts = []string{`DELETE FROM attempts WHERE id = ?`}
	default:
		return fmt.Errorf("unknown entity kind %q", kind)
	}

	var last int64
	for _, stmt := range stmts {
		res, err := tx.ExecContext(ctx, stmt, id)
		if err != nil {
			return err
		}
		last, _ = res.RowsAffected()
	}
	if last == 0 {
		return ErrNotFound
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	slog.Info("removed entity", "kind", kind, "id", id)
	return nil
}

// Wipe resets the system: every classroom, test and attempt goes, as do all non-admin
// accounts. Admin accounts survive so the system stays reachable.
func (s *Store) Wipe(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		`DELETE FROM attempts`,
		`DELETE FROM test_classes`,
		`DELETE FROM tests`,
		`DELETE FROM classroom_students`,
		`DELETE FROM classrooms`,
		`DELETE FROM auth_sessions WHERE user_id NOT IN (SELECT id FROM users WHERE role = 'admin')`,
		`DELETE FROM users WHERE role <> 'admin'`,
		`DELETE FROM imported_files`,
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("wipe: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	slog.Warn("system wiped")
	return nil
}

// SystemState loads every collection for the administrative overview.
func (s *Store) SystemState(ctx context.Context) (model.SystemState, error) {
	var state model.SystemState
	var err error
	if state.Users, err = s.ListUsers(); err != nil {
		return state, fmt.Errorf("list users: %w", err)
	}
	if state.Classrooms, err = s.ListClassrooms(ctx, model.ClassroomFilter{}); err != nil {
		return state, fmt.Errorf("list classrooms: %w", err)
	}
	if state.Tests, err = s.ListTests(ctx, model.TestFilter{}); err != nil {
		return state, fmt.Errorf("list tests: %w", err)
	}
	if state.Attempts, err = s.ListAttempts(ctx, model.AttemptFilter{}); err != nil {
		return state, fmt.Errorf("list attempts: %w", err)
	}
	if state.Version, err = s.GetMetadata("schema_version"); err != nil {
		return state, fmt.Errorf("read schema version: %w", err)
	}
	return state, nil
}
