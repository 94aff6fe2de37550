package delivery

import (
	"context"
	"log/slog"
	"sync"

	"github.com/pavelanni/edutest/internal/model"
)

// Sessions keeps the live attempt of each student between requests. A student has at most
// one unfinished session at a time.
type Sessions struct {
	engine *Engine

	mu     sync.Mutex
	active map[string]*Session
}

// NewSessions creates an empty registry backed by e.
func NewSessions(e *Engine) *Sessions {
	return &Sessions{engine: e, active: make(map[string]*Session)}
}

// Begin starts an attempt on testID for the student. A finished or cancelled session left
// behind is replaced; an in-progress one is not.
func (r *Sessions) Begin(ctx context.Context, studentID, testID string) (*Session, error) {
	r.mu.Lock()
	if cur, ok := r.active[studentID]; ok && cur.State() == InProgress {
		r.mu.Unlock()
		return nil, ErrSessionActive
	}
	r.mu.Unlock()

	s, err := r.engine.BeginAttempt(ctx, studentID, testID)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.active[studentID]; ok && cur.State() == InProgress {
		return nil, ErrSessionActive
	}
	r.active[studentID] = s
	return s, nil
}

// Get returns the student's current session, finished or not.
func (r *Sessions) Get(studentID string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.active[studentID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Finish submits the student's session.
func (r *Sessions) Finish(ctx context.Context, studentID string) (model.Attempt, error) {
	s, err := r.Get(studentID)
	if err != nil {
		return model.Attempt{}, err
	}
	a, err := s.Finish(ctx)
	if err != nil {
		return model.Attempt{}, err
	}
	slog.Info("attempt recorded", "attempt_id", a.ID, "test_id", a.TestID, "student_id", studentID, "score", a.Score, "total", a.TotalQuestions)
	return a, nil
}

// Abort cancels the student's in-progress session and forgets it.
func (r *Sessions) Abort(studentID string) error {
	s, err := r.Get(studentID)
	if err != nil {
		return err
	}
	if err := s.Cancel(); err != nil {
		return err
	}
	r.mu.Lock()
	if r.active[studentID] == s {
		delete(r.active, studentID)
	}
	r.mu.Unlock()
	return nil
}

// Forget drops every session of the student, e.g. on logout or account removal.
func (r *Sessions) Forget(studentID string) {
	r.mu.Lock()
	delete(r.active, studentID)
	r.mu.Unlock()
}

// Reset drops every session.
func (r *Sessions) Reset() {
	r.mu.Lock()
	r.active = make(map[string]*Session)
	r.mu.Unlock()
}
