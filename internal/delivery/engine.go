// Package delivery decides which tests a student may see and attempt, presents a test
// with randomized question and option order, drives one attempt to submission and
// records the scored result.
package delivery

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/edutest/internal/model"
)

// RecordStore is the persistence boundary the engine consumes. Every call may block,
// fail transiently, and must be treated as a suspension point.
type RecordStore interface {
	ListClassrooms(ctx context.Context, f model.ClassroomFilter) ([]model.Classroom, error)
	AddStudentToClassroom(ctx context.Context, classroomID, studentID string) error
	ListTests(ctx context.Context, f model.TestFilter) ([]model.Test, error)
	UpsertTest(ctx context.Context, t model.Test) (model.Test, error)
	SetTestActive(ctx context.Context, id string, active bool) error
	ListAttempts(ctx context.Context, f model.AttemptFilter) ([]model.Attempt, error)
	CreateAttempt(ctx context.Context, a model.Attempt) (model.Attempt, error)
	RemoveEntity(ctx context.Context, kind model.EntityKind, id string) error
}

// Engine ties eligibility, presentation, lifecycle and scoring to one record store.
type Engine struct {
	store RecordStore
	now   func() time.Time
	seed  func() uint64
	newID func() string
}

// Option customizes an Engine.
type Option func(*Engine)

// WithClock overrides the timestamp source for recorded attempts.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithSeedSource overrides where presentation seeds come from.
func WithSeedSource(seed func() uint64) Option {
	return func(e *Engine) { e.seed = seed }
}

// New creates an Engine over the given store.
func New(s RecordStore, opts ...Option) *Engine {
	e := &Engine{
		store: s,
		now:   time.Now,
		seed:  rand.Uint64,
		newID: uuid.NewString,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Store returns the record store the engine was built with.
func (e *Engine) Store() RecordStore {
	return e.store
}

// getTest loads one test by id.
func (e *Engine) getTest(ctx context.Context, testID string) (model.Test, error) {
	tests, err := e.store.ListTests(ctx, model.TestFilter{ID: testID})
	if err != nil {
		return model.Test{}, err
	}
	if len(tests) == 0 {
		return model.Test{}, ErrTestNotFound
	}
	return tests[0], nil
}
