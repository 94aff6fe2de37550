package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/pavelanni/edutest/internal/model"
)

// ErrTransient marks a store failure that callers may retry.
var ErrTransient = errors.New("transient store failure")

// SimOptions configures the latency simulator.
type SimOptions struct {
	MinLatency  time.Duration
	MaxLatency  time.Duration
	FailureRate float64 // probability in [0, 1] that a call fails before touching the database
}

// DefaultSimOptions mirrors a remote store: 400-1200 ms per call, 5% transient failures.
func DefaultSimOptions() SimOptions {
	return SimOptions{
		MinLatency:  400 * time.Millisecond,
		MaxLatency:  1200 * time.Millisecond,
		FailureRate: 0.05,
	}
}

// Simulated wraps a Store and makes every record-store call slow and occasionally failing.
// Methods not overridden here pass through to the embedded Store untouched.
type Simulated struct {
	*Store
	opts  SimOptions
	sleep func(ctx context.Context, d time.Duration) error

	mu  sync.Mutex // guards rng
	rng *rand.Rand
}

// Simulate wraps s with the given options.
func Simulate(s *Store, opts SimOptions) *Simulated {
	if opts.MaxLatency < opts.MinLatency {
		opts.MaxLatency = opts.MinLatency
	}
	return &Simulated{
		Store: s,
		opts:  opts,
		rng:   rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		sleep: sleepCtx,
	}
}

func (s *Simulated) delay(ctx context.Context, op string) error {
	s.mu.Lock()
	d := s.opts.MinLatency
	if spread := s.opts.MaxLatency - s.opts.MinLatency; spread > 0 {
		d += time.Duration(s.rng.Int64N(int64(spread)))
	}
	fail := s.opts.FailureRate > 0 && s.rng.Float64() < s.opts.FailureRate
	s.mu.Unlock()

	if err := s.sleep(ctx, d); err != nil {
		return err
	}
	if fail {
		slog.Warn("simulated store failure", "op", op, "latency", d)
		return fmt.Errorf("%s: %w", op, ErrTransient)
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (s *Simulated) ListClassrooms(ctx context.Context, f model.ClassroomFilter) ([]model.Classroom, error) {
	if err := s.delay(ctx, "list classrooms"); err != nil {
		return nil, err
	}
	return s.Store.ListClassrooms(ctx, f)
}

func (s *Simulated) AddStudentToClassroom(ctx context.Context, classroomID, studentID string) error {
	if err := s.delay(ctx, "add student to classroom"); err != nil {
		return err
	}
	return s.Store.AddStudentToClassroom(ctx, classroomID, studentID)
}

func (s *Simulated) CreateClassroom(ctx context.Context, name, teacherID string) (model.Classroom, error) {
	if err := s.delay(ctx, "create classroom"); err != nil {
		return model.Classroom{}, err
	}
	return s.Store.CreateClassroom(ctx, name, teacherID)
}

func (s *Simulated) ListTests(ctx context.Context, f model.TestFilter) ([]model.Test, error) {
	if err := s.delay(ctx, "list tests"); err != nil {
		return nil, err
	}
	return s.Store.ListTests(ctx, f)
}

func (s *Simulated) GetTest(ctx context.Context, id string) (model.Test, error) {
	if err := s.delay(ctx, "get test"); err != nil {
		return model.Test{}, err
	}
	return s.Store.GetTest(ctx, id)
}

func (s *Simulated) UpsertTest(ctx context.Context, t model.Test) (model.Test, error) {
	if err := s.delay(ctx, "upsert test"); err != nil {
		return model.Test{}, err
	}
	return s.Store.UpsertTest(ctx, t)
}

func (s *Simulated) SetTestActive(ctx context.Context, id string, active bool) error {
	if err := s.delay(ctx, "set test active"); err != nil {
		return err
	}
	return s.Store.SetTestActive(ctx, id, active)
}

func (s *Simulated) ListAttempts(ctx context.Context, f model.AttemptFilter) ([]model.Attempt, error) {
	if err := s.delay(ctx, "list attempts"); err != nil {
		return nil, err
	}
	return s.Store.ListAttempts(ctx, f)
}

func (s *Simulated) CreateAttempt(ctx context.Context, a model.Attempt) (model.Attempt, error) {
	if err := s.delay(ctx, "create attempt"); err != nil {
		return model.Attempt{}, err
	}
	return s.Store.CreateAttempt(ctx, a)
}

func (s *Simulated) RemoveEntity(ctx context.Context, kind model.EntityKind, id string) error {
	if err := s.delay(ctx, "remove entity"); err != nil {
		return err
	}
	return s.Store.RemoveEntity(ctx, kind, id)
}

func (s *Simulated) Wipe(ctx context.Context) error {
	if err := s.delay(ctx, "wipe"); err != nil {
		return err
	}
	return s.Store.Wipe(ctx)
}

func (s *Simulated) SystemState(ctx context.Context) (model.SystemState, error) {
	if err := s.delay(ctx, "system state"); err != nil {
		return model.SystemState{}, err
	}
	return s.Store.SystemState(ctx)
}
