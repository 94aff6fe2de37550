package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pavelanni/edutest/internal/model"
)

// State is the lifecycle state of an attempt session.
type State int

const (
	NotStarted State = iota
	InProgress
	Finished
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case InProgress:
		return "in_progress"
	case Finished:
		return "finished"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// MarshalText renders the state by name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name written by MarshalText.
func (s *State) UnmarshalText(b []byte) error {
	for _, st := range []State{NotStarted, InProgress, Finished} {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", b)
}

// Feedback is what a student sees right after selecting an option on a test with
// immediate feedback.
type Feedback struct {
	Position  int  `json:"position"`
	Selected  int  `json:"selected"`
	Correct   int  `json:"correct"`
	IsCorrect bool `json:"is_correct"`
}

// Session drives one student's attempt: NotStarted -> InProgress -> Finished.
// Cancel returns an in-progress session to NotStarted without writing anything.
// The only write happens in Finish.
type Session struct {
	engine    *Engine
	studentID string

	mu        sync.Mutex
	state     State
	test      model.Test
	presented model.PresentedTest
	answers   []int
	feedback  []bool
	position  int
	pendingID string // attempt id fixed at the first submission try
	inFlight  bool
	recorded  *model.Attempt
}

// NewSession creates an idle session for a student.
func (e *Engine) NewSession(studentID string) *Session {
	return &Session{engine: e, studentID: studentID}
}

// BeginAttempt loads a test the student can see and starts a session on it.
func (e *Engine) BeginAttempt(ctx context.Context, studentID, testID string) (*Session, error) {
	t, err := e.VisibleTest(ctx, studentID, testID)
	if err != nil {
		return nil, err
	}
	s := e.NewSession(studentID)
	if err := s.Start(ctx, t); err != nil {
		return nil, err
	}
	return s, nil
}

// StudentID returns the owner of the session.
func (s *Session) StudentID() string { return s.studentID }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start checks attemptability, fixes the presentation for the rest of the attempt and
// moves to InProgress with every answer unset.
func (s *Session) Start(ctx context.Context, t model.Test) error {
	s.mu.Lock()
	if s.state != NotStarted {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.mu.Unlock()

	if len(t.Questions) == 0 {
		return ErrEmptyTest
	}
	a, err := s.engine.Attemptability(ctx, s.studentID, t)
	if err != nil {
		return err
	}
	if !a.Allowed {
		return notAllowed(t.ID, a.Reason)
	}
	presented := Present(t, s.engine.seed())

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != NotStarted {
		return ErrAlreadyStarted
	}
	s.test = t
	s.presented = presented
	s.answers = make([]int, len(presented.Questions))
	for i := range s.answers {
		s.answers[i] = model.Unanswered
	}
	s.feedback = make([]bool, len(presented.Questions))
	s.position = 0
	s.pendingID = ""
	s.recorded = nil
	s.state = InProgress
	slog.Debug("attempt started", "test_id", t.ID, "student_id", s.studentID, "seed", presented.Seed)
	return nil
}

// Select records optionIndex for the question on screen, replacing any earlier choice.
// position must be the current one. Once feedback is showing the answer is locked and
// Select is a no-op.
func (s *Session) Select(position, optionIndex int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != InProgress {
		return ErrNotInProgress
	}
	if position != s.position {
		return ErrInvalidPosition
	}
	if optionIndex < 0 || optionIndex >= len(s.presented.Questions[position].Options) {
		return ErrInvalidOption
	}
	if s.feedback[position] {
		return nil
	}
	s.answers[position] = optionIndex
	if s.test.ShowFeedbackImmediately {
		s.feedback[position] = true
	}
	return nil
}

// Navigate moves one question forward (+1) or back (-1), staying within the test.
// Leaving a question hides its feedback. It returns the new position.
func (s *Session) Navigate(delta int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != InProgress {
		return s.position, ErrNotInProgress
	}
	if delta != 1 && delta != -1 {
		return s.position, ErrInvalidDelta
	}
	next := s.position + delta
	if next < 0 || next >= len(s.presented.Questions) {
		return s.position, nil
	}
	s.feedback[s.position] = false
	s.position = next
	return s.position, nil
}

// Finish scores the attempt and records it. It is only valid from the final question.
// The attempt predicate is checked again against the stored test before writing.
//
// If the write fails the session stays InProgress and keeps its attempt id, so a retry
// cannot produce a second record.
func (s *Session) Finish(ctx context.Context) (model.Attempt, error) {
	s.mu.Lock()
	switch {
	case s.state == Finished:
		s.mu.Unlock()
		return model.Attempt{}, ErrAlreadyFinished
	case s.state != InProgress:
		s.mu.Unlock()
		return model.Attempt{}, ErrNotInProgress
	case s.inFlight:
		s.mu.Unlock()
		return model.Attempt{}, ErrSubmissionInFlight
	case s.position != len(s.presented.Questions)-1:
		s.mu.Unlock()
		return model.Attempt{}, ErrNotFinalQuestion
	}
	if s.pendingID == "" {
		s.pendingID = s.engine.newID()
	}
	result := Score(s.presented, s.answers)
	attempt := model.Attempt{
		ID:             s.pendingID,
		TestID:         s.test.ID,
		StudentID:      s.studentID,
		Score:          result.Score,
		TotalQuestions: result.Total,
		Answers:        append([]int(nil), s.answers...),
		Layout:         s.presented.Layout(),
		CreatedAt:      s.engine.now(),
	}
	s.inFlight = true
	s.mu.Unlock()

	saved, err := s.record(ctx, attempt)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight = false
	if err != nil {
		return model.Attempt{}, err
	}
	s.recorded = &saved
	s.state = Finished
	return saved, nil
}

func (s *Session) record(ctx context.Context, attempt model.Attempt) (model.Attempt, error) {
	current, err := s.engine.getTest(ctx, attempt.TestID)
	if errors.Is(err, ErrTestNotFound) {
		return model.Attempt{}, notAllowed(attempt.TestID, ReasonNotActive)
	}
	if err != nil {
		return model.Attempt{}, fmt.Errorf("reload test: %w", err)
	}
	prior, err := s.engine.priorAttempts(ctx, s.studentID, attempt.TestID, attempt.ID)
	if err != nil {
		return model.Attempt{}, err
	}
	if a := Evaluate(current, prior); !a.Allowed {
		slog.Warn("submission rejected", "test_id", attempt.TestID, "student_id", s.studentID, "reason", a.Reason)
		return model.Attempt{}, notAllowed(attempt.TestID, a.Reason)
	}

	saved, err := s.engine.store.CreateAttempt(ctx, attempt)
	if err != nil {
		return model.Attempt{}, fmt.Errorf("record attempt: %w", err)
	}
	return saved, nil
}

// Cancel abandons an in-progress attempt. All answers are discarded and nothing is written.
func (s *Session) Cancel() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != InProgress {
		return ErrNotInProgress
	}
	if s.inFlight {
		return ErrSubmissionInFlight
	}
	s.state = NotStarted
	s.test = model.Test{}
	s.presented = model.PresentedTest{}
	s.answers = nil
	s.feedback = nil
	s.position = 0
	s.pendingID = ""
	return nil
}

// Feedback returns the feedback for a position and whether it is currently visible.
func (s *Session) Feedback(position int) (Feedback, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != InProgress || position < 0 || position >= len(s.feedback) || !s.feedback[position] {
		return Feedback{}, false
	}
	return s.feedbackAt(position), true
}

func (s *Session) feedbackAt(position int) Feedback {
	correct := s.presented.Questions[position].CorrectAnswer
	selected := s.answers[position]
	return Feedback{
		Position:  position,
		Selected:  selected,
		Correct:   correct,
		IsCorrect: selected == correct,
	}
}

// Recorded returns the stored attempt once Finish has succeeded.
func (s *Session) Recorded() (model.Attempt, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.recorded == nil {
		return model.Attempt{}, false
	}
	return *s.recorded, true
}

// Submitting reports whether a Finish call is currently writing.
func (s *Session) Submitting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight
}
