package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pavelanni/edutest/internal/model"
)

// Attemptability is the outcome of the attempt predicate for one student and test.
type Attemptability struct {
	Allowed       bool   `json:"allowed"`
	Reason        Reason `json:"reason,omitempty"`
	PriorAttempts int    `json:"prior_attempts"`
}

// Listing pairs a visible test with whether the student may start it now.
type Listing struct {
	Test           model.Test     `json:"test"`
	Attemptability Attemptability `json:"attemptability"`
}

// Visible reports whether a test is listed for a student enrolled in the given classrooms.
// A restricted test with no allowed classes is visible to nobody.
func Visible(t model.Test, enrolled map[string]bool) bool {
	if t.IsPublic() {
		return true
	}
	for _, id := range t.AllowedClassIDs {
		if enrolled[id] {
			return true
		}
	}
	return false
}

// Evaluate applies the attempt predicate: the test is active, and either repeats are
// allowed or the student has no prior attempt.
func Evaluate(t model.Test, priorAttempts int) Attemptability {
	a := Attemptability{PriorAttempts: priorAttempts}
	switch {
	case !t.IsActive:
		a.Reason = ReasonNotActive
	case !t.AllowMultipleAttempts && priorAttempts > 0:
		a.Reason = ReasonLimitReached
	default:
		a.Allowed = true
	}
	return a
}

func (e *Engine) enrollment(ctx context.Context, studentID string) (map[string]bool, error) {
	classes, err := e.store.ListClassrooms(ctx, model.ClassroomFilter{StudentID: studentID})
	if err != nil {
		return nil, fmt.Errorf("list classrooms: %w", err)
	}
	enrolled := make(map[string]bool, len(classes))
	for _, c := range classes {
		if c.HasStudent(studentID) {
			enrolled[c.ID] = true
		}
	}
	return enrolled, nil
}

// AvailableTests returns every test the student can see, active or not.
func (e *Engine) AvailableTests(ctx context.Context, studentID string) ([]model.Test, error) {
	enrolled, err := e.enrollment(ctx, studentID)
	if err != nil {
		return nil, err
	}
	tests, err := e.store.ListTests(ctx, model.TestFilter{})
	if err != nil {
		return nil, fmt.Errorf("list tests: %w", err)
	}
	var visible []model.Test
	for _, t := range tests {
		if Visible(t, enrolled) {
			visible = append(visible, t)
		}
	}
	return visible, nil
}

// Listings returns the available tests with their attemptability for the student.
func (e *Engine) Listings(ctx context.Context, studentID string) ([]Listing, error) {
	tests, err := e.AvailableTests(ctx, studentID)
	if err != nil {
		return nil, err
	}
	attempts, err := e.store.ListAttempts(ctx, model.AttemptFilter{StudentID: studentID})
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	counts := make(map[string]int)
	for _, a := range attempts {
		counts[a.TestID]++
	}
	listings := make([]Listing, 0, len(tests))
	for _, t := range tests {
		listings = append(listings, Listing{Test: t, Attemptability: Evaluate(t, counts[t.ID])})
	}
	return listings, nil
}

// Attemptability evaluates the attempt predicate against the student's recorded attempts.
func (e *Engine) Attemptability(ctx context.Context, studentID string, t model.Test) (Attemptability, error) {
	prior, err := e.priorAttempts(ctx, studentID, t.ID, "")
	if err != nil {
		return Attemptability{}, err
	}
	return Evaluate(t, prior), nil
}

// CanAttempt reports whether the student may start the test now.
func (e *Engine) CanAttempt(ctx context.Context, studentID string, t model.Test) (bool, error) {
	a, err := e.Attemptability(ctx, studentID, t)
	if err != nil {
		return false, err
	}
	return a.Allowed, nil
}

// priorAttempts counts recorded attempts, ignoring excludeID so that a retried
// submission does not count against itself.
func (e *Engine) priorAttempts(ctx context.Context, studentID, testID, excludeID string) (int, error) {
	attempts, err := e.store.ListAttempts(ctx, model.AttemptFilter{TestID: testID, StudentID: studentID})
	if err != nil {
		return 0, fmt.Errorf("list attempts: %w", err)
	}
	n := 0
	for _, a := range attempts {
		if excludeID != "" && a.ID == excludeID {
			continue
		}
		n++
	}
	return n, nil
}

// VisibleTest loads a test and confirms the student can see it. Tests the student cannot
// see are reported as not found.
func (e *Engine) VisibleTest(ctx context.Context, studentID, testID string) (model.Test, error) {
	t, err := e.getTest(ctx, testID)
	if err != nil {
		return model.Test{}, err
	}
	if t.IsPublic() {
		return t, nil
	}
	enrolled, err := e.enrollment(ctx, studentID)
	if err != nil {
		return model.Test{}, err
	}
	if !Visible(t, enrolled) {
		return model.Test{}, ErrTestNotFound
	}
	return t, nil
}

// JoinClassroom enrolls the student in the classroom with the given code. Codes compare
// case-insensitively; joining a classroom twice succeeds without changing it.
func (e *Engine) JoinClassroom(ctx context.Context, code, studentID string) (model.Classroom, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return model.Classroom{}, &EligibilityError{Kind: ErrCodeNotFound, Code: code}
	}
	classes, err := e.store.ListClassrooms(ctx, model.ClassroomFilter{Code: code})
	if err != nil {
		return model.Classroom{}, fmt.Errorf("find classroom: %w", err)
	}
	var c *model.Classroom
	for i := range classes {
		if strings.EqualFold(classes[i].Code, code) {
			c = &classes[i]
			break
		}
	}
	if c == nil {
		return model.Classroom{}, &EligibilityError{Kind: ErrCodeNotFound, Code: code}
	}
	if c.HasStudent(studentID) {
		return *c, nil
	}
	if err := e.store.AddStudentToClassroom(ctx, c.ID, studentID); err != nil {
		return model.Classroom{}, fmt.Errorf("join classroom: %w", err)
	}
	c.StudentIDs = append(c.StudentIDs, studentID)
	slog.Info("student joined classroom", "classroom_id", c.ID, "student_id", studentID)
	return *c, nil
}

// StudentClassrooms returns the classrooms the student is enrolled in.
func (e *Engine) StudentClassrooms(ctx context.Context, studentID string) ([]model.Classroom, error) {
	classes, err := e.store.ListClassrooms(ctx, model.ClassroomFilter{StudentID: studentID})
	if err != nil {
		return nil, fmt.Errorf("list classrooms: %w", err)
	}
	return classes, nil
}
