package delivery

import (
	"errors"
	"fmt"
)

// Eligibility error kinds. Match them with errors.Is.
var (
	ErrCodeNotFound      = errors.New("classroom code not found")
	ErrAttemptNotAllowed = errors.New("attempt not allowed")
)

var (
	ErrTestNotFound       = errors.New("test not found")
	ErrEmptyTest          = errors.New("test has no questions")
	ErrNotInProgress      = errors.New("attempt is not in progress")
	ErrAlreadyStarted     = errors.New("attempt already started")
	ErrAlreadyFinished    = errors.New("attempt already submitted")
	ErrNotFinalQuestion   = errors.New("submit is only possible from the final question")
	ErrSubmissionInFlight = errors.New("submission already in flight")
	ErrInvalidPosition    = errors.New("question position is not the current one")
	ErrInvalidOption      = errors.New("option index out of range")
	ErrInvalidDelta       = errors.New("navigation step must be +1 or -1")
	ErrSessionNotFound    = errors.New("no attempt in progress")
	ErrSessionActive      = errors.New("another attempt is already in progress")
)

// Reason explains why a test cannot be attempted.
type Reason string

const (
	ReasonNone         Reason = ""
	ReasonNotActive    Reason = "not_active"
	ReasonLimitReached Reason = "limit_reached"
)

// EligibilityError is returned for join-code misses and for attempts that the
// attemptability predicate rejects, at start or at submission.
type EligibilityError struct {
	Kind   error // ErrCodeNotFound or ErrAttemptNotAllowed
	Reason Reason
	TestID string
	Code   string
}

func (e *EligibilityError) Error() string {
	switch {
	case e.Reason != ReasonNone:
		return fmt.Sprintf("%v: test %s: %s", e.Kind, e.TestID, e.Reason)
	case e.Code != "":
		return fmt.Sprintf("%v: %q", e.Kind, e.Code)
	}
	return e.Kind.Error()
}

func (e *EligibilityError) Unwrap() error { return e.Kind }

func notAllowed(testID string, reason Reason) *EligibilityError {
	return &EligibilityError{Kind: ErrAttemptNotAllowed, Reason: reason, TestID: testID}
}
