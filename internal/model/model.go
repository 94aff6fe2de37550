package model

import (
	"context"
	"time"
)

// UserRole represents a user's access level.
type UserRole string

const (
	// UserRoleStudent is a student user role.
	UserRoleStudent UserRole = "student"
	// UserRoleTeacher is a teacher user role.
	UserRoleTeacher UserRole = "teacher"
	// UserRoleAdmin is an admin user role.
	UserRoleAdmin UserRole = "admin"
)

// Valid reports whether r is one of the known roles.
func (r UserRole) Valid() bool {
	switch r {
	case UserRoleStudent, UserRoleTeacher, UserRoleAdmin:
		return true
	}
	return false
}

// User represents a system user.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Phone        string    `json:"phone,omitempty"`
	PasswordHash string    `json:"-"`
	Role         UserRole  `json:"role"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
}

// AuthSession represents an authentication session.
type AuthSession struct {
	ID        string
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time
}

type userCtxKey struct{}

// ContextWithUser stores a user in the request context.
func ContextWithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, u)
}

// UserFromContext retrieves the authenticated user from context, or nil.
func UserFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(userCtxKey{}).(*User)
	return u
}

type basePathCtxKey struct{}

// ContextWithBasePath stores the base path prefix in context.
func ContextWithBasePath(ctx context.Context, basePath string) context.Context {
	return context.WithValue(ctx, basePathCtxKey{}, basePath)
}

// BasePathFromContext retrieves the base path from context (empty string if not set).
func BasePathFromContext(ctx context.Context) string {
	bp, _ := ctx.Value(basePathCtxKey{}).(string)
	return bp
}

// Visibility controls which students can see a test.
type Visibility string

const (
	// VisibilityPublic tests are listed for every student.
	VisibilityPublic Visibility = "public"
	// VisibilityRestricted tests are listed only for students enrolled in one of the allowed classes.
	VisibilityRestricted Visibility = "restricted"
)

// Question is a single multiple-choice question as authored.
type Question struct {
	ID            string   `json:"id"`
	Text          string   `json:"text" validate:"required"`
	Options       []string `json:"options" validate:"min=2,dive,required"`
	CorrectAnswer int      `json:"correct_answer" validate:"gte=0"`
}

// Test is an authored set of questions with delivery rules.
type Test struct {
	ID                      string     `json:"id"`
	TeacherID               string     `json:"teacher_id" validate:"required"`
	Title                   string     `json:"title" validate:"required"`
	Description             string     `json:"description"`
	Questions               []Question `json:"questions" validate:"min=1,unique=ID,dive"`
	Visibility              Visibility `json:"visibility" validate:"oneof=public restricted"`
	AllowedClassIDs         []string   `json:"allowed_class_ids"`
	AllowMultipleAttempts   bool       `json:"allow_multiple_attempts"`
	ShowFeedbackImmediately bool       `json:"show_feedback_immediately"`
	RandomizeQuestions      bool       `json:"randomize_questions"`
	RandomizeOptions        bool       `json:"randomize_options"`
	IsActive                bool       `json:"is_active"`
	CreatedAt               time.Time  `json:"created_at"`
}

// IsPublic reports whether every student can see the test.
func (t Test) IsPublic() bool {
	return t.Visibility == VisibilityPublic
}

// Classroom groups students under a teacher and carries the join code.
type Classroom struct {
	ID         string   `json:"id"`
	TeacherID  string   `json:"teacher_id"`
	Name       string   `json:"name"`
	Code       string   `json:"code"`
	StudentIDs []string `json:"student_ids"`
}

// HasStudent reports whether studentID is enrolled.
func (c Classroom) HasStudent(studentID string) bool {
	for _, id := range c.StudentIDs {
		if id == studentID {
			return true
		}
	}
	return false
}

// Unanswered marks a presented position with no selection.
const Unanswered = -1

// SlotLayout records how one presented position maps back to the authored test.
type SlotLayout struct {
	QuestionID  string `json:"question_id"`
	OptionOrder []int  `json:"option_order"`
}

// Attempt is the immutable record of one submitted test.
type Attempt struct {
	ID             string       `json:"id"`
	TestID         string       `json:"test_id"`
	StudentID      string       `json:"student_id"`
	Score          int          `json:"score"`
	TotalQuestions int          `json:"total_questions"`
	Answers        []int        `json:"answers"`
	Layout         []SlotLayout `json:"layout,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
}

// PresentedQuestion is a question as shown in one attempt. CorrectAnswer indexes Options
// after any option shuffling; OptionOrder[i] is the authored index of Options[i].
type PresentedQuestion struct {
	Question
	OptionOrder []int `json:"option_order"`
}

// PresentedTest is the per-attempt view of a test after randomization.
type PresentedTest struct {
	TestID    string              `json:"test_id"`
	Seed      uint64              `json:"seed"`
	Questions []PresentedQuestion `json:"questions"`
}

// Layout returns the per-position mapping back to authored questions.
func (p PresentedTest) Layout() []SlotLayout {
	out := make([]SlotLayout, len(p.Questions))
	for i, q := range p.Questions {
		out[i] = SlotLayout{QuestionID: q.ID, OptionOrder: append([]int(nil), q.OptionOrder...)}
	}
	return out
}

// EntityKind names a record collection for administrative deletes.
type EntityKind string

const (
	EntityUsers      EntityKind = "users"
	EntityTests      EntityKind = "tests"
	EntityClassrooms EntityKind = "classrooms"
	EntityAttempts   EntityKind = "attempts"
)

// Valid reports whether k names a known collection.
func (k EntityKind) Valid() bool {
	switch k {
	case EntityUsers, EntityTests, EntityClassrooms, EntityAttempts:
		return true
	}
	return false
}

// ClassroomFilter selects classrooms. Empty fields do not filter.
type ClassroomFilter struct {
	ID        string
	TeacherID string
	StudentID string
	Code      string // matched case-insensitively
}

// TestFilter selects tests. Empty fields do not filter.
type TestFilter struct {
	ID        string
	TeacherID string
}

// AttemptFilter selects attempts. Empty fields do not filter.
type AttemptFilter struct {
	TestID    string
	StudentID string
}

// SystemState is the administrative bulk view of every collection.
type SystemState struct {
	Users      []User      `json:"users"`
	Classrooms []Classroom `json:"classrooms"`
	Tests      []Test      `json:"tests"`
	Attempts   []Attempt   `json:"attempts"`
	Version    string      `json:"version"`
}

// ServerConfig holds runtime parameters set via CLI flags.
type ServerConfig struct {
	BasePath      string // URL prefix for sub-path deployments (e.g. "/tr")
	SecureCookies bool   // Set Secure flag on cookies (disable for local dev)
}
