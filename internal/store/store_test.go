package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pavelanni/edutest/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("newTestStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func createTestUser(t *testing.T, s *Store, email string, role model.UserRole) model.User {
	t.Helper()
	u, err := s.CreateUser(model.User{Name: email, Email: email, PasswordHash: "x", Role: role, Active: true})
	if err != nil {
		t.Fatalf("CreateUser(%s): %v", email, err)
	}
	return u
}

func sampleTest(teacherID string) model.Test {
	return model.Test{
		TeacherID:  teacherID,
		Title:      "Capitals",
		Visibility: model.VisibilityPublic,
		Questions: []model.Question{
			{ID: "q1", Text: "Capital of France?", Options: []string{"Berlin", "Paris", "Rome"}, CorrectAnswer: 1},
			{ID: "q2", Text: "Capital of Italy?", Options: []string{"Rome", "Madrid"}, CorrectAnswer: 0},
		},
		AllowMultipleAttempts: true,
		IsActive:              true,
	}
}

func TestUsers(t *testing.T) {
	s := newTestStore(t)

	count, err := s.UserCount()
	if err != nil {
		t.Fatalf("UserCount: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 users, got %d", count)
	}

	u := createTestUser(t, s, "Ada@Example.com", model.UserRoleStudent)
	if u.ID == "" {
		t.Fatal("expected generated id")
	}

	// Lookup by email ignores case.
	got, err := s.GetUserByEmail("ada@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail: %v", err)
	}
	if got == nil || got.ID != u.ID {
		t.Fatalf("expected user %s, got %+v", u.ID, got)
	}

	if _, err := s.CreateUser(model.User{Name: "dup", Email: "ADA@example.com", PasswordHash: "x", Role: model.UserRoleStudent}); err == nil {
		t.Error("expected duplicate email to fail")
	}

	missing, err := s.GetUserByID("nope")
	if err != nil {
		t.Fatalf("GetUserByID: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for unknown id, got %+v", missing)
	}

	if err := s.ToggleUserActive(u.ID); err != nil {
		t.Fatalf("ToggleUserActive: %v", err)
	}
	got, _ = s.GetUserByID(u.ID)
	if got.Active {
		t.Error("expected user to be inactive after toggle")
	}
	if err := s.ToggleUserActive("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	other := createTestUser(t, s, "bob@example.com", model.UserRoleTeacher)
	byID, err := s.ListUsersByID([]string{other.ID, "nope"})
	if err != nil {
		t.Fatalf("ListUsersByID: %v", err)
	}
	if len(byID) != 1 || byID[0].ID != other.ID {
		t.Errorf("expected only bob, got %+v", byID)
	}
}

func TestAuthSessions(t *testing.T) {
	s := newTestStore(t)
	u := createTestUser(t, s, "ada@example.com", model.UserRoleStudent)

	token, err := s.CreateAuthSession(u.ID)
	if err != nil {
		t.Fatalf("CreateAuthSession: %v", err)
	}
	sess, err := s.GetAuthSession(token)
	if err != nil {
		t.Fatalf("GetAuthSession: %v", err)
	}
	if sess == nil || sess.UserID != u.ID {
		t.Fatalf("expected session for %s, got %+v", u.ID, sess)
	}
	if got := sess.ExpiresAt.Sub(sess.CreatedAt); got != AuthSessionTTL {
		t.Errorf("expected TTL %v, got %v", AuthSessionTTL, got)
	}

	if err := s.RevokeUserSessions(u.ID); err != nil {
		t.Fatalf("RevokeUserSessions: %v", err)
	}
	sess, err = s.GetAuthSession(token)
	if err != nil {
		t.Fatalf("GetAuthSession after revoke: %v", err)
	}
	if sess != nil {
		t.Error("expected revoked session to be gone")
	}

	// Expired sessions are dropped by cleanup.
	if _, err := s.db.Exec(
		`INSERT INTO auth_sessions (id, user_id, created_at, expires_at) VALUES (?, ?, ?, ?)`,
		"stale", u.ID, time.Now().Add(-48*time.Hour), time.Now().Add(-24*time.Hour),
	); err != nil {
		t.Fatalf("insert stale session: %v", err)
	}
	n, err := s.CleanupExpiredSessions()
	if err != nil {
		t.Fatalf("CleanupExpiredSessions: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 expired session removed, got %d", n)
	}
}

func TestClassrooms(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c, err := s.CreateClassroom(ctx, "  Period 1 ", "teacher-1")
	if err != nil {
		t.Fatalf("CreateClassroom: %v", err)
	}
	if c.Name != "Period 1" {
		t.Errorf("expected trimmed name, got %q", c.Name)
	}
	if len(c.Code) != joinCodeLength {
		t.Errorf("expected %d-character code, got %q", joinCodeLength, c.Code)
	}

	// Enrolling twice leaves one membership.
	for range 2 {
		if err := s.AddStudentToClassroom(ctx, c.ID, "student-1"); err != nil {
			t.Fatalf("AddStudentToClassroom: %v", err)
		}
	}
	if err := s.AddStudentToClassroom(ctx, "nope", "student-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown classroom, got %v", err)
	}

	tests := []struct {
		name   string
		filter model.ClassroomFilter
		want   int
	}{
		{"all", model.ClassroomFilter{}, 1},
		{"by teacher", model.ClassroomFilter{TeacherID: "teacher-1"}, 1},
		{"other teacher", model.ClassroomFilter{TeacherID: "teacher-2"}, 0},
		{"by code lower case", model.ClassroomFilter{Code: " " + strings.ToLower(c.Code) + " "}, 1},
		{"by student", model.ClassroomFilter{StudentID: "student-1"}, 1},
		{"not enrolled", model.ClassroomFilter{StudentID: "student-2"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ListClassrooms(ctx, tt.filter)
			if err != nil {
				t.Fatalf("ListClassrooms: %v", err)
			}
			if len(got) != tt.want {
				t.Fatalf("expected %d classrooms, got %d", tt.want, len(got))
			}
			if tt.want == 1 && len(got[0].StudentIDs) != 1 {
				t.Errorf("expected roster of 1, got %v", got[0].StudentIDs)
			}
		})
	}
}

func TestUpsertTest(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.UpsertTest(ctx, sampleTest("teacher-1"))
	if err != nil {
		t.Fatalf("UpsertTest create: %v", err)
	}
	if created.ID == "" || created.CreatedAt.IsZero() {
		t.Fatalf("expected id and created_at, got %+v", created)
	}

	got, err := s.GetTest(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetTest: %v", err)
	}
	if len(got.Questions) != 2 || got.Questions[0].Options[1] != "Paris" {
		t.Errorf("questions did not round-trip: %+v", got.Questions)
	}
	if got.AllowedClassIDs == nil || len(got.AllowedClassIDs) != 0 {
		t.Errorf("expected empty allowed classes, got %v", got.AllowedClassIDs)
	}

	// Update replaces the record and the class list but keeps created_at.
	got.Title = "European capitals"
	got.Visibility = model.VisibilityRestricted
	got.AllowedClassIDs = []string{"class-b", "class-a"}
	got.CreatedAt = time.Time{}
	updated, err := s.UpsertTest(ctx, got)
	if err != nil {
		t.Fatalf("UpsertTest update: %v", err)
	}
	if !updated.CreatedAt.Equal(created.CreatedAt) {
		t.Errorf("created_at changed: %v -> %v", created.CreatedAt, updated.CreatedAt)
	}
	got, _ = s.GetTest(ctx, created.ID)
	if got.Title != "European capitals" {
		t.Errorf("expected updated title, got %q", got.Title)
	}
	if len(got.AllowedClassIDs) != 2 || got.AllowedClassIDs[0] != "class-a" {
		t.Errorf("expected sorted allowed classes, got %v", got.AllowedClassIDs)
	}

	if err := s.SetTestActive(ctx, created.ID, false); err != nil {
		t.Fatalf("SetTestActive: %v", err)
	}
	got, _ = s.GetTest(ctx, created.ID)
	if got.IsActive {
		t.Error("expected test to be inactive")
	}
	if err := s.SetTestActive(ctx, "nope", true); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.GetTest(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	list, err := s.ListTests(ctx, model.TestFilter{TeacherID: "teacher-2"})
	if err != nil {
		t.Fatalf("ListTests: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("expected no tests for another teacher, got %d", len(list))
	}
}

func TestCreateAttemptIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := model.Attempt{
		ID:             "attempt-1",
		TestID:         "test-1",
		StudentID:      "student-1",
		Score:          1,
		TotalQuestions: 2,
		Answers:        []int{1, model.Unanswered},
		Layout:         []model.SlotLayout{{QuestionID: "q1", OptionOrder: []int{0, 1, 2}}, {QuestionID: "q2", OptionOrder: []int{1, 0}}},
	}
	first, err := s.CreateAttempt(ctx, a)
	if err != nil {
		t.Fatalf("CreateAttempt: %v", err)
	}

	a.Score = 2
	second, err := s.CreateAttempt(ctx, a)
	if err != nil {
		t.Fatalf("CreateAttempt retry: %v", err)
	}
	if second.Score != first.Score {
		t.Errorf("retry overwrote the stored record: score %d -> %d", first.Score, second.Score)
	}

	attempts, err := s.ListAttempts(ctx, model.AttemptFilter{StudentID: "student-1"})
	if err != nil {
		t.Fatalf("ListAttempts: %v", err)
	}
	if len(attempts) != 1 {
		t.Fatalf("expected 1 attempt, got %d", len(attempts))
	}
	if got := attempts[0].Answers; len(got) != 2 || got[1] != model.Unanswered {
		t.Errorf("answers did not round-trip: %v", got)
	}
	if got := attempts[0].Layout; len(got) != 2 || got[1].OptionOrder[0] != 1 {
		t.Errorf("layout did not round-trip: %+v", got)
	}

	// A write without an id gets one.
	anon, err := s.CreateAttempt(ctx, model.Attempt{TestID: "test-1", StudentID: "student-2"})
	if err != nil {
		t.Fatalf("CreateAttempt without id: %v", err)
	}
	if anon.ID == "" {
		t.Error("expected generated id")
	}
}

func TestRemoveEntity(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	student := createTestUser(t, s, "ada@example.com", model.UserRoleStudent)
	c, _ := s.CreateClassroom(ctx, "Period 1", "teacher-1")
	if err := s.AddStudentToClassroom(ctx, c.ID, student.ID); err != nil {
		t.Fatalf("AddStudentToClassroom: %v", err)
	}
	test := sampleTest("teacher-1")
	test.Visibility = model.VisibilityRestricted
	test.AllowedClassIDs = []string{c.ID}
	test, _ = s.UpsertTest(ctx, test)
	if _, err := s.CreateAttempt(ctx, model.Attempt{ID: "a1", TestID: test.ID, StudentID: student.ID}); err != nil {
		t.Fatalf("CreateAttempt: %v", err)
	}

	if err := s.RemoveEntity(ctx, model.EntityClassrooms, c.ID); err != nil {
		t.Fatalf("RemoveEntity classroom: %v", err)
	}
	got, _ := s.GetTest(ctx, test.ID)
	if len(got.AllowedClassIDs) != 0 {
		t.Errorf("expected class link removed, got %v", got.AllowedClassIDs)
	}

	if err := s.RemoveEntity(ctx, model.EntityUsers, student.ID); err != nil {
		t.Fatalf("RemoveEntity user: %v", err)
	}
	attempts, _ := s.ListAttempts(ctx, model.AttemptFilter{})
	if len(attempts) != 1 {
		t.Errorf("expected attempts to survive user removal, got %d", len(attempts))
	}

	if err := s.RemoveEntity(ctx, model.EntityTests, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := s.RemoveEntity(ctx, model.EntityAttempts, "a1"); err != nil {
		t.Fatalf("RemoveEntity attempt: %v", err)
	}
	if err := s.RemoveEntity(ctx, model.EntityKind("grades"), "x"); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestWipeKeepsAdmins(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	admin := createTestUser(t, s, "admin@example.com", model.UserRoleAdmin)
	adminToken, _ := s.CreateAuthSession(admin.ID)
	student := createTestUser(t, s, "ada@example.com", model.UserRoleStudent)
	studentToken, _ := s.CreateAuthSession(student.ID)
	if _, err := s.UpsertTest(ctx, sampleTest("teacher-1")); err != nil {
		t.Fatalf("UpsertTest: %v", err)
	}
	if _, err := s.CreateClassroom(ctx, "Period 1", "teacher-1"); err != nil {
		t.Fatalf("CreateClassroom: %v", err)
	}
	if err := s.SetImportedFileHash("questions.json", "abc"); err != nil {
		t.Fatalf("SetImportedFileHash: %v", err)
	}

	if err := s.Wipe(ctx); err != nil {
		t.Fatalf("Wipe: %v", err)
	}

	state, err := s.SystemState(ctx)
	if err != nil {
		t.Fatalf("SystemState: %v", err)
	}
	if len(state.Users) != 1 || state.Users[0].ID != admin.ID {
		t.Errorf("expected only the admin to remain, got %+v", state.Users)
	}
	if len(state.Tests) != 0 || len(state.Classrooms) != 0 || len(state.Attempts) != 0 {
		t.Errorf("expected empty collections, got %+v", state)
	}
	if state.Version != SchemaVersion {
		t.Errorf("expected version %s, got %q", SchemaVersion, state.Version)
	}
	if sess, _ := s.GetAuthSession(adminToken); sess == nil {
		t.Error("expected admin session to survive")
	}
	if sess, _ := s.GetAuthSession(studentToken); sess != nil {
		t.Error("expected student session to be gone")
	}
	if h, _ := s.GetImportedFileHash("questions.json"); h != "" {
		t.Errorf("expected imported hashes cleared, got %q", h)
	}
}

func TestMetadata(t *testing.T) {
	s := newTestStore(t)

	if v, err := s.GetMetadata("missing"); err != nil || v != "" {
		t.Errorf("expected empty value, got %q, %v", v, err)
	}
	if err := s.SetMetadata("k", "v1"); err != nil {
		t.Fatalf("SetMetadata: %v", err)
	}
	if err := s.SetMetadata("k", "v2"); err != nil {
		t.Fatalf("SetMetadata overwrite: %v", err)
	}
	if v, _ := s.GetMetadata("k"); v != "v2" {
		t.Errorf("expected v2, got %q", v)
	}

	if err := s.SetImportedFileHash("a.json", "h1"); err != nil {
		t.Fatalf("SetImportedFileHash: %v", err)
	}
	if err := s.SetImportedFileHash("a.json", "h2"); err != nil {
		t.Fatalf("SetImportedFileHash overwrite: %v", err)
	}
	if h, _ := s.GetImportedFileHash("a.json"); h != "h2" {
		t.Errorf("expected h2, got %q", h)
	}
}

func TestResolveAnswers(t *testing.T) {
	test := sampleTest("teacher-1")
	tests := []struct {
		name    string
		attempt model.Attempt
		want    []model.QuestionResult
	}{
		{
			name: "shuffled options map back to authored text",
			attempt: model.Attempt{
				Answers: []int{0, 1},
				Layout: []model.SlotLayout{
					{QuestionID: "q2", OptionOrder: []int{1, 0}},
					{QuestionID: "q1", OptionOrder: []int{2, 1, 0}},
				},
			},
			want: []model.QuestionResult{
				{Position: 0, QuestionText: "Capital of Italy?", Selected: "Madrid", Correct: "Rome"},
				{Position: 1, QuestionText: "Capital of France?", Selected: "Paris", Correct: "Paris", IsCorrect: true},
			},
		},
		{
			name: "unanswered and removed questions",
			attempt: model.Attempt{
				Answers: []int{model.Unanswered, 0},
				Layout: []model.SlotLayout{
					{QuestionID: "q1", OptionOrder: []int{0, 1, 2}},
					{QuestionID: "gone", OptionOrder: []int{0, 1}},
				},
			},
			want: []model.QuestionResult{
				{Position: 0, QuestionText: "Capital of France?", Correct: "Paris"},
				{Position: 1},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := resolveAnswers(test, tt.attempt)
			if len(got) != len(tt.want) {
				t.Fatalf("expected %d results, got %d", len(tt.want), len(got))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("result %d: expected %+v, got %+v", i, tt.want[i], got[i])
				}
			}
		})
	}
}

func TestExportResults(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	teacher := createTestUser(t, s, "grace@example.com", model.UserRoleTeacher)
	student := createTestUser(t, s, "ada@example.com", model.UserRoleStudent)
	test, _ := s.UpsertTest(ctx, sampleTest(teacher.ID))
	other, _ := s.UpsertTest(ctx, sampleTest("teacher-2"))

	layout := []model.SlotLayout{{QuestionID: "q1", OptionOrder: []int{0, 1, 2}}, {QuestionID: "q2", OptionOrder: []int{0, 1}}}
	for i, answers := range [][]int{{1, 1}, {1, 0}} {
		a := model.Attempt{
			ID: fmt.Sprintf("a%d", i+1), TestID: test.ID, StudentID: student.ID,
			Score: i + 1, TotalQuestions: 2, Answers: answers, Layout: layout,
			CreatedAt: time.Now().Add(time.Duration(i) * time.Minute),
		}
		if _, err := s.CreateAttempt(ctx, a); err != nil {
			t.Fatalf("CreateAttempt: %v", err)
		}
	}
	if _, err := s.CreateAttempt(ctx, model.Attempt{TestID: other.ID, StudentID: student.ID}); err != nil {
		t.Fatalf("CreateAttempt: %v", err)
	}

	exp, err := s.ExportResults(ctx, teacher.ID)
	if err != nil {
		t.Fatalf("ExportResults: %v", err)
	}
	if len(exp.Tests) != 1 {
		t.Fatalf("expected 1 test in export, got %d", len(exp.Tests))
	}
	te := exp.Tests[0]
	if te.TeacherName != teacher.Name || te.NumQuestions != 2 {
		t.Errorf("unexpected test header: %+v", te)
	}
	if len(te.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(te.Results))
	}
	if te.Results[1].AttemptNumber != 2 || te.Results[1].Percent != 100 {
		t.Errorf("unexpected second result: %+v", te.Results[1])
	}
	if te.Results[0].StudentEmail != student.Email {
		t.Errorf("expected student email, got %q", te.Results[0].StudentEmail)
	}

	all, err := s.ExportResults(ctx, "")
	if err != nil {
		t.Fatalf("ExportResults all: %v", err)
	}
	if len(all.Tests) != 2 {
		t.Errorf("expected 2 tests in full export, got %d", len(all.Tests))
	}
}

func TestSimulated(t *testing.T) {
	ctx := context.Background()

	t.Run("latency within bounds", func(t *testing.T) {
		var slept []time.Duration
		sim := Simulate(newTestStore(t), SimOptions{MinLatency: 400 * time.Millisecond, MaxLatency: 1200 * time.Millisecond})
		sim.sleep = func(_ context.Context, d time.Duration) error {
			slept = append(slept, d)
			return nil
		}
		for range 20 {
			if _, err := sim.ListTests(ctx, model.TestFilter{}); err != nil {
				t.Fatalf("ListTests: %v", err)
			}
		}
		for _, d := range slept {
			if d < 400*time.Millisecond || d >= 1200*time.Millisecond {
				t.Errorf("latency %v out of bounds", d)
			}
		}
	})

	t.Run("failures are transient and write nothing", func(t *testing.T) {
		base := newTestStore(t)
		sim := Simulate(base, SimOptions{FailureRate: 1})
		var calls atomic.Int32
		sim.sleep = func(context.Context, time.Duration) error {
			calls.Add(1)
			return nil
		}
		_, err := sim.CreateAttempt(ctx, model.Attempt{ID: "a1", TestID: "t", StudentID: "s"})
		if !errors.Is(err, ErrTransient) {
			t.Fatalf("expected ErrTransient, got %v", err)
		}
		if calls.Load() != 1 {
			t.Errorf("expected one delay, got %d", calls.Load())
		}
		attempts, _ := base.ListAttempts(ctx, model.AttemptFilter{})
		if len(attempts) != 0 {
			t.Errorf("expected no attempts written, got %d", len(attempts))
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		sim := Simulate(newTestStore(t), SimOptions{MinLatency: time.Hour})
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		if _, err := sim.ListAttempts(cctx, model.AttemptFilter{}); !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})

	t.Run("max below min is clamped", func(t *testing.T) {
		sim := Simulate(newTestStore(t), SimOptions{MinLatency: time.Second, MaxLatency: time.Millisecond})
		if sim.opts.MaxLatency != time.Second {
			t.Errorf("expected max clamped to min, got %v", sim.opts.MaxLatency)
		}
	})
}
