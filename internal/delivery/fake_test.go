package delivery

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/pavelanni/edutest/internal/model"
)

var errFakeTransient = errors.New("fake transient failure")

// memStore is an in-memory RecordStore for engine tests.
type memStore struct {
	mu         sync.Mutex
	classrooms []model.Classroom
	tests      map[string]model.Test
	attempts   []model.Attempt

	// createFailures makes the next N CreateAttempt calls fail. When lostWrite is set the
	// failing call still stores the attempt, as if the reply was lost.
	createFailures int
	lostWrite      bool
	createCalls    int
}

func newMemStore() *memStore {
	return &memStore{tests: make(map[string]model.Test)}
}

func (m *memStore) ListClassrooms(_ context.Context, f model.ClassroomFilter) ([]model.Classroom, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Classroom
	for _, c := range m.classrooms {
		if f.ID != "" && c.ID != f.ID {
			continue
		}
		if f.TeacherID != "" && c.TeacherID != f.TeacherID {
			continue
		}
		if f.StudentID != "" && !c.HasStudent(f.StudentID) {
			continue
		}
		if f.Code != "" && !strings.EqualFold(c.Code, f.Code) {
			continue
		}
		c.StudentIDs = append([]string(nil), c.StudentIDs...)
		out = append(out, c)
	}
	return out, nil
}

func (m *memStore) AddStudentToClassroom(_ context.Context, classroomID, studentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.classrooms {
		if m.classrooms[i].ID == classroomID {
			if !m.classrooms[i].HasStudent(studentID) {
				m.classrooms[i].StudentIDs = append(m.classrooms[i].StudentIDs, studentID)
			}
			return nil
		}
	}
	return errors.New("classroom not found")
}

func (m *memStore) ListTests(_ context.Context, f model.TestFilter) ([]model.Test, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Test
	for _, t := range m.tests {
		if f.ID != "" && t.ID != f.ID {
			continue
		}
		if f.TeacherID != "" && t.TeacherID != f.TeacherID {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (m *memStore) UpsertTest(_ context.Context, t model.Test) (model.Test, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tests[t.ID] = t
	return t, nil
}

func (m *memStore) SetTestActive(_ context.Context, id string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tests[id]
	if !ok {
		return errors.New("test not found")
	}
	t.IsActive = active
	m.tests[id] = t
	return nil
}

func (m *memStore) ListAttempts(_ context.Context, f model.AttemptFilter) ([]model.Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Attempt
	for _, a := range m.attempts {
		if f.TestID != "" && a.TestID != f.TestID {
			continue
		}
		if f.StudentID != "" && a.StudentID != f.StudentID {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (m *memStore) CreateAttempt(_ context.Context, a model.Attempt) (model.Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createCalls++
	if m.createFailures > 0 {
		m.createFailures--
		if m.lostWrite {
			m.insertLocked(a)
		}
		return model.Attempt{}, errFakeTransient
	}
	return m.insertLocked(a), nil
}

func (m *memStore) insertLocked(a model.Attempt) model.Attempt {
	for _, existing := range m.attempts {
		if existing.ID == a.ID {
			return existing
		}
	}
	m.attempts = append(m.attempts, a)
	return a
}

func (m *memStore) RemoveEntity(_ context.Context, kind model.EntityKind, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if kind == model.EntityTests {
		delete(m.tests, id)
	}
	return nil
}

func (m *memStore) attemptCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.attempts)
}

// questions builds n questions whose correct answer is option i%len(options).
func questions(n int) []model.Question {
	qs := make([]model.Question, n)
	for i := range qs {
		qs[i] = model.Question{
			ID:            "q" + string(rune('a'+i)),
			Text:          "Question " + string(rune('A'+i)),
			Options:       []string{"w", "x", "y", "z"},
			CorrectAnswer: i % 4,
		}
	}
	return qs
}

func publicTest(id string, n int) model.Test {
	return model.Test{
		ID:         id,
		TeacherID:  "teacher",
		Title:      "Test " + id,
		Questions:  questions(n),
		Visibility: model.VisibilityPublic,
		IsActive:   true,
	}
}
