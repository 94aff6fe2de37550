package store

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/pavelanni/edutest/internal/model"
)

// ExportResults builds export-ready results for every test, optionally limited to one teacher.
func (s *Store) ExportResults(ctx context.Context, teacherID string) (model.ResultsExport, error) {
	out := model.ResultsExport{ExportedAt: time.Now().UTC(), Version: SchemaVersion}

	tests, err := s.ListTests(ctx, model.TestFilter{TeacherID: teacherID})
	if err != nil {
		return out, fmt.Errorf("list tests: %w", err)
	}
	users, err := s.ListUsers()
	if err != nil {
		return out, fmt.Errorf("list users: %w", err)
	}
	byID := make(map[string]model.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}

	for _, t := range tests {
		attempts, err := s.ListAttempts(ctx, model.AttemptFilter{TestID: t.ID})
		if err != nil {
			return out, fmt.Errorf("list attempts for test %s: %w", t.ID, err)
		}

		te := model.TestExport{
			TestID:       t.ID,
			Title:        t.Title,
			TeacherName:  byID[t.TeacherID].Name,
			NumQuestions: len(t.Questions),
			Results:      []model.StudentResult{},
		}

		// Track attempt count per student for attempt_number.
		perStudent := make(map[string]int)
		for _, a := range attempts {
			perStudent[a.StudentID]++
			student := byID[a.StudentID]
			te.Results = append(te.Results, model.StudentResult{
				AttemptID:     a.ID,
				StudentEmail:  student.Email,
				StudentName:   student.Name,
				AttemptNumber: perStudent[a.StudentID],
				Score:         a.Score,
				Total:         a.TotalQuestions,
				Percent:       percent(a.Score, a.TotalQuestions),
				SubmittedAt:   a.CreatedAt,
				Answers:       resolveAnswers(t, a),
			})
		}
		out.Tests = append(out.Tests, te)
	}
	return out, nil
}

// resolveAnswers maps presented answers back to option text through the attempt layout.
// Questions edited or removed since the attempt are reported with empty text.
func resolveAnswers(t model.Test, a model.Attempt) []model.QuestionResult {
	questions := make(map[string]model.Question, len(t.Questions))
	for _, q := range t.Questions {
		questions[q.ID] = q
	}

	results := make([]model.QuestionResult, 0, len(a.Answers))
	for pos, selected := range a.Answers {
		qr := model.QuestionResult{Position: pos}
		if pos >= len(a.Layout) {
			results = append(results, qr)
			continue
		}
		slot := a.Layout[pos]
		q, ok := questions[slot.QuestionID]
		if !ok {
			results = append(results, qr)
			continue
		}
		qr.QuestionText = q.Text
		if q.CorrectAnswer >= 0 && q.CorrectAnswer < len(q.Options) {
			qr.Correct = q.Options[q.CorrectAnswer]
		}
		if selected >= 0 && selected < len(slot.OptionOrder) {
			authored := slot.OptionOrder[selected]
			if authored >= 0 && authored < len(q.Options) {
				qr.Selected = q.Options[authored]
				qr.IsCorrect = authored == q.CorrectAnswer
			}
		}
		results = append(results, qr)
	}
	return results
}

func percent(score, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(score)/float64(total)*1000) / 10
}
