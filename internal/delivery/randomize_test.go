package delivery

import (
	"slices"
	"testing"

	"github.com/pavelanni/edutest/internal/model"
)

func TestPresentWithoutRandomization(t *testing.T) {
	tt := publicTest("t1", 5)
	p := Present(tt, 42)

	if len(p.Questions) != len(tt.Questions) {
		t.Fatalf("len = %d, want %d", len(p.Questions), len(tt.Questions))
	}
	for i, q := range p.Questions {
		orig := tt.Questions[i]
		if q.ID != orig.ID {
			t.Errorf("position %d: question %s, want %s", i, q.ID, orig.ID)
		}
		if !slices.Equal(q.Options, orig.Options) {
			t.Errorf("position %d: options %v, want %v", i, q.Options, orig.Options)
		}
		if q.CorrectAnswer != orig.CorrectAnswer {
			t.Errorf("position %d: correct %d, want %d", i, q.CorrectAnswer, orig.CorrectAnswer)
		}
	}
}

func TestPresentKeepsCorrectOptionText(t *testing.T) {
	tt := model.Test{
		ID:                 "t1",
		RandomizeQuestions: true,
		RandomizeOptions:   true,
		Questions: []model.Question{
			{ID: "q1", Text: "2+2", Options: []string{"3", "4", "5"}, CorrectAnswer: 1},
			{ID: "q2", Text: "capital of France", Options: []string{"Paris", "Rome", "Berlin", "Madrid"}, CorrectAnswer: 0},
			{ID: "q3", Text: "largest", Options: []string{"a", "b"}, CorrectAnswer: 1},
			{ID: "q4", Text: "last", Options: []string{"k", "l", "m", "n", "o"}, CorrectAnswer: 4},
		},
	}
	byID := make(map[string]model.Question)
	for _, q := range tt.Questions {
		byID[q.ID] = q
	}

	for seed := range uint64(500) {
		p := Present(tt, seed)
		seen := make(map[string]bool)
		for pos, q := range p.Questions {
			orig := byID[q.ID]
			seen[q.ID] = true
			if got, want := q.Options[q.CorrectAnswer], orig.Options[orig.CorrectAnswer]; got != want {
				t.Fatalf("seed %d position %d: correct text %q, want %q", seed, pos, got, want)
			}
			for i, from := range q.OptionOrder {
				if q.Options[i] != orig.Options[from] {
					t.Fatalf("seed %d position %d: option order does not map back", seed, pos)
				}
			}
		}
		if len(seen) != len(tt.Questions) {
			t.Fatalf("seed %d: presented %d distinct questions, want %d", seed, len(seen), len(tt.Questions))
		}
	}
	if tt.Questions[0].Options[1] != "4" {
		t.Error("Present modified the authored test")
	}
}

func TestPresentDeterministic(t *testing.T) {
	tt := publicTest("t1", 8)
	tt.RandomizeQuestions = true
	tt.RandomizeOptions = true

	a, b := Present(tt, 7), Present(tt, 7)
	for i := range a.Questions {
		if a.Questions[i].ID != b.Questions[i].ID || !slices.Equal(a.Questions[i].OptionOrder, b.Questions[i].OptionOrder) {
			t.Fatalf("same seed produced different presentations at %d", i)
		}
	}

	differs := false
	for seed := uint64(1); seed < 20 && !differs; seed++ {
		c := Present(tt, seed)
		for i := range a.Questions {
			if a.Questions[i].ID != c.Questions[i].ID {
				differs = true
				break
			}
		}
	}
	if !differs {
		t.Error("question order never changed across seeds")
	}
}

func TestLayout(t *testing.T) {
	tt := publicTest("t1", 3)
	tt.RandomizeOptions = true
	p := Present(tt, 3)
	layout := p.Layout()
	for i, slot := range layout {
		if slot.QuestionID != p.Questions[i].ID {
			t.Errorf("slot %d question %s, want %s", i, slot.QuestionID, p.Questions[i].ID)
		}
		if !slices.Equal(slot.OptionOrder, p.Questions[i].OptionOrder) {
			t.Errorf("slot %d option order mismatch", i)
		}
	}
}
