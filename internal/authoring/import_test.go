package authoring

import (
	"errors"
	"testing"
)

func TestParseImport(t *testing.T) {
	data := []byte(`[
		{"text": "2+2", "options": ["3", "4"], "correctAnswer": 1},
		{"text": "Capital of Turkey", "options": ["Istanbul", "Ankara", "Izmir"], "correctAnswer": 0}
	]`)
	qs, err := ParseImport(data)
	if err != nil {
		t.Fatalf("ParseImport: %v", err)
	}
	if len(qs) != 2 {
		t.Fatalf("len = %d, want 2", len(qs))
	}
	if qs[0].Text != "2+2" || qs[0].CorrectAnswer != 1 || len(qs[1].Options) != 3 {
		t.Errorf("got %+v", qs)
	}
	if qs[0].ID == "" || qs[0].ID == qs[1].ID {
		t.Errorf("ids not assigned: %q %q", qs[0].ID, qs[1].ID)
	}
}

func TestParseImportRejects(t *testing.T) {
	tests := []struct {
		name      string
		data      string
		malformed bool
		field     string
		rule      string
	}{
		{"not json", `{{`, true, "", ""},
		{"object instead of array", `{"text": "x"}`, true, "", ""},
		{"unknown field", `[{"text": "x", "options": ["a","b"], "correctAnswer": 0, "points": 3}]`, true, "", ""},
		{"trailing data", `[] []`, true, "", ""},
		{"empty array", `[]`, false, "questions", "min"},
		{"missing correct answer", `[{"text": "x", "options": ["a","b"]}]`, false, "[0].correctAnswer", "required"},
		{"missing options", `[{"text": "x", "correctAnswer": 0}]`, false, "[0].options", "required"},
		{"missing text", `[{"options": ["a","b"], "correctAnswer": 0}]`, false, "[0].text", "required"},
		{"correct out of range", `[{"text": "x", "options": ["a","b"], "correctAnswer": 2}]`, false, "questions[0].correct_answer", "lt"},
		{"one bad among good", `[
			{"text": "ok", "options": ["a","b"], "correctAnswer": 0},
			{"text": "", "options": ["a","b"], "correctAnswer": 0}
		]`, false, "questions[1].text", "required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			qs, err := ParseImport([]byte(tt.data))
			if qs != nil {
				t.Errorf("partial result returned: %+v", qs)
			}
			if tt.malformed {
				if !errors.Is(err, ErrMalformedImport) {
					t.Errorf("err = %v, want ErrMalformedImport", err)
				}
				return
			}
			hasProblem(t, err, tt.field, tt.rule)
		})
	}
}
