package authoring

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pavelanni/edutest/internal/model"
)

// ErrMalformedImport is returned when an import payload is not a JSON array of questions.
var ErrMalformedImport = errors.New("malformed import payload")

// importQuestion is one entry of the bulk import format. Every field is required.
type importQuestion struct {
	Text          *string  `json:"text" validate:"required"`
	Options       []string `json:"options" validate:"required"`
	CorrectAnswer *int     `json:"correctAnswer" validate:"required"`
}

// ParseImport decodes a bulk import payload of the form
//
//	[{"text": "...", "options": ["a", "b"], "correctAnswer": 1}]
//
// The payload is accepted or rejected as a whole: unknown fields, missing fields and any
// invalid question fail the import. Returned questions have fresh ids.
func ParseImport(data []byte) ([]model.Question, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var raw []importQuestion
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedImport, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data after array", ErrMalformedImport)
	}

	ve := &ValidationError{}
	qs := make([]model.Question, 0, len(raw))
	for i, r := range raw {
		err := problems(validate.Struct(r), "importQuestion")
		if err != nil {
			var qe *ValidationError
			if !errors.As(err, &qe) {
				return nil, err
			}
			for _, p := range qe.Problems {
				p.Field = fmt.Sprintf("[%d].%s", i, p.Field)
				ve.Problems = append(ve.Problems, p)
			}
			continue
		}
		qs = append(qs, model.Question{Text: *r.Text, Options: r.Options, CorrectAnswer: *r.CorrectAnswer})
	}
	if len(ve.Problems) > 0 {
		return nil, ve
	}

	return ValidateQuestions(qs)
}
