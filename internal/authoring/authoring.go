// Package authoring validates tests written by teachers and parses bulk question imports.
package authoring

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/pavelanni/edutest/internal/model"
)

// Problem is one validation failure. Field is a JSON path such as "questions[2].options".
type Problem struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
	Param string `json:"param,omitempty"`
}

// ValidationError lists every problem found in a test or import payload.
type ValidationError struct {
	Problems []Problem `json:"problems"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		parts[i] = p.Field + ": " + p.Rule
		if p.Param != "" {
			parts[i] += "=" + p.Param
		}
	}
	return "invalid test: " + strings.Join(parts, "; ")
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterStructValidation(questionRules, model.Question{})
	return v
}

// questionRules rejects a correct index past the last option.
func questionRules(sl validator.StructLevel) {
	q := sl.Current().Interface().(model.Question)
	if len(q.Options) > 0 && q.CorrectAnswer >= len(q.Options) {
		sl.ReportError(q.CorrectAnswer, "correct_answer", "CorrectAnswer", "lt", fmt.Sprint(len(q.Options)))
	}
}

func problems(err error, root string) error {
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	ve := &ValidationError{}
	for _, fe := range verrs {
		field := strings.TrimPrefix(fe.Namespace(), root+".")
		ve.Problems = append(ve.Problems, Problem{Field: field, Rule: fe.Tag(), Param: fe.Param()})
	}
	return ve
}

// ValidateTest checks a test and returns it normalized: text fields trimmed, missing
// question ids assigned, and the class list cleared for public tests.
func ValidateTest(t model.Test) (model.Test, error) {
	t.Title = strings.TrimSpace(t.Title)
	t.Description = strings.TrimSpace(t.Description)
	t.Questions = normalizeQuestions(t.Questions)
	if t.IsPublic() {
		t.AllowedClassIDs = nil
	}
	if err := problems(validate.Struct(t), "Test"); err != nil {
		return model.Test{}, err
	}
	return t, nil
}

// ValidateQuestions checks questions on their own, e.g. before appending them to a draft.
func ValidateQuestions(qs []model.Question) ([]model.Question, error) {
	qs = normalizeQuestions(qs)
	if len(qs) == 0 {
		return nil, &ValidationError{Problems: []Problem{{Field: "questions", Rule: "min", Param: "1"}}}
	}
	ve := &ValidationError{}
	for i, q := range qs {
		err := problems(validate.Struct(q), "Question")
		if err == nil {
			continue
		}
		qe, ok := err.(*ValidationError)
		if !ok {
			return nil, err
		}
		for _, p := range qe.Problems {
			p.Field = fmt.Sprintf("questions[%d].%s", i, p.Field)
			ve.Problems = append(ve.Problems, p)
		}
	}
	if len(ve.Problems) > 0 {
		return nil, ve
	}
	return qs, nil
}

// Prepare validates a test for saving. A new test (prev == nil) starts inactive; an update
// keeps the stored id, owner, creation time and active flag, which only the toggle changes.
func Prepare(t model.Test, prev *model.Test) (model.Test, error) {
	if prev == nil {
		t.ID = ""
		t.IsActive = false
	} else {
		t.ID = prev.ID
		t.TeacherID = prev.TeacherID
		t.CreatedAt = prev.CreatedAt
		t.IsActive = prev.IsActive
	}
	if t.Visibility == "" {
		t.Visibility = model.VisibilityPublic
	}
	return ValidateTest(t)
}

// AppendImported adds questions to a draft test, giving each a fresh id.
func AppendImported(t model.Test, qs []model.Question) model.Test {
	out := make([]model.Question, 0, len(t.Questions)+len(qs))
	out = append(out, t.Questions...)
	for _, q := range qs {
		q.ID = uuid.NewString()
		q.Options = append([]string(nil), q.Options...)
		out = append(out, q)
	}
	t.Questions = out
	return t
}

func normalizeQuestions(qs []model.Question) []model.Question {
	if qs == nil {
		return nil
	}
	out := make([]model.Question, len(qs))
	for i, q := range qs {
		q.Text = strings.TrimSpace(q.Text)
		opts := make([]string, len(q.Options))
		for j, o := range q.Options {
			opts[j] = strings.TrimSpace(o)
		}
		q.Options = opts
		if q.ID == "" {
			q.ID = uuid.NewString()
		}
		out[i] = q
	}
	return out
}
