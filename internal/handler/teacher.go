package handler

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/edutest/internal/authoring"
	"github.com/pavelanni/edutest/internal/delivery"
	appI18n "github.com/pavelanni/edutest/internal/i18n"
	"github.com/pavelanni/edutest/internal/llm"
	"github.com/pavelanni/edutest/internal/llm/prompts"
	"github.com/pavelanni/edutest/internal/model"
	"github.com/pavelanni/edutest/internal/store"
)

func (h *Handler) handleTeacherClassrooms(w http.ResponseWriter, r *http.Request) {
	classes, err := h.store.ListClassrooms(r.Context(), model.ClassroomFilter{TeacherID: currentUser(r).ID})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, classes)
}

func (h *Handler) handleCreateClassroom(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		writeError(w, r, &authoring.ValidationError{Problems: []authoring.Problem{{Field: "name", Rule: "required"}}})
		return
	}
	c, err := h.store.CreateClassroom(r.Context(), name, currentUser(r).ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *Handler) ownedClassroom(r *http.Request, id string) (model.Classroom, error) {
	classes, err := h.store.ListClassrooms(r.Context(), model.ClassroomFilter{ID: id, TeacherID: currentUser(r).ID})
	if err != nil {
		return model.Classroom{}, err
	}
	if len(classes) == 0 {
		return model.Classroom{}, errNotFound
	}
	return classes[0], nil
}

func (h *Handler) handleClassroomRoster(w http.ResponseWriter, r *http.Request) {
	c, err := h.ownedClassroom(r, chi.URLParam(r, "classroomID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	students, err := h.store.ListUsersByID(c.StudentIDs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if students == nil {
		students = []model.User{}
	}
	writeJSON(w, http.StatusOK, students)
}

func (h *Handler) handleTeacherTests(w http.ResponseWriter, r *http.Request) {
	tests, err := h.store.ListTests(r.Context(), model.TestFilter{TeacherID: currentUser(r).ID})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tests)
}

// ownedTest loads a test of the current teacher. Other teachers' tests are not found.
func (h *Handler) ownedTest(r *http.Request) (model.Test, error) {
	t, err := h.store.GetTest(r.Context(), chi.URLParam(r, "testID"))
	if errors.Is(err, store.ErrNotFound) {
		return model.Test{}, errNotFound
	}
	if err != nil {
		return model.Test{}, err
	}
	if t.TeacherID != currentUser(r).ID {
		return model.Test{}, errNotFound
	}
	return t, nil
}

func (h *Handler) handleTeacherTest(w http.ResponseWriter, r *http.Request) {
	t, err := h.ownedTest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// checkClasses rejects allowed-class ids that are not the teacher's own classrooms.
func (h *Handler) checkClasses(r *http.Request, t model.Test) error {
	if len(t.AllowedClassIDs) == 0 {
		return nil
	}
	classes, err := h.store.ListClassrooms(r.Context(), model.ClassroomFilter{TeacherID: t.TeacherID})
	if err != nil {
		return err
	}
	owned := make(map[string]bool, len(classes))
	for _, c := range classes {
		owned[c.ID] = true
	}
	ve := &authoring.ValidationError{}
	for i, id := range t.AllowedClassIDs {
		if !owned[id] {
			ve.Problems = append(ve.Problems, authoring.Problem{Field: "allowed_class_ids[" + strconv.Itoa(i) + "]", Rule: "owned"})
		}
	}
	if len(ve.Problems) > 0 {
		return ve
	}
	return nil
}

// saveTest validates and stores a test. prev is nil for a new test.
func (h *Handler) saveTest(r *http.Request, in model.Test, prev *model.Test) (model.Test, error) {
	in.TeacherID = currentUser(r).ID
	t, err := authoring.Prepare(in, prev)
	if err != nil {
		return model.Test{}, err
	}
	if err := h.checkClasses(r, t); err != nil {
		return model.Test{}, err
	}
	if prev != nil && !sameQuestions(prev.Questions, t.Questions) {
		if prev.IsActive {
			return model.Test{}, errQuestionsLocked
		}
		attempts, err := h.store.ListAttempts(r.Context(), model.AttemptFilter{TestID: prev.ID})
		if err != nil {
			return model.Test{}, err
		}
		if len(attempts) > 0 {
			return model.Test{}, errQuestionsLocked
		}
	}
	saved, err := h.store.UpsertTest(r.Context(), t)
	if err != nil {
		return model.Test{}, err
	}
	slog.Info("saved test", "test_id", saved.ID, "teacher_id", saved.TeacherID, "questions", len(saved.Questions))
	return saved, nil
}

func sameQuestions(a, b []model.Question) bool {
	return slices.EqualFunc(a, b, func(x, y model.Question) bool {
		return x.ID == y.ID && x.Text == y.Text && x.CorrectAnswer == y.CorrectAnswer && slices.Equal(x.Options, y.Options)
	})
}

func (h *Handler) handleCreateTest(w http.ResponseWriter, r *http.Request) {
	var in model.Test
	if err := readJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	t, err := h.saveTest(r, in, nil)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (h *Handler) handleUpdateTest(w http.ResponseWriter, r *http.Request) {
	prev, err := h.ownedTest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var in model.Test
	if err := readJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	t, err := h.saveTest(r, in, &prev)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *Handler) handleToggleTest(w http.ResponseWriter, r *http.Request) {
	t, err := h.ownedTest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.store.SetTestActive(r.Context(), t.ID, !t.IsActive); err != nil {
		writeError(w, r, err)
		return
	}
	t.IsActive = !t.IsActive
	slog.Info("toggled test", "test_id", t.ID, "active", t.IsActive)
	writeJSON(w, http.StatusOK, t)
}

type teacherAttemptResp struct {
	model.Attempt
	StudentName  string `json:"student_name"`
	StudentEmail string `json:"student_email"`
	Percent      int    `json:"percent"`
}

func (h *Handler) handleTestAttempts(w http.ResponseWriter, r *http.Request) {
	t, err := h.ownedTest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	attempts, err := h.store.ListAttempts(r.Context(), model.AttemptFilter{TestID: t.ID})
	if err != nil {
		writeError(w, r, err)
		return
	}
	var ids []string
	for _, a := range attempts {
		if !slices.Contains(ids, a.StudentID) {
			ids = append(ids, a.StudentID)
		}
	}
	students, err := h.store.ListUsersByID(ids)
	if err != nil {
		writeError(w, r, err)
		return
	}
	byID := make(map[string]model.User, len(students))
	for _, u := range students {
		byID[u.ID] = u
	}

	out := make([]teacherAttemptResp, len(attempts))
	for i, a := range attempts {
		out[i] = teacherAttemptResp{
			Attempt:      a,
			StudentName:  byID[a.StudentID].Name,
			StudentEmail: byID[a.StudentID].Email,
			Percent:      delivery.Result{Score: a.Score, Total: a.TotalQuestions}.Percent(),
		}
	}
	writeJSON(w, http.StatusOK, out)
}

type importResp struct {
	Questions []model.Question `json:"questions"`
	Message   string           `json:"message"`
	Test      *model.Test      `json:"test,omitempty"`
}

// handleParseImport validates an import payload and returns the parsed questions without
// storing anything, for the client to merge into the test it is editing.
func (h *Handler) handleParseImport(w http.ResponseWriter, r *http.Request) {
	data, filename, err := readBody(r, "questions_file")
	if err != nil {
		writeError(w, r, err)
		return
	}
	qs, err := authoring.ParseImport(data)
	if err != nil {
		writeError(w, r, err)
		return
	}
	sum := sha256.Sum256(data)
	slog.Info("parsed question import", "filename", filename, "sha256", hex.EncodeToString(sum[:]), "count", len(qs))
	writeJSON(w, http.StatusOK, importResp{
		Questions: qs,
		Message:   appI18n.Tp(r.Context(), "QuestionsImported", len(qs)),
	})
}

func (h *Handler) handleImportIntoTest(w http.ResponseWriter, r *http.Request) {
	prev, err := h.ownedTest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	data, _, err := readBody(r, "questions_file")
	if err != nil {
		writeError(w, r, err)
		return
	}
	qs, err := authoring.ParseImport(data)
	if err != nil {
		writeError(w, r, err)
		return
	}
	t, err := h.saveTest(r, authoring.AppendImported(prev, qs), &prev)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, importResp{
		Questions: qs,
		Message:   appI18n.Tp(r.Context(), "QuestionsImported", len(qs)),
		Test:      &t,
	})
}

func (h *Handler) handleDraft(w http.ResponseWriter, r *http.Request) {
	if h.drafter == nil {
		writeError(w, r, errDraftingDisabled)
		return
	}
	var req struct {
		Topic      string `json:"topic"`
		Count      int    `json:"count"`
		Difficulty string `json:"difficulty"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Difficulty == "" {
		req.Difficulty = string(prompts.DifficultyMedium)
	}
	if req.Count == 0 {
		req.Count = 5
	}

	ve := &authoring.ValidationError{}
	if prompts.SanitizeTopic(req.Topic) == "" {
		ve.Problems = append(ve.Problems, authoring.Problem{Field: "topic", Rule: "required"})
	}
	if !prompts.IsValidDifficulty(req.Difficulty) {
		ve.Problems = append(ve.Problems, authoring.Problem{Field: "difficulty", Rule: "oneof", Param: "easy medium hard"})
	}
	if req.Count < 1 || req.Count > llm.MaxDraftQuestions {
		ve.Problems = append(ve.Problems, authoring.Problem{Field: "count", Rule: "max", Param: strconv.Itoa(llm.MaxDraftQuestions)})
	}
	if len(ve.Problems) > 0 {
		writeError(w, r, ve)
		return
	}

	qs, err := h.drafter.DraftQuestions(r.Context(), req.Topic, req.Count, prompts.Difficulty(req.Difficulty))
	if err != nil {
		slog.Error("question drafting failed", "error", err)
		writeError(w, r, errDraftFailed)
		return
	}
	writeJSON(w, http.StatusOK, importResp{
		Questions: qs,
		Message:   appI18n.Tp(r.Context(), "QuestionsImported", len(qs)),
	})
}

func (h *Handler) handleTeacherExport(w http.ResponseWriter, r *http.Request) {
	export, err := h.store.ExportResults(r.Context(), currentUser(r).ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, export)
}
