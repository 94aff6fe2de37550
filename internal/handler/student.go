package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/edutest/internal/delivery"
	appI18n "github.com/pavelanni/edutest/internal/i18n"
	"github.com/pavelanni/edutest/internal/model"
)

// testSummary is a test as listed to students, without its questions.
type testSummary struct {
	ID                      string           `json:"id"`
	TeacherID               string           `json:"teacher_id"`
	Title                   string           `json:"title"`
	Description             string           `json:"description"`
	NumQuestions            int              `json:"num_questions"`
	Visibility              model.Visibility `json:"visibility"`
	AllowMultipleAttempts   bool             `json:"allow_multiple_attempts"`
	ShowFeedbackImmediately bool             `json:"show_feedback_immediately"`
	IsActive                bool             `json:"is_active"`
}

func summarize(t model.Test) testSummary {
	return testSummary{
		ID:                      t.ID,
		TeacherID:               t.TeacherID,
		Title:                   t.Title,
		Description:             t.Description,
		NumQuestions:            len(t.Questions),
		Visibility:              t.Visibility,
		AllowMultipleAttempts:   t.AllowMultipleAttempts,
		ShowFeedbackImmediately: t.ShowFeedbackImmediately,
		IsActive:                t.IsActive,
	}
}

type listingResp struct {
	Test           testSummary             `json:"test"`
	Attemptability delivery.Attemptability `json:"attemptability"`
	AttemptsLabel  string                  `json:"attempts_label"`
}

func (h *Handler) handleStudentTests(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	listings, err := h.engine.Listings(r.Context(), user.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]listingResp, len(listings))
	for i, l := range listings {
		out[i] = listingResp{
			Test:           summarize(l.Test),
			Attemptability: l.Attemptability,
			AttemptsLabel:  appI18n.Tp(r.Context(), "AttemptsTaken", l.Attemptability.PriorAttempts),
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleStudentClassrooms(w http.ResponseWriter, r *http.Request) {
	classes, err := h.engine.StudentClassrooms(r.Context(), currentUser(r).ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, publicClassrooms(classes))
}

// publicClassrooms hides the roster of classrooms shown to students.
func publicClassrooms(classes []model.Classroom) []model.Classroom {
	out := make([]model.Classroom, len(classes))
	for i, c := range classes {
		c.StudentIDs = nil
		out[i] = c
	}
	return out
}

func (h *Handler) handleJoinClassroom(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := h.engine.JoinClassroom(r.Context(), req.Code, currentUser(r).ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, publicClassrooms([]model.Classroom{c})[0])
}

type attemptResp struct {
	model.Attempt
	TestTitle string `json:"test_title"`
	Summary   string `json:"summary"`
}

func (h *Handler) handleStudentAttempts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	attempts, err := h.store.ListAttempts(ctx, model.AttemptFilter{StudentID: currentUser(r).ID})
	if err != nil {
		writeError(w, r, err)
		return
	}
	tests, err := h.store.ListTests(ctx, model.TestFilter{})
	if err != nil {
		writeError(w, r, err)
		return
	}
	titles := make(map[string]string, len(tests))
	for _, t := range tests {
		titles[t.ID] = t.Title
	}

	out := make([]attemptResp, len(attempts))
	for i, a := range attempts {
		res := delivery.Result{Score: a.Score, Total: a.TotalQuestions}
		out[i] = attemptResp{
			Attempt:   a,
			TestTitle: titles[a.TestID],
			Summary: appI18n.Td(ctx, "ScoreSummary", map[string]any{
				"Score": res.Score, "Total": res.Total, "Percent": res.Percent(),
			}),
		}
	}
	writeJSON(w, http.StatusOK, out)
}

type sessionResp struct {
	delivery.SessionView
	Attempt *model.Attempt `json:"attempt,omitempty"`
	Summary string         `json:"summary,omitempty"`
}

func (h *Handler) writeSession(w http.ResponseWriter, r *http.Request, status int, s *delivery.Session) {
	resp := sessionResp{SessionView: s.View()}
	if a, ok := s.Recorded(); ok {
		resp.Attempt = &a
		res := delivery.Result{Score: a.Score, Total: a.TotalQuestions}
		resp.Summary = appI18n.Td(r.Context(), "ScoreSummary", map[string]any{
			"Score": res.Score, "Total": res.Total, "Percent": res.Percent(),
		})
	}
	writeJSON(w, status, resp)
}

func (h *Handler) handleBeginAttempt(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Begin(r.Context(), currentUser(r).ID, chi.URLParam(r, "testID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.writeSession(w, r, http.StatusCreated, s)
}

func (h *Handler) handleAttemptView(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Get(currentUser(r).ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.writeSession(w, r, http.StatusOK, s)
}

func (h *Handler) handleSelect(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Position int `json:"position"`
		Option   int `json:"option"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	s, err := h.sessions.Get(currentUser(r).ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.Select(req.Position, req.Option); err != nil {
		writeError(w, r, err)
		return
	}
	h.writeSession(w, r, http.StatusOK, s)
}

func (h *Handler) handleNavigate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Delta int `json:"delta"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	s, err := h.sessions.Get(currentUser(r).ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if _, err := s.Navigate(req.Delta); err != nil {
		writeError(w, r, err)
		return
	}
	h.writeSession(w, r, http.StatusOK, s)
}

func (h *Handler) handleFinish(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	if _, err := h.sessions.Finish(r.Context(), user.ID); err != nil {
		writeError(w, r, err)
		return
	}
	s, err := h.sessions.Get(user.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.writeSession(w, r, http.StatusOK, s)
}

func (h *Handler) handleAbort(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Abort(currentUser(r).ID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
