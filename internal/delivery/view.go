package delivery

import "github.com/pavelanni/edutest/internal/model"

// QuestionView is one presented question as the student sees it. Correct is only set
// while feedback for it is visible or after the attempt is recorded.
type QuestionView struct {
	Position int      `json:"position"`
	Text     string   `json:"text"`
	Options  []string `json:"options"`
	Selected int      `json:"selected"`
	Correct  *int     `json:"correct,omitempty"`
	Feedback bool     `json:"feedback"`
}

// SessionView is a snapshot of a session for rendering.
type SessionView struct {
	State      State          `json:"state"`
	TestID     string         `json:"test_id,omitempty"`
	Title      string         `json:"title,omitempty"`
	Position   int            `json:"position"`
	Total      int            `json:"total"`
	Answered   int            `json:"answered"`
	Submitting bool           `json:"submitting"`
	Current    *QuestionView  `json:"current,omitempty"`
	Questions  []QuestionView `json:"questions,omitempty"`
	Result     *Result        `json:"result,omitempty"`
	AttemptID  string         `json:"attempt_id,omitempty"`
	CanFinish  bool           `json:"can_finish"`
	CanGoBack  bool           `json:"can_go_back"`
	CanGoNext  bool           `json:"can_go_next"`
}

// View returns a snapshot of the session. While in progress only the current question
// is included; once finished every question is included with its correct answer.
func (s *Session) View() SessionView {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := SessionView{
		State:      s.state,
		TestID:     s.test.ID,
		Title:      s.test.Title,
		Position:   s.position,
		Total:      len(s.presented.Questions),
		Submitting: s.inFlight,
	}
	for _, a := range s.answers {
		if a != model.Unanswered {
			v.Answered++
		}
	}

	switch s.state {
	case InProgress:
		q := s.questionView(s.position, s.feedback[s.position])
		v.Current = &q
		v.CanGoBack = s.position > 0
		v.CanGoNext = s.position < v.Total-1
		v.CanFinish = s.position == v.Total-1 && !s.inFlight
	case Finished:
		v.Questions = make([]QuestionView, v.Total)
		for i := range s.presented.Questions {
			v.Questions[i] = s.questionView(i, true)
		}
		if s.recorded != nil {
			v.Result = &Result{Score: s.recorded.Score, Total: s.recorded.TotalQuestions}
			v.AttemptID = s.recorded.ID
		}
	}
	return v
}

func (s *Session) questionView(pos int, reveal bool) QuestionView {
	q := s.presented.Questions[pos]
	qv := QuestionView{
		Position: pos,
		Text:     q.Text,
		Options:  append([]string(nil), q.Options...),
		Selected: s.answers[pos],
		Feedback: reveal && s.state == InProgress,
	}
	if reveal {
		correct := q.CorrectAnswer
		qv.Correct = &correct
	}
	return qv
}
