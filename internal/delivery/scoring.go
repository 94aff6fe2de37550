package delivery

import "github.com/pavelanni/edutest/internal/model"

// Result is the outcome of scoring one attempt.
type Result struct {
	Score int `json:"score"`
	Total int `json:"total"`
}

// Percent returns the score as a rounded percentage of the total.
func (r Result) Percent() int {
	if r.Total == 0 {
		return 0
	}
	return (r.Score*100 + r.Total/2) / r.Total
}

// Score counts the positions whose answer equals the presented correct index. Unanswered
// positions, and positions missing from answers, never match.
func Score(p model.PresentedTest, answers []int) Result {
	r := Result{Total: len(p.Questions)}
	for i, q := range p.Questions {
		if i >= len(answers) {
			break
		}
		if answers[i] != model.Unanswered && answers[i] == q.CorrectAnswer {
			r.Score++
		}
	}
	return r
}
