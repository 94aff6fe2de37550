package model

import "time"

// ResultsExport is the top-level JSON structure for attempt result export.
type ResultsExport struct {
	ExportedAt time.Time    `json:"exported_at"`
	Version    string       `json:"version"`
	Tests      []TestExport `json:"tests"`
}

// TestExport holds one test and every attempt recorded against it.
type TestExport struct {
	TestID       string          `json:"test_id"`
	Title        string          `json:"title"`
	TeacherName  string          `json:"teacher_name"`
	NumQuestions int             `json:"num_questions"`
	Results      []StudentResult `json:"results"`
}

// StudentResult holds one attempt for export.
type StudentResult struct {
	AttemptID     string           `json:"attempt_id"`
	StudentEmail  string           `json:"student_email"`
	StudentName   string           `json:"student_name"`
	AttemptNumber int              `json:"attempt_number"`
	Score         int              `json:"score"`
	Total         int              `json:"total"`
	Percent       float64          `json:"percent"`
	SubmittedAt   time.Time        `json:"submitted_at"`
	Answers       []QuestionResult `json:"answers"`
}

// QuestionResult holds per-position answer data for export.
type QuestionResult struct {
	Position     int    `json:"position"`
	QuestionText string `json:"question_text"`
	Selected     string `json:"selected,omitempty"`
	Correct      string `json:"correct"`
	IsCorrect    bool   `json:"is_correct"`
}
