package model

import (
	"time"

	"github.com/google/uuid"
)

// Answer is the student's text for one question, addressed by index.
type Answer struct {
	QuestionIndex int    `json:"question_index" binding:"min=0"`
	Text          string `json:"text" binding:"max=20000"`
}

// Submission is a student's single committed attempt at a test.
// AIGeneratedFlag is nil when the active analyzer does not evaluate AI generation.
type Submission struct {
	ID              uuid.UUID `json:"id"`
	TestID          uuid.UUID `json:"test_id"`
	StudentID       int       `json:"student_id"`
	Answers         []Answer  `json:"answers"`
	SubmittedAt     time.Time `json:"submitted_at"`
	WasPasted       bool      `json:"was_pasted"`
	PlagiarismFlag  bool      `json:"plagiarism_flag"`
	AIGeneratedFlag *bool     `json:"ai_generated_flag"`
	Forced          bool      `json:"forced"`
}

// SubmitTestRequest is the payload for submitting a test.
// Force marks a silent submission triggered by the violation threshold.
type SubmitTestRequest struct {
	Answers   []Answer `json:"answers" binding:"omitempty,dive"`
	WasPasted bool     `json:"was_pasted"`
	Force     bool     `json:"force"`
}
