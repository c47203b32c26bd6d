package model

import (
	"time"

	"github.com/google/uuid"
)

// Question is a single free-text prompt of a test.
type Question struct {
	Text string `json:"text" binding:"required,notblank,max=4000"`
}

// Test is a teacher-authored exam together with its roster and submissions.
type Test struct {
	ID               uuid.UUID    `json:"id"`
	Title            string       `json:"title"`
	TeacherID        int          `json:"teacher_id"`
	Questions        []Question   `json:"questions"`
	AssignedStudents []int        `json:"assigned_students"`
	Submissions      []Submission `json:"submissions"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

// IsAssigned reports whether the student is on the test roster.
func (t *Test) IsAssigned(studentID int) bool {
	for _, id := range t.AssignedStudents {
		if id == studentID {
			return true
		}
	}
	return false
}

// HasSubmitted reports whether the student already has a submission recorded.
func (t *Test) HasSubmitted(studentID int) bool {
	return t.SubmissionOf(studentID) != nil
}

// SubmissionOf returns the student's submission, or nil.
func (t *Test) SubmissionOf(studentID int) *Submission {
	for i := range t.Submissions {
		if t.Submissions[i].StudentID == studentID {
			return &t.Submissions[i]
		}
	}
	return nil
}

// StudentPaper is the view of a test handed to an assigned student: no roster,
// no other students' submissions.
type StudentPaper struct {
	ID        uuid.UUID  `json:"id"`
	Title     string     `json:"title"`
	Questions []Question `json:"questions"`
	Submitted bool       `json:"submitted"`
}

// PaperFor builds the student-facing view of the test.
func (t *Test) PaperFor(studentID int) StudentPaper {
	return StudentPaper{
		ID:        t.ID,
		Title:     t.Title,
		Questions: t.Questions,
		Submitted: t.HasSubmitted(studentID),
	}
}

// CreateTestRequest is the payload for authoring a test.
type CreateTestRequest struct {
	Title     string     `json:"title" binding:"required,notblank,max=255"`
	Questions []Question `json:"questions" binding:"required,min=1,dive"`
}

// AssignStudentRequest is the payload for adding a student to a test roster.
type AssignStudentRequest struct {
	StudentEmail string `json:"student_email" binding:"required,email"`
}
