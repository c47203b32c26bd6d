package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/repository"
)

// StudentRef identifies a student in teacher-facing views.
type StudentRef struct {
	ID    int    `json:"id"`
	Email string `json:"email"`
}

// SubmissionView is a submission with its student's email resolved.
type SubmissionView struct {
	model.Submission
	StudentEmail string `json:"student_email"`
}

// TeacherTest is a test as the owning teacher sees it.
type TeacherTest struct {
	ID               uuid.UUID        `json:"id"`
	Title            string           `json:"title"`
	Questions        []model.Question `json:"questions"`
	AssignedStudents []StudentRef     `json:"assigned_students"`
	Submissions      []SubmissionView `json:"submissions"`
	CreatedAt        time.Time        `json:"created_at"`
}

// TestService handles test authoring, rosters and the student's list of tests.
type TestService struct {
	tests TestStore
	users UserStore
	log   zerolog.Logger
}

// NewTestService creates a new TestService.
func NewTestService(tests TestStore, users UserStore, log zerolog.Logger) *TestService {
	return &TestService{
		tests: tests,
		users: users,
		log:   log.With().Str("component", "test_service").Logger(),
	}
}

// Create stores a new test owned by the teacher.
func (s *TestService) Create(ctx context.Context, teacherID int, req model.CreateTestRequest) (*TeacherTest, error) {
	questions := make([]model.Question, len(req.Questions))
	for i, q := range req.Questions {
		questions[i] = model.Question{Text: strings.TrimSpace(q.Text)}
	}

	t := &model.Test{
		Title:     strings.TrimSpace(req.Title),
		TeacherID: teacherID,
		Questions: questions,
	}
	if err := s.tests.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("create test: %w", err)
	}

	s.log.Info().Str("test_id", t.ID.String()).Int("teacher_id", teacherID).Int("questions", len(questions)).Msg("Test created")
	return s.teacherView(ctx, t)
}

// ListForTeacher returns the teacher's tests with rosters and submissions.
func (s *TestService) ListForTeacher(ctx context.Context, teacherID int) ([]TeacherTest, error) {
	tests, err := s.tests.ListByTeacher(ctx, teacherID)
	if err != nil {
		return nil, fmt.Errorf("list tests: %w", err)
	}

	views := make([]TeacherTest, 0, len(tests))
	for i := range tests {
		v, err := s.teacherView(ctx, &tests[i])
		if err != nil {
			return nil, err
		}
		views = append(views, *v)
	}
	return views, nil
}

// GetOwned returns one of the teacher's tests.
func (s *TestService) GetOwned(ctx context.Context, teacherID int, testID uuid.UUID) (*model.Test, error) {
	t, err := s.tests.GetTest(ctx, testID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrTestNotFound
		}
		return nil, fmt.Errorf("get test: %w", err)
	}
	if t.TeacherID != teacherID {
		return nil, ErrNotTestOwner
	}
	return t, nil
}

// AssignStudent adds the student with the given email to the roster. Assigning twice is a no-op.
func (s *TestService) AssignStudent(ctx context.Context, teacherID int, testID uuid.UUID, email string) (*TeacherTest, error) {
	if _, err := s.GetOwned(ctx, teacherID, testID); err != nil {
		return nil, err
	}

	student, err := s.users.GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrStudentNotFound
		}
		return nil, fmt.Errorf("get student: %w", err)
	}
	if student.Role != model.RoleStudent {
		return nil, ErrStudentNotFound
	}

	if err := s.tests.Assign(ctx, testID, student.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrTestNotFound
		}
		return nil, fmt.Errorf("assign student: %w", err)
	}

	updated, err := s.tests.GetTest(ctx, testID)
	if err != nil {
		return nil, fmt.Errorf("reload test: %w", err)
	}
	s.log.Info().Str("test_id", testID.String()).Int("student_id", student.ID).Msg("Student assigned")
	return s.teacherView(ctx, updated)
}

// ListStudents returns every student account, for the assignment picker.
func (s *TestService) ListStudents(ctx context.Context) ([]StudentRef, error) {
	users, err := s.users.ListByRole(ctx, model.RoleStudent)
	if err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	refs := make([]StudentRef, len(users))
	for i, u := range users {
		refs[i] = StudentRef{ID: u.ID, Email: u.Email}
	}
	return refs, nil
}

// GetAssignedTests returns the papers of every test the student is assigned to.
func (s *TestService) GetAssignedTests(ctx context.Context, studentID int) ([]model.StudentPaper, error) {
	tests, err := s.tests.ListAssignedTests(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("list assigned tests: %w", err)
	}
	papers := make([]model.StudentPaper, len(tests))
	for i := range tests {
		papers[i] = tests[i].PaperFor(studentID)
	}
	return papers, nil
}

// GetPaper returns one assigned test for the student.
func (s *TestService) GetPaper(ctx context.Context, testID uuid.UUID, studentID int) (*model.StudentPaper, error) {
	t, err := s.tests.GetTest(ctx, testID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrTestNotFound
		}
		return nil, fmt.Errorf("get test: %w", err)
	}
	if !t.IsAssigned(studentID) {
		return nil, ErrNotAssigned
	}
	paper := t.PaperFor(studentID)
	return &paper, nil
}

func (s *TestService) teacherView(ctx context.Context, t *model.Test) (*TeacherTest, error) {
	ids := append([]int{}, t.AssignedStudents...)
	for _, sub := range t.Submissions {
		if !t.IsAssigned(sub.StudentID) {
			ids = append(ids, sub.StudentID)
		}
	}

	users, err := s.users.ListByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("resolve students: %w", err)
	}
	emails := make(map[int]string, len(users))
	for _, u := range users {
		emails[u.ID] = u.Email
	}

	view := &TeacherTest{
		ID:               t.ID,
		Title:            t.Title,
		Questions:        t.Questions,
		AssignedStudents: make([]StudentRef, 0, len(t.AssignedStudents)),
		Submissions:      make([]SubmissionView, 0, len(t.Submissions)),
		CreatedAt:        t.CreatedAt,
	}
	for _, id := range t.AssignedStudents {
		view.AssignedStudents = append(view.AssignedStudents, StudentRef{ID: id, Email: emails[id]})
	}
	for _, sub := range t.Submissions {
		view.Submissions = append(view.Submissions, SubmissionView{Submission: sub, StudentEmail: emails[sub.StudentID]})
	}
	return view, nil
}
