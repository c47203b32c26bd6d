package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTestService_CreateAndList(t *testing.T) {
	f := newFixture(t)
	svc := NewTestService(f.tests, f.users, zerolog.Nop())
	ctx := context.Background()

	created, err := svc.Create(ctx, f.teacherID, model.CreateTestRequest{
		Title:     "  Chemistry quiz ",
		Questions: []model.Question{{Text: " What is pH? "}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Chemistry quiz", created.Title)
	assert.Equal(t, "What is pH?", created.Questions[0].Text)
	assert.Empty(t, created.AssignedStudents)
	assert.Empty(t, created.Submissions)

	tests, err := svc.ListForTeacher(ctx, f.teacherID)
	require.NoError(t, err)
	require.Len(t, tests, 2)
	assert.Equal(t, created.ID, tests[0].ID, "newest first")
	assert.Equal(t, []StudentRef{{ID: f.studentID, Email: "ana@school.test"}}, tests[1].AssignedStudents)

	others, err := svc.ListForTeacher(ctx, f.studentID)
	require.NoError(t, err)
	assert.Empty(t, others)
}

func TestTestService_AssignStudent(t *testing.T) {
	f := newFixture(t)
	svc := NewTestService(f.tests, f.users, zerolog.Nop())
	ctx := context.Background()

	view, err := svc.AssignStudent(ctx, f.teacherID, f.testID, "BUDI@school.test")
	require.NoError(t, err)
	assert.Len(t, view.AssignedStudents, 2)

	view, err = svc.AssignStudent(ctx, f.teacherID, f.testID, "budi@school.test")
	require.NoError(t, err)
	assert.Len(t, view.AssignedStudents, 2, "assigning twice is a no-op")

	_, err = svc.AssignStudent(ctx, f.teacherID, f.testID, "ghost@school.test")
	assert.ErrorIs(t, err, ErrStudentNotFound)

	_, err = svc.AssignStudent(ctx, f.teacherID, f.testID, "teacher@school.test")
	assert.ErrorIs(t, err, ErrStudentNotFound, "teachers cannot sit tests")

	_, err = svc.AssignStudent(ctx, f.outsider, f.testID, "budi@school.test")
	assert.ErrorIs(t, err, ErrNotTestOwner)

	_, err = svc.AssignStudent(ctx, f.teacherID, uuid.New(), "budi@school.test")
	assert.ErrorIs(t, err, ErrTestNotFound)
}

func TestTestService_StudentPapers(t *testing.T) {
	f := newFixture(t)
	svc := NewTestService(f.tests, f.users, zerolog.Nop())
	subs := newSubmissionService(f, nil)
	ctx := context.Background()

	papers, err := svc.GetAssignedTests(ctx, f.studentID)
	require.NoError(t, err)
	require.Len(t, papers, 1)
	assert.False(t, papers[0].Submitted)

	none, err := svc.GetAssignedTests(ctx, f.outsider)
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = svc.GetPaper(ctx, f.testID, f.outsider)
	assert.ErrorIs(t, err, ErrNotAssigned)

	_, err = subs.Submit(ctx, SubmitInput{TestID: f.testID, StudentID: f.studentID, Answers: fullAnswers()})
	require.NoError(t, err)

	paper, err := svc.GetPaper(ctx, f.testID, f.studentID)
	require.NoError(t, err)
	assert.True(t, paper.Submitted)
	assert.Len(t, paper.Questions, 2)
}

func TestTestService_TeacherSeesSubmissions(t *testing.T) {
	f := newFixture(t)
	svc := NewTestService(f.tests, f.users, zerolog.Nop())
	subs := newSubmissionService(f, nil)
	ctx := context.Background()

	_, err := subs.Submit(ctx, SubmitInput{TestID: f.testID, StudentID: f.studentID, Answers: fullAnswers(), WasPasted: true})
	require.NoError(t, err)

	tests, err := svc.ListForTeacher(ctx, f.teacherID)
	require.NoError(t, err)
	require.Len(t, tests, 1)
	require.Len(t, tests[0].Submissions, 1)
	assert.Equal(t, "ana@school.test", tests[0].Submissions[0].StudentEmail)
	assert.True(t, tests[0].Submissions[0].WasPasted)

	students, err := svc.ListStudents(ctx)
	require.NoError(t, err)
	assert.Equal(t, []StudentRef{
		{ID: f.studentID, Email: "ana@school.test"},
		{ID: f.outsider, Email: "budi@school.test"},
	}, students)
}
