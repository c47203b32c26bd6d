package service

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/repository/memory"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	users     *memory.UserStore
	tests     *memory.TestStore
	teacherID int
	studentID int
	outsider  int
	testID    uuid.UUID
}

// newFixture seeds one teacher, two students and a two-question test assigned to the first student.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	f := &fixture{users: memory.NewUserStore(), tests: memory.NewTestStore()}

	teacher := &model.User{Email: "teacher@school.test", Role: model.RoleTeacher}
	student := &model.User{Email: "ana@school.test", Role: model.RoleStudent}
	outsider := &model.User{Email: "budi@school.test", Role: model.RoleStudent}
	for _, u := range []*model.User{teacher, student, outsider} {
		require.NoError(t, f.users.Create(ctx, u))
	}
	f.teacherID, f.studentID, f.outsider = teacher.ID, student.ID, outsider.ID

	test := &model.Test{
		Title:     "Biology midterm",
		TeacherID: teacher.ID,
		Questions: []model.Question{{Text: "Explain photosynthesis."}, {Text: "Name three organelles."}},
	}
	require.NoError(t, f.tests.Create(ctx, test))
	require.NoError(t, f.tests.Assign(ctx, test.ID, student.ID))
	f.testID = test.ID

	return f
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func fullAnswers() []model.Answer {
	return []model.Answer{
		{QuestionIndex: 0, Text: "Plants turn light into chemical energy stored as glucose."},
		{QuestionIndex: 1, Text: "Nucleus, mitochondria and ribosomes."},
	}
}
