// Package memory provides in-process implementations of the repository contracts.
// They back STORAGE_DRIVER=memory and the service tests. Every read returns a copy,
// and AppendSubmission checks and appends under a single lock.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/repository"
)

// UserStore keeps accounts in memory.
type UserStore struct {
	mu     sync.RWMutex
	nextID int
	users  map[int]model.User
}

// NewUserStore creates an empty UserStore.
func NewUserStore() *UserStore {
	return &UserStore{nextID: 1, users: make(map[int]model.User)}
}

func (s *UserStore) Create(_ context.Context, u *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return repository.ErrEmailTaken
		}
	}
	u.ID = s.nextID
	u.CreatedAt = time.Now()
	s.nextID++
	s.users[u.ID] = *u
	return nil
}

func (s *UserStore) GetByID(_ context.Context, id int) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

func (s *UserStore) GetByEmail(_ context.Context, email string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return &u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *UserStore) ListByIDs(_ context.Context, ids []int) ([]model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]model.User, 0, len(ids))
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			users = append(users, u)
		}
	}
	return users, nil
}

func (s *UserStore) ListByRole(_ context.Context, role model.Role) ([]model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]model.User, 0)
	for _, u := range s.users {
		if u.Role == role {
			users = append(users, u)
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Email < users[j].Email })
	return users, nil
}

// TestStore keeps tests with their rosters and submissions in memory.
type TestStore struct {
	mu    sync.RWMutex
	tests map[uuid.UUID]*model.Test
	order []uuid.UUID
}

// NewTestStore creates an empty TestStore.
func NewTestStore() *TestStore {
	return &TestStore{tests: make(map[uuid.UUID]*model.Test)}
}

func (s *TestStore) Create(_ context.Context, t *model.Test) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	t.ID = uuid.New()
	t.CreatedAt = now
	t.UpdatedAt = now
	t.AssignedStudents = []int{}
	t.Submissions = []model.Submission{}

	stored := cloneTest(t)
	s.tests[t.ID] = stored
	s.order = append(s.order, t.ID)
	return nil
}

func (s *TestStore) GetTest(_ context.Context, id uuid.UUID) (*model.Test, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tests[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneTest(t), nil
}

func (s *TestStore) ListByTeacher(_ context.Context, teacherID int) ([]model.Test, error) {
	return s.filter(func(t *model.Test) bool { return t.TeacherID == teacherID }), nil
}

func (s *TestStore) ListAssignedTests(_ context.Context, studentID int) ([]model.Test, error) {
	return s.filter(func(t *model.Test) bool { return t.IsAssigned(studentID) }), nil
}

func (s *TestStore) Assign(_ context.Context, testID uuid.UUID, studentID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tests[testID]
	if !ok {
		return repository.ErrNotFound
	}
	if !t.IsAssigned(studentID) {
		t.AssignedStudents = append(t.AssignedStudents, studentID)
		t.UpdatedAt = time.Now()
	}
	return nil
}

// AppendSubmission mirrors the conditional insert of the PostgreSQL repository:
// membership and uniqueness are checked and the submission appended under one lock.
func (s *TestStore) AppendSubmission(_ context.Context, testID uuid.UUID, sub *model.Submission) (*model.Test, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tests[testID]
	if !ok || !t.IsAssigned(sub.StudentID) {
		return nil, repository.ErrNotAssigned
	}
	if t.HasSubmitted(sub.StudentID) {
		return nil, repository.ErrDuplicateSubmission
	}

	sub.ID = uuid.New()
	sub.TestID = testID
	sub.SubmittedAt = time.Now()

	stored := *sub
	stored.Answers = append([]model.Answer(nil), sub.Answers...)
	t.Submissions = append(t.Submissions, stored)

	return cloneTest(t), nil
}

// filter returns copies of the matching tests, newest first.
func (s *TestStore) filter(match func(*model.Test) bool) []model.Test {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Test, 0)
	for i := len(s.order) - 1; i >= 0; i-- {
		t := s.tests[s.order[i]]
		if match(t) {
			out = append(out, *cloneTest(t))
		}
	}
	return out
}

func cloneTest(t *model.Test) *model.Test {
	c := *t
	c.Questions = append([]model.Question{}, t.Questions...)
	c.AssignedStudents = append([]int{}, t.AssignedStudents...)
	c.Submissions = make([]model.Submission, len(t.Submissions))
	for i, sub := range t.Submissions {
		sub.Answers = append([]model.Answer(nil), sub.Answers...)
		c.Submissions[i] = sub
	}
	return &c
}
