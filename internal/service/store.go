package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// UserStore is implemented by repository.UserRepository and memory.UserStore.
type UserStore interface {
	Create(ctx context.Context, u *model.User) error
	GetByID(ctx context.Context, id int) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	ListByIDs(ctx context.Context, ids []int) ([]model.User, error)
	ListByRole(ctx context.Context, role model.Role) ([]model.User, error)
}

// TestStore is implemented by repository.TestRepository and memory.TestStore.
// AppendSubmission must check assignment and uniqueness atomically with the write.
type TestStore interface {
	Create(ctx context.Context, t *model.Test) error
	GetTest(ctx context.Context, id uuid.UUID) (*model.Test, error)
	ListByTeacher(ctx context.Context, teacherID int) ([]model.Test, error)
	ListAssignedTests(ctx context.Context, studentID int) ([]model.Test, error)
	Assign(ctx context.Context, testID uuid.UUID, studentID int) error
	AppendSubmission(ctx context.Context, testID uuid.UUID, sub *model.Submission) (*model.Test, error)
}
