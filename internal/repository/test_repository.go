package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// TestRepository handles tests, their rosters and their submissions.
// A loaded model.Test always carries its AssignedStudents and Submissions.
type TestRepository struct {
	pool *pgxpool.Pool
}

// NewTestRepository creates a new TestRepository.
func NewTestRepository(pool *pgxpool.Pool) *TestRepository {
	return &TestRepository{pool: pool}
}

const testColumns = `t.id, t.title, t.teacher_id, t.questions, t.created_at, t.updated_at`

// Create inserts a new test and fills its ID and timestamps.
func (r *TestRepository) Create(ctx context.Context, t *model.Test) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO tests (title, teacher_id, questions)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at, updated_at`,
		t.Title, t.TeacherID, t.Questions,
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
}

// GetTest loads one test with its roster and submissions.
func (r *TestRepository) GetTest(ctx context.Context, id uuid.UUID) (*model.Test, error) {
	tests, err := r.list(ctx, `SELECT `+testColumns+` FROM tests t WHERE t.id = $1`, id)
	if err != nil {
		return nil, err
	}
	if len(tests) == 0 {
		return nil, ErrNotFound
	}
	return &tests[0], nil
}

// ListByTeacher returns every test owned by the teacher, newest first.
func (r *TestRepository) ListByTeacher(ctx context.Context, teacherID int) ([]model.Test, error) {
	return r.list(ctx,
		`SELECT `+testColumns+` FROM tests t
		 WHERE t.teacher_id = $1
		 ORDER BY t.created_at DESC`, teacherID)
}

// ListAssignedTests returns every test the student is on the roster of.
func (r *TestRepository) ListAssignedTests(ctx context.Context, studentID int) ([]model.Test, error) {
	return r.list(ctx,
		`SELECT `+testColumns+` FROM tests t
		 JOIN test_assignments ta ON ta.test_id = t.id
		 WHERE ta.student_id = $1
		 ORDER BY t.created_at DESC`, studentID)
}

// Assign adds the student to the test roster. Assigning twice is a no-op.
func (r *TestRepository) Assign(ctx context.Context, testID uuid.UUID, studentID int) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO test_assignments (test_id, student_id)
		 VALUES ($1, $2)
		 ON CONFLICT (test_id, student_id) DO NOTHING`,
		testID, studentID,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23503" {
		return ErrNotFound
	}
	return err
}

// AppendSubmission commits the submission in a single conditional statement:
// the row is written only if the student is assigned and has no submission yet.
// It returns the test as it stands after the append.
func (r *TestRepository) AppendSubmission(ctx context.Context, testID uuid.UUID, sub *model.Submission) (*model.Test, error) {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO submissions
		   (test_id, student_id, answers, was_pasted, plagiarism_flag, ai_generated_flag, forced)
		 SELECT $1, $2, $3, $4, $5, $6, $7
		 WHERE EXISTS (
		   SELECT 1 FROM test_assignments WHERE test_id = $1 AND student_id = $2
		 )
		 ON CONFLICT (test_id, student_id) DO NOTHING
		 RETURNING id, submitted_at`,
		testID, sub.StudentID, sub.Answers, sub.WasPasted, sub.PlagiarismFlag, sub.AIGeneratedFlag, sub.Forced,
	).Scan(&sub.ID, &sub.SubmittedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, r.explainRejectedAppend(ctx, testID, sub.StudentID)
	}
	if err != nil {
		return nil, err
	}
	sub.TestID = testID

	return r.GetTest(ctx, testID)
}

// explainRejectedAppend tells apart the two reasons the conditional insert wrote nothing.
func (r *TestRepository) explainRejectedAppend(ctx context.Context, testID uuid.UUID, studentID int) error {
	var submitted, assigned bool
	err := r.pool.QueryRow(ctx,
		`SELECT
		   EXISTS (SELECT 1 FROM submissions WHERE test_id = $1 AND student_id = $2),
		   EXISTS (SELECT 1 FROM test_assignments WHERE test_id = $1 AND student_id = $2)`,
		testID, studentID,
	).Scan(&submitted, &assigned)
	if err != nil {
		return err
	}
	if submitted {
		return ErrDuplicateSubmission
	}
	return ErrNotAssigned
}

func (r *TestRepository) list(ctx context.Context, query string, args ...any) ([]model.Test, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tests := make([]model.Test, 0)
	for rows.Next() {
		var t model.Test
		if err := rows.Scan(&t.ID, &t.Title, &t.TeacherID, &t.Questions, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		t.AssignedStudents = []int{}
		t.Submissions = []model.Submission{}
		tests = append(tests, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(tests) == 0 {
		return tests, nil
	}

	if err := r.attachRelations(ctx, tests); err != nil {
		return nil, err
	}
	return tests, nil
}

// attachRelations loads rosters and submissions for a page of tests in one round trip.
func (r *TestRepository) attachRelations(ctx context.Context, tests []model.Test) error {
	ids := make([]uuid.UUID, len(tests))
	index := make(map[uuid.UUID]int, len(tests))
	for i := range tests {
		ids[i] = tests[i].ID
		index[tests[i].ID] = i
	}

	batch := &pgx.Batch{}
	batch.Queue(
		`SELECT test_id, student_id FROM test_assignments
		 WHERE test_id = ANY($1)
		 ORDER BY assigned_at, student_id`, ids)
	batch.Queue(
		`SELECT id, test_id, student_id, answers, submitted_at,
		        was_pasted, plagiarism_flag, ai_generated_flag, forced
		 FROM submissions
		 WHERE test_id = ANY($1)
		 ORDER BY submitted_at`, ids)

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	rows, err := br.Query()
	if err != nil {
		return err
	}
	for rows.Next() {
		var testID uuid.UUID
		var studentID int
		if err := rows.Scan(&testID, &studentID); err != nil {
			rows.Close()
			return err
		}
		t := &tests[index[testID]]
		t.AssignedStudents = append(t.AssignedStudents, studentID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = br.Query()
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var s model.Submission
		if err := rows.Scan(&s.ID, &s.TestID, &s.StudentID, &s.Answers, &s.SubmittedAt,
			&s.WasPasted, &s.PlagiarismFlag, &s.AIGeneratedFlag, &s.Forced); err != nil {
			return err
		}
		t := &tests[index[s.TestID]]
		t.Submissions = append(t.Submissions, s)
	}
	return rows.Err()
}
