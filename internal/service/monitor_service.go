package service

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-proctor/internal/repository"
)

// MonitorService builds the teacher's live view of a test.
type MonitorService struct {
	tests       *TestService
	monitorRepo *repository.MonitorRepository
}

// NewMonitorService creates a new MonitorService.
func NewMonitorService(tests *TestService, monitorRepo *repository.MonitorRepository) *MonitorService {
	return &MonitorService{tests: tests, monitorRepo: monitorRepo}
}

// MonitorStudent is one roster row of the live monitor.
type MonitorStudent struct {
	StudentID       int    `json:"student_id"`
	Email           string `json:"email"`
	Submitted       bool   `json:"submitted"`
	Forced          bool   `json:"forced"`
	WasPasted       bool   `json:"was_pasted"`
	PlagiarismFlag  bool   `json:"plagiarism_flag"`
	AIGeneratedFlag *bool  `json:"ai_generated_flag"`
	Violations      int64  `json:"violations"`
}

// MonitorStats aggregates the roster.
type MonitorStats struct {
	TotalAssigned   int   `json:"total_assigned"`
	TotalSubmitted  int   `json:"total_submitted"`
	TotalViolations int64 `json:"total_violations"`
}

// MonitorSnapshot is the first event of a monitor stream and the body of every refresh.
type MonitorSnapshot struct {
	TestID         uuid.UUID        `json:"test_id"`
	Title          string           `json:"title"`
	TotalQuestions int              `json:"total_questions"`
	Stats          MonitorStats     `json:"stats"`
	Students       []MonitorStudent `json:"students"`
}

// Snapshot returns the monitor view of a test owned by the teacher.
// Live counters and persisted events are fetched in parallel; the larger of
// the two is reported so counts survive a Redis flush once the worker has caught up.
func (s *MonitorService) Snapshot(ctx context.Context, teacherID int, testID uuid.UUID) (*MonitorSnapshot, error) {
	owned, err := s.tests.GetOwned(ctx, teacherID, testID)
	if err != nil {
		return nil, err
	}

	var (
		view        *TeacherTest
		live        map[int]int64
		recorded    map[int]int64
		viewErr     error
		liveErr     error
		recordedErr error
		wg          sync.WaitGroup
	)

	wg.Add(3)
	go func() {
		defer wg.Done()
		view, viewErr = s.tests.teacherView(ctx, owned)
	}()
	go func() {
		defer wg.Done()
		live, liveErr = s.monitorRepo.GetLiveViolationCounts(ctx, testID)
	}()
	go func() {
		defer wg.Done()
		recorded, recordedErr = s.monitorRepo.GetRecordedViolationCounts(ctx, testID)
	}()
	wg.Wait()

	// the roster is critical; violation counts are best-effort
	if viewErr != nil {
		return nil, viewErr
	}
	if liveErr != nil {
		s.tests.log.Warn().Err(liveErr).Str("test_id", testID.String()).Msg("Failed to read live violation counts")
	}
	if recordedErr != nil {
		s.tests.log.Warn().Err(recordedErr).Str("test_id", testID.String()).Msg("Failed to read recorded violation counts")
	}

	snap := &MonitorSnapshot{
		TestID:         view.ID,
		Title:          view.Title,
		TotalQuestions: len(view.Questions),
		Students:       make([]MonitorStudent, 0, len(view.AssignedStudents)),
	}

	rows := make(map[int]int, len(view.AssignedStudents))
	for _, st := range view.AssignedStudents {
		rows[st.ID] = len(snap.Students)
		snap.Students = append(snap.Students, MonitorStudent{
			StudentID:  st.ID,
			Email:      st.Email,
			Violations: max(live[st.ID], recorded[st.ID]),
		})
	}
	for _, sub := range view.Submissions {
		i, ok := rows[sub.StudentID]
		if !ok {
			continue
		}
		row := &snap.Students[i]
		row.Submitted = true
		row.Forced = sub.Forced
		row.WasPasted = sub.WasPasted
		row.PlagiarismFlag = sub.PlagiarismFlag
		row.AIGeneratedFlag = sub.AIGeneratedFlag
	}

	snap.Stats.TotalAssigned = len(snap.Students)
	snap.Stats.TotalSubmitted = len(view.Submissions)
	for _, row := range snap.Students {
		snap.Stats.TotalViolations += row.Violations
	}
	return snap, nil
}
