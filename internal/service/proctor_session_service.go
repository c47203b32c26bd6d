package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/alert"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/facedetect"
	"github.com/stemsi/exstem-proctor/internal/metrics"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/proctor"
	"github.com/stemsi/exstem-proctor/internal/repository"
)

// FaceDetector is implemented by facedetect.Client.
type FaceDetector interface {
	Detect(ctx context.Context, frame []byte) (facedetect.Result, error)
}

// AlertPublisher is implemented by alert.Publisher.
type AlertPublisher interface {
	Publish(ctx context.Context, a alert.Alert) error
}

// MonitorEvent is pushed on a test's monitor channel.
type MonitorEvent struct {
	Type      string `json:"type"`
	StudentID int    `json:"student_id"`
	SessionID string `json:"session_id,omitempty"`
	Kind      string `json:"kind,omitempty"`
	Count     int    `json:"count,omitempty"`
	At        int64  `json:"at"`
}

// Monitor event types.
const (
	MonitorSessionOpened = "session_opened"
	MonitorSessionClosed = "session_closed"
	MonitorViolation     = "violation"
	MonitorSubmitted     = "submitted"
)

// ProctorSessionService manages proctoring sessions, frame analysis and violation reports.
type ProctorSessionService struct {
	rdb               *redis.Client
	tests             TestStore
	detector          FaceDetector
	publisher         AlertPublisher
	ttl               time.Duration
	persistViolations bool
	log               zerolog.Logger
}

// NewProctorSessionService creates a new ProctorSessionService. When persistViolations
// is false, violation reports are only counted in Redis and not queued for PostgreSQL.
func NewProctorSessionService(
	rdb *redis.Client,
	tests TestStore,
	detector FaceDetector,
	publisher AlertPublisher,
	ttl time.Duration,
	persistViolations bool,
	log zerolog.Logger,
) *ProctorSessionService {
	return &ProctorSessionService{
		rdb:               rdb,
		tests:             tests,
		detector:          detector,
		publisher:         publisher,
		ttl:               ttl,
		persistViolations: persistViolations,
		log:               log.With().Str("component", "proctor_session_service").Logger(),
	}
}

// Open starts a proctoring session for an assigned student who has not submitted yet.
func (s *ProctorSessionService) Open(ctx context.Context, testID uuid.UUID, studentID int) (*model.ProctorSession, error) {
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
	if t.HasSubmitted(studentID) {
		return nil, ErrAlreadySubmitted
	}

	sess := &model.ProctorSession{
		ID:        uuid.New().String(),
		TestID:    testID,
		StudentID: studentID,
		StartedAt: time.Now().UTC(),
	}

	key := config.CacheKey.ProctorSessionKey(sess.ID)
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			"test_id", sess.TestID.String(),
			"student_id", sess.StudentID,
			"started_at", sess.StartedAt.Unix(),
		)
		pipe.Expire(ctx, key, s.ttl)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}

	s.notifyMonitor(ctx, testID, MonitorEvent{Type: MonitorSessionOpened, StudentID: studentID, SessionID: sess.ID})
	s.log.Info().Str("session_id", sess.ID).Str("test_id", testID.String()).Int("student_id", studentID).Msg("Proctoring session opened")
	return sess, nil
}

// Get loads a session owned by the student.
func (s *ProctorSessionService) Get(ctx context.Context, sessionID string, studentID int) (*model.ProctorSession, error) {
	fields, err := s.rdb.HGetAll(ctx, config.CacheKey.ProctorSessionKey(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrSessionNotFound
	}

	testID, err := uuid.Parse(fields["test_id"])
	if err != nil {
		return nil, ErrSessionNotFound
	}
	owner, err := strconv.Atoi(fields["student_id"])
	if err != nil {
		return nil, ErrSessionNotFound
	}
	if owner != studentID {
		return nil, ErrSessionForbidden
	}
	started, err := strconv.ParseInt(fields["started_at"], 10, 64)
	if err != nil {
		return nil, ErrSessionNotFound
	}

	return &model.ProctorSession{
		ID:        sessionID,
		TestID:    testID,
		StudentID: owner,
		StartedAt: time.Unix(started, 0).UTC(),
	}, nil
}

// AnalyzeFrame runs face detection on one frame and pushes the result to the
// session's alert channel. A detector failure is reported as
// ErrFaceDetectorUnavailable and never as zero faces.
func (s *ProctorSessionService) AnalyzeFrame(ctx context.Context, sessionID string, studentID int, frame []byte) (*model.FrameResult, error) {
	sess, err := s.Get(ctx, sessionID, studentID)
	if err != nil {
		return nil, err
	}
	if len(frame) == 0 {
		return nil, ErrInvalidFrame
	}
	if err := s.rdb.Expire(ctx, config.CacheKey.ProctorSessionKey(sessionID), s.ttl).Err(); err != nil {
		s.log.Warn().Err(err).Str("session_id", sessionID).Msg("Failed to refresh session TTL")
	}

	res, err := s.detector.Detect(ctx, frame)
	if err != nil {
		metrics.Frames.WithLabelValues("error").Inc()
		s.log.Warn().Err(err).Str("session_id", sessionID).Msg("Face detection failed")
		s.publish(ctx, alert.Alert{
			SessionID: sess.ID,
			Type:      string(proctor.LevelDanger),
			Message:   "Error detecting faces",
			FaceCount: -1,
		})
		return nil, fmt.Errorf("%w: %v", ErrFaceDetectorUnavailable, err)
	}

	class := proctor.Classify(res.FaceCount)
	metrics.Frames.WithLabelValues(string(class)).Inc()

	result := &model.FrameResult{
		FaceCount:      res.FaceCount,
		Classification: string(class),
		Message:        frameMessage(class, res.Message),
		AlertType:      string(alertLevel(class)),
	}
	s.publish(ctx, alert.Alert{
		SessionID:      sess.ID,
		Type:           result.AlertType,
		Message:        result.Message,
		FaceCount:      result.FaceCount,
		Classification: result.Classification,
	})
	return result, nil
}

// ReportViolation records an escalated warning raised by the client.
func (s *ProctorSessionService) ReportViolation(ctx context.Context, sessionID string, studentID int, req model.ViolationReportRequest) error {
	sess, err := s.Get(ctx, sessionID, studentID)
	if err != nil {
		return err
	}

	now := time.Now()
	event := model.ViolationEvent{
		SessionID: sess.ID,
		TestID:    sess.TestID.String(),
		StudentID: studentID,
		Kind:      req.Kind,
		Count:     req.Count,
		RaisedAt:  now.Unix(),
	}

	countsKey := config.CacheKey.TestViolationsKey(event.TestID)
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HIncrBy(ctx, countsKey, strconv.Itoa(studentID), 1)
		pipe.Expire(ctx, countsKey, s.ttl)
		if s.persistViolations {
			data, err := json.Marshal(event)
			if err != nil {
				return err
			}
			pipe.RPush(ctx, config.WorkerKey.PersistViolationsQueue, data)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("record violation: %w", err)
	}

	metrics.Violations.WithLabelValues(req.Kind).Inc()
	s.notifyMonitor(ctx, sess.TestID, MonitorEvent{
		Type:      MonitorViolation,
		StudentID: studentID,
		SessionID: sess.ID,
		Kind:      req.Kind,
		Count:     req.Count,
	})
	s.log.Info().Str("session_id", sess.ID).Int("student_id", studentID).Str("kind", req.Kind).Int("count", req.Count).Msg("Violation reported")
	return nil
}

// Close ends a proctoring session.
func (s *ProctorSessionService) Close(ctx context.Context, sessionID string, studentID int) error {
	sess, err := s.Get(ctx, sessionID, studentID)
	if err != nil {
		return err
	}
	if err := s.rdb.Del(ctx, config.CacheKey.ProctorSessionKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	s.notifyMonitor(ctx, sess.TestID, MonitorEvent{Type: MonitorSessionClosed, StudentID: studentID, SessionID: sess.ID})
	s.log.Info().Str("session_id", sessionID).Msg("Proctoring session closed")
	return nil
}

// NotifySubmitted tells the teacher monitor that a student submitted.
func (s *ProctorSessionService) NotifySubmitted(ctx context.Context, testID uuid.UUID, studentID int) {
	s.notifyMonitor(ctx, testID, MonitorEvent{Type: MonitorSubmitted, StudentID: studentID})
}

func (s *ProctorSessionService) publish(ctx context.Context, a alert.Alert) {
	a.At = time.Now().UTC()
	if err := s.publisher.Publish(ctx, a); err != nil {
		s.log.Error().Err(err).Str("session_id", a.SessionID).Msg("Failed to publish alert")
	}
}

func (s *ProctorSessionService) notifyMonitor(ctx context.Context, testID uuid.UUID, ev MonitorEvent) {
	ev.At = time.Now().Unix()
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := s.rdb.Publish(ctx, config.CacheKey.TestMonitorChannel(testID.String()), data).Err(); err != nil {
		s.log.Warn().Err(err).Str("test_id", testID.String()).Msg("Failed to publish monitor event")
	}
}

func alertLevel(c proctor.Classification) proctor.Level {
	switch c {
	case proctor.ClassOK:
		return proctor.LevelSuccess
	case proctor.ClassNoFace:
		return proctor.LevelWarning
	default:
		return proctor.LevelDanger
	}
}

func frameMessage(c proctor.Classification, detectorMessage string) string {
	if detectorMessage != "" {
		return detectorMessage
	}
	switch c {
	case proctor.ClassOK:
		return "Face detected"
	case proctor.ClassNoFace:
		return "No face detected"
	default:
		return "Multiple faces detected"
	}
}
