package service

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/alert"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/facedetect"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDetector struct {
	result facedetect.Result
	err    error
}

func (d *fakeDetector) Detect(context.Context, []byte) (facedetect.Result, error) {
	return d.result, d.err
}

type recordingPublisher struct {
	mu     sync.Mutex
	alerts []alert.Alert
}

func (p *recordingPublisher) Publish(_ context.Context, a alert.Alert) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.alerts = append(p.alerts, a)
	return nil
}

func (p *recordingPublisher) last() alert.Alert {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.alerts[len(p.alerts)-1]
}

type proctorFixture struct {
	*fixture
	mr        *miniredis.Miniredis
	svc       *ProctorSessionService
	detector  *fakeDetector
	publisher *recordingPublisher
}

func newProctorFixture(t *testing.T, persist bool) *proctorFixture {
	t.Helper()
	f := newFixture(t)
	mr, rdb := newTestRedis(t)
	pf := &proctorFixture{
		fixture:   f,
		mr:        mr,
		detector:  &fakeDetector{result: facedetect.Result{FaceCount: 1}},
		publisher: &recordingPublisher{},
	}
	pf.svc = NewProctorSessionService(rdb, f.tests, pf.detector, pf.publisher, time.Hour, persist, zerolog.Nop())
	return pf
}

func TestProctorSession_OpenAndGet(t *testing.T) {
	pf := newProctorFixture(t, false)
	ctx := context.Background()

	sess, err := pf.svc.Open(ctx, pf.testID, pf.studentID)
	require.NoError(t, err)
	assert.NotEmpty(t, sess.ID)

	got, err := pf.svc.Get(ctx, sess.ID, pf.studentID)
	require.NoError(t, err)
	assert.Equal(t, pf.testID, got.TestID)
	assert.Equal(t, sess.StartedAt.Unix(), got.StartedAt.Unix())
	assert.True(t, pf.mr.TTL(config.CacheKey.ProctorSessionKey(sess.ID)) > 0)

	_, err = pf.svc.Get(ctx, sess.ID, pf.outsider)
	assert.ErrorIs(t, err, ErrSessionForbidden)

	_, err = pf.svc.Get(ctx, "missing", pf.studentID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestProctorSession_GetRejectsCorruptStartTime(t *testing.T) {
	pf := newProctorFixture(t, false)
	ctx := context.Background()
	sess, err := pf.svc.Open(ctx, pf.testID, pf.studentID)
	require.NoError(t, err)

	pf.mr.HSet(config.CacheKey.ProctorSessionKey(sess.ID), "started_at", "yesterday")

	_, err = pf.svc.Get(ctx, sess.ID, pf.studentID)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = pf.svc.AnalyzeFrame(ctx, sess.ID, pf.studentID, []byte("jpeg"))
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestProctorSession_OpenRequiresEligibleStudent(t *testing.T) {
	pf := newProctorFixture(t, false)
	ctx := context.Background()

	_, err := pf.svc.Open(ctx, pf.testID, pf.outsider)
	assert.ErrorIs(t, err, ErrNotAssigned)

	_, err = newSubmissionService(pf.fixture, nil).Submit(ctx, SubmitInput{
		TestID:    pf.testID,
		StudentID: pf.studentID,
		Answers:   fullAnswers(),
	})
	require.NoError(t, err)

	_, err = pf.svc.Open(ctx, pf.testID, pf.studentID)
	assert.ErrorIs(t, err, ErrAlreadySubmitted)
}

func TestProctorSession_AnalyzeFrame(t *testing.T) {
	tests := []struct {
		name      string
		result    facedetect.Result
		class     string
		alertType string
		message   string
	}{
		{"one face", facedetect.Result{FaceCount: 1}, "ok", "success", "Face detected"},
		{"no face", facedetect.Result{FaceCount: 0}, "no-face", "warning", "No face detected"},
		{"two faces", facedetect.Result{FaceCount: 2, Message: "2 faces detected"}, "multi-face", "danger", "2 faces detected"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pf := newProctorFixture(t, false)
			ctx := context.Background()
			sess, err := pf.svc.Open(ctx, pf.testID, pf.studentID)
			require.NoError(t, err)

			pf.detector.result = tt.result
			res, err := pf.svc.AnalyzeFrame(ctx, sess.ID, pf.studentID, []byte("jpeg"))
			require.NoError(t, err)
			assert.Equal(t, tt.result.FaceCount, res.FaceCount)
			assert.Equal(t, tt.class, res.Classification)
			assert.Equal(t, tt.alertType, res.AlertType)
			assert.Equal(t, tt.message, res.Message)

			a := pf.publisher.last()
			assert.Equal(t, sess.ID, a.SessionID)
			assert.Equal(t, tt.alertType, a.Type)
		})
	}
}

func TestProctorSession_DetectorFailureIsNotZeroFaces(t *testing.T) {
	pf := newProctorFixture(t, false)
	ctx := context.Background()
	sess, err := pf.svc.Open(ctx, pf.testID, pf.studentID)
	require.NoError(t, err)

	pf.detector.err = errors.New("connection refused")
	res, err := pf.svc.AnalyzeFrame(ctx, sess.ID, pf.studentID, []byte("jpeg"))
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrFaceDetectorUnavailable)

	a := pf.publisher.last()
	assert.Equal(t, "danger", a.Type)
	assert.Equal(t, "Error detecting faces", a.Message)
}

func TestProctorSession_AnalyzeFrameRejectsEmptyAndForeign(t *testing.T) {
	pf := newProctorFixture(t, false)
	ctx := context.Background()
	sess, err := pf.svc.Open(ctx, pf.testID, pf.studentID)
	require.NoError(t, err)

	_, err = pf.svc.AnalyzeFrame(ctx, sess.ID, pf.studentID, nil)
	assert.ErrorIs(t, err, ErrInvalidFrame)

	_, err = pf.svc.AnalyzeFrame(ctx, sess.ID, pf.outsider, []byte("jpeg"))
	assert.ErrorIs(t, err, ErrSessionForbidden)
}

func TestProctorSession_ReportViolation(t *testing.T) {
	pf := newProctorFixture(t, true)
	ctx := context.Background()
	sess, err := pf.svc.Open(ctx, pf.testID, pf.studentID)
	require.NoError(t, err)

	require.NoError(t, pf.svc.ReportViolation(ctx, sess.ID, pf.studentID, model.ViolationReportRequest{Kind: "no-face", Count: 1}))
	require.NoError(t, pf.svc.ReportViolation(ctx, sess.ID, pf.studentID, model.ViolationReportRequest{Kind: "multi-face", Count: 2}))

	count := pf.mr.HGet(config.CacheKey.TestViolationsKey(pf.testID.String()), strconv.Itoa(pf.studentID))
	assert.Equal(t, "2", count)

	queued, err := pf.mr.List(config.WorkerKey.PersistViolationsQueue)
	require.NoError(t, err)
	require.Len(t, queued, 2)

	var ev model.ViolationEvent
	require.NoError(t, json.Unmarshal([]byte(queued[1]), &ev))
	assert.Equal(t, sess.ID, ev.SessionID)
	assert.Equal(t, "multi-face", ev.Kind)
	assert.Equal(t, 2, ev.Count)
}

func TestProctorSession_ReportViolationWithoutPersistence(t *testing.T) {
	pf := newProctorFixture(t, false)
	ctx := context.Background()
	sess, err := pf.svc.Open(ctx, pf.testID, pf.studentID)
	require.NoError(t, err)

	require.NoError(t, pf.svc.ReportViolation(ctx, sess.ID, pf.studentID, model.ViolationReportRequest{Kind: "no-face", Count: 1}))
	assert.False(t, pf.mr.Exists(config.WorkerKey.PersistViolationsQueue))
}

func TestProctorSession_Close(t *testing.T) {
	pf := newProctorFixture(t, false)
	ctx := context.Background()
	sess, err := pf.svc.Open(ctx, pf.testID, pf.studentID)
	require.NoError(t, err)

	assert.ErrorIs(t, pf.svc.Close(ctx, sess.ID, pf.outsider), ErrSessionForbidden)
	require.NoError(t, pf.svc.Close(ctx, sess.ID, pf.studentID))

	_, err = pf.svc.Get(ctx, sess.ID, pf.studentID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}
