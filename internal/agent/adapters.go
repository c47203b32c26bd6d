package agent

import (
	"context"

	"github.com/google/uuid"

	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/proctor"
)

// SessionSignal counts faces by uploading frames to the proctoring session.
type SessionSignal struct {
	client    *Client
	sessionID string
}

func NewSessionSignal(client *Client, sessionID string) *SessionSignal {
	return &SessionSignal{client: client, sessionID: sessionID}
}

func (s *SessionSignal) Detect(ctx context.Context, frame []byte) (proctor.FaceResult, error) {
	res, err := s.client.DetectFaces(ctx, s.sessionID, frame)
	if err != nil {
		return proctor.FaceResult{}, err
	}
	return proctor.FaceResult{FaceCount: res.FaceCount, Message: res.Message}, nil
}

// SessionReporter forwards escalated warnings to the proctoring session.
type SessionReporter struct {
	client    *Client
	sessionID string
}

func NewSessionReporter(client *Client, sessionID string) *SessionReporter {
	return &SessionReporter{client: client, sessionID: sessionID}
}

func (r *SessionReporter) ReportViolation(ctx context.Context, w proctor.Warning) error {
	return r.client.ReportViolation(ctx, r.sessionID, model.ViolationReportRequest{
		Kind:  string(w.Kind),
		Count: w.Count,
	})
}

// TestSubmitter submits attempts of one test. Receipt holds the last accepted submission.
type TestSubmitter struct {
	client  *Client
	testID  uuid.UUID
	Receipt *Receipt
}

func NewTestSubmitter(client *Client, testID uuid.UUID) *TestSubmitter {
	return &TestSubmitter{client: client, testID: testID}
}

func (s *TestSubmitter) Submit(ctx context.Context, req proctor.SubmitRequest) error {
	receipt, err := s.client.Submit(ctx, s.testID, model.SubmitTestRequest{
		Answers:   req.Answers,
		WasPasted: req.WasPasted,
		Force:     req.Force,
	})
	if err != nil {
		return err
	}
	s.Receipt = receipt
	return nil
}

var (
	_ proctor.FaceSignal        = (*SessionSignal)(nil)
	_ proctor.ViolationReporter = (*SessionReporter)(nil)
	_ proctor.Submitter         = (*TestSubmitter)(nil)
)
