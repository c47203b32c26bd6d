package model

import (
	"time"

	"github.com/google/uuid"
)

// ProctorSession is the server-side record of one exam-taking client.
// It lives in Redis only and expires with PROCTOR_SESSION_TTL_MINUTES.
type ProctorSession struct {
	ID        string    `json:"session_id"`
	TestID    uuid.UUID `json:"test_id"`
	StudentID int       `json:"student_id"`
	StartedAt time.Time `json:"started_at"`
}

// FrameResult is the face-detection outcome of one uploaded frame.
type FrameResult struct {
	FaceCount      int    `json:"face_count"`
	Classification string `json:"classification"`
	Message        string `json:"message"`
	AlertType      string `json:"alert_type"`
}

// ViolationReportRequest is sent by the client for every escalated warning.
type ViolationReportRequest struct {
	Kind  string `json:"kind" binding:"required,oneof=no-face multi-face"`
	Count int    `json:"count" binding:"required,min=1"`
}

// ViolationEvent is queued for persistence and pushed to the teacher monitor.
type ViolationEvent struct {
	SessionID string `json:"session_id"`
	TestID    string `json:"test_id"`
	StudentID int    `json:"student_id"`
	Kind      string `json:"kind"`
	Count     int    `json:"count"`
	RaisedAt  int64  `json:"raised_at"`
}
