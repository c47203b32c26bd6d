// Package proctor holds the client-side integrity runtime of an exam attempt:
// the pre-exam face verification gate, liveness sampling with debounced alerts,
// the violation counter and the session that ties them to a submission.
//
// Nothing here talks to the network directly. Cameras, the face signal and the
// submitter are interfaces so the same runtime drives the headless agent and tests.
package proctor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stemsi/exstem-proctor/internal/model"
)

var (
	ErrCameraUnavailable  = errors.New("camera unavailable")
	ErrVerificationFailed = errors.New("face verification failed")
	ErrIncompleteAnswers  = errors.New("please answer all questions")
	ErrInvalidQuestion    = errors.New("question index out of range")
	ErrSessionNotActive   = errors.New("session is not active")
)

// Classification is the meaning of a single face count.
type Classification string

const (
	ClassOK        Classification = "ok"
	ClassNoFace    Classification = "no-face"
	ClassMultiFace Classification = "multi-face"
)

// FaceSample is one face-count observation.
type FaceSample struct {
	CapturedAt time.Time
	FaceCount  int
}

// ViolationAlert is a non-ok classification that survived debouncing.
type ViolationAlert struct {
	Kind     Classification
	RaisedAt time.Time
}

// Warning is what the student sees for an escalated alert.
type Warning struct {
	Kind      Classification `json:"kind"`
	Count     int            `json:"count"`
	Threshold int            `json:"threshold"`
	RaisedAt  time.Time      `json:"raised_at"`
}

func (w Warning) Message() string {
	return fmt.Sprintf("Warning %d/%d: %s", w.Count, w.Threshold, describe(w.Kind))
}

func describe(c Classification) string {
	switch c {
	case ClassNoFace:
		return "No face detected"
	case ClassMultiFace:
		return "Multiple faces detected"
	default:
		return "Face detected"
	}
}

// Level mirrors the alert styles of the status line.
type Level string

const (
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelDanger  Level = "danger"
)

// Status is the visible status line of a running gate or session.
type Status struct {
	Level   Level
	Message string
}

// Stream is an acquired capture device. Close releases it.
type Stream interface {
	Capture(ctx context.Context) ([]byte, error)
	Close() error
}

// Camera acquires capture streams.
type Camera interface {
	Open(ctx context.Context) (Stream, error)
}

// FaceResult is the face signal's answer for one frame.
type FaceResult struct {
	FaceCount int
	Message   string
}

// FaceSignal counts faces in a frame. An error must never be reported as zero faces.
type FaceSignal interface {
	Detect(ctx context.Context, frame []byte) (FaceResult, error)
}

// SubmitRequest carries the answers of an attempt to the server.
type SubmitRequest struct {
	Answers   []model.Answer
	WasPasted bool
	Force     bool
}

// Submitter sends an attempt to the server.
type Submitter interface {
	Submit(ctx context.Context, req SubmitRequest) error
}

// ViolationReporter forwards escalated warnings to the server.
type ViolationReporter interface {
	ReportViolation(ctx context.Context, w Warning) error
}

// Notifier is the student-facing surface.
type Notifier interface {
	Status(s Status)
	Warning(w Warning)
	Countdown(remaining time.Duration)
	Notice(message string)
}
