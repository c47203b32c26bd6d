package proctor

import (
	"context"
	"errors"
	"sync"
	"time"
)

type fakeStream struct {
	mu     sync.Mutex
	closed int
}

func (s *fakeStream) Capture(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed > 0 {
		return nil, errors.New("stream closed")
	}
	return []byte("frame"), nil
}

func (s *fakeStream) Close() error {
	s.mu.Lock()
	s.closed++
	s.mu.Unlock()
	return nil
}

func (s *fakeStream) Closed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type fakeCamera struct {
	stream *fakeStream
	err    error
}

func (c *fakeCamera) Open(context.Context) (Stream, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.stream, nil
}

// scriptedSignal returns results in order, repeating the last one.
type scriptedSignal struct {
	mu      sync.Mutex
	results []FaceResult
	errs    []error
	calls   int
}

func (s *scriptedSignal) Detect(ctx context.Context, _ []byte) (FaceResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	s.calls++
	if len(s.errs) > 0 {
		if err := s.errs[min(i, len(s.errs)-1)]; err != nil {
			return FaceResult{}, err
		}
	}
	if len(s.results) == 0 {
		return FaceResult{}, errors.New("no result")
	}
	return s.results[min(i, len(s.results)-1)], nil
}

func (s *scriptedSignal) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type recordingNotifier struct {
	mu        sync.Mutex
	statuses  []Status
	warnings  []Warning
	countdown []time.Duration
	notices   []string
}

func (n *recordingNotifier) Status(s Status) {
	n.mu.Lock()
	n.statuses = append(n.statuses, s)
	n.mu.Unlock()
}

func (n *recordingNotifier) Warning(w Warning) {
	n.mu.Lock()
	n.warnings = append(n.warnings, w)
	n.mu.Unlock()
}

func (n *recordingNotifier) Countdown(d time.Duration) {
	n.mu.Lock()
	n.countdown = append(n.countdown, d)
	n.mu.Unlock()
}

func (n *recordingNotifier) Notice(msg string) {
	n.mu.Lock()
	n.notices = append(n.notices, msg)
	n.mu.Unlock()
}

func (n *recordingNotifier) Warnings() []Warning {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Warning(nil), n.warnings...)
}

func (n *recordingNotifier) Notices() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.notices...)
}

func (n *recordingNotifier) Countdowns() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.countdown)
}

func (n *recordingNotifier) HasStatus(level Level) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, s := range n.statuses {
		if s.Level == level {
			return true
		}
	}
	return false
}

type recordingSubmitter struct {
	mu    sync.Mutex
	reqs  []SubmitRequest
	err   error
	delay time.Duration
}

func (s *recordingSubmitter) Submit(ctx context.Context, req SubmitRequest) error {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reqs = append(s.reqs, req)
	return s.err
}

func (s *recordingSubmitter) Requests() []SubmitRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SubmitRequest(nil), s.reqs...)
}
