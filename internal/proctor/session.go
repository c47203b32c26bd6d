package proctor

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// SessionState is the lifecycle of an exam attempt on the client.
type SessionState string

const (
	SessionIdle       SessionState = "idle"
	SessionActive     SessionState = "active"
	SessionSubmitting SessionState = "submitting"
	SessionEnded      SessionState = "ended"
)

// EndReason tells why a session ended.
type EndReason string

const (
	EndSubmitted EndReason = "submitted"
	EndForced    EndReason = "forced"
	EndAbandoned EndReason = "abandoned"
)

// SessionConfig holds the exam-time sampling rules.
type SessionConfig struct {
	SampleInterval time.Duration
	Debounce       time.Duration
	Threshold      int
	SubmitTimeout  time.Duration
}

// DefaultSessionConfig samples every 3s, debounces alerts by 5s and forces
// submission on the third warning.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		SampleInterval: 3 * time.Second,
		Debounce:       DefaultDebounce,
		Threshold:      DefaultThreshold,
		SubmitTimeout:  30 * time.Second,
	}
}

// SessionDeps are the collaborators of a Session. Reporter is optional.
type SessionDeps struct {
	Camera    Camera
	Signal    FaceSignal
	Submitter Submitter
	Notifier  Notifier
	Reporter  ViolationReporter
	Log       zerolog.Logger
}

// Session is one student's in-progress attempt at one test. It owns the capture
// stream and the sampling task; every way out of the session stops sampling and
// releases the stream before returning, and results that arrive afterwards are dropped.
type Session struct {
	cfg  SessionConfig
	deps SessionDeps
	log  zerolog.Logger

	mu        sync.Mutex
	state     SessionState
	reason    EndReason
	stream    Stream
	task      *RepeatingTask
	monitor   *LivenessMonitor
	tracker   *ViolationTracker
	answers   []string
	wasPasted bool
	startedAt time.Time

	done     chan struct{}
	doneOnce sync.Once
}

// NewSession creates an idle session for a test with questionCount questions.
func NewSession(cfg SessionConfig, questionCount int, deps SessionDeps) *Session {
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = 30 * time.Second
	}
	return &Session{
		cfg:     cfg,
		deps:    deps,
		log:     deps.Log.With().Str("component", "session").Logger(),
		state:   SessionIdle,
		monitor: NewLivenessMonitor(cfg.Debounce),
		tracker: NewViolationTracker(cfg.Threshold),
		answers: make([]string, questionCount),
		done:    make(chan struct{}),
	}
}

// Start acquires the camera and begins liveness sampling.
func (s *Session) Start(ctx context.Context) error {
	if s.State() != SessionIdle {
		return ErrSessionNotActive
	}

	stream, err := s.deps.Camera.Open(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("Camera acquisition failed")
		s.deps.Notifier.Status(Status{Level: LevelDanger, Message: "Camera access denied"})
		return ErrCameraUnavailable
	}

	s.mu.Lock()
	if s.state != SessionIdle {
		s.mu.Unlock()
		s.release(nil, stream)
		return ErrSessionNotActive
	}
	s.stream = stream
	s.state = SessionActive
	s.startedAt = time.Now()
	s.task = Repeat(ctx, s.cfg.SampleInterval, s.sample)
	s.mu.Unlock()

	s.log.Info().Int("questions", len(s.answers)).Msg("Exam session started")
	return nil
}

// SetAnswer records the text of question i. Answers are editable until the session ends.
func (s *Session) SetAnswer(i int, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != SessionIdle && s.state != SessionActive {
		return ErrSessionNotActive
	}
	if i < 0 || i >= len(s.answers) {
		return ErrInvalidQuestion
	}
	s.answers[i] = text
	return nil
}

// MarkPasted records that content was pasted into an answer.
func (s *Session) MarkPasted() {
	s.mu.Lock()
	s.wasPasted = true
	s.mu.Unlock()
}

// Submit sends the answers on behalf of the student. Every answer must be
// non-empty. On success the session ends; on failure it stays active and the
// student sees the reason.
func (s *Session) Submit(ctx context.Context) error {
	s.mu.Lock()
	if s.state != SessionActive {
		s.mu.Unlock()
		return ErrSessionNotActive
	}
	for _, a := range s.answers {
		if strings.TrimSpace(a) == "" {
			s.mu.Unlock()
			s.deps.Notifier.Notice(ErrIncompleteAnswers.Error())
			return ErrIncompleteAnswers
		}
	}
	s.state = SessionSubmitting
	req := s.requestLocked(false)
	s.mu.Unlock()

	err := s.deps.Submitter.Submit(ctx, req)

	s.mu.Lock()
	if err != nil {
		if s.state == SessionSubmitting {
			s.state = SessionActive
		}
		s.mu.Unlock()
		s.log.Warn().Err(err).Msg("Submission rejected")
		s.deps.Notifier.Notice(err.Error())
		return err
	}
	task, stream := s.endLocked(EndSubmitted)
	s.mu.Unlock()

	s.release(task, stream)
	s.finish()
	s.log.Info().Dur("elapsed", time.Since(s.startedAt)).Msg("Exam submitted")
	return nil
}

// End tears the session down without submitting, for navigation away or logout.
func (s *Session) End() {
	s.mu.Lock()
	if s.state == SessionEnded {
		s.mu.Unlock()
		return
	}
	task, stream := s.endLocked(EndAbandoned)
	s.mu.Unlock()

	s.release(task, stream)
	s.finish()
	s.log.Info().Msg("Exam session abandoned")
}

// Done is closed when the session has ended and any forced submission has been attempted.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) EndReason() EndReason {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

func (s *Session) StartedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startedAt
}

func (s *Session) ViolationCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracker.Count()
}

// sample is one liveness cycle. It runs on the task goroutine.
func (s *Session) sample(ctx context.Context) {
	s.mu.Lock()
	if s.state != SessionActive {
		s.mu.Unlock()
		return
	}
	stream := s.stream
	s.mu.Unlock()

	var res FaceResult
	frame, err := stream.Capture(ctx)
	if err == nil {
		res, err = s.deps.Signal.Detect(ctx, frame)
	}

	s.mu.Lock()
	if s.state != SessionActive {
		s.mu.Unlock()
		return
	}
	if err != nil {
		s.mu.Unlock()
		s.log.Debug().Err(err).Msg("Liveness sample failed")
		s.deps.Notifier.Status(Status{Level: LevelDanger, Message: "Error detecting faces"})
		return
	}

	class, alert := s.monitor.Observe(FaceSample{CapturedAt: time.Now(), FaceCount: res.FaceCount})

	var (
		warning         Warning
		force, accepted bool
		forced          SubmitRequest
		task            *RepeatingTask
		released        Stream
	)
	if alert != nil {
		warning, force, accepted = s.tracker.Record(*alert)
	}
	if force {
		forced = s.requestLocked(true)
		task, released = s.endLocked(EndForced)
	}
	s.mu.Unlock()

	if force {
		s.release(task, released)
	}

	if class == ClassOK {
		s.deps.Notifier.Status(Status{Level: LevelSuccess, Message: messageOr(res.Message, "Face detected")})
	} else {
		s.deps.Notifier.Status(Status{Level: LevelWarning, Message: messageOr(res.Message, describe(class))})
	}

	if accepted {
		s.deps.Notifier.Warning(warning)
		s.report(ctx, warning)
	}

	if force {
		s.forceSubmit(ctx, forced)
	}
}

func (s *Session) report(ctx context.Context, w Warning) {
	if s.deps.Reporter == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.SubmitTimeout)
	defer cancel()

	if err := s.deps.Reporter.ReportViolation(ctx, w); err != nil {
		s.log.Warn().Err(err).Int("count", w.Count).Msg("Failed to report violation")
	}
}

// forceSubmit sends the attempt silently. Errors are logged, never shown.
func (s *Session) forceSubmit(ctx context.Context, req SubmitRequest) {
	defer s.finish()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.SubmitTimeout)
	defer cancel()

	if err := s.deps.Submitter.Submit(ctx, req); err != nil {
		s.log.Error().Err(err).Msg("Forced submission failed")
		return
	}
	s.log.Info().Int("threshold", s.cfg.Threshold).Msg("Exam force-submitted after violation threshold")
}

// endLocked marks the session ended and detaches the task and stream for release.
func (s *Session) endLocked(reason EndReason) (*RepeatingTask, Stream) {
	s.state = SessionEnded
	s.reason = reason
	task, stream := s.task, s.stream
	s.task, s.stream = nil, nil
	return task, stream
}

// release stops scheduling samples and closes the stream. It does not wait for a
// cycle in flight; that cycle finds the session ended and drops its result.
func (s *Session) release(task *RepeatingTask, stream Stream) {
	if task != nil {
		task.Cancel()
	}
	if stream != nil {
		if err := stream.Close(); err != nil {
			s.log.Warn().Err(err).Msg("Failed to release capture stream")
		}
	}
}

func (s *Session) finish() {
	s.doneOnce.Do(func() { close(s.done) })
}

func (s *Session) requestLocked(force bool) SubmitRequest {
	answers := make([]model.Answer, len(s.answers))
	for i, text := range s.answers {
		answers[i] = model.Answer{QuestionIndex: i, Text: text}
	}
	return SubmitRequest{Answers: answers, WasPasted: s.wasPasted, Force: force}
}
