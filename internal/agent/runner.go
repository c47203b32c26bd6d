package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-proctor/internal/alert"
	"github.com/stemsi/exstem-proctor/internal/proctor"
)

var ErrAlreadySubmitted = errors.New("test already submitted")

// Config drives one unattended exam attempt.
type Config struct {
	Email     string
	Password  string
	TestID    uuid.UUID
	Answers   []string
	WasPasted bool
	// Duration is how long the attempt runs before the voluntary submit.
	Duration time.Duration
	Gate     proctor.GateConfig
	Session  proctor.SessionConfig
}

// Outcome summarises a finished attempt.
type Outcome struct {
	Reason     proctor.EndReason
	Violations int
	Receipt    *Receipt
}

// Runner performs an attempt: login, open a proctoring session, pass the
// verification gate, sit the exam and submit.
type Runner struct {
	client   *Client
	camera   proctor.Camera
	notifier proctor.Notifier
	log      zerolog.Logger
}

func NewRunner(client *Client, camera proctor.Camera, notifier proctor.Notifier, log zerolog.Logger) *Runner {
	return &Runner{
		client:   client,
		camera:   camera,
		notifier: notifier,
		log:      log.With().Str("component", "runner").Logger(),
	}
}

func (r *Runner) Run(ctx context.Context, cfg Config) (*Outcome, error) {
	if _, err := r.client.Login(ctx, cfg.Email, cfg.Password); err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}

	paper, err := r.client.GetTest(ctx, cfg.TestID)
	if err != nil {
		return nil, fmt.Errorf("fetch test: %w", err)
	}
	if paper.Submitted {
		return nil, ErrAlreadySubmitted
	}
	r.log.Info().Str("title", paper.Title).Int("questions", len(paper.Questions)).Msg("Test loaded")

	sess, err := r.client.OpenSession(ctx, cfg.TestID)
	if err != nil {
		return nil, fmt.Errorf("open proctoring session: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := r.client.CloseSession(closeCtx, sess.ID); err != nil {
			r.log.Warn().Err(err).Msg("Failed to close proctoring session")
		}
	}()

	streamCtx, stopStream := context.WithCancel(ctx)
	defer stopStream()
	go func() {
		err := r.client.StreamAlerts(streamCtx, sess.ID, func(a alert.Alert) {
			r.log.Debug().Str("type", a.Type).Int("face_count", a.FaceCount).Msg(a.Message)
		})
		if err != nil {
			r.log.Warn().Err(err).Msg("Alert stream ended")
		}
	}()

	signal := NewSessionSignal(r.client, sess.ID)

	gate := proctor.NewGate(cfg.Gate, r.camera, signal, r.notifier, r.log)
	if state, err := gate.Run(ctx); state != proctor.GateVerified {
		return nil, fmt.Errorf("face verification: %w", err)
	}

	submitter := NewTestSubmitter(r.client, cfg.TestID)
	session := proctor.NewSession(cfg.Session, len(paper.Questions), proctor.SessionDeps{
		Camera:    r.camera,
		Signal:    signal,
		Submitter: submitter,
		Notifier:  r.notifier,
		Reporter:  NewSessionReporter(r.client, sess.ID),
		Log:       r.log,
	})

	for i := range paper.Questions {
		if i < len(cfg.Answers) {
			if err := session.SetAnswer(i, cfg.Answers[i]); err != nil {
				return nil, err
			}
		}
	}
	if cfg.WasPasted {
		session.MarkPasted()
	}

	if err := session.Start(ctx); err != nil {
		return nil, err
	}

	timer := time.NewTimer(cfg.Duration)
	defer timer.Stop()

	select {
	case <-session.Done():
	case <-ctx.Done():
		session.End()
		return nil, ctx.Err()
	case <-timer.C:
		if err := session.Submit(ctx); err != nil {
			// A forced submission may have won the race.
			if session.State() != proctor.SessionEnded {
				session.End()
				return nil, fmt.Errorf("submit: %w", err)
			}
			<-session.Done()
		}
	}

	return &Outcome{
		Reason:     session.EndReason(),
		Violations: session.ViolationCount(),
		Receipt:    submitter.Receipt,
	}, nil
}

// LoadAnswers reads a JSON array of answer texts.
func LoadAnswers(path string) ([]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var answers []string
	if err := json.Unmarshal(raw, &answers); err != nil {
		return nil, fmt.Errorf("parse answers: %w", err)
	}
	return answers, nil
}
