package proctor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// GateState is the state of the pre-exam verification.
type GateState string

const (
	GateInitializing GateState = "INITIALIZING"
	GateVerifying    GateState = "VERIFYING"
	GateVerified     GateState = "VERIFIED"
	GateFailed       GateState = "FAILED"
)

// GateConfig holds the verification timings.
type GateConfig struct {
	SampleInterval time.Duration
	Window         time.Duration
	TickInterval   time.Duration
}

// DefaultGateConfig samples every 2s over a 15s window with a per-second countdown.
func DefaultGateConfig() GateConfig {
	return GateConfig{
		SampleInterval: 2 * time.Second,
		Window:         15 * time.Second,
		TickInterval:   time.Second,
	}
}

// Gate verifies that exactly one face is in front of the camera before the exam starts.
type Gate struct {
	cfg      GateConfig
	camera   Camera
	signal   FaceSignal
	notifier Notifier
	log      zerolog.Logger

	mu    sync.Mutex
	state GateState
}

// NewGate creates a gate in the INITIALIZING state.
func NewGate(cfg GateConfig, camera Camera, signal FaceSignal, notifier Notifier, log zerolog.Logger) *Gate {
	return &Gate{
		cfg:      cfg,
		camera:   camera,
		signal:   signal,
		notifier: notifier,
		log:      log.With().Str("component", "gate").Logger(),
		state:    GateInitializing,
	}
}

func (g *Gate) State() GateState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

func (g *Gate) setState(s GateState) {
	g.mu.Lock()
	g.state = s
	g.mu.Unlock()
	g.log.Debug().Str("state", string(s)).Msg("Gate state changed")
}

// Run performs the verification and returns the terminal state. The decision is
// taken when the window elapses: VERIFIED if any sample inside the window saw
// exactly one face. The capture stream is released before Run returns.
func (g *Gate) Run(ctx context.Context) (GateState, error) {
	stream, err := g.camera.Open(ctx)
	if err != nil {
		g.setState(GateFailed)
		g.notifier.Notice("Camera access denied")
		return GateFailed, fmt.Errorf("%w: %v", ErrCameraUnavailable, err)
	}
	defer func() {
		if err := stream.Close(); err != nil {
			g.log.Warn().Err(err).Msg("Failed to release capture stream")
		}
	}()

	g.setState(GateVerifying)
	g.notifier.Status(Status{Level: LevelWarning, Message: "Verifying face..."})

	// closed and verified move together so no result lands after the verdict.
	var (
		windowMu         sync.Mutex
		verified, closed bool
	)
	closeWindow := func() bool {
		windowMu.Lock()
		defer windowMu.Unlock()
		closed = true
		return verified
	}
	task := Repeat(ctx, g.cfg.SampleInterval, func(ctx context.Context) {
		frame, err := stream.Capture(ctx)
		if err != nil {
			g.notifier.Status(Status{Level: LevelDanger, Message: "Error capturing frame"})
			return
		}
		res, err := g.signal.Detect(ctx, frame)
		if err != nil {
			g.notifier.Status(Status{Level: LevelDanger, Message: "Error detecting face"})
			return
		}
		windowMu.Lock()
		if closed {
			windowMu.Unlock()
			return
		}
		if res.FaceCount == 1 {
			verified = true
		}
		windowMu.Unlock()

		if res.FaceCount == 1 {
			g.notifier.Status(Status{Level: LevelSuccess, Message: messageOr(res.Message, "Face detected")})
			return
		}
		g.notifier.Status(Status{Level: LevelWarning, Message: messageOr(res.Message, describe(Classify(res.FaceCount)))})
	})

	started := time.Now()
	deadline := time.NewTimer(g.cfg.Window)
	defer deadline.Stop()

	var tick <-chan time.Time
	if g.cfg.TickInterval > 0 {
		ticker := time.NewTicker(g.cfg.TickInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	g.notifier.Countdown(g.cfg.Window)
	var passed bool
wait:
	for {
		select {
		case <-deadline.C:
			passed = closeWindow()
			break wait
		case <-ctx.Done():
			closeWindow()
			task.Stop()
			g.setState(GateFailed)
			return GateFailed, ctx.Err()
		case <-tick:
			if remaining := g.cfg.Window - time.Since(started); remaining > 0 {
				g.notifier.Countdown(remaining.Round(time.Second))
			}
		}
	}

	task.Stop()

	if passed {
		g.setState(GateVerified)
		return GateVerified, nil
	}

	g.setState(GateFailed)
	g.notifier.Notice("Face verification failed. Please try again.")
	return GateFailed, ErrVerificationFailed
}

func messageOr(msg, fallback string) string {
	if msg != "" {
		return msg
	}
	return fallback
}
