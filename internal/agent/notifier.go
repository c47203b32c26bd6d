package agent

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-proctor/internal/proctor"
)

// LogNotifier shows the student-facing surface as log lines.
type LogNotifier struct {
	log zerolog.Logger
}

func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log.With().Str("component", "notifier").Logger()}
}

func (n *LogNotifier) Status(s proctor.Status) {
	var ev *zerolog.Event
	switch s.Level {
	case proctor.LevelDanger:
		ev = n.log.Error()
	case proctor.LevelWarning:
		ev = n.log.Warn()
	default:
		ev = n.log.Info()
	}
	ev.Str("level_style", string(s.Level)).Msg(s.Message)
}

func (n *LogNotifier) Warning(w proctor.Warning) {
	n.log.Warn().
		Str("kind", string(w.Kind)).
		Int("count", w.Count).
		Int("threshold", w.Threshold).
		Msg(w.Message())
}

func (n *LogNotifier) Countdown(remaining time.Duration) {
	n.log.Debug().Dur("remaining", remaining).Msg("Verification countdown")
}

func (n *LogNotifier) Notice(message string) {
	n.log.Info().Msg(message)
}
