package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"golang.org/x/term"

	"github.com/stemsi/exstem-proctor/internal/agent"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/logger"
	"github.com/stemsi/exstem-proctor/internal/proctor"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.LoadAgent()

	apiURL := flag.String("api", cfg.APIURL, "API base URL")
	email := flag.String("email", cfg.Email, "student email")
	password := flag.String("password", cfg.Password, "student password (prompted when empty)")
	testFlag := flag.String("test", "", "test id")
	framesDir := flag.String("frames", cfg.FramesDir, "directory of camera frames")
	answersFile := flag.String("answers", cfg.AnswersFile, "JSON array of answer texts")
	duration := flag.Duration("duration", cfg.Duration, "time spent on the exam before submitting")
	pasted := flag.Bool("pasted", false, "mark the attempt as containing pasted content")
	flag.Parse()

	log := logger.New(os.Stderr, cfg.LogLevel, cfg.LogFormat, "proctor-agent")

	testID, err := uuid.Parse(*testFlag)
	if err != nil {
		fmt.Println("Usage: proctor-agent -test <test-id> -email <email> [-frames dir] [-answers file] [-duration 1m]")
		os.Exit(1)
	}
	if *email == "" {
		log.Fatal().Msg("Student email is required (-email or AGENT_EMAIL)")
	}
	if *password == "" {
		*password, err = readPassword("Password: ")
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to read password")
		}
	}

	answers, err := agent.LoadAnswers(*answersFile)
	if err != nil {
		log.Fatal().Err(err).Str("file", *answersFile).Msg("Failed to load answers")
	}

	// ─── Run The Attempt ───────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := agent.NewClient(*apiURL, cfg.Timeout, log)
	runner := agent.NewRunner(client, agent.NewDirCamera(*framesDir), agent.NewLogNotifier(log), log)

	out, err := runner.Run(ctx, agent.Config{
		Email:     *email,
		Password:  *password,
		TestID:    testID,
		Answers:   answers,
		WasPasted: *pasted,
		Duration:  *duration,
		Gate:      proctor.DefaultGateConfig(),
		Session:   proctor.DefaultSessionConfig(),
	})
	if err != nil {
		switch {
		case errors.Is(err, context.Canceled):
			log.Warn().Msg("Attempt interrupted")
		case errors.Is(err, agent.ErrAlreadySubmitted):
			log.Warn().Str("test_id", testID.String()).Msg("Test was already submitted")
		default:
			log.Error().Err(err).Msg("Attempt failed")
		}
		os.Exit(1)
	}

	ev := log.Info().
		Str("reason", string(out.Reason)).
		Int("violations", out.Violations)
	if out.Receipt != nil {
		ev = ev.Str("submission_id", out.Receipt.ID.String()).Bool("forced", out.Receipt.Forced)
	}
	ev.Msg("Attempt finished")
}

func readPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
