package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/analyzer"
	"github.com/stemsi/exstem-proctor/internal/metrics"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/repository"
	"golang.org/x/sync/errgroup"
)

// DefaultForcedAnswerPlaceholder fills empty answers of a forced submission.
const DefaultForcedAnswerPlaceholder = "[no answer: auto-submitted]"

// SubmitInput is one submission attempt. StudentID comes from the verified token.
type SubmitInput struct {
	TestID    uuid.UUID
	StudentID int
	Answers   []model.Answer
	WasPasted bool
	Force     bool
}

// SubmissionService is the server-side authority on submission attempts.
type SubmissionService struct {
	tests       TestStore
	analyzer    analyzer.Strategy
	placeholder string
	log         zerolog.Logger
}

// NewSubmissionService creates a new SubmissionService.
func NewSubmissionService(tests TestStore, a analyzer.Strategy, placeholder string, log zerolog.Logger) *SubmissionService {
	if placeholder == "" {
		placeholder = DefaultForcedAnswerPlaceholder
	}
	return &SubmissionService{
		tests:       tests,
		analyzer:    a,
		placeholder: placeholder,
		log:         log.With().Str("component", "submission_service").Logger(),
	}
}

// Submit admits or rejects the attempt. Checks run in order: the test exists,
// the student is assigned, the student has not submitted yet. Accepted answers
// are analysed and the submission is appended with a conditional write, so a
// concurrent duplicate is still rejected as ErrAlreadySubmitted.
func (s *SubmissionService) Submit(ctx context.Context, in SubmitInput) (*model.Submission, error) {
	log := s.log.With().
		Str("test_id", in.TestID.String()).
		Int("student_id", in.StudentID).
		Bool("forced", in.Force).
		Logger()

	sub, err := s.submit(ctx, in)
	s.observe(err, in.Force)
	if err != nil {
		log.Info().Err(err).Msg("Submission rejected")
		return nil, err
	}

	if in.Force {
		log.Info().Msg("Forced submission recorded")
	} else {
		log.Info().Msg("Submission recorded")
	}
	return sub, nil
}

func (s *SubmissionService) submit(ctx context.Context, in SubmitInput) (*model.Submission, error) {
	t, err := s.tests.GetTest(ctx, in.TestID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrTestNotFound
		}
		return nil, fmt.Errorf("get test: %w", err)
	}
	if !t.IsAssigned(in.StudentID) {
		return nil, ErrNotAssigned
	}
	if t.HasSubmitted(in.StudentID) {
		return nil, ErrAlreadySubmitted
	}

	answers, err := s.normalize(t, in.Answers, in.Force)
	if err != nil {
		return nil, err
	}

	verdicts, err := s.analyzeAll(ctx, answers)
	if err != nil {
		return nil, err
	}

	sub := &model.Submission{
		StudentID: in.StudentID,
		Answers:   answers,
		WasPasted: in.WasPasted,
		Forced:    in.Force,
	}
	aggregate(sub, verdicts)

	if _, err := s.tests.AppendSubmission(ctx, in.TestID, sub); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicateSubmission):
			return nil, ErrAlreadySubmitted
		case errors.Is(err, repository.ErrNotAssigned):
			return nil, ErrNotAssigned
		}
		return nil, fmt.Errorf("append submission: %w", err)
	}
	return sub, nil
}

// normalize returns exactly one answer per question, in question order.
func (s *SubmissionService) normalize(t *model.Test, in []model.Answer, force bool) ([]model.Answer, error) {
	texts := make([]string, len(t.Questions))
	seen := make([]bool, len(t.Questions))
	for _, a := range in {
		if a.QuestionIndex < 0 || a.QuestionIndex >= len(t.Questions) || seen[a.QuestionIndex] {
			return nil, ErrInvalidAnswers
		}
		seen[a.QuestionIndex] = true
		texts[a.QuestionIndex] = a.Text
	}

	answers := make([]model.Answer, len(texts))
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			if !force {
				return nil, ErrIncompleteAnswers
			}
			text = s.placeholder
		}
		answers[i] = model.Answer{QuestionIndex: i, Text: text}
	}
	return answers, nil
}

// analyzeAll runs the analyzer over every answer concurrently.
func (s *SubmissionService) analyzeAll(ctx context.Context, answers []model.Answer) ([]analyzer.Verdict, error) {
	verdicts := make([]analyzer.Verdict, len(answers))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, a := range answers {
		g.Go(func() error {
			verdicts[i] = s.analyzer.Analyze(gctx, a.Text)
			metrics.AnalyzerVerdicts.WithLabelValues(string(verdicts[i].Source)).Inc()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	// a client that went away mid-analysis has nothing to append
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return verdicts, nil
}

// aggregate sets the submission flags. AIGeneratedFlag stays nil unless the
// strategy evaluates AI generation.
func aggregate(sub *model.Submission, verdicts []analyzer.Verdict) {
	evaluated, ai := false, false
	for _, v := range verdicts {
		sub.PlagiarismFlag = sub.PlagiarismFlag || v.Plagiarized
		if v.AIEvaluated {
			evaluated = true
			ai = ai || v.AIGenerated
		}
	}
	if evaluated {
		sub.AIGeneratedFlag = &ai
	}
}

func (s *SubmissionService) observe(err error, forced bool) {
	outcome := "accepted"
	switch {
	case err == nil:
	case errors.Is(err, ErrAlreadySubmitted):
		outcome = "already_submitted"
	case errors.Is(err, ErrNotAssigned):
		outcome = "not_assigned"
	case errors.Is(err, ErrTestNotFound):
		outcome = "test_not_found"
	case errors.Is(err, ErrIncompleteAnswers), errors.Is(err, ErrInvalidAnswers):
		outcome = "invalid"
	default:
		outcome = "error"
	}
	metrics.Submissions.WithLabelValues(outcome, strconv.FormatBool(forced)).Inc()
}
