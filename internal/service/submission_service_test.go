package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/analyzer"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubStrategy struct {
	verdict analyzer.Verdict
}

func (s stubStrategy) Name() string { return "stub" }

func (s stubStrategy) Analyze(context.Context, string) analyzer.Verdict { return s.verdict }

func newSubmissionService(f *fixture, a analyzer.Strategy) *SubmissionService {
	if a == nil {
		a = analyzer.NewSimilarity(analyzer.ReferenceCorpus)
	}
	return NewSubmissionService(f.tests, a, "", zerolog.Nop())
}

func TestSubmit_Accepted(t *testing.T) {
	f := newFixture(t)
	svc := newSubmissionService(f, nil)

	sub, err := svc.Submit(context.Background(), SubmitInput{
		TestID:    f.testID,
		StudentID: f.studentID,
		Answers:   fullAnswers(),
		WasPasted: true,
	})
	require.NoError(t, err)
	assert.Equal(t, f.studentID, sub.StudentID)
	assert.True(t, sub.WasPasted)
	assert.False(t, sub.Forced)
	assert.Nil(t, sub.AIGeneratedFlag, "similarity does not evaluate AI generation")

	stored, err := f.tests.GetTest(context.Background(), f.testID)
	require.NoError(t, err)
	require.Len(t, stored.Submissions, 1)
	assert.Equal(t, fullAnswers(), stored.Submissions[0].Answers)
}

func TestSubmit_AnswersAreOrderedByQuestion(t *testing.T) {
	f := newFixture(t)
	svc := newSubmissionService(f, nil)

	answers := fullAnswers()
	answers[0], answers[1] = answers[1], answers[0]

	sub, err := svc.Submit(context.Background(), SubmitInput{TestID: f.testID, StudentID: f.studentID, Answers: answers})
	require.NoError(t, err)
	assert.Equal(t, fullAnswers(), sub.Answers)
}

func TestSubmit_Rejections(t *testing.T) {
	f := newFixture(t)
	svc := newSubmissionService(f, nil)
	ctx := context.Background()

	_, err := svc.Submit(ctx, SubmitInput{TestID: f.testID, StudentID: f.outsider, Answers: fullAnswers()})
	assert.ErrorIs(t, err, ErrNotAssigned)

	_, err = svc.Submit(ctx, SubmitInput{TestID: f.testID, StudentID: f.outsider, Answers: fullAnswers(), Force: true})
	assert.ErrorIs(t, err, ErrNotAssigned, "forcing does not bypass the roster")

	_, err = svc.Submit(ctx, SubmitInput{TestID: uuid.New(), StudentID: f.studentID, Answers: fullAnswers()})
	assert.ErrorIs(t, err, ErrTestNotFound)

	_, err = svc.Submit(ctx, SubmitInput{TestID: f.testID, StudentID: f.studentID, Answers: fullAnswers()[:1]})
	assert.ErrorIs(t, err, ErrIncompleteAnswers)

	blank := fullAnswers()
	blank[1].Text = "   "
	_, err = svc.Submit(ctx, SubmitInput{TestID: f.testID, StudentID: f.studentID, Answers: blank})
	assert.ErrorIs(t, err, ErrIncompleteAnswers)

	dup := append(fullAnswers(), model.Answer{QuestionIndex: 0, Text: "again"})
	_, err = svc.Submit(ctx, SubmitInput{TestID: f.testID, StudentID: f.studentID, Answers: dup})
	assert.ErrorIs(t, err, ErrInvalidAnswers)

	outOfRange := append(fullAnswers(), model.Answer{QuestionIndex: 2, Text: "extra"})
	_, err = svc.Submit(ctx, SubmitInput{TestID: f.testID, StudentID: f.studentID, Answers: outOfRange})
	assert.ErrorIs(t, err, ErrInvalidAnswers)

	stored, err := f.tests.GetTest(ctx, f.testID)
	require.NoError(t, err)
	assert.Empty(t, stored.Submissions, "rejected attempts leave no trace")
}

func TestSubmit_SecondAttemptRejected(t *testing.T) {
	f := newFixture(t)
	svc := newSubmissionService(f, nil)
	ctx := context.Background()

	_, err := svc.Submit(ctx, SubmitInput{TestID: f.testID, StudentID: f.studentID, Answers: fullAnswers()})
	require.NoError(t, err)

	_, err = svc.Submit(ctx, SubmitInput{TestID: f.testID, StudentID: f.studentID, Answers: fullAnswers()})
	assert.ErrorIs(t, err, ErrAlreadySubmitted)

	_, err = svc.Submit(ctx, SubmitInput{TestID: f.testID, StudentID: f.studentID, Force: true})
	assert.ErrorIs(t, err, ErrAlreadySubmitted)
}

func TestSubmit_ConcurrentAttemptsCommitOnce(t *testing.T) {
	f := newFixture(t)
	svc := newSubmissionService(f, nil)

	const attempts = 16
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
		dupes    int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(force bool) {
			defer wg.Done()
			_, err := svc.Submit(context.Background(), SubmitInput{
				TestID:    f.testID,
				StudentID: f.studentID,
				Answers:   fullAnswers(),
				Force:     force,
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				accepted++
			case errors.Is(err, ErrAlreadySubmitted):
				dupes++
			}
		}(i%2 == 0)
	}
	wg.Wait()

	assert.Equal(t, 1, accepted)
	assert.Equal(t, attempts-1, dupes)

	stored, err := f.tests.GetTest(context.Background(), f.testID)
	require.NoError(t, err)
	assert.Len(t, stored.Submissions, 1)
}

func TestSubmit_ForcedFillsPlaceholder(t *testing.T) {
	f := newFixture(t)
	svc := NewSubmissionService(f.tests, analyzer.NewSimilarity(analyzer.ReferenceCorpus), "[auto]", zerolog.Nop())

	sub, err := svc.Submit(context.Background(), SubmitInput{
		TestID:    f.testID,
		StudentID: f.studentID,
		Answers:   []model.Answer{{QuestionIndex: 1, Text: "Nucleus"}},
		Force:     true,
	})
	require.NoError(t, err)
	assert.True(t, sub.Forced)
	assert.Equal(t, []model.Answer{
		{QuestionIndex: 0, Text: "[auto]"},
		{QuestionIndex: 1, Text: "Nucleus"},
	}, sub.Answers)
}

func TestSubmit_ForcedWithNoAnswers(t *testing.T) {
	f := newFixture(t)
	svc := newSubmissionService(f, nil)

	sub, err := svc.Submit(context.Background(), SubmitInput{TestID: f.testID, StudentID: f.studentID, Force: true})
	require.NoError(t, err)
	require.Len(t, sub.Answers, 2)
	for _, a := range sub.Answers {
		assert.Equal(t, DefaultForcedAnswerPlaceholder, a.Text)
	}
}

func TestSubmit_FlagsFromAnalyzer(t *testing.T) {
	tests := []struct {
		name       string
		verdict    analyzer.Verdict
		plagiarism bool
		ai         *bool
	}{
		{
			name:    "similarity strategy leaves ai flag unset",
			verdict: analyzer.Verdict{Source: analyzer.SourceSimilarity},
		},
		{
			name:       "plagiarism only",
			verdict:    analyzer.Verdict{Plagiarized: true, Source: analyzer.SourceSimilarity},
			plagiarism: true,
		},
		{
			name:    "classifier evaluated clean",
			verdict: analyzer.Verdict{AIEvaluated: true, Source: analyzer.SourceStructured},
			ai:      boolPtr(false),
		},
		{
			name:       "classifier flags both",
			verdict:    analyzer.Verdict{Plagiarized: true, AIGenerated: true, AIEvaluated: true, Source: analyzer.SourceFallback},
			plagiarism: true,
			ai:         boolPtr(true),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			svc := newSubmissionService(f, stubStrategy{verdict: tt.verdict})

			sub, err := svc.Submit(context.Background(), SubmitInput{TestID: f.testID, StudentID: f.studentID, Answers: fullAnswers()})
			require.NoError(t, err)
			assert.Equal(t, tt.plagiarism, sub.PlagiarismFlag)
			assert.Equal(t, tt.ai, sub.AIGeneratedFlag)
		})
	}
}

func TestSubmit_CopiedCorpusTextIsFlagged(t *testing.T) {
	f := newFixture(t)
	svc := newSubmissionService(f, nil)

	answers := fullAnswers()
	answers[0].Text = analyzer.ReferenceCorpus[0]

	sub, err := svc.Submit(context.Background(), SubmitInput{TestID: f.testID, StudentID: f.studentID, Answers: answers})
	require.NoError(t, err)
	assert.True(t, sub.PlagiarismFlag)
}

func boolPtr(b bool) *bool { return &b }
