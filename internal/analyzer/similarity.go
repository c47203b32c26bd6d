package analyzer

import (
	"context"
	"strings"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
)

// ReferenceCorpus is the fixed set of known snippets answers are compared against.
var ReferenceCorpus = []string{
	"Lorem ipsum dolor sit amet",
	"The quick brown fox jumps over the lazy dog",
	"To be or not to be, that is the question",
}

// PlagiarismThreshold is the similarity above which an answer is flagged.
const PlagiarismThreshold = 0.6

// Similarity flags answers whose Sørensen–Dice bigram similarity to any
// reference snippet exceeds PlagiarismThreshold. It does not evaluate AI generation.
type Similarity struct {
	corpus []string
	metric *metrics.SorensenDice
}

// NewSimilarity creates a similarity strategy over the given corpus.
func NewSimilarity(corpus []string) *Similarity {
	metric := metrics.NewSorensenDice()
	metric.CaseSensitive = false
	metric.NgramSize = 2

	normalized := make([]string, len(corpus))
	for i, ref := range corpus {
		normalized[i] = normalize(ref)
	}
	return &Similarity{corpus: normalized, metric: metric}
}

func (s *Similarity) Name() string { return StrategySimilarity }

func (s *Similarity) Analyze(_ context.Context, text string) Verdict {
	score := s.Score(text)
	return Verdict{
		Plagiarized: score > PlagiarismThreshold,
		Similarity:  score,
		Source:      SourceSimilarity,
	}
}

// Score returns the maximum similarity of text across the corpus, in [0, 1].
func (s *Similarity) Score(text string) float64 {
	text = normalize(text)
	if len([]rune(text)) < 2 {
		return 0
	}

	best := 0.0
	for _, ref := range s.corpus {
		if sim := strutil.Similarity(text, ref, s.metric); sim > best {
			best = sim
		}
	}
	return best
}

// normalize case-folds and drops whitespace so bigrams only span letters and punctuation.
func normalize(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), "")
}
