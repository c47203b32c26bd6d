package analyzer

import "context"

// Combined runs the similarity check and the classifier and flags an answer
// when either of them does.
type Combined struct {
	similarity *Similarity
	classifier Strategy
}

// NewCombined creates a strategy that ORs the similarity and classifier verdicts.
func NewCombined(similarity *Similarity, classifier Strategy) *Combined {
	return &Combined{similarity: similarity, classifier: classifier}
}

func (c *Combined) Name() string { return StrategyCombined }

func (c *Combined) Analyze(ctx context.Context, text string) Verdict {
	sim := c.similarity.Analyze(ctx, text)
	cls := c.classifier.Analyze(ctx, text)

	return Verdict{
		Plagiarized: sim.Plagiarized || cls.Plagiarized,
		AIGenerated: cls.AIGenerated,
		AIEvaluated: true,
		Similarity:  sim.Similarity,
		Source:      cls.Source,
	}
}
