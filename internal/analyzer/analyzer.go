// Package analyzer scores free-text answers for plagiarism and AI generation.
//
// A Strategy never returns an error: when an external dependency fails the
// verdict defaults to "not flagged" so that a classifier outage cannot block
// a submission.
package analyzer

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/config"
)

// Strategy names accepted by ANALYZER_STRATEGY.
const (
	StrategySimilarity = "similarity"
	StrategyClassifier = "classifier"
	StrategyCombined   = "combined"
)

// Source records how a verdict was produced.
type Source string

const (
	SourceSimilarity Source = "similarity"
	SourceStructured Source = "structured"
	SourceFallback   Source = "fallback"
	SourceFailed     Source = "failed"
)

// Verdict is the originality result for one answer.
// AIEvaluated is false when the strategy has no notion of AI generation;
// AIGenerated is meaningless in that case.
type Verdict struct {
	Plagiarized bool    `json:"plagiarized"`
	AIGenerated bool    `json:"ai_generated"`
	AIEvaluated bool    `json:"ai_evaluated"`
	Similarity  float64 `json:"similarity"`
	Source      Source  `json:"source"`
	Cached      bool    `json:"-"`
}

// Strategy analyses a single answer. Implementations must be safe for concurrent use.
type Strategy interface {
	Name() string
	Analyze(ctx context.Context, text string) Verdict
}

// New builds the strategy selected by cfg. When rdb is non-nil and a cache TTL is
// configured, verdicts are cached in Redis.
func New(cfg config.AnalyzerConfig, rdb *redis.Client, log zerolog.Logger) (Strategy, error) {
	log = log.With().Str("component", "analyzer").Logger()

	var s Strategy
	switch cfg.Strategy {
	case StrategySimilarity, "":
		s = NewSimilarity(ReferenceCorpus)
	case StrategyClassifier:
		c, err := newClassifierFromConfig(cfg, log)
		if err != nil {
			return nil, err
		}
		s = c
	case StrategyCombined:
		c, err := newClassifierFromConfig(cfg, log)
		if err != nil {
			return nil, err
		}
		s = NewCombined(NewSimilarity(ReferenceCorpus), c)
	default:
		return nil, fmt.Errorf("unknown analyzer strategy %q", cfg.Strategy)
	}

	if rdb != nil && cfg.CacheTTL > 0 {
		s = NewCached(s, rdb, cfg.CacheTTL, log)
	}

	log.Info().Str("strategy", s.Name()).Dur("cache_ttl", cfg.CacheTTL).Msg("Content analyzer ready")
	return s, nil
}

func newClassifierFromConfig(cfg config.AnalyzerConfig, log zerolog.Logger) (*Classifier, error) {
	if cfg.ClassifierURL == "" {
		return nil, fmt.Errorf("analyzer strategy %q requires CLASSIFIER_URL", cfg.Strategy)
	}
	if cfg.ClassifierAPIKey == "" {
		log.Warn().Msg("CLASSIFIER_API_KEY is empty, classifier calls are sent without authorization")
	}
	return NewClassifier(ClassifierOptions{
		BaseURL: cfg.ClassifierURL,
		APIKey:  cfg.ClassifierAPIKey,
		Model:   cfg.ClassifierModel,
		Timeout: cfg.ClassifierTimeout,
	}, log), nil
}
