package analyzer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/config"
)

// Cached stores verdicts in Redis keyed by strategy name and answer digest.
// Redis errors fall through to the wrapped strategy. Failed verdicts are not stored.
type Cached struct {
	inner Strategy
	rdb   *redis.Client
	ttl   time.Duration
	log   zerolog.Logger
}

// NewCached wraps inner with a Redis verdict cache.
func NewCached(inner Strategy, rdb *redis.Client, ttl time.Duration, log zerolog.Logger) *Cached {
	return &Cached{inner: inner, rdb: rdb, ttl: ttl, log: log}
}

func (c *Cached) Name() string { return c.inner.Name() }

func (c *Cached) Analyze(ctx context.Context, text string) Verdict {
	sum := sha256.Sum256([]byte(text))
	key := config.CacheKey.AnalyzerVerdictKey(c.inner.Name(), hex.EncodeToString(sum[:]))

	raw, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var v Verdict
		if jsonErr := json.Unmarshal(raw, &v); jsonErr == nil {
			v.Cached = true
			return v
		}
		c.log.Warn().Str("key", key).Msg("Discarding undecodable cached verdict")
	case !errors.Is(err, redis.Nil):
		c.log.Warn().Err(err).Msg("Verdict cache read failed")
	}

	v := c.inner.Analyze(ctx, text)
	if v.Source == SourceFailed {
		return v
	}

	data, err := json.Marshal(v)
	if err != nil {
		return v
	}
	if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.log.Warn().Err(err).Msg("Verdict cache write failed")
	}
	return v
}
