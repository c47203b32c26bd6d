package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/config"
)

// Publisher sends alerts to the Redis channel of their session.
type Publisher struct {
	rdb *redis.Client
}

func NewPublisher(rdb *redis.Client) *Publisher {
	return &Publisher{rdb: rdb}
}

func (p *Publisher) Publish(ctx context.Context, a Alert) error {
	if a.SessionID == "" {
		return fmt.Errorf("alert without session id")
	}
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	return p.rdb.Publish(ctx, config.CacheKey.ProctorAlertChannel(a.SessionID), data).Err()
}

// Relay pattern-subscribes to every session alert channel and dispatches into a Hub.
type Relay struct {
	rdb   *redis.Client
	hub   *Hub
	log   zerolog.Logger
	ready chan struct{}
	once  sync.Once
}

func NewRelay(rdb *redis.Client, hub *Hub, log zerolog.Logger) *Relay {
	return &Relay{
		rdb:   rdb,
		hub:   hub,
		log:   log.With().Str("component", "alert_relay").Logger(),
		ready: make(chan struct{}),
	}
}

// Ready is closed once the pattern subscription is confirmed by Redis.
func (r *Relay) Ready() <-chan struct{} {
	return r.ready
}

// Run blocks until ctx is cancelled. go-redis resubscribes on its own after a
// dropped connection, so Run only fails when the first subscription does.
func (r *Relay) Run(ctx context.Context) error {
	pubsub := r.rdb.PSubscribe(ctx, config.CacheKey.ProctorAlertPattern())
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe alerts: %w", err)
	}
	r.once.Do(func() { close(r.ready) })
	r.log.Info().Str("pattern", config.CacheKey.ProctorAlertPattern()).Msg("Alert relay subscribed")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			r.log.Info().Msg("Alert relay stopped")
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.dispatch(msg)
		}
	}
}

func (r *Relay) dispatch(msg *redis.Message) {
	sessionID, ok := config.CacheKey.SessionIDFromAlertChannel(msg.Channel)
	if !ok {
		r.log.Warn().Str("channel", msg.Channel).Msg("Ignoring alert on unexpected channel")
		return
	}

	var a Alert
	if err := json.Unmarshal([]byte(msg.Payload), &a); err != nil {
		r.log.Error().Err(err).Str("session_id", sessionID).Msg("Discarding malformed alert")
		return
	}
	// the channel, not the payload, decides who receives the alert
	a.SessionID = sessionID

	n := r.hub.Dispatch(a)
	r.log.Debug().Str("session_id", sessionID).Int("delivered", n).Msg("Alert dispatched")
}
