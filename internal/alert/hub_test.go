package alert

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_RoutesOnlyToOwnSession(t *testing.T) {
	h := NewHub(4)
	a, cancelA := h.Subscribe("session-a")
	defer cancelA()
	b, cancelB := h.Subscribe("session-b")
	defer cancelB()

	n := h.Dispatch(Alert{SessionID: "session-a", Type: "warning", Message: "No face detected"})
	assert.Equal(t, 1, n)

	select {
	case got := <-a:
		assert.Equal(t, "No face detected", got.Message)
	default:
		t.Fatal("session-a subscriber did not receive its alert")
	}

	select {
	case got := <-b:
		t.Fatalf("session-b received an alert of another session: %+v", got)
	default:
	}
}

func TestHub_FanOutWithinSession(t *testing.T) {
	h := NewHub(1)
	first, cancel1 := h.Subscribe("s")
	defer cancel1()
	second, cancel2 := h.Subscribe("s")
	defer cancel2()

	assert.Equal(t, 2, h.Dispatch(Alert{SessionID: "s"}))
	assert.Len(t, first, 1)
	assert.Len(t, second, 1)

	// full buffers drop instead of blocking
	assert.Equal(t, 0, h.Dispatch(Alert{SessionID: "s"}))
}

func TestHub_CancelClosesAndUnregisters(t *testing.T) {
	h := NewHub(1)
	ch, cancel := h.Subscribe("s")
	assert.Equal(t, 1, h.Subscribers("s"))

	cancel()
	cancel()

	_, open := <-ch
	assert.False(t, open)
	assert.Zero(t, h.Subscribers("s"))
	assert.Zero(t, h.Dispatch(Alert{SessionID: "s"}))
}

func TestRelay_DeliversPublishedAlertsBySession(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	hub := NewHub(4)
	relay := NewRelay(rdb, hub, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errc := make(chan error, 1)
	go func() { errc <- relay.Run(ctx) }()

	select {
	case <-relay.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not subscribe")
	}

	mine, cancelMine := hub.Subscribe("s-1")
	defer cancelMine()
	other, cancelOther := hub.Subscribe("s-2")
	defer cancelOther()

	pub := NewPublisher(rdb)
	require.NoError(t, pub.Publish(ctx, Alert{SessionID: "s-1", Type: "success", Message: "Face detected", FaceCount: 1}))

	select {
	case got := <-mine:
		assert.Equal(t, "s-1", got.SessionID)
		assert.Equal(t, 1, got.FaceCount)
	case <-time.After(2 * time.Second):
		t.Fatal("alert was not relayed")
	}

	// a payload claiming another session is routed by its channel
	require.NoError(t, rdb.Publish(ctx, config.CacheKey.ProctorAlertChannel("s-1"), `{"session_id":"s-2","message":"spoofed"}`).Err())
	select {
	case got := <-mine:
		assert.Equal(t, "spoofed", got.Message)
		assert.Equal(t, "s-1", got.SessionID)
	case <-time.After(2 * time.Second):
		t.Fatal("alert was not relayed")
	}

	select {
	case got := <-other:
		t.Fatalf("alert leaked to another session: %+v", got)
	case <-time.After(50 * time.Millisecond):
	}

	cancel()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not stop")
	}
}

func TestPublisher_RequiresSession(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	assert.Error(t, NewPublisher(rdb).Publish(context.Background(), Alert{Message: "x"}))
}
