package proctor

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepeat_FirstCycleDoesNotWaitForInterval(t *testing.T) {
	ran := make(chan struct{}, 1)
	task := Repeat(context.Background(), time.Hour, func(context.Context) {
		select {
		case ran <- struct{}{}:
		default:
		}
	})
	defer task.Stop()

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("first cycle did not run immediately")
	}
}

func TestRepeat_Repeats(t *testing.T) {
	var runs atomic.Int32
	task := Repeat(context.Background(), 5*time.Millisecond, func(context.Context) { runs.Add(1) })
	defer task.Stop()

	require.Eventually(t, func() bool { return runs.Load() >= 3 }, time.Second, 5*time.Millisecond)
}

func TestRepeat_CyclesNeverOverlap(t *testing.T) {
	var inFlight, overlaps, runs atomic.Int32

	task := Repeat(context.Background(), time.Millisecond, func(context.Context) {
		if inFlight.Add(1) > 1 {
			overlaps.Add(1)
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		runs.Add(1)
	})

	require.Eventually(t, func() bool { return runs.Load() >= 4 }, time.Second, time.Millisecond)
	task.Stop()
	assert.Zero(t, overlaps.Load())
}

func TestRepeat_StopWaitsAndIsIdempotent(t *testing.T) {
	var runs atomic.Int32
	task := Repeat(context.Background(), time.Millisecond, func(context.Context) { runs.Add(1) })

	require.Eventually(t, func() bool { return runs.Load() >= 2 }, time.Second, time.Millisecond)
	task.Stop()
	task.Stop()
	task.Cancel()

	after := runs.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, runs.Load())

	select {
	case <-task.Done():
	default:
		t.Fatal("Done must be closed after Stop")
	}
}

func TestRepeat_CancelFromInsideCycle(t *testing.T) {
	var runs atomic.Int32
	var task *RepeatingTask
	ready := make(chan struct{})

	task = Repeat(context.Background(), time.Millisecond, func(context.Context) {
		<-ready
		runs.Add(1)
		task.Cancel()
	})
	close(ready)

	select {
	case <-task.Done():
	case <-time.After(time.Second):
		t.Fatal("loop did not exit after Cancel")
	}
	assert.Equal(t, int32(1), runs.Load())
}

func TestRepeat_ParentContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	task := Repeat(ctx, time.Millisecond, func(context.Context) {})
	cancel()

	select {
	case <-task.Done():
	case <-time.After(time.Second):
		t.Fatal("loop did not exit after parent cancellation")
	}
}
