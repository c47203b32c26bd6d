package proctor

import (
	"context"
	"sync"
	"time"
)

// RepeatingTask runs a function now and then again interval after each run
// completes, until cancelled. A cycle always finishes, or is abandoned through
// its context, before the next one is scheduled.
type RepeatingTask struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Repeat starts fn on its own goroutine bound to ctx.
func Repeat(ctx context.Context, interval time.Duration, fn func(ctx context.Context)) *RepeatingTask {
	ctx, cancel := context.WithCancel(ctx)
	t := &RepeatingTask{cancel: cancel, done: make(chan struct{})}
	go t.loop(ctx, interval, fn)
	return t
}

func (t *RepeatingTask) loop(ctx context.Context, interval time.Duration, fn func(ctx context.Context)) {
	defer close(t.done)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		fn(ctx)

		if ctx.Err() != nil {
			return
		}
		timer.Reset(interval)
	}
}

// Cancel stops scheduling further cycles without waiting. Safe to call from fn.
func (t *RepeatingTask) Cancel() {
	t.once.Do(t.cancel)
}

// Stop cancels and waits for the running cycle to return. Must not be called from fn.
func (t *RepeatingTask) Stop() {
	t.Cancel()
	<-t.done
}

// Done is closed once the loop has exited.
func (t *RepeatingTask) Done() <-chan struct{} {
	return t.done
}
