package guard

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// DefaultWarmup lets freshly set cookies land before the first probe.
const DefaultWarmup = 50 * time.Millisecond

// Warmup delays the first probe of a process. Every probe that starts
// before the delay has elapsed waits for the same deadline; later probes
// pass straight through.
type Warmup struct {
	delay time.Duration
	clock clockwork.Clock
	once  sync.Once
	done  chan struct{}
}

// NewWarmup returns a Warmup of delay measured on clock (nil = real clock).
func NewWarmup(delay time.Duration, clock clockwork.Clock) *Warmup {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Warmup{delay: delay, clock: clock, done: make(chan struct{})}
}

// Wait blocks until the warm-up has elapsed or ctx is done.
func (w *Warmup) Wait(ctx context.Context) error {
	if w == nil {
		return nil
	}
	w.once.Do(func() {
		if w.delay <= 0 {
			close(w.done)
			return
		}
		w.clock.AfterFunc(w.delay, func() { close(w.done) })
	})
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
