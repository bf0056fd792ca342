// Package retry provides a bounded, fixed-backoff retry helper whose timers
// come from an injectable clock.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jonboulle/clockwork"
)

// ErrNotSatisfied is returned by Until when every attempt reported false.
var ErrNotSatisfied = errors.New("retry: condition not satisfied")

// Policy bounds how often and how fast an operation is retried.
type Policy struct {
	// MaxAttempts counts the first attempt. Values below 1 mean one attempt.
	MaxAttempts int
	// Backoff is the fixed wait between attempts.
	Backoff time.Duration
	// Clock drives the backoff timer. Nil means the real clock.
	Clock clockwork.Clock
}

// Result describes how a policy run finished.
type Result struct {
	Attempts int
	Err      error
}

// OK reports whether the operation eventually succeeded.
func (r Result) OK() bool {
	return r.Err == nil
}

// Do runs op until it succeeds, attempts run out, or ctx is done.
// Errors wrapped with Permanent stop the loop immediately.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) Result {
	attempts := 0
	operation := func() error {
		attempts++
		return op(ctx)
	}
	b := backoff.WithContext(p.backOff(), ctx)
	err := backoff.RetryNotifyWithTimer(operation, b, nil, newClockTimer(p.clock()))
	return Result{Attempts: attempts, Err: err}
}

// Until retries a boolean condition. It never fails for reasons other than
// the condition staying false or ctx ending.
func (p Policy) Until(ctx context.Context, cond func() bool) Result {
	return p.Do(ctx, func(context.Context) error {
		if cond() {
			return nil
		}
		return ErrNotSatisfied
	})
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

func (p Policy) backOff() backoff.BackOff {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return backoff.WithMaxRetries(backoff.NewConstantBackOff(p.Backoff), uint64(attempts-1))
}

func (p Policy) clock() clockwork.Clock {
	if p.Clock == nil {
		return clockwork.NewRealClock()
	}
	return p.Clock
}
