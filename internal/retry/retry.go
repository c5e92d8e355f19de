// Package retry runs an operation under a fixed attempt budget with an
// exponential delay between attempts.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy describes one retry schedule.
//
// Attempt n (1-based) is preceded by Delay(n): nothing for the first
// attempt, then Unit × 2^n. With Unit = 2s that is 8s, 16s, 32s, 64s.
// Grace is waited once before the first attempt.
type Policy struct {
	MaxAttempts int
	Grace       time.Duration
	Unit        time.Duration
}

func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 5, Grace: 5 * time.Second, Unit: 2 * time.Second}
}

// Delay returns the wait before the given attempt.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 2 {
		return 0
	}
	return p.Unit * time.Duration(int64(1)<<attempt)
}

// Worst returns the longest total time the policy can spend waiting.
func (p Policy) Worst() time.Duration {
	total := p.Grace
	for n := 2; n <= p.MaxAttempts; n++ {
		total += p.Delay(n)
	}
	return total
}

func (p Policy) Validate() error {
	if p.MaxAttempts <= 0 {
		return errors.New("retry: max attempts must be > 0")
	}
	if p.Grace < 0 || p.Unit < 0 {
		return errors.New("retry: durations must be >= 0")
	}
	return nil
}

// policyBackOff adapts a Policy to backoff.BackOff.
type policyBackOff struct {
	p       Policy
	attempt int // attempts already made
}

func (b *policyBackOff) NextBackOff() time.Duration {
	b.attempt++
	next := b.attempt + 1
	if next > b.p.MaxAttempts {
		return backoff.Stop
	}
	return b.p.Delay(next)
}

func (b *policyBackOff) Reset() { b.attempt = 0 }

// Operation is one attempt; attempt starts at 1.
type Operation func(ctx context.Context, attempt int) error

// Options are optional hooks for Do.
type Options struct {
	// Timer drives every wait. Nil uses a real timer.
	Timer backoff.Timer
	// OnRetry runs after a failed attempt that will be retried.
	OnRetry func(attempt int, err error, next time.Duration)
}

// Permanent marks err as not worth retrying; Do returns it immediately.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Do waits p.Grace, then calls op until it succeeds, returns a Permanent
// error, the budget is spent or ctx is done. It returns the number of
// attempts made and the last error.
func Do(ctx context.Context, p Policy, op Operation, opts Options) (int, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}
	timer := opts.Timer
	if timer == nil {
		timer = &realTimer{}
	}

	if err := wait(ctx, timer, p.Grace); err != nil {
		return 0, err
	}

	attempts := 0
	operation := func() error {
		attempts++
		return op(ctx, attempts)
	}
	notify := func(err error, next time.Duration) {
		if opts.OnRetry != nil {
			opts.OnRetry(attempts, err, next)
		}
	}

	b := backoff.WithContext(&policyBackOff{p: p}, ctx)
	err := backoff.RetryNotifyWithTimer(operation, b, notify, timer)
	return attempts, err
}

func wait(ctx context.Context, t backoff.Timer, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t.Start(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C():
		return nil
	}
}

// realTimer mirrors backoff's unexported default timer.
type realTimer struct {
	timer *time.Timer
}

func (t *realTimer) C() <-chan time.Time { return t.timer.C }

func (t *realTimer) Start(d time.Duration) {
	if t.timer == nil {
		t.timer = time.NewTimer(d)
		return
	}
	t.timer.Reset(d)
}

func (t *realTimer) Stop() {
	if t.timer != nil {
		t.timer.Stop()
	}
}
