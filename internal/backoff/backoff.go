// Package backoff runs fallible calls under a bounded exponential-backoff
// retry loop.
//
// With the default policy (100ms initial wait, multiplier 2, 10 attempts)
// a call that keeps failing sleeps after every attempt, so the worst-case
// cumulative wait before giving up is 100·(2^10−1) ≈ 102,300ms. Callers
// that must bound total latency should size their policy accordingly.
package backoff

import (
	"context"
	"time"
)

// Policy bounds the retry loop.
type Policy struct {
	InitialWait time.Duration
	Multiplier  int
	MaxAttempts int
}

// Default returns the policy used for cache calls.
func Default() Policy {
	return Policy{
		InitialWait: 100 * time.Millisecond,
		Multiplier:  2,
		MaxAttempts: 10,
	}
}

func (p Policy) orDefault() Policy {
	d := Default()
	if p.InitialWait <= 0 {
		p.InitialWait = d.InitialWait
	}
	if p.Multiplier < 2 {
		p.Multiplier = d.Multiplier
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	return p
}

// Runner executes calls under a Policy.
//
// Retryable decides whether a failure is worth another attempt; when nil
// every failure is. OnRetry fires before each sleep with the zero-based
// attempt index and the causing error. Sleep exists so tests can observe
// waits instead of serving them; nil means a context-aware real sleep.
type Runner struct {
	Policy    Policy
	Retryable func(error) bool
	OnRetry   func(attempt int, wait time.Duration, err error)
	Sleep     func(context.Context, time.Duration) error
}

// Do invokes fn until it succeeds, fails terminally, or the attempt
// budget runs out. The last observed error is returned unwrapped so the
// root cause stays visible to the caller.
func (r Runner) Do(ctx context.Context, fn func() error) error {
	p := r.Policy.orDefault()
	sleep := r.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	wait := p.InitialWait
	var last error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if r.Retryable != nil && !r.Retryable(err) {
			return err
		}
		last = err
		if r.OnRetry != nil {
			r.OnRetry(attempt, wait, err)
		}
		if err := sleep(ctx, wait); err != nil {
			return last
		}
		wait *= time.Duration(p.Multiplier)
	}
	return last
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
