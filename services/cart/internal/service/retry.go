package service

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryPolicy bounds the retries of one saga step. MaxAttempts counts calls,
// so 3 means one call plus two retries.
type RetryPolicy struct {
	MaxAttempts int
	Initial     time.Duration
	Max         time.Duration
	Multiplier  float64
	Jitter      float64
}

// DefaultRetryPolicy returns the policy used when nothing is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 4,
		Initial:     200 * time.Millisecond,
		Max:         2 * time.Second,
		Multiplier:  2,
		Jitter:      0.2,
	}
}

// stepRetry tracks retries of a single step within one drive of an attempt.
type stepRetry struct {
	policy RetryPolicy
	curve  *backoff.ExponentialBackOff
	calls  int
}

func (p RetryPolicy) start() *stepRetry {
	curve := backoff.NewExponentialBackOff()
	curve.InitialInterval = p.Initial
	curve.MaxInterval = p.Max
	curve.Multiplier = p.Multiplier
	curve.RandomizationFactor = p.Jitter
	curve.Reset()
	return &stepRetry{policy: p, curve: curve}
}

// record counts a call and reports whether another one is allowed.
func (r *stepRetry) record() bool {
	r.calls++
	return r.calls < r.policy.MaxAttempts
}

// next returns the delay before the following call.
func (r *stepRetry) next() time.Duration {
	d := r.curve.NextBackOff()
	if d < 0 {
		return r.policy.Max
	}
	return d
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
