// Package retry runs collaborator calls under a bounded exponential
// backoff policy with a per-attempt timeout.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// ErrTimeout marks an attempt that exceeded the per-call timeout.
var ErrTimeout = errors.New("call timed out")

// Policy bounds retries. MaxAttempts counts the first call.
type Policy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	CallTimeout     time.Duration
	// Retryable decides whether a failed attempt is retried. Timeouts are
	// always retried. Nil retries every error.
	Retryable func(error) bool
}

// DefaultPolicy is three attempts, 1s initial backoff, 60s per call.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     3,
		InitialInterval: time.Second,
		MaxInterval:     15 * time.Second,
		CallTimeout:     60 * time.Second,
	}
}

// Attempt describes a failed attempt that will be retried.
type Attempt struct {
	Number int
	Err    error
	Wait   time.Duration
}

// Do calls fn until it succeeds, fails permanently, exhausts the policy
// or ctx ends. It returns the attempts made. Once ctx is done no further
// attempt starts and ctx's error is returned.
func Do[T any](ctx context.Context, p Policy, onRetry func(Attempt), fn func(context.Context) (T, error)) (T, int, error) {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}

	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}

	attempts := 0
	var lastErr error
	op := func() (T, error) {
		var zero T
		if err := ctx.Err(); err != nil {
			return zero, backoff.Permanent(err)
		}
		attempts++

		callCtx, cancel := ctx, context.CancelFunc(func() {})
		if p.CallTimeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, p.CallTimeout)
		}
		defer cancel()

		v, err := fn(callCtx)
		if err == nil {
			return v, nil
		}
		if ctx.Err() != nil {
			return zero, backoff.Permanent(ctx.Err())
		}
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("%w after %s: %w", ErrTimeout, p.CallTimeout, err)
		}
		lastErr = err
		if !errors.Is(err, ErrTimeout) && p.Retryable != nil && !p.Retryable(err) {
			return zero, backoff.Permanent(err)
		}
		return zero, err
	}

	notify := func(err error, wait time.Duration) {
		if onRetry != nil {
			onRetry(Attempt{Number: attempts, Err: err, Wait: wait})
		}
	}

	v, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(p.MaxAttempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(notify),
	)
	if err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			err = perm.Unwrap()
		}
		// the backoff wait was interrupted; report the last real failure too
		if ctx.Err() != nil && lastErr != nil && !errors.Is(err, lastErr) {
			err = fmt.Errorf("%w (last attempt: %w)", ctx.Err(), lastErr)
		}
		return v, attempts, err
	}
	return v, attempts, nil
}
