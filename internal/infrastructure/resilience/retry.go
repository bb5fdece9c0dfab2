package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrRetriesExhausted wraps the last failure after maxAttempts tries.
// Callers must treat it as terminal and surface it rather than loop further.
var ErrRetriesExhausted = errors.New("retries exhausted")

// retryable is the marker carried by errors safe to retry. The numbering
// domain's TransientError implements it.
type retryable interface {
	Retryable() bool
}

// IsRetryable reports whether err is classified as safe to retry. Circuit
// open and context cancellation are never retryable; everything else must
// carry the retryable marker explicitly.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrCircuitOpen) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var r retryable
	return errors.As(err, &r) && r.Retryable()
}

// ExecuteWithRetry runs op up to maxAttempts times, sleeping
// baseDelay * 2^i between attempt i and i+1. Only errors classified
// retryable are retried; anything else propagates immediately. The wait is
// cancellable: a context cancellation during backoff returns ctx.Err().
func ExecuteWithRetry[T any](ctx context.Context, op func() (T, error), maxAttempts int, baseDelay time.Duration, clock Clock) (T, error) {
	var zero T
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if clock == nil {
		clock = SystemClock()
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(baseDelay, attempt-1)
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-clock.After(delay):
			}
		}

		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := op()
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !IsRetryable(err) {
			return zero, err
		}
	}

	return zero, fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, maxAttempts, lastErr)
}

// backoffDelay computes baseDelay * 2^exp with overflow protection
func backoffDelay(baseDelay time.Duration, exp int) time.Duration {
	if exp > 30 {
		exp = 30
	}
	return baseDelay * time.Duration(1<<uint(exp))
}
