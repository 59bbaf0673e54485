package retry

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrRetry tells Blocking to call the function again.
	ErrRetry = errors.New("retry")

	// ErrExhausted is returned by a Backoff made with Limit, when no more retries are allowed.
	ErrExhausted = errors.New("retry exhausted")
)

// Backoff is a (blocking) function returns when to retry.
//
// # Args
//
// - context: context. If context is canceled, Backoff should return ctx.Err().
//
// # Returns
//
// - error: nil if retry, non-nil if not.
type Backoff func(context.Context) error

// StaticBackoff returns a Backoff function that waits for a fixed interval.
var StaticBackoff = func(interval time.Duration) Backoff {
	return ExponentialBackoff(interval, 1)
}

// ExponentialBackoff returns a Backoff function that waits with exponential backoff.
//
// # Args
//
// - initialInterval: initial interval.
//
// - r: multiplier of interval.
//
// # Returns
//
// Backoff function.
// For N-th call, it waits for `initialInterval * r^N` or context to be done.
var ExponentialBackoff = func(initialInterval time.Duration, r float64) Backoff {
	interval := initialInterval
	return func(ctx context.Context) error {
		timer := time.NewTimer(interval)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			i := float64(interval) * r
			interval = time.Duration(int64(i))
			return nil
		}
	}
}

// Immediately returns a Backoff which passes the first call without waiting,
// and delegates later calls to b.
func Immediately(b Backoff) Backoff {
	first := true
	return func(ctx context.Context) error {
		if first {
			first = false
			return ctx.Err()
		}
		return b(ctx)
	}
}

// Limit returns a Backoff which allows at most `times` calls.
//
// Calls after that return ErrExhausted without waiting.
func Limit(b Backoff, times int) Backoff {
	count := 0
	return func(ctx context.Context) error {
		if times <= count {
			return ErrExhausted
		}
		count += 1
		return b(ctx)
	}
}

// Blocking calls f until it returns nil or non-retry error.
//
// # Args
//
// - ctx: context
//
// - b: backoff function. It is called before each call of f.
//
// - f: function to be called. If f returns ErrRetry, Blocking calls f again after backoff.
//
// # Returns
//
// - T: last return value of f
//
// - error: error returned by f.
// When b stops retrying, the error from b joined with the last error from f.
func Blocking[T any](ctx context.Context, b Backoff, f func() (T, error)) (T, error) {
	last := *new(T)
	var lastErr error
	for {
		if err := b(ctx); err != nil {
			return last, errors.Join(err, lastErr)
		}

		var err error
		last, err = f()
		if err == nil {
			return last, nil
		}
		if errors.Is(err, ErrRetry) {
			lastErr = err
			continue
		}
		return last, err
	}
}
