// Package retry bounds durable-store calls with a per-attempt timeout and retries transient
// failures with exponential backoff. Domain errors (apperr kinds) are returned as-is.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"

	"kiosk-engine/internal/apperr"
)

// Policy configures storage calls.
type Policy struct {
	// Timeout bounds a single attempt. Zero means no per-attempt deadline.
	Timeout time.Duration
	// MaxAttempts is the number of attempts for idempotent calls (>= 1).
	MaxAttempts uint
	// InitialInterval is the first backoff delay.
	InitialInterval time.Duration
	// MaxInterval caps the backoff delay.
	MaxInterval time.Duration
}

// DefaultPolicy returns the policy used when config does not override it.
func DefaultPolicy() Policy {
	return Policy{
		Timeout:         3 * time.Second,
		MaxAttempts:     4,
		InitialInterval: 50 * time.Millisecond,
		MaxInterval:     time.Second,
	}
}

// Do runs op with retries. Use only for idempotent operations (reads, monotonic writes,
// writes carrying an idempotency key).
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	attempts := p.MaxAttempts
	if attempts == 0 {
		attempts = 1
	}
	res, err := backoff.Retry[T](ctx, func() (T, error) {
		v, err := attempt(ctx, p.Timeout, op)
		if err != nil && (apperr.IsDomain(err) || ctx.Err() != nil) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(attempts))
	return res, classify(err)
}

// Once runs op a single time under the per-attempt timeout. Use for non-idempotent writes.
func Once[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	v, err := attempt(ctx, p.Timeout, op)
	return v, classify(err)
}

// Exec is Do for operations without a result.
func Exec(ctx context.Context, p Policy, op func(ctx context.Context) error) error {
	_, err := Do(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// ExecOnce is Once for operations without a result.
func ExecOnce(ctx context.Context, p Policy, op func(ctx context.Context) error) error {
	_, err := Once(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

func attempt[T any](ctx context.Context, timeout time.Duration, op func(ctx context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return op(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return op(attemptCtx)
}

// classify leaves domain errors and caller cancellation untouched and reports
// everything else as ErrStorageUnavailable.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		err = perm.Unwrap()
	}
	if apperr.IsDomain(err) || errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %v", apperr.ErrStorageUnavailable, err)
}
