// Package retry wraps sethvargo/go-retry with the inverse marking convention:
// every error is retried unless explicitly marked Permanent. Gateway calls are
// the main consumer, where transient network failures are the common case.
package retry

import (
	"context"
	"errors"
	"time"

	sretry "github.com/sethvargo/go-retry"
)

// PermanentError wraps an error that should not be retried.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so that Do will not retry it.
func Permanent(err error) error {
	return &PermanentError{Err: err}
}

// Do calls fn up to maxAttempts times with exponential backoff starting at
// baseDelay, with 25% jitter. It stops early when fn succeeds, fn returns a
// *PermanentError, or ctx is cancelled. The permanent wrapper is stripped
// from the returned error.
func Do(ctx context.Context, maxAttempts int, baseDelay time.Duration, fn func() error) error {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	backoff := sretry.WithJitterPercent(25, sretry.NewExponential(baseDelay))
	backoff = sretry.WithMaxRetries(uint64(maxAttempts-1), backoff)

	return sretry.Do(ctx, backoff, func(context.Context) error {
		err := fn()
		if err == nil {
			return nil
		}
		var pe *PermanentError
		if errors.As(err, &pe) {
			return pe.Err
		}
		return sretry.RetryableError(err)
	})
}
