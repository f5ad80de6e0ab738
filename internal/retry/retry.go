// Package retry holds the single backoff policy used for calls that may be
// rate limited by a remote service.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	// DefaultMaxRetries is the number of retries after the first attempt.
	DefaultMaxRetries = 3

	// DefaultBaseDelay is the wait before the first retry; it doubles each time.
	DefaultBaseDelay = 2 * time.Second
)

// Policy retries an operation with exponential backoff. A Policy with
// MaxRetries == 0 makes exactly one attempt.
type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration

	// Sleep waits for d or until ctx is done. Nil uses a timer.
	Sleep func(ctx context.Context, d time.Duration) error

	// OnRetry is called before each wait.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// Default returns 3 retries starting at 2s: waits of 2s, 4s and 8s.
func Default() Policy {
	return Policy{MaxRetries: DefaultMaxRetries, BaseDelay: DefaultBaseDelay}
}

// Delay returns the wait before retry number i (0-based).
func (p Policy) Delay(i int) time.Duration {
	return p.BaseDelay << uint(i)
}

// ExhaustedError is returned when every attempt failed with a retryable error.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retry: gave up after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// IsExhausted reports whether err came from running out of retries.
func IsExhausted(err error) bool {
	var ex *ExhaustedError
	return errors.As(err, &ex)
}

// Do calls fn until it succeeds, returns an error retryable rejects, or the
// retries run out. attempt starts at 1. Errors retryable rejects are returned
// as-is; running out of retries returns *ExhaustedError.
func (p Policy) Do(ctx context.Context, retryable func(error) bool, fn func(ctx context.Context, attempt int) error) error {
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	var err error
	for i := 0; ; i++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		err = fn(ctx, i+1)
		if err == nil {
			return nil
		}
		if retryable == nil || !retryable(err) {
			return err
		}
		if i >= p.MaxRetries {
			return &ExhaustedError{Attempts: i + 1, Err: err}
		}

		d := p.Delay(i)
		if p.OnRetry != nil {
			p.OnRetry(i+1, d, err)
		}
		if sleepErr := sleep(ctx, d); sleepErr != nil {
			return sleepErr
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
