package chain

import (
	"context"
	"errors"
	"time"
)

// RetryPolicy bounds an exponential backoff.
type RetryPolicy struct {
	Retries    int
	MinBackoff time.Duration
	MaxBackoff time.Duration
}

// DefaultRetryPolicy is 2 retries between 100ms and 1s.
var DefaultRetryPolicy = RetryPolicy{
	Retries:    2,
	MinBackoff: 100 * time.Millisecond,
	MaxBackoff: time.Second,
}

type permanentError struct {
	err error
}

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// Retry runs fn until it succeeds, the retries are spent, fn returns a
// Permanent error, or ctx is done. onRetry may be nil.
func Retry(ctx context.Context, policy RetryPolicy, fn func(context.Context) error, onRetry func(attempt int, err error)) error {
	maxRetries := policy.Retries
	if maxRetries < 0 {
		maxRetries = 0
	}
	delay := policy.MinBackoff
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}

	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		var perm permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		if attempt >= maxRetries {
			return err
		}
		if onRetry != nil {
			onRetry(attempt+1, err)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
		if policy.MaxBackoff > 0 && delay > policy.MaxBackoff {
			delay = policy.MaxBackoff
		}
	}
}
