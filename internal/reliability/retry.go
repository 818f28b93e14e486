// Package reliability holds the retry policy shared by outbound request paths.
package reliability

import (
	"context"
	"errors"
	"time"
)

// IsRetryableHTTPStatus reports whether a response status is worth retrying.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// ExponentialBackoff doubles base per attempt, capped at ceiling.
func ExponentialBackoff(attempt int, base, ceiling time.Duration) time.Duration {
	d := base
	for i := 0; i < attempt && d < ceiling; i++ {
		d *= 2
	}
	if d > ceiling {
		return ceiling
	}
	return d
}

// Policy bounds a retry loop.
type Policy struct {
	Attempts int
	Base     time.Duration
	Max      time.Duration
}

// Permanent marks an error that must not be retried.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err}
}

type permanentError struct{ err error }

func (p permanentError) Error() string { return p.err.Error() }
func (p permanentError) Unwrap() error { return p.err }

// Do calls fn until it succeeds, returns a Permanent error, the attempts run out or ctx
// is done. The last error is returned unwrapped from Permanent.
func (p Policy) Do(ctx context.Context, fn func(attempt int) error) error {
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if err = fn(attempt); err == nil {
			return nil
		}
		var perm permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		if attempt == attempts-1 {
			break
		}
		timer := time.NewTimer(ExponentialBackoff(attempt, p.Base, p.Max))
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(err, ctx.Err())
		case <-timer.C:
		}
	}
	return err
}
