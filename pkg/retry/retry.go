// Package retry implements exponential backoff with jitter for calls to
// external services. Errors are retried by default; wrap an error with
// Permanent to stop retrying immediately.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// PermanentError marks an error that must not be retried, such as a 4xx
// response or a malformed request.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so the retrier gives up on it immediately.
// The retrier returns the original err, not the wrapper.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err carries a PermanentError anywhere in
// its chain.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// Retrier runs an operation up to a fixed number of attempts, sleeping
// between attempts with exponentially growing, jittered delays.
type Retrier struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	multiplier  float64
	jitter      float64 // fraction of the delay, 0..1
}

// Option adjusts a Retrier built by New.
type Option func(*Retrier)

func WithMaxAttempts(n int) Option {
	return func(r *Retrier) {
		if n > 0 {
			r.maxAttempts = n
		}
	}
}

func WithBaseDelay(d time.Duration) Option {
	return func(r *Retrier) {
		if d > 0 {
			r.baseDelay = d
		}
	}
}

func WithMaxDelay(d time.Duration) Option {
	return func(r *Retrier) {
		if d > 0 {
			r.maxDelay = d
		}
	}
}

func WithMultiplier(m float64) Option {
	return func(r *Retrier) {
		if m >= 1 {
			r.multiplier = m
		}
	}
}

func WithJitter(j float64) Option {
	return func(r *Retrier) {
		if j >= 0 && j <= 1 {
			r.jitter = j
		}
	}
}

// New builds a Retrier. Without options: 3 attempts, 100ms base delay
// doubling up to 30s, 10% jitter.
func New(opts ...Option) *Retrier {
	r := &Retrier{
		maxAttempts: 3,
		baseDelay:   100 * time.Millisecond,
		maxDelay:    30 * time.Second,
		multiplier:  2,
		jitter:      0.1,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// IdentityAPIRetrier is tuned for the entitlement provider: few attempts
// with generous jitter so a struggling upstream is not hammered.
func IdentityAPIRetrier() *Retrier {
	return New(
		WithMaxAttempts(3),
		WithBaseDelay(500*time.Millisecond),
		WithMaxDelay(10*time.Second),
		WithJitter(0.2),
	)
}

// Do runs op until it succeeds, returns a permanent error, exhausts the
// attempt budget, or ctx is cancelled. Permanent errors are unwrapped
// before being returned.
func (r *Retrier) Do(ctx context.Context, op func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}

		err := op(ctx)
		if err == nil {
			return nil
		}
		if IsPermanent(err) {
			return errors.Unwrap(err)
		}
		lastErr = err

		if attempt >= r.maxAttempts {
			return lastErr
		}

		select {
		case <-ctx.Done():
			return lastErr
		case <-time.After(r.delayFor(attempt)):
		}
	}
}

func (r *Retrier) delayFor(attempt int) time.Duration {
	d := float64(r.baseDelay) * math.Pow(r.multiplier, float64(attempt-1))
	if d > float64(r.maxDelay) {
		d = float64(r.maxDelay)
	}
	if r.jitter > 0 {
		d += d * r.jitter * (rand.Float64()*2 - 1)
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}
