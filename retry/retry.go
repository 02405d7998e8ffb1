// Package retry runs operations with exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

// Defaults applied to zero Policy fields.
const (
	DefaultMaxAttempts    = 4
	DefaultInitialBackoff = 200 * time.Millisecond
	DefaultMaxBackoff     = 10 * time.Second
	DefaultMultiplier     = 2.0
	DefaultJitter         = 0.2
)

// Policy configures retry behavior.
type Policy struct {
	// MaxAttempts bounds the total number of calls, the first included.
	// 1 disables retries.
	MaxAttempts int

	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64

	// Jitter randomizes each wait by +/- the given fraction (0..1).
	Jitter float64

	// IsRetryable reports whether err is transient. Nil means DefaultIsRetryable.
	IsRetryable func(error) bool

	// OnRetry is called before each wait.
	OnRetry func(attempt int, err error, wait time.Duration)
}

// DefaultPolicy returns a Policy with every default filled in.
func DefaultPolicy() Policy {
	return Policy{}.withDefaults()
}

// NoRetry returns a Policy that calls the operation once.
func NoRetry() Policy {
	return Policy{MaxAttempts: 1}
}

// Sentinel errors.
var (
	// ErrNotRetryable marks an error that stopped the retry loop.
	ErrNotRetryable = errors.New("retry: error is not retryable")

	// ErrExhausted is returned when every attempt failed.
	ErrExhausted = errors.New("retry: attempts exhausted")

	// ErrCanceled is returned when the context ends between attempts.
	ErrCanceled = errors.New("retry: context canceled")
)

// Do calls fn until it succeeds, returns a non-retryable error, the attempts
// run out, or ctx is done. Failures are reported as *Error.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	p = p.withDefaults()

	var last error
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			if last == nil {
				return err
			}
			return &Error{Cause: last, Attempts: attempt - 1, Err: ErrCanceled}
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		last = err

		if !p.IsRetryable(err) {
			return &Error{Cause: err, Attempts: attempt, Err: ErrNotRetryable}
		}
		if attempt >= p.MaxAttempts {
			return &Error{Cause: err, Attempts: attempt, Err: ErrExhausted}
		}

		wait := p.Backoff(attempt)
		if hint, ok := retryAfter(err); ok {
			wait = min(max(wait, hint), p.MaxBackoff)
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, err, wait)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return &Error{Cause: err, Attempts: attempt, Err: ErrCanceled}
		case <-timer.C:
		}
	}
}

// DoValue is Do for operations that produce a value.
func DoValue[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := Do(ctx, p, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err == nil {
			out = v
		}
		return err
	})
	return out, err
}

// Backoff returns the wait after the given failed attempt (1-based).
func (p Policy) Backoff(attempt int) time.Duration {
	d := float64(p.InitialBackoff) * math.Pow(p.Multiplier, float64(attempt-1))
	d = min(d, float64(p.MaxBackoff))
	if p.Jitter > 0 {
		spread := d * p.Jitter
		d += (rand.Float64()*2 - 1) * spread
	}
	return time.Duration(d)
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = DefaultInitialBackoff
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = DefaultMaxBackoff
	}
	if p.Multiplier < 1 {
		p.Multiplier = DefaultMultiplier
	}
	p.Jitter = min(max(p.Jitter, 0), 1)
	if p.IsRetryable == nil {
		p.IsRetryable = DefaultIsRetryable
	}
	return p
}

// Error describes a failed retry loop.
type Error struct {
	// Cause is the last error returned by the operation.
	Cause    error
	Attempts int
	// Err is ErrExhausted, ErrNotRetryable or ErrCanceled.
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s after %d attempt(s): %v", e.Err, e.Attempts, e.Cause)
}

func (e *Error) Unwrap() []error {
	return []error{e.Err, e.Cause}
}

// DefaultIsRetryable treats errors as transient unless they say otherwise
// through a Retryable() bool method, or are context errors.
func DefaultIsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var r interface{ Retryable() bool }
	if errors.As(err, &r) {
		return r.Retryable()
	}
	return true
}

// Permanent wraps err so that DefaultIsRetryable rejects it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &marked{cause: err, retryable: false}
}

// Transient wraps err so that DefaultIsRetryable accepts it.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &marked{cause: err, retryable: true}
}

type marked struct {
	cause     error
	retryable bool
}

func (m *marked) Error() string   { return m.cause.Error() }
func (m *marked) Unwrap() error   { return m.cause }
func (m *marked) Retryable() bool { return m.retryable }

// retryAfter extracts a server-provided wait hint.
func retryAfter(err error) (time.Duration, bool) {
	var h interface{ RetryAfter() time.Duration }
	if errors.As(err, &h) {
		if d := h.RetryAfter(); d > 0 {
			return d, true
		}
	}
	return 0, false
}
