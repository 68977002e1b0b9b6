package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/hugo-lorenzo-mato/tribunal/internal/core"
)

// RetryPolicy bounds how often a producer or judge call is repeated and how
// long each try may run. Only errors that core.IsRetryable accepts are
// retried.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
	// JitterFactor spreads each delay by up to ±factor of its value.
	JitterFactor float64
	// Timeout bounds each attempt by cancelling the context passed to it.
	// It only ends an attempt whose function honours that context; one
	// that ignores ctx runs, and holds its caller, until it returns.
	// Zero means no per-attempt limit.
	Timeout time.Duration
	// RateLimitDelay is the least a rate_limit failure waits before the
	// next attempt, still capped by MaxDelay.
	RateLimitDelay time.Duration
	// OnRetry is told about every failure that will be retried.
	OnRetry func(attempt int, err error, wait time.Duration)
}

// DefaultRetryPolicy allows two attempts with a short exponential backoff
// and no per-attempt timeout.
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:    2,
		BaseDelay:      time.Second,
		MaxDelay:       30 * time.Second,
		Multiplier:     2,
		JitterFactor:   0.2,
		RateLimitDelay: 10 * time.Second,
	}
}

// RetryPolicyOption adjusts a policy built by NewRetryPolicy.
type RetryPolicyOption func(*RetryPolicy)

func WithMaxAttempts(n int) RetryPolicyOption {
	return func(p *RetryPolicy) { p.MaxAttempts = n }
}

func WithBaseDelay(d time.Duration) RetryPolicyOption {
	return func(p *RetryPolicy) { p.BaseDelay = d }
}

func WithMaxDelay(d time.Duration) RetryPolicyOption {
	return func(p *RetryPolicy) { p.MaxDelay = d }
}

func WithMultiplier(m float64) RetryPolicyOption {
	return func(p *RetryPolicy) { p.Multiplier = m }
}

func WithJitter(factor float64) RetryPolicyOption {
	return func(p *RetryPolicy) { p.JitterFactor = factor }
}

// WithTimeout bounds every attempt.
func WithTimeout(d time.Duration) RetryPolicyOption {
	return func(p *RetryPolicy) { p.Timeout = d }
}

func WithRateLimitDelay(d time.Duration) RetryPolicyOption {
	return func(p *RetryPolicy) { p.RateLimitDelay = d }
}

// WithOnRetry installs a hook called before every backoff wait.
func WithOnRetry(fn func(attempt int, err error, wait time.Duration)) RetryPolicyOption {
	return func(p *RetryPolicy) { p.OnRetry = fn }
}

// NewRetryPolicy applies opts on top of DefaultRetryPolicy. At least one
// attempt is always made.
func NewRetryPolicy(opts ...RetryPolicyOption) *RetryPolicy {
	p := DefaultRetryPolicy()
	for _, opt := range opts {
		opt(p)
	}
	p.MaxAttempts = max(p.MaxAttempts, 1)
	return p
}

// Backoff returns how long to wait after the given failed attempt
// (1-based) before trying again.
func (p *RetryPolicy) Backoff(attempt int, err error) time.Duration {
	d := p.backoff(attempt)
	if p.JitterFactor > 0 {
		d += d * p.JitterFactor * (2*rand.Float64() - 1)
	}
	if core.IsCategory(err, core.ErrCatRateLimit) {
		d = max(d, float64(p.RateLimitDelay))
	}
	return time.Duration(min(d, float64(p.MaxDelay)))
}

// backoff is BaseDelay·Multiplier^(attempt-1), without jitter.
func (p *RetryPolicy) backoff(attempt int) float64 {
	d := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt-1))
	return min(d, float64(p.MaxDelay))
}

// RetryExhaustedError is returned when every attempt failed with a
// retryable error.
type RetryExhaustedError struct {
	Attempts int
	LastErr  error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("retry exhausted after %d attempts: %v", e.Attempts, e.LastErr)
}

func (e *RetryExhaustedError) Unwrap() error { return e.LastErr }

// IsRetryExhausted reports whether err wraps a RetryExhaustedError.
func IsRetryExhausted(err error) bool {
	var exhausted *RetryExhaustedError
	return errors.As(err, &exhausted)
}

// AttemptResult is the outcome of one guarded call to an external
// collaborator.
type AttemptResult[T any] struct {
	Value    T
	Attempts int
	Err      error
}

// Attempt runs call under p (DefaultRetryPolicy when nil) and reports the
// value together with how many attempts it took. On failure Value is the
// zero value and Err is either the first non-retryable error, the context's
// error, or a RetryExhaustedError.
func Attempt[T any](ctx context.Context, p *RetryPolicy, call func(ctx context.Context) (T, error)) AttemptResult[T] {
	if p == nil {
		p = DefaultRetryPolicy()
	}
	var (
		res  AttemptResult[T]
		last error
	)
	for res.Attempts < p.MaxAttempts {
		if err := ctx.Err(); err != nil {
			res.Err = err
			return res
		}
		res.Attempts++
		v, err := attemptOnce(ctx, p.Timeout, call)
		if err == nil {
			res.Value = v
			return res
		}
		last = err
		if !core.IsRetryable(err) {
			res.Err = err
			return res
		}
		if res.Attempts == p.MaxAttempts {
			break
		}

		wait := p.Backoff(res.Attempts, err)
		if p.OnRetry != nil {
			p.OnRetry(res.Attempts, err, wait)
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			res.Err = ctx.Err()
			return res
		case <-timer.C:
		}
	}
	res.Err = &RetryExhaustedError{Attempts: res.Attempts, LastErr: last}
	return res
}

// attemptOnce runs call with the per-attempt timeout. A deadline hit by the
// attempt itself, and not by the caller, becomes a retryable timeout.
func attemptOnce[T any](ctx context.Context, timeout time.Duration, call func(ctx context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return call(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	v, err := call(attemptCtx)
	if err != nil && ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		var zero T
		return zero, core.ErrTimeout(fmt.Sprintf("attempt exceeded %s", timeout)).WithCause(err)
	}
	return v, err
}
