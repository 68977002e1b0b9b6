package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugo-lorenzo-mato/tribunal/internal/core"
)

func quickPolicy(attempts int, opts ...RetryPolicyOption) *RetryPolicy {
	base := []RetryPolicyOption{
		WithMaxAttempts(attempts),
		WithBaseDelay(time.Millisecond),
		WithMaxDelay(5 * time.Millisecond),
		WithJitter(0),
	}
	return NewRetryPolicy(append(base, opts...)...)
}

func TestAttempt(t *testing.T) {
	network := core.ErrNetwork("connection reset")
	invalid := core.ErrValidation("BAD", "bad input")

	tests := []struct {
		name         string
		attempts     int
		failures     []error // returned by successive calls; nil means success
		wantValue    string
		wantAttempts int
		wantExhaust  bool
		wantErr      error
	}{
		{"first try", 3, nil, "ok", 1, false, nil},
		{"recovers", 3, []error{network, network}, "ok", 3, false, nil},
		{"exhausted", 2, []error{network, network, network}, "", 2, true, network},
		{"non-retryable", 3, []error{invalid}, "", 1, false, invalid},
		{"single attempt", 1, []error{network}, "", 1, true, network},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			res := Attempt(context.Background(), quickPolicy(tt.attempts), func(context.Context) (string, error) {
				calls++
				if calls <= len(tt.failures) {
					return "partial", tt.failures[calls-1]
				}
				return "ok", nil
			})

			assert.Equal(t, tt.wantValue, res.Value)
			assert.Equal(t, tt.wantAttempts, res.Attempts)
			assert.Equal(t, tt.wantAttempts, calls)
			assert.Equal(t, tt.wantExhaust, IsRetryExhausted(res.Err))
			if tt.wantErr == nil {
				assert.NoError(t, res.Err)
			} else {
				assert.ErrorIs(t, res.Err, tt.wantErr)
			}
		})
	}
}

func TestAttempt_NilPolicyUsesDefault(t *testing.T) {
	res := Attempt(context.Background(), nil, func(context.Context) (int, error) {
		return 0, core.ErrValidation("BAD", "bad input")
	})
	assert.Equal(t, 1, res.Attempts)
	assert.False(t, IsRetryExhausted(res.Err))
}

func TestAttempt_OnRetryHook(t *testing.T) {
	type retry struct {
		attempt int
		wait    time.Duration
	}
	var seen []retry
	policy := quickPolicy(3, WithBaseDelay(2*time.Millisecond), WithMaxDelay(time.Second),
		WithOnRetry(func(attempt int, err error, wait time.Duration) {
			assert.True(t, core.IsRetryable(err))
			seen = append(seen, retry{attempt, wait})
		}))

	res := Attempt(context.Background(), policy, func(context.Context) (bool, error) {
		return false, core.ErrTimeout("slow judge")
	})

	require.True(t, IsRetryExhausted(res.Err))
	// No hook after the last attempt: nothing follows it.
	assert.Equal(t, []retry{{1, 2 * time.Millisecond}, {2, 4 * time.Millisecond}}, seen)
}

func TestAttempt_ContextCancellation(t *testing.T) {
	t.Run("before the first attempt", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		res := Attempt(ctx, quickPolicy(3), func(context.Context) (int, error) {
			t.Error("call should not run")
			return 0, nil
		})
		assert.ErrorIs(t, res.Err, context.Canceled)
		assert.Equal(t, 0, res.Attempts)
	})

	t.Run("during backoff", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		policy := quickPolicy(5, WithBaseDelay(time.Hour), WithMaxDelay(time.Hour),
			WithOnRetry(func(int, error, time.Duration) { cancel() }))

		start := time.Now()
		res := Attempt(ctx, policy, func(context.Context) (int, error) {
			return 0, core.ErrNetwork("unreachable")
		})
		assert.ErrorIs(t, res.Err, context.Canceled)
		assert.Equal(t, 1, res.Attempts)
		assert.Less(t, time.Since(start), time.Second)
	})
}

func TestAttempt_PerAttemptTimeout(t *testing.T) {
	policy := quickPolicy(2, WithTimeout(20*time.Millisecond))

	calls := 0
	res := Attempt(context.Background(), policy, func(ctx context.Context) (string, error) {
		calls++
		<-ctx.Done()
		return "", ctx.Err()
	})

	assert.Equal(t, 2, calls, "a timed-out attempt is retried")
	require.True(t, IsRetryExhausted(res.Err))
	assert.True(t, core.IsCategory(res.Err, core.ErrCatTimeout))
	assert.ErrorIs(t, res.Err, context.DeadlineExceeded)
}

func TestAttempt_CallerDeadlineIsNotRewrapped(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	res := Attempt(ctx, quickPolicy(3, WithTimeout(time.Second)), func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})

	assert.ErrorIs(t, res.Err, context.DeadlineExceeded)
	assert.False(t, core.IsCategory(res.Err, core.ErrCatTimeout))
}

func TestRetryPolicy_Backoff(t *testing.T) {
	p := NewRetryPolicy(
		WithBaseDelay(100*time.Millisecond),
		WithMaxDelay(time.Second),
		WithMultiplier(2),
		WithJitter(0),
		WithRateLimitDelay(700*time.Millisecond),
	)
	network := core.ErrNetwork("reset")
	limited := core.ErrRateLimit("429")

	tests := []struct {
		attempt int
		err     error
		want    time.Duration
	}{
		{1, network, 100 * time.Millisecond},
		{2, network, 200 * time.Millisecond},
		{3, network, 400 * time.Millisecond},
		{5, network, time.Second},
		{1, limited, 700 * time.Millisecond},
		{4, limited, 800 * time.Millisecond},
		{6, limited, time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, p.Backoff(tt.attempt, tt.err), "attempt %d %v", tt.attempt, tt.err)
	}
}

func TestRetryPolicy_BackoffJitter(t *testing.T) {
	p := NewRetryPolicy(WithBaseDelay(100*time.Millisecond), WithJitter(0.5))

	distinct := make(map[time.Duration]bool)
	for i := 0; i < 50; i++ {
		d := p.Backoff(1, errors.New("x"))
		assert.GreaterOrEqual(t, d, 50*time.Millisecond)
		assert.LessOrEqual(t, d, 150*time.Millisecond)
		distinct[d] = true
	}
	assert.Greater(t, len(distinct), 1, "jitter should vary the delay")
}

func TestNewRetryPolicy(t *testing.T) {
	def := DefaultRetryPolicy()
	assert.Equal(t, 2, def.MaxAttempts)
	assert.Equal(t, time.Second, def.BaseDelay)
	assert.Equal(t, 30*time.Second, def.MaxDelay)
	assert.Zero(t, def.Timeout)

	assert.Equal(t, 1, NewRetryPolicy(WithMaxAttempts(0)).MaxAttempts)
	assert.Equal(t, 1, NewRetryPolicy(WithMaxAttempts(-4)).MaxAttempts)
}

func TestRetryExhaustedError(t *testing.T) {
	cause := core.ErrNetwork("connection refused")
	err := &RetryExhaustedError{Attempts: 3, LastErr: cause}

	assert.Equal(t, "retry exhausted after 3 attempts: "+cause.Error(), err.Error())
	assert.ErrorIs(t, err, cause)
	assert.True(t, IsRetryExhausted(err))
	assert.False(t, IsRetryExhausted(cause))
}
