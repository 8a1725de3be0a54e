package errors

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordSleep collects requested delays instead of waiting.
func recordSleep(delays *[]time.Duration) func(context.Context, time.Duration) error {
	return func(ctx context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return ctx.Err()
	}
}

func TestRetry_SucceedsAfterTransientErrors(t *testing.T) {
	// Given: a function that fails transiently twice then succeeds
	attempts := 0
	var delays []time.Duration
	cfg := DefaultRetryConfig()
	cfg.Sleep = recordSleep(&delays)

	// When: retrying
	got, err := RetryWithResult(context.Background(), cfg, func(context.Context) (string, error) {
		attempts++
		if attempts < 3 {
			return "", New(ErrCodeRateLimited, "429", nil)
		}
		return "ok", nil
	})

	// Then: succeeds on the third attempt with exponential delays
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, delays)
}

func TestRetry_AttemptBound(t *testing.T) {
	for _, failures := range []int{0, 1, 4, 5, 7} {
		cfg := RetryConfig{MaxAttempts: 5, InitialDelay: time.Millisecond, MaxDelay: time.Second, Multiplier: 2}
		var delays []time.Duration
		cfg.Sleep = recordSleep(&delays)

		calls := 0
		err := Retry(context.Background(), cfg, func(context.Context) error {
			calls++
			if calls <= failures {
				return New(ErrCodeNetworkTimeout, "timeout", nil)
			}
			return nil
		})

		if failures < cfg.MaxAttempts {
			assert.NoError(t, err, "failures=%d", failures)
			assert.Equal(t, failures+1, calls)
		} else {
			require.Error(t, err)
			assert.Contains(t, err.Error(), "failed after 5 attempts")
			assert.True(t, errors.Is(err, Code(ErrCodeNetworkTimeout)))
			assert.Equal(t, cfg.MaxAttempts, calls)
		}
	}
}

func TestRetry_NonRetryableReturnsImmediately(t *testing.T) {
	calls := 0
	rejected := New(ErrCodeProviderRejected, "401 unauthorized", nil)

	err := Retry(context.Background(), DefaultRetryConfig(), func(context.Context) error {
		calls++
		return rejected
	})

	assert.Same(t, rejected, err)
	assert.Equal(t, 1, calls)
}

func TestRetry_DelayCappedAtMax(t *testing.T) {
	var delays []time.Duration
	cfg := RetryConfig{
		MaxAttempts:  6,
		InitialDelay: time.Second,
		MaxDelay:     3 * time.Second,
		Multiplier:   2,
		Sleep:        recordSleep(&delays),
		ShouldRetry:  func(error) bool { return true },
	}

	_ = Retry(context.Background(), cfg, func(context.Context) error { return errors.New("x") })

	assert.Equal(t, []time.Duration{
		time.Second, 2 * time.Second, 3 * time.Second, 3 * time.Second, 3 * time.Second,
	}, delays)
}

func TestRetry_HonoursRetryAfterHint(t *testing.T) {
	var delays []time.Duration
	cfg := RetryConfig{MaxAttempts: 2, InitialDelay: time.Second, MaxDelay: 10 * time.Second, Multiplier: 2}
	cfg.Sleep = recordSleep(&delays)

	calls := 0
	_ = Retry(context.Background(), cfg, func(context.Context) error {
		calls++
		if calls == 1 {
			return New(ErrCodeRateLimited, "429", nil).WithRetryAfter(7 * time.Second)
		}
		return nil
	})

	assert.Equal(t, []time.Duration{7 * time.Second}, delays)
}

func TestRetry_RespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	err := Retry(ctx, DefaultRetryConfig(), func(context.Context) error {
		calls++
		cancel()
		return New(ErrCodeNetworkTimeout, "timeout", nil)
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestRetry_RealSleepIsInterruptible(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	cfg := RetryConfig{MaxAttempts: 3, InitialDelay: time.Minute, Multiplier: 2}
	start := time.Now()
	err := Retry(ctx, cfg, func(context.Context) error {
		return New(ErrCodeNetworkTimeout, "timeout", nil)
	})

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}
