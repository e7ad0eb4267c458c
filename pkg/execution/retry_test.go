package execution

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdziat/simple-cron-jobs/pkg/core"
)

func TestDefaultRetryConfig(t *testing.T) {
	cfg := DefaultRetryConfig()

	assert.Equal(t, 5, cfg.MaxAttempts)
	assert.Equal(t, 50*time.Millisecond, cfg.InitialBackoff)
	assert.Equal(t, 2*time.Second, cfg.MaxBackoff)
	assert.Equal(t, 2.0, cfg.BackoffMultiplier)
	assert.Equal(t, 0.1, cfg.JitterFraction)
}

func TestRetryWithBackoff_SuccessOnFirstAttempt(t *testing.T) {
	var attempts int

	err := retryWithBackoff(context.Background(), DefaultRetryConfig(), func() error {
		attempts++
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 1, attempts)
}

func TestRetryWithBackoff_SuccessAfterRetries(t *testing.T) {
	cfg := RetryConfig{
		MaxAttempts:       5,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        10 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}
	var attempts int

	err := retryWithBackoff(context.Background(), cfg, func() error {
		attempts++
		if attempts < 3 {
			return errors.New("database is locked")
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryWithBackoff_ExhaustsAttempts(t *testing.T) {
	cfg := RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}
	var attempts int
	expectedErr := errors.New("persistent error")

	err := retryWithBackoff(context.Background(), cfg, func() error {
		attempts++
		return expectedErr
	})

	assert.Equal(t, expectedErr, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryWithBackoff_RespectsContextCancellation(t *testing.T) {
	cfg := RetryConfig{
		MaxAttempts:       10,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        time.Second,
		BackoffMultiplier: 2.0,
	}

	ctx, cancel := context.WithCancel(context.Background())
	var attempts atomic.Int32

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := retryWithBackoff(ctx, cfg, func() error {
		attempts.Add(1)
		return errors.New("keep failing")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.GreaterOrEqual(t, attempts.Load(), int32(1))
}

func TestRetryWithBackoff_StopsOnPermanentError(t *testing.T) {
	for _, permanent := range []error{
		context.Canceled,
		core.ErrExecutionFinalized,
		core.NotFound("execution", "e1"),
		fmt.Errorf("wrapped: %w", core.ErrExecutionFinalized),
	} {
		var attempts int
		err := retryWithBackoff(context.Background(), DefaultRetryConfig(), func() error {
			attempts++
			return permanent
		})

		assert.ErrorIs(t, err, permanent)
		assert.Equal(t, 1, attempts, "%v should not be retried", permanent)
	}
}

func TestRetryWithBackoff_RespectsMaxBackoff(t *testing.T) {
	cfg := RetryConfig{
		MaxAttempts:       5,
		InitialBackoff:    5 * time.Millisecond,
		MaxBackoff:        10 * time.Millisecond,
		BackoffMultiplier: 10.0,
	}

	var timestamps []time.Time
	err := retryWithBackoff(context.Background(), cfg, func() error {
		timestamps = append(timestamps, time.Now())
		return errors.New("fail")
	})

	assert.Error(t, err)
	require.Len(t, timestamps, 5)
	for i := 2; i < len(timestamps); i++ {
		assert.LessOrEqual(t, timestamps[i].Sub(timestamps[i-1]), 80*time.Millisecond)
	}
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"context.Canceled", context.Canceled, false},
		{"context.DeadlineExceeded", context.DeadlineExceeded, false},
		{"finalized", core.ErrExecutionFinalized, false},
		{"not found", core.NotFound("job", "x"), false},
		{"validation", core.Invalid("id", "required"), false},
		{"generic error", errors.New("disk I/O error"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsRetryableError(tt.err))
		})
	}
}
