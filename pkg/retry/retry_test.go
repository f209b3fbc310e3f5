package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var errTransient = errors.New("transient")

func TestDo_RetriesRetryableUntilSuccess(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return Retryable(errTransient)
		}
		return nil
	}, WithMaxAttempts(5), WithInitialDelay(0))

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_BoundedAttempts(t *testing.T) {
	calls := 0
	var retries []int
	err := Do(context.Background(), func(context.Context) error {
		calls++
		return Retryable(errTransient)
	},
		WithMaxAttempts(3),
		WithInitialDelay(time.Millisecond),
		WithOnRetry(func(attempt int, _ error, _ time.Duration) { retries = append(retries, attempt) }),
	)

	assert.ErrorIs(t, err, errTransient)
	assert.False(t, IsRetryable(err))
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retries)
}

func TestDo_PermanentStopsImmediately(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func(context.Context) error {
		calls++
		return Permanent(errTransient)
	}, WithMaxAttempts(5))

	assert.Equal(t, errTransient, err)
	assert.Equal(t, 1, calls)
}

func TestDo_RetryIf(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func(context.Context) error {
		calls++
		return errTransient
	},
		WithMaxAttempts(4),
		WithInitialDelay(0),
		WithRetryIf(func(err error) bool { return errors.Is(err, errTransient) }),
	)

	assert.ErrorIs(t, err, errTransient)
	assert.Equal(t, 4, calls)
}

func TestDo_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, func(context.Context) error {
		calls++
		cancel()
		return Retryable(errTransient)
	}, WithMaxAttempts(5), WithInitialDelay(time.Hour))

	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoValue(t *testing.T) {
	r := New(WithMaxAttempts(2), WithInitialDelay(0))
	calls := 0

	v, err := DoValue(context.Background(), r, func(context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, Retryable(errTransient)
		}
		return 42, nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 2, r.MaxAttempts())
}

func TestDo_DelayHintOverridesBackoff(t *testing.T) {
	var delays []time.Duration
	calls := 0
	err := TelegramRetrier(
		WithMaxAttempts(3),
		WithInitialDelay(time.Hour),
		WithRetryIf(func(error) bool { return true }),
		WithDelayHint(func(err error) (time.Duration, bool) {
			return time.Millisecond, errors.Is(err, errTransient)
		}),
		WithOnRetry(func(_ int, _ error, d time.Duration) { delays = append(delays, d) }),
	).Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errTransient
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, []time.Duration{time.Millisecond, time.Millisecond}, delays)
}
