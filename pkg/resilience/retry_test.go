package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/denebu/discord-chat-cleaner/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errLimited = errors.New("rate limited")

func testRetrier(maxRetries int) *Retrier {
	config := RetryConfig{
		Name:           "test",
		MaxRetries:     maxRetries,
		DefaultBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
		Retryable:      func(err error) bool { return errors.Is(err, errLimited) },
	}
	return NewRetrier(config, logger.New(logger.Config{Level: "error"}))
}

func TestRetrierSucceedsFirstTry(t *testing.T) {
	r := testRetrier(5)
	calls := 0

	err := r.Do(context.Background(), "op", func() error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetrierNonRetryableReturnsImmediately(t *testing.T) {
	r := testRetrier(5)
	boom := errors.New("boom")
	calls := 0

	err := r.Do(context.Background(), "op", func() error {
		calls++
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
	assert.False(t, IsExhausted(err))
}

func TestRetrierRecoversWithinBudget(t *testing.T) {
	r := testRetrier(5)
	calls := 0

	err := r.Do(context.Background(), "op", func() error {
		calls++
		if calls < 5 {
			return errLimited
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 5, calls)
}

func TestRetrierExhaustsBudget(t *testing.T) {
	r := testRetrier(5)
	calls := 0

	err := r.Do(context.Background(), "op", func() error {
		calls++
		return errLimited
	})

	require.Error(t, err)
	assert.True(t, IsExhausted(err))
	assert.ErrorIs(t, err, errLimited)
	assert.Equal(t, 6, calls, "initial attempt plus MaxRetries retries")

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, "op", exhausted.Op)
	assert.Equal(t, 6, exhausted.Attempts)
}

func TestRetrierOnRetryCallback(t *testing.T) {
	retries := 0
	config := RetryConfig{
		Name:           "test",
		MaxRetries:     3,
		DefaultBackoff: time.Millisecond,
		Retryable:      func(err error) bool { return errors.Is(err, errLimited) },
		OnRetry:        func(string, int, time.Duration) { retries++ },
	}
	r := NewRetrier(config, logger.New(logger.Config{Level: "error"}))

	err := r.Do(context.Background(), "op", func() error { return errLimited })

	require.Error(t, err)
	assert.Equal(t, 3, retries)
}

func TestRetrierBackoffHintCapped(t *testing.T) {
	config := DefaultRetryConfig("test")
	config.DefaultBackoff = time.Second
	config.MaxBackoff = 2 * time.Second
	config.BackoffHint = func(error) time.Duration { return 10 * time.Second }
	r := NewRetrier(config, logger.New(logger.Config{Level: "error"}))

	assert.Equal(t, 2*time.Second, r.backoffFor(errLimited))

	config.BackoffHint = func(error) time.Duration { return 0 }
	r = NewRetrier(config, logger.New(logger.Config{Level: "error"}))
	assert.Equal(t, time.Second, r.backoffFor(errLimited), "no hint falls back to the default")
}

func TestRetrierContextCancelledDuringBackoff(t *testing.T) {
	r := testRetrier(5)
	r.defaultBackoff = time.Minute
	r.maxBackoff = time.Minute

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := r.Do(ctx, "op", func() error { return errLimited })

	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

func TestRetrierStats(t *testing.T) {
	r := testRetrier(2)

	_ = r.Do(context.Background(), "op", func() error { return errLimited })

	attempts, retries, exhausted := r.Stats()
	assert.Equal(t, uint64(3), attempts)
	assert.Equal(t, uint64(2), retries)
	assert.Equal(t, uint64(1), exhausted)
}
