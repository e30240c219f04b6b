package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/denebu/discord-chat-cleaner/pkg/logger"
)

// ExhaustedError is returned when an operation kept hitting retryable
// failures until the retry budget ran out. It wraps the last failure.
type ExhaustedError struct {
	Op       string
	Attempts int
	Last     error
}

// Error implements the error interface
func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s: gave up after %d attempts: %v", e.Op, e.Attempts, e.Last)
}

// Unwrap returns the last underlying failure
func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

// IsExhausted reports whether err is a retry-budget exhaustion
func IsExhausted(err error) bool {
	var exhausted *ExhaustedError
	return errors.As(err, &exhausted)
}

// RetryConfig holds configuration for a retrier
type RetryConfig struct {
	Name string
	// MaxRetries is the number of retries after the initial attempt
	MaxRetries int
	// DefaultBackoff is used when the failure carries no backoff hint
	DefaultBackoff time.Duration
	// MaxBackoff caps any backoff, hinted or default
	MaxBackoff time.Duration
	// Retryable classifies a failure as worth retrying
	Retryable func(error) bool
	// BackoffHint extracts the server-indicated backoff from a failure;
	// zero means no hint was given
	BackoffHint func(error) time.Duration
	// OnRetry is called before each backoff sleep
	OnRetry func(op string, attempt int, backoff time.Duration)
}

// DefaultRetryConfig returns a default retry configuration
func DefaultRetryConfig(name string) RetryConfig {
	return RetryConfig{
		Name:           name,
		MaxRetries:     5,
		DefaultBackoff: 1 * time.Second,
		MaxBackoff:     30 * time.Second,
	}
}

// Retrier reruns an operation while its failures are classified retryable,
// sleeping between attempts for the failure-indicated duration
type Retrier struct {
	name           string
	maxRetries     int
	defaultBackoff time.Duration
	maxBackoff     time.Duration
	retryable      func(error) bool
	backoffHint    func(error) time.Duration
	onRetry        func(op string, attempt int, backoff time.Duration)
	log            *logger.Logger
	// Metrics
	mutex          sync.Mutex
	totalAttempts  uint64
	totalRetries   uint64
	totalExhausted uint64
}

// NewRetrier creates a new retrier
func NewRetrier(config RetryConfig, log *logger.Logger) *Retrier {
	retryable := config.Retryable
	if retryable == nil {
		retryable = func(error) bool { return false }
	}
	backoffHint := config.BackoffHint
	if backoffHint == nil {
		backoffHint = func(error) time.Duration { return 0 }
	}
	return &Retrier{
		name:           config.Name,
		maxRetries:     config.MaxRetries,
		defaultBackoff: config.DefaultBackoff,
		maxBackoff:     config.MaxBackoff,
		retryable:      retryable,
		backoffHint:    backoffHint,
		onRetry:        config.OnRetry,
		log:            log,
	}
}

// Do runs fn, retrying retryable failures up to the configured budget.
// Non-retryable failures are returned as-is after the first occurrence;
// budget exhaustion returns an ExhaustedError wrapping the last failure.
func (r *Retrier) Do(ctx context.Context, op string, fn func() error) error {
	for attempt := 1; ; attempt++ {
		r.recordAttempt()

		err := fn()
		if err == nil {
			return nil
		}
		if !r.retryable(err) {
			return err
		}
		if attempt > r.maxRetries {
			r.recordExhausted()
			r.log.Warn("Retry budget exhausted",
				"retrier", r.name,
				"op", op,
				"attempts", attempt,
				"error", err.Error(),
			)
			return &ExhaustedError{Op: op, Attempts: attempt, Last: err}
		}

		backoff := r.backoffFor(err)
		r.recordRetry()
		if r.onRetry != nil {
			r.onRetry(op, attempt, backoff)
		}
		r.log.Warn("Rate limited, backing off before retry",
			"retrier", r.name,
			"op", op,
			"attempt", attempt,
			"backoff", backoff.String(),
		)
		if err := sleep(ctx, backoff); err != nil {
			return err
		}
	}
}

// backoffFor picks the sleep before the next attempt: the failure's own hint
// when present, the configured default otherwise, always capped
func (r *Retrier) backoffFor(err error) time.Duration {
	backoff := r.backoffHint(err)
	if backoff <= 0 {
		backoff = r.defaultBackoff
	}
	if r.maxBackoff > 0 && backoff > r.maxBackoff {
		backoff = r.maxBackoff
	}
	return backoff
}

// Stats returns cumulative attempt counters
func (r *Retrier) Stats() (attempts, retries, exhausted uint64) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.totalAttempts, r.totalRetries, r.totalExhausted
}

func (r *Retrier) recordAttempt() {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.totalAttempts++
}

func (r *Retrier) recordRetry() {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.totalRetries++
}

func (r *Retrier) recordExhausted() {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.totalExhausted++
}

// sleep waits for d unless the context is cancelled first
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
