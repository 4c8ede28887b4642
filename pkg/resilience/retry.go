package resilience

import (
	"context"
	"fmt"
	"time"
)

// Retry default configuration values
const (
	DefaultRetryInitialDelay  = 100 * time.Millisecond
	DefaultRetryMaxDelay      = 30 * time.Second
	DefaultRetryBackoffFactor = 2.0
)

// RetryConfig controls Retry. MaxAttempts <= 0 retries until the context ends.
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64

	// RetryableErrors reports whether err is worth another attempt; nil retries everything
	RetryableErrors func(error) bool

	// OnRetry is called before each wait
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultRetryConfig retries with exponential backoff until the context ends
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		InitialDelay:  DefaultRetryInitialDelay,
		MaxDelay:      DefaultRetryMaxDelay,
		BackoffFactor: DefaultRetryBackoffFactor,
	}
}

// Retry runs fn until it succeeds, returns a non-retryable error, runs out of attempts
// or ctx ends. On cancellation the context error is returned.
func Retry(ctx context.Context, config *RetryConfig, fn func(context.Context) error) error {
	delay := config.InitialDelay

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}

		if config.RetryableErrors != nil && !config.RetryableErrors(err) {
			return err
		}
		if config.MaxAttempts > 0 && attempt >= config.MaxAttempts {
			return fmt.Errorf("max retries (%d) exceeded: %w", config.MaxAttempts, err)
		}

		if config.OnRetry != nil {
			config.OnRetry(attempt, err, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay = nextDelay(delay, config)
	}
}

func nextDelay(delay time.Duration, config *RetryConfig) time.Duration {
	factor := config.BackoffFactor
	if factor < 1 {
		factor = 1
	}
	next := time.Duration(float64(delay) * factor)
	if config.MaxDelay > 0 && next > config.MaxDelay {
		next = config.MaxDelay
	}
	return next
}
