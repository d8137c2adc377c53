package persist

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

// jitter spreads each retry delay over ±20% of its nominal value.
const jitter = 0.2

// RetryConfig configures retry behavior for saves
type RetryConfig struct {
	MaxRetries int           // Retries after the first attempt (default: 3)
	BaseDelay  time.Duration // Delay before the first retry (default: 100ms)
	MaxDelay   time.Duration // Ceiling for any single delay (default: 5s)
	Multiplier float64       // Growth factor between delays (default: 2.0)
}

// DefaultRetryConfig returns the default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		BaseDelay:  100 * time.Millisecond,
		MaxDelay:   5 * time.Second,
		Multiplier: 2.0,
	}
}

// newBackOff builds the delay schedule for cfg.
func newBackOff(cfg RetryConfig) *backoff.ExponentialBackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     cfg.BaseDelay,
		RandomizationFactor: jitter,
		Multiplier:          cfg.Multiplier,
		MaxInterval:         cfg.MaxDelay,
	}
	b.Reset()
	return b
}

// withRetry runs fn until it succeeds, returns an error isRetryableError
// rejects, or cfg.MaxRetries retries have failed.
func withRetry(ctx context.Context, cfg RetryConfig, logger *zap.Logger, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	attempts := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempts++
		err := fn(ctx)
		if err != nil && !isRetryableError(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(newBackOff(cfg)),
		backoff.WithMaxTries(uint(cfg.MaxRetries+1)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, delay time.Duration) {
			logger.Warn("save failed, retrying",
				zap.Int("attempt", attempts),
				zap.Duration("delay", delay),
				zap.Error(err))
		}),
	)

	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		err = permanent.Err
	}
	if err == nil && attempts > 1 {
		logger.Info("save succeeded after retry", zap.Int("attempt", attempts))
	}
	return err
}
