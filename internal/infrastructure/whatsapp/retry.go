package whatsapp

import (
	"context"
	"math/rand"
	"time"
)

// RetryConfig holds configuration for retry behavior
type RetryConfig struct {
	// MaxAttempts is the maximum number of retry attempts (0 = no retries)
	MaxAttempts int

	// InitialDelay is the initial delay before the first retry
	InitialDelay time.Duration

	// MaxDelay is the maximum delay between retries
	MaxDelay time.Duration

	// Multiplier is the factor by which the delay increases after each retry
	Multiplier float64

	// JitterFactor is the maximum jitter as a fraction of the delay (0.0 to 1.0)
	JitterFactor float64
}

// DefaultRetryConfig returns default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	}
}

// RetryPolicy implements configurable retry logic with jitter
type RetryPolicy struct {
	config RetryConfig
	rng    *rand.Rand
}

// NewRetryPolicy creates a new retry policy with the given configuration
func NewRetryPolicy(config RetryConfig) *RetryPolicy {
	return &RetryPolicy{
		config: config,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Execute runs the given function with retry logic
func (p *RetryPolicy) Execute(ctx context.Context, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt <= p.config.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		// Don't wait after the last attempt
		if attempt < p.config.MaxAttempts {
			delay := p.calculateDelay(attempt)

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return lastErr
}

// calculateDelay calculates the delay for a given attempt with jitter
func (p *RetryPolicy) calculateDelay(attempt int) time.Duration {
	delay := float64(p.config.InitialDelay)
	for i := 0; i < attempt; i++ {
		delay *= p.config.Multiplier
	}

	if delay > float64(p.config.MaxDelay) {
		delay = float64(p.config.MaxDelay)
	}

	if p.config.JitterFactor > 0 {
		jitter := delay * p.config.JitterFactor * (2*p.rng.Float64() - 1)
		delay += jitter
	}

	if delay < 0 {
		delay = 0
	}

	return time.Duration(delay)
}
