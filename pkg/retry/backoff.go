package retry

import (
	"context"
	"math"
	"math/rand"
	"strings"
	"time"

	"ttscraper/pkg/config"
)

// BackoffStrategy defines the interface for different backoff strategies
type BackoffStrategy interface {
	// NextDelay returns the delay to wait after the given failed attempt
	NextDelay(attempt int) time.Duration
	// Reset resets the backoff strategy to initial state
	Reset()
}

// Sleeper waits for d or until ctx is done. Tests substitute a recorder.
type Sleeper func(ctx context.Context, d time.Duration) error

// ExponentialBackoff implements base * multiplier^(attempt-1) with optional cap and jitter
type ExponentialBackoff struct {
	// BaseDelay is the delay after the first failed attempt
	BaseDelay time.Duration
	// MaxDelay caps the delay; zero means no cap
	MaxDelay time.Duration
	// Multiplier is the factor by which delay increases
	Multiplier float64
	// JitterFactor adds randomness to avoid thundering herd (0.0 to 1.0)
	JitterFactor float64
}

// DefaultExponentialBackoff returns the doubling backoff with no cap and no jitter
func DefaultExponentialBackoff() *ExponentialBackoff {
	return &ExponentialBackoff{
		BaseDelay:  500 * time.Millisecond,
		Multiplier: 2.0,
	}
}

// NextDelay calculates the next delay with exponential backoff and jitter
func (eb *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	multiplier := eb.Multiplier
	if multiplier <= 0 {
		multiplier = 2.0
	}

	delay := float64(eb.BaseDelay) * math.Pow(multiplier, float64(attempt-1))
	if eb.MaxDelay > 0 && delay > float64(eb.MaxDelay) {
		delay = float64(eb.MaxDelay)
	}

	return time.Duration(applyJitter(delay, eb.JitterFactor))
}

// Reset is a no-op; the delay depends only on the attempt number
func (eb *ExponentialBackoff) Reset() {}

// LinearBackoff implements linear backoff strategy
type LinearBackoff struct {
	// BaseDelay is the delay after the first failed attempt
	BaseDelay time.Duration
	// MaxDelay caps the delay; zero means no cap
	MaxDelay time.Duration
	// Increment is the amount to increase delay by each attempt
	Increment time.Duration
	// JitterFactor adds randomness (0.0 to 1.0)
	JitterFactor float64
}

// NextDelay calculates the next delay with linear backoff
func (lb *LinearBackoff) NextDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	delay := float64(lb.BaseDelay + lb.Increment*time.Duration(attempt-1))
	if lb.MaxDelay > 0 && delay > float64(lb.MaxDelay) {
		delay = float64(lb.MaxDelay)
	}

	return time.Duration(applyJitter(delay, lb.JitterFactor))
}

// Reset resets the backoff to initial state
func (lb *LinearBackoff) Reset() {}

// ConstantBackoff implements constant delay backoff
type ConstantBackoff struct {
	Delay time.Duration
}

// NextDelay returns a constant delay
func (cb *ConstantBackoff) NextDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	return cb.Delay
}

// Reset resets the backoff (no-op for constant backoff)
func (cb *ConstantBackoff) Reset() {}

// NewBackoff builds the strategy named by cfg.BackoffStrategy.
// Unknown names fall back to exponential.
func NewBackoff(cfg config.FetchConfig) BackoffStrategy {
	switch strings.ToLower(cfg.BackoffStrategy) {
	case "linear":
		return &LinearBackoff{
			BaseDelay:    cfg.BackoffBase,
			MaxDelay:     cfg.BackoffMax,
			Increment:    cfg.BackoffBase,
			JitterFactor: cfg.JitterFactor,
		}
	case "constant":
		return &ConstantBackoff{Delay: cfg.BackoffBase}
	default:
		return &ExponentialBackoff{
			BaseDelay:    cfg.BackoffBase,
			MaxDelay:     cfg.BackoffMax,
			Multiplier:   cfg.BackoffMultiplier,
			JitterFactor: cfg.JitterFactor,
		}
	}
}

// Wait waits for the specified duration or until context is cancelled
func Wait(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func applyJitter(delay, factor float64) float64 {
	if factor > 0 {
		jitter := delay * factor
		// random value between -jitter and +jitter
		delay += (rand.Float64() * 2 * jitter) - jitter
	}
	if delay < 0 {
		delay = 0
	}
	return delay
}
