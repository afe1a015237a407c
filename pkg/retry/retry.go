package retry

import (
	"context"
	"errors"
	"time"

	errs "ttscraper/pkg/errors"
	"ttscraper/pkg/logger"
)

// State is a position in the retry state machine
type State int

const (
	StateIdle State = iota
	StateAttempting
	StateBackoff
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAttempting:
		return "attempting"
	case StateBackoff:
		return "backoff"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Operation performs one attempt. attempt starts at 1.
type Operation func(ctx context.Context, attempt int) error

// Config holds retry configuration
type Config struct {
	// MaxAttempts is the total number of attempts, including the first (minimum 1)
	MaxAttempts int
	// Backoff strategy to use
	Backoff BackoffStrategy
	// RetryIf determines if an error should be retried
	RetryIf func(error) bool
	// Sleep waits out a backoff delay
	Sleep Sleeper
	// OnRetry is called before each backoff sleep
	OnRetry func(attempt int, err error, delay time.Duration)
	// OnTransition is called on every state change
	OnTransition func(from, to State, attempt int)
	// Logger for retry attempts
	Logger logger.Logger
}

// DefaultConfig returns a retry configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		MaxAttempts: 3,
		Backoff:     DefaultExponentialBackoff(),
		RetryIf:     DefaultRetryIf,
		Sleep:       Wait,
		Logger:      logger.GetLogger(),
	}
}

// DefaultRetryIf is the default retry predicate
func DefaultRetryIf(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var apiErr *errs.Error
	if errors.As(err, &apiErr) {
		return errs.IsRetryable(apiErr.Type)
	}

	// Unclassified errors are treated as transient
	return true
}

// Machine drives Attempting -> Backoff -> Attempting ... until Succeeded or Failed.
// A Machine is single use and not safe for concurrent use.
type Machine struct {
	cfg     Config
	state   State
	attempt int
	lastErr error
}

// NewMachine creates a Machine, filling unset fields from DefaultConfig
func NewMachine(cfg *Config) *Machine {
	defaults := DefaultConfig()
	if cfg == nil {
		cfg = defaults
	}

	c := *cfg
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 1
	}
	if c.Backoff == nil {
		c.Backoff = defaults.Backoff
	}
	if c.RetryIf == nil {
		c.RetryIf = DefaultRetryIf
	}
	if c.Sleep == nil {
		c.Sleep = Wait
	}
	if c.Logger == nil {
		c.Logger = logger.NewNopLogger()
	}

	return &Machine{cfg: c, state: StateIdle}
}

// State returns the current state
func (m *Machine) State() State {
	return m.state
}

// Attempt returns the number of the current or last attempt
func (m *Machine) Attempt() int {
	return m.attempt
}

// LastErr returns the error of the most recent failed attempt
func (m *Machine) LastErr() error {
	return m.lastErr
}

// Run executes op until it succeeds, fails permanently or runs out of attempts.
//
// On exhaustion or a non-retryable error the last attempt's error is returned.
// If ctx is done the context error is returned instead.
func (m *Machine) Run(ctx context.Context, op Operation) error {
	m.cfg.Backoff.Reset()
	m.attempt = 1
	m.transition(StateAttempting)

	for {
		switch m.state {
		case StateAttempting:
			if err := ctx.Err(); err != nil {
				return err
			}

			err := op(ctx, m.attempt)
			if err == nil {
				m.transition(StateSucceeded)
				continue
			}
			m.lastErr = err

			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}

			if !m.cfg.RetryIf(err) {
				m.cfg.Logger.DebugWithFields("error is not retryable", map[string]interface{}{
					"attempt": m.attempt,
					"error":   err.Error(),
				})
				m.transition(StateFailed)
				continue
			}

			if m.attempt >= m.cfg.MaxAttempts {
				m.cfg.Logger.WarnWithFields("max retry attempts exceeded", map[string]interface{}{
					"attempts":   m.attempt,
					"last_error": err.Error(),
				})
				m.transition(StateFailed)
				continue
			}

			m.transition(StateBackoff)

		case StateBackoff:
			delay := serverDelay(m.cfg.Backoff.NextDelay(m.attempt), m.lastErr)

			if m.cfg.OnRetry != nil {
				m.cfg.OnRetry(m.attempt, m.lastErr, delay)
			}

			m.cfg.Logger.WarnWithFields("retrying operation", map[string]interface{}{
				"attempt":      m.attempt,
				"error":        m.lastErr.Error(),
				"delay_ms":     delay.Milliseconds(),
				"max_attempts": m.cfg.MaxAttempts,
			})

			if err := m.cfg.Sleep(ctx, delay); err != nil {
				return err
			}

			m.attempt++
			m.transition(StateAttempting)

		case StateSucceeded:
			if m.attempt > 1 {
				m.cfg.Logger.DebugWithFields("operation succeeded after retry", map[string]interface{}{
					"attempt": m.attempt,
				})
			}
			return nil

		case StateFailed:
			return m.lastErr

		default:
			return errs.New(errs.ErrorTypeUnknown, "retry machine in invalid state")
		}
	}
}

// serverDelay raises delay to the Retry-After the server asked for, if longer
func serverDelay(delay time.Duration, err error) time.Duration {
	var apiErr *errs.Error
	if errors.As(err, &apiErr) && apiErr.RetryAfter > delay {
		return apiErr.RetryAfter
	}
	return delay
}

func (m *Machine) transition(to State) {
	from := m.state
	m.state = to
	if m.cfg.OnTransition != nil {
		m.cfg.OnTransition(from, to, m.attempt)
	}
}

// Do runs op on a fresh Machine
func Do(ctx context.Context, op Operation, cfg *Config) error {
	return NewMachine(cfg).Run(ctx, op)
}

// DoWithResult runs an operation that returns a result on a fresh Machine
func DoWithResult[T any](ctx context.Context, op func(ctx context.Context, attempt int) (T, error), cfg *Config) (T, error) {
	var result T

	err := Do(ctx, func(ctx context.Context, attempt int) error {
		var opErr error
		result, opErr = op(ctx, attempt)
		return opErr
	}, cfg)

	return result, err
}
