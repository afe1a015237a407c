package retry

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"ttscraper/pkg/config"
	errs "ttscraper/pkg/errors"
)

// recordingSleeper records requested delays without sleeping
type recordingSleeper struct {
	delays []time.Duration
}

func (r *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return ctx.Err()
}

func TestExponentialBackoff(t *testing.T) {
	backoff := &ExponentialBackoff{
		BaseDelay:    100 * time.Millisecond,
		MaxDelay:     1 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.0, // No jitter for predictable testing
	}

	tests := []struct {
		attempt     int
		expected    time.Duration
		description string
	}{
		{0, 0, "No attempt yet"},
		{1, 100 * time.Millisecond, "First attempt"},
		{2, 200 * time.Millisecond, "Second attempt"},
		{3, 400 * time.Millisecond, "Third attempt"},
		{4, 800 * time.Millisecond, "Fourth attempt"},
		{5, 1 * time.Second, "Fifth attempt (capped at max)"},
		{6, 1 * time.Second, "Sixth attempt (still capped)"},
	}

	for _, test := range tests {
		t.Run(test.description, func(t *testing.T) {
			delay := backoff.NextDelay(test.attempt)
			if delay != test.expected {
				t.Errorf("Expected delay %v, got %v", test.expected, delay)
			}
		})
	}
}

func TestExponentialBackoffUncapped(t *testing.T) {
	backoff := &ExponentialBackoff{BaseDelay: 500 * time.Millisecond, Multiplier: 2.0}

	if delay := backoff.NextDelay(10); delay != 256*time.Second {
		t.Errorf("Expected 256s without a cap, got %v", delay)
	}
}

func TestExponentialBackoffWithJitter(t *testing.T) {
	backoff := &ExponentialBackoff{
		BaseDelay:    100 * time.Millisecond,
		MaxDelay:     1 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.3,
	}

	delays := make(map[time.Duration]bool)
	for i := 0; i < 20; i++ {
		delay := backoff.NextDelay(2)
		if delay < 140*time.Millisecond || delay > 260*time.Millisecond {
			t.Fatalf("Delay %v outside jitter range", delay)
		}
		delays[delay] = true
	}

	if len(delays) < 2 {
		t.Error("Expected multiple different delays with jitter, but got consistent delays")
	}
}

func TestLinearBackoff(t *testing.T) {
	backoff := &LinearBackoff{
		BaseDelay: 100 * time.Millisecond,
		MaxDelay:  500 * time.Millisecond,
		Increment: 100 * time.Millisecond,
	}

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 300 * time.Millisecond},
		{5, 500 * time.Millisecond},
		{6, 500 * time.Millisecond}, // Capped at max
	}

	for _, test := range tests {
		delay := backoff.NextDelay(test.attempt)
		if delay != test.expected {
			t.Errorf("Attempt %d: expected %v, got %v", test.attempt, test.expected, delay)
		}
	}
}

func TestNewBackoff(t *testing.T) {
	base := config.FetchConfig{BackoffBase: time.Second, BackoffMultiplier: 2}

	tests := []struct {
		strategy string
		want     interface{}
	}{
		{"", &ExponentialBackoff{}},
		{"exponential", &ExponentialBackoff{}},
		{"Linear", &LinearBackoff{}},
		{"constant", &ConstantBackoff{}},
		{"bogus", &ExponentialBackoff{}},
	}

	for _, tt := range tests {
		t.Run(tt.strategy, func(t *testing.T) {
			cfg := base
			cfg.BackoffStrategy = tt.strategy
			got := NewBackoff(cfg)
			if reflect.TypeOf(got) != reflect.TypeOf(tt.want) {
				t.Errorf("NewBackoff(%q) = %T, want %T", tt.strategy, got, tt.want)
			}
			if got.NextDelay(1) != time.Second {
				t.Errorf("First delay = %v, want 1s", got.NextDelay(1))
			}
		})
	}
}

func TestWait(t *testing.T) {
	if err := Wait(context.Background(), 0); err != nil {
		t.Errorf("Zero wait returned %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := Wait(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestMachineSucceedsAfterRetries(t *testing.T) {
	sleeper := &recordingSleeper{}
	var transitions []string

	m := NewMachine(&Config{
		MaxAttempts: 5,
		Backoff:     &ExponentialBackoff{BaseDelay: 500 * time.Millisecond, Multiplier: 2},
		Sleep:       sleeper.Sleep,
		OnTransition: func(from, to State, attempt int) {
			transitions = append(transitions, to.String())
		},
	})

	err := m.Run(context.Background(), func(ctx context.Context, attempt int) error {
		if attempt < 3 {
			return errs.New(errs.ErrorTypeExtractionEmpty, "no items")
		}
		return nil
	})

	if err != nil {
		t.Fatalf("Expected success after retries, got error: %v", err)
	}
	if m.State() != StateSucceeded || m.Attempt() != 3 {
		t.Errorf("Expected succeeded on attempt 3, got %s on %d", m.State(), m.Attempt())
	}

	wantDelays := []time.Duration{500 * time.Millisecond, time.Second}
	if !reflect.DeepEqual(sleeper.delays, wantDelays) {
		t.Errorf("Delays = %v, want %v", sleeper.delays, wantDelays)
	}

	wantTransitions := []string{"attempting", "backoff", "attempting", "backoff", "attempting", "succeeded"}
	if !reflect.DeepEqual(transitions, wantTransitions) {
		t.Errorf("Transitions = %v, want %v", transitions, wantTransitions)
	}
}

func TestMachineExhaustsAttempts(t *testing.T) {
	sleeper := &recordingSleeper{}
	attempts := 0
	persistent := errors.New("persistent error")

	m := NewMachine(&Config{
		MaxAttempts: 3,
		Backoff:     &ExponentialBackoff{BaseDelay: 100 * time.Millisecond, Multiplier: 2},
		RetryIf:     func(error) bool { return true },
		Sleep:       sleeper.Sleep,
	})

	err := m.Run(context.Background(), func(ctx context.Context, attempt int) error {
		attempts++
		return persistent
	})

	if !errors.Is(err, persistent) {
		t.Errorf("Expected last error, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
	if m.State() != StateFailed {
		t.Errorf("Expected failed state, got %s", m.State())
	}
	// no sleep after the final attempt
	wantDelays := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}
	if !reflect.DeepEqual(sleeper.delays, wantDelays) {
		t.Errorf("Delays = %v, want %v", sleeper.delays, wantDelays)
	}
}

func TestMachineHonorsRetryAfter(t *testing.T) {
	sleeper := &recordingSleeper{}
	errs429 := []error{
		&errs.Error{Type: errs.ErrorTypeRateLimit, Code: 429, RetryAfter: 7 * time.Second},
		fmt.Errorf("fetch: %w", &errs.Error{Type: errs.ErrorTypeRateLimit, Code: 429, RetryAfter: 50 * time.Millisecond}),
	}

	err := Do(context.Background(), func(ctx context.Context, attempt int) error {
		if attempt <= len(errs429) {
			return errs429[attempt-1]
		}
		return nil
	}, &Config{
		MaxAttempts: 3,
		Backoff:     &ExponentialBackoff{BaseDelay: 100 * time.Millisecond, Multiplier: 2},
		Sleep:       sleeper.Sleep,
	})

	if err != nil {
		t.Fatalf("Expected success, got %v", err)
	}
	// the longer of the backoff delay and the server's Retry-After
	wantDelays := []time.Duration{7 * time.Second, 200 * time.Millisecond}
	if !reflect.DeepEqual(sleeper.delays, wantDelays) {
		t.Errorf("Delays = %v, want %v", sleeper.delays, wantDelays)
	}
}

func TestMachineNonRetryableError(t *testing.T) {
	sleeper := &recordingSleeper{}
	attempts := 0
	authError := &errs.Error{
		Type:    errs.ErrorTypeAuth,
		Message: "authentication required",
		Code:    401,
	}

	err := Do(context.Background(), func(ctx context.Context, attempt int) error {
		attempts++
		return authError
	}, &Config{MaxAttempts: 5, Sleep: sleeper.Sleep})

	if err != authError {
		t.Errorf("Expected auth error, got: %v", err)
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt (no retry for auth error), got %d", attempts)
	}
	if len(sleeper.delays) != 0 {
		t.Errorf("Expected no backoff, got %v", sleeper.delays)
	}
}

func TestMachineContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0

	err := Do(ctx, func(ctx context.Context, attempt int) error {
		attempts++
		if attempts == 2 {
			cancel()
		}
		return errors.New("error")
	}, &Config{
		MaxAttempts: 5,
		RetryIf:     func(error) bool { return true },
		Sleep:       (&recordingSleeper{}).Sleep,
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if attempts != 2 {
		t.Errorf("Expected 2 attempts before cancellation, got %d", attempts)
	}
}

func TestMachineZeroAttemptsRunsOnce(t *testing.T) {
	attempts := 0
	_ = Do(context.Background(), func(ctx context.Context, attempt int) error {
		attempts++
		return errors.New("fail")
	}, &Config{MaxAttempts: 0, Sleep: (&recordingSleeper{}).Sleep})

	if attempts != 1 {
		t.Errorf("Expected 1 attempt, got %d", attempts)
	}
}

func TestDefaultRetryIf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("x"), true},
		{"canceled", context.Canceled, false},
		{"network", errs.New(errs.ErrorTypeNetwork, "reset"), true},
		{"server", errs.New(errs.ErrorTypeServerError, "502"), true},
		{"rate limit", errs.New(errs.ErrorTypeRateLimit, "429"), true},
		{"not found", errs.New(errs.ErrorTypeNotFound, "404"), false},
		{"auth", errs.New(errs.ErrorTypeAuth, "403"), false},
		{"normalization empty", errs.New(errs.ErrorTypeNormalizationEmpty, "none"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DefaultRetryIf(tt.err); got != tt.want {
				t.Errorf("DefaultRetryIf(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestDoWithResult(t *testing.T) {
	result, err := DoWithResult(context.Background(), func(ctx context.Context, attempt int) (string, error) {
		if attempt < 2 {
			return "", errors.New("temporary error")
		}
		return "success", nil
	}, &Config{MaxAttempts: 3, RetryIf: func(error) bool { return true }, Sleep: (&recordingSleeper{}).Sleep})

	if err != nil {
		t.Errorf("Expected success, got error: %v", err)
	}
	if result != "success" {
		t.Errorf("Expected 'success', got '%s'", result)
	}
}
