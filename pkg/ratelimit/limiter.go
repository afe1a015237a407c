package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Clock returns the current time. Tests inject a fixed or stepped clock.
type Clock func() time.Time

// Decision is the outcome of a rate limit check
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds, minimum 1.
// Suitable for a Retry-After header.
func (d Decision) RetryAfterSeconds() int {
	secs := int(math.Ceil(d.RetryAfter.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}

// bucket serializes the refill-and-take of a single identity so the
// reported remaining count matches the token that was taken
type bucket struct {
	mu  sync.Mutex
	lim *rate.Limiter
}

// Limiter keeps one token bucket per caller identity.
// Buckets are created on first use and kept for the life of the process.
type Limiter struct {
	limit rate.Limit
	burst int
	now   Clock

	mu      sync.RWMutex
	buckets map[string]*bucket
}

// Option configures a Limiter
type Option func(*Limiter)

// WithClock replaces time.Now as the limiter's time source
func WithClock(c Clock) Option {
	return func(l *Limiter) {
		l.now = c
	}
}

// New creates a Limiter refilling requestsPerMinute/60 tokens per second up to burst
func New(requestsPerMinute, burst int, opts ...Option) *Limiter {
	l := &Limiter{
		limit:   rate.Limit(float64(requestsPerMinute) / 60.0),
		burst:   burst,
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Check takes one token from identity's bucket if one is available.
// It never blocks; a denied decision carries the time until the next token.
func (l *Limiter) Check(identity string) Decision {
	b := l.getOrCreate(identity)
	now := l.now()

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.lim.AllowN(now, 1) {
		remaining := int(math.Floor(b.lim.TokensAt(now)))
		if remaining < 0 {
			remaining = 0
		}
		return Decision{Allowed: true, Limit: l.burst, Remaining: remaining}
	}

	missing := 1 - b.lim.TokensAt(now)
	wait := time.Duration(missing / float64(l.limit) * float64(time.Second))
	return Decision{Allowed: false, Limit: l.burst, Remaining: 0, RetryAfter: wait}
}

// Identities returns the number of buckets currently held
func (l *Limiter) Identities() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.buckets)
}

func (l *Limiter) getOrCreate(identity string) *bucket {
	l.mu.RLock()
	b, ok := l.buckets[identity]
	l.mu.RUnlock()
	if ok {
		return b
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// another caller may have created it while we waited for the write lock
	if b, ok := l.buckets[identity]; ok {
		return b
	}

	b = &bucket{lim: rate.NewLimiter(l.limit, l.burst)}
	l.buckets[identity] = b
	return b
}

// Pacer spaces outbound requests by a fixed minimum interval
type Pacer struct {
	lim *rate.Limiter
}

// NewPacer creates a Pacer. A non-positive interval disables pacing.
func NewPacer(interval time.Duration) *Pacer {
	if interval <= 0 {
		return &Pacer{}
	}
	return &Pacer{lim: rate.NewLimiter(rate.Every(interval), 1)}
}

// Wait blocks until the next request may be sent or ctx is done
func (p *Pacer) Wait(ctx context.Context) error {
	if p == nil || p.lim == nil {
		return ctx.Err()
	}
	return p.lim.Wait(ctx)
}
