package resilience

import (
	"context"
	"sync"
	"time"
)

// LimiterOpts configures the token bucket rate limiter.
type LimiterOpts struct {
	// Rate is the number of tokens added per second.
	Rate float64
	// Burst is the maximum number of tokens (bucket capacity).
	Burst int
}

// Limiter is a token bucket. It paces outbound calls to metered dependencies
// such as the LLM endpoint. The bucket starts full.
type Limiter struct {
	mu     sync.Mutex
	rate   float64
	burst  float64
	tokens float64
	stamp  time.Time
	now    func() time.Time
}

// NewLimiter creates a token bucket rate limiter.
func NewLimiter(opts LimiterOpts) *Limiter {
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		rate:   opts.Rate,
		burst:  float64(burst),
		tokens: float64(burst),
		now:    time.Now,
	}
}

// take credits the bucket for the time passed since the last call, then
// removes one token if a whole one is available. Must run under mu.
func (l *Limiter) take(t time.Time) bool {
	if !l.stamp.IsZero() {
		l.tokens += t.Sub(l.stamp).Seconds() * l.rate
		if l.tokens > l.burst {
			l.tokens = l.burst
		}
	}
	l.stamp = t
	if l.tokens < 1 {
		return false
	}
	l.tokens--
	return true
}

// Allow reports whether a token is available right now, consuming it if so.
func (l *Limiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.take(l.now())
}

// Wait blocks until a token can be taken or the context ends.
func (l *Limiter) Wait(ctx context.Context) error {
	for {
		l.mu.Lock()
		if l.take(l.now()) {
			l.mu.Unlock()
			return nil
		}
		short := 1 - l.tokens
		l.mu.Unlock()

		pause := time.Second
		if l.rate > 0 {
			pause = time.Duration(short / l.rate * float64(time.Second))
		}
		if pause < time.Millisecond {
			pause = time.Millisecond
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pause):
		}
	}
}
