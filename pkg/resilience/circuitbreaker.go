// Package resilience provides circuit breaker and rate limiter primitives.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Circuit breaker states.
type State int

const (
	StateClosed   State = iota // normal operation
	StateOpen                  // tripping, reject calls
	StateHalfOpen              // probing for recovery
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

var ErrCircuitOpen = errors.New("circuit breaker is open")

// BreakerOpts configures a circuit breaker.
type BreakerOpts struct {
	// Name identifies the protected dependency in logs and stats.
	Name string
	// FailThreshold is how many consecutive failures trip the breaker.
	FailThreshold int
	// Timeout is how long the breaker stays open before probing.
	Timeout time.Duration
	// SuccessThreshold is how many consecutive half-open successes close it.
	SuccessThreshold int
	// Logger receives state-transition events. Defaults to slog.Default().
	Logger *slog.Logger
}

// DefaultBreakerOpts provides sensible defaults.
var DefaultBreakerOpts = BreakerOpts{
	FailThreshold:    5,
	Timeout:          30 * time.Second,
	SuccessThreshold: 2,
}

// Breaker implements a circuit breaker with closed/open/half-open states.
//
// In the closed state each failure increments a consecutive-failure counter
// and each success decrements it (floor zero), so a dependency has to fail
// FailThreshold times in a row to trip the breaker. While open, calls are
// rejected with ErrCircuitOpen until Timeout has passed since the last
// failure; the breaker then admits probe calls, closing again only after
// SuccessThreshold consecutive successes. A single probe failure reopens it.
type Breaker struct {
	mu          sync.Mutex
	opts        BreakerOpts
	state       State
	failures    int
	successes   int
	lastFailure time.Time
	calls       int64
	rejected    int64
	log         *slog.Logger
	now         func() time.Time // for testing
}

// NewBreaker creates a circuit breaker with the given options.
func NewBreaker(opts BreakerOpts) *Breaker {
	if opts.FailThreshold <= 0 {
		opts.FailThreshold = DefaultBreakerOpts.FailThreshold
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultBreakerOpts.Timeout
	}
	if opts.SuccessThreshold <= 0 {
		opts.SuccessThreshold = DefaultBreakerOpts.SuccessThreshold
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Breaker{opts: opts, log: log, now: time.Now}
}

// State returns the current breaker state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentState()
}

// currentState returns state, transitioning open→half-open once the open
// timeout has elapsed since the last failure. Must hold mu.
func (b *Breaker) currentState() State {
	if b.state == StateOpen && b.now().Sub(b.lastFailure) > b.opts.Timeout {
		b.transition(StateHalfOpen)
	}
	return b.state
}

// transition moves to a new state and resets the counters the new state
// relies on. Must hold mu.
func (b *Breaker) transition(to State) {
	from := b.state
	b.state = to
	b.successes = 0
	if to == StateClosed {
		b.failures = 0
	}
	b.log.Info("circuit breaker state change",
		"breaker", b.opts.Name, "from", from.String(), "to", to.String())
}

// Call executes f through the circuit breaker. When the breaker is open it
// returns ErrCircuitOpen without invoking f.
func (b *Breaker) Call(ctx context.Context, f func(context.Context) error) error {
	b.mu.Lock()
	b.calls++
	if b.currentState() == StateOpen {
		b.rejected++
		b.mu.Unlock()
		return ErrCircuitOpen
	}
	b.mu.Unlock()

	err := f(ctx)

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.onFailure()
		return err
	}
	b.onSuccess()
	return nil
}

// onFailure must hold mu.
func (b *Breaker) onFailure() {
	b.lastFailure = b.now()
	switch b.state {
	case StateHalfOpen:
		b.transition(StateOpen)
	case StateClosed:
		b.failures++
		if b.failures >= b.opts.FailThreshold {
			b.transition(StateOpen)
		}
	}
}

// onSuccess must hold mu. A success that started before the breaker opened
// and lands while it is open is ignored.
func (b *Breaker) onSuccess() {
	switch b.state {
	case StateHalfOpen:
		b.successes++
		if b.successes >= b.opts.SuccessThreshold {
			b.transition(StateClosed)
		}
	case StateClosed:
		if b.failures > 0 {
			b.failures--
		}
	}
}

// Execute runs f through the breaker and converts every failure mode into
// fallback's value: f's own error, a rejection while open, or a timeout.
// The fallback must not fail; the breaker returns whatever it produces.
func Execute[T any](ctx context.Context, b *Breaker, f func(context.Context) (T, error), fallback func(error) T) T {
	var out T
	err := b.Call(ctx, func(ctx context.Context) error {
		v, ferr := f(ctx)
		if ferr != nil {
			return ferr
		}
		out = v
		return nil
	})
	if err != nil {
		return fallback(err)
	}
	return out
}

// BreakerStats is a point-in-time snapshot for health reporting.
type BreakerStats struct {
	Name     string `json:"name"`
	State    string `json:"state"`
	Failures int    `json:"failures"`
	Calls    int64  `json:"calls"`
	Rejected int64  `json:"rejected"`
}

// Stats returns a snapshot of the breaker's counters.
func (b *Breaker) Stats() BreakerStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BreakerStats{
		Name:     b.opts.Name,
		State:    b.currentState().String(),
		Failures: b.failures,
		Calls:    b.calls,
		Rejected: b.rejected,
	}
}
