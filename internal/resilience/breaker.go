// Package resilience protects the assistant from a dialogue backend that keeps
// failing: after a run of failures calls are rejected outright until a cool-off
// period has passed.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by Execute while the breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
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

// Config holds tuning knobs for a CircuitBreaker.
type Config struct {
	// Name labels log lines.
	Name string

	// MaxFailures is the number of consecutive failures that opens the
	// breaker. Default: 3.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open before letting a probe
	// through. Default: 30s.
	ResetTimeout time.Duration

	// Ignore, when set, reports errors that should not count as failures,
	// such as a caller cancelling the request.
	Ignore func(error) bool
}

// CircuitBreaker is a three-state breaker: closed, open, half-open. In the
// half-open state a single probe decides whether to close or re-open.
type CircuitBreaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration
	ignore       func(error) bool
	now          func() time.Time

	mu            sync.Mutex
	state         State
	failures      int
	openedAt      time.Time
	probeInFlight bool
}

func NewCircuitBreaker(cfg Config) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	return &CircuitBreaker{
		name:         cfg.Name,
		maxFailures:  cfg.MaxFailures,
		resetTimeout: cfg.ResetTimeout,
		ignore:       cfg.Ignore,
		now:          time.Now,
	}
}

// Execute runs fn unless the breaker is open.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	cb.mu.Lock()
	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.openedAt) < cb.resetTimeout {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
		cb.state = StateHalfOpen
		cb.probeInFlight = false
		slog.Info("circuit breaker transitioning to half-open", "name", cb.name)
		fallthrough
	case StateHalfOpen:
		if cb.probeInFlight {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
		cb.probeInFlight = true
	}
	cb.mu.Unlock()

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()

	probe := cb.state == StateHalfOpen
	cb.probeInFlight = false

	if err != nil && (cb.ignore == nil || !cb.ignore(err)) {
		cb.failures++
		if probe || cb.failures >= cb.maxFailures {
			cb.state = StateOpen
			cb.openedAt = cb.now()
			slog.Warn("circuit breaker opened", "name", cb.name, "consecutive_failures", cb.failures)
		}
		return err
	}

	if err == nil {
		if probe {
			slog.Info("circuit breaker closed after successful probe", "name", cb.name)
		}
		cb.state = StateClosed
		cb.failures = 0
	}
	return err
}

// State returns the current state. An open breaker whose timeout has elapsed
// reports half-open.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen && cb.now().Sub(cb.openedAt) >= cb.resetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Reset forces the breaker closed.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = StateClosed
	cb.failures = 0
	cb.probeInFlight = false
}
