// Package resilience provides circuit breaker and provider failover primitives.
//
// The central type is [CircuitBreaker], a classic three-state breaker
// (closed → open → half-open). The speech recognizer uses one to stop
// restarting a session that keeps failing, and [FallbackGroup] composes
// several providers of one kind so that a failing primary is bypassed in
// favour of healthy fallbacks.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Allow] and
// [CircuitBreaker.Execute] while the breaker rejects calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects calls until the reset timeout has passed since the
	// last failure.
	StateOpen

	// StateHalfOpen admits a limited number of probe calls. Enough successes
	// close the breaker; any failure opens it again.
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
	}
	return "unknown"
}

// Defaults applied by [NewCircuitBreaker] to zero config fields.
const (
	DefaultMaxFailures  = 5
	DefaultResetTimeout = 30 * time.Second
	DefaultHalfOpenMax  = 3
)

// CircuitBreakerConfig holds tuning knobs for a [CircuitBreaker].
type CircuitBreakerConfig struct {
	// Name labels log lines, e.g. "wake" or "deepgram".
	Name string

	// MaxFailures is the number of consecutive failures that open a closed
	// breaker.
	MaxFailures int

	// ResetTimeout is how long an open breaker waits before probing.
	ResetTimeout time.Duration

	// HalfOpenMax is both the number of probes admitted in the half-open
	// state and the number of successes needed to close.
	HalfOpenMax int

	// Now replaces time.Now, for tests.
	Now func() time.Time
}

// CircuitBreaker implements the three-state circuit breaker pattern.
type CircuitBreaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration
	halfOpenMax  int
	now          func() time.Time

	mu        sync.Mutex
	state     State
	failures  int // consecutive failures while closed
	openedAt  time.Time
	probes    int // probes admitted in the current half-open period
	successes int // successful probes in the current half-open period
}

// NewCircuitBreaker creates a closed [CircuitBreaker]. Zero config fields
// take the package defaults.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	cb := &CircuitBreaker{
		name:         cfg.Name,
		maxFailures:  cfg.MaxFailures,
		resetTimeout: cfg.ResetTimeout,
		halfOpenMax:  cfg.HalfOpenMax,
		now:          cfg.Now,
	}
	if cb.maxFailures <= 0 {
		cb.maxFailures = DefaultMaxFailures
	}
	if cb.resetTimeout <= 0 {
		cb.resetTimeout = DefaultResetTimeout
	}
	if cb.halfOpenMax <= 0 {
		cb.halfOpenMax = DefaultHalfOpenMax
	}
	if cb.now == nil {
		cb.now = time.Now
	}
	return cb
}

// Execute runs fn if the breaker admits the call and records its outcome.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.Allow(); err != nil {
		return err
	}
	err := fn()
	cb.Report(err)
	return err
}

// Allow admits or rejects a call. Every nil return must be followed by
// exactly one [CircuitBreaker.Report]. The split form serves operations whose
// outcome arrives later, such as a recognition session that fails after it
// has started.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen {
		if cb.now().Sub(cb.openedAt) < cb.resetTimeout {
			return ErrCircuitOpen
		}
		cb.transition(StateHalfOpen)
	}
	if cb.state == StateHalfOpen {
		if cb.probes >= cb.halfOpenMax {
			return ErrCircuitOpen
		}
		cb.probes++
	}
	return nil
}

// Report records the outcome of a call admitted by [CircuitBreaker.Allow].
func (cb *CircuitBreaker) Report(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch {
	case err != nil && cb.state == StateHalfOpen:
		cb.trip()
	case err != nil:
		cb.failures++
		if cb.failures >= cb.maxFailures {
			cb.trip()
		}
	case cb.state == StateHalfOpen:
		cb.successes++
		if cb.successes >= cb.halfOpenMax {
			cb.transition(StateClosed)
		}
	default:
		cb.failures = 0
	}
}

// State returns the breaker's state. An open breaker whose reset timeout has
// passed reports [StateHalfOpen]; the transition itself happens on the next
// [CircuitBreaker.Allow].
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
	cb.transition(StateClosed)
}

// trip opens the breaker. Must be called with cb.mu held.
func (cb *CircuitBreaker) trip() {
	cb.openedAt = cb.now()
	cb.transition(StateOpen)
}

// transition enters to and clears the counters of the state being left.
// Must be called with cb.mu held.
func (cb *CircuitBreaker) transition(to State) {
	from := cb.state
	cb.state = to
	cb.probes, cb.successes = 0, 0
	if to == StateClosed {
		cb.failures = 0
	}
	if from == to {
		return
	}

	log := slog.Default().With("breaker", cb.name, "from", from.String(), "to", to.String())
	if to == StateOpen {
		log.Warn("resilience: circuit opened", "failures", cb.failures, "retry_in", cb.resetTimeout)
		return
	}
	log.Info("resilience: circuit state changed")
}
