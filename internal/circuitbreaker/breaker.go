package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

type State int

const (
	StateClosed   State = iota // Normal operation
	StateOpen                  // Blocking requests
	StateHalfOpen              // Testing with one request
)

// ErrCircuitOpen is returned by Acquire when the circuit rejects the call
// before it reaches the backend.
var ErrCircuitOpen = errors.New("circuit open")

// Config holds the breaker thresholds. Cooldown grows exponentially from
// BaseCooldown with every consecutive open, capped at MaxCooldown.
type Config struct {
	OpenThreshold int
	BaseCooldown  time.Duration
	MaxCooldown   time.Duration
}

// CircuitBreaker is a per-provider failure-tracking state machine. It is
// driven only by real call outcomes, never by health probes.
type CircuitBreaker struct {
	mutex sync.Mutex
	cfg   Config
	now   func() time.Time

	state            State
	failures         int
	consecutiveOpens int
	openedAt         time.Time
	cooldown         time.Duration
	halfOpenInFlight bool
}

func NewCircuitBreaker(cfg Config) *CircuitBreaker {
	return &CircuitBreaker{
		cfg:   cfg,
		now:   time.Now,
		state: StateClosed,
	}
}

// Acquire asks the breaker to admit one attempt.
//
// Closed admits unconditionally. Open rejects with ErrCircuitOpen until the
// cooldown elapses; the first caller after cooldown claims the single
// HalfOpen probe slot, every other concurrent caller is rejected as if the
// circuit were still Open.
func (cb *CircuitBreaker) Acquire() error {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	switch cb.state {
	case StateClosed:
		return nil

	case StateOpen:
		if cb.now().Sub(cb.openedAt) < cb.cooldown {
			return ErrCircuitOpen
		}
		// Claim the single probe slot while transitioning to half-open.
		cb.state = StateHalfOpen
		cb.halfOpenInFlight = true
		return nil

	case StateHalfOpen:
		if cb.halfOpenInFlight {
			return ErrCircuitOpen
		}
		cb.halfOpenInFlight = true
		return nil

	default:
		return nil
	}
}

// Release abandons an admitted attempt without recording an outcome, for
// callers that never learned one (the request was cancelled mid-flight). An
// abandoned half-open trial frees the slot for the next caller; the circuit
// stays half-open.
func (cb *CircuitBreaker) Release() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	if cb.state == StateHalfOpen {
		cb.halfOpenInFlight = false
	}
}

// Cooling reports whether the circuit is open and still inside its cooldown.
// Once the cooldown elapses an open circuit stops cooling, so rankings keep
// the provider eligible and the next Acquire claims the half-open trial.
func (cb *CircuitBreaker) Cooling() bool {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	return cb.state == StateOpen && cb.now().Sub(cb.openedAt) < cb.cooldown
}

// RecordSuccess reports a successful real call. A half-open probe success
// closes the circuit and resets both the failure count and the consecutive
// open counter.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.failures = 0

	if cb.state == StateHalfOpen {
		cb.state = StateClosed
		cb.consecutiveOpens = 0
		cb.halfOpenInFlight = false
	}
}

// RecordFailure reports a failed real call. Reaching OpenThreshold in the
// closed state trips the circuit; a half-open probe failure reopens it with
// the cooldown doubled, capped at MaxCooldown.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	switch cb.state {
	case StateClosed:
		cb.failures++
		if cb.failures >= cb.cfg.OpenThreshold {
			cb.open()
		}

	case StateHalfOpen:
		cb.halfOpenInFlight = false
		cb.open()
	}
}

// open must be called with the mutex held.
func (cb *CircuitBreaker) open() {
	cooldown := cb.cfg.BaseCooldown
	for i := 0; i < cb.consecutiveOpens; i++ {
		cooldown *= 2
		if cooldown >= cb.cfg.MaxCooldown {
			cooldown = cb.cfg.MaxCooldown
			break
		}
	}

	cb.state = StateOpen
	cb.openedAt = cb.now()
	cb.cooldown = cooldown
	cb.failures = 0
	cb.consecutiveOpens++
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() State {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return cb.state
}

// Cooldown returns the cooldown set at the most recent open.
func (cb *CircuitBreaker) Cooldown() time.Duration {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return cb.cooldown
}

// Failures returns the current closed-state failure count.
func (cb *CircuitBreaker) Failures() int {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return cb.failures
}

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF-OPEN"
	default:
		return "UNKNOWN"
	}
}
