package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitOpenError is returned while a breaker refuses calls.
type CircuitOpenError struct {
	Name       string
	RetryAfter time.Duration
}

func (e *CircuitOpenError) Error() string {
	wait := max(e.RetryAfter, 0)
	if e.Name == "" {
		return fmt.Sprintf("%v: retry in %s", ErrCircuitOpen, wait)
	}
	return fmt.Sprintf("%v for %s: retry in %s", ErrCircuitOpen, e.Name, wait)
}

func (e *CircuitOpenError) Is(target error) bool {
	return target == ErrCircuitOpen
}

type CircuitBreakerState string

const (
	CircuitClosed   CircuitBreakerState = "closed"
	CircuitOpen     CircuitBreakerState = "open"
	CircuitHalfOpen CircuitBreakerState = "half_open"
)

// StateChangeFunc observes breaker transitions. It runs under the breaker
// lock and must not call back into the breaker.
type StateChangeFunc func(name string, from, to CircuitBreakerState)

type CircuitBreakerConfig struct {
	Name              string
	FailureThreshold  int
	SuccessThreshold  int
	OpenTimeout       time.Duration
	HalfOpenMaxFlight int
	OnStateChange     StateChangeFunc
	// IsFailure classifies errors. Nil counts every non-cancel error.
	IsFailure func(error) bool
}

func (c CircuitBreakerConfig) withDefaults() CircuitBreakerConfig {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 3
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = 1
	}
	if c.OpenTimeout <= 0 {
		c.OpenTimeout = 10 * time.Second
	}
	if c.HalfOpenMaxFlight <= 0 {
		c.HalfOpenMaxFlight = 1
	}
	return c
}

type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeFailure
	outcomeCanceled
)

// counts is reset on every state transition.
type counts struct {
	failures  int
	successes int
	trials    int
}

// CircuitBreaker guards calls to one remote endpoint, typically a dial to a
// single ledger node.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig
	now func() time.Time

	mu        sync.Mutex
	state     CircuitBreakerState
	counts    counts
	openUntil time.Time
}

func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{
		cfg:   cfg.withDefaults(),
		now:   time.Now,
		state: CircuitClosed,
	}
}

func (cb *CircuitBreaker) State() CircuitBreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.currentLocked(cb.now())
}

// Execute runs fn unless the breaker is open. Cancellation of ctx is never
// counted against the endpoint.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := cb.admit(); err != nil {
		return err
	}
	err := fn(ctx)
	cb.settle(cb.classify(err))
	return err
}

// Reset forces the breaker closed, e.g. after an operator reconnects a node.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.transitionLocked(CircuitClosed)
}

func (cb *CircuitBreaker) classify(err error) outcome {
	switch {
	case err == nil:
		return outcomeSuccess
	case errors.Is(err, context.Canceled):
		return outcomeCanceled
	case cb.cfg.IsFailure != nil && !cb.cfg.IsFailure(err):
		return outcomeSuccess
	default:
		return outcomeFailure
	}
}

func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.now()
	switch cb.currentLocked(now) {
	case CircuitOpen:
		return cb.openErrLocked(now)
	case CircuitHalfOpen:
		if cb.counts.trials >= cb.cfg.HalfOpenMaxFlight {
			return cb.openErrLocked(now)
		}
		cb.counts.trials++
	}
	return nil
}

func (cb *CircuitBreaker) settle(o outcome) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != CircuitHalfOpen {
		switch o {
		case outcomeSuccess:
			cb.counts.failures = 0
		case outcomeFailure:
			cb.counts.failures++
			if cb.counts.failures >= cb.cfg.FailureThreshold {
				cb.tripLocked()
			}
		}
		return
	}

	if cb.counts.trials > 0 {
		cb.counts.trials--
	}
	switch o {
	case outcomeSuccess:
		cb.counts.successes++
		if cb.counts.successes >= cb.cfg.SuccessThreshold {
			cb.transitionLocked(CircuitClosed)
		}
	case outcomeFailure:
		cb.tripLocked()
	}
}

// currentLocked moves an expired open breaker to half-open.
func (cb *CircuitBreaker) currentLocked(now time.Time) CircuitBreakerState {
	if cb.state == CircuitOpen && !now.Before(cb.openUntil) {
		cb.transitionLocked(CircuitHalfOpen)
	}
	return cb.state
}

func (cb *CircuitBreaker) tripLocked() {
	cb.openUntil = cb.now().Add(cb.cfg.OpenTimeout)
	cb.transitionLocked(CircuitOpen)
}

func (cb *CircuitBreaker) transitionLocked(next CircuitBreakerState) {
	prev := cb.state
	cb.state = next
	cb.counts = counts{}
	if prev != next && cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.cfg.Name, prev, next)
	}
}

func (cb *CircuitBreaker) openErrLocked(now time.Time) error {
	return &CircuitOpenError{
		Name:       cb.cfg.Name,
		RetryAfter: max(cb.openUntil.Sub(now), 0),
	}
}
