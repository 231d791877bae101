// Package circuitbreaker stops calling a failing dependency for a cool-down
// period once too many failures land inside a sliding window.
package circuitbreaker

import (
	"errors"
	"sync"
	"time"

	"media-lending/pkg/clock"
)

var ErrOpen = errors.New("circuit breaker is open")

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

type CircuitBreaker struct {
	maxFailures int
	window      time.Duration
	timeout     time.Duration
	clock       clock.Clock

	mu       sync.Mutex
	state    State
	failures []time.Time
	openedAt time.Time
}

func NewCircuitBreaker(maxFailures int, timeout time.Duration) *CircuitBreaker {
	return NewCircuitBreakerWithWindow(maxFailures, timeout, 60*time.Second)
}

func NewCircuitBreakerWithWindow(maxFailures int, timeout, window time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		maxFailures: maxFailures,
		window:      window,
		timeout:     timeout,
		clock:       clock.Real{},
		state:       StateClosed,
	}
}

// WithClock replaces the time source.
func (cb *CircuitBreaker) WithClock(c clock.Clock) *CircuitBreaker {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.clock = c
	return cb
}

// Execute runs fn unless the breaker is open, in which case fallback runs
// instead (or ErrOpen is returned when fallback is nil). More than maxFailures
// errors within the window, or any error while half-open, opens the breaker.
func (cb *CircuitBreaker) Execute(fn func() error, fallback func() error) error {
	if !cb.allow() {
		if fallback != nil {
			return fallback()
		}
		return ErrOpen
	}

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()
	now := cb.clock.Now()
	if err != nil {
		cb.failures = append(pruned(cb.failures, now.Add(-cb.window)), now)
		if cb.state == StateHalfOpen || len(cb.failures) > cb.maxFailures {
			cb.state = StateOpen
			cb.openedAt = now
		}
		return err
	}
	cb.failures = pruned(cb.failures, now.Add(-cb.window))
	if cb.state == StateHalfOpen {
		cb.state = StateClosed
		cb.failures = cb.failures[:0]
	}
	return nil
}

func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state != StateOpen {
		return true
	}
	if cb.clock.Now().Sub(cb.openedAt) < cb.timeout {
		return false
	}
	cb.state = StateHalfOpen
	cb.failures = cb.failures[:0]
	return true
}

// pruned drops failures at or before cutoff. failures is sorted.
func pruned(failures []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(failures) && !failures[i].After(cutoff) {
		i++
	}
	return failures[i:]
}

func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
