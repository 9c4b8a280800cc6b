package worker

import (
	"fmt"
	"sync"
	"time"
)

// breakerState is the circuit breaker's own Closed/Open/HalfOpen state
// machine: once offload failures run past a threshold the breaker opens
// and fails fast instead of queuing more tasks against a Worker that is
// clearly down.
type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

// CircuitBreaker guards the Worker Offload Client.
type CircuitBreaker struct {
	mu           sync.Mutex
	state        breakerState
	failures     int
	threshold    int
	resetAfter   time.Duration
	openedAt     time.Time
}

// NewCircuitBreaker opens after threshold consecutive failures and allows a
// single trial call again after resetAfter.
func NewCircuitBreaker(threshold int, resetAfter time.Duration) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 3
	}
	if resetAfter <= 0 {
		resetAfter = 30 * time.Second
	}
	return &CircuitBreaker{threshold: threshold, resetAfter: resetAfter}
}

// ErrOpen is returned by Allow when the breaker is open.
var ErrOpen = fmt.Errorf("worker: circuit breaker is open")

// Allow reports whether a call may proceed, transitioning Open->HalfOpen
// once resetAfter has elapsed.
func (b *CircuitBreaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case breakerOpen:
		if time.Since(b.openedAt) >= b.resetAfter {
			b.state = breakerHalfOpen
			return nil
		}
		return ErrOpen
	default:
		return nil
	}
}

// RecordSuccess closes the breaker and resets the failure count.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = breakerClosed
	b.failures = 0
}

// RecordFailure increments the failure count, opening the breaker once it
// reaches threshold (or immediately, from HalfOpen).
func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == breakerHalfOpen {
		b.state = breakerOpen
		b.openedAt = time.Now()
		return
	}
	b.failures++
	if b.failures >= b.threshold {
		b.state = breakerOpen
		b.openedAt = time.Now()
	}
}
