package orchestrator

import "sync"

// CircuitBreaker counts consecutive task failures across a run. Once the count
// reaches the threshold it reports aborted for the rest of the run.
type CircuitBreaker struct {
	mu          sync.Mutex
	threshold   int
	consecutive int
	aborted     bool
}

// NewCircuitBreaker creates a breaker that trips after threshold consecutive failures.
// A threshold below 1 is treated as 1.
func NewCircuitBreaker(threshold int) *CircuitBreaker {
	if threshold < 1 {
		threshold = 1
	}
	return &CircuitBreaker{threshold: threshold}
}

// RecordSuccess resets the consecutive failure count. It does not clear an abort.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutive = 0
}

// RecordFailure increments the consecutive failure count and reports whether
// this call is the one that tripped the breaker.
func (b *CircuitBreaker) RecordFailure() (tripped bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutive++
	if !b.aborted && b.consecutive >= b.threshold {
		b.aborted = true
		return true
	}
	return false
}

// Aborted reports whether the breaker has tripped.
func (b *CircuitBreaker) Aborted() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.aborted
}

// Consecutive returns the current consecutive failure count.
func (b *CircuitBreaker) Consecutive() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.consecutive
}
