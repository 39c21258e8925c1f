package pricing

import (
	"sync"
	"time"
)

// CircuitBreaker trips once the failure ratio over a sliding window of
// recorded call outcomes reaches the configured threshold, and short-circuits
// calls until the cool-down elapses. Created once at startup and shared by
// every fetch; resets are purely time-based.
type CircuitBreaker struct {
	mu           sync.Mutex
	failureRatio float64
	windowSize   int
	cooldown     time.Duration

	outcomes []bool // ring buffer, true = failure
	next     int
	recorded int
	open     bool
	openedAt time.Time

	now func() time.Time
}

// NewCircuitBreaker creates a breaker that opens when at least
// failureRatio of the last windowSize recorded outcomes failed.
func NewCircuitBreaker(failureRatio float64, windowSize int, cooldown time.Duration) *CircuitBreaker {
	if windowSize < 1 {
		windowSize = 1
	}
	return &CircuitBreaker{
		failureRatio: failureRatio,
		windowSize:   windowSize,
		cooldown:     cooldown,
		outcomes:     make([]bool, windowSize),
		now:          time.Now,
	}
}

// Allow reports whether a call may proceed. An open breaker auto-resets to
// closed (with a cleared window) once the cool-down has elapsed.
func (b *CircuitBreaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.open {
		return true
	}
	if b.now().Sub(b.openedAt) < b.cooldown {
		return false
	}
	b.open = false
	b.outcomes = make([]bool, b.windowSize)
	b.next = 0
	b.recorded = 0
	return true
}

// RecordSuccess records a successful call outcome.
func (b *CircuitBreaker) RecordSuccess() {
	b.record(false)
}

// RecordFailure records a failed call outcome and trips the breaker when the
// window's failure ratio reaches the threshold.
func (b *CircuitBreaker) RecordFailure() {
	b.record(true)
}

func (b *CircuitBreaker) record(failure bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.outcomes[b.next] = failure
	b.next = (b.next + 1) % b.windowSize
	if b.recorded < b.windowSize {
		b.recorded++
	}
	if b.recorded < b.windowSize {
		return
	}
	failures := 0
	for _, failed := range b.outcomes {
		if failed {
			failures++
		}
	}
	if float64(failures)/float64(b.windowSize) >= b.failureRatio {
		b.open = true
		b.openedAt = b.now()
	}
}
