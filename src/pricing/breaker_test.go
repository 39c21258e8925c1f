package pricing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBreakerTripsAtFailureRatio(t *testing.T) {
	breaker := NewCircuitBreaker(0.5, 4, time.Minute)

	breaker.RecordSuccess()
	breaker.RecordFailure()
	breaker.RecordSuccess()
	assert.True(t, breaker.Allow(), "window not yet full")

	breaker.RecordFailure()
	assert.False(t, breaker.Allow(), "2/4 failures reaches the 0.5 ratio")
}

func TestBreakerStaysClosedBelowRatio(t *testing.T) {
	breaker := NewCircuitBreaker(0.75, 4, time.Minute)

	breaker.RecordSuccess()
	breaker.RecordFailure()
	breaker.RecordSuccess()
	breaker.RecordFailure()
	assert.True(t, breaker.Allow(), "2/4 failures is below the 0.75 ratio")
}

func TestBreakerOpensAndShortCircuits(t *testing.T) {
	breaker := NewCircuitBreaker(1.0, 1, time.Minute)

	assert.True(t, breaker.Allow())
	breaker.RecordFailure()
	assert.False(t, breaker.Allow(), "open after single failure with window 1")
	assert.False(t, breaker.Allow(), "stays open within cooldown")
}

func TestBreakerResetsAfterCooldown(t *testing.T) {
	breaker := NewCircuitBreaker(1.0, 2, 30*time.Second)

	opened := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	current := opened
	breaker.now = func() time.Time { return current }

	breaker.RecordFailure()
	breaker.RecordFailure()
	assert.False(t, breaker.Allow())

	current = opened.Add(29 * time.Second)
	assert.False(t, breaker.Allow(), "still inside cooldown")

	current = opened.Add(31 * time.Second)
	assert.True(t, breaker.Allow(), "cooldown elapsed, breaker closes")

	// The window was cleared on reset: one new failure does not re-trip a
	// window of two.
	breaker.RecordFailure()
	assert.True(t, breaker.Allow())
	breaker.RecordFailure()
	assert.False(t, breaker.Allow())
}
