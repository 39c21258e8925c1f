package pricing

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Provider phrases that indicate the daily request quota is exhausted.
const (
	dailyLimitHintA = "25 requests per day"
	dailyLimitHintB = "daily rate limit"
)

// RequestPacer is the single point of coordination for all outbound calls to
// the market data provider. It enforces a minimum spacing between calls and
// tracks a daily-quota-exhausted flag that self-clears at day rollover.
type RequestPacer struct {
	limiter       *rate.Limiter
	retryAfterCap time.Duration

	mu                  sync.Mutex
	dailyLimitReachedOn string // YYYY-MM-DD, empty when clear

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRequestPacer creates a pacer enforcing minSpacing between calls and
// capping provider-supplied cooldowns at retryAfterCap.
func NewRequestPacer(minSpacing, retryAfterCap time.Duration) *RequestPacer {
	return &RequestPacer{
		limiter:       rate.NewLimiter(rate.Every(minSpacing), 1),
		retryAfterCap: retryAfterCap,
		now:           time.Now,
		sleep:         sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// AwaitTurn blocks until the minimum spacing since the previous call has
// elapsed. Concurrent callers serialize through the shared limiter.
func (p *RequestPacer) AwaitTurn(ctx context.Context) error {
	return p.limiter.Wait(ctx)
}

// AwaitRetryAfter blocks for a provider-supplied cooldown, capped at the
// configured ceiling to bound the worst-case pause.
func (p *RequestPacer) AwaitRetryAfter(ctx context.Context, retryAfter time.Duration) error {
	if retryAfter <= 0 {
		return nil
	}
	if retryAfter > p.retryAfterCap {
		retryAfter = p.retryAfterCap
	}
	return p.sleep(ctx, retryAfter)
}

// RecordRateLimitMessage inspects provider response text for known
// daily-quota-exhaustion phrases and, if matched, sets the daily limit flag
// for the current calendar day.
func (p *RequestPacer) RecordRateLimitMessage(message string) {
	if strings.TrimSpace(message) == "" {
		return
	}
	normalized := strings.ToLower(message)
	if !strings.Contains(normalized, dailyLimitHintA) && !strings.Contains(normalized, dailyLimitHintB) {
		return
	}
	p.mu.Lock()
	p.dailyLimitReachedOn = p.now().Format("2006-01-02")
	p.mu.Unlock()
}

// IsDailyLimitReached reports whether the provider's daily quota was hit
// today. The flag self-clears once the calendar day rolls over.
func (p *RequestPacer) IsDailyLimitReached() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dailyLimitReachedOn == "" {
		return false
	}
	today := p.now().Format("2006-01-02")
	if p.dailyLimitReachedOn == today {
		return true
	}
	if p.dailyLimitReachedOn < today {
		p.dailyLimitReachedOn = ""
	}
	return false
}
