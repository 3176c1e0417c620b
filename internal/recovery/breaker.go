package recovery

import "time"

// circuitBreaker is a two-state global failure limiter. It is not safe for
// concurrent use; the Manager serializes access.
type circuitBreaker struct {
	threshold   int
	resetWindow time.Duration
	countWindow time.Duration

	open      bool
	openedAt  time.Time
	failures  int
	lastReset time.Time
}

func newCircuitBreaker(cfg Config, now time.Time) *circuitBreaker {
	return &circuitBreaker{
		threshold:   cfg.BreakerThreshold,
		resetWindow: cfg.BreakerResetWindow,
		countWindow: cfg.FailureCountWindow,
		lastReset:   now,
	}
}

// isOpen reports the effective state at now without changing anything.
func (b *circuitBreaker) isOpen(now time.Time) bool {
	return b.open && now.Before(b.openedAt.Add(b.resetWindow))
}

// admit closes an expired breaker and reports whether work may proceed.
// The failure count survives an automatic close so that the next failure
// re-opens the breaker.
func (b *circuitBreaker) admit(now time.Time) (allowed, closed bool) {
	if !b.open {
		return true, false
	}
	if b.isOpen(now) {
		return false, false
	}
	b.open = false
	b.openedAt = time.Time{}
	return true, true
}

// recordFailure counts one failure and reports whether the breaker opened.
func (b *circuitBreaker) recordFailure(now time.Time) bool {
	if now.Sub(b.lastReset) > b.countWindow {
		b.failures = 0
		b.lastReset = now
	}
	b.failures++

	if !b.open && b.failures >= b.threshold {
		b.open = true
		b.openedAt = now
		return true
	}
	return false
}

// recordResolution zeroes the counter and reports whether the breaker closed.
func (b *circuitBreaker) recordResolution(now time.Time) bool {
	wasOpen := b.open
	b.open = false
	b.openedAt = time.Time{}
	b.failures = 0
	b.lastReset = now
	return wasOpen
}

func (b *circuitBreaker) forceReset(now time.Time) {
	b.recordResolution(now)
}
