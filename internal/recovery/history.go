package recovery

import (
	"time"

	"extension-recovery/internal/common/errors"
)

// history holds completed attempts in insertion order, bounded by age and
// by entry count.
type history struct {
	retention  time.Duration
	maxEntries int
	attempts   []*RecoveryAttempt
}

func newHistory(retention time.Duration, maxEntries int) *history {
	return &history{retention: retention, maxEntries: maxEntries}
}

func (h *history) add(a *RecoveryAttempt, now time.Time) {
	h.attempts = append(h.attempts, a)
	h.prune(now)
}

func (h *history) prune(now time.Time) {
	cutoff := now.Add(-h.retention)
	kept := h.attempts[:0]
	for _, a := range h.attempts {
		if !a.StartedAt.Before(cutoff) {
			kept = append(kept, a)
		}
	}
	for i := len(kept); i < len(h.attempts); i++ {
		h.attempts[i] = nil
	}
	if over := len(kept) - h.maxEntries; over > 0 {
		for i := 0; i < over; i++ {
			kept[i] = nil
		}
		kept = kept[over:]
	}
	h.attempts = kept
}

// countFor returns attempts of strategy against code started after since.
func (h *history) countFor(code errors.ErrorCode, strategy string, since time.Time) int {
	n := 0
	for _, a := range h.attempts {
		if a.Error.Code == code && a.StrategyName == strategy && a.StartedAt.After(since) {
			n++
		}
	}
	return n
}

func (h *history) since(t time.Time) []*RecoveryAttempt {
	var out []*RecoveryAttempt
	for _, a := range h.attempts {
		if !a.StartedAt.Before(t) {
			out = append(out, a)
		}
	}
	return out
}

func (h *history) len() int {
	return len(h.attempts)
}

func (h *history) clear() {
	h.attempts = nil
}
