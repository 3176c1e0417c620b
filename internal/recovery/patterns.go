package recovery

import "time"

// patternTracker keeps recent error timestamps per category|code.
type patternTracker struct {
	window    time.Duration
	threshold int
	seen      map[string][]time.Time
}

func newPatternTracker(window time.Duration, threshold int) *patternTracker {
	return &patternTracker{
		window:    window,
		threshold: threshold,
		seen:      make(map[string][]time.Time),
	}
}

// track records ts under key, drops entries older than the window and
// returns the surviving count and whether it reached the threshold.
func (p *patternTracker) track(key string, ts, now time.Time) (int, bool) {
	cutoff := now.Add(-p.window)

	kept := p.seen[key][:0]
	for _, t := range append(p.seen[key], ts) {
		if !t.Before(cutoff) {
			kept = append(kept, t)
		}
	}

	if len(kept) == 0 {
		delete(p.seen, key)
		return 0, false
	}
	p.seen[key] = kept
	return len(kept), len(kept) >= p.threshold
}

// counts returns entries per key not older than since.
func (p *patternTracker) counts(since time.Time) map[string]int {
	out := make(map[string]int, len(p.seen))
	for key, stamps := range p.seen {
		n := 0
		for _, t := range stamps {
			if !t.Before(since) {
				n++
			}
		}
		if n > 0 {
			out[key] = n
		}
	}
	return out
}

func (p *patternTracker) clear() {
	p.seen = make(map[string][]time.Time)
}
