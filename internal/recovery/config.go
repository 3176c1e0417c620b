package recovery

import (
	"fmt"
	"time"
)

// Config holds the tunables of the Manager.
type Config struct {
	PatternWindow        time.Duration
	PatternThreshold     int
	BreakerThreshold     int
	BreakerResetWindow   time.Duration
	FailureCountWindow   time.Duration
	AttemptWindow        time.Duration
	StatisticsWindow     time.Duration
	HistoryRetention     time.Duration
	HistoryMaxEntries    int
	BreakerRetryAfter    time.Duration
	InProgressRetryAfter time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		PatternWindow:        15 * time.Minute,
		PatternThreshold:     5,
		BreakerThreshold:     10,
		BreakerResetWindow:   5 * time.Minute,
		FailureCountWindow:   time.Hour,
		AttemptWindow:        time.Hour,
		StatisticsWindow:     24 * time.Hour,
		HistoryRetention:     24 * time.Hour,
		HistoryMaxEntries:    10000,
		BreakerRetryAfter:    60 * time.Second,
		InProgressRetryAfter: 5 * time.Second,
	}
}

// Validate rejects non-positive thresholds and windows.
func (c Config) Validate() error {
	durations := map[string]time.Duration{
		"pattern_window":          c.PatternWindow,
		"breaker_reset_window":    c.BreakerResetWindow,
		"failure_count_window":    c.FailureCountWindow,
		"attempt_window":          c.AttemptWindow,
		"statistics_window":       c.StatisticsWindow,
		"history_retention":       c.HistoryRetention,
		"breaker_retry_after":     c.BreakerRetryAfter,
		"in_progress_retry_after": c.InProgressRetryAfter,
	}
	for name, d := range durations {
		if d <= 0 {
			return fmt.Errorf("recovery.%s must be positive, got %s", name, d)
		}
	}

	if c.PatternThreshold <= 0 {
		return fmt.Errorf("recovery.pattern_threshold must be positive, got %d", c.PatternThreshold)
	}
	if c.BreakerThreshold <= 0 {
		return fmt.Errorf("recovery.breaker_threshold must be positive, got %d", c.BreakerThreshold)
	}
	if c.HistoryMaxEntries <= 0 {
		return fmt.Errorf("recovery.history_max_entries must be positive, got %d", c.HistoryMaxEntries)
	}
	return nil
}
