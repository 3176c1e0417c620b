// Package recovery selects and runs recovery strategies for classified
// extension errors and tracks the outcome of every attempt.
package recovery

import (
	"time"

	"extension-recovery/internal/common/errors"
)

// StrategyTag labels the kind of recovery a result represents.
type StrategyTag string

const (
	TagRetryWithRefresh    StrategyTag = "retry_with_refresh"
	TagRetryWithBackoff    StrategyTag = "retry_with_backoff"
	TagFallbackToReadOnly  StrategyTag = "fallback_to_readonly"
	TagFallbackToCached    StrategyTag = "fallback_to_cached"
	TagGracefulDegradation StrategyTag = "graceful_degradation"
	TagServiceRestart      StrategyTag = "service_restart"
	TagConnectionReset     StrategyTag = "connection_reset"
	TagEscalateToAdmin     StrategyTag = "escalate_to_admin"
	TagNoRecovery          StrategyTag = "no_recovery"
)

// Resolves reports whether a successful result with this tag means the
// underlying fault is gone, as opposed to being masked by fallback data.
func (t StrategyTag) Resolves() bool {
	switch t {
	case TagRetryWithRefresh, TagServiceRestart, TagConnectionReset:
		return true
	default:
		return false
	}
}

// RecoveryResult is what the caller gets back from HandleError.
// A zero RetryAfter means no delay was suggested.
type RecoveryResult struct {
	Success            bool          `json:"success"`
	Strategy           StrategyTag   `json:"strategy"`
	Message            string        `json:"message"`
	FallbackData       interface{}   `json:"fallback_data,omitempty"`
	RetryAfter         time.Duration `json:"-"`
	RequiresUserAction bool          `json:"requires_user_action"`
	Escalated          bool          `json:"escalated"`
}

// RetryAfterSeconds returns RetryAfter as fractional seconds.
func (r *RecoveryResult) RetryAfterSeconds() float64 {
	return r.RetryAfter.Seconds()
}

func failed(tag StrategyTag, message string) *RecoveryResult {
	return &RecoveryResult{Success: false, Strategy: tag, Message: message}
}

// RecoveryAttempt records one strategy execution. It sits in the active
// set while the strategy runs and moves to history once it completes.
type RecoveryAttempt struct {
	ID               string
	RecoveryKey      string
	Error            *errors.ExtensionError
	StrategyName     string
	Tag              StrategyTag
	AttemptNumber    int
	StartedAt        time.Time
	CompletedAt      time.Time
	Success          bool
	ErrorMessage     string
	RecoveryData     *RecoveryResult
	NextAttemptDelay time.Duration
}

// Completed reports whether the attempt has finished.
func (a *RecoveryAttempt) Completed() bool {
	return !a.CompletedAt.IsZero()
}

// StrategyStats aggregates attempts of a single strategy.
type StrategyStats struct {
	Total       int     `json:"total"`
	Successful  int     `json:"successful"`
	SuccessRate float64 `json:"success_rate"`
}

// Statistics is a point-in-time summary of recovery activity.
type Statistics struct {
	TotalAttempts24h       int                      `json:"total_attempts_24h"`
	SuccessfulAttempts24h  int                      `json:"successful_attempts_24h"`
	FailedAttempts24h      int                      `json:"failed_attempts_24h"`
	SuccessRate24h         float64                  `json:"success_rate_24h"`
	ActiveRecoveries       int                      `json:"active_recoveries"`
	StrategyStatistics     map[string]StrategyStats `json:"strategy_statistics"`
	ErrorPatterns          map[string]int           `json:"error_patterns"`
	CircuitBreakerOpen     bool                     `json:"circuit_breaker_open"`
	CircuitBreakerOpenedAt *time.Time               `json:"circuit_breaker_opened_at"`
	GlobalErrorCount       int                      `json:"global_error_count"`
	LastErrorReset         time.Time                `json:"last_error_reset"`
}

// ActiveRecovery describes an in-flight attempt.
type ActiveRecovery struct {
	RecoveryKey     string               `json:"recovery_key"`
	ErrorCode       errors.ErrorCode     `json:"error_code"`
	ErrorCategory   errors.ErrorCategory `json:"error_category"`
	Strategy        string               `json:"strategy"`
	AttemptNumber   int                  `json:"attempt_number"`
	StartedAt       time.Time            `json:"started_at"`
	DurationSeconds float64              `json:"duration_seconds"`
}
