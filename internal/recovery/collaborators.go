package recovery

import (
	"context"
	"time"

	"extension-recovery/internal/common/errors"
)

// AuthManager refreshes the credentials used for extension calls.
// An empty token with a nil error means the refresh was refused.
type AuthManager interface {
	RefreshToken(ctx context.Context) (string, error)
}

// ServiceRecoveryManager asks a named service to restart or recover.
type ServiceRecoveryManager interface {
	ForceRecovery(ctx context.Context, serviceName string) (bool, error)
}

// CacheManager looks up previously stored results. A nil value with a
// nil error is a miss.
type CacheManager interface {
	Get(ctx context.Context, key string) (interface{}, error)
}

// DegradationManager marks an operation as running in degraded mode.
type DegradationManager interface {
	ApplyDegradation(ctx context.Context, category errors.ErrorCategory, operation string) error
}

// Escalation is the alert published when an error needs an administrator.
type Escalation struct {
	ID               string                 `json:"id"`
	Code             errors.ErrorCode       `json:"error_code"`
	Category         errors.ErrorCategory   `json:"error_category"`
	Severity         errors.ErrorSeverity   `json:"error_severity"`
	Message          string                 `json:"message"`
	TechnicalDetails string                 `json:"technical_details,omitempty"`
	Endpoint         string                 `json:"endpoint,omitempty"`
	Operation        string                 `json:"operation,omitempty"`
	UserID           string                 `json:"user_id,omitempty"`
	TenantID         string                 `json:"tenant_id,omitempty"`
	Context          map[string]interface{} `json:"context,omitempty"`
	Timestamp        time.Time              `json:"timestamp"`
	EscalatedAt      time.Time              `json:"escalated_at"`
}

// Alerter delivers escalations to people or systems outside the process.
type Alerter interface {
	Alert(ctx context.Context, escalation *Escalation) error
}

// Rejection reasons passed to Recorder.ObserveRejection.
const (
	RejectCircuitOpen = "circuit_open"
	RejectInProgress  = "in_progress"
	RejectNoStrategy  = "no_strategy"
)

// Recorder receives recovery telemetry.
type Recorder interface {
	ObserveAttempt(ctx context.Context, strategy string, tag StrategyTag, success bool, duration time.Duration)
	ObserveRejection(ctx context.Context, reason string)
	ObserveCircuitState(ctx context.Context, open bool)
	ObservePattern(ctx context.Context, patternKey string, count int)
}

type nopRecorder struct{}

func (nopRecorder) ObserveAttempt(context.Context, string, StrategyTag, bool, time.Duration) {}
func (nopRecorder) ObserveRejection(context.Context, string)                                 {}
func (nopRecorder) ObserveCircuitState(context.Context, bool)                                {}
func (nopRecorder) ObservePattern(context.Context, string, int)                              {}

// MultiRecorder fans telemetry out to several recorders.
type MultiRecorder []Recorder

func (m MultiRecorder) ObserveAttempt(ctx context.Context, strategy string, tag StrategyTag, success bool, duration time.Duration) {
	for _, r := range m {
		r.ObserveAttempt(ctx, strategy, tag, success, duration)
	}
}

func (m MultiRecorder) ObserveRejection(ctx context.Context, reason string) {
	for _, r := range m {
		r.ObserveRejection(ctx, reason)
	}
}

func (m MultiRecorder) ObserveCircuitState(ctx context.Context, open bool) {
	for _, r := range m {
		r.ObserveCircuitState(ctx, open)
	}
}

func (m MultiRecorder) ObservePattern(ctx context.Context, patternKey string, count int) {
	for _, r := range m {
		r.ObservePattern(ctx, patternKey, count)
	}
}
