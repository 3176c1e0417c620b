// Package errors provides the typed fault model used by the recovery manager.
package errors

import (
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Classification
// ==========================

// ErrorCategory is the coarse kind of failure.
type ErrorCategory string

const (
	CategoryAuthentication     ErrorCategory = "authentication"
	CategoryServiceUnavailable ErrorCategory = "service_unavailable"
	CategoryNetwork            ErrorCategory = "network"
	CategoryPermission         ErrorCategory = "permission"
	CategoryConfiguration      ErrorCategory = "configuration"
	CategoryRateLimit          ErrorCategory = "rate_limit"
	CategoryTimeout            ErrorCategory = "timeout"
	CategoryUnknown            ErrorCategory = "unknown"
)

// ErrorSeverity ranks how urgent a failure is.
type ErrorSeverity string

const (
	SeverityLow      ErrorSeverity = "low"
	SeverityMedium   ErrorSeverity = "medium"
	SeverityHigh     ErrorSeverity = "high"
	SeverityCritical ErrorSeverity = "critical"
)

// ErrorCode is a short machine-readable identifier for a failure.
type ErrorCode string

const (
	ErrCodeTokenExpired       ErrorCode = "TOKEN_EXPIRED"
	ErrCodeTokenInvalid       ErrorCode = "TOKEN_INVALID"
	ErrCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	ErrCodeNetworkError       ErrorCode = "NETWORK_ERROR"
	ErrCodePermissionDenied   ErrorCode = "PERMISSION_DENIED"
	ErrCodeTimeout            ErrorCode = "TIMEOUT"
	ErrCodeInternal           ErrorCode = "INTERNAL_ERROR"
)

// DefaultMaxRetries is the retry ceiling stamped on new errors.
const DefaultMaxRetries = 3

// ==========================
// 2. Error Record
// ==========================

// ExtensionError is a classified failure of an extension operation.
// Only RetryCount is expected to change after construction.
type ExtensionError struct {
	Category         ErrorCategory          `json:"category"`
	Severity         ErrorSeverity          `json:"severity"`
	Code             ErrorCode              `json:"code"`
	Message          string                 `json:"message"`
	TechnicalDetails string                 `json:"technical_details,omitempty"`
	Context          map[string]interface{} `json:"context,omitempty"`
	Timestamp        time.Time              `json:"timestamp"`
	Endpoint         string                 `json:"endpoint,omitempty"`
	Operation        string                 `json:"operation,omitempty"`
	UserID           string                 `json:"user_id,omitempty"`
	TenantID         string                 `json:"tenant_id,omitempty"`
	RetryCount       int                    `json:"retry_count"`
	MaxRetries       int                    `json:"max_retries"`

	cause error
}

func (e *ExtensionError) Error() string {
	return fmt.Sprintf("ExtensionError[%s/%s]: %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying fault, if any.
func (e *ExtensionError) Unwrap() error {
	return e.cause
}

// RecoveryKey identifies the failing thing: category|code|endpoint|operation.
func (e *ExtensionError) RecoveryKey() string {
	return strings.Join([]string{string(e.Category), string(e.Code), e.Endpoint, e.Operation}, "|")
}

// PatternKey groups errors for pattern detection: category|code.
func (e *ExtensionError) PatternKey() string {
	return string(e.Category) + "|" + string(e.Code)
}

// IncrementRetry bumps RetryCount before the next attempt.
func (e *ExtensionError) IncrementRetry() {
	e.RetryCount++
}

// RetriesExhausted reports whether RetryCount reached MaxRetries.
func (e *ExtensionError) RetriesExhausted() bool {
	return e.RetryCount >= e.MaxRetries
}

// ==========================
// 3. Options
// ==========================

// Option sets an optional field on a new ExtensionError.
type Option func(*ExtensionError)

func WithEndpoint(endpoint string) Option {
	return func(e *ExtensionError) { e.Endpoint = endpoint }
}

func WithOperation(operation string) Option {
	return func(e *ExtensionError) { e.Operation = operation }
}

func WithUserID(userID string) Option {
	return func(e *ExtensionError) { e.UserID = userID }
}

func WithTenantID(tenantID string) Option {
	return func(e *ExtensionError) { e.TenantID = tenantID }
}

func WithTechnicalDetails(details string) Option {
	return func(e *ExtensionError) { e.TechnicalDetails = details }
}

// WithContext merges entries into the error context.
func WithContext(ctx map[string]interface{}) Option {
	return func(e *ExtensionError) {
		for k, v := range ctx {
			e.Context[k] = v
		}
	}
}

func WithRetryCount(n int) Option {
	return func(e *ExtensionError) { e.RetryCount = n }
}

func WithMaxRetries(n int) Option {
	return func(e *ExtensionError) { e.MaxRetries = n }
}

// WithCause records the Go error that produced this fault.
func WithCause(err error) Option {
	return func(e *ExtensionError) {
		e.cause = err
		if e.TechnicalDetails == "" && err != nil {
			e.TechnicalDetails = err.Error()
		}
	}
}

// ==========================
// 4. Error Constructors
// ==========================

// NewExtensionError creates an error stamped with the current UTC time.
func NewExtensionError(category ErrorCategory, severity ErrorSeverity, code ErrorCode, message string, opts ...Option) *ExtensionError {
	e := &ExtensionError{
		Category:   category,
		Severity:   severity,
		Code:       code,
		Message:    message,
		Context:    make(map[string]interface{}),
		Timestamp:  time.Now().UTC(),
		MaxRetries: DefaultMaxRetries,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NewTokenExpiredError creates an authentication error for an expired token.
func NewTokenExpiredError(endpoint, operation string, opts ...Option) *ExtensionError {
	return NewExtensionError(
		CategoryAuthentication,
		SeverityMedium,
		ErrCodeTokenExpired,
		"Authentication token has expired",
		append([]Option{WithEndpoint(endpoint), WithOperation(operation)}, opts...)...,
	)
}

// NewServiceUnavailableError creates a high-severity service outage error.
func NewServiceUnavailableError(endpoint, operation string, opts ...Option) *ExtensionError {
	return NewExtensionError(
		CategoryServiceUnavailable,
		SeverityHigh,
		ErrCodeServiceUnavailable,
		"Extension service is temporarily unavailable",
		append([]Option{WithEndpoint(endpoint), WithOperation(operation)}, opts...)...,
	)
}

// NewNetworkError creates a connection failure error.
func NewNetworkError(endpoint, operation string, opts ...Option) *ExtensionError {
	return NewExtensionError(
		CategoryNetwork,
		SeverityMedium,
		ErrCodeNetworkError,
		"Network connection failed",
		append([]Option{WithEndpoint(endpoint), WithOperation(operation)}, opts...)...,
	)
}

// NewPermissionDeniedError creates a high-severity authorization error.
func NewPermissionDeniedError(endpoint, operation string, opts ...Option) *ExtensionError {
	return NewExtensionError(
		CategoryPermission,
		SeverityHigh,
		ErrCodePermissionDenied,
		"Insufficient permissions for this operation",
		append([]Option{WithEndpoint(endpoint), WithOperation(operation)}, opts...)...,
	)
}

// NewTimeoutError creates a timeout error.
func NewTimeoutError(endpoint, operation string, opts ...Option) *ExtensionError {
	return NewExtensionError(
		CategoryTimeout,
		SeverityMedium,
		ErrCodeTimeout,
		"Operation timed out",
		append([]Option{WithEndpoint(endpoint), WithOperation(operation)}, opts...)...,
	)
}
