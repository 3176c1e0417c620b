// Package integration maps protocol failures onto the error model and runs
// them through the recovery manager.
package integration

import (
	"context"
	"time"

	"extension-recovery/internal/common/errors"
	"extension-recovery/internal/common/logger"
	"extension-recovery/internal/recovery"
)

// Recoverer is the part of recovery.Manager the adapter needs.
type Recoverer interface {
	HandleError(ctx context.Context, err *errors.ExtensionError, rc map[string]interface{}) *recovery.RecoveryResult
	IsCircuitOpen() bool
}

// CacheWriter stores successful results so CachedData can serve them later.
type CacheWriter interface {
	Set(ctx context.Context, key string, value interface{}) error
}

// Adapter forwards protocol-level failures to a Recoverer.
type Adapter struct {
	recoverer  Recoverer
	cache      CacheWriter
	logger     logger.Logger
	maxRetries int
	maxWait    time.Duration
	sleep      func(ctx context.Context, d time.Duration) error
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithCacheWriter enables cache-aside population in Retry.
func WithCacheWriter(w CacheWriter) Option {
	return func(a *Adapter) { a.cache = w }
}

func WithLogger(l logger.Logger) Option {
	return func(a *Adapter) { a.logger = l }
}

// WithMaxRetries sets how many times Retry re-runs a failing operation.
func WithMaxRetries(n int) Option {
	return func(a *Adapter) { a.maxRetries = n }
}

// WithMaxWait caps the delay Retry honours between attempts.
func WithMaxWait(d time.Duration) Option {
	return func(a *Adapter) { a.maxWait = d }
}

// WithSleep replaces the context-aware sleep used between attempts.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(a *Adapter) { a.sleep = fn }
}

// New creates an Adapter with 3 retries and a 60s wait cap.
func New(r Recoverer, opts ...Option) *Adapter {
	a := &Adapter{
		recoverer:  r,
		logger:     logger.NewNoOpLogger(),
		maxRetries: 3,
		maxWait:    60 * time.Second,
		sleep:      sleepContext,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// HandleHTTPError maps 401, 403 and 503 onto their specific errors and any
// other status onto a network error.
func (a *Adapter) HandleHTTPError(ctx context.Context, statusCode int, endpoint, operation string, rc map[string]interface{}) *recovery.RecoveryResult {
	extErr := errors.FromHTTPStatus(statusCode, endpoint, operation, errors.WithContext(rc))
	return a.recoverer.HandleError(ctx, extErr, withEntry(rc, "http_status", statusCode))
}

// HandleNetworkError reports a connection failure described by message.
func (a *Adapter) HandleNetworkError(ctx context.Context, endpoint, operation, message string, rc map[string]interface{}) *recovery.RecoveryResult {
	extErr := errors.NewNetworkError(endpoint, operation,
		errors.WithContext(rc),
		errors.WithContext(map[string]interface{}{"message": message}),
		errors.WithTechnicalDetails(message),
	)
	return a.recoverer.HandleError(ctx, extErr, withEntry(rc, "message", message))
}

// HandleServiceError reports that serviceName is unavailable. The name is
// what ServiceRestart asks the service recovery manager to restart.
func (a *Adapter) HandleServiceError(ctx context.Context, serviceName, endpoint, operation, message string, rc map[string]interface{}) *recovery.RecoveryResult {
	extErr := errors.NewServiceUnavailableError(endpoint, operation,
		errors.WithContext(rc),
		errors.WithContext(map[string]interface{}{"service_name": serviceName, "message": message}),
		errors.WithTechnicalDetails(message),
	)
	return a.recoverer.HandleError(ctx, extErr, withEntry(rc, "service_name", serviceName))
}

// Recover hands an error that is already classified, such as a mapped broker
// failure, straight to the recoverer.
func (a *Adapter) Recover(ctx context.Context, err *errors.ExtensionError, rc map[string]interface{}) *recovery.RecoveryResult {
	return a.recoverer.HandleError(ctx, err, rc)
}

// IsHealthy reports whether the circuit breaker is closed.
func (a *Adapter) IsHealthy() bool {
	return !a.recoverer.IsCircuitOpen()
}

// withEntry returns a copy of rc with key set.
func withEntry(rc map[string]interface{}, key string, value interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(rc)+1)
	for k, v := range rc {
		out[k] = v
	}
	out[key] = value
	return out
}
