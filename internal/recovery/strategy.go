package recovery

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"time"

	"extension-recovery/internal/common/errors"
	"extension-recovery/internal/common/logger"

	"github.com/google/uuid"
)

// Strategy is one way of recovering from an ExtensionError.
//
// CanHandle must be cheap and free of side effects. Execute reports expected
// failures as an unsuccessful result; a returned error or a panic is treated
// by the Manager as an unexpected fault. MaxAttempts bounds how often the
// strategy may run against the same error code within the attempt window.
type Strategy interface {
	Name() string
	CanHandle(err *errors.ExtensionError) bool
	Execute(ctx context.Context, err *errors.ExtensionError, rc map[string]interface{}) (*RecoveryResult, error)
	MaxAttempts() int
	BaseDelay() time.Duration
	// Tag is the recovery action the strategy reports while it runs.
	Tag() StrategyTag
}

const (
	maxBackoffDelay    = 60 * time.Second
	defaultServiceName = "extension_service"
)

// DefaultStrategies returns the strategies in dispatch order. Strategies whose
// collaborator is nil stay in the list but never claim an error.
func DefaultStrategies(deps Dependencies) []Strategy {
	log := deps.Logger
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return []Strategy{
		&AuthTokenRefreshStrategy{auth: deps.Auth, logger: log},
		&ServiceRestartStrategy{services: deps.ServiceRecovery, logger: log},
		&CachedDataStrategy{cache: deps.Cache, logger: log},
		&ReadOnlyFallbackStrategy{logger: log},
		&NetworkRetryStrategy{logger: log},
		&GracefulDegradationStrategy{degradation: deps.Degradation, logger: log},
		&EscalationStrategy{alerter: deps.Alerter, logger: log, now: deps.Clock},
	}
}

// ==========================
// Auth Token Refresh
// ==========================

type AuthTokenRefreshStrategy struct {
	auth   AuthManager
	logger logger.Logger
}

func (s *AuthTokenRefreshStrategy) Name() string             { return "auth_token_refresh" }
func (s *AuthTokenRefreshStrategy) MaxAttempts() int         { return 2 }
func (s *AuthTokenRefreshStrategy) BaseDelay() time.Duration { return time.Second }
func (s *AuthTokenRefreshStrategy) Tag() StrategyTag         { return TagRetryWithRefresh }

func (s *AuthTokenRefreshStrategy) CanHandle(err *errors.ExtensionError) bool {
	return err.Category == errors.CategoryAuthentication &&
		(err.Code == errors.ErrCodeTokenExpired || err.Code == errors.ErrCodeTokenInvalid) &&
		s.auth != nil
}

func (s *AuthTokenRefreshStrategy) Execute(ctx context.Context, err *errors.ExtensionError, _ map[string]interface{}) (*RecoveryResult, error) {
	s.logger.Info("attempting token refresh", map[string]interface{}{"error_code": err.Code})

	token, refreshErr := s.auth.RefreshToken(ctx)
	if refreshErr != nil {
		s.logger.Error("token refresh failed", map[string]interface{}{"error": refreshErr.Error()})
		return &RecoveryResult{
			Strategy:           TagRetryWithRefresh,
			Message:            fmt.Sprintf("Token refresh error: %v", refreshErr),
			RequiresUserAction: true,
		}, nil
	}

	if token == "" {
		return &RecoveryResult{
			Strategy:           TagRetryWithRefresh,
			Message:            "Token refresh failed, user authentication required",
			RequiresUserAction: true,
		}, nil
	}

	return &RecoveryResult{
		Success:  true,
		Strategy: TagRetryWithRefresh,
		Message:  "Authentication token refreshed successfully",
	}, nil
}

// ==========================
// Service Restart
// ==========================

type ServiceRestartStrategy struct {
	services ServiceRecoveryManager
	logger   logger.Logger
}

func (s *ServiceRestartStrategy) Name() string             { return "service_restart" }
func (s *ServiceRestartStrategy) MaxAttempts() int         { return 3 }
func (s *ServiceRestartStrategy) BaseDelay() time.Duration { return 10 * time.Second }
func (s *ServiceRestartStrategy) Tag() StrategyTag         { return TagServiceRestart }

func (s *ServiceRestartStrategy) CanHandle(err *errors.ExtensionError) bool {
	return err.Category == errors.CategoryServiceUnavailable &&
		(err.Severity == errors.SeverityHigh || err.Severity == errors.SeverityCritical) &&
		s.services != nil
}

func (s *ServiceRestartStrategy) Execute(ctx context.Context, err *errors.ExtensionError, rc map[string]interface{}) (*RecoveryResult, error) {
	serviceName := serviceNameFrom(err, rc)
	s.logger.Info("attempting service restart", map[string]interface{}{
		"error_code":   err.Code,
		"service_name": serviceName,
	})

	ok, restartErr := s.services.ForceRecovery(ctx, serviceName)
	if restartErr != nil {
		s.logger.Error("service restart failed", map[string]interface{}{
			"service_name": serviceName,
			"error":        restartErr.Error(),
		})
		return &RecoveryResult{
			Strategy:   TagServiceRestart,
			Message:    fmt.Sprintf("Service restart error: %v", restartErr),
			RetryAfter: 60 * time.Second,
		}, nil
	}

	if !ok {
		return &RecoveryResult{
			Strategy:   TagServiceRestart,
			Message:    fmt.Sprintf("Failed to restart service %s", serviceName),
			RetryAfter: 30 * time.Second,
		}, nil
	}

	return &RecoveryResult{
		Success:    true,
		Strategy:   TagServiceRestart,
		Message:    fmt.Sprintf("Service %s restarted successfully", serviceName),
		RetryAfter: 5 * time.Second,
	}, nil
}

// serviceNameFrom prefers the caller's context over the error's own context.
func serviceNameFrom(err *errors.ExtensionError, rc map[string]interface{}) string {
	if name, ok := rc["service_name"].(string); ok && name != "" {
		return name
	}
	if name, ok := err.Context["service_name"].(string); ok && name != "" {
		return name
	}
	return defaultServiceName
}

// ==========================
// Cached Data
// ==========================

type CachedDataStrategy struct {
	cache  CacheManager
	logger logger.Logger
}

func (s *CachedDataStrategy) Name() string             { return "cached_data" }
func (s *CachedDataStrategy) MaxAttempts() int         { return 1 }
func (s *CachedDataStrategy) BaseDelay() time.Duration { return 0 }
func (s *CachedDataStrategy) Tag() StrategyTag         { return TagFallbackToCached }

func (s *CachedDataStrategy) CanHandle(err *errors.ExtensionError) bool {
	return (err.Category == errors.CategoryServiceUnavailable || err.Category == errors.CategoryNetwork) &&
		s.cache != nil
}

// CacheKey is the key under which results of operation on endpoint are cached.
func CacheKey(operation, endpoint string) string {
	return operation + ":" + endpoint
}

func (s *CachedDataStrategy) Execute(ctx context.Context, err *errors.ExtensionError, _ map[string]interface{}) (*RecoveryResult, error) {
	key := CacheKey(err.Operation, err.Endpoint)
	s.logger.Info("attempting cached data recovery", map[string]interface{}{
		"error_code": err.Code,
		"cache_key":  key,
	})

	value, cacheErr := s.cache.Get(ctx, key)
	if cacheErr != nil {
		s.logger.Error("cache lookup failed", map[string]interface{}{
			"cache_key": key,
			"error":     cacheErr.Error(),
		})
		return failed(TagFallbackToCached, fmt.Sprintf("Cache access error: %v", cacheErr)), nil
	}

	if value == nil {
		return failed(TagFallbackToCached, "No cached data available, using limited functionality"), nil
	}

	return &RecoveryResult{
		Success:      true,
		Strategy:     TagFallbackToCached,
		Message:      "Using cached data while service is unavailable",
		FallbackData: value,
	}, nil
}

// ==========================
// Read-Only Fallback
// ==========================

type ReadOnlyFallbackStrategy struct {
	logger logger.Logger
}

func (s *ReadOnlyFallbackStrategy) Name() string             { return "readonly_fallback" }
func (s *ReadOnlyFallbackStrategy) MaxAttempts() int         { return 1 }
func (s *ReadOnlyFallbackStrategy) BaseDelay() time.Duration { return 0 }
func (s *ReadOnlyFallbackStrategy) Tag() StrategyTag         { return TagFallbackToReadOnly }

func (s *ReadOnlyFallbackStrategy) CanHandle(err *errors.ExtensionError) bool {
	return err.Category == errors.CategoryPermission
}

func (s *ReadOnlyFallbackStrategy) Execute(_ context.Context, err *errors.ExtensionError, rc map[string]interface{}) (*RecoveryResult, error) {
	s.logger.Info("applying read-only fallback", map[string]interface{}{"error_code": err.Code})

	return &RecoveryResult{
		Success:      true,
		Strategy:     TagFallbackToReadOnly,
		Message:      "Extension features are available in read-only mode",
		FallbackData: readOnlyData(err.Operation, rc),
	}, nil
}

func readOnlyData(operation string, rc map[string]interface{}) map[string]interface{} {
	if operation == "list_extensions" {
		extensions, ok := rc["cached_extensions"]
		if !ok || extensions == nil {
			extensions = []interface{}{}
		}
		return map[string]interface{}{
			"extensions": extensions,
			"total":      lengthOf(extensions),
			"readonly":   true,
			"message":    "Extension list in read-only mode",
		}
	}

	data := map[string]interface{}{
		"readonly": true,
		"message":  "Feature available in read-only mode",
	}
	for k, v := range rc {
		if strings.HasPrefix(k, "cached_") {
			data[k] = v
		}
	}
	return data
}

func lengthOf(v interface{}) int {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len()
	default:
		return 0
	}
}

// ==========================
// Network Retry
// ==========================

type NetworkRetryStrategy struct {
	logger logger.Logger
}

func (s *NetworkRetryStrategy) Name() string             { return "network_retry" }
func (s *NetworkRetryStrategy) MaxAttempts() int         { return 5 }
func (s *NetworkRetryStrategy) BaseDelay() time.Duration { return 2 * time.Second }
func (s *NetworkRetryStrategy) Tag() StrategyTag         { return TagRetryWithBackoff }

func (s *NetworkRetryStrategy) CanHandle(err *errors.ExtensionError) bool {
	return err.Category == errors.CategoryNetwork || err.Category == errors.CategoryTimeout
}

func (s *NetworkRetryStrategy) Execute(_ context.Context, err *errors.ExtensionError, _ map[string]interface{}) (*RecoveryResult, error) {
	delay := BackoffDelay(s.BaseDelay(), err.RetryCount)
	s.logger.Info("scheduling network retry", map[string]interface{}{
		"error_code":    err.Code,
		"retry_count":   err.RetryCount,
		"delay_seconds": delay.Seconds(),
	})

	return &RecoveryResult{
		Strategy:   TagRetryWithBackoff,
		Message:    fmt.Sprintf("Network error, retrying in %.1f seconds", delay.Seconds()),
		RetryAfter: delay,
	}, nil
}

// BackoffDelay returns base*2^retryCount capped at 60s.
func BackoffDelay(base time.Duration, retryCount int) time.Duration {
	if base <= 0 {
		return 0
	}
	delay := base
	for i := 0; i < retryCount && delay < maxBackoffDelay; i++ {
		delay *= 2
	}
	if delay > maxBackoffDelay {
		delay = maxBackoffDelay
	}
	return delay
}

// ==========================
// Graceful Degradation
// ==========================

type GracefulDegradationStrategy struct {
	degradation DegradationManager
	logger      logger.Logger
}

func (s *GracefulDegradationStrategy) Name() string             { return "graceful_degradation" }
func (s *GracefulDegradationStrategy) MaxAttempts() int         { return 1 }
func (s *GracefulDegradationStrategy) BaseDelay() time.Duration { return 0 }
func (s *GracefulDegradationStrategy) Tag() StrategyTag         { return TagGracefulDegradation }

func (s *GracefulDegradationStrategy) CanHandle(err *errors.ExtensionError) bool {
	return err.Severity == errors.SeverityMedium || err.Severity == errors.SeverityHigh
}

func (s *GracefulDegradationStrategy) Execute(ctx context.Context, err *errors.ExtensionError, _ map[string]interface{}) (*RecoveryResult, error) {
	s.logger.Info("applying graceful degradation", map[string]interface{}{
		"error_code": err.Code,
		"operation":  err.Operation,
	})

	if s.degradation != nil {
		if degradeErr := s.degradation.ApplyDegradation(ctx, err.Category, err.Operation); degradeErr != nil {
			s.logger.Warn("failed to record degradation", map[string]interface{}{
				"operation": err.Operation,
				"error":     degradeErr.Error(),
			})
		}
	}

	return &RecoveryResult{
		Success:      true,
		Strategy:     TagGracefulDegradation,
		Message:      "Extension features are temporarily limited",
		FallbackData: degradedData(err.Operation),
	}, nil
}

func degradedData(operation string) map[string]interface{} {
	switch operation {
	case "list_extensions":
		return map[string]interface{}{
			"extensions": []interface{}{},
			"total":      0,
			"message":    "Extension list temporarily unavailable",
		}
	case "background_tasks":
		return map[string]interface{}{
			"tasks":   []interface{}{},
			"total":   0,
			"message": "Background tasks temporarily unavailable",
		}
	default:
		return map[string]interface{}{
			"message":  "Feature temporarily unavailable",
			"fallback": true,
		}
	}
}

// ==========================
// Escalation
// ==========================

type EscalationStrategy struct {
	alerter Alerter
	logger  logger.Logger
	now     func() time.Time
}

func (s *EscalationStrategy) Name() string             { return "escalation" }
func (s *EscalationStrategy) MaxAttempts() int         { return 1 }
func (s *EscalationStrategy) BaseDelay() time.Duration { return 0 }
func (s *EscalationStrategy) Tag() StrategyTag         { return TagEscalateToAdmin }

func (s *EscalationStrategy) CanHandle(err *errors.ExtensionError) bool {
	return err.Severity == errors.SeverityCritical || err.Category == errors.CategoryConfiguration
}

func (s *EscalationStrategy) Execute(ctx context.Context, err *errors.ExtensionError, _ map[string]interface{}) (*RecoveryResult, error) {
	s.logger.Error("CRITICAL EXTENSION ERROR - ADMIN INTERVENTION REQUIRED", map[string]interface{}{
		"alert":          "critical",
		"error_code":     err.Code,
		"error_category": err.Category,
		"error_severity": err.Severity,
		"error_message":  err.Message,
		"endpoint":       err.Endpoint,
		"operation":      err.Operation,
		"user_id":        err.UserID,
		"tenant_id":      err.TenantID,
		"context":        err.Context,
		"timestamp":      err.Timestamp,
	})

	if s.alerter != nil {
		if alertErr := s.alerter.Alert(ctx, s.escalationFor(err)); alertErr != nil {
			s.logger.Error("failed to deliver escalation alert", map[string]interface{}{
				"error_code": err.Code,
				"error":      alertErr.Error(),
			})
		}
	}

	return &RecoveryResult{
		Strategy:           TagEscalateToAdmin,
		Message:            "Critical error escalated to system administrator",
		RequiresUserAction: true,
		Escalated:          true,
	}, nil
}

func (s *EscalationStrategy) escalationFor(err *errors.ExtensionError) *Escalation {
	now := time.Now().UTC()
	if s.now != nil {
		now = s.now()
	}
	return &Escalation{
		ID:               uuid.New().String(),
		Code:             err.Code,
		Category:         err.Category,
		Severity:         err.Severity,
		Message:          err.Message,
		TechnicalDetails: err.TechnicalDetails,
		Endpoint:         err.Endpoint,
		Operation:        err.Operation,
		UserID:           err.UserID,
		TenantID:         err.TenantID,
		Context:          err.Context,
		Timestamp:        err.Timestamp,
		EscalatedAt:      now,
	}
}
