package integration

import (
	"context"

	"extension-recovery/internal/common/errors"
	"extension-recovery/internal/recovery"
)

// Signal is a failure reported by a caller that cannot hand over a Go error,
// such as a workflow step. Exactly one shape applies, in this order: a
// non-empty ServiceName is a service failure, a non-zero StatusCode an HTTP
// failure, anything else a network failure described by Message.
type Signal struct {
	StatusCode  int
	ServiceName string
	Endpoint    string
	Operation   string
	Message     string
	UserID      string
	TenantID    string
	RetryCount  int
	Context     map[string]interface{}
}

// Report classifies s and runs it through the recovery manager.
func (a *Adapter) Report(ctx context.Context, s Signal) *recovery.RecoveryResult {
	opts := []errors.Option{
		errors.WithContext(s.Context),
		errors.WithUserID(s.UserID),
		errors.WithTenantID(s.TenantID),
		errors.WithRetryCount(s.RetryCount),
	}

	var (
		extErr *errors.ExtensionError
		rc     map[string]interface{}
	)
	switch {
	case s.ServiceName != "":
		opts = append(opts, errors.WithContext(map[string]interface{}{"service_name": s.ServiceName}))
		if s.Message != "" {
			opts = append(opts, errors.WithTechnicalDetails(s.Message))
		}
		extErr = errors.NewServiceUnavailableError(s.Endpoint, s.Operation, opts...)
		rc = withEntry(s.Context, "service_name", s.ServiceName)
	case s.StatusCode != 0:
		if s.Message != "" {
			opts = append(opts, errors.WithTechnicalDetails(s.Message))
		}
		extErr = errors.FromHTTPStatus(s.StatusCode, s.Endpoint, s.Operation, opts...)
		rc = withEntry(s.Context, "http_status", s.StatusCode)
	default:
		opts = append(opts,
			errors.WithContext(map[string]interface{}{"message": s.Message}),
			errors.WithTechnicalDetails(s.Message),
		)
		extErr = errors.NewNetworkError(s.Endpoint, s.Operation, opts...)
		rc = withEntry(s.Context, "message", s.Message)
	}

	return a.recoverer.HandleError(ctx, extErr, rc)
}
