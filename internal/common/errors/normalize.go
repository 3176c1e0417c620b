package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
)

// HTTPStatusError is a failed call that produced a non-success status code.
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// FromHTTPStatus maps a status code onto one of the common fault shapes:
// 401 token expired, 403 permission denied, 503 service unavailable,
// anything else a network error. The status is kept under "http_status".
func FromHTTPStatus(statusCode int, endpoint, operation string, opts ...Option) *ExtensionError {
	opts = append([]Option{WithContext(map[string]interface{}{"http_status": statusCode})}, opts...)

	switch statusCode {
	case http.StatusUnauthorized:
		return NewTokenExpiredError(endpoint, operation, opts...)
	case http.StatusForbidden:
		return NewPermissionDeniedError(endpoint, operation, opts...)
	case http.StatusServiceUnavailable:
		return NewServiceUnavailableError(endpoint, operation, opts...)
	default:
		return NewNetworkError(endpoint, operation, opts...)
	}
}

// Normalize ensures we always have an ExtensionError for a failed operation.
// Unclassified faults are treated as network errors.
func Normalize(err error, endpoint, operation string) *ExtensionError {
	if err == nil {
		return nil
	}

	var extErr *ExtensionError
	if stderrors.As(err, &extErr) {
		return extErr
	}

	var statusErr *HTTPStatusError
	if stderrors.As(err, &statusErr) {
		return FromHTTPStatus(statusErr.StatusCode, endpoint, operation, WithCause(err))
	}

	if stderrors.Is(err, context.DeadlineExceeded) {
		return NewTimeoutError(endpoint, operation, WithCause(err))
	}

	return NewNetworkError(endpoint, operation,
		WithCause(err),
		WithContext(map[string]interface{}{"message": err.Error()}),
	)
}
