// internal/workers/recovery/handle-extension-error/handler.go
package handleextensionerror

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"extension-recovery/internal/common/camunda"
	"extension-recovery/internal/common/errors"
	"extension-recovery/internal/common/logger"
	"extension-recovery/internal/integration"
	"extension-recovery/internal/recovery"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "extension-error-recovery"
)

// Reporter is the part of the integration adapter the handler needs.
type Reporter interface {
	Report(ctx context.Context, s integration.Signal) *recovery.RecoveryResult
	Recover(ctx context.Context, err *errors.ExtensionError, rc map[string]interface{}) *recovery.RecoveryResult
	IsHealthy() bool
}

// JobObserver records processed jobs. errorCode is empty on success.
type JobObserver interface {
	ObserveJob(taskType, errorCode string, d time.Duration)
}

type Handler struct {
	config   *Config
	reporter Reporter
	logger   logger.Logger
	observer JobObserver
	retry    *camunda.RetryConfig
}

func NewHandler(config *Config, reporter Reporter, log logger.Logger) *Handler {
	return &Handler{
		config:   config,
		reporter: reporter,
		logger:   log.WithFields(map[string]interface{}{"taskType": TaskType}),
		retry:    camunda.DefaultRetryConfig,
	}
}

// WithCommandRetry sets the backoff used for complete and throw-error commands.
func (h *Handler) WithCommandRetry(cfg *camunda.RetryConfig) *Handler {
	if cfg != nil {
		h.retry = cfg
	}
	return h
}

// WithJobObserver sets where job outcomes are recorded.
func (h *Handler) WithJobObserver(o JobObserver) *Handler {
	h.observer = o
	return h
}

func (h *Handler) observe(errorCode string, start time.Time) {
	if h.observer != nil {
		h.observer.ObserveJob(TaskType, errorCode, time.Since(start))
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) error {
	start := time.Now()
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	input, err := parseInput(job.Variables)
	if err != nil {
		h.failJob(client, job, ErrCodeInvalidInput, err.Error())
		h.observe(ErrCodeInvalidInput, start)
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	output, err := h.execute(ctx, input)
	if err != nil {
		h.failJob(client, job, ErrCodeRecoveryFailed, err.Error())
		h.observe(ErrCodeRecoveryFailed, start)
		return err
	}

	if err := h.completeJob(client, job, output); err != nil {
		return err
	}
	h.observe("", start)
	return nil
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}

func parseInput(variables string) (*Input, error) {
	if err := validateVariables(variables); err != nil {
		return nil, err
	}

	var input Input
	if err := json.Unmarshal([]byte(variables), &input); err != nil {
		return nil, fmt.Errorf("parse input: %w", err)
	}
	if input.StatusCode != 0 && input.StatusCode < 100 {
		return nil, fmt.Errorf("statusCode %d is not a valid HTTP status", input.StatusCode)
	}
	return &input, nil
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	if !h.reporter.IsHealthy() {
		h.logger.Warn("recovery circuit breaker is open", map[string]interface{}{
			"operation": input.Operation,
		})
	}

	result := h.reporter.Report(ctx, integration.Signal{
		StatusCode:  input.StatusCode,
		ServiceName: input.ServiceName,
		Endpoint:    input.Endpoint,
		Operation:   input.Operation,
		Message:     input.Message,
		UserID:      input.UserID,
		TenantID:    input.TenantID,
		RetryCount:  input.RetryCount,
		Context:     input.Context,
	})
	if result == nil {
		return nil, fmt.Errorf("recovery returned no result for %s", input.Operation)
	}

	h.logger.Info("recovery determined", map[string]interface{}{
		"operation": input.Operation,
		"endpoint":  input.Endpoint,
		"strategy":  result.Strategy,
		"success":   result.Success,
		"escalated": result.Escalated,
	})

	return toOutput(result), nil
}

func toOutput(result *recovery.RecoveryResult) *Output {
	out := &Output{
		Success:            result.Success,
		Strategy:           string(result.Strategy),
		Message:            result.Message,
		FallbackData:       result.FallbackData,
		RequiresUserAction: result.RequiresUserAction,
		Escalated:          result.Escalated,
	}
	if result.RetryAfter > 0 {
		secs := result.RetryAfterSeconds()
		out.RetryAfter = &secs
	}
	return out
}

func (h *Handler) completeJob(client worker.JobClient, job entities.Job, output *Output) error {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err,
		})
		return err
	}

	err = h.send("complete_job", func(ctx context.Context) error {
		_, err := cmd.Send(ctx)
		return err
	})
	if err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"jobKey": job.Key,
			"error":  err,
		})
		return err
	}
	return nil
}

func (h *Handler) failJob(client worker.JobClient, job entities.Job, errorCode, errorMessage string) {
	h.logger.Error("job failed", map[string]interface{}{
		"jobKey":       job.Key,
		"errorCode":    errorCode,
		"errorMessage": errorMessage,
	})

	cmd := client.NewThrowErrorCommand().
		JobKey(job.Key).
		ErrorCode(errorCode).
		ErrorMessage(errorMessage)

	err := h.send("throw_error", func(ctx context.Context) error {
		_, err := cmd.Send(ctx)
		return err
	})
	if err != nil {
		h.logger.Error("failed to throw error", map[string]interface{}{
			"jobKey": job.Key,
			"error":  err,
		})
	}
}

// send delivers a broker command with backoff. Once retries run out the
// mapped failure goes through recovery, and a resolving result earns one
// more attempt.
func (h *Handler) send(operation string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	err := camunda.SendWithRetry(ctx, h.retry, operation, fn)
	if err == nil {
		return nil
	}

	var extErr *errors.ExtensionError
	if !stderrors.As(err, &extErr) {
		return err
	}

	result := h.reporter.Recover(ctx, extErr, map[string]interface{}{"service_name": "zeebe"})
	if result == nil {
		return err
	}
	h.logger.Warn("broker command failed", map[string]interface{}{
		"operation":  operation,
		"error_code": extErr.Code,
		"strategy":   result.Strategy,
		"success":    result.Success,
	})

	if !result.Success || !result.Strategy.Resolves() {
		return err
	}
	if retryErr := fn(ctx); retryErr != nil {
		return fmt.Errorf("%s failed after recovery: %w", operation, retryErr)
	}
	return nil
}
