package integration

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"

	"extension-recovery/internal/common/errors"
	"extension-recovery/internal/recovery"
)

// Retry runs fn and hands every failure to the recovery manager.
//
// A result carrying fallback data ends the loop with that data. A result that
// needs a human (user action or escalation) ends it with the original error.
// Anything else waits for the suggested delay, capped at the adapter's max
// wait, and runs fn again until the retry budget is spent. The budget is the
// adapter's max retries, lowered by MaxRetries when fn returns its own
// *errors.ExtensionError. Successful values are written to the cache writer,
// if any, under recovery.CacheKey.
func Retry[T any](ctx context.Context, a *Adapter, endpoint, operation string, rc map[string]interface{}, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	for attempt := 0; ; attempt++ {
		value, err := fn(ctx)
		if err == nil {
			a.store(ctx, endpoint, operation, value)
			return value, nil
		}

		var own *errors.ExtensionError
		classified := stderrors.As(err, &own)

		extErr := errors.Normalize(err, endpoint, operation)
		if !classified {
			extErr.MaxRetries = a.maxRetries
		}
		for extErr.RetryCount < attempt {
			extErr.IncrementRetry()
		}

		result := a.recoverer.HandleError(ctx, extErr, rc)
		a.logger.Debug("recovery result for failed operation", map[string]interface{}{
			"operation": operation,
			"endpoint":  endpoint,
			"attempt":   attempt,
			"strategy":  result.Strategy,
			"success":   result.Success,
		})

		if result.FallbackData != nil {
			fallback, convErr := convertFallback[T](result.FallbackData)
			if convErr == nil {
				return fallback, nil
			}
			a.logger.Warn("fallback data does not fit result type", map[string]interface{}{
				"operation": operation,
				"error":     convErr.Error(),
			})
		}

		if result.RequiresUserAction || result.Escalated || attempt >= a.maxRetries || extErr.RetriesExhausted() {
			return zero, err
		}

		wait := result.RetryAfter
		if wait > a.maxWait {
			wait = a.maxWait
		}
		if sleepErr := a.sleep(ctx, wait); sleepErr != nil {
			return zero, fmt.Errorf("%s interrupted while waiting to retry: %w", operation, sleepErr)
		}
	}
}

func (a *Adapter) store(ctx context.Context, endpoint, operation string, value interface{}) {
	if a.cache == nil {
		return
	}
	key := recovery.CacheKey(operation, endpoint)
	if err := a.cache.Set(ctx, key, value); err != nil {
		a.logger.Warn("failed to cache operation result", map[string]interface{}{
			"cache_key": key,
			"error":     err.Error(),
		})
	}
}

// convertFallback returns data as T, going through JSON when the dynamic
// type differs (cached values come back as generic maps and slices).
func convertFallback[T any](data interface{}) (T, error) {
	if v, ok := data.(T); ok {
		return v, nil
	}

	var out T
	raw, err := json.Marshal(data)
	if err != nil {
		return out, fmt.Errorf("marshal fallback data: %w", err)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("unmarshal fallback data into %T: %w", out, err)
	}
	return out, nil
}
