// internal/common/cache/degradation.go
package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "extension-recovery/internal/common/errors"

	"github.com/redis/go-redis/v9"
)

const degradedKeyPrefix = "degraded:"

// DegradationStore marks operations as running in degraded mode. Marks
// expire on their own so a service that recovers is picked up again without
// operator action.
type DegradationStore struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

// NewDegradationStore creates a store whose marks live for ttl.
func NewDegradationStore(client redis.Cmdable, prefix string, ttl time.Duration) *DegradationStore {
	return &DegradationStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *DegradationStore) key(operation string) string {
	return s.prefix + degradedKeyPrefix + operation
}

// ApplyDegradation records that operation is degraded because of category.
func (s *DegradationStore) ApplyDegradation(ctx context.Context, category apperrors.ErrorCategory, operation string) error {
	if operation == "" {
		operation = "unknown"
	}
	if err := s.client.Set(ctx, s.key(operation), string(category), s.ttl).Err(); err != nil {
		return fmt.Errorf("mark %s degraded: %w", operation, err)
	}
	return nil
}

// IsDegraded reports whether operation is marked and the category that caused it.
func (s *DegradationStore) IsDegraded(ctx context.Context, operation string) (bool, apperrors.ErrorCategory, error) {
	val, err := s.client.Get(ctx, s.key(operation)).Result()
	if errors.Is(err, redis.Nil) {
		return false, "", nil
	}
	if err != nil {
		return false, "", fmt.Errorf("read degradation for %s: %w", operation, err)
	}
	return true, apperrors.ErrorCategory(val), nil
}

// Clear removes the degradation mark for operation.
func (s *DegradationStore) Clear(ctx context.Context, operation string) error {
	return s.client.Del(ctx, s.key(operation)).Err()
}

// DegradedOperations lists the currently degraded operations.
func (s *DegradationStore) DegradedOperations(ctx context.Context) ([]string, error) {
	pattern := s.prefix + degradedKeyPrefix + "*"
	var (
		cursor uint64
		ops    []string
	)
	for {
		keys, next, err := s.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, fmt.Errorf("scan degraded operations: %w", err)
		}
		for _, k := range keys {
			ops = append(ops, strings.TrimPrefix(k, s.prefix+degradedKeyPrefix))
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return ops, nil
}
