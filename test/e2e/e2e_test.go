// test/e2e/e2e_test.go
package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"extension-recovery/internal/admin"
	"extension-recovery/internal/common/alerting"
	"extension-recovery/internal/common/auth"
	"extension-recovery/internal/common/cache"
	"extension-recovery/internal/common/config"
	apperrors "extension-recovery/internal/common/errors"
	"extension-recovery/internal/common/logger"
	"extension-recovery/internal/common/metrics"
	"extension-recovery/internal/common/servicerecovery"
	"extension-recovery/internal/integration"
	"extension-recovery/internal/recovery"
	hee "extension-recovery/internal/workers/recovery/handle-extension-error"
)

const (
	keyPrefix         = "e2e:"
	extensionsPath    = "/api/extensions/"
	listExtensionsOp  = "list_extensions"
	escalationIndex   = "extension-escalations"
	restartedService  = "extension-host"
	refreshedTokenVal = "fresh-token"
)

// ==========================
// Fake Collaborators
// ==========================

// recorder keeps the requests a fake upstream received.
type recorder struct {
	mu    sync.Mutex
	paths []string
}

func (r *recorder) add(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, path)
}

func (r *recorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.paths...)
}

type stack struct {
	redis       *miniredis.Miniredis
	cache       *cache.RedisCache
	degradation *cache.DegradationStore
	manager     *recovery.Manager
	adapter     *integration.Adapter
	admin       *httptest.Server

	keycloak *recorder
	restarts *recorder
	escalate *recorder

	mu    sync.Mutex
	waits []time.Duration
}

func (s *stack) sleeps() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.waits...)
}

func newStack(t *testing.T) *stack {
	t.Helper()
	s := &stack{keycloak: &recorder{}, restarts: &recorder{}, escalate: &recorder{}}
	log := logger.NewTestLogger(t)

	t.Log("🔧 Starting in-process collaborators...")

	s.redis = miniredis.RunT(t)
	client := cache.NewRedisClient(config.RedisConfig{Address: s.redis.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	s.cache = cache.NewRedisCache(client, keyPrefix, 10*time.Minute)
	s.degradation = cache.NewDegradationStore(client, keyPrefix, 15*time.Minute)
	require.NoError(t, s.cache.Ping(context.Background()))
	t.Log("✅ Redis connected")

	keycloak := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.keycloak.add(r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"access_token":%q,"expires_in":300,"token_type":"Bearer"}`, refreshedTokenVal)
	}))
	t.Cleanup(keycloak.Close)
	t.Log("✅ Keycloak token endpoint ready")

	services := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.restarts.add(r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"recovered":true,"message":"restarted"}`))
	}))
	t.Cleanup(services.Close)
	t.Log("✅ Service recovery endpoint ready")

	es := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.escalate.add(r.URL.Path)
		_, _ = io.Copy(io.Discard, r.Body)
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"result":"created"}`))
	}))
	t.Cleanup(es.Close)
	esAlerter, err := alerting.NewElasticsearchAlerter(config.ElasticsearchConfig{
		Enabled:   true,
		Addresses: []string{es.URL},
		Index:     escalationIndex,
	})
	require.NoError(t, err)
	t.Log("✅ Elasticsearch escalation index ready")

	reg := prometheus.NewRegistry()
	s.manager, err = recovery.NewManager(recovery.DefaultConfig(), recovery.Dependencies{
		Auth:            auth.NewKeycloakClient(keycloak.URL, "extensions", "recovery", "secret", 5*time.Second),
		ServiceRecovery: servicerecovery.New(services.URL, "svc-token", 5*time.Second, log),
		Cache:           s.cache,
		Degradation:     s.degradation,
		Alerter:         alerting.NewMulti(log, esAlerter),
		Logger:          log,
		Recorder:        metrics.NewRecorder(reg),
	})
	require.NoError(t, err)

	s.adapter = integration.New(s.manager,
		integration.WithLogger(log),
		integration.WithCacheWriter(s.cache),
		integration.WithSleep(func(_ context.Context, d time.Duration) error {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.waits = append(s.waits, d)
			return nil
		}),
	)

	s.admin = httptest.NewServer(admin.NewServer(
		s.manager,
		promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		log,
		admin.Check{Name: "redis", Fn: s.cache.Ping},
		admin.Check{Name: "elasticsearch", Fn: esAlerter.Ping},
	).WithDegradations(s.degradation).WithCache(s.cache).Handler())
	t.Cleanup(s.admin.Close)
	t.Log("✅ Admin server listening")

	return s
}

func (s *stack) getJSON(t *testing.T, path string, out interface{}) int {
	t.Helper()
	resp, err := http.Get(s.admin.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

// ==========================
// Full Recovery Flow
// ==========================

func TestFullE2E(t *testing.T) {
	s := newStack(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	t.Log("🚀 Starting FULL E2E recovery flow...")

	t.Run("expired token is refreshed and the call retried", func(t *testing.T) {
		calls := 0
		got, err := integration.Retry(ctx, s.adapter, extensionsPath, listExtensionsOp, nil, func(context.Context) ([]string, error) {
			calls++
			if calls == 1 {
				return nil, &apperrors.HTTPStatusError{StatusCode: http.StatusUnauthorized}
			}
			return []string{"ext-a", "ext-b"}, nil
		})

		require.NoError(t, err)
		assert.Equal(t, []string{"ext-a", "ext-b"}, got)
		assert.Equal(t, 2, calls)
		assert.Equal(t, []string{"/realms/extensions/protocol/openid-connect/token"}, s.keycloak.all())
		assert.True(t, s.redis.Exists(keyPrefix+recovery.CacheKey(listExtensionsOp, extensionsPath)))
	})

	t.Run("unavailable service is restarted before retrying", func(t *testing.T) {
		calls := 0
		rc := map[string]interface{}{"service_name": restartedService}
		got, err := integration.Retry(ctx, s.adapter, extensionsPath, listExtensionsOp, rc, func(context.Context) ([]string, error) {
			calls++
			if calls == 1 {
				return nil, &apperrors.HTTPStatusError{StatusCode: http.StatusServiceUnavailable}
			}
			return []string{"ext-a", "ext-b", "ext-c"}, nil
		})

		require.NoError(t, err)
		assert.Len(t, got, 3)
		assert.Equal(t, []string{"/services/" + restartedService + "/recover"}, s.restarts.all())
		assert.Contains(t, s.sleeps(), 5*time.Second)
	})

	t.Run("network outage is served from the cache", func(t *testing.T) {
		got, err := integration.Retry(ctx, s.adapter, extensionsPath, listExtensionsOp, nil, func(context.Context) ([]string, error) {
			return nil, fmt.Errorf("dial tcp 10.0.0.7:443: connection refused")
		})

		require.NoError(t, err)
		assert.Equal(t, []string{"ext-a", "ext-b", "ext-c"}, got)
	})

	t.Run("rate limited feature is degraded in redis", func(t *testing.T) {
		result := s.manager.HandleError(ctx, apperrors.NewExtensionError(
			apperrors.CategoryRateLimit, apperrors.SeverityMedium, "RATE_LIMITED", "too many requests",
			apperrors.WithEndpoint("/api/tasks/"),
			apperrors.WithOperation("background_tasks"),
		), nil)

		assert.True(t, result.Success)
		assert.Equal(t, recovery.TagGracefulDegradation, result.Strategy)
		assert.Contains(t, result.FallbackData, "tasks")

		degraded, category, err := s.degradation.IsDegraded(ctx, "background_tasks")
		require.NoError(t, err)
		assert.True(t, degraded)
		assert.Equal(t, apperrors.CategoryRateLimit, category)

		var mark map[string]interface{}
		require.Equal(t, http.StatusOK, s.getJSON(t, "/recovery/degraded/background_tasks", &mark))
		assert.Equal(t, true, mark["degraded"])
		assert.Equal(t, "rate_limit", mark["category"])

		req, err := http.NewRequest(http.MethodDelete, s.admin.URL+"/recovery/degraded/background_tasks", nil)
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)

		degraded, _, err = s.degradation.IsDegraded(ctx, "background_tasks")
		require.NoError(t, err)
		assert.False(t, degraded)
		t.Log("✅ Degradation cleared through admin API")
	})

	t.Run("critical misconfiguration is escalated and not retried", func(t *testing.T) {
		calls := 0
		_, err := integration.Retry(ctx, s.adapter, "/api/extensions/install", "install_extension", nil, func(context.Context) (map[string]interface{}, error) {
			calls++
			return nil, apperrors.NewExtensionError(
				apperrors.CategoryConfiguration, apperrors.SeverityCritical, "EXTENSION_MISCONFIGURED", "manifest has no entrypoint",
				apperrors.WithEndpoint("/api/extensions/install"),
				apperrors.WithOperation("install_extension"),
			)
		})

		require.Error(t, err)
		assert.Equal(t, 1, calls)
		paths := s.escalate.all()
		require.Len(t, paths, 1)
		assert.True(t, strings.HasPrefix(paths[0], "/"+escalationIndex+"/_doc/"), "indexed at %s", paths[0])
	})

	t.Run("worker reports a forbidden call", func(t *testing.T) {
		handler := hee.NewHandler(&hee.Config{Timeout: 10 * time.Second, MaxJobsActive: 1}, s.adapter, logger.NewTestLogger(t))

		out, err := handler.Execute(ctx, &hee.Input{
			StatusCode: http.StatusForbidden,
			Endpoint:   "/api/extensions/settings",
			Operation:  "update_settings",
			UserID:     "user-1",
			TenantID:   "tenant-1",
		})

		require.NoError(t, err)
		assert.True(t, out.Success)
		assert.Equal(t, string(recovery.TagFallbackToReadOnly), out.Strategy)
		assert.Nil(t, out.RetryAfter)
	})

	t.Run("admin surface reflects the recoveries", func(t *testing.T) {
		var stats recovery.Statistics
		assert.Equal(t, http.StatusOK, s.getJSON(t, "/recovery/statistics", &stats))
		assert.Equal(t, 6, stats.TotalAttempts24h)
		assert.Equal(t, 5, stats.SuccessfulAttempts24h)
		assert.Equal(t, 1, stats.StrategyStatistics["escalation"].Total)

		var ready map[string]interface{}
		assert.Equal(t, http.StatusOK, s.getJSON(t, "/readyz", &ready))
		assert.Equal(t, "ready", ready["status"])

		resp, err := http.Get(s.admin.URL + "/metrics")
		require.NoError(t, err)
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Contains(t, string(body), "extension_recovery_attempts_total")
		assert.Contains(t, string(body), `strategy="cached_data"`)
	})

	t.Run("repeated unrecoverable errors trip the breaker until reset", func(t *testing.T) {
		odd := func() *apperrors.ExtensionError {
			return apperrors.NewExtensionError(apperrors.CategoryUnknown, apperrors.SeverityLow, "ODD", "unclassified failure")
		}
		for i := 0; i < recovery.DefaultConfig().BreakerThreshold && !s.manager.IsCircuitOpen(); i++ {
			s.manager.HandleError(ctx, odd(), nil)
		}
		require.True(t, s.manager.IsCircuitOpen())

		var health map[string]interface{}
		s.getJSON(t, "/healthz", &health)
		assert.Equal(t, "degraded", health["status"])

		result := s.adapter.HandleNetworkError(ctx, extensionsPath, listExtensionsOp, "reset by peer", nil)
		assert.Equal(t, recovery.TagNoRecovery, result.Strategy)
		assert.False(t, s.adapter.IsHealthy())

		resp, err := http.Post(s.admin.URL+"/recovery/circuit-breaker/reset", "application/json", nil)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		s.getJSON(t, "/healthz", &health)
		assert.Equal(t, "ok", health["status"])
		assert.True(t, s.adapter.IsHealthy())
	})

	t.Log("✅ ALL TESTS PASSED: full E2E recovery flow successful!")
}
