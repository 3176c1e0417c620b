package recovery

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"extension-recovery/internal/common/errors"
	"extension-recovery/internal/common/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/goleak"
)

// ==========================
// Test Helper Functions
// ==========================

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Now().UTC()}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func createTestManager(t *testing.T, clock *fakeClock, deps Dependencies) *Manager {
	t.Helper()
	if deps.Logger == nil {
		deps.Logger = logger.NewTestLogger(t)
	}
	deps.Clock = clock.Now
	m, err := NewManager(DefaultConfig(), deps)
	require.NoError(t, err)
	return m
}

type spyRecorder struct {
	mu         sync.Mutex
	attempts   []StrategyTag
	rejections []string
	circuit    []bool
	patterns   map[string]int
}

func newSpyRecorder() *spyRecorder {
	return &spyRecorder{patterns: make(map[string]int)}
}

func (s *spyRecorder) ObserveAttempt(_ context.Context, _ string, tag StrategyTag, _ bool, _ time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts = append(s.attempts, tag)
}

func (s *spyRecorder) ObserveRejection(_ context.Context, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejections = append(s.rejections, reason)
}

func (s *spyRecorder) ObserveCircuitState(_ context.Context, open bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.circuit = append(s.circuit, open)
}

func (s *spyRecorder) ObservePattern(_ context.Context, key string, count int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.patterns[key] = count
}

type funcStrategy struct {
	name string
	run  func() (*RecoveryResult, error)
}

func (f *funcStrategy) Name() string                          { return f.name }
func (f *funcStrategy) CanHandle(*errors.ExtensionError) bool { return true }
func (f *funcStrategy) MaxAttempts() int                      { return 100 }
func (f *funcStrategy) BaseDelay() time.Duration              { return 0 }
func (f *funcStrategy) Tag() StrategyTag                      { return TagNoRecovery }
func (f *funcStrategy) Execute(context.Context, *errors.ExtensionError, map[string]interface{}) (*RecoveryResult, error) {
	return f.run()
}

// tripBreaker drives the manager into the open state with unhandled errors.
func tripBreaker(t *testing.T, m *Manager) {
	t.Helper()
	for i := 0; i < DefaultConfig().BreakerThreshold; i++ {
		extErr := errors.NewExtensionError(errors.CategoryUnknown, errors.SeverityLow, errors.ErrorCode(fmt.Sprintf("UNHANDLED_%d", i)), "unhandled")
		result := m.HandleError(context.Background(), extErr, nil)
		require.Equal(t, TagNoRecovery, result.Strategy)
	}
	require.True(t, m.IsCircuitOpen())
}

// ==========================
// Scenario Tests
// ==========================

func TestHandleError_TokenRefreshSucceeds(t *testing.T) {
	auth := &mockAuth{}
	auth.On("RefreshToken", mock.Anything).Return("tok123", nil).Once()

	m := createTestManager(t, newFakeClock(), Dependencies{Auth: auth})
	result := m.HandleError(context.Background(), errors.NewTokenExpiredError("/api/extensions/", "list_extensions"), nil)

	assert.True(t, result.Success)
	assert.Equal(t, TagRetryWithRefresh, result.Strategy)
	assert.False(t, result.RequiresUserAction)
	auth.AssertExpectations(t)
}

func TestHandleError_ServiceRestartRefused(t *testing.T) {
	services := &mockServiceRecovery{}
	services.On("ForceRecovery", mock.Anything, "svcX").Return(false, nil).Once()

	m := createTestManager(t, newFakeClock(), Dependencies{ServiceRecovery: services})
	result := m.HandleError(context.Background(),
		errors.NewServiceUnavailableError("/api/extensions/", "list_extensions"),
		map[string]interface{}{"service_name": "svcX"},
	)

	assert.False(t, result.Success)
	assert.Equal(t, 30.0, result.RetryAfterSeconds())
	services.AssertExpectations(t)

	history := m.History()
	require.Len(t, history, 1)
	assert.Equal(t, 30*time.Second, history[0].NextAttemptDelay)
}

func TestHandleError_NetworkBackoffWithoutCollaborators(t *testing.T) {
	m := createTestManager(t, newFakeClock(), Dependencies{})

	result := m.HandleError(context.Background(),
		errors.NewNetworkError("/api/extensions/", "list_extensions", errors.WithRetryCount(3)), nil)

	assert.False(t, result.Success)
	assert.Equal(t, TagRetryWithBackoff, result.Strategy)
	assert.GreaterOrEqual(t, result.RetryAfterSeconds(), 16.0)
}

func TestHandleError_ConsecutiveNetworkErrorsTripBreaker(t *testing.T) {
	m := createTestManager(t, newFakeClock(), Dependencies{})
	ctx := context.Background()

	var tags []StrategyTag
	for i := 0; i < 12; i++ {
		result := m.HandleError(ctx, errors.NewNetworkError("/api/extensions/", "list_extensions"), nil)
		tags = append(tags, result.Strategy)
		if i == 10 {
			assert.True(t, m.IsCircuitOpen(), "breaker opens on the 11th error")
		}
	}

	for i := 0; i < 5; i++ {
		assert.Equal(t, TagRetryWithBackoff, tags[i], "call %d", i+1)
	}
	assert.Equal(t, TagGracefulDegradation, tags[5])
	for i := 6; i < 12; i++ {
		assert.Equal(t, TagNoRecovery, tags[i], "call %d", i+1)
	}

	assert.True(t, m.IsCircuitOpen())
	rejected := m.HandleError(ctx, errors.NewNetworkError("/api/extensions/", "list_extensions"), nil)
	assert.False(t, rejected.Success)
	assert.Contains(t, rejected.Message, "Circuit breaker")
	assert.Equal(t, 60*time.Second, rejected.RetryAfter)
}

func TestHandleError_ReadOnlyEchoesCachedExtensions(t *testing.T) {
	cached := []interface{}{map[string]interface{}{"name": "x"}}
	m := createTestManager(t, newFakeClock(), Dependencies{})

	result := m.HandleError(context.Background(),
		errors.NewPermissionDeniedError("/api/extensions/", "list_extensions"),
		map[string]interface{}{"cached_extensions": cached},
	)

	require.True(t, result.Success)
	data := result.FallbackData.(map[string]interface{})
	assert.Equal(t, true, data["readonly"])
	assert.Equal(t, cached, data["extensions"])
}

func TestHandleError_NilError(t *testing.T) {
	m := createTestManager(t, newFakeClock(), Dependencies{})

	result := m.HandleError(context.Background(), nil, nil)

	assert.False(t, result.Success)
	assert.Equal(t, TagNoRecovery, result.Strategy)
}

// ==========================
// Dedup Tests
// ==========================

type blockingAuth struct {
	started chan struct{}
	release chan struct{}
	calls   atomic.Int32
}

func (b *blockingAuth) RefreshToken(ctx context.Context) (string, error) {
	b.calls.Add(1)
	b.started <- struct{}{}
	<-b.release
	return "tok", nil
}

func TestHandleError_ConcurrentSameKeyRunsOnce(t *testing.T) {
	defer goleak.VerifyNone(t)

	auth := &blockingAuth{started: make(chan struct{}, 1), release: make(chan struct{})}
	recorder := newSpyRecorder()
	m := createTestManager(t, newFakeClock(), Dependencies{Auth: auth, Recorder: recorder})
	ctx := context.Background()

	first := make(chan *RecoveryResult, 1)
	go func() {
		first <- m.HandleError(ctx, errors.NewTokenExpiredError("/api/extensions/", "list_extensions"), nil)
	}()
	<-auth.started

	active := m.ActiveRecoveries()
	require.Len(t, active, 1)
	assert.Equal(t, "auth_token_refresh", active[0].Strategy)
	assert.Equal(t, 1, active[0].AttemptNumber)

	second := m.HandleError(ctx, errors.NewTokenExpiredError("/api/extensions/", "list_extensions"), nil)
	assert.False(t, second.Success)
	assert.Equal(t, "Recovery already in progress", second.Message)
	assert.Equal(t, TagRetryWithRefresh, second.Strategy, "reports the in-flight action")
	assert.Equal(t, 5*time.Second, second.RetryAfter)

	close(auth.release)
	result := <-first

	assert.True(t, result.Success)
	assert.Equal(t, int32(1), auth.calls.Load())
	assert.Empty(t, m.ActiveRecoveries())
	assert.Equal(t, []string{RejectInProgress}, recorder.rejections)
}

func TestHandleError_DifferentKeysRunConcurrently(t *testing.T) {
	defer goleak.VerifyNone(t)

	auth := &blockingAuth{started: make(chan struct{}, 2), release: make(chan struct{})}
	m := createTestManager(t, newFakeClock(), Dependencies{Auth: auth})
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]*RecoveryResult, 2)
	for i, endpoint := range []string{"/a", "/b"} {
		wg.Add(1)
		go func(i int, endpoint string) {
			defer wg.Done()
			results[i] = m.HandleError(ctx, errors.NewTokenExpiredError(endpoint, "op"), nil)
		}(i, endpoint)
	}
	<-auth.started
	<-auth.started
	assert.Len(t, m.ActiveRecoveries(), 2)

	close(auth.release)
	wg.Wait()

	assert.True(t, results[0].Success)
	assert.True(t, results[1].Success)
}

func TestHandleError_ConcurrentSameCodeRespectsAttemptCeiling(t *testing.T) {
	defer goleak.VerifyNone(t)

	auth := &blockingAuth{started: make(chan struct{}, 2), release: make(chan struct{})}
	m := createTestManager(t, newFakeClock(), Dependencies{Auth: auth})
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]*RecoveryResult, 2)
	for i, endpoint := range []string{"/e0", "/e1"} {
		wg.Add(1)
		go func(i int, endpoint string) {
			defer wg.Done()
			results[i] = m.HandleError(ctx, errors.NewTokenExpiredError(endpoint, "op"), nil)
		}(i, endpoint)
	}
	<-auth.started
	<-auth.started

	// Both refresh slots are taken by running attempts, so a third endpoint
	// with the same code falls through to the next strategy.
	third := m.HandleError(ctx, errors.NewTokenExpiredError("/e2", "op"), nil)
	assert.Equal(t, TagGracefulDegradation, third.Strategy)

	close(auth.release)
	wg.Wait()

	assert.True(t, results[0].Success)
	assert.True(t, results[1].Success)
	assert.Equal(t, int32(2), auth.calls.Load())

	history := m.History()
	require.Len(t, history, 3)
	refreshes := 0
	for _, a := range history {
		if a.StrategyName == "auth_token_refresh" {
			refreshes++
		}
	}
	assert.Equal(t, 2, refreshes)
}

// ==========================
// Circuit Breaker Tests
// ==========================

func TestCircuitBreaker_ResetWindowClosesBreaker(t *testing.T) {
	clock := newFakeClock()
	recorder := newSpyRecorder()
	m := createTestManager(t, clock, Dependencies{Recorder: recorder})
	ctx := context.Background()

	tripBreaker(t, m)

	rejected := m.HandleError(ctx, errors.NewPermissionDeniedError("/e", "op"), nil)
	assert.Contains(t, rejected.Message, "Circuit breaker")

	clock.Advance(4 * time.Minute)
	assert.True(t, m.IsCircuitOpen())

	clock.Advance(time.Minute)
	assert.False(t, m.IsCircuitOpen())

	result := m.HandleError(ctx, errors.NewPermissionDeniedError("/e", "op"), nil)
	assert.True(t, result.Success)
	assert.Equal(t, TagFallbackToReadOnly, result.Strategy)
	assert.False(t, m.Statistics().CircuitBreakerOpen)
	assert.Equal(t, []bool{true, false}, recorder.circuit)
	assert.Contains(t, recorder.rejections, RejectCircuitOpen)
}

func TestCircuitBreaker_FailureAfterAutoCloseReopens(t *testing.T) {
	clock := newFakeClock()
	m := createTestManager(t, clock, Dependencies{})
	ctx := context.Background()

	tripBreaker(t, m)
	clock.Advance(5 * time.Minute)

	result := m.HandleError(ctx, errors.NewExtensionError(errors.CategoryUnknown, errors.SeverityLow, "PROBE", "probe"), nil)

	assert.Equal(t, "No suitable recovery strategy found", result.Message)
	assert.True(t, m.IsCircuitOpen())
}

func TestCircuitBreaker_ForceReset(t *testing.T) {
	m := createTestManager(t, newFakeClock(), Dependencies{})

	tripBreaker(t, m)
	m.ForceCircuitBreakerReset()

	stats := m.Statistics()
	assert.False(t, stats.CircuitBreakerOpen)
	assert.Nil(t, stats.CircuitBreakerOpenedAt)
	assert.Equal(t, 0, stats.GlobalErrorCount)

	result := m.HandleError(context.Background(), errors.NewPermissionDeniedError("/e", "op"), nil)
	assert.True(t, result.Success)
}

func TestCircuitBreaker_ResolvingSuccessResetsCount(t *testing.T) {
	auth := &mockAuth{}
	auth.On("RefreshToken", mock.Anything).Return("tok", nil)
	m := createTestManager(t, newFakeClock(), Dependencies{Auth: auth})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		m.HandleError(ctx, errors.NewExtensionError(errors.CategoryUnknown, errors.SeverityLow, "X", "x", errors.WithEndpoint(fmt.Sprint(i))), nil)
	}
	require.Equal(t, 3, m.Statistics().GlobalErrorCount)

	m.HandleError(ctx, errors.NewPermissionDeniedError("/e", "op"), nil)
	assert.Equal(t, 3, m.Statistics().GlobalErrorCount, "masking success leaves the count alone")

	m.HandleError(ctx, errors.NewTokenExpiredError("/e", "op"), nil)
	assert.Equal(t, 0, m.Statistics().GlobalErrorCount)
}

func TestCircuitBreaker_CountRollsOverAfterWindow(t *testing.T) {
	clock := newFakeClock()
	m := createTestManager(t, clock, Dependencies{})
	ctx := context.Background()

	for i := 0; i < 9; i++ {
		m.HandleError(ctx, errors.NewExtensionError(errors.CategoryUnknown, errors.SeverityLow, "X", "x"), nil)
	}
	require.Equal(t, 9, m.Statistics().GlobalErrorCount)

	clock.Advance(61 * time.Minute)
	m.HandleError(ctx, errors.NewExtensionError(errors.CategoryUnknown, errors.SeverityLow, "X", "x"), nil)

	assert.Equal(t, 1, m.Statistics().GlobalErrorCount)
	assert.False(t, m.IsCircuitOpen())
}

// ==========================
// Attempt Ceiling Tests
// ==========================

func TestSelectStrategy_AttemptCeilingPerCode(t *testing.T) {
	clock := newFakeClock()
	m := createTestManager(t, clock, Dependencies{})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		result := m.HandleError(ctx, errors.NewTimeoutError(fmt.Sprintf("/e%d", i), "op"), nil)
		require.Equal(t, TagRetryWithBackoff, result.Strategy)
	}

	result := m.HandleError(ctx, errors.NewTimeoutError("/e5", "op"), nil)
	assert.Equal(t, TagGracefulDegradation, result.Strategy)

	result = m.HandleError(ctx, errors.NewTimeoutError("/e6", "op"), nil)
	assert.Equal(t, TagNoRecovery, result.Strategy)
	assert.Equal(t, "No suitable recovery strategy found", result.Message)

	// A different code has its own budget.
	result = m.HandleError(ctx, errors.NewNetworkError("/e", "op"), nil)
	assert.Equal(t, TagRetryWithBackoff, result.Strategy)

	clock.Advance(61 * time.Minute)
	result = m.HandleError(ctx, errors.NewTimeoutError("/e7", "op"), nil)
	assert.Equal(t, TagRetryWithBackoff, result.Strategy)
}

// ==========================
// Fault Conversion Tests
// ==========================

func TestHandleError_StrategyFaults(t *testing.T) {
	tests := []struct {
		name    string
		run     func() (*RecoveryResult, error)
		message string
	}{
		{"panic", func() (*RecoveryResult, error) { panic("boom") }, "Recovery execution failed: boom"},
		{"returned error", func() (*RecoveryResult, error) { return nil, fmt.Errorf("broken") }, "Recovery execution failed: broken"},
		{"nil result", func() (*RecoveryResult, error) { return nil, nil }, "Recovery execution failed: strategy faulty returned no result"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sr := tracetest.NewSpanRecorder()
			tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))

			m := createTestManager(t, newFakeClock(), Dependencies{
				Strategies: []Strategy{&funcStrategy{name: "faulty", run: tt.run}},
				Tracer:     tp.Tracer("test"),
			})

			result := m.HandleError(context.Background(), errors.NewNetworkError("/e", "op"), nil)

			assert.False(t, result.Success)
			assert.Equal(t, TagNoRecovery, result.Strategy)
			assert.Equal(t, tt.message, result.Message)
			assert.Empty(t, m.ActiveRecoveries())

			history := m.History()
			require.Len(t, history, 1)
			assert.False(t, history[0].Success)
			assert.NotEmpty(t, history[0].ErrorMessage)
			assert.True(t, history[0].Completed())
			assert.Equal(t, 1, m.Statistics().GlobalErrorCount)

			spans := sr.Ended()
			require.Len(t, spans, 1)
			assert.Equal(t, "recovery.execute", spans[0].Name())
			assert.Len(t, spans[0].Events(), 1, "error recorded on span")
		})
	}
}

func TestHandleError_SpanPerExecution(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	m := createTestManager(t, newFakeClock(), Dependencies{Tracer: tp.Tracer("test")})

	m.HandleError(context.Background(), errors.NewPermissionDeniedError("/e", "op"), nil)
	m.HandleError(context.Background(), errors.NewExtensionError(errors.CategoryUnknown, errors.SeverityLow, "X", "x"), nil)

	spans := sr.Ended()
	require.Len(t, spans, 1, "no span without a dispatched strategy")

	attrs := map[string]interface{}{}
	for _, kv := range spans[0].Attributes() {
		attrs[string(kv.Key)] = kv.Value.AsInterface()
	}
	assert.Equal(t, "readonly_fallback", attrs["recovery.strategy"])
	assert.Equal(t, "PERMISSION_DENIED", attrs["error.code"])
	assert.Equal(t, true, attrs["recovery.success"])
}

// ==========================
// Pattern, Statistics & History Tests
// ==========================

func TestPatternDetection_IsDiagnosticOnly(t *testing.T) {
	clock := newFakeClock()
	recorder := newSpyRecorder()
	m := createTestManager(t, clock, Dependencies{Recorder: recorder})
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		m.HandleError(ctx, errors.NewPermissionDeniedError(fmt.Sprintf("/e%d", i), "op"), nil)
	}
	assert.Empty(t, recorder.patterns)

	m.HandleError(ctx, errors.NewPermissionDeniedError("/e4", "op"), nil)
	assert.Equal(t, 5, recorder.patterns["permission|PERMISSION_DENIED"])
	assert.Equal(t, 5, m.Statistics().ErrorPatterns["permission|PERMISSION_DENIED"])
	assert.False(t, m.IsCircuitOpen())
}

func TestPatternDetection_WindowPrunes(t *testing.T) {
	clock := newFakeClock()
	recorder := newSpyRecorder()
	m := createTestManager(t, clock, Dependencies{Recorder: recorder})
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		m.HandleError(ctx, errors.NewPermissionDeniedError("/e", "op"), nil)
	}

	clock.Advance(16 * time.Minute)
	extErr := errors.NewPermissionDeniedError("/e", "op")
	extErr.Timestamp = clock.Now()
	m.HandleError(ctx, extErr, nil)

	assert.Empty(t, recorder.patterns)
	assert.Equal(t, 1, m.Statistics().ErrorPatterns["permission|PERMISSION_DENIED"])
}

func TestStatistics_Aggregates(t *testing.T) {
	clock := newFakeClock()
	m := createTestManager(t, clock, Dependencies{})
	ctx := context.Background()

	m.HandleError(ctx, errors.NewNetworkError("/e", "op"), nil)
	m.HandleError(ctx, errors.NewNetworkError("/e", "op"), nil)
	m.HandleError(ctx, errors.NewPermissionDeniedError("/e", "op"), nil)

	stats := m.Statistics()
	assert.Equal(t, 3, stats.TotalAttempts24h)
	assert.Equal(t, 1, stats.SuccessfulAttempts24h)
	assert.Equal(t, 2, stats.FailedAttempts24h)
	assert.InDelta(t, 1.0/3.0, stats.SuccessRate24h, 1e-9)
	assert.Equal(t, StrategyStats{Total: 2, Successful: 0, SuccessRate: 0}, stats.StrategyStatistics["network_retry"])
	assert.Equal(t, StrategyStats{Total: 1, Successful: 1, SuccessRate: 1}, stats.StrategyStatistics["readonly_fallback"])
	assert.Equal(t, 2, stats.GlobalErrorCount)
	assert.Equal(t, 0, stats.ActiveRecoveries)

	clock.Advance(25 * time.Hour)
	stats = m.Statistics()
	assert.Equal(t, 0, stats.TotalAttempts24h)
	assert.Equal(t, 0.0, stats.SuccessRate24h)
}

func TestClearHistory(t *testing.T) {
	m := createTestManager(t, newFakeClock(), Dependencies{})
	ctx := context.Background()

	m.HandleError(ctx, errors.NewPermissionDeniedError("/e", "op"), nil)
	result := m.HandleError(ctx, errors.NewPermissionDeniedError("/e", "op"), nil)
	require.Equal(t, TagGracefulDegradation, result.Strategy)

	m.ClearHistory()

	assert.Empty(t, m.History())
	assert.Empty(t, m.Statistics().ErrorPatterns)

	result = m.HandleError(ctx, errors.NewPermissionDeniedError("/e", "op"), nil)
	assert.Equal(t, TagFallbackToReadOnly, result.Strategy, "ceilings reset with history")
}

func TestHistory_Retention(t *testing.T) {
	clock := newFakeClock()
	cfg := DefaultConfig()
	cfg.HistoryMaxEntries = 3
	m, err := NewManager(cfg, Dependencies{Clock: clock.Now, Logger: logger.NewTestLogger(t)})
	require.NoError(t, err)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		code := errors.ErrorCode(fmt.Sprintf("DENIED_%d", i))
		m.HandleError(ctx, errors.NewExtensionError(errors.CategoryPermission, errors.SeverityLow, code, "denied"), nil)
	}

	history := m.History()
	require.Len(t, history, 3)
	assert.Equal(t, errors.ErrorCode("DENIED_2"), history[0].Error.Code)

	clock.Advance(25 * time.Hour)
	m.HandleError(ctx, errors.NewExtensionError(errors.CategoryPermission, errors.SeverityLow, "DENIED_LATE", "denied"), nil)

	history = m.History()
	require.Len(t, history, 1)
	assert.Equal(t, errors.ErrorCode("DENIED_LATE"), history[0].Error.Code)
}

func TestHistory_MaxEntriesKeepsNewest(t *testing.T) {
	now := time.Now().UTC()
	h := newHistory(time.Hour, 3)

	for i := 0; i < 10; i++ {
		h.add(&RecoveryAttempt{
			Error:        errors.NewExtensionError(errors.CategoryNetwork, errors.SeverityLow, errors.ErrorCode(fmt.Sprintf("E_%d", i)), "x"),
			StrategyName: "network_retry",
			StartedAt:    now,
		}, now)
		assert.LessOrEqual(t, h.len(), 3)
	}

	require.Equal(t, 3, h.len())
	for i, a := range h.attempts {
		assert.Equal(t, errors.ErrorCode(fmt.Sprintf("E_%d", i+7)), a.Error.Code)
	}
	assert.Equal(t, 1, h.countFor("E_9", "network_retry", now.Add(-time.Minute)))
	assert.Zero(t, h.countFor("E_0", "network_retry", now.Add(-time.Minute)))
}

// ==========================
// Config Tests
// ==========================

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"zero pattern window", func(c *Config) { c.PatternWindow = 0 }, "pattern_window"},
		{"negative reset window", func(c *Config) { c.BreakerResetWindow = -time.Second }, "breaker_reset_window"},
		{"zero breaker threshold", func(c *Config) { c.BreakerThreshold = 0 }, "breaker_threshold"},
		{"zero pattern threshold", func(c *Config) { c.PatternThreshold = 0 }, "pattern_threshold"},
		{"zero history cap", func(c *Config) { c.HistoryMaxEntries = 0 }, "history_max_entries"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)

			_, err = NewManager(cfg, Dependencies{})
			assert.Error(t, err)
		})
	}
}
