package recovery

import (
	"context"
	"fmt"
	"sync"
	"time"

	"extension-recovery/internal/common/errors"
	"extension-recovery/internal/common/logger"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "extension-recovery/internal/recovery"

// Dependencies are the collaborators and hooks of a Manager. Every field is
// optional; strategies whose collaborator is missing never claim an error.
type Dependencies struct {
	Auth            AuthManager
	ServiceRecovery ServiceRecoveryManager
	Cache           CacheManager
	Degradation     DegradationManager
	Alerter         Alerter

	Logger   logger.Logger
	Recorder Recorder
	Tracer   trace.Tracer
	Clock    func() time.Time

	// Strategies overrides DefaultStrategies when non-empty.
	Strategies []Strategy
}

// Manager orchestrates recovery for concurrently reported errors. All shared
// state is guarded by mu; strategies run without holding it.
type Manager struct {
	config     Config
	strategies []Strategy
	logger     logger.Logger
	recorder   Recorder
	tracer     trace.Tracer
	now        func() time.Time

	mu       sync.Mutex
	active   map[string]*RecoveryAttempt
	history  *history
	patterns *patternTracker
	breaker  *circuitBreaker
}

// NewManager validates cfg and builds a Manager.
func NewManager(cfg Config, deps Dependencies) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid recovery config: %w", err)
	}

	if deps.Logger == nil {
		deps.Logger = logger.NewNoOpLogger()
	}
	if deps.Recorder == nil {
		deps.Recorder = nopRecorder{}
	}
	if deps.Tracer == nil {
		deps.Tracer = otel.Tracer(tracerName)
	}
	if deps.Clock == nil {
		deps.Clock = func() time.Time { return time.Now().UTC() }
	}

	strategies := deps.Strategies
	if len(strategies) == 0 {
		strategies = DefaultStrategies(deps)
	}

	return &Manager{
		config:     cfg,
		strategies: strategies,
		logger:     deps.Logger.WithFields(map[string]interface{}{"component": "recovery_manager"}),
		recorder:   deps.Recorder,
		tracer:     deps.Tracer,
		now:        deps.Clock,
		active:     make(map[string]*RecoveryAttempt),
		history:    newHistory(cfg.HistoryRetention, cfg.HistoryMaxEntries),
		patterns:   newPatternTracker(cfg.PatternWindow, cfg.PatternThreshold),
		breaker:    newCircuitBreaker(cfg, deps.Clock()),
	}, nil
}

// ==========================
// Error Handling
// ==========================

// HandleError tries to recover from err and never fails: every problem is
// reported through an unsuccessful RecoveryResult. rc carries free-form
// caller context such as service_name or cached_* payloads.
func (m *Manager) HandleError(ctx context.Context, err *errors.ExtensionError, rc map[string]interface{}) *RecoveryResult {
	if err == nil {
		return failed(TagNoRecovery, "No error to recover from")
	}
	if rc == nil {
		rc = map[string]interface{}{}
	}

	attempt, strategy, rejected := m.dispatch(ctx, err)
	if rejected != nil {
		return rejected
	}

	result, execErr := m.execute(ctx, strategy, err, rc)

	m.complete(ctx, attempt, result, execErr)

	if execErr != nil {
		return failed(TagNoRecovery, fmt.Sprintf("Recovery execution failed: %v", execErr))
	}
	return result
}

// dispatch runs the breaker gate, pattern tracking, dedup and strategy
// selection atomically, then registers the attempt as active.
func (m *Manager) dispatch(ctx context.Context, err *errors.ExtensionError) (*RecoveryAttempt, Strategy, *RecoveryResult) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()

	allowed, closed := m.breaker.admit(now)
	if closed {
		m.logger.Info("circuit breaker closed after reset window", nil)
		m.recorder.ObserveCircuitState(ctx, false)
	}
	if !allowed {
		m.recorder.ObserveRejection(ctx, RejectCircuitOpen)
		return nil, nil, &RecoveryResult{
			Strategy:   TagNoRecovery,
			Message:    "Circuit breaker is open, recovery temporarily disabled",
			RetryAfter: m.config.BreakerRetryAfter,
		}
	}

	m.trackPattern(ctx, err, now)

	key := err.RecoveryKey()
	if existing, inFlight := m.active[key]; inFlight {
		m.recorder.ObserveRejection(ctx, RejectInProgress)
		return nil, nil, &RecoveryResult{
			Strategy:   existing.Tag,
			Message:    "Recovery already in progress",
			RetryAfter: m.config.InProgressRetryAfter,
		}
	}

	strategy := m.selectStrategy(err, now)
	if strategy == nil {
		m.recorder.ObserveRejection(ctx, RejectNoStrategy)
		m.recordFailure(ctx, now)
		return nil, nil, failed(TagNoRecovery, "No suitable recovery strategy found")
	}

	attempt := &RecoveryAttempt{
		ID:            uuid.New().String(),
		RecoveryKey:   key,
		Error:         err,
		StrategyName:  strategy.Name(),
		Tag:           strategy.Tag(),
		AttemptNumber: err.RetryCount + 1,
		StartedAt:     now,
	}
	m.active[key] = attempt

	m.logger.Info("executing recovery strategy", map[string]interface{}{
		"strategy":       strategy.Name(),
		"error_code":     err.Code,
		"recovery_key":   key,
		"attempt_number": attempt.AttemptNumber,
	})

	return attempt, strategy, nil
}

func (m *Manager) trackPattern(ctx context.Context, err *errors.ExtensionError, now time.Time) {
	ts := err.Timestamp
	if ts.IsZero() {
		ts = now
	}

	key := err.PatternKey()
	count, detected := m.patterns.track(key, ts, now)
	if detected {
		m.logger.Warn("error pattern detected", map[string]interface{}{
			"pattern":  key,
			"category": err.Category,
			"count":    count,
			"window":   m.config.PatternWindow.String(),
		})
		m.recorder.ObservePattern(ctx, key, count)
	}
}

// selectStrategy returns the first strategy that claims err and has not used
// up its attempts for err.Code within the attempt window. In-flight attempts
// count against the ceiling. Must be called with mu held.
func (m *Manager) selectStrategy(err *errors.ExtensionError, now time.Time) Strategy {
	since := now.Add(-m.config.AttemptWindow)
	for _, s := range m.strategies {
		if !s.CanHandle(err) {
			continue
		}
		used := m.history.countFor(err.Code, s.Name(), since) + m.inFlightFor(err.Code, s.Name())
		if used < s.MaxAttempts() {
			return s
		}
		m.logger.Debug("strategy exceeded max attempts", map[string]interface{}{
			"strategy":     s.Name(),
			"error_code":   err.Code,
			"max_attempts": s.MaxAttempts(),
		})
	}
	return nil
}

func (m *Manager) inFlightFor(code errors.ErrorCode, strategy string) int {
	n := 0
	for _, a := range m.active {
		if a.Error.Code == code && a.StrategyName == strategy {
			n++
		}
	}
	return n
}

// execute runs the strategy outside the lock and converts panics and
// returned errors into execErr.
func (m *Manager) execute(ctx context.Context, s Strategy, err *errors.ExtensionError, rc map[string]interface{}) (result *RecoveryResult, execErr error) {
	ctx, span := m.tracer.Start(ctx, "recovery.execute", trace.WithAttributes(
		attribute.String("recovery.strategy", s.Name()),
		attribute.String("error.code", string(err.Code)),
		attribute.String("error.category", string(err.Category)),
	))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			result, execErr = nil, fmt.Errorf("%v", r)
		}
		if execErr != nil {
			span.RecordError(execErr)
			span.SetStatus(codes.Error, execErr.Error())
			m.logger.Error("recovery strategy execution failed", map[string]interface{}{
				"strategy":   s.Name(),
				"error_code": err.Code,
				"error":      execErr.Error(),
			})
			return
		}
		span.SetAttributes(
			attribute.Bool("recovery.success", result.Success),
			attribute.String("recovery.tag", string(result.Strategy)),
		)
	}()

	result, execErr = s.Execute(ctx, err, rc)
	if execErr == nil && result == nil {
		execErr = fmt.Errorf("strategy %s returned no result", s.Name())
	}
	return result, execErr
}

// complete moves the attempt to history and updates the breaker.
func (m *Manager) complete(ctx context.Context, attempt *RecoveryAttempt, result *RecoveryResult, execErr error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	attempt.CompletedAt = now

	tag := TagNoRecovery
	if execErr != nil {
		attempt.Success = false
		attempt.ErrorMessage = execErr.Error()
	} else {
		tag = result.Strategy
		attempt.Success = result.Success
		attempt.RecoveryData = result
		if !result.Success && result.RetryAfter > 0 {
			attempt.NextAttemptDelay = result.RetryAfter
		}
	}

	delete(m.active, attempt.RecoveryKey)
	m.history.add(attempt, now)

	m.recorder.ObserveAttempt(ctx, attempt.StrategyName, tag, attempt.Success, now.Sub(attempt.StartedAt))

	// Masking fallbacks succeed but leave the failure count alone. Only
	// resolving tags reset it.
	switch {
	case !attempt.Success:
		m.recordFailure(ctx, now)
	case tag.Resolves():
		if m.breaker.recordResolution(now) {
			m.logger.Info("circuit breaker reset", nil)
			m.recorder.ObserveCircuitState(ctx, false)
		}
	}
}

// recordFailure must be called with mu held.
func (m *Manager) recordFailure(ctx context.Context, now time.Time) {
	if m.breaker.recordFailure(now) {
		m.logger.Warn("circuit breaker opened", map[string]interface{}{
			"failures":  m.breaker.failures,
			"threshold": m.breaker.threshold,
			"window":    m.config.FailureCountWindow.String(),
		})
		m.recorder.ObserveCircuitState(ctx, true)
	}
}

// ==========================
// Read Operations
// ==========================

// IsCircuitOpen reports whether the breaker currently rejects work.
func (m *Manager) IsCircuitOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.breaker.isOpen(m.now())
}

// Statistics aggregates history, patterns and breaker state.
func (m *Manager) Statistics() Statistics {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	since := now.Add(-m.config.StatisticsWindow)
	recent := m.history.since(since)

	stats := Statistics{
		TotalAttempts24h:   len(recent),
		ActiveRecoveries:   len(m.active),
		StrategyStatistics: make(map[string]StrategyStats),
		ErrorPatterns:      m.patterns.counts(since),
		CircuitBreakerOpen: m.breaker.isOpen(now),
		GlobalErrorCount:   m.breaker.failures,
		LastErrorReset:     m.breaker.lastReset,
	}

	for _, a := range recent {
		s := stats.StrategyStatistics[a.StrategyName]
		s.Total++
		if a.Success {
			s.Successful++
			stats.SuccessfulAttempts24h++
		}
		stats.StrategyStatistics[a.StrategyName] = s
	}
	stats.FailedAttempts24h = stats.TotalAttempts24h - stats.SuccessfulAttempts24h

	for name, s := range stats.StrategyStatistics {
		s.SuccessRate = ratio(s.Successful, s.Total)
		stats.StrategyStatistics[name] = s
	}
	stats.SuccessRate24h = ratio(stats.SuccessfulAttempts24h, stats.TotalAttempts24h)

	if stats.CircuitBreakerOpen {
		openedAt := m.breaker.openedAt
		stats.CircuitBreakerOpenedAt = &openedAt
	}

	return stats
}

func ratio(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total)
}

// ActiveRecoveries lists in-flight attempts with their elapsed time.
func (m *Manager) ActiveRecoveries() []ActiveRecovery {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	out := make([]ActiveRecovery, 0, len(m.active))
	for key, a := range m.active {
		out = append(out, ActiveRecovery{
			RecoveryKey:     key,
			ErrorCode:       a.Error.Code,
			ErrorCategory:   a.Error.Category,
			Strategy:        a.StrategyName,
			AttemptNumber:   a.AttemptNumber,
			StartedAt:       a.StartedAt,
			DurationSeconds: now.Sub(a.StartedAt).Seconds(),
		})
	}
	return out
}

// History returns a copy of the completed attempts, oldest first.
func (m *Manager) History() []RecoveryAttempt {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]RecoveryAttempt, 0, m.history.len())
	for _, a := range m.history.attempts {
		out = append(out, *a)
	}
	return out
}

// ==========================
// Administrative Operations
// ==========================

// ClearHistory drops completed attempts and pattern data. In-flight attempts
// and the breaker are untouched.
func (m *Manager) ClearHistory() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.history.clear()
	m.patterns.clear()
	m.logger.Info("recovery history cleared", nil)
}

// ForceCircuitBreakerReset closes the breaker and zeroes the failure count.
func (m *Manager) ForceCircuitBreakerReset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.breaker.forceReset(m.now())
	m.logger.Info("circuit breaker force reset by admin", nil)
	m.recorder.ObserveCircuitState(context.Background(), false)
}
