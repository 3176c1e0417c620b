// Package admin exposes the recovery manager's operator endpoints over HTTP.
package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	apperrors "extension-recovery/internal/common/errors"
	"extension-recovery/internal/common/logger"
	"extension-recovery/internal/recovery"
)

// Manager is the operator-facing part of recovery.Manager.
type Manager interface {
	Statistics() recovery.Statistics
	ActiveRecoveries() []recovery.ActiveRecovery
	History() []recovery.RecoveryAttempt
	ClearHistory()
	ForceCircuitBreakerReset()
	IsCircuitOpen() bool
}

// Degradations is the operator view of the degradation marks.
type Degradations interface {
	DegradedOperations(ctx context.Context) ([]string, error)
	IsDegraded(ctx context.Context, operation string) (bool, apperrors.ErrorCategory, error)
	Clear(ctx context.Context, operation string) error
}

// CacheEvicter drops a cached operation result.
type CacheEvicter interface {
	Delete(ctx context.Context, key string) error
}

// Check is a named readiness probe for a collaborator such as Redis.
type Check struct {
	Name string
	Fn   func(ctx context.Context) error
}

type Server struct {
	manager      Manager
	checks       []Check
	metrics      http.Handler
	degradations Degradations
	cache        CacheEvicter
	logger       logger.Logger
}

// NewServer builds the admin surface. metrics may be nil.
func NewServer(m Manager, metrics http.Handler, log logger.Logger, checks ...Check) *Server {
	return &Server{manager: m, checks: checks, metrics: metrics, logger: log}
}

// WithDegradations exposes the degradation marks under /recovery/degraded.
func (s *Server) WithDegradations(d Degradations) *Server {
	s.degradations = d
	return s
}

// WithCache exposes eviction of cached results under /recovery/cache.
func (s *Server) WithCache(c CacheEvicter) *Server {
	s.cache = c
	return s
}

// Handler returns the routed admin endpoints.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.health)
	mux.HandleFunc("GET /readyz", s.ready)
	mux.HandleFunc("GET /recovery/statistics", s.statistics)
	mux.HandleFunc("GET /recovery/active", s.active)
	mux.HandleFunc("GET /recovery/history", s.history)
	mux.HandleFunc("DELETE /recovery/history", s.clearHistory)
	mux.HandleFunc("POST /recovery/circuit-breaker/reset", s.resetBreaker)
	if s.degradations != nil {
		mux.HandleFunc("GET /recovery/degraded", s.listDegraded)
		mux.HandleFunc("GET /recovery/degraded/{operation}", s.getDegraded)
		mux.HandleFunc("DELETE /recovery/degraded/{operation}", s.clearDegraded)
	}
	if s.cache != nil {
		mux.HandleFunc("DELETE /recovery/cache/{key...}", s.evictCache)
	}
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}
	return mux
}

// health reports liveness and whether recovery is currently enabled. An
// open breaker is not a liveness failure.
func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	open := s.manager.IsCircuitOpen()
	status := "ok"
	if open {
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":               status,
		"circuit_breaker_open": open,
	})
}

func (s *Server) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	failures := map[string]string{}
	for _, c := range s.checks {
		if err := c.Fn(ctx); err != nil {
			failures[c.Name] = err.Error()
		}
	}
	if len(failures) > 0 {
		s.logger.Warn("readiness check failed", map[string]interface{}{"failures": failures})
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{"status": "unavailable", "failures": failures})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ready"})
}

func (s *Server) statistics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.manager.Statistics())
}

func (s *Server) active(w http.ResponseWriter, _ *http.Request) {
	active := s.manager.ActiveRecoveries()
	if active == nil {
		active = []recovery.ActiveRecovery{}
	}
	writeJSON(w, http.StatusOK, active)
}

func (s *Server) history(w http.ResponseWriter, _ *http.Request) {
	h := s.manager.History()
	if h == nil {
		h = []recovery.RecoveryAttempt{}
	}
	writeJSON(w, http.StatusOK, h)
}

func (s *Server) clearHistory(w http.ResponseWriter, _ *http.Request) {
	s.manager.ClearHistory()
	s.logger.Info("recovery history cleared by operator", nil)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) resetBreaker(w http.ResponseWriter, _ *http.Request) {
	s.manager.ForceCircuitBreakerReset()
	s.logger.Info("circuit breaker reset by operator", nil)
	writeJSON(w, http.StatusOK, map[string]interface{}{"circuit_breaker_open": s.manager.IsCircuitOpen()})
}

type degradedOperation struct {
	Operation string                  `json:"operation"`
	Degraded  bool                    `json:"degraded"`
	Category  apperrors.ErrorCategory `json:"category,omitempty"`
}

func (s *Server) listDegraded(w http.ResponseWriter, r *http.Request) {
	ops, err := s.degradations.DegradedOperations(r.Context())
	if err != nil {
		s.fail(w, "list degraded operations", err)
		return
	}

	out := make([]degradedOperation, 0, len(ops))
	for _, op := range ops {
		degraded, category, err := s.degradations.IsDegraded(r.Context(), op)
		if err != nil {
			s.fail(w, "read degradation", err)
			return
		}
		// The mark can expire between the scan and the read.
		if degraded {
			out = append(out, degradedOperation{Operation: op, Degraded: true, Category: category})
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getDegraded(w http.ResponseWriter, r *http.Request) {
	op := r.PathValue("operation")
	degraded, category, err := s.degradations.IsDegraded(r.Context(), op)
	if err != nil {
		s.fail(w, "read degradation", err)
		return
	}
	writeJSON(w, http.StatusOK, degradedOperation{Operation: op, Degraded: degraded, Category: category})
}

func (s *Server) clearDegraded(w http.ResponseWriter, r *http.Request) {
	op := r.PathValue("operation")
	if err := s.degradations.Clear(r.Context(), op); err != nil {
		s.fail(w, "clear degradation", err)
		return
	}
	s.logger.Info("degradation cleared by operator", map[string]interface{}{"operation": op})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) evictCache(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if err := s.cache.Delete(r.Context(), key); err != nil {
		s.fail(w, "evict cached result", err)
		return
	}
	s.logger.Info("cached result evicted by operator", map[string]interface{}{"cache_key": key})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) fail(w http.ResponseWriter, action string, err error) {
	s.logger.Error(action+" failed", map[string]interface{}{"error": err})
	writeJSON(w, http.StatusBadGateway, map[string]interface{}{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
