// internal/common/metrics/metrics.go
package metrics

import (
	"context"
	"time"

	"extension-recovery/internal/recovery"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder exports recovery outcomes and worker job counts as Prometheus
// metrics. It implements recovery.Recorder.
type Recorder struct {
	RecoveryAttempts        *prometheus.CounterVec
	RecoveryAttemptDuration *prometheus.HistogramVec
	RecoveryRejections      *prometheus.CounterVec
	CircuitBreakerOpen      prometheus.Gauge
	ErrorPatterns           *prometheus.CounterVec

	WorkerJobsCompleted *prometheus.CounterVec
	WorkerJobsFailed    *prometheus.CounterVec
	WorkerJobDuration   *prometheus.HistogramVec
}

// NewRecorder registers the metrics with reg. Pass prometheus.DefaultRegisterer
// to expose them on the default /metrics handler.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		RecoveryAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "extension_recovery_attempts_total",
				Help: "Total number of recovery strategy executions",
			},
			[]string{"strategy", "tag", "outcome"},
		),
		RecoveryAttemptDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "extension_recovery_attempt_duration_seconds",
				Help:    "Duration of recovery strategy executions in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"strategy"},
		),
		RecoveryRejections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "extension_recovery_rejections_total",
				Help: "Recovery requests answered without running a strategy",
			},
			[]string{"reason"},
		),
		CircuitBreakerOpen: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "extension_recovery_circuit_breaker_open",
				Help: "1 while the recovery circuit breaker is open",
			},
		),
		ErrorPatterns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "extension_recovery_error_patterns_total",
				Help: "Number of times a recurring error pattern was detected",
			},
			[]string{"pattern"},
		),
		WorkerJobsCompleted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "worker_jobs_completed_total",
				Help: "Total number of jobs completed by worker",
			},
			[]string{"task_type"},
		),
		WorkerJobsFailed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "worker_jobs_failed_total",
				Help: "Total number of jobs failed by worker",
			},
			[]string{"task_type", "error_code"},
		),
		WorkerJobDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "worker_job_duration_seconds",
				Help: "Duration of job processing in seconds",
			},
			[]string{"task_type"},
		),
	}
}

func outcome(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

func (r *Recorder) ObserveAttempt(_ context.Context, strategy string, tag recovery.StrategyTag, success bool, d time.Duration) {
	r.RecoveryAttempts.WithLabelValues(strategy, string(tag), outcome(success)).Inc()
	r.RecoveryAttemptDuration.WithLabelValues(strategy).Observe(d.Seconds())
}

func (r *Recorder) ObserveRejection(_ context.Context, reason string) {
	r.RecoveryRejections.WithLabelValues(reason).Inc()
}

func (r *Recorder) ObserveCircuitState(_ context.Context, open bool) {
	if open {
		r.CircuitBreakerOpen.Set(1)
		return
	}
	r.CircuitBreakerOpen.Set(0)
}

func (r *Recorder) ObservePattern(_ context.Context, key string, _ int) {
	r.ErrorPatterns.WithLabelValues(key).Inc()
}

// ObserveJob records one processed worker job. errorCode is empty on success.
func (r *Recorder) ObserveJob(taskType, errorCode string, d time.Duration) {
	r.WorkerJobDuration.WithLabelValues(taskType).Observe(d.Seconds())
	if errorCode == "" {
		r.WorkerJobsCompleted.WithLabelValues(taskType).Inc()
		return
	}
	r.WorkerJobsFailed.WithLabelValues(taskType, errorCode).Inc()
}
