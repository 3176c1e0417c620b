package observability

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"extension-recovery/internal/recovery"

	promclient "github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Observability owns the OpenTelemetry meter and tracer providers.
type Observability struct {
	meterProvider  *metric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
	recorder       *MeterRecorder
	serviceName    string
}

// New installs global meter and tracer providers for serviceName. Metrics
// are exported through a Prometheus reader registered with reg.
func New(serviceName string, reg promclient.Registerer) (*Observability, error) {
	exporter, err := prometheus.New(prometheus.WithRegisterer(reg))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	res := resource.NewSchemaless(attribute.String("service.name", serviceName))

	meterProvider := metric.NewMeterProvider(
		metric.WithReader(exporter),
		metric.WithResource(res),
	)
	tracerProvider := sdktrace.NewTracerProvider(sdktrace.WithResource(res))

	otel.SetMeterProvider(meterProvider)
	otel.SetTracerProvider(tracerProvider)

	recorder, err := NewMeterRecorder(meterProvider.Meter(serviceName))
	if err != nil {
		_ = meterProvider.Shutdown(context.Background())
		return nil, err
	}

	return &Observability{
		meterProvider:  meterProvider,
		tracerProvider: tracerProvider,
		recorder:       recorder,
		serviceName:    serviceName,
	}, nil
}

// Recorder returns the OpenTelemetry recovery.Recorder.
func (o *Observability) Recorder() *MeterRecorder { return o.recorder }

// Tracer returns the tracer the recovery manager opens spans with.
func (o *Observability) Tracer() trace.Tracer {
	return o.tracerProvider.Tracer(o.serviceName)
}

func (o *Observability) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return errors.Join(
		o.tracerProvider.Shutdown(ctx),
		o.meterProvider.Shutdown(ctx),
	)
}

// MeterRecorder records recovery telemetry as OpenTelemetry instruments.
type MeterRecorder struct {
	attempts     otelmetric.Int64Counter
	duration     otelmetric.Float64Histogram
	rejections   otelmetric.Int64Counter
	circuitState otelmetric.Int64UpDownCounter
	patterns     otelmetric.Int64Counter

	mu   sync.Mutex
	open bool
}

func NewMeterRecorder(meter otelmetric.Meter) (*MeterRecorder, error) {
	attempts, err := meter.Int64Counter(
		"recovery.attempts",
		otelmetric.WithDescription("Number of recovery strategy executions"),
	)
	if err != nil {
		return nil, err
	}

	duration, err := meter.Float64Histogram(
		"recovery.attempt.duration",
		otelmetric.WithDescription("Recovery strategy execution duration"),
		otelmetric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	rejections, err := meter.Int64Counter(
		"recovery.rejections",
		otelmetric.WithDescription("Recovery requests answered without running a strategy"),
	)
	if err != nil {
		return nil, err
	}

	circuitState, err := meter.Int64UpDownCounter(
		"recovery.circuit_breaker.open",
		otelmetric.WithDescription("1 while the recovery circuit breaker is open"),
	)
	if err != nil {
		return nil, err
	}

	patterns, err := meter.Int64Counter(
		"recovery.error_patterns",
		otelmetric.WithDescription("Detected recurring error patterns"),
	)
	if err != nil {
		return nil, err
	}

	return &MeterRecorder{
		attempts:     attempts,
		duration:     duration,
		rejections:   rejections,
		circuitState: circuitState,
		patterns:     patterns,
	}, nil
}

func (r *MeterRecorder) ObserveAttempt(ctx context.Context, strategy string, tag recovery.StrategyTag, success bool, d time.Duration) {
	attrs := otelmetric.WithAttributes(
		attribute.String("strategy", strategy),
		attribute.String("tag", string(tag)),
		attribute.Bool("success", success),
	)
	r.attempts.Add(ctx, 1, attrs)
	r.duration.Record(ctx, float64(d.Microseconds())/1000, attrs)
}

func (r *MeterRecorder) ObserveRejection(ctx context.Context, reason string) {
	r.rejections.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("reason", reason)))
}

// ObserveCircuitState only records transitions, so the counter stays 0 or 1.
func (r *MeterRecorder) ObserveCircuitState(ctx context.Context, open bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if open == r.open {
		return
	}
	r.open = open
	if open {
		r.circuitState.Add(ctx, 1)
		return
	}
	r.circuitState.Add(ctx, -1)
}

func (r *MeterRecorder) ObservePattern(ctx context.Context, key string, _ int) {
	r.patterns.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("pattern", key)))
}
