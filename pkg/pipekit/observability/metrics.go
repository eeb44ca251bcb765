package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records pipeline metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordStage records one stage execution with duration and error
	// status.
	RecordStage(ctx context.Context, verb string, duration time.Duration, err error)

	// RecordRun records a pipeline run completion.
	RecordRun(ctx context.Context, success bool, duration time.Duration)

	// RecordAmbiguity records a dispatch ambiguity for a verb.
	RecordAmbiguity(ctx context.Context, verb string)

	// RecordFallback records an undetermined call mode resolved by policy.
	RecordFallback(ctx context.Context, verb string, assumed string)
}

type otelMetrics struct {
	stageExecutions metric.Int64Counter
	stageLatency    metric.Float64Histogram
	stageErrors     metric.Int64Counter
	pipelineRuns    metric.Int64Counter
	pipelineLatency metric.Float64Histogram
	ambiguities     metric.Int64Counter
	fallbacks       metric.Int64Counter
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("pipekit")

	stageExecutions, err := meter.Int64Counter("pipekit.stage.executions",
		metric.WithDescription("Number of stage executions"),
	)
	if err != nil {
		return nil, err
	}

	stageLatency, err := meter.Float64Histogram("pipekit.stage.latency_ms",
		metric.WithDescription("Stage execution latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	stageErrors, err := meter.Int64Counter("pipekit.stage.errors",
		metric.WithDescription("Number of stage execution errors"),
	)
	if err != nil {
		return nil, err
	}

	pipelineRuns, err := meter.Int64Counter("pipekit.pipeline.runs",
		metric.WithDescription("Number of pipeline runs"),
	)
	if err != nil {
		return nil, err
	}

	pipelineLatency, err := meter.Float64Histogram("pipekit.pipeline.latency_ms",
		metric.WithDescription("Pipeline run latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	ambiguities, err := meter.Int64Counter("pipekit.dispatch.ambiguities",
		metric.WithDescription("Number of ambiguous dispatch resolutions"),
	)
	if err != nil {
		return nil, err
	}

	fallbacks, err := meter.Int64Counter("pipekit.calling.fallbacks",
		metric.WithDescription("Number of call modes resolved by fallback policy"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		stageExecutions: stageExecutions,
		stageLatency:    stageLatency,
		stageErrors:     stageErrors,
		pipelineRuns:    pipelineRuns,
		pipelineLatency: pipelineLatency,
		ambiguities:     ambiguities,
		fallbacks:       fallbacks,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder backed by OpenTelemetry.
// If metrics initialization fails, it returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the provider
// before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// RecordStage records one stage execution.
func (m *otelMetrics) RecordStage(ctx context.Context, verb string, duration time.Duration, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("verb", verb),
	}

	m.stageExecutions.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.stageLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))

	if err != nil {
		m.stageErrors.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// RecordRun records a pipeline run.
func (m *otelMetrics) RecordRun(ctx context.Context, success bool, duration time.Duration) {
	attrs := []attribute.KeyValue{
		attribute.Bool("success", success),
	}
	m.pipelineRuns.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.pipelineLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
}

// RecordAmbiguity records a dispatch ambiguity.
func (m *otelMetrics) RecordAmbiguity(ctx context.Context, verb string) {
	m.ambiguities.Add(ctx, 1, metric.WithAttributes(attribute.String("verb", verb)))
}

// RecordFallback records a fallback-resolved call mode.
func (m *otelMetrics) RecordFallback(ctx context.Context, verb string, assumed string) {
	m.fallbacks.Add(ctx, 1, metric.WithAttributes(
		attribute.String("verb", verb),
		attribute.String("assumed", assumed),
	))
}
