package blit

import (
	"time"

	"go.opentelemetry.io/otel/trace"
)

// DefaultTimeout bounds the wait for hardware completion.
const DefaultTimeout = 8 * time.Second

// Option configures an Executor during creation.
//
// Example:
//
//	ex := blit.NewExecutor(dev, iommu, q,
//	    blit.WithTimeout(2*time.Second),
//	    blit.WithMetrics(blit.NewMetrics("blit", prometheus.DefaultRegisterer)),
//	)
type Option func(*executorOptions)

// executorOptions holds optional configuration for Executor creation.
type executorOptions struct {
	timeout time.Duration
	metrics *Metrics
	tracer  trace.Tracer
	state   *EngineState
}

// defaultExecutorOptions returns the default executor options.
func defaultExecutorOptions() executorOptions {
	return executorOptions{
		timeout: DefaultTimeout,
	}
}

// WithTimeout sets the completion wait bound. Non-positive values keep the
// default.
func WithTimeout(d time.Duration) Option {
	return func(o *executorOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithMetrics sets the metrics sink. A nil sink disables metrics.
func WithMetrics(m *Metrics) Option {
	return func(o *executorOptions) {
		o.metrics = m
	}
}

// WithTracer sets the tracer used for per-job spans. By default the
// global OpenTelemetry tracer provider is used.
func WithTracer(t trace.Tracer) Option {
	return func(o *executorOptions) {
		o.tracer = t
	}
}

// WithEngineState injects the engine state, for callers that need to
// observe it. By default the executor creates its own.
func WithEngineState(s *EngineState) Option {
	return func(o *executorOptions) {
		o.state = s
	}
}
