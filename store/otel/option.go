package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// DefaultServiceName is the service.name attribute used when none is configured.
const DefaultServiceName = "board"

type options struct {
	serviceName    string
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

func newOptions(opts ...Option) *options {
	o := &options{
		serviceName:    DefaultServiceName,
		tracerProvider: otel.GetTracerProvider(),
		meterProvider:  otel.GetMeterProvider(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Option configures the instrumented store.
type Option func(*options)

// WithServiceName sets the service.name attribute. Default is "board".
func WithServiceName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.serviceName = name
		}
	}
}

// WithTracerProvider sets the tracer provider. Default is the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		if tp != nil {
			o.tracerProvider = tp
		}
	}
}

// WithMeterProvider sets the meter provider. Default is the global provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) {
		if mp != nil {
			o.meterProvider = mp
		}
	}
}

// WithTracing toggles span creation.
func WithTracing(enabled bool) Option {
	return func(o *options) {
		if !enabled {
			o.tracerProvider = tracenoop.NewTracerProvider()
		}
	}
}

// WithMetrics toggles metric recording.
func WithMetrics(enabled bool) Option {
	return func(o *options) {
		if !enabled {
			o.meterProvider = metricnoop.NewMeterProvider()
		}
	}
}
