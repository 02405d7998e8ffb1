package board

import (
	"log/slog"

	"github.com/microcosm-cc/bluemonday"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Default configuration values.
const (
	// DefaultMaxConcurrentUploads bounds the fan-out of a single commit.
	DefaultMaxConcurrentUploads = 8
)

// options holds session configuration.
type options struct {
	logger   *slog.Logger
	previews PreviewStore

	maxConcurrentUploads int
	contentPolicy        *bluemonday.Policy

	// OpenTelemetry
	tracingEnabled bool
	metricsEnabled bool
	serviceName    string
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// newOptions creates options with defaults and applies provided options.
func newOptions(opts ...Option) *options {
	o := &options{
		logger:               slog.Default(),
		maxConcurrentUploads: DefaultMaxConcurrentUploads,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.previews == nil {
		o.previews = NewMemoryPreviews("")
	}
	return o
}

// Option configures a Session.
type Option func(*options)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithPreviewStore sets where preview references are allocated.
// Default is a private MemoryPreviews.
func WithPreviewStore(p PreviewStore) Option {
	return func(o *options) {
		if p != nil {
			o.previews = p
		}
	}
}

// WithMaxConcurrentUploads bounds how many uploads a commit runs at once.
// Zero or negative means unbounded. Default is 8.
func WithMaxConcurrentUploads(n int) Option {
	return func(o *options) {
		o.maxConcurrentUploads = n
	}
}

// WithContentPolicy sanitizes committed content with p after references are
// rewritten. Default is no sanitizing. ContentPolicy returns a policy that
// keeps the markup produced by Embed.
func WithContentPolicy(p *bluemonday.Policy) Option {
	return func(o *options) {
		o.contentPolicy = p
	}
}

// WithTracing enables or disables OpenTelemetry tracing of commits.
// Default is disabled.
func WithTracing(enabled bool) Option {
	return func(o *options) {
		o.tracingEnabled = enabled
	}
}

// WithMetrics enables or disables OpenTelemetry metrics for commits.
// Default is disabled.
func WithMetrics(enabled bool) Option {
	return func(o *options) {
		o.metricsEnabled = enabled
	}
}

// WithServiceName sets the service name attribute for telemetry.
// Default is "board".
func WithServiceName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.serviceName = name
		}
	}
}

// WithTracerProvider sets a custom tracer provider.
// Default uses the global tracer provider from otel.GetTracerProvider().
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		if tp != nil {
			o.tracerProvider = tp
		}
	}
}

// WithMeterProvider sets a custom meter provider.
// Default uses the global meter provider from otel.GetMeterProvider().
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) {
		if mp != nil {
			o.meterProvider = mp
		}
	}
}
