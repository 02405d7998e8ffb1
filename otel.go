package board

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	instrumentationName = "github.com/rbaliyan/board"
)

// otelInstrumentation holds OpenTelemetry instrumentation for draft commits.
type otelInstrumentation struct {
	serviceName string

	// Tracing
	tracingEnabled bool
	tracer         trace.Tracer

	// Metrics
	metricsEnabled bool
	commitLatency  metric.Float64Histogram
	commitCount    metric.Int64Counter
	commitErrors   metric.Int64Counter
	uploadCount    metric.Int64Counter
	uploadErrors   metric.Int64Counter
	uploadBytes    metric.Int64Counter
}

// newOtelInstrumentation creates OTel instrumentation from options.
func newOtelInstrumentation(opts *options) (*otelInstrumentation, error) {
	o := &otelInstrumentation{
		serviceName:    opts.serviceName,
		tracingEnabled: opts.tracingEnabled,
		metricsEnabled: opts.metricsEnabled,
	}
	if o.serviceName == "" {
		o.serviceName = "board"
	}

	if o.tracingEnabled {
		tp := opts.tracerProvider
		if tp == nil {
			tp = otel.GetTracerProvider()
		}
		o.tracer = tp.Tracer(instrumentationName)
	}

	if o.metricsEnabled {
		mp := opts.meterProvider
		if mp == nil {
			mp = otel.GetMeterProvider()
		}
		if err := o.initMetrics(mp); err != nil {
			o.metricsEnabled = false
			return o, err
		}
	}

	return o, nil
}

// initMetrics initializes all metric instruments.
func (o *otelInstrumentation) initMetrics(mp metric.MeterProvider) error {
	meter := mp.Meter(instrumentationName)

	var err error

	o.commitLatency, err = meter.Float64Histogram(
		"board.commit.duration",
		metric.WithDescription("Duration of draft commits including uploads"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}

	o.commitCount, err = meter.Int64Counter(
		"board.commit.count",
		metric.WithDescription("Number of draft commits"),
	)
	if err != nil {
		return err
	}

	o.commitErrors, err = meter.Int64Counter(
		"board.commit.errors",
		metric.WithDescription("Number of failed draft commits"),
	)
	if err != nil {
		return err
	}

	o.uploadCount, err = meter.Int64Counter(
		"board.upload.count",
		metric.WithDescription("Number of attachment uploads attempted by commits"),
	)
	if err != nil {
		return err
	}

	o.uploadErrors, err = meter.Int64Counter(
		"board.upload.errors",
		metric.WithDescription("Number of failed attachment uploads"),
	)
	if err != nil {
		return err
	}

	o.uploadBytes, err = meter.Int64Counter(
		"board.upload.bytes",
		metric.WithDescription("Bytes handed to the uploader by commits"),
		metric.WithUnit("By"),
	)
	return err
}

// startCommit starts a commit span and returns a function that ends it and records metrics.
func (o *otelInstrumentation) startCommit(ctx context.Context, pending int, bytes int64) (context.Context, func(error)) {
	attrs := []attribute.KeyValue{
		attribute.String("service.name", o.serviceName),
	}

	var span trace.Span
	if o.tracingEnabled && o.tracer != nil {
		ctx, span = o.tracer.Start(ctx, "board.commit",
			trace.WithAttributes(append(attrs,
				attribute.Int("board.pending.count", pending),
				attribute.Int64("board.pending.bytes", bytes),
			)...),
		)
	}

	start := time.Now()
	return ctx, func(err error) {
		if o.metricsEnabled {
			metricAttrs := metric.WithAttributes(attrs...)
			o.commitLatency.Record(ctx, time.Since(start).Seconds(), metricAttrs)
			o.commitCount.Add(ctx, 1, metricAttrs)
			if err != nil {
				o.commitErrors.Add(ctx, 1, metricAttrs)
			}
		}
		if span != nil {
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			} else {
				span.SetStatus(codes.Ok, "")
			}
			span.End()
		}
	}
}

// recordUpload records the outcome of a single upload within a commit.
func (o *otelInstrumentation) recordUpload(ctx context.Context, a Attachment, err error) {
	if o.tracingEnabled {
		span := trace.SpanFromContext(ctx)
		span.AddEvent("board.upload", trace.WithAttributes(
			attribute.String("attachment.id", a.ID),
			attribute.String("attachment.kind", string(a.Kind)),
			attribute.Int64("attachment.size", a.Size),
			attribute.Bool("attachment.failed", err != nil),
		))
	}
	if !o.metricsEnabled {
		return
	}
	metricAttrs := metric.WithAttributes(
		attribute.String("service.name", o.serviceName),
		attribute.String("attachment.kind", string(a.Kind)),
	)
	o.uploadCount.Add(ctx, 1, metricAttrs)
	if err != nil {
		o.uploadErrors.Add(ctx, 1, metricAttrs)
		return
	}
	o.uploadBytes.Add(ctx, a.Size, metricAttrs)
}
