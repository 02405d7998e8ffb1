// Package otel instruments a store.FileStore with OpenTelemetry spans and metrics.
package otel

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rbaliyan/board/store"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/rbaliyan/board/store/otel"

// Store wraps a store.FileStore with tracing and metrics.
// Each operation records a span plus duration, count, byte and error metrics
// named upload.store.<op>.*.
type Store struct {
	backend store.FileStore
	service attribute.KeyValue
	tracer  trace.Tracer

	upload opMetrics
	load   opMetrics
	delete opMetrics
}

var _ store.FileStore = (*Store)(nil)

type opMetrics struct {
	duration metric.Float64Histogram
	count    metric.Int64Counter
	bytes    metric.Int64Counter
	errors   metric.Int64Counter
}

// New wraps backend.
func New(backend store.FileStore, opts ...Option) (*Store, error) {
	o := newOptions(opts...)

	s := &Store{
		backend: backend,
		service: attribute.String("service.name", o.serviceName),
		tracer:  o.tracerProvider.Tracer(instrumentationName),
	}

	meter := o.meterProvider.Meter(instrumentationName)
	for op, m := range map[string]*opMetrics{"upload": &s.upload, "load": &s.load, "delete": &s.delete} {
		if err := m.init(meter, op); err != nil {
			return nil, fmt.Errorf("otel: init %s metrics: %w", op, err)
		}
	}
	return s, nil
}

func (m *opMetrics) init(meter metric.Meter, op string) error {
	prefix := "upload.store." + op
	var err error
	if m.duration, err = meter.Float64Histogram(prefix+".duration",
		metric.WithDescription("Duration of file store "+op+" operations"),
		metric.WithUnit("s"),
	); err != nil {
		return err
	}
	if m.count, err = meter.Int64Counter(prefix+".count",
		metric.WithDescription("Number of file store "+op+" operations"),
	); err != nil {
		return err
	}
	if m.bytes, err = meter.Int64Counter(prefix+".bytes",
		metric.WithDescription("Bytes transferred by file store "+op+" operations"),
		metric.WithUnit("By"),
	); err != nil {
		return err
	}
	m.errors, err = meter.Int64Counter(prefix+".errors",
		metric.WithDescription("Number of failed file store "+op+" operations"),
	)
	return err
}

func (m *opMetrics) record(ctx context.Context, start time.Time, n int64, err error, attrs metric.MeasurementOption) {
	m.duration.Record(ctx, time.Since(start).Seconds(), attrs)
	m.count.Add(ctx, 1, attrs)
	if n > 0 {
		m.bytes.Add(ctx, n, attrs)
	}
	if err != nil {
		m.errors.Add(ctx, 1, attrs)
	}
}

func (s *Store) Upload(ctx context.Context, filename, contentType string, content io.Reader) (string, error) {
	ctx, span := s.tracer.Start(ctx, "upload.store.upload",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			s.service,
			attribute.String("upload.filename", filename),
			attribute.String("upload.content_type", contentType),
		),
	)
	defer span.End()

	start := time.Now()
	cr := &countingReader{r: content}
	uri, err := s.backend.Upload(ctx, filename, contentType, cr)

	s.upload.record(ctx, start, cr.n, err, metric.WithAttributes(s.service, attribute.String("upload.content_type", contentType)))
	finish(span, err, attribute.String("upload.uri", uri), attribute.Int64("upload.bytes", cr.n))
	return uri, err
}

// Load records the span and byte count when the returned reader is closed.
func (s *Store) Load(ctx context.Context, uri string) (io.ReadCloser, error) {
	ctx, span := s.tracer.Start(ctx, "upload.store.load",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(s.service, attribute.String("upload.uri", uri)),
	)

	start := time.Now()
	rc, err := s.backend.Load(ctx, uri)
	if err != nil {
		s.load.record(ctx, start, 0, err, metric.WithAttributes(s.service))
		finish(span, err)
		span.End()
		return nil, err
	}
	return &instrumentedReader{ReadCloser: rc, ctx: ctx, span: span, start: start, store: s}, nil
}

func (s *Store) Delete(ctx context.Context, uri string) error {
	ctx, span := s.tracer.Start(ctx, "upload.store.delete",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(s.service, attribute.String("upload.uri", uri)),
	)
	defer span.End()

	start := time.Now()
	err := s.backend.Delete(ctx, uri)
	s.delete.record(ctx, start, 0, err, metric.WithAttributes(s.service))
	finish(span, err)
	return err
}

func finish(span trace.Span, err error, attrs ...attribute.KeyValue) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetAttributes(attrs...)
	span.SetStatus(codes.Ok, "")
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

type instrumentedReader struct {
	io.ReadCloser
	ctx    context.Context
	span   trace.Span
	start  time.Time
	store  *Store
	n      int64
	closed bool
}

func (r *instrumentedReader) Read(p []byte) (int, error) {
	n, err := r.ReadCloser.Read(p)
	r.n += int64(n)
	return n, err
}

func (r *instrumentedReader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true

	err := r.ReadCloser.Close()
	r.store.load.record(r.ctx, r.start, r.n, err, metric.WithAttributes(r.store.service))
	finish(r.span, err, attribute.Int64("upload.bytes", r.n))
	r.span.End()
	return err
}
