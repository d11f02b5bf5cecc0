// Package telemetry records stream decoding metrics and traces through the
// OpenTelemetry global providers. Without an SDK installed by the host
// application every instrument is a no-op.
package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/haowjy/meridian-stream-go"

// Stream outcomes
const (
	OutcomeCompleted = "completed"
	OutcomeCancelled = "cancelled"
	OutcomeTruncated = "truncated"
	OutcomeClosed    = "closed"
)

// Metrics holds the stream decoding instruments
type Metrics struct {
	tracer trace.Tracer

	framesTotal    metric.Int64Counter
	framesSkipped  metric.Int64Counter
	toolCallsTotal metric.Int64Counter
	streamsTotal   metric.Int64Counter
	streamDuration metric.Float64Histogram
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// Default returns the process-wide instruments, created on first use
func Default() *Metrics {
	defaultMetricsOnce.Do(func() {
		defaultMetrics = New(otel.GetMeterProvider().Meter(instrumentationName), otel.Tracer(instrumentationName))
	})
	return defaultMetrics
}

// New creates instruments on meter. Instruments that fail to register fall
// back to no-ops so decoding never depends on telemetry.
func New(meter metric.Meter, tracer trace.Tracer) *Metrics {
	fallback := noop.Meter{}
	m := &Metrics{tracer: tracer}

	var err error
	if m.framesTotal, err = meter.Int64Counter("llmstream.frames.total",
		metric.WithDescription("Frames read from vendor streams"),
		metric.WithUnit("{frame}")); err != nil {
		m.framesTotal, _ = fallback.Int64Counter("llmstream.frames.total")
	}
	if m.framesSkipped, err = meter.Int64Counter("llmstream.frames.skipped",
		metric.WithDescription("Frames skipped as malformed, unknown or illegal"),
		metric.WithUnit("{frame}")); err != nil {
		m.framesSkipped, _ = fallback.Int64Counter("llmstream.frames.skipped")
	}
	if m.toolCallsTotal, err = meter.Int64Counter("llmstream.toolcalls.total",
		metric.WithDescription("Tool calls finalized"),
		metric.WithUnit("{call}")); err != nil {
		m.toolCallsTotal, _ = fallback.Int64Counter("llmstream.toolcalls.total")
	}
	if m.streamsTotal, err = meter.Int64Counter("llmstream.streams.total",
		metric.WithDescription("Streams decoded, by outcome"),
		metric.WithUnit("{stream}")); err != nil {
		m.streamsTotal, _ = fallback.Int64Counter("llmstream.streams.total")
	}
	if m.streamDuration, err = meter.Float64Histogram("llmstream.stream.duration",
		metric.WithDescription("Wall time from first pull to stream end"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120)); err != nil {
		m.streamDuration, _ = fallback.Float64Histogram("llmstream.stream.duration")
	}
	return m
}

// StreamRecorder records one stream. It is not safe for concurrent use,
// matching the single-consumer stream it belongs to.
type StreamRecorder struct {
	m     *Metrics
	ctx   context.Context
	span  trace.Span
	attrs metric.MeasurementOption
	start time.Time
	ended bool
}

// StartStream opens a span for one stream and returns a recorder bound to it
func (m *Metrics) StartStream(ctx context.Context, provider string) (context.Context, *StreamRecorder) {
	ctx, span := m.tracer.Start(ctx, "llmstream.decode",
		trace.WithAttributes(attribute.String("llm.provider", provider)))
	return ctx, &StreamRecorder{
		m:     m,
		ctx:   ctx,
		span:  span,
		attrs: metric.WithAttributes(attribute.String("provider", provider)),
		start: time.Now(),
	}
}

// Frame counts one non-blank frame
func (r *StreamRecorder) Frame() {
	r.m.framesTotal.Add(r.ctx, 1, r.attrs)
}

// Skipped counts one skipped frame
func (r *StreamRecorder) Skipped(reason string) {
	r.m.framesSkipped.Add(r.ctx, 1, r.attrs, metric.WithAttributes(attribute.String("reason", reason)))
}

// ToolCalls counts finalized tool calls
func (r *StreamRecorder) ToolCalls(n int) {
	if n > 0 {
		r.m.toolCallsTotal.Add(r.ctx, int64(n), r.attrs)
	}
}

// End closes the span and records the outcome. Subsequent calls are no-ops.
func (r *StreamRecorder) End(outcome string, err error) {
	if r.ended {
		return
	}
	r.ended = true

	outcomeAttr := metric.WithAttributes(attribute.String("outcome", outcome))
	r.m.streamsTotal.Add(r.ctx, 1, r.attrs, outcomeAttr)
	r.m.streamDuration.Record(r.ctx, time.Since(r.start).Seconds(), r.attrs, outcomeAttr)

	r.span.SetAttributes(attribute.String("llm.stream.outcome", outcome))
	if err != nil {
		r.span.RecordError(err)
		r.span.SetStatus(codes.Error, err.Error())
	}
	r.span.End()
}
