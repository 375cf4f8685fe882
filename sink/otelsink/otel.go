// Package otelsink exports tracepoint events through an OpenTelemetry
// tracer.
//
// Every completed span becomes an OpenTelemetry span carrying the original
// start and end timestamps. Messages become zero-length spans named
// [MessageSpanName] with a single event holding the text.
package otelsink

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ardnew/tracepoint/sink"
)

// InstrumentationName identifies this exporter to tracer providers.
const InstrumentationName = "github.com/ardnew/tracepoint"

// MessageSpanName names the spans created for messages.
const MessageSpanName = "tracepoint.message"

// Attribute keys.
const (
	KeyModule    = attribute.Key("tracepoint.module")
	KeyFile      = attribute.Key("code.filepath")
	KeyLine      = attribute.Key("code.lineno")
	KeyFunc      = attribute.Key("code.function")
	KeyDepth     = attribute.Key("tracepoint.depth")
	KeyGoroutine = attribute.Key("tracepoint.goroutine")
	KeyText      = attribute.Key("tracepoint.message.text")
	KeyColor     = attribute.Key("tracepoint.message.color")
)

// Sink forwards events to an OpenTelemetry tracer.
type Sink struct {
	tracer trace.Tracer
	ctx    context.Context
}

// New returns a sink exporting through a tracer obtained from tp.
func New(tp trace.TracerProvider) *Sink {
	return &Sink{
		tracer: tp.Tracer(InstrumentationName),
		ctx:    context.Background(),
	}
}

// EmitSpan implements [sink.Sink].
func (s *Sink) EmitSpan(ev *sink.SpanEvent) {
	_, span := s.tracer.Start(s.ctx, ev.Name,
		trace.WithTimestamp(ev.Start),
		trace.WithAttributes(
			KeyModule.String(ev.Module),
			KeyFile.String(ev.File),
			KeyLine.Int(ev.Line),
			KeyFunc.String(ev.Func),
			KeyDepth.Int(ev.Depth),
			KeyGoroutine.Int64(int64(ev.Goroutine)),
		),
	)

	if ev.Err != "" {
		span.SetStatus(codes.Error, ev.Err)
	}

	span.End(trace.WithTimestamp(ev.End))
}

// EmitMessage implements [sink.Sink].
func (s *Sink) EmitMessage(ev *sink.MessageEvent) {
	attrs := []attribute.KeyValue{KeyText.String(ev.Text)}
	if ev.HasColor {
		attrs = append(attrs, KeyColor.String(fmt.Sprintf("#%06x", ev.Color)))
	}

	for i, f := range ev.Stack {
		attrs = append(attrs,
			attribute.String(fmt.Sprintf("tracepoint.message.frame.%d", i), f.String()))
	}

	_, span := s.tracer.Start(s.ctx, MessageSpanName,
		trace.WithTimestamp(ev.Time),
		trace.WithAttributes(attrs...),
	)
	span.AddEvent(ev.Text, trace.WithTimestamp(ev.Time))
	span.End(trace.WithTimestamp(ev.Time))
}
