package tracepoint

import (
	"fmt"
	"log/slog"

	"github.com/ardnew/tracepoint/sink"
)

type sinkBox struct {
	s     sink.Sink
	begin sink.BeginEmitter
}

// SetSink replaces the sink receiving the registry's events and returns the
// previous one. A nil sink discards events.
func (r *Registry) SetSink(s sink.Sink) sink.Sink {
	if s == nil {
		s = sink.Nop
	}

	box := &sinkBox{s: s}
	if b, ok := s.(sink.BeginEmitter); ok {
		box.begin = b
	}

	return r.sink.Swap(box).s
}

// Sink returns the current sink.
func (r *Registry) Sink() sink.Sink { return r.sink.Load().s }

// SinkFailures returns the number of events the sink rejected by panicking.
func (r *Registry) SinkFailures() uint64 { return r.failed.Load() }

func (r *Registry) emitSpan(ev *sink.SpanEvent) {
	box := r.sink.Load()
	defer r.absorb("span", ev.Name)

	box.s.EmitSpan(ev)
}

func (r *Registry) emitBegin(ev *sink.SpanEvent) {
	box := r.sink.Load()
	if box.begin == nil {
		return
	}

	defer r.absorb("begin", ev.Name)

	box.begin.EmitBegin(ev)
}

func (r *Registry) emitMessage(ev *sink.MessageEvent) {
	box := r.sink.Load()
	defer r.absorb("message", "")

	box.s.EmitMessage(ev)
}

// absorb recovers a sink panic so it never reaches instrumented code.
func (r *Registry) absorb(kind, name string) {
	p := recover()
	if p == nil {
		return
	}

	n := r.failed.Add(1)
	err := ErrSinkUnavailable.Wrap(fmt.Errorf("%v", p)).With(
		slog.String("event", kind),
		slog.String("name", name),
		slog.Uint64("failures", n))

	// Logging every failure of a dead sink would flood the log.
	if n == 1 || n&(n-1) == 0 {
		r.logger().Warn("event dropped", slog.Any("error", err))
	}
}

// SetSink replaces the [Default] registry's sink.
func SetSink(s sink.Sink) sink.Sink { return Default.SetSink(s) }
