// Package sinktest provides sinks for testing code that emits tracepoint
// events.
package sinktest

import (
	"sync"

	"github.com/ardnew/tracepoint/sink"
)

// Recorder keeps a copy of every event it receives. It is safe for
// concurrent use.
type Recorder struct {
	mu       sync.Mutex
	spans    []sink.SpanEvent
	begins   []sink.SpanEvent
	messages []sink.MessageEvent
}

// EmitSpan implements [sink.Sink].
func (r *Recorder) EmitSpan(ev *sink.SpanEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.spans = append(r.spans, *ev)
}

// EmitBegin implements [sink.BeginEmitter].
func (r *Recorder) EmitBegin(ev *sink.SpanEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.begins = append(r.begins, *ev)
}

// EmitMessage implements [sink.Sink].
func (r *Recorder) EmitMessage(ev *sink.MessageEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m := *ev
	m.Stack = append([]sink.Frame(nil), ev.Stack...)
	r.messages = append(r.messages, m)
}

// Spans returns the completed spans received so far.
func (r *Recorder) Spans() []sink.SpanEvent {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]sink.SpanEvent(nil), r.spans...)
}

// Begins returns the begin-only events received so far.
func (r *Recorder) Begins() []sink.SpanEvent {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]sink.SpanEvent(nil), r.begins...)
}

// Messages returns the messages received so far.
func (r *Recorder) Messages() []sink.MessageEvent {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]sink.MessageEvent(nil), r.messages...)
}

// Names returns the name of every completed span, in arrival order.
func (r *Recorder) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, len(r.spans))
	for i, ev := range r.spans {
		names[i] = ev.Name
	}

	return names
}

// Reset discards everything recorded.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.spans, r.begins, r.messages = nil, nil, nil
}

// Broken is a sink that panics on every event.
type Broken struct{}

// EmitSpan implements [sink.Sink].
func (Broken) EmitSpan(*sink.SpanEvent) { panic("sinktest: broken sink") }

// EmitMessage implements [sink.Sink].
func (Broken) EmitMessage(*sink.MessageEvent) { panic("sinktest: broken sink") }
