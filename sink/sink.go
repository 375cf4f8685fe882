package sink

import (
	"fmt"
	"time"
)

// Sink consumes span and message events.
//
// Both methods are fire-and-forget: an implementation must not retain the
// event pointer after returning, and must not block the caller for longer than
// it takes to hand the event off. Wrap slow sinks with [NewAsync].
type Sink interface {
	EmitSpan(ev *SpanEvent)
	EmitMessage(ev *MessageEvent)
}

// BeginEmitter is implemented by sinks that want an event when a span opens,
// in addition to the completed span. Frontends that draw regions live use it.
type BeginEmitter interface {
	EmitBegin(ev *SpanEvent)
}

// Flusher is implemented by sinks that buffer events.
type Flusher interface {
	Flush() error
}

// SpanEvent describes one execution of an enabled tracepoint.
//
// End is the zero time on begin-only emission.
type SpanEvent struct {
	Start     time.Time `json:"start"            msgpack:"start"`
	End       time.Time `json:"end"              msgpack:"end"`
	Name      string    `json:"name"             msgpack:"name"`
	Module    string    `json:"module,omitempty" msgpack:"module,omitempty"`
	File      string    `json:"file,omitempty"   msgpack:"file,omitempty"`
	Func      string    `json:"func,omitempty"   msgpack:"func,omitempty"`
	Err       string    `json:"err,omitempty"    msgpack:"err,omitempty"`
	Line      int       `json:"line,omitempty"   msgpack:"line,omitempty"`
	Depth     int       `json:"depth"            msgpack:"depth"`
	Goroutine uint64    `json:"gid,omitempty"    msgpack:"gid,omitempty"`
}

// Open reports whether ev is a begin-only event.
func (ev *SpanEvent) Open() bool { return ev.End.IsZero() }

// Duration returns End-Start, or zero for a begin-only event.
func (ev *SpanEvent) Duration() time.Duration {
	if ev.Open() {
		return 0
	}

	return ev.End.Sub(ev.Start)
}

// Frame is one captured call stack frame.
type Frame struct {
	Func string `json:"func" msgpack:"func"`
	File string `json:"file" msgpack:"file"`
	Line int    `json:"line" msgpack:"line"`
}

// String formats the frame as "func file:line".
func (f Frame) String() string {
	return fmt.Sprintf("%s %s:%d", f.Func, f.File, f.Line)
}

// MessageEvent is a free-form message shown in the frontend's message log.
type MessageEvent struct {
	Time  time.Time `json:"time"            msgpack:"time"`
	Text  string    `json:"text"            msgpack:"text"`
	Stack []Frame   `json:"stack,omitempty" msgpack:"stack,omitempty"`
	Color uint32    `json:"color,omitempty" msgpack:"color,omitempty"`
	Depth int       `json:"depth"           msgpack:"depth"`
	// HasColor is false when the frontend's default color should be used.
	HasColor bool `json:"has_color,omitempty" msgpack:"has_color,omitempty"`
}

// RGB splits the 24-bit color into channels.
func (ev *MessageEvent) RGB() (r, g, b uint8) {
	return uint8(ev.Color >> 16), uint8(ev.Color >> 8), uint8(ev.Color)
}

type nop struct{}

func (nop) EmitSpan(*SpanEvent)       {}
func (nop) EmitMessage(*MessageEvent) {}

// Nop discards every event.
var Nop Sink = nop{}

// Func adapts a pair of functions to [Sink]. Either may be nil.
type Func struct {
	Span    func(*SpanEvent)
	Message func(*MessageEvent)
}

// EmitSpan implements [Sink].
func (f Func) EmitSpan(ev *SpanEvent) {
	if f.Span != nil {
		f.Span(ev)
	}
}

// EmitMessage implements [Sink].
func (f Func) EmitMessage(ev *MessageEvent) {
	if f.Message != nil {
		f.Message(ev)
	}
}

// Multi fans events out to several sinks in order.
type Multi []Sink

// EmitSpan implements [Sink].
func (m Multi) EmitSpan(ev *SpanEvent) {
	for _, s := range m {
		s.EmitSpan(ev)
	}
}

// EmitMessage implements [Sink].
func (m Multi) EmitMessage(ev *MessageEvent) {
	for _, s := range m {
		s.EmitMessage(ev)
	}
}

// EmitBegin forwards to every member implementing [BeginEmitter].
func (m Multi) EmitBegin(ev *SpanEvent) {
	for _, s := range m {
		if b, ok := s.(BeginEmitter); ok {
			b.EmitBegin(ev)
		}
	}
}

// Flush flushes every member implementing [Flusher] and returns the first
// error.
func (m Multi) Flush() error {
	var first error

	for _, s := range m {
		if f, ok := s.(Flusher); ok {
			if err := f.Flush(); err != nil && first == nil {
				first = err
			}
		}
	}

	return first
}
