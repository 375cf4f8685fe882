package tracepoint

import (
	"log/slog"
	"runtime"
	"time"

	"github.com/ardnew/tracepoint/sink"
)

// MaxCallstack bounds the number of frames a message can capture.
const MaxCallstack = 64

// MessageOption configures a message.
type MessageOption func(*messageConfig)

type messageConfig struct {
	color    any
	hasColor bool
	depth    int
}

// WithColor sets the message color; see [ParseColor] for accepted values.
func WithColor(c any) MessageOption {
	return func(m *messageConfig) { m.color, m.hasColor = c, true }
}

// WithCallstack captures up to depth frames of the caller's stack, starting
// at the caller. Zero captures nothing.
func WithCallstack(depth int) MessageOption {
	return func(m *messageConfig) { m.depth = depth }
}

// Message sends text to the sink's message log.
//
// It fails with [ErrInvalidMessage] if text is empty or the callstack depth is
// negative, and with [ErrInvalidColor] for an unusable color. A sink failure
// is never reported to the caller.
func (r *Registry) Message(text string, opts ...MessageOption) error {
	return r.message(text, opts)
}

// Message sends a message through the [Default] registry.
func Message(text string, opts ...MessageOption) error {
	return Default.message(text, opts)
}

func (r *Registry) message(text string, opts []MessageOption) error {
	var cfg messageConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	if text == "" {
		return ErrInvalidMessage.With(slog.String("reason", "empty text"))
	}

	if cfg.depth < 0 {
		return ErrInvalidMessage.With(
			slog.Int("callstack", cfg.depth),
			slog.String("reason", "negative callstack depth"))
	}

	ev := &sink.MessageEvent{
		Time:  time.Now(),
		Text:  text,
		Depth: cfg.depth,
	}

	if cfg.hasColor {
		rgb, err := ParseColor(cfg.color)
		if err != nil {
			return err
		}

		ev.Color, ev.HasColor = rgb.Hex(), true
	}

	if cfg.depth > 0 {
		// Skip runtime.Callers, captureStack, message and the exported caller.
		ev.Stack = captureStack(4, min(cfg.depth, MaxCallstack))
	}

	r.emitMessage(ev)

	return nil
}

func captureStack(skip, depth int) []sink.Frame {
	pcs := make([]uintptr, depth)

	n := runtime.Callers(skip, pcs)
	if n == 0 {
		return nil
	}

	frames := runtime.CallersFrames(pcs[:n])
	out := make([]sink.Frame, 0, n)

	for {
		f, more := frames.Next()
		out = append(out, sink.Frame{Func: f.Function, File: f.File, Line: f.Line})

		if !more || len(out) == depth {
			return out
		}
	}
}
