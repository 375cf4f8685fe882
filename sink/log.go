package sink

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ardnew/tracepoint/log"
)

// Log writes events as structured log records.
type Log struct {
	logger log.Logger
	level  log.Level
}

// NewLog returns a sink logging every event to logger at level.
func NewLog(logger log.Logger, level log.Level) *Log {
	return &Log{logger: logger, level: level}
}

// EmitSpan implements [Sink].
func (l *Log) EmitSpan(ev *SpanEvent) {
	ctx := context.Background()
	if !l.logger.EnabledAt(ctx, l.level) {
		return
	}

	attrs := []slog.Attr{
		slog.String("name", ev.Name),
		slog.String("module", ev.Module),
		slog.String("site", fmt.Sprintf("%s:%d", ev.File, ev.Line)),
		slog.Duration("elapsed", ev.Duration()),
		slog.Int("depth", ev.Depth),
		slog.Uint64("gid", ev.Goroutine),
	}
	if ev.Err != "" {
		attrs = append(attrs, slog.String("err", ev.Err))
	}

	l.logger.LogAt(ctx, l.level, "span", attrs...)
}

// EmitMessage implements [Sink].
func (l *Log) EmitMessage(ev *MessageEvent) {
	ctx := context.Background()
	if !l.logger.EnabledAt(ctx, l.level) {
		return
	}

	attrs := []slog.Attr{slog.String("text", ev.Text)}
	if ev.HasColor {
		attrs = append(attrs, slog.String("color", fmt.Sprintf("#%06x", ev.Color)))
	}

	for i, f := range ev.Stack {
		attrs = append(attrs, slog.String(fmt.Sprintf("frame%d", i), f.String()))
	}

	l.logger.LogAt(ctx, l.level, "message", attrs...)
}
