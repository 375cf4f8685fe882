package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/ardnew/tracepoint/log"
	"github.com/ardnew/tracepoint/sink"
	"github.com/ardnew/tracepoint/tracepoint"
)

const viewTimeLayout = "15:04:05.000000"

var (
	nameStyle    = lipgloss.NewStyle().Bold(true)
	moduleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	elapsedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	beginStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
)

// View prints an event stream written by a stream sink.
type View struct {
	Files  []string `arg:"" default:"-"      help:"Event stream files, or '-' for stdin." optional:""`
	Format string   `default:"ndjson"         enum:"ndjson,msgpack"                         help:"Stream encoding." short:"e"`
	Module string   `help:"Only show spans whose module matches this pattern." short:"m"`
	Name   string   `help:"Only show spans whose name matches this pattern."   short:"n"`
	Begins bool     `help:"Also show begin records."`
}

// Run executes the view command.
func (v *View) Run(ctx context.Context) error {
	format, err := sink.ParseFormat(v.Format)
	if err != nil {
		return ErrInvalidArg.Wrap(err)
	}

	keep, err := v.matcher()
	if err != nil {
		return ErrInvalidArg.Wrap(err)
	}

	src := buildSourceFiles(v.Files)
	if src == nil {
		return ErrNoSource.With(slog.Any("files", v.Files))
	}
	defer src.Close()

	return v.render(ctx, stdout(ctx), sink.NewDecoder(src, format), keep)
}

func (v *View) render(
	ctx context.Context,
	w io.Writer,
	dec *sink.Decoder,
	keep func(*sink.SpanEvent) bool,
) error {
	var shown, total int

	for rec, err := range dec.Records() {
		if err != nil {
			return ErrReadStream.Wrap(err).With(slog.Int("record", total))
		}

		total++

		line, ok := renderRecord(rec, v.Begins, keep)
		if !ok {
			continue
		}

		shown++

		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}

	log.DebugContext(ctx, "stream viewed",
		slog.Int("records", total),
		slog.Int("shown", shown))

	return nil
}

func (v *View) matcher() (func(*sink.SpanEvent) bool, error) {
	module, err := tracepoint.ParsePattern(v.Module)
	if err != nil {
		return nil, err
	}

	name, err := tracepoint.ParsePattern(v.Name)
	if err != nil {
		return nil, err
	}

	return func(ev *sink.SpanEvent) bool {
		return (module == nil || module.Match(ev.Module)) &&
			(name == nil || name.Match(ev.Name))
	}, nil
}

// renderRecord formats one record as a line. It reports false for records
// that are filtered out.
func renderRecord(rec sink.Record, begins bool, keep func(*sink.SpanEvent) bool) (string, bool) {
	switch rec.Kind {
	case sink.KindSpan, sink.KindBegin:
		ev := rec.Span
		if ev == nil || (rec.Kind == sink.KindBegin && !begins) || !keep(ev) {
			return "", false
		}

		return renderSpan(ev, rec.Kind == sink.KindBegin), true

	case sink.KindMessage:
		if rec.Message == nil {
			return "", false
		}

		return renderMessage(rec.Message), true

	default:
		return "", false
	}
}

func renderSpan(ev *sink.SpanEvent, begin bool) string {
	var b strings.Builder

	b.WriteString(hintStyle.Render(ev.Start.Local().Format(viewTimeLayout)))
	b.WriteString(" ")
	b.WriteString(strings.Repeat("  ", max(ev.Depth, 0)))

	if begin {
		b.WriteString(beginStyle.Render("▶ "))
	}

	b.WriteString(nameStyle.Render(ev.Name))
	b.WriteString(" ")
	b.WriteString(moduleStyle.Render(ev.Module))

	if !begin {
		b.WriteString(" ")
		b.WriteString(elapsedStyle.Render(ev.Duration().Round(time.Microsecond).String()))
	}

	if ev.File != "" {
		fmt.Fprintf(&b, " %s", hintStyle.Render(fmt.Sprintf("%s:%d", ev.File, ev.Line)))
	}

	if ev.Goroutine != 0 {
		fmt.Fprintf(&b, " %s", hintStyle.Render(fmt.Sprintf("g%d", ev.Goroutine)))
	}

	if ev.Err != "" {
		b.WriteString(" ")
		b.WriteString(errorStyle.Render("error: " + ev.Err))
	}

	return b.String()
}

func renderMessage(ev *sink.MessageEvent) string {
	style := lipgloss.NewStyle()
	if ev.HasColor {
		style = style.Foreground(lipgloss.Color(fmt.Sprintf("#%06x", ev.Color)))
	}

	var b strings.Builder

	b.WriteString(hintStyle.Render(ev.Time.Local().Format(viewTimeLayout)))
	b.WriteString(" ")
	b.WriteString(style.Render(ev.Text))

	for _, f := range ev.Stack {
		b.WriteString("\n    ")
		b.WriteString(hintStyle.Render(f.String()))
	}

	return b.String()
}
