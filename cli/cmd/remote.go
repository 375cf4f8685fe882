package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/goccy/go-yaml"

	"github.com/ardnew/tracepoint/control"
	"github.com/ardnew/tracepoint/log"
	"github.com/ardnew/tracepoint/tracepoint"
)

var (
	enabledStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true)
	disabledStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	headerStyle   = lipgloss.NewStyle().Bold(true).Underline(true)
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	hintStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// Filter holds the tracepoint selection flags shared by the remote commands.
// Every field uses the pattern syntax of [tracepoint.ParsePattern].
type Filter struct {
	Name   string `arg:"" help:"Tracepoint name pattern."                   optional:""`
	Module string `help:"Module path pattern."                               short:"m"`
	Func   string `help:"Function name pattern."                            short:"F"`
	File   string `help:"Source file pattern."                              short:"f"`
	Where  string `help:"Expression over module, name, func, file, line, enabled, generation." short:"w"`
}

// Spec returns the filter as a [tracepoint.FilterSpec].
func (f Filter) Spec() tracepoint.FilterSpec {
	return tracepoint.FilterSpec{
		Module: f.Module,
		Name:   f.Name,
		Func:   f.Func,
		File:   f.File,
		Where:  f.Where,
	}
}

// List prints the tracepoints of the remote process.
type List struct {
	Filter `embed:""`

	Output  string `default:"table" enum:"table,json,yaml" help:"Output format." short:"o"`
	Modules bool   `help:"List registered module paths only."`
}

// Run executes the list command.
func (l *List) Run(ctx context.Context) error {
	remote, err := remoteFrom(ctx)
	if err != nil {
		return err
	}

	out := stdout(ctx)

	if l.Modules {
		mods, err := remote.Modules(ctx)
		if err != nil {
			return ErrRemote.Wrap(err)
		}

		return l.write(out, mods, func() string { return strings.Join(mods, "\n") })
	}

	tps, err := remote.List(ctx, l.Spec())
	if err != nil {
		return ErrRemote.Wrap(err)
	}

	log.DebugContext(ctx, "listed tracepoints", slog.Int("count", len(tps)))

	return l.write(out, tps, func() string { return renderTable(tps) })
}

func (l *List) write(w io.Writer, v any, text func() string) error {
	switch l.Output {
	case "json":
		b, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return ErrJSONMarshal.Wrap(err)
		}

		_, err = fmt.Fprintln(w, string(b))

		return err

	case "yaml":
		b, err := yaml.Marshal(v)
		if err != nil {
			return ErrYAMLMarshal.Wrap(err)
		}

		_, err = w.Write(b)

		return err

	default:
		_, err := fmt.Fprintln(w, text())

		return err
	}
}

func stateMark(on bool) string {
	if on {
		return enabledStyle.Render("●")
	}

	return disabledStyle.Render("○")
}

func renderTable(tps []control.Tracepoint) string {
	if len(tps) == 0 {
		return hintStyle.Render("no tracepoints")
	}

	t := table.New().
		Border(lipgloss.HiddenBorder()).
		Headers("", "MODULE", "NAME", "LOCATION", "FUNC", "GEN").
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle.PaddingRight(1)
			}

			return lipgloss.NewStyle().PaddingRight(1)
		})

	for _, tp := range tps {
		t.Row(
			stateMark(tp.Enabled),
			tp.Module,
			tp.Name,
			fmt.Sprintf("%s:%d", tp.File, tp.Line),
			tp.Func,
			strconv.FormatUint(tp.Generation, 10),
		)
	}

	return t.Render()
}

// Enable enables the matching tracepoints of the remote process.
type Enable struct {
	Filter `embed:""`
}

// Run executes the enable command.
func (e *Enable) Run(ctx context.Context) error {
	return toggle(ctx, e.Spec(), true)
}

// Disable disables the matching tracepoints of the remote process.
type Disable struct {
	Filter `embed:""`
}

// Run executes the disable command.
func (d *Disable) Run(ctx context.Context) error {
	return toggle(ctx, d.Spec(), false)
}

func toggle(ctx context.Context, fs tracepoint.FilterSpec, on bool) error {
	remote, err := remoteFrom(ctx)
	if err != nil {
		return err
	}

	n, err := remote.Enable(ctx, fs, on)
	if err != nil {
		return ErrRemote.Wrap(err)
	}

	verb := "disabled"
	if on {
		verb = "enabled"
	}

	_, err = fmt.Fprintf(stdout(ctx), "%s %d tracepoint(s)\n", verb, n)

	return err
}

// Configure sets the state of the matching tracepoints and rebuilds the units
// of the remote process that depend on them.
type Configure struct {
	Filter `embed:""`

	Off bool `help:"Disable the matching tracepoints instead of enabling them."`
}

// Run executes the configure command.
func (c *Configure) Run(ctx context.Context) error {
	remote, err := remoteFrom(ctx)
	if err != nil {
		return err
	}

	resp, err := remote.Configure(ctx, c.Spec(), !c.Off)
	if err != nil {
		return ErrRemote.Wrap(err)
	}

	return writeReport(stdout(ctx), resp)
}

func writeReport(w io.Writer, resp control.ConfigureResponse) error {
	fmt.Fprintf(w, "matched %d, updated %d in %s\n",
		resp.Matched, resp.Updated, resp.Elapsed)

	if len(resp.Recompiled) > 0 {
		fmt.Fprintf(w, "recompiled: %s\n", strings.Join(resp.Recompiled, ", "))
	}

	for _, f := range resp.Failed {
		fmt.Fprintln(w, errorStyle.Render(fmt.Sprintf("failed: %s.%s (%s:%d) in %s: %s",
			f.Tracepoint.Module, f.Tracepoint.Name,
			f.Tracepoint.File, f.Tracepoint.Line, f.Unit, f.Error)))
	}

	if len(resp.Failed) > 0 {
		return ErrConfigure.With(slog.Int("failed", len(resp.Failed)))
	}

	return nil
}

// Apply applies the rules of a tracepoint configuration file to the remote
// process.
type Apply struct {
	Rules string `arg:"" help:"YAML file with tracepoint rules." type:"existingfile"`
}

// Run executes the apply command.
func (a *Apply) Run(ctx context.Context) error {
	remote, err := remoteFrom(ctx)
	if err != nil {
		return err
	}

	cfg, err := tracepoint.LoadConfigFile(a.Rules)
	if err != nil {
		return ErrApply.Wrap(err)
	}

	out := stdout(ctx)

	var errs []error

	for i, rule := range cfg.Rules {
		if strings.EqualFold(string(rule.Mode), string(tracepoint.ModeConfigure)) {
			resp, err := remote.Configure(ctx, rule.FilterSpec, rule.Enable)
			if err == nil {
				err = writeReport(out, resp)
			}

			if err != nil {
				errs = append(errs, ErrApply.Wrap(err).With(slog.Int("rule", i)))
			}

			continue
		}

		n, err := remote.Enable(ctx, rule.FilterSpec, rule.Enable)
		if err != nil {
			errs = append(errs, ErrApply.Wrap(err).With(slog.Int("rule", i)))

			continue
		}

		log.DebugContext(ctx, "rule applied",
			slog.Int("rule", i),
			slog.Bool("enable", rule.Enable),
			slog.Int("matched", n))
	}

	fmt.Fprintf(out, "applied %d rule(s)\n", len(cfg.Rules)-len(errs))

	return errors.Join(errs...)
}

// Message sends a message to the sink of the remote process.
type Message struct {
	Text      string `arg:""                                              help:"Message text."`
	Color     string `help:"Color name, 24-bit integer (0xRRGGBB) or R,G,B." short:"c"`
	Callstack int    `help:"Number of stack frames to capture."             short:"s"`
}

// Run executes the message command.
func (m *Message) Run(ctx context.Context) error {
	remote, err := remoteFrom(ctx)
	if err != nil {
		return err
	}

	color, err := colorJSON(m.Color)
	if err != nil {
		return ErrInvalidArg.Wrap(err).With(slog.String("color", m.Color))
	}

	err = remote.Message(ctx, control.MessageRequest{
		Text:      m.Text,
		Color:     color,
		Callstack: m.Callstack,
	})
	if err != nil {
		return ErrRemote.Wrap(err)
	}

	return nil
}

// colorJSON converts the textual color forms accepted on the command line to
// the JSON forms of [control.MessageRequest].
func colorJSON(s string) (json.RawMessage, error) {
	s = strings.TrimSpace(s)

	switch {
	case s == "":
		return nil, nil

	case strings.Contains(s, ","):
		parts := strings.Split(s, ",")
		ch := make([]int, len(parts))

		for i, p := range parts {
			n, err := strconv.Atoi(strings.TrimSpace(p))
			if err != nil {
				return nil, err
			}

			ch[i] = n
		}

		return json.Marshal(ch)

	default:
		if n, err := strconv.ParseInt(s, 0, 64); err == nil {
			return json.Marshal(n)
		}

		return json.Marshal(s)
	}
}
