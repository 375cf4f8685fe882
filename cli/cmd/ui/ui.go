// Package ui implements the interactive tracepoint window of tpctl: a fuzzy
// searchable list of the tracepoints of a remote process where each entry can
// be enabled or disabled with a key press.
package ui

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/lipgloss"
	"github.com/sahilm/fuzzy"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ardnew/tracepoint/control"
	"github.com/ardnew/tracepoint/log"
	"github.com/ardnew/tracepoint/tracepoint"
)

// Backend is the part of the control API used by the window.
type Backend interface {
	List(ctx context.Context, fs tracepoint.FilterSpec) ([]control.Tracepoint, error)
	Enable(ctx context.Context, fs tracepoint.FilterSpec, on bool) (int, error)
	Configure(ctx context.Context, fs tracepoint.FilterSpec, on bool) (control.ConfigureResponse, error)
}

// Options configures [Run].
type Options struct {
	// HistoryPath persists search queries. Empty keeps them in memory.
	HistoryPath string
	// Configure starts the window in configure mode.
	Configure bool
	Logger    log.Logger
}

// loadedMsg carries a fresh listing.
type loadedMsg struct{ tps []control.Tracepoint }

// toggledMsg reports a finished enable or configure request.
type toggledMsg struct {
	on      bool
	updated int
	failed  int
}

// errMsg carries a failed request.
type errMsg struct{ err error }

const (
	searchPrompt = "/ "
	chromeLines  = 4 // title, input, blank, footer
)

// Styles.
var (
	promptStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("6")).Bold(true)
	titleStyle     = lipgloss.NewStyle().Bold(true)
	modeStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("0")).Background(lipgloss.Color("5"))
	enabledStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true)
	disabledStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	hintStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	resultStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("4")).Bold(true)
	selectedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("0")).Background(lipgloss.Color("4"))
)

// source adapts a listing to [fuzzy.Source].
type source []control.Tracepoint

func (s source) String(i int) string { return label(s[i]) }
func (s source) Len() int            { return len(s) }

func label(tp control.Tracepoint) string { return tp.Module + "." + tp.Name }

// exactSpec selects exactly the tracepoint tp.
func exactSpec(tp control.Tracepoint) tracepoint.FilterSpec {
	return tracepoint.FilterSpec{
		Module: "=" + tp.Module,
		Name:   "=" + tp.Name,
		File:   "=" + tp.File,
		Where:  fmt.Sprintf("line == %d", tp.Line),
	}
}

// model is the Bubble Tea model for the window.
type model struct {
	ctxFunc    func() context.Context
	backend    Backend
	logger     log.Logger
	input      textinput.Model
	history    *History
	historyIdx int
	all        []control.Tracepoint
	matches    fuzzy.Matches // visible rows, in display order
	cursor     int
	offset     int
	configure  bool
	status     string
	err        error
	width      int
	height     int
	quitting   bool
}

// Run opens the window and blocks until the user quits.
func Run(ctx context.Context, backend Backend, opts Options) error {
	if backend == nil {
		return ErrNoBackend
	}

	history := NewHistory(opts.HistoryPath)
	if err := history.Load(); err != nil {
		opts.Logger.WarnContext(ctx, "could not load history",
			slog.String("path", opts.HistoryPath),
			slog.Any("error", err))
	}

	m := newModel(ctx, backend, history, opts)

	p := tea.NewProgram(m, tea.WithContext(ctx), tea.WithAltScreen())
	_, err := p.Run()

	return err
}

const (
	defaultWidth  = 80
	defaultHeight = 24
)

func newModel(ctx context.Context, backend Backend, history *History, opts Options) model {
	ti := textinput.New()
	ti.Prompt = promptStyle.Render(searchPrompt)
	ti.Placeholder = "fuzzy search module.name"
	ti.Focus()
	ti.CharLimit = 256
	ti.Width = defaultWidth - len(searchPrompt)

	return model{
		ctxFunc:    func() context.Context { return ctx },
		backend:    backend,
		logger:     opts.Logger,
		input:      ti,
		history:    history,
		historyIdx: history.Len(),
		configure:  opts.Configure,
		width:      defaultWidth,
		height:     defaultHeight,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.load())
}

func (m model) load() tea.Cmd {
	ctx, backend := m.ctxFunc(), m.backend

	return func() tea.Msg {
		tps, err := backend.List(ctx, tracepoint.FilterSpec{})
		if err != nil {
			return errMsg{err}
		}

		return loadedMsg{tps}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.Width = msg.Width - len(searchPrompt) - 2
		m.scroll()

		return m, nil

	case loadedMsg:
		m.all = msg.tps
		m.err = nil
		m.refilter()

		return m, nil

	case toggledMsg:
		verb := "disabled"
		if msg.on {
			verb = "enabled"
		}

		m.status = fmt.Sprintf("%s %d tracepoint(s)", verb, msg.updated)
		if msg.failed > 0 {
			m.status += fmt.Sprintf(", %d failed to recompile", msg.failed)
		}

		return m, m.load()

	case errMsg:
		m.err = msg.err
		m.logger.DebugContext(m.ctxFunc(), "ui request failed", slog.Any("error", msg.err))

		return m, nil
	}

	var cmd tea.Cmd

	m.input, cmd = m.input.Update(msg)

	return m, cmd
}

func (m model) handleKey(msg tea.KeyMsg) (model, tea.Cmd) {
	m.logger.TraceContext(
		m.ctxFunc(),
		"ui keypress",
		slog.String("key", msg.String()),
		slog.Int("type", int(msg.Type)),
	)

	switch msg.Type {
	case tea.KeyCtrlC:
		m.quitting = true

		return m, tea.Quit

	case tea.KeyEsc:
		if m.input.Value() == "" {
			m.quitting = true

			return m, tea.Quit
		}

		m.input.SetValue("")
		m.historyIdx = m.history.Len()
		m.refilter()

		return m, nil

	case tea.KeyUp, tea.KeyCtrlK:
		m.move(-1)

		return m, nil

	case tea.KeyDown, tea.KeyCtrlJ:
		m.move(1)

		return m, nil

	case tea.KeyPgUp:
		m.move(-m.rows())

		return m, nil

	case tea.KeyPgDown:
		m.move(m.rows())

		return m, nil

	case tea.KeyTab:
		m.configure = !m.configure

		return m, nil

	case tea.KeyCtrlR:
		m.status = ""

		return m, m.load()

	case tea.KeyCtrlP:
		return m.historyPrev()

	case tea.KeyCtrlN:
		return m.historyNext()

	case tea.KeyEnter:
		tp, ok := m.selected()
		if !ok {
			return m, nil
		}

		m.remember()

		return m, m.toggle([]control.Tracepoint{tp}, !tp.Enabled)

	case tea.KeyCtrlE, tea.KeyCtrlD:
		rows := m.visible()
		if len(rows) == 0 {
			return m, nil
		}

		m.remember()

		return m, m.toggle(rows, msg.Type == tea.KeyCtrlE)
	}

	var cmd tea.Cmd

	m.historyIdx = m.history.Len()
	m.input, cmd = m.input.Update(msg)
	m.refilter()

	return m, cmd
}

func (m model) toggle(tps []control.Tracepoint, on bool) tea.Cmd {
	ctx, backend, configure := m.ctxFunc(), m.backend, m.configure

	return func() tea.Msg {
		var res toggledMsg

		res.on = on

		for _, tp := range tps {
			if configure {
				resp, err := backend.Configure(ctx, exactSpec(tp), on)
				if err != nil {
					return errMsg{err}
				}

				res.updated += resp.Updated
				res.failed += len(resp.Failed)

				continue
			}

			n, err := backend.Enable(ctx, exactSpec(tp), on)
			if err != nil {
				return errMsg{err}
			}

			res.updated += n
		}

		return res
	}
}

// remember records the current query in the history.
func (m *model) remember() {
	if q := strings.TrimSpace(m.input.Value()); q != "" {
		if _, err := m.history.Write(q); err != nil {
			m.logger.WarnContext(m.ctxFunc(), "could not write history", slog.Any("error", err))
		}

		m.historyIdx = m.history.Len()
	}
}

func (m model) historyPrev() (model, tea.Cmd) {
	if m.historyIdx <= 0 {
		return m, nil
	}

	m.historyIdx--

	if line, err := m.history.GetLine(m.historyIdx); err == nil {
		m.input.SetValue(line)
		m.input.CursorEnd()
		m.refilter()
	}

	return m, nil
}

func (m model) historyNext() (model, tea.Cmd) {
	if m.historyIdx >= m.history.Len() {
		return m, nil
	}

	m.historyIdx++

	line := ""
	if m.historyIdx < m.history.Len() {
		line, _ = m.history.GetLine(m.historyIdx)
	}

	m.input.SetValue(line)
	m.input.CursorEnd()
	m.refilter()

	return m, nil
}

// refilter recomputes the visible rows for the current query.
func (m *model) refilter() {
	query := strings.TrimSpace(m.input.Value())

	if query == "" {
		m.matches = make(fuzzy.Matches, len(m.all))
		for i, tp := range m.all {
			m.matches[i] = fuzzy.Match{Str: label(tp), Index: i}
		}
	} else {
		m.matches = fuzzy.FindFrom(query, source(m.all))
	}

	m.move(0)
}

func (m *model) move(delta int) {
	m.cursor = min(max(m.cursor+delta, 0), max(len(m.matches)-1, 0))
	m.scroll()
}

func (m *model) scroll() {
	rows := m.rows()

	switch {
	case m.cursor < m.offset:
		m.offset = m.cursor
	case m.cursor >= m.offset+rows:
		m.offset = m.cursor - rows + 1
	}

	m.offset = max(min(m.offset, len(m.matches)-rows), 0)
}

func (m model) rows() int { return max(m.height-chromeLines, 1) }

func (m model) selected() (control.Tracepoint, bool) {
	if m.cursor < 0 || m.cursor >= len(m.matches) {
		return control.Tracepoint{}, false
	}

	return m.all[m.matches[m.cursor].Index], true
}

func (m model) visible() []control.Tracepoint {
	out := make([]control.Tracepoint, len(m.matches))
	for i, match := range m.matches {
		out[i] = m.all[match.Index]
	}

	return out
}

func (m model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder

	mode := "enable"
	if m.configure {
		mode = "configure"
	}

	enabled := 0
	for _, tp := range m.all {
		if tp.Enabled {
			enabled++
		}
	}

	b.WriteString(titleStyle.Render("tracepoints"))
	b.WriteString(" ")
	b.WriteString(modeStyle.Render(" " + mode + " "))
	b.WriteString(hintStyle.Render(fmt.Sprintf("  %d/%d shown, %d enabled",
		len(m.matches), len(m.all), enabled)))
	b.WriteString("\n")
	b.WriteString(m.input.View())
	b.WriteString("\n")

	end := min(m.offset+m.rows(), len(m.matches))
	for i := m.offset; i < end; i++ {
		b.WriteString(m.renderRow(m.matches[i], i == m.cursor))
		b.WriteString("\n")
	}

	if len(m.matches) == 0 {
		b.WriteString(hintStyle.Render("no matching tracepoints"))
		b.WriteString("\n")
	}

	b.WriteString("\n")

	switch {
	case m.err != nil:
		b.WriteString(errorStyle.Render("error: " + m.err.Error()))
	case m.status != "":
		b.WriteString(resultStyle.Render(m.status))
	default:
		b.WriteString(hintStyle.Render(
			"enter toggle · ctrl+e/ctrl+d all shown · tab mode · ctrl+r refresh · esc quit"))
	}

	return b.String()
}

func (m model) renderRow(match fuzzy.Match, selected bool) string {
	tp := m.all[match.Index]

	mark := disabledStyle.Render("○")
	if tp.Enabled {
		mark = enabledStyle.Render("●")
	}

	cursor := "  "
	if selected {
		cursor = promptStyle.Render("› ")
	}

	line := cursor + mark + " " + renderMatch(match, selected) + "  " +
		hintStyle.Render(fmt.Sprintf("%s:%d", tp.File, tp.Line))

	if m.width > 0 && lipgloss.Width(line) > m.width {
		line = lipgloss.NewStyle().MaxWidth(m.width).Render(line)
	}

	return line
}

// renderMatch highlights the characters of match the query hit.
func renderMatch(match fuzzy.Match, selected bool) string {
	base := lipgloss.NewStyle()
	hl := highlightStyle

	if selected {
		base = selectedStyle
		hl = selectedStyle.Bold(true)
	}

	matchSet := make(map[int]bool, len(match.MatchedIndexes))
	for _, idx := range match.MatchedIndexes {
		matchSet[idx] = true
	}

	var b strings.Builder

	for i, r := range match.Str {
		if matchSet[i] {
			b.WriteString(hl.Render(string(r)))
		} else {
			b.WriteString(base.Render(string(r)))
		}
	}

	return b.String()
}
