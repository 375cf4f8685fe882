package tracepoint

import (
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"sync"
	"unicode"
)

// Module groups the tracepoints declared by one package. Obtain one with
// [NewModule], normally as a package-level variable:
//
//	var tp = tracepoint.NewModule("example.com/app/parser")
//
//	var parseSite = tp.Declare("parse")
//
//	func (p *Parser) Parse() {
//		defer parseSite.Begin().End()
//		...
//	}
type Module struct {
	path string
	reg  *Registry

	mu    sync.Mutex
	sites []*Site
	byKey map[siteKey]*Site
}

// NewModule returns the module with the given path in the [Default]
// registry, creating it on first use.
func NewModule(path string) *Module { return Default.NewModule(path) }

// Path returns the module path.
func (m *Module) Path() string { return m.path }

// Registry returns the registry the module belongs to.
func (m *Module) Registry() *Registry { return m.reg }

// Sites returns every tracepoint declared so far, in declaration order.
func (m *Module) Sites() []*Site {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]*Site(nil), m.sites...)
}

// Len returns the number of tracepoints declared so far.
func (m *Module) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.sites)
}

// Register adds the module's tracepoints to its registry's listing. See
// [Registry.Register].
func (m *Module) Register() int { return m.reg.Register(m) }

// DeclareOption configures a call to [Module.Declare].
type DeclareOption func(*declareConfig)

type declareConfig struct {
	fn   string
	file string
	line int
	skip int
}

// InFunc overrides the enclosing function name recorded for the tracepoint.
// Without it, package-level declarations record the package initializer.
func InFunc(name string) DeclareOption {
	return func(c *declareConfig) { c.fn = name }
}

// At overrides the recorded source position.
func At(file string, line int) DeclareOption {
	return func(c *declareConfig) { c.file, c.line = file, line }
}

// CallerSkip skips additional stack frames when recording the position, for
// helpers that declare tracepoints on behalf of their caller.
func CallerSkip(n int) DeclareOption {
	return func(c *declareConfig) { c.skip = n }
}

// Declare creates the tracepoint for the calling source position, disabled.
//
// Declaring again at the same position returns the existing [Site], so a
// declaration inside a function body is valid, although every call then pays
// for an index lookup. Declare panics with [ErrInvalidName] if name is empty,
// contains control characters, or differs from the name already declared at
// the same position. The tpvet analyzer reports these cases at build time.
func (m *Module) Declare(name string, opts ...DeclareOption) *Site {
	if err := validateName(name); err != nil {
		panic(err)
	}

	var cfg declareConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	pc, file, line, ok := runtime.Caller(1 + cfg.skip)
	if cfg.file != "" {
		file, line = cfg.file, cfg.line
	}

	fn := cfg.fn
	if fn == "" && ok {
		if f := runtime.FuncForPC(pc); f != nil {
			fn = f.Name()
		}
	}

	d := &Descriptor{
		name:   name,
		module: m.path,
		file:   file,
		fn:     fn,
		line:   line,
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.byKey[d.key()]; ok {
		if s.cell.desc.name != name {
			panic(positionTaken(d, s.cell.desc))
		}

		return s
	}

	cell := m.reg.cell(d)
	if cell.desc.name != name {
		panic(positionTaken(d, cell.desc))
	}
	s := &Site{cell: cell, reg: m.reg}
	m.byKey[d.key()] = s
	m.sites = append(m.sites, s)

	m.reg.logger().Trace("tracepoint declared",
		slog.String("module", m.path),
		slog.String("name", name),
		slog.String("file", file),
		slog.Int("line", line))

	return s
}

// positionTaken reports a second name declared at the position of prev.
func positionTaken(d, prev *Descriptor) error {
	return ErrInvalidName.With(
		slog.String("name", d.name),
		slog.String("module", d.module),
		slog.String("file", d.file),
		slog.Int("line", d.line),
		slog.String("reason", fmt.Sprintf("position already declared as %q", prev.name)))
}

func validateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrInvalidName.With(slog.String("reason", "empty"))
	}

	if i := strings.IndexFunc(name, unicode.IsControl); i >= 0 {
		return ErrInvalidName.With(
			slog.String("name", name),
			slog.Int("offset", i),
			slog.String("reason", "control character"))
	}

	return nil
}

// Site is the handle a call site uses to open spans.
type Site struct {
	cell *Cell
	reg  *Registry
}

// Descriptor returns the tracepoint identity.
func (s *Site) Descriptor() *Descriptor { return s.cell.desc }

// Cell returns the tracepoint's enabled-state cell.
func (s *Site) Cell() *Cell { return s.cell }

// Enabled reports whether the tracepoint is currently enabled.
func (s *Site) Enabled() bool { return s.cell.enabled.Load() }

// String implements [fmt.Stringer].
func (s *Site) String() string { return s.cell.desc.String() }
