package tracepoint

import (
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/sahilm/fuzzy"
)

// Pattern matches one field of a tracepoint descriptor. A nil Pattern matches
// everything.
type Pattern interface {
	Match(s string) bool
	String() string
}

type exactPattern string

func (p exactPattern) Match(s string) bool { return string(p) == s }
func (p exactPattern) String() string      { return "=" + string(p) }

// Exact matches one value verbatim.
func Exact(s string) Pattern { return exactPattern(s) }

type globPattern string

func (p globPattern) Match(s string) bool {
	ok, _ := path.Match(string(p), s)

	return ok
}

func (p globPattern) String() string { return string(p) }

// Glob matches with [path.Match] syntax.
func Glob(pattern string) (Pattern, error) {
	if _, err := path.Match(pattern, ""); err != nil {
		return nil, ErrInvalidFilter.Wrap(err).With(slog.String("glob", pattern))
	}

	return globPattern(pattern), nil
}

type regexpPattern struct{ re *regexp.Regexp }

func (p regexpPattern) Match(s string) bool { return p.re.MatchString(s) }
func (p regexpPattern) String() string      { return "re:" + p.re.String() }

// Regexp matches with a regular expression. It is unanchored.
func Regexp(expr string) (Pattern, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, ErrInvalidFilter.Wrap(err).With(slog.String("regexp", expr))
	}

	return regexpPattern{re}, nil
}

type fuzzyPattern string

func (p fuzzyPattern) Match(s string) bool {
	return len(fuzzy.Find(string(p), []string{s})) > 0
}

func (p fuzzyPattern) String() string { return "~" + string(p) }

// Fuzzy matches when every character of query appears in order.
func Fuzzy(query string) Pattern { return fuzzyPattern(query) }

type predicatePattern func(string) bool

func (p predicatePattern) Match(s string) bool { return p(s) }
func (p predicatePattern) String() string      { return "<func>" }

// Predicate adapts an arbitrary function.
func Predicate(fn func(string) bool) Pattern { return predicatePattern(fn) }

// ParsePattern converts the textual pattern syntax used by configuration files,
// the control API and tpctl:
//
//	"", "*", "~"  anything (nil Pattern)
//	"re:EXPR"     [Regexp]
//	"~QUERY"      [Fuzzy]
//	"=VALUE"      [Exact], even if VALUE contains glob metacharacters
//	"a*b", "x?"   [Glob], when any of "*?[" occurs
//	"VALUE"       [Exact]
func ParsePattern(s string) (Pattern, error) {
	switch {
	case s == "" || s == "*" || s == "~":
		return nil, nil

	case strings.HasPrefix(s, "re:"):
		return Regexp(s[len("re:"):])

	case strings.HasPrefix(s, "~"):
		return Fuzzy(s[1:]), nil

	case strings.HasPrefix(s, "="):
		return Exact(s[1:]), nil

	case strings.ContainsAny(s, "*?["):
		return Glob(s)

	default:
		return Exact(s), nil
	}
}

// Filter selects tracepoints. Every non-nil field must match; the zero Filter
// matches every tracepoint.
//
// Module and Name match their descriptor fields. Func matches either the
// fully qualified function name or the name without its package path. File
// matches either the full path or the base name.
type Filter struct {
	Module Pattern
	Name   Pattern
	Func   Pattern
	File   Pattern
	Where  *Where
}

// Match reports whether s is selected.
func (f Filter) Match(s *Site) bool {
	d := s.cell.desc

	switch {
	case f.Module != nil && !f.Module.Match(d.module):
		return false
	case f.Name != nil && !f.Name.Match(d.name):
		return false
	case f.Func != nil && !f.Func.Match(d.fn) && !f.Func.Match(d.ShortFunc()):
		return false
	case f.File != nil && !f.File.Match(d.file) && !f.File.Match(filepath.Base(d.file)):
		return false
	case f.Where != nil && !f.Where.Eval(s):
		return false
	}

	return true
}

// String formats the filter for logs.
func (f Filter) String() string {
	var parts []string

	add := func(k string, p Pattern) {
		if p != nil {
			parts = append(parts, fmt.Sprintf("%s=%s", k, p))
		}
	}

	add("module", f.Module)
	add("name", f.Name)
	add("func", f.Func)
	add("file", f.File)

	if f.Where != nil {
		parts = append(parts, fmt.Sprintf("where=%q", f.Where.src))
	}

	if len(parts) == 0 {
		return "*"
	}

	return strings.Join(parts, " ")
}

// FilterSpec is the textual form of a [Filter].
type FilterSpec struct {
	Module string `yaml:"module,omitempty" json:"module,omitempty"`
	Name   string `yaml:"name,omitempty"   json:"name,omitempty"`
	Func   string `yaml:"func,omitempty"   json:"func,omitempty"`
	File   string `yaml:"file,omitempty"   json:"file,omitempty"`
	Where  string `yaml:"where,omitempty"  json:"where,omitempty"`
}

// Compile parses every field with [ParsePattern] and [CompileWhere].
func (fs FilterSpec) Compile() (Filter, error) {
	var (
		f   Filter
		err error
	)

	for _, field := range []struct {
		dst *Pattern
		src string
	}{
		{&f.Module, fs.Module},
		{&f.Name, fs.Name},
		{&f.Func, fs.Func},
		{&f.File, fs.File},
	} {
		if *field.dst, err = ParsePattern(field.src); err != nil {
			return Filter{}, err
		}
	}

	if strings.TrimSpace(fs.Where) != "" {
		if f.Where, err = CompileWhere(fs.Where); err != nil {
			return Filter{}, err
		}
	}

	return f, nil
}

// whereEnv is the environment a [Where] expression is evaluated in.
type whereEnv struct {
	Module     string `expr:"module"`
	Name       string `expr:"name"`
	Func       string `expr:"func"`
	File       string `expr:"file"`
	Line       int    `expr:"line"`
	Enabled    bool   `expr:"enabled"`
	Generation uint64 `expr:"generation"`
}

// Where is a compiled boolean expression over a tracepoint, for example
//
//	enabled && line > 100 && file endsWith "_test.go"
//
// The variables are module, name, func, file, line, enabled and generation.
type Where struct {
	src  string
	prog *vm.Program
}

// CompileWhere compiles a [Where] expression.
func CompileWhere(src string) (*Where, error) {
	prog, err := expr.Compile(src, expr.Env(whereEnv{}), expr.AsBool())
	if err != nil {
		return nil, ErrInvalidFilter.Wrap(err).With(slog.String("where", src))
	}

	return &Where{src: src, prog: prog}, nil
}

// String returns the expression source.
func (w *Where) String() string { return w.src }

// Eval reports whether the expression holds for s. Evaluation errors count as
// false.
func (w *Where) Eval(s *Site) bool {
	c := s.cell
	d := c.desc

	out, err := expr.Run(w.prog, whereEnv{
		Module:     d.module,
		Name:       d.name,
		Func:       d.fn,
		File:       d.file,
		Line:       d.line,
		Enabled:    c.Enabled(),
		Generation: c.Generation(),
	})
	if err != nil {
		return false
	}

	ok, _ := out.(bool)

	return ok
}
