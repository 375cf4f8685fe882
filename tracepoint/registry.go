package tracepoint

import (
	"iter"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/ardnew/tracepoint/log"
	"github.com/ardnew/tracepoint/sink"
)

// Registry owns the identity index of every declared tracepoint, the listing
// of registered modules, the compiled units, and the current sink.
//
// Most programs use the process-wide [Default] registry through the package
// functions. Separate registries are useful in tests.
type Registry struct {
	mu       sync.Mutex
	cells    map[siteKey]*Cell
	modules  map[string]*Module
	listed   []*Module
	isListed map[*Module]bool
	units    []unitHandle
	unitsOf  map[*Cell][]unitHandle

	// Serializes Configure calls.
	configure sync.Mutex

	sink   atomic.Pointer[sinkBox]
	log    atomic.Pointer[log.Logger]
	failed atomic.Uint64
}

// Default is the process-wide registry. It exists for the lifetime of the
// process and starts with no modules and the [sink.Nop] sink.
var Default = NewRegistry()

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	r := &Registry{
		cells:    make(map[siteKey]*Cell),
		modules:  make(map[string]*Module),
		isListed: make(map[*Module]bool),
		unitsOf:  make(map[*Cell][]unitHandle),
	}
	r.sink.Store(&sinkBox{s: sink.Nop})

	return r
}

// NewModule returns the module with the given path, creating it on first
// use.
func (r *Registry) NewModule(path string) *Module {
	r.mu.Lock()
	defer r.mu.Unlock()

	if m, ok := r.modules[path]; ok {
		return m
	}

	m := &Module{path: path, reg: r, byKey: make(map[siteKey]*Site)}
	r.modules[path] = m

	return m
}

// cell returns the cell for d's identity, creating a disabled one on first
// use. Eager declaration and lazy lookup converge on the same cell.
func (r *Registry) cell(d *Descriptor) *Cell {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.cells[d.key()]; ok {
		return c
	}

	c := &Cell{desc: d}
	r.cells[d.key()] = c

	return c
}

// Lookup returns the cell at the given position, if one has been created.
func (r *Registry) Lookup(module, file string, line int) (*Cell, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.cells[siteKey{module: module, file: file, line: line}]

	return c, ok
}

// Register adds m to the listing used by [Registry.Select],
// [Registry.Enable] and [Registry.Configure], and returns the number of
// tracepoints added to the listing: every tracepoint m declares on first
// registration, zero afterwards. Tracepoints declared after registration are
// listed as they are declared. Registration never changes a tracepoint's
// state.
func (r *Registry) Register(m *Module) int {
	r.mu.Lock()
	added := !r.isListed[m]
	if added {
		r.isListed[m] = true
		r.listed = append(r.listed, m)
	}
	r.mu.Unlock()

	if !added {
		return 0
	}

	n := m.Len()

	r.logger().Debug("module registered",
		slog.String("module", m.path),
		slog.Int("tracepoints", n))

	return n
}

// Modules returns the paths of the registered modules in registration order.
func (r *Registry) Modules() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	paths := make([]string, len(r.listed))
	for i, m := range r.listed {
		paths[i] = m.path
	}

	return paths
}

// Entries iterates over the tracepoints of every registered module, module by
// module in registration order, each in declaration order.
func (r *Registry) Entries() iter.Seq[*Site] {
	return func(yield func(*Site) bool) {
		r.mu.Lock()
		listed := slices.Clone(r.listed)
		r.mu.Unlock()

		for _, m := range listed {
			for _, s := range m.Sites() {
				if !yield(s) {
					return
				}
			}
		}
	}
}

// Len returns the number of listed tracepoints.
func (r *Registry) Len() int {
	n := 0
	for range r.Entries() {
		n++
	}

	return n
}

// Select returns the listed tracepoints matching f.
func (r *Registry) Select(f Filter) []*Site {
	var out []*Site

	for s := range r.Entries() {
		if f.Match(s) {
			out = append(out, s)
		}
	}

	return out
}

// SetLogger replaces the logger used for the registry's diagnostics. The
// package logger is used until one is set.
func (r *Registry) SetLogger(l log.Logger) { r.log.Store(&l) }

func (r *Registry) logger() log.Logger {
	if l := r.log.Load(); l != nil {
		return *l
	}

	return log.Default()
}

// addUnit indexes u under every cell it was specialized against.
func (r *Registry) addUnit(u unitHandle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.units = append(r.units, u)
	r.indexUnit(u)
}

// reindexUnit refreshes the cell index of u after a rebuild.
func (r *Registry) reindexUnit(u unitHandle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for c, us := range r.unitsOf {
		r.unitsOf[c] = slices.DeleteFunc(us, func(v unitHandle) bool { return v == u })
		if len(r.unitsOf[c]) == 0 {
			delete(r.unitsOf, c)
		}
	}

	r.indexUnit(u)
}

func (r *Registry) indexUnit(u unitHandle) {
	for _, c := range u.cells() {
		r.unitsOf[c] = append(r.unitsOf[c], u)
	}
}

// unitsFor returns every unit specialized against at least one of cells, in
// creation order.
func (r *Registry) unitsFor(cells []*Cell) []unitHandle {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[unitHandle]bool)
	for _, c := range cells {
		for _, u := range r.unitsOf[c] {
			seen[u] = true
		}
	}

	var out []unitHandle
	for _, u := range r.units {
		if seen[u] {
			out = append(out, u)
		}
	}

	return out
}

// Units returns the names of every unit compiled against this registry.
func (r *Registry) Units() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, len(r.units))
	for i, u := range r.units {
		names[i] = u.name()
	}

	return names
}
