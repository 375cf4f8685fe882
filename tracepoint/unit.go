package tracepoint

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Static is a tracepoint resolved at unit build time. It never reads the
// enabled cell: a disabled Static is a constant no-op and an enabled one
// always emits.
type Static struct {
	site *Site
	on   bool
}

// Begin opens a span if the zone was compiled enabled.
func (z Static) Begin() Span {
	if !z.on {
		return Span{}
	}

	return z.site.open()
}

// Enabled reports the state the zone was compiled with.
func (z Static) Enabled() bool { return z.on }

// Site returns the underlying tracepoint.
func (z Static) Site() *Site { return z.site }

// Compiler resolves tracepoints while a unit is being built.
type Compiler struct {
	unit      string
	overrides map[*Cell]bool
	used      map[*Cell]uint64
	order     []*Cell
}

// Zone resolves s to a [Static] using the state the unit is being built for.
// Every resolved site ties the unit to that tracepoint: changing the
// tracepoint with [Registry.Configure] rebuilds the unit.
func (c *Compiler) Zone(s *Site) Static {
	on, ok := c.overrides[s.cell]
	if !ok {
		on = s.cell.Enabled()
	}

	if _, seen := c.used[s.cell]; !seen {
		c.used[s.cell] = s.cell.Generation()
		c.order = append(c.order, s.cell)
	}

	return Static{site: s, on: on}
}

// Unit returns the name of the unit being built.
func (c *Compiler) Unit() string { return c.unit }

// BuildFunc produces a specialized implementation of a unit.
type BuildFunc[T any] func(c *Compiler) (T, error)

// UnitOption configures a [Unit].
type UnitOption func(*unitConfig)

type unitConfig struct {
	pinned bool
}

// Pinned makes rebuilds of the unit fail while any caller holds it through
// [Unit.Acquire].
func Pinned() UnitOption {
	return func(c *unitConfig) { c.pinned = true }
}

type compiled[T any] struct {
	impl  T
	gens  map[*Cell]uint64
	cells []*Cell
}

// Unit is a piece of code specialized against the state of its tracepoints.
//
// The build function runs once at creation and again for every
// [Registry.Configure] touching one of the tracepoints it resolved. Between
// rebuilds [Unit.Get] returns the same implementation, whose zones carry no
// runtime check.
type Unit[T any] struct {
	label  string
	build  BuildFunc[T]
	pinned bool

	mu     sync.Mutex   // serializes builds
	pin    sync.RWMutex // pinned units: read by Acquire, written from build to install
	cur    atomic.Pointer[compiled[T]]
	active atomic.Int64
	builds atomic.Uint64
}

// NewUnit builds a unit in r and registers it for recompilation.
func NewUnit[T any](
	r *Registry,
	name string,
	build BuildFunc[T],
	opts ...UnitOption,
) (*Unit[T], error) {
	var cfg unitConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	u := &Unit[T]{label: name, build: build, pinned: cfg.pinned}

	install, _, err := u.rebuild(nil)
	if err != nil {
		return nil, err
	}

	install()
	r.addUnit(u)

	r.logger().Debug("unit compiled",
		slog.String("unit", name),
		slog.Int("tracepoints", len(u.cells())))

	return u, nil
}

// MustUnit is like [NewUnit] but panics on error.
func MustUnit[T any](
	r *Registry,
	name string,
	build BuildFunc[T],
	opts ...UnitOption,
) *Unit[T] {
	u, err := NewUnit(r, name, build, opts...)
	if err != nil {
		panic(err)
	}

	return u
}

// Get returns the current implementation.
func (u *Unit[T]) Get() T { return u.cur.Load().impl }

// Acquire returns the current implementation and a release function. While
// held, a [Pinned] unit refuses to be rebuilt, and an Acquire of a pinned unit
// waits for a rebuild already in progress to be installed or discarded.
func (u *Unit[T]) Acquire() (T, func()) {
	if u.pinned {
		u.pin.RLock()
	}

	u.active.Add(1)

	var once sync.Once

	return u.cur.Load().impl, func() {
		once.Do(func() {
			u.active.Add(-1)

			if u.pinned {
				u.pin.RUnlock()
			}
		})
	}
}

// Name returns the unit name.
func (u *Unit[T]) Name() string { return u.label }

// Builds returns the number of successful builds, including the first.
func (u *Unit[T]) Builds() uint64 { return u.builds.Load() }

// Stale reports whether a tracepoint the unit resolved has been written since
// the unit was built, for example by [Registry.Enable].
func (u *Unit[T]) Stale() bool {
	for c, gen := range u.cur.Load().gens {
		if c.Generation() != gen {
			return true
		}
	}

	return false
}

// unitHandle is the type-erased view of a [Unit] held by the registry.
type unitHandle interface {
	name() string
	cells() []*Cell
	stale() bool
	rebuild(overrides map[*Cell]bool) (install, discard func(), err error)
}

func (u *Unit[T]) name() string { return u.label }

func (u *Unit[T]) stale() bool { return u.Stale() }

func (u *Unit[T]) cells() []*Cell {
	if c := u.cur.Load(); c != nil {
		return c.cells
	}

	return nil
}

// rebuild runs the build function. The result is not visible until install
// is called; discard drops it instead. Exactly one of them must be called when
// err is nil. A pinned unit stays closed to Acquire until then.
func (u *Unit[T]) rebuild(overrides map[*Cell]bool) (install, discard func(), err error) {
	release := func() {}

	if u.pinned {
		if !u.pin.TryLock() {
			return nil, nil, ErrUnitBusy.With(
				slog.String("unit", u.label),
				slog.Int64("active", u.active.Load()))
		}

		var once sync.Once

		release = func() { once.Do(u.pin.Unlock) }
	}

	next, err := u.compile(overrides)
	if err != nil {
		release()

		return nil, nil, err
	}

	// install runs after the overridden cells have been written.
	install = func() {
		for cell := range next.gens {
			if _, ok := overrides[cell]; ok {
				next.gens[cell] = cell.Generation()
			}
		}

		u.cur.Store(next)
		u.builds.Add(1)
		release()
	}

	return install, release, nil
}

// compile runs the build function against overrides, converting a panic into
// [ErrRecompile].
func (u *Unit[T]) compile(overrides map[*Cell]bool) (next *compiled[T], err error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	c := &Compiler{
		unit:      u.label,
		overrides: overrides,
		used:      make(map[*Cell]uint64),
	}

	defer func() {
		if p := recover(); p != nil {
			next = nil
			err = ErrRecompile.Wrap(fmt.Errorf("panic: %v", p)).
				With(slog.String("unit", u.label))
		}
	}()

	impl, err := u.build(c)
	if err != nil {
		return nil, ErrRecompile.Wrap(err).With(slog.String("unit", u.label))
	}

	return &compiled[T]{impl: impl, gens: c.used, cells: c.order}, nil
}
