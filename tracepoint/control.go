package tracepoint

import (
	"errors"
	"log/slog"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"
)

// Enable sets the state of every listed tracepoint matching f and returns how
// many were written. It never rebuilds code: call sites pick up the change on
// their next execution, and compiled units that resolved a written
// tracepoint become stale until the next [Registry.Configure].
func (r *Registry) Enable(f Filter, on bool) int {
	sites := r.Select(f)

	cells := make([]*Cell, len(sites))
	for i, s := range sites {
		s.cell.set(on)
		cells[i] = s.cell
	}

	for _, u := range r.unitsFor(cells) {
		if u.stale() {
			r.logger().Debug("unit stale",
				slog.String("unit", u.name()),
				slog.String("hint", "use configure to respecialize"))
		}
	}

	r.logger().Info("tracepoints updated",
		slog.String("filter", f.String()),
		slog.String("state", State(on).String()),
		slog.Int("count", len(sites)))

	return len(sites)
}

// Disable is Enable(f, false).
func (r *Registry) Disable(f Filter) int { return r.Enable(f, false) }

// Failure describes a tracepoint [Registry.Configure] could not update.
type Failure struct {
	Site *Site
	Unit string
	Err  error
}

// Report summarizes a [Registry.Configure] call.
type Report struct {
	// Matched counts the tracepoints selected by the filter.
	Matched int
	// Updated counts the tracepoints whose state was written.
	Updated int
	// Recompiled names the units whose new build was installed.
	Recompiled []string
	// Failed lists the tracepoints left unchanged.
	Failed  []Failure
	Elapsed time.Duration
}

// OK reports whether every matched tracepoint was updated.
func (rp Report) OK() bool { return len(rp.Failed) == 0 }

type buildResult struct {
	install func()
	discard func()
	err     error
}

// Configure sets the state of every listed tracepoint matching f and rebuilds
// each unit that resolved one of them, so the new state is compiled in.
//
// Units are rebuilt concurrently. When a unit fails to build, the matched
// tracepoints it resolved keep their previous state and the remaining units
// are rebuilt again without them, until no new failure appears. Everything
// else is updated. The returned error wraps [ErrRecompile] when any
// tracepoint failed; the [Report] is complete in either case.
//
// Configure is much slower than [Registry.Enable] and is serialized with
// other Configure calls on the same registry.
func (r *Registry) Configure(f Filter, on bool) (Report, error) {
	r.configure.Lock()
	defer r.configure.Unlock()

	begin := time.Now()
	sites := r.Select(f)

	target := make(map[*Cell]*Site, len(sites))
	cells := make([]*Cell, 0, len(sites))

	for _, s := range sites {
		if _, dup := target[s.cell]; !dup {
			target[s.cell] = s
			cells = append(cells, s.cell)
		}
	}

	units := r.unitsFor(cells)
	failed := make(map[*Cell]Failure)

	var results []buildResult

	for {
		overrides := make(map[*Cell]bool, len(target))
		for c := range target {
			if _, bad := failed[c]; !bad {
				overrides[c] = on
			}
		}

		results = r.buildAll(units, overrides)

		fresh := 0

		for i, res := range results {
			if res.err == nil {
				continue
			}

			for _, c := range units[i].cells() {
				s, ok := target[c]
				if !ok {
					continue
				}

				if _, bad := failed[c]; bad {
					continue
				}

				failed[c] = Failure{Site: s, Unit: units[i].name(), Err: res.err}
				fresh++
			}
		}

		if fresh == 0 {
			break
		}

		// Rebuild against the reduced overrides; drop this round's builds.
		for _, res := range results {
			if res.err == nil {
				res.discard()
			}
		}
	}

	report := Report{Matched: len(sites)}

	for _, c := range cells {
		if _, bad := failed[c]; bad {
			continue
		}

		c.set(on)
		report.Updated++
	}

	for i, res := range results {
		if res.err != nil {
			continue
		}

		res.install()
		r.reindexUnit(units[i])
		report.Recompiled = append(report.Recompiled, units[i].name())
	}

	var errs []error

	for _, c := range cells {
		if fl, bad := failed[c]; bad {
			report.Failed = append(report.Failed, fl)
			errs = append(errs, fl.Err)
		}
	}

	report.Elapsed = time.Since(begin)

	logger := r.logger()
	if report.Elapsed > time.Second {
		logger.Warn("configure was slow; prefer enable for frequent toggling",
			slog.Duration("elapsed", report.Elapsed),
			slog.Int("units", len(units)))
	}

	logger.Info("tracepoints configured",
		slog.String("filter", f.String()),
		slog.String("state", State(on).String()),
		slog.Int("matched", report.Matched),
		slog.Int("updated", report.Updated),
		slog.Int("recompiled", len(report.Recompiled)),
		slog.Int("failed", len(report.Failed)))

	if len(errs) > 0 {
		return report, ErrRecompile.Wrap(errors.Join(errs...)).
			With(slog.Int("failed", len(report.Failed)))
	}

	return report, nil
}

// buildAll rebuilds units concurrently. Build errors are collected per unit,
// never returned through the group, so one failure does not cancel the rest.
func (r *Registry) buildAll(units []unitHandle, overrides map[*Cell]bool) []buildResult {
	results := make([]buildResult, len(units))

	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))

	for i, u := range units {
		g.Go(func() error {
			install, discard, err := u.rebuild(overrides)
			results[i] = buildResult{install: install, discard: discard, err: err}

			if err != nil {
				r.logger().Debug("unit build failed",
					slog.String("unit", u.name()),
					slog.Any("error", err))
			}

			return nil
		})
	}

	_ = g.Wait()

	return results
}

// Enable sets the state of matching tracepoints in the [Default] registry.
func Enable(f Filter, on bool) int { return Default.Enable(f, on) }

// Configure sets the state of matching tracepoints in the [Default] registry
// and rebuilds affected units.
func Configure(f Filter, on bool) (Report, error) { return Default.Configure(f, on) }

// Register adds m to the listing of the registry it belongs to.
func Register(m *Module) int { return m.reg.Register(m) }
