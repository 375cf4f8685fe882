package tracepoint

import (
	"errors"
	"slices"
	"sync"
	"testing"
	"time"
)

func TestRegistry_Enable_Idempotent(t *testing.T) {
	r, sites := filterFixture(t)

	for range 2 {
		if n := r.Enable(Filter{}, true); n != 3 {
			t.Errorf("expected 3 matches, got %d", n)
		}

		for _, s := range sites {
			if !s.Enabled() {
				t.Errorf("%v: expected enabled", s)
			}
		}
	}

	r.Disable(Filter{})

	for _, s := range sites {
		if s.Enabled() || s.Cell().State() != Disabled {
			t.Errorf("%v: expected disabled", s)
		}

		if g := s.Cell().Generation(); g != 3 {
			t.Errorf("%v: expected generation 3, got %d", s, g)
		}
	}
}

func TestRegistry_Enable_NoMatchLeavesCellsUnchanged(t *testing.T) {
	r, sites := filterFixture(t)

	if n := r.Enable(mustFilter(t, FilterSpec{Name: "nothing*here"}), true); n != 0 {
		t.Errorf("expected no matches, got %d", n)
	}

	for _, s := range sites {
		if s.Enabled() || s.Cell().Generation() != 0 {
			t.Errorf("%v: expected untouched cell", s)
		}
	}
}

func TestRegistry_Enable_ConcurrentFlips(t *testing.T) {
	r, sites := filterFixture(t)

	var wg sync.WaitGroup
	for _, on := range []bool{true, false} {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for range 100 {
				r.Enable(Filter{}, on)
			}
		}()
	}

	wg.Wait()

	for _, s := range sites {
		if st := s.Cell().State(); st != Enabled && st != Disabled {
			t.Errorf("%v: undefined state %v", s, st)
		}
	}
}

// pipeline is the kind of function a unit specializes.
type pipeline func(in []int) int

func newPipeline(t *testing.T, r *Registry, name string, sum, scale *Site, opts ...UnitOption) *Unit[pipeline] {
	t.Helper()

	u, err := NewUnit(r, name, func(c *Compiler) (pipeline, error) {
		zs, zc := c.Zone(sum), c.Zone(scale)

		return func(in []int) int {
			sp := zs.Begin()
			total := 0
			for _, v := range in {
				total += v
			}
			sp.End()

			defer zc.Begin().End()

			return total * 10
		}, nil
	}, opts...)
	if err != nil {
		t.Fatalf("NewUnit: %v", err)
	}

	return u
}

func TestUnit_StaticZonesIgnoreEnable(t *testing.T) {
	r, rec := newTestRegistry(t)
	m := r.NewModule("M")
	sum, scale := declareAt(m, "sum", 1), declareAt(m, "scale", 2)
	m.Register()

	u := newPipeline(t, r, "pipeline", sum, scale)

	r.Enable(Filter{}, true)

	if got := u.Get()([]int{1, 2, 3}); got != 60 {
		t.Fatalf("pipeline = %d", got)
	}

	if n := len(rec.Spans()); n != 0 {
		t.Errorf("expected compiled-out zones to stay silent, got %d spans", n)
	}

	if !u.Stale() {
		t.Error("expected unit to be stale after enable")
	}
}

func TestRegistry_Configure_RebuildsUnits(t *testing.T) {
	r, rec := newTestRegistry(t)
	m := r.NewModule("M")
	sum, scale := declareAt(m, "sum", 1), declareAt(m, "scale", 2)
	other := declareAt(m, "other", 3)
	m.Register()

	u := newPipeline(t, r, "pipeline", sum, scale)

	report, err := r.Configure(mustFilter(t, FilterSpec{Name: "sum"}), true)
	if err != nil {
		t.Fatalf("Configure: %v", err)
	}

	if report.Matched != 1 || report.Updated != 1 || !report.OK() {
		t.Errorf("unexpected report %+v", report)
	}

	if !slices.Equal(report.Recompiled, []string{"pipeline"}) {
		t.Errorf("expected pipeline recompiled, got %v", report.Recompiled)
	}

	if u.Stale() || u.Builds() != 2 {
		t.Errorf("expected fresh unit after 2 builds, stale=%v builds=%d", u.Stale(), u.Builds())
	}

	if got := u.Get()([]int{4}); got != 40 {
		t.Fatalf("pipeline = %d", got)
	}

	if got := rec.Names(); !slices.Equal(got, []string{"sum"}) {
		t.Errorf("expected only sum to emit, got %v", got)
	}

	if !sum.Enabled() || scale.Enabled() || other.Enabled() {
		t.Error("expected only sum enabled")
	}
}

func TestRegistry_Configure_UnrelatedUnitsUntouched(t *testing.T) {
	r, _ := newTestRegistry(t)
	m := r.NewModule("M")
	a, b := declareAt(m, "a", 1), declareAt(m, "b", 2)
	c, d := declareAt(m, "c", 3), declareAt(m, "d", 4)
	m.Register()

	ua := newPipeline(t, r, "ab", a, b)
	uc := newPipeline(t, r, "cd", c, d)

	if _, err := r.Configure(mustFilter(t, FilterSpec{Name: "a"}), true); err != nil {
		t.Fatal(err)
	}

	if ua.Builds() != 2 || uc.Builds() != 1 {
		t.Errorf("expected only ab rebuilt, got ab=%d cd=%d", ua.Builds(), uc.Builds())
	}
}

func TestRegistry_Configure_PartialFailure(t *testing.T) {
	r, rec := newTestRegistry(t)
	m := r.NewModule("M")
	good := declareAt(m, "good", 1)
	bad := declareAt(m, "bad", 2)
	m.Register()

	goodUnit := MustUnit(r, "good-unit", func(c *Compiler) (func(), error) {
		z := c.Zone(good)

		return func() { z.Begin().End() }, nil
	})

	fail := false
	badUnit := MustUnit(r, "bad-unit", func(c *Compiler) (func(), error) {
		z := c.Zone(bad)
		if fail {
			return nil, errors.New("code generator unavailable")
		}

		return func() { z.Begin().End() }, nil
	})

	fail = true

	report, err := r.Configure(Filter{}, true)
	if !errors.Is(err, ErrRecompile) {
		t.Fatalf("expected ErrRecompile, got %v", err)
	}

	if report.Matched != 2 || report.Updated != 1 {
		t.Errorf("unexpected report %+v", report)
	}

	if len(report.Failed) != 1 || report.Failed[0].Site != bad || report.Failed[0].Unit != "bad-unit" {
		t.Fatalf("unexpected failures %+v", report.Failed)
	}

	if !good.Enabled() {
		t.Error("expected good tracepoint updated")
	}

	if bad.Enabled() || bad.Cell().Generation() != 0 {
		t.Error("expected failed tracepoint left unchanged")
	}

	goodUnit.Get()()
	badUnit.Get()()

	if got := rec.Names(); !slices.Equal(got, []string{"good"}) {
		t.Errorf("expected only good to emit, got %v", got)
	}
}

func TestRegistry_Configure_FailureExcludesSharedTracepoint(t *testing.T) {
	r, _ := newTestRegistry(t)
	m := r.NewModule("M")
	shared := declareAt(m, "shared", 1)
	solo := declareAt(m, "solo", 2)
	m.Register()

	// Rebuilding with shared enabled fails; the other unit depends on it too.
	MustUnit(r, "picky", func(c *Compiler) (int, error) {
		if c.Zone(shared).Enabled() {
			return 0, errors.New("shared must stay disabled here")
		}

		return 0, nil
	})

	tolerant := MustUnit(r, "tolerant", func(c *Compiler) (int, error) {
		c.Zone(shared)
		c.Zone(solo)

		return 0, nil
	})

	report, err := r.Configure(Filter{}, true)
	if err == nil {
		t.Fatal("expected error")
	}

	if shared.Enabled() || !solo.Enabled() {
		t.Errorf("expected shared unchanged and solo enabled, got %v %v",
			shared.Enabled(), solo.Enabled())
	}

	if !slices.Contains(report.Recompiled, "tolerant") {
		t.Errorf("expected tolerant rebuilt without shared, got %v", report.Recompiled)
	}

	if !slices.Contains(report.Recompiled, "picky") {
		t.Errorf("expected picky rebuilt once shared was excluded, got %v", report.Recompiled)
	}

	if tolerant.Stale() {
		t.Error("expected tolerant to be current")
	}
}

func TestRegistry_Configure_PinnedActiveUnit(t *testing.T) {
	r, _ := newTestRegistry(t)
	m := r.NewModule("M")
	s := declareAt(m, "loop", 1)
	m.Register()

	u := MustUnit(r, "event-loop", func(c *Compiler) (func(), error) {
		z := c.Zone(s)

		return func() { z.Begin().End() }, nil
	}, Pinned())

	_, release := u.Acquire()

	report, err := r.Configure(Filter{}, true)
	if !errors.Is(err, ErrRecompile) || !errors.Is(report.Failed[0].Err, ErrUnitBusy) {
		t.Fatalf("expected busy failure, got %v / %+v", err, report)
	}

	if s.Enabled() {
		t.Error("expected tracepoint unchanged while pinned")
	}

	release()

	if _, err := r.Configure(Filter{}, true); err != nil {
		t.Fatalf("Configure after release: %v", err)
	}

	if !s.Enabled() || u.Builds() != 2 {
		t.Errorf("expected enabled and rebuilt, got %v builds=%d", s.Enabled(), u.Builds())
	}
}

func TestRegistry_Configure_PinnedAcquireDuringBuildGetsNewImpl(t *testing.T) {
	r, _ := newTestRegistry(t)
	m := r.NewModule("M")
	s := declareAt(m, "loop", 1)
	m.Register()

	acquired := make(chan bool, 1)

	var u *Unit[bool]

	u = MustUnit(r, "event-loop", func(c *Compiler) (bool, error) {
		on := c.Zone(s).Enabled()
		if on {
			// A caller arriving mid-rebuild must not hold the old
			// implementation across the install.
			go func() {
				impl, release := u.Acquire()
				defer release()

				acquired <- impl
			}()

			time.Sleep(20 * time.Millisecond)
		}

		return on, nil
	}, Pinned())

	if _, err := r.Configure(Filter{}, true); err != nil {
		t.Fatalf("Configure: %v", err)
	}

	select {
	case impl := <-acquired:
		if !impl {
			t.Error("expected Acquire during the rebuild to return the installed implementation")
		}
	case <-time.After(time.Second):
		t.Fatal("Acquire did not return after install")
	}

	if !s.Enabled() || u.Builds() != 2 {
		t.Errorf("expected enabled and rebuilt, got %v builds=%d", s.Enabled(), u.Builds())
	}
}

func TestRegistry_Configure_DiscardedRoundReleasesPinnedUnit(t *testing.T) {
	r, _ := newTestRegistry(t)
	m := r.NewModule("M")
	good, bad := declareAt(m, "good", 1), declareAt(m, "bad", 2)
	m.Register()

	pinned := MustUnit(r, "pinned", func(c *Compiler) (int, error) {
		c.Zone(good)
		c.Zone(bad)

		return 0, nil
	}, Pinned())

	MustUnit(r, "fragile", func(c *Compiler) (int, error) {
		if c.Zone(bad).Enabled() {
			return 0, errors.New("cannot respecialize")
		}

		return 0, nil
	})

	if _, err := r.Configure(Filter{}, true); !errors.Is(err, ErrRecompile) {
		t.Fatalf("expected partial failure, got %v", err)
	}

	if !good.Enabled() || bad.Enabled() {
		t.Errorf("expected good enabled and bad unchanged")
	}

	done := make(chan struct{})

	go func() {
		_, release := pinned.Acquire()
		release()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pinned unit still locked after Configure returned")
	}
}

func TestRegistry_Configure_BuilderPanic(t *testing.T) {
	r, _ := newTestRegistry(t)
	m := r.NewModule("M")
	s := declareAt(m, "p", 1)
	m.Register()

	first := true
	MustUnit(r, "panicky", func(c *Compiler) (int, error) {
		c.Zone(s)
		if !first {
			panic("generator bug")
		}

		first = false

		return 1, nil
	})

	report, err := r.Configure(Filter{}, true)
	if !errors.Is(err, ErrRecompile) || len(report.Failed) != 1 {
		t.Errorf("expected recovered panic as failure, got %v %+v", err, report)
	}
}

func TestNewUnit_BuildError(t *testing.T) {
	r, _ := newTestRegistry(t)

	_, err := NewUnit(r, "broken", func(*Compiler) (int, error) {
		return 0, errors.New("nope")
	})
	if !errors.Is(err, ErrRecompile) {
		t.Errorf("expected ErrRecompile, got %v", err)
	}

	if len(r.Units()) != 0 {
		t.Error("expected failed unit not to be registered")
	}
}
