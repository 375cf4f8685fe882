package profile

import "testing"

func TestNew_AppliesOptions(t *testing.T) {
	p := New(WithMode("cpu"), WithPath("/tmp/prof"), WithQuiet(true))

	want := Profiler{Mode: "cpu", Path: "/tmp/prof", Quiet: true}
	if p != want {
		t.Errorf("New() = %+v, want %+v", p, want)
	}
}

func TestStart_NoModeIsNoop(t *testing.T) {
	s := New(WithPath(t.TempDir())).Start()
	if _, ok := s.(ignore); !ok {
		t.Errorf("expected no-op profiler, got %T", s)
	}

	s.Stop()
}

func TestStart_UnknownModeIsNoop(t *testing.T) {
	s := New(WithMode("bogus"), WithPath(t.TempDir())).Start()
	if _, ok := s.(ignore); !ok {
		t.Errorf("expected no-op profiler, got %T", s)
	}

	s.Stop()
}

func TestHandler_MatchesBuild(t *testing.T) {
	if got := Handler() != nil; got != Enabled {
		t.Errorf("Handler() present = %v, want %v", got, Enabled)
	}

	if got := len(Modes()) > 0; got != Enabled {
		t.Errorf("Modes() non-empty = %v, want %v", got, Enabled)
	}
}
