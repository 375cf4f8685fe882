package tracepoint

import (
	"io"
	"testing"

	"github.com/ardnew/tracepoint/log"
	"github.com/ardnew/tracepoint/sink/sinktest"
)

// newTestRegistry returns an isolated registry recording into a fresh
// Recorder.
func newTestRegistry(t *testing.T) (*Registry, *sinktest.Recorder) {
	t.Helper()

	r := NewRegistry()
	r.SetLogger(log.Make(io.Discard))

	rec := &sinktest.Recorder{}
	r.SetSink(rec)

	return r, rec
}

// declareAt declares a tracepoint at a synthetic position so loops can create
// distinct call sites.
func declareAt(m *Module, name string, line int) *Site {
	return m.Declare(name, At("synthetic.go", line), InFunc("example.com/app."+name))
}

func mustFilter(t *testing.T, fs FilterSpec) Filter {
	t.Helper()

	f, err := fs.Compile()
	if err != nil {
		t.Fatalf("compile filter %+v: %v", fs, err)
	}

	return f
}
