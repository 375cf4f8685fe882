package sink

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Instrument_CountsEvents(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	next := &countingSink{}
	s := m.Instrument(next)

	span, msg := sampleEvents()
	s.EmitSpan(&span)
	s.EmitSpan(&span)
	s.EmitMessage(&msg)

	if got := testutil.ToFloat64(m.spans.WithLabelValues(span.Module)); got != 2 {
		t.Errorf("expected 2 spans counted, got %v", got)
	}

	if got := testutil.ToFloat64(m.messages); got != 1 {
		t.Errorf("expected 1 message counted, got %v", got)
	}

	if next.spans.Load() != 2 || next.messages.Load() != 1 {
		t.Error("expected events forwarded to the wrapped sink")
	}

	if n := testutil.CollectAndCount(m.duration); n != 1 {
		t.Errorf("expected one duration series, got %d", n)
	}
}

func TestMetrics_Async_CountsDrops(t *testing.T) {
	m := NewMetrics(nil)
	a := NewAsync(Nop, 1, WithMetrics(m))
	_ = a.Close()

	span, _ := sampleEvents()
	a.EmitSpan(&span)

	if got := testutil.ToFloat64(m.dropped); got != 1 {
		t.Errorf("expected 1 drop counted, got %v", got)
	}
}
