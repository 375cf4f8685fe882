package sink

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Namespace prefixes every metric exported by this package.
const Namespace = "tracepoint"

// Metrics holds the prometheus collectors describing event flow.
type Metrics struct {
	spans    *prometheus.CounterVec
	messages prometheus.Counter
	dropped  prometheus.Counter
	failed   prometheus.Counter
	duration *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered, which is convenient in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		spans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "sink",
			Name:      "spans_total",
			Help:      "Completed spans forwarded to the sink, by tracepoint module.",
		}, []string{"module"}),
		messages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "sink",
			Name:      "messages_total",
			Help:      "Messages forwarded to the sink.",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "sink",
			Name:      "dropped_total",
			Help:      "Events discarded because the sink queue was full or closed.",
		}),
		failed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "sink",
			Name:      "failures_total",
			Help:      "Events the sink could not accept.",
		}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "sink",
			Name:      "span_duration_seconds",
			Help:      "Duration of completed spans.",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 12),
		}, []string{"module"}),
	}

	if reg != nil {
		reg.MustRegister(m.spans, m.messages, m.dropped, m.failed, m.duration)
	}

	return m
}

// Failure records an event the sink could not accept.
func (m *Metrics) Failure() { m.failed.Inc() }

// Instrument returns a sink counting every event before forwarding it to next.
func (m *Metrics) Instrument(next Sink) Sink {
	return &instrumented{next: next, m: m}
}

type instrumented struct {
	next Sink
	m    *Metrics
}

func (s *instrumented) EmitSpan(ev *SpanEvent) {
	s.m.spans.WithLabelValues(ev.Module).Inc()
	s.m.duration.WithLabelValues(ev.Module).Observe(ev.Duration().Seconds())
	s.next.EmitSpan(ev)
}

func (s *instrumented) EmitMessage(ev *MessageEvent) {
	s.m.messages.Inc()
	s.next.EmitMessage(ev)
}

func (s *instrumented) EmitBegin(ev *SpanEvent) {
	if b, ok := s.next.(BeginEmitter); ok {
		b.EmitBegin(ev)
	}
}

func (s *instrumented) Flush() error {
	if f, ok := s.next.(Flusher); ok {
		return f.Flush()
	}

	return nil
}
