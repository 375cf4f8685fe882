package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"golang.org/x/sync/errgroup"

	"github.com/ardnew/tracepoint/control"
	"github.com/ardnew/tracepoint/log"
	"github.com/ardnew/tracepoint/profile"
	"github.com/ardnew/tracepoint/sink"
	"github.com/ardnew/tracepoint/sink/otelsink"
	"github.com/ardnew/tracepoint/tracepoint"
)

// DemoModule is the module path of the demo workload's tracepoints.
const DemoModule = "github.com/ardnew/tracepoint/demo"

// Demo runs an instrumented workload and serves its registry so the other
// commands have something to talk to.
type Demo struct {
	Listen   string        `default:"${addr}"  help:"Control server listen address."`
	Duration time.Duration `help:"Stop after this long; zero runs until interrupted."`
	Workers  int           `default:"4"        help:"Number of concurrent workers."`
	Interval time.Duration `default:"50ms"     help:"Delay between requests of one worker."`
	Rules    string        `help:"YAML tracepoint configuration applied at start." type:"existingfile"`
	Sink     string        `default:"stream"   enum:"nop,stream,log"              help:"Event sink."`
	Encoding string        `default:"ndjson"   enum:"ndjson,msgpack"              help:"Stream sink encoding." short:"e"`
	Out      string        `default:"-"        help:"Stream sink output path; '-' is stdout."`
	Queue    int           `default:"4096"     help:"Sink queue size; zero emits synchronously."`
	Metrics  bool          `default:"true"     help:"Serve prometheus metrics at /metrics." negatable:""`
	Otel     bool          `help:"Also export spans through an OpenTelemetry tracer provider."`
}

// Run executes the demo command.
func (d *Demo) Run(ctx context.Context) (err error) {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if d.Duration > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, d.Duration)
		defer cancel()
	}

	logger := log.Default()

	cfg, err := d.config()
	if err != nil {
		return err
	}

	reg := tracepoint.NewRegistry()
	reg.SetLogger(logger)

	preg := prometheus.NewRegistry()
	env := sink.Env{Stdout: stdout(ctx), Logger: logger}

	if d.Metrics {
		preg.MustRegister(collectors.NewGoCollector())
		env.Registry = preg
	}

	out, closeSink, err := cfg.Sink.Open(env)
	if err != nil {
		return ErrInvalidArg.Wrap(err)
	}

	defer func() { err = errors.Join(err, closeSink()) }()

	if d.Otel {
		tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(logExporter{logger}))
		defer func() { err = errors.Join(err, tp.Shutdown(context.Background())) }()

		out = sink.Multi{out, otelsink.New(tp)}
	}

	reg.SetSink(out)

	w, err := newWorkload(reg)
	if err != nil {
		return err
	}

	if err := cfg.Apply(reg); err != nil {
		logger.WarnContext(ctx, "rules applied with errors", slog.Any("error", err))
	}

	var lc net.ListenConfig

	ln, err := lc.Listen(ctx, "tcp", d.Listen)
	if err != nil {
		return ErrListen.Wrap(err).With(slog.String("addr", d.Listen))
	}

	opts := []control.Option{control.WithLogger(logger)}
	if d.Metrics {
		opts = append(opts, control.WithGatherer(preg))
	}

	if h := profile.Handler(); h != nil {
		opts = append(opts, control.WithHandler("/debug/pprof/", h))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return control.New(reg, opts...).Serve(gctx, ln) })

	for id := range max(d.Workers, 1) {
		g.Go(func() error { return w.run(gctx, id, d.Interval) })
	}

	logger.InfoContext(ctx, "demo running",
		slog.String("addr", ln.Addr().String()),
		slog.Int("workers", max(d.Workers, 1)),
		slog.Int("tracepoints", reg.Len()))

	return g.Wait()
}

// config merges the sink flags with the optional rules file. A sink declared
// in the file takes precedence.
func (d *Demo) config() (*tracepoint.Config, error) {
	cfg := &tracepoint.Config{
		Sink: sink.Config{
			Kind:   d.Sink,
			Format: d.Encoding,
			Path:   d.Out,
			Queue:  d.Queue,
		},
	}

	if d.Rules == "" {
		return cfg, nil
	}

	file, err := tracepoint.LoadConfigFile(d.Rules)
	if err != nil {
		return nil, ErrApply.Wrap(err)
	}

	if file.Sink.Kind != "" {
		cfg.Sink = file.Sink
	}

	cfg.Rules = file.Rules

	return cfg, nil
}

var errMalformed = errors.New("malformed request")

// workload is a toy request handler instrumented with tracepoints.
type workload struct {
	reg *tracepoint.Registry

	request *tracepoint.Site
	parse   *tracepoint.Site
	encode  *tracepoint.Site
	store   *tracepoint.Site
	flush   *tracepoint.Site

	encoder *tracepoint.Unit[func([]byte) []byte]
}

func newWorkload(reg *tracepoint.Registry) (*workload, error) {
	mod := reg.NewModule(DemoModule)

	w := &workload{
		reg:     reg,
		request: mod.Declare("request"),
		parse:   mod.Declare("parse"),
		encode:  mod.Declare("encode"),
		store:   mod.Declare("store"),
		flush:   mod.Declare("flush"),
	}

	mod.Register()

	enc, err := tracepoint.NewUnit(reg, "demo.encoder",
		func(c *tracepoint.Compiler) (func([]byte) []byte, error) {
			zone := c.Zone(w.encode)

			return func(b []byte) []byte {
				defer zone.Begin().End()

				out := make([]byte, len(b))
				for i, x := range b {
					out[i] = x ^ 0x5a
				}

				return out
			}, nil
		})
	if err != nil {
		return nil, err
	}

	w.encoder = enc

	return w, nil
}

func (w *workload) run(ctx context.Context, id int, interval time.Duration) error {
	tick := time.NewTicker(max(interval, time.Millisecond))
	defer tick.Stop()

	for n := 0; ; n++ {
		select {
		case <-ctx.Done():
			return nil
		case <-tick.C:
		}

		if err := w.handle(n); err != nil {
			_ = w.reg.Message(
				fmt.Sprintf("worker %d request %d: %v", id, n, err),
				tracepoint.WithColor(tracepoint.Red))
		}
	}
}

func (w *workload) handle(n int) error {
	return tracepoint.Do(w.request, func() error {
		doc, err := tracepoint.Run(w.parse, func() ([]byte, error) {
			pause(200)

			if n%17 == 16 {
				return nil, errMalformed
			}

			return fmt.Appendf(nil, "request-%d", n), nil
		})
		if err != nil {
			return err
		}

		payload := w.encoder.Get()(doc)

		defer w.store.Begin().End()

		pause(len(payload) * 10)

		if n%8 == 7 {
			defer w.flush.Begin().End()

			pause(500)
		}

		return nil
	})
}

// pause sleeps for up to us microseconds.
func pause(us int) {
	time.Sleep(time.Duration(rand.IntN(max(us, 1))) * time.Microsecond)
}

// logExporter writes OpenTelemetry spans to the logger.
type logExporter struct {
	logger log.Logger
}

func (e logExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	for _, s := range spans {
		e.logger.DebugContext(ctx, "otel span",
			slog.String("name", s.Name()),
			slog.String("trace", s.SpanContext().TraceID().String()),
			slog.Duration("elapsed", s.EndTime().Sub(s.StartTime())),
			slog.String("status", s.Status().Code.String()))
	}

	return nil
}

func (logExporter) Shutdown(context.Context) error { return nil }
