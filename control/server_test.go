package control

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ardnew/tracepoint/log"
	"github.com/ardnew/tracepoint/sink"
	"github.com/ardnew/tracepoint/sink/sinktest"
	"github.com/ardnew/tracepoint/tracepoint"
)

type fixture struct {
	reg    *tracepoint.Registry
	rec    *sinktest.Recorder
	client *Client
	parse  *tracepoint.Site
	flush  *tracepoint.Site
	srv    *httptest.Server
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	reg := tracepoint.NewRegistry()
	reg.SetLogger(log.Make(io.Discard))

	rec := &sinktest.Recorder{}
	reg.SetSink(rec)

	m := reg.NewModule("example.com/app")
	f := &fixture{
		reg:   reg,
		rec:   rec,
		parse: m.Declare("parse", tracepoint.At("parser.go", 10)),
		flush: m.Declare("flush", tracepoint.At("store.go", 20)),
	}
	m.Register()

	opts = append([]Option{WithLogger(log.Make(io.Discard))}, opts...)
	f.srv = httptest.NewServer(New(reg, opts...))
	t.Cleanup(f.srv.Close)

	f.client = NewClient(f.srv.URL, f.srv.Client())

	return f
}

func TestClient_ListAndEnable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	all, err := f.client.List(ctx, tracepoint.FilterSpec{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}

	if len(all) != 2 || all[0].Name != "parse" || all[0].Enabled {
		t.Fatalf("unexpected listing %+v", all)
	}

	n, err := f.client.Enable(ctx, tracepoint.FilterSpec{Name: "pa*"}, true)
	if err != nil || n != 1 {
		t.Fatalf("Enable = %d, %v", n, err)
	}

	if !f.parse.Enabled() || f.flush.Enabled() {
		t.Error("expected only parse enabled")
	}

	enabled, err := f.client.List(ctx, tracepoint.FilterSpec{Where: "enabled"})
	if err != nil || len(enabled) != 1 || enabled[0].Generation != 1 {
		t.Errorf("unexpected enabled listing %+v, %v", enabled, err)
	}
}

func TestClient_Configure(t *testing.T) {
	f := newFixture(t)

	unit := tracepoint.MustUnit(f.reg, "store", func(c *tracepoint.Compiler) (func(), error) {
		z := c.Zone(f.flush)

		return func() { z.Begin().End() }, nil
	})

	resp, err := f.client.Configure(context.Background(), tracepoint.FilterSpec{Name: "flush"}, true)
	if err != nil {
		t.Fatalf("Configure: %v", err)
	}

	if resp.Matched != 1 || resp.Updated != 1 || len(resp.Recompiled) != 1 || len(resp.Failed) != 0 {
		t.Errorf("unexpected response %+v", resp)
	}

	unit.Get()()

	if got := f.rec.Names(); len(got) != 1 || got[0] != "flush" {
		t.Errorf("expected flush span, got %v", got)
	}
}

func TestClient_Configure_ReportsFailures(t *testing.T) {
	f := newFixture(t)

	tracepoint.MustUnit(f.reg, "stuck", func(c *tracepoint.Compiler) (int, error) {
		if c.Zone(f.parse).Enabled() {
			return 0, errors.New("cannot respecialize")
		}

		return 0, nil
	})

	resp, err := f.client.Configure(context.Background(), tracepoint.FilterSpec{}, true)
	if err != nil {
		t.Fatalf("Configure: %v", err)
	}

	if len(resp.Failed) != 1 || resp.Failed[0].Tracepoint.Name != "parse" || resp.Failed[0].Unit != "stuck" {
		t.Errorf("unexpected failures %+v", resp.Failed)
	}

	if resp.Updated != 1 {
		t.Errorf("expected flush updated, got %d", resp.Updated)
	}
}

func TestClient_Message(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, color := range []string{`"red"`, `16711935`, `[1,2,3]`, ``} {
		req := MessageRequest{Text: "hello", Color: []byte(color)}
		if err := f.client.Message(ctx, req); err != nil {
			t.Errorf("Message(color=%s): %v", color, err)
		}
	}

	msgs := f.rec.Messages()
	if len(msgs) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(msgs))
	}

	want := []uint32{0xCD0000, 0xFF00FF, 0x010203}
	for i, c := range want {
		if !msgs[i].HasColor || msgs[i].Color != c {
			t.Errorf("message %d: expected %06x, got %06x", i, c, msgs[i].Color)
		}
	}

	if msgs[3].HasColor {
		t.Error("expected last message without color")
	}
}

func TestClient_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.client.List(ctx, tracepoint.FilterSpec{Name: "re:("}); err == nil ||
		!strings.Contains(err.Error(), "invalid filter") {
		t.Errorf("expected invalid filter error, got %v", err)
	}

	if err := f.client.Message(ctx, MessageRequest{Text: ""}); err == nil {
		t.Error("expected error for empty message")
	}

	if err := f.client.Message(ctx, MessageRequest{Text: "x", Color: []byte(`[300,0,0]`)}); err == nil ||
		!strings.Contains(err.Error(), "invalid color") {
		t.Errorf("expected invalid color error, got %v", err)
	}

	resp, err := http.Post(f.srv.URL+"/tracepoints/enable", "application/json",
		strings.NewReader(`{"filter":{},"bogus":1}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown field, got %d", resp.StatusCode)
	}
}

func TestServer_Metrics(t *testing.T) {
	preg := prometheus.NewRegistry()
	metrics := sink.NewMetrics(preg)

	f := newFixture(t, WithGatherer(preg))
	f.reg.SetSink(metrics.Instrument(f.rec))
	f.reg.Enable(tracepoint.Filter{}, true)
	f.parse.Begin().End()

	resp, err := http.Get(f.srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `tracepoint_sink_spans_total{module="example.com/app"} 1`) {
		t.Errorf("expected span counter in metrics, got:\n%s", body)
	}
}

func TestServer_Metrics_NotConfigured(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Get(f.srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
}

func TestServer_WithHandler(t *testing.T) {
	extra := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "extra")
	})

	f := newFixture(t, WithHandler("GET /extra/", extra))

	resp, err := http.Get(f.srv.URL + "/extra/x")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(body) != "extra" {
		t.Errorf("unexpected response %d %q", resp.StatusCode, body)
	}
}

func TestServer_Serve_StopsOnCancel(t *testing.T) {
	reg := tracepoint.NewRegistry()
	reg.SetLogger(log.Make(io.Discard))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() {
		done <- New(reg, WithLogger(log.Make(io.Discard))).Serve(ctx, ln)
	}()

	mods, err := NewClient(ln.Addr().String(), nil).Modules(context.Background())
	if err != nil || len(mods) != 0 {
		t.Fatalf("Modules = %v, %v", mods, err)
	}

	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve: %v", err)
		}
	case <-time.After(ShutdownTimeout + time.Second):
		t.Fatal("server did not stop")
	}
}
