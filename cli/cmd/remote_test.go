package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-yaml"

	"github.com/ardnew/tracepoint/control"
	"github.com/ardnew/tracepoint/log"
	"github.com/ardnew/tracepoint/sink/sinktest"
	"github.com/ardnew/tracepoint/tracepoint"
)

type remoteFixture struct {
	reg   *tracepoint.Registry
	rec   *sinktest.Recorder
	parse *tracepoint.Site
	flush *tracepoint.Site
}

func newRemoteContext(t *testing.T) (context.Context, *remoteFixture, func() string) {
	t.Helper()

	reg := tracepoint.NewRegistry()
	reg.SetLogger(log.Make(io.Discard))

	rec := &sinktest.Recorder{}
	reg.SetSink(rec)

	m := reg.NewModule("example.com/app")
	f := &remoteFixture{
		reg:   reg,
		rec:   rec,
		parse: m.Declare("parse", tracepoint.At("parser.go", 10)),
		flush: m.Declare("flush", tracepoint.At("store.go", 20)),
	}
	m.Register()

	srv := httptest.NewServer(control.New(reg, control.WithLogger(log.Make(io.Discard))))
	t.Cleanup(srv.Close)

	ctx, out := newTestContext(t, nil)
	ctx = WithRemote(ctx, control.NewClient(srv.URL, srv.Client()))

	return ctx, f, func() string {
		s := out.String()
		out.Reset()

		return s
	}
}

func TestList_JSON(t *testing.T) {
	ctx, _, output := newRemoteContext(t)

	l := &List{Filter: Filter{Name: "pa*"}, Output: "json"}
	if err := l.Run(ctx); err != nil {
		t.Fatal(err)
	}

	var got []control.Tracepoint
	if err := json.Unmarshal([]byte(output()), &got); err != nil {
		t.Fatal(err)
	}

	if len(got) != 1 || got[0].Name != "parse" || got[0].Line != 10 {
		t.Errorf("unexpected listing %+v", got)
	}
}

func TestList_YAMLModules(t *testing.T) {
	ctx, _, output := newRemoteContext(t)

	l := &List{Output: "yaml", Modules: true}
	if err := l.Run(ctx); err != nil {
		t.Fatal(err)
	}

	var got []string
	if err := yaml.Unmarshal([]byte(output()), &got); err != nil {
		t.Fatal(err)
	}

	if len(got) != 1 || got[0] != "example.com/app" {
		t.Errorf("unexpected modules %v", got)
	}
}

func TestList_Table(t *testing.T) {
	ctx, _, output := newRemoteContext(t)

	if err := (&List{Output: "table"}).Run(ctx); err != nil {
		t.Fatal(err)
	}

	got := output()
	for _, want := range []string{"MODULE", "parse", "flush", "store.go:20"} {
		if !strings.Contains(got, want) {
			t.Errorf("table missing %q:\n%s", want, got)
		}
	}
}

func TestList_InvalidFilter(t *testing.T) {
	ctx, _, _ := newRemoteContext(t)

	err := (&List{Filter: Filter{Where: "line +"}, Output: "json"}).Run(ctx)
	if !errors.Is(err, ErrRemote) {
		t.Errorf("expected ErrRemote, got %v", err)
	}
}

func TestEnableDisable(t *testing.T) {
	ctx, f, output := newRemoteContext(t)

	if err := (&Enable{Filter: Filter{File: "parser.go"}}).Run(ctx); err != nil {
		t.Fatal(err)
	}

	if got := output(); got != "enabled 1 tracepoint(s)\n" {
		t.Errorf("unexpected output %q", got)
	}

	if !f.parse.Enabled() || f.flush.Enabled() {
		t.Error("expected only parse enabled")
	}

	if err := (&Disable{}).Run(ctx); err != nil {
		t.Fatal(err)
	}

	if got := output(); got != "disabled 2 tracepoint(s)\n" {
		t.Errorf("unexpected output %q", got)
	}

	if f.parse.Enabled() {
		t.Error("expected parse disabled")
	}
}

func TestConfigure_ReportsFailures(t *testing.T) {
	ctx, f, output := newRemoteContext(t)

	tracepoint.MustUnit(f.reg, "stuck", func(c *tracepoint.Compiler) (int, error) {
		if c.Zone(f.parse).Enabled() {
			return 0, errors.New("cannot respecialize")
		}

		return 0, nil
	})

	err := (&Configure{}).Run(ctx)
	if !errors.Is(err, ErrConfigure) {
		t.Fatalf("expected ErrConfigure, got %v", err)
	}

	got := output()
	for _, want := range []string{"matched 2, updated 1", "failed: example.com/app.parse", "cannot respecialize"} {
		if !strings.Contains(got, want) {
			t.Errorf("report missing %q:\n%s", want, got)
		}
	}

	if f.parse.Enabled() || !f.flush.Enabled() {
		t.Error("expected flush enabled and parse unchanged")
	}
}

func TestApply_Rules(t *testing.T) {
	ctx, f, output := newRemoteContext(t)

	path := filepath.Join(t.TempDir(), "rules.yaml")

	rules := `
rules:
  - enable: true
  - name: flush
    enable: false
    mode: configure
`
	if err := os.WriteFile(path, []byte(rules), 0o600); err != nil {
		t.Fatal(err)
	}

	if err := (&Apply{Rules: path}).Run(ctx); err != nil {
		t.Fatal(err)
	}

	if !f.parse.Enabled() || f.flush.Enabled() {
		t.Error("expected parse enabled and flush disabled")
	}

	if got := output(); !strings.Contains(got, "applied 2 rule(s)") {
		t.Errorf("unexpected output %q", got)
	}
}

func TestApply_InvalidFile(t *testing.T) {
	ctx, _, _ := newRemoteContext(t)

	path := filepath.Join(t.TempDir(), "rules.yaml")
	if err := os.WriteFile(path, []byte("rules:\n  - name: 're:('\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	if err := (&Apply{Rules: path}).Run(ctx); !errors.Is(err, ErrApply) {
		t.Errorf("expected ErrApply, got %v", err)
	}
}

func TestMessage_Colors(t *testing.T) {
	ctx, f, _ := newRemoteContext(t)

	for _, color := range []string{"red", "0xff00ff", "1, 2, 3", ""} {
		if err := (&Message{Text: "hello", Color: color}).Run(ctx); err != nil {
			t.Errorf("Message(color=%q): %v", color, err)
		}
	}

	msgs := f.rec.Messages()
	if len(msgs) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(msgs))
	}

	for i, want := range []uint32{0xCD0000, 0xFF00FF, 0x010203} {
		if !msgs[i].HasColor || msgs[i].Color != want {
			t.Errorf("message %d: expected %06x, got %06x", i, want, msgs[i].Color)
		}
	}

	if msgs[3].HasColor {
		t.Error("expected default color")
	}

	if err := (&Message{Text: "x", Color: "1,x,3"}).Run(ctx); !errors.Is(err, ErrInvalidArg) {
		t.Errorf("expected ErrInvalidArg, got %v", err)
	}

	if err := (&Message{Text: "x", Color: "chartreuse"}).Run(ctx); !errors.Is(err, ErrRemote) {
		t.Errorf("expected ErrRemote for unknown color, got %v", err)
	}
}

func TestColorJSON(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"red", `"red"`},
		{":light_blue", `":light_blue"`},
		{"255", `255`},
		{"0x00ff00", `65280`},
		{"1,2,3", `[1,2,3]`},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := colorJSON(tt.in)
			if err != nil {
				t.Fatal(err)
			}

			if string(got) != tt.want {
				t.Errorf("colorJSON(%q) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}
