package cli

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alecthomas/kong"
)

type resolverCLI struct {
	Addr     string        `default:"localhost:6070"`
	LogLevel string        `default:"info"`
	Pretty   bool          `default:"true"           negatable:""`
	Workers  int           `default:"4"`
	Interval time.Duration `default:"50ms"`
	Tags     []string
}

func parseWithConfig(t *testing.T, content string, args ...string) resolverCLI {
	t.Helper()

	path := filepath.Join(t.TempDir(), configFile)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	var cli resolverCLI

	parser, err := kong.New(&cli, kong.Configuration(resolve("config"), path))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := parser.Parse(args); err != nil {
		t.Fatal(err)
	}

	return cli
}

func TestResolve_AppliesSection(t *testing.T) {
	cli := parseWithConfig(t, `
config:
  addr: 127.0.0.1:9000
  log_level: debug
  pretty: false
  workers: 8
  interval: 1s
  tags: [a, b]
other:
  addr: ignored
`)

	if cli.Addr != "127.0.0.1:9000" {
		t.Errorf("Addr = %q", cli.Addr)
	}

	if cli.LogLevel != "debug" {
		t.Errorf("LogLevel = %q", cli.LogLevel)
	}

	if cli.Pretty {
		t.Error("Pretty should be false")
	}

	if cli.Workers != 8 {
		t.Errorf("Workers = %d", cli.Workers)
	}

	if cli.Interval != time.Second {
		t.Errorf("Interval = %v", cli.Interval)
	}

	if len(cli.Tags) != 2 || cli.Tags[0] != "a" || cli.Tags[1] != "b" {
		t.Errorf("Tags = %v", cli.Tags)
	}
}

func TestResolve_CommandLineWins(t *testing.T) {
	cli := parseWithConfig(t, "config:\n  workers: 8\n", "--workers=2")

	if cli.Workers != 2 {
		t.Errorf("Workers = %d, want 2", cli.Workers)
	}
}

func TestResolve_EmptyAndMissingSection(t *testing.T) {
	for _, content := range []string{"", "other:\n  workers: 9\n"} {
		cli := parseWithConfig(t, content)

		if cli.Workers != 4 || cli.Addr != "localhost:6070" {
			t.Errorf("expected defaults for %q, got %+v", content, cli)
		}
	}
}

func TestResolve_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), configFile)
	if err := os.WriteFile(path, []byte("config: [\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	var cli resolverCLI

	if _, err := kong.New(&cli, kong.Configuration(resolve("config"), path)); err == nil {
		t.Error("expected error for invalid configuration")
	}
}

func TestFlagText(t *testing.T) {
	tests := []struct {
		in   any
		want any
	}{
		{uint64(3), "3"},
		{int64(-3), "-3"},
		{1.5, "1.5"},
		{true, true},
		{"x", "x"},
		{[]any{uint64(1), "b"}, "1,b"},
	}

	for _, tt := range tests {
		if got := flagText(tt.in); got != tt.want {
			t.Errorf("flagText(%#v) = %#v, want %#v", tt.in, got, tt.want)
		}
	}
}
