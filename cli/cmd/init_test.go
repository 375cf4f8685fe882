package cmd

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alecthomas/kong"
	"github.com/goccy/go-yaml"
)

// TestInitRun tests the Init.Run command.
func TestInitRun(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		force   bool
		setup   func(t *testing.T, path string) // setup function to prepare test
		wantErr error
	}{
		{
			name:  "create_new_config",
			force: false,
			setup: nil, // no pre-existing file
		},
		{
			name:  "overwrite_existing_with_force",
			force: true,
			setup: func(t *testing.T, path string) {
				if err := os.WriteFile(path, []byte("existing content"), 0o644); err != nil {
					t.Fatal(err)
				}
			},
		},
		{
			name:  "fail_without_force",
			force: false,
			setup: func(t *testing.T, path string) {
				if err := os.WriteFile(path, []byte("existing content"), 0o644); err != nil {
					t.Fatal(err)
				}
			},
			wantErr: ErrFileExists,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			confPath := filepath.Join(t.TempDir(), "config.yaml")

			if tt.setup != nil {
				tt.setup(t, confPath)
			}

			var cli struct {
				Addr string `default:"localhost:6070"`
			}

			parser, err := kong.New(&cli, kong.Vars{
				ConfigIdentifier: confPath,
			})
			if err != nil {
				t.Fatal(err)
			}

			kctx, err := parser.Parse(nil)
			if err != nil {
				t.Fatal(err)
			}

			err = (&Init{Force: tt.force}).Run(WithContext(context.Background(), kctx))

			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Init.Run() error = %v, want %v", err, tt.wantErr)
			}

			if tt.wantErr != nil {
				return
			}

			content, err := os.ReadFile(confPath)
			if err != nil {
				t.Fatal(err)
			}

			var doc map[string]map[string]any
			if err := yaml.Unmarshal(content, &doc); err != nil {
				t.Fatalf("generated config is not valid YAML: %v\n%s", err, content)
			}

			if got := doc[ConfigIdentifier]["addr"]; got != "localhost:6070" {
				t.Errorf("expected addr in config, got %v\n%s", got, content)
			}
		})
	}
}

// TestInitFlagValues tests that flag values are collected in declaration
// order and unset values are skipped.
func TestInitFlagValues(t *testing.T) {
	t.Parallel()

	var cli struct {
		Verbose   bool          `name:"verbose"`
		Output    string        `name:"output"`
		Count     int           `name:"count"`
		Empty     string        `name:"empty"`
		Timeout   time.Duration `name:"timeout"`
		Tags      []string      `name:"tags"`
		PprofMode string        `name:"pprof-mode"`
	}

	parser, err := kong.New(&cli)
	if err != nil {
		t.Fatal(err)
	}

	kctx, err := parser.Parse([]string{
		"--verbose", "--output=test.txt", "--count=5", "--timeout=2s",
		"--tags=a,b", "--pprof-mode=cpu",
	})
	if err != nil {
		t.Fatal(err)
	}

	got := (&Init{}).flagValues(kctx)

	want := yaml.MapSlice{
		{Key: "verbose", Value: true},
		{Key: "output", Value: "test.txt"},
		{Key: "count", Value: 5},
		{Key: "timeout", Value: "2s"},
		{Key: "tags", Value: []string{"a", "b"}},
	}

	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}

	for i := range want {
		gb, _ := yaml.Marshal(got[i].Value)
		wb, _ := yaml.Marshal(want[i].Value)

		if got[i].Key != want[i].Key || string(gb) != string(wb) {
			t.Errorf("entry %d: got %v=%s, want %v=%s", i, got[i].Key, gb, want[i].Key, wb)
		}
	}
}

// TestInitWithInvalidPath tests init with an unwritable file path.
func TestInitWithInvalidPath(t *testing.T) {
	t.Parallel()

	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, nil, 0o600); err != nil {
		t.Fatal(err)
	}

	var cli struct{}

	parser, err := kong.New(&cli, kong.Vars{
		ConfigIdentifier: filepath.Join(blocker, "config.yaml"),
	})
	if err != nil {
		t.Fatal(err)
	}

	kctx, err := parser.Parse(nil)
	if err != nil {
		t.Fatal(err)
	}

	err = (&Init{}).Run(WithContext(context.Background(), kctx))
	if !errors.Is(err, ErrWriteConfig) {
		t.Errorf("Init.Run() expected ErrWriteConfig, got %v", err)
	}
}
