package cmd

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/alecthomas/kong"
)

// newTestContext returns a command context whose stdout is captured.
func newTestContext(t *testing.T, vars kong.Vars) (context.Context, *bytes.Buffer) {
	t.Helper()

	var out bytes.Buffer

	var cli struct{}

	parser, err := kong.New(&cli, kong.Writers(&out, io.Discard), vars)
	if err != nil {
		t.Fatal(err)
	}

	kctx, err := parser.Parse(nil)
	if err != nil {
		t.Fatal(err)
	}

	return WithContext(context.Background(), kctx), &out
}

// TestBuildSourceFilesEmpty tests that an empty source list returns nil.
func TestBuildSourceFilesEmpty(t *testing.T) {
	if buildSourceFiles(nil) != nil {
		t.Error("buildSourceFiles(nil) should return nil")
	}

	if buildSourceFiles([]string{}) != nil {
		t.Error("buildSourceFiles([]) should return nil")
	}

	if buildSourceFiles([]string{filepath.Join(t.TempDir(), "missing")}) != nil {
		t.Error("buildSourceFiles should return nil when nothing can be opened")
	}
}

// TestBuildSourceFilesMultipleFiles tests reading from multiple files in order.
func TestBuildSourceFilesMultipleFiles(t *testing.T) {
	dir := t.TempDir()

	file1 := filepath.Join(dir, "file1.txt")
	file2 := filepath.Join(dir, "file2.txt")

	if err := os.WriteFile(file1, []byte("first"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(file2, []byte("second"), 0o644); err != nil {
		t.Fatal(err)
	}

	src := buildSourceFiles([]string{file1, file2})
	if src == nil {
		t.Fatal("expected non-nil source")
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		t.Fatal(err)
	}

	if string(data) != "firstsecond" {
		t.Errorf("got %q, want %q", data, "firstsecond")
	}
}

// TestBuildSourceFilesDeduplicates tests that symlinks and repeated paths are
// read once.
func TestBuildSourceFilesDeduplicates(t *testing.T) {
	dir := t.TempDir()

	file := filepath.Join(dir, "events.ndjson")
	link := filepath.Join(dir, "link.ndjson")

	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := os.Symlink(file, link); err != nil {
		t.Skipf("symlink: %v", err)
	}

	src := buildSourceFiles([]string{file, link, file})
	if src == nil {
		t.Fatal("expected non-nil source")
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		t.Fatal(err)
	}

	if string(data) != "x" {
		t.Errorf("got %q, want %q", data, "x")
	}
}

func TestRemoteFrom_Missing(t *testing.T) {
	if _, err := remoteFrom(context.Background()); !errors.Is(err, ErrNoRemote) {
		t.Errorf("expected ErrNoRemote, got %v", err)
	}
}

func TestError_Is_MatchesDerived(t *testing.T) {
	err := ErrRemote.Wrap(io.EOF).With()
	if !errors.Is(err, ErrRemote) || !errors.Is(err, io.EOF) {
		t.Errorf("expected derived error to match sentinel and cause: %v", err)
	}

	if errors.Is(err, ErrApply) {
		t.Error("unexpected match with unrelated sentinel")
	}
}
