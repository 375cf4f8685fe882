package cmd

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/ardnew/tracepoint/control"
	"github.com/ardnew/tracepoint/tracepoint"
)

// ContextKey is used to store a [kong.Context] value in [context.Context].
type contextKey struct{}

// WithContext returns a new context.Context containing the given kong.Context.
func WithContext(ctx context.Context, ktx *kong.Context) context.Context {
	return context.WithValue(ctx, contextKey{}, ktx)
}

func kongContextFrom(ctx context.Context) *kong.Context {
	ktx, ok := ctx.Value(contextKey{}).(*kong.Context)
	if !ok || ktx == nil {
		return nil
	}

	return ktx
}

// stdout returns the writer commands print results to.
func stdout(ctx context.Context) io.Writer {
	if ktx := kongContextFrom(ctx); ktx != nil && ktx.Stdout != nil {
		return ktx.Stdout
	}

	return os.Stdout
}

// vars returns the kong variables of the running command, if any.
func vars(ctx context.Context) kong.Vars {
	if ktx := kongContextFrom(ctx); ktx != nil {
		return ktx.Model.Vars()
	}

	return kong.Vars{}
}

// Remote is the control API of an instrumented process. [*control.Client]
// implements it.
type Remote interface {
	List(ctx context.Context, fs tracepoint.FilterSpec) ([]control.Tracepoint, error)
	Modules(ctx context.Context) ([]string, error)
	Enable(ctx context.Context, fs tracepoint.FilterSpec, on bool) (int, error)
	Configure(ctx context.Context, fs tracepoint.FilterSpec, on bool) (control.ConfigureResponse, error)
	Message(ctx context.Context, req control.MessageRequest) error
}

type remoteKey struct{}

// WithRemote returns a new context.Context containing the given Remote.
func WithRemote(ctx context.Context, r Remote) context.Context {
	return context.WithValue(ctx, remoteKey{}, r)
}

func remoteFrom(ctx context.Context) (Remote, error) {
	r, ok := ctx.Value(remoteKey{}).(Remote)
	if !ok || r == nil {
		return nil, ErrNoRemote
	}

	return r, nil
}

type (
	sourceFiles struct {
		read     []*os.File
		hasStdin bool
	}

	// SourceFiles reads a sequence of input files as one stream.
	SourceFiles interface {
		IsZero() bool
		io.ReadCloser
	}
)

// IsZero reports whether there are no source files.
func (s *sourceFiles) IsZero() bool { return len(s.read) == 0 && !s.hasStdin }

// Read implements io.Reader by reading from all source files in order,
// then stdin if present. Each file is closed once drained.
func (s *sourceFiles) Read(p []byte) (n int, err error) {
	for len(s.read) > 0 {
		n, err = s.read[0].Read(p)
		if errors.Is(err, io.EOF) {
			_ = s.read[0].Close()
			s.read = s.read[1:]

			if n > 0 {
				return n, nil
			}

			continue
		}

		return n, err
	}

	if s.hasStdin {
		return os.Stdin.Read(p)
	}

	return 0, io.EOF
}

// Close closes every file not yet drained.
func (s *sourceFiles) Close() error {
	var errs []error
	for _, f := range s.read {
		errs = append(errs, f.Close())
	}

	s.read = nil

	return errors.Join(errs...)
}

// fileKey uniquely identifies a file by its device and inode numbers.
// This handles deduplication across symlinks, absolute/relative paths, and
// special device files.
type fileKey struct {
	dev uint64
	ino uint64
}

// stdinSource is the special source indicator for reading from stdin.
const stdinSource = "-"

// buildSourceFiles constructs a SourceFiles from the given source paths.
// It deduplicates readers by resolving symlinks and comparing device/inode
// pairs. All occurrences of "-" are replaced with a single stdin reader placed
// last so it reads after all regular files.
func buildSourceFiles(sources []string) SourceFiles {
	if len(sources) == 0 {
		return nil
	}

	var srcs sourceFiles

	srcs.read = make([]*os.File, 0, len(sources))
	seen := make(map[fileKey]struct{})

	stdinInfo, _ := os.Stdin.Stat()
	stdinKey, _ := makeFileKey(stdinInfo)

	for _, src := range sources {
		if src == stdinSource {
			seen[stdinKey] = struct{}{}

			continue
		}

		file, ok := openUniqueFile(src, seen)
		if !ok {
			continue
		}

		srcs.read = append(srcs.read, file)
	}

	// Stdin may have been included via "-" or as a named file.
	// Both of which will be represented by stdinKey in seen.
	_, srcs.hasStdin = seen[stdinKey]
	delete(seen, stdinKey)

	if srcs.IsZero() {
		return nil
	}

	return &srcs
}

// openUniqueFile opens the file at path if it hasn't been seen before.
// It resolves symlinks and uses device/inode to detect duplicates.
func openUniqueFile(path string, seen map[fileKey]struct{}) (*os.File, bool) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, false
	}

	resolved, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		return nil, false
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return nil, false
	}

	key, ok := makeFileKey(info)
	if !ok {
		return nil, false
	}

	if _, exists := seen[key]; exists {
		return nil, false
	}

	seen[key] = struct{}{}

	file, err := os.Open(resolved)
	if err != nil {
		return nil, false
	}

	return file, true
}

// makeFileKey creates a fileKey from os.FileInfo.
// Returns false if the underlying Sys() data is not of type *syscall.Stat_t.
func makeFileKey(info os.FileInfo) (key fileKey, ok bool) {
	if info == nil {
		return key, false
	}

	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return key, false
	}

	return fileKey{dev: uint64(stat.Dev), ino: stat.Ino}, true //nolint:unconvert
}
