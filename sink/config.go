package sink

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ardnew/tracepoint/log"
)

// Config describes a sink in a configuration file.
//
//	sink:
//	  kind: stream      # nop | stream | log
//	  format: msgpack   # ndjson | msgpack (stream only)
//	  path: trace.mp    # "-" or empty writes to stdout (stream only)
//	  queue: 8192       # >0 wraps the sink with Async
type Config struct {
	Kind   string `yaml:"kind"             json:"kind"`
	Format string `yaml:"format,omitempty" json:"format,omitempty"`
	Path   string `yaml:"path,omitempty"   json:"path,omitempty"`
	Level  string `yaml:"level,omitempty"  json:"level,omitempty"`
	Queue  int    `yaml:"queue,omitempty"  json:"queue,omitempty"`
}

// Env supplies the process resources a [Config] may refer to.
type Env struct {
	Stdout   io.Writer
	Logger   log.Logger
	Registry prometheus.Registerer
}

// Open builds the configured sink. The returned close function flushes and
// releases everything Open created; it is never nil.
func (c Config) Open(env Env) (Sink, func() error, error) {
	var (
		s       Sink
		closers []func() error
	)

	switch strings.ToLower(strings.TrimSpace(c.Kind)) {
	case "", "nop", "none":
		return Nop, func() error { return nil }, nil

	case "log":
		level := log.LevelInfo
		if c.Level != "" {
			level = log.ParseLevel(c.Level)
		}

		s = NewLog(env.Logger, level)

	case "stream":
		format, err := ParseFormat(c.Format)
		if err != nil {
			return nil, nil, err
		}

		w := env.Stdout
		if w == nil {
			w = os.Stdout
		}

		if c.Path != "" && c.Path != "-" {
			f, err := os.Create(c.Path)
			if err != nil {
				return nil, nil, fmt.Errorf("open sink: %w", err)
			}

			w = f
		}

		st := NewStream(w, format)
		if w == env.Stdout || w == os.Stdout {
			closers = append(closers, st.Flush)
		} else {
			closers = append(closers, st.Close)
		}

		s = st

	default:
		return nil, nil, fmt.Errorf(
			"invalid sink kind: %q (expected: nop|stream|log)", c.Kind)
	}

	var metrics *Metrics
	if env.Registry != nil {
		metrics = NewMetrics(env.Registry)
		s = metrics.Instrument(s)
	}

	if c.Queue > 0 {
		opts := []AsyncOption{WithErrorHandler(func(err error) {
			env.Logger.Warn("sink failure", slog.Any("error", err))
		})}
		if metrics != nil {
			opts = append(opts, WithMetrics(metrics))
		}

		a := NewAsync(s, c.Queue, opts...)
		// The queue must drain before the underlying writer closes.
		closers = append([]func() error{a.Close}, closers...)
		s = a
	}

	return s, func() error {
		var errs []error
		for _, fn := range closers {
			errs = append(errs, fn())
		}

		return errors.Join(errs...)
	}, nil
}
