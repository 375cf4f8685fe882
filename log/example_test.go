package log_test

import (
	"log/slog"
	"os"

	"github.com/ardnew/tracepoint/log"
)

func Example_basic() {
	logger := log.Make(os.Stdout, log.WithTimeLayout("none"))
	logger.Info("tracepoints registered", slog.Int("count", 3))
	// Output: level=INFO msg="tracepoints registered" count=3
}

func Example_json() {
	logger := log.Make(os.Stdout,
		log.WithFormat(log.FormatJSON),
		log.WithTimeLayout("none"))
	logger.Warn("sink unavailable", slog.String("sink", "stream"))
	// Output: {"level":"WARN","msg":"sink unavailable","sink":"stream"}
}
