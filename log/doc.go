// Package log provides a concurrency-safe simplified logging interface
// based on [log/slog].
//
// The tracepoint engine, its sinks and the tpctl command all log through this
// package. Configuration is applied at logger creation time using functional
// options:
//
//	logger := log.Make(os.Stderr,
//		log.WithLevel(log.LevelDebug),
//		log.WithFormat(log.FormatText),
//		log.WithCaller(true))
//
// # Package Logger
//
// Context-unaware package functions ([Info], [Debug], ...) write to a process
// default logger that writes to standard error. [Config] rebuilds it from the
// current configuration plus any given options; it is safe to call while other
// goroutines are logging.
//
// # Levels
//
// Five levels are supported: [LevelTrace], [LevelDebug], [LevelInfo],
// [LevelWarn] and [LevelError]. Trace is reserved for per-event diagnostics
// such as sink hand-off and registry lookups.
//
// # Output Formats
//
// [FormatText] and [FormatJSON]. When pretty printing is enabled the text
// format is colorized with lipgloss; JSON output is never colorized.
package log
