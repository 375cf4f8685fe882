// Package cli contains the command line interface for tpctl.
//
// # Usage
//
// tpctl talks to the control server of an instrumented process (see package
// control). The address is set with --addr or the configuration file:
//
//	tpctl --addr=localhost:6070 list 'pa*' --module=example.com/app
//	tpctl enable --file=parser.go
//	tpctl configure flush --off
//	tpctl message --color=red "checkpoint reached"
//	tpctl ui
//
// Filters accept a glob, "re:" regular expression, "~" fuzzy or "=" exact
// pattern for each field, plus a --where expression over the tracepoint's
// fields. See [tracepoint.ParsePattern].
//
// # Configuration
//
// Flag defaults are read from config.yaml in the user configuration
// directory, under the "config" key. tpctl init writes the current values:
//
//	config:
//	  addr: localhost:6070
//	  log-level: debug
//
// # Logging Options
//
//   - --log-level: Set minimum log level (trace, debug, info, warn, error)
//   - --log-format: Set log output format (text, json)
//   - --log-time-layout: Set timestamp format (RFC3339, RFC3339Nano, etc.)
//   - --log-caller: Include caller information in log output
//   - --log-pretty: Colorize text output
//
// # Profiling Options
//
// Profiling is only available when built with the pprof build tag:
//
//	go build -tags pprof ./cmd/tpctl
//
//   - --pprof-mode: Write a profile of tpctl itself (allocs, block, clock,
//     cpu, goroutine, heap, mem, mutex, thread, trace)
//   - --pprof-dir: Set profile output directory
//
// With the tag, tpctl demo also serves /debug/pprof/ on its control server.
package cli
