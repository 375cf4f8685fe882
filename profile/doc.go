// Package profile provides optional runtime profiling for tpctl and the
// processes it controls.
//
// Profiling is compiled in only with the "pprof" build tag:
//
//	go build -tags pprof ./cmd/tpctl
//
// Without the tag every operation is a no-op, [Modes] is empty and [Handler]
// returns nil.
//
// # File profiles
//
// [Profiler.Start] writes one profile to disk using [github.com/pkg/profile]:
//
//	p := profile.New(profile.WithMode("cpu"), profile.WithPath("/tmp/prof"))
//	defer p.Start().Stop()
//
// Supported modes are allocs, block, clock, cpu, goroutine, heap, mem, mutex,
// thread and trace.
//
// # Live profiles
//
// [Handler] serves the [net/http/pprof] endpoints. tpctl demo mounts it on
// the control server under /debug/pprof/, so a running workload can be
// profiled while tracepoints are toggled:
//
//	go tool pprof http://localhost:6070/debug/pprof/profile?seconds=10
package profile

// Tag is the build tag required to enable pprof profiling.
const Tag = `pprof`
