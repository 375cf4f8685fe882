//go:build !pprof

package profile

import "net/http"

// Enabled reports whether profiling is compiled in.
const Enabled = false

// Modes returns nil without the pprof build tag.
func Modes() []string { return nil }

func start(Profiler) interface{ Stop() } { return ignore{} }

// Handler returns nil without the pprof build tag.
func Handler() http.Handler { return nil }
