// Package tracepoint provides named instrumentation zones that cost one atomic
// load while disabled and can be switched on at runtime.
//
// # Declaring tracepoints
//
// Each package creates a [Module] and declares its tracepoints once, at
// package scope. A declaration records its source position, so two
// declarations on different lines are different tracepoints even if they share
// a name:
//
//	var (
//		mod   = tracepoint.NewModule("example.com/app/parser")
//		parse = mod.Declare("parse")
//		lex   = mod.Declare("lex")
//	)
//
//	func init() { mod.Register() }
//
//	func Parse(src string) (*AST, error) {
//		defer parse.Begin().End()
//		...
//	}
//
// Every tracepoint starts disabled. [Run] and [Do] wrap a function call and
// mark the span errored when it returns an error or panics.
//
// # Selecting tracepoints
//
// A [Filter] selects registered tracepoints by module, name, function, file and
// an optional [Where] expression. [ParsePattern] converts the textual patterns
// used by configuration files and tpctl.
//
// # Enabling
//
// [Registry.Enable] flips the cells of the selected tracepoints. Call sites
// observe the change on their next execution.
//
// [Registry.Configure] additionally rebuilds every [Unit] that resolved one of
// the selected tracepoints. A unit is code built against the current state:
// its [Static] zones contain no runtime check at all. Configure is slow and
// may fail for units that cannot be rebuilt; the [Report] lists what
// succeeded.
//
// # Events
//
// Spans and messages go to the registry's [sink.Sink]. A sink that panics
// loses the event, never the caller's execution.
package tracepoint
