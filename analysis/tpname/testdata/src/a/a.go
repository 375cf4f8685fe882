package a

import "github.com/ardnew/tracepoint/tracepoint"

const prefix = "db."

var (
	mod = tracepoint.NewModule("a")

	ok       = mod.Declare("parse")
	okConst  = mod.Declare(prefix + "query")
	empty    = mod.Declare("")     // want "tracepoint name must not be empty"
	computed = mod.Declare(name()) // want "tracepoint name must be a constant string"
	blank    = mod.Declare("   ")  // want "tracepoint name must not be empty"

	pairA, pairB = mod.Declare("pair.a"), mod.Declare("pair.b") // want "second tracepoint declared on this line"

	placedA, placedB = mod.Declare("placed.a", tracepoint.At("a.go", 1)), mod.Declare("placed.b", tracepoint.At("a.go", 2))
)

func name() string { return "dynamic" }

func loop(items []string) {
	for _, it := range items {
		mod.Declare(it) // want "tracepoint name must be a constant string" "tracepoint declared inside a loop"
	}

	for i := 0; i < 3; i++ {
		go func() {
			_ = mod.Declare("worker")
		}()
	}
}
