// Command tpvet checks tracepoint declarations.
//
// Usage:
//
//	tpvet ./...
//
// or, as a vet tool:
//
//	go vet -vettool=$(which tpvet) ./...
package main

import (
	"golang.org/x/tools/go/analysis/singlechecker"

	"github.com/ardnew/tracepoint/analysis/tpname"
)

func main() { singlechecker.Main(tpname.Analyzer) }
