// Package tpname defines an analyzer that checks tracepoint declarations.
//
// A tracepoint is identified by its call site, and its name is part of that
// static identity. The analyzer reports calls to Module.Declare whose name
// argument is not a non-empty constant string, declarations inside loops,
// where every iteration shares one tracepoint, and more than one declaration
// on a single line, where both calls resolve to the same call site.
package tpname

import (
	"go/ast"
	"go/constant"
	"go/token"
	"go/types"
	"strings"

	"golang.org/x/tools/go/analysis"
	"golang.org/x/tools/go/analysis/passes/inspect"
	"golang.org/x/tools/go/ast/inspector"
	"golang.org/x/tools/go/types/typeutil"
)

// PackagePath is the import path of the tracepoint package.
const PackagePath = "github.com/ardnew/tracepoint/tracepoint"

const doc = `check that tracepoint names are non-empty constant strings

Module.Declare binds a name to a call site once. A name computed at run time
would silently be ignored on every call after the first, so it must be a
constant expression.`

// Analyzer reports invalid tracepoint declarations.
var Analyzer = &analysis.Analyzer{
	Name:     "tpname",
	Doc:      doc,
	URL:      "https://pkg.go.dev/github.com/ardnew/tracepoint/analysis/tpname",
	Requires: []*analysis.Analyzer{inspect.Analyzer},
	Run:      run,
}

func run(pass *analysis.Pass) (any, error) {
	insp := pass.ResultOf[inspect.Analyzer].(*inspector.Inspector)

	nodeFilter := []ast.Node{
		(*ast.CallExpr)(nil),
	}

	lines := make(map[lineKey]bool)

	insp.WithStack(nodeFilter, func(node ast.Node, push bool, stack []ast.Node) bool {
		if !push {
			return true
		}

		call := node.(*ast.CallExpr)
		if !isDeclare(pass.TypesInfo, call) || len(call.Args) == 0 {
			return true
		}

		checkName(pass, call.Args[0])
		checkLoop(pass, call, stack)
		checkLine(pass, call, lines)

		return true
	})

	return nil, nil
}

// isDeclare reports whether call invokes (*tracepoint.Module).Declare.
func isDeclare(info *types.Info, call *ast.CallExpr) bool {
	fn, ok := typeutil.Callee(info, call).(*types.Func)
	if !ok || fn.Name() != "Declare" || fn.Pkg() == nil || fn.Pkg().Path() != PackagePath {
		return false
	}

	sig, ok := fn.Type().(*types.Signature)
	if !ok || sig.Recv() == nil {
		return false
	}

	ptr, ok := sig.Recv().Type().(*types.Pointer)
	if !ok {
		return false
	}

	named, ok := ptr.Elem().(*types.Named)

	return ok && named.Obj().Name() == "Module"
}

func checkName(pass *analysis.Pass, arg ast.Expr) {
	tv, ok := pass.TypesInfo.Types[arg]
	if !ok || tv.Value == nil || tv.Value.Kind() != constant.String {
		pass.Reportf(arg.Pos(), "tracepoint name must be a constant string")

		return
	}

	if strings.TrimSpace(constant.StringVal(tv.Value)) == "" {
		pass.Reportf(arg.Pos(), "tracepoint name must not be empty")
	}
}

type lineKey struct {
	file string
	line int
}

// checkLine reports a declaration sharing its line with an earlier one. Calls
// passing options are skipped, since options such as At set the position.
func checkLine(pass *analysis.Pass, call *ast.CallExpr, lines map[lineKey]bool) {
	if len(call.Args) > 1 || call.Ellipsis != token.NoPos {
		return
	}

	pos := pass.Fset.Position(call.Pos())
	key := lineKey{file: pos.Filename, line: pos.Line}

	if lines[key] {
		pass.Reportf(call.Pos(),
			"second tracepoint declared on this line; each declaration needs its own line")

		return
	}

	lines[key] = true
}

func checkLoop(pass *analysis.Pass, call *ast.CallExpr, stack []ast.Node) {
	// Walk outward until the enclosing function; loops outside it do not
	// repeat this call site's declaration.
	for i := len(stack) - 2; i >= 0; i-- {
		switch stack[i].(type) {
		case *ast.FuncLit, *ast.FuncDecl:
			return
		case *ast.ForStmt, *ast.RangeStmt:
			pass.Reportf(call.Pos(),
				"tracepoint declared inside a loop; declare it once at package scope")

			return
		}
	}
}
