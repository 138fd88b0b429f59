package main

import (
	"go/ast"
	"go/types"

	"golang.org/x/tools/go/analysis"
	"golang.org/x/tools/go/analysis/passes/inspect"
	"golang.org/x/tools/go/ast/inspector"
)

/// Analyzer flags a bare expression-statement call (one whose results
/// aren't assigned to anything, not even `_`) when one of its results is
/// defs.Err_t — spec.md §6's dual-use return convention means a discarded
/// Err_t silently swallows a failure a caller was supposed to check.
var Analyzer = &analysis.Analyzer{
	Name:     "errcheck",
	Doc:      "flags calls whose returned rvkernel/defs.Err_t is discarded",
	Requires: []*analysis.Analyzer{inspect.Analyzer},
	Run:      run,
}

func run(pass *analysis.Pass) (interface{}, error) {
	insp := pass.ResultOf[inspect.Analyzer].(*inspector.Inspector)

	nodeFilter := []ast.Node{(*ast.ExprStmt)(nil)}
	insp.Preorder(nodeFilter, func(n ast.Node) {
		stmt := n.(*ast.ExprStmt)
		call, ok := stmt.X.(*ast.CallExpr)
		if !ok {
			return
		}
		tv, ok := pass.TypesInfo.Types[call]
		if !ok {
			return
		}
		for _, t := range resultTypes(tv.Type) {
			if isErrT(t) {
				pass.Reportf(call.Pos(), "result of type defs.Err_t is discarded, it should be checked")
				return
			}
		}
	})
	return nil, nil
}

/// resultTypes expands a call expression's static type into its
/// individual results: types.Tuple for a multi-value call, or the single
/// type itself otherwise.
func resultTypes(t types.Type) []types.Type {
	if tup, ok := t.(*types.Tuple); ok {
		out := make([]types.Type, tup.Len())
		for i := 0; i < tup.Len(); i++ {
			out[i] = tup.At(i).Type()
		}
		return out
	}
	return []types.Type{t}
}

/// isErrT reports whether t is rvkernel/defs.Err_t, named by package path
/// so the analyzer works regardless of the importing package's local
/// alias for "rvkernel/defs".
func isErrT(t types.Type) bool {
	named, ok := t.(*types.Named)
	if !ok {
		return false
	}
	obj := named.Obj()
	if obj == nil || obj.Pkg() == nil {
		return false
	}
	return obj.Pkg().Path() == "rvkernel/defs" && obj.Name() == "Err_t"
}
