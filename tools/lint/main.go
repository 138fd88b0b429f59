// Command lint runs errcheck, a go/analysis-based analyzer that flags a
// call whose result includes an ignored defs.Err_t, replacing the
// teacher's bespoke AST-walking build tool (biscuit/scripts/features.go)
// with the same go/ast/go/parser/go/token building blocks wrapped in the
// standard analysis.Analyzer/singlechecker harness, so the check composes
// with `go vet`'s own plumbing (flags, -json, multi-package runs)
// instead of re-implementing file discovery and diagnostics by hand the
// way features.go does.
//
// defs.Err_t is this kernel's error currency (see defs/err.go): nearly
// every kernel-internal call returns one as its last result, and a
// discarded Err_t is almost always a bug, the same class of mistake
// golang.org/x/tools' own errcheck-style analyzers exist to catch for Go's
// built-in `error`.
package main

import (
	"golang.org/x/tools/go/analysis/singlechecker"
)

func main() {
	singlechecker.Main(Analyzer)
}
