// Package res implements the per-call resource-budget accounting described
// in SPEC_FULL.md module J. Its contract is reconstructed from the call
// sites surviving in the teacher's vm package (vm.Userbuf_t._tx,
// vm.Useriovec_t.Iov_init, vm.Vm_t.K2user_inner/User2k_inner all guard their
// loops with `if !res.Resadd_noblock(bounds.Bounds(name)) { return
// -defs.ENOHEAP }`); the package bodies themselves were not retrieved, only
// their go.mod files, so the budget mechanics below are a fresh
// implementation of that contract rather than an adaptation of existing
// code.
package res

import "fmt"

/// Point names a call site that charges against a budget, used only for
/// diagnostics when a budget is exhausted.
type Point int

const (
	PagetableWalk Point = iota
	UserbufTx
	UseriovecInit
	VmCopy
	PathResolve
	PipeTransfer
)

func (p Point) String() string {
	names := [...]string{
		"pagetable.walk", "userbuf.tx", "useriovec.init",
		"vm.copy", "path.resolve", "pipe.transfer",
	}
	if int(p) < len(names) {
		return names[p]
	}
	return fmt.Sprintf("res.Point(%d)", int(p))
}

/// DefaultBudget bounds any single unbounded kernel loop (a page-table walk,
/// a path resolution, a pipe transfer) so that adversarial input can never
/// spin a hart forever; spec.md §7 requires allocator exhaustion and other
/// resource pressure be surfaced, never silently blocked or looped on.
const DefaultBudget = 1 << 20

/// Budget_t is a decrementing work counter scoped to one kernel-entry call
/// (one syscall, one page-fault resolution). Callers construct one with
/// New and pass it down through the helpers that loop.
type Budget_t struct {
	remaining int
	spent     map[Point]int
}

/// New returns a budget with n units of work available.
func New(n int) *Budget_t {
	return &Budget_t{remaining: n}
}

/// Default returns a budget sized for ordinary kernel work.
func Default() *Budget_t {
	return New(DefaultBudget)
}

/// Resadd_noblock charges one unit of work against the budget for the named
/// call site and reports whether the budget still has room. It never
/// blocks; the name mirrors the teacher's own call-site spelling.
func Resadd_noblock(b *Budget_t, point Point) bool {
	if b == nil {
		return true
	}
	if b.remaining <= 0 {
		return false
	}
	b.remaining--
	if b.spent == nil {
		b.spent = make(map[Point]int)
	}
	b.spent[point]++
	return true
}

/// Remaining reports how many work units are left.
func (b *Budget_t) Remaining() int {
	if b == nil {
		return DefaultBudget
	}
	return b.remaining
}

/// Spent reports how many units were charged at the given call site, for
/// tests and diagnostics.
func (b *Budget_t) Spent(point Point) int {
	if b == nil || b.spent == nil {
		return 0
	}
	return b.spent[point]
}
