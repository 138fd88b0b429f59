// Package tinfo tracks the kill/doom state needed to interrupt a task
// blocked in the scheduler's waiting or sleeping lists when an unmasked
// signal arrives (spec.md §5 Cancellation). Adapted from the teacher's
// tinfo.Tnote_t; the teacher recovers the current note via an implicit
// per-goroutine slot (runtime.Gptr/Setgptr, a hook into its patched Go
// runtime). Stock Go exposes no such hook, so callers thread a *Note_t
// explicitly instead of recovering it from goroutine-local state — see
// DESIGN.md's Open Question decision for module C.
package tinfo

import (
	"sync"

	"rvkernel/defs"
)

/// Note_t stores the kill/doom state of one task, checked at every
/// suspension point so a signal raised while the task is blocked can
/// unblock it with EINTR instead of waiting for a deadline or resource.
type Note_t struct {
	sync.Mutex
	Killed   bool
	Isdoomed bool
	Kerr     defs.Err_t
}

/// Doomed reports whether the task has been marked for forced termination
/// (as opposed to merely having a pending, interruptible signal).
func (t *Note_t) Doomed() bool {
	t.Lock()
	defer t.Unlock()
	return t.Isdoomed
}

/// Kill marks the task's blocking operation to fail with err, and wakes any
/// code polling Killed. The scheduler's wait loops check Killed on every
/// iteration and every wakeup, not just at the start of a wait.
func (t *Note_t) Kill(err defs.Err_t) {
	t.Lock()
	defer t.Unlock()
	t.Killed = true
	t.Kerr = err
}

/// Doom marks the task for unconditional termination (SIGKILL-class),
/// distinct from an interruptible Kill.
func (t *Note_t) Doom() {
	t.Lock()
	defer t.Unlock()
	t.Killed = true
	t.Isdoomed = true
	t.Kerr = defs.EINTR
}

/// Check returns the pending kill error, if any, clearing the flag so a
/// single Kill interrupts exactly one blocking wait.
func (t *Note_t) Check() (defs.Err_t, bool) {
	t.Lock()
	defer t.Unlock()
	if !t.Killed {
		return 0, false
	}
	if !t.Isdoomed {
		t.Killed = false
	}
	return t.Kerr, true
}

/// Threadinfo_t tracks all live task notes by tid, used when a signal must
/// be delivered to a task identified only by id (kill(2) semantics).
type Threadinfo_t struct {
	sync.Mutex
	Notes map[defs.Tid_t]*Note_t
}

/// Init prepares an empty table.
func (ti *Threadinfo_t) Init() {
	ti.Notes = make(map[defs.Tid_t]*Note_t)
}

/// Put registers a tid's note.
func (ti *Threadinfo_t) Put(tid defs.Tid_t, n *Note_t) {
	ti.Lock()
	defer ti.Unlock()
	ti.Notes[tid] = n
}

/// Get returns the note for tid, or nil if it is not (or no longer) live.
func (ti *Threadinfo_t) Get(tid defs.Tid_t) *Note_t {
	ti.Lock()
	defer ti.Unlock()
	return ti.Notes[tid]
}

/// Del removes a tid's note once the task has been reaped.
func (ti *Threadinfo_t) Del(tid defs.Tid_t) {
	ti.Lock()
	defer ti.Unlock()
	delete(ti.Notes, tid)
}
