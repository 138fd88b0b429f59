// Package signal implements spec.md §4.H: a per-task pending-signal
// bitset, a mask of currently-blocked signals, a handler table
// (default/ignore/user-installed), and the sigreturn trampoline that
// restores a task's pre-handler register state. Grounded on
// tinfo.Note_t (the kill/doom half of task cancellation already built
// in this kernel, which a raised signal feeds into for the
// already-blocked-in-the-scheduler case) and on hart.TrapFrame_t's
// Swap/SaveToFrame/LoadFromFrame trio, which a handler dispatch and its
// matching sigreturn reuse exactly the way a context switch does,
// following original_source's process/syscall.h sigaction/sigreturn/
// sigpending/sigprocmask quartet.
package signal

import (
	"sync"

	"rvkernel/defs"
	"rvkernel/hart"
	"rvkernel/tinfo"
)

/// NSIG bounds the signal numbers this kernel models, one bit per
/// signal in the Set_t bitset.
const NSIG = 64

/// Disposition names what happens when a signal is deliverable.
type Disposition int

const (
	Dfl Disposition = iota /// default action (terminate the task)
	Ign                    /// ignored
	User                   /// user handler installed
)

/// Set_t is a bitset of signal numbers 1..NSIG-1 (bit 0 unused, signal 0
/// is not a real signal per kill(2) convention).
type Set_t uint64

func bit(signo int) Set_t { return 1 << uint(signo) }

/// How values for Sigprocmask, matching POSIX sigprocmask(2).
const (
	SIG_BLOCK = iota
	SIG_UNBLOCK
	SIG_SETMASK
)

/// SIGALRM is the signal alarm(2) raises when its timer fires, numbered
/// to match POSIX. SIGKILL's equivalent (signal 9) is handled separately
/// by killSyscall rather than through this table, per Sigaction's own
/// refusal to let it be caught.
const SIGALRM = 14

/// Handler_t is one signal's installed disposition.
type Handler_t struct {
	Disp Disposition
	Fn   uintptr /// user handler entry point, valid when Disp == User
}

/// Table_t is one task's signal state: which signals are pending,
/// which are blocked, and each signal's handler. SavedFrame/InHandler
/// carry the pre-handler register snapshot sigreturn restores, since
/// this kernel (like the original) runs a handler on the task's own
/// stack rather than a dedicated signal stack.
type Table_t struct {
	sync.Mutex
	Pending  Set_t
	Mask     Set_t
	Handlers [NSIG]Handler_t

	InHandler  bool
	Handling   int
	SavedFrame hart.TrapFrame_t
}

/// MkTable returns a signal table with every signal at its default
/// disposition and nothing pending or blocked.
func MkTable() *Table_t {
	return &Table_t{}
}

/// Raise marks signo pending, called by kill() and by the scheduler when
/// a tracked condition (e.g. a timer set by alarm()) fires. It also
/// kills the target task's tinfo.Note_t if the task is currently parked
/// in a blocking wait, so the wait returns EINTR instead of waiting for
/// the signal to be noticed on its next scheduling quantum.
func (st *Table_t) Raise(signo int, note *tinfo.Note_t) defs.Err_t {
	if signo <= 0 || signo >= NSIG {
		return defs.EINVAL
	}
	st.Lock()
	st.Pending |= bit(signo)
	blocked := st.Mask&bit(signo) != 0
	st.Unlock()
	if !blocked && note != nil {
		note.Kill(defs.EINTR)
	}
	return 0
}

/// Sigaction installs a new handler for signo, returning the handler it
/// replaces (sigaction(2)'s oldact). SIGKILL-equivalent signal 9 may not
/// be caught or ignored, matching POSIX.
func (st *Table_t) Sigaction(signo int, h Handler_t) (Handler_t, defs.Err_t) {
	if signo <= 0 || signo >= NSIG {
		return Handler_t{}, defs.EINVAL
	}
	if signo == 9 && h.Disp != Dfl {
		return Handler_t{}, defs.EINVAL
	}
	st.Lock()
	defer st.Unlock()
	old := st.Handlers[signo]
	st.Handlers[signo] = h
	return old, 0
}

/// Sigprocmask adjusts the blocked-signal mask per how (SIG_BLOCK/
/// SIG_UNBLOCK/SIG_SETMASK) and returns the mask it replaced, the
/// supplemented entry point SPEC_FULL.md calls for explicitly.
func (st *Table_t) Sigprocmask(how int, set Set_t) (Set_t, defs.Err_t) {
	st.Lock()
	defer st.Unlock()
	old := st.Mask
	switch how {
	case SIG_BLOCK:
		st.Mask |= set
	case SIG_UNBLOCK:
		st.Mask &^= set
	case SIG_SETMASK:
		st.Mask = set
	default:
		return 0, defs.EINVAL
	}
	return old, 0
}

/// Sigpending returns the set of signals raised but not yet delivered.
func (st *Table_t) Sigpending() Set_t {
	st.Lock()
	defer st.Unlock()
	return st.Pending
}

/// Deliverable returns the lowest-numbered pending, unblocked signal
/// whose disposition is not Ign, clearing it from Pending, or ok=false
/// if none is ready — checked once per scheduling return-to-user point
/// per spec.md §5's signal-delivery race note (checked with the task's
/// own mask held, so a signal raised between the check and return to
/// user mode waits for the next check rather than being lost).
func (st *Table_t) Deliverable() (signo int, h Handler_t, ok bool) {
	st.Lock()
	defer st.Unlock()
	for s := 1; s < NSIG; s++ {
		if st.Pending&bit(s) == 0 || st.Mask&bit(s) != 0 {
			continue
		}
		h := st.Handlers[s]
		if h.Disp == Ign {
			st.Pending &^= bit(s)
			continue
		}
		st.Pending &^= bit(s)
		return s, h, true
	}
	return 0, Handler_t{}, false
}

/// EnterHandler diverts frame to run signo's user handler: it stashes
/// frame's current contents in SavedFrame for the matching Sigreturn,
/// then rewrites the live frame's pc and first argument register to
/// invoke fn(signo) on return to user mode.
func (st *Table_t) EnterHandler(frame *hart.TrapFrame_t, signo int, fn uintptr) {
	st.Lock()
	defer st.Unlock()
	hart.SaveToFrame(&st.SavedFrame, frame)
	st.InHandler = true
	st.Handling = signo
	frame.Sepc = uint64(fn)
	frame.A0 = uint64(signo)
}

/// Sigreturn restores the register state EnterHandler stashed, the
/// sigreturn(2) trampoline's kernel-side half. It returns EINVAL if no
/// handler is currently active for this task.
func (st *Table_t) Sigreturn(frame *hart.TrapFrame_t) defs.Err_t {
	st.Lock()
	defer st.Unlock()
	if !st.InHandler {
		return defs.EINVAL
	}
	hart.LoadFromFrame(frame, &st.SavedFrame)
	st.InHandler = false
	st.Handling = 0
	return 0
}
