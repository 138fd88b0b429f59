// Package hart implements the trap frame and per-hart execution
// context of spec.md §4.C: a snapshot of every register a trap entry
// must preserve and a hart's own scratch frame used while running the
// idle loop or handling a nested trap. Grounded on the teacher's
// tinfo/tinfo.go and vm/as.go, neither of which defines a RISC-V trap
// frame directly (the teacher targets x86-64 and recovers register
// state from the CPU's own interrupt stack frame) — this package is a
// fresh implementation of spec.md §4.C's RISC-V-specific contract,
// following the teacher's layering convention: a plain data struct with
// save/load/swap helpers, no scheduling policy, called by both the
// scheduler (module D) and signal delivery (module H) the same way
// tinfo.Note_t is called by both.
package hart

// TrapFrame_t holds every register a trap entry must preserve to
// resume the interrupted context exactly: the 31 general-purpose
// integer registers (x1/ra .. x31/t6; x0 is hardwired zero and not
// saved), the program counter at the trap, and the supervisor status
// and cause CSRs snapshotted at entry.
type TrapFrame_t struct {
	Ra, Sp, Gp, Tp                     uint64
	T0, T1, T2                         uint64
	S0, S1                             uint64
	A0, A1, A2, A3, A4, A5, A6, A7      uint64
	S2, S3, S4, S5, S6, S7, S8, S9, S10, S11 uint64
	T3, T4, T5, T6                     uint64

	Sepc   uint64
	Sstatus uint64
	Scause  uint64
	Stval   uint64
}

/// A0..A6 carry a syscall's arguments (a7 carries the syscall number);
/// Retval reads/writes the a0 slot used for a syscall's return value.
func (tf *TrapFrame_t) Retval() uint64 {
	return tf.A0
}

func (tf *TrapFrame_t) SetRetval(v uint64) {
	tf.A0 = v
}

/// Args returns the seven argument registers a0..a6 as spec.md §4.G's
/// syscall dispatch tuple.
func (tf *TrapFrame_t) Args() [7]uint64 {
	return [7]uint64{tf.A0, tf.A1, tf.A2, tf.A3, tf.A4, tf.A5, tf.A6}
}

/// Sysno returns the syscall number carried in a7.
func (tf *TrapFrame_t) Sysno() uint64 {
	return tf.A7
}

/// HartFrame_t is one hart's own execution context: an embedded trap
/// frame used while the hart itself takes a trap outside of any task
/// (during the idle loop, or a nested trap before a task has been
/// scheduled onto it), plus the hart's identity and the pointer to
/// sscratch's target — the trap frame of whichever task is currently
/// running on this hart, mirroring the real sscratch-holds-a-pointer
/// convention spec.md §4.C describes.
type HartFrame_t struct {
	TrapFrame_t
	Hartid int
	/// Current points at the trap frame of the task currently running
	/// on this hart, or nil if the hart is idling. Kept here rather
	/// than in goroutine-local storage (stock Go offers no such
	/// mechanism; see DESIGN.md's module C Open Question decision).
	Current *TrapFrame_t
}

/// MkHartFrame returns a fresh, idling hart context for the given hart
/// id.
func MkHartFrame(hartid int) *HartFrame_t {
	return &HartFrame_t{Hartid: hartid}
}

/// SaveToFrame copies the hart's live register snapshot (src) into dst,
/// the contract used by both a cooperative context switch (the
/// scheduler suspending the running task) and signal delivery (stashing
/// the pre-handler state before diverting pc to the handler).
func SaveToFrame(dst *TrapFrame_t, src *TrapFrame_t) {
	*dst = *src
}

/// LoadFromFrame copies src into the hart's live register snapshot dst,
/// the counterpart used to resume a previously suspended task or to
/// return from a signal handler via sigreturn.
func LoadFromFrame(dst *TrapFrame_t, src *TrapFrame_t) {
	*dst = *src
}

/// Swap atomically (from the scheduler's point of view — the hart is
/// never re-entered mid-swap) saves the hart's live state into save_to
/// and then loads load_from into it, the single primitive both the
/// scheduler's context switch and signal delivery/sigreturn build on.
func Swap(live *TrapFrame_t, saveTo *TrapFrame_t, loadFrom *TrapFrame_t) {
	SaveToFrame(saveTo, live)
	LoadFromFrame(live, loadFrom)
}
