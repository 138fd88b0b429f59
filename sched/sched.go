// Package sched implements the per-hart cooperative scheduler of
// spec.md §4.D: a multi-level priority FIFO ready queue with aging, a
// sleeping-task list, and the state machine every task moves through
// from creation to reaping. Grounded on `accnt/accnt.go` (`Accnt_t`,
// embedded per task for getrusage-style reporting) and
// `tinfo/tinfo.go` (`Note_t`, embedded per task for the kill/doom
// cancellation path) — the teacher's own `proc` package, which would
// have held the matching `Proc_t`/ready-queue code, came through the
// retrieval pack as a bare `go.mod` with no source bodies, so the
// queue/aging/state-machine mechanics below are built directly from
// spec.md §4.D's description rather than adapted from teacher source,
// following the same layering convention (a lock-guarded struct with
// plain methods, no goroutines of its own) the rest of the kernel
// uses.
package sched

import (
	"sync"

	"rvkernel/accnt"
	"rvkernel/defs"
	"rvkernel/hart"
	"rvkernel/stats"
	"rvkernel/tinfo"
)

/// MaxPriority is the number of static priority classes; 0 is the
/// highest priority, MaxPriority-1 the lowest.
const MaxPriority = 40

/// DefaultPriority is the static priority assigned to a task unless its
/// creator asks for another.
const DefaultPriority = 20

/// ClocksPerSec is the timer tick rate sleep deadlines are measured
/// against.
const ClocksPerSec = 10_000_000 // 10 MHz

/// State is a task's position in spec.md §4.D's state machine.
type State int

const (
	Ready State = iota
	Running
	Sleeping
	Waiting
	WaitChild
	Terminated
	Paused
)

var stateNames = [...]string{
	Ready: "READY", Running: "RUNNING", Sleeping: "SLEEPING",
	Waiting: "WAITING", WaitChild: "WAITCHILD", Terminated: "TERMINATED",
	Paused: "PAUSED",
}

func (s State) String() string {
	if int(s) >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "State(?)"
}

/// Task_t is one schedulable unit of execution: its identity, its
/// static and dynamic priority, its current state, its trap frame, and
/// the accounting/cancellation state every syscall and context switch
/// touches.
type Task_t struct {
	Pid defs.Pid_t
	Tid defs.Tid_t

	Priority      int /// static, fixed at creation
	QueuePriority int /// dynamic, decays while waiting, per spec.md §4.D

	State         State
	SleepingUntil int64 /// ticks (ClocksPerSec); valid only while State == Sleeping

	Accnt accnt.Accnt_t
	Note  tinfo.Note_t
	Frame hart.TrapFrame_t

	/// next links Task_t into a ScheduleQueue_t's ready list. A task
	/// appears on at most one of {ready queue, sleeping list} at a time.
	next *Task_t
}

/// MkTask returns a new task in state Ready at its default dynamic
/// priority, ready to be enqueued.
func MkTask(pid defs.Pid_t, tid defs.Tid_t, priority int) *Task_t {
	return &Task_t{
		Pid:           pid,
		Tid:           tid,
		Priority:      priority,
		QueuePriority: priority,
		State:         Ready,
	}
}

/// ScheduleQueue_t is one hart's ready queue: a singly-linked list
/// ordered by ascending queue priority (band 0 first), with `tails[p]`
/// caching the insertion point for each priority class so enqueue is
/// O(1) regardless of queue depth, plus the list of tasks sleeping
/// until a deadline and an idle task to run when nothing else is
/// ready.
type ScheduleQueue_t struct {
	sync.Mutex
	head  *Task_t
	tails [MaxPriority]*Task_t

	sleeping []*Task_t

	/// Now is the queue's last-observed tick count, advanced by every
	/// WakeExpired call (the hart timer handler's per-round sweep). Sleep
	/// measures its caller's duration from this mark rather than from an
	/// externally-supplied absolute deadline, since nothing in this
	/// package otherwise has access to a clock.
	Now int64

	idle *Task_t

	// Stats tallies this queue's lifetime activity, SPEC_FULL.md module K
	// instrumentation.
	Stats SchedStats_t
}

/// SchedStats_t is the scheduler's counter set, rendered via
/// stats.Stats2String/ToProfile.
type SchedStats_t struct {
	ContextSwitches stats.Counter_t
	AgingTicks      stats.Counter_t
}

/// MkScheduleQueue returns an empty queue with idle as its idle task.
func MkScheduleQueue(idle *Task_t) *ScheduleQueue_t {
	return &ScheduleQueue_t{idle: idle}
}

/// Enqueue appends t to the ready list at priority prio (not
/// necessarily t.QueuePriority — Age uses this to re-band a task whose
/// priority just changed), updating tails[prio] and any higher bands
/// that previously shared its tail pointer (spec.md §4.D's queue
/// structure note).
func (sq *ScheduleQueue_t) Enqueue(t *Task_t, prio int) {
	sq.Lock()
	defer sq.Unlock()
	sq.enqueueLocked(t, prio)
}

func (sq *ScheduleQueue_t) enqueueLocked(t *Task_t, prio int) {
	t.QueuePriority = prio
	t.State = Ready
	old := sq.tails[prio]
	if old == nil {
		t.next = sq.head
		sq.head = t
	} else {
		t.next = old.next
		old.next = t
	}
	for q := prio; q < MaxPriority; q++ {
		if sq.tails[q] == old {
			sq.tails[q] = t
		} else {
			break
		}
	}
}

/// Dequeue pops the head of the ready list (the highest-priority,
/// longest-waiting-within-band task), or nil if the queue is empty.
func (sq *ScheduleQueue_t) Dequeue() *Task_t {
	sq.Lock()
	defer sq.Unlock()
	old := sq.head
	if old == nil {
		return nil
	}
	sq.head = old.next
	for q := old.QueuePriority; q < MaxPriority; q++ {
		if sq.tails[q] == old {
			sq.tails[q] = nil
		} else {
			break
		}
	}
	old.next = nil
	return old
}

/// Age decays every ready task's queue priority by one, floored at
/// zero, and re-bands it accordingly — "decreased over time" per
/// spec.md §4.D, called once per scheduling round by the hart's timer
/// handler. A task's queue priority resets to its static Priority each
/// time it returns to Ready after running (see Requeue), so aging only
/// accumulates across rounds a task spent waiting, unselected.
func (sq *ScheduleQueue_t) Age() {
	sq.Lock()
	defer sq.Unlock()
	var waiting []*Task_t
	for t := sq.head; t != nil; {
		next := t.next
		t.next = nil
		waiting = append(waiting, t)
		t = next
	}
	sq.head = nil
	for i := range sq.tails {
		sq.tails[i] = nil
	}
	for _, t := range waiting {
		if t.QueuePriority > 0 {
			t.QueuePriority--
		}
		sq.enqueueLocked(t, t.QueuePriority)
	}
	sq.Stats.AgingTicks.Inc()
}

/// Sleep moves t out of the ready rotation and onto the sleeping list for
/// durationTicks ticks, measured from the queue's current tick mark (set
/// by the most recent WakeExpired call) — spec.md §5's
/// "sleeping_until = now + ns", not an absolute deadline the caller must
/// compute itself.
func (sq *ScheduleQueue_t) Sleep(t *Task_t, durationTicks int64) {
	sq.Lock()
	defer sq.Unlock()
	t.State = Sleeping
	t.SleepingUntil = sq.Now + durationTicks
	sq.sleeping = append(sq.sleeping, t)
}

/// WakeExpired advances the queue's tick mark to nowTicks and moves every
/// sleeping task whose deadline has now passed back onto the ready list
/// at its static priority, per spec.md §4.D's per-decision sleeping-list
/// sweep.
func (sq *ScheduleQueue_t) WakeExpired(nowTicks int64) {
	sq.Lock()
	sq.Now = nowTicks
	var woken []*Task_t
	remaining := sq.sleeping[:0]
	for _, t := range sq.sleeping {
		if t.SleepingUntil <= nowTicks {
			woken = append(woken, t)
		} else {
			remaining = append(remaining, t)
		}
	}
	sq.sleeping = remaining
	sq.Unlock()
	for _, t := range woken {
		sq.Enqueue(t, t.Priority)
	}
}

/// Requeue returns a task that just finished its quantum (yield/tick)
/// to Ready at its static priority, per the Age doc comment's reset
/// convention.
func (sq *ScheduleQueue_t) Requeue(t *Task_t) {
	sq.Enqueue(t, t.Priority)
}

/// RunNext implements spec.md §4.D's runNext: dequeue the ready head,
/// mark it Running and restore its frame into the hart's live context;
/// if the queue is empty, run the hart's idle task instead.
func (sq *ScheduleQueue_t) RunNext(hf *hart.HartFrame_t) *Task_t {
	t := sq.Dequeue()
	if t == nil {
		t = sq.idle
		t.State = Running
	} else {
		t.State = Running
	}
	hart.LoadFromFrame(&hf.TrapFrame_t, &t.Frame)
	hf.Current = &t.Frame
	sq.Stats.ContextSwitches.Inc()
	return t
}
