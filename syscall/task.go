package syscall

import (
	"time"

	"rvkernel/defs"
	"rvkernel/hart"
	"rvkernel/sched"
)

/// yieldSyscall implements original_source's task/syscall.c yieldSyscall:
/// a no-op from the handler's own point of view — the calling task is
/// simply returned to Ready at its static priority, the "re-enqueued by
/// the caller" comment in the original referring to the scheduler's run
/// loop around the syscall dispatch, which this port folds directly
/// into the handler since there is no separate outer loop yet.
func yieldSyscall(sys *Sys_t, task *sched.Task_t, frame *hart.TrapFrame_t, args [7]uint64) SyscallReturn {
	if task == nil {
		return fail(defs.EPERM)
	}
	sys.Queue.Requeue(task)
	return ok(0)
}

/// sleepSyscall implements original_source's task/syscall.c sleepSyscall:
/// args[0] nanoseconds converted to ticks via sched.ClocksPerSec. A
/// kernel-context caller (no current task, mirroring the original's
/// `frame->hart == NULL` branch) busy-waits out the duration directly,
/// since there is no task to mark Sleeping; a task-context caller is
/// moved onto the scheduler's sleeping list instead, with the ticks
/// passed as a duration — sched.ScheduleQueue_t.Sleep adds it to the
/// queue's current tick mark to get the absolute deadline WakeExpired
/// compares against, per spec.md §5's sleeping_until = now + ns.
func sleepSyscall(sys *Sys_t, task *sched.Task_t, frame *hart.TrapFrame_t, args [7]uint64) SyscallReturn {
	ns := int64(args[0])
	if ns < 0 {
		return fail(defs.EINVAL)
	}
	if task == nil {
		time.Sleep(time.Duration(ns))
		return ok(0)
	}
	ticks := ns * sched.ClocksPerSec / int64(time.Second)
	sys.Queue.Sleep(task, ticks)
	return ok(0)
}

/// criticalSyscall implements original_source's task/syscall.c
/// criticalSyscall: permitted only from kernel context (mirroring the
/// original's `if (!is_kernel) return -EPERM`, translated here to "no
/// current task"), matching spec.md §9's note that a critical section
/// is a kernel-only escape hatch, not a user-facing primitive. The
/// original itself leaves the actual non-preemptable-section entry as a
/// TODO; this port carries the same stub rather than inventing
/// preemption-disabling machinery spec.md never asks for.
func criticalSyscall(sys *Sys_t, task *sched.Task_t, frame *hart.TrapFrame_t, args [7]uint64) SyscallReturn {
	if task != nil {
		return fail(defs.EPERM)
	}
	return ok(0)
}
