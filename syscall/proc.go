package syscall

import (
	"time"

	"rvkernel/defs"
	"rvkernel/hart"
	"rvkernel/proc"
	"rvkernel/sched"
	"rvkernel/signal"
)

/// waitPollInterval bounds how long waitSyscall's retry loop sleeps
/// between checking for a reapable zombie child, the same poll-based
/// convention pipe.park uses for interruption since this kernel has no
/// goroutine-local wakeup channel a blocking syscall handler can park
/// on directly.
const waitPollInterval = 10 * time.Millisecond

/// forkSyscall implements original_source's forkSyscall (left as a TODO
/// stub there) against proc.Table_t.Fork: a new process with its own
/// copied address space and descriptor table, and one Ready thread that
/// resumes at the same program counter as the parent with a zero return
/// value, per fork(2)'s "child sees 0, parent sees the child's pid"
/// contract. is_kernel calls of fork are rejected, matching task/syscall.c's
/// is_kernel-gated criticalSyscall precedent for kernel-only/task-only
/// syscalls.
func forkSyscall(sys *Sys_t, task *sched.Task_t, frame *hart.TrapFrame_t, args [7]uint64) SyscallReturn {
	if task == nil {
		return fail(defs.EPERM)
	}
	parent, err := currentProcess(sys, task)
	if err != 0 {
		return fail(err)
	}
	child, err := sys.Procs.Fork(parent)
	if err != 0 {
		return fail(err)
	}
	childThread := child.Threads[0]
	childThread.Frame = *frame
	childThread.Frame.SetRetval(0)
	sys.Queue.Enqueue(childThread, childThread.Priority)
	return ok(int(child.Pid))
}

/// exitSyscall implements original_source's exitSyscall: mark the
/// calling process terminated/zombie with the given status. Called only
/// from a task's own context (frame->hart != NULL in the original); a
/// kernel-context call is an assertion violation there and a panic here,
/// since no task means no process to exit.
func exitSyscall(sys *Sys_t, task *sched.Task_t, frame *hart.TrapFrame_t, args [7]uint64) SyscallReturn {
	if task == nil {
		panic("exitSyscall: no current task")
	}
	p, err := currentProcess(sys, task)
	if err != 0 {
		return fail(err)
	}
	sys.Procs.Exit(p, int(int64(args[0])))
	task.State = sched.Terminated
	return ok(0)
}

/// waitSyscall implements original_source's executeProcessWait: block
/// until one of the calling process's children becomes a zombie, write
/// its exit status to the user pointer in args[1] (if non-zero), and
/// return its pid. Polls proc.Table_t.WaitChild rather than blocking on
/// a scheduler wakeup channel directly, checking the task's tinfo.Note_t
/// each round so a delivered signal interrupts the wait with EINTR
/// (spec.md §5's cancellation contract). task.State tracks
/// sched.WaitChild for the poll's duration so the scheduler's state
/// machine reflects the block, restored to sched.Running on every exit
/// path.
func waitSyscall(sys *Sys_t, task *sched.Task_t, frame *hart.TrapFrame_t, args [7]uint64) SyscallReturn {
	p, err := currentProcess(sys, task)
	if err != 0 {
		return fail(err)
	}
	statusPtr := int(args[1])
	task.State = sched.WaitChild
	for {
		pid, status, err := sys.Procs.WaitChild(p)
		if err != 0 {
			task.State = sched.Running
			return fail(err)
		}
		if pid != 0 {
			task.State = sched.Running
			if statusPtr != 0 {
				if werr := p.Vm.Userwriten(statusPtr, 8, status); werr != 0 {
					return fail(werr)
				}
			}
			return ok(int(pid))
		}
		if kerr, killed := task.Note.Check(); killed {
			task.State = sched.Running
			return fail(kerr)
		}
		time.Sleep(waitPollInterval)
	}
}

/// pauseSyscall implements pause(2): suspend the calling task until a
/// signal is delivered, matching original_source's process/syscall.h
/// pauseSyscall declaration against this kernel's tinfo.Note_t-poll
/// convention (the same one waitSyscall and pipe.park already use in
/// place of a scheduler wakeup channel). task.State tracks sched.Paused
/// for the poll's duration, restored to sched.Running once a signal
/// interrupts it. Unlike wait(2), pause(2) always ends in EINTR — there
/// is no success return, per POSIX.
func pauseSyscall(sys *Sys_t, task *sched.Task_t, frame *hart.TrapFrame_t, args [7]uint64) SyscallReturn {
	if task == nil {
		return fail(defs.EPERM)
	}
	task.State = sched.Paused
	for {
		if kerr, killed := task.Note.Check(); killed {
			task.State = sched.Running
			return fail(kerr)
		}
		time.Sleep(waitPollInterval)
	}
}

/// alarmSyscall implements alarm(2): schedule SIGALRM delivery to every
/// thread of the calling process after args[0] seconds, cancelling any
/// previously pending alarm and returning the number of seconds left on
/// it (0 if none was pending), per POSIX. args[0] == 0 cancels any
/// pending alarm without scheduling a new one. Grounded on
/// signal.Table_t.Raise's own doc comment, which already anticipates "a
/// timer set by alarm()" as a Raise caller; implemented with
/// time.AfterFunc since this kernel has no dedicated timer-wheel
/// facility of its own, matching proc.Process_t.AlarmTimer/AlarmDeadline's
/// bookkeeping.
func alarmSyscall(sys *Sys_t, task *sched.Task_t, frame *hart.TrapFrame_t, args [7]uint64) SyscallReturn {
	p, err := currentProcess(sys, task)
	if err != 0 {
		return fail(err)
	}
	p.Lock()
	defer p.Unlock()

	remaining := 0
	if p.AlarmTimer != nil {
		if left := time.Until(p.AlarmDeadline); left > 0 {
			remaining = int(left.Round(time.Second) / time.Second)
			if remaining == 0 {
				remaining = 1
			}
		}
		p.AlarmTimer.Stop()
		p.AlarmTimer = nil
	}

	seconds := int64(args[0])
	if seconds > 0 {
		p.AlarmDeadline = time.Now().Add(time.Duration(seconds) * time.Second)
		p.AlarmTimer = time.AfterFunc(time.Duration(seconds)*time.Second, func() {
			p.Lock()
			threads := append([]*sched.Task_t{}, p.Threads...)
			p.AlarmTimer = nil
			p.Unlock()
			for _, th := range threads {
				p.Signals.Raise(signal.SIGALRM, &th.Note)
			}
		})
	}
	return ok(remaining)
}

/// getpidSyscall/getppidSyscall implement original_source's matching
/// syscalls. getppid reports 0 when the process has no parent (either
/// it is init, or its parent already exited and orphaned it — see
/// proc.Table_t.Exit's Open Question decision); orphans are not
/// attributed to init.
func getpidSyscall(sys *Sys_t, task *sched.Task_t, frame *hart.TrapFrame_t, args [7]uint64) SyscallReturn {
	p, err := currentProcess(sys, task)
	if err != 0 {
		return fail(err)
	}
	return ok(int(p.Pid))
}

func getppidSyscall(sys *Sys_t, task *sched.Task_t, frame *hart.TrapFrame_t, args [7]uint64) SyscallReturn {
	p, err := currentProcess(sys, task)
	if err != 0 {
		return fail(err)
	}
	p.Lock()
	defer p.Unlock()
	if p.Parent == nil {
		return ok(0)
	}
	return ok(int(p.Parent.Pid))
}

/// killSyscall implements original_source's killSyscall: deliver args[1]
/// (a signal number) to the process named by args[0]. Signal 9 bypasses
/// signal.Table_t entirely and dooms the target's threads unconditionally
/// via tinfo.Note_t.Doom, matching ordinary SIGKILL semantics and
/// signal.Table_t's own refusal to let Sigaction install a catcher for it.
func killSyscall(sys *Sys_t, task *sched.Task_t, frame *hart.TrapFrame_t, args [7]uint64) SyscallReturn {
	target, ok2 := sys.Procs.Get(defs.Pid_t(int(args[0])))
	if !ok2 {
		return fail(defs.ESRCH)
	}
	signo := int(args[1])
	target.Lock()
	threads := target.Threads
	target.Unlock()
	if signo == 9 {
		for _, th := range threads {
			th.Note.Doom()
		}
		return ok(0)
	}
	var err defs.Err_t
	for _, th := range threads {
		err = target.Signals.Raise(signo, &th.Note)
	}
	if err != 0 {
		return fail(err)
	}
	return ok(0)
}

func sigactionSyscall(sys *Sys_t, task *sched.Task_t, frame *hart.TrapFrame_t, args [7]uint64) SyscallReturn {
	p, err := currentProcess(sys, task)
	if err != 0 {
		return fail(err)
	}
	signo := int(args[0])
	disp := signal.Disposition(int(args[1]))
	fn := uintptr(args[2])
	_, err = p.Signals.Sigaction(signo, signal.Handler_t{Disp: disp, Fn: fn})
	if err != 0 {
		return fail(err)
	}
	return ok(0)
}

func sigreturnSyscall(sys *Sys_t, task *sched.Task_t, frame *hart.TrapFrame_t, args [7]uint64) SyscallReturn {
	p, err := currentProcess(sys, task)
	if err != 0 {
		return fail(err)
	}
	if err := p.Signals.Sigreturn(frame); err != 0 {
		return fail(err)
	}
	return ok(0)
}

func sigpendingSyscall(sys *Sys_t, task *sched.Task_t, frame *hart.TrapFrame_t, args [7]uint64) SyscallReturn {
	p, err := currentProcess(sys, task)
	if err != 0 {
		return fail(err)
	}
	return SyscallReturn(p.Signals.Sigpending())
}

func sigprocmaskSyscall(sys *Sys_t, task *sched.Task_t, frame *hart.TrapFrame_t, args [7]uint64) SyscallReturn {
	p, err := currentProcess(sys, task)
	if err != 0 {
		return fail(err)
	}
	old, err := p.Signals.Sigprocmask(int(args[0]), signal.Set_t(args[1]))
	if err != 0 {
		return fail(err)
	}
	if outPtr := int(args[2]); outPtr != 0 {
		if werr := p.Vm.Userwriten(outPtr, 8, int(old)); werr != 0 {
			return fail(werr)
		}
	}
	return ok(0)
}

func getuidSyscall(sys *Sys_t, task *sched.Task_t, frame *hart.TrapFrame_t, args [7]uint64) SyscallReturn {
	p, err := currentProcess(sys, task)
	if err != 0 {
		return fail(err)
	}
	p.Lock()
	defer p.Unlock()
	return ok(int(p.Uid))
}

func getgidSyscall(sys *Sys_t, task *sched.Task_t, frame *hart.TrapFrame_t, args [7]uint64) SyscallReturn {
	p, err := currentProcess(sys, task)
	if err != 0 {
		return fail(err)
	}
	p.Lock()
	defer p.Unlock()
	return ok(int(p.Gid))
}

/// setuidSyscall/setgidSyscall are only permitted for a process
/// currently running as uid/gid 0 (root), per original_source's
/// setUidSyscall/setGidSyscall gating.
func setuidSyscall(sys *Sys_t, task *sched.Task_t, frame *hart.TrapFrame_t, args [7]uint64) SyscallReturn {
	p, err := currentProcess(sys, task)
	if err != 0 {
		return fail(err)
	}
	p.Lock()
	defer p.Unlock()
	if p.Uid != 0 {
		return fail(defs.EPERM)
	}
	p.Uid = proc.Uid_t(int(args[0]))
	return ok(0)
}

func setgidSyscall(sys *Sys_t, task *sched.Task_t, frame *hart.TrapFrame_t, args [7]uint64) SyscallReturn {
	p, err := currentProcess(sys, task)
	if err != 0 {
		return fail(err)
	}
	p.Lock()
	defer p.Unlock()
	if p.Uid != 0 {
		return fail(defs.EPERM)
	}
	p.Gid = proc.Gid_t(int(args[0]))
	return ok(0)
}
