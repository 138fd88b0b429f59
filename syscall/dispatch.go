// Package syscall implements spec.md §4.G's numbered syscall dispatch
// table: one handler per syscall number, each given the trap frame that
// trapped into the kernel and its seven argument registers, returning a
// single value carried back in a0. Grounded on
// original_source/kernel/src/{files,memory,process,task}/syscall.h and
// task/syscall.c (all read in full) and on interrupt/syscall.h's
// `SyscallArgs`/`SyscallFunction` pair, which the four category headers
// specialize two different ways: the file/memory category declares
// `SyscallReturn fooSyscall(TrapFrame*)` while the process/task category
// declares `void fooSyscall(bool is_kernel, TrapFrame*, SyscallArgs)`.
// This package unifies both under one signature,
// `(is_kernel, frame, args) SyscallReturn`, since nothing downstream of
// dispatch needs to know which category a handler came from — a
// deliberate synthesis rather than a direct translation of either
// original convention.
package syscall

import (
	"rvkernel/defs"
	"rvkernel/fs"
	"rvkernel/hart"
	"rvkernel/mem"
	"rvkernel/proc"
	"rvkernel/sched"
	"rvkernel/vfs"
)

/// SyscallReturn is the value a handler leaves in a0: a non-negative
/// success payload, or a negative defs.Err_t magnitude, the same dual
/// use spec.md §6 describes for a syscall's return register.
type SyscallReturn int64

func ok(v int) SyscallReturn       { return SyscallReturn(v) }
func fail(e defs.Err_t) SyscallReturn { return SyscallReturn(e) }

/// Sys_t bundles the kernel-global state a handler needs to reach: the
/// process table, the scheduler queue the calling task sits on, the
/// path resolver/mount table shared by every process's file
/// operations, and the physical memory pool. One Sys_t is constructed
/// at boot and threaded through every Dispatch call, mirroring how
/// original_source's handlers reach the same global tables through
/// plain C globals.
type Sys_t struct {
	Procs    *proc.Table_t
	Queue    *sched.ScheduleQueue_t
	Resolver *vfs.Resolver_t
	Mounts   *fs.MountTable_t
	Phys     *mem.Physmem_t
	// RootNode is the true filesystem root every path-resolving syscall
	// (open, chdir, mount, ...) starts Resolver.Resolve from, distinct
	// from a process's own Cwd — set once at boot.
	RootNode vfs.Node_i
}

/// HandlerFunc is one syscall's implementation.
type HandlerFunc func(sys *Sys_t, task *sched.Task_t, frame *hart.TrapFrame_t, args [7]uint64) SyscallReturn

/// Syscall numbers, spec.md §4.G's numbered table. Grouped by category
/// in the same order original_source splits them across
/// files/memory/process/task syscall.h.
const (
	SYS_FORK = iota
	SYS_EXIT
	SYS_WAIT
	SYS_GETPID
	SYS_GETPPID
	SYS_KILL
	SYS_SIGACTION
	SYS_SIGRETURN
	SYS_SIGPENDING
	SYS_SIGPROCMASK
	SYS_GETUID
	SYS_GETGID
	SYS_SETUID
	SYS_SETGID

	SYS_SBRK
	SYS_PROTECT

	SYS_YIELD
	SYS_SLEEP
	SYS_CRITICAL

	SYS_OPEN
	SYS_CLOSE
	SYS_READ
	SYS_WRITE
	SYS_SEEK
	SYS_STAT
	SYS_DUP
	SYS_TRUNC
	SYS_PIPE
	SYS_READDIR
	SYS_CHDIR
	SYS_GETCWD
	SYS_MOUNT
	SYS_UMOUNT

	SYS_LINK
	SYS_UNLINK
	SYS_RENAME

	SYS_PAUSE
	SYS_ALARM

	SYS_CHMOD
	SYS_CHOWN
	SYS_MKNOD
	SYS_UMASK
	SYS_FCNTL
	SYS_ISATTY
	SYS_IOCTL

	nsyscalls
)

/// Table_t is the numbered dispatch table; Dispatch looks up args[7]'s
/// opcode (frame.Sysno()) and invokes the matching handler.
type Table_t struct {
	handlers [nsyscalls]HandlerFunc
}

/// MkTable returns the dispatch table wired with every syscall this
/// kernel implements.
func MkTable() *Table_t {
	t := &Table_t{}
	t.handlers[SYS_FORK] = forkSyscall
	t.handlers[SYS_EXIT] = exitSyscall
	t.handlers[SYS_WAIT] = waitSyscall
	t.handlers[SYS_GETPID] = getpidSyscall
	t.handlers[SYS_GETPPID] = getppidSyscall
	t.handlers[SYS_KILL] = killSyscall
	t.handlers[SYS_SIGACTION] = sigactionSyscall
	t.handlers[SYS_SIGRETURN] = sigreturnSyscall
	t.handlers[SYS_SIGPENDING] = sigpendingSyscall
	t.handlers[SYS_SIGPROCMASK] = sigprocmaskSyscall
	t.handlers[SYS_GETUID] = getuidSyscall
	t.handlers[SYS_GETGID] = getgidSyscall
	t.handlers[SYS_SETUID] = setuidSyscall
	t.handlers[SYS_SETGID] = setgidSyscall

	t.handlers[SYS_SBRK] = sbrkSyscall
	t.handlers[SYS_PROTECT] = protectSyscall

	t.handlers[SYS_YIELD] = yieldSyscall
	t.handlers[SYS_SLEEP] = sleepSyscall
	t.handlers[SYS_CRITICAL] = criticalSyscall

	t.handlers[SYS_OPEN] = openSyscall
	t.handlers[SYS_CLOSE] = closeSyscall
	t.handlers[SYS_READ] = readSyscall
	t.handlers[SYS_WRITE] = writeSyscall
	t.handlers[SYS_SEEK] = seekSyscall
	t.handlers[SYS_STAT] = statSyscall
	t.handlers[SYS_DUP] = dupSyscall
	t.handlers[SYS_TRUNC] = truncSyscall
	t.handlers[SYS_PIPE] = pipeSyscall
	t.handlers[SYS_READDIR] = readdirSyscall
	t.handlers[SYS_CHDIR] = chdirSyscall
	t.handlers[SYS_GETCWD] = getcwdSyscall
	t.handlers[SYS_MOUNT] = mountSyscall
	t.handlers[SYS_UMOUNT] = umountSyscall

	t.handlers[SYS_LINK] = linkSyscall
	t.handlers[SYS_UNLINK] = unlinkSyscall
	t.handlers[SYS_RENAME] = renameSyscall

	t.handlers[SYS_PAUSE] = pauseSyscall
	t.handlers[SYS_ALARM] = alarmSyscall

	t.handlers[SYS_CHMOD] = chmodSyscall
	t.handlers[SYS_CHOWN] = chownSyscall
	t.handlers[SYS_MKNOD] = mknodSyscall
	t.handlers[SYS_UMASK] = umaskSyscall
	t.handlers[SYS_FCNTL] = fcntlSyscall
	t.handlers[SYS_ISATTY] = isattySyscall
	t.handlers[SYS_IOCTL] = ioctlSyscall
	return t
}

/// Dispatch runs the syscall named by frame's a7 register against task,
/// writing its result into frame's a0 (the return-value slot every
/// caller reads after the trap returns) and also returning it directly
/// for a caller (tests, primarily) that wants it without re-reading the
/// frame. An out-of-range syscall number yields ENOSYS's nearest
/// equivalent in this kernel's taxonomy, EUNSUP.
func (dt *Table_t) Dispatch(sys *Sys_t, task *sched.Task_t, frame *hart.TrapFrame_t) SyscallReturn {
	no := frame.Sysno()
	var ret SyscallReturn
	if no >= uint64(nsyscalls) || dt.handlers[no] == nil {
		ret = fail(defs.EUNSUP)
	} else {
		ret = dt.handlers[no](sys, task, frame, frame.Args())
	}
	frame.SetRetval(uint64(ret))
	return ret
}

/// currentProcess resolves task's owning Process_t, looked up by pid
/// since this kernel creates exactly one Task_t per process today (see
/// proc.Table_t.Fork) so task.Pid always names its Process_t directly.
func currentProcess(sys *Sys_t, task *sched.Task_t) (*proc.Process_t, defs.Err_t) {
	p, ok := sys.Procs.Get(task.Pid)
	if !ok {
		return nil, defs.ESRCH
	}
	return p, 0
}
