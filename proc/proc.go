// Package proc ties together a process's memory, file descriptors, and
// the one or more sched.Task_t threads that execute it, plus the
// parent/child tree fork/exit/wait walk. Grounded on
// original_source/src/process/process.h and process/types.h's
// Process/ProcessTree/ProcessMemory/ProcessResources split — the
// teacher's own `proc` package, which would hold the matching
// Proc_t, came through the retrieval pack as a bare go.mod with no
// source bodies, so Process_t's shape follows the original's C struct
// layout translated into the types this kernel already built:
// vm.Vm_t for ProcessMemory, vfs.Fdtable_t/Cwd_t for ProcessResources,
// sched.Task_t for the per-thread TrapFrame/scheduling half the
// original folds directly into Process_s.
package proc

import (
	"sync"
	"time"

	"rvkernel/defs"
	"rvkernel/limits"
	"rvkernel/mem"
	"rvkernel/sched"
	"rvkernel/signal"
	"rvkernel/ustr"
	"rvkernel/vfs"
	"rvkernel/vm"
)

/// Uid_t and Gid_t identify a process's owning user and group, per
/// original_source's ProcessResources.uid/gid.
type Uid_t int
type Gid_t int

/// defaultUmask matches the common shell default (no group/other write),
/// applied to a process's creation mask until it calls umask(2) itself.
const defaultUmask = 0o022

/// Process_t is one process: its identity, parent/child/sibling links,
/// address space, and open-file state, plus the threads currently
/// executing it. A process with no threads left alive but not yet
/// reaped sits in Zombie, holding its exit Status for the parent's
/// wait() to collect.
type Process_t struct {
	sync.Mutex

	Pid    defs.Pid_t
	Status int /// exit status, valid once Zombie

	Parent   *Process_t
	Children []*Process_t

	Uid   Uid_t
	Gid   Gid_t
	Umask int /// creation mode mask, per umask(2)

	/// AlarmTimer/AlarmDeadline back alarm(2): the pending SIGALRM delivery
	/// (if any) scheduled by syscall.alarmSyscall, and the wall-clock
	/// deadline it fires at, used to compute alarm's "seconds remaining on
	/// the previous alarm" return value.
	AlarmTimer    *time.Timer
	AlarmDeadline time.Time

	Vm  *vm.Vm_t
	Fds *vfs.Fdtable_t
	Cwd *vfs.Cwd_t

	Threads []*sched.Task_t
	Signals *signal.Table_t

	Zombie bool
}

/// Table_t is the kernel's global process table, keyed by pid, used to
/// allocate new pids and to look a process up by id for kill()/wait()
/// family syscalls.
type Table_t struct {
	sync.Mutex
	procs   map[defs.Pid_t]*Process_t
	nextPid defs.Pid_t
}

/// MkTable returns an empty process table; pid 1 is reserved for the
/// first process created (init), matching Unix convention.
func MkTable() *Table_t {
	return &Table_t{procs: make(map[defs.Pid_t]*Process_t), nextPid: 1}
}

func (pt *Table_t) allocPid() defs.Pid_t {
	pt.Lock()
	defer pt.Unlock()
	pid := pt.nextPid
	pt.nextPid++
	return pid
}

/// Get returns the process with the given pid, if it is still live.
func (pt *Table_t) Get(pid defs.Pid_t) (*Process_t, bool) {
	pt.Lock()
	defer pt.Unlock()
	p, ok := pt.procs[pid]
	return p, ok
}

func (pt *Table_t) insert(p *Process_t) {
	pt.Lock()
	pt.procs[p.Pid] = p
	pt.Unlock()
}

func (pt *Table_t) remove(pid defs.Pid_t) {
	pt.Lock()
	delete(pt.procs, pid)
	pt.Unlock()
}

/// CreateInit builds the first process: a fresh address space, an empty
/// descriptor table rooted at rootNode's cwd, and one Ready main thread
/// at sched.DefaultPriority. There is no parent to record.
func CreateInit(pt *Table_t, phys *mem.Physmem_t, rootFd *vfs.Fd_t) (*Process_t, defs.Err_t) {
	if !limits.Syslimit.Sysprocs.Take() {
		return nil, defs.ENOMEM
	}
	as, err := vm.MkVm(phys)
	if err != 0 {
		limits.Syslimit.Sysprocs.Give()
		return nil, err
	}
	p := &Process_t{
		Pid:     pt.allocPid(),
		Vm:      as,
		Fds:     vfs.MkFdtable(),
		Cwd:     vfs.MkRootCwd(rootFd),
		Signals: signal.MkTable(),
		Umask:   defaultUmask,
	}
	t := sched.MkTask(p.Pid, defs.Tid_t(p.Pid), sched.DefaultPriority)
	p.Threads = append(p.Threads, t)
	pt.insert(p)
	return p, 0
}

/// Fork creates a child of parent: a byte-for-byte copy of its address
/// space (vm.Vm_t.Fork), a duplicate of every open file descriptor
/// (vfs.Fdtable_t.Fork), and a single new main thread in Ready state at
/// the parent's static priority, per original_source's
/// createChildUserProcess. The child is linked into parent's Children
/// list; its own Children start empty.
func (pt *Table_t) Fork(parent *Process_t) (*Process_t, defs.Err_t) {
	if !limits.Syslimit.Sysprocs.Take() {
		return nil, defs.ENOMEM
	}
	parent.Lock()
	defer parent.Unlock()

	childVm, err := parent.Vm.Fork()
	if err != 0 {
		limits.Syslimit.Sysprocs.Give()
		return nil, err
	}
	childFds, err := parent.Fds.Fork()
	if err != 0 {
		childVm.Uvmfree()
		limits.Syslimit.Sysprocs.Give()
		return nil, err
	}

	child := &Process_t{
		Pid:     pt.allocPid(),
		Parent:  parent,
		Uid:     parent.Uid,
		Gid:     parent.Gid,
		Umask:   parent.Umask,
		Vm:      childVm,
		Fds:     childFds,
		Cwd:     &vfs.Cwd_t{Fd: parent.Cwd.Fd, Path: append(ustr.Ustr{}, parent.Cwd.Path...)},
		Signals: signal.MkTable(),
	}
	mainThread := parent.Threads[0]
	t := sched.MkTask(child.Pid, defs.Tid_t(child.Pid), mainThread.Priority)
	child.Threads = append(child.Threads, t)

	parent.Children = append(parent.Children, child)
	pt.insert(child)
	return child, 0
}

/// Exit marks p as a zombie with the given status, tearing down its
/// address space and descriptor table (every resource except the
/// Process_t record itself, which survives in its parent's Children
/// list until WaitChild reaps it), matching original_source's
/// deallocProcess split between "free resources now" and "free the
/// struct once reaped". p's own children are orphaned (Parent set to
/// nil); they are not reparented to init (pid 1).
func (pt *Table_t) Exit(p *Process_t, status int) {
	p.Lock()
	if p.AlarmTimer != nil {
		p.AlarmTimer.Stop()
		p.AlarmTimer = nil
	}
	p.Vm.Uvmfree()
	p.Fds.CloseAll()
	p.Status = status
	p.Zombie = true
	p.Unlock()

	for _, c := range p.Children {
		c.Lock()
		c.Parent = nil
		c.Unlock()
	}
}

/// WaitChild blocks (by the caller's own convention — proc does not
/// itself park on sched; callers loop calling WaitChild after
/// sched-level blocking) until one of parent's children is a zombie,
/// reaps the first one found, and returns its pid and status. It
/// returns ECHILD if parent has no children at all.
func (pt *Table_t) WaitChild(parent *Process_t) (defs.Pid_t, int, defs.Err_t) {
	parent.Lock()
	if len(parent.Children) == 0 {
		parent.Unlock()
		return 0, 0, defs.ECHILD
	}
	var zombie *Process_t
	idx := -1
	for i, c := range parent.Children {
		c.Lock()
		z := c.Zombie
		c.Unlock()
		if z {
			zombie = c
			idx = i
			break
		}
	}
	if zombie == nil {
		parent.Unlock()
		return 0, 0, 0
	}
	parent.Children = append(parent.Children[:idx], parent.Children[idx+1:]...)
	parent.Unlock()

	pt.remove(zombie.Pid)
	limits.Syslimit.Sysprocs.Give()
	return zombie.Pid, zombie.Status, 0
}
