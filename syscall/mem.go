package syscall

import (
	"rvkernel/defs"
	"rvkernel/hart"
	"rvkernel/mem"
	"rvkernel/sched"
)

/// sbrkSyscall implements original_source's sbrkSyscall: grow or shrink
/// the calling process's heap by args[0] bytes (signed), returning the
/// break's value before the change.
func sbrkSyscall(sys *Sys_t, task *sched.Task_t, frame *hart.TrapFrame_t, args [7]uint64) SyscallReturn {
	if task == nil {
		return fail(defs.EPERM)
	}
	p, err := currentProcess(sys, task)
	if err != 0 {
		return fail(err)
	}
	old, err := p.Vm.Sbrk(int(int64(args[0])))
	if err != 0 {
		return fail(err)
	}
	return ok(int(old))
}

/// protectSyscall implements original_source's protectSyscall: change
/// the permission bits of [args[0], args[0]+args[1]) to args[2] (a
/// PROT_READ/WRITE/EXEC-style bitmask translated to mem.PTE_R/W/X by
/// the caller's convention — this kernel's args[2] is already the raw
/// PTE bit combination, since there is no separate user-facing PROT_*
/// constant namespace defined anywhere in this port).
func protectSyscall(sys *Sys_t, task *sched.Task_t, frame *hart.TrapFrame_t, args [7]uint64) SyscallReturn {
	if task == nil {
		return fail(defs.EPERM)
	}
	p, err := currentProcess(sys, task)
	if err != 0 {
		return fail(err)
	}
	prot := mem.Pa_t(args[2])
	if err := p.Vm.Protect(uintptr(args[0]), uintptr(args[1]), prot); err != 0 {
		return fail(err)
	}
	return ok(0)
}
