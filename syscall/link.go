package syscall

import (
	"rvkernel/defs"
	"rvkernel/hart"
	"rvkernel/sched"
	"rvkernel/ustr"
)

/// linkSyscall implements original_source's files/syscall.h linkSyscall:
/// resolve args[0] (an existing path) and args[1] (the new name's
/// containing directory plus final component), and call Link on that
/// directory's node.
func linkSyscall(sys *Sys_t, task *sched.Task_t, frame *hart.TrapFrame_t, args [7]uint64) SyscallReturn {
	p, err := currentProcess(sys, task)
	if err != 0 {
		return fail(err)
	}
	oldpath, err := userPath(p, int(args[0]))
	if err != 0 {
		return fail(err)
	}
	newpath, err := userPath(p, int(args[1]))
	if err != 0 {
		return fail(err)
	}
	target, err := sys.Resolver.Resolve(sys.RootNode, oldpath)
	if err != 0 {
		return fail(err)
	}
	parts := newpath.Components()
	if len(parts) == 0 {
		return fail(defs.EINVAL)
	}
	dirpath, name := joinAllButLast(parts)
	dir, err := sys.Resolver.Resolve(sys.RootNode, dirpath)
	if err != 0 {
		return fail(err)
	}
	if lerr := dir.Link(name, target); lerr != 0 {
		return fail(lerr)
	}
	return ok(0)
}

func unlinkSyscall(sys *Sys_t, task *sched.Task_t, frame *hart.TrapFrame_t, args [7]uint64) SyscallReturn {
	p, err := currentProcess(sys, task)
	if err != 0 {
		return fail(err)
	}
	path, err := userPath(p, int(args[0]))
	if err != 0 {
		return fail(err)
	}
	parts := path.Components()
	if len(parts) == 0 {
		return fail(defs.EINVAL)
	}
	dirpath, name := joinAllButLast(parts)
	dir, err := sys.Resolver.Resolve(sys.RootNode, dirpath)
	if err != 0 {
		return fail(err)
	}
	if uerr := dir.Unlink(name); uerr != 0 {
		return fail(uerr)
	}
	return ok(0)
}

/// renameSyscall implements original_source's renameSyscall as a
/// link-then-unlink pair, since this vfs layer's Node_i exposes no
/// atomic rename primitive of its own (only Link/Unlink, per SPEC_FULL.md
/// module E's capability set) — original_source's own implementation
/// does the same two-step internally once symlinks and cross-device
/// moves are ruled out.
func renameSyscall(sys *Sys_t, task *sched.Task_t, frame *hart.TrapFrame_t, args [7]uint64) SyscallReturn {
	p, err := currentProcess(sys, task)
	if err != 0 {
		return fail(err)
	}
	oldpath, err := userPath(p, int(args[0]))
	if err != 0 {
		return fail(err)
	}
	newpath, err := userPath(p, int(args[1]))
	if err != 0 {
		return fail(err)
	}

	target, err := sys.Resolver.Resolve(sys.RootNode, oldpath)
	if err != 0 {
		return fail(err)
	}

	newparts := newpath.Components()
	if len(newparts) == 0 {
		return fail(defs.EINVAL)
	}
	newdirpath, newname := joinAllButLast(newparts)
	newdir, err := sys.Resolver.Resolve(sys.RootNode, newdirpath)
	if err != 0 {
		return fail(err)
	}
	if lerr := newdir.Link(newname, target); lerr != 0 {
		return fail(lerr)
	}

	oldparts := oldpath.Components()
	olddirpath, oldname := joinAllButLast(oldparts)
	olddir, err := sys.Resolver.Resolve(sys.RootNode, olddirpath)
	if err != 0 {
		return fail(err)
	}
	if uerr := olddir.Unlink(oldname); uerr != 0 {
		return fail(uerr)
	}
	return ok(0)
}

/// joinAllButLast rejoins every component but the last into an absolute
/// path, returning the last component separately — the containing
/// directory and final name a Link/Unlink call needs.
func joinAllButLast(parts []ustr.Ustr) (dir ustr.Ustr, name ustr.Ustr) {
	name = parts[len(parts)-1]
	dir = ustr.MkUstr()
	for _, c := range parts[:len(parts)-1] {
		dir = append(append(dir, '/'), c...)
	}
	if len(dir) == 0 {
		dir = ustr.MkUstrRoot()
	}
	return dir, name
}
