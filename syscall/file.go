package syscall

import (
	"rvkernel/defs"
	"rvkernel/fs"
	"rvkernel/hart"
	"rvkernel/limits"
	"rvkernel/pipe"
	"rvkernel/proc"
	"rvkernel/sched"
	"rvkernel/tinfo"
	"rvkernel/ustr"
	"rvkernel/vfs"
	"rvkernel/vm"
)

/// Open flag bits, numbered to match the POSIX/Linux convention the
/// original's userspace callers (touch.c, cp.c, both read in full)
/// already assume — original_source's own kernel headers never restate
/// these numeric values, since they come from its libc, not the
/// kernel, and no defining header for them exists anywhere in the
/// corpus. Authored here rather than grounded, the same way
/// vfs.FD_READ/FD_WRITE/FD_CLOEXEC were invented earlier in this port.
const (
	O_RDONLY = 0x0
	O_WRONLY = 0x1
	O_RDWR   = 0x2
	O_CREAT  = 0x40
	O_TRUNC  = 0x200
	O_APPEND = 0x400
)

/// maxPathLen bounds how many bytes a path-taking syscall will copy in
/// from user memory before giving up with ENAMETOOLONG, mirroring
/// vm.Vm_t.Userstr's own lenmax contract.
const maxPathLen = 4096

func userPath(p *proc.Process_t, uva int) (ustr.Ustr, defs.Err_t) {
	raw, err := p.Vm.Userstr(uva, maxPathLen)
	if err != 0 {
		return nil, err
	}
	p.Cwd.Lock()
	full := p.Cwd.Canonicalpath(raw)
	p.Cwd.Unlock()
	return full, 0
}

func noteOf(task *sched.Task_t) *tinfo.Note_t {
	if task == nil {
		return nil
	}
	return &task.Note
}

/// openSyscall implements original_source's files/syscall.h openSyscall:
/// resolve args[0] (a user path pointer) and install a new descriptor
/// for it per args[1]'s O_* flags. O_CREAT only succeeds against a path
/// that already exists — this vfs layer has no on-disk filesystem
/// driver to fabricate a brand-new regular-file node from nothing
/// (spec.md's Non-goals exclude the backing store), so creating a
/// genuinely new path is EUNSUP rather than silently no-opping.
func openSyscall(sys *Sys_t, task *sched.Task_t, frame *hart.TrapFrame_t, args [7]uint64) SyscallReturn {
	p, err := currentProcess(sys, task)
	if err != 0 {
		return fail(err)
	}
	path, err := userPath(p, int(args[0]))
	if err != 0 {
		return fail(err)
	}
	flags := int(args[1])

	node, err := sys.Resolver.Resolve(sys.RootNode, path)
	if err != 0 {
		if err == defs.ENOENT && flags&O_CREAT != 0 {
			return fail(defs.EUNSUP)
		}
		return fail(err)
	}
	if flags&O_TRUNC != 0 {
		if terr := node.Trunc(0); terr != 0 {
			return fail(terr)
		}
	}

	file := vfs.MkFile(node)
	file.Append = flags&O_APPEND != 0
	perms := 0
	switch flags & 0x3 {
	case O_RDONLY:
		perms = vfs.FD_READ
	case O_WRONLY:
		perms = vfs.FD_WRITE
	case O_RDWR:
		perms = vfs.FD_READ | vfs.FD_WRITE
	}
	fdnum, err := p.Fds.PutNewFileDescriptor(-1, &vfs.Fd_t{File: file, Perms: perms}, false)
	if err != 0 {
		return fail(err)
	}
	return ok(fdnum)
}

func closeSyscall(sys *Sys_t, task *sched.Task_t, frame *hart.TrapFrame_t, args [7]uint64) SyscallReturn {
	p, err := currentProcess(sys, task)
	if err != 0 {
		return fail(err)
	}
	if cerr := p.Fds.CloseFileDescriptor(int(args[0])); cerr != 0 {
		return fail(cerr)
	}
	return ok(0)
}

/// readSyscall and writeSyscall thread the calling task's tinfo.Note_t
/// through to pipe.Node_t's note-aware ReadNote/WriteNote when the
/// target fd is a pipe end, so a blocked pipe transfer can be
/// interrupted by a delivered signal (spec.md §5's EINTR contract); an
/// ordinary file or device node's ReadAt/WriteAt never blocks, so the
/// note is irrelevant there.
func readSyscall(sys *Sys_t, task *sched.Task_t, frame *hart.TrapFrame_t, args [7]uint64) SyscallReturn {
	p, err := currentProcess(sys, task)
	if err != 0 {
		return fail(err)
	}
	fd, found := p.Fds.Get(int(args[0]))
	if !found {
		return fail(defs.EBADF)
	}
	if fd.Perms&vfs.FD_READ == 0 {
		return fail(defs.EBADF)
	}
	dst := vm.Mkuserbuf(p.Vm, int(args[1]), int(args[2]))
	if pn, isPipe := fd.File.Node.(*pipe.Node_t); isPipe {
		n, rerr := pn.ReadNote(dst, true, noteOf(task))
		if rerr != 0 {
			return fail(rerr)
		}
		return ok(n)
	}
	n, rerr := fd.File.Read(dst)
	if rerr != 0 {
		return fail(rerr)
	}
	return ok(n)
}

func writeSyscall(sys *Sys_t, task *sched.Task_t, frame *hart.TrapFrame_t, args [7]uint64) SyscallReturn {
	p, err := currentProcess(sys, task)
	if err != 0 {
		return fail(err)
	}
	fd, found := p.Fds.Get(int(args[0]))
	if !found {
		return fail(defs.EBADF)
	}
	if fd.Perms&vfs.FD_WRITE == 0 {
		return fail(defs.EBADF)
	}
	src := vm.Mkuserbuf(p.Vm, int(args[1]), int(args[2]))
	if pn, isPipe := fd.File.Node.(*pipe.Node_t); isPipe {
		n, werr := pn.WriteNote(src, true, noteOf(task))
		if werr != 0 {
			return fail(werr)
		}
		return ok(n)
	}
	n, werr := fd.File.Write(src)
	if werr != 0 {
		return fail(werr)
	}
	return ok(n)
}

func seekSyscall(sys *Sys_t, task *sched.Task_t, frame *hart.TrapFrame_t, args [7]uint64) SyscallReturn {
	p, err := currentProcess(sys, task)
	if err != 0 {
		return fail(err)
	}
	fd, found := p.Fds.Get(int(args[0]))
	if !found {
		return fail(defs.EBADF)
	}
	n, serr := fd.File.Seek(int(int64(args[1])), int(args[2]))
	if serr != 0 {
		return fail(serr)
	}
	return ok(n)
}

func statSyscall(sys *Sys_t, task *sched.Task_t, frame *hart.TrapFrame_t, args [7]uint64) SyscallReturn {
	p, err := currentProcess(sys, task)
	if err != 0 {
		return fail(err)
	}
	fd, found := p.Fds.Get(int(args[0]))
	if !found {
		return fail(defs.EBADF)
	}
	st, serr := fd.File.Node.Stat()
	if serr != 0 {
		return fail(serr)
	}
	if werr := writeStat(p, int(args[1]), st); werr != 0 {
		return fail(werr)
	}
	return ok(0)
}

func writeStat(p *proc.Process_t, uva int, st vfs.Stat_t) defs.Err_t {
	fields := []int{st.Dev, st.Ino, st.Mode, st.Size, st.Nlink, st.Uid, st.Gid}
	for i, v := range fields {
		if err := p.Vm.Userwriten(uva+i*8, 8, v); err != 0 {
			return err
		}
	}
	return 0
}

func dupSyscall(sys *Sys_t, task *sched.Task_t, frame *hart.TrapFrame_t, args [7]uint64) SyscallReturn {
	p, err := currentProcess(sys, task)
	if err != 0 {
		return fail(err)
	}
	fd, found := p.Fds.Get(int(args[0]))
	if !found {
		return fail(defs.EBADF)
	}
	nfd, derr := vfs.Copyfd(fd)
	if derr != 0 {
		return fail(derr)
	}
	want := int(int64(args[1]))
	fdnum, perr := p.Fds.PutNewFileDescriptor(want, nfd, want >= 0)
	if perr != 0 {
		return fail(perr)
	}
	return ok(fdnum)
}

func truncSyscall(sys *Sys_t, task *sched.Task_t, frame *hart.TrapFrame_t, args [7]uint64) SyscallReturn {
	p, err := currentProcess(sys, task)
	if err != 0 {
		return fail(err)
	}
	fd, found := p.Fds.Get(int(args[0]))
	if !found {
		return fail(defs.EBADF)
	}
	if terr := fd.File.Node.Trunc(int(args[1])); terr != 0 {
		return fail(terr)
	}
	return ok(0)
}

/// pipeSyscall implements original_source's files/syscall.h pipeSyscall:
/// create a new pipe.SharedData_t, install its read and write ends as
/// two fresh descriptors, and write their numbers to the user int[2]
/// array at args[0] (read end first, write end second, matching
/// pipe(2)'s pipefd[0]/pipefd[1] convention).
func pipeSyscall(sys *Sys_t, task *sched.Task_t, frame *hart.TrapFrame_t, args [7]uint64) SyscallReturn {
	p, err := currentProcess(sys, task)
	if err != 0 {
		return fail(err)
	}
	if !limits.Syslimit.Pipes.Take() {
		return fail(defs.ENFILE)
	}
	sd := pipe.MkSharedData()
	readFd := &vfs.Fd_t{File: vfs.MkFile(pipe.MkNode(sd, false)), Perms: vfs.FD_READ}
	writeFd := &vfs.Fd_t{File: vfs.MkFile(pipe.MkNode(sd, true)), Perms: vfs.FD_WRITE}

	rnum, rerr := p.Fds.PutNewFileDescriptor(-1, readFd, false)
	if rerr != 0 {
		limits.Syslimit.Pipes.Give()
		return fail(rerr)
	}
	wnum, werr := p.Fds.PutNewFileDescriptor(-1, writeFd, false)
	if werr != 0 {
		p.Fds.CloseFileDescriptor(rnum)
		writeFd.File.Close()
		return fail(werr)
	}
	uva := int(args[0])
	if err := p.Vm.Userwriten(uva, 8, rnum); err != 0 {
		return fail(err)
	}
	if err := p.Vm.Userwriten(uva+8, 8, wnum); err != 0 {
		return fail(err)
	}
	return ok(0)
}

func readdirSyscall(sys *Sys_t, task *sched.Task_t, frame *hart.TrapFrame_t, args [7]uint64) SyscallReturn {
	p, err := currentProcess(sys, task)
	if err != 0 {
		return fail(err)
	}
	fd, found := p.Fds.Get(int(args[0]))
	if !found {
		return fail(defs.EBADF)
	}
	name, next, derr := fd.File.Node.ReaddirAt(int(args[1]))
	if derr != 0 {
		return fail(derr)
	}
	if next == -1 {
		return ok(-1)
	}
	if werr := p.Vm.K2user([]byte(name.String()), int(args[2])); werr != 0 {
		return fail(werr)
	}
	return ok(next)
}

/// chdirSyscall resolves args[0] and, provided it names a directory,
/// repoints the process's Cwd at it.
func chdirSyscall(sys *Sys_t, task *sched.Task_t, frame *hart.TrapFrame_t, args [7]uint64) SyscallReturn {
	p, err := currentProcess(sys, task)
	if err != 0 {
		return fail(err)
	}
	path, err := userPath(p, int(args[0]))
	if err != 0 {
		return fail(err)
	}
	node, rerr := sys.Resolver.Resolve(sys.RootNode, path)
	if rerr != 0 {
		return fail(rerr)
	}
	if node.Type() != vfs.NodeDir {
		return fail(defs.ENOTDIR)
	}
	p.Cwd.Lock()
	p.Cwd.Path = path
	p.Cwd.Unlock()
	return ok(0)
}

func getcwdSyscall(sys *Sys_t, task *sched.Task_t, frame *hart.TrapFrame_t, args [7]uint64) SyscallReturn {
	p, err := currentProcess(sys, task)
	if err != 0 {
		return fail(err)
	}
	p.Cwd.Lock()
	s := p.Cwd.Path.String()
	p.Cwd.Unlock()
	buf := append([]byte(s), 0)
	if len(buf) > int(args[1]) {
		return fail(defs.ERANGE)
	}
	if werr := p.Vm.K2user(buf, int(args[0])); werr != 0 {
		return fail(werr)
	}
	return ok(len(buf))
}

/// mountSyscall implements original_source's mountSyscall adapted to
/// this vfs layer's actual capabilities: args[0] names an already-open
/// directory descriptor whose node becomes a new mount's root, mounted
/// at the path in args[1]. The original's block-device source argument
/// has no counterpart here, since there is no disk/minix filesystem
/// driver for it to name (spec.md's Non-goals).
func mountSyscall(sys *Sys_t, task *sched.Task_t, frame *hart.TrapFrame_t, args [7]uint64) SyscallReturn {
	p, err := currentProcess(sys, task)
	if err != 0 {
		return fail(err)
	}
	fd, found := p.Fds.Get(int(args[0]))
	if !found {
		return fail(defs.EBADF)
	}
	target, perr := userPath(p, int(args[1]))
	if perr != 0 {
		return fail(perr)
	}
	sb := fs.MkSuperblock(fd.File.Node)
	if merr := sys.Mounts.Mount(target.String(), sb); merr != 0 {
		return fail(merr)
	}
	return ok(0)
}

func umountSyscall(sys *Sys_t, task *sched.Task_t, frame *hart.TrapFrame_t, args [7]uint64) SyscallReturn {
	p, err := currentProcess(sys, task)
	if err != 0 {
		return fail(err)
	}
	target, perr := userPath(p, int(args[0]))
	if perr != 0 {
		return fail(perr)
	}
	if uerr := sys.Mounts.Unmount(target.String()); uerr != 0 {
		return fail(uerr)
	}
	return ok(0)
}

/// chmodSyscall implements original_source's files/syscall.h chmodSyscall:
/// args[0] a user path pointer, args[1] the new permission bits.
func chmodSyscall(sys *Sys_t, task *sched.Task_t, frame *hart.TrapFrame_t, args [7]uint64) SyscallReturn {
	p, err := currentProcess(sys, task)
	if err != 0 {
		return fail(err)
	}
	path, err := userPath(p, int(args[0]))
	if err != 0 {
		return fail(err)
	}
	node, rerr := sys.Resolver.Resolve(sys.RootNode, path)
	if rerr != 0 {
		return fail(rerr)
	}
	if cerr := node.Chmod(int(args[1])); cerr != 0 {
		return fail(cerr)
	}
	return ok(0)
}

/// chownSyscall implements original_source's files/syscall.h chownSyscall:
/// args[0] a user path pointer, args[1]/args[2] the new uid/gid.
func chownSyscall(sys *Sys_t, task *sched.Task_t, frame *hart.TrapFrame_t, args [7]uint64) SyscallReturn {
	p, err := currentProcess(sys, task)
	if err != 0 {
		return fail(err)
	}
	path, err := userPath(p, int(args[0]))
	if err != 0 {
		return fail(err)
	}
	node, rerr := sys.Resolver.Resolve(sys.RootNode, path)
	if rerr != 0 {
		return fail(rerr)
	}
	if cerr := node.Chown(int(args[1]), int(args[2])); cerr != 0 {
		return fail(cerr)
	}
	return ok(0)
}

/// mknodSyscall implements original_source's files/syscall.h mknodSyscall.
/// Like openSyscall's O_CREAT branch above, this vfs layer has no on-disk
/// filesystem driver able to fabricate a brand-new node out of nothing
/// (spec.md's Non-goals exclude a backing store) — mknod is numbered and
/// dispatched so a caller gets a real errno rather than EUNSUP's generic
/// dispatch-table fallback, but it always reports EUNSUP itself, the
/// same contract openSyscall already established for a path that
/// doesn't exist.
func mknodSyscall(sys *Sys_t, task *sched.Task_t, frame *hart.TrapFrame_t, args [7]uint64) SyscallReturn {
	return fail(defs.EUNSUP)
}

/// umaskSyscall implements original_source's files/syscall.h umaskSyscall:
/// args[0] the new process-wide creation mask, returning the mask it
/// replaced, matching umask(2).
func umaskSyscall(sys *Sys_t, task *sched.Task_t, frame *hart.TrapFrame_t, args [7]uint64) SyscallReturn {
	p, err := currentProcess(sys, task)
	if err != 0 {
		return fail(err)
	}
	p.Lock()
	defer p.Unlock()
	old := p.Umask
	p.Umask = int(args[0]) & 0o777
	return ok(old)
}

/// fcntl commands this kernel implements, a small subset of F_*
/// matching fcntl(2)'s fd-duplication and flag-inspection uses; other
/// commands (F_GETLK/F_SETLK record locking, F_GETOWN/F_SETOWN signal
/// routing) have no corresponding kernel facility to query and fail
/// with EINVAL.
const (
	F_DUPFD = 0
	F_GETFD = 1
	F_SETFD = 2
	F_GETFL = 3
	F_SETFL = 4
)

/// fcntlSyscall implements original_source's files/syscall.h
/// fcntlSyscall: args[0] the fd, args[1] the F_* command, args[2] its
/// command-specific argument.
func fcntlSyscall(sys *Sys_t, task *sched.Task_t, frame *hart.TrapFrame_t, args [7]uint64) SyscallReturn {
	p, err := currentProcess(sys, task)
	if err != 0 {
		return fail(err)
	}
	fd, found := p.Fds.Get(int(args[0]))
	if !found {
		return fail(defs.EBADF)
	}
	switch int(args[1]) {
	case F_DUPFD:
		nfd, derr := vfs.Copyfd(fd)
		if derr != 0 {
			return fail(derr)
		}
		min := int(args[2])
		for {
			if _, taken := p.Fds.Get(min); !taken {
				break
			}
			min++
		}
		fdnum, perr := p.Fds.PutNewFileDescriptor(min, nfd, false)
		if perr != 0 {
			return fail(perr)
		}
		return ok(fdnum)
	case F_GETFD:
		if fd.Perms&vfs.FD_CLOEXEC != 0 {
			return ok(1)
		}
		return ok(0)
	case F_SETFD:
		if args[2]&1 != 0 {
			fd.Perms |= vfs.FD_CLOEXEC
		} else {
			fd.Perms &^= vfs.FD_CLOEXEC
		}
		return ok(0)
	case F_GETFL:
		return ok(fd.Perms)
	case F_SETFL:
		fd.File.Lock()
		fd.File.Append = args[2]&uint64(O_APPEND) != 0
		fd.File.Unlock()
		return ok(0)
	default:
		return fail(defs.EINVAL)
	}
}

/// ioctlSyscall implements original_source's files/syscall.h
/// ioctlSyscall: args[0] the fd, args[1]/args[2] the request/argument
/// pair passed straight through to the node's own vfs.Node_i.Ioctl.
func ioctlSyscall(sys *Sys_t, task *sched.Task_t, frame *hart.TrapFrame_t, args [7]uint64) SyscallReturn {
	p, err := currentProcess(sys, task)
	if err != 0 {
		return fail(err)
	}
	fd, found := p.Fds.Get(int(args[0]))
	if !found {
		return fail(defs.EBADF)
	}
	n, ierr := fd.File.Node.Ioctl(int(args[1]), int(args[2]))
	if ierr != 0 {
		return fail(ierr)
	}
	return ok(n)
}

/// isattySyscall implements original_source's files/syscall.h
/// isattySyscall: args[0] the fd. Like the real isatty(3), it reports
/// true only for the console device node and fails with ENOTTY for
/// everything else, rather than guessing from the node's type.
func isattySyscall(sys *Sys_t, task *sched.Task_t, frame *hart.TrapFrame_t, args [7]uint64) SyscallReturn {
	p, err := currentProcess(sys, task)
	if err != 0 {
		return fail(err)
	}
	fd, found := p.Fds.Get(int(args[0]))
	if !found {
		return fail(defs.EBADF)
	}
	st, serr := fd.File.Node.Stat()
	if serr != 0 {
		return fail(serr)
	}
	if st.Dev != defs.D_CONSOLE {
		return fail(defs.ENOTTY)
	}
	return ok(1)
}
