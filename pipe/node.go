package pipe

import (
	"rvkernel/defs"
	"rvkernel/fdops"
	"rvkernel/limits"
	"rvkernel/tinfo"
	"rvkernel/ustr"
	"rvkernel/vfs"
)

/// Node_t adapts a SharedData_t's read or write end to vfs.Node_i, so a
/// pipe's two fds can sit in a process's descriptor table as an ordinary
/// vfs.File_t the same way a regular file or device node does. Offsets
/// are meaningless for a pipe (spec.md §4.F has no seek operation), so
/// ReadAt/WriteAt ignore the offset File_t threads through and always
/// block; syscall/file.go bypasses File_t for the actual read/write
/// syscalls so it can thread a task's tinfo.Note_t through for EINTR,
/// calling ReadNote/WriteNote directly instead.
type Node_t struct {
	sd      *SharedData_t
	isWrite bool
}

/// MkNode wraps sd's read or write end as a vfs.Node_i.
func MkNode(sd *SharedData_t, isWrite bool) *Node_t {
	return &Node_t{sd: sd, isWrite: isWrite}
}

func (n *Node_t) Type() vfs.NodeType { return vfs.NodeDevice }

func (n *Node_t) Lookup(name ustr.Ustr) (vfs.Node_i, defs.Err_t) {
	return nil, defs.ENOTDIR
}

func (n *Node_t) ReadAt(dst fdops.Userio_i, offset int) (int, defs.Err_t) {
	return n.ReadNote(dst, true, nil)
}

func (n *Node_t) WriteAt(src fdops.Userio_i, offset int) (int, defs.Err_t) {
	return n.WriteNote(src, true, nil)
}

/// ReadNote/WriteNote are the note-aware entry points syscall/file.go
/// calls directly, bypassing vfs.File_t's offset bookkeeping.
func (n *Node_t) ReadNote(dst fdops.Userio_i, block bool, note *tinfo.Note_t) (int, defs.Err_t) {
	if n.isWrite {
		return 0, defs.EINVAL
	}
	return n.sd.Read(dst, block, note)
}

func (n *Node_t) WriteNote(src fdops.Userio_i, block bool, note *tinfo.Note_t) (int, defs.Err_t) {
	if !n.isWrite {
		return 0, defs.EINVAL
	}
	return n.sd.Write(src, block, note)
}

func (n *Node_t) ReaddirAt(offset int) (ustr.Ustr, int, defs.Err_t) {
	return nil, -1, defs.ENOTDIR
}

func (n *Node_t) Link(name ustr.Ustr, target vfs.Node_i) defs.Err_t { return defs.EUNSUP }
func (n *Node_t) Unlink(name ustr.Ustr) defs.Err_t                  { return defs.EUNSUP }
func (n *Node_t) Trunc(newlen int) defs.Err_t                       { return defs.EINVAL }
func (n *Node_t) Ioctl(req int, arg int) (int, defs.Err_t)          { return 0, defs.EUNSUP }

/// Chmod/Chown mutate the shared pipe's metadata, matching fchmod(2)/
/// fchown(2)'s real-world permission to retarget a pipe's owner/mode.
func (n *Node_t) Chmod(mode int) defs.Err_t {
	n.sd.Lock()
	defer n.sd.Unlock()
	n.sd.mode = mode & 0o777
	return 0
}

func (n *Node_t) Chown(uid, gid int) defs.Err_t {
	n.sd.Lock()
	defer n.sd.Unlock()
	n.sd.uid = uid
	n.sd.gid = gid
	return 0
}

func (n *Node_t) IsReady(write bool) bool {
	n.sd.Lock()
	defer n.sd.Unlock()
	if write {
		return !n.sd.cb.Full() || n.sd.refCount-n.sd.writeCount == 0
	}
	return !n.sd.cb.Empty() || n.sd.writeCount == 0
}

func (n *Node_t) Stat() (vfs.Stat_t, defs.Err_t) {
	n.sd.Lock()
	defer n.sd.Unlock()
	return vfs.Stat_t{Dev: defs.D_PIPE, Mode: n.sd.mode, Nlink: 1, Uid: n.sd.uid, Gid: n.sd.gid}, 0
}

func (n *Node_t) Readlink() (ustr.Ustr, defs.Err_t) {
	return nil, defs.EINVAL
}

/// Copy takes another reference on the shared pipe (dup()/fork()), per
/// spec.md §4.F's separate ref_count/write_count accounting.
func (n *Node_t) Copy() vfs.Node_i {
	n.sd.AddRef(n.isWrite)
	return &Node_t{sd: n.sd, isWrite: n.isWrite}
}

/// Close drops this end's reference, waking the other side if it was
/// the last reader or writer.
func (n *Node_t) Close() defs.Err_t {
	if last := n.sd.Release(n.isWrite); last {
		limits.Syslimit.Pipes.Give()
	}
	return 0
}
