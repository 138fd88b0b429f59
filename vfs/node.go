// Package vfs implements spec.md §4.E's two-layer polymorphism: a Node
// (the on-disk/in-memory object capability set) and a File (a
// positioned handle onto one), plus path resolution, the per-process
// descriptor table, and the mount crossing logic. Grounded on the
// teacher's fd/fd.go (`Fd_t`, `Cwd_t`, `Fullpath`/`Canonicalpath`,
// read in full) for the descriptor/cwd half, and on `fs.MountTable_t`
// (already adapted in this repo from the teacher's `fs.Superblock_t`)
// for the mount half.
package vfs

import (
	"sync"

	"rvkernel/defs"
	"rvkernel/fdops"
	"rvkernel/ustr"
)

/// Stat_t is the metadata a stat/fstat syscall returns, supplementing
/// spec.md's distillation per SPEC_FULL.md's note that
/// original_source's vfs node header implies one, grounded on the
/// teacher's stat/stat.go field set.
type Stat_t struct {
	Dev   int
	Ino   int
	Mode  int
	Size  int
	Nlink int
	Uid   int
	Gid   int
}

/// NodeType distinguishes the handful of node kinds path resolution and
/// open() must special-case.
type NodeType int

const (
	NodeFile NodeType = iota
	NodeDir
	NodeSymlink
	NodeDevice
)

/// Node_i is the capability set every filesystem object — regular
/// file, directory, symlink, device — exposes to path resolution and
/// to a File_t's read/write path. A superset of fs.Node_i (Close),
/// satisfying it structurally.
type Node_i interface {
	/// Type reports what kind of node this is.
	Type() NodeType
	/// Lookup resolves a single path component against this node,
	/// which must be a directory.
	Lookup(name ustr.Ustr) (Node_i, defs.Err_t)
	/// ReadAt/WriteAt transfer bytes at a fixed offset, the node's
	/// half of File_t's positioned Read/Write.
	ReadAt(dst fdops.Userio_i, offset int) (int, defs.Err_t)
	WriteAt(src fdops.Userio_i, offset int) (int, defs.Err_t)
	/// ReaddirAt returns the directory entry starting at offset, and
	/// the offset of the next entry (or -1 at end of directory).
	ReaddirAt(offset int) (ustr.Ustr, int, defs.Err_t)
	/// Link creates name in this directory pointing at target.
	Link(name ustr.Ustr, target Node_i) defs.Err_t
	/// Unlink removes name from this directory.
	Unlink(name ustr.Ustr) defs.Err_t
	/// Trunc resizes a regular file.
	Trunc(newlen int) defs.Err_t
	/// Ioctl passes an implementation-defined request/argument to a
	/// device node.
	Ioctl(req int, arg int) (int, defs.Err_t)
	/// Chmod replaces the node's permission bits.
	Chmod(mode int) defs.Err_t
	/// Chown replaces the node's owning uid/gid.
	Chown(uid, gid int) defs.Err_t
	/// IsReady reports whether a read or write would make progress
	/// without blocking (a device or pipe's readiness check).
	IsReady(write bool) bool
	/// Stat returns the node's metadata.
	Stat() (Stat_t, defs.Err_t)
	/// Readlink returns a symlink's target.
	Readlink() (ustr.Ustr, defs.Err_t)

	/// Copy returns a new reference to the same underlying node,
	/// incrementing its refcount — used by fork's descriptor-table
	/// duplication and by mount crossing.
	Copy() Node_i
	/// Close drops a reference taken by Copy or the node's creator.
	Close() defs.Err_t
}

/// File_t wraps a Node_i with a read/write cursor, translating
/// unpositioned Read/Write into the node's ReadAt/WriteAt under a
/// per-file lock — spec.md §4.E's "file" half of the two-layer model.
type File_t struct {
	sync.Mutex
	Node   Node_i
	offset int
	Append bool
}

/// MkFile wraps node in a freshly positioned File_t.
func MkFile(node Node_i) *File_t {
	return &File_t{Node: node}
}

/// Read transfers into dst starting at the file's current offset,
/// advancing it by however much was transferred.
func (f *File_t) Read(dst fdops.Userio_i) (int, defs.Err_t) {
	f.Lock()
	defer f.Unlock()
	n, err := f.Node.ReadAt(dst, f.offset)
	if err != 0 {
		return 0, err
	}
	f.offset += n
	return n, 0
}

/// Write transfers from src at the file's current offset (or the
/// node's current end if Append is set), advancing the offset.
func (f *File_t) Write(src fdops.Userio_i) (int, defs.Err_t) {
	f.Lock()
	defer f.Unlock()
	off := f.offset
	if f.Append {
		st, err := f.Node.Stat()
		if err != 0 {
			return 0, err
		}
		off = st.Size
	}
	n, err := f.Node.WriteAt(src, off)
	if err != 0 {
		return 0, err
	}
	f.offset = off + n
	return n, 0
}

/// Seek repositions the file's cursor: whence 0 (absolute), 1
/// (relative to current), 2 (relative to end of file).
func (f *File_t) Seek(off int, whence int) (int, defs.Err_t) {
	f.Lock()
	defer f.Unlock()
	switch whence {
	case 0:
		if off < 0 {
			return 0, defs.EINVAL
		}
		f.offset = off
	case 1:
		if f.offset+off < 0 {
			return 0, defs.EINVAL
		}
		f.offset += off
	case 2:
		st, err := f.Node.Stat()
		if err != 0 {
			return 0, err
		}
		if st.Size+off < 0 {
			return 0, defs.EINVAL
		}
		f.offset = st.Size + off
	default:
		return 0, defs.EINVAL
	}
	return f.offset, 0
}

/// Reopen duplicates the underlying node reference for a new
/// descriptor sharing this file's position (dup()/dup2()-style), per
/// the fdops.Fdops_i contract.
func (f *File_t) Reopen() defs.Err_t {
	f.Lock()
	defer f.Unlock()
	f.Node = f.Node.Copy()
	return 0
}

/// Close releases the file's reference to its node.
func (f *File_t) Close() defs.Err_t {
	f.Lock()
	defer f.Unlock()
	return f.Node.Close()
}

/// Pathi satisfies fdops.Fdops_i; vfs files are identified by their
/// node, not a raw path.
func (f *File_t) Pathi() interface{} {
	return f.Node
}
