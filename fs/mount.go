// Package fs provides the mount-table abstraction vfs path resolution
// crosses when it walks onto a mount point (spec.md §4.E, SPEC_FULL.md
// module E). Grounded on the teacher's fs.Superblock_t, which exposed a
// disk-backed filesystem's on-disk layout fields (log length, inode
// bitmap location, free-block map) read and written through raw byte
// offsets into a buffer page. This kernel's vfs has no on-disk format of
// its own — the disk/minix filesystem driver (ufs) and its mkfs tool are
// out of scope (spec.md §1 Non-goals name only the in-memory structures)
// — so Superblock_t here is an in-memory capability record: the node a
// mount point resolves to, plus the refcounting the teacher's version
// left to its callers.
package fs

import (
	"sync"

	"rvkernel/defs"
)

/// Node_i is the minimal capability a mounted filesystem's root node must
/// satisfy to be addressable from vfs path resolution. It is declared
/// here rather than imported from vfs to avoid a fs<->vfs import cycle;
/// vfs.Node_i is defined as a superset (it has the same Close method) and
/// satisfies this interface.
type Node_i interface {
	Close() defs.Err_t
}

/// Superblock_t represents one mounted filesystem: its root node and how
/// many path resolutions currently hold a reference to it. A filesystem
/// cannot be unmounted while Refs > 1 (the mount's own reference, taken
/// by MkSuperblock, counts as one).
type Superblock_t struct {
	sync.Mutex
	Root Node_i
	Refs int
}

/// MkSuperblock wraps root as a freshly mounted filesystem with one
/// reference held by the mount itself.
func MkSuperblock(root Node_i) *Superblock_t {
	return &Superblock_t{Root: root, Refs: 1}
}

/// Ref takes a reference on the mount, returned by path resolution
/// whenever it crosses onto this filesystem.
func (sb *Superblock_t) Ref() {
	sb.Lock()
	sb.Refs++
	sb.Unlock()
}

/// Unref releases a reference taken by Ref. It returns true once the
/// count reaches zero, at which point the caller may safely unmount.
func (sb *Superblock_t) Unref() bool {
	sb.Lock()
	defer sb.Unlock()
	sb.Refs--
	if sb.Refs < 0 {
		panic("superblock refcount underflow")
	}
	return sb.Refs == 0
}

/// MountTable_t maps a canonicalized mount-point path to the filesystem
/// mounted there. Lookups hold the table's lock only long enough to find
/// the entry; the mount's own lock protects its refcount.
type MountTable_t struct {
	sync.RWMutex
	mounts map[string]*Superblock_t
}

/// MkMountTable returns an empty mount table. Path resolution starts from
/// the root node its caller passes and never looks up a "/" entry, so
/// nothing needs to be mounted there.
func MkMountTable() *MountTable_t {
	return &MountTable_t{mounts: make(map[string]*Superblock_t)}
}

/// Mount registers sb as the filesystem mounted at path. It returns
/// EINVAL if something is already mounted there.
func (mt *MountTable_t) Mount(path string, sb *Superblock_t) defs.Err_t {
	mt.Lock()
	defer mt.Unlock()
	if _, ok := mt.mounts[path]; ok {
		return defs.EINVAL
	}
	mt.mounts[path] = sb
	return 0
}

/// Lookup returns the filesystem mounted at path, if any.
func (mt *MountTable_t) Lookup(path string) (*Superblock_t, bool) {
	mt.RLock()
	defer mt.RUnlock()
	sb, ok := mt.mounts[path]
	return sb, ok
}

/// Unmount removes path's mount entry. It returns EBUSY if the mount
/// still has outstanding references.
func (mt *MountTable_t) Unmount(path string) defs.Err_t {
	mt.Lock()
	defer mt.Unlock()
	sb, ok := mt.mounts[path]
	if !ok {
		return defs.EINVAL
	}
	sb.Lock()
	busy := sb.Refs > 1
	sb.Unlock()
	if busy {
		return defs.EBUSY
	}
	delete(mt.mounts, path)
	return 0
}
