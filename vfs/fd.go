package vfs

import (
	"sync"

	"rvkernel/bpath"
	"rvkernel/defs"
	"rvkernel/limits"
	"rvkernel/ustr"
)

/// File descriptor permission/flag bits, adapted from the teacher's
/// fd.Fd_t constants of the same names.
const (
	FD_READ    = 0x1
	FD_WRITE   = 0x2
	FD_CLOEXEC = 0x4
)

/// Fd_t is one process's open file descriptor: the positioned file it
/// refers to and its permission/close-on-exec flags. Grounded directly
/// on the teacher's fd.Fd_t, substituting the concrete *File_t for the
/// teacher's fdops.Fdops_i field (File_t itself now plays that role).
type Fd_t struct {
	File  *File_t
	Perms int
}

/// Copyfd duplicates fd by reopening its underlying file, the
/// descriptor-duplication primitive fork and dup() both use. Grounded
/// on the teacher's fd.Copyfd.
func Copyfd(fd *Fd_t) (*Fd_t, defs.Err_t) {
	nfd := &Fd_t{}
	*nfd = *fd
	if err := nfd.File.Reopen(); err != 0 {
		return nil, err
	}
	return nfd, 0
}

/// Fdtable_t is a process's sparse fd -> Fd_t map, spec.md §4.E's
/// "per process, a sparse map fd -> (flags, file*)".
type Fdtable_t struct {
	sync.Mutex
	fds map[int]*Fd_t
}

/// MkFdtable returns an empty descriptor table.
func MkFdtable() *Fdtable_t {
	return &Fdtable_t{fds: make(map[int]*Fd_t)}
}

/// PutNewFileDescriptor installs fd at wantfd (or the lowest free slot
/// if wantfd < 0); if replace is set and wantfd is already occupied,
/// the old descriptor is closed first (dup2()-style), matching
/// spec.md §4.E's putNewFileDescriptor contract.
func (ft *Fdtable_t) PutNewFileDescriptor(wantfd int, fd *Fd_t, replace bool) (int, defs.Err_t) {
	if !limits.Syslimit.Fds.Take() {
		return 0, defs.ENFILE
	}
	ft.Lock()
	defer ft.Unlock()

	if wantfd < 0 {
		n := 0
		for {
			if _, ok := ft.fds[n]; !ok {
				break
			}
			n++
		}
		ft.fds[n] = fd
		return n, 0
	}

	if old, ok := ft.fds[wantfd]; ok {
		if !replace {
			limits.Syslimit.Fds.Give()
			return 0, defs.EEXIST
		}
		old.File.Close()
		limits.Syslimit.Fds.Give()
	}
	ft.fds[wantfd] = fd
	return wantfd, 0
}

/// Get returns the descriptor at num, if any.
func (ft *Fdtable_t) Get(num int) (*Fd_t, bool) {
	ft.Lock()
	defer ft.Unlock()
	fd, ok := ft.fds[num]
	return fd, ok
}

/// CloseFileDescriptor closes and removes the descriptor at num,
/// decrementing its file's reference count.
func (ft *Fdtable_t) CloseFileDescriptor(num int) defs.Err_t {
	ft.Lock()
	defer ft.Unlock()
	fd, ok := ft.fds[num]
	if !ok {
		return defs.EBADF
	}
	delete(ft.fds, num)
	limits.Syslimit.Fds.Give()
	return fd.File.Close()
}

/// CloseExecProcessFiles closes every descriptor flagged close-on-exec,
/// called when a process execs a new image.
func (ft *Fdtable_t) CloseExecProcessFiles() {
	ft.Lock()
	var victims []int
	for num, fd := range ft.fds {
		if fd.Perms&FD_CLOEXEC != 0 {
			victims = append(victims, num)
		}
	}
	for _, num := range victims {
		fd := ft.fds[num]
		delete(ft.fds, num)
		fd.File.Close()
		limits.Syslimit.Fds.Give()
	}
	ft.Unlock()
}

/// CloseAll closes every open descriptor, used when a process exits.
func (ft *Fdtable_t) CloseAll() {
	ft.Lock()
	nums := make([]int, 0, len(ft.fds))
	for num := range ft.fds {
		nums = append(nums, num)
	}
	for _, num := range nums {
		fd := ft.fds[num]
		delete(ft.fds, num)
		fd.File.Close()
		limits.Syslimit.Fds.Give()
	}
	ft.Unlock()
}

/// Fork duplicates every descriptor into a fresh table, incrementing
/// each file's reference count, for fork()'s "child inherits all open
/// files" semantics. Each duplicate counts against the system-wide
/// descriptor ceiling the same as a freshly opened one.
func (ft *Fdtable_t) Fork() (*Fdtable_t, defs.Err_t) {
	ft.Lock()
	defer ft.Unlock()
	nt := MkFdtable()
	for num, fd := range ft.fds {
		if !limits.Syslimit.Fds.Take() {
			for _, dup := range nt.fds {
				dup.File.Close()
				limits.Syslimit.Fds.Give()
			}
			return nil, defs.ENFILE
		}
		nfd, err := Copyfd(fd)
		if err != 0 {
			limits.Syslimit.Fds.Give()
			for _, dup := range nt.fds {
				dup.File.Close()
				limits.Syslimit.Fds.Give()
			}
			return nil, err
		}
		nt.fds[num] = nfd
	}
	return nt, 0
}

/// Cwd_t tracks a process's current working directory, grounded
/// directly on the teacher's fd.Cwd_t.
type Cwd_t struct {
	sync.Mutex
	Fd   *Fd_t
	Path ustr.Ustr
}

/// MkRootCwd constructs a Cwd_t rooted at "/".
func MkRootCwd(fd *Fd_t) *Cwd_t {
	return &Cwd_t{Fd: fd, Path: ustr.MkUstrRoot()}
}

/// Fullpath joins cwd with p if p is not already absolute.
func (cwd *Cwd_t) Fullpath(p ustr.Ustr) ustr.Ustr {
	if p.IsAbsolute() {
		return p
	}
	full := append(append(ustr.Ustr{}, cwd.Path...), '/')
	return append(full, p...)
}

/// Canonicalpath resolves path components of p relative to cwd into a
/// normalized absolute path.
func (cwd *Cwd_t) Canonicalpath(p ustr.Ustr) ustr.Ustr {
	return bpath.Canonicalize(cwd.Fullpath(p))
}
