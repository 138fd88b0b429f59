// Package fdops declares the small interfaces shared between a file
// descriptor's operations vtable and the user-memory copy helpers (vm
// package) and ring buffer (circbuf package) that move bytes through it.
// Reconstructed from call sites in the teacher's circbuf and vm packages
// (Cb.Copyin takes an Userio_i, vm.Userbuf_t implements it) since fdops
// itself only carried a go.mod in the retrieval pack.
package fdops

import "rvkernel/defs"

/// Userio_i abstracts a source or destination for a byte transfer: a user
/// virtual-memory buffer (vm.Userbuf_t), a vector of them (vm.Useriovec_t),
/// or an in-kernel byte slice standing in for one (vm.Fakeubuf_t).
type Userio_i interface {
	Uioread(dst []uint8) (int, defs.Err_t)
	Uiowrite(src []uint8) (int, defs.Err_t)
	Remain() int
	Totalsz() int
}

/// Fdops_i is the per-open-file operations vtable: the capability set a vfs
/// node's File_t dispatches through, matching spec.md §3's VFS file
/// operations plus the Reopen/Close refcount pair used for dup()/close().
type Fdops_i interface {
	Read(dst Userio_i) (int, defs.Err_t)
	Write(src Userio_i) (int, defs.Err_t)
	Seek(off int, whence int) (int, defs.Err_t)
	Reopen() defs.Err_t
	Close() defs.Err_t
	Pathi() interface{}
}
