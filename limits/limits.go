// Package limits tracks the system-wide resource ceilings proc and vfs
// check before handing out a new process, pipe, or file
// descriptor (spec.md §5's "bounded kernel resources"). Grounded on the
// teacher's limits.Syslimit_t; dropped the networking-only fields
// (Futexes, Arpents, Routes, Tcpsegs, Socks) since sockets and ARP/route
// tables are outside this kernel's scope (spec.md §1 Non-goals), and
// added Fds for the per-system open-file-descriptor ceiling this
// kernel's vfs module needs that the teacher folded into Socks.
package limits

import (
	"sync/atomic"
	"unsafe"
)

/// Sysatomic_t is a numeric limit that can be atomically given and taken.
type Sysatomic_t int64

/// Syslimit_t tracks system-wide resource limits.
type Syslimit_t struct {
	/// Sysprocs bounds the total number of live processes.
	Sysprocs Sysatomic_t
	/// Vnodes is a ceiling on live vfs nodes. It has a default, but no
	/// caller takes or gives it, so vfs node creation is not bounded by it.
	Vnodes Sysatomic_t
	/// Pipes bounds the total number of live pipes.
	Pipes Sysatomic_t
	/// Fds bounds the total number of open file descriptors system-wide.
	Fds Sysatomic_t
}

/// Syslimit holds the process-wide configured limits.
var Syslimit *Syslimit_t = MkSysLimit()

/// MkSysLimit returns a pointer to the default set of limits.
func MkSysLimit() *Syslimit_t {
	return &Syslimit_t{
		Sysprocs: 1e4,
		Vnodes:   20000,
		Pipes:    1e4,
		Fds:      1e5,
	}
}

func (s *Sysatomic_t) _aptr() *int64 {
	return (*int64)(unsafe.Pointer(s))
}

/// Given increases the limit by the provided amount.
func (s *Sysatomic_t) Given(_n uint) {
	n := int64(_n)
	atomic.AddInt64(s._aptr(), n)
}

/// Taken tries to decrement the limit by the provided amount, returning
/// true on success and leaving the limit unchanged on failure.
func (s *Sysatomic_t) Taken(_n uint) bool {
	n := int64(_n)
	g := atomic.AddInt64(s._aptr(), -n)
	if g >= 0 {
		return true
	}
	atomic.AddInt64(s._aptr(), n)
	return false
}

/// Take decrements the limit by one and reports whether it succeeded.
func (s *Sysatomic_t) Take() bool {
	return s.Taken(1)
}

/// Give increments the limit by one.
func (s *Sysatomic_t) Give() {
	s.Given(1)
}
