// Package oommsg carries the physical-page-allocator exhaustion signal
// of SPEC_FULL.md module J: when mem's free-list can't satisfy a request,
// Alloc makes a best-effort, non-blocking send of an Oommsg_t on OomCh
// and then fails; the requester is never blocked or resumed. Kept verbatim from
// the teacher's oommsg package — a tiny, already domain-appropriate fit.
package oommsg

/// OomCh is notified when the physical allocator cannot satisfy a request.
var OomCh chan Oommsg_t = make(chan Oommsg_t)

/// Oommsg_t is sent on OomCh when memory is exhausted. Need is the number
/// of pages the failed allocation asked for. mem leaves Resume nil and
/// never waits on it.
type Oommsg_t struct {
	Need   int
	Resume chan bool
}
