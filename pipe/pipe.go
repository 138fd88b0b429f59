// Package pipe implements the 512-byte ring-buffer IPC channel of
// spec.md §4.F. Grounded on circbuf.Circbuf_t (the teacher's single-
// daemon, non-concurrent ring buffer, generalized here into a
// lock-guarded, waiter-queue-aware SharedData_t) and on tinfo.Note_t for
// the interruptible-blocking convention the rest of the kernel uses
// (sched's Task_t/Note_t pair). circbuf's own Copyin/Copyout wraparound
// logic is reused unchanged; what pipe adds on top is the blocking
// waiter list and cross-task wakeup circbuf itself never needed.
package pipe

import (
	"sync"
	"time"

	"rvkernel/circbuf"
	"rvkernel/defs"
	"rvkernel/fdops"
	"rvkernel/res"
	"rvkernel/tinfo"
)

/// pipeBufSize is spec.md §4.F's fixed ring-buffer size.
const pipeBufSize = 512

/// interruptPollInterval bounds how long a blocked read/write waits
/// before re-checking its task's Note_t for an interrupting signal, since
/// this kernel's note check is poll-based rather than a wakeup source of
/// its own (see tinfo.Note_t's package doc).
const interruptPollInterval = 10 * time.Millisecond

func pollInterval() <-chan time.Time {
	return time.After(interruptPollInterval)
}

/// WaitingPipeOperation is one task parked on SharedData_t's read or
/// write waiter list until the complementary side can make its pending
/// transfer progress, per spec.md §4.F's executeOperation description.
/// Unlike the teacher's circbuf (which had no concurrent callers to wake
/// at all), a parked operation here doesn't carry its own partial-
/// transfer state: on wakeup executeOperation simply re-attempts the
/// whole transfer against the now-changed ring buffer, so only the
/// interruption hook and the wakeup signal need to survive the wait.
type WaitingPipeOperation struct {
	note   *tinfo.Note_t
	wakeup chan struct{}
	next   *WaitingPipeOperation
}

/// SharedData_t is the ring buffer and waiter lists shared by a pipe's
/// read and write ends. refCount counts all open handles (read + write);
/// writeCount counts only write handles, so a read past end-of-data can
/// distinguish "no data yet" from "no writer will ever add more" per
/// spec.md §4.F's EOF rule.
type SharedData_t struct {
	sync.Mutex
	cb         circbuf.Circbuf_t
	refCount   int
	writeCount int
	readers    *WaitingPipeOperation /// waiting for data to arrive
	readTail   *WaitingPipeOperation
	writers    *WaitingPipeOperation /// waiting for space to free up
	writeTail  *WaitingPipeOperation

	/// mode/uid/gid are the pipe's fchmod(2)/fchown(2) metadata, shared by
	/// both ends and every dup()'d descriptor onto them, since a pipe (like
	/// a FIFO) is one object regardless of how many fds name it.
	mode int
	uid  int
	gid  int
}

/// defaultPipeMode matches mkfifo(2)'s usual owner-rw default in the
/// absence of a creating process's umask to apply (pipe(2) itself, unlike
/// mkfifo, takes no mode argument).
const defaultPipeMode = 0o600

/// MkSharedData returns a new pipe with one reader and one writer handle
/// already accounted for, matching pipe(2)'s two-fd return.
func MkSharedData() *SharedData_t {
	sd := &SharedData_t{refCount: 2, writeCount: 1, mode: defaultPipeMode}
	sd.cb.Cb_init(pipeBufSize)
	return sd
}

/// AddRef records another open handle to the pipe; isWriter additionally
/// bumps writeCount.
func (sd *SharedData_t) AddRef(isWriter bool) {
	sd.Lock()
	sd.refCount++
	if isWriter {
		sd.writeCount++
	}
	sd.Unlock()
}

/// Release drops a handle. isWriter must match the value passed to the
/// AddRef (or the pipe's creation) that this call balances. Once
/// refCount reaches zero the last closer is responsible for discarding
/// the SharedData_t.
func (sd *SharedData_t) Release(isWriter bool) (last bool) {
	sd.Lock()
	defer sd.Unlock()
	sd.refCount--
	if isWriter {
		sd.writeCount--
		if sd.writeCount == 0 {
			sd.wakeAllLocked(&sd.readers, &sd.readTail)
		}
	}
	if sd.refCount == 0 {
		sd.wakeAllLocked(&sd.readers, &sd.readTail)
		sd.wakeAllLocked(&sd.writers, &sd.writeTail)
		return true
	}
	return false
}

// wakeAllLocked closes every waiter's wakeup channel on the named list
// and empties it, used when a side-closing event (last writer gone, last
// handle gone) means no further progress is possible and every blocked
// task must be let back in to observe that.
func (sd *SharedData_t) wakeAllLocked(head, tail **WaitingPipeOperation) {
	for w := *head; w != nil; w = w.next {
		close(w.wakeup)
	}
	*head = nil
	*tail = nil
}

// enqueueLocked appends w to the named waiter list.
func enqueueLocked(head, tail **WaitingPipeOperation, w *WaitingPipeOperation) {
	if *head == nil {
		*head = w
	} else {
		(*tail).next = w
	}
	*tail = w
}

// popLocked removes w's node from the named waiter list, given the node
// preceding it (or nil if w is the head).
func popLocked(head, tail **WaitingPipeOperation, prev, w *WaitingPipeOperation) {
	if prev == nil {
		*head = w.next
	} else {
		prev.next = w.next
	}
	if *tail == w {
		*tail = prev
	}
	w.next = nil
}

// removeWaiterLocked scans the named waiter list for w and pops it if still
// present. w may already have been removed by a concurrent wakeOneLocked or
// wakeAllLocked (the two races are resolved by this being a no-op in that
// case), so this must never assume w is still linked in.
func removeWaiterLocked(head, tail **WaitingPipeOperation, w *WaitingPipeOperation) {
	var prev *WaitingPipeOperation
	for cur := *head; cur != nil; cur = cur.next {
		if cur == w {
			popLocked(head, tail, prev, cur)
			return
		}
		prev = cur
	}
}

// wakeOneLocked wakes the oldest waiter on the named list whose pending
// transfer can now make progress against cb (spec.md §4.F: "wake the
// oldest waiter on the opposite side whose pending transfer can now make
// progress"), removing it from the list. It returns whether a waiter was
// woken.
func (sd *SharedData_t) wakeOneLocked(head, tail **WaitingPipeOperation, forWrite bool) bool {
	var prev *WaitingPipeOperation
	for w := *head; w != nil; w = w.next {
		canProgress := false
		if forWrite {
			canProgress = !sd.cb.Full()
		} else {
			canProgress = !sd.cb.Empty() || sd.writeCount == 0
		}
		if canProgress {
			popLocked(head, tail, prev, w)
			close(w.wakeup)
			return true
		}
		prev = w
	}
	return false
}

/// Read transfers up to dst.Remain() bytes from the pipe into dst,
/// blocking (if block is set) until at least one byte is available or
/// the write end is fully closed. note, if non-nil, is checked for an
/// interrupting signal on every wait iteration, per tinfo.Note_t's
/// convention.
func (sd *SharedData_t) Read(dst fdops.Userio_i, block bool, note *tinfo.Note_t) (int, defs.Err_t) {
	return sd.executeOperation(dst, false, block, note)
}

/// Write transfers up to src.Remain() bytes from src into the pipe,
/// blocking (if block is set) until at least one byte of space is free.
/// It returns EPIPE if every reader has gone away.
func (sd *SharedData_t) Write(src fdops.Userio_i, block bool, note *tinfo.Note_t) (int, defs.Err_t) {
	return sd.executeOperation(src, true, block, note)
}

func (sd *SharedData_t) executeOperation(data fdops.Userio_i, write bool, block bool, note *tinfo.Note_t) (int, defs.Err_t) {
	budget := res.Default()
	for {
		if !res.Resadd_noblock(budget, res.PipeTransfer) {
			return 0, defs.ENOHEAP
		}
		sd.Lock()
		if write && sd.refCount-sd.writeCount == 0 {
			sd.Unlock()
			return 0, defs.EPIPE
		}

		n, err := sd.transferLocked(data, write)
		if err != 0 {
			sd.Unlock()
			return n, err
		}
		if n > 0 {
			if write {
				sd.wakeOneLocked(&sd.readers, &sd.readTail, false)
			} else {
				sd.wakeOneLocked(&sd.writers, &sd.writeTail, true)
			}
		}
		if n > 0 || !write && sd.writeCount == 0 {
			sd.Unlock()
			return n, 0
		}
		if !block {
			sd.Unlock()
			if n == 0 {
				return 0, defs.EAGAIN
			}
			return n, 0
		}

		w := &WaitingPipeOperation{note: note, wakeup: make(chan struct{})}
		if write {
			enqueueLocked(&sd.writers, &sd.writeTail, w)
		} else {
			enqueueLocked(&sd.readers, &sd.readTail, w)
		}
		sd.Unlock()

		if !sd.park(w, note) {
			sd.Lock()
			if write {
				removeWaiterLocked(&sd.writers, &sd.writeTail, w)
			} else {
				removeWaiterLocked(&sd.readers, &sd.readTail, w)
			}
			sd.Unlock()
			return 0, defs.EINTR
		}
	}
}

// transferLocked moves as much of data as the ring buffer currently
// allows, in the direction write indicates. The caller holds sd's lock.
func (sd *SharedData_t) transferLocked(data fdops.Userio_i, write bool) (int, defs.Err_t) {
	if write {
		return sd.cb.Copyin(data)
	}
	return sd.cb.Copyout(data)
}

// park blocks the calling goroutine until w is woken (its transfer can
// proceed, or the pipe's state changed enough that it never will) or
// note reports an interrupting signal. It returns false on interruption, in
// which case the caller must treat the operation as failed with EINTR and
// must remove w from whichever waiter list it was enqueued on (via
// removeWaiterLocked) before returning, so a stale or already-woken waiter
// is never selected again.
func (sd *SharedData_t) park(w *WaitingPipeOperation, note *tinfo.Note_t) bool {
	if note == nil {
		<-w.wakeup
		return true
	}
	for {
		select {
		case <-w.wakeup:
			return true
		case <-pollInterval():
			if _, killed := note.Check(); killed {
				return false
			}
		}
	}
}
