// Package circbuf implements the ring buffer pipe builds its shared
// data region on top of (spec.md §4.F, SPEC_FULL.md module F). Grounded
// on the teacher's circbuf.Circbuf_t, which backed both pipes and TCP
// sockets with a page-allocator-managed buffer so the same bytes could
// be handed to the network stack without copying. This kernel's pipes
// are a small fixed-size region (spec.md's 512-byte buffer) that lives
// for exactly as long as the pipe does, so the page-allocator-backed
// lazy init (Cb_init_phys/Refup/Refdown) is dropped in favor of a plain
// make([]byte, n) — the ring-index math (Copyin/Copyout,
// Advhead/Advtail) is kept unchanged, since that's the part
// actually worth learning from.
package circbuf

import (
	"rvkernel/defs"
	"rvkernel/fdops"
)

/// Circbuf_t is a single-reader/single-writer circular byte buffer. It is
/// not safe for concurrent use by itself; pipe.SharedData_t serializes access
/// with its own lock.
type Circbuf_t struct {
	Buf   []uint8 /// underlying buffer backing memory
	bufsz int     /// buffer capacity in bytes
	head  int     /// write position
	tail  int     /// read position
}

/// Bufsz returns the configured buffer size.
func (cb *Circbuf_t) Bufsz() int {
	return cb.bufsz
}

/// Cb_init allocates a backing buffer of sz bytes.
func (cb *Circbuf_t) Cb_init(sz int) defs.Err_t {
	if sz <= 0 {
		panic("bad circbuf size")
	}
	cb.Buf = make([]uint8, sz)
	cb.bufsz = sz
	cb.head, cb.tail = 0, 0
	return 0
}

/// Full returns true when the buffer cannot accept more data.
func (cb *Circbuf_t) Full() bool {
	return cb.head-cb.tail == cb.bufsz
}

/// Empty reports whether the buffer contains any data.
func (cb *Circbuf_t) Empty() bool {
	return cb.head == cb.tail
}

/// Left returns the remaining capacity in bytes.
func (cb *Circbuf_t) Left() int {
	return cb.bufsz - (cb.head - cb.tail)
}

/// Used returns the current number of bytes in the buffer.
func (cb *Circbuf_t) Used() int {
	return cb.head - cb.tail
}

/// Copyin reads from src into the circular buffer.
func (cb *Circbuf_t) Copyin(src fdops.Userio_i) (int, defs.Err_t) {
	if cb.Full() {
		return 0, 0
	}
	hi := cb.head % cb.bufsz
	ti := cb.tail % cb.bufsz
	c := 0
	if ti <= hi {
		dst := cb.Buf[hi:]
		wrote, err := src.Uioread(dst)
		if err != 0 {
			return 0, err
		}
		if wrote != len(dst) {
			cb.head += wrote
			return wrote, 0
		}
		c += wrote
		hi = (cb.head + wrote) % cb.bufsz
	}
	if hi > ti {
		panic("wut?")
	}
	dst := cb.Buf[hi:ti]
	wrote, err := src.Uioread(dst)
	c += wrote
	if err != 0 {
		return c, err
	}
	cb.head += c
	return c, 0
}

/// Copyout writes the entire buffer contents to dst.
func (cb *Circbuf_t) Copyout(dst fdops.Userio_i) (int, defs.Err_t) {
	return cb.Copyout_n(dst, 0)
}

/// Copyout_n writes up to max bytes of the buffer to dst. max == 0 means
/// no limit.
func (cb *Circbuf_t) Copyout_n(dst fdops.Userio_i, max int) (int, defs.Err_t) {
	if cb.Empty() {
		return 0, 0
	}
	hi := cb.head % cb.bufsz
	ti := cb.tail % cb.bufsz
	c := 0
	if hi <= ti {
		src := cb.Buf[ti:]
		if max != 0 && max < len(src) {
			src = src[:max]
		}
		wrote, err := dst.Uiowrite(src)
		if err != 0 {
			return 0, err
		}
		if wrote != len(src) || wrote == max {
			cb.tail += wrote
			return wrote, 0
		}
		c += wrote
		if max != 0 {
			max -= c
		}
		ti = (cb.tail + wrote) % cb.bufsz
	}
	if ti > hi {
		panic("wut?")
	}
	src := cb.Buf[ti:hi]
	if max != 0 && max < len(src) {
		src = src[:max]
	}
	wrote, err := dst.Uiowrite(src)
	if err != 0 {
		return 0, err
	}
	c += wrote
	cb.tail += c
	return c, 0
}

/// Advhead advances the head index, making sz freshly written bytes
/// available for reading.
func (cb *Circbuf_t) Advhead(sz int) {
	if cb.Full() || cb.Left() < sz {
		panic("advancing full cb")
	}
	cb.head += sz
}

/// Advtail advances the tail index after sz bytes have been consumed.
func (cb *Circbuf_t) Advtail(sz int) {
	if sz != 0 && (cb.Empty() || cb.Used() < sz) {
		panic("advancing empty cb")
	}
	cb.tail += sz
}
