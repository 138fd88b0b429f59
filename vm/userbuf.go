package vm

import (
	"rvkernel/defs"
	"rvkernel/res"
)

/// Userbuf_t is a positioned, bounded window onto a contiguous run of
/// user memory, implementing fdops.Userio_i so read/write syscalls can
/// hand it to a Vnode or Circbuf_t without that code knowing it's
/// talking to user space. Grounded on the teacher's vm.Userbuf_t
/// (vm/userbuf.go); the struct shape and Remain/Totalsz/Uioread/Uiowrite
/// behavior are carried over unchanged, with K2user/User2k calls
/// redirected at the new Vm_t and the x86 remark about direct-map
/// addressing dropped since Userdmap8_inner already hides that.
type Userbuf_t struct {
	userva int
	len    int
	off    int
	as     *Vm_t
}

/// Ub_init points a Userbuf_t at [userva, userva+len) in as's address
/// space.
func (ub *Userbuf_t) Ub_init(as *Vm_t, userva, len int) {
	if len < 0 {
		panic("negative length")
	}
	ub.userva = userva
	ub.len = len
	ub.off = 0
	ub.as = as
}

func (ub *Userbuf_t) Remain() int {
	return ub.len - ub.off
}

func (ub *Userbuf_t) Totalsz() int {
	return ub.len
}

/// Uioread copies from user memory into dst, advancing the cursor.
func (ub *Userbuf_t) Uioread(dst []uint8) (int, defs.Err_t) {
	return ub._tx(dst, false)
}

/// Uiowrite copies from src into user memory, advancing the cursor.
func (ub *Userbuf_t) Uiowrite(src []uint8) (int, defs.Err_t) {
	return ub._tx(src, true)
}

// _tx moves min(len(buf), Remain()) bytes between buf and the user
// region, in the direction given by towrite.
func (ub *Userbuf_t) _tx(buf []uint8, towrite bool) (int, defs.Err_t) {
	if ub.Remain() == 0 && len(buf) != 0 {
		return 0, 0
	}
	sz := len(buf)
	if sz > ub.Remain() {
		sz = ub.Remain()
	}
	ub.as.Lock_pmap()
	defer ub.as.Unlock_pmap()

	b := res.Default()
	did := 0
	for did != sz {
		if !res.Resadd_noblock(b, res.UserbufTx) {
			return did, defs.ENOHEAP
		}
		va := ub.userva + ub.off
		ubuf, err := ub.as.Userdmap8_inner(va, towrite)
		if err != 0 {
			return did, err
		}
		var c int
		if towrite {
			c = copy(ubuf, buf[did:sz])
		} else {
			c = copy(buf[did:sz], ubuf)
		}
		did += c
		ub.off += c
	}
	return did, 0
}

/// Useriovec_t gathers several Userbuf_t windows (a user readv/writev
/// vector) behind a single Userio_i, draining each window in turn.
/// Grounded on the teacher's vm.Useriovec_t.
type Useriovec_t struct {
	iovs []Userbuf_t
}

/// Iov_init builds a Useriovec_t from a user-supplied {base, len} array
/// read out of user memory at iovaddr.
func (usersb *Useriovec_t) Iov_init(as *Vm_t, iovaddr int, niovs int) defs.Err_t {
	if niovs > 256 {
		return defs.EINVAL
	}
	usersb.iovs = make([]Userbuf_t, niovs)
	b := res.Default()
	for i := 0; i < niovs; i++ {
		if !res.Resadd_noblock(b, res.UseriovecInit) {
			return defs.ENOHEAP
		}
		elmsz := 16
		base, err := as.Userreadn(iovaddr+i*elmsz, 8)
		if err != 0 {
			return err
		}
		ln, err := as.Userreadn(iovaddr+i*elmsz+8, 8)
		if err != 0 {
			return err
		}
		usersb.iovs[i].Ub_init(as, base, ln)
	}
	return 0
}

func (usersb *Useriovec_t) Remain() int {
	c := 0
	for i := range usersb.iovs {
		c += usersb.iovs[i].Remain()
	}
	return c
}

func (usersb *Useriovec_t) Totalsz() int {
	c := 0
	for i := range usersb.iovs {
		c += usersb.iovs[i].Totalsz()
	}
	return c
}

func (usersb *Useriovec_t) Uioread(dst []uint8) (int, defs.Err_t) {
	return usersb._tx(dst, false)
}

func (usersb *Useriovec_t) Uiowrite(src []uint8) (int, defs.Err_t) {
	return usersb._tx(src, true)
}

func (usersb *Useriovec_t) _tx(buf []uint8, towrite bool) (int, defs.Err_t) {
	i := 0
	did := 0
	for did != len(buf) && i < len(usersb.iovs) {
		ub := &usersb.iovs[i]
		if ub.Remain() == 0 {
			i++
			continue
		}
		var c int
		var err defs.Err_t
		if towrite {
			c, err = ub.Uiowrite(buf[did:])
		} else {
			c, err = ub.Uioread(buf[did:])
		}
		if err != 0 {
			return did, err
		}
		did += c
	}
	return did, 0
}

/// Fakeubuf_t satisfies fdops.Userio_i over a plain kernel byte slice,
/// letting kernel-internal callers (e.g. procfs output, a pipe fed by
/// the kernel itself) reuse the same Read/Write call paths vnodes use
/// for genuine user buffers. Grounded on the teacher's vm.Fakeubuf_t.
type Fakeubuf_t struct {
	buf []uint8
	off int
}

func (fb *Fakeubuf_t) Fake_init(buf []uint8) {
	fb.buf = buf
	fb.off = 0
}

func (fb *Fakeubuf_t) Remain() int {
	return len(fb.buf) - fb.off
}

func (fb *Fakeubuf_t) Totalsz() int {
	return len(fb.buf)
}

func (fb *Fakeubuf_t) _tx(buf []uint8, towrite bool) (int, defs.Err_t) {
	var c int
	if towrite {
		c = copy(fb.buf[fb.off:], buf)
	} else {
		c = copy(buf, fb.buf[fb.off:])
	}
	fb.off += c
	return c, 0
}

func (fb *Fakeubuf_t) Uioread(dst []uint8) (int, defs.Err_t) {
	return fb._tx(dst, false)
}

func (fb *Fakeubuf_t) Uiowrite(src []uint8) (int, defs.Err_t) {
	return fb._tx(src, true)
}

/// Mkuserbuf returns a Userbuf_t ready to use, a thin constructor
/// mirroring the teacher's helper of the same name (it kept a free-list
/// pool of these; this kernel has no allocation-pressure reason to
/// pool such a small struct, so it's a plain allocation here).
func Mkuserbuf(as *Vm_t, userva, len int) *Userbuf_t {
	ub := &Userbuf_t{}
	ub.Ub_init(as, userva, len)
	return ub
}
