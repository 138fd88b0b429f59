// Package mem implements the physical page allocator of spec.md §4.A
// and the Sv39 page-table manager of §4.B. Grounded on the teacher's
// mem.Physmem_t, a single-page refcounted free list with per-CPU
// caching addressed through a direct-mapped virtual window
// (runtime.Get_phys/Vdirect, hooks into biscuit's patched Go runtime).
// None of that survives unchanged: spec.md §4.A specifies a run-based
// free list (contiguous multi-page runs, header-in-first-page,
// coalescing on free) rather than a single-page list, and stock Go has
// no physical-address/direct-map runtime hooks to build a per-CPU cache
// on top of. The physical heap is simulated as a single []byte slice
// (see the Open Question decision in DESIGN.md) addressed by Pa_t
// offsets into that slice; Physmem_t is a hybrid of the spec's run-based
// free list (Alloc/Dealloc/Zalloc) and the teacher's per-page refcount
// table (Refup/Refdown), since fork's copy-on-write needs refcounting
// that a pure run-based allocator doesn't give you for free.
package mem

import (
	"sync"
	"unsafe"

	"rvkernel/defs"
	"rvkernel/oommsg"
	"rvkernel/stats"
)

/// PGSHIFT is the base-2 exponent of the page size.
const PGSHIFT uint = 12

/// PGSIZE is the size of a single page in bytes.
const PGSIZE int = 1 << PGSHIFT

/// PGOFFSET masks the offset within a page.
const PGOFFSET Pa_t = Pa_t(PGSIZE - 1)

/// PGMASK masks the page number of an address.
const PGMASK Pa_t = ^PGOFFSET

/// Pa_t is an offset into the simulated physical heap, standing in for a
/// genuine physical address (see package doc).
type Pa_t uintptr

/// Pg_t is one page's worth of bytes.
type Pg_t [PGSIZE]uint8

func pg2pgn(p Pa_t) uint32 {
	return uint32(p >> PGSHIFT)
}

const nilIdx = ^uint32(0)

/// Physpg_t is the per-page bookkeeping record: while a page is part of
/// a free run, runlen (on the run's first page only) and nexti describe
/// the free list; once allocated, Refcnt tracks how many owners share
/// it, for fork's copy-on-write.
type Physpg_t struct {
	Refcnt int32
	runlen uint32
	nexti  uint32
}

/// Physmem_t is the global physical page allocator: a run-based free
/// list (spec.md §4.A) plus a per-page refcount table used by fork's
/// copy-on-write sharing (the teacher's Refup/Refdown).
type Physmem_t struct {
	sync.Mutex
	Heap []byte
	/// Pgs holds one Physpg_t per page of Heap.
	Pgs []Physpg_t
	/// freehead is the page index of the first run on the free list, or
	/// nilIdx if the free list is empty. Free runs are not kept in
	/// address order; Dealloc finds adjacency by direct neighbor lookup.
	freehead uint32
	npages   uint32
	// Stats tallies this allocator's lifetime activity, SPEC_FULL.md
	// module K instrumentation.
	Stats AllocStats_t
}

/// AllocStats_t is the page allocator's and page-table manager's counter
/// set, rendered via stats.Stats2String/ToProfile.
type AllocStats_t struct {
	Allocs    stats.Counter_t
	Deallocs  stats.Counter_t
	Coalesces stats.Counter_t
	PTMaps    stats.Counter_t
	PTUnmaps  stats.Counter_t
	PTWalks   stats.Counter_t
}

/// MkPhysmem allocates npages worth of simulated physical memory and
/// initializes it as a single free run spanning the whole heap.
func MkPhysmem(npages int) *Physmem_t {
	if npages <= 0 {
		panic("bad heap size")
	}
	phys := &Physmem_t{
		Heap:   make([]byte, npages*PGSIZE),
		Pgs:    make([]Physpg_t, npages),
		npages: uint32(npages),
	}
	phys.Pgs[0].runlen = uint32(npages)
	phys.Pgs[0].nexti = nilIdx
	phys.freehead = 0
	for i := 1; i < npages; i++ {
		phys.Pgs[i].Refcnt = -1
	}
	return phys
}

/// Dmap returns the page backing the given physical address.
func (phys *Physmem_t) Dmap(p_pg Pa_t) *Pg_t {
	off := int(p_pg) &^ (PGSIZE - 1)
	if off < 0 || off+PGSIZE > len(phys.Heap) {
		panic("address outside physical heap")
	}
	return (*Pg_t)(unsafe.Pointer(&phys.Heap[off]))
}

/// Dmap8 returns a byte slice mapped to the given physical address,
/// starting at its in-page offset and extending to the end of the page.
func (phys *Physmem_t) Dmap8(p Pa_t) []uint8 {
	base := int(p &^ PGOFFSET)
	off := int(p & PGOFFSET)
	return phys.Heap[base+off : base+PGSIZE]
}

func (phys *Physmem_t) idx2pa(idx uint32) Pa_t {
	return Pa_t(idx) << PGSHIFT
}

func (phys *Physmem_t) pa2idx(p Pa_t) uint32 {
	idx := pg2pgn(p)
	if idx >= phys.npages {
		panic("address outside physical heap")
	}
	return idx
}

/// Alloc finds the first free run of at least n pages, splitting off
/// and returning the first n pages, splicing any remainder back onto
/// the free list in its place. It returns ok=false (never blocking) if
/// no run is large enough — the caller surfaces this as ENOMEM or
/// blocks on oommsg, per spec.md §4.A and §9.
func (phys *Physmem_t) Alloc(n int) (Pa_t, bool) {
	if n <= 0 {
		panic("bad alloc size")
	}
	phys.Lock()
	defer phys.Unlock()

	var prev uint32 = nilIdx
	cur := phys.freehead
	for cur != nilIdx {
		runlen := phys.Pgs[cur].runlen
		if int(runlen) >= n {
			if int(runlen) == n {
				phys.unlinkRun(prev, cur)
			} else {
				rem := cur + uint32(n)
				phys.Pgs[rem].runlen = runlen - uint32(n)
				phys.Pgs[rem].Refcnt = -1
				phys.replaceRun(prev, cur, rem)
			}
			for i := 0; i < n; i++ {
				phys.Pgs[cur+uint32(i)].Refcnt = 1
				phys.Pgs[cur+uint32(i)].runlen = 0
				phys.Pgs[cur+uint32(i)].nexti = 0
			}
			phys.Stats.Allocs.Inc()
			return phys.idx2pa(cur), true
		}
		prev = cur
		cur = phys.Pgs[cur].nexti
	}
	phys.notifyOom(n)
	return 0, false
}

// notifyOom gives a reclaim daemon listening on oommsg.OomCh a
// best-effort chance to free pages before the caller surfaces ENOMEM;
// it never blocks Alloc itself, matching Alloc's own "never blocking"
// contract.
func (phys *Physmem_t) notifyOom(need int) {
	select {
	case oommsg.OomCh <- oommsg.Oommsg_t{Need: need}:
	default:
	}
}

/// Zalloc allocates n pages and zero-fills them.
func (phys *Physmem_t) Zalloc(n int) (Pa_t, bool) {
	pa, ok := phys.Alloc(n)
	if !ok {
		return 0, false
	}
	base := int(pa)
	clear(phys.Heap[base : base+n*PGSIZE])
	return pa, true
}

/// Dealloc returns an n-page run starting at pa to the free list,
/// coalescing with any adjacent free runs on either side so that no two
/// free runs ever abut (spec.md §4.A invariant ii).
func (phys *Physmem_t) Dealloc(pa Pa_t, n int) {
	if n <= 0 {
		panic("bad dealloc size")
	}
	idx := phys.pa2idx(pa)
	if int(idx)+n > int(phys.npages) {
		panic("dealloc run exceeds heap")
	}
	phys.Lock()
	defer phys.Unlock()

	for i := 0; i < n; i++ {
		phys.Pgs[idx+uint32(i)].Refcnt = -1
	}

	base := idx
	length := uint32(n)

	if prevIdx, prevLen, found := phys.findRunEndingAt(base); found {
		phys.unlinkRun(phys.predecessorOf(prevIdx), prevIdx)
		base = prevIdx
		length += prevLen
		phys.Stats.Coalesces.Inc()
	}
	if nextLen, isFree := phys.runAt(base + length); isFree {
		phys.unlinkRun(phys.predecessorOf(base+length), base+length)
		length += nextLen
		phys.Stats.Coalesces.Inc()
	}

	phys.Pgs[base].runlen = length
	phys.Pgs[base].Refcnt = -1
	phys.Pgs[base].nexti = phys.freehead
	phys.freehead = base
	phys.Stats.Deallocs.Inc()
}

// runAt reports whether idx is the first page of a currently free run,
// returning its length if so.
func (phys *Physmem_t) runAt(idx uint32) (uint32, bool) {
	if idx >= phys.npages {
		return 0, false
	}
	if phys.Pgs[idx].Refcnt >= 0 {
		return 0, false
	}
	rl := phys.Pgs[idx].runlen
	if rl == 0 {
		return 0, false
	}
	return rl, true
}

// findRunEndingAt scans the free list for a run whose last page is
// idx-1, i.e. one that directly precedes idx in the heap.
func (phys *Physmem_t) findRunEndingAt(idx uint32) (uint32, uint32, bool) {
	for cur := phys.freehead; cur != nilIdx; cur = phys.Pgs[cur].nexti {
		rl := phys.Pgs[cur].runlen
		if cur+rl == idx {
			return cur, rl, true
		}
	}
	return 0, 0, false
}

// predecessorOf returns the free-list index preceding idx in list
// order, or nilIdx if idx is the head. O(n) in free-list length,
// matching spec.md §4.A's acknowledged O(n) dealloc cost for small
// heaps.
func (phys *Physmem_t) predecessorOf(idx uint32) uint32 {
	if phys.freehead == idx {
		return nilIdx
	}
	for cur := phys.freehead; cur != nilIdx; cur = phys.Pgs[cur].nexti {
		if phys.Pgs[cur].nexti == idx {
			return cur
		}
	}
	panic("index not on free list")
}

func (phys *Physmem_t) unlinkRun(prev, idx uint32) {
	next := phys.Pgs[idx].nexti
	if prev == nilIdx {
		phys.freehead = next
	} else {
		phys.Pgs[prev].nexti = next
	}
}

func (phys *Physmem_t) replaceRun(prev, oldIdx, newIdx uint32) {
	next := phys.Pgs[oldIdx].nexti
	phys.Pgs[newIdx].nexti = next
	if prev == nilIdx {
		phys.freehead = newIdx
	} else {
		phys.Pgs[prev].nexti = newIdx
	}
}

/// Refcnt returns the current reference count of a page.
func (phys *Physmem_t) Refcnt(p_pg Pa_t) int {
	idx := phys.pa2idx(p_pg)
	phys.Lock()
	defer phys.Unlock()
	return int(phys.Pgs[idx].Refcnt)
}

/// Refup increments the reference count of a page, used when two page
/// tables come to share a copy-on-write mapping.
func (phys *Physmem_t) Refup(p_pg Pa_t) {
	idx := phys.pa2idx(p_pg)
	phys.Lock()
	defer phys.Unlock()
	if phys.Pgs[idx].Refcnt <= 0 {
		panic("refup of free page")
	}
	phys.Pgs[idx].Refcnt++
}

/// Refdown decrements the reference count of a page, freeing the
/// single-page run back to the allocator once it reaches zero. It
/// returns true when the page was freed.
func (phys *Physmem_t) Refdown(p_pg Pa_t) bool {
	phys.Lock()
	idx := phys.pa2idx(p_pg)
	if phys.Pgs[idx].Refcnt <= 0 {
		phys.Unlock()
		panic("refdown of free page")
	}
	phys.Pgs[idx].Refcnt--
	freed := phys.Pgs[idx].Refcnt == 0
	phys.Unlock()
	if freed {
		phys.Dealloc(p_pg, 1)
	}
	return freed
}

/// Err translates an allocation failure into the kernel's errno
/// currency, per spec.md §9's "propagate allocator failure" note.
func Err() defs.Err_t {
	return defs.ENOMEM
}
