package mem

import "testing"

func TestAllocDeallocConservation(t *testing.T) {
	phys := MkPhysmem(16)
	pa, ok := phys.Alloc(4)
	if !ok {
		t.Fatal("expected alloc to succeed")
	}
	if pa%Pa_t(PGSIZE) != 0 {
		t.Fatal("expected page-aligned allocation")
	}
	phys.Dealloc(pa, 4)
	// whole heap should be one free run again
	if phys.Pgs[0].runlen != 16 {
		t.Fatalf("expected full heap reclaimed as one run, got runlen %d", phys.Pgs[0].runlen)
	}
}

func TestAllocExhaustion(t *testing.T) {
	phys := MkPhysmem(4)
	if _, ok := phys.Alloc(5); ok {
		t.Fatal("expected alloc larger than heap to fail")
	}
	pa, ok := phys.Alloc(4)
	if !ok {
		t.Fatal("expected full-heap alloc to succeed")
	}
	if _, ok := phys.Alloc(1); ok {
		t.Fatal("expected alloc on exhausted heap to fail")
	}
	phys.Dealloc(pa, 4)
	if _, ok := phys.Alloc(4); !ok {
		t.Fatal("expected alloc to succeed again after dealloc")
	}
}

func TestNoAbuttingFreeRuns(t *testing.T) {
	phys := MkPhysmem(8)
	a, _ := phys.Alloc(2)
	b, _ := phys.Alloc(2)
	c, _ := phys.Alloc(2)
	phys.Dealloc(a, 2)
	phys.Dealloc(c, 2)
	phys.Dealloc(b, 2)
	// all three allocated runs freed (in a different order than
	// allocated), plus the untouched tail, must coalesce into a single
	// run covering the whole heap.
	if phys.Pgs[0].runlen != 8 {
		t.Fatalf("expected coalesced run covering the heap, got %d", phys.Pgs[0].runlen)
	}
}

func TestZallocZeroesMemory(t *testing.T) {
	phys := MkPhysmem(4)
	pa, _ := phys.Alloc(1)
	b := phys.Dmap8(pa)
	for i := range b[:PGSIZE] {
		b[i] = 0xff
	}
	phys.Dealloc(pa, 1)
	pa2, ok := phys.Zalloc(1)
	if !ok {
		t.Fatal("expected zalloc to succeed")
	}
	b2 := phys.Dmap8(pa2)
	for i, v := range b2[:PGSIZE] {
		if v != 0 {
			t.Fatalf("expected zeroed byte at %d, got %x", i, v)
		}
	}
}

func TestRefcounting(t *testing.T) {
	phys := MkPhysmem(4)
	pa, _ := phys.Alloc(1)
	phys.Refup(pa)
	if phys.Refcnt(pa) != 2 {
		t.Fatalf("expected refcnt 2, got %d", phys.Refcnt(pa))
	}
	if phys.Refdown(pa) {
		t.Fatal("expected page to still be live after one refdown")
	}
	if !phys.Refdown(pa) {
		t.Fatal("expected page to be freed on final refdown")
	}
}
