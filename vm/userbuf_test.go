package vm

import (
	"testing"

	"rvkernel/mem"
)

func TestUserbufReadWriteRoundtrip(t *testing.T) {
	as, va := mkTestAs(t)
	ub := Mkuserbuf(as, int(va), 12)
	n, err := ub.Uiowrite([]byte("hello world!"))
	if err != 0 || n != 12 {
		t.Fatalf("uiowrite: n=%d err=%v", n, err)
	}
	if ub.Remain() != 0 {
		t.Fatalf("expected buffer drained, remain=%d", ub.Remain())
	}

	ub2 := Mkuserbuf(as, int(va), 12)
	dst := make([]byte, 12)
	n, err = ub2.Uioread(dst)
	if err != 0 || n != 12 {
		t.Fatalf("uioread: n=%d err=%v", n, err)
	}
	if string(dst) != "hello world!" {
		t.Fatalf("expected roundtrip, got %q", dst)
	}
}

func TestUserbufPartialTransferStopsAtRemain(t *testing.T) {
	as, va := mkTestAs(t)
	ub := Mkuserbuf(as, int(va), 4)
	n, err := ub.Uiowrite([]byte("abcdefgh"))
	if err != 0 {
		t.Fatalf("uiowrite failed: %v", err)
	}
	if n != 4 {
		t.Fatalf("expected transfer capped at buffer length 4, got %d", n)
	}
	if ub.Remain() != 0 {
		t.Fatalf("expected buffer exhausted, got remain=%d", ub.Remain())
	}
}

func TestUseriovecGathersAcrossWindows(t *testing.T) {
	phys := mem.MkPhysmem(64)
	as, err := MkVm(phys)
	if err != 0 {
		t.Fatal(err)
	}
	l1, _ := phys.Zalloc(1)
	l2, _ := phys.Zalloc(1)
	va1 := uintptr(0x10000)
	va2 := uintptr(0x20000)
	mem.Map(phys, as.Root, va1, l1, mem.PTE_R|mem.PTE_W, 0)
	mem.Map(phys, as.Root, va2, l2, mem.PTE_R|mem.PTE_W, 0)
	as.AddRegion(va1, mem.PGSIZE, mem.PTE_R|mem.PTE_W)
	as.AddRegion(va2, mem.PGSIZE, mem.PTE_R|mem.PTE_W)

	iov := &Useriovec_t{iovs: []Userbuf_t{}}
	iov.iovs = append(iov.iovs, Userbuf_t{})
	iov.iovs[0].Ub_init(as, int(va1), 3)
	iov.iovs = append(iov.iovs, Userbuf_t{})
	iov.iovs[1].Ub_init(as, int(va2), 3)

	n, err := iov.Uiowrite([]byte("abcdef"))
	if err != 0 || n != 6 {
		t.Fatalf("uiowrite across iovs: n=%d err=%v", n, err)
	}

	iov2 := &Useriovec_t{iovs: []Userbuf_t{}}
	iov2.iovs = append(iov2.iovs, Userbuf_t{})
	iov2.iovs[0].Ub_init(as, int(va1), 3)
	iov2.iovs = append(iov2.iovs, Userbuf_t{})
	iov2.iovs[1].Ub_init(as, int(va2), 3)
	dst := make([]byte, 6)
	n, err = iov2.Uioread(dst)
	if err != 0 || n != 6 {
		t.Fatalf("uioread across iovs: n=%d err=%v", n, err)
	}
	if string(dst) != "abcdef" {
		t.Fatalf("expected gathered roundtrip, got %q", dst)
	}
}

func TestFakeubufRoundtrip(t *testing.T) {
	backing := make([]byte, 8)
	var fb Fakeubuf_t
	fb.Fake_init(backing)
	n, err := fb.Uiowrite([]byte("abcd"))
	if err != 0 || n != 4 {
		t.Fatalf("uiowrite: n=%d err=%v", n, err)
	}
	if fb.Remain() != 4 {
		t.Fatalf("expected 4 bytes remaining, got %d", fb.Remain())
	}

	var fb2 Fakeubuf_t
	fb2.Fake_init(backing)
	dst := make([]byte, 4)
	n, err = fb2.Uioread(dst)
	if err != 0 || n != 4 || string(dst) != "abcd" {
		t.Fatalf("uioread: n=%d err=%v dst=%q", n, err, dst)
	}
}
