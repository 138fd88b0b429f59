package proc

import (
	"testing"

	"rvkernel/defs"
	"rvkernel/fdops"
	"rvkernel/mem"
	"rvkernel/ustr"
	"rvkernel/vfs"
)

type fakeRootNode struct{}

func (f *fakeRootNode) Type() vfs.NodeType { return vfs.NodeDir }
func (f *fakeRootNode) Lookup(name ustr.Ustr) (vfs.Node_i, defs.Err_t) {
	return nil, defs.ENOENT
}
func (f *fakeRootNode) ReadAt(dst fdops.Userio_i, offset int) (int, defs.Err_t) {
	return 0, defs.EISDIR
}
func (f *fakeRootNode) WriteAt(src fdops.Userio_i, offset int) (int, defs.Err_t) {
	return 0, defs.EISDIR
}
func (f *fakeRootNode) ReaddirAt(offset int) (ustr.Ustr, int, defs.Err_t) {
	return nil, -1, 0
}
func (f *fakeRootNode) Link(name ustr.Ustr, target vfs.Node_i) defs.Err_t { return defs.EUNSUP }
func (f *fakeRootNode) Unlink(name ustr.Ustr) defs.Err_t                  { return defs.EUNSUP }
func (f *fakeRootNode) Trunc(newlen int) defs.Err_t                       { return defs.EISDIR }
func (f *fakeRootNode) Ioctl(req int, arg int) (int, defs.Err_t)          { return 0, defs.EUNSUP }
func (f *fakeRootNode) Chmod(mode int) defs.Err_t                        { return defs.EUNSUP }
func (f *fakeRootNode) Chown(uid, gid int) defs.Err_t                    { return defs.EUNSUP }
func (f *fakeRootNode) IsReady(write bool) bool                          { return true }
func (f *fakeRootNode) Stat() (vfs.Stat_t, defs.Err_t)                   { return vfs.Stat_t{}, 0 }
func (f *fakeRootNode) Readlink() (ustr.Ustr, defs.Err_t)                { return nil, defs.EINVAL }
func (f *fakeRootNode) Copy() vfs.Node_i                                 { return f }
func (f *fakeRootNode) Close() defs.Err_t                                { return 0 }

func mkInit(t *testing.T) (*Table_t, *Process_t, *mem.Physmem_t) {
	t.Helper()
	phys := mem.MkPhysmem(256)
	pt := MkTable()
	rootFd := &vfs.Fd_t{File: vfs.MkFile(&fakeRootNode{}), Perms: vfs.FD_READ | vfs.FD_WRITE}
	p, err := CreateInit(pt, phys, rootFd)
	if err != 0 {
		t.Fatalf("CreateInit failed: %v", err)
	}
	return pt, p, phys
}

func TestCreateInitHasOneThreadAndEmptyTable(t *testing.T) {
	pt, init, _ := mkInit(t)
	if len(init.Threads) != 1 {
		t.Fatalf("expected 1 thread, got %d", len(init.Threads))
	}
	if _, ok := pt.Get(init.Pid); !ok {
		t.Fatal("expected init to be registered in the process table")
	}
}

func TestForkCreatesIndependentAddressSpace(t *testing.T) {
	pt, parent, phys := mkInit(t)

	start := uintptr(0x1000)
	pa, ok := phys.Zalloc(1)
	if !ok {
		t.Fatal("zalloc failed")
	}
	if !mem.Map(phys, parent.Vm.Root, start, pa, mem.PTE_R|mem.PTE_W|mem.PTE_U, 0) {
		t.Fatal("map failed")
	}
	parent.Vm.AddRegion(start, uintptr(mem.PGSIZE), mem.PTE_R|mem.PTE_W|mem.PTE_U)
	copy(phys.Dmap8(pa), []byte("parent data"))

	child, err := pt.Fork(parent)
	if err != 0 {
		t.Fatalf("fork failed: %v", err)
	}
	if child.Pid == parent.Pid {
		t.Fatal("expected distinct pid")
	}
	if len(parent.Children) != 1 || parent.Children[0] != child {
		t.Fatal("expected child linked into parent's Children")
	}

	childPa, ok := mem.Translate(phys, child.Vm.Root, start)
	if !ok {
		t.Fatal("expected child to have its own mapping at the same va")
	}
	if childPa == pa {
		t.Fatal("expected child's physical page to differ from parent's (eager copy, not shared)")
	}
	if string(phys.Dmap8(childPa)[:11]) != "parent data" {
		t.Fatal("expected child's copy to contain the parent's bytes")
	}

	copy(phys.Dmap8(pa), []byte("OVERWRITTEN"))
	if string(phys.Dmap8(childPa)[:11]) != "parent data" {
		t.Fatal("expected child's copy to be independent of further parent writes")
	}
}

func TestExitMarksZombieAndWaitChildReaps(t *testing.T) {
	pt, parent, _ := mkInit(t)
	child, err := pt.Fork(parent)
	if err != 0 {
		t.Fatalf("fork failed: %v", err)
	}

	if _, _, err := pt.WaitChild(parent); err != 0 {
		t.Fatalf("expected (0,0,0) with no zombie yet, got err=%v", err)
	}

	pt.Exit(child, 7)

	pid, status, err := pt.WaitChild(parent)
	if err != 0 {
		t.Fatalf("waitchild failed: %v", err)
	}
	if pid != child.Pid || status != 7 {
		t.Fatalf("expected (pid=%d, status=7), got (pid=%d, status=%d)", child.Pid, pid, status)
	}
	if len(parent.Children) != 0 {
		t.Fatal("expected child removed from parent's Children after reaping")
	}
	if _, ok := pt.Get(child.Pid); ok {
		t.Fatal("expected child removed from the process table after reaping")
	}
}

func TestWaitChildNoChildrenReturnsECHILD(t *testing.T) {
	pt, parent, _ := mkInit(t)
	if _, _, err := pt.WaitChild(parent); err != defs.ECHILD {
		t.Fatalf("expected ECHILD, got %v", err)
	}
}

func TestExitOrphansChildren(t *testing.T) {
	pt, parent, _ := mkInit(t)
	child, _ := pt.Fork(parent)
	grandchild, err := pt.Fork(child)
	if err != 0 {
		t.Fatalf("fork failed: %v", err)
	}

	pt.Exit(child, 0)

	if grandchild.Parent != nil {
		t.Fatal("expected grandchild orphaned after its parent exited")
	}
}
