package syscall

import (
	"testing"

	"rvkernel/defs"
	"rvkernel/fdops"
	"rvkernel/fs"
	"rvkernel/hart"
	"rvkernel/mem"
	"rvkernel/proc"
	"rvkernel/sched"
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

// harness bundles everything a handler test needs: the dispatch table,
// the Sys_t every Dispatch call is threaded through, the init process,
// and its sole runnable task.
type harness struct {
	dt   *Table_t
	sys  *Sys_t
	pt   *proc.Table_t
	init *proc.Process_t
	task *sched.Task_t
}

func mkHarness(t *testing.T) *harness {
	t.Helper()
	phys := mem.MkPhysmem(256)
	pt := proc.MkTable()
	root := &fakeRootNode{}
	rootFd := &vfs.Fd_t{File: vfs.MkFile(root), Perms: vfs.FD_READ | vfs.FD_WRITE}
	init, err := proc.CreateInit(pt, phys, rootFd)
	if err != 0 {
		t.Fatalf("CreateInit failed: %v", err)
	}
	mounts := fs.MkMountTable()
	queue := sched.MkScheduleQueue(sched.MkTask(0, 0, sched.DefaultPriority))
	return &harness{
		dt: MkTable(),
		sys: &Sys_t{
			Procs:    pt,
			Queue:    queue,
			Resolver: vfs.MkResolver(mounts),
			Mounts:   mounts,
			Phys:     phys,
			RootNode: root,
		},
		pt:   pt,
		init: init,
		task: init.Threads[0],
	}
}

func frame(sysno uint64, args ...uint64) *hart.TrapFrame_t {
	f := &hart.TrapFrame_t{A7: sysno}
	regs := []*uint64{&f.A0, &f.A1, &f.A2, &f.A3, &f.A4, &f.A5, &f.A6}
	for i, a := range args {
		*regs[i] = a
	}
	return f
}

func TestGetpidReturnsCurrentProcess(t *testing.T) {
	h := mkHarness(t)
	ret := h.dt.Dispatch(h.sys, h.task, frame(uint64(SYS_GETPID)))
	if ret != SyscallReturn(h.init.Pid) {
		t.Fatalf("expected pid %d, got %d", h.init.Pid, ret)
	}
}

func TestForkExitWaitRoundtrip(t *testing.T) {
	h := mkHarness(t)

	forkRet := h.dt.Dispatch(h.sys, h.task, frame(uint64(SYS_FORK)))
	if forkRet < 0 {
		t.Fatalf("fork failed: %v", defs.Err_t(forkRet))
	}
	childPid := defs.Pid_t(int(forkRet))
	child, ok := h.pt.Get(childPid)
	if !ok {
		t.Fatal("expected child registered in the process table")
	}
	childTask := child.Threads[0]
	if childTask.Frame.Retval() != 0 {
		t.Fatalf("expected child's own frame to read back 0, got %d", childTask.Frame.Retval())
	}

	exitRet := h.dt.Dispatch(h.sys, childTask, frame(uint64(SYS_EXIT), 7))
	if exitRet != 0 {
		t.Fatalf("exit failed: %v", defs.Err_t(exitRet))
	}
	if childTask.State != sched.Terminated {
		t.Fatal("expected child task marked Terminated")
	}

	waitRet := h.dt.Dispatch(h.sys, h.task, frame(uint64(SYS_WAIT), 0))
	if waitRet != SyscallReturn(childPid) {
		t.Fatalf("expected wait to reap pid %d, got %d", childPid, waitRet)
	}
}

func TestSbrkGrowsThenShrinks(t *testing.T) {
	h := mkHarness(t)

	grow := h.dt.Dispatch(h.sys, h.task, frame(uint64(SYS_SBRK), uint64(mem.PGSIZE)))
	if grow < 0 {
		t.Fatalf("sbrk grow failed: %v", defs.Err_t(grow))
	}
	old := uint64(grow)

	again := h.dt.Dispatch(h.sys, h.task, frame(uint64(SYS_SBRK), 0))
	if uint64(again) != old+uint64(mem.PGSIZE) {
		t.Fatalf("expected break to have advanced by one page, old=%d now=%d", old, again)
	}

	shrink := h.dt.Dispatch(h.sys, h.task, frame(uint64(SYS_SBRK), uint64(int64(-mem.PGSIZE))))
	if shrink < 0 {
		t.Fatalf("sbrk shrink failed: %v", defs.Err_t(shrink))
	}
}

func TestPipeWriteThenRead(t *testing.T) {
	h := mkHarness(t)

	start := uintptr(0x2000)
	pa, got := h.sys.Phys.Zalloc(1)
	if !got {
		t.Fatal("zalloc failed")
	}
	if !mem.Map(h.sys.Phys, h.init.Vm.Root, start, pa, mem.PTE_R|mem.PTE_W|mem.PTE_U, 0) {
		t.Fatal("map failed")
	}
	h.init.Vm.AddRegion(start, uintptr(mem.PGSIZE), mem.PTE_R|mem.PTE_W|mem.PTE_U)

	fdsva := int(start)
	pipeRet := h.dt.Dispatch(h.sys, h.task, frame(uint64(SYS_PIPE), uint64(fdsva)))
	if pipeRet != 0 {
		t.Fatalf("pipe failed: %v", defs.Err_t(pipeRet))
	}
	rfd, err := h.init.Vm.Userreadn(fdsva, 8)
	if err != 0 {
		t.Fatalf("reading back read fd failed: %v", err)
	}
	wfd, err := h.init.Vm.Userreadn(fdsva+8, 8)
	if err != 0 {
		t.Fatalf("reading back write fd failed: %v", err)
	}

	msgva := start + uintptr(mem.PGSIZE)/2
	msg := []byte("hello")
	if err := h.init.Vm.K2user(msg, int(msgva)); err != 0 {
		t.Fatalf("staging write buffer failed: %v", err)
	}

	writeRet := h.dt.Dispatch(h.sys, h.task, frame(uint64(SYS_WRITE), uint64(wfd), uint64(msgva), uint64(len(msg))))
	if writeRet != SyscallReturn(len(msg)) {
		t.Fatalf("expected write to transfer %d bytes, got %d", len(msg), writeRet)
	}

	readva := start + uintptr(mem.PGSIZE)*3/4
	readRet := h.dt.Dispatch(h.sys, h.task, frame(uint64(SYS_READ), uint64(rfd), uint64(readva), uint64(len(msg))))
	if readRet != SyscallReturn(len(msg)) {
		t.Fatalf("expected read to transfer %d bytes, got %d", len(msg), readRet)
	}
	got := make([]byte, len(msg))
	if err := h.init.Vm.User2k(got, int(readva)); err != 0 {
		t.Fatalf("reading back transferred bytes failed: %v", err)
	}
	if string(got) != "hello" {
		t.Fatalf("expected \"hello\", got %q", got)
	}
}

func TestUnknownSyscallReturnsEUNSUP(t *testing.T) {
	h := mkHarness(t)
	ret := h.dt.Dispatch(h.sys, h.task, frame(999))
	if ret != SyscallReturn(defs.EUNSUP) {
		t.Fatalf("expected EUNSUP, got %d", ret)
	}
}
