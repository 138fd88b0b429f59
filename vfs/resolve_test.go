package vfs

import (
	"testing"

	"rvkernel/defs"
	"rvkernel/fdops"
	"rvkernel/fs"
	"rvkernel/ustr"
)

// fakeDirNode is a minimal in-memory directory Node_i for resolution
// tests: a name -> Node_i map with no on-disk backing.
type fakeDirNode struct {
	entries map[string]Node_i
}

func mkDir() *fakeDirNode { return &fakeDirNode{entries: make(map[string]Node_i)} }

func (d *fakeDirNode) Type() NodeType { return NodeDir }
func (d *fakeDirNode) Lookup(name ustr.Ustr) (Node_i, defs.Err_t) {
	n, ok := d.entries[name.String()]
	if !ok {
		return nil, defs.ENOENT
	}
	return n, 0
}
func (d *fakeDirNode) ReadAt(dst fdops.Userio_i, offset int) (int, defs.Err_t) {
	return 0, defs.EISDIR
}
func (d *fakeDirNode) WriteAt(src fdops.Userio_i, offset int) (int, defs.Err_t) {
	return 0, defs.EISDIR
}
func (d *fakeDirNode) ReaddirAt(offset int) (ustr.Ustr, int, defs.Err_t) {
	return nil, -1, 0
}
func (d *fakeDirNode) Link(name ustr.Ustr, target Node_i) defs.Err_t {
	d.entries[name.String()] = target
	return 0
}
func (d *fakeDirNode) Unlink(name ustr.Ustr) defs.Err_t {
	delete(d.entries, name.String())
	return 0
}
func (d *fakeDirNode) Trunc(newlen int) defs.Err_t              { return defs.EISDIR }
func (d *fakeDirNode) Ioctl(req int, arg int) (int, defs.Err_t) { return 0, defs.EUNSUP }
func (d *fakeDirNode) Chmod(mode int) defs.Err_t                { return defs.EUNSUP }
func (d *fakeDirNode) Chown(uid, gid int) defs.Err_t            { return defs.EUNSUP }
func (d *fakeDirNode) IsReady(write bool) bool                  { return true }
func (d *fakeDirNode) Stat() (Stat_t, defs.Err_t)               { return Stat_t{}, 0 }
func (d *fakeDirNode) Readlink() (ustr.Ustr, defs.Err_t)        { return nil, defs.EINVAL }
func (d *fakeDirNode) Copy() Node_i                             { return d }
func (d *fakeDirNode) Close() defs.Err_t                        { return 0 }

type fakeSymlinkNode struct {
	target ustr.Ustr
}

func (s *fakeSymlinkNode) Type() NodeType { return NodeSymlink }
func (s *fakeSymlinkNode) Lookup(name ustr.Ustr) (Node_i, defs.Err_t) {
	return nil, defs.ENOTDIR
}
func (s *fakeSymlinkNode) ReadAt(dst fdops.Userio_i, offset int) (int, defs.Err_t) {
	return 0, defs.EINVAL
}
func (s *fakeSymlinkNode) WriteAt(src fdops.Userio_i, offset int) (int, defs.Err_t) {
	return 0, defs.EINVAL
}
func (s *fakeSymlinkNode) ReaddirAt(offset int) (ustr.Ustr, int, defs.Err_t) {
	return nil, -1, defs.ENOTDIR
}
func (s *fakeSymlinkNode) Link(name ustr.Ustr, target Node_i) defs.Err_t { return defs.ENOTDIR }
func (s *fakeSymlinkNode) Unlink(name ustr.Ustr) defs.Err_t              { return defs.ENOTDIR }
func (s *fakeSymlinkNode) Trunc(newlen int) defs.Err_t                   { return defs.EINVAL }
func (s *fakeSymlinkNode) Ioctl(req int, arg int) (int, defs.Err_t)      { return 0, defs.EUNSUP }
func (s *fakeSymlinkNode) Chmod(mode int) defs.Err_t                     { return defs.EUNSUP }
func (s *fakeSymlinkNode) Chown(uid, gid int) defs.Err_t                 { return defs.EUNSUP }
func (s *fakeSymlinkNode) IsReady(write bool) bool                       { return true }
func (s *fakeSymlinkNode) Stat() (Stat_t, defs.Err_t)                    { return Stat_t{}, 0 }
func (s *fakeSymlinkNode) Readlink() (ustr.Ustr, defs.Err_t)             { return s.target, 0 }
func (s *fakeSymlinkNode) Copy() Node_i                                  { return s }
func (s *fakeSymlinkNode) Close() defs.Err_t                             { return 0 }

func TestResolveWalksComponents(t *testing.T) {
	root := mkDir()
	home := mkDir()
	file := &fakeFileNode{data: []byte("hi")}
	root.Link(ustr.Ustr("home"), home)
	home.Link(ustr.Ustr("a.txt"), file)

	r := MkResolver(fs.MkMountTable())
	got, err := r.Resolve(root, ustr.Ustr("/home/a.txt"))
	if err != 0 {
		t.Fatalf("resolve failed: %v", err)
	}
	if got != Node_i(file) {
		t.Fatal("expected resolution to reach the leaf file node")
	}
}

func TestResolveMissingComponentFails(t *testing.T) {
	root := mkDir()
	r := MkResolver(fs.MkMountTable())
	if _, err := r.Resolve(root, ustr.Ustr("/nope")); err != defs.ENOENT {
		t.Fatalf("expected ENOENT, got %v", err)
	}
}

func TestResolveFollowsSymlink(t *testing.T) {
	root := mkDir()
	target := &fakeFileNode{data: []byte("real")}
	root.Link(ustr.Ustr("real.txt"), target)
	root.Link(ustr.Ustr("link.txt"), &fakeSymlinkNode{target: ustr.Ustr("/real.txt")})

	r := MkResolver(fs.MkMountTable())
	got, err := r.Resolve(root, ustr.Ustr("/link.txt"))
	if err != 0 {
		t.Fatalf("resolve failed: %v", err)
	}
	if got != Node_i(target) {
		t.Fatal("expected symlink to resolve to its target")
	}
}

func TestResolveSymlinkLoopHitsDepthBound(t *testing.T) {
	root := mkDir()
	root.Link(ustr.Ustr("a"), &fakeSymlinkNode{target: ustr.Ustr("/b")})
	root.Link(ustr.Ustr("b"), &fakeSymlinkNode{target: ustr.Ustr("/a")})

	r := MkResolver(fs.MkMountTable())
	if _, err := r.Resolve(root, ustr.Ustr("/a")); err != defs.EINVAL {
		t.Fatalf("expected EINVAL from exceeding symlink depth, got %v", err)
	}
}

func TestResolveCrossesMountPoint(t *testing.T) {
	root := mkDir()
	mntDir := mkDir()
	root.Link(ustr.Ustr("mnt"), mntDir)

	otherRoot := mkDir()
	leaf := &fakeFileNode{data: []byte("mounted")}
	otherRoot.Link(ustr.Ustr("f"), leaf)

	mounts := fs.MkMountTable()
	sb := fs.MkSuperblock(otherRoot)
	if err := mounts.Mount("/mnt", sb); err != 0 {
		t.Fatalf("mount failed: %v", err)
	}

	r := MkResolver(mounts)
	got, err := r.Resolve(root, ustr.Ustr("/mnt/f"))
	if err != 0 {
		t.Fatalf("resolve across mount failed: %v", err)
	}
	if got != Node_i(leaf) {
		t.Fatal("expected resolution to cross into the mounted filesystem")
	}
}

func TestDentryCacheHitsOnSecondLookup(t *testing.T) {
	root := mkDir()
	file := &fakeFileNode{}
	root.Link(ustr.Ustr("a"), file)

	r := MkResolver(fs.MkMountTable())
	if _, err := r.Resolve(root, ustr.Ustr("/a")); err != 0 {
		t.Fatalf("resolve failed: %v", err)
	}
	cached, ok := r.Dentry.Get(root, ustr.Ustr("a"))
	if !ok || cached != Node_i(file) {
		t.Fatal("expected dentry cache to have recorded the lookup")
	}

	delete(root.entries, "a") // cache should still serve the stale entry
	got, err := r.Resolve(root, ustr.Ustr("/a"))
	if err != 0 || got != Node_i(file) {
		t.Fatal("expected cached lookup to be served without consulting the node again")
	}
}
