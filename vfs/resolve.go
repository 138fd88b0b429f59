package vfs

import (
	"fmt"

	"rvkernel/defs"
	"rvkernel/fs"
	"rvkernel/hashtable"
	"rvkernel/res"
	"rvkernel/ustr"
)

/// MaxSymlinkDepth bounds how many symlinks a single path resolution
/// will follow before giving up, per spec.md §4.E's "implementer
/// chooses, typically 40".
const MaxSymlinkDepth = 40

/// DentryCache_t memoizes path-component lookups, keyed by the parent
/// node's identity concatenated with the component name, avoiding a
/// linear directory scan on every resolution step. A supplement over
/// spec.md's distillation (original_source's inode cache serves the
/// same purpose, noted in SPEC_FULL.md module E); backed by
/// hashtable.Hashtable_t, generalized from its lock-striped bucket
/// design for vfs's dentry-cache use.
type DentryCache_t struct {
	ht *hashtable.Hashtable_t
}

/// MkDentryCache returns an empty dentry cache with nbuckets stripes.
func MkDentryCache(nbuckets int) *DentryCache_t {
	return &DentryCache_t{ht: hashtable.MkHash(nbuckets)}
}

// dentryKey encodes a (parent, name) pair as a single string, since
// hashtable.Hashtable_t's key dispatch only supports
// ustr.Ustr/string/int/int32 keys (see hashtable.go's hash/equal
// switches) — a struct embedding a Node_i interface isn't one of them.
func dentryKey(parent Node_i, name ustr.Ustr) string {
	return fmt.Sprintf("%p/%s", parent, name.String())
}

/// Get returns the cached lookup of name within parent, if present.
func (dc *DentryCache_t) Get(parent Node_i, name ustr.Ustr) (Node_i, bool) {
	v, ok := dc.ht.Get(dentryKey(parent, name))
	if !ok {
		return nil, false
	}
	return v.(Node_i), true
}

/// Put records that name resolves to child within parent.
func (dc *DentryCache_t) Put(parent Node_i, name ustr.Ustr, child Node_i) {
	dc.ht.Set(dentryKey(parent, name), child)
}

/// Invalidate drops any cached entry for name within parent, called on
/// unlink/rename.
func (dc *DentryCache_t) Invalidate(parent Node_i, name ustr.Ustr) {
	dc.ht.Del(dentryKey(parent, name))
}

/// Resolver_t bundles the state one path resolution needs: the mount
/// table to cross into, and a dentry cache to consult before each
/// node's own Lookup.
type Resolver_t struct {
	Mounts *fs.MountTable_t
	Dentry *DentryCache_t
}

/// MkResolver returns a Resolver_t over the given mount table, with a
/// freshly allocated dentry cache.
func MkResolver(mounts *fs.MountTable_t) *Resolver_t {
	return &Resolver_t{Mounts: mounts, Dentry: MkDentryCache(64)}
}

/// Resolve walks path (already canonicalized and absolute) component
/// by component starting from root, crossing mount points and
/// following symlinks up to MaxSymlinkDepth, per spec.md §4.E. It
/// fails with ENOHEAP on res budget exhaustion, with EINVAL when symlinks
/// nest deeper than MaxSymlinkDepth or a symlink target is relative, and
/// otherwise with whatever error a component's Lookup or Readlink
/// returns (ENOENT, ENOTDIR, ...).
func (r *Resolver_t) Resolve(root Node_i, path ustr.Ustr) (Node_i, defs.Err_t) {
	cur := root
	comps := path.Components()
	budget := res.Default()
	depth := 0

	for i := 0; i < len(comps); i++ {
		if !res.Resadd_noblock(budget, res.PathResolve) {
			return nil, defs.ENOHEAP
		}
		comp := comps[i]

		if mnt, ok := r.Mounts.Lookup(rebuild(comps[:i+1])); ok {
			mnt.Ref()
			cur = mnt.Root.(Node_i)
			continue
		}

		next, ok := r.Dentry.Get(cur, comp)
		if !ok {
			var err defs.Err_t
			next, err = cur.Lookup(comp)
			if err != 0 {
				return nil, err
			}
			r.Dentry.Put(cur, comp, next)
		}
		cur = next

		if cur.Type() == NodeSymlink {
			depth++
			if depth > MaxSymlinkDepth {
				return nil, defs.EINVAL
			}
			target, err := cur.Readlink()
			if err != 0 {
				return nil, err
			}
			if !target.IsAbsolute() {
				return nil, defs.EINVAL
			}
			rest := comps[i+1:]
			comps = append(target.Components(), rest...)
			i = -1
			cur = root
		}
	}
	return cur, 0
}

func rebuild(comps []ustr.Ustr) string {
	s := ""
	for _, c := range comps {
		s += "/" + c.String()
	}
	if s == "" {
		return "/"
	}
	return s
}
