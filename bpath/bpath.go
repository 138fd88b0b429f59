// Package bpath canonicalizes absolute paths by resolving "." and ".."
// components without touching the filesystem. It backs Cwd_t.Canonicalpath
// (vfs package), matching the teacher's fd.Cwd_t.Canonicalpath contract.
package bpath

import "rvkernel/ustr"

/// Canonicalize resolves "." and ".." components of an absolute path p
/// purely lexically and returns a normalized absolute Ustr. The input must
/// already be absolute (start with '/'); Canonicalize panics otherwise,
/// since callers are expected to have joined against a cwd first.
func Canonicalize(p ustr.Ustr) ustr.Ustr {
	if !p.IsAbsolute() {
		panic("bpath.Canonicalize: not absolute")
	}
	comps := p.Components()
	stack := make([]ustr.Ustr, 0, len(comps))
	for _, c := range comps {
		switch {
		case c.Isdot():
			continue
		case c.Isdotdot():
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		default:
			stack = append(stack, c)
		}
	}
	if len(stack) == 0 {
		return ustr.MkUstrRoot()
	}
	ret := ustr.MkUstr()
	for _, c := range stack {
		ret = append(ret, '/')
		ret = append(ret, c...)
	}
	return ret
}
