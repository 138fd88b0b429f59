package bpath

import (
	"testing"

	"rvkernel/ustr"
)

func TestCanonicalize(t *testing.T) {
	cases := map[string]string{
		"/":                 "/",
		"/a/b/c":            "/a/b/c",
		"/a/./b":            "/a/b",
		"/a/b/..":           "/a",
		"/a/b/../../..":     "/",
		"/a//b///c":         "/a/b/c",
		"/a/b/../c/./d/..":  "/a/c",
	}
	for in, want := range cases {
		got := Canonicalize(ustr.Ustr(in)).String()
		if got != want {
			t.Errorf("Canonicalize(%q) = %q, want %q", in, got, want)
		}
	}
}
