// Package caller provides the debug/panic tooling SPEC_FULL.md module L
// wires into the kernel's halt-on-assertion-violation path (spec.md §7):
// a call-stack dump at the point a hart decides to quiesce, and a filter
// that prints only the first occurrence of each distinct caller chain so a
// busy hart doesn't flood the console with the same trace.
package caller

import (
	"fmt"
	"runtime"
	"strings"
	"sync"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Callerdump prints the call stack starting at the given depth.
//
// Parameters:
//
//	start - stack frame to begin printing.
func Callerdump(start int) {
	i := start
	s := ""
	for {
		_, f, l, ok := runtime.Caller(i)
		if !ok {
			break
		}
		i++
		//li := strings.LastIndex(f, "/")
		//if li != -1 {
		//	f = f[li+1:]
		//}
		if s == "" {
			s = fmt.Sprintf("%s:%d\n", f, l)
		} else {
			s += fmt.Sprintf("\t<-%s:%d\n", f, l)
		}
	}
	fmt.Printf("%s", s)
}

// a type for detecting the first call from each distinct path of ancestor
// callers.
// Distinct_caller_t tracks whether a call chain has been seen before.
// Fields are protected by the embedded mutex.
type Distinct_caller_t struct {
	sync.Mutex
	Enabled bool
	did     map[uintptr]bool
	Whitel  map[string]bool
}

// returns a poor-man's hash of the given RIP values, which is probably unique.
func (dc *Distinct_caller_t) _pchash(pcs []uintptr) uintptr {
	if len(pcs) == 0 {
		panic("d'oh")
	}
	var ret uintptr
	for _, pc := range pcs {
		pc = pc*1103515245 + 12345
		ret ^= pc
	}
	return ret
}

// Len returns the number of unique caller paths recorded.
func (dc *Distinct_caller_t) Len() int {
	dc.Lock()
	ret := len(dc.did)
	dc.Unlock()
	return ret
}

// Distinct reports whether the current call chain is new.
// It returns true along with a formatted stack trace when not seen before.
func (dc *Distinct_caller_t) Distinct() (bool, string) {
	dc.Lock()
	defer dc.Unlock()
	if !dc.Enabled {
		return false, ""
	}

	if dc.did == nil {
		dc.did = make(map[uintptr]bool)
	}

	var pcs []uintptr
	for sz, got := 30, 30; got >= sz; sz *= 2 {
		pcs = make([]uintptr, 30)
		got = runtime.Callers(3, pcs)
		if got == 0 {
			panic("no")
		}
	}
	h := dc._pchash(pcs)
	if ok := dc.did[h]; !ok {
		dc.did[h] = true
		frames := runtime.CallersFrames(pcs)
		fs := ""
		// check for white-listed caller
		for {
			fr, more := frames.Next()
			if ok := dc.Whitel[fr.Function]; ok {
				return false, ""
			}
			if fs == "" {
				fs = fmt.Sprintf("%v (%v:%v)\n", fr.Function,
					fr.File, fr.Line)
			} else {
				fs += fmt.Sprintf("\t%v (%v:%v)\n", fr.Function,
					fr.File, fr.Line)
			}
			if !more || fr.Function == "runtime.goexit" {
				break
			}
		}
		return true, fs
	}
	return false, ""
}

/// SanitizeUTF8 replaces invalid UTF-8 byte sequences with the Unicode
/// replacement character. Panic dumps and crash reports may embed raw
/// kernel buffers (pipe contents, user memory) that are not valid text;
/// printing them unsanitized can corrupt a terminal or a log shipper.
func SanitizeUTF8(s string) string {
	if strings.ToValidUTF8(s, "") == s {
		return s
	}
	t := unicode.UTF8.NewDecoder()
	out, _, err := transform.String(t, s)
	if err != nil {
		return strings.ToValidUTF8(s, "�")
	}
	return out
}

/// PanicGuard recovers a panic at the top of a hart's run loop, dumps the
/// call chain that caused it, and invokes halt (the hart's
/// wait-for-interrupt spin) instead of letting the panic escape and take
/// down the whole process — matching spec.md §7's "halt the offending hart"
/// policy for assertion violations.
func PanicGuard(halt func()) {
	if r := recover(); r != nil {
		fmt.Printf("kernel panic: %v\n", SanitizeUTF8(fmt.Sprint(r)))
		Callerdump(2)
		halt()
	}
}
