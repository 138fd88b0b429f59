// Package stats implements the scheduler/allocator instrumentation of
// SPEC_FULL.md module K: always-on Counter_t/Cycles_t fields embedded in
// the allocator and scheduler, and a ToProfile export that renders a
// snapshot as a github.com/google/pprof/profile.Profile so the counters
// can be inspected with the standard pprof toolchain (go tool pprof)
// instead of a kernel-specific dump format. Grounded on the teacher's
// stats.Counter_t/Cycles_t, whose Inc/Add were compiled out entirely
// behind `const Stats = false` / `const Timing = false` and a
// runtime.Rdtsc() hook from the teacher's patched Go runtime. Neither
// constant gate nor Rdtsc survive here: counters are unconditionally
// live (cheap atomic adds), and Cycles_t measures wall-clock nanoseconds
// via time.Now instead of a cycle counter, since stock Go exposes no
// RDTSC intrinsic.
package stats

import (
	"reflect"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/google/pprof/profile"
)

/// Counter_t is a statistical counter, incremented with atomic adds so it
/// can be read from any hart without external locking.
type Counter_t int64

/// Cycles_t accumulates elapsed nanoseconds between a Now() reading and a
/// later Add call.
type Cycles_t int64

/// Now returns a timestamp suitable for passing to Cycles_t.Add.
func Now() uint64 {
	return uint64(time.Now().UnixNano())
}

/// Inc increments the counter by one.
func (c *Counter_t) Inc() {
	n := (*int64)(unsafe.Pointer(c))
	atomic.AddInt64(n, 1)
}

/// Add adds delta to the counter.
func (c *Counter_t) Add(delta int64) {
	n := (*int64)(unsafe.Pointer(c))
	atomic.AddInt64(n, delta)
}

/// Add adds nanoseconds elapsed since m to the cycle count.
func (c *Cycles_t) Add(m uint64) {
	n := (*int64)(unsafe.Pointer(c))
	atomic.AddInt64(n, int64(Now()-m))
}

/// Stats2String converts a struct of counters to a printable string,
/// listing each Counter_t/Cycles_t field by name.
func Stats2String(st interface{}) string {
	v := reflect.ValueOf(st)
	s := ""
	for i := 0; i < v.NumField(); i++ {
		t := v.Field(i).Type().String()
		if strings.HasSuffix(t, "Counter_t") {
			n := v.Field(i).Interface().(Counter_t)
			s += "\n\t#" + v.Type().Field(i).Name + ": " + strconv.FormatInt(int64(n), 10)
		}
		if strings.HasSuffix(t, "Cycles_t") {
			n := v.Field(i).Interface().(Cycles_t)
			s += "\n\t#" + v.Type().Field(i).Name + ": " + strconv.FormatInt(int64(n), 10)
		}
	}
	return s + "\n"
}

/// ToProfile renders a struct of Counter_t/Cycles_t fields as a pprof
/// Profile with one sample per field, so the counters can be written with
/// (*profile.Profile).Write and inspected with `go tool pprof`.
func ToProfile(name string, st interface{}) *profile.Profile {
	v := reflect.ValueOf(st)
	valType := &profile.ValueType{Type: "count", Unit: "count"}
	fn := &profile.Function{ID: 1, Name: name}
	loc := &profile.Location{ID: 1, Line: []profile.Line{{Function: fn}}}
	p := &profile.Profile{
		SampleType: []*profile.ValueType{valType},
		Function:   []*profile.Function{fn},
		Location:   []*profile.Location{loc},
		TimeNanos:  time.Now().UnixNano(),
	}
	for i := 0; i < v.NumField(); i++ {
		t := v.Field(i).Type().String()
		var val int64
		switch {
		case strings.HasSuffix(t, "Counter_t"):
			val = int64(v.Field(i).Interface().(Counter_t))
		case strings.HasSuffix(t, "Cycles_t"):
			val = int64(v.Field(i).Interface().(Cycles_t))
		default:
			continue
		}
		p.Sample = append(p.Sample, &profile.Sample{
			Location: []*profile.Location{loc},
			Value:    []int64{val},
			Label:    map[string][]string{"field": {v.Type().Field(i).Name}},
		})
	}
	return p
}
