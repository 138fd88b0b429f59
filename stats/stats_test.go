package stats

import (
	"bytes"
	"testing"
)

type sampleStats struct {
	Allocs Counter_t
	Frees  Counter_t
	Spin   Cycles_t
}

func TestCounterInc(t *testing.T) {
	var c Counter_t
	c.Inc()
	c.Inc()
	if c != 2 {
		t.Fatalf("expected 2, got %d", c)
	}
}

func TestCyclesAdd(t *testing.T) {
	var cy Cycles_t
	start := Now()
	cy.Add(start)
	if cy < 0 {
		t.Fatal("expected non-negative elapsed time")
	}
}

func TestStats2String(t *testing.T) {
	s := sampleStats{Allocs: 3, Frees: 1}
	out := Stats2String(s)
	if !bytes.Contains([]byte(out), []byte("Allocs: 3")) {
		t.Fatalf("expected Allocs field in output, got %q", out)
	}
}

func TestToProfile(t *testing.T) {
	s := sampleStats{Allocs: 5, Frees: 2}
	p := ToProfile("kernel_stats", s)
	if len(p.Sample) != 3 {
		t.Fatalf("expected 3 samples (Allocs, Frees, Spin), got %d", len(p.Sample))
	}
	var buf bytes.Buffer
	if err := p.Write(&buf); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if buf.Len() == 0 {
		t.Fatal("expected non-empty encoded profile")
	}
}
