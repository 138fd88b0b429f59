package accnt

import "testing"

func TestToRusage(t *testing.T) {
	a := &Accnt_t{}
	a.Utadd(int(2_500_000)) // 2.5ms user
	a.Systadd(int(1_000_000))
	ru := a.To_rusage()
	if len(ru) != 32 {
		t.Fatalf("expected 32 bytes, got %d", len(ru))
	}
}

func TestAdd(t *testing.T) {
	a := &Accnt_t{Userns: 10, Sysns: 20}
	b := &Accnt_t{Userns: 1, Sysns: 2}
	a.Add(b)
	if a.Userns != 11 || a.Sysns != 22 {
		t.Fatalf("got %d %d", a.Userns, a.Sysns)
	}
}
