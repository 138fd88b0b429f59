package hart

import "testing"

func TestArgsAndSysno(t *testing.T) {
	var tf TrapFrame_t
	tf.A0, tf.A1, tf.A2, tf.A3, tf.A4, tf.A5, tf.A6 = 1, 2, 3, 4, 5, 6, 7
	tf.A7 = 64
	args := tf.Args()
	want := [7]uint64{1, 2, 3, 4, 5, 6, 7}
	if args != want {
		t.Fatalf("expected %v, got %v", want, args)
	}
	if tf.Sysno() != 64 {
		t.Fatalf("expected sysno 64, got %d", tf.Sysno())
	}
}

func TestRetval(t *testing.T) {
	var tf TrapFrame_t
	tf.SetRetval(42)
	if tf.Retval() != 42 {
		t.Fatalf("expected retval 42, got %d", tf.Retval())
	}
}

func TestSwapExchangesLiveState(t *testing.T) {
	live := &TrapFrame_t{Sepc: 0x1000}
	saved := &TrapFrame_t{}
	resume := &TrapFrame_t{Sepc: 0x2000}

	Swap(live, saved, resume)

	if saved.Sepc != 0x1000 {
		t.Fatalf("expected saved frame to capture prior live state, got %x", saved.Sepc)
	}
	if live.Sepc != 0x2000 {
		t.Fatalf("expected live frame to now hold resumed state, got %x", live.Sepc)
	}
}

func TestMkHartFrameIdlesWithNoCurrent(t *testing.T) {
	hf := MkHartFrame(3)
	if hf.Hartid != 3 {
		t.Fatalf("expected hartid 3, got %d", hf.Hartid)
	}
	if hf.Current != nil {
		t.Fatal("expected a freshly made hart frame to have no current task")
	}
}
