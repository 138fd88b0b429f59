package signal

import (
	"testing"

	"rvkernel/defs"
	"rvkernel/hart"
	"rvkernel/tinfo"
)

func TestRaiseMarksPendingAndKillsNote(t *testing.T) {
	st := MkTable()
	var note tinfo.Note_t
	if err := st.Raise(10, &note); err != 0 {
		t.Fatalf("raise failed: %v", err)
	}
	if st.Sigpending()&bit(10) == 0 {
		t.Fatal("expected signal 10 pending")
	}
	if err, ok := note.Check(); !ok || err != defs.EINTR {
		t.Fatalf("expected note killed with EINTR, got ok=%v err=%v", ok, err)
	}
}

func TestRaiseBlockedSignalDoesNotKillNote(t *testing.T) {
	st := MkTable()
	st.Sigprocmask(SIG_SETMASK, bit(5))
	var note tinfo.Note_t
	st.Raise(5, &note)
	if _, ok := note.Check(); ok {
		t.Fatal("expected blocked signal not to interrupt the note")
	}
	if st.Sigpending()&bit(5) == 0 {
		t.Fatal("expected signal 5 still recorded pending")
	}
}

func TestDeliverableSkipsIgnoredAndBlocked(t *testing.T) {
	st := MkTable()
	st.Sigaction(7, Handler_t{Disp: Ign})
	st.Raise(7, nil)
	st.Raise(3, nil)
	st.Sigprocmask(SIG_SETMASK, bit(3))

	signo, _, ok := st.Deliverable()
	if ok {
		t.Fatalf("expected nothing deliverable (7 ignored, 3 blocked), got signo=%d", signo)
	}
	if st.Sigpending() != bit(3) {
		t.Fatal("expected ignored signal 7 cleared from pending and blocked signal 3 still pending")
	}
}

func TestDeliverableReturnsLowestUnblocked(t *testing.T) {
	st := MkTable()
	st.Sigaction(12, Handler_t{Disp: User, Fn: 0x4000})
	st.Sigaction(4, Handler_t{Disp: User, Fn: 0x5000})
	st.Raise(12, nil)
	st.Raise(4, nil)

	signo, h, ok := st.Deliverable()
	if !ok || signo != 4 || h.Fn != 0x5000 {
		t.Fatalf("expected signal 4 first, got signo=%d ok=%v", signo, ok)
	}
	signo, _, ok = st.Deliverable()
	if !ok || signo != 12 {
		t.Fatalf("expected signal 12 next, got signo=%d ok=%v", signo, ok)
	}
}

func TestSigactionRejectsSigkill(t *testing.T) {
	st := MkTable()
	if _, err := st.Sigaction(9, Handler_t{Disp: Ign}); err != defs.EINVAL {
		t.Fatalf("expected EINVAL installing a handler for signal 9, got %v", err)
	}
}

func TestEnterHandlerThenSigreturnRestoresFrame(t *testing.T) {
	st := MkTable()
	var frame hart.TrapFrame_t
	frame.Sepc = 0x1000
	frame.A0 = 42
	frame.Sp = 0x8000

	st.EnterHandler(&frame, 6, 0x2000)
	if frame.Sepc != 0x2000 || frame.A0 != 6 {
		t.Fatalf("expected frame diverted to handler, got pc=%x a0=%d", frame.Sepc, frame.A0)
	}

	if err := st.Sigreturn(&frame); err != 0 {
		t.Fatalf("sigreturn failed: %v", err)
	}
	if frame.Sepc != 0x1000 || frame.A0 != 42 {
		t.Fatalf("expected original frame restored, got pc=%x a0=%d", frame.Sepc, frame.A0)
	}
}

func TestSigreturnWithoutHandlerFails(t *testing.T) {
	st := MkTable()
	var frame hart.TrapFrame_t
	if err := st.Sigreturn(&frame); err != defs.EINVAL {
		t.Fatalf("expected EINVAL, got %v", err)
	}
}
