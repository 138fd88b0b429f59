package pipe

import (
	"testing"
	"time"

	"rvkernel/defs"
	"rvkernel/tinfo"
)

type memUio struct {
	buf []byte
	off int
}

func (m *memUio) Uioread(dst []uint8) (int, defs.Err_t) {
	n := copy(dst, m.buf[m.off:])
	m.off += n
	return n, 0
}

func (m *memUio) Uiowrite(src []uint8) (int, defs.Err_t) {
	m.buf = append(m.buf[:m.off], src...)
	m.off += len(src)
	return len(src), 0
}

func (m *memUio) Remain() int  { return len(m.buf) - m.off }
func (m *memUio) Totalsz() int { return len(m.buf) }

func TestWriteThenReadRoundtrip(t *testing.T) {
	sd := MkSharedData()
	w := &memUio{buf: []byte("hello")}
	n, err := sd.Write(w, false, nil)
	if err != 0 || n != 5 {
		t.Fatalf("write: n=%d err=%v", n, err)
	}
	r := &memUio{buf: make([]byte, 5)}
	n, err = sd.Read(r, false, nil)
	if err != 0 || n != 5 {
		t.Fatalf("read: n=%d err=%v", n, err)
	}
	if string(r.buf) != "hello" {
		t.Fatalf("got %q", r.buf)
	}
}

func TestReadOnEmptyNonblockingReturnsEagain(t *testing.T) {
	sd := MkSharedData()
	r := &memUio{buf: make([]byte, 1)}
	if _, err := sd.Read(r, false, nil); err != defs.EAGAIN {
		t.Fatalf("expected EAGAIN, got %v", err)
	}
}

func TestReadAfterWriterGoneReturnsEOF(t *testing.T) {
	sd := MkSharedData()
	sd.Release(true) // last writer handle gone, no data ever written
	r := &memUio{buf: make([]byte, 1)}
	n, err := sd.Read(r, true, nil)
	if err != 0 || n != 0 {
		t.Fatalf("expected (0, 0) EOF, got n=%d err=%v", n, err)
	}
}

func TestWriteAfterAllReadersGoneReturnsEPIPE(t *testing.T) {
	sd := MkSharedData()
	sd.Release(false) // last read handle gone
	w := &memUio{buf: []byte("x")}
	if _, err := sd.Write(w, false, nil); err != defs.EPIPE {
		t.Fatalf("expected EPIPE, got %v", err)
	}
}

func TestBlockingReadWakesOnWrite(t *testing.T) {
	sd := MkSharedData()
	done := make(chan struct{})
	var n int
	var err defs.Err_t
	go func() {
		r := &memUio{buf: make([]byte, 3)}
		n, err = sd.Read(r, true, nil)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond) // let the reader park
	w := &memUio{buf: []byte("abc")}
	if _, werr := sd.Write(w, true, nil); werr != 0 {
		t.Fatalf("write failed: %v", werr)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("blocked reader never woke")
	}
	if err != 0 || n != 3 {
		t.Fatalf("reader got n=%d err=%v", n, err)
	}
}

func TestInterruptedReadRemovedFromWaiterList(t *testing.T) {
	sd := MkSharedData()
	note := &tinfo.Note_t{}
	done := make(chan struct{})
	var err defs.Err_t
	go func() {
		r := &memUio{buf: make([]byte, 1)}
		_, err = sd.Read(r, true, note)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond) // let the reader park
	note.Kill(defs.EINTR)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("interrupted reader never woke")
	}
	if err != defs.EINTR {
		t.Fatalf("expected EINTR, got %v", err)
	}

	sd.Lock()
	leaked := sd.readers != nil
	sd.Unlock()
	if leaked {
		t.Fatal("interrupted waiter left on the readers list")
	}
}

func TestFullBufferBlocksWriterUntilDrained(t *testing.T) {
	sd := MkSharedData()
	full := make([]byte, pipeBufSize)
	if _, err := sd.Write(&memUio{buf: full}, true, nil); err != 0 {
		t.Fatalf("fill failed: %v", err)
	}

	done := make(chan struct{})
	var n int
	var err defs.Err_t
	go func() {
		n, err = sd.Write(&memUio{buf: []byte("more")}, true, nil)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond) // let the writer park
	drain := make([]byte, pipeBufSize)
	if _, rerr := sd.Read(&memUio{buf: drain}, true, nil); rerr != 0 {
		t.Fatalf("drain failed: %v", rerr)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("blocked writer never woke")
	}
	if err != 0 || n != 4 {
		t.Fatalf("writer got n=%d err=%v", n, err)
	}
}
