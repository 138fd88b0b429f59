package circbuf

import (
	"bytes"
	"testing"

	"rvkernel/defs"
)

type bufio struct {
	data []byte
	pos  int
}

func (b *bufio) Uioread(dst []uint8) (int, defs.Err_t) {
	n := copy(dst, b.data[b.pos:])
	b.pos += n
	return n, 0
}

func (b *bufio) Uiowrite(src []uint8) (int, defs.Err_t) {
	b.data = append(b.data, src...)
	return len(src), 0
}

func (b *bufio) Remain() int   { return len(b.data) - b.pos }
func (b *bufio) Totalsz() int  { return len(b.data) }

func TestCopyinCopyoutRoundtrip(t *testing.T) {
	var cb Circbuf_t
	cb.Cb_init(16)

	src := &bufio{data: []byte("hello world")}
	n, err := cb.Copyin(src)
	if err != 0 {
		t.Fatalf("copyin failed: %v", err)
	}
	if n != len(src.data) {
		t.Fatalf("expected %d bytes copied in, got %d", len(src.data), n)
	}

	dst := &bufio{}
	n, err = cb.Copyout(dst)
	if err != 0 {
		t.Fatalf("copyout failed: %v", err)
	}
	if !bytes.Equal(dst.data, []byte("hello world")) {
		t.Fatalf("got %q", dst.data)
	}
	if !cb.Empty() {
		t.Fatal("expected buffer empty after full copyout")
	}
}

func TestFullBlocksFurtherWrites(t *testing.T) {
	var cb Circbuf_t
	cb.Cb_init(4)
	src := &bufio{data: []byte("abcd")}
	cb.Copyin(src)
	if !cb.Full() {
		t.Fatal("expected buffer full")
	}
	more := &bufio{data: []byte("e")}
	n, _ := cb.Copyin(more)
	if n != 0 {
		t.Fatal("expected no bytes copied into full buffer")
	}
}

func TestWraparound(t *testing.T) {
	var cb Circbuf_t
	cb.Cb_init(4)
	cb.Copyin(&bufio{data: []byte("ab")})
	cb.Copyout(&bufio{})
	cb.Copyin(&bufio{data: []byte("cdef")[:2]})
	out := &bufio{}
	cb.Copyout(out)
	if string(out.data) != "cd" {
		t.Fatalf("got %q", out.data)
	}
}
