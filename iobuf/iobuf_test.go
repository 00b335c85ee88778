package iobuf_test

import (
	"bytes"
	"testing"

	"github.com/sabouaram/memkit/iobuf"
)

func TestBuffer_WriteBytesRoundTrip(t *testing.T) {
	b := iobuf.New(0)

	if _, err := b.Write([]byte("hello ")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if _, err := b.Write([]byte("world")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	if got := b.Len(); got != len("hello world") {
		t.Errorf("Len() = %d, want %d", got, len("hello world"))
	}
	if !bytes.Equal(b.Bytes(), []byte("hello world")) {
		t.Errorf("Bytes() = %q, want %q", b.Bytes(), "hello world")
	}
}

func TestBuffer_DiscardAdvancesCursor(t *testing.T) {
	b := iobuf.New(0)
	_, _ = b.Write([]byte("0123456789"))

	b.Discard(4)

	if got := b.Len(); got != 6 {
		t.Errorf("Len() after Discard(4) = %d, want 6", got)
	}
	if !bytes.Equal(b.Bytes(), []byte("456789")) {
		t.Errorf("Bytes() after Discard(4) = %q, want %q", b.Bytes(), "456789")
	}
}

func TestBuffer_DiscardPastEndConsumesAll(t *testing.T) {
	b := iobuf.New(0)
	_, _ = b.Write([]byte("abc"))

	b.Discard(100)

	if got := b.Len(); got != 0 {
		t.Errorf("Len() after over-Discard = %d, want 0", got)
	}
}

func TestBuffer_CompactOnlyBelowThreshold(t *testing.T) {
	b := iobuf.New(0)

	// a small write followed by a small discard leaves free capacity below
	// the threshold, so compact() should reclaim the consumed prefix.
	_, _ = b.Write([]byte("abcdefgh"))
	b.Discard(4)

	if got := b.Len(); got != 4 {
		t.Errorf("Len() = %d, want 4", got)
	}
	if !bytes.Equal(b.Bytes(), []byte("efgh")) {
		t.Errorf("Bytes() = %q, want %q", b.Bytes(), "efgh")
	}

	// a second write should land right after the compacted data, not at
	// some stale offset.
	_, _ = b.Write([]byte("ij"))
	if !bytes.Equal(b.Bytes(), []byte("efghij")) {
		t.Errorf("Bytes() after compact+write = %q, want %q", b.Bytes(), "efghij")
	}
}

func TestBuffer_WriteRejectsOverMax(t *testing.T) {
	b := iobuf.New(8)

	if _, err := b.Write([]byte("12345678")); err != nil {
		t.Fatalf("Write() at exactly max, error = %v", err)
	}
	if _, err := b.Write([]byte("9")); err == nil {
		t.Fatalf("Write() over max = nil error, want errBufferFull")
	}
}

func TestBuffer_ResetClearsEverything(t *testing.T) {
	b := iobuf.New(0)
	_, _ = b.Write([]byte("some bytes"))
	b.Discard(3)

	b.Reset()

	if got := b.Len(); got != 0 {
		t.Errorf("Len() after Reset = %d, want 0", got)
	}
	if got := len(b.Bytes()); got != 0 {
		t.Errorf("len(Bytes()) after Reset = %d, want 0", got)
	}
}

func TestBuffer_Cap(t *testing.T) {
	if got := iobuf.New(iobuf.DefaultUDPMax).Cap(); got != iobuf.DefaultUDPMax {
		t.Errorf("Cap() = %d, want %d", got, iobuf.DefaultUDPMax)
	}
	if got := iobuf.New(0).Cap(); got != 0 {
		t.Errorf("Cap() for unbounded buffer = %d, want 0", got)
	}
}

func TestVectors_SkipsEmptyParts(t *testing.T) {
	header := []byte{0x01, 0x02}
	var prefix []byte
	payload := []byte("value")

	v := iobuf.Vectors(header, prefix, payload)

	if len(v) != 2 {
		t.Fatalf("len(Vectors()) = %d, want 2", len(v))
	}
	if !bytes.Equal(v[0], header) {
		t.Errorf("Vectors()[0] = %v, want %v", v[0], header)
	}
	if !bytes.Equal(v[1], payload) {
		t.Errorf("Vectors()[1] = %v, want %v", v[1], payload)
	}
}
