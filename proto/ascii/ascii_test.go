package ascii_test

import (
	"testing"
	"time"

	mcerr "github.com/sabouaram/memkit/errors"
	"github.com/sabouaram/memkit/iobuf"
	"github.com/sabouaram/memkit/proto"
	"github.com/sabouaram/memkit/proto/ascii"
)

func TestEncodeThenDecode_SetStored(t *testing.T) {
	buf := iobuf.New(0)
	if err := ascii.Encode(buf, proto.Request{Op: proto.OpSet, Key: []byte("foo"), Value: []byte("bar")}, nil, true); err != nil {
		t.Fatalf("Encode(SET) error = %v", err)
	}

	want := "set foo 0 0 3\r\nbar\r\n"
	if got := string(buf.Bytes()); got != want {
		t.Fatalf("encoded = %q, want %q", got, want)
	}

	resp := iobuf.New(0)
	resp.MustWrite([]byte("STORED\r\n"))

	var d ascii.Decoder
	ev, err := d.Decode(resp)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if ev.Status != mcerr.Stored {
		t.Errorf("Status = %v, want Stored", ev.Status)
	}
}

func TestDecode_ValueThenEnd(t *testing.T) {
	resp := iobuf.New(0)
	resp.MustWrite([]byte("VALUE foo 0 3\r\nbar\r\nEND\r\n"))

	var d ascii.Decoder

	ev, err := d.Decode(resp)
	if err != nil {
		t.Fatalf("Decode() value error = %v", err)
	}
	if ev.Status != mcerr.Value || string(ev.Value) != "bar" || string(ev.Key) != "foo" {
		t.Errorf("event = %+v, want Value bar for key foo", ev)
	}

	ev, err = d.Decode(resp)
	if err != nil {
		t.Fatalf("Decode() end error = %v", err)
	}
	if ev.Status != mcerr.End {
		t.Errorf("Status = %v, want End", ev.Status)
	}
}

func TestDecode_ValueSplitAcrossReads(t *testing.T) {
	resp := iobuf.New(0)
	resp.MustWrite([]byte("VALUE foo 0 5\r\nhel"))

	var d ascii.Decoder
	if _, err := d.Decode(resp); err == nil {
		t.Fatalf("Decode() on partial value body = nil error, want PartialRead")
	}

	resp.MustWrite([]byte("lo\r\n"))
	ev, err := d.Decode(resp)
	if err != nil {
		t.Fatalf("Decode() after completion error = %v", err)
	}
	if string(ev.Value) != "hello" {
		t.Errorf("Value = %q, want %q", ev.Value, "hello")
	}
}

func TestDecode_ClientAndServerError(t *testing.T) {
	resp := iobuf.New(0)
	resp.MustWrite([]byte("CLIENT_ERROR bad command line format\r\n"))

	var d ascii.Decoder
	ev, err := d.Decode(resp)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if ev.Status != mcerr.ClientError {
		t.Errorf("Status = %v, want ClientError", ev.Status)
	}
}

func TestEncode_TouchNotSupportedOnAscii(t *testing.T) {
	buf := iobuf.New(0)
	err := ascii.Encode(buf, proto.Request{Op: proto.OpTouch, Key: []byte("foo"), Expiry: 10}, nil, true)
	if err == nil {
		t.Fatalf("Encode(TOUCH) = nil error, want NotSupported")
	}
	if buf.Len() != 0 {
		t.Errorf("buf.Len() after rejected encode = %d, want 0", buf.Len())
	}
}

func TestEncodeMultiGet(t *testing.T) {
	buf := iobuf.New(0)
	err := ascii.EncodeMultiGet(buf, [][]byte{[]byte("a"), []byte("b"), []byte("c")}, nil, true, false)
	if err != nil {
		t.Fatalf("EncodeMultiGet() error = %v", err)
	}
	if got, want := string(buf.Bytes()), "get a b c\r\n"; got != want {
		t.Errorf("encoded = %q, want %q", got, want)
	}
}

func TestUDPReassembler_OutOfOrderFragments(t *testing.T) {
	now := time.Unix(1000, 0)
	r := ascii.NewReassembler(42, 3, now)

	if _, done := r.Add(2, []byte("ghi")); done {
		t.Fatalf("Add(2) reported done with only 1/3 fragments")
	}
	if _, done := r.Add(0, []byte("abc")); done {
		t.Fatalf("Add(0) reported done with only 2/3 fragments")
	}

	got, done := r.Add(1, []byte("def"))
	if !done {
		t.Fatalf("Add(1) expected done=true with all 3/3 fragments")
	}
	if string(got) != "abcdefghi" {
		t.Errorf("reassembled = %q, want %q", got, "abcdefghi")
	}
}

func TestUDPReassembler_MissingFragmentAfterTimeout(t *testing.T) {
	start := time.Unix(1000, 0)
	r := ascii.NewReassembler(7, 3, start)
	r.Add(0, []byte("a"))
	r.Add(2, []byte("c"))

	later := start.Add(ascii.UDPTimeout + time.Second)
	if !r.Expired(later) {
		t.Fatalf("Expired() = false after exceeding UDPTimeout")
	}
	if got := r.Missing(); got != 1 {
		t.Errorf("Missing() = %d, want 1", got)
	}
}
