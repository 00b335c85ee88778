package binary_test

import (
	"testing"

	"github.com/sabouaram/memkit/iobuf"
	"github.com/sabouaram/memkit/proto"
	"github.com/sabouaram/memkit/proto/binary"
)

func TestEncodeSet_DecodeSetResponse(t *testing.T) {
	buf := iobuf.New(0)

	err := binary.Encode(buf, proto.Request{
		Op:     proto.OpSet,
		Key:    []byte("foo"),
		Value:  []byte("bar"),
		Flags:  7,
		Expiry: 60,
	}, nil, true)
	if err != nil {
		t.Fatalf("Encode(SET) error = %v", err)
	}

	// synthesize a SET response: header only, status success.
	resp := iobuf.New(0)
	resp.MustWrite(buildResponseHeader(t, 0x01, 0, 0, 0, 0, 0))

	ev, err := binary.Decode(resp)
	if err != nil {
		t.Fatalf("Decode(SET response) error = %v", err)
	}
	if ev.Op != proto.OpSet {
		t.Errorf("Op = %v, want OpSet", ev.Op)
	}
}

func TestDecode_PartialReadLeavesBufferUntouched(t *testing.T) {
	buf := iobuf.New(0)
	buf.MustWrite([]byte{0x81, 0x00, 0x00, 0x03}) // truncated header

	_, err := binary.Decode(buf)
	if err == nil {
		t.Fatalf("Decode() on truncated header = nil error, want PartialRead")
	}
	if got := buf.Len(); got != 4 {
		t.Errorf("buf.Len() after partial decode = %d, want 4 (untouched)", got)
	}
}

func TestEncode_RejectsOversizeKey(t *testing.T) {
	buf := iobuf.New(0)
	key := make([]byte, 251)

	err := binary.Encode(buf, proto.Request{Op: proto.OpGet, Key: key}, nil, true)
	if err == nil {
		t.Fatalf("Encode() with 251-byte key = nil error, want BadKey")
	}
}

func TestEncode_RejectsForbiddenByteWhenVerifyKey(t *testing.T) {
	buf := iobuf.New(0)

	err := binary.Encode(buf, proto.Request{Op: proto.OpGet, Key: []byte("has space")}, nil, true)
	if err == nil {
		t.Fatalf("Encode() with space in key and verifyKey=true = nil error, want BadKey")
	}

	err = binary.Encode(buf, proto.Request{Op: proto.OpGet, Key: []byte("has space")}, nil, false)
	if err != nil {
		t.Errorf("Encode() with space in key and verifyKey=false = %v, want nil", err)
	}
}

// buildResponseHeader is a tiny test helper assembling a 24-byte binary
// response header with no body, mirroring decodeHeader's field order.
func buildResponseHeader(t *testing.T, opcode byte, keyLen uint16, extraLen uint8, status uint16, bodyLen uint32, cas uint64) []byte {
	t.Helper()
	b := make([]byte, 24)
	b[0] = 0x81
	b[1] = opcode
	b[2] = byte(keyLen >> 8)
	b[3] = byte(keyLen)
	b[4] = extraLen
	b[5] = 0
	b[6] = byte(status >> 8)
	b[7] = byte(status)
	b[8] = byte(bodyLen >> 24)
	b[9] = byte(bodyLen >> 16)
	b[10] = byte(bodyLen >> 8)
	b[11] = byte(bodyLen)
	return b
}
