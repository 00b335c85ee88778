package proto_test

import (
	"bytes"
	"testing"

	"github.com/sabouaram/memkit/proto"
)

func TestValidateKey_LengthBoundaries(t *testing.T) {
	if err := proto.ValidateKey([]byte(""), nil, true); err == nil {
		t.Errorf("ValidateKey(len 0) = nil, want BadKey")
	}
	if err := proto.ValidateKey(bytes.Repeat([]byte("a"), 250), nil, true); err != nil {
		t.Errorf("ValidateKey(len 250) = %v, want nil", err)
	}
	if err := proto.ValidateKey(bytes.Repeat([]byte("a"), 251), nil, true); err == nil {
		t.Errorf("ValidateKey(len 251) = nil, want BadKey")
	}
}

func TestValidateKey_VerifyKeyRejectsForbiddenBytes(t *testing.T) {
	key := []byte("has space")
	if err := proto.ValidateKey(key, nil, true); err == nil {
		t.Errorf("ValidateKey(space, verify=true) = nil, want BadKey")
	}
	if err := proto.ValidateKey(key, nil, false); err != nil {
		t.Errorf("ValidateKey(space, verify=false) = %v, want nil", err)
	}
}

func TestValidateKey_PrefixCountsTowardLimit(t *testing.T) {
	prefix := bytes.Repeat([]byte("p"), 200)
	key := bytes.Repeat([]byte("k"), 51)
	if err := proto.ValidateKey(key, prefix, true); err == nil {
		t.Errorf("ValidateKey(200+51, prefixed) = nil, want BadKey")
	}
}

func TestWireKeyAndTrimPrefix_RoundTrip(t *testing.T) {
	prefix := []byte("ns:")
	key := []byte("foo")

	wire := proto.WireKey(key, prefix)
	if string(wire) != "ns:foo" {
		t.Fatalf("WireKey() = %q, want %q", wire, "ns:foo")
	}

	back := proto.TrimPrefix(wire, prefix)
	if string(back) != "foo" {
		t.Errorf("TrimPrefix() = %q, want %q", back, "foo")
	}
}

func TestIsNumeric(t *testing.T) {
	cases := map[string]bool{
		"0":     true,
		"12345": true,
		"":      false,
		"-1":    false,
		"1.5":   false,
		"12a":   false,
	}
	for in, want := range cases {
		if got := proto.IsNumeric([]byte(in)); got != want {
			t.Errorf("IsNumeric(%q) = %v, want %v", in, got, want)
		}
	}
}
