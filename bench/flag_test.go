package bench

import "testing"

func TestFlagStartsUnset(t *testing.T) {
	var f Flag
	if f.IsSet() {
		t.Fatal("a fresh Flag must start unset")
	}
}

func TestFlagSetIsIdempotentAndObservable(t *testing.T) {
	var f Flag
	f.Set()
	f.Set()
	if !f.IsSet() {
		t.Fatal("Flag must report set after Set")
	}
}
