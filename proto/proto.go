/*
 * MIT License
 *
 * Copyright (c) 2024 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

// Package proto defines the logical operations, request/response shapes, and
// key validation rules shared by the ascii and binary wire codecs. Neither
// subpackage owns I/O - they only turn a Request into bytes appended to an
// iobuf.Buffer, and turn bytes pulled from one back into Events.
package proto

import (
	"bytes"

	mcerr "github.com/sabouaram/memkit/errors"
)

// Op identifies a logical memcached operation, independent of which wire
// protocol eventually carries it.
type Op uint8

const (
	OpGet Op = iota
	OpGetQ
	OpGetK
	OpGetKQ
	OpSet
	OpAdd
	OpReplace
	OpDelete
	OpIncr
	OpDecr
	OpQuit
	OpFlush
	OpAppend
	OpPrepend
	OpStat
	OpNoop
	OpVersion
	OpTouch
	OpGat
)

// MaxKeyLength and MinKeyLength bound every key accepted by either codec.
const (
	MinKeyLength = 1
	MaxKeyLength = 250
	MaxPrefixLen = 128
)

// verifyKeyForbidden is the byte set rejected when verify_key is enabled.
var verifyKeyForbidden = [256]bool{0x00: true, 0x20: true, '\r': true, '\n': true}

// Request is everything a codec needs to frame one operation on the wire.
type Request struct {
	Op      Op
	Key     []byte
	Value   []byte
	Flags   uint32
	Expiry  uint32
	Cas     uint64
	Delta   uint64
	Initial uint64
	Opaque  uint32
	NoReply bool
	Quiet   bool // used for pipelined multi-get (GETQ/GETKQ); ignored for other ops
}

// Event is one decoded unit out of the response stream: a value, a bare
// status line, or a stat key/value pair.
type Event struct {
	Op     Op
	Status mcerr.CodeError
	Key    []byte
	Value  []byte
	Flags  uint32
	Cas    uint64
	Delta  uint64 // result of incr/decr
	Opaque uint32
	// StatName/StatValue are populated only for OpStat events; a zero-length
	// StatName signals the end of the stat fan-out for one server.
	StatName  []byte
	StatValue []byte
}

// ValidateKey enforces the length and byte-set rules every operation's key
// must pass before it ever reaches a codec. prefix is the configured
// key-prefix, if any - its length counts toward the 250-byte ceiling since
// it is logically prepended on the wire.
func ValidateKey(key []byte, prefix []byte, verifyKey bool) error {
	n := len(key) + len(prefix)

	if n < MinKeyLength || n > MaxKeyLength {
		return mcerr.BadKey.Error(nil)
	}

	if verifyKey {
		for _, b := range key {
			if verifyKeyForbidden[b] {
				return mcerr.BadKey.Error(nil)
			}
		}
	}

	return nil
}

// WireKey returns the key as it appears on the wire: prefix concatenated
// with the logical key, or the key unchanged when no prefix is configured.
func WireKey(key []byte, prefix []byte) []byte {
	if len(prefix) == 0 {
		return key
	}

	b := make([]byte, 0, len(prefix)+len(key))
	b = append(b, prefix...)
	b = append(b, key...)
	return b
}

// TrimPrefix strips a configured prefix back off a wire key before handing
// it to the caller, so round-tripped keys match what the caller passed in.
func TrimPrefix(wireKey []byte, prefix []byte) []byte {
	if len(prefix) == 0 {
		return wireKey
	}
	return bytes.TrimPrefix(wireKey, prefix)
}

// IsNumeric reports whether v is a valid ASCII decimal integer with no sign,
// the form memcached requires for a storage value used as an incr/decr
// counter.
func IsNumeric(v []byte) bool {
	if len(v) == 0 {
		return false
	}
	for _, b := range v {
		if b < '0' || b > '9' {
			return false
		}
	}
	return true
}
