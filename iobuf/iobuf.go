/*
 * MIT License
 *
 * Copyright (c) 2019 Nicolas JUHEL
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

// Package iobuf implements the per-connection scatter/gather read and write
// buffers. It never performs I/O itself - conn.Conn writes a Buffer's unread
// bytes to the socket and appends bytes read from the socket into one.
package iobuf

import (
	"net"
)

const (
	// DefaultUDPMax is the hard cap on a single UDP datagram buffer.
	DefaultUDPMax = 64 * 1024

	// DefaultTCPSoftCap is the point at which a TCP write buffer is
	// coalesced even though it has no hard maximum.
	DefaultTCPSoftCap = 1024 * 1024

	// compactFreeThreshold is the free-suffix size under which Compact
	// actually moves bytes; above it, Compact is a no-op to avoid churn.
	compactFreeThreshold = 1024
)

// Buffer is a single growable byte container with an independent read
// cursor, used for both the outgoing request side and the incoming response
// side of a connection. It is not safe for concurrent use - each connection
// owns exactly one read Buffer and one write Buffer.
type Buffer struct {
	data []byte
	r    int // read cursor: data[:r] has already been consumed
	max  int // 0 == unbounded (TCP); >0 enforces the datagram cap (UDP)
}

// New returns an empty Buffer. A non-zero max enforces a hard cap (64 KiB
// default for UDP datagrams); zero leaves it unbounded, subject only to the
// soft coalescing cap applied by the caller.
func New(max int) *Buffer {
	return &Buffer{max: max}
}

// Len returns the number of unread bytes.
func (b *Buffer) Len() int {
	return len(b.data) - b.r
}

// Cap returns the configured hard maximum, or 0 if unbounded.
func (b *Buffer) Cap() int {
	return b.max
}

// Bytes returns the unread portion of the buffer. The slice is only valid
// until the next mutating call.
func (b *Buffer) Bytes() []byte {
	return b.data[b.r:]
}

// Write appends p to the buffer, growing it as needed. It fails closed
// against the configured max rather than silently truncating, so a runaway
// value surfaces as an error instead of a corrupted frame.
func (b *Buffer) Write(p []byte) (int, error) {
	if b.max > 0 && len(b.data)-b.r+len(p) > b.max {
		return 0, errBufferFull
	}
	b.data = append(b.data, p...)
	return len(p), nil
}

// MustWrite is Write without the error return, for call sites (codec
// encoders) that already validated the total frame size up front.
func (b *Buffer) MustWrite(p []byte) {
	b.data = append(b.data, p...)
}

// Fill appends freshly read socket bytes. Unlike Write it does not check
// the configured max.
func (b *Buffer) Fill(p []byte) {
	b.data = append(b.data, p...)
}

// Discard advances the read cursor by n bytes, marking them consumed by the
// codec. An n past the end of the buffer consumes every unread byte.
func (b *Buffer) Discard(n int) {
	b.r += n
	if b.r > len(b.data) {
		b.r = len(b.data)
	}
	b.compact()
}

// Reset discards every byte, parsed or not.
func (b *Buffer) Reset() {
	b.data = b.data[:0]
	b.r = 0
}

// compact discards already-parsed prefix bytes, but only once the unused
// suffix capacity has shrunk below compactFreeThreshold, to avoid copying
// on every small Discard.
func (b *Buffer) compact() {
	if b.r == 0 {
		return
	}
	free := cap(b.data) - len(b.data)
	if free >= compactFreeThreshold && b.r < len(b.data) {
		return
	}
	n := copy(b.data, b.data[b.r:])
	b.data = b.data[:n]
	b.r = 0
}

// Vectors builds a scatter/gather view (net.Buffers) over header, an
// optional key prefix, and payload without copying any of them into a
// Buffer first.
func Vectors(parts ...[]byte) net.Buffers {
	v := make(net.Buffers, 0, len(parts))
	for _, p := range parts {
		if len(p) > 0 {
			v = append(v, p)
		}
	}
	return v
}
