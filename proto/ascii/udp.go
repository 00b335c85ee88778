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

package ascii

import (
	"encoding/binary"
	"time"
)

// UDPHeaderLen is the fixed 8-byte header memcached prepends to every ASCII
// UDP datagram: request-id, sequence-number, total-datagrams, reserved.
const UDPHeaderLen = 8

// UDPTimeout is the hard deadline for reassembling one request's datagrams
// before it is dropped.
const UDPTimeout = 10 * time.Second

// UDPHeader is one datagram's framing fields.
type UDPHeader struct {
	RequestID uint16
	Sequence  uint16
	Total     uint16
}

// EncodeUDPHeader writes the 8-byte datagram header into buf[:8].
func EncodeUDPHeader(buf []byte, h UDPHeader) {
	binary.BigEndian.PutUint16(buf[0:2], h.RequestID)
	binary.BigEndian.PutUint16(buf[2:4], h.Sequence)
	binary.BigEndian.PutUint16(buf[4:6], h.Total)
	binary.BigEndian.PutUint16(buf[6:8], 0)
}

// DecodeUDPHeader reads the 8-byte datagram header from buf[:8].
func DecodeUDPHeader(buf []byte) UDPHeader {
	return UDPHeader{
		RequestID: binary.BigEndian.Uint16(buf[0:2]),
		Sequence:  binary.BigEndian.Uint16(buf[2:4]),
		Total:     binary.BigEndian.Uint16(buf[4:6]),
	}
}

// Reassembler collects the fragments of one in-flight UDP request until
// every sequence number in [0, Total) has arrived, or until it is timed
// out and dropped by the caller.
type Reassembler struct {
	requestID uint16
	total     uint16
	started   time.Time
	fragments map[uint16][]byte
}

// NewReassembler starts tracking fragments for one request id.
func NewReassembler(requestID uint16, total uint16, now time.Time) *Reassembler {
	return &Reassembler{
		requestID: requestID,
		total:     total,
		started:   now,
		fragments: make(map[uint16][]byte, total),
	}
}

// Add records one fragment's payload (the datagram bytes after the 8-byte
// header). It returns the reassembled payload once every fragment in
// [0, Total) has been seen.
func (r *Reassembler) Add(seq uint16, payload []byte) (complete []byte, done bool) {
	if seq >= r.total {
		return nil, false
	}
	if _, dup := r.fragments[seq]; !dup {
		r.fragments[seq] = append([]byte(nil), payload...)
	}

	if uint16(len(r.fragments)) < r.total {
		return nil, false
	}

	out := make([]byte, 0)
	for i := uint16(0); i < r.total; i++ {
		out = append(out, r.fragments[i]...)
	}
	return out, true
}

// Expired reports whether this request has been in flight longer than
// UDPTimeout.
func (r *Reassembler) Expired(now time.Time) bool {
	return now.Sub(r.started) > UDPTimeout
}

// Missing returns the count of fragments never received. Nothing in this
// module feeds it into pkt_drop: the bench worker adds one to pkt_drop per
// timed-out UDP request.
func (r *Reassembler) Missing() int {
	return int(r.total) - len(r.fragments)
}
