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

package binary

import (
	"encoding/binary"

	mcerr "github.com/sabouaram/memkit/errors"
	"github.com/sabouaram/memkit/iobuf"
	"github.com/sabouaram/memkit/proto"
)

// Decode pulls one complete response out of buf and advances its read
// cursor past it. It returns a PartialRead error (buf left untouched) when
// fewer than a full frame's worth of bytes are available yet.
func Decode(buf *iobuf.Buffer) (*proto.Event, error) {
	avail := buf.Bytes()

	if len(avail) < HeaderLen {
		return nil, mcerr.PartialRead.Error(nil)
	}

	h := decodeHeader(avail[:HeaderLen])

	if h.magic != MagicResponse {
		return nil, mcerr.ProtocolError.Error(nil)
	}

	vlen := h.valueLen()
	if vlen < 0 {
		return nil, mcerr.ProtocolError.Error(nil)
	}

	frameLen := HeaderLen + int(h.bodyLen)
	if len(avail) < frameLen {
		return nil, mcerr.PartialRead.Error(nil)
	}

	op, ok := codeToOp[h.opcode]
	if !ok {
		buf.Discard(frameLen)
		return nil, mcerr.ProtocolError.Error(nil)
	}

	body := avail[HeaderLen:frameLen]
	extras := body[:h.extraLen]
	key := body[h.extraLen : int(h.extraLen)+int(h.keyLen)]
	value := body[int(h.extraLen)+int(h.keyLen):]

	ev := &proto.Event{
		Op:     op,
		Status: statusFromWire(h.status),
		Cas:    h.cas,
		Opaque: h.opaque,
	}

	if len(key) > 0 {
		ev.Key = append([]byte(nil), key...)
	}

	switch op {
	case proto.OpGet, proto.OpGetQ, proto.OpGetK, proto.OpGetKQ, proto.OpGat:
		if len(extras) >= 4 {
			ev.Flags = binary.BigEndian.Uint32(extras[0:4])
		}
		ev.Value = append([]byte(nil), value...)
	case proto.OpIncr, proto.OpDecr:
		if h.status == 0 && len(value) >= 8 {
			ev.Delta = binary.BigEndian.Uint64(value[0:8])
		}
	case proto.OpStat:
		if len(key) > 0 {
			ev.StatName = append([]byte(nil), key...)
			ev.StatValue = append([]byte(nil), value...)
		}
	default:
		if len(value) > 0 {
			ev.Value = append([]byte(nil), value...)
		}
	}

	buf.Discard(frameLen)
	return ev, nil
}
