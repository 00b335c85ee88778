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
	"bytes"
	"strconv"

	mcerr "github.com/sabouaram/memkit/errors"
	"github.com/sabouaram/memkit/iobuf"
	"github.com/sabouaram/memkit/proto"
)

// pendingValue tracks a VALUE line already consumed while its data block
// (and trailing CRLF) has not yet fully arrived.
type pendingValue struct {
	key    []byte
	flags  uint32
	n      int
	cas    uint64
	hasCas bool
}

// Decoder is a line-driven state machine. It is not safe for concurrent
// use; each connection owns exactly one Decoder for its reply stream.
type Decoder struct {
	pending *pendingValue
}

// Decode pulls one complete event out of buf, or returns PartialRead when
// the next line or value body has not fully arrived yet. An incomplete line
// is left in buf; a VALUE line whose body is still arriving is consumed and
// remembered in pending.
func (d *Decoder) Decode(buf *iobuf.Buffer) (*proto.Event, error) {
	if d.pending != nil {
		return d.decodeValueBody(buf)
	}

	line, ok := readLine(buf)
	if !ok {
		return nil, mcerr.PartialRead.Error(nil)
	}

	fields := bytes.Fields(line)
	if len(fields) == 0 {
		return nil, mcerr.ProtocolError.Error(nil)
	}

	switch string(fields[0]) {
	case "VALUE":
		return d.startValue(buf, fields)
	case "END":
		return &proto.Event{Op: proto.OpGet, Status: mcerr.End}, nil
	case "STORED":
		return &proto.Event{Status: mcerr.Stored}, nil
	case "NOT_STORED":
		return &proto.Event{Status: mcerr.NotStored}, nil
	case "EXISTS":
		return &proto.Event{Status: mcerr.Exists}, nil
	case "NOT_FOUND":
		return &proto.Event{Status: mcerr.NotFound}, nil
	case "DELETED":
		return &proto.Event{Status: mcerr.Deleted}, nil
	case "TOUCHED":
		return &proto.Event{Status: mcerr.Touched}, nil
	case "OK":
		return &proto.Event{Status: mcerr.Success}, nil
	case "ERROR":
		return &proto.Event{Status: mcerr.ProtocolError}, nil
	case "CLIENT_ERROR":
		return &proto.Event{Status: mcerr.ClientError, Value: joinRest(fields)}, nil
	case "SERVER_ERROR":
		return &proto.Event{Status: mcerr.ServerError, Value: joinRest(fields)}, nil
	case "STAT":
		if len(fields) < 3 {
			return nil, mcerr.ProtocolError.Error(nil)
		}
		return &proto.Event{Op: proto.OpStat, Status: mcerr.Stat, StatName: fields[1], StatValue: fields[2]}, nil
	case "VERSION":
		if len(fields) < 2 {
			return &proto.Event{Op: proto.OpVersion, Status: mcerr.Success}, nil
		}
		return &proto.Event{Op: proto.OpVersion, Status: mcerr.Success, Value: fields[1]}, nil
	default:
		// bare decimal replies: incr/decr result, or initial set-if-not-exists.
		if n, err := strconv.ParseUint(string(fields[0]), 10, 64); err == nil {
			return &proto.Event{Status: mcerr.Success, Delta: n}, nil
		}
		return nil, mcerr.ProtocolError.Error(nil)
	}
}

func (d *Decoder) startValue(buf *iobuf.Buffer, fields [][]byte) (*proto.Event, error) {
	if len(fields) < 4 {
		return nil, mcerr.ProtocolError.Error(nil)
	}

	flags, err := strconv.ParseUint(string(fields[2]), 10, 32)
	if err != nil {
		return nil, mcerr.ProtocolError.Error(nil)
	}
	n, err := strconv.Atoi(string(fields[3]))
	if err != nil || n < 0 {
		return nil, mcerr.ProtocolError.Error(nil)
	}

	pv := &pendingValue{
		key:   append([]byte(nil), fields[1]...),
		flags: uint32(flags),
		n:     n,
	}

	if len(fields) >= 5 {
		cas, err := strconv.ParseUint(string(fields[4]), 10, 64)
		if err != nil {
			return nil, mcerr.ProtocolError.Error(nil)
		}
		pv.cas, pv.hasCas = cas, true
	}

	d.pending = pv
	return d.decodeValueBody(buf)
}

func (d *Decoder) decodeValueBody(buf *iobuf.Buffer) (*proto.Event, error) {
	pv := d.pending
	need := pv.n + 2

	if buf.Len() < need {
		return nil, mcerr.PartialRead.Error(nil)
	}

	data := buf.Bytes()[:pv.n]
	ev := &proto.Event{
		Op:     proto.OpGet,
		Status: mcerr.Value,
		Key:    pv.key,
		Value:  append([]byte(nil), data...),
		Flags:  pv.flags,
		Cas:    pv.cas,
	}

	buf.Discard(need)
	d.pending = nil
	return ev, nil
}

// readLine extracts the next CRLF-terminated line from buf, advancing its
// read cursor past the terminator. It returns ok=false (buf untouched) if
// no full line is buffered yet.
func readLine(buf *iobuf.Buffer) (line []byte, ok bool) {
	b := buf.Bytes()
	idx := bytes.Index(b, crlf)
	if idx < 0 {
		return nil, false
	}

	line = append([]byte(nil), b[:idx]...)
	buf.Discard(idx + len(crlf))
	return line, true
}

func joinRest(fields [][]byte) []byte {
	if len(fields) <= 1 {
		return nil
	}
	return bytes.Join(fields[1:], space)
}
