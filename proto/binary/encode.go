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

// quietVariant swaps a get verb for its quiet counterpart, used by multi-get
// pipelining. Storage ops have no quiet variant here: they are always sent
// with their normal opcode, whatever Quiet or NoReply say.
func quietVariant(op proto.Op) (proto.Op, bool) {
	switch op {
	case proto.OpGet:
		return proto.OpGetQ, true
	case proto.OpGetK:
		return proto.OpGetKQ, true
	}
	return op, false
}

// Encode appends one framed request onto buf. prefix is the configured
// key-prefix (may be nil); verifyKey enables the forbidden-byte key check.
func Encode(buf *iobuf.Buffer, req proto.Request, prefix []byte, verifyKey bool) error {
	wireKey := req.Key
	switch req.Op {
	case proto.OpNoop, proto.OpVersion, proto.OpQuit, proto.OpFlush, proto.OpStat:
		// keyless, or for STAT an optional group name: not validated, not prefixed
	default:
		if err := proto.ValidateKey(req.Key, prefix, verifyKey); err != nil {
			return err
		}
		wireKey = proto.WireKey(req.Key, prefix)
	}

	op := req.Op
	if req.Quiet {
		if q, ok := quietVariant(op); ok {
			op = q
		}
	}

	code, ok := opToCode[op]
	if !ok {
		return mcerr.ProtocolError.Error(nil)
	}

	extras := buildExtras(op, req)

	h := header{
		magic:    MagicRequest,
		opcode:   code,
		keyLen:   uint16(len(wireKey)),
		extraLen: uint8(len(extras)),
		bodyLen:  uint32(len(extras) + len(wireKey) + len(req.Value)),
		opaque:   req.Opaque,
		cas:      req.Cas,
	}

	var hb [HeaderLen]byte
	encodeHeader(h, hb[:])

	buf.MustWrite(hb[:])
	if len(extras) > 0 {
		buf.MustWrite(extras)
	}
	if len(wireKey) > 0 {
		buf.MustWrite(wireKey)
	}
	if len(req.Value) > 0 {
		buf.MustWrite(req.Value)
	}

	return nil
}

func buildExtras(op proto.Op, req proto.Request) []byte {
	switch op {
	case proto.OpSet, proto.OpAdd, proto.OpReplace:
		b := make([]byte, 8)
		binary.BigEndian.PutUint32(b[0:4], req.Flags)
		binary.BigEndian.PutUint32(b[4:8], req.Expiry)
		return b
	case proto.OpIncr, proto.OpDecr:
		b := make([]byte, 20)
		binary.BigEndian.PutUint64(b[0:8], req.Delta)
		binary.BigEndian.PutUint64(b[8:16], req.Initial)
		binary.BigEndian.PutUint32(b[16:20], req.Expiry)
		return b
	case proto.OpFlush:
		if req.Expiry == 0 {
			return nil
		}
		b := make([]byte, 4)
		binary.BigEndian.PutUint32(b, req.Expiry)
		return b
	case proto.OpTouch, proto.OpGat:
		b := make([]byte, 4)
		binary.BigEndian.PutUint32(b, req.Expiry)
		return b
	case proto.OpAppend, proto.OpPrepend:
		return nil
	default:
		return nil
	}
}
