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
	"strconv"

	mcerr "github.com/sabouaram/memkit/errors"
	"github.com/sabouaram/memkit/iobuf"
	"github.com/sabouaram/memkit/proto"
)

// Encode appends one framed ASCII command onto buf.
func Encode(buf *iobuf.Buffer, req proto.Request, prefix []byte, verifyKey bool) error {
	switch req.Op {
	case proto.OpTouch, proto.OpGat:
		return mcerr.NotSupported.Error(nil)
	}

	if len(req.Key) > 0 {
		if err := proto.ValidateKey(req.Key, prefix, verifyKey); err != nil {
			return err
		}
	}

	wireKey := proto.WireKey(req.Key, prefix)

	switch req.Op {
	case proto.OpSet, proto.OpAdd, proto.OpReplace, proto.OpAppend, proto.OpPrepend:
		return encodeStorage(buf, req, wireKey)
	case proto.OpGet, proto.OpGetK:
		return encodeGet(buf, [][]byte{wireKey}, false)
	case proto.OpIncr:
		return encodeDelta(buf, "incr", wireKey, req.Delta, req.NoReply)
	case proto.OpDecr:
		return encodeDelta(buf, "decr", wireKey, req.Delta, req.NoReply)
	case proto.OpDelete:
		return encodeDelete(buf, wireKey, req.Expiry, req.NoReply)
	case proto.OpFlush:
		return encodeFlush(buf, req.Expiry, req.NoReply)
	case proto.OpStat:
		return encodeStat(buf, req.Key)
	case proto.OpVersion:
		buf.MustWrite([]byte("version\r\n"))
		return nil
	case proto.OpQuit:
		buf.MustWrite([]byte("quit\r\n"))
		return nil
	case proto.OpNoop:
		// the ASCII protocol has no barrier command; mget's NOOP role is
		// unnecessary since "get k1 k2 k3" already answers in one round trip.
		return nil
	default:
		return mcerr.ProtocolError.Error(nil)
	}
}

// EncodeMultiGet appends a single multi-key get/gets command. withCas
// selects "gets" so the reply carries a CAS token per value.
func EncodeMultiGet(buf *iobuf.Buffer, keys [][]byte, prefix []byte, verifyKey bool, withCas bool) error {
	wireKeys := make([][]byte, 0, len(keys))
	for _, k := range keys {
		if err := proto.ValidateKey(k, prefix, verifyKey); err != nil {
			return err
		}
		wireKeys = append(wireKeys, proto.WireKey(k, prefix))
	}
	return encodeGet(buf, wireKeys, withCas)
}

func encodeGet(buf *iobuf.Buffer, keys [][]byte, withCas bool) error {
	if withCas {
		buf.MustWrite([]byte("gets"))
	} else {
		buf.MustWrite([]byte("get"))
	}
	for _, k := range keys {
		buf.MustWrite(space)
		buf.MustWrite(k)
	}
	buf.MustWrite(crlf)
	return nil
}

func storageVerb(op proto.Op, hasCas bool) string {
	if hasCas {
		return "cas"
	}
	switch op {
	case proto.OpSet:
		return "set"
	case proto.OpAdd:
		return "add"
	case proto.OpReplace:
		return "replace"
	case proto.OpAppend:
		return "append"
	case proto.OpPrepend:
		return "prepend"
	}
	return "set"
}

func encodeStorage(buf *iobuf.Buffer, req proto.Request, wireKey []byte) error {
	verb := storageVerb(req.Op, req.Cas != 0)

	buf.MustWrite([]byte(verb))
	buf.MustWrite(space)
	buf.MustWrite(wireKey)
	buf.MustWrite(space)
	buf.MustWrite([]byte(strconv.FormatUint(uint64(req.Flags), 10)))
	buf.MustWrite(space)
	buf.MustWrite([]byte(strconv.FormatUint(uint64(req.Expiry), 10)))
	buf.MustWrite(space)
	buf.MustWrite([]byte(strconv.Itoa(len(req.Value))))

	if req.Cas != 0 {
		buf.MustWrite(space)
		buf.MustWrite([]byte(strconv.FormatUint(req.Cas, 10)))
	}
	if req.NoReply {
		buf.MustWrite([]byte(" noreply"))
	}
	buf.MustWrite(crlf)
	buf.MustWrite(req.Value)
	buf.MustWrite(crlf)

	return nil
}

func encodeDelta(buf *iobuf.Buffer, verb string, wireKey []byte, delta uint64, noReply bool) error {
	buf.MustWrite([]byte(verb))
	buf.MustWrite(space)
	buf.MustWrite(wireKey)
	buf.MustWrite(space)
	buf.MustWrite([]byte(strconv.FormatUint(delta, 10)))
	if noReply {
		buf.MustWrite([]byte(" noreply"))
	}
	buf.MustWrite(crlf)
	return nil
}

func encodeDelete(buf *iobuf.Buffer, wireKey []byte, expiry uint32, noReply bool) error {
	buf.MustWrite([]byte("delete"))
	buf.MustWrite(space)
	buf.MustWrite(wireKey)
	if expiry > 0 {
		buf.MustWrite(space)
		buf.MustWrite([]byte(strconv.FormatUint(uint64(expiry), 10)))
	}
	if noReply {
		buf.MustWrite([]byte(" noreply"))
	}
	buf.MustWrite(crlf)
	return nil
}

func encodeFlush(buf *iobuf.Buffer, expiry uint32, noReply bool) error {
	buf.MustWrite([]byte("flush_all"))
	if expiry > 0 {
		buf.MustWrite(space)
		buf.MustWrite([]byte(strconv.FormatUint(uint64(expiry), 10)))
	}
	if noReply {
		buf.MustWrite([]byte(" noreply"))
	}
	buf.MustWrite(crlf)
	return nil
}

func encodeStat(buf *iobuf.Buffer, name []byte) error {
	buf.MustWrite([]byte("stats"))
	if len(name) > 0 {
		buf.MustWrite(space)
		buf.MustWrite(name)
	}
	buf.MustWrite(crlf)
	return nil
}
