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

// Package binary implements the memcached binary protocol: a 24-byte fixed
// header, big-endian integers, and a body laid out as extras ∥ key ∥ value.
package binary

import (
	"encoding/binary"

	mcerr "github.com/sabouaram/memkit/errors"
	"github.com/sabouaram/memkit/proto"
)

const HeaderLen = 24

const (
	MagicRequest  byte = 0x80
	MagicResponse byte = 0x81
)

// Opcode is the wire opcode byte, one level below proto.Op.
type Opcode byte

const (
	Get       Opcode = 0x00
	Set       Opcode = 0x01
	Add       Opcode = 0x02
	Replace   Opcode = 0x03
	Delete    Opcode = 0x04
	Incr      Opcode = 0x05
	Decr      Opcode = 0x06
	Quit      Opcode = 0x07
	Flush     Opcode = 0x08
	GetQ      Opcode = 0x09
	Noop      Opcode = 0x0A
	Version   Opcode = 0x0B
	GetK      Opcode = 0x0C
	GetKQ     Opcode = 0x0D
	Append    Opcode = 0x0E
	Prepend   Opcode = 0x0F
	Stat      Opcode = 0x10
	Touch     Opcode = 0x1C
	Gat       Opcode = 0x1D
	SaslList  Opcode = 0x20
	SaslAuth  Opcode = 0x21
	SaslStep  Opcode = 0x22
)

var opToCode = map[proto.Op]Opcode{
	proto.OpGet:     Get,
	proto.OpGetQ:    GetQ,
	proto.OpGetK:    GetK,
	proto.OpGetKQ:   GetKQ,
	proto.OpSet:     Set,
	proto.OpAdd:     Add,
	proto.OpReplace: Replace,
	proto.OpDelete:  Delete,
	proto.OpIncr:    Incr,
	proto.OpDecr:    Decr,
	proto.OpQuit:    Quit,
	proto.OpFlush:   Flush,
	proto.OpAppend:  Append,
	proto.OpPrepend: Prepend,
	proto.OpStat:    Stat,
	proto.OpNoop:    Noop,
	proto.OpVersion: Version,
	proto.OpTouch:   Touch,
	proto.OpGat:     Gat,
}

var codeToOp = func() map[Opcode]proto.Op {
	m := make(map[Opcode]proto.Op, len(opToCode))
	for op, code := range opToCode {
		m[code] = op
	}
	return m
}()

// statusFromWire maps the binary protocol's wire status field to the module's
// abstract Status taxonomy.
func statusFromWire(s uint16) mcerr.CodeError {
	switch s {
	case 0x00:
		return mcerr.Success
	case 0x01:
		return mcerr.NotFound
	case 0x02:
		return mcerr.Exists
	case 0x03:
		return mcerr.ValueTooLarge
	case 0x04:
		return mcerr.InvalidArguments
	case 0x05:
		return mcerr.NotStored
	case 0x06:
		return mcerr.IncrDecrOnNonNumeric
	case 0x07:
		return mcerr.ServerError // VbucketBelongsToAnotherServer, no cluster topology here
	case 0x08, 0x09, 0x20:
		return mcerr.ServerError // SASL-related, authentication is out of scope
	case 0x81:
		return mcerr.ProtocolError // UnknownCommand
	case 0x82:
		return mcerr.OutOfMemory
	case 0x83:
		return mcerr.NotSupported
	case 0x84:
		return mcerr.ServerError // InternalError
	case 0x85, 0x86:
		return mcerr.ServerError // Busy / TemporaryFailure
	default:
		return mcerr.ProtocolError
	}
}

// header is the parsed form of the 24-byte fixed frame.
type header struct {
	magic     byte
	opcode    Opcode
	keyLen    uint16
	extraLen  uint8
	dataType  uint8
	status    uint16 // request: vbucket id (unused); response: status
	bodyLen   uint32
	opaque    uint32
	cas       uint64
}

func (h header) valueLen() int {
	return int(h.bodyLen) - int(h.extraLen) - int(h.keyLen)
}

func encodeHeader(h header, buf []byte) {
	buf[0] = h.magic
	buf[1] = byte(h.opcode)
	binary.BigEndian.PutUint16(buf[2:4], h.keyLen)
	buf[4] = h.extraLen
	buf[5] = h.dataType
	binary.BigEndian.PutUint16(buf[6:8], h.status)
	binary.BigEndian.PutUint32(buf[8:12], h.bodyLen)
	binary.BigEndian.PutUint32(buf[12:16], h.opaque)
	binary.BigEndian.PutUint64(buf[16:24], h.cas)
}

func decodeHeader(buf []byte) header {
	return header{
		magic:    buf[0],
		opcode:   Opcode(buf[1]),
		keyLen:   binary.BigEndian.Uint16(buf[2:4]),
		extraLen: buf[4],
		dataType: buf[5],
		status:   binary.BigEndian.Uint16(buf[6:8]),
		bodyLen:  binary.BigEndian.Uint32(buf[8:12]),
		opaque:   binary.BigEndian.Uint32(buf[12:16]),
		cas:      binary.BigEndian.Uint64(buf[16:24]),
	}
}
