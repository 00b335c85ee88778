/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
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
 *
 */

package errors

// Package-local code ranges, one block per memkit package, following the
// same "minimum code per package" convention the teacher library uses to
// keep numeric codes from colliding across packages.
const (
	MinPkgProto  = 100
	MinPkgIOBuf  = 200
	MinPkgConn   = 300
	MinPkgPool   = 400
	MinPkgClient = 500
	MinPkgStats  = 600
	MinPkgBench  = 700
	MinPkgConfig = 800

	MinAvailable = 1000
)

// Status is the abstract error/outcome taxonomy shared across the module.
// Every operation in client, pool, conn and bench returns one of these
// wrapped in an Error.
const (
	Success CodeError = 0

	// Protocol-level outcomes - non-fatal, never close the connection.
	End       CodeError = 10
	NotFound  CodeError = 11
	NotStored CodeError = 12
	Exists    CodeError = 13
	Stored    CodeError = 14
	Deleted   CodeError = 15
	Touched   CodeError = 16
	Value     CodeError = 17
	Stat      CodeError = 18

	// Caller-side validation failure.
	BadKey CodeError = 20

	// I/O failures - close the connection, schedule retry, return to caller.
	WriteFailure                   CodeError = 30
	ReadFailure                    CodeError = 31
	UnknownReadFailure              CodeError = 32
	ConnectionFailure              CodeError = 33
	ConnectionBindFailure          CodeError = 34
	ConnectionSocketCreateFailure  CodeError = 35

	// Framing violation - close, do not retry the same request.
	ProtocolError CodeError = 40

	// Pool exhaustion.
	NoServers CodeError = 50

	// Deadline exceeded.
	Timeout CodeError = 60

	// Allocator/resource exhaustion - propagate without side effects.
	MemoryAllocationFailure CodeError = 70

	// Operation not supported on the active protocol (e.g. TOUCH on ASCII).
	NotSupported CodeError = 80

	// no_reply accepted, delivery deferred.
	Buffered CodeError = 90

	// mget stream still has pending results for the caller to pull.
	FetchNotFinished CodeError = 100

	// internal: codec needs more bytes before it can decode a full response.
	PartialRead CodeError = 110

	// binary VbucketBelongsToAnotherServer / AuthenticationError / Busy /
	// TemporaryFailure and ASCII CLIENT_ERROR / SERVER_ERROR all surface here -
	// the client forwards the server's verbatim response rather than
	// interpreting it.
	ClientError CodeError = 120
	ServerError CodeError = 121

	// incr/decr against a non-numeric stored value.
	IncrDecrOnNonNumeric CodeError = 130

	// value too large for the server to accept.
	ValueTooLarge CodeError = 140

	// caller-side invalid argument combination (e.g. malformed flags/expiry).
	InvalidArguments CodeError = 150

	// server ran out of memory servicing the request.
	OutOfMemory CodeError = 160
)

func init() {
	RegisterIdFctMessage(Success, func(c CodeError) string {
		switch c {
		case Success:
			return "success"
		case End:
			return "end of result stream"
		case NotFound:
			return "not found"
		case NotStored:
			return "not stored"
		case Exists:
			return "exists (cas mismatch)"
		case Stored:
			return "stored"
		case Deleted:
			return "deleted"
		case Touched:
			return "touched"
		case Value:
			return "value"
		case Stat:
			return "stat"
		default:
			return UnknownMessage
		}
	})

	RegisterIdFctMessage(BadKey, func(c CodeError) string {
		return "bad key"
	})

	RegisterIdFctMessage(WriteFailure, func(c CodeError) string {
		switch c {
		case WriteFailure:
			return "write failure"
		case ReadFailure:
			return "read failure"
		case UnknownReadFailure:
			return "unknown read failure"
		case ConnectionFailure:
			return "connection failure"
		case ConnectionBindFailure:
			return "connection bind failure"
		case ConnectionSocketCreateFailure:
			return "connection socket create failure"
		default:
			return UnknownMessage
		}
	})

	RegisterIdFctMessage(ProtocolError, func(c CodeError) string {
		return "protocol error"
	})

	RegisterIdFctMessage(NoServers, func(c CodeError) string {
		return "no servers available"
	})

	RegisterIdFctMessage(Timeout, func(c CodeError) string {
		return "operation timed out"
	})

	RegisterIdFctMessage(MemoryAllocationFailure, func(c CodeError) string {
		return "memory allocation failure"
	})

	RegisterIdFctMessage(NotSupported, func(c CodeError) string {
		return "operation not supported"
	})

	RegisterIdFctMessage(Buffered, func(c CodeError) string {
		return "buffered, delivery deferred"
	})

	RegisterIdFctMessage(FetchNotFinished, func(c CodeError) string {
		return "fetch not finished"
	})

	RegisterIdFctMessage(PartialRead, func(c CodeError) string {
		return "partial read, need more bytes"
	})

	RegisterIdFctMessage(ClientError, func(c CodeError) string {
		switch c {
		case ClientError:
			return "client error"
		case ServerError:
			return "server error"
		default:
			return UnknownMessage
		}
	})

	RegisterIdFctMessage(IncrDecrOnNonNumeric, func(c CodeError) string {
		return "incr/decr on non-numeric value"
	})

	RegisterIdFctMessage(ValueTooLarge, func(c CodeError) string {
		return "value too large"
	})

	RegisterIdFctMessage(InvalidArguments, func(c CodeError) string {
		return "invalid arguments"
	})

	RegisterIdFctMessage(OutOfMemory, func(c CodeError) string {
		return "server out of memory"
	})
}
