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

// wrapped names the embedded Error so that the field name does not shadow
// the promoted Error() method.
type wrapped = Error

// payload carries the extra data a Status needs beyond a code and a message:
// the mismatched cas token on Exists, the server index on Timeout.
type payload struct {
	wrapped
	cas      uint64
	hasCas   bool
	srvIdx   int
	hasIdx   bool
}

// WithCAS attaches the server's current cas token to an Exists error so the
// caller can decide whether to retry the compare-and-swap.
func WithCAS(e Error, cas uint64) Error {
	if e == nil {
		return nil
	}
	return &payload{wrapped: e, cas: cas, hasCas: true}
}

// WithServerIndex attaches the index of the server a Timeout occurred on.
func WithServerIndex(e Error, idx int) Error {
	if e == nil {
		return nil
	}
	return &payload{wrapped: e, srvIdx: idx, hasIdx: true}
}

// CAS returns the cas token carried by an Exists error, if any.
func CAS(e error) (uint64, bool) {
	if p, ok := e.(*payload); ok {
		if p.hasCas {
			return p.cas, true
		}
		return CAS(p.wrapped)
	}
	return 0, false
}

// ServerIndex returns the server index carried by a Timeout error, if any.
func ServerIndex(e error) (int, bool) {
	if p, ok := e.(*payload); ok {
		if p.hasIdx {
			return p.srvIdx, true
		}
		return ServerIndex(p.wrapped)
	}
	return 0, false
}
