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

package bench

import (
	"fmt"

	"github.com/sabouaram/memkit/proto"
	"github.com/sabouaram/memkit/stats"
)

// workload synthesizes the next operation for a connection. The actual
// key/value distribution is an external collaborator to this module; this
// is a minimal, deterministic generator (one set in every divideFactor
// operations, the rest gets; fixed value size) good enough to drive the reactor and produce
// meaningful latency/throughput numbers.
type workload struct {
	divideFactor int
	valueSize    int
	n            uint64
}

func newWorkload(divideFactor, valueSize int) *workload {
	if divideFactor <= 0 {
		divideFactor = 10
	}
	if valueSize <= 0 {
		valueSize = 64
	}
	return &workload{divideFactor: divideFactor, valueSize: valueSize}
}

func (w *workload) next(workerIdx, connIdx int) (req proto.Request, kind stats.OpKind) {
	w.n++
	key := []byte(fmt.Sprintf("memkit:bench:%d:%d:%d", workerIdx, connIdx, w.n%uint64(w.divideFactor*4)))

	if w.n%uint64(w.divideFactor) == 0 {
		value := make([]byte, w.valueSize)
		for i := range value {
			value[i] = 'A' + byte(i%26)
		}
		return proto.Request{Op: proto.OpSet, Key: key, Value: value}, stats.OpSet
	}

	return proto.Request{Op: proto.OpGet, Key: key}, stats.OpGet
}
