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
	"time"

	"github.com/sabouaram/memkit/conn"
	"github.com/sabouaram/memkit/proto"
	"github.com/sabouaram/memkit/stats"
)

// connState tracks where one benchmark connection sits in its own
// request/response cycle, layered on top of conn.Conn's lower-level
// INIT/CONNECTING/IDLE/FAILED states.
type connState uint8

const (
	csDisconnected connState = iota
	csReady                  // connected, no in-flight operation, may send the next one
	csAwaiting               // request flushed, waiting for a complete response
)

// connection is one pre-allocated slot a worker owns exclusively for its
// whole life: index, server target, socket, protocol, current FSM state,
// expected response kind, timing and packet counters, retry counter and
// the per-connection exec/TPS budget.
type connection struct {
	index      int
	serverIdx  int
	serverAddr string
	udp        bool
	binary     bool

	nc *conn.Conn

	state   connState
	pending proto.Op

	opStart  time.Time
	sent     uint64
	recv     uint64
	retries  int

	execRemaining int
	pacer         *stats.Pacer
	kind          stats.OpKind
}

func newConnection(index, serverIdx int, serverAddr string, cfg Config, execBudget int, tpsBudget uint64) *connection {
	maxBuf := 0
	if cfg.UDP {
		maxBuf = 65536
	}

	return &connection{
		index:         index,
		serverIdx:     serverIdx,
		serverAddr:    serverAddr,
		udp:           cfg.UDP,
		binary:        cfg.Binary,
		nc:            conn.New(serverAddr, cfg.UDP, cfg.ConnectTimeout, cfg.RetryTimeout, maxBuf),
		state:         csDisconnected,
		execRemaining: execBudget,
		pacer:         stats.NewPacer(tpsBudget),
	}
}

// exhausted reports whether this connection has no operations left to run.
// A negative execRemaining means unbounded (-n 0, governed by -t or a
// shutdown signal instead) and never counts as exhausted on its own.
func (c *connection) exhausted() bool {
	return c.execRemaining == 0
}
