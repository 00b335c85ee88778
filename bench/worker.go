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
	"context"
	"runtime"
	"time"

	"github.com/sabouaram/memkit/conn"
	mcerr "github.com/sabouaram/memkit/errors"
	"github.com/sabouaram/memkit/logger"
	"github.com/sabouaram/memkit/proto"
	"github.com/sabouaram/memkit/proto/ascii"
	"github.com/sabouaram/memkit/proto/binary"
	"github.com/sabouaram/memkit/stats"
)

// pollDeadline bounds how long one connection's Fill is allowed to block
// while the reactor looks for readiness; it is what turns conn.Conn's
// blocking Fill into the short non-blocking probe a cooperative reactor
// needs to move on to the next connection.
const pollDeadline = time.Millisecond

// Worker owns one reactor, a fixed array of pre-allocated connections, and
// a 1-second ticker for timeout/retry bookkeeping. One worker runs on one
// goroutine for its entire life - no connection it owns is ever touched
// from another goroutine.
type Worker struct {
	index          int
	cfg            Config
	conns          []*connection
	decoders       []*ascii.Decoder // ascii-only, one per connection, nil slots for binary
	stats          *stats.Stats
	log            logger.Logger
	work           *workload
	stop           *Flag
	cpu            int
	hasCPUAffinity bool
}

// NewWorker builds a worker with n pre-allocated connections, each targeting
// serverAddr, sharing the process-global Stats block and shutdown Flag. A
// nil log falls back to logger.Nop.
func NewWorker(index, serverIdx int, serverAddr string, n int, cfg Config, st *stats.Stats, log logger.Logger, stop *Flag, cpu int, pinCPU bool) *Worker {
	if log == nil {
		log = logger.Nop
	}

	w := &Worker{
		index:          index,
		cfg:            cfg,
		stats:          st,
		log:            log,
		work:           newWorkload(cfg.DivideFactor, cfg.ValueSize),
		stop:           stop,
		cpu:            cpu,
		hasCPUAffinity: pinCPU,
	}

	// -1 means unbounded: exec budget is only governed by -t or a shutdown
	// signal. 0 would make every connection look exhausted before it ever
	// sends a request.
	execBudget := -1
	if cfg.ExecNum > 0 {
		execBudget = cfg.ExecNum / cfg.Concurrency
		if execBudget < 1 {
			execBudget = 1
		}
	}
	var tpsBudget uint64
	if cfg.ExpectedTPS > 0 {
		tpsBudget = uint64(cfg.ExpectedTPS) / uint64(cfg.Concurrency)
	}

	w.conns = make([]*connection, n)
	if !cfg.Binary {
		w.decoders = make([]*ascii.Decoder, n)
	}
	for i := 0; i < n; i++ {
		w.conns[i] = newConnection(i, serverIdx, serverAddr, cfg, execBudget, tpsBudget)
		if !cfg.Binary {
			w.decoders[i] = &ascii.Decoder{}
		}
	}

	return w
}

// Run pins the worker to its advisory CPU (best-effort, warn-only on
// failure per spec), then drives the reactor loop until every connection
// is exhausted or the global stop flag is set.
func (w *Worker) Run(ctx context.Context, onWarn func(error)) {
	// One worker owns one OS thread for its whole life, matching spec's
	// "Parallelism between workers (one OS thread each)" - this also makes
	// CPU pinning below actually apply to the thread the reactor runs on.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if w.hasCPUAffinity {
		if err := pinCurrentThread(w.cpu); err != nil && onWarn != nil {
			onWarn(err)
		}
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		if w.stop.IsSet() || ctx.Err() != nil || w.allExhausted() {
			w.closeAll()
			return
		}

		select {
		case <-ticker.C:
			w.tick()
		default:
		}

		w.pass()
	}
}

// pass runs one round-robin sweep over every connection, advancing each
// one's FSM by at most one step - connect, send, or poll for a response.
// A sweep that finds no connection in csReady state has no work to
// dispatch this round - the reactor's analogue of ms_thread.c's worker
// thread waking up to an empty work queue - and counts as a thread miss.
func (w *Worker) pass() {
	now := time.Now()
	dispatched := false

	for _, c := range w.conns {
		if c.exhausted() {
			continue
		}

		switch c.state {
		case csDisconnected:
			w.connect(c)
		case csReady:
			w.send(c, now)
			dispatched = true
		case csAwaiting:
			w.poll(c, now)
		}
	}

	if !dispatched {
		w.stats.IncrThreadMiss()
	}
}

func (w *Worker) connect(c *connection) {
	if c.nc.State() == conn.StateFailed && !c.nc.ReadyToRetry(time.Now()) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.cfg.ConnectTimeout)
	defer cancel()

	if err := c.nc.Connect(ctx); err != nil {
		c.retries++
		w.log.Warn("connect failed", "worker", w.index, "conn", c.index, "server", c.serverAddr, "retries", c.retries, "error", err)
		w.stats.ReportError(c.kind, mcerr.ConnectionFailure.Error(err))
		return
	}
	c.state = csReady
}

func (w *Worker) send(c *connection, now time.Time) {
	if !c.pacer.Allow(now) {
		return
	}

	req, kind := w.work.next(w.index, c.index)
	c.kind = kind
	c.pending = req.Op

	var err error
	if w.cfg.Binary {
		err = binary.Encode(c.nc.WriteBuf(), req, w.cfg.ClientConfig.Prefix, w.cfg.ClientConfig.VerifyKey)
	} else {
		err = ascii.Encode(c.nc.WriteBuf(), req, w.cfg.ClientConfig.Prefix, w.cfg.ClientConfig.VerifyKey)
	}
	if err != nil {
		if c.execRemaining > 0 {
			c.execRemaining--
		}
		return
	}

	if err := c.nc.Flush(); err != nil {
		w.reset(c, mcerr.WriteFailure.Error(err))
		return
	}

	c.sent++
	c.opStart = now
	c.state = csAwaiting

	if kind == stats.OpSet {
		w.stats.IncrSet()
		w.stats.AddValueSet(uint64(len(req.Value)))
	} else {
		w.stats.IncrGet()
	}
}

func (w *Worker) poll(c *connection, now time.Time) {
	if c.udp && now.Sub(c.opStart) > w.cfg.UDPTimeout {
		w.stats.IncrPktDrop()
		w.stats.IncrUDPTimeout()
		w.log.Warn("udp response timeout", "worker", w.index, "conn", c.index, "server", c.serverAddr)
		w.reset(c, mcerr.Timeout.Error())
		return
	}

	_ = c.nc.SetReadDeadline(now.Add(pollDeadline))
	n, err := c.nc.Fill()
	if err != nil {
		if mcerr.IsCode(err, mcerr.Timeout) {
			return
		}
		if mcerr.IsCode(err, mcerr.PartialRead) {
			return
		}
		w.reset(c, mcerr.ReadFailure.Error(err))
		return
	}
	if n == 0 && c.nc.ReadBuf().Len() == 0 {
		return
	}

	var ev *proto.Event
	if w.cfg.Binary {
		ev, err = binary.Decode(c.nc.ReadBuf())
	} else {
		ev, err = w.decoders[c.index].Decode(c.nc.ReadBuf())
	}
	if err != nil {
		if mcerr.IsCode(err, mcerr.PartialRead) {
			return
		}
		w.reset(c, mcerr.ProtocolError.Error(err))
		return
	}

	c.recv++
	if c.execRemaining > 0 {
		c.execRemaining--
	}
	w.stats.Observe(c.kind, now.Sub(c.opStart))
	if c.kind == stats.OpGet {
		if ev.Status == mcerr.NotFound {
			w.stats.IncrMiss()
		} else {
			w.stats.AddValueGet(uint64(len(ev.Value)))
		}
	}
	switch ev.Status {
	case mcerr.Success, mcerr.Stored, mcerr.NotFound, mcerr.Value, mcerr.End:
		// expected outcomes, not failures worth surfacing in the stats report.
	default:
		w.stats.ReportError(c.kind, ev.Status.Error(nil))
	}

	c.state = csReady
}

// reset drops a connection back to disconnected state after an I/O
// failure; without -R it simply stays disconnected and will no longer be
// retried by tick's reconnect sweep. err is surfaced to both the log and
// the stats block's per-kind error reporting, never swallowed silently.
func (w *Worker) reset(c *connection, err mcerr.Error) {
	w.log.Warn("connection reset", "worker", w.index, "conn", c.index, "server", c.serverAddr, "error", err)
	w.stats.ReportError(c.kind, err)

	_ = c.nc.Close()
	c.state = csDisconnected
	if !w.cfg.Reconnect {
		c.execRemaining = 0
	}
}

// tick runs the spec's per-second work: UDP request timeout sweep and
// retrying any FAILED connection whose retry_timeout has elapsed.
func (w *Worker) tick() {
	now := time.Now()
	for _, c := range w.conns {
		if c.exhausted() {
			continue
		}
		if c.state == csAwaiting && c.udp && now.Sub(c.opStart) > w.cfg.UDPTimeout {
			w.stats.IncrPktDrop()
			w.stats.IncrUDPTimeout()
			w.log.Warn("udp response timeout", "worker", w.index, "conn", c.index, "server", c.serverAddr)
			w.reset(c, mcerr.Timeout.Error())
			continue
		}
		if c.state == csDisconnected && w.cfg.Reconnect && c.nc.ReadyToRetry(now) {
			w.connect(c)
		}
	}
}

func (w *Worker) allExhausted() bool {
	for _, c := range w.conns {
		if !c.exhausted() {
			return false
		}
	}
	return true
}

func (w *Worker) closeAll() {
	for _, c := range w.conns {
		_ = c.nc.Close()
	}
}
