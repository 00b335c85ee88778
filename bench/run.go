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
	"net"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"sync"
	"syscall"

	"github.com/sabouaram/memkit/logger"
	"github.com/sabouaram/memkit/pool"
	"github.com/sabouaram/memkit/stats"

	"github.com/rs/xid"
)

// Run is one executed benchmark: a unique ID generated for it (not written
// to the optional -F stats file), and the aggregated Stats block every
// worker feeds.
type Run struct {
	ID    xid.ID
	Stats *stats.Stats
}

// RunOpts carries what Execute needs beyond Config: the server pool to round-
// robin threads across, an optional warning sink for advisory failures
// (CPU pinning) a caller may want to log, and the logger every worker
// routes its connect/reset failures through. A nil Log falls back to
// logger.Nop.
type RunOpts struct {
	Pool   *pool.Pool
	OnWarn func(error)
	Log    logger.Logger
}

// waitForShutdown watches for SIGINT/SIGTERM/SIGQUIT and raises stop the
// same way nabbar-golib/config's WaitNotify cancels its shared context -
// here the shared cancellation primitive is bench's own shutdown Flag
// rather than a context, since workers poll it cooperatively on each pass.
func waitForShutdown(ctx context.Context, stop *Flag) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer signal.Stop(quit)

	select {
	case <-quit:
		stop.Set()
	case <-ctx.Done():
	}
}

// Execute runs cfg.Threads workers to completion (exec budget exhausted,
// -t run-time elapsed, or a shutdown signal) and returns the aggregated
// Run once every worker has returned.
func Execute(ctx context.Context, cfg Config, opts RunOpts) *Run {
	run := &Run{ID: xid.New(), Stats: stats.New()}
	stop := &Flag{}

	log := opts.Log
	if log == nil {
		log = logger.Nop
	}

	if cfg.WindowSize > 1 {
		log.Warn("pipeline depth not implemented, running with one op in flight per connection", "requested_window", cfg.WindowSize)
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if cfg.RunTime > 0 {
		runCtx, cancel = context.WithTimeout(ctx, cfg.RunTime)
		defer cancel()
	}

	go waitForShutdown(runCtx, stop)

	ncpu := runtime.NumCPU()
	perWorker := cfg.Concurrency / cfg.Threads
	if perWorker < 1 {
		perWorker = 1
	}

	var wg sync.WaitGroup
	for i := 0; i < cfg.Threads; i++ {
		serverIdx := i % opts.Pool.Len()
		srv := opts.Pool.Server(serverIdx)
		addr := net.JoinHostPort(srv.Host, strconv.Itoa(srv.Port))

		w := NewWorker(i, serverIdx, addr, perWorker, cfg, run.Stats, log, stop, i%ncpu, ncpu > 1)

		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Run(runCtx, opts.OnWarn)
		}()
	}

	wg.Wait()
	return run
}
