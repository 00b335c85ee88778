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

// Package stats is the process-global statistics block: command counters,
// byte counters, per-operation-kind latency (Welford mean/min/max/stddev
// plus a Prometheus histogram for percentile estimation), and a
// first-error-per-kind-per-second reporter that keeps each error's code and
// message.
package stats

import (
	"sync"
	"sync/atomic"
	"time"

	mcerr "github.com/sabouaram/memkit/errors"

	"github.com/prometheus/client_golang/prometheus"
)

// OpKind names one operation family tracked independently by the latency
// and error reporters.
type OpKind uint8

const (
	OpGet OpKind = iota
	OpSet
	OpDelete
	OpIncrDecr
	opKindCount
)

func (k OpKind) String() string {
	switch k {
	case OpGet:
		return "get"
	case OpSet:
		return "set"
	case OpDelete:
		return "delete"
	case OpIncrDecr:
		return "incr_decr"
	default:
		return "unknown"
	}
}

// Stats is the shared statistics block a bench run (or a long-lived client)
// updates from many goroutines concurrently. All counter fields use atomic
// fetch-add; latency uses its own brief exclusive lock per kind.
type Stats struct {
	cmdGet     atomic.Uint64
	cmdSet     atomic.Uint64
	getMisses  atomic.Uint64
	vset       atomic.Uint64
	vget       atomic.Uint64
	pktDrop    atomic.Uint64
	udpTimeout atomic.Uint64
	bytesIn    atomic.Uint64
	bytesOut   atomic.Uint64

	threadMiss atomic.Uint64 // original_source/clients/ms_thread.c's per-thread counter, aggregated at shutdown

	lat  [opKindCount]latency
	hist [opKindCount]prometheus.Histogram

	lastErr sync.Map // OpKind -> *errEntry, first error this second per kind

	reg *prometheus.Registry
}

type errEntry struct {
	code    mcerr.CodeError
	message string
	second  int64
}

// New builds a Stats block with its own Prometheus registry so a benchmark
// run never pollutes prometheus.DefaultRegisterer when embedded in another
// process.
func New() *Stats {
	s := &Stats{
		reg: prometheus.NewRegistry(),
	}

	for k := OpKind(0); k < opKindCount; k++ {
		s.hist[k] = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "memkit_op_latency_seconds",
			Help:    "Per-operation latency observed by the benchmark worker runtime.",
			Buckets: prometheus.ExponentialBuckets(0.00005, 2, 20),
			ConstLabels: prometheus.Labels{
				"op": k.String(),
			},
		})
		s.reg.MustRegister(s.hist[k])
	}

	return s
}

// Registry returns the Prometheus registry Stats registers its collectors
// into, for a caller that wants to serve /metrics itself.
func (s *Stats) Registry() *prometheus.Registry {
	return s.reg
}

func (s *Stats) IncrGet()       { s.cmdGet.Add(1) }
func (s *Stats) IncrSet()       { s.cmdSet.Add(1) }
func (s *Stats) IncrMiss()      { s.getMisses.Add(1) }
func (s *Stats) IncrPktDrop()   { s.pktDrop.Add(1) }
func (s *Stats) IncrUDPTimeout() { s.udpTimeout.Add(1) }
func (s *Stats) IncrThreadMiss() { s.threadMiss.Add(1) }

func (s *Stats) AddBytesIn(n uint64)  { s.bytesIn.Add(n) }
func (s *Stats) AddBytesOut(n uint64) { s.bytesOut.Add(n) }
func (s *Stats) AddValueSet(n uint64) { s.vset.Add(n) }
func (s *Stats) AddValueGet(n uint64) { s.vget.Add(n) }

// Observe records one completed operation's latency against its kind's
// Welford tracker and its Prometheus histogram.
func (s *Stats) Observe(kind OpKind, d time.Duration) {
	if kind >= opKindCount {
		return
	}
	s.lat[kind].observe(d)
	s.hist[kind].Observe(d.Seconds())
}

// ReportError records the current second's first error for a kind; repeats
// within the same second are dropped so a hot failure loop does not spam
// per-second reporting - only the first instance per kind per second
// survives to the Snapshot's Errors field.
func (s *Stats) ReportError(kind OpKind, err mcerr.Error) {
	if err == nil {
		return
	}
	now := time.Now().Unix()

	if prev, ok := s.lastErr.Load(kind); ok {
		if e, ok := prev.(*errEntry); ok && e.second == now {
			return
		}
	}

	s.lastErr.Store(kind, &errEntry{
		code:    err.GetCode(),
		message: err.StringError(),
		second:  now,
	})
}

// Snapshot is a point-in-time, concurrency-safe read of every counter and
// latency distribution tracked by Stats.
type Snapshot struct {
	CmdGet     uint64
	CmdSet     uint64
	GetMisses  uint64
	ValueSet   uint64
	ValueGet   uint64
	PktDrop    uint64
	UDPTimeout uint64
	BytesIn    uint64
	BytesOut   uint64
	ThreadMiss uint64

	Latency [opKindCount]LatencySnapshot
	Errors  map[OpKind]ErrorSnapshot
}

// ErrorSnapshot is the most recent reported error for one operation kind.
type ErrorSnapshot struct {
	Code    mcerr.CodeError
	Message string
}

// Snapshot reads every counter and latency tracker under their own brief
// locks, matching spec's "updates use atomic fetch-add; snapshots are read
// under a brief exclusive lock" split between hot-path writes and cold-path
// reads.
func (s *Stats) Snapshot() Snapshot {
	snap := Snapshot{
		CmdGet:     s.cmdGet.Load(),
		CmdSet:     s.cmdSet.Load(),
		GetMisses:  s.getMisses.Load(),
		ValueSet:   s.vset.Load(),
		ValueGet:   s.vget.Load(),
		PktDrop:    s.pktDrop.Load(),
		UDPTimeout: s.udpTimeout.Load(),
		BytesIn:    s.bytesIn.Load(),
		BytesOut:   s.bytesOut.Load(),
		ThreadMiss: s.threadMiss.Load(),
		Errors:     make(map[OpKind]ErrorSnapshot),
	}

	for k := OpKind(0); k < opKindCount; k++ {
		snap.Latency[k] = s.lat[k].snapshot()

		if v, ok := s.lastErr.Load(k); ok {
			if e, ok := v.(*errEntry); ok {
				snap.Errors[k] = ErrorSnapshot{Code: e.code, Message: e.message}
			}
		}
	}

	return snap
}
