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

package stats

import (
	"fmt"
	"os"
	"time"

	mcerr "github.com/sabouaram/memkit/errors"

	dto "github.com/prometheus/client_model/go"
)

// Percentiles is a p50/p90/p95/p99 estimate for one operation kind,
// linearly interpolated from its Prometheus histogram's cumulative bucket
// counts - the same approach Prometheus's own histogram_quantile() uses.
type Percentiles struct {
	P50, P90, P95, P99 time.Duration
}

func quantile(m *dto.Metric, q float64) time.Duration {
	h := m.GetHistogram()
	total := h.GetSampleCount()
	if total == 0 {
		return 0
	}

	target := q * float64(total)
	var prevBound float64
	var prevCount uint64

	for _, b := range h.GetBucket() {
		count := b.GetCumulativeCount()
		bound := b.GetUpperBound()

		if float64(count) >= target {
			span := float64(count - prevCount)
			if span <= 0 {
				return time.Duration(bound * float64(time.Second))
			}
			frac := (target - float64(prevCount)) / span
			val := prevBound + frac*(bound-prevBound)
			return time.Duration(val * float64(time.Second))
		}

		prevBound = bound
		prevCount = count
	}

	return time.Duration(h.GetSampleSum() / float64(total) * float64(time.Second))
}

// Percentiles estimates p50/p90/p95/p99 for one operation kind from its
// Prometheus histogram.
func (s *Stats) Percentiles(kind OpKind) Percentiles {
	if kind >= opKindCount {
		return Percentiles{}
	}

	m := &dto.Metric{}
	if err := s.hist[kind].Write(m); err != nil {
		return Percentiles{}
	}

	return Percentiles{
		P50: quantile(m, 0.50),
		P90: quantile(m, 0.90),
		P95: quantile(m, 0.95),
		P99: quantile(m, 0.99),
	}
}

// WriteReport renders the final counters and per-kind latency percentiles
// to the path given by the CLI's -F flag, human-readable, matching spec's
// "optional human-readable stats file ... containing final counter values
// and latency histogram percentiles".
func (s *Stats) WriteReport(path string) error {
	snap := s.Snapshot()

	f, err := os.Create(path)
	if err != nil {
		return mcerr.New(uint16(ErrorStatsFileWrite), "create stats file", err)
	}
	defer f.Close()

	fmt.Fprintf(f, "cmd_get        %d\n", snap.CmdGet)
	fmt.Fprintf(f, "cmd_set        %d\n", snap.CmdSet)
	fmt.Fprintf(f, "get_misses     %d\n", snap.GetMisses)
	fmt.Fprintf(f, "vset           %d\n", snap.ValueSet)
	fmt.Fprintf(f, "vget           %d\n", snap.ValueGet)
	fmt.Fprintf(f, "pkt_drop       %d\n", snap.PktDrop)
	fmt.Fprintf(f, "udp_timeout    %d\n", snap.UDPTimeout)
	fmt.Fprintf(f, "bytes_in       %d\n", snap.BytesIn)
	fmt.Fprintf(f, "bytes_out      %d\n", snap.BytesOut)
	fmt.Fprintf(f, "thread_miss    %d\n\n", snap.ThreadMiss)

	for k := OpKind(0); k < opKindCount; k++ {
		l := snap.Latency[k]
		if l.Count == 0 {
			continue
		}
		p := s.Percentiles(k)
		fmt.Fprintf(f, "[%s] n=%d mean=%s min=%s max=%s stddev=%s\n",
			k.String(), l.Count, l.Mean, l.Min, l.Max, l.StdDev)
		fmt.Fprintf(f, "[%s] p50=%s p90=%s p95=%s p99=%s\n",
			k.String(), p.P50, p.P90, p.P95, p.P99)

		if e, ok := snap.Errors[k]; ok {
			fmt.Fprintf(f, "[%s] last_error=%d %q\n", k.String(), e.Code, e.Message)
		}
	}

	return nil
}
