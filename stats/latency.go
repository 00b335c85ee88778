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
	"math"
	"sync"
	"time"
)

// latency accumulates a Welford-style running mean, min, max and squared
// distance from the mean for one operation kind. Updates take a brief
// exclusive lock; reads (Snapshot) take the same lock rather than trying to
// keep the four fields consistent under independent atomics.
type latency struct {
	mu    sync.Mutex
	count uint64
	mean  float64
	m2    float64 // sum of squared distances from the running mean
	min   time.Duration
	max   time.Duration
}

// LatencySnapshot is a read-only view of one operation kind's latency
// distribution at the moment Snapshot was called.
type LatencySnapshot struct {
	Count  uint64
	Mean   time.Duration
	Min    time.Duration
	Max    time.Duration
	StdDev time.Duration
}

// observe folds one new sample into the running aggregate using Welford's
// online algorithm, which computes mean and variance in one pass without
// storing the individual samples.
func (l *latency) observe(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.count++
	x := float64(d)
	delta := x - l.mean
	l.mean += delta / float64(l.count)
	l.m2 += delta * (x - l.mean)

	if l.count == 1 || d < l.min {
		l.min = d
	}
	if d > l.max {
		l.max = d
	}
}

func (l *latency) snapshot() LatencySnapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	var stddev float64
	if l.count > 1 {
		stddev = math.Sqrt(l.m2 / float64(l.count-1))
	}

	return LatencySnapshot{
		Count:  l.count,
		Mean:   time.Duration(l.mean),
		Min:    l.min,
		Max:    l.max,
		StdDev: time.Duration(stddev),
	}
}
