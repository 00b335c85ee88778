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
	"sync"
	"time"
)

// Pacer stalls a connection for the remainder of the current second once
// its per-second quota is exhausted, per spec's "rate pacing" subsystem.
// One Pacer belongs to exactly one connection; it is not safe to share
// across connections, matching the single-threaded-per-connection reactor
// model the worker runtime already assumes.
type Pacer struct {
	mu      sync.Mutex
	quota   uint64
	used    uint64
	second  int64
}

// NewPacer builds a pacer with the given per-second transaction quota. A
// zero quota disables pacing entirely (Allow always succeeds).
func NewPacer(quotaPerSecond uint64) *Pacer {
	return &Pacer{quota: quotaPerSecond, second: time.Now().Unix()}
}

// Allow reports whether one more transaction may start now. When it
// returns false, the caller must wait until the duration Remaining returns
// elapses before trying again.
func (p *Pacer) Allow(now time.Time) bool {
	if p.quota == 0 {
		return true
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	sec := now.Unix()
	if sec != p.second {
		p.second = sec
		p.used = 0
	}

	if p.used >= p.quota {
		return false
	}
	p.used++
	return true
}

// Remaining returns how long the caller should wait before Allow can
// possibly succeed again, given it was just refused.
func (p *Pacer) Remaining(now time.Time) time.Duration {
	next := time.Unix(now.Unix()+1, 0)
	return next.Sub(now)
}
