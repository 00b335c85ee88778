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

// Package bench is the load-generator worker runtime: T OS-thread-bound
// reactors, each cooperatively multiplexing C/T pre-allocated connections,
// driving operations against a pool.Pool until every connection exhausts
// its exec budget or the run is cancelled.
package bench

import (
	"time"

	"github.com/sabouaram/memkit/client"
)

// Config configures one benchmark run. Field names mirror the CLI flags
// documented for cmd/mc-bench (-T/-c/-n/-t/-x/-X/-W/-d/-R/-U/-B).
type Config struct {
	Threads      int           // -T
	Concurrency  int           // -c, total connections across all threads
	ExecNum      int           // -n, total operation budget across all threads (0 = unbounded, governed by -t)
	RunTime      time.Duration // -t
	ExpectedTPS  int           // -x, total transactions/second budget across all threads
	ValueSize    int           // -X
	WindowSize   int           // -W, accepted but not honored: the reactor keeps exactly one op in flight per connection regardless of its value; see RunOpts.Log's startup warning
	DivideFactor int           // -d
	Reconnect    bool          // -R
	UDP          bool          // -U
	Binary       bool          // -B

	ConnectTimeout time.Duration
	RetryTimeout   time.Duration
	UDPTimeout     time.Duration

	ClientConfig client.Config
}

// protocol returns the client.Protocol implied by the -B flag.
func (c Config) protocol() client.Protocol {
	if c.Binary {
		return client.ProtoBinary
	}
	return client.ProtoASCII
}
