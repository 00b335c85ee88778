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

// Package conn implements the per-server connection state machine: INIT,
// CONNECTING, IDLE, WRITING, READING and FAILED, with scheduled reconnect
// after retry_timeout. TCP connections are dialed and then double-checked
// for a latched SO_ERROR; UDP has no connect phase at all.
package conn

import (
	"context"
	"net"
	"sync"
	"time"

	mcerr "github.com/sabouaram/memkit/errors"
	"github.com/sabouaram/memkit/iobuf"
)

// State is one node of the connection finite state machine.
type State uint8

const (
	StateInit State = iota
	StateConnecting
	StateIdle
	StateWriting
	StateReading
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateConnecting:
		return "CONNECTING"
	case StateIdle:
		return "IDLE"
	case StateWriting:
		return "WRITING"
	case StateReading:
		return "READING"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Conn is one backend connection: a TCP stream or a UDP logical descriptor,
// its read/write buffers, and the FSM state governing when it is safe to
// send a request.
type Conn struct {
	mu sync.Mutex

	addr string
	udp  bool

	dialTimeout  time.Duration
	retryTimeout time.Duration

	state     State
	nc        net.Conn
	nextRetry time.Time

	readBuf  *iobuf.Buffer
	writeBuf *iobuf.Buffer
}

// New builds an unconnected Conn in state INIT. maxBuf bounds both buffers
// (use the UDP datagram limit for udp=true, 0 for TCP's unbounded-but-
// coalesced buffer).
func New(addr string, udp bool, dialTimeout, retryTimeout time.Duration, maxBuf int) *Conn {
	return &Conn{
		addr:         addr,
		udp:          udp,
		dialTimeout:  dialTimeout,
		retryTimeout: retryTimeout,
		state:        StateInit,
		readBuf:      iobuf.New(maxBuf),
		writeBuf:     iobuf.New(maxBuf),
	}
}

// State returns the current FSM state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsConnected reports whether the connection can accept a request right now.
// UDP connections report connected as soon as Connect has opened the
// datagram socket - there is no handshake to wait on.
func (c *Conn) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateIdle
}

// ReadBuf exposes the read-side buffer for the codec to decode from.
func (c *Conn) ReadBuf() *iobuf.Buffer { return c.readBuf }

// WriteBuf exposes the write-side buffer for the codec to encode into
// before Flush sends it.
func (c *Conn) WriteBuf() *iobuf.Buffer { return c.writeBuf }

// ReadyToRetry reports whether a FAILED connection's retry_timeout has
// elapsed as of now.
func (c *Conn) ReadyToRetry(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateFailed && !now.Before(c.nextRetry)
}

// Connect dials the backend (no-op, immediately IDLE, for UDP) and
// transitions INIT/FAILED -> CONNECTING -> IDLE on success or -> FAILED on
// failure, scheduling the next retry at now+retry_timeout.
func (c *Conn) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.udp {
		if c.nc == nil {
			nc, err := net.Dial("udp", c.addr)
			if err != nil {
				c.state = StateFailed
				c.nextRetry = time.Now().Add(c.retryTimeout)
				return mcerr.ConnectionFailure.Error(err)
			}
			c.nc = nc
		}
		c.state = StateIdle
		return nil
	}

	c.state = StateConnecting

	d := net.Dialer{Timeout: c.dialTimeout}
	nc, err := d.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		c.state = StateFailed
		c.nextRetry = time.Now().Add(c.retryTimeout)
		return mcerr.ConnectionFailure.Error(err)
	}

	if err := checkSOError(nc); err != nil {
		_ = nc.Close()
		c.state = StateFailed
		c.nextRetry = time.Now().Add(c.retryTimeout)
		return mcerr.ConnectionFailure.Error(err)
	}

	c.nc = nc
	c.state = StateIdle
	return nil
}

// Flush writes everything buffered in WriteBuf to the socket, moving
// IDLE -> WRITING for the duration of the send and back to IDLE once
// drained. Any write error moves the connection to FAILED and closes the
// socket.
func (c *Conn) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.nc == nil {
		return mcerr.New(ErrorNotConnected.Uint16(), ErrorNotConnected.Message())
	}

	c.state = StateWriting
	data := c.writeBuf.Bytes()
	for len(data) > 0 {
		n, err := c.nc.Write(data)
		if err != nil {
			c.fail()
			return mcerr.WriteFailure.Error(err)
		}
		data = data[n:]
	}
	c.writeBuf.Reset()
	c.state = StateIdle
	return nil
}

// Fill reads whatever is available from the socket into ReadBuf, moving
// IDLE -> READING -> IDLE. It does not attempt to decode a full response -
// the caller's codec does that, returning PartialRead until ReadBuf has
// enough bytes.
func (c *Conn) Fill() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.nc == nil {
		return 0, mcerr.New(ErrorNotConnected.Uint16(), ErrorNotConnected.Message())
	}

	c.state = StateReading
	scratch := make([]byte, 64*1024)
	n, err := c.nc.Read(scratch)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			// a caller polling readiness via a short SetReadDeadline is not
			// a connection failure - just nothing available yet.
			c.state = StateIdle
			return 0, mcerr.Timeout.Error(err)
		}
		c.fail()
		return 0, mcerr.ReadFailure.Error(err)
	}

	if _, err := c.readBuf.Write(scratch[:n]); err != nil {
		c.fail()
		return 0, err
	}

	c.state = StateIdle
	return n, nil
}

// SetReadDeadline arms the UDP per-request timeout (or any TCP read
// deadline the caller wants to enforce).
func (c *Conn) SetReadDeadline(t time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.nc == nil {
		return mcerr.New(ErrorNotConnected.Uint16(), ErrorNotConnected.Message())
	}
	return c.nc.SetReadDeadline(t)
}

// fail closes the socket and transitions to FAILED with a scheduled retry.
// Caller must hold c.mu.
func (c *Conn) fail() {
	if c.nc != nil {
		_ = c.nc.Close()
		c.nc = nil
	}
	c.state = StateFailed
	c.nextRetry = time.Now().Add(c.retryTimeout)
}

// Close releases the socket and returns the FSM to INIT.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var err error
	if c.nc != nil {
		err = c.nc.Close()
		c.nc = nil
	}
	c.state = StateInit
	return err
}
