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

// Package client is the synchronous facade (set/add/replace/cas/get/mget/
// incr/decr/delete/touch/gat/flush/stats/version/quit/noop) that validates
// a call, asks pool for the target server, ensures its conn is connected,
// and round-trips one framed request through the configured wire codec.
package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sabouaram/memkit/conn"
	mcerr "github.com/sabouaram/memkit/errors"
	"github.com/sabouaram/memkit/iobuf"
	"github.com/sabouaram/memkit/pool"
	"github.com/sabouaram/memkit/proto"
	"github.com/sabouaram/memkit/proto/ascii"
	"github.com/sabouaram/memkit/proto/binary"
)

// Protocol selects the wire format every connection in the Client speaks.
type Protocol uint8

const (
	ProtoASCII Protocol = iota
	ProtoBinary
)

// Config holds the per-operation flags and timeouts the data model assigns
// to the client handle.
type Config struct {
	Protocol Protocol

	// Prefix, when non-empty, is logically prepended to every key on the
	// wire and counts toward the key length limit.
	Prefix []byte

	VerifyKey      bool
	NoReply        bool
	SupportCas     bool
	ConnectTimeout time.Duration
	RetryTimeout   time.Duration
}

// Result is a retrieved value plus its flags and CAS token.
type Result struct {
	Key   []byte
	Value []byte
	Flags uint32
	Cas   uint64
}

// Client is the process-wide-capable handle: an immutable server pool, one
// Conn per server, and the per-operation flags from Config.
type Client struct {
	pool *pool.Pool
	cfg  Config

	mu    []sync.Mutex
	conns []*conn.Conn
	dec   []*ascii.Decoder
}

// New builds a Client over p. The server list is read once at construction
// time - per the pool's own immutability contract, later AddServer calls
// require building a new Client over the rebuilt Pool.
func New(p *pool.Pool, cfg Config) *Client {
	n := p.Len()
	cl := &Client{
		pool:  p,
		cfg:   cfg,
		mu:    make([]sync.Mutex, n),
		conns: make([]*conn.Conn, n),
		dec:   make([]*ascii.Decoder, n),
	}

	for i := 0; i < n; i++ {
		s := p.Server(i)
		addr := fmt.Sprintf("%s:%d", s.Host, s.Port)
		maxBuf := 0
		if s.UDP {
			maxBuf = iobuf.DefaultUDPMax
		}
		cl.conns[i] = conn.New(addr, s.UDP, cfg.ConnectTimeout, cfg.RetryTimeout, maxBuf)
		if cfg.Protocol == ProtoASCII {
			cl.dec[i] = &ascii.Decoder{}
		}
	}

	return cl
}

func (cl *Client) route(key []byte) (int, error) {
	return cl.pool.Route(key)
}

func (cl *Client) ensure(idx int) error {
	c := cl.conns[idx]
	if c.IsConnected() {
		return nil
	}
	if c.State() == conn.StateFailed && !c.ReadyToRetry(time.Now()) {
		return mcerr.ConnectionFailure.Error(nil)
	}
	return c.Connect(context.Background())
}

// decodeOneLocked pulls one event off conns[idx], filling from the socket
// as needed. Caller must hold mu[idx].
func (cl *Client) decodeOneLocked(idx int) (*proto.Event, error) {
	c := cl.conns[idx]
	for {
		var ev *proto.Event
		var err error
		if cl.cfg.Protocol == ProtoBinary {
			ev, err = binary.Decode(c.ReadBuf())
		} else {
			ev, err = cl.dec[idx].Decode(c.ReadBuf())
		}
		if err == nil {
			return ev, nil
		}
		if !mcerr.IsCode(err, mcerr.PartialRead) {
			return nil, err
		}
		if _, ferr := c.Fill(); ferr != nil {
			return nil, ferr
		}
	}
}

func (cl *Client) encode(buf *iobuf.Buffer, req proto.Request) error {
	if cl.cfg.Protocol == ProtoBinary {
		return binary.Encode(buf, req, cl.cfg.Prefix, cl.cfg.VerifyKey)
	}
	return ascii.Encode(buf, req, cl.cfg.Prefix, cl.cfg.VerifyKey)
}

// roundTrip serializes one request+response on the connection for idx -
// "at-most-one-in-flight per connection".
func (cl *Client) roundTrip(idx int, req proto.Request) (*proto.Event, error) {
	cl.mu[idx].Lock()
	defer cl.mu[idx].Unlock()

	if err := cl.ensure(idx); err != nil {
		return nil, err
	}
	c := cl.conns[idx]

	if err := cl.encode(c.WriteBuf(), req); err != nil {
		return nil, err
	}

	if err := c.Flush(); err != nil {
		cl.pool.MarkFailure(idx, time.Now())
		return nil, err
	}

	if req.NoReply {
		return &proto.Event{Op: req.Op, Status: mcerr.Buffered}, nil
	}

	ev, err := cl.decodeOneLocked(idx)
	if err != nil {
		cl.pool.MarkFailure(idx, time.Now())
		return nil, err
	}
	cl.pool.MarkSuccess(idx)
	return ev, nil
}

// statusErr turns a non-success event Status into the error the facade
// returns, attaching the payload extras (cas token, server index) the
// caller needs to act on an Exists or Timeout.
func statusErr(ev *proto.Event, idx int) error {
	switch ev.Status {
	case mcerr.Success, mcerr.Stored, mcerr.Deleted, mcerr.Touched,
		mcerr.End, mcerr.Value, mcerr.Stat, mcerr.Buffered:
		return nil
	case mcerr.Exists:
		return mcerr.WithCAS(mcerr.Exists.Error(nil), ev.Cas)
	case mcerr.Timeout:
		return mcerr.WithServerIndex(mcerr.Timeout.Error(nil), idx)
	default:
		return ev.Status.Error(nil)
	}
}

func (cl *Client) store(op proto.Op, key, value []byte, flags, expiry uint32, cas uint64) error {
	if err := proto.ValidateKey(key, cl.cfg.Prefix, cl.cfg.VerifyKey); err != nil {
		return err
	}
	idx, err := cl.route(key)
	if err != nil {
		return err
	}

	req := proto.Request{Op: op, Key: key, Value: value, Flags: flags, Expiry: expiry, Cas: cas, NoReply: cl.cfg.NoReply}
	ev, err := cl.roundTrip(idx, req)
	if err != nil {
		return err
	}
	return statusErr(ev, idx)
}

// Set unconditionally stores key/value.
func (cl *Client) Set(key, value []byte, flags, expiry uint32) error {
	return cl.store(proto.OpSet, key, value, flags, expiry, 0)
}

// Add stores key/value only if key does not already exist; NotStored
// otherwise.
func (cl *Client) Add(key, value []byte, flags, expiry uint32) error {
	return cl.store(proto.OpAdd, key, value, flags, expiry, 0)
}

// Replace stores key/value only if key already exists; NotStored
// otherwise.
func (cl *Client) Replace(key, value []byte, flags, expiry uint32) error {
	return cl.store(proto.OpReplace, key, value, flags, expiry, 0)
}

// Cas stores key/value only if the server's current CAS token matches cas;
// Exists (carrying the server's current token) on mismatch.
func (cl *Client) Cas(key, value []byte, flags, expiry uint32, cas uint64) error {
	if !cl.cfg.SupportCas {
		return mcerr.NotSupported.Error(nil)
	}
	return cl.store(proto.OpSet, key, value, flags, expiry, cas)
}

// Append appends value to the existing stored value for key.
func (cl *Client) Append(key, value []byte) error {
	return cl.store(proto.OpAppend, key, value, 0, 0, 0)
}

// Prepend prepends value to the existing stored value for key.
func (cl *Client) Prepend(key, value []byte) error {
	return cl.store(proto.OpPrepend, key, value, 0, 0, 0)
}

// Get retrieves a single key.
func (cl *Client) Get(key []byte) (Result, error) {
	out, err := cl.MGet([][]byte{key})
	if err != nil {
		return Result{}, err
	}
	r, ok := out[string(key)]
	if !ok {
		return Result{}, mcerr.NotFound.Error(nil)
	}
	return r, nil
}

// MGet retrieves every key in keys, grouping them by the server each routes
// to and pipelining one get command per server - "multi-get uses
// pipelining within a single connection only". Missing keys are simply
// absent from the returned map.
func (cl *Client) MGet(keys [][]byte) (map[string]Result, error) {
	groups := make(map[int][][]byte)
	for _, k := range keys {
		if err := proto.ValidateKey(k, cl.cfg.Prefix, cl.cfg.VerifyKey); err != nil {
			return nil, err
		}
		idx, err := cl.route(k)
		if err != nil {
			return nil, err
		}
		groups[idx] = append(groups[idx], k)
	}

	out := make(map[string]Result, len(keys))
	for idx, ks := range groups {
		res, err := cl.mgetOneServer(idx, ks)
		if err != nil {
			return nil, err
		}
		for k, v := range res {
			out[k] = v
		}
	}
	return out, nil
}

func (cl *Client) mgetOneServer(idx int, keys [][]byte) (map[string]Result, error) {
	cl.mu[idx].Lock()
	defer cl.mu[idx].Unlock()

	if err := cl.ensure(idx); err != nil {
		return nil, err
	}
	c := cl.conns[idx]
	wb := c.WriteBuf()

	if cl.cfg.Protocol == ProtoBinary {
		for i, k := range keys {
			last := i == len(keys)-1
			req := proto.Request{Op: proto.OpGetK, Key: k, Quiet: !last}
			if err := binary.Encode(wb, req, cl.cfg.Prefix, cl.cfg.VerifyKey); err != nil {
				return nil, err
			}
		}
		if err := binary.Encode(wb, proto.Request{Op: proto.OpNoop}, cl.cfg.Prefix, cl.cfg.VerifyKey); err != nil {
			return nil, err
		}
	} else {
		if err := ascii.EncodeMultiGet(wb, keys, cl.cfg.Prefix, cl.cfg.VerifyKey, cl.cfg.SupportCas); err != nil {
			return nil, err
		}
	}

	if err := c.Flush(); err != nil {
		cl.pool.MarkFailure(idx, time.Now())
		return nil, err
	}

	out := make(map[string]Result, len(keys))
	for {
		ev, err := cl.decodeOneLocked(idx)
		if err != nil {
			cl.pool.MarkFailure(idx, time.Now())
			return nil, err
		}

		if cl.cfg.Protocol == ProtoBinary {
			if ev.Op == proto.OpNoop {
				cl.pool.MarkSuccess(idx)
				return out, nil
			}
			if ev.Status == mcerr.Success && len(ev.Key) > 0 {
				out[string(ev.Key)] = Result{Key: ev.Key, Value: ev.Value, Flags: ev.Flags, Cas: ev.Cas}
			}
			continue
		}

		switch ev.Status {
		case mcerr.End:
			cl.pool.MarkSuccess(idx)
			return out, nil
		case mcerr.Value:
			out[string(ev.Key)] = Result{Key: ev.Key, Value: ev.Value, Flags: ev.Flags, Cas: ev.Cas}
		}
	}
}

// Incr adds delta to the numeric value stored at key, returning the new
// value. NotFound if absent; IncrDecrOnNonNumeric if the stored value isn't
// all-digits.
func (cl *Client) Incr(key []byte, delta, initial uint64, expiry uint32) (uint64, error) {
	return cl.delta(proto.OpIncr, key, delta, initial, expiry)
}

// Decr subtracts delta from the numeric value stored at key, clamping at
// zero rather than wrapping below it (memcached's own decr semantics).
func (cl *Client) Decr(key []byte, delta, initial uint64, expiry uint32) (uint64, error) {
	return cl.delta(proto.OpDecr, key, delta, initial, expiry)
}

func (cl *Client) delta(op proto.Op, key []byte, delta, initial uint64, expiry uint32) (uint64, error) {
	if err := proto.ValidateKey(key, cl.cfg.Prefix, cl.cfg.VerifyKey); err != nil {
		return 0, err
	}
	idx, err := cl.route(key)
	if err != nil {
		return 0, err
	}

	req := proto.Request{Op: op, Key: key, Delta: delta, Initial: initial, Expiry: expiry, NoReply: cl.cfg.NoReply}
	ev, err := cl.roundTrip(idx, req)
	if err != nil {
		return 0, err
	}
	if err := statusErr(ev, idx); err != nil {
		return 0, err
	}
	return ev.Delta, nil
}

// Delete removes key. expiry > 0 requests the legacy defer-delete window,
// honored only by servers that still support it.
func (cl *Client) Delete(key []byte, expiry uint32) error {
	if err := proto.ValidateKey(key, cl.cfg.Prefix, cl.cfg.VerifyKey); err != nil {
		return err
	}
	idx, err := cl.route(key)
	if err != nil {
		return err
	}

	req := proto.Request{Op: proto.OpDelete, Key: key, Expiry: expiry, NoReply: cl.cfg.NoReply}
	ev, err := cl.roundTrip(idx, req)
	if err != nil {
		return err
	}
	return statusErr(ev, idx)
}

// Touch updates key's expiry without transferring its value. Binary only;
// NotSupported on the ASCII protocol, which never grew a TOUCH command.
func (cl *Client) Touch(key []byte, expiry uint32) error {
	if cl.cfg.Protocol != ProtoBinary {
		return mcerr.NotSupported.Error(nil)
	}
	if err := proto.ValidateKey(key, cl.cfg.Prefix, cl.cfg.VerifyKey); err != nil {
		return err
	}
	idx, err := cl.route(key)
	if err != nil {
		return err
	}

	ev, err := cl.roundTrip(idx, proto.Request{Op: proto.OpTouch, Key: key, Expiry: expiry})
	if err != nil {
		return err
	}
	return statusErr(ev, idx)
}

// Gat (get-and-touch) retrieves key's value while also updating its expiry
// in one round trip. Binary only, supplementing the facade's table with the
// opcode the wire codec already frames.
func (cl *Client) Gat(key []byte, expiry uint32) (Result, error) {
	if cl.cfg.Protocol != ProtoBinary {
		return Result{}, mcerr.NotSupported.Error(nil)
	}
	if err := proto.ValidateKey(key, cl.cfg.Prefix, cl.cfg.VerifyKey); err != nil {
		return Result{}, err
	}
	idx, err := cl.route(key)
	if err != nil {
		return Result{}, err
	}

	ev, err := cl.roundTrip(idx, proto.Request{Op: proto.OpGat, Key: key, Expiry: expiry})
	if err != nil {
		return Result{}, err
	}
	if err := statusErr(ev, idx); err != nil {
		return Result{}, err
	}
	return Result{Key: key, Value: ev.Value, Flags: ev.Flags, Cas: ev.Cas}, nil
}

// Flush broadcasts FLUSH_ALL to every server in the pool. Every server is
// attempted regardless of earlier failures; the aggregate result is
// Success iff every server succeeded, else the first failure encountered.
func (cl *Client) Flush(expiry uint32) error {
	var first error
	for idx := 0; idx < cl.pool.Len(); idx++ {
		ev, err := cl.roundTrip(idx, proto.Request{Op: proto.OpFlush, Expiry: expiry})
		if err == nil {
			err = statusErr(ev, idx)
		}
		if err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Version queries every server's version string, keyed by "host:port".
func (cl *Client) Version() (map[string]string, error) {
	out := make(map[string]string, cl.pool.Len())
	var first error

	for idx := 0; idx < cl.pool.Len(); idx++ {
		s := cl.pool.Server(idx)
		addr := fmt.Sprintf("%s:%d", s.Host, s.Port)

		ev, err := cl.roundTrip(idx, proto.Request{Op: proto.OpVersion})
		if err != nil {
			if first == nil {
				first = err
			}
			continue
		}
		out[addr] = string(ev.Value)
	}
	return out, first
}

// Stats fans STAT (optionally scoped by name) out to every server and
// merges the per-server key/value pairs, keyed by "host:port".
func (cl *Client) Stats(name []byte) (map[string]map[string]string, error) {
	out := make(map[string]map[string]string, cl.pool.Len())
	var first error

	for idx := 0; idx < cl.pool.Len(); idx++ {
		s := cl.pool.Server(idx)
		addr := fmt.Sprintf("%s:%d", s.Host, s.Port)

		kv, err := cl.statsOneServer(idx, name)
		if err != nil {
			if first == nil {
				first = err
			}
			continue
		}
		out[addr] = kv
	}
	return out, first
}

func (cl *Client) statsOneServer(idx int, name []byte) (map[string]string, error) {
	cl.mu[idx].Lock()
	defer cl.mu[idx].Unlock()

	if err := cl.ensure(idx); err != nil {
		return nil, err
	}
	c := cl.conns[idx]

	if err := cl.encode(c.WriteBuf(), proto.Request{Op: proto.OpStat, Key: name}); err != nil {
		return nil, err
	}
	if err := c.Flush(); err != nil {
		cl.pool.MarkFailure(idx, time.Now())
		return nil, err
	}

	kv := make(map[string]string)
	for {
		ev, err := cl.decodeOneLocked(idx)
		if err != nil {
			cl.pool.MarkFailure(idx, time.Now())
			return nil, err
		}

		if cl.cfg.Protocol == ProtoBinary {
			if ev.Op == proto.OpStat && len(ev.StatName) == 0 {
				cl.pool.MarkSuccess(idx)
				return kv, nil
			}
			if len(ev.StatName) > 0 {
				kv[string(ev.StatName)] = string(ev.StatValue)
			}
			continue
		}

		switch ev.Status {
		case mcerr.End:
			cl.pool.MarkSuccess(idx)
			return kv, nil
		case mcerr.Stat:
			kv[string(ev.StatName)] = string(ev.StatValue)
		}
	}
}

// Quit sends QUIT to every connected server and closes its connection.
func (cl *Client) Quit() error {
	var first error
	for idx := 0; idx < cl.pool.Len(); idx++ {
		if !cl.conns[idx].IsConnected() {
			continue
		}
		if _, err := cl.roundTrip(idx, proto.Request{Op: proto.OpQuit, NoReply: true}); err != nil && first == nil {
			first = err
		}
		_ = cl.conns[idx].Close()
	}
	return first
}

// Noop sends a no-op to the server at idx and waits for its echo, a
// liveness probe with no side effects on stored data. Binary only.
func (cl *Client) Noop(idx int) error {
	if cl.cfg.Protocol != ProtoBinary {
		return mcerr.NotSupported.Error(nil)
	}
	_, err := cl.roundTrip(idx, proto.Request{Op: proto.OpNoop})
	return err
}

// Close closes every connection in the pool without sending QUIT.
func (cl *Client) Close() error {
	var first error
	for _, c := range cl.conns {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
