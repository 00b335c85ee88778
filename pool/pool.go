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

// Package pool holds the ordered backend server list, builds the
// hashring.Ring over it, and resolves a key to a live server index -
// skipping servers marked dead by consecutive failures and surfacing
// NoServers when every candidate in range is dead.
package pool

import (
	"sync/atomic"
	"time"

	mcerr "github.com/sabouaram/memkit/errors"
	"github.com/sabouaram/memkit/hashring"
)

// Server identifies one backend endpoint and carries the liveness state the
// pool mutates as operations succeed or fail against it. Once built into a
// Pool the ordered list itself is immutable; only these counters move.
type Server struct {
	Host   string
	Port   int
	UDP    bool
	Weight uint32

	failures  atomic.Int32
	deadUntil atomic.Int64 // unix nano deadline; 0 means alive
}

// IsDead reports whether now falls within this server's retry-timeout
// window.
func (s *Server) IsDead(now time.Time) bool {
	d := s.deadUntil.Load()
	return d != 0 && now.UnixNano() < d
}

// Failures returns the current consecutive-failure count.
func (s *Server) Failures() int {
	return int(s.failures.Load())
}

// recordFailure bumps the consecutive-failure counter and, once it crosses
// limit, marks the server dead until now+retryTimeout. limit <= 0 disables
// dead-marking entirely (server_failure_limit default of 0 = never).
func (s *Server) recordFailure(now time.Time, limit int, retryTimeout time.Duration) {
	if limit <= 0 {
		return
	}
	if n := s.failures.Add(1); n >= int32(limit) {
		s.deadUntil.Store(now.Add(retryTimeout).UnixNano())
	}
}

// recordSuccess clears the consecutive-failure counter. It does not early-
// revive a server already marked dead - that only lapses once retryTimeout
// has passed.
func (s *Server) recordSuccess() {
	s.failures.Store(0)
}

// Config holds everything needed to build a Pool besides the server list
// itself.
type Config struct {
	Policy hashring.Policy
	Hash   hashring.HashFunc

	// ServerFailureLimit is the consecutive-failure threshold that marks a
	// server dead. 0 (default) disables dead-marking.
	ServerFailureLimit int
	// RetryTimeout is how long a dead server stays excluded from routing.
	RetryTimeout time.Duration
	// MaxProbe bounds how many successive ring positions hash_with_redistribution
	// will try before giving up and returning NoServers.
	MaxProbe int

	// Prefix and HashWithPrefixKey control whether the key prefix
	// participates in the hash computation.
	Prefix            []byte
	HashWithPrefixKey bool
}

// Pool resolves keys to live server indices under one distribution policy.
// The server slice is fixed at Build time; "removing" a server means
// building a new Pool, per the add-server/rebuild contract - there is no
// in-place remove.
type Pool struct {
	cfg     Config
	servers []*Server
	ring    *hashring.Ring
}

// Build constructs a Pool over servers. Weight 0 is normalized to 1 by
// hashring itself. An empty server list still builds (every Route call then
// returns NoServers), since a pool can be legitimately started empty and
// populated by AddServer before first use.
func Build(servers []*Server, cfg Config) *Pool {
	ringServers := make([]hashring.Server, len(servers))
	for i, s := range servers {
		ringServers[i] = hashring.Server{Host: s.Host, Port: s.Port, Weight: s.Weight}
	}

	return &Pool{
		cfg:     cfg,
		servers: servers,
		ring:    hashring.Build(cfg.Policy, ringServers, cfg.Hash),
	}
}

// Len returns the number of servers in the pool, dead or alive.
func (p *Pool) Len() int {
	return len(p.servers)
}

// Server returns the server at idx, or nil if out of range.
func (p *Pool) Server(idx int) *Server {
	if idx < 0 || idx >= len(p.servers) {
		return nil
	}
	return p.servers[idx]
}

// AddServer appends srv to the pool and rebuilds the distribution
// structure, returning a new Pool. The receiver is left untouched, matching
// the "rebuild, never patch" contract an in-flight Pool promises its
// callers.
func (p *Pool) AddServer(srv *Server) *Pool {
	next := make([]*Server, len(p.servers)+1)
	copy(next, p.servers)
	next[len(p.servers)] = srv
	return Build(next, p.cfg)
}

// wireKey applies the configured prefix rule before hashing, matching what
// proto.WireKey does for the request itself.
func (p *Pool) wireKey(key []byte) []byte {
	if !p.cfg.HashWithPrefixKey || len(p.cfg.Prefix) == 0 {
		return key
	}
	out := make([]byte, 0, len(p.cfg.Prefix)+len(key))
	out = append(out, p.cfg.Prefix...)
	out = append(out, key...)
	return out
}

// Route resolves key to a live server index, probing successive ring
// positions to skip dead servers (hash_with_redistribution) up to
// cfg.MaxProbe attempts. It returns NoServers if the pool is empty or every
// probed candidate is dead.
func (p *Pool) Route(key []byte) (int, error) {
	return p.RouteAt(key, time.Now())
}

// RouteAt is Route with an explicit clock, for deterministic tests of the
// retry-timeout window.
func (p *Pool) RouteAt(key []byte, now time.Time) (int, error) {
	if len(p.servers) == 0 {
		return -1, mcerr.NoServers.Error(nil)
	}

	wired := p.wireKey(key)
	idx := p.ring.Route(wired)
	if idx < 0 {
		return -1, mcerr.NoServers.Error(nil)
	}

	if !p.servers[idx].IsDead(now) {
		return idx, nil
	}

	attempts := p.cfg.MaxProbe
	if attempts <= 0 {
		attempts = len(p.servers)
	}

	for i := 1; i <= attempts; i++ {
		probe := p.ring.RouteProbe(wired, i)
		if probe < 0 {
			break
		}
		if !p.servers[probe].IsDead(now) {
			return probe, nil
		}
	}

	return -1, mcerr.NoServers.Error(nil)
}

// MarkFailure records one I/O failure against the server at idx, marking it
// dead once its consecutive-failure count reaches ServerFailureLimit.
func (p *Pool) MarkFailure(idx int, now time.Time) {
	if s := p.Server(idx); s != nil {
		s.recordFailure(now, p.cfg.ServerFailureLimit, p.cfg.RetryTimeout)
	}
}

// MarkSuccess clears the consecutive-failure count for the server at idx.
func (p *Pool) MarkSuccess(idx int) {
	if s := p.Server(idx); s != nil {
		s.recordSuccess()
	}
}
