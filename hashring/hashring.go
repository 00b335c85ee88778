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

// Package hashring builds the key-to-server distribution structures the
// pool routes through: plain modulo, a ketama consistent-hash ring (plain
// and weighted), and a rendezvous-hashing fallback policy.
package hashring

import (
	"crypto/md5"
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/cespare/xxhash/v2"
	"github.com/dgryski/go-rendezvous"
)

// HashFunc turns a byte slice into the 32-bit value the distribution
// policies route on. FNV/MD5/Murmur/CRC implementations are opaque to this
// package - it only ever calls the configured one.
type HashFunc func([]byte) uint32

// Policy selects how keys map to server indices.
type Policy uint8

const (
	Modulo Policy = iota
	Ketama
	KetamaWeighted
	Rendezvous
)

// pointsPerWeight is ketama's canonical 160 virtual points per unit weight.
const pointsPerWeight = 160

type point struct {
	value uint32
	index int
}

// Ring resolves a hashed key to a server index under one distribution
// policy. It is immutable once built - any server-list change rebuilds a
// new Ring rather than mutating this one, per the pool's "rebuild, never
// patch" contract.
type Ring struct {
	policy Policy
	hash   HashFunc
	n      int
	points []point // sorted, used by Ketama / KetamaWeighted

	rdv     *rendezvous.Rendezvous // used by Rendezvous
	seedIdx map[string]int
}

// Server is the minimal shape hashring needs to build a ring: enough to
// hash a stable identity and to weight ketama's point count.
type Server struct {
	Host   string
	Port   int
	Weight uint32
}

// Build constructs a Ring for the given policy over servers, using hash for
// every point/key hash. A zero Weight is treated as 1.
func Build(policy Policy, servers []Server, hash HashFunc) *Ring {
	r := &Ring{policy: policy, hash: hash, n: len(servers)}

	switch policy {
	case Modulo:
		// no precomputation needed; Route() does hash(key) % n directly.
	case Ketama:
		r.points = buildKetamaPoints(servers, hash, false)
	case KetamaWeighted:
		r.points = buildKetamaPoints(servers, hash, true)
	case Rendezvous:
		seeds := make([]string, len(servers))
		r.seedIdx = make(map[string]int, len(servers))
		for i, s := range servers {
			seeds[i] = seed(s)
			r.seedIdx[seeds[i]] = i
		}
		r.rdv = rendezvous.New(seeds, xxhashSeeded)
	}

	return r
}

func seed(s Server) string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func normalizedWeight(s Server, totalWeight uint32) uint32 {
	if s.Weight == 0 {
		return 1
	}
	return s.Weight
}

func buildKetamaPoints(servers []Server, hash HashFunc, weighted bool) []point {
	var totalWeight uint32
	for _, s := range servers {
		totalWeight += normalizedWeight(s, 0)
	}
	if totalWeight == 0 {
		totalWeight = uint32(len(servers))
	}

	pts := make([]point, 0, len(servers)*pointsPerWeight)

	for idx, s := range servers {
		count := pointsPerWeight
		if weighted {
			w := normalizedWeight(s, totalWeight)
			count = int(uint64(pointsPerWeight)*uint64(w)/uint64(totalWeight)) * len(servers)
			if count == 0 {
				count = 1
			}
		}

		// MD5 extracts four 32-bit points per hash of "host:port-i", the
		// classic ketama trick for getting 4x the points per hash call.
		base := seed(s)
		for i := 0; i*4 < count; i++ {
			sum := md5.Sum([]byte(fmt.Sprintf("%s-%d", base, i)))
			for j := 0; j < 4 && i*4+j < count; j++ {
				v := binary.LittleEndian.Uint32(sum[j*4 : j*4+4])
				pts = append(pts, point{value: v, index: idx})
			}
		}
		_ = hash // the ketama point hash is always MD5 regardless of the configured key hash
	}

	sort.Slice(pts, func(i, j int) bool { return pts[i].value < pts[j].value })
	return pts
}

// Route resolves key to a server index under the ring's policy, with no
// awareness of liveness - the pool layers dead-server skipping on top via
// RouteProbe.
func (r *Ring) Route(key []byte) int {
	if r.n == 0 {
		return -1
	}

	switch r.policy {
	case Modulo:
		return int(r.hash(key) % uint32(r.n))
	case Ketama, KetamaWeighted:
		return r.ketamaRoute(r.hash(key))
	case Rendezvous:
		return r.rendezvousRoute(key)
	default:
		return int(r.hash(key) % uint32(r.n))
	}
}

func (r *Ring) ketamaRoute(h uint32) int {
	i := r.ketamaPosition(h)
	if i < 0 {
		return -1
	}
	return r.points[i].index
}

// ketamaPosition returns the index into r.points the hash lands on,
// wrapping to 0 past the last point.
func (r *Ring) ketamaPosition(h uint32) int {
	if len(r.points) == 0 {
		return -1
	}

	i := sort.Search(len(r.points), func(i int) bool { return r.points[i].value >= h })
	if i == len(r.points) {
		i = 0 // wrap to ring[0]
	}
	return i
}

// RouteProbe resolves key's server index after advancing attempt steps past
// its initial placement. For Ketama/KetamaWeighted this walks attempt
// successive ring positions (the same point slice Route searches), which is
// not the same as server index arithmetic: several consecutive points can
// belong to the same server, and a server's points are not evenly spread
// one-per-slot. For Modulo/Rendezvous, which have no ring of points, it
// falls back to advancing the server index directly.
func (r *Ring) RouteProbe(key []byte, attempt int) int {
	if r.n == 0 {
		return -1
	}

	switch r.policy {
	case Ketama, KetamaWeighted:
		if len(r.points) == 0 {
			return -1
		}
		i := r.ketamaPosition(r.hash(key))
		if i < 0 {
			return -1
		}
		pos := (i + attempt) % len(r.points)
		return r.points[pos].index
	default:
		base := r.Route(key)
		if base < 0 {
			return -1
		}
		return (base + attempt) % r.n
	}
}

// rendezvousRoute delegates to dgryski/go-rendezvous's highest-random-weight
// hashing, an alternative to ketama that needs no precomputed ring and
// rebalances a strict minimum of keys when a single server is added or
// removed.
func (r *Ring) rendezvousRoute(key []byte) int {
	if r.rdv == nil {
		return -1
	}
	node := r.rdv.Lookup(string(key))
	return r.seedIdx[node]
}

// xxhashSeeded adapts xxhash to the (string, seed) -> uint64 shape
// go-rendezvous wants for combining a candidate node with its precomputed
// seed.
func xxhashSeeded(s string, seed uint64) uint64 {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], seed)
	d := xxhash.New()
	d.Write(b[:])
	d.WriteString(s)
	return d.Sum64()
}

// Points exposes the sorted ketama points for testability (size and sort
// invariants).
func (r *Ring) Points() []uint32 {
	out := make([]uint32, len(r.points))
	for i, p := range r.points {
		out[i] = p.value
	}
	return out
}

// PointsForServer counts how many ring points belong to server index idx.
func (r *Ring) PointsForServer(idx int) int {
	n := 0
	for _, p := range r.points {
		if p.index == idx {
			n++
		}
	}
	return n
}
