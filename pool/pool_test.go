package pool_test

import (
	"testing"
	"time"

	mcerr "github.com/sabouaram/memkit/errors"
	"github.com/sabouaram/memkit/hashring"
	"github.com/sabouaram/memkit/pool"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestPool(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Pool Suite")
}

func fnvHash(b []byte) uint32 {
	var h uint32 = 2166136261
	for _, c := range b {
		h ^= uint32(c)
		h *= 16777619
	}
	return h
}

func zeroHash([]byte) uint32 { return 0 }

func newServers(n int) []*pool.Server {
	out := make([]*pool.Server, n)
	for i := range out {
		out[i] = &pool.Server{Host: "host", Port: 11211 + i, Weight: 1}
	}
	return out
}

var _ = Describe("Route", func() {
	It("is deterministic for an unchanged pool", func() {
		p := pool.Build(newServers(4), pool.Config{Policy: hashring.Modulo, Hash: fnvHash})
		key := []byte("stable-key")

		first, err := p.Route(key)
		Expect(err).ToNot(HaveOccurred())

		for i := 0; i < 10; i++ {
			got, err := p.Route(key)
			Expect(err).ToNot(HaveOccurred())
			Expect(got).To(Equal(first))
		}
	})

	It("returns NoServers for an empty pool", func() {
		p := pool.Build(nil, pool.Config{Policy: hashring.Modulo, Hash: fnvHash})

		_, err := p.Route([]byte("x"))
		Expect(mcerr.IsCode(err, mcerr.NoServers)).To(BeTrue())
	})

	It("partitions the keyspace across both servers under modulo", func() {
		p := pool.Build(newServers(2), pool.Config{Policy: hashring.Modulo, Hash: fnvHash})

		var toZero, toOne int
		for i := 0; i < 200; i++ {
			key := []byte{byte(i), byte(i >> 8)}
			idx, err := p.Route(key)
			Expect(err).ToNot(HaveOccurred())
			Expect(idx).To(BeElementOf(0, 1))
			if idx == 0 {
				toZero++
			} else {
				toOne++
			}
		}
		Expect(toZero).To(BeNumerically(">", 0))
		Expect(toOne).To(BeNumerically(">", 0))
	})

	It("participates the configured prefix in the hash when enabled", func() {
		key := []byte("foo")
		lenHash := func(b []byte) uint32 { return uint32(len(b)) }

		withoutPrefix := pool.Build(newServers(8), pool.Config{Policy: hashring.Modulo, Hash: lenHash})
		withPrefix := pool.Build(newServers(8), pool.Config{
			Policy:            hashring.Modulo,
			Hash:              lenHash,
			Prefix:            []byte("ns:"),
			HashWithPrefixKey: true,
		})

		a, err := withoutPrefix.Route(key)
		Expect(err).ToNot(HaveOccurred())
		b, err := withPrefix.Route(key)
		Expect(err).ToNot(HaveOccurred())

		// len("foo")=3 routes to server 3; len("ns:foo")=6 routes to server 6 -
		// proof the prefix bytes were actually included in what got hashed.
		Expect(a).To(Equal(3))
		Expect(b).To(Equal(6))
	})
})

var _ = Describe("Dead server redistribution", func() {
	It("redistributes away from a server dead past its failure limit", func() {
		p := pool.Build(newServers(3), pool.Config{
			Policy:             hashring.Modulo,
			Hash:               zeroHash, // always routes to server 0 before redistribution
			ServerFailureLimit: 1,
			RetryTimeout:       30 * time.Second,
			MaxProbe:           3,
		})

		start := time.Unix(1000, 0)
		p.MarkFailure(0, start)

		idx, err := p.RouteAt([]byte("x"), start)
		Expect(err).ToNot(HaveOccurred())
		Expect(idx).ToNot(Equal(0))

		later := start.Add(31 * time.Second)
		idx, err = p.RouteAt([]byte("x"), later)
		Expect(err).ToNot(HaveOccurred())
		Expect(idx).To(Equal(0), "server should be revived once retry_timeout elapses")
	})

	It("does not mark a server dead below its failure limit", func() {
		p := pool.Build(newServers(2), pool.Config{
			Policy:             hashring.Modulo,
			Hash:               zeroHash,
			ServerFailureLimit: 3,
			RetryTimeout:       time.Minute,
		})

		now := time.Unix(1000, 0)
		p.MarkFailure(0, now)
		p.MarkFailure(0, now)

		idx, err := p.RouteAt([]byte("x"), now)
		Expect(err).ToNot(HaveOccurred())
		Expect(idx).To(Equal(0))
	})

	It("resets the failure count on success", func() {
		p := pool.Build(newServers(2), pool.Config{
			Policy:             hashring.Modulo,
			Hash:               zeroHash,
			ServerFailureLimit: 2,
			RetryTimeout:       time.Minute,
		})

		now := time.Unix(1000, 0)
		p.MarkFailure(0, now)
		p.MarkSuccess(0)
		p.MarkFailure(0, now)

		Expect(p.Server(0).IsDead(now)).To(BeFalse())
	})

	It("returns NoServers once every server in range is dead", func() {
		p := pool.Build(newServers(2), pool.Config{
			Policy:             hashring.Modulo,
			Hash:               zeroHash,
			ServerFailureLimit: 1,
			RetryTimeout:       time.Minute,
			MaxProbe:           2,
		})

		now := time.Unix(1000, 0)
		p.MarkFailure(0, now)
		p.MarkFailure(1, now)

		_, err := p.RouteAt([]byte("x"), now)
		Expect(mcerr.IsCode(err, mcerr.NoServers)).To(BeTrue())
	})
})

var _ = Describe("AddServer", func() {
	It("rebuilds a new Pool without mutating the original", func() {
		base := pool.Build(newServers(2), pool.Config{Policy: hashring.Modulo, Hash: fnvHash})
		grown := base.AddServer(&pool.Server{Host: "host", Port: 19999, Weight: 1})

		Expect(base.Len()).To(Equal(2))
		Expect(grown.Len()).To(Equal(3))
	})
})
