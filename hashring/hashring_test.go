package hashring_test

import (
	"encoding/binary"
	"testing"

	"github.com/sabouaram/memkit/hashring"
)

func fnvHash(b []byte) uint32 {
	var h uint32 = 2166136261
	for _, c := range b {
		h ^= uint32(c)
		h *= 16777619
	}
	return h
}

func servers(n int) []hashring.Server {
	out := make([]hashring.Server, n)
	for i := range out {
		out[i] = hashring.Server{Host: "host", Port: 11211 + i, Weight: 1}
	}
	return out
}

func TestModulo_Deterministic(t *testing.T) {
	r := hashring.Build(hashring.Modulo, servers(5), fnvHash)
	key := []byte("some-key")

	first := r.Route(key)
	for i := 0; i < 10; i++ {
		if got := r.Route(key); got != first {
			t.Fatalf("Route(%q) = %d on call %d, want %d", key, got, i, first)
		}
	}
}

func TestKetama_Deterministic(t *testing.T) {
	r := hashring.Build(hashring.Ketama, servers(4), fnvHash)
	keys := [][]byte{[]byte("a"), []byte("b"), []byte("c"), []byte("session:42")}

	for _, k := range keys {
		first := r.Route(k)
		if got := r.Route(k); got != first {
			t.Errorf("Route(%q) not stable: %d then %d", k, first, got)
		}
	}
}

func TestKetama_PointsSorted(t *testing.T) {
	r := hashring.Build(hashring.Ketama, servers(6), fnvHash)
	pts := r.Points()
	if len(pts) == 0 {
		t.Fatal("Points() is empty")
	}
	for i := 1; i < len(pts); i++ {
		if pts[i-1] > pts[i] {
			t.Fatalf("Points() not sorted at index %d: %d > %d", i, pts[i-1], pts[i])
		}
	}
}

func TestKetama_EqualWeightPointCounts(t *testing.T) {
	n := 5
	r := hashring.Build(hashring.Ketama, servers(n), fnvHash)
	for i := 0; i < n; i++ {
		if got := r.PointsForServer(i); got != 160 {
			t.Errorf("PointsForServer(%d) = %d, want 160", i, got)
		}
	}
}

func TestKetamaWeighted_PointCountsProportional(t *testing.T) {
	srv := []hashring.Server{
		{Host: "a", Port: 1, Weight: 1},
		{Host: "b", Port: 2, Weight: 3},
	}
	r := hashring.Build(hashring.KetamaWeighted, srv, fnvHash)

	// total weight 4, N=2: server 0 gets floor(160*1*2/4)=80, server 1 gets floor(160*3*2/4)=240.
	if got := r.PointsForServer(0); got != 80 {
		t.Errorf("PointsForServer(0) = %d, want 80", got)
	}
	if got := r.PointsForServer(1); got != 240 {
		t.Errorf("PointsForServer(1) = %d, want 240", got)
	}
}

func TestKetama_WrapsToFirstPointPastMaxHash(t *testing.T) {
	r := hashring.Build(hashring.Ketama, servers(3), fnvHash)
	pts := r.Points()
	maxPoint := pts[len(pts)-1]

	if maxPoint == ^uint32(0) {
		t.Skip("max point happens to be exactly the uint32 ceiling, wraparound untestable with this seed")
	}

	// anything above the ring's max value must wrap to ring[0], landing on
	// the same server as a hash equal to the first point's value.
	above := maxPoint + 1
	hashOnce := func(v uint32) hashring.HashFunc {
		return func([]byte) uint32 { return v }
	}

	rAbove := hashring.Build(hashring.Ketama, servers(3), hashOnce(above))
	rFirst := hashring.Build(hashring.Ketama, servers(3), hashOnce(pts[0]))

	if got, want := rAbove.Route([]byte("x")), rFirst.Route([]byte("x")); got != want {
		// wrap-around must route identically to hitting the ring's first point
		t.Errorf("Route(above max) = %d, want wraparound to equal Route(first) = %d", got, want)
	}
}

func TestRendezvous_Deterministic(t *testing.T) {
	r := hashring.Build(hashring.Rendezvous, servers(4), fnvHash)
	key := []byte("rendezvous-key")

	first := r.Route(key)
	for i := 0; i < 10; i++ {
		if got := r.Route(key); got != first {
			t.Fatalf("Route(%q) = %d on call %d, want %d", key, got, i, first)
		}
	}
	if first < 0 || first >= 4 {
		t.Fatalf("Route(%q) = %d, want in [0,4)", key, first)
	}
}

func TestRendezvous_SpreadsAcrossServers(t *testing.T) {
	r := hashring.Build(hashring.Rendezvous, servers(4), fnvHash)
	seen := make(map[int]bool)

	for i := 0; i < 200; i++ {
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], uint32(i))
		seen[r.Route(b[:])] = true
	}
	if len(seen) < 2 {
		t.Errorf("Route() over 200 distinct keys only used %d server(s), want spread", len(seen))
	}
}

func TestRoute_EmptyServerList(t *testing.T) {
	r := hashring.Build(hashring.Ketama, nil, fnvHash)
	if got := r.Route([]byte("x")); got != -1 {
		t.Errorf("Route() on empty ring = %d, want -1", got)
	}
}
