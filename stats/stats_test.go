package stats_test

import (
	"testing"
	"time"

	mcerr "github.com/sabouaram/memkit/errors"
	"github.com/sabouaram/memkit/stats"
)

func TestObserveTracksMeanMinMax(t *testing.T) {
	s := stats.New()

	samples := []time.Duration{
		10 * time.Millisecond,
		20 * time.Millisecond,
		30 * time.Millisecond,
	}
	for _, d := range samples {
		s.Observe(stats.OpGet, d)
	}

	snap := s.Snapshot()
	lat := snap.Latency[stats.OpGet]

	if lat.Count != uint64(len(samples)) {
		t.Fatalf("Count = %d, want %d", lat.Count, len(samples))
	}
	if lat.Min != 10*time.Millisecond {
		t.Fatalf("Min = %s, want 10ms", lat.Min)
	}
	if lat.Max != 30*time.Millisecond {
		t.Fatalf("Max = %s, want 30ms", lat.Max)
	}
	if want := 20 * time.Millisecond; lat.Mean != want {
		t.Fatalf("Mean = %s, want %s", lat.Mean, want)
	}
}

func TestCountersAndByteTotals(t *testing.T) {
	s := stats.New()

	s.IncrGet()
	s.IncrGet()
	s.IncrSet()
	s.IncrMiss()
	s.AddValueGet(100)
	s.AddValueSet(40)
	s.AddBytesIn(512)
	s.AddBytesOut(256)

	snap := s.Snapshot()
	if snap.CmdGet != 2 {
		t.Errorf("CmdGet = %d, want 2", snap.CmdGet)
	}
	if snap.CmdSet != 1 {
		t.Errorf("CmdSet = %d, want 1", snap.CmdSet)
	}
	if snap.GetMisses != 1 {
		t.Errorf("GetMisses = %d, want 1", snap.GetMisses)
	}
	if snap.ValueGet != 100 {
		t.Errorf("ValueGet = %d, want 100", snap.ValueGet)
	}
	if snap.ValueSet != 40 {
		t.Errorf("ValueSet = %d, want 40", snap.ValueSet)
	}
	if snap.BytesIn != 512 {
		t.Errorf("BytesIn = %d, want 512", snap.BytesIn)
	}
	if snap.BytesOut != 256 {
		t.Errorf("BytesOut = %d, want 256", snap.BytesOut)
	}
}

func TestReportErrorDropsRepeatsWithinTheSameSecond(t *testing.T) {
	s := stats.New()

	err1 := mcerr.New(uint16(mcerr.ConnectionFailure), "first failure")
	s.ReportError(stats.OpSet, err1)

	err2 := mcerr.New(uint16(mcerr.ConnectionFailure), "second failure, same second")
	s.ReportError(stats.OpSet, err2)

	snap := s.Snapshot()
	got, ok := snap.Errors[stats.OpSet]
	if !ok {
		t.Fatal("expected an error recorded for OpSet")
	}
	if got.Message != err1.StringError() {
		t.Errorf("expected the first error to survive, got %q", got.Message)
	}
}

func TestPercentilesOrderedAndWithinRange(t *testing.T) {
	s := stats.New()

	for i := 1; i <= 100; i++ {
		s.Observe(stats.OpGet, time.Duration(i)*time.Millisecond)
	}

	p := s.Percentiles(stats.OpGet)
	if !(p.P50 <= p.P90 && p.P90 <= p.P95 && p.P95 <= p.P99) {
		t.Fatalf("percentiles not ordered: p50=%s p90=%s p95=%s p99=%s", p.P50, p.P90, p.P95, p.P99)
	}
	if p.P99 > 150*time.Millisecond {
		t.Fatalf("p99 = %s, expected close to the 100ms sample ceiling", p.P99)
	}
}

func TestPacerEnforcesPerSecondQuota(t *testing.T) {
	p := stats.NewPacer(2)
	now := time.Now()

	if !p.Allow(now) {
		t.Fatal("first transaction should be allowed")
	}
	if !p.Allow(now) {
		t.Fatal("second transaction should be allowed")
	}
	if p.Allow(now) {
		t.Fatal("third transaction within the same second should be refused")
	}

	next := now.Add(time.Second)
	if !p.Allow(next) {
		t.Fatal("quota should reset once the wall-clock second advances")
	}
}

func TestPacerZeroQuotaDisablesPacing(t *testing.T) {
	p := stats.NewPacer(0)
	now := time.Now()

	for i := 0; i < 1000; i++ {
		if !p.Allow(now) {
			t.Fatal("a zero quota must never refuse a transaction")
		}
	}
}

func TestWriteReportProducesAFile(t *testing.T) {
	s := stats.New()
	s.IncrGet()
	s.Observe(stats.OpGet, 5*time.Millisecond)

	path := t.TempDir() + "/report.txt"
	if err := s.WriteReport(path); err != nil {
		t.Fatalf("WriteReport failed: %v", err)
	}
}
