package feeoracle

import (
	"log/slog"
	"testing"
)

func newTestOracle(fees ...uint64) *Oracle {
	o := &Oracle{
		window: 150,
		floor:  1000,
		logger: slog.Default(),
	}
	for i, fee := range fees {
		o.samples = append(o.samples, sample{slot: uint64(i), fee: fee})
	}
	if len(fees) > 0 {
		o.haveGood = true
		o.lastGood = fees[len(fees)-1]
	}
	return o
}

func TestPercentileMonotone(t *testing.T) {
	o := newTestOracle(100, 200, 300, 400, 500, 600, 700, 800, 900, 1000)

	p1 := o.Percentile(0.5)
	p2 := o.Percentile(0.9)
	if p1 > p2 {
		t.Fatalf("expected pf(0.5) <= pf(0.9), got %d > %d", p1, p2)
	}
}

func TestPercentileEmptyWindowReturnsLastGood(t *testing.T) {
	o := newTestOracle()
	o.haveGood = true
	o.lastGood = 4242

	if got := o.Percentile(0.9); got != 4242 {
		t.Fatalf("Percentile() = %d, want last good value 4242", got)
	}
}

func TestPercentileNoSamplesEverReturnsFloor(t *testing.T) {
	o := newTestOracle()
	if got := o.Percentile(0.9); got != o.floor {
		t.Fatalf("Percentile() = %d, want floor %d", got, o.floor)
	}
}

func TestPercentileBounds(t *testing.T) {
	o := newTestOracle(10, 20, 30)
	if got := o.Percentile(0); got != 10 {
		t.Fatalf("Percentile(0) = %d, want min 10", got)
	}
	if got := o.Percentile(1); got != 30 {
		t.Fatalf("Percentile(1) = %d, want max 30", got)
	}
}
