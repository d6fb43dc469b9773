// Package feeoracle maintains a rolling sample of recent on-chain priority
// fees for a reference market and answers percentile queries against it.
package feeoracle

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// sample is one (slot, fee) observation in the rolling window.
type sample struct {
	slot uint64
	fee  uint64
}

// Oracle maintains a bounded ring buffer of recent priority-fee samples for
// a reference account and exposes a percentile query over the window.
type Oracle struct {
	client    *rpc.Client
	reference solana.PublicKey
	window    int
	floor     uint64
	logger    *slog.Logger

	mu      sync.RWMutex
	samples []sample
	lastGood uint64
	haveGood bool
}

// New constructs an Oracle. window bounds the number of samples retained;
// floor is returned when no good sample has ever been observed.
func New(client *rpc.Client, reference solana.PublicKey, window int, floor uint64, logger *slog.Logger) *Oracle {
	if window <= 0 {
		window = 150
	}
	return &Oracle{
		client:    client,
		reference: reference,
		window:    window,
		floor:     floor,
		logger:    logger,
		samples:   make([]sample, 0, window),
	}
}

// Run periodically refreshes the sample window until ctx is canceled,
// following the ticker-driven background-task shape used throughout this
// codebase.
func (o *Oracle) Run(ctx context.Context, refreshInterval time.Duration) {
	if refreshInterval <= 0 {
		refreshInterval = 4 * time.Second
	}

	o.refresh(ctx)

	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.refresh(ctx)
		}
	}
}

func (o *Oracle) refresh(ctx context.Context) {
	fees, err := o.client.GetRecentPrioritizationFees(ctx, []solana.PublicKey{o.reference})
	if err != nil {
		o.logger.Warn("priority fee refresh failed, serving last good value", "err", err)
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	for _, f := range fees {
		o.samples = append(o.samples, sample{slot: f.Slot, fee: f.PrioritizationFee})
	}
	if overflow := len(o.samples) - o.window; overflow > 0 {
		o.samples = o.samples[overflow:]
	}
	if len(o.samples) > 0 {
		o.haveGood = true
		o.lastGood = o.samples[len(o.samples)-1].fee
	}
}

// Percentile returns the p-th percentile (0..1) of the current window. On an
// empty window it returns the last known good value, or the configured
// floor if none has ever been observed.
func (o *Oracle) Percentile(p float64) uint64 {
	o.mu.RLock()
	defer o.mu.RUnlock()

	if len(o.samples) == 0 {
		if o.haveGood {
			return o.lastGood
		}
		return o.floor
	}

	fees := make([]uint64, len(o.samples))
	for i, s := range o.samples {
		fees[i] = s.fee
	}
	sort.Slice(fees, func(i, j int) bool { return fees[i] < fees[j] })

	if p <= 0 {
		return fees[0]
	}
	if p >= 1 {
		return fees[len(fees)-1]
	}

	idx := int(math.Ceil(p*float64(len(fees)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(fees) {
		idx = len(fees) - 1
	}
	return fees[idx]
}
