package gatewaycore

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/coldbell/drift-gateway/internal/driftsdk"
)

// Scenario 7: Ws fill filtering — a fill where the subscriber is neither
// maker nor taker is dropped; a fill where the subscriber is the taker is
// delivered with side derived from the taker leg.
func TestMapEventFillFiltering(t *testing.T) {
	maker := solana.NewWallet().PublicKey()
	taker := solana.NewWallet().PublicKey()
	thirdParty := solana.NewWallet().PublicKey()
	subscriber := taker

	raw := driftsdk.RawLogEvent{
		Kind: driftsdk.RawEventOrderFill,
		OrderFill: &driftsdk.RawOrderFill{
			Side:        driftsdk.DirectionShort,
			BaseAmount:  1_000_000_000,
			QuoteAmount: 42_000_000,
			Maker:       &maker,
			Taker:       &taker,
		},
	}

	_, _, delivered := mapEvent(raw, thirdParty)
	if delivered {
		t.Fatalf("expected fill to be dropped for a third-party subscriber")
	}

	channel, event, delivered := mapEvent(raw, subscriber)
	if !delivered {
		t.Fatalf("expected fill to be delivered to the taker")
	}
	if channel != "fills" {
		t.Fatalf("channel = %q, want fills", channel)
	}
	if event.Fill.Side != "sell" {
		t.Fatalf("Side = %q, want sell (from taker leg direction Short)", event.Fill.Side)
	}
}

// OrderExpire.fee delivered to clients must be the arithmetic negation of
// the raw fee.
func TestMapEventOrderExpireNegatesFee(t *testing.T) {
	raw := driftsdk.RawLogEvent{Kind: driftsdk.RawEventOrderExpire, OrderID: 5, Fee: 1_000_000}
	_, event, delivered := mapEvent(raw, solana.NewWallet().PublicKey())
	if !delivered {
		t.Fatalf("expected OrderExpire to always deliver")
	}
	want := "-1"
	if event.OrderExpire.Fee.String() != want {
		t.Fatalf("Fee = %s, want %s", event.OrderExpire.Fee.String(), want)
	}
}

// Scenario 8: duplicate subscribe — the first call creates a task; the
// second returns a structured bad request without disturbing the first.
func TestSubscriptionTableDuplicateSubscribe(t *testing.T) {
	cache := newFakeCache()
	table, _ := NewSubscriptionTable(cache, slog.Default())

	account := solana.NewWallet().PublicKey()
	subscriber := solana.NewWallet().PublicKey()

	if err := table.Subscribe(context.Background(), 0, account, subscriber); err != nil {
		t.Fatalf("first Subscribe: %v", err)
	}

	err := table.Subscribe(context.Background(), 0, account, subscriber)
	bad, ok := err.(*BadRequest)
	if !ok {
		t.Fatalf("expected *BadRequest on duplicate subscribe, got %v", err)
	}
	if bad.Reason != "subscription already exists" {
		t.Fatalf("reason = %q, want %q", bad.Reason, "subscription already exists")
	}

	table.mu.Lock()
	count := len(table.subs)
	table.mu.Unlock()
	if count != 1 {
		t.Fatalf("subs table has %d entries, want 1 (original untouched)", count)
	}

	table.CloseAll()
	time.Sleep(10 * time.Millisecond)
}
