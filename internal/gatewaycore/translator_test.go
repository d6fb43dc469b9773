package gatewaycore

import (
	"context"
	"log/slog"
	"testing"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"

	"github.com/coldbell/drift-gateway/internal/decimalx"
	"github.com/coldbell/drift-gateway/internal/driftsdk"
	"github.com/coldbell/drift-gateway/internal/feeoracle"
	"github.com/coldbell/drift-gateway/internal/wallet"
)

func newTestTranslator(t *testing.T) (*Translator, *fakeCache) {
	t.Helper()
	programID := solana.NewWallet().PublicKey()
	secret := solana.NewWallet().PrivateKey
	w, err := wallet.New(programID, &secret, nil, nil)
	if err != nil {
		t.Fatalf("wallet.New: %v", err)
	}
	cache := newFakeCache()
	fees := feeoracle.New(nil, solana.NewWallet().PublicKey(), 150, 1000, slog.Default())
	return NewTranslator(programID, cache, w, fees, 0), cache
}

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("decimal.NewFromString(%q): %v", s, err)
	}
	return d
}

// Scenario 1: place a short perp limit.
func TestPlaceOrdersShortPerpLimit(t *testing.T) {
	tr, _ := newTestTranslator(t)

	intent := PlaceOrderIntent{
		Market:    MarketRef{MarketIndex: 0, MarketType: "perp"},
		Amount:    dec(t, "-123.456"),
		Price:     dec(t, "42.10"),
		OrderType: "limit",
	}

	baseAmount := decimalx.ScaleUnsigned(intent.Amount, 1_000_000_000)
	if baseAmount != 123_456_000_000 {
		t.Fatalf("base_asset_amount = %d, want 123456000000", baseAmount)
	}

	price := decimalx.ScaleUnsigned(intent.Price, 1_000_000)
	if price != 42_100_000 {
		t.Fatalf("price = %d, want 42100000", price)
	}

	if !intent.Amount.IsNegative() {
		t.Fatalf("expected negative amount to map to Short direction")
	}

	// Exercise the real instruction-building path end to end as well.
	_, err := tr.buildPlaceOrderInstruction(context.Background(), intent, tr.wallet.SubAccount(0))
	if err != nil {
		t.Fatalf("buildPlaceOrderInstruction: %v", err)
	}
}

// Scenario 2: oracle-offset limit.
func TestPlaceOrderOracleOffset(t *testing.T) {
	tr, _ := newTestTranslator(t)

	offset := dec(t, "-0.5")
	intent := PlaceOrderIntent{
		Market:            MarketRef{MarketIndex: 0, MarketType: "perp"},
		Price:             dec(t, "1.23"),
		OraclePriceOffset: &offset,
		OrderType:         "limit",
		Amount:            dec(t, "1"),
	}

	ix, err := tr.buildPlaceOrderInstruction(context.Background(), intent, tr.wallet.SubAccount(0))
	if err != nil {
		t.Fatalf("buildPlaceOrderInstruction: %v", err)
	}
	if ix == nil {
		t.Fatalf("expected a non-nil instruction")
	}

	scaledOffset := decimalx.ScaleSigned(offset, 1_000_000)
	if scaledOffset != -500_000 {
		t.Fatalf("oracle_price_offset = %d, want -500000", scaledOffset)
	}
}

// Scenario 3: cancel with an empty ids list is a bad request.
func TestCancelOrdersEmptyIDs(t *testing.T) {
	_, err := cancelArgsFromRequest(CancelOrdersRequest{IDs: []uint32{}})
	bad, ok := err.(*BadRequest)
	if !ok {
		t.Fatalf("error is not *BadRequest: %v", err)
	}
	if bad.Reason != "ids cannot be empty" {
		t.Fatalf("reason = %q, want %q", bad.Reason, "ids cannot be empty")
	}
}

// Cancel priority: market wins over user_ids and ids when all are set.
func TestCancelOrdersPriorityMarketWins(t *testing.T) {
	market := MarketRef{MarketIndex: 2, MarketType: "perp"}
	args, err := cancelArgsFromRequest(CancelOrdersRequest{
		Market:  &market,
		UserIDs: []uint8{1, 2},
		IDs:     []uint32{3, 4},
	})
	if err != nil {
		t.Fatalf("cancelArgsFromRequest: %v", err)
	}
	if args.Mode != driftsdk.CancelModeMarket {
		t.Fatalf("Mode = %v, want CancelModeMarket", args.Mode)
	}
}

// A post-only intent must select the program's must-post-only variant, not
// a bare flag byte that happens to collide with it.
func TestPlaceOrderPostOnlyEncodesMustPostOnly(t *testing.T) {
	tr, _ := newTestTranslator(t)

	intent := PlaceOrderIntent{
		Market:    MarketRef{MarketIndex: 0, MarketType: "perp"},
		Amount:    dec(t, "1"),
		Price:     dec(t, "1"),
		OrderType: "limit",
		PostOnly:  true,
	}

	ix, err := tr.buildPlaceOrderInstruction(context.Background(), intent, tr.wallet.SubAccount(0))
	if err != nil {
		t.Fatalf("buildPlaceOrderInstruction: %v", err)
	}

	data, err := ix.Data()
	if err != nil {
		t.Fatalf("ix.Data: %v", err)
	}

	var args driftsdk.PlaceOrderArgs
	if err := bin.NewBorshDecoder(data[8:]).Decode(&args); err != nil {
		t.Fatalf("decode PlaceOrderArgs: %v", err)
	}
	if args.PostOnly != uint8(driftsdk.PostOnlyParamMustPostOnly) {
		t.Fatalf("PostOnly = %d, want %d (MustPostOnly)", args.PostOnly, driftsdk.PostOnlyParamMustPostOnly)
	}
}

// Scenario 4: modify batch must be homogeneous in addressing scheme.
func TestModifyOrdersHomogeneityViolation(t *testing.T) {
	tr, _ := newTestTranslator(t)

	userID := uint8(7)
	req := ModifyOrdersRequest{
		Orders: []ModifyOrderIntent{
			{UserOrderID: &userID},
			{},
		},
	}

	_, err := tr.ModifyOrders(context.Background(), req, TxOptions{})
	bad, ok := err.(*BadRequest)
	if !ok {
		t.Fatalf("expected *BadRequest, got %v", err)
	}
	if bad.Reason != "userOrderId not set" {
		t.Fatalf("reason = %q, want %q", bad.Reason, "userOrderId not set")
	}
}

// A modify targeting an order the cache shows as belonging to a spot market
// must scale NewAmount at that market's own decimals, not perp's.
func TestModifyOrdersScalesAtOrdersOwnMarket(t *testing.T) {
	tr, cache := newTestTranslator(t)
	cache.spotDecimals[4] = 8
	cache.openOrders = []driftsdk.Order{
		{OrderID: 55, MarketIndex: 4, MarketType: driftsdk.MarketTypeSpot},
	}

	orderID := uint32(55)
	newAmount := dec(t, "1.5")
	req := ModifyOrdersRequest{
		Orders: []ModifyOrderIntent{
			{OrderID: &orderID, NewAmount: &newAmount},
		},
	}

	batch, err := tr.buildModifyOrderArgs(context.Background(), req.Orders, 0)
	if err != nil {
		t.Fatalf("buildModifyOrderArgs: %v", err)
	}
	want := decimalx.ScaleUnsigned(newAmount, 100_000_000) // 10^8
	if batch[0].NewBaseAmount != want {
		t.Fatalf("NewBaseAmount = %d, want %d (scaled at spot decimals=8)", batch[0].NewBaseAmount, want)
	}
}
