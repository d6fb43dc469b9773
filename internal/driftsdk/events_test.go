package driftsdk

import (
	"bytes"
	"encoding/base64"
	"testing"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// A log-stream fill must carry maker/taker through to RawOrderFill so
// mapOrderFill (gatewaycore) can actually match a subscriber against them —
// the decoder previously dropped this context, silently losing every fill.
func TestWireOrderFillToRawPopulatesMakerTaker(t *testing.T) {
	maker := solana.NewWallet().PublicKey()
	taker := solana.NewWallet().PublicKey()

	w := wireOrderFill{
		Side:         uint8(DirectionShort),
		BaseAmount:   1_000_000_000,
		QuoteAmount:  42_000_000,
		HasMaker:     true,
		Maker:        maker,
		MakerOrderID: 11,
		MakerFee:     -500,
		HasTaker:     true,
		Taker:        taker,
		TakerOrderID: 22,
		TakerFee:     1500,
	}

	raw := w.toRaw()
	if raw.Maker == nil || !raw.Maker.Equals(maker) {
		t.Fatalf("Maker = %v, want %s", raw.Maker, maker)
	}
	if raw.Taker == nil || !raw.Taker.Equals(taker) {
		t.Fatalf("Taker = %v, want %s", raw.Taker, taker)
	}
	if raw.MakerOrderID == nil || *raw.MakerOrderID != 11 {
		t.Fatalf("MakerOrderID = %v, want 11", raw.MakerOrderID)
	}
	if raw.TakerOrderID == nil || *raw.TakerOrderID != 22 {
		t.Fatalf("TakerOrderID = %v, want 22", raw.TakerOrderID)
	}
	if raw.MakerFee == nil || *raw.MakerFee != -500 {
		t.Fatalf("MakerFee = %v, want -500", raw.MakerFee)
	}
	if raw.TakerFee == nil || *raw.TakerFee != 1500 {
		t.Fatalf("TakerFee = %v, want 1500", raw.TakerFee)
	}
}

// A fill with neither flag set (no counterparty context available) must not
// fabricate a maker or taker.
func TestWireOrderFillToRawNoCounterparty(t *testing.T) {
	raw := wireOrderFill{BaseAmount: 1, QuoteAmount: 1}.toRaw()
	if raw.Maker != nil || raw.Taker != nil {
		t.Fatalf("expected no maker/taker, got maker=%v taker=%v", raw.Maker, raw.Taker)
	}
}

func encodeLogLine(t *testing.T, ixName string, body any) string {
	t.Helper()
	discriminator := anchorDiscriminator(ixName)
	buf := new(bytes.Buffer)
	buf.Write(discriminator[:])
	if err := bin.NewBorshEncoder(buf).Encode(body); err != nil {
		t.Fatalf("encode %s: %v", ixName, err)
	}
	return logEventPrefix + base64.StdEncoding.EncodeToString(buf.Bytes())
}

// Each of the four event kinds the log parser used to silently drop must
// now reach mapEvent with its payload populated.
func TestParseLogLineOrderCreate(t *testing.T) {
	line := encodeLogLine(t, "OrderCreateEvent", wireOrderCreate{
		Order: wireOrder{OrderID: 9, MarketIndex: 3, Price: 1000},
	})

	event, ok := parseLogLine(line, "sig", 0)
	if !ok {
		t.Fatalf("expected parseLogLine to recognize OrderCreateEvent")
	}
	if event.Kind != RawEventOrderCreate {
		t.Fatalf("Kind = %v, want RawEventOrderCreate", event.Kind)
	}
	if event.Order == nil || event.Order.OrderID != 9 || event.Order.MarketIndex != 3 {
		t.Fatalf("Order = %+v, want OrderID=9 MarketIndex=3", event.Order)
	}
}

func TestParseLogLineOrderTrigger(t *testing.T) {
	line := encodeLogLine(t, "OrderTriggerEvent", wireOrderTrigger{OrderID: 4, OraclePrice: 123_000_000})

	event, ok := parseLogLine(line, "sig", 0)
	if !ok {
		t.Fatalf("expected parseLogLine to recognize OrderTriggerEvent")
	}
	if event.Kind != RawEventOrderTrigger || event.OrderID != 4 || event.OraclePrice != 123_000_000 {
		t.Fatalf("event = %+v, want OrderID=4 OraclePrice=123000000", event)
	}
}

func TestParseLogLineOrderCancelMissing(t *testing.T) {
	line := encodeLogLine(t, "OrderCancelMissingEvent", wireOrderCancelMissing{OrderID: 77})

	event, ok := parseLogLine(line, "sig", 0)
	if !ok {
		t.Fatalf("expected parseLogLine to recognize OrderCancelMissingEvent")
	}
	if event.Kind != RawEventOrderCancelMissing || event.OrderID != 77 {
		t.Fatalf("event = %+v, want OrderID=77", event)
	}
}

func TestParseLogLineSwap(t *testing.T) {
	line := encodeLogLine(t, "SwapEvent", wireSwap{
		AmountIn:       1_000_000_000,
		AmountOut:      2_000_000_000,
		MarketIndexIn:  1,
		MarketIndexOut: 2,
	})

	event, ok := parseLogLine(line, "sig", 0)
	if !ok {
		t.Fatalf("expected parseLogLine to recognize SwapEvent")
	}
	if event.Kind != RawEventSwap || event.MarketIndex != 1 || event.MarketIndexOut != 2 {
		t.Fatalf("event = %+v, want MarketIndex=1 MarketIndexOut=2", event)
	}
	if event.AmountIn.String() != "1" || event.AmountOut.String() != "2" {
		t.Fatalf("AmountIn/AmountOut = %s/%s, want 1/2", event.AmountIn, event.AmountOut)
	}
}
