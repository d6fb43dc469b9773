package driftsdk

import "testing"

func TestDecodeProgramErrorCustomCode(t *testing.T) {
	txErr := map[string]any{
		"InstructionError": []any{
			float64(2),
			map[string]any{"Custom": float64(6003)},
		},
	}

	code, name := decodeProgramError(txErr)
	if code != 6003 {
		t.Fatalf("code = %d, want 6003", code)
	}
	if name != "custom_6003" {
		t.Fatalf("name = %q, want custom_6003", name)
	}
}

func TestDecodeProgramErrorUnrecognizedShape(t *testing.T) {
	code, name := decodeProgramError("some opaque string")
	if code != 0 || name != "unknown" {
		t.Fatalf("got (%d, %q), want (0, \"unknown\")", code, name)
	}
}

func TestWirePerpMarketToAccount(t *testing.T) {
	w := wirePerpMarket{
		PriceStep:              1,
		AmountStep:             1000,
		MinOrderSize:           1000000,
		MarginRatioInitial:     500,
		MarginRatioMaintenance: 300,
		OraclePrice:            150_000_000,
	}
	acct := w.toAccount(7)
	if acct.MarketIndex != 7 {
		t.Fatalf("MarketIndex = %d, want 7", acct.MarketIndex)
	}
	if !acct.OraclePrice.Equal(acct.OraclePrice) {
		t.Fatalf("unreachable")
	}
	if acct.MarginRatioInitial != 500 {
		t.Fatalf("MarginRatioInitial = %d, want 500", acct.MarginRatioInitial)
	}
}
