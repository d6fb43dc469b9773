package decimalx

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestScaleUnsignedPlaceOrder(t *testing.T) {
	amount := decimal.RequireFromString("-123.456")
	got := ScaleUnsigned(amount, 1_000_000_000)
	if want := uint64(123_456_000_000); got != want {
		t.Fatalf("ScaleUnsigned(-123.456, 1e9) = %d, want %d", got, want)
	}
}

func TestScaleSignedOracleOffset(t *testing.T) {
	offset := decimal.RequireFromString("-0.5")
	got := ScaleSigned(offset, 1_000_000)
	if want := int64(-500_000); got != want {
		t.Fatalf("ScaleSigned(-0.5, 1e6) = %d, want %d", got, want)
	}
}

func TestScaleSignedPositive(t *testing.T) {
	price := decimal.RequireFromString("11.1")
	got := ScaleSigned(price, 1_000_000)
	if want := int64(11_100_000); got != want {
		t.Fatalf("ScaleSigned(11.1, 1e6) = %d, want %d", got, want)
	}
}

func TestScaleUnsignedTruncates(t *testing.T) {
	// 0.1234567 at target 1e6 should truncate to 123456, not round to 123457.
	x := decimal.RequireFromString("0.1234567")
	got := ScaleUnsigned(x, 1_000_000)
	if want := uint64(123_456); got != want {
		t.Fatalf("ScaleUnsigned(0.1234567, 1e6) = %d, want %d", got, want)
	}
}

func TestScaleUnsignedOrderPreserving(t *testing.T) {
	small := decimal.RequireFromString("1.0")
	big := decimal.RequireFromString("2.0")
	if ScaleUnsigned(small, 1_000_000) >= ScaleUnsigned(big, 1_000_000) {
		t.Fatalf("expected ScaleUnsigned to be order-preserving in |x|")
	}
}

func TestFromFixedPointRoundTrip(t *testing.T) {
	amount := decimal.RequireFromString("-123.456")
	scaled := ScaleUnsigned(amount, 1_000_000_000)
	if scaled != 123_456_000_000 {
		t.Fatalf("unexpected scaled amount: %d", scaled)
	}
	back := FromFixedPointUnsigned(scaled, 9)
	if back.String() != "123.456" {
		t.Fatalf("round trip = %s, want 123.456", back.String())
	}
}
