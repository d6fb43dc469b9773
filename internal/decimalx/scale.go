// Package decimalx converts between the arbitrary-scale decimal type used at
// the API edge and the fixed-point integers the on-chain program expects.
// Conversion always truncates toward zero; it never rounds.
package decimalx

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// ScaleUnsigned computes floor(|mantissa(x)| * target / 10^scale(x)) and
// returns it as a uint64. target is usually a power of ten (e.g. 10^9 for
// perp base precision, 10^6 for price precision).
//
// This is the u64 half of the spec's scale_decimal_to_u64 rule: the result
// is order-preserving in |x| and always truncates.
func ScaleUnsigned(x decimal.Decimal, target uint64) uint64 {
	mantissa := new(big.Int).Abs(x.Coefficient())
	scale := x.Exponent()

	num := new(big.Int).Mul(mantissa, new(big.Int).SetUint64(target))
	num = applyExponent(num, scale)
	if num.Sign() < 0 {
		return 0
	}
	if !num.IsUint64() {
		return ^uint64(0)
	}
	return num.Uint64()
}

// ScaleSigned is the signed counterpart: it preserves the sign of x while
// truncating the magnitude the same way ScaleUnsigned does.
func ScaleSigned(x decimal.Decimal, target int64) int64 {
	mantissa := x.Coefficient()
	scale := x.Exponent()

	absTarget := target
	if absTarget < 0 {
		absTarget = -absTarget
	}

	num := new(big.Int).Mul(new(big.Int).Abs(mantissa), big.NewInt(absTarget))
	num = applyExponent(num, scale)

	result := num.Int64()
	if mantissa.Sign() < 0 {
		result = -result
	}
	if target < 0 {
		result = -result
	}
	return result
}

// applyExponent divides num by 10^(-exp) when exp is negative (i.e. the
// decimal has exp decimal places), truncating. When exp >= 0 the decimal is
// already an integer at that scale and num is multiplied up instead — this
// never happens for values coming out of decimal.NewFromString on typical
// price/amount strings, but is handled for completeness.
func applyExponent(num *big.Int, exp int32) *big.Int {
	if exp == 0 {
		return num
	}
	if exp < 0 {
		divisor := pow10(uint(-exp))
		out := new(big.Int)
		out.Quo(num, divisor) // truncates toward zero, matching floor for non-negative operands
		return out
	}
	return new(big.Int).Mul(num, pow10(uint(exp)))
}

func pow10(n uint) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), new(big.Int).SetUint64(uint64(n)), nil)
}

// FromFixedPoint converts a fixed-point integer amount at the given number
// of decimals back into a normalized decimal.Decimal, the inverse direction
// used when rendering on-chain state back to clients.
func FromFixedPoint(amount int64, decimals uint32) decimal.Decimal {
	return decimal.New(amount, -int32(decimals)).Truncate(int32(decimals)).Normalize()
}

// FromFixedPointUnsigned is the unsigned-input counterpart of FromFixedPoint.
func FromFixedPointUnsigned(amount uint64, decimals uint32) decimal.Decimal {
	return decimal.New(int64(amount), -int32(decimals)).Normalize()
}
