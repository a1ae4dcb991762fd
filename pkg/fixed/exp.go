package fixed

import (
	"math/big"

	"github.com/holiman/uint256"
)

// ExpDecimals is the internal precision of the exponential.
const ExpDecimals = 36

const (
	// Past this integer exponent e^(-x) is below 10^-36.
	maxExpInt = 84
	// Taylor terms for x in [0,1] vanish well before this bound at 36 digits.
	maxTaylorTerms = 64
)

var (
	scale36 = new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(ExpDecimals))
	scale72 = new(uint256.Int).Mul(scale36, scale36)
	// e^-1 at 36 digits, derived from the same series as the fractional part.
	invE = new(uint256.Int).Div(scale72, expSeries(scale36))
)

// Scale36 returns 10^36, the unit of ExpNeg results.
func Scale36() *uint256.Int {
	return new(uint256.Int).Set(scale36)
}

// expSeries evaluates e^f for f in [0, 10^36] (that is, [0,1]) by the
// Taylor series. Every term is non-negative, so the sum is monotone in f.
func expSeries(f *uint256.Int) *uint256.Int {
	sum := new(uint256.Int).Set(scale36)
	term := new(uint256.Int).Set(scale36)
	div := new(uint256.Int)
	for i := uint64(1); i <= maxTaylorTerms; i++ {
		term.Mul(term, f)
		div.Mul(scale36, uint256.NewInt(i))
		term.Div(term, div)
		if term.IsZero() {
			break
		}
		sum.Add(sum, term)
	}
	return sum
}

// expNegInt returns e^(-n) at 36 digits by repeated squaring of e^-1.
func expNegInt(n uint64) *uint256.Int {
	result := new(uint256.Int).Set(scale36)
	base := new(uint256.Int).Set(invE)
	for n > 0 {
		if n&1 == 1 {
			result.Mul(result, base)
			result.Div(result, scale36)
		}
		base.Mul(base, base)
		base.Div(base, scale36)
		n >>= 1
	}
	return result
}

// ExpNeg returns e^(-num/den) scaled by 10^36 (rounded down).
func ExpNeg(num, den uint64) (*uint256.Int, error) {
	return ExpNegRatio(uint256.NewInt(num), uint256.NewInt(den))
}

// ExpNegRatio is ExpNeg for 256-bit operands. The exponent is split into an
// integer part, handled by powers of e^-1, and a fractional part in [0,1)
// handled by the Taylor series.
func ExpNegRatio(num, den *uint256.Int) (*uint256.Int, error) {
	if den.IsZero() {
		return nil, ErrDivByZero
	}
	n, r := new(uint256.Int), new(uint256.Int)
	n.DivMod(num, den, r)
	if !n.IsUint64() || n.Uint64() > maxExpInt {
		return new(uint256.Int), nil
	}
	intPart := expNegInt(n.Uint64())
	if r.IsZero() {
		return intPart, nil
	}
	f, err := MulDiv(r, scale36, den)
	if err != nil {
		return nil, err
	}
	fracPart := new(uint256.Int).Div(scale72, expSeries(f))
	return new(uint256.Int).Div(new(uint256.Int).Mul(intPart, fracPart), scale36), nil
}

// Float converts an amount scaled by 10^decimals to a float64. Precision is
// lost; use only for metrics and display.
func Float(x *uint256.Int, decimals uint) float64 {
	if x == nil {
		return 0
	}
	num := new(big.Float).SetInt(x.ToBig())
	den := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	f, _ := new(big.Float).Quo(num, den).Float64()
	return f
}
