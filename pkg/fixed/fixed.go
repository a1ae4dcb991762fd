// Package fixed implements unsigned 18-decimal fixed-point arithmetic on
// 256-bit integers, plus an exponential evaluated at 36 decimal digits.
package fixed

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/holiman/uint256"
)

// Decimals is the number of fractional digits of a Wad value.
const Decimals = 18

var (
	// ErrOverflow is returned when a result does not fit in 256 bits.
	ErrOverflow = errors.New("fixed-point overflow")
	// ErrDivByZero is returned on division by zero.
	ErrDivByZero = errors.New("fixed-point division by zero")
	// ErrParse is returned for malformed decimal strings.
	ErrParse = errors.New("invalid decimal")
)

var (
	one  = uint256.NewInt(1_000_000_000_000_000_000)
	zero = uint256.NewInt(0)
)

// One returns 10^18, the Wad representation of 1.
func One() *uint256.Int {
	return new(uint256.Int).Set(one)
}

// Units converts a whole number of tokens into base units.
func Units(tokens uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(tokens), one)
}

// MulDiv returns floor(x*y/d) using a 512-bit intermediate.
func MulDiv(x, y, d *uint256.Int) (*uint256.Int, error) {
	if d.IsZero() {
		return nil, ErrDivByZero
	}
	z, overflow := new(uint256.Int).MulDivOverflow(x, y, d)
	if overflow {
		return nil, ErrOverflow
	}
	return z, nil
}

// MulDivUp returns ceil(x*y/d).
func MulDivUp(x, y, d *uint256.Int) (*uint256.Int, error) {
	z, err := MulDiv(x, y, d)
	if err != nil {
		return nil, err
	}
	if !new(uint256.Int).MulMod(x, y, d).IsZero() {
		if z.Eq(maxUint256()) {
			return nil, ErrOverflow
		}
		z.AddUint64(z, 1)
	}
	return z, nil
}

// Add returns x+y or ErrOverflow.
func Add(x, y *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).AddOverflow(x, y)
	if overflow {
		return nil, ErrOverflow
	}
	return z, nil
}

// Mul returns x*y or ErrOverflow.
func Mul(x, y *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).MulOverflow(x, y)
	if overflow {
		return nil, ErrOverflow
	}
	return z, nil
}

// SubFloor returns x-y, clamped at zero.
func SubFloor(x, y *uint256.Int) *uint256.Int {
	if x.Lt(y) {
		return new(uint256.Int)
	}
	return new(uint256.Int).Sub(x, y)
}

// IsZero reports whether x is nil or zero.
func IsZero(x *uint256.Int) bool {
	return x == nil || x.IsZero()
}

// Clone returns a copy of x, treating nil as zero.
func Clone(x *uint256.Int) *uint256.Int {
	if x == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(x)
}

// Format renders a base-unit amount as a decimal token string, trimming
// trailing zeros ("1.5", "0.000000000000000001", "42").
func Format(x *uint256.Int) string {
	if x == nil {
		x = zero
	}
	q, r := new(uint256.Int), new(uint256.Int)
	q.DivMod(x, one, r)
	if r.IsZero() {
		return q.Dec()
	}
	frac := r.Dec()
	frac = strings.Repeat("0", Decimals-len(frac)) + frac
	return q.Dec() + "." + strings.TrimRight(frac, "0")
}

// Parse converts a decimal token string ("1.5", "100") into base units.
// At most 18 fractional digits are accepted.
func Parse(s string) (*uint256.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty", ErrParse)
	}
	whole, frac, hasDot := strings.Cut(s, ".")
	if hasDot && frac == "" {
		return nil, fmt.Errorf("%w: %q", ErrParse, s)
	}
	if len(frac) > Decimals {
		return nil, fmt.Errorf("%w: more than %d decimals", ErrParse, Decimals)
	}
	if whole == "" {
		whole = "0"
	}
	digits := whole + frac + strings.Repeat("0", Decimals-len(frac))
	for _, c := range digits {
		if c < '0' || c > '9' {
			return nil, fmt.Errorf("%w: %q", ErrParse, s)
		}
	}
	b, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrParse, s)
	}
	z, overflow := uint256.FromBig(b)
	if overflow {
		return nil, ErrOverflow
	}
	return z, nil
}

// ParseUnits parses a plain base-unit integer string.
func ParseUnits(s string) (*uint256.Int, error) {
	z, err := uint256.FromDecimal(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	return z, nil
}

func maxUint256() *uint256.Int {
	return new(uint256.Int).SetAllOne()
}
