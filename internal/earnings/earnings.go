// Package earnings implements the saturating emission curve
//
//	E(t) = P0 + P0*k - P0*k*e^(-t/k),   R = Ptotal / P0,  k = R - 1
//
// in 18-decimal base units. E(0) = P0 and E approaches P0*R from below.
// With k = 0 the curve degenerates to linear emission E(t) = P0 + P0*t.
package earnings

import (
	"errors"
	"fmt"

	"github.com/Klingon-tech/locker/pkg/fixed"
	"github.com/holiman/uint256"
)

// ErrInvalidParams is returned for P0 = 0 or Ptotal < P0.
var ErrInvalidParams = errors.New("invalid emission parameters")

// Curve is an emission curve with fixed P0 and Ptotal.
type Curve struct {
	p0    *uint256.Int
	total *uint256.Int
	k     *uint256.Int
	p0k   *uint256.Int // P0*k, the curve's amplitude
	cap   *uint256.Int // P0*R
}

// NewCurve validates the parameters and precomputes R and k.
func NewCurve(p0, total *uint256.Int) (*Curve, error) {
	if fixed.IsZero(p0) {
		return nil, fmt.Errorf("%w: P0 must be positive", ErrInvalidParams)
	}
	if total == nil || total.Lt(p0) {
		return nil, fmt.Errorf("%w: Ptotal %s below P0 %s", ErrInvalidParams, total, p0)
	}
	r := new(uint256.Int).Div(total, p0)
	k := new(uint256.Int).SubUint64(r, 1)
	return &Curve{
		p0:    fixed.Clone(p0),
		total: fixed.Clone(total),
		k:     k,
		p0k:   new(uint256.Int).Mul(p0, k),
		cap:   new(uint256.Int).Mul(p0, r),
	}, nil
}

// Earnings evaluates the curve once for the given parameters.
func Earnings(t uint64, p0, total *uint256.Int) (*uint256.Int, error) {
	c, err := NewCurve(p0, total)
	if err != nil {
		return nil, err
	}
	return c.At(t), nil
}

// P0 returns the initial emission.
func (c *Curve) P0() *uint256.Int { return fixed.Clone(c.p0) }

// Total returns the configured Ptotal.
func (c *Curve) Total() *uint256.Int { return fixed.Clone(c.total) }

// K returns R-1.
func (c *Curve) K() *uint256.Int { return fixed.Clone(c.k) }

// Linear reports whether the curve degenerated to linear emission (k = 0).
func (c *Curve) Linear() bool { return c.k.IsZero() }

// Asymptote returns P0*R. For a linear curve there is no bound and ok is false.
func (c *Curve) Asymptote() (limit *uint256.Int, ok bool) {
	if c.Linear() {
		return nil, false
	}
	return fixed.Clone(c.cap), true
}

// At returns E(t) for t elapsed seconds.
//
// The subtracted term P0*k*e^(-t/k) is rounded up and e^(-t/k) never drops
// below one unit of 10^-36, so At(t) < P0*R for every finite t and the curve
// never emits more than the continuous reference. The linear form saturates
// at 2^256-1.
func (c *Curve) At(t uint64) *uint256.Int {
	if c.Linear() {
		grown, overflow := new(uint256.Int).MulOverflow(c.p0, uint256.NewInt(t))
		if !overflow {
			grown, overflow = grown.AddOverflow(grown, c.p0)
		}
		if overflow {
			return new(uint256.Int).SetAllOne()
		}
		return grown
	}

	decay, err := fixed.ExpNegRatio(uint256.NewInt(t), c.k)
	if err != nil {
		// k > 0 here, so the only failure mode is unreachable.
		panic(err)
	}
	if decay.IsZero() {
		decay.SetOne()
	}
	remaining, err := fixed.MulDivUp(c.p0k, decay, fixed.Scale36())
	if err != nil {
		panic(err)
	}
	return new(uint256.Int).Sub(c.cap, remaining)
}
