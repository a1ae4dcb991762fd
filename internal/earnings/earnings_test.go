package earnings

import (
	"errors"
	"math"
	"testing"

	"github.com/Klingon-tech/locker/pkg/fixed"
	"github.com/holiman/uint256"
)

// reference is the continuous-math curve in whole tokens.
func reference(t, p0, total float64) float64 {
	r := math.Floor(total / p0)
	k := r - 1
	if k == 0 {
		return p0 + p0*t
	}
	return p0 + p0*k - p0*k*math.Exp(-t/k)
}

func mustCurve(t *testing.T, p0, total uint64) *Curve {
	t.Helper()
	c, err := NewCurve(fixed.Units(p0), fixed.Units(total))
	if err != nil {
		t.Fatalf("NewCurve(%d, %d): %v", p0, total, err)
	}
	return c
}

func TestNewCurve_Rejects(t *testing.T) {
	tests := []struct {
		name      string
		p0, total *uint256.Int
	}{
		{"zero P0", uint256.NewInt(0), fixed.Units(10)},
		{"nil P0", nil, fixed.Units(10)},
		{"total below P0", fixed.Units(10), fixed.Units(9)},
		{"nil total", fixed.Units(10), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewCurve(tt.p0, tt.total); !errors.Is(err, ErrInvalidParams) {
				t.Errorf("err = %v, want ErrInvalidParams", err)
			}
			if _, err := Earnings(5, tt.p0, tt.total); !errors.Is(err, ErrInvalidParams) {
				t.Errorf("Earnings err = %v, want ErrInvalidParams", err)
			}
		})
	}
}

func TestAt_StartsAtP0(t *testing.T) {
	for _, total := range []uint64{1, 2, 100, 1_000_000} {
		c := mustCurve(t, 1, total)
		if got := c.At(0); !got.Eq(fixed.Units(1)) {
			t.Errorf("Ptotal=%d: E(0) = %s, want P0", total, fixed.Format(got))
		}
	}
}

func TestAt_MatchesReference(t *testing.T) {
	params := []struct{ p0, total uint64 }{
		{1, 100},
		{1, 15000},
		{10, 1_000_000},
		{3, 1000}, // R = 333, Ptotal not a multiple of P0
	}
	for _, p := range params {
		c := mustCurve(t, p.p0, p.total)
		for tsec := uint64(60); tsec <= 14820; tsec += 60 {
			got := fixed.Float(c.At(tsec), fixed.Decimals)
			want := reference(float64(tsec), float64(p.p0), float64(p.total))
			if rel := math.Abs(got-want) / want; rel > 0.02 {
				t.Fatalf("P0=%d Ptotal=%d t=%d: E = %g, want %g (rel err %g)", p.p0, p.total, tsec, got, want, rel)
			} else if rel > 1e-9 {
				t.Errorf("P0=%d Ptotal=%d t=%d: rel err %g exceeds fixed-point precision", p.p0, p.total, tsec, rel)
			}
		}
	}
}

func TestAt_MonotoneAndBounded(t *testing.T) {
	c := mustCurve(t, 2, 200)
	limit, ok := c.Asymptote()
	if !ok {
		t.Fatal("curve should have an asymptote")
	}
	if !limit.Eq(fixed.Units(200)) {
		t.Fatalf("asymptote = %s, want P0*R = 200", fixed.Format(limit))
	}

	prev := c.At(0)
	times := []uint64{}
	for tsec := uint64(1); tsec < 100_000; tsec = tsec*3/2 + 1 {
		times = append(times, tsec)
	}
	times = append(times, 1<<40, math.MaxUint64)
	for _, tsec := range times {
		cur := c.At(tsec)
		if cur.Lt(prev) {
			t.Fatalf("E(%d) = %s decreased from %s", tsec, cur, prev)
		}
		if !cur.Lt(limit) {
			t.Fatalf("E(%d) = %s reached asymptote %s", tsec, cur, limit)
		}
		prev = cur
	}
}

func TestAt_AsymptoteIsP0TimesR(t *testing.T) {
	// Ptotal = 250, P0 = 100: R = 2 by integer division, so the curve
	// saturates at 200 rather than 250.
	c := mustCurve(t, 100, 250)
	limit, _ := c.Asymptote()
	if !limit.Eq(fixed.Units(200)) {
		t.Errorf("asymptote = %s, want 200", fixed.Format(limit))
	}
	if got := c.At(1 << 30); !got.Lt(fixed.Units(200)) || got.Lt(fixed.Units(199)) {
		t.Errorf("E(large) = %s, want just below 200", fixed.Format(got))
	}
}

func TestAt_LinearWhenKIsZero(t *testing.T) {
	c := mustCurve(t, 5, 5)
	if !c.Linear() {
		t.Fatal("Ptotal == P0 should give a linear curve")
	}
	if _, ok := c.Asymptote(); ok {
		t.Error("linear curve has no asymptote")
	}
	for _, tsec := range []uint64{0, 1, 60, 86400} {
		want := fixed.Units(5 + 5*tsec)
		if got := c.At(tsec); !got.Eq(want) {
			t.Errorf("E(%d) = %s, want %s", tsec, fixed.Format(got), fixed.Format(want))
		}
	}

	// Ptotal < 2*P0 also floors R to 1.
	if !mustCurve(t, 5, 9).Linear() {
		t.Error("R = 1 should give a linear curve")
	}

	huge := new(uint256.Int).Lsh(uint256.NewInt(1), 250)
	sat, err := NewCurve(huge, huge)
	if err != nil {
		t.Fatal(err)
	}
	if got := sat.At(math.MaxUint64); !got.Eq(new(uint256.Int).SetAllOne()) {
		t.Errorf("linear overflow should saturate, got %s", got)
	}
}
