package payout

import (
	"errors"
	"math"
	"testing"

	"github.com/Klingon-tech/locker/pkg/fixed"
	"github.com/holiman/uint256"
)

func TestRankSum(t *testing.T) {
	tests := map[uint64]uint64{0: 0, 1: 1, 2: 3, 9: 45, 10000: 50005000}
	for n, want := range tests {
		if got := RankSum(n); got.Uint64() != want {
			t.Errorf("RankSum(%d) = %d, want %d", n, got.Uint64(), want)
		}
	}
}

func checkSumToOne(t *testing.T, n uint64) {
	t.Helper()
	sum := new(uint256.Int)
	prev := new(uint256.Int).SetAllOne()
	for r := uint64(0); r < n; r++ {
		v, err := Ratio(r, n)
		if err != nil {
			t.Fatalf("Ratio(%d, %d): %v", r, n, err)
		}
		if v.Gt(prev) {
			t.Fatalf("n=%d: ratio(%d) > ratio(%d)", n, r, r-1)
		}
		prev = v
		sum.Add(sum, v)
	}
	// Each floor loses less than one unit.
	lost := new(uint256.Int).Sub(fixed.One(), sum)
	if sum.Gt(fixed.One()) || lost.Gt(uint256.NewInt(n)) {
		t.Fatalf("n=%d: sum of ratios = %s, want 1e18 - [0, n)", n, sum)
	}
}

func TestRatio_SumsToOne(t *testing.T) {
	for n := uint64(1); n <= 500; n++ {
		checkSumToOne(t, n)
	}
	for n := uint64(501); n <= 10000; n += 131 {
		checkSumToOne(t, n)
	}
	checkSumToOne(t, 10000)
}

func TestRatio_MatchesClosedForm(t *testing.T) {
	for _, n := range []uint64{1, 2, 3, 9, 100, 1000} {
		for r := uint64(0); r < n; r++ {
			v, _ := Ratio(r, n)
			got := fixed.Float(v, fixed.Decimals)
			want := float64(2*n-2*r) / float64(n+n*n)
			if want > 1e-12 && math.Abs(got-want)/want > 0.001 {
				t.Fatalf("Ratio(%d, %d) = %g, want %g", r, n, got, want)
			}
		}
	}
}

func TestRatioWithSum_Identical(t *testing.T) {
	for _, n := range []uint64{1, 7, 9, 250, 4096} {
		sum := RankSum(n)
		for r := uint64(0); r < n; r++ {
			a, err := Ratio(r, n)
			if err != nil {
				t.Fatal(err)
			}
			b, err := RatioWithSum(r, n, sum)
			if err != nil {
				t.Fatal(err)
			}
			if !a.Eq(b) {
				t.Fatalf("n=%d r=%d: Ratio %s != RatioWithSum %s", n, r, a, b)
			}
		}
	}
}

func TestRatio_Errors(t *testing.T) {
	if _, err := Ratio(0, 0); !errors.Is(err, ErrRankOutOfRange) {
		t.Errorf("n=0 err = %v", err)
	}
	if _, err := Ratio(3, 3); !errors.Is(err, ErrRankOutOfRange) {
		t.Errorf("rank=n err = %v", err)
	}
	if _, err := RatioWithSum(0, 3, uint256.NewInt(5)); !errors.Is(err, ErrBadRankSum) {
		t.Errorf("bad rank sum err = %v", err)
	}
	if _, err := RatioWithSum(0, 3, nil); !errors.Is(err, ErrBadRankSum) {
		t.Errorf("nil rank sum err = %v", err)
	}
	if _, err := Share(fixed.One(), 0, 3, new(uint256.Int)); !errors.Is(err, ErrBadRankSum) {
		t.Errorf("zero rank sum err = %v", err)
	}
	if _, err := Share(fixed.One(), 5, 3, RankSum(3)); !errors.Is(err, ErrRankOutOfRange) {
		t.Errorf("share rank err = %v", err)
	}
}

func TestSplit(t *testing.T) {
	pool := uint256.NewInt(1000)
	shares, dust, err := Split(pool, 9)
	if err != nil {
		t.Fatal(err)
	}
	// 1000 * (9-r) / 45
	want := []uint64{200, 177, 155, 133, 111, 88, 66, 44, 22}
	total := new(uint256.Int)
	for r, s := range shares {
		if s.Uint64() != want[r] {
			t.Errorf("share[%d] = %d, want %d", r, s.Uint64(), want[r])
		}
		total.Add(total, s)
	}
	if total.Uint64()+dust.Uint64() != 1000 {
		t.Errorf("shares %d + dust %d != pool", total.Uint64(), dust.Uint64())
	}
	if dust.Uint64() >= 9 {
		t.Errorf("dust %d should be below n", dust.Uint64())
	}

	shares, dust, err = Split(pool, 0)
	if err != nil || shares != nil || !dust.Eq(pool) {
		t.Errorf("Split(pool, 0) = %v, %s, %v; want nil, pool, nil", shares, dust, err)
	}
}
