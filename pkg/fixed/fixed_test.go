package fixed

import (
	"errors"
	"math"
	"testing"

	"github.com/holiman/uint256"
)

func TestFormatParse(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"0", "0"},
		{"1", "1"},
		{"1.5", "1.5"},
		{"0.000000000000000001", "0.000000000000000001"},
		{".25", "0.25"},
		{"1000000", "1000000"},
		{"12.340", "12.34"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			v, err := Parse(tt.in)
			if err != nil {
				t.Fatalf("Parse(%q): %v", tt.in, err)
			}
			if got := Format(v); got != tt.want {
				t.Errorf("Format(Parse(%q)) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}

	for _, bad := range []string{"", "abc", "1.", "1.2.3", "-1", "0.0000000000000000001"} {
		if _, err := Parse(bad); !errors.Is(err, ErrParse) {
			t.Errorf("Parse(%q) err = %v, want ErrParse", bad, err)
		}
	}

	if v, _ := Parse("2"); !v.Eq(Units(2)) {
		t.Errorf("Parse(2) = %s, want %s", v, Units(2))
	}
}

func TestParseUnits(t *testing.T) {
	v, err := ParseUnits("1000000000000000000")
	if err != nil {
		t.Fatal(err)
	}
	if !v.Eq(One()) {
		t.Errorf("got %s, want 1e18", v)
	}
	if _, err := ParseUnits("1e18"); err == nil {
		t.Error("scientific notation should be rejected")
	}
}

func TestMulDiv(t *testing.T) {
	max := new(uint256.Int).SetAllOne()

	// 512-bit intermediate: max*max/max == max.
	got, err := MulDiv(max, max, max)
	if err != nil {
		t.Fatalf("MulDiv: %v", err)
	}
	if !got.Eq(max) {
		t.Error("MulDiv lost precision on wide intermediate")
	}

	if _, err := MulDiv(One(), One(), new(uint256.Int)); !errors.Is(err, ErrDivByZero) {
		t.Errorf("err = %v, want ErrDivByZero", err)
	}
	if _, err := MulDiv(max, max, uint256.NewInt(1)); !errors.Is(err, ErrOverflow) {
		t.Errorf("err = %v, want ErrOverflow", err)
	}

	down, _ := MulDiv(uint256.NewInt(10), uint256.NewInt(1), uint256.NewInt(3))
	up, _ := MulDivUp(uint256.NewInt(10), uint256.NewInt(1), uint256.NewInt(3))
	if down.Uint64() != 3 || up.Uint64() != 4 {
		t.Errorf("floor/ceil of 10/3 = %d/%d, want 3/4", down.Uint64(), up.Uint64())
	}
	exact, _ := MulDivUp(uint256.NewInt(9), uint256.NewInt(1), uint256.NewInt(3))
	if exact.Uint64() != 3 {
		t.Errorf("ceil of exact 9/3 = %d, want 3", exact.Uint64())
	}
}

func TestAddMulSub(t *testing.T) {
	max := new(uint256.Int).SetAllOne()
	if _, err := Add(max, uint256.NewInt(1)); !errors.Is(err, ErrOverflow) {
		t.Error("Add should overflow")
	}
	if _, err := Mul(max, uint256.NewInt(2)); !errors.Is(err, ErrOverflow) {
		t.Error("Mul should overflow")
	}
	if !SubFloor(uint256.NewInt(1), uint256.NewInt(5)).IsZero() {
		t.Error("SubFloor should clamp at zero")
	}
	if SubFloor(uint256.NewInt(5), uint256.NewInt(1)).Uint64() != 4 {
		t.Error("SubFloor(5,1) != 4")
	}
	if !IsZero(nil) || IsZero(One()) {
		t.Error("IsZero mismatch")
	}
	c := Clone(nil)
	if !c.IsZero() {
		t.Error("Clone(nil) should be zero")
	}
}

func TestExpNeg_MatchesFloat(t *testing.T) {
	tests := []struct {
		num, den uint64
	}{
		{0, 1},
		{1, 1},
		{1, 2},
		{3, 7},
		{60, 99},
		{84 * 99, 99},
		{84*99 - 1, 99},
		{5, 1},
		{999, 1000},
		{1000, 1000},
		{30, 1},
	}
	for _, tt := range tests {
		got, err := ExpNeg(tt.num, tt.den)
		if err != nil {
			t.Fatalf("ExpNeg(%d,%d): %v", tt.num, tt.den, err)
		}
		want := math.Exp(-float64(tt.num) / float64(tt.den))
		gotF := Float(got, ExpDecimals)
		// Values below one unit at 36 digits may round to zero.
		tol := math.Max(want*1e-12, 2e-36)
		if math.Abs(gotF-want) > tol {
			t.Errorf("ExpNeg(%d/%d) = %g, want %g", tt.num, tt.den, gotF, want)
		}
	}
}

func TestExpNeg_BelowPrecision(t *testing.T) {
	for _, num := range []uint64{85 * 99, 14820, 1 << 40} {
		got, err := ExpNeg(num, 99)
		if err != nil {
			t.Fatalf("ExpNeg(%d/99): %v", num, err)
		}
		if !got.IsZero() {
			t.Errorf("ExpNeg(%d/99) = %s, want 0", num, got)
		}
	}
}

func TestExpNeg_Monotone(t *testing.T) {
	prev, err := ExpNeg(0, 37)
	if err != nil {
		t.Fatal(err)
	}
	if !prev.Eq(Scale36()) {
		t.Fatalf("e^0 = %s, want 10^36", prev)
	}
	for num := uint64(1); num < 37*50; num++ {
		cur, err := ExpNeg(num, 37)
		if err != nil {
			t.Fatal(err)
		}
		if cur.Gt(prev) {
			t.Fatalf("ExpNeg not monotone at %d/37: %s > %s", num, cur, prev)
		}
		prev = cur
	}
}

func TestExpNeg_Edges(t *testing.T) {
	if _, err := ExpNeg(1, 0); !errors.Is(err, ErrDivByZero) {
		t.Errorf("err = %v, want ErrDivByZero", err)
	}
	v, err := ExpNeg(1000, 1)
	if err != nil {
		t.Fatal(err)
	}
	if !v.IsZero() {
		t.Errorf("e^-1000 = %s, want 0", v)
	}

	// A denominator wider than 64 bits keeps the exponent near zero.
	huge := new(uint256.Int).Lsh(uint256.NewInt(1), 200)
	v, err = ExpNegRatio(uint256.NewInt(1_000_000), huge)
	if err != nil {
		t.Fatal(err)
	}
	if gap := new(uint256.Int).Sub(Scale36(), v); gap.Gt(uint256.NewInt(2)) {
		t.Errorf("e^-(tiny) = %s, want within 2 ulp of 10^36", v)
	}
}
