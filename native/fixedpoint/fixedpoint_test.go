package fixedpoint

import (
	"errors"
	"math/big"
	"testing"
)

func wadUnits(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), Wad)
}

func TestMulWad(t *testing.T) {
	// 2.5 * 4 = 10 in wad space.
	x := new(big.Int).Div(new(big.Int).Mul(big.NewInt(5), Wad), big.NewInt(2))
	got, err := MulWad(x, wadUnits(4))
	if err != nil {
		t.Fatalf("mulwad: %v", err)
	}
	if got.Cmp(wadUnits(10)) != 0 {
		t.Fatalf("unexpected product: %s", got)
	}
}

func TestMulWadOverflow(t *testing.T) {
	huge := new(big.Int).Lsh(big.NewInt(1), 255)
	if _, err := MulWad(huge, huge); !errors.Is(err, ErrOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
}

func TestDivWad(t *testing.T) {
	got, err := DivWad(wadUnits(4000), wadUnits(500))
	if err != nil {
		t.Fatalf("divwad: %v", err)
	}
	if got.Cmp(wadUnits(8)) != 0 {
		t.Fatalf("unexpected quotient: %s", got)
	}
	if _, err := DivWad(wadUnits(1), big.NewInt(0)); !errors.Is(err, ErrDivideByZero) {
		t.Fatalf("expected divide by zero, got %v", err)
	}
}

func TestMulDivQuotientComposes(t *testing.T) {
	// The quotient must come back as a plain big integer that later
	// big-math consumes directly.
	got, err := MulDiv(wadUnits(7), big.NewInt(3), big.NewInt(2))
	if err != nil {
		t.Fatalf("muldiv: %v", err)
	}
	want := new(big.Int).Div(new(big.Int).Mul(wadUnits(7), big.NewInt(3)), big.NewInt(2))
	if got.Cmp(want) != 0 {
		t.Fatalf("unexpected quotient: %s", got)
	}
	sum := new(big.Int).Add(got, big.NewInt(1))
	if sum.Cmp(new(big.Int).Add(want, big.NewInt(1))) != 0 {
		t.Fatalf("quotient did not compose: %s", sum)
	}
}

func TestSubUnderflow(t *testing.T) {
	if _, err := Sub(big.NewInt(3), big.NewInt(4)); !errors.Is(err, ErrUnderflow) {
		t.Fatalf("expected underflow, got %v", err)
	}
	got, err := Sub(big.NewInt(4), big.NewInt(4))
	if err != nil {
		t.Fatalf("sub: %v", err)
	}
	if got.Sign() != 0 {
		t.Fatalf("expected zero, got %s", got)
	}
}

func TestAddOverflow(t *testing.T) {
	if _, err := Add(MaxValue, big.NewInt(1)); !errors.Is(err, ErrOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
}

func TestNegativeRejected(t *testing.T) {
	if _, err := Add(big.NewInt(-1), big.NewInt(1)); !errors.Is(err, ErrNegative) {
		t.Fatalf("expected negative rejection, got %v", err)
	}
}

func TestScaleFactorPrecisionBound(t *testing.T) {
	if _, err := ScaleFactor(19); !errors.Is(err, ErrPrecision) {
		t.Fatalf("expected precision error, got %v", err)
	}
	factor, err := ScaleFactor(18)
	if err != nil {
		t.Fatalf("scale factor: %v", err)
	}
	if factor.Cmp(big.NewInt(1)) != 0 {
		t.Fatalf("expected identity factor, got %s", factor)
	}
}

func TestCanonicalRoundTrip(t *testing.T) {
	// For native precision d < 18 the round trip never gains value and is
	// exact when the canonical amount is a multiple of 10^(18-d).
	cases := []struct {
		decimals uint8
		amount   int64
	}{
		{6, 1},
		{6, 123456},
		{8, 99999999},
		{0, 42},
		{18, 1_000_000},
	}
	for _, tc := range cases {
		amount := big.NewInt(tc.amount)
		up, err := ToCanonical(amount, tc.decimals)
		if err != nil {
			t.Fatalf("to canonical (%d): %v", tc.decimals, err)
		}
		down, err := FromCanonical(up, tc.decimals)
		if err != nil {
			t.Fatalf("from canonical (%d): %v", tc.decimals, err)
		}
		if down.Cmp(amount) != 0 {
			t.Fatalf("round trip mismatch at %d decimals: %s != %s", tc.decimals, down, amount)
		}
	}
}

func TestFromCanonicalTruncates(t *testing.T) {
	// 1.9 units of a 6-decimal asset in canonical form truncates to 1.9e6
	// native units plus nothing: the residue stays with the ledger.
	canonical := new(big.Int).Add(wadUnits(1), big.NewInt(999_999_999_999))
	native, err := FromCanonical(canonical, 6)
	if err != nil {
		t.Fatalf("from canonical: %v", err)
	}
	if native.Cmp(big.NewInt(1_000_000)) != 0 {
		t.Fatalf("expected truncation to 1e6, got %s", native)
	}
	back, err := ToCanonical(native, 6)
	if err != nil {
		t.Fatalf("to canonical: %v", err)
	}
	if back.Cmp(canonical) > 0 {
		t.Fatalf("round trip gained value: %s > %s", back, canonical)
	}
}
