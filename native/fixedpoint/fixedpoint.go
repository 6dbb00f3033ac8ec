package fixedpoint

import (
	"errors"
	"math/big"

	"github.com/holiman/uint256"
)

// WadDecimals is the canonical precision shared by every USD-denominated
// value and ratio in the engine.
const WadDecimals = 18

var (
	ErrOverflow     = errors.New("fixedpoint: arithmetic overflow")
	ErrUnderflow    = errors.New("fixedpoint: arithmetic underflow")
	ErrDivideByZero = errors.New("fixedpoint: divide by zero")
	ErrNegative     = errors.New("fixedpoint: negative amount")
	ErrPrecision    = errors.New("fixedpoint: precision exceeds canonical scale")
)

var (
	// Wad is the canonical 1e18 scale factor.
	Wad = mustBigInt("1000000000000000000")
	// MaxValue is the largest representable ledger quantity. All checked
	// operations fail with ErrOverflow beyond it.
	MaxValue = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
)

func mustBigInt(value string) *big.Int {
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		panic("invalid big integer constant")
	}
	return v
}

// toChecked converts a ledger quantity into the 256-bit working
// representation, rejecting negatives and out-of-range values.
func toChecked(x *big.Int) (*uint256.Int, error) {
	if x == nil {
		return uint256.NewInt(0), nil
	}
	if x.Sign() < 0 {
		return nil, ErrNegative
	}
	v, overflow := uint256.FromBig(x)
	if overflow {
		return nil, ErrOverflow
	}
	return v, nil
}

// Add returns x+y, failing with ErrOverflow when the sum leaves the
// representable range.
func Add(x, y *big.Int) (*big.Int, error) {
	a, err := toChecked(x)
	if err != nil {
		return nil, err
	}
	b, err := toChecked(y)
	if err != nil {
		return nil, err
	}
	sum, carry := new(uint256.Int).AddOverflow(a, b)
	if carry {
		return nil, ErrOverflow
	}
	return sum.ToBig(), nil
}

// Sub returns x-y, failing with ErrUnderflow when the result would be
// negative. There is no unchecked variant; this path governs all
// correctness-relevant subtraction.
func Sub(x, y *big.Int) (*big.Int, error) {
	a, err := toChecked(x)
	if err != nil {
		return nil, err
	}
	b, err := toChecked(y)
	if err != nil {
		return nil, err
	}
	diff, borrow := new(uint256.Int).SubOverflow(a, b)
	if borrow {
		return nil, ErrUnderflow
	}
	return diff.ToBig(), nil
}

// MulWad returns x*y/Wad, failing with ErrOverflow when the pre-division
// product exceeds the representable range.
func MulWad(x, y *big.Int) (*big.Int, error) {
	return mulDiv(x, y, Wad)
}

// DivWad returns x*Wad/y with truncating division.
func DivWad(x, y *big.Int) (*big.Int, error) {
	return mulDiv(x, Wad, y)
}

// MulDiv returns x*num/den with the product checked before division.
func MulDiv(x, num, den *big.Int) (*big.Int, error) {
	return mulDiv(x, num, den)
}

func mulDiv(x, num, den *big.Int) (*big.Int, error) {
	a, err := toChecked(x)
	if err != nil {
		return nil, err
	}
	b, err := toChecked(num)
	if err != nil {
		return nil, err
	}
	d, err := toChecked(den)
	if err != nil {
		return nil, err
	}
	if d.IsZero() {
		return nil, ErrDivideByZero
	}
	product, overflow := new(uint256.Int).MulOverflow(a, b)
	if overflow {
		return nil, ErrOverflow
	}
	return product.Div(product, d).ToBig(), nil
}

// ScaleFactor returns 10^(WadDecimals-decimals), the multiplier between an
// asset's native precision and the canonical scale.
func ScaleFactor(decimals uint8) (*big.Int, error) {
	if decimals > WadDecimals {
		return nil, ErrPrecision
	}
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(WadDecimals-decimals)), nil), nil
}

// ToCanonical scales a native-precision amount up to the canonical scale.
// The conversion is multiplicative only and therefore exact.
func ToCanonical(amount *big.Int, decimals uint8) (*big.Int, error) {
	factor, err := ScaleFactor(decimals)
	if err != nil {
		return nil, err
	}
	return MulDiv(amount, factor, big.NewInt(1))
}

// FromCanonical scales a canonical amount back down to native precision
// using truncating division. The inverse is lossy by design: it never rounds
// up, biasing residue toward the ledger rather than the caller.
func FromCanonical(amount *big.Int, decimals uint8) (*big.Int, error) {
	factor, err := ScaleFactor(decimals)
	if err != nil {
		return nil, err
	}
	return MulDiv(amount, big.NewInt(1), factor)
}
