package synth

import (
	"errors"
	"fmt"
	"math/big"
)

var (
	ErrNilState                = errors.New("synth engine: state not configured")
	ErrInvalidAmount           = errors.New("synth engine: amount must be positive")
	ErrZeroAddress             = errors.New("synth engine: zero address")
	ErrUnknownAsset            = errors.New("synth engine: asset not registered")
	ErrAssetInactive           = errors.New("synth engine: asset deactivated")
	ErrInsufficientBalance     = errors.New("synth engine: insufficient collateral balance")
	ErrInsufficientDebt        = errors.New("synth engine: amount exceeds minted debt")
	ErrInsufficientCollateral  = errors.New("synth engine: seizure exceeds target collateral")
	ErrHealthFactorBroken      = errors.New("synth engine: health factor below minimum")
	ErrHealthFactorOk          = errors.New("synth engine: target position is healthy")
	ErrHealthFactorNotImproved = errors.New("synth engine: liquidation did not improve target health")
	ErrTransferFailed          = errors.New("synth engine: token transfer failed")
)

// HealthFactorError carries the computed ratio for diagnostics. It unwraps to
// ErrHealthFactorBroken so callers can match the kind.
type HealthFactorError struct {
	Ratio *big.Int
}

func (e *HealthFactorError) Error() string {
	return fmt.Sprintf("%v (ratio %s)", ErrHealthFactorBroken, e.Ratio)
}

func (e *HealthFactorError) Unwrap() error { return ErrHealthFactorBroken }

func brokenHealth(ratio *big.Int) error {
	return &HealthFactorError{Ratio: new(big.Int).Set(ratio)}
}
