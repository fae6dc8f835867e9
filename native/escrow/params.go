package escrow

import (
	"fmt"

	"github.com/holiman/uint256"
)

// PrecisionScale is the fixed-point denominator for every percentage: 10000
// units are 100.00%.
const PrecisionScale = 10_000

// Half of PrecisionScale. A settlement strictly above it counts as a buyer win.
const buyerWinThreshold = PrecisionScale / 2

// Params bounds the inputs accepted by the engine.
type Params struct {
	MinEscrowAmount     *uint256.Int
	MaxDuration         uint64
	MaxFeeBps           uint32
	MaxSystemFeeBps     uint32
	DefaultSystemFeeBps uint32
	MinReasonLength     int
	MaxReasonLength     int
	MaxNameLength       int
	MaxMetadataLength   int
	MaxReputation       uint64
	ReputationStep      uint64
}

// DefaultParams returns the limits used when no configuration overrides them.
// Durations are in logical clock ticks (blocks).
func DefaultParams() Params {
	return Params{
		MinEscrowAmount:     uint256.NewInt(1_000),
		MaxDuration:         52_560,
		MaxFeeBps:           1_000,
		MaxSystemFeeBps:     500,
		DefaultSystemFeeBps: 250,
		MinReasonLength:     10,
		MaxReasonLength:     500,
		MaxNameLength:       50,
		MaxMetadataLength:   256,
		MaxReputation:       1_000,
		ReputationStep:      10,
	}
}

// Validate reports inconsistent limits.
func (p Params) Validate() error {
	if p.MinEscrowAmount == nil || p.MinEscrowAmount.IsZero() {
		return fmt.Errorf("params: min escrow amount must be positive")
	}
	if p.MaxDuration == 0 {
		return fmt.Errorf("params: max duration must be positive")
	}
	if p.MaxFeeBps > PrecisionScale {
		return fmt.Errorf("params: max fee %d exceeds %d", p.MaxFeeBps, PrecisionScale)
	}
	if p.MaxSystemFeeBps >= p.MaxFeeBps {
		return fmt.Errorf("params: system fee ceiling %d must be below max fee %d", p.MaxSystemFeeBps, p.MaxFeeBps)
	}
	if p.DefaultSystemFeeBps > p.MaxSystemFeeBps {
		return fmt.Errorf("params: default system fee %d above ceiling %d", p.DefaultSystemFeeBps, p.MaxSystemFeeBps)
	}
	// Both fees at their ceilings must still leave a non-negative remainder.
	if uint64(p.MaxSystemFeeBps)+uint64(p.MaxFeeBps) > PrecisionScale {
		return fmt.Errorf("params: combined fee ceilings exceed %d", PrecisionScale)
	}
	if p.MinReasonLength < 0 || p.MaxReasonLength < p.MinReasonLength || p.MaxReasonLength == 0 {
		return fmt.Errorf("params: reason length bounds [%d, %d] invalid", p.MinReasonLength, p.MaxReasonLength)
	}
	if p.MaxNameLength <= 0 {
		return fmt.Errorf("params: max name length must be positive")
	}
	if p.MaxMetadataLength < 0 {
		return fmt.Errorf("params: max metadata length must not be negative")
	}
	if p.MaxReputation == 0 {
		return fmt.Errorf("params: max reputation must be positive")
	}
	return nil
}

func (p Params) initialReputation() uint64 {
	return p.MaxReputation / 2
}
