package ledger

import (
	"fmt"
)

// InvariantValidator checks ledger conservation invariants after mutation.
type InvariantValidator struct {
	reserve *ReserveLedger
	synth   *SynthLedger
}

func NewInvariantValidator(reserve *ReserveLedger, synth *SynthLedger) *InvariantValidator {
	return &InvariantValidator{reserve: reserve, synth: synth}
}

// ValidateReserveConservation verifies undistributed + sum(balances) equals
// the fixed total supply.
func (v *InvariantValidator) ValidateReserveConservation() error {
	sum := v.reserve.undistributed
	var err error
	for _, b := range v.reserve.balances {
		if b.Sign() < 0 {
			return fmt.Errorf("reserve balance negative: %s", b)
		}
		sum, err = sum.Add(b)
		if err != nil {
			return err
		}
	}
	if !sum.Equal(v.reserve.totalSupply) {
		return fmt.Errorf("reserve conservation violated: sum=%s supply=%s", sum, v.reserve.totalSupply)
	}
	return nil
}

// ValidateSynthConservation verifies sum(balances) + feePool equals total
// supply.
func (v *InvariantValidator) ValidateSynthConservation() error {
	sum := v.synth.feePool
	var err error
	for _, b := range v.synth.balances {
		if b.Sign() < 0 {
			return fmt.Errorf("synth balance negative: %s", b)
		}
		sum, err = sum.Add(b)
		if err != nil {
			return err
		}
	}
	if !sum.Equal(v.synth.totalSupply) {
		return fmt.Errorf("synth conservation violated: sum=%s supply=%s", sum, v.synth.totalSupply)
	}
	return nil
}

// ValidateNonNegativePools checks the fee pool never goes negative.
func (v *InvariantValidator) ValidateNonNegativePools() error {
	if v.synth.feePool.Sign() < 0 {
		return fmt.Errorf("fee pool negative: %s", v.synth.feePool)
	}
	if v.reserve.undistributed.Sign() < 0 {
		return fmt.Errorf("undistributed pool negative: %s", v.reserve.undistributed)
	}
	return nil
}
