package state

import (
	"fmt"

	"SynthLedger/internal/fixed"
)

// Bounds for the owner-settable protocol parameters. Updates outside these
// ranges are rejected rather than clamped.
const (
	MinFeePeriodDuration = int64(24 * 60 * 60)      // 1 day
	MaxFeePeriodDuration = int64(26 * 7 * 24 * 3600) // 26 weeks
	MinPriceStalePeriod  = int64(60)
	OracleFutureLimit    = int64(10 * 60) // oracle timestamps at most 10 min ahead
)

var (
	// MaxIssuanceRatio caps issuance at 1:1 collateral value.
	MaxIssuanceRatio = fixed.One()

	// MaxTransferFeeRate caps the synth transfer fee at 10%.
	MaxTransferFeeRate = fixed.MustParse("0.1")
)

// Params holds the owner-settable protocol parameters shared by the
// collateralization and fee engines.
type Params struct {
	issuanceRatio    fixed.Fixed
	priceStalePeriod int64 // seconds
}

// DefaultParams matches the deployment defaults: 20% issuance ratio,
// one hour price staleness window.
func DefaultParams() *Params {
	return &Params{
		issuanceRatio:    fixed.MustParse("0.2"),
		priceStalePeriod: 3600,
	}
}

func (p *Params) IssuanceRatio() fixed.Fixed {
	return p.issuanceRatio
}

func (p *Params) PriceStalePeriod() int64 {
	return p.priceStalePeriod
}

// SetIssuanceRatio validates the new ratio against the hard cap.
func (p *Params) SetIssuanceRatio(ratio fixed.Fixed) error {
	if ratio.Sign() < 0 || ratio.Cmp(MaxIssuanceRatio) > 0 {
		return fmt.Errorf("issuance ratio %s outside [0, %s]: %w", ratio, MaxIssuanceRatio, ErrExceedsCap)
	}
	p.issuanceRatio = ratio
	return nil
}

func (p *Params) SetPriceStalePeriod(seconds int64) error {
	if seconds < MinPriceStalePeriod {
		return fmt.Errorf("price stale period %ds below minimum %ds: %w", seconds, MinPriceStalePeriod, ErrExceedsCap)
	}
	p.priceStalePeriod = seconds
	return nil
}

// ValidateTransferFeeRate checks a proposed synth transfer fee rate.
func ValidateTransferFeeRate(rate fixed.Fixed) error {
	if rate.Sign() < 0 || rate.Cmp(MaxTransferFeeRate) > 0 {
		return fmt.Errorf("transfer fee rate %s outside [0, %s]: %w", rate, MaxTransferFeeRate, ErrExceedsCap)
	}
	return nil
}

// ValidateFeePeriodDuration checks a proposed fee period target duration.
func ValidateFeePeriodDuration(seconds int64) error {
	if seconds < MinFeePeriodDuration || seconds > MaxFeePeriodDuration {
		return fmt.Errorf("fee period duration %ds outside [%d, %d]: %w",
			seconds, MinFeePeriodDuration, MaxFeePeriodDuration, ErrExceedsCap)
	}
	return nil
}

// Restore overwrites parameters from a snapshot.
func (p *Params) Restore(issuanceRatio fixed.Fixed, priceStalePeriod int64) {
	p.issuanceRatio = issuanceRatio
	p.priceStalePeriod = priceStalePeriod
}
