package state

import (
	"fmt"

	"SynthLedger/internal/fixed"
)

// FeePoolReader supplies the current fee pool balance snapshotted at each
// period rollover.
type FeePoolReader interface {
	FeePool() fixed.Fixed
}

// FeePeriodController manages the discrete fee accounting window. Rollover is
// lazy: any mutating core operation calls CheckRollover first, and at most one
// boundary transition happens per call no matter how much real time elapsed.
type FeePeriodController struct {
	startTime         int64
	previousStartTime int64
	targetDuration    int64
	lastFeesCollected fixed.Fixed
	pool              FeePoolReader
}

// NewFeePeriodController opens the first period at genesisTime. The previous
// start is back-dated by one target duration so the first period has a
// well-defined, non-zero prior window.
func NewFeePeriodController(pool FeePoolReader, genesisTime, targetDuration int64) (*FeePeriodController, error) {
	if err := ValidateFeePeriodDuration(targetDuration); err != nil {
		return nil, err
	}
	return &FeePeriodController{
		startTime:         genesisTime,
		previousStartTime: genesisTime - targetDuration,
		targetDuration:    targetDuration,
		pool:              pool,
	}, nil
}

// WouldRoll reports whether CheckRollover(now) would transition, without
// mutating. Mutators consult it to run their validations against the period
// the operation would land in before committing the roll.
func (fp *FeePeriodController) WouldRoll(now int64) bool {
	return now >= fp.startTime+fp.targetDuration
}

// CheckRollover performs the boundary transition if the current period has
// run its target duration. Idempotent for a fixed clock value; rolls at most
// once per call even when several boundaries were missed (the excess elapsed
// time is absorbed into the new period).
func (fp *FeePeriodController) CheckRollover(now int64) bool {
	if !fp.WouldRoll(now) {
		return false
	}
	fp.previousStartTime = fp.startTime
	fp.startTime = now
	fp.lastFeesCollected = fp.pool.FeePool()
	return true
}

func (fp *FeePeriodController) StartTime() int64 {
	return fp.startTime
}

func (fp *FeePeriodController) PreviousStartTime() int64 {
	return fp.previousStartTime
}

func (fp *FeePeriodController) TargetDuration() int64 {
	return fp.targetDuration
}

// LastFeesCollected is the pot snapshotted at the most recent rollover: the
// payable total for the period just closed.
func (fp *FeePeriodController) LastFeesCollected() fixed.Fixed {
	return fp.lastFeesCollected
}

// SetTargetDuration updates the rollover target, bounds-checked.
func (fp *FeePeriodController) SetTargetDuration(seconds int64) error {
	if err := ValidateFeePeriodDuration(seconds); err != nil {
		return err
	}
	fp.targetDuration = seconds
	return nil
}

// Restore overwrites period state from a snapshot.
func (fp *FeePeriodController) Restore(startTime, previousStartTime, targetDuration int64, lastFeesCollected fixed.Fixed) error {
	if previousStartTime >= startTime {
		return fmt.Errorf("restore fee period: previous start %d not before start %d: %w",
			previousStartTime, startTime, ErrInvalidState)
	}
	fp.startTime = startTime
	fp.previousStartTime = previousStartTime
	fp.targetDuration = targetDuration
	fp.lastFeesCollected = lastFeesCollected
	return nil
}
