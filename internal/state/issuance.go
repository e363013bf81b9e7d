package state

import (
	"fmt"

	"github.com/google/uuid"

	"SynthLedger/internal/fixed"
)

// IssuanceRecord is the time-weighted balance integral for one account (or
// for the aggregate, using total supply in place of a balance). The zero
// value is the valid "no activity yet" state; records are created lazily on
// first balance-affecting interaction and never destroyed.
type IssuanceRecord struct {
	// CurrentBalanceSum accumulates balance * elapsed-seconds within the
	// currently open fee period (token-seconds at 18-decimal scale).
	CurrentBalanceSum fixed.Fixed
	// LastAverageBalance is the finalized average over the last closed
	// period the account was active across.
	LastAverageBalance fixed.Fixed
	// LastModified is the clock value of the last rollover (unix seconds).
	LastModified int64
	// HasWithdrawnFees marks a completed withdrawal this period. Reset
	// lazily on the record's first rollover inside a new period.
	HasWithdrawnFees bool
}

// IssuanceTracker holds the per-account records and the single aggregate
// record. Entitlement is derived lazily per account on withdrawal; no
// operation ever iterates all holders.
type IssuanceTracker struct {
	records   map[uuid.UUID]*IssuanceRecord
	aggregate IssuanceRecord
}

func NewIssuanceTracker() *IssuanceTracker {
	return &IssuanceTracker{records: make(map[uuid.UUID]*IssuanceRecord)}
}

// Record returns the account's record, creating a zero-valued one on first
// touch.
func (it *IssuanceTracker) Record(account uuid.UUID) *IssuanceRecord {
	rec, ok := it.records[account]
	if !ok {
		rec = &IssuanceRecord{}
		it.records[account] = rec
	}
	return rec
}

// Peek returns the account's record without creating one. Validation paths
// use it so a rejected command leaves no trace in the record map.
func (it *IssuanceTracker) Peek(account uuid.UUID) (*IssuanceRecord, bool) {
	rec, ok := it.records[account]
	return rec, ok
}

// Aggregate returns the global record (total supply integral).
func (it *IssuanceTracker) Aggregate() *IssuanceRecord {
	return &it.aggregate
}

// RolloverAccount rolls the account's integral forward to now using its
// pre-mutation balance. Must be called before the balance write is applied.
func (it *IssuanceTracker) RolloverAccount(account uuid.UUID, preBalance fixed.Fixed, now int64, fp *FeePeriodController) error {
	return rollover(it.Record(account), preBalance, now, fp)
}

// RolloverAggregate rolls the global integral forward using the pre-mutation
// total supply.
func (it *IssuanceTracker) RolloverAggregate(preSupply fixed.Fixed, now int64, fp *FeePeriodController) error {
	return rollover(&it.aggregate, preSupply, now, fp)
}

// rollover advances one record's integral to now. Three cases:
//  1. inactive since before the previous period: the balance is deemed to
//     have been flat, so the last average is the balance itself;
//  2. inactive this period but active last period: finalize the last
//     period's average from the accumulated sum plus the flat tail;
//  3. already active this period: just accumulate elapsed token-seconds.
//
// Crossing into a new period also resets the withdrawal flag.
func rollover(rec *IssuanceRecord, preBalance fixed.Fixed, now int64, fp *FeePeriodController) error {
	periodStart := fp.StartTime()
	prevStart := fp.PreviousStartTime()

	if rec.LastModified < periodStart {
		if rec.LastModified < prevStart {
			rec.LastAverageBalance = preBalance
		} else {
			tail, err := preBalance.MulInt(periodStart - rec.LastModified)
			if err != nil {
				return fmt.Errorf("issuance rollover: %w", err)
			}
			sum, err := rec.CurrentBalanceSum.Add(tail)
			if err != nil {
				return fmt.Errorf("issuance rollover: %w", err)
			}
			avg, err := sum.DivInt(periodStart - prevStart)
			if err != nil {
				return fmt.Errorf("issuance rollover: %w", err)
			}
			rec.LastAverageBalance = avg
		}
		fresh, err := preBalance.MulInt(now - periodStart)
		if err != nil {
			return fmt.Errorf("issuance rollover: %w", err)
		}
		rec.CurrentBalanceSum = fresh
		rec.HasWithdrawnFees = false
	} else {
		delta, err := preBalance.MulInt(now - rec.LastModified)
		if err != nil {
			return fmt.Errorf("issuance rollover: %w", err)
		}
		sum, err := rec.CurrentBalanceSum.Add(delta)
		if err != nil {
			return fmt.Errorf("issuance rollover: %w", err)
		}
		rec.CurrentBalanceSum = sum
	}
	rec.LastModified = now
	return nil
}

// FeesOwed computes the account's pro-rata share of the last closed period's
// fee pot from the finalized averages. Zero when the aggregate average is
// zero. Records must already be rolled to the current period.
func (it *IssuanceTracker) FeesOwed(account uuid.UUID, fp *FeePeriodController) (fixed.Fixed, error) {
	agg := it.aggregate.LastAverageBalance
	if agg.IsZero() {
		return fixed.Zero(), nil
	}
	rec := it.Record(account)
	weighted, err := rec.LastAverageBalance.Mul(fp.LastFeesCollected())
	if err != nil {
		return fixed.Fixed{}, err
	}
	return weighted.Div(agg)
}

// Snapshot returns a deep copy of all records plus the aggregate.
func (it *IssuanceTracker) Snapshot() (map[uuid.UUID]IssuanceRecord, IssuanceRecord) {
	out := make(map[uuid.UUID]IssuanceRecord, len(it.records))
	for k, v := range it.records {
		out[k] = *v
	}
	return out, it.aggregate
}

// Restore overwrites tracker state from a snapshot.
func (it *IssuanceTracker) Restore(records map[uuid.UUID]IssuanceRecord, aggregate IssuanceRecord) {
	it.records = make(map[uuid.UUID]*IssuanceRecord, len(records))
	for k, v := range records {
		rec := v
		it.records[k] = &rec
	}
	it.aggregate = aggregate
}
