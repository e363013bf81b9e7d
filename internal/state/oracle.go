package state

import (
	"fmt"

	"SynthLedger/internal/fixed"
)

// PriceOracle holds the last pushed price for the reserve asset, quoted in
// the synth unit of account. Prices are pushed by a privileged caller with a
// monotonically increasing round id; reads reject stale data rather than
// returning the last value silently.
type PriceOracle struct {
	price       fixed.Fixed
	roundID     int64
	lastUpdated int64 // oracle-supplied timestamp, unix seconds
	params      *Params
}

func NewPriceOracle(params *Params) *PriceOracle {
	return &PriceOracle{params: params}
}

// Update records a new price round. sentAt is the oracle's own timestamp for
// the observation; now is the ledger clock at ingestion. Timestamps more than
// OracleFutureLimit ahead of the ledger clock are rejected.
func (o *PriceOracle) Update(price fixed.Fixed, roundID, sentAt, now int64) error {
	if price.Sign() <= 0 {
		return fmt.Errorf("price update round %d: non-positive price %s: %w", roundID, price, ErrInvalidState)
	}
	if roundID <= o.roundID {
		return fmt.Errorf("price update round %d: not newer than round %d: %w", roundID, o.roundID, ErrInvalidState)
	}
	if sentAt > now+OracleFutureLimit {
		return fmt.Errorf("price update round %d: timestamp %d too far ahead of clock %d: %w",
			roundID, sentAt, now, ErrInvalidState)
	}
	o.price = price
	o.roundID = roundID
	o.lastUpdated = sentAt
	return nil
}

// Price returns the current price, or ErrStalePrice if the last update is
// older than the configured staleness window.
func (o *PriceOracle) Price(now int64) (fixed.Fixed, error) {
	if o.IsStale(now) {
		return fixed.Fixed{}, fmt.Errorf("last price round %d at %d, clock %d: %w",
			o.roundID, o.lastUpdated, now, ErrStalePrice)
	}
	return o.price, nil
}

// IsStale reports whether the price is too old to rely on. A never-updated
// oracle is always stale.
func (o *PriceOracle) IsStale(now int64) bool {
	if o.roundID == 0 {
		return true
	}
	return o.lastUpdated+o.params.PriceStalePeriod() < now
}

// RoundID returns the id of the latest price round (0 before any update).
func (o *PriceOracle) RoundID() int64 {
	return o.roundID
}

// LastUpdated returns the oracle timestamp of the latest round.
func (o *PriceOracle) LastUpdated() int64 {
	return o.lastUpdated
}

// Restore overwrites oracle state from a snapshot.
func (o *PriceOracle) Restore(price fixed.Fixed, roundID, lastUpdated int64) {
	o.price = price
	o.roundID = roundID
	o.lastUpdated = lastUpdated
}
