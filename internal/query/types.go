package query

import (
	"github.com/google/uuid"

	"SynthLedger/internal/fixed"
)

// AccountResponse is a user's balance state plus values derived at query
// time from the projected oracle price and issuance ratio. All responses
// include as_of_sequence for freshness semantics.
type AccountResponse struct {
	Account uuid.UUID `json:"account"`

	ReserveBalance fixed.Fixed `json:"reserve_balance"`
	SynthBalance   fixed.Fixed `json:"synth_balance"`
	IssuedDebt     fixed.Fixed `json:"issued_debt"`
	Frozen         bool        `json:"frozen"`

	// Derived from the projected price and issuance ratio, not stored.
	MaxIssuable         fixed.Fixed `json:"max_issuable"`
	RemainingIssuable   fixed.Fixed `json:"remaining_issuable"`
	LockedReserve       fixed.Fixed `json:"locked_reserve"`
	TransferableReserve fixed.Fixed `json:"transferable_reserve"`

	AsOfSequence int64 `json:"as_of_sequence"`
}

// PositionResponse is a leveraged position plus query-time marks. The
// liquidation price here excludes accrued funding; the core's answer is
// authoritative.
type PositionResponse struct {
	Account uuid.UUID `json:"account"`

	Size       fixed.Fixed `json:"size"`
	Margin     fixed.Fixed `json:"margin"`
	EntryPrice fixed.Fixed `json:"entry_price"`
	Status     string      `json:"status"`

	Notional         fixed.Fixed `json:"notional"`
	ProfitLoss       fixed.Fixed `json:"profit_loss"`
	Leverage         fixed.Fixed `json:"leverage"`
	LiquidationPrice fixed.Fixed `json:"liquidation_price"`

	AsOfSequence int64 `json:"as_of_sequence"`
}

// ActivityEntry is one applied command that touched an account.
type ActivityEntry struct {
	Sequence  int64     `json:"sequence"`
	Account   uuid.UUID `json:"account"`
	EventType string    `json:"event_type"`
	Timestamp int64     `json:"timestamp"`
}

// FeePeriodResponse is one closed fee period.
type FeePeriodResponse struct {
	StartTime     int64       `json:"start_time"`
	EndTime       int64       `json:"end_time"`
	FeesCollected fixed.Fixed `json:"fees_collected"`
}

// ProtocolStats is the projected aggregate state of the system.
type ProtocolStats struct {
	TotalSupply     fixed.Fixed `json:"total_supply"`
	FeePool         fixed.Fixed `json:"fee_pool"`
	TotalIssuedDebt fixed.Fixed `json:"total_issued_debt"`
	Undistributed   fixed.Fixed `json:"undistributed"`

	FeePeriodStart    int64       `json:"fee_period_start"`
	LastFeesCollected fixed.Fixed `json:"last_fees_collected"`

	OracleRound int64       `json:"oracle_round"`
	OraclePrice fixed.Fixed `json:"oracle_price"`

	IssuanceRatio   fixed.Fixed `json:"issuance_ratio"`
	TransferFeeRate fixed.Fixed `json:"transfer_fee_rate"`
	RewardPeriodID  int64       `json:"reward_period_id"`

	MarketSkew fixed.Fixed `json:"market_skew"`
	MarketSize fixed.Fixed `json:"market_size"`

	AsOfSequence int64 `json:"as_of_sequence"`
}

// IntegrityReport is the result of an integrity verification check.
type IntegrityReport struct {
	IsHealthy       bool    `json:"is_healthy"`
	HashChainBreaks []int64 `json:"hash_chain_breaks,omitempty"`
	SupplyImbalance string  `json:"supply_imbalance,omitempty"`
	DebtImbalance   string  `json:"debt_imbalance,omitempty"`
}
