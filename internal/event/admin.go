package event

import (
	"time"

	"github.com/google/uuid"

	"SynthLedger/internal/fixed"
)

// Param names accepted by ParamUpdate.
const (
	ParamIssuanceRatio     = "issuance_ratio"
	ParamFeePeriodDuration = "fee_period_duration"
	ParamPriceStalePeriod  = "price_stale_period"
	ParamTransferFeeRate   = "transfer_fee_rate"
	ParamOracleKey         = "oracle_key"
)

// ParamUpdate is an owner-gated setter for a bounded protocol parameter.
type ParamUpdate struct {
	UpdateID  uuid.UUID // Idempotency key
	Caller    uuid.UUID // Must be the contract owner
	Param     string
	Value     fixed.Fixed // For numeric params
	Duration  int64       // Seconds, for duration params
	Key       uuid.UUID   // For key-valued params
	Sequence  int64
	Timestamp time.Time
}

func (e *ParamUpdate) IdempotencyKey() string { return e.UpdateID.String() }
func (e *ParamUpdate) EventType() EventType   { return EventTypeParamUpdate }
func (e *ParamUpdate) SourceSequence() int64  { return e.Sequence }
func (e *ParamUpdate) Time() time.Time        { return e.Timestamp }

// SetIssuer grants or revokes an account's issuer capability.
type SetIssuer struct {
	UpdateID  uuid.UUID // Idempotency key
	Caller    uuid.UUID // Must be the contract owner
	Account   uuid.UUID
	Allowed   bool
	Sequence  int64
	Timestamp time.Time
}

func (e *SetIssuer) IdempotencyKey() string { return e.UpdateID.String() }
func (e *SetIssuer) EventType() EventType   { return EventTypeSetIssuer }
func (e *SetIssuer) SourceSequence() int64  { return e.Sequence }
func (e *SetIssuer) Time() time.Time        { return e.Timestamp }

// FreezeAccount freezes or unfreezes a synth account. Frozen accounts
// cannot transfer synths or withdraw fees.
type FreezeAccount struct {
	UpdateID  uuid.UUID // Idempotency key
	Caller    uuid.UUID // Must be the contract owner
	Account   uuid.UUID
	Frozen    bool
	Sequence  int64
	Timestamp time.Time
}

func (e *FreezeAccount) IdempotencyKey() string { return e.UpdateID.String() }
func (e *FreezeAccount) EventType() EventType   { return EventTypeFreezeAccount }
func (e *FreezeAccount) SourceSequence() int64  { return e.Sequence }
func (e *FreezeAccount) Time() time.Time        { return e.Timestamp }

// CreditEscrow attributes vested-but-locked reserve tokens to an account.
// Escrowed balances count toward collateral but cannot be transferred.
type CreditEscrow struct {
	GrantID   uuid.UUID // Idempotency key
	Caller    uuid.UUID // Must be the contract owner
	Account   uuid.UUID
	Amount    fixed.Fixed
	Sequence  int64
	Timestamp time.Time
}

func (e *CreditEscrow) IdempotencyKey() string { return e.GrantID.String() }
func (e *CreditEscrow) EventType() EventType   { return EventTypeCreditEscrow }
func (e *CreditEscrow) SourceSequence() int64  { return e.Sequence }
func (e *CreditEscrow) Time() time.Time        { return e.Timestamp }
