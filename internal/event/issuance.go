package event

import (
	"time"

	"github.com/google/uuid"

	"SynthLedger/internal/fixed"
)

// IssueSynths mints synths against the account's reserve collateral.
// Requires issuer capability and a fresh price.
type IssueSynths struct {
	RequestID uuid.UUID // Idempotency key
	Account   uuid.UUID
	Amount    fixed.Fixed
	Sequence  int64
	Timestamp time.Time
}

func (e *IssueSynths) IdempotencyKey() string { return e.RequestID.String() }
func (e *IssueSynths) EventType() EventType   { return EventTypeIssueSynths }
func (e *IssueSynths) SourceSequence() int64  { return e.Sequence }
func (e *IssueSynths) Time() time.Time        { return e.Timestamp }

// BurnSynths burns synths and reduces the account's issued debt.
type BurnSynths struct {
	RequestID uuid.UUID // Idempotency key
	Account   uuid.UUID
	Amount    fixed.Fixed
	Sequence  int64
	Timestamp time.Time
}

func (e *BurnSynths) IdempotencyKey() string { return e.RequestID.String() }
func (e *BurnSynths) EventType() EventType   { return EventTypeBurnSynths }
func (e *BurnSynths) SourceSequence() int64  { return e.Sequence }
func (e *BurnSynths) Time() time.Time        { return e.Timestamp }

// WithdrawFees claims the account's pro-rata share of the previous fee
// period's collected fees. Once per account per period.
type WithdrawFees struct {
	RequestID uuid.UUID // Idempotency key
	Account   uuid.UUID
	Sequence  int64
	Timestamp time.Time
}

func (e *WithdrawFees) IdempotencyKey() string { return e.RequestID.String() }
func (e *WithdrawFees) EventType() EventType   { return EventTypeWithdrawFees }
func (e *WithdrawFees) SourceSequence() int64  { return e.Sequence }
func (e *WithdrawFees) Time() time.Time        { return e.Timestamp }
