package event

import (
	"time"

	"github.com/google/uuid"

	"SynthLedger/internal/fixed"
)

// RecordExchangeFee reports trading fees attributed to an account for the
// active reward period. Callable only by the authorized fee reporter.
type RecordExchangeFee struct {
	RecordID  uuid.UUID // Idempotency key
	Caller    uuid.UUID // Must be the fee reporter
	Account   uuid.UUID
	Amount    fixed.Fixed
	Sequence  int64
	Timestamp time.Time
}

func (e *RecordExchangeFee) IdempotencyKey() string { return e.RecordID.String() }
func (e *RecordExchangeFee) EventType() EventType   { return EventTypeRecordExchangeFee }
func (e *RecordExchangeFee) SourceSequence() int64  { return e.Sequence }
func (e *RecordExchangeFee) Time() time.Time        { return e.Timestamp }

// NotifyRewardFunding deposits new reward funding, closing the active
// reward period (it becomes claimable) and opening the next one.
type NotifyRewardFunding struct {
	FundingID uuid.UUID // Idempotency key
	Caller    uuid.UUID // Must be the rewards distribution authority
	Amount    fixed.Fixed
	Sequence  int64
	Timestamp time.Time
}

func (e *NotifyRewardFunding) IdempotencyKey() string { return e.FundingID.String() }
func (e *NotifyRewardFunding) EventType() EventType   { return EventTypeNotifyRewardFunding }
func (e *NotifyRewardFunding) SourceSequence() int64  { return e.Sequence }
func (e *NotifyRewardFunding) Time() time.Time        { return e.Timestamp }

// ClaimRewards claims the account's pro-rata share of a closed reward period.
type ClaimRewards struct {
	ClaimID   uuid.UUID // Idempotency key
	Account   uuid.UUID
	PeriodID  int64
	Sequence  int64
	Timestamp time.Time
}

func (e *ClaimRewards) IdempotencyKey() string { return e.ClaimID.String() }
func (e *ClaimRewards) EventType() EventType   { return EventTypeClaimRewards }
func (e *ClaimRewards) SourceSequence() int64  { return e.Sequence }
func (e *ClaimRewards) Time() time.Time        { return e.Timestamp }
