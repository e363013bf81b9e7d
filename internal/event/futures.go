package event

import (
	"time"

	"github.com/google/uuid"

	"SynthLedger/internal/fixed"
)

// SubmitOrder stages a leveraged order. The order is tagged with the oracle
// round current at submission and can only be confirmed against a later round.
type SubmitOrder struct {
	OrderID   uuid.UUID // Idempotency key
	Account   uuid.UUID
	Margin    fixed.Fixed // Signed: positive = long, negative = short
	Leverage  fixed.Fixed
	Sequence  int64
	Timestamp time.Time
}

func (e *SubmitOrder) IdempotencyKey() string { return e.OrderID.String() }
func (e *SubmitOrder) EventType() EventType   { return EventTypeSubmitOrder }
func (e *SubmitOrder) SourceSequence() int64  { return e.Sequence }
func (e *SubmitOrder) Time() time.Time        { return e.Timestamp }

// ConfirmOrder finalizes a pending order into a position at the price of a
// round after the submission round.
type ConfirmOrder struct {
	RequestID uuid.UUID // Idempotency key
	Account   uuid.UUID
	Sequence  int64
	Timestamp time.Time
}

func (e *ConfirmOrder) IdempotencyKey() string { return e.RequestID.String() }
func (e *ConfirmOrder) EventType() EventType   { return EventTypeConfirmOrder }
func (e *ConfirmOrder) SourceSequence() int64  { return e.Sequence }
func (e *ConfirmOrder) Time() time.Time        { return e.Timestamp }

// CancelOrder withdraws a pending order. No position change.
type CancelOrder struct {
	RequestID uuid.UUID // Idempotency key
	Account   uuid.UUID
	Sequence  int64
	Timestamp time.Time
}

func (e *CancelOrder) IdempotencyKey() string { return e.RequestID.String() }
func (e *CancelOrder) EventType() EventType   { return EventTypeCancelOrder }
func (e *CancelOrder) SourceSequence() int64  { return e.Sequence }
func (e *CancelOrder) Time() time.Time        { return e.Timestamp }
