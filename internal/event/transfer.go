package event

import (
	"time"

	"github.com/google/uuid"

	"SynthLedger/internal/fixed"
)

// EndowReserve distributes reserve tokens from the undistributed pool.
// Owner-gated initial distribution.
// Idempotency key: transfer_id (UUID assigned upstream).
type EndowReserve struct {
	TransferID uuid.UUID // Idempotency key
	Caller     uuid.UUID // Must be the contract owner
	To         uuid.UUID
	Amount     fixed.Fixed
	Sequence   int64
	Timestamp  time.Time // Versioned input timestamp (NOT wall-clock)
}

func (e *EndowReserve) IdempotencyKey() string  { return e.TransferID.String() }
func (e *EndowReserve) EventType() EventType    { return EventTypeEndowReserve }
func (e *EndowReserve) SourceSequence() int64   { return e.Sequence }
func (e *EndowReserve) Time() time.Time         { return e.Timestamp }

// TransferReserve moves reserve tokens between accounts. Gated by the
// collateralization engine: accounts with outstanding synth debt cannot
// transfer away collateral currently backing that debt.
type TransferReserve struct {
	TransferID uuid.UUID // Idempotency key
	From       uuid.UUID
	To         uuid.UUID
	Amount     fixed.Fixed
	Sequence   int64
	Timestamp  time.Time
}

func (e *TransferReserve) IdempotencyKey() string { return e.TransferID.String() }
func (e *TransferReserve) EventType() EventType   { return EventTypeTransferReserve }
func (e *TransferReserve) SourceSequence() int64  { return e.Sequence }
func (e *TransferReserve) Time() time.Time        { return e.Timestamp }

// TransferSynth moves synths between accounts. The sender additionally pays
// the transfer fee, which accrues to the fee pool.
type TransferSynth struct {
	TransferID uuid.UUID // Idempotency key
	From       uuid.UUID
	To         uuid.UUID
	Amount     fixed.Fixed
	Sequence   int64
	Timestamp  time.Time
}

func (e *TransferSynth) IdempotencyKey() string { return e.TransferID.String() }
func (e *TransferSynth) EventType() EventType   { return EventTypeTransferSynth }
func (e *TransferSynth) SourceSequence() int64  { return e.Sequence }
func (e *TransferSynth) Time() time.Time        { return e.Timestamp }
