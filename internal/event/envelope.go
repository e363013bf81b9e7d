package event

import (
	"time"
)

// EventType discriminator for command payloads
type EventType int32

const (
	EventTypeUnknown EventType = iota
	EventTypeEndowReserve
	EventTypeTransferReserve
	EventTypeTransferSynth
	EventTypeIssueSynths
	EventTypeBurnSynths
	EventTypeWithdrawFees
	EventTypePriceUpdate
	EventTypeRecordExchangeFee
	EventTypeNotifyRewardFunding
	EventTypeClaimRewards
	EventTypeSubmitOrder
	EventTypeConfirmOrder
	EventTypeCancelOrder
	EventTypeParamUpdate
	EventTypeSetIssuer
	EventTypeFreezeAccount
	EventTypeFeePeriodRolled
	// Appended after initial deployment; values are persisted, never reorder.
	EventTypeCreditEscrow
)

// Envelope wraps every applied command in the log
type Envelope struct {
	// Global monotonic sequence assigned by core
	Sequence int64

	// Stable idempotency key from upstream
	IdempotencyKey string

	// Command type discriminator
	EventType EventType

	// Versioned input timestamp (NOT wall-clock)
	Timestamp time.Time

	// Upstream sequence for ordering validation
	SourceSequence int64

	// JSON-encoded command-specific data
	Payload []byte

	// SHA-256 of state AFTER applying this command
	StateHash [32]byte

	// Previous command's state hash (chain integrity)
	PrevHash [32]byte
}

// Event is the interface all command payloads must implement
type Event interface {
	// IdempotencyKey returns the stable dedup key
	IdempotencyKey() string

	// EventType returns the discriminator
	EventType() EventType

	// SourceSequence returns upstream ordering key
	SourceSequence() int64

	// Time returns the versioned input timestamp. The core never reads
	// the wall clock; all time flows in through commands.
	Time() time.Time
}

func (et EventType) String() string {
	switch et {
	case EventTypeEndowReserve:
		return "EndowReserve"
	case EventTypeTransferReserve:
		return "TransferReserve"
	case EventTypeTransferSynth:
		return "TransferSynth"
	case EventTypeIssueSynths:
		return "IssueSynths"
	case EventTypeBurnSynths:
		return "BurnSynths"
	case EventTypeWithdrawFees:
		return "WithdrawFees"
	case EventTypePriceUpdate:
		return "PriceUpdate"
	case EventTypeRecordExchangeFee:
		return "RecordExchangeFee"
	case EventTypeNotifyRewardFunding:
		return "NotifyRewardFunding"
	case EventTypeClaimRewards:
		return "ClaimRewards"
	case EventTypeSubmitOrder:
		return "SubmitOrder"
	case EventTypeConfirmOrder:
		return "ConfirmOrder"
	case EventTypeCancelOrder:
		return "CancelOrder"
	case EventTypeParamUpdate:
		return "ParamUpdate"
	case EventTypeSetIssuer:
		return "SetIssuer"
	case EventTypeFreezeAccount:
		return "FreezeAccount"
	case EventTypeFeePeriodRolled:
		return "FeePeriodRolled"
	case EventTypeCreditEscrow:
		return "CreditEscrow"
	default:
		return "Unknown"
	}
}
