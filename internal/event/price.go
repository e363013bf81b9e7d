package event

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"SynthLedger/internal/fixed"
)

// PriceUpdate is a pushed oracle price for the reserve asset.
// Round ids are monotonic; gaps are tolerated (stale rounds are ignored).
type PriceUpdate struct {
	Caller    uuid.UUID // Must be the authorized oracle key
	Price     fixed.Fixed
	RoundID   int64 // Monotonic oracle round
	SentAt    time.Time
	Timestamp time.Time
}

func (e *PriceUpdate) IdempotencyKey() string {
	return fmt.Sprintf("price:%d", e.RoundID)
}

func (e *PriceUpdate) EventType() EventType  { return EventTypePriceUpdate }
func (e *PriceUpdate) SourceSequence() int64 { return e.RoundID }
func (e *PriceUpdate) Time() time.Time       { return e.Timestamp }
