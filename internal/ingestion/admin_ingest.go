package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"SynthLedger/internal/event"
	"SynthLedger/internal/fixed"
)

// AdminIngestService injects commands directly, bypassing NATS. Used by the
// HTTP admin surface for manual operations and operational break-glass, not
// for high-throughput ingestion.
type AdminIngestService struct {
	eventChan chan<- event.Event
	nextSeq   func() int64
}

// NewAdminIngestService wires the direct injection path. nextSeq must hand
// out source sequences from the same counter the NATS producers use, or the
// strict command partition rejects the injected command.
func NewAdminIngestService(eventChan chan<- event.Event, nextSeq func() int64) *AdminIngestService {
	return &AdminIngestService{eventChan: eventChan, nextSeq: nextSeq}
}

// InjectEndow injects an owner endowment of reserve tokens.
func (s *AdminIngestService) InjectEndow(
	ctx context.Context,
	caller, to uuid.UUID,
	amount fixed.Fixed,
) error {
	if amount.Sign() <= 0 {
		return fmt.Errorf("amount must be positive")
	}

	evt := &event.EndowReserve{
		TransferID: uuid.New(),
		Caller:     caller,
		To:         to,
		Amount:     amount,
		Sequence:   s.nextSeq(),
		Timestamp:  time.Now(),
	}
	return s.send(ctx, evt)
}

// InjectPrice injects an oracle price round.
func (s *AdminIngestService) InjectPrice(
	ctx context.Context,
	caller uuid.UUID,
	price fixed.Fixed,
	roundID int64,
) error {
	if price.Sign() <= 0 {
		return fmt.Errorf("price must be positive")
	}

	now := time.Now()
	evt := &event.PriceUpdate{
		Caller:    caller,
		Price:     price,
		RoundID:   roundID,
		SentAt:    now,
		Timestamp: now,
	}
	return s.send(ctx, evt)
}

// InjectSetIssuer grants or revokes issuer capability.
func (s *AdminIngestService) InjectSetIssuer(
	ctx context.Context,
	caller, account uuid.UUID,
	allowed bool,
) error {
	evt := &event.SetIssuer{
		UpdateID:  uuid.New(),
		Caller:    caller,
		Account:   account,
		Allowed:   allowed,
		Sequence:  s.nextSeq(),
		Timestamp: time.Now(),
	}
	return s.send(ctx, evt)
}

// InjectFreeze freezes or unfreezes a synth account.
func (s *AdminIngestService) InjectFreeze(
	ctx context.Context,
	caller, account uuid.UUID,
	frozen bool,
) error {
	evt := &event.FreezeAccount{
		UpdateID:  uuid.New(),
		Caller:    caller,
		Account:   account,
		Frozen:    frozen,
		Sequence:  s.nextSeq(),
		Timestamp: time.Now(),
	}
	return s.send(ctx, evt)
}

// InjectParamUpdate updates a bounded protocol parameter.
func (s *AdminIngestService) InjectParamUpdate(
	ctx context.Context,
	caller uuid.UUID,
	param string,
	value fixed.Fixed,
	duration int64,
	key uuid.UUID,
) error {
	evt := &event.ParamUpdate{
		UpdateID:  uuid.New(),
		Caller:    caller,
		Param:     param,
		Value:     value,
		Duration:  duration,
		Key:       key,
		Sequence:  s.nextSeq(),
		Timestamp: time.Now(),
	}
	return s.send(ctx, evt)
}

// InjectEscrowCredit attributes escrowed reserve tokens to an account.
func (s *AdminIngestService) InjectEscrowCredit(
	ctx context.Context,
	caller, account uuid.UUID,
	amount fixed.Fixed,
) error {
	if amount.Sign() <= 0 {
		return fmt.Errorf("amount must be positive")
	}

	evt := &event.CreditEscrow{
		GrantID:   uuid.New(),
		Caller:    caller,
		Account:   account,
		Amount:    amount,
		Sequence:  s.nextSeq(),
		Timestamp: time.Now(),
	}
	return s.send(ctx, evt)
}

// InjectRewardFunding deposits new trading rewards funding.
func (s *AdminIngestService) InjectRewardFunding(
	ctx context.Context,
	caller uuid.UUID,
	amount fixed.Fixed,
) error {
	if amount.Sign() <= 0 {
		return fmt.Errorf("amount must be positive")
	}

	evt := &event.NotifyRewardFunding{
		FundingID: uuid.New(),
		Caller:    caller,
		Amount:    amount,
		Sequence:  s.nextSeq(),
		Timestamp: time.Now(),
	}
	return s.send(ctx, evt)
}

func (s *AdminIngestService) send(ctx context.Context, evt event.Event) error {
	select {
	case s.eventChan <- evt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
