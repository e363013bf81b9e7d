package core_test

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"SynthLedger/internal/core"
	"SynthLedger/internal/event"
	"SynthLedger/internal/fixed"
)

func drainOutputs(ch chan core.CoreOutput) []core.CoreOutput {
	var out []core.CoreOutput
	for {
		select {
		case o := <-ch:
			out = append(out, o)
		default:
			return out
		}
	}
}

func TestStateView_CarriesTouchedAccountBalances(t *testing.T) {
	f := newCoreFixture(t)
	alice := uuid.New()
	bob := uuid.New()

	f.endow(alice, 1000)
	drainOutputs(f.proj)

	seq := f.next()
	f.process(&event.TransferReserve{
		TransferID: uuid.New(),
		From:       alice,
		To:         bob,
		Amount:     fixed.FromInt(400),
		Sequence:   seq,
		Timestamp:  f.ts(seq),
	})

	outputs := drainOutputs(f.proj)
	if len(outputs) != 1 {
		t.Fatalf("projected %d outputs, want 1", len(outputs))
	}
	view := outputs[0].View
	if view == nil {
		t.Fatal("output has no state view")
	}
	if len(view.Accounts) != 2 {
		t.Fatalf("view has %d accounts, want 2", len(view.Accounts))
	}

	byAccount := make(map[uuid.UUID]core.AccountView)
	for _, av := range view.Accounts {
		byAccount[av.Account] = av
	}
	if got := byAccount[alice].Reserve; !got.Equal(fixed.FromInt(600)) {
		t.Errorf("alice reserve = %s, want 600", got)
	}
	if got := byAccount[bob].Reserve; !got.Equal(fixed.FromInt(400)) {
		t.Errorf("bob reserve = %s, want 400", got)
	}
}

func TestStateView_AggregatesTrackIssuance(t *testing.T) {
	f := newCoreFixture(t)
	alice := uuid.New()

	f.pushPrice("10")
	f.endow(alice, 10_000)
	f.setIssuer(alice)
	drainOutputs(f.proj)

	f.issue(alice, 2000)

	outputs := drainOutputs(f.proj)
	if len(outputs) != 1 {
		t.Fatalf("projected %d outputs, want 1", len(outputs))
	}
	view := outputs[0].View
	if !view.TotalSupply.Equal(fixed.FromInt(2000)) {
		t.Errorf("total supply = %s, want 2000", view.TotalSupply)
	}
	if !view.TotalDebt.Equal(fixed.FromInt(2000)) {
		t.Errorf("total debt = %s, want 2000", view.TotalDebt)
	}
	if view.OracleRound != 1 {
		t.Errorf("oracle round = %d, want 1", view.OracleRound)
	}
	if len(view.Accounts) != 1 || !view.Accounts[0].IssuedDebt.Equal(fixed.FromInt(2000)) {
		t.Errorf("account debt view = %+v", view.Accounts)
	}
}

func TestStateView_PositionAppearsOnConfirm(t *testing.T) {
	f := newCoreFixture(t)
	trader := uuid.New()

	f.pushPrice("100")
	f.endow(trader, 10_000)
	f.setIssuer(trader)
	f.issue(trader, 5000)

	seq := f.next()
	f.process(&event.SubmitOrder{
		OrderID:   uuid.New(),
		Account:   trader,
		Margin:    fixed.FromInt(1000),
		Leverage:  fixed.FromInt(5),
		Sequence:  seq,
		Timestamp: f.ts(seq),
	})
	f.pushPrice("100")
	drainOutputs(f.proj)

	seq = f.next()
	f.process(&event.ConfirmOrder{
		RequestID: uuid.New(),
		Account:   trader,
		Sequence:  seq,
		Timestamp: f.ts(seq),
	})

	outputs := drainOutputs(f.proj)
	if len(outputs) != 1 {
		t.Fatalf("projected %d outputs, want 1", len(outputs))
	}
	view := outputs[0].View
	if len(view.Positions) != 1 {
		t.Fatalf("view has %d positions, want 1", len(view.Positions))
	}
	pos := view.Positions[0]
	if !pos.Open {
		t.Fatal("position not open in view")
	}
	if pos.Status != "POSITION_OPEN" {
		t.Errorf("status = %s", pos.Status)
	}
	if !pos.Size.Equal(fixed.FromInt(50)) {
		t.Errorf("size = %s, want 50", pos.Size)
	}
	if !pos.EntryPrice.Equal(fixed.FromInt(100)) {
		t.Errorf("entry price = %s, want 100", pos.EntryPrice)
	}
}

func TestStateView_RewardClaimTouchesFund(t *testing.T) {
	f := newCoreFixture(t)
	trader := uuid.New()

	f.endow(f.fund, 10_000)

	// Fund period 1, record the trader's fee into it, close it with period 2.
	seq := f.next()
	f.process(&event.NotifyRewardFunding{
		FundingID: uuid.New(),
		Caller:    f.distributor,
		Amount:    fixed.FromInt(600),
		Sequence:  seq,
		Timestamp: f.ts(seq),
	})
	seq = f.next()
	f.process(&event.RecordExchangeFee{
		RecordID:  uuid.New(),
		Caller:    f.feeReporter,
		Account:   trader,
		Amount:    fixed.FromInt(100),
		Sequence:  seq,
		Timestamp: f.ts(seq),
	})
	seq = f.next()
	f.process(&event.NotifyRewardFunding{
		FundingID: uuid.New(),
		Caller:    f.distributor,
		Amount:    fixed.FromInt(600),
		Sequence:  seq,
		Timestamp: f.ts(seq),
	})
	drainOutputs(f.proj)

	seq = f.next()
	f.process(&event.ClaimRewards{
		ClaimID:   uuid.New(),
		Account:   trader,
		PeriodID:  1,
		Sequence:  seq,
		Timestamp: f.ts(seq),
	})

	outputs := drainOutputs(f.proj)
	if len(outputs) != 1 {
		t.Fatalf("projected %d outputs, want 1", len(outputs))
	}
	view := outputs[0].View
	if len(view.Accounts) != 2 {
		t.Fatalf("view has %d accounts, want trader and fund", len(view.Accounts))
	}

	var sawFund, sawTrader bool
	for _, av := range view.Accounts {
		switch av.Account {
		case f.fund:
			sawFund = true
			// Sole fee recorder takes the whole 600 pot.
			if !av.Reserve.Equal(fixed.FromInt(9400)) {
				t.Errorf("fund reserve = %s, want 9400", av.Reserve)
			}
		case trader:
			sawTrader = true
			if !av.Reserve.Equal(fixed.FromInt(600)) {
				t.Errorf("trader reserve = %s, want 600", av.Reserve)
			}
		}
	}
	if !sawFund || !sawTrader {
		t.Errorf("view accounts missing fund or trader: fund=%v trader=%v", sawFund, sawTrader)
	}
}

func TestStateView_FeePeriodRolloverNotification(t *testing.T) {
	f := newCoreFixture(t)
	alice := uuid.New()
	bob := uuid.New()

	f.pushPrice("10")
	f.endow(alice, 10_000)
	f.setIssuer(alice)
	f.issue(alice, 1000)
	drainOutputs(f.proj)

	// A synth transfer after the period target duration triggers rollover.
	seq := f.next()
	f.process(&event.TransferSynth{
		TransferID: uuid.New(),
		From:       alice,
		To:         bob,
		Amount:     fixed.FromInt(100),
		Sequence:   seq,
		Timestamp:  time.Unix(genesisTime+week+1, 0),
	})

	outputs := drainOutputs(f.proj)
	if len(outputs) != 2 {
		t.Fatalf("projected %d outputs, want transfer plus rollover", len(outputs))
	}
	rolled := outputs[1]
	if rolled.Envelope.EventType != event.EventTypeFeePeriodRolled {
		t.Fatalf("second output type = %v", rolled.Envelope.EventType)
	}
	if rolled.View == nil {
		t.Fatal("rollover notification has no view")
	}
	if rolled.View.FeePeriodStart <= genesisTime {
		t.Errorf("fee period start = %d, want after genesis", rolled.View.FeePeriodStart)
	}
	if rolled.View.FeePeriodPrevStart != genesisTime {
		t.Errorf("previous period start = %d, want genesis", rolled.View.FeePeriodPrevStart)
	}
}
