package core

import (
	"github.com/google/uuid"

	"SynthLedger/internal/event"
	"SynthLedger/internal/fixed"
)

// AccountView is the post-event balance picture for one touched account.
// Values are absolute, not deltas, so projection upserts are idempotent and
// a dropped update is repaired by the next one.
type AccountView struct {
	Account    uuid.UUID
	Reserve    fixed.Fixed
	Synth      fixed.Fixed
	IssuedDebt fixed.Fixed
	Frozen     bool
}

// PositionView is the post-event futures state for one touched account.
// Open reports whether a position exists; a closed position is projected as
// Open=false so the read model can clear its row.
type PositionView struct {
	Account    uuid.UUID
	Open       bool
	Size       fixed.Fixed
	Margin     fixed.Fixed
	EntryPrice fixed.Fixed
	Status     string
}

// StateView carries the protocol aggregates plus the touched-account views
// for one applied command. The projection worker writes these verbatim; no
// business rules are re-derived downstream.
type StateView struct {
	Accounts  []AccountView
	Positions []PositionView

	TotalSupply   fixed.Fixed
	FeePool       fixed.Fixed
	TotalDebt     fixed.Fixed
	Undistributed fixed.Fixed

	FeePeriodStart     int64
	FeePeriodPrevStart int64
	LastFeesCollected  fixed.Fixed

	OracleRound int64
	OraclePrice fixed.Fixed

	IssuanceRatio   fixed.Fixed
	TransferFeeRate fixed.Fixed
	RewardPeriodID  int64
	MarketSkew      fixed.Fixed
	MarketSize      fixed.Fixed
}

// touchedAccounts lists the accounts whose balances a command can move.
// Reward funding and claims also move the fund account, which the command
// itself never names.
func (c *DeterministicCore) touchedAccounts(evt event.Event) []uuid.UUID {
	switch e := evt.(type) {
	case *event.EndowReserve:
		return []uuid.UUID{e.To}
	case *event.TransferReserve:
		return []uuid.UUID{e.From, e.To}
	case *event.TransferSynth:
		return []uuid.UUID{e.From, e.To}
	case *event.IssueSynths:
		return []uuid.UUID{e.Account}
	case *event.BurnSynths:
		return []uuid.UUID{e.Account}
	case *event.WithdrawFees:
		return []uuid.UUID{e.Account}
	case *event.NotifyRewardFunding:
		return []uuid.UUID{e.Caller, c.rewards.FundAccount()}
	case *event.ClaimRewards:
		return []uuid.UUID{e.Account, c.rewards.FundAccount()}
	case *event.SubmitOrder:
		return []uuid.UUID{e.Account}
	case *event.ConfirmOrder:
		return []uuid.UUID{e.Account}
	case *event.CancelOrder:
		return []uuid.UUID{e.Account}
	case *event.SetIssuer:
		return []uuid.UUID{e.Account}
	case *event.FreezeAccount:
		return []uuid.UUID{e.Account}
	case *event.CreditEscrow:
		return []uuid.UUID{e.Account}
	default:
		return nil
	}
}

// buildStateView reads the post-dispatch state for the accounts the command
// touched. Called on the core goroutine only.
func (c *DeterministicCore) buildStateView(evt event.Event) *StateView {
	view := &StateView{
		TotalSupply:        c.synth.TotalSupply(),
		FeePool:            c.synth.FeePool(),
		TotalDebt:          c.collateral.TotalIssuedDebt(),
		Undistributed:      c.reserve.Undistributed(),
		FeePeriodStart:     c.feePeriod.StartTime(),
		FeePeriodPrevStart: c.feePeriod.PreviousStartTime(),
		LastFeesCollected:  c.feePeriod.LastFeesCollected(),
		OracleRound:        c.oracle.RoundID(),
		OraclePrice:        c.oraclePriceRaw(),
		IssuanceRatio:      c.params.IssuanceRatio(),
		TransferFeeRate:    c.synth.TransferFeeRate(),
		RewardPeriodID:     c.rewards.CurrentPeriodID(),
		MarketSkew:         c.futures.MarketSkew(),
		MarketSize:         c.futures.MarketSize(),
	}

	seen := make(map[uuid.UUID]bool)
	for _, acct := range c.touchedAccounts(evt) {
		if seen[acct] {
			continue
		}
		seen[acct] = true

		view.Accounts = append(view.Accounts, AccountView{
			Account:    acct,
			Reserve:    c.reserve.BalanceOf(acct),
			Synth:      c.synth.BalanceOf(acct),
			IssuedDebt: c.collateral.IssuedDebt(acct),
			Frozen:     c.synth.IsFrozen(acct),
		})

		if isFuturesEvent(evt) {
			pv := PositionView{
				Account: acct,
				Status:  c.futures.Status(acct).String(),
			}
			if pos, ok := c.futures.Position(acct); ok {
				pv.Open = true
				pv.Size = pos.Size
				pv.Margin = pos.Margin
				pv.EntryPrice = pos.EntryPrice
			}
			view.Positions = append(view.Positions, pv)
		}
	}

	return view
}

func isFuturesEvent(evt event.Event) bool {
	switch evt.(type) {
	case *event.SubmitOrder, *event.ConfirmOrder, *event.CancelOrder:
		return true
	}
	return false
}
