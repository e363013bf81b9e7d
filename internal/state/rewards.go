package state

import (
	"fmt"

	"github.com/google/uuid"

	"SynthLedger/internal/fixed"
	"SynthLedger/internal/ledger"
)

// RewardPeriod is one trading-rewards accounting window. Periods are indexed
// by an incrementing id; only the highest id is active, and a period becomes
// claimable the instant a later one is opened.
type RewardPeriod struct {
	ID               int64
	RecordedFees     fixed.Fixed
	TotalRewards     fixed.Fixed
	AvailableRewards fixed.Fixed
	AccountFees      map[uuid.UUID]fixed.Fixed
	AccountClaimed   map[uuid.UUID]fixed.Fixed
}

func newRewardPeriod(id int64) *RewardPeriod {
	return &RewardPeriod{
		ID:             id,
		AccountFees:    make(map[uuid.UUID]fixed.Fixed),
		AccountClaimed: make(map[uuid.UUID]fixed.Fixed),
	}
}

// RewardsEngine is the trading-rewards distribution core. Reward tokens are
// reserve tokens held in a dedicated fund account on the reserve ledger;
// funding commits them to a period and claims pay them out pro rata to
// recorded trading fees. Distribution never iterates participants.
type RewardsEngine struct {
	reserve *ledger.ReserveLedger
	fund    uuid.UUID

	periods        map[int64]*RewardPeriod
	currentID      int64
	totalCommitted fixed.Fixed // rewards promised to periods, not yet claimed
}

// NewRewardsEngine opens period 0 as the initial active period.
func NewRewardsEngine(reserve *ledger.ReserveLedger, fund uuid.UUID) *RewardsEngine {
	return &RewardsEngine{
		reserve: reserve,
		fund:    fund,
		periods: map[int64]*RewardPeriod{0: newRewardPeriod(0)},
	}
}

func (r *RewardsEngine) CurrentPeriodID() int64 {
	return r.currentID
}

func (r *RewardsEngine) FundAccount() uuid.UUID {
	return r.fund
}

// Period returns the period with the given id, if it exists.
func (r *RewardsEngine) Period(id int64) (*RewardPeriod, bool) {
	p, ok := r.periods[id]
	return p, ok
}

// RecordFee attributes exchange fees to the account in the active period.
// Caller authorization (the fee reporter capability) is the core's concern.
func (r *RewardsEngine) RecordFee(account uuid.UUID, amount fixed.Fixed) error {
	if amount.Sign() <= 0 {
		return fmt.Errorf("record fee: non-positive amount %s: %w", amount, ErrInvalidState)
	}
	p := r.periods[r.currentID]
	total, err := p.RecordedFees.Add(amount)
	if err != nil {
		return err
	}
	acct, err := p.AccountFees[account].Add(amount)
	if err != nil {
		return err
	}
	p.RecordedFees = total
	p.AccountFees[account] = acct
	return nil
}

// NotifyNewFunding commits amount of the fund's uncommitted balance to a new
// period, closing the current one (it becomes claimable). Returns the new
// period id.
func (r *RewardsEngine) NotifyNewFunding(amount fixed.Fixed) (int64, error) {
	if amount.Sign() <= 0 {
		return 0, fmt.Errorf("notify funding: non-positive amount %s: %w", amount, ErrInvalidState)
	}
	free, err := r.uncommittedBalance()
	if err != nil {
		return 0, err
	}
	if amount.Cmp(free) > 0 {
		return 0, fmt.Errorf("notify funding %s with uncommitted balance %s: %w",
			amount, free, ledger.ErrInsufficientBalance)
	}
	committed, err := r.totalCommitted.Add(amount)
	if err != nil {
		return 0, err
	}
	r.currentID++
	p := newRewardPeriod(r.currentID)
	p.TotalRewards = amount
	p.AvailableRewards = amount
	r.periods[r.currentID] = p
	r.totalCommitted = committed
	return r.currentID, nil
}

// Claim pays the account its outstanding entitlement for a closed period and
// returns the net payout. Claiming again in the same period yields zero. The
// participation ratio divides account fees by total fees before multiplying
// by total rewards; the truncation order is part of the contract.
func (r *RewardsEngine) Claim(account uuid.UUID, periodID int64) (fixed.Fixed, error) {
	if periodID >= r.currentID {
		return fixed.Fixed{}, fmt.Errorf("claim period %d still active (current %d): %w",
			periodID, r.currentID, ErrInvalidState)
	}
	p, ok := r.periods[periodID]
	if !ok {
		return fixed.Fixed{}, fmt.Errorf("claim period %d: unknown period: %w", periodID, ErrInvalidState)
	}
	if p.RecordedFees.IsZero() {
		return fixed.Zero(), nil
	}
	ratio, err := p.AccountFees[account].Div(p.RecordedFees)
	if err != nil {
		return fixed.Fixed{}, err
	}
	entitlement, err := ratio.Mul(p.TotalRewards)
	if err != nil {
		return fixed.Fixed{}, err
	}
	net, err := entitlement.Sub(p.AccountClaimed[account])
	if err != nil {
		return fixed.Fixed{}, err
	}
	if net.Sign() <= 0 {
		return fixed.Zero(), nil
	}
	if err := r.reserve.Transfer(r.fund, account, net); err != nil {
		return fixed.Fixed{}, err
	}
	claimed, err := p.AccountClaimed[account].Add(net)
	if err != nil {
		return fixed.Fixed{}, err
	}
	avail, err := p.AvailableRewards.Sub(net)
	if err != nil {
		return fixed.Fixed{}, err
	}
	committed, err := r.totalCommitted.Sub(net)
	if err != nil {
		return fixed.Fixed{}, err
	}
	p.AccountClaimed[account] = claimed
	p.AvailableRewards = avail
	r.totalCommitted = committed
	return net, nil
}

// RecoverUncommitted transfers fund tokens not promised to any period.
func (r *RewardsEngine) RecoverUncommitted(to uuid.UUID, amount fixed.Fixed) error {
	free, err := r.uncommittedBalance()
	if err != nil {
		return err
	}
	if amount.Cmp(free) > 0 {
		return fmt.Errorf("recover %s with uncommitted balance %s: %w",
			amount, free, ledger.ErrInsufficientBalance)
	}
	return r.reserve.Transfer(r.fund, to, amount)
}

// RecoverFromActivePeriod claws back the still-unclaimable rewards assigned
// to the active period and returns the recovered amount. Closed periods are
// untouchable.
func (r *RewardsEngine) RecoverFromActivePeriod(to uuid.UUID) (fixed.Fixed, error) {
	p := r.periods[r.currentID]
	amount := p.AvailableRewards
	if amount.Sign() <= 0 {
		return fixed.Zero(), nil
	}
	committed, err := r.totalCommitted.Sub(amount)
	if err != nil {
		return fixed.Fixed{}, err
	}
	if err := r.reserve.Transfer(r.fund, to, amount); err != nil {
		return fixed.Fixed{}, err
	}
	p.TotalRewards = fixed.Zero()
	p.AvailableRewards = fixed.Zero()
	r.totalCommitted = committed
	return amount, nil
}

func (r *RewardsEngine) uncommittedBalance() (fixed.Fixed, error) {
	return r.reserve.BalanceOf(r.fund).Sub(r.totalCommitted)
}

// Snapshot returns a deep copy of all periods plus the committed total.
func (r *RewardsEngine) Snapshot() (map[int64]*RewardPeriod, int64, fixed.Fixed) {
	out := make(map[int64]*RewardPeriod, len(r.periods))
	for id, p := range r.periods {
		cp := newRewardPeriod(id)
		cp.RecordedFees = p.RecordedFees
		cp.TotalRewards = p.TotalRewards
		cp.AvailableRewards = p.AvailableRewards
		for k, v := range p.AccountFees {
			cp.AccountFees[k] = v
		}
		for k, v := range p.AccountClaimed {
			cp.AccountClaimed[k] = v
		}
		out[id] = cp
	}
	return out, r.currentID, r.totalCommitted
}

// Restore overwrites engine state from a snapshot.
func (r *RewardsEngine) Restore(periods map[int64]*RewardPeriod, currentID int64, totalCommitted fixed.Fixed) {
	r.periods = make(map[int64]*RewardPeriod, len(periods))
	for id, p := range periods {
		r.periods[id] = p
	}
	if _, ok := r.periods[currentID]; !ok {
		r.periods[currentID] = newRewardPeriod(currentID)
	}
	r.currentID = currentID
	r.totalCommitted = totalCommitted
}
