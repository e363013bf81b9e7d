package state

import (
	"fmt"

	"github.com/google/uuid"

	"SynthLedger/internal/fixed"
	"SynthLedger/internal/ledger"
)

// CollateralEngine gates issuance, burning and reserve transfers on
// collateral sufficiency, and drives the time-weighted issuance integrals on
// every balance-affecting operation. Mutators validate first and only then
// re-derive fee period freshness via CheckRollover: a rejected command is
// absent from the event log, so it must leave the period and the integrals
// exactly as it found them.
type CollateralEngine struct {
	reserve   *ledger.ReserveLedger
	synth     *ledger.SynthLedger
	escrow    ledger.EscrowReader // nullable
	oracle    *PriceOracle
	params    *Params
	issuance  *IssuanceTracker
	feePeriod *FeePeriodController

	issuers         map[uuid.UUID]bool
	issuedDebt      map[uuid.UUID]fixed.Fixed
	totalIssuedDebt fixed.Fixed
}

func NewCollateralEngine(
	reserve *ledger.ReserveLedger,
	synth *ledger.SynthLedger,
	escrow ledger.EscrowReader,
	oracle *PriceOracle,
	params *Params,
	issuance *IssuanceTracker,
	feePeriod *FeePeriodController,
) *CollateralEngine {
	return &CollateralEngine{
		reserve:    reserve,
		synth:      synth,
		escrow:     escrow,
		oracle:     oracle,
		params:     params,
		issuance:   issuance,
		feePeriod:  feePeriod,
		issuers:    make(map[uuid.UUID]bool),
		issuedDebt: make(map[uuid.UUID]fixed.Fixed),
	}
}

func (e *CollateralEngine) SetIssuer(account uuid.UUID, allowed bool) {
	if allowed {
		e.issuers[account] = true
	} else {
		delete(e.issuers, account)
	}
}

func (e *CollateralEngine) IsIssuer(account uuid.UUID) bool {
	return e.issuers[account]
}

func (e *CollateralEngine) IssuedDebt(account uuid.UUID) fixed.Fixed {
	return e.issuedDebt[account]
}

func (e *CollateralEngine) TotalIssuedDebt() fixed.Fixed {
	return e.totalIssuedDebt
}

// collateralOf is the account's reserve balance plus any escrowed balance.
func (e *CollateralEngine) collateralOf(account uuid.UUID) (fixed.Fixed, error) {
	bal := e.reserve.BalanceOf(account)
	if e.escrow == nil {
		return bal, nil
	}
	return bal.Add(e.escrow.BalanceOf(account))
}

// MaxIssuable is the synth value the account could have issued in total:
// collateral value at the current price, scaled by the issuance ratio. Zero
// for accounts without issuer capability.
func (e *CollateralEngine) MaxIssuable(account uuid.UUID, now int64) (fixed.Fixed, error) {
	if !e.issuers[account] {
		return fixed.Zero(), nil
	}
	price, err := e.oracle.Price(now)
	if err != nil {
		return fixed.Fixed{}, err
	}
	collateral, err := e.collateralOf(account)
	if err != nil {
		return fixed.Fixed{}, err
	}
	value, err := collateral.Mul(price)
	if err != nil {
		return fixed.Fixed{}, err
	}
	return value.Mul(e.params.IssuanceRatio())
}

// RemainingIssuable is max(0, maxIssuable - issuedDebt).
func (e *CollateralEngine) RemainingIssuable(account uuid.UUID, now int64) (fixed.Fixed, error) {
	max, err := e.MaxIssuable(account, now)
	if err != nil {
		return fixed.Fixed{}, err
	}
	remaining, err := max.Sub(e.issuedDebt[account])
	if err != nil {
		return fixed.Fixed{}, err
	}
	return fixed.Max(remaining, fixed.Zero()), nil
}

// LockedCollateral is the reserve quantity currently backing the account's
// issued debt at the live price. It floats with price and is deliberately not
// capped at the wallet balance: an adverse price move can lock more than the
// account holds.
func (e *CollateralEngine) LockedCollateral(account uuid.UUID, now int64) (fixed.Fixed, error) {
	debt := e.issuedDebt[account]
	if debt.IsZero() {
		return fixed.Zero(), nil
	}
	price, err := e.oracle.Price(now)
	if err != nil {
		return fixed.Fixed{}, err
	}
	unscaled, err := debt.Div(e.params.IssuanceRatio())
	if err != nil {
		return fixed.Fixed{}, err
	}
	return unscaled.Div(price)
}

// AvailableCollateral is max(0, held-including-escrow - locked).
func (e *CollateralEngine) AvailableCollateral(account uuid.UUID, now int64) (fixed.Fixed, error) {
	total, err := e.collateralOf(account)
	if err != nil {
		return fixed.Fixed{}, err
	}
	locked, err := e.LockedCollateral(account, now)
	if err != nil {
		return fixed.Fixed{}, err
	}
	avail, err := total.Sub(locked)
	if err != nil {
		return fixed.Fixed{}, err
	}
	return fixed.Max(avail, fixed.Zero()), nil
}

// Issue mints synths against the account's collateral. The issuance
// integrals roll forward with pre-mutation reserve balances before the mint
// lands. Validations precede every rollover: a rejected command never
// appears in the event log, so it must not move the fee period or the
// integrals either, or replay diverges.
func (e *CollateralEngine) Issue(account uuid.UUID, amount fixed.Fixed, now int64) error {
	if amount.Sign() <= 0 {
		return fmt.Errorf("issue: non-positive amount %s: %w", amount, ErrInvalidState)
	}
	if !e.issuers[account] {
		return fmt.Errorf("issue: account %s lacks issuer capability: %w", account, ErrUnauthorized)
	}
	remaining, err := e.RemainingIssuable(account, now)
	if err != nil {
		return err
	}
	if amount.Cmp(remaining) > 0 {
		return fmt.Errorf("issue %s with remaining issuable %s: %w", amount, remaining, ErrInsufficientCollateral)
	}
	e.feePeriod.CheckRollover(now)
	if err := e.rolloverFor(account, now); err != nil {
		return err
	}
	if err := e.synth.Issue(account, amount); err != nil {
		return err
	}
	newDebt, err := e.issuedDebt[account].Add(amount)
	if err != nil {
		return err
	}
	newTotal, err := e.totalIssuedDebt.Add(amount)
	if err != nil {
		return err
	}
	e.issuedDebt[account] = newDebt
	e.totalIssuedDebt = newTotal
	return nil
}

// Burn destroys synths held by the account and reduces its issued debt.
func (e *CollateralEngine) Burn(account uuid.UUID, amount fixed.Fixed, now int64) error {
	if amount.Sign() <= 0 {
		return fmt.Errorf("burn: non-positive amount %s: %w", amount, ErrInvalidState)
	}
	if _, err := e.oracle.Price(now); err != nil {
		return err
	}
	debt := e.issuedDebt[account]
	if amount.Cmp(debt) > 0 {
		return fmt.Errorf("burn %s exceeds issued debt %s: %w", amount, debt, ledger.ErrInsufficientBalance)
	}
	// The account may have transferred synths away since issuing; checked
	// here so the ledger call below cannot fail after the rollovers.
	if e.synth.BalanceOf(account).Cmp(amount) < 0 {
		return fmt.Errorf("burn %s from synth balance %s: %w",
			amount, e.synth.BalanceOf(account), ledger.ErrInsufficientBalance)
	}
	e.feePeriod.CheckRollover(now)
	if err := e.rolloverFor(account, now); err != nil {
		return err
	}
	if err := e.synth.Burn(account, amount); err != nil {
		return err
	}
	newDebt, err := debt.Sub(amount)
	if err != nil {
		return err
	}
	newTotal, err := e.totalIssuedDebt.Sub(amount)
	if err != nil {
		return err
	}
	e.issuedDebt[account] = newDebt
	e.totalIssuedDebt = newTotal
	return nil
}

// Transfer moves reserve tokens, refusing to release collateral that is
// currently backing the sender's debt.
func (e *CollateralEngine) Transfer(from, to uuid.UUID, amount fixed.Fixed, now int64) error {
	if amount.Sign() < 0 {
		return fmt.Errorf("transfer: negative amount %s: %w", amount, ErrInvalidState)
	}
	if e.reserve.BalanceOf(from).Cmp(amount) < 0 {
		return fmt.Errorf("transfer %s from balance %s: %w",
			amount, e.reserve.BalanceOf(from), ledger.ErrInsufficientBalance)
	}
	if !e.issuedDebt[from].IsZero() {
		avail, err := e.AvailableCollateral(from, now)
		if err != nil {
			return err
		}
		if amount.Cmp(avail) > 0 {
			return fmt.Errorf("transfer %s with available collateral %s: %w", amount, avail, ErrInsufficientCollateral)
		}
	}
	e.feePeriod.CheckRollover(now)
	// Both parties' integrals roll with their pre-transfer balances.
	if err := e.issuance.RolloverAccount(from, e.reserve.BalanceOf(from), now, e.feePeriod); err != nil {
		return err
	}
	if err := e.issuance.RolloverAccount(to, e.reserve.BalanceOf(to), now, e.feePeriod); err != nil {
		return err
	}
	if err := e.issuance.RolloverAggregate(e.reserve.TotalSupply(), now, e.feePeriod); err != nil {
		return err
	}
	return e.reserve.Transfer(from, to, amount)
}

// Endow distributes reserve tokens out of the undistributed pool. Owner
// authorization is the caller's concern.
func (e *CollateralEngine) Endow(to uuid.UUID, amount fixed.Fixed, now int64) error {
	if amount.Sign() < 0 {
		return fmt.Errorf("endow: negative amount %s: %w", amount, ErrInvalidState)
	}
	if e.reserve.Undistributed().Cmp(amount) < 0 {
		return fmt.Errorf("endow %s from pool %s: %w",
			amount, e.reserve.Undistributed(), ledger.ErrInsufficientBalance)
	}
	e.feePeriod.CheckRollover(now)
	if err := e.issuance.RolloverAccount(to, e.reserve.BalanceOf(to), now, e.feePeriod); err != nil {
		return err
	}
	if err := e.issuance.RolloverAggregate(e.reserve.TotalSupply(), now, e.feePeriod); err != nil {
		return err
	}
	return e.reserve.Endow(to, amount)
}

// WithdrawFees pays the account its pro-rata share of the last closed
// period's fee pot. At most one successful withdrawal per account per period.
func (e *CollateralEngine) WithdrawFees(account uuid.UUID, now int64) (fixed.Fixed, error) {
	if e.synth.IsFrozen(account) {
		return fixed.Fixed{}, ledger.ErrFrozen
	}
	// The withdrawal flag survives the upcoming rollover iff the record was
	// already touched inside the period this call lands in. Rejecting before
	// any rollover keeps a repeated withdrawal from moving the period or the
	// integrals.
	if rec, ok := e.issuance.Peek(account); ok && rec.HasWithdrawnFees {
		landingStart := e.feePeriod.StartTime()
		if e.feePeriod.WouldRoll(now) {
			landingStart = now
		}
		if rec.LastModified >= landingStart {
			return fixed.Fixed{}, fmt.Errorf("fees already withdrawn this period: %w", ErrInvalidState)
		}
	}
	e.feePeriod.CheckRollover(now)
	// Rolling forward finalizes the averages and, on the first touch in a
	// new period, clears the withdrawal flag.
	if err := e.rolloverFor(account, now); err != nil {
		return fixed.Fixed{}, err
	}
	owed, err := e.issuance.FeesOwed(account, e.feePeriod)
	if err != nil {
		return fixed.Fixed{}, err
	}
	if owed.Sign() > 0 {
		if err := e.synth.WithdrawFees(account, owed); err != nil {
			return fixed.Fixed{}, err
		}
	}
	e.issuance.Record(account).HasWithdrawnFees = true
	return owed, nil
}

func (e *CollateralEngine) rolloverFor(account uuid.UUID, now int64) error {
	if err := e.issuance.RolloverAccount(account, e.reserve.BalanceOf(account), now, e.feePeriod); err != nil {
		return err
	}
	return e.issuance.RolloverAggregate(e.reserve.TotalSupply(), now, e.feePeriod)
}

// IssuerSnapshot returns a copy of the issuer capability set.
func (e *CollateralEngine) IssuerSnapshot() map[uuid.UUID]bool {
	out := make(map[uuid.UUID]bool, len(e.issuers))
	for k, v := range e.issuers {
		out[k] = v
	}
	return out
}

// DebtSnapshot returns a copy of per-account issued debt plus the total.
func (e *CollateralEngine) DebtSnapshot() (map[uuid.UUID]fixed.Fixed, fixed.Fixed) {
	out := make(map[uuid.UUID]fixed.Fixed, len(e.issuedDebt))
	for k, v := range e.issuedDebt {
		out[k] = v
	}
	return out, e.totalIssuedDebt
}

// Restore overwrites issuer and debt state from a snapshot.
func (e *CollateralEngine) Restore(issuers map[uuid.UUID]bool, debt map[uuid.UUID]fixed.Fixed, totalDebt fixed.Fixed) {
	e.issuers = make(map[uuid.UUID]bool, len(issuers))
	for k, v := range issuers {
		e.issuers[k] = v
	}
	e.issuedDebt = make(map[uuid.UUID]fixed.Fixed, len(debt))
	for k, v := range debt {
		e.issuedDebt[k] = v
	}
	e.totalIssuedDebt = totalDebt
}
