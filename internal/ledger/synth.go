package ledger

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"SynthLedger/internal/fixed"
)

// ErrFrozen is returned when a frozen account attempts a gated operation.
var ErrFrozen = errors.New("ledger: account is frozen")

// SynthLedger is the synthetic-token fee ledger. Transfers charge
// fee = value * transferFeeRate / UNIT on top of the transferred value;
// fees accrue to the pool, so total supply is conserved across transfers:
// totalSupply == sum(balances) + feePool.
// Not thread-safe; only accessed from the single-threaded core.
type SynthLedger struct {
	balances        map[uuid.UUID]fixed.Fixed
	frozen          map[uuid.UUID]bool
	totalSupply     fixed.Fixed
	feePool         fixed.Fixed
	transferFeeRate fixed.Fixed
}

func NewSynthLedger(transferFeeRate fixed.Fixed) *SynthLedger {
	return &SynthLedger{
		balances:        make(map[uuid.UUID]fixed.Fixed),
		frozen:          make(map[uuid.UUID]bool),
		transferFeeRate: transferFeeRate,
	}
}

func (sl *SynthLedger) BalanceOf(account uuid.UUID) fixed.Fixed {
	return sl.balances[account]
}

func (sl *SynthLedger) TotalSupply() fixed.Fixed {
	return sl.totalSupply
}

func (sl *SynthLedger) FeePool() fixed.Fixed {
	return sl.feePool
}

func (sl *SynthLedger) TransferFeeRate() fixed.Fixed {
	return sl.transferFeeRate
}

// SetTransferFeeRate updates the fee rate. Bounds are the caller's concern.
func (sl *SynthLedger) SetTransferFeeRate(rate fixed.Fixed) {
	sl.transferFeeRate = rate
}

func (sl *SynthLedger) IsFrozen(account uuid.UUID) bool {
	return sl.frozen[account]
}

func (sl *SynthLedger) SetFrozen(account uuid.UUID, frozen bool) {
	if frozen {
		sl.frozen[account] = true
	} else {
		delete(sl.frozen, account)
	}
}

// TransferFeeIncurred returns the fee charged on top of a transfer of value.
func (sl *SynthLedger) TransferFeeIncurred(value fixed.Fixed) (fixed.Fixed, error) {
	return value.Mul(sl.transferFeeRate)
}

// TransferPlusFee returns the total debit for a transfer of value.
func (sl *SynthLedger) TransferPlusFee(value fixed.Fixed) (fixed.Fixed, error) {
	fee, err := sl.TransferFeeIncurred(value)
	if err != nil {
		return fixed.Fixed{}, err
	}
	return value.Add(fee)
}

// ValidateTransfer runs every check a transfer can fail on without mutating.
// Callers that must do other bookkeeping before the transfer lands (fee
// period rollover) validate first so a rejection leaves no trace.
func (sl *SynthLedger) ValidateTransfer(from, to uuid.UUID, value fixed.Fixed) error {
	if value.Sign() < 0 {
		return fmt.Errorf("synth transfer: negative value %s", value)
	}
	if sl.frozen[from] || sl.frozen[to] {
		return ErrFrozen
	}
	total, err := sl.TransferPlusFee(value)
	if err != nil {
		return err
	}
	if sl.balances[from].Cmp(total) < 0 {
		return fmt.Errorf("synth transfer %s (with fee) from balance %s: %w",
			total, sl.balances[from], ErrInsufficientBalance)
	}
	return nil
}

// Transfer moves value to the recipient; the sender pays value plus fee and
// the fee accrues to the pool.
func (sl *SynthLedger) Transfer(from, to uuid.UUID, value fixed.Fixed) error {
	if err := sl.ValidateTransfer(from, to, value); err != nil {
		return err
	}
	total, err := sl.TransferPlusFee(value)
	if err != nil {
		return err
	}
	fee, err := sl.TransferFeeIncurred(value)
	if err != nil {
		return err
	}
	newFrom, err := sl.balances[from].Sub(total)
	if err != nil {
		return err
	}
	newTo, err := sl.balances[to].Add(value)
	if err != nil {
		return err
	}
	newPool, err := sl.feePool.Add(fee)
	if err != nil {
		return err
	}
	sl.balances[from] = newFrom
	sl.balances[to] = newTo
	sl.feePool = newPool
	return nil
}

// Issue mints synths to the account. Only the collateralization engine calls
// this, after its own checks.
func (sl *SynthLedger) Issue(account uuid.UUID, amount fixed.Fixed) error {
	if amount.Sign() < 0 {
		return fmt.Errorf("issue: negative amount %s", amount)
	}
	newBal, err := sl.balances[account].Add(amount)
	if err != nil {
		return err
	}
	newSupply, err := sl.totalSupply.Add(amount)
	if err != nil {
		return err
	}
	sl.balances[account] = newBal
	sl.totalSupply = newSupply
	return nil
}

// Burn destroys synths held by the account.
func (sl *SynthLedger) Burn(account uuid.UUID, amount fixed.Fixed) error {
	if amount.Sign() < 0 {
		return fmt.Errorf("burn: negative amount %s", amount)
	}
	if sl.balances[account].Cmp(amount) < 0 {
		return fmt.Errorf("burn %s from balance %s: %w", amount, sl.balances[account], ErrInsufficientBalance)
	}
	newBal, err := sl.balances[account].Sub(amount)
	if err != nil {
		return err
	}
	newSupply, err := sl.totalSupply.Sub(amount)
	if err != nil {
		return err
	}
	sl.balances[account] = newBal
	sl.totalSupply = newSupply
	return nil
}

// WithdrawFees pays amount out of the fee pool to the account.
func (sl *SynthLedger) WithdrawFees(account uuid.UUID, amount fixed.Fixed) error {
	if amount.Sign() < 0 {
		return fmt.Errorf("withdraw fees: negative amount %s", amount)
	}
	if sl.feePool.Cmp(amount) < 0 {
		return fmt.Errorf("withdraw %s from fee pool %s: %w", amount, sl.feePool, ErrInsufficientBalance)
	}
	newPool, err := sl.feePool.Sub(amount)
	if err != nil {
		return err
	}
	newBal, err := sl.balances[account].Add(amount)
	if err != nil {
		return err
	}
	sl.feePool = newPool
	sl.balances[account] = newBal
	return nil
}

// Snapshot returns copies of balances and frozen flags.
func (sl *SynthLedger) Snapshot() (map[uuid.UUID]fixed.Fixed, map[uuid.UUID]bool) {
	bals := make(map[uuid.UUID]fixed.Fixed, len(sl.balances))
	for k, v := range sl.balances {
		bals[k] = v
	}
	frz := make(map[uuid.UUID]bool, len(sl.frozen))
	for k, v := range sl.frozen {
		frz[k] = v
	}
	return bals, frz
}

// Restore overwrites ledger state from a snapshot.
func (sl *SynthLedger) Restore(
	balances map[uuid.UUID]fixed.Fixed,
	frozen map[uuid.UUID]bool,
	totalSupply, feePool, transferFeeRate fixed.Fixed,
) {
	sl.balances = make(map[uuid.UUID]fixed.Fixed, len(balances))
	for k, v := range balances {
		sl.balances[k] = v
	}
	sl.frozen = make(map[uuid.UUID]bool, len(frozen))
	for k, v := range frozen {
		sl.frozen[k] = v
	}
	sl.totalSupply = totalSupply
	sl.feePool = feePool
	sl.transferFeeRate = transferFeeRate
}
