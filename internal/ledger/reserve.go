package ledger

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"SynthLedger/internal/fixed"
)

// ErrInsufficientBalance is returned when a debit exceeds the account's
// balance. Every such failure aborts the whole triggering command.
var ErrInsufficientBalance = errors.New("ledger: insufficient balance")

// ReserveLedger holds reserve-token balances. The full supply exists from
// construction; tokens not yet endowed sit in the undistributed pool.
// Not thread-safe; only accessed from the single-threaded core.
type ReserveLedger struct {
	balances      map[uuid.UUID]fixed.Fixed
	undistributed fixed.Fixed
	totalSupply   fixed.Fixed
}

func NewReserveLedger(totalSupply fixed.Fixed) *ReserveLedger {
	return &ReserveLedger{
		balances:      make(map[uuid.UUID]fixed.Fixed),
		undistributed: totalSupply,
		totalSupply:   totalSupply,
	}
}

// BalanceOf returns the account's balance (zero for unknown accounts).
func (rl *ReserveLedger) BalanceOf(account uuid.UUID) fixed.Fixed {
	return rl.balances[account]
}

// TotalSupply returns the fixed total supply.
func (rl *ReserveLedger) TotalSupply() fixed.Fixed {
	return rl.totalSupply
}

// Undistributed returns the not-yet-endowed pool.
func (rl *ReserveLedger) Undistributed() fixed.Fixed {
	return rl.undistributed
}

// Endow moves tokens from the undistributed pool to an account.
func (rl *ReserveLedger) Endow(to uuid.UUID, amount fixed.Fixed) error {
	if amount.Sign() < 0 {
		return fmt.Errorf("endow: negative amount %s", amount)
	}
	if rl.undistributed.Cmp(amount) < 0 {
		return fmt.Errorf("endow %s from pool %s: %w", amount, rl.undistributed, ErrInsufficientBalance)
	}
	newPool, err := rl.undistributed.Sub(amount)
	if err != nil {
		return err
	}
	newBal, err := rl.balances[to].Add(amount)
	if err != nil {
		return err
	}
	rl.undistributed = newPool
	rl.balances[to] = newBal
	return nil
}

// Transfer moves tokens between accounts. Collateral locking is enforced by
// the caller (the collateralization engine), not here.
func (rl *ReserveLedger) Transfer(from, to uuid.UUID, amount fixed.Fixed) error {
	if amount.Sign() < 0 {
		return fmt.Errorf("transfer: negative amount %s", amount)
	}
	if rl.balances[from].Cmp(amount) < 0 {
		return fmt.Errorf("transfer %s from balance %s: %w", amount, rl.balances[from], ErrInsufficientBalance)
	}
	newFrom, err := rl.balances[from].Sub(amount)
	if err != nil {
		return err
	}
	newTo, err := rl.balances[to].Add(amount)
	if err != nil {
		return err
	}
	rl.balances[from] = newFrom
	rl.balances[to] = newTo
	return nil
}

// Snapshot returns a copy of all balances (for state hashing and persistence).
func (rl *ReserveLedger) Snapshot() map[uuid.UUID]fixed.Fixed {
	out := make(map[uuid.UUID]fixed.Fixed, len(rl.balances))
	for k, v := range rl.balances {
		out[k] = v
	}
	return out
}

// Restore overwrites ledger state from a snapshot.
func (rl *ReserveLedger) Restore(balances map[uuid.UUID]fixed.Fixed, undistributed fixed.Fixed) {
	rl.balances = make(map[uuid.UUID]fixed.Fixed, len(balances))
	for k, v := range balances {
		rl.balances[k] = v
	}
	rl.undistributed = undistributed
}
