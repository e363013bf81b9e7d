package ledger

import (
	"fmt"

	"github.com/google/uuid"

	"SynthLedger/internal/fixed"
)

// EscrowReader is the optional escrow collaborator. When present, escrowed
// balances count toward collateral calculations.
type EscrowReader interface {
	BalanceOf(account uuid.UUID) fixed.Fixed
}

// Escrow is a minimal in-memory escrow ledger: vested-but-locked reserve
// tokens attributed to accounts. The vesting schedule itself is out of
// scope; only the attributed balance matters to the collateral engine.
type Escrow struct {
	balances map[uuid.UUID]fixed.Fixed
	total    fixed.Fixed
}

func NewEscrow() *Escrow {
	return &Escrow{balances: make(map[uuid.UUID]fixed.Fixed)}
}

func (e *Escrow) BalanceOf(account uuid.UUID) fixed.Fixed {
	return e.balances[account]
}

// TotalEscrowed is the sum of all attributed balances.
func (e *Escrow) TotalEscrowed() fixed.Fixed {
	return e.total
}

// Credit attributes escrowed tokens to an account.
func (e *Escrow) Credit(account uuid.UUID, amount fixed.Fixed) error {
	if amount.Sign() <= 0 {
		return fmt.Errorf("escrow credit: non-positive amount %s", amount)
	}
	newBal, err := e.balances[account].Add(amount)
	if err != nil {
		return err
	}
	newTotal, err := e.total.Add(amount)
	if err != nil {
		return err
	}
	e.balances[account] = newBal
	e.total = newTotal
	return nil
}

// Snapshot returns a copy of escrowed balances.
func (e *Escrow) Snapshot() map[uuid.UUID]fixed.Fixed {
	out := make(map[uuid.UUID]fixed.Fixed, len(e.balances))
	for k, v := range e.balances {
		out[k] = v
	}
	return out
}

// Restore overwrites escrow state from a snapshot.
func (e *Escrow) Restore(balances map[uuid.UUID]fixed.Fixed) error {
	e.balances = make(map[uuid.UUID]fixed.Fixed, len(balances))
	total := fixed.Zero()
	for k, v := range balances {
		e.balances[k] = v
		sum, err := total.Add(v)
		if err != nil {
			return err
		}
		total = sum
	}
	e.total = total
	return nil
}
