package query

import (
	"SynthLedger/internal/fixed"
)

// deriveAccount fills the query-time fields of an account response from the
// projected price and issuance ratio. A zero price or ratio (pre-genesis
// oracle, issuance disabled) leaves the derived fields zero rather than
// erroring the whole query.
func deriveAccount(resp *AccountResponse, price, ratio fixed.Fixed) {
	if price.Sign() <= 0 || ratio.Sign() <= 0 {
		resp.TransferableReserve = resp.ReserveBalance
		return
	}

	collateralValue, err := resp.ReserveBalance.Mul(price)
	if err != nil {
		return
	}
	maxIssuable, err := collateralValue.Mul(ratio)
	if err != nil {
		return
	}
	resp.MaxIssuable = maxIssuable

	if remaining, err := maxIssuable.Sub(resp.IssuedDebt); err == nil {
		resp.RemainingIssuable = fixed.Max(remaining, fixed.Zero())
	}

	// locked = debt / (ratio * price). Deliberately not capped at the
	// holding: an adverse price move can lock more than the account holds,
	// and the served figure must match the core's collateral engine.
	lockRate, err := ratio.Mul(price)
	if err != nil || lockRate.Sign() <= 0 {
		return
	}
	locked, err := resp.IssuedDebt.Div(lockRate)
	if err != nil {
		return
	}
	resp.LockedReserve = locked

	if free, err := resp.ReserveBalance.Sub(locked); err == nil {
		resp.TransferableReserve = fixed.Max(free, fixed.Zero())
	}
}

// derivePosition fills the query-time marks of a position response.
// Funding accrual is excluded; liquidation price is the funding-free bound.
func derivePosition(resp *PositionResponse, price, liquidationFee fixed.Fixed) {
	if resp.Size.IsZero() || price.Sign() <= 0 {
		return
	}

	notional, err := resp.Size.Abs().Mul(price)
	if err != nil {
		return
	}
	resp.Notional = notional

	if move, err := price.Sub(resp.EntryPrice); err == nil {
		if pnl, err := move.Mul(resp.Size); err == nil {
			resp.ProfitLoss = pnl
		}
	}

	if resp.Margin.Sign() > 0 {
		if lev, err := notional.Div(resp.Margin); err == nil {
			resp.Leverage = lev
		}
	}

	// entry + (fee - margin) / size: the price at which remaining margin
	// hits the liquidation fee.
	shortfall, err := liquidationFee.Sub(resp.Margin)
	if err != nil {
		return
	}
	perUnit, err := shortfall.Div(resp.Size)
	if err != nil {
		return
	}
	if liq, err := resp.EntryPrice.Add(perUnit); err == nil {
		resp.LiquidationPrice = fixed.Max(liq, fixed.Zero())
	}
}
