package state

import (
	"fmt"

	"github.com/google/uuid"

	"SynthLedger/internal/fixed"
	"SynthLedger/internal/ledger"
)

const secondsPerDay = int64(86400)

// FuturesParams are the owner-settable limits of the leveraged market.
type FuturesParams struct {
	MaxLeverage      fixed.Fixed
	MinInitialMargin fixed.Fixed
	// MaxMarketValue caps open notional plus pending order value, in quote
	// units.
	MaxMarketValue fixed.Fixed
	// MaxFundingRate is the funding rate magnitude at full skew, per day.
	MaxFundingRate fixed.Fixed
	// MaxMarketSkew normalizes the skew into the funding rate clamp, in
	// base units.
	MaxMarketSkew  fixed.Fixed
	LiquidationFee fixed.Fixed
}

// DefaultFuturesParams matches the reference deployment.
func DefaultFuturesParams() FuturesParams {
	return FuturesParams{
		MaxLeverage:      fixed.FromInt(10),
		MinInitialMargin: fixed.FromInt(100),
		MaxMarketValue:   fixed.FromInt(10_000_000),
		MaxFundingRate:   fixed.MustParse("0.1"),
		MaxMarketSkew:    fixed.FromInt(100_000),
		LiquidationFee:   fixed.FromInt(20),
	}
}

// Position is an open leveraged position. Margin and Size are signed:
// positive for longs, negative for shorts.
type Position struct {
	Margin            fixed.Fixed
	Size              fixed.Fixed
	EntryPrice        fixed.Fixed
	EntryFundingIndex int
}

// Order is a pending intent, priced only at confirmation against a price
// round strictly after submission.
type Order struct {
	Margin         fixed.Fixed
	Leverage       fixed.Fixed
	SubmittedRound int64
}

// AccountStatus is the per-account lifecycle state, derived from the order
// and position stores.
type AccountStatus int32

const (
	StatusNoPosition AccountStatus = iota
	StatusOrderPending
	StatusPositionOpen
)

func (s AccountStatus) String() string {
	switch s {
	case StatusNoPosition:
		return "NO_POSITION"
	case StatusOrderPending:
		return "ORDER_PENDING"
	case StatusPositionOpen:
		return "POSITION_OPEN"
	default:
		return "UNKNOWN"
	}
}

// FuturesMarket is the margin, skew and funding accounting for one leveraged
// market over the reserve asset, margined in synths.
type FuturesMarket struct {
	params FuturesParams
	oracle *PriceOracle
	quote  *ledger.SynthLedger

	positions map[uuid.UUID]*Position
	orders    map[uuid.UUID]*Order

	marketSkew          fixed.Fixed // sum of signed sizes, base units
	marketSize          fixed.Fixed // sum of |size|, base units
	pendingOrderValue   fixed.Fixed // notional of unconfirmed orders, quote units
	entryDebtCorrection fixed.Fixed // sum of (margin - size*entryPrice)

	// fundingSequence accumulates funding per base unit (quote units);
	// positions store the index current at entry.
	fundingSequence       []fixed.Fixed
	fundingLastRecomputed int64
}

func NewFuturesMarket(params FuturesParams, oracle *PriceOracle, quote *ledger.SynthLedger, genesisTime int64) *FuturesMarket {
	return &FuturesMarket{
		params:                params,
		oracle:                oracle,
		quote:                 quote,
		positions:             make(map[uuid.UUID]*Position),
		orders:                make(map[uuid.UUID]*Order),
		fundingSequence:       []fixed.Fixed{fixed.Zero()},
		fundingLastRecomputed: genesisTime,
	}
}

func (m *FuturesMarket) Params() FuturesParams {
	return m.params
}

func (m *FuturesMarket) MarketSkew() fixed.Fixed {
	return m.marketSkew
}

func (m *FuturesMarket) MarketSize() fixed.Fixed {
	return m.marketSize
}

func (m *FuturesMarket) PendingOrderValue() fixed.Fixed {
	return m.pendingOrderValue
}

// Position returns a copy of the account's open position.
func (m *FuturesMarket) Position(account uuid.UUID) (Position, bool) {
	p, ok := m.positions[account]
	if !ok {
		return Position{}, false
	}
	return *p, true
}

// Order returns a copy of the account's pending order.
func (m *FuturesMarket) Order(account uuid.UUID) (Order, bool) {
	o, ok := m.orders[account]
	if !ok {
		return Order{}, false
	}
	return *o, true
}

// Status derives the account lifecycle state. A pending order takes
// precedence over an open position (re-submission).
func (m *FuturesMarket) Status(account uuid.UUID) AccountStatus {
	if _, ok := m.orders[account]; ok {
		return StatusOrderPending
	}
	if _, ok := m.positions[account]; ok {
		return StatusPositionOpen
	}
	return StatusNoPosition
}

// CurrentFundingRate is clamp(skew/maxSkew, -1, 1) * maxFundingRate, per day.
func (m *FuturesMarket) CurrentFundingRate() (fixed.Fixed, error) {
	if m.params.MaxMarketSkew.IsZero() {
		return fixed.Zero(), nil
	}
	prop, err := m.marketSkew.Div(m.params.MaxMarketSkew)
	if err != nil {
		return fixed.Fixed{}, err
	}
	clamped := fixed.Clamp(prop, fixed.One().Neg(), fixed.One())
	return clamped.Mul(m.params.MaxFundingRate)
}

// unrecordedFunding is the funding per base unit accrued since the last
// recorded entry: rate * price * elapsedDays.
func (m *FuturesMarket) unrecordedFunding(now int64, price fixed.Fixed) (fixed.Fixed, error) {
	rate, err := m.CurrentFundingRate()
	if err != nil {
		return fixed.Fixed{}, err
	}
	perUnit, err := rate.Mul(price)
	if err != nil {
		return fixed.Fixed{}, err
	}
	elapsed, err := perUnit.MulInt(now - m.fundingLastRecomputed)
	if err != nil {
		return fixed.Fixed{}, err
	}
	return elapsed.DivInt(secondsPerDay)
}

// RecordFunding appends the accrued funding to the sequence. Called on every
// price round and before any position mutation so entry indices are exact.
func (m *FuturesMarket) RecordFunding(now int64) error {
	price, err := m.oracle.Price(now)
	if err != nil {
		return err
	}
	unrecorded, err := m.unrecordedFunding(now, price)
	if err != nil {
		return err
	}
	last := m.fundingSequence[len(m.fundingSequence)-1]
	next, err := last.Add(unrecorded)
	if err != nil {
		return err
	}
	m.fundingSequence = append(m.fundingSequence, next)
	m.fundingLastRecomputed = now
	return nil
}

// netFundingPerUnit is the funding accrued per base unit since the given
// sequence index, including the still-unrecorded tail.
func (m *FuturesMarket) netFundingPerUnit(startIndex int, now int64, price fixed.Fixed) (fixed.Fixed, error) {
	unrecorded, err := m.unrecordedFunding(now, price)
	if err != nil {
		return fixed.Fixed{}, err
	}
	latest, err := m.fundingSequence[len(m.fundingSequence)-1].Add(unrecorded)
	if err != nil {
		return fixed.Fixed{}, err
	}
	return latest.Sub(m.fundingSequence[startIndex])
}

// ProfitLoss is size * (currentPrice - entryPrice).
func (m *FuturesMarket) ProfitLoss(account uuid.UUID, now int64) (fixed.Fixed, error) {
	pos, ok := m.positions[account]
	if !ok {
		return fixed.Zero(), nil
	}
	price, err := m.oracle.Price(now)
	if err != nil {
		return fixed.Fixed{}, err
	}
	move, err := price.Sub(pos.EntryPrice)
	if err != nil {
		return fixed.Fixed{}, err
	}
	return pos.Size.Mul(move)
}

// AccruedFunding is size * funding-per-unit since entry.
func (m *FuturesMarket) AccruedFunding(account uuid.UUID, now int64) (fixed.Fixed, error) {
	pos, ok := m.positions[account]
	if !ok {
		return fixed.Zero(), nil
	}
	price, err := m.oracle.Price(now)
	if err != nil {
		return fixed.Fixed{}, err
	}
	perUnit, err := m.netFundingPerUnit(pos.EntryFundingIndex, now, price)
	if err != nil {
		return fixed.Fixed{}, err
	}
	return pos.Size.Mul(perUnit)
}

// RemainingMargin is margin + profitLoss + funding, clamped to zero when its
// sign differs from the stored margin's sign: a flipped sign means
// liquidation should already have happened.
func (m *FuturesMarket) RemainingMargin(account uuid.UUID, now int64) (fixed.Fixed, error) {
	pos, ok := m.positions[account]
	if !ok {
		return fixed.Zero(), nil
	}
	pnl, err := m.ProfitLoss(account, now)
	if err != nil {
		return fixed.Fixed{}, err
	}
	funding, err := m.AccruedFunding(account, now)
	if err != nil {
		return fixed.Fixed{}, err
	}
	remaining, err := pos.Margin.Add(pnl)
	if err != nil {
		return fixed.Fixed{}, err
	}
	remaining, err = remaining.Add(funding)
	if err != nil {
		return fixed.Fixed{}, err
	}
	if remaining.Sign() != 0 && remaining.Sign() != pos.Margin.Sign() {
		return fixed.Zero(), nil
	}
	return remaining, nil
}

// LiquidationPrice solves remaining margin == liquidation fee for the price.
// With funding included, the funding-per-unit term shifts the solution: the
// signed division by size makes longs add funding and shorts subtract it.
func (m *FuturesMarket) LiquidationPrice(account uuid.UUID, includeFunding bool, now int64) (fixed.Fixed, error) {
	pos, ok := m.positions[account]
	if !ok || pos.Size.IsZero() {
		return fixed.Zero(), nil
	}
	shortfall, err := m.params.LiquidationFee.Sub(pos.Margin)
	if err != nil {
		return fixed.Fixed{}, err
	}
	perUnit, err := shortfall.Div(pos.Size)
	if err != nil {
		return fixed.Fixed{}, err
	}
	liq, err := pos.EntryPrice.Add(perUnit)
	if err != nil {
		return fixed.Fixed{}, err
	}
	if includeFunding {
		price, err := m.oracle.Price(now)
		if err != nil {
			return fixed.Fixed{}, err
		}
		fundingPerUnit, err := m.netFundingPerUnit(pos.EntryFundingIndex, now, price)
		if err != nil {
			return fixed.Fixed{}, err
		}
		liq, err = liq.Sub(fundingPerUnit)
		if err != nil {
			return fixed.Fixed{}, err
		}
	}
	return fixed.Max(liq, fixed.Zero()), nil
}

// MarketDebt values the market's claim on the system at the current price:
// skew * price + sum(margin - size*entryPrice).
func (m *FuturesMarket) MarketDebt(now int64) (fixed.Fixed, error) {
	price, err := m.oracle.Price(now)
	if err != nil {
		return fixed.Fixed{}, err
	}
	skewValue, err := m.marketSkew.Mul(price)
	if err != nil {
		return fixed.Fixed{}, err
	}
	return skewValue.Add(m.entryDebtCorrection)
}

func orderNotional(o *Order) (fixed.Fixed, error) {
	n, err := o.Margin.Mul(o.Leverage)
	if err != nil {
		return fixed.Fixed{}, err
	}
	return n.Abs(), nil
}

// SubmitOrder stages an intent at the current price round, replacing any
// prior pending order. Margin is signed (positive long, negative short); a
// zero margin is a close order and skips the minimum-margin check.
func (m *FuturesMarket) SubmitOrder(account uuid.UUID, margin, leverage fixed.Fixed, now int64) error {
	if leverage.Sign() <= 0 || leverage.Cmp(m.params.MaxLeverage) > 0 {
		return fmt.Errorf("submit order: leverage %s outside (0, %s]: %w",
			leverage, m.params.MaxLeverage, ErrExceedsCap)
	}
	if !margin.IsZero() && margin.Abs().Cmp(m.params.MinInitialMargin) < 0 {
		return fmt.Errorf("submit order: |margin| %s below minimum %s: %w",
			margin.Abs(), m.params.MinInitialMargin, ErrInsufficientCollateral)
	}
	if m.quote.BalanceOf(account).Cmp(margin.Abs()) < 0 {
		return fmt.Errorf("submit order: quote balance %s covers margin %s: %w",
			m.quote.BalanceOf(account), margin.Abs(), ledger.ErrInsufficientBalance)
	}
	price, err := m.oracle.Price(now)
	if err != nil {
		return err
	}
	order := &Order{Margin: margin, Leverage: leverage, SubmittedRound: m.oracle.RoundID()}
	notional, err := orderNotional(order)
	if err != nil {
		return err
	}
	pendingAfter := m.pendingOrderValue
	if prior, ok := m.orders[account]; ok {
		priorNotional, err := orderNotional(prior)
		if err != nil {
			return err
		}
		pendingAfter, err = pendingAfter.Sub(priorNotional)
		if err != nil {
			return err
		}
	}
	pendingAfter, err = pendingAfter.Add(notional)
	if err != nil {
		return err
	}
	openNotional, err := m.marketSize.Mul(price)
	if err != nil {
		return err
	}
	hypothetical, err := openNotional.Add(pendingAfter)
	if err != nil {
		return err
	}
	if hypothetical.Cmp(m.params.MaxMarketValue) > 0 {
		return fmt.Errorf("submit order: market value %s exceeds cap %s: %w",
			hypothetical, m.params.MaxMarketValue, ErrExceedsCap)
	}
	m.orders[account] = order
	m.pendingOrderValue = pendingAfter
	return nil
}

// ConfirmOrder settles the pending order at the first price round after
// submission: size = margin * leverage / price. Aggregates are updated by
// removing the old position's contribution and adding the new one.
func (m *FuturesMarket) ConfirmOrder(account uuid.UUID, now int64) error {
	order, ok := m.orders[account]
	if !ok {
		return fmt.Errorf("confirm order: no pending order: %w", ErrInvalidState)
	}
	price, err := m.oracle.Price(now)
	if err != nil {
		return err
	}
	if m.oracle.RoundID() <= order.SubmittedRound {
		return fmt.Errorf("confirm order: no price round after submission round %d: %w",
			order.SubmittedRound, ErrInvalidState)
	}
	if err := m.RecordFunding(now); err != nil {
		return err
	}
	notionalSigned, err := order.Margin.Mul(order.Leverage)
	if err != nil {
		return err
	}
	newSize, err := notionalSigned.Div(price)
	if err != nil {
		return err
	}

	var oldSize, oldCorrection fixed.Fixed
	if old, found := m.positions[account]; found {
		oldSize = old.Size
		oldEntryValue, err := old.Size.Mul(old.EntryPrice)
		if err != nil {
			return err
		}
		oldCorrection, err = old.Margin.Sub(oldEntryValue)
		if err != nil {
			return err
		}
	}

	skew, err := m.marketSkew.Sub(oldSize)
	if err != nil {
		return err
	}
	skew, err = skew.Add(newSize)
	if err != nil {
		return err
	}
	size, err := m.marketSize.Sub(oldSize.Abs())
	if err != nil {
		return err
	}
	size, err = size.Add(newSize.Abs())
	if err != nil {
		return err
	}
	newEntryValue, err := newSize.Mul(price)
	if err != nil {
		return err
	}
	newCorrection, err := order.Margin.Sub(newEntryValue)
	if err != nil {
		return err
	}
	correction, err := m.entryDebtCorrection.Sub(oldCorrection)
	if err != nil {
		return err
	}
	correction, err = correction.Add(newCorrection)
	if err != nil {
		return err
	}
	notional, err := orderNotional(order)
	if err != nil {
		return err
	}
	pending, err := m.pendingOrderValue.Sub(notional)
	if err != nil {
		return err
	}

	m.marketSkew = skew
	m.marketSize = size
	m.entryDebtCorrection = correction
	m.pendingOrderValue = pending
	delete(m.orders, account)

	if newSize.IsZero() && order.Margin.IsZero() {
		delete(m.positions, account)
		return nil
	}
	m.positions[account] = &Position{
		Margin:            order.Margin,
		Size:              newSize,
		EntryPrice:        price,
		EntryFundingIndex: len(m.fundingSequence) - 1,
	}
	return nil
}

// CancelOrder discards the pending order. The open position, if any, is
// untouched.
func (m *FuturesMarket) CancelOrder(account uuid.UUID) error {
	order, ok := m.orders[account]
	if !ok {
		return fmt.Errorf("cancel order: no pending order: %w", ErrInvalidState)
	}
	notional, err := orderNotional(order)
	if err != nil {
		return err
	}
	pending, err := m.pendingOrderValue.Sub(notional)
	if err != nil {
		return err
	}
	m.pendingOrderValue = pending
	delete(m.orders, account)
	return nil
}

// FuturesSnapshot is the serializable market state.
type FuturesSnapshot struct {
	Positions             map[uuid.UUID]Position
	Orders                map[uuid.UUID]Order
	MarketSkew            fixed.Fixed
	MarketSize            fixed.Fixed
	PendingOrderValue     fixed.Fixed
	EntryDebtCorrection   fixed.Fixed
	FundingSequence       []fixed.Fixed
	FundingLastRecomputed int64
}

// Snapshot returns a deep copy of the market state.
func (m *FuturesMarket) Snapshot() FuturesSnapshot {
	snap := FuturesSnapshot{
		Positions:             make(map[uuid.UUID]Position, len(m.positions)),
		Orders:                make(map[uuid.UUID]Order, len(m.orders)),
		MarketSkew:            m.marketSkew,
		MarketSize:            m.marketSize,
		PendingOrderValue:     m.pendingOrderValue,
		EntryDebtCorrection:   m.entryDebtCorrection,
		FundingSequence:       make([]fixed.Fixed, len(m.fundingSequence)),
		FundingLastRecomputed: m.fundingLastRecomputed,
	}
	for k, v := range m.positions {
		snap.Positions[k] = *v
	}
	for k, v := range m.orders {
		snap.Orders[k] = *v
	}
	copy(snap.FundingSequence, m.fundingSequence)
	return snap
}

// Restore overwrites market state from a snapshot.
func (m *FuturesMarket) Restore(snap FuturesSnapshot) {
	m.positions = make(map[uuid.UUID]*Position, len(snap.Positions))
	for k, v := range snap.Positions {
		pos := v
		m.positions[k] = &pos
	}
	m.orders = make(map[uuid.UUID]*Order, len(snap.Orders))
	for k, v := range snap.Orders {
		o := v
		m.orders[k] = &o
	}
	m.marketSkew = snap.MarketSkew
	m.marketSize = snap.MarketSize
	m.pendingOrderValue = snap.PendingOrderValue
	m.entryDebtCorrection = snap.EntryDebtCorrection
	m.fundingSequence = make([]fixed.Fixed, len(snap.FundingSequence))
	copy(m.fundingSequence, snap.FundingSequence)
	if len(m.fundingSequence) == 0 {
		m.fundingSequence = []fixed.Fixed{fixed.Zero()}
	}
	m.fundingLastRecomputed = snap.FundingLastRecomputed
}
