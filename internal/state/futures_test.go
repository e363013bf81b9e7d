package state_test

import (
	"errors"
	"testing"

	"github.com/google/uuid"

	"SynthLedger/internal/fixed"
	"SynthLedger/internal/ledger"
	"SynthLedger/internal/state"
)

type futuresFixture struct {
	market *state.FuturesMarket
	oracle *state.PriceOracle
	quote  *ledger.SynthLedger
	round  int64
	now    int64
}

func newFuturesFixture(t *testing.T) *futuresFixture {
	t.Helper()
	params := state.DefaultParams()
	oracle := state.NewPriceOracle(params)
	quote := ledger.NewSynthLedger(fixed.Zero())
	market := state.NewFuturesMarket(state.DefaultFuturesParams(), oracle, quote, genesis)
	return &futuresFixture{market: market, oracle: oracle, quote: quote, now: genesis}
}

// pushRound advances the oracle one round at the fixture clock.
func (f *futuresFixture) pushRound(t *testing.T, price string) {
	t.Helper()
	f.round++
	if err := f.oracle.Update(fixed.MustParse(price), f.round, f.now, f.now); err != nil {
		t.Fatal(err)
	}
}

func (f *futuresFixture) fundTrader(t *testing.T, account uuid.UUID, amount int64) {
	t.Helper()
	if err := f.quote.Issue(account, fixed.FromInt(amount)); err != nil {
		t.Fatal(err)
	}
}

// ============================================================================
// Test: order lifecycle
// ============================================================================

func TestFutures_SubmitConfirmScenario(t *testing.T) {
	f := newFuturesFixture(t)
	trader := uuid.New()
	f.fundTrader(t, trader, 1000)

	// Rounds 1..5, then submit at round 5
	for i := 0; i < 5; i++ {
		f.pushRound(t, "100")
	}
	if err := f.market.SubmitOrder(trader, fixed.FromInt(1000), fixed.FromInt(10), f.now); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if got := f.market.Status(trader); got != state.StatusOrderPending {
		t.Errorf("status = %s, want ORDER_PENDING", got)
	}

	// Confirming in the submission round must fail: no new round observed
	if err := f.market.ConfirmOrder(trader, f.now); !errors.Is(err, state.ErrInvalidState) {
		t.Fatalf("confirm at round 5: got %v, want ErrInvalidState", err)
	}

	f.pushRound(t, "100") // round 6
	if err := f.market.ConfirmOrder(trader, f.now); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	pos, ok := f.market.Position(trader)
	if !ok {
		t.Fatal("expected open position")
	}
	// size = margin * leverage / price = 1000*10/100 = 100
	if !pos.Size.Equal(fixed.FromInt(100)) {
		t.Errorf("size = %s, want 100", pos.Size)
	}
	if !pos.EntryPrice.Equal(fixed.FromInt(100)) {
		t.Errorf("entry price = %s, want 100", pos.EntryPrice)
	}
	if got := f.market.Status(trader); got != state.StatusPositionOpen {
		t.Errorf("status = %s, want POSITION_OPEN", got)
	}
	if !f.market.MarketSkew().Equal(fixed.FromInt(100)) {
		t.Errorf("skew = %s, want 100", f.market.MarketSkew())
	}
	if !f.market.MarketSize().Equal(fixed.FromInt(100)) {
		t.Errorf("size = %s, want 100", f.market.MarketSize())
	}
	if !f.market.PendingOrderValue().IsZero() {
		t.Errorf("pending order value = %s, want 0", f.market.PendingOrderValue())
	}
}

func TestFutures_SubmitValidation(t *testing.T) {
	f := newFuturesFixture(t)
	trader := uuid.New()
	f.fundTrader(t, trader, 10_000)
	f.pushRound(t, "100")

	// Leverage over the cap
	err := f.market.SubmitOrder(trader, fixed.FromInt(1000), fixed.FromInt(11), f.now)
	if !errors.Is(err, state.ErrExceedsCap) {
		t.Errorf("leverage: got %v, want ErrExceedsCap", err)
	}
	// Margin below the minimum
	err = f.market.SubmitOrder(trader, fixed.FromInt(99), fixed.FromInt(2), f.now)
	if !errors.Is(err, state.ErrInsufficientCollateral) {
		t.Errorf("min margin: got %v, want ErrInsufficientCollateral", err)
	}
	// Quote balance does not cover the margin
	err = f.market.SubmitOrder(trader, fixed.FromInt(10_001), fixed.FromInt(2), f.now)
	if !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Errorf("balance: got %v, want ErrInsufficientBalance", err)
	}
	// Shorts post negative margin; |margin| is what must be covered
	if err := f.market.SubmitOrder(trader, fixed.FromInt(-1000), fixed.FromInt(10), f.now); err != nil {
		t.Errorf("short submit: %v", err)
	}
}

func TestFutures_MarketValueCap(t *testing.T) {
	f := newFuturesFixture(t)
	trader := uuid.New()
	f.fundTrader(t, trader, 2_000_000)
	f.pushRound(t, "100")

	// 1.5M * 10 = 15M notional > 10M cap
	err := f.market.SubmitOrder(trader, fixed.FromInt(1_500_000), fixed.FromInt(10), f.now)
	if !errors.Is(err, state.ErrExceedsCap) {
		t.Errorf("got %v, want ErrExceedsCap", err)
	}
	// Replacing a pending order swaps its contribution instead of stacking
	if err := f.market.SubmitOrder(trader, fixed.FromInt(900_000), fixed.FromInt(10), f.now); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if err := f.market.SubmitOrder(trader, fixed.FromInt(1_000_000), fixed.FromInt(10), f.now); err != nil {
		t.Errorf("replacement submit: %v", err)
	}
	if !f.market.PendingOrderValue().Equal(fixed.FromInt(10_000_000)) {
		t.Errorf("pending value = %s, want 10000000", f.market.PendingOrderValue())
	}
}

func TestFutures_CancelOrder(t *testing.T) {
	f := newFuturesFixture(t)
	trader := uuid.New()
	f.fundTrader(t, trader, 1000)
	f.pushRound(t, "100")

	if err := f.market.CancelOrder(trader); !errors.Is(err, state.ErrInvalidState) {
		t.Errorf("cancel without order: got %v, want ErrInvalidState", err)
	}
	if err := f.market.SubmitOrder(trader, fixed.FromInt(1000), fixed.FromInt(5), f.now); err != nil {
		t.Fatal(err)
	}
	if err := f.market.CancelOrder(trader); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if !f.market.PendingOrderValue().IsZero() {
		t.Errorf("pending value = %s, want 0", f.market.PendingOrderValue())
	}
	if got := f.market.Status(trader); got != state.StatusNoPosition {
		t.Errorf("status = %s, want NO_POSITION", got)
	}
}

func TestFutures_CloseOrderRemovesPosition(t *testing.T) {
	f := newFuturesFixture(t)
	trader := uuid.New()
	f.fundTrader(t, trader, 1000)
	f.pushRound(t, "100")

	if err := f.market.SubmitOrder(trader, fixed.FromInt(1000), fixed.FromInt(10), f.now); err != nil {
		t.Fatal(err)
	}
	f.pushRound(t, "100")
	if err := f.market.ConfirmOrder(trader, f.now); err != nil {
		t.Fatal(err)
	}

	// Zero-margin order closes the position at the next round
	if err := f.market.SubmitOrder(trader, fixed.Zero(), fixed.FromInt(1), f.now); err != nil {
		t.Fatalf("close submit: %v", err)
	}
	f.pushRound(t, "110")
	if err := f.market.ConfirmOrder(trader, f.now); err != nil {
		t.Fatalf("close confirm: %v", err)
	}
	if got := f.market.Status(trader); got != state.StatusNoPosition {
		t.Errorf("status = %s, want NO_POSITION", got)
	}
	if !f.market.MarketSkew().IsZero() || !f.market.MarketSize().IsZero() {
		t.Errorf("skew=%s size=%s, want both 0", f.market.MarketSkew(), f.market.MarketSize())
	}
}

// ============================================================================
// Test: derived metrics
// ============================================================================

func openPosition(t *testing.T, f *futuresFixture, trader uuid.UUID, margin, leverage int64, price string) {
	t.Helper()
	f.pushRound(t, price)
	if err := f.market.SubmitOrder(trader, fixed.FromInt(margin), fixed.FromInt(leverage), f.now); err != nil {
		t.Fatal(err)
	}
	f.pushRound(t, price)
	if err := f.market.ConfirmOrder(trader, f.now); err != nil {
		t.Fatal(err)
	}
}

func TestFutures_ProfitLossTracksPrice(t *testing.T) {
	f := newFuturesFixture(t)
	trader := uuid.New()
	f.fundTrader(t, trader, 1000)
	openPosition(t, f, trader, 1000, 10, "100") // long 100 units

	f.pushRound(t, "110")
	pnl, err := f.market.ProfitLoss(trader, f.now)
	if err != nil {
		t.Fatal(err)
	}
	if !pnl.Equal(fixed.FromInt(1000)) {
		t.Errorf("pnl = %s, want 1000", pnl)
	}

	f.pushRound(t, "90")
	pnl, err = f.market.ProfitLoss(trader, f.now)
	if err != nil {
		t.Fatal(err)
	}
	if !pnl.Equal(fixed.FromInt(-1000)) {
		t.Errorf("pnl = %s, want -1000", pnl)
	}
}

func TestFutures_RemainingMarginSignFlipClamp(t *testing.T) {
	f := newFuturesFixture(t)
	trader := uuid.New()
	f.fundTrader(t, trader, 1000)
	openPosition(t, f, trader, 1000, 10, "100")

	// Loss exceeds margin: remaining flips sign and clamps to zero (the
	// position should already have been liquidated)
	f.pushRound(t, "80")
	remaining, err := f.market.RemainingMargin(trader, f.now)
	if err != nil {
		t.Fatal(err)
	}
	if !remaining.IsZero() {
		t.Errorf("remaining margin = %s, want 0 after sign flip", remaining)
	}

	// A mild loss just reduces it
	f.pushRound(t, "95")
	remaining, err = f.market.RemainingMargin(trader, f.now)
	if err != nil {
		t.Fatal(err)
	}
	if !remaining.Equal(fixed.FromInt(500)) {
		t.Errorf("remaining margin = %s, want 500", remaining)
	}
}

func TestFutures_FundingRateClampedBySkew(t *testing.T) {
	f := newFuturesFixture(t)
	trader := uuid.New()
	f.fundTrader(t, trader, 1_000_000)

	rate, err := f.market.CurrentFundingRate()
	if err != nil {
		t.Fatal(err)
	}
	if !rate.IsZero() {
		t.Errorf("rate with no skew = %s, want 0", rate)
	}

	// maxMarketSkew is 100,000 base units; a 10,000-unit long skew gives
	// proportional skew 0.1 and rate 0.1 * maxFundingRate = 0.01/day
	openPosition(t, f, trader, 1_000_000, 1, "100")
	rate, err = f.market.CurrentFundingRate()
	if err != nil {
		t.Fatal(err)
	}
	if !rate.Equal(fixed.MustParse("0.01")) {
		t.Errorf("rate = %s, want 0.01", rate)
	}
}

func TestFutures_LiquidationPrice(t *testing.T) {
	f := newFuturesFixture(t)
	long, short := uuid.New(), uuid.New()
	f.fundTrader(t, long, 1000)
	f.fundTrader(t, short, 1000)
	openPosition(t, f, long, 1000, 10, "100") // size +100

	// margin 1000, size 100, fee 20: liq = 100 + (20-1000)/100 = 90.2
	liq, err := f.market.LiquidationPrice(long, false, f.now)
	if err != nil {
		t.Fatal(err)
	}
	if !liq.Equal(fixed.MustParse("90.2")) {
		t.Errorf("long liquidation price = %s, want 90.2", liq)
	}

	// Short: size -100, liq = 100 + (20-(-1000))/(-100) = 100 - 10.2... with
	// negative margin stored: margin -1000, size -100 at leverage 10
	f.pushRound(t, "100")
	if err := f.market.SubmitOrder(short, fixed.FromInt(-1000), fixed.FromInt(10), f.now); err != nil {
		t.Fatal(err)
	}
	f.pushRound(t, "100")
	if err := f.market.ConfirmOrder(short, f.now); err != nil {
		t.Fatal(err)
	}
	liq, err = f.market.LiquidationPrice(short, false, f.now)
	if err != nil {
		t.Fatal(err)
	}
	// margin -1000, size -100: liq = 100 + (20-(-1000))/(-100) = 89.8.
	// The signed division is what differentiates the directions.
	if !liq.Equal(fixed.MustParse("89.8")) {
		t.Errorf("short liquidation price = %s, want 89.8", liq)
	}
}

func TestFutures_MarketDebtValuation(t *testing.T) {
	f := newFuturesFixture(t)
	trader := uuid.New()
	f.fundTrader(t, trader, 1000)
	openPosition(t, f, trader, 1000, 10, "100")

	// debt = skew*price + (margin - size*entry) = 100*100 + (1000 - 10000)
	debt, err := f.market.MarketDebt(f.now)
	if err != nil {
		t.Fatal(err)
	}
	if !debt.Equal(fixed.FromInt(1000)) {
		t.Errorf("market debt = %s, want 1000", debt)
	}

	// Price up 10%: the market's claim grows by the trader's pnl
	f.pushRound(t, "110")
	debt, err = f.market.MarketDebt(f.now)
	if err != nil {
		t.Fatal(err)
	}
	if !debt.Equal(fixed.FromInt(2000)) {
		t.Errorf("market debt = %s, want 2000", debt)
	}
}

func TestFutures_FundingAccruesOverTime(t *testing.T) {
	f := newFuturesFixture(t)
	trader := uuid.New()
	f.fundTrader(t, trader, 1_000_000)
	openPosition(t, f, trader, 1_000_000, 1, "100") // skew 10,000 -> rate 0.01/day

	// One day later at the same price: funding/unit = 0.01 * 100 = 1,
	// so the 10,000-unit long has accrued 10,000 in funding.
	f.now += 86400
	f.pushRound(t, "100")
	funding, err := f.market.AccruedFunding(trader, f.now)
	if err != nil {
		t.Fatal(err)
	}
	if !funding.Equal(fixed.FromInt(10_000)) {
		t.Errorf("accrued funding = %s, want 10000", funding)
	}
}
