package state_test

import (
	"errors"
	"testing"

	"SynthLedger/internal/fixed"
	"SynthLedger/internal/state"
)

const genesis = int64(1_700_000_000)

// ============================================================================
// Test: PriceOracle
// ============================================================================

func TestOracle_FreshAfterUpdate(t *testing.T) {
	o := state.NewPriceOracle(state.DefaultParams())

	if !o.IsStale(genesis) {
		t.Error("never-updated oracle must be stale")
	}
	if err := o.Update(fixed.MustParse("0.30"), 1, genesis, genesis); err != nil {
		t.Fatalf("update: %v", err)
	}
	price, err := o.Price(genesis + 100)
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	if !price.Equal(fixed.MustParse("0.30")) {
		t.Errorf("price = %s, want 0.30", price)
	}
}

func TestOracle_StaleAfterWindow(t *testing.T) {
	p := state.DefaultParams()
	o := state.NewPriceOracle(p)
	if err := o.Update(fixed.One(), 1, genesis, genesis); err != nil {
		t.Fatal(err)
	}

	// Exactly at the boundary the price is still usable
	if _, err := o.Price(genesis + p.PriceStalePeriod()); err != nil {
		t.Errorf("price at boundary: %v", err)
	}
	if _, err := o.Price(genesis + p.PriceStalePeriod() + 1); !errors.Is(err, state.ErrStalePrice) {
		t.Errorf("got %v, want ErrStalePrice", err)
	}
}

func TestOracle_RejectsOldRound(t *testing.T) {
	o := state.NewPriceOracle(state.DefaultParams())
	if err := o.Update(fixed.One(), 5, genesis, genesis); err != nil {
		t.Fatal(err)
	}
	if err := o.Update(fixed.One(), 5, genesis+1, genesis+1); !errors.Is(err, state.ErrInvalidState) {
		t.Errorf("replayed round: got %v, want ErrInvalidState", err)
	}
	if err := o.Update(fixed.One(), 4, genesis+1, genesis+1); !errors.Is(err, state.ErrInvalidState) {
		t.Errorf("old round: got %v, want ErrInvalidState", err)
	}
}

func TestOracle_RejectsFarFutureTimestamp(t *testing.T) {
	o := state.NewPriceOracle(state.DefaultParams())
	sentAt := genesis + state.OracleFutureLimit + 1
	if err := o.Update(fixed.One(), 1, sentAt, genesis); !errors.Is(err, state.ErrInvalidState) {
		t.Errorf("got %v, want ErrInvalidState", err)
	}
	// At the forward tolerance boundary the update is accepted
	if err := o.Update(fixed.One(), 1, genesis+state.OracleFutureLimit, genesis); err != nil {
		t.Errorf("boundary update: %v", err)
	}
}

func TestOracle_RejectsNonPositivePrice(t *testing.T) {
	o := state.NewPriceOracle(state.DefaultParams())
	if err := o.Update(fixed.Zero(), 1, genesis, genesis); !errors.Is(err, state.ErrInvalidState) {
		t.Errorf("got %v, want ErrInvalidState", err)
	}
}

// ============================================================================
// Test: Params bounds
// ============================================================================

func TestParams_IssuanceRatioCap(t *testing.T) {
	p := state.DefaultParams()
	if err := p.SetIssuanceRatio(fixed.MustParse("1.01")); !errors.Is(err, state.ErrExceedsCap) {
		t.Errorf("got %v, want ErrExceedsCap", err)
	}
	if err := p.SetIssuanceRatio(fixed.One()); err != nil {
		t.Errorf("ratio at cap: %v", err)
	}
	if err := p.SetIssuanceRatio(fixed.MustParse("0.5")); err != nil {
		t.Errorf("valid ratio: %v", err)
	}
	if !p.IssuanceRatio().Equal(fixed.MustParse("0.5")) {
		t.Errorf("ratio = %s, want 0.5", p.IssuanceRatio())
	}
}

func TestParams_FeePeriodDurationBounds(t *testing.T) {
	if err := state.ValidateFeePeriodDuration(state.MinFeePeriodDuration - 1); !errors.Is(err, state.ErrExceedsCap) {
		t.Errorf("below min: got %v, want ErrExceedsCap", err)
	}
	if err := state.ValidateFeePeriodDuration(state.MaxFeePeriodDuration + 1); !errors.Is(err, state.ErrExceedsCap) {
		t.Errorf("above max: got %v, want ErrExceedsCap", err)
	}
	if err := state.ValidateFeePeriodDuration(7 * 24 * 3600); err != nil {
		t.Errorf("one week: %v", err)
	}
}

func TestParams_TransferFeeRateCap(t *testing.T) {
	if err := state.ValidateTransferFeeRate(fixed.MustParse("0.11")); !errors.Is(err, state.ErrExceedsCap) {
		t.Errorf("got %v, want ErrExceedsCap", err)
	}
	if err := state.ValidateTransferFeeRate(fixed.MustParse("0.1")); err != nil {
		t.Errorf("rate at cap: %v", err)
	}
}

// ============================================================================
// Test: FeePeriodController
// ============================================================================

type stubPool struct {
	pool fixed.Fixed
}

func (s *stubPool) FeePool() fixed.Fixed { return s.pool }

func TestFeePeriod_RollsAtBoundary(t *testing.T) {
	pool := &stubPool{pool: fixed.FromInt(100)}
	fp, err := state.NewFeePeriodController(pool, genesis, state.MinFeePeriodDuration)
	if err != nil {
		t.Fatal(err)
	}

	if fp.CheckRollover(genesis + state.MinFeePeriodDuration - 1) {
		t.Error("rolled before the boundary")
	}
	if !fp.CheckRollover(genesis + state.MinFeePeriodDuration) {
		t.Error("did not roll at the boundary")
	}
	if !fp.LastFeesCollected().Equal(fixed.FromInt(100)) {
		t.Errorf("lastFeesCollected = %s, want 100", fp.LastFeesCollected())
	}
	if fp.PreviousStartTime() != genesis {
		t.Errorf("previousStartTime = %d, want %d", fp.PreviousStartTime(), genesis)
	}
}

func TestFeePeriod_AtMostOneRolloverPerCall(t *testing.T) {
	pool := &stubPool{}
	fp, err := state.NewFeePeriodController(pool, genesis, state.MinFeePeriodDuration)
	if err != nil {
		t.Fatal(err)
	}

	// Ten boundaries missed; a single call absorbs them into one new period
	late := genesis + 10*state.MinFeePeriodDuration
	if !fp.CheckRollover(late) {
		t.Fatal("expected rollover")
	}
	if fp.StartTime() != late {
		t.Errorf("startTime = %d, want %d", fp.StartTime(), late)
	}
	if fp.PreviousStartTime() != genesis {
		t.Errorf("previousStartTime = %d, want %d (no catch-up periods)", fp.PreviousStartTime(), genesis)
	}
	// Idempotent for the same clock value
	if fp.CheckRollover(late) {
		t.Error("second call with same clock must not roll again")
	}
}

func TestFeePeriod_StartTimeStrictlyIncreases(t *testing.T) {
	fp, err := state.NewFeePeriodController(&stubPool{}, genesis, state.MinFeePeriodDuration)
	if err != nil {
		t.Fatal(err)
	}
	now := genesis
	for i := 0; i < 5; i++ {
		now += state.MinFeePeriodDuration
		prev := fp.StartTime()
		if !fp.CheckRollover(now) {
			t.Fatalf("rollover %d did not fire", i)
		}
		if fp.StartTime() <= prev {
			t.Fatalf("startTime %d not after %d", fp.StartTime(), prev)
		}
		if fp.PreviousStartTime() >= fp.StartTime() {
			t.Fatal("previousStartTime must precede startTime")
		}
	}
}
