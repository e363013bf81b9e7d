package state_test

import (
	"errors"
	"testing"

	"github.com/google/uuid"

	"SynthLedger/internal/fixed"
	"SynthLedger/internal/ledger"
	"SynthLedger/internal/state"
)

func newRewardsFixture(t *testing.T, fundBalance int64) (*state.RewardsEngine, *ledger.ReserveLedger, uuid.UUID) {
	t.Helper()
	reserve := ledger.NewReserveLedger(fixed.FromInt(fundBalance))
	fund := uuid.New()
	if err := reserve.Endow(fund, fixed.FromInt(fundBalance)); err != nil {
		t.Fatal(err)
	}
	return state.NewRewardsEngine(reserve, fund), reserve, fund
}

func TestRewards_ClaimScenario(t *testing.T) {
	// Period 1 funded with 1000; X recorded 40 of 100 total fees.
	r, reserve, _ := newRewardsFixture(t, 5000)
	x, y := uuid.New(), uuid.New()

	if _, err := r.NotifyNewFunding(fixed.FromInt(1000)); err != nil {
		t.Fatal(err)
	}
	if r.CurrentPeriodID() != 1 {
		t.Fatalf("period id = %d, want 1", r.CurrentPeriodID())
	}
	if err := r.RecordFee(x, fixed.FromInt(40)); err != nil {
		t.Fatal(err)
	}
	if err := r.RecordFee(y, fixed.FromInt(60)); err != nil {
		t.Fatal(err)
	}

	// Period 1 is still active: unclaimable
	if _, err := r.Claim(x, 1); !errors.Is(err, state.ErrInvalidState) {
		t.Fatalf("claim active period: got %v, want ErrInvalidState", err)
	}

	// Opening period 2 closes period 1
	if _, err := r.NotifyNewFunding(fixed.FromInt(500)); err != nil {
		t.Fatal(err)
	}

	paid, err := r.Claim(x, 1)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if !paid.Equal(fixed.FromInt(400)) {
		t.Errorf("claim(X,1) = %s, want 400", paid)
	}
	if !reserve.BalanceOf(x).Equal(fixed.FromInt(400)) {
		t.Errorf("X balance = %s, want 400", reserve.BalanceOf(x))
	}

	// A second claim yields zero and pays nothing
	paid, err = r.Claim(x, 1)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if !paid.IsZero() {
		t.Errorf("second claim(X,1) = %s, want 0", paid)
	}
	if !reserve.BalanceOf(x).Equal(fixed.FromInt(400)) {
		t.Error("second claim must not re-pay")
	}

	paid, err = r.Claim(y, 1)
	if err != nil {
		t.Fatal(err)
	}
	if !paid.Equal(fixed.FromInt(600)) {
		t.Errorf("claim(Y,1) = %s, want 600", paid)
	}
}

func TestRewards_ZeroFeePeriodYieldsZero(t *testing.T) {
	r, _, _ := newRewardsFixture(t, 5000)
	x := uuid.New()

	// Period 0 closes with no recorded fees
	if _, err := r.NotifyNewFunding(fixed.FromInt(1000)); err != nil {
		t.Fatal(err)
	}
	paid, err := r.Claim(x, 0)
	if err != nil {
		t.Fatalf("claim zero-fee period: %v", err)
	}
	if !paid.IsZero() {
		t.Errorf("claim = %s, want 0", paid)
	}
}

// The participation ratio divides before multiplying; the truncation this
// introduces is part of the contract.
func TestRewards_DivideBeforeMultiplyTruncation(t *testing.T) {
	r, _, _ := newRewardsFixture(t, 5000)
	x := uuid.New()

	if _, err := r.NotifyNewFunding(fixed.FromInt(1000)); err != nil {
		t.Fatal(err)
	}
	if err := r.RecordFee(x, fixed.FromInt(1)); err != nil {
		t.Fatal(err)
	}
	if err := r.RecordFee(uuid.New(), fixed.FromInt(2)); err != nil {
		t.Fatal(err)
	}
	if _, err := r.NotifyNewFunding(fixed.FromInt(100)); err != nil {
		t.Fatal(err)
	}

	paid, err := r.Claim(x, 1)
	if err != nil {
		t.Fatal(err)
	}
	// (1/3) truncates to 0.333333333333333333, then * 1000 = 333.333333333333333
	// (multiply-first would end ...333333 instead of ...333000)
	want := fixed.MustParse("333.333333333333333")
	if !paid.Equal(want) {
		t.Errorf("claim = %s, want %s", paid, want)
	}
}

func TestRewards_FundingRequiresUncommittedBalance(t *testing.T) {
	r, _, _ := newRewardsFixture(t, 1000)

	if _, err := r.NotifyNewFunding(fixed.FromInt(800)); err != nil {
		t.Fatal(err)
	}
	// Only 200 uncommitted remains
	_, err := r.NotifyNewFunding(fixed.FromInt(201))
	if !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Errorf("got %v, want ErrInsufficientBalance", err)
	}
	if _, err := r.NotifyNewFunding(fixed.FromInt(200)); err != nil {
		t.Errorf("funding within uncommitted balance: %v", err)
	}
}

func TestRewards_RecoverUncommitted(t *testing.T) {
	r, reserve, _ := newRewardsFixture(t, 1000)
	owner := uuid.New()

	if _, err := r.NotifyNewFunding(fixed.FromInt(700)); err != nil {
		t.Fatal(err)
	}
	if err := r.RecoverUncommitted(owner, fixed.FromInt(301)); !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Errorf("got %v, want ErrInsufficientBalance", err)
	}
	if err := r.RecoverUncommitted(owner, fixed.FromInt(300)); err != nil {
		t.Fatal(err)
	}
	if !reserve.BalanceOf(owner).Equal(fixed.FromInt(300)) {
		t.Errorf("owner balance = %s, want 300", reserve.BalanceOf(owner))
	}
}

func TestRewards_RecoverFromActivePeriod(t *testing.T) {
	r, reserve, _ := newRewardsFixture(t, 1000)
	owner := uuid.New()

	if _, err := r.NotifyNewFunding(fixed.FromInt(600)); err != nil {
		t.Fatal(err)
	}
	recovered, err := r.RecoverFromActivePeriod(owner)
	if err != nil {
		t.Fatal(err)
	}
	if !recovered.Equal(fixed.FromInt(600)) {
		t.Errorf("recovered = %s, want 600", recovered)
	}
	if !reserve.BalanceOf(owner).Equal(fixed.FromInt(600)) {
		t.Errorf("owner balance = %s, want 600", reserve.BalanceOf(owner))
	}
	// The clawed-back period pays nothing once closed
	if _, err := r.NotifyNewFunding(fixed.FromInt(400)); err != nil {
		t.Fatal(err)
	}
	paid, err := r.Claim(uuid.New(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if !paid.IsZero() {
		t.Errorf("claim on destroyed period = %s, want 0", paid)
	}
}
