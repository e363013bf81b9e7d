package fixed_test

import (
	"math/big"
	"testing"

	"SynthLedger/internal/fixed"
)

func TestParse_RoundTrip(t *testing.T) {
	cases := []string{"0", "1", "0.2", "100000", "-42.5", "0.000000000000000001"}
	for _, s := range cases {
		f, err := fixed.Parse(s)
		if err != nil {
			t.Fatalf("Parse(%q): %v", s, err)
		}
		if got := f.String(); got != s {
			t.Errorf("Parse(%q).String() = %q", s, got)
		}
	}
}

func TestParse_TooManyDigits(t *testing.T) {
	if _, err := fixed.Parse("0.0000000000000000001"); err == nil {
		t.Error("expected precision error for 19 fractional digits")
	}
}

func TestMul_PreservesScale(t *testing.T) {
	// 100000 * 0.30 * 0.20 = 6000 (the maxIssuable scenario numbers)
	v, err := fixed.FromInt(100_000).Mul(fixed.MustParse("0.30"))
	if err != nil {
		t.Fatal(err)
	}
	v, err = v.Mul(fixed.MustParse("0.20"))
	if err != nil {
		t.Fatal(err)
	}
	if !v.Equal(fixed.FromInt(6000)) {
		t.Errorf("got %s, want 6000", v)
	}
}

func TestMul_TruncatesTowardZero(t *testing.T) {
	// (1e-18) * (1e-18) underflows the scale entirely
	tiny := fixed.MustParse("0.000000000000000001")
	got, err := tiny.Mul(tiny)
	if err != nil {
		t.Fatal(err)
	}
	if !got.IsZero() {
		t.Errorf("got %s, want 0", got)
	}
}

func TestDiv_ScalesNumerator(t *testing.T) {
	got, err := fixed.FromInt(1).Div(fixed.FromInt(3))
	if err != nil {
		t.Fatal(err)
	}
	want := fixed.MustParse("0.333333333333333333")
	if !got.Equal(want) {
		t.Errorf("1/3 = %s, want %s", got, want)
	}
}

func TestDiv_ByZero(t *testing.T) {
	if _, err := fixed.FromInt(1).Div(fixed.Zero()); err != fixed.ErrDivideByZero {
		t.Errorf("got %v, want ErrDivideByZero", err)
	}
	if _, err := fixed.FromInt(1).DivInt(0); err != fixed.ErrDivideByZero {
		t.Errorf("got %v, want ErrDivideByZero", err)
	}
}

func TestAdd_Overflow(t *testing.T) {
	max := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 255), big.NewInt(1))
	top, err := fixed.FromRaw(max)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := top.Add(fixed.FromInt(1)); err != fixed.ErrOverflow {
		t.Errorf("got %v, want ErrOverflow", err)
	}
	if _, err := top.Mul(fixed.FromInt(2)); err != fixed.ErrOverflow {
		t.Errorf("mul: got %v, want ErrOverflow", err)
	}
}

func TestSub_Underflow(t *testing.T) {
	min := new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 255))
	bottom, err := fixed.FromRaw(min)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := bottom.Sub(fixed.FromInt(1)); err != fixed.ErrOverflow {
		t.Errorf("got %v, want ErrOverflow", err)
	}
}

func TestMulInt_TokenSeconds(t *testing.T) {
	// 300 tokens held for 500 seconds = 150000 token-seconds
	got, err := fixed.FromInt(300).MulInt(500)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(fixed.FromInt(150_000)) {
		t.Errorf("got %s, want 150000", got)
	}
}

func TestClamp(t *testing.T) {
	lo, hi := fixed.FromInt(-1), fixed.FromInt(1)
	if got := fixed.Clamp(fixed.FromInt(5), lo, hi); !got.Equal(hi) {
		t.Errorf("clamp above: got %s", got)
	}
	if got := fixed.Clamp(fixed.FromInt(-5), lo, hi); !got.Equal(lo) {
		t.Errorf("clamp below: got %s", got)
	}
	mid := fixed.MustParse("0.5")
	if got := fixed.Clamp(mid, lo, hi); !got.Equal(mid) {
		t.Errorf("clamp inside: got %s", got)
	}
}

func TestZeroValue_IsUsable(t *testing.T) {
	var f fixed.Fixed
	if !f.IsZero() {
		t.Error("zero value should be zero")
	}
	got, err := f.Add(fixed.FromInt(7))
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(fixed.FromInt(7)) {
		t.Errorf("0+7 = %s", got)
	}
}

func TestJSON_RoundTrip(t *testing.T) {
	f := fixed.MustParse("123.456")
	b, err := f.MarshalJSON()
	if err != nil {
		t.Fatal(err)
	}
	var g fixed.Fixed
	if err := g.UnmarshalJSON(b); err != nil {
		t.Fatal(err)
	}
	if !f.Equal(g) {
		t.Errorf("round trip: %s != %s", f, g)
	}
}
