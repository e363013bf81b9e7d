package fixed

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// Decimals is the number of fractional digits carried by every Fixed value.
const Decimals = 18

// Errors raised by the arithmetic layer. Any of these aborts the whole
// triggering command; the core never saturates or truncates silently.
var (
	ErrOverflow     = errors.New("fixed: value out of 256-bit range")
	ErrDivideByZero = errors.New("fixed: division by zero")
	ErrPrecision    = errors.New("fixed: more than 18 fractional digits")
)

var (
	unit = new(big.Int).Exp(big.NewInt(10), big.NewInt(Decimals), nil)

	// Values are bounded to the signed 256-bit range of the original
	// deterministic ledger arithmetic.
	maxValue = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 255), big.NewInt(1))
	minValue = new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 255))
)

// Fixed is an immutable 18-decimal fixed-point value. The zero value is 0.
// All operations return a fresh value and never mutate their operands.
type Fixed struct {
	i *big.Int
}

// Zero returns the zero value.
func Zero() Fixed {
	return Fixed{}
}

// One returns 1.0 (the unit).
func One() Fixed {
	return Fixed{i: new(big.Int).Set(unit)}
}

// FromInt returns n as a Fixed (n * 10^18).
func FromInt(n int64) Fixed {
	return Fixed{i: new(big.Int).Mul(big.NewInt(n), unit)}
}

// FromRaw wraps an already-scaled integer. The input is copied.
func FromRaw(raw *big.Int) (Fixed, error) {
	if raw == nil {
		return Zero(), nil
	}
	v := new(big.Int).Set(raw)
	if outOfRange(v) {
		return Fixed{}, ErrOverflow
	}
	return Fixed{i: v}, nil
}

// Parse converts a decimal string ("0.2", "100000") into a Fixed.
// More than 18 fractional digits is a precision error, not a rounding.
func Parse(s string) (Fixed, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Fixed{}, fmt.Errorf("fixed: parse %q: %w", s, err)
	}
	return FromDecimal(d)
}

// MustParse is Parse for literals known to be valid (tests, defaults).
func MustParse(s string) Fixed {
	f, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return f
}

// FromDecimal converts a shopspring decimal into a Fixed.
func FromDecimal(d decimal.Decimal) (Fixed, error) {
	shifted := d.Shift(Decimals)
	if !shifted.IsInteger() {
		return Fixed{}, ErrPrecision
	}
	return FromRaw(shifted.BigInt())
}

// Decimal returns the value as a shopspring decimal (for display/JSON only;
// never used in core arithmetic).
func (f Fixed) Decimal() decimal.Decimal {
	return decimal.NewFromBigInt(f.raw(), -Decimals)
}

func (f Fixed) raw() *big.Int {
	if f.i == nil {
		return new(big.Int)
	}
	return f.i
}

// Raw returns a copy of the underlying scaled integer.
func (f Fixed) Raw() *big.Int {
	return new(big.Int).Set(f.raw())
}

func (f Fixed) String() string {
	return f.Decimal().String()
}

// MarshalJSON encodes the value as a decimal string.
func (f Fixed) MarshalJSON() ([]byte, error) {
	return []byte(`"` + f.String() + `"`), nil
}

// UnmarshalJSON decodes a decimal string (quoted or bare).
func (f *Fixed) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	v, err := Parse(s)
	if err != nil {
		return err
	}
	*f = v
	return nil
}

func outOfRange(v *big.Int) bool {
	return v.Cmp(maxValue) > 0 || v.Cmp(minValue) < 0
}

func checked(v *big.Int) (Fixed, error) {
	if outOfRange(v) {
		return Fixed{}, ErrOverflow
	}
	return Fixed{i: v}, nil
}

// Sign reports -1, 0 or +1.
func (f Fixed) Sign() int {
	return f.raw().Sign()
}

// IsZero reports whether the value is exactly zero.
func (f Fixed) IsZero() bool {
	return f.raw().Sign() == 0
}

// Cmp compares f against g: -1 if f < g, 0 if equal, +1 if f > g.
func (f Fixed) Cmp(g Fixed) int {
	return f.raw().Cmp(g.raw())
}

// Equal reports exact equality.
func (f Fixed) Equal(g Fixed) bool {
	return f.Cmp(g) == 0
}

// Neg returns -f.
func (f Fixed) Neg() Fixed {
	return Fixed{i: new(big.Int).Neg(f.raw())}
}

// Abs returns |f|.
func (f Fixed) Abs() Fixed {
	return Fixed{i: new(big.Int).Abs(f.raw())}
}

// Add returns f + g with overflow detection.
func (f Fixed) Add(g Fixed) (Fixed, error) {
	return checked(new(big.Int).Add(f.raw(), g.raw()))
}

// Sub returns f - g with overflow detection.
func (f Fixed) Sub(g Fixed) (Fixed, error) {
	return checked(new(big.Int).Sub(f.raw(), g.raw()))
}

// Mul is the decimal multiply: the raw product is divided by the unit to
// preserve scale, truncating toward zero.
func (f Fixed) Mul(g Fixed) (Fixed, error) {
	p := new(big.Int).Mul(f.raw(), g.raw())
	p.Quo(p, unit)
	return checked(p)
}

// Div is the decimal divide: the numerator is scaled up by the unit before
// dividing, truncating toward zero.
func (f Fixed) Div(g Fixed) (Fixed, error) {
	if g.raw().Sign() == 0 {
		return Fixed{}, ErrDivideByZero
	}
	p := new(big.Int).Mul(f.raw(), unit)
	p.Quo(p, g.raw())
	return checked(p)
}

// MulInt scales f by a plain integer (token-seconds accumulation: the
// result keeps the 18-decimal scale).
func (f Fixed) MulInt(n int64) (Fixed, error) {
	return checked(new(big.Int).Mul(f.raw(), big.NewInt(n)))
}

// DivInt divides f by a plain integer, truncating toward zero.
func (f Fixed) DivInt(n int64) (Fixed, error) {
	if n == 0 {
		return Fixed{}, ErrDivideByZero
	}
	return checked(new(big.Int).Quo(f.raw(), big.NewInt(n)))
}

// Min returns the smaller of a and b.
func Min(a, b Fixed) Fixed {
	if a.Cmp(b) <= 0 {
		return a
	}
	return b
}

// Max returns the larger of a and b.
func Max(a, b Fixed) Fixed {
	if a.Cmp(b) >= 0 {
		return a
	}
	return b
}

// Clamp bounds f into [lo, hi].
func Clamp(f, lo, hi Fixed) Fixed {
	if f.Cmp(lo) < 0 {
		return lo
	}
	if f.Cmp(hi) > 0 {
		return hi
	}
	return f
}
