// Package bigfloat provides a binary floating-point number whose precision is
// fixed when it is constructed, together with the wire record that carries a
// value between worker processes.
//
// Float follows the receiver conventions of math/big: z.Add(x, y) stores x+y
// in z and returns z, so z.Add(z, y) is the in-place form. Unlike math/big,
// every operand must share the receiver's precision. Mixing precisions is a
// programming error and is reported as ErrPrecisionMismatch instead of being
// silently rounded.
package bigfloat

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
)

var (
	// ErrPrecisionMismatch is returned when two values with different
	// precisions are combined.
	ErrPrecisionMismatch = errors.New("precision mismatch")

	// ErrDivisionByZero is returned by Quo and QuoUint64 for a zero divisor.
	ErrDivisionByZero = errors.New("division by zero")

	// ErrInvalidPrecision is returned by CheckPrecision.
	ErrInvalidPrecision = errors.New("invalid precision")
)

// Mode is the rounding mode applied to every result.
const Mode = big.ToZero

// Float is a fixed-precision binary floating-point value. The zero value is
// not usable; create values with New, NewInt64 or NewFloat64.
type Float struct {
	prec uint
	f    *big.Float

	// scratch holds integer operands of QuoUint64 and MulInt64.
	scratch *big.Float
}

// CheckPrecision reports whether prec can be used to construct a Float.
func CheckPrecision(prec uint) error {
	if prec == 0 || prec > big.MaxPrec {
		return fmt.Errorf("%w: %d bits", ErrInvalidPrecision, prec)
	}
	return nil
}

// New returns a zero value with the given precision in bits. It panics if
// prec fails CheckPrecision.
func New(prec uint) *Float {
	if err := CheckPrecision(prec); err != nil {
		panic("bigfloat: " + err.Error())
	}
	return &Float{prec: prec, f: new(big.Float).SetPrec(prec).SetMode(Mode)}
}

// NewInt64 returns x rounded to prec bits.
func NewInt64(x int64, prec uint) *Float {
	z := New(prec)
	z.f.SetInt64(x)
	return z
}

// NewFloat64 returns x rounded to prec bits. Like math/big, it panics with
// big.ErrNaN if x is a NaN.
func NewFloat64(x float64, prec uint) *Float {
	z := New(prec)
	z.f.SetFloat64(x)
	return z
}

// Prec returns the precision of x in bits.
func (x *Float) Prec() uint { return x.prec }

func (z *Float) same(x *Float) error {
	if x.prec != z.prec {
		return fmt.Errorf("%w: %d and %d bits", ErrPrecisionMismatch, z.prec, x.prec)
	}
	return nil
}

func (z *Float) same2(x, y *Float) error {
	if err := z.same(x); err != nil {
		return err
	}
	return z.same(y)
}

func (z *Float) integer() *big.Float {
	if z.scratch == nil {
		z.scratch = new(big.Float).SetPrec(64)
	}
	return z.scratch
}

// Set sets z to x.
func (z *Float) Set(x *Float) (*Float, error) {
	if err := z.same(x); err != nil {
		return nil, err
	}
	z.f.Set(x.f)
	return z, nil
}

// Copy returns an independent copy of x.
func (x *Float) Copy() *Float {
	z := New(x.prec)
	z.f.Set(x.f)
	return z
}

// Add sets z to x+y.
func (z *Float) Add(x, y *Float) (*Float, error) {
	if err := z.same2(x, y); err != nil {
		return nil, err
	}
	z.f.Add(x.f, y.f)
	return z, nil
}

// Sub sets z to x-y.
func (z *Float) Sub(x, y *Float) (*Float, error) {
	if err := z.same2(x, y); err != nil {
		return nil, err
	}
	z.f.Sub(x.f, y.f)
	return z, nil
}

// Mul sets z to x*y.
func (z *Float) Mul(x, y *Float) (*Float, error) {
	if err := z.same2(x, y); err != nil {
		return nil, err
	}
	z.f.Mul(x.f, y.f)
	return z, nil
}

// Quo sets z to x/y.
func (z *Float) Quo(x, y *Float) (*Float, error) {
	if err := z.same2(x, y); err != nil {
		return nil, err
	}
	if y.f.Sign() == 0 {
		return nil, ErrDivisionByZero
	}
	z.f.Quo(x.f, y.f)
	return z, nil
}

// QuoUint64 sets z to x/d. The divisor is used exactly.
func (z *Float) QuoUint64(x *Float, d uint64) (*Float, error) {
	if err := z.same(x); err != nil {
		return nil, err
	}
	if d == 0 {
		return nil, ErrDivisionByZero
	}
	z.f.Quo(x.f, z.integer().SetUint64(d))
	return z, nil
}

// MulInt64 sets z to x*n. The factor is used exactly.
func (z *Float) MulInt64(x *Float, n int64) (*Float, error) {
	if err := z.same(x); err != nil {
		return nil, err
	}
	z.f.Mul(x.f, z.integer().SetInt64(n))
	return z, nil
}

// Neg sets z to -x.
func (z *Float) Neg(x *Float) (*Float, error) {
	if err := z.same(x); err != nil {
		return nil, err
	}
	z.f.Neg(x.f)
	return z, nil
}

// Pow sets z to x**n using square-and-multiply, rounding after every step.
// Pow(x, 0) is 1 for every x.
func (z *Float) Pow(x *Float, n uint64) (*Float, error) {
	if err := z.same(x); err != nil {
		return nil, err
	}
	base := new(big.Float).SetPrec(z.prec).SetMode(Mode).Set(x.f)
	acc := new(big.Float).SetPrec(z.prec).SetMode(Mode).SetInt64(1)
	for n > 0 {
		if n&1 == 1 {
			acc.Mul(acc, base)
		}
		n >>= 1
		if n > 0 {
			base.Mul(base, base)
		}
	}
	z.f.Set(acc)
	return z, nil
}

// Sign returns -1, 0 or +1 depending on the sign of x.
func (x *Float) Sign() int { return x.f.Sign() }

// IsZero reports whether x is zero.
func (x *Float) IsZero() bool { return x.f.Sign() == 0 }

// Cmp compares x and y and returns -1, 0 or +1. Comparison is exact and does
// not require equal precisions.
func (x *Float) Cmp(y *Float) int { return x.f.Cmp(y.f) }

// Equal reports whether x and y have the same precision and value.
func (x *Float) Equal(y *Float) bool { return x.prec == y.prec && x.f.Cmp(y.f) == 0 }

// Float64 returns the float64 nearest to x. Used for logging only.
func (x *Float) Float64() float64 {
	f, _ := x.f.Float64()
	return f
}

// DecimalDigits returns the number of significant decimal digits a value of
// prec bits determines: floor(prec * log10(2)), at least 1.
func DecimalDigits(prec uint) int {
	return max(int(float64(prec)*math.Log10(2)), 1)
}

// Digits returns the significant decimal digits of x and the decimal exponent
// exp such that x = 0.d1d2d3... * 10**exp. Trailing zeros are dropped and a
// negative value has a leading '-'. n <= 0 requests DecimalDigits(x.Prec())
// digits. Zero yields ("", 0).
func (x *Float) Digits(n int) (digits string, exp int) {
	if x.f.Sign() == 0 {
		return "", 0
	}
	if n <= 0 {
		n = DecimalDigits(x.prec)
	}
	s := x.f.Text('e', n-1)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	mant, e, _ := strings.Cut(s, "e")
	p, err := strconv.Atoi(e)
	if err != nil {
		panic("bigfloat: unexpected exponent in " + s)
	}
	mant = strings.TrimRight(strings.Replace(mant, ".", "", 1), "0")
	if neg {
		mant = "-" + mant
	}
	return mant, p + 1
}

// String formats x in scientific notation with an explicit decimal exponent,
// using every digit the precision supports.
func (x *Float) String() string {
	return x.f.Text('e', DecimalDigits(x.prec)-1)
}
