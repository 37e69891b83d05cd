// Package bigmath provides overflow-checked unsigned 256-bit arithmetic and explicit narrowing
// back to the 128 and 64 bit domains used by token amounts, sqrt prices and liquidity.
package bigmath

import (
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/holiman/uint256"

	"github.com/malbeclabs/bounty/engine/pkg/calcerror"
)

// U128 is the 128-bit unsigned wire type used for sqrt prices and liquidity.
type U128 = bin.Uint128

var maxU128 = new(uint256.Int).Sub(new(uint256.Int).Lsh(uint256.NewInt(1), 128), uint256.NewInt(1))

func U128From64(v uint64) U128 {
	return U128{Lo: v}
}

// ParseU128 parses a base-10 string into a U128.
func ParseU128(s string) (U128, error) {
	x, err := uint256.FromDecimal(s)
	if err != nil {
		return U128{}, fmt.Errorf("invalid u128 %q: %w", s, err)
	}
	return Narrow128(x)
}

// MustU128 is ParseU128 for constants; it panics on invalid input.
func MustU128(s string) U128 {
	v, err := ParseU128(s)
	if err != nil {
		panic(err)
	}
	return v
}

// Widen lifts a U128 into the 256-bit domain.
func Widen(v U128) *uint256.Int {
	return &uint256.Int{v.Lo, v.Hi, 0, 0}
}

func Widen64(v uint64) *uint256.Int {
	return uint256.NewInt(v)
}

// Narrow128 converts x back to 128 bits, failing when the value does not fit.
func Narrow128(x *uint256.Int) (U128, error) {
	if x.Gt(maxU128) {
		return U128{}, calcerror.Overflow("bigmath.Narrow128", fmt.Sprintf("%s does not fit in 128 bits", x.Dec()))
	}
	return U128{Lo: x[0], Hi: x[1]}, nil
}

// Narrow64 converts x back to 64 bits, failing when the value does not fit.
func Narrow64(x *uint256.Int) (uint64, error) {
	if !x.IsUint64() {
		return 0, calcerror.Overflow("bigmath.Narrow64", fmt.Sprintf("%s does not fit in 64 bits", x.Dec()))
	}
	return x.Uint64(), nil
}

func Mul(x, y *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).MulOverflow(x, y)
	if overflow {
		return nil, calcerror.Overflow("bigmath.Mul", "product exceeds 256 bits")
	}
	return z, nil
}

func Add(x, y *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).AddOverflow(x, y)
	if overflow {
		return nil, calcerror.Overflow("bigmath.Add", "sum exceeds 256 bits")
	}
	return z, nil
}

func Sub(x, y *uint256.Int) (*uint256.Int, error) {
	z, underflow := new(uint256.Int).SubOverflow(x, y)
	if underflow {
		return nil, calcerror.Overflow("bigmath.Sub", fmt.Sprintf("%s - %s underflows", x.Dec(), y.Dec()))
	}
	return z, nil
}

// Div is floor division. A zero divisor is reported as an overflow, matching checked division.
func Div(x, y *uint256.Int) (*uint256.Int, error) {
	if y.IsZero() {
		return nil, calcerror.Overflow("bigmath.Div", "division by zero")
	}
	return new(uint256.Int).Div(x, y), nil
}

// Lsh shifts x left by n bits, failing if any set bit would be shifted out.
func Lsh(x *uint256.Int, n uint) (*uint256.Int, error) {
	if !x.IsZero() && uint(x.BitLen())+n > 256 {
		return nil, calcerror.Overflow("bigmath.Lsh", fmt.Sprintf("shift by %d exceeds 256 bits", n))
	}
	return new(uint256.Int).Lsh(x, n), nil
}

// MulDiv computes floor(x*y/d) with a checked 256-bit intermediate.
func MulDiv(x, y, d *uint256.Int) (*uint256.Int, error) {
	p, err := Mul(x, y)
	if err != nil {
		return nil, err
	}
	return Div(p, d)
}

// Sqrt is the floor of the square root of x.
func Sqrt(x *uint256.Int) *uint256.Int {
	return new(uint256.Int).Sqrt(x)
}

func Min(x, y *uint256.Int) *uint256.Int {
	if x.Lt(y) {
		return x
	}
	return y
}

func Max(x, y *uint256.Int) *uint256.Int {
	if x.Gt(y) {
		return x
	}
	return y
}

// Cmp128 compares two U128 values.
func Cmp128(a, b U128) int {
	return Widen(a).Cmp(Widen(b))
}
