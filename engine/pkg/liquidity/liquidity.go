// Package liquidity sizes and prices a concentrated-liquidity AMM position. All sqrt prices are
// Q64.64 fixed point and every intermediate is computed in checked 256-bit space.
package liquidity

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/malbeclabs/bounty/engine/pkg/bigmath"
	"github.com/malbeclabs/bounty/engine/pkg/calcerror"
)

// Request describes a position to size.
type Request struct {
	TokenAAmount uint64
	TokenBAmount uint64
	SqrtPrice    bigmath.U128
	SqrtMinPrice bigmath.U128
	SqrtMaxPrice bigmath.U128
}

func (r Request) Liquidity() (bigmath.U128, error) {
	return Liquidity(r.TokenAAmount, r.TokenBAmount, r.SqrtPrice, r.SqrtMinPrice, r.SqrtMaxPrice)
}

// Liquidity returns the largest liquidity both token amounts can back at sqrt price s within
// [smin, smax]: the minimum of the two single-sided liquidities.
func Liquidity(a, b uint64, s, smin, smax bigmath.U128) (bigmath.U128, error) {
	if bigmath.Cmp128(smin, s) >= 0 || bigmath.Cmp128(s, smax) >= 0 {
		return bigmath.U128{}, calcerror.Precondition("liquidity.Liquidity", fmt.Sprintf(
			"sqrt price %s not strictly inside (%s, %s)", s.String(), smin.String(), smax.String()))
	}

	fromA, err := LiquidityFromA(a, s, smax)
	if err != nil {
		return bigmath.U128{}, err
	}
	fromB, err := LiquidityFromB(b, s, smin)
	if err != nil {
		return bigmath.U128{}, err
	}
	return bigmath.Narrow128(bigmath.Min(fromA, fromB))
}

// LiquidityFromA is a * smax * s / (smax - s).
func LiquidityFromA(a uint64, s, smax bigmath.U128) (*uint256.Int, error) {
	num, err := bigmath.Mul(bigmath.Widen64(a), bigmath.Widen(smax))
	if err != nil {
		return nil, err
	}
	if num, err = bigmath.Mul(num, bigmath.Widen(s)); err != nil {
		return nil, err
	}
	den, err := bigmath.Sub(bigmath.Widen(smax), bigmath.Widen(s))
	if err != nil {
		return nil, err
	}
	return bigmath.Div(num, den)
}

// LiquidityFromB is (b << 128) / (s - smin).
func LiquidityFromB(b uint64, s, smin bigmath.U128) (*uint256.Int, error) {
	num, err := bigmath.Lsh(bigmath.Widen64(b), 128)
	if err != nil {
		return nil, err
	}
	den, err := bigmath.Sub(bigmath.Widen(s), bigmath.Widen(smin))
	if err != nil {
		return nil, err
	}
	return bigmath.Div(num, den)
}
