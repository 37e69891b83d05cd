package liquidity

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"github.com/malbeclabs/bounty/engine/pkg/bigmath"
	"github.com/malbeclabs/bounty/engine/pkg/calcerror"
)

// PriceDisplayPrecision is the number of decimal places Price rounds to.
const PriceDisplayPrecision = 18

var q128 = decimal.NewFromBigInt(new(big.Int).Lsh(big.NewInt(1), 128), 0)

// SolvePrice returns the sqrt price at which amounts a and b back the same liquidity within
// [smin, smax]. It is the positive root of
//
//	s² + (B/(a·smax) - smin)·s - B/a = 0,  B = b << 128
//
// evaluated on one of two branches so no intermediate is negative.
func SolvePrice(a, b uint64, smin, smax bigmath.U128) (bigmath.U128, error) {
	const op = "liquidity.SolvePrice"
	if a == 0 || b == 0 {
		return bigmath.U128{}, calcerror.Precondition(op, fmt.Sprintf("amounts must be non-zero, got a=%d b=%d", a, b))
	}

	amountA := bigmath.Widen64(a)
	pa, pb := bigmath.Widen(smin), bigmath.Widen(smax)

	scaledB, err := bigmath.Lsh(bigmath.Widen64(b), 128)
	if err != nil {
		return bigmath.U128{}, err
	}
	ratio, err := bigmath.Div(scaledB, amountA)
	if err != nil {
		return bigmath.U128{}, err
	}
	bounds, err := bigmath.Mul(pa, pb)
	if err != nil {
		return bigmath.U128{}, err
	}
	ratioOverMax, err := bigmath.Div(ratio, pb)
	if err != nil {
		return bigmath.U128{}, err
	}

	above := ratio.Gt(bounds)
	var delta *uint256.Int
	if above {
		delta, err = bigmath.Sub(ratioOverMax, pa)
	} else {
		delta, err = bigmath.Sub(pa, ratioOverMax)
	}
	if err != nil {
		return bigmath.U128{}, err
	}

	deltaSq, err := bigmath.Mul(delta, delta)
	if err != nil {
		return bigmath.U128{}, err
	}
	fourB, err := bigmath.Mul(scaledB, uint256.NewInt(4))
	if err != nil {
		return bigmath.U128{}, err
	}
	fourBOverA, err := bigmath.Div(fourB, amountA)
	if err != nil {
		return bigmath.U128{}, err
	}
	disc, err := bigmath.Add(deltaSq, fourBOverA)
	if err != nil {
		return bigmath.U128{}, err
	}
	root := bigmath.Sqrt(disc)

	var twice *uint256.Int
	if above {
		twice, err = bigmath.Sub(root, delta)
	} else {
		twice, err = bigmath.Add(root, delta)
	}
	if err != nil {
		return bigmath.U128{}, err
	}
	s, err := bigmath.Narrow128(new(uint256.Int).Rsh(twice, 1))
	if err != nil {
		return bigmath.U128{}, err
	}

	if bigmath.Cmp128(s, smin) < 0 || bigmath.Cmp128(s, smax) > 0 {
		return bigmath.U128{}, calcerror.Infeasible(op, fmt.Sprintf(
			"sqrt price %s outside [%s, %s]", s.String(), smin.String(), smax.String()))
	}
	return s, nil
}

// Price converts a Q64.64 sqrt price into the token B per token A exchange rate.
func Price(sqrtPrice bigmath.U128) decimal.Decimal {
	s := sqrtPrice.BigInt()
	sq := new(big.Int).Mul(s, s)
	return decimal.NewFromBigInt(sq, 0).DivRound(q128, PriceDisplayPrecision)
}
