package liquidity

import (
	"math/rand"
	"testing"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/malbeclabs/bounty/engine/pkg/bigmath"
	"github.com/malbeclabs/bounty/engine/pkg/calcerror"
)

var q64 = bigmath.U128{Hi: 1}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := New(DefaultConfig())
	require.NoError(t, err)
	return e
}

func TestBounty_Liquidity_Config(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	require.Equal(t, "4295048016", cfg.MinSqrtPrice.String())
	require.Equal(t, "79226673521066979257578248091", cfg.MaxSqrtPrice.String())

	bad := DefaultConfig()
	bad.CommitmentBPS = 10_001
	require.Error(t, bad.Validate())

	bad = DefaultConfig()
	bad.RangeLowerFactor = bad.RangeUpperFactor
	require.Error(t, bad.Validate())

	bad = DefaultConfig()
	bad.MinSqrtPrice, bad.MaxSqrtPrice = bad.MaxSqrtPrice, bad.MinSqrtPrice
	_, err := New(bad)
	require.Error(t, err)
}

func TestBounty_Liquidity_MinLaw(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(7))
	for i := range 500 {
		a := uint64(rng.Int63n(1_000_000_000_000)) + 1
		b := uint64(rng.Int63n(1_000_000_000_000)) + 1
		smin := bigmath.U128{Lo: rng.Uint64(), Hi: uint64(rng.Int63n(1 << 20))}
		span := bigmath.U128{Lo: rng.Uint64() | 2, Hi: uint64(rng.Int63n(1 << 10))}
		smaxW, err := bigmath.Add(bigmath.Widen(smin), bigmath.Widen(span))
		require.NoError(t, err)
		smax, err := bigmath.Narrow128(smaxW)
		require.NoError(t, err)
		mid, err := bigmath.Narrow128(new(uint256.Int).Add(bigmath.Widen(smin), new(uint256.Int).Rsh(bigmath.Widen(span), 1)))
		require.NoError(t, err)

		got, err := Liquidity(a, b, mid, smin, smax)
		require.NoError(t, err, "iteration %d", i)

		fromA, err := LiquidityFromA(a, mid, smax)
		require.NoError(t, err)
		fromB, err := LiquidityFromB(b, mid, smin)
		require.NoError(t, err)

		gotW := bigmath.Widen(got)
		require.False(t, gotW.Gt(fromA), "iteration %d", i)
		require.False(t, gotW.Gt(fromB), "iteration %d", i)
		require.True(t, gotW.Eq(fromA) || gotW.Eq(fromB), "iteration %d", i)
	}
}

func TestBounty_Liquidity_Preconditions(t *testing.T) {
	t.Parallel()

	smin := bigmath.U128From64(1_000)
	smax := bigmath.U128From64(2_000)

	for _, s := range []bigmath.U128{smin, smax, bigmath.U128From64(999), bigmath.U128From64(2_001)} {
		_, err := Liquidity(1, 1, s, smin, smax)
		require.ErrorIs(t, err, calcerror.ErrInvalidPrecondition, s.String())
	}

	// 2^63 * 2^127 * 2^126 does not fit in 256 bits.
	huge := bigmath.U128{Hi: 1 << 63}
	_, err := LiquidityFromA(1<<63, bigmath.U128{Hi: 1 << 62}, huge)
	require.ErrorIs(t, err, calcerror.ErrArithmeticOverflow)

	// Both sides overflow when the price sits one unit inside a 2^100 upper bound.
	_, err = Liquidity(1<<63, 1<<63,
		bigmath.U128{Lo: 1<<64 - 1, Hi: 1<<36 - 1},
		bigmath.U128{Lo: 1<<64 - 2, Hi: 1<<36 - 1},
		bigmath.U128{Hi: 1 << 36})
	require.ErrorIs(t, err, calcerror.ErrArithmeticOverflow)
}

func TestBounty_Liquidity_SolvePrice_RightInverse(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	rng := rand.New(rand.NewSource(3))
	for i := range 500 {
		a := uint64(rng.Int63n(1_000_000_000_000)) + 1
		b := uint64(rng.Int63n(1_000_000_000_000)) + 1
		smin, smax, err := e.EstimateRange(b, a)
		require.NoError(t, err)

		s, err := SolvePrice(a, b, smin, smax)
		require.NoError(t, err, "iteration %d", i)
		require.True(t, bigmath.Cmp128(smin, s) < 0 && bigmath.Cmp128(s, smax) < 0, "iteration %d", i)

		// L_A is increasing and L_B decreasing in s, so the two cross between s-1 and s+1.
		below := step(s, -1)
		above := step(s, 1)
		aBelow, err := LiquidityFromA(a, below, smax)
		require.NoError(t, err)
		bBelow, err := LiquidityFromB(b, below, smin)
		require.NoError(t, err)
		aAbove, err := LiquidityFromA(a, above, smax)
		require.NoError(t, err)
		bAbove, err := LiquidityFromB(b, above, smin)
		require.NoError(t, err)
		require.False(t, aBelow.Gt(bBelow), "iteration %d", i)
		require.False(t, aAbove.Lt(bAbove), "iteration %d", i)
	}
}

func TestBounty_Liquidity_SolvePrice_Failures(t *testing.T) {
	t.Parallel()

	smin := bigmath.U128{Hi: 1}
	smax := bigmath.U128{Hi: 2}

	_, err := SolvePrice(0, 1, smin, smax)
	require.ErrorIs(t, err, calcerror.ErrInvalidPrecondition)
	_, err = SolvePrice(1, 0, smin, smax)
	require.ErrorIs(t, err, calcerror.ErrInvalidPrecondition)

	// An inverted range has no feasible price.
	_, err = SolvePrice(1_000_000, 1_000_000, bigmath.U128{Hi: 2}, bigmath.U128{Hi: 1})
	require.ErrorIs(t, err, calcerror.ErrInfeasibleRatio)
	require.Equal(t, calcerror.KindInfeasibleRatio, calcerror.KindOf(err))

	_, err = SolvePrice(1, 1, smin, bigmath.U128{})
	require.ErrorIs(t, err, calcerror.ErrArithmeticOverflow)

	// The floored root can land exactly on smin. The solver accepts it, but no position can be
	// opened there because the liquidity laws need a price strictly inside the range.
	s, err := SolvePrice(1<<63, 1, smin, smax)
	require.NoError(t, err)
	require.Equal(t, smin, s)
	_, err = Liquidity(1<<63, 1, s, smin, smax)
	require.ErrorIs(t, err, calcerror.ErrInvalidPrecondition)
}

func TestBounty_Liquidity_Scenario(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	const a, b = uint64(1_000_000), uint64(10_000_000_000)

	smin, smax, err := e.EstimateRange(b, a)
	require.NoError(t, err)
	require.Equal(t, "1543439076647278183710", smin.String())
	require.Equal(t, "2103297759284363075256", smax.String())

	s, err := SolvePrice(a, b, smin, smax)
	require.NoError(t, err)
	require.Equal(t, "1807843318802272619022", s.String())

	liq, err := Request{TokenAAmount: a, TokenBAmount: b, SqrtPrice: s, SqrtMinPrice: smin, SqrtMaxPrice: smax}.Liquidity()
	require.NoError(t, err)
	require.Equal(t, "12869777131694584519911491827", liq.String())
}

func TestBounty_Liquidity_EstimateRange(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)

	smin, smax, err := e.EstimateRange(1_000_000_000_000, 1_000_000_000_000)
	require.NoError(t, err)
	require.Equal(t, "15434390766472781837", smin.String())
	require.Equal(t, "21032977592843630752", smax.String())

	t.Run("clamped to protocol max", func(t *testing.T) {
		t.Parallel()
		smin, smax, err := e.EstimateRange(1<<64-1, 1)
		require.NoError(t, err)
		require.Equal(t, "66290203575684971262721423677", smin.String())
		require.Equal(t, MaxSqrtPrice, smax)
	})

	t.Run("zero amount is degenerate", func(t *testing.T) {
		t.Parallel()
		_, _, err := e.EstimateRange(0, 1_000_000)
		require.ErrorIs(t, err, calcerror.ErrInvalidPrecondition)
	})

	t.Run("clamped to protocol min", func(t *testing.T) {
		t.Parallel()
		smin, smax, err := e.EstimateRange(1, 1<<64-1)
		require.NoError(t, err)
		require.Equal(t, MinSqrtPrice, smin)
		require.Equal(t, "4897121710", smax.String())
	})

	t.Run("zero pool amount", func(t *testing.T) {
		t.Parallel()
		_, _, err := e.EstimateRange(1, 0)
		require.ErrorIs(t, err, calcerror.ErrArithmeticOverflow)
	})
}

func TestBounty_Liquidity_Bootstrap(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)

	committed, err := e.CommittedAmount(10_000_000_000_000)
	require.NoError(t, err)
	require.Equal(t, uint64(1_000_000_000_000), committed)

	res, err := e.Bootstrap(BootstrapRequest{TokenAAmount: committed})
	require.NoError(t, err)
	require.Equal(t, DefaultPoolAmount, res.TokenBAmount)
	require.Equal(t, "15434390766472781837", res.SqrtMinPrice.String())
	require.Equal(t, "21032977592843630752", res.SqrtMaxPrice.String())
	require.Equal(t, "18078433188022726189", res.SqrtPrice.String())
	require.Equal(t, "128697771316945845158254241374269", res.Liquidity.String())
	require.True(t, Price(res.SqrtPrice).Equal(decimal.RequireFromString("0.960466301827909563")))

	t.Run("unbalanced amounts stay inside the range", func(t *testing.T) {
		t.Parallel()
		res, err := e.Bootstrap(BootstrapRequest{TokenAAmount: 100_000_000_000})
		require.NoError(t, err)
		require.Equal(t, "6628566708273020601", res.SqrtPrice.String())
		require.Equal(t, "4880782911912598740", res.SqrtMinPrice.String())
		require.Equal(t, "6651211516867150810", res.SqrtMaxPrice.String())
	})

	t.Run("zero commitment", func(t *testing.T) {
		t.Parallel()
		_, err := e.Bootstrap(BootstrapRequest{})
		require.ErrorIs(t, err, calcerror.ErrInvalidPrecondition)
	})

	t.Run("commitment of max balance", func(t *testing.T) {
		t.Parallel()
		committed, err := e.CommittedAmount(1<<64 - 1)
		require.NoError(t, err)
		require.Equal(t, uint64(1_844_674_407_370_955_161), committed)
	})
}

func TestBounty_Liquidity_Price(t *testing.T) {
	t.Parallel()

	require.True(t, Price(q64).Equal(decimal.NewFromInt(1)))
	require.True(t, Price(bigmath.U128{Hi: 2}).Equal(decimal.NewFromInt(4)))
	require.True(t, Price(bigmath.U128{Hi: 1 << 32}).Equal(decimal.RequireFromString("18446744073709551616")))
	require.True(t, Price(bigmath.U128{}).IsZero())
}

func step(s bigmath.U128, delta int64) bigmath.U128 {
	w := bigmath.Widen(s)
	if delta < 0 {
		w.SubUint64(w, uint64(-delta))
	} else {
		w.AddUint64(w, uint64(delta))
	}
	v, _ := bigmath.Narrow128(w)
	return v
}
