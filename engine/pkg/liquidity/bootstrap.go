package liquidity

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/malbeclabs/bounty/engine/pkg/bigmath"
	"github.com/malbeclabs/bounty/engine/pkg/calcerror"
)

// ErrInvalidAmount is returned when a bootstrap would open a position with zero liquidity.
var ErrInvalidAmount = errors.New("invalid amount")

type BootstrapRequest struct {
	TokenAAmount uint64
	// TokenBAmount defaults to the configured pool amount when zero.
	TokenBAmount uint64
}

type BootstrapResult struct {
	TokenAAmount uint64
	TokenBAmount uint64
	SqrtPrice    bigmath.U128
	SqrtMinPrice bigmath.U128
	SqrtMaxPrice bigmath.U128
	Liquidity    bigmath.U128
}

type Engine struct {
	cfg Config
}

func New(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{cfg: cfg}, nil
}

func (e *Engine) Config() Config {
	return e.cfg
}

// CommittedAmount is the part of a creator balance that goes into the bootstrap position.
func (e *Engine) CommittedAmount(balance uint64) (uint64, error) {
	v, err := bigmath.MulDiv(uint256.NewInt(balance), uint256.NewInt(e.cfg.CommitmentBPS), uint256.NewInt(BPSDenominator))
	if err != nil {
		return 0, err
	}
	return bigmath.Narrow64(v)
}

// EstimateRange returns a sqrt price window around the price implied by amountA against
// poolAmountB, scaled by the configured range factors and clamped to the protocol bounds.
func (e *Engine) EstimateRange(amountA, poolAmountB uint64) (bigmath.U128, bigmath.U128, error) {
	const op = "liquidity.EstimateRange"

	scaledA, err := bigmath.Lsh(bigmath.Widen64(amountA), 128)
	if err != nil {
		return bigmath.U128{}, bigmath.U128{}, err
	}
	price, err := bigmath.Div(scaledA, bigmath.Widen64(poolAmountB))
	if err != nil {
		return bigmath.U128{}, bigmath.U128{}, err
	}
	sqrtPrice := bigmath.Sqrt(price)

	denom := uint256.NewInt(RangeFactorDenominator)
	lower, err := bigmath.MulDiv(sqrtPrice, uint256.NewInt(e.cfg.RangeLowerFactor), denom)
	if err != nil {
		return bigmath.U128{}, bigmath.U128{}, err
	}
	upper, err := bigmath.MulDiv(sqrtPrice, uint256.NewInt(e.cfg.RangeUpperFactor), denom)
	if err != nil {
		return bigmath.U128{}, bigmath.U128{}, err
	}

	protoMin, protoMax := bigmath.Widen(e.cfg.MinSqrtPrice), bigmath.Widen(e.cfg.MaxSqrtPrice)
	lower = bigmath.Max(lower, protoMin)
	upper = bigmath.Min(upper, protoMax)

	if !lower.Lt(upper) {
		return bigmath.U128{}, bigmath.U128{}, calcerror.Precondition(op, fmt.Sprintf("degenerate range [%s, %s]", lower.Dec(), upper.Dec()))
	}
	if lower.Gt(protoMax) || upper.Lt(protoMin) {
		return bigmath.U128{}, bigmath.U128{}, calcerror.Precondition(op, fmt.Sprintf("range [%s, %s] outside protocol bounds", lower.Dec(), upper.Dec()))
	}

	minSqrt, err := bigmath.Narrow128(lower)
	if err != nil {
		return bigmath.U128{}, bigmath.U128{}, err
	}
	maxSqrt, err := bigmath.Narrow128(upper)
	if err != nil {
		return bigmath.U128{}, bigmath.U128{}, err
	}
	return minSqrt, maxSqrt, nil
}

// Bootstrap prices and sizes the initial pool position: range estimate, then price solve, then
// liquidity.
func (e *Engine) Bootstrap(req BootstrapRequest) (BootstrapResult, error) {
	amountB := req.TokenBAmount
	if amountB == 0 {
		amountB = e.cfg.PoolAmount
	}

	minSqrt, maxSqrt, err := e.EstimateRange(req.TokenAAmount, amountB)
	if err != nil {
		return BootstrapResult{}, fmt.Errorf("failed to estimate price range: %w", err)
	}
	sqrtPrice, err := SolvePrice(req.TokenAAmount, amountB, minSqrt, maxSqrt)
	if err != nil {
		return BootstrapResult{}, fmt.Errorf("failed to solve sqrt price: %w", err)
	}
	liq, err := Liquidity(req.TokenAAmount, amountB, sqrtPrice, minSqrt, maxSqrt)
	if err != nil {
		return BootstrapResult{}, fmt.Errorf("failed to compute liquidity: %w", err)
	}
	if liq.Lo == 0 && liq.Hi == 0 {
		return BootstrapResult{}, ErrInvalidAmount
	}

	return BootstrapResult{
		TokenAAmount: req.TokenAAmount,
		TokenBAmount: amountB,
		SqrtPrice:    sqrtPrice,
		SqrtMinPrice: minSqrt,
		SqrtMaxPrice: maxSqrt,
		Liquidity:    liq,
	}, nil
}
