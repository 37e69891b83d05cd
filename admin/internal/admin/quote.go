package admin

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/malbeclabs/bounty/engine/pkg/bigmath"
	"github.com/malbeclabs/bounty/engine/pkg/liquidity"
)

type BootstrapQuote struct {
	CreatorBalance uint64 `json:"creator_balance,omitempty"`
	TokenAAmount   uint64 `json:"token_a_amount"`
	TokenBAmount   uint64 `json:"token_b_amount"`
	SqrtPrice      string `json:"sqrt_price"`
	SqrtMinPrice   string `json:"sqrt_min_price"`
	SqrtMaxPrice   string `json:"sqrt_max_price"`
	Liquidity      string `json:"liquidity"`
	Price          string `json:"price"`
}

// QuoteBootstrap prices the bootstrap position for a creator balance, or for an explicit token A
// amount when creatorBalance is zero, and writes it as JSON.
func QuoteBootstrap(w io.Writer, eng *liquidity.Engine, creatorBalance, amountA, amountB uint64) error {
	if creatorBalance > 0 {
		committed, err := eng.CommittedAmount(creatorBalance)
		if err != nil {
			return fmt.Errorf("failed to compute committed amount: %w", err)
		}
		amountA = committed
	}
	res, err := eng.Bootstrap(liquidity.BootstrapRequest{TokenAAmount: amountA, TokenBAmount: amountB})
	if err != nil {
		return err
	}
	return writeJSON(w, BootstrapQuote{
		CreatorBalance: creatorBalance,
		TokenAAmount:   res.TokenAAmount,
		TokenBAmount:   res.TokenBAmount,
		SqrtPrice:      res.SqrtPrice.String(),
		SqrtMinPrice:   res.SqrtMinPrice.String(),
		SqrtMaxPrice:   res.SqrtMaxPrice.String(),
		Liquidity:      res.Liquidity.String(),
		Price:          liquidity.Price(res.SqrtPrice).String(),
	})
}

// QuoteLiquidity computes the liquidity of a deposit at the given Q64.64 prices.
func QuoteLiquidity(w io.Writer, amountA, amountB uint64, sqrtPrice, sqrtMin, sqrtMax string) error {
	req := liquidity.Request{TokenAAmount: amountA, TokenBAmount: amountB}
	var err error
	if req.SqrtPrice, err = bigmath.ParseU128(sqrtPrice); err != nil {
		return fmt.Errorf("invalid sqrt price: %w", err)
	}
	if req.SqrtMinPrice, err = bigmath.ParseU128(sqrtMin); err != nil {
		return fmt.Errorf("invalid sqrt min price: %w", err)
	}
	if req.SqrtMaxPrice, err = bigmath.ParseU128(sqrtMax); err != nil {
		return fmt.Errorf("invalid sqrt max price: %w", err)
	}
	liq, err := req.Liquidity()
	if err != nil {
		return err
	}
	return writeJSON(w, map[string]string{"liquidity": liq.String()})
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
