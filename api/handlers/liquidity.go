package handlers

import (
	"net/http"

	"github.com/malbeclabs/bounty/engine/pkg/bigmath"
	"github.com/malbeclabs/bounty/engine/pkg/liquidity"
)

// U128 values travel as base-10 strings.

type LiquidityRequest struct {
	TokenAAmount uint64 `json:"token_a_amount"`
	TokenBAmount uint64 `json:"token_b_amount"`
	SqrtPrice    string `json:"sqrt_price"`
	SqrtMinPrice string `json:"sqrt_min_price"`
	SqrtMaxPrice string `json:"sqrt_max_price"`
}

type LiquidityResponse struct {
	Liquidity string `json:"liquidity"`
}

func (a *API) PostLiquidity(w http.ResponseWriter, r *http.Request) {
	var req LiquidityRequest
	if !decodeBody(w, r, &req) {
		return
	}

	var (
		lreq liquidity.Request
		err  error
	)
	lreq.TokenAAmount, lreq.TokenBAmount = req.TokenAAmount, req.TokenBAmount
	for _, f := range []struct {
		name string
		in   string
		out  *bigmath.U128
	}{
		{"sqrt_price", req.SqrtPrice, &lreq.SqrtPrice},
		{"sqrt_min_price", req.SqrtMinPrice, &lreq.SqrtMinPrice},
		{"sqrt_max_price", req.SqrtMaxPrice, &lreq.SqrtMaxPrice},
	} {
		if *f.out, err = bigmath.ParseU128(f.in); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", f.name+": "+err.Error())
			return
		}
	}

	liq, err := lreq.Liquidity()
	if err != nil {
		a.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, LiquidityResponse{Liquidity: liq.String()})
}

type BootstrapRequest struct {
	// CreatorBalance, when set, replaces TokenAAmount with the committed share of it.
	CreatorBalance uint64 `json:"creator_balance,omitempty"`
	TokenAAmount   uint64 `json:"token_a_amount,omitempty"`
	TokenBAmount   uint64 `json:"token_b_amount,omitempty"`
}

type BootstrapResponse struct {
	TokenAAmount uint64 `json:"token_a_amount"`
	TokenBAmount uint64 `json:"token_b_amount"`
	SqrtPrice    string `json:"sqrt_price"`
	SqrtMinPrice string `json:"sqrt_min_price"`
	SqrtMaxPrice string `json:"sqrt_max_price"`
	Liquidity    string `json:"liquidity"`
	Price        string `json:"price"`
}

func (a *API) PostBootstrap(w http.ResponseWriter, r *http.Request) {
	var req BootstrapRequest
	if !decodeBody(w, r, &req) {
		return
	}

	amountA := req.TokenAAmount
	if req.CreatorBalance > 0 {
		committed, err := a.cfg.Liquidity.CommittedAmount(req.CreatorBalance)
		if err != nil {
			a.writeEngineError(w, err)
			return
		}
		amountA = committed
	}

	res, err := a.cfg.Liquidity.Bootstrap(liquidity.BootstrapRequest{TokenAAmount: amountA, TokenBAmount: req.TokenBAmount})
	if err != nil {
		a.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, BootstrapResponse{
		TokenAAmount: res.TokenAAmount,
		TokenBAmount: res.TokenBAmount,
		SqrtPrice:    res.SqrtPrice.String(),
		SqrtMinPrice: res.SqrtMinPrice.String(),
		SqrtMaxPrice: res.SqrtMaxPrice.String(),
		Liquidity:    res.Liquidity.String(),
		Price:        liquidity.Price(res.SqrtPrice).String(),
	})
}
