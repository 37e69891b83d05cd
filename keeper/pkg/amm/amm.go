// Package amm describes the concentrated-liquidity AMM the launch pool lives on: pool state,
// the parameters of the instructions the keeper and operator send, and the client interface.
package amm

import (
	"context"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

type CollectFeeMode uint8

const (
	CollectFeeModeBothToken CollectFeeMode = iota
	CollectFeeModeOnlyB
)

func (m CollectFeeMode) String() string {
	switch m {
	case CollectFeeModeBothToken:
		return "both_token"
	case CollectFeeModeOnlyB:
		return "only_b"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(m))
	}
}

type ActivationType uint8

const (
	ActivationTypeSlot ActivationType = iota
	ActivationTypeTimestamp
)

type BaseFeeMode uint8

const (
	BaseFeeModeLinear BaseFeeMode = iota
	BaseFeeModeExponential
	BaseFeeModeRateLimiter
)

// DefaultCliffFeeNumerator is a 0.25% base fee over a 1e9 denominator.
const DefaultCliffFeeNumerator uint64 = 2_500_000

type BaseFeeParameters struct {
	CliffFeeNumerator uint64
	FirstFactor       uint16
	SecondFactor      [8]uint8
	ThirdFactor       uint64
	BaseFeeMode       BaseFeeMode
}

type DynamicFeeParameters struct {
	BinStep                  uint16
	BinStepU128              bin.Uint128
	FilterPeriod             uint16
	DecayPeriod              uint16
	ReductionFactor          uint16
	MaxVolatilityAccumulator uint32
	VariableFeeControl       uint32
}

type PoolFeeParameters struct {
	BaseFee    BaseFeeParameters
	Padding    [3]uint8
	DynamicFee *DynamicFeeParameters `bin:"optional"`
}

// DefaultPoolFees is a flat base fee with no scheduler and no dynamic fee.
func DefaultPoolFees() PoolFeeParameters {
	return PoolFeeParameters{BaseFee: BaseFeeParameters{CliffFeeNumerator: DefaultCliffFeeNumerator}}
}

type PoolState struct {
	Address        solana.PublicKey
	TokenAMint     solana.PublicKey
	TokenBMint     solana.PublicKey
	TokenAVault    solana.PublicKey
	TokenBVault    solana.PublicKey
	SqrtPrice      bin.Uint128
	SqrtMinPrice   bin.Uint128
	SqrtMaxPrice   bin.Uint128
	Liquidity      bin.Uint128
	CollectFeeMode CollectFeeMode
}

type InitializePoolParams struct {
	Creator         solana.PublicKey
	PositionNFT     solana.PublicKey
	TokenAMint      solana.PublicKey
	TokenBMint      solana.PublicKey
	TokenAAmount    uint64
	TokenBAmount    uint64
	PoolFees        PoolFeeParameters
	SqrtMinPrice    bin.Uint128
	SqrtMaxPrice    bin.Uint128
	HasAlphaVault   bool
	Liquidity       bin.Uint128
	SqrtPrice       bin.Uint128
	ActivationType  ActivationType
	CollectFeeMode  CollectFeeMode
	ActivationPoint *uint64
}

type CreatePositionParams struct {
	Owner       solana.PublicKey
	Pool        solana.PublicKey
	PositionNFT solana.PublicKey
}

type AddLiquidityParams struct {
	Owner                 solana.PublicKey
	Pool                  solana.PublicKey
	Position              solana.PublicKey
	LiquidityDelta        bin.Uint128
	TokenAAmountThreshold uint64
	TokenBAmountThreshold uint64
}

type SwapParams struct {
	Payer            solana.PublicKey
	Pool             solana.PublicKey
	InputMint        solana.PublicKey
	AmountIn         uint64
	MinimumAmountOut uint64
}

type ClaimFeesParams struct {
	Owner    solana.PublicKey
	Pool     solana.PublicKey
	Position solana.PublicKey
	// Receiver is the token B account fees are claimed into.
	Receiver solana.PublicKey
}

// Client submits AMM instructions and reads pool state. Implementations return the transaction
// signature of each submitted instruction.
type Client interface {
	PoolState(ctx context.Context, pool solana.PublicKey) (*PoolState, error)
	InitializePool(ctx context.Context, params InitializePoolParams) (solana.Signature, error)
	CreatePosition(ctx context.Context, params CreatePositionParams) (solana.Signature, error)
	AddLiquidity(ctx context.Context, params AddLiquidityParams) (solana.Signature, error)
	Swap(ctx context.Context, params SwapParams) (solana.Signature, error)
	ClaimFees(ctx context.Context, params ClaimFeesParams) (solana.Signature, error)
}
