package amm

import (
	"bytes"
	"crypto/sha256"
	"fmt"

	bin "github.com/gagliardetto/binary"
)

// Instruction names of the AMM program.
const (
	InstructionInitializeCustomizablePool = "initialize_customizable_pool"
	InstructionCreatePosition             = "create_position"
	InstructionAddLiquidity               = "add_liquidity"
	InstructionSwap                       = "swap"
	InstructionClaimPositionFee           = "claim_position_fee"
)

// InstructionDiscriminator is the 8-byte Anchor selector of an instruction.
func InstructionDiscriminator(name string) [8]byte {
	sum := sha256.Sum256([]byte("global:" + name))
	var d [8]byte
	copy(d[:], sum[:8])
	return d
}

type initializeCustomizablePoolArgs struct {
	PoolFees        PoolFeeParameters
	SqrtMinPrice    bin.Uint128
	SqrtMaxPrice    bin.Uint128
	HasAlphaVault   bool
	Liquidity       bin.Uint128
	SqrtPrice       bin.Uint128
	ActivationType  uint8
	CollectFeeMode  uint8
	ActivationPoint *uint64 `bin:"optional"`
}

type addLiquidityArgs struct {
	LiquidityDelta        bin.Uint128
	TokenAAmountThreshold uint64
	TokenBAmountThreshold uint64
}

type swapArgs struct {
	AmountIn         uint64
	MinimumAmountOut uint64
}

func (p InitializePoolParams) InstructionData() ([]byte, error) {
	return encodeInstruction(InstructionInitializeCustomizablePool, initializeCustomizablePoolArgs{
		PoolFees:        p.PoolFees,
		SqrtMinPrice:    p.SqrtMinPrice,
		SqrtMaxPrice:    p.SqrtMaxPrice,
		HasAlphaVault:   p.HasAlphaVault,
		Liquidity:       p.Liquidity,
		SqrtPrice:       p.SqrtPrice,
		ActivationType:  uint8(p.ActivationType),
		CollectFeeMode:  uint8(p.CollectFeeMode),
		ActivationPoint: p.ActivationPoint,
	})
}

func (p CreatePositionParams) InstructionData() ([]byte, error) {
	return encodeInstruction(InstructionCreatePosition, nil)
}

func (p AddLiquidityParams) InstructionData() ([]byte, error) {
	return encodeInstruction(InstructionAddLiquidity, addLiquidityArgs{
		LiquidityDelta:        p.LiquidityDelta,
		TokenAAmountThreshold: p.TokenAAmountThreshold,
		TokenBAmountThreshold: p.TokenBAmountThreshold,
	})
}

func (p SwapParams) InstructionData() ([]byte, error) {
	return encodeInstruction(InstructionSwap, swapArgs{AmountIn: p.AmountIn, MinimumAmountOut: p.MinimumAmountOut})
}

func (p ClaimFeesParams) InstructionData() ([]byte, error) {
	return encodeInstruction(InstructionClaimPositionFee, nil)
}

func encodeInstruction(name string, args any) ([]byte, error) {
	var buf bytes.Buffer
	disc := InstructionDiscriminator(name)
	buf.Write(disc[:])
	if args != nil {
		if err := bin.NewBorshEncoder(&buf).Encode(args); err != nil {
			return nil, fmt.Errorf("failed to encode %s args: %w", name, err)
		}
	}
	return buf.Bytes(), nil
}
