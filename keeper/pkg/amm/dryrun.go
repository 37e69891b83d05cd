package amm

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gagliardetto/solana-go"
)

// ErrPoolStateUnavailable is returned by DryRunClient for pools it was not given.
var ErrPoolStateUnavailable = errors.New("pool state unavailable")

// DryRunClient encodes every instruction and logs it instead of submitting it. Pool state is
// served from Pools.
type DryRunClient struct {
	Logger *slog.Logger
	Pools  map[solana.PublicKey]*PoolState
}

type instructionData interface {
	InstructionData() ([]byte, error)
}

func (c *DryRunClient) PoolState(_ context.Context, pool solana.PublicKey) (*PoolState, error) {
	if st, ok := c.Pools[pool]; ok {
		return st, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrPoolStateUnavailable, pool)
}

func (c *DryRunClient) InitializePool(_ context.Context, params InitializePoolParams) (solana.Signature, error) {
	return c.log(InstructionInitializeCustomizablePool, params, "creator", params.Creator)
}

func (c *DryRunClient) CreatePosition(_ context.Context, params CreatePositionParams) (solana.Signature, error) {
	return c.log(InstructionCreatePosition, params, "pool", params.Pool, "owner", params.Owner)
}

func (c *DryRunClient) AddLiquidity(_ context.Context, params AddLiquidityParams) (solana.Signature, error) {
	return c.log(InstructionAddLiquidity, params, "pool", params.Pool, "position", params.Position)
}

func (c *DryRunClient) Swap(_ context.Context, params SwapParams) (solana.Signature, error) {
	return c.log(InstructionSwap, params, "pool", params.Pool, "amountIn", params.AmountIn)
}

func (c *DryRunClient) ClaimFees(_ context.Context, params ClaimFeesParams) (solana.Signature, error) {
	return c.log(InstructionClaimPositionFee, params, "pool", params.Pool, "position", params.Position, "receiver", params.Receiver)
}

func (c *DryRunClient) log(name string, ix instructionData, attrs ...any) (solana.Signature, error) {
	data, err := ix.InstructionData()
	if err != nil {
		return solana.Signature{}, err
	}
	if c.Logger != nil {
		c.Logger.Info("amm: dry run", append([]any{"instruction", name, "data", hex.EncodeToString(data)}, attrs...)...)
	}
	return solana.Signature{}, nil
}
