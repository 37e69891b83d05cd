// Package pool orchestrates the launch's AMM and vesting operations: opening the pool, seeding
// the fee position, selling inventory and issuing grants.
package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gagliardetto/solana-go"
	"github.com/jonboulle/clockwork"

	"github.com/malbeclabs/bounty/engine/pkg/liquidity"
	"github.com/malbeclabs/bounty/keeper/pkg/amm"
	"github.com/malbeclabs/bounty/keeper/pkg/onchain"
	"github.com/malbeclabs/bounty/keeper/pkg/pda"
	"github.com/malbeclabs/bounty/keeper/pkg/streams"
)

// ErrInvalidCollectFeeMode is returned when the pool does not collect fees in token B only.
var ErrInvalidCollectFeeMode = errors.New("invalid collect fee mode")

type OperatorConfig struct {
	Logger    *slog.Logger
	Clock     clockwork.Clock
	AMM       amm.Client
	Streams   streams.Client
	Accounts  streams.AccountReader
	Liquidity *liquidity.Engine
	Programs  pda.Programs
}

func (cfg *OperatorConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.AMM == nil {
		return errors.New("amm client is required")
	}
	if cfg.Streams == nil {
		return errors.New("streams client is required")
	}
	if cfg.Accounts == nil {
		return errors.New("account reader is required")
	}
	if cfg.Liquidity == nil {
		return errors.New("liquidity engine is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Programs.Bounty.IsZero() {
		cfg.Programs = pda.DefaultPrograms()
	}
	return nil
}

type Operator struct {
	log *slog.Logger
	cfg OperatorConfig
}

func NewOperator(cfg OperatorConfig) (*Operator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Operator{log: cfg.Logger, cfg: cfg}, nil
}

// Launch identifies a token pair: A is the launched token, B the quote token fees are paid in.
type Launch struct {
	MintA solana.PublicKey
	MintB solana.PublicKey
}

type BootstrapPlan struct {
	Params amm.InitializePoolParams
	Result liquidity.BootstrapResult
	Pool   solana.PublicKey
}

// PlanBootstrap sizes the initial pool position from the creator's token A balance without
// sending anything.
func (o *Operator) PlanBootstrap(l Launch, balanceA uint64) (BootstrapPlan, error) {
	committed, err := o.cfg.Liquidity.CommittedAmount(balanceA)
	if err != nil {
		return BootstrapPlan{}, fmt.Errorf("failed to compute committed amount: %w", err)
	}
	res, err := o.cfg.Liquidity.Bootstrap(liquidity.BootstrapRequest{TokenAAmount: committed})
	if err != nil {
		return BootstrapPlan{}, err
	}

	accounts, err := o.cfg.Programs.Launch(l.MintA, l.MintB)
	if err != nil {
		return BootstrapPlan{}, err
	}

	return BootstrapPlan{
		Pool:   accounts.Pool.Key,
		Result: res,
		Params: amm.InitializePoolParams{
			Creator:        accounts.Creator.Key,
			PositionNFT:    accounts.CreatorPositionNFT.Key,
			TokenAMint:     l.MintA,
			TokenBMint:     l.MintB,
			TokenAAmount:   res.TokenAAmount,
			TokenBAmount:   res.TokenBAmount,
			PoolFees:       amm.DefaultPoolFees(),
			SqrtMinPrice:   res.SqrtMinPrice,
			SqrtMaxPrice:   res.SqrtMaxPrice,
			HasAlphaVault:  false,
			Liquidity:      res.Liquidity,
			SqrtPrice:      res.SqrtPrice,
			ActivationType: amm.ActivationTypeSlot,
			CollectFeeMode: amm.CollectFeeModeOnlyB,
		},
	}, nil
}

// Bootstrap opens the launch pool.
func (o *Operator) Bootstrap(ctx context.Context, l Launch, balanceA uint64) (BootstrapPlan, solana.Signature, error) {
	plan, err := o.PlanBootstrap(l, balanceA)
	if err != nil {
		return BootstrapPlan{}, solana.Signature{}, err
	}
	sig, err := o.cfg.AMM.InitializePool(ctx, plan.Params)
	if err != nil {
		return BootstrapPlan{}, solana.Signature{}, fmt.Errorf("failed to initialize pool: %w", err)
	}
	o.log.Info("pool: initialized",
		"pool", plan.Pool,
		"tokenA", plan.Result.TokenAAmount,
		"tokenB", plan.Result.TokenBAmount,
		"liquidity", plan.Result.Liquidity.String(),
		"signature", sig)
	return plan, sig, nil
}

type DepositResult struct {
	Pool      solana.PublicKey
	Position  solana.PublicKey
	Liquidity liquidity.Request
	Delta     amm.AddLiquidityParams
}

// Deposit opens the fee position owned by the launch's fee position owner and adds the owner's
// full balances to it at the pool's current price.
func (o *Operator) Deposit(ctx context.Context, l Launch, balanceA, balanceB uint64) (DepositResult, error) {
	accounts, err := o.cfg.Programs.Launch(l.MintA, l.MintB)
	if err != nil {
		return DepositResult{}, err
	}

	// 1. The pool must pay fees in token B only, or the position would accrue token A.
	state, err := o.cfg.AMM.PoolState(ctx, accounts.Pool.Key)
	if err != nil {
		return DepositResult{}, fmt.Errorf("failed to read pool state: %w", err)
	}
	if state.CollectFeeMode != amm.CollectFeeModeOnlyB {
		return DepositResult{}, fmt.Errorf("%w: pool %s collects %s", ErrInvalidCollectFeeMode, accounts.Pool.Key, state.CollectFeeMode)
	}

	// 2. Size the deposit before sending anything.
	req := liquidity.Request{
		TokenAAmount: balanceA,
		TokenBAmount: balanceB,
		SqrtPrice:    state.SqrtPrice,
		SqrtMinPrice: state.SqrtMinPrice,
		SqrtMaxPrice: state.SqrtMaxPrice,
	}
	delta, err := req.Liquidity()
	if err != nil {
		return DepositResult{}, fmt.Errorf("failed to compute liquidity delta: %w", err)
	}

	// 3. Create the position, then fund it.
	if _, err := o.cfg.AMM.CreatePosition(ctx, amm.CreatePositionParams{
		Owner:       accounts.FeePositionOwner.Key,
		Pool:        accounts.Pool.Key,
		PositionNFT: accounts.FeePositionNFT.Key,
	}); err != nil {
		return DepositResult{}, fmt.Errorf("failed to create position: %w", err)
	}
	add := amm.AddLiquidityParams{
		Owner:                 accounts.FeePositionOwner.Key,
		Pool:                  accounts.Pool.Key,
		Position:              accounts.FeePosition.Key,
		LiquidityDelta:        delta,
		TokenAAmountThreshold: balanceA,
		TokenBAmountThreshold: balanceB,
	}
	if _, err := o.cfg.AMM.AddLiquidity(ctx, add); err != nil {
		return DepositResult{}, fmt.Errorf("failed to add liquidity: %w", err)
	}

	o.log.Info("pool: fee position funded", "pool", accounts.Pool.Key, "position", accounts.FeePosition.Key, "liquidity", delta.String())
	return DepositResult{Pool: accounts.Pool.Key, Position: accounts.FeePosition.Key, Liquidity: req, Delta: add}, nil
}

// Swap sells amountIn of token A for token B at any price.
func (o *Operator) Swap(ctx context.Context, l Launch, payer solana.PublicKey, amountIn uint64) (solana.Signature, error) {
	if amountIn == 0 {
		return solana.Signature{}, liquidity.ErrInvalidAmount
	}
	poolAddr, err := o.cfg.Programs.Pool(l.MintA, l.MintB)
	if err != nil {
		return solana.Signature{}, err
	}
	sig, err := o.cfg.AMM.Swap(ctx, amm.SwapParams{
		Payer:            payer,
		Pool:             poolAddr.Key,
		InputMint:        l.MintA,
		AmountIn:         amountIn,
		MinimumAmountOut: 0,
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to swap: %w", err)
	}
	return sig, nil
}

// Grant is a vesting stream opened by CreateGrant.
type Grant struct {
	ID     solana.PublicKey
	Params streams.GrantParams
}

// CreateGrant opens the next vesting stream of the launch for recipient with the default grant
// terms, starting now.
func (o *Operator) CreateGrant(ctx context.Context, l Launch, recipient, recipientTokens solana.PublicKey) (Grant, error) {
	creator, err := o.cfg.Programs.Creator(l.MintB)
	if err != nil {
		return Grant{}, err
	}
	data, err := o.cfg.Accounts.AccountData(ctx, creator.Key)
	if err != nil {
		return Grant{}, fmt.Errorf("failed to read creator: %w", err)
	}
	c, err := onchain.DecodeCreator(data)
	if err != nil {
		return Grant{}, err
	}
	if c.Streams == 255 {
		return Grant{}, fmt.Errorf("creator %s has no stream slots left", creator.Key)
	}

	params := streams.DefaultGrantParams(creator.Key, l.MintA, recipient, recipientTokens, c.Streams, o.cfg.Clock.Now().Unix())
	if err := params.Validate(); err != nil {
		return Grant{}, err
	}
	expected, err := o.cfg.Programs.StreamMetadata(creator.Key, c.Streams)
	if err != nil {
		return Grant{}, err
	}

	id, err := o.cfg.Streams.CreateGrant(ctx, params)
	if err != nil {
		return Grant{}, fmt.Errorf("failed to create grant: %w", err)
	}
	if id != expected.Key {
		return Grant{}, fmt.Errorf("grant created at %s, expected %s", id, expected.Key)
	}
	o.log.Info("pool: grant created", "grant", id, "recipient", recipient, "index", c.Streams)
	return Grant{ID: id, Params: params}, nil
}
