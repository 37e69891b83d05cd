package admin

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/jonboulle/clockwork"

	"github.com/malbeclabs/bounty/engine/pkg/bigmath"
	"github.com/malbeclabs/bounty/engine/pkg/liquidity"
	"github.com/malbeclabs/bounty/keeper/pkg/amm"
	"github.com/malbeclabs/bounty/keeper/pkg/pda"
	"github.com/malbeclabs/bounty/keeper/pkg/pool"
	"github.com/malbeclabs/bounty/keeper/pkg/streams"
)

// ErrRPCRequired is returned by operator commands that need chain reads when no RPC is configured.
var ErrRPCRequired = errors.New("--solana-rpc-url is required for this command")

type offlineAccounts struct{}

func (offlineAccounts) AccountData(context.Context, solana.PublicKey) ([]byte, error) {
	return nil, ErrRPCRequired
}

func (offlineAccounts) MultipleAccountData(context.Context, []solana.PublicKey) ([][]byte, error) {
	return nil, ErrRPCRequired
}

type OperatorConfig struct {
	Logger   *slog.Logger
	Clock    clockwork.Clock
	Programs pda.Programs
	Launch   pool.Launch

	// Accounts backs creator and stream reads. Nil means offline.
	Accounts streams.AccountReader
	// PoolState is served for the launch pool to commands that read it.
	PoolState *amm.PoolState
}

// NewDryRunOperator builds an operator whose AMM and streams clients encode and log every call
// instead of submitting it.
func NewDryRunOperator(cfg OperatorConfig) (*pool.Operator, error) {
	if cfg.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if cfg.Programs.Bounty.IsZero() {
		cfg.Programs = pda.DefaultPrograms()
	}

	pools := make(map[solana.PublicKey]*amm.PoolState)
	if cfg.PoolState != nil {
		addr, err := cfg.Programs.Pool(cfg.Launch.MintA, cfg.Launch.MintB)
		if err != nil {
			return nil, err
		}
		st := *cfg.PoolState
		st.Address = addr.Key
		pools[addr.Key] = &st
	}

	var accounts streams.AccountReader = offlineAccounts{}
	var reader streams.Reader
	if cfg.Accounts != nil {
		accounts = cfg.Accounts
		cr, err := streams.NewChainReader(streams.ChainReaderConfig{Logger: cfg.Logger, Accounts: cfg.Accounts, Programs: cfg.Programs})
		if err != nil {
			return nil, err
		}
		reader = cr
	}

	eng, err := liquidity.New(liquidity.DefaultConfig())
	if err != nil {
		return nil, err
	}
	return pool.NewOperator(pool.OperatorConfig{
		Logger:    cfg.Logger,
		Clock:     cfg.Clock,
		AMM:       &amm.DryRunClient{Logger: cfg.Logger, Pools: pools},
		Streams:   &streams.DryRunClient{Logger: cfg.Logger, Reader: reader, Programs: cfg.Programs},
		Accounts:  accounts,
		Liquidity: eng,
		Programs:  cfg.Programs,
	})
}

// ParsePoolState builds the pool state deposits are sized against from Q64.64 prices and a
// collect fee mode name.
func ParsePoolState(sqrtPrice, sqrtMin, sqrtMax, collectFeeMode string) (*amm.PoolState, error) {
	var st amm.PoolState
	var err error
	if st.SqrtPrice, err = bigmath.ParseU128(sqrtPrice); err != nil {
		return nil, fmt.Errorf("invalid sqrt price: %w", err)
	}
	if st.SqrtMinPrice, err = bigmath.ParseU128(sqrtMin); err != nil {
		return nil, fmt.Errorf("invalid sqrt min price: %w", err)
	}
	if st.SqrtMaxPrice, err = bigmath.ParseU128(sqrtMax); err != nil {
		return nil, fmt.Errorf("invalid sqrt max price: %w", err)
	}
	switch collectFeeMode {
	case amm.CollectFeeModeOnlyB.String():
		st.CollectFeeMode = amm.CollectFeeModeOnlyB
	case amm.CollectFeeModeBothToken.String():
		st.CollectFeeMode = amm.CollectFeeModeBothToken
	default:
		return nil, fmt.Errorf("invalid collect fee mode %q", collectFeeMode)
	}
	return &st, nil
}

type BootstrapPlanOutput struct {
	BootstrapQuote
	Pool              string `json:"pool"`
	Creator           string `json:"creator"`
	PositionNFT       string `json:"position_nft"`
	CollectFeeMode    string `json:"collect_fee_mode"`
	CliffFeeNumerator uint64 `json:"cliff_fee_numerator"`
	InstructionData   string `json:"instruction_data"`
	Signature         string `json:"signature,omitempty"`
}

func bootstrapOutput(plan pool.BootstrapPlan, balanceA uint64) (BootstrapPlanOutput, error) {
	data, err := plan.Params.InstructionData()
	if err != nil {
		return BootstrapPlanOutput{}, fmt.Errorf("failed to encode initialize pool: %w", err)
	}
	res := plan.Result
	return BootstrapPlanOutput{
		BootstrapQuote: BootstrapQuote{
			CreatorBalance: balanceA,
			TokenAAmount:   res.TokenAAmount,
			TokenBAmount:   res.TokenBAmount,
			SqrtPrice:      res.SqrtPrice.String(),
			SqrtMinPrice:   res.SqrtMinPrice.String(),
			SqrtMaxPrice:   res.SqrtMaxPrice.String(),
			Liquidity:      res.Liquidity.String(),
			Price:          liquidity.Price(res.SqrtPrice).String(),
		},
		Pool:              plan.Pool.String(),
		Creator:           plan.Params.Creator.String(),
		PositionNFT:       plan.Params.PositionNFT.String(),
		CollectFeeMode:    plan.Params.CollectFeeMode.String(),
		CliffFeeNumerator: plan.Params.PoolFees.BaseFee.CliffFeeNumerator,
		InstructionData:   hex.EncodeToString(data),
	}, nil
}

// PlanBootstrap prints the pool the launch would open for a creator token A balance.
func PlanBootstrap(w io.Writer, op *pool.Operator, l pool.Launch, balanceA uint64) error {
	plan, err := op.PlanBootstrap(l, balanceA)
	if err != nil {
		return err
	}
	out, err := bootstrapOutput(plan, balanceA)
	if err != nil {
		return err
	}
	return writeJSON(w, out)
}

// Bootstrap opens the launch pool through the operator's AMM client and prints the plan it sent.
func Bootstrap(ctx context.Context, w io.Writer, op *pool.Operator, l pool.Launch, balanceA uint64) error {
	plan, sig, err := op.Bootstrap(ctx, l, balanceA)
	if err != nil {
		return err
	}
	out, err := bootstrapOutput(plan, balanceA)
	if err != nil {
		return err
	}
	out.Signature = sig.String()
	return writeJSON(w, out)
}

type DepositOutput struct {
	Pool                  string `json:"pool"`
	Position              string `json:"position"`
	LiquidityDelta        string `json:"liquidity_delta"`
	TokenAAmountThreshold uint64 `json:"token_a_amount_threshold"`
	TokenBAmountThreshold uint64 `json:"token_b_amount_threshold"`
}

// Deposit funds the launch's fee position with the given balances.
func Deposit(ctx context.Context, w io.Writer, op *pool.Operator, l pool.Launch, balanceA, balanceB uint64) error {
	res, err := op.Deposit(ctx, l, balanceA, balanceB)
	if err != nil {
		return err
	}
	return writeJSON(w, DepositOutput{
		Pool:                  res.Pool.String(),
		Position:              res.Position.String(),
		LiquidityDelta:        res.Delta.LiquidityDelta.String(),
		TokenAAmountThreshold: res.Delta.TokenAAmountThreshold,
		TokenBAmountThreshold: res.Delta.TokenBAmountThreshold,
	})
}

// Swap sells amountIn of token A from payer into the launch pool.
func Swap(ctx context.Context, w io.Writer, op *pool.Operator, l pool.Launch, payer solana.PublicKey, amountIn uint64) error {
	sig, err := op.Swap(ctx, l, payer, amountIn)
	if err != nil {
		return err
	}
	return writeJSON(w, map[string]any{"payer": payer.String(), "amount_in": amountIn, "signature": sig.String()})
}

type GrantOutput struct {
	Grant           string `json:"grant"`
	Index           uint8  `json:"index"`
	Recipient       string `json:"recipient"`
	NetDeposited    uint64 `json:"net_deposited"`
	StartTime       string `json:"start_time"`
	FullyVestedAt   string `json:"fully_vested_at"`
	AmountPerPeriod uint64 `json:"amount_per_period"`
	Period          string `json:"period"`
}

// CreateGrant opens the launch's next vesting stream for recipient and prints its schedule.
func CreateGrant(ctx context.Context, w io.Writer, op *pool.Operator, l pool.Launch, recipient, recipientTokens solana.PublicKey) error {
	grant, err := op.CreateGrant(ctx, l, recipient, recipientTokens)
	if err != nil {
		return err
	}
	vestedAt := "never"
	if end, ok := grant.Params.Schedule().EndTime(); ok {
		vestedAt = formatUnix(end)
	}
	return writeJSON(w, GrantOutput{
		Grant:           grant.ID.String(),
		Index:           grant.Params.Index,
		Recipient:       recipient.String(),
		NetDeposited:    grant.Params.NetDeposited,
		StartTime:       formatUnix(grant.Params.StartTime),
		FullyVestedAt:   vestedAt,
		AmountPerPeriod: grant.Params.AmountPerPeriod,
		Period:          grant.Params.Period.Round(time.Second).String(),
	})
}
