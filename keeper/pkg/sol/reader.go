// Package sol reads the chain state a distribution cycle needs: token balances, account data
// and the cluster clock.
package sol

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"

	"github.com/malbeclabs/bounty/utils/pkg/retry"
)

var ErrAccountNotFound = errors.New("account not found")

type RPC interface {
	GetTokenAccountBalance(ctx context.Context, account solana.PublicKey, commitment solanarpc.CommitmentType) (*solanarpc.GetTokenAccountBalanceResult, error)
	GetSlot(ctx context.Context, commitment solanarpc.CommitmentType) (uint64, error)
	GetBlockTime(ctx context.Context, block uint64) (*solana.UnixTimeSeconds, error)
	GetAccountInfoWithOpts(ctx context.Context, account solana.PublicKey, opts *solanarpc.GetAccountInfoOpts) (*solanarpc.GetAccountInfoResult, error)
	GetMultipleAccountsWithOpts(ctx context.Context, accounts []solana.PublicKey, opts *solanarpc.GetMultipleAccountsOpts) (*solanarpc.GetMultipleAccountsResult, error)
}

type ReaderConfig struct {
	Logger     *slog.Logger
	RPC        RPC
	Commitment solanarpc.CommitmentType
	Retry      retry.Config
}

func (cfg *ReaderConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.RPC == nil {
		return errors.New("rpc client is required")
	}
	if cfg.Commitment == "" {
		cfg.Commitment = solanarpc.CommitmentConfirmed
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultConfig()
	}
	return nil
}

type Reader struct {
	log *slog.Logger
	cfg ReaderConfig
}

func NewReader(cfg ReaderConfig) (*Reader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Reader{log: cfg.Logger, cfg: cfg}, nil
}

func (r *Reader) retryConfig(op string) retry.Config {
	cfg := r.cfg.Retry
	cfg.OnRetry = func(attempt int, err error) {
		r.log.Warn("sol: retrying rpc call", "op", op, "attempt", attempt, "error", err)
	}
	return cfg
}

// TokenBalance returns the raw amount held by an SPL token account.
func (r *Reader) TokenBalance(ctx context.Context, account solana.PublicKey) (uint64, error) {
	res, err := retry.DoValue(ctx, r.retryConfig("getTokenAccountBalance"), func() (*solanarpc.GetTokenAccountBalanceResult, error) {
		return r.cfg.RPC.GetTokenAccountBalance(ctx, account, r.cfg.Commitment)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to get token balance of %s: %w", account, err)
	}
	if res == nil || res.Value == nil {
		return 0, fmt.Errorf("%w: token account %s", ErrAccountNotFound, account)
	}
	amount, err := strconv.ParseUint(res.Value.Amount, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse token amount %q: %w", res.Value.Amount, err)
	}
	return amount, nil
}

// Now returns the cluster unix time at the latest slot at the configured commitment.
func (r *Reader) Now(ctx context.Context) (int64, error) {
	slot, err := retry.DoValue(ctx, r.retryConfig("getSlot"), func() (uint64, error) {
		return r.cfg.RPC.GetSlot(ctx, r.cfg.Commitment)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to get slot: %w", err)
	}
	bt, err := retry.DoValue(ctx, r.retryConfig("getBlockTime"), func() (*solana.UnixTimeSeconds, error) {
		return r.cfg.RPC.GetBlockTime(ctx, slot)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to get block time of slot %d: %w", slot, err)
	}
	if bt == nil {
		return 0, fmt.Errorf("no block time for slot %d", slot)
	}
	return int64(*bt), nil
}

// AccountData returns the raw data of an account.
func (r *Reader) AccountData(ctx context.Context, account solana.PublicKey) ([]byte, error) {
	res, err := retry.DoValue(ctx, r.retryConfig("getAccountInfo"), func() (*solanarpc.GetAccountInfoResult, error) {
		res, err := r.cfg.RPC.GetAccountInfoWithOpts(ctx, account, &solanarpc.GetAccountInfoOpts{
			Encoding:   solana.EncodingBase64,
			Commitment: r.cfg.Commitment,
		})
		if errors.Is(err, solanarpc.ErrNotFound) {
			return nil, nil
		}
		return res, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get account %s: %w", account, err)
	}
	if res == nil || res.Value == nil || res.Value.Data == nil {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, account)
	}
	return res.Value.Data.GetBinary(), nil
}

// MultipleAccountData returns the data of each account in order. Missing accounts are nil.
func (r *Reader) MultipleAccountData(ctx context.Context, accounts []solana.PublicKey) ([][]byte, error) {
	if len(accounts) == 0 {
		return nil, nil
	}
	res, err := retry.DoValue(ctx, r.retryConfig("getMultipleAccounts"), func() (*solanarpc.GetMultipleAccountsResult, error) {
		return r.cfg.RPC.GetMultipleAccountsWithOpts(ctx, accounts, &solanarpc.GetMultipleAccountsOpts{
			Encoding:   solana.EncodingBase64,
			Commitment: r.cfg.Commitment,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get %d accounts: %w", len(accounts), err)
	}
	if res == nil || len(res.Value) != len(accounts) {
		return nil, fmt.Errorf("rpc returned an unexpected number of accounts")
	}
	out := make([][]byte, len(accounts))
	for i, acc := range res.Value {
		if acc != nil && acc.Data != nil {
			out[i] = acc.Data.GetBinary()
		}
	}
	return out, nil
}
