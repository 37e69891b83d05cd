package keeper

import (
	"context"
	"errors"
	"log/slog"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"

	"github.com/malbeclabs/bounty/keeper/pkg/amm"
	"github.com/malbeclabs/bounty/keeper/pkg/pda"
)

// AMMClaimer claims the launch's fee position through the AMM client into the settlement account.
type AMMClaimer struct {
	Client   amm.Client
	Programs pda.Programs
}

func (c *AMMClaimer) ClaimFees(ctx context.Context, tok Token) (solana.Signature, error) {
	accounts, err := c.Programs.Launch(tok.MintA, tok.MintB)
	if err != nil {
		return solana.Signature{}, err
	}
	return c.Client.ClaimFees(ctx, amm.ClaimFeesParams{
		Owner:    accounts.FeePositionOwner.Key,
		Pool:     accounts.Pool.Key,
		Position: accounts.FeePosition.Key,
		Receiver: tok.SettlementAccount,
	})
}

// ErrDryRun is returned by transferers that only report what they would send. The keeper rolls
// the cycle back when it sees it.
var ErrDryRun = errors.New("dry run")

// LogTransferer logs transfers without sending them and always returns ErrDryRun.
type LogTransferer struct {
	Logger *slog.Logger
}

func (t *LogTransferer) Transfer(_ context.Context, tok Token, cycleID uuid.UUID, transfers []Transfer) ([]solana.Signature, error) {
	if t.Logger != nil {
		for _, tr := range transfers {
			t.Logger.Info("keeper: dry run transfer", "token", tok.Key(), "cycleID", cycleID, "from", tok.SettlementAccount, "to", tr.To, "amount", tr.Amount)
		}
	}
	return nil, ErrDryRun
}
