package streams

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gagliardetto/solana-go"

	"github.com/malbeclabs/bounty/engine/pkg/vesting"
	"github.com/malbeclabs/bounty/keeper/pkg/pda"
)

var errNoReader = errors.New("streams: dry run client has no reader")

// DryRunClient serves reads from Reader and logs grant creation instead of submitting it.
// CreateGrant returns the metadata address the stream would be opened at.
type DryRunClient struct {
	Logger   *slog.Logger
	Reader   Reader
	Programs pda.Programs
}

func (c *DryRunClient) Grants(ctx context.Context, creator solana.PublicKey) ([]vesting.Grant, error) {
	if c.Reader == nil {
		return nil, errNoReader
	}
	return c.Reader.Grants(ctx, creator)
}

func (c *DryRunClient) VestedAmountAt(ctx context.Context, grant solana.PublicKey, ts int64) (uint64, error) {
	if c.Reader == nil {
		return 0, errNoReader
	}
	return c.Reader.VestedAmountAt(ctx, grant, ts)
}

func (c *DryRunClient) CreateGrant(_ context.Context, params GrantParams) (solana.PublicKey, error) {
	if err := params.Validate(); err != nil {
		return solana.PublicKey{}, err
	}
	programs := c.Programs
	if programs.Bounty.IsZero() {
		programs = pda.DefaultPrograms()
	}
	meta, err := programs.StreamMetadata(params.Creator, params.Index)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive stream metadata: %w", err)
	}
	if c.Logger != nil {
		c.Logger.Info("streams: dry run create grant",
			"metadata", meta.Key,
			"creator", params.Creator,
			"index", params.Index,
			"recipient", params.Recipient,
			"deposit", params.NetDeposited,
			"start", params.StartTime,
			"period", params.Period,
			"amountPerPeriod", params.AmountPerPeriod)
	}
	return meta.Key, nil
}
