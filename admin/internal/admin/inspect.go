package admin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/malbeclabs/bounty/keeper/pkg/onchain"
	"github.com/malbeclabs/bounty/keeper/pkg/pda"
	"github.com/malbeclabs/bounty/keeper/pkg/sol"
	"github.com/malbeclabs/bounty/keeper/pkg/statestore"
)

type AccountReader interface {
	AccountData(ctx context.Context, account solana.PublicKey) ([]byte, error)
}

// InspectLaunch decodes the launch's creator and fee position owner accounts.
func InspectLaunch(ctx context.Context, w io.Writer, accounts AccountReader, programs pda.Programs, mintB solana.PublicKey) error {
	creator, err := programs.Creator(mintB)
	if err != nil {
		return err
	}
	owner, err := programs.FeePositionOwner(mintB)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "creator %s\n", creator.Key)
	data, err := accounts.AccountData(ctx, creator.Key)
	switch {
	case errors.Is(err, sol.ErrAccountNotFound):
		fmt.Fprintln(w, "  not initialized")
	case err != nil:
		return fmt.Errorf("failed to read creator account: %w", err)
	default:
		c, err := onchain.DecodeCreator(data)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "  streams %d\n  bump    %d\n", c.Streams, c.Bump[0])
	}

	fmt.Fprintf(w, "fee position owner %s\n", owner.Key)
	data, err = accounts.AccountData(ctx, owner.Key)
	switch {
	case errors.Is(err, sol.ErrAccountNotFound):
		fmt.Fprintln(w, "  not initialized")
	case err != nil:
		return fmt.Errorf("failed to read fee position owner account: %w", err)
	default:
		o, err := onchain.DecodeFeePositionOwner(data)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "  associated mint %s\n", o.AssociatedMint)
		fmt.Fprintf(w, "  last claimed at %s\n", formatUnix(o.LastClaimedAt))
		fmt.Fprintf(w, "  bump            %d\n", o.Bump[0])
	}
	return nil
}

type StateLister interface {
	List(ctx context.Context) ([]statestore.State, error)
}

// ListState prints the keeper's cycle state for every token.
func ListState(ctx context.Context, w io.Writer, store StateLister) error {
	states, err := store.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list cycle state: %w", err)
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TOKEN\tLAST DISTRIBUTED\tCYCLES\tLAST OUTCOME\tSEEDED")
	for _, st := range states {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%t\n", st.Token, formatUnix(st.LastDistributedAt), st.Cycles, st.LastOutcome, st.SeededFromChain)
	}
	return tw.Flush()
}

func formatUnix(ts int64) string {
	if ts == 0 {
		return "never"
	}
	return time.Unix(ts, 0).UTC().Format(time.RFC3339)
}
