package admin

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/gagliardetto/solana-go"

	"github.com/malbeclabs/bounty/keeper/pkg/pda"
)

// DeriveLaunch prints every program-derived address of a launch, plus the first streams metadata
// addresses of its creator.
func DeriveLaunch(w io.Writer, programs pda.Programs, mintA, mintB solana.PublicKey, streams int) error {
	accounts, err := programs.Launch(mintA, mintB)
	if err != nil {
		return fmt.Errorf("failed to derive launch accounts: %w", err)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ACCOUNT\tADDRESS\tBUMP")
	for _, row := range []struct {
		name string
		addr pda.Address
	}{
		{"creator", accounts.Creator},
		{"creator_position_nft", accounts.CreatorPositionNFT},
		{"fee_position_owner", accounts.FeePositionOwner},
		{"fee_position_nft", accounts.FeePositionNFT},
		{"fee_position", accounts.FeePosition},
		{"pool", accounts.Pool},
		{"token_a_vault", accounts.TokenAVault},
		{"token_b_vault", accounts.TokenBVault},
	} {
		fmt.Fprintf(tw, "%s\t%s\t%d\n", row.name, row.addr.Key, row.addr.Bump)
	}
	for i := 0; i < streams && i < 255; i++ {
		meta, err := programs.StreamMetadata(accounts.Creator.Key, uint8(i))
		if err != nil {
			return fmt.Errorf("failed to derive stream metadata %d: %w", i, err)
		}
		fmt.Fprintf(tw, "stream_metadata[%d]\t%s\t%d\n", i, meta.Key, meta.Bump)
	}
	return tw.Flush()
}
