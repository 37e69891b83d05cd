package onchain

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	bountytesting "github.com/malbeclabs/bounty/utils/pkg/testing"
)

func TestBounty_OnChain_DecodeFeePositionOwner(t *testing.T) {
	t.Parallel()

	mint := bountytesting.Pubkey("mint-b")
	disc := Discriminator("InvestorFeePositionOwnerPda")

	// Hand-built account bytes: discriminator, pubkey, i64 LE, bump.
	data := append([]byte{}, disc[:]...)
	data = append(data, mint.Bytes()...)
	data = binary.LittleEndian.AppendUint64(data, uint64(1_717_171_717))
	data = append(data, 254)

	owner, err := DecodeFeePositionOwner(data)
	require.NoError(t, err)
	require.Equal(t, mint, owner.AssociatedMint)
	require.Equal(t, int64(1_717_171_717), owner.LastClaimedAt)
	require.Equal(t, [1]uint8{254}, owner.Bump)
}

func TestBounty_OnChain_DecodeCreator(t *testing.T) {
	t.Parallel()

	data, err := Encode("Creator", Creator{Streams: 3, Bump: [1]uint8{255}})
	require.NoError(t, err)
	require.Len(t, data, DiscriminatorLength+2)

	c, err := DecodeCreator(data)
	require.NoError(t, err)
	require.Equal(t, uint8(3), c.Streams)

	t.Run("wrong account type", func(t *testing.T) {
		t.Parallel()
		_, err := DecodeFeePositionOwner(data)
		require.ErrorIs(t, err, ErrDiscriminatorMismatch)
	})

	t.Run("short data", func(t *testing.T) {
		t.Parallel()
		_, err := DecodeCreator([]byte{1, 2, 3})
		require.Error(t, err)
	})
}

func TestBounty_OnChain_Discriminator(t *testing.T) {
	t.Parallel()

	require.Equal(t, Discriminator("Creator"), Discriminator("Creator"))
	require.NotEqual(t, Discriminator("Creator"), Discriminator("InvestorFeePositionOwnerPda"))
}
