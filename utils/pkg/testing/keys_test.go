package bountytesting

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBounty_Testing_Pubkey(t *testing.T) {
	t.Parallel()

	require.Equal(t, Pubkey("grant-1"), Pubkey("grant-1"))
	require.NotEqual(t, Pubkey("grant-1"), Pubkey("grant-2"))
	require.False(t, Pubkey("grant-1").IsZero())
}
