package bountytesting

import (
	"crypto/sha256"

	"github.com/gagliardetto/solana-go"
)

// Pubkey returns a stable public key derived from seed, so fixtures stay readable in failures.
func Pubkey(seed string) solana.PublicKey {
	sum := sha256.Sum256([]byte(seed))
	return solana.PublicKeyFromBytes(sum[:])
}
