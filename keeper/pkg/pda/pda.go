// Package pda derives the program-derived addresses of the bounty program and the AMM and
// vesting programs it drives.
package pda

import (
	"bytes"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

var (
	DefaultBountyProgramID  = solana.MustPublicKeyFromBase58("3Wp5vW3yQeMTNKPxe4JCkEhFFrWdhw4tFt879tsMG2K9")
	DefaultAMMProgramID     = solana.MustPublicKeyFromBase58("cpamdpZCGKUy5JxQXB4dcpGPiikHawvSWAd6mEn1sGG")
	DefaultStreamsProgramID = solana.MustPublicKeyFromBase58("strmRqUCoQUgGUan5YhzUZa6KqdzwX5L6FpUxfmKg5m")
)

const (
	seedCreator          = "creator"
	seedFeePositionOwner = "investor_fee_pos_owner"
	seedPositionMint     = "position_mint"
	seedMetadata         = "metadata"

	seedPool               = "cpool"
	seedPosition           = "position"
	seedPositionNFTAccount = "position_nft_account"
	seedTokenVault         = "token_vault"
	seedPoolAuthority      = "pool_authority"
	seedEventAuthority     = "__event_authority"
)

// Address is a derived address with its bump seed.
type Address struct {
	Key  solana.PublicKey
	Bump uint8
}

type Programs struct {
	Bounty  solana.PublicKey
	AMM     solana.PublicKey
	Streams solana.PublicKey
}

func DefaultPrograms() Programs {
	return Programs{
		Bounty:  DefaultBountyProgramID,
		AMM:     DefaultAMMProgramID,
		Streams: DefaultStreamsProgramID,
	}
}

func find(program solana.PublicKey, seeds ...[]byte) (Address, error) {
	key, bump, err := solana.FindProgramAddress(seeds, program)
	if err != nil {
		return Address{}, fmt.Errorf("failed to derive program address: %w", err)
	}
	return Address{Key: key, Bump: bump}, nil
}

// Creator is the creator record of a launch, keyed by the quote mint.
func (p Programs) Creator(mintB solana.PublicKey) (Address, error) {
	return find(p.Bounty, []byte(seedCreator), mintB.Bytes())
}

// FeePositionOwner owns the fee position and signs distributions for a quote mint.
func (p Programs) FeePositionOwner(mintB solana.PublicKey) (Address, error) {
	return find(p.Bounty, []byte(seedFeePositionOwner), mintB.Bytes())
}

// PositionMint is the position NFT mint owned by owner (the creator or the fee position owner).
func (p Programs) PositionMint(owner solana.PublicKey) (Address, error) {
	return find(p.Bounty, []byte(seedPositionMint), owner.Bytes())
}

// StreamMetadata is the vesting stream account created at the given index of a creator.
func (p Programs) StreamMetadata(creator solana.PublicKey, index uint8) (Address, error) {
	return find(p.Bounty, []byte(seedMetadata), creator.Bytes(), []byte{index})
}

// Pool is the customizable AMM pool of a mint pair. Mint order does not matter.
func (p Programs) Pool(mintA, mintB solana.PublicKey) (Address, error) {
	hi, lo := mintA, mintB
	if bytes.Compare(hi.Bytes(), lo.Bytes()) < 0 {
		hi, lo = lo, hi
	}
	return find(p.AMM, []byte(seedPool), hi.Bytes(), lo.Bytes())
}

func (p Programs) Position(positionMint solana.PublicKey) (Address, error) {
	return find(p.AMM, []byte(seedPosition), positionMint.Bytes())
}

func (p Programs) PositionNFTAccount(positionMint solana.PublicKey) (Address, error) {
	return find(p.AMM, []byte(seedPositionNFTAccount), positionMint.Bytes())
}

func (p Programs) TokenVault(mint, pool solana.PublicKey) (Address, error) {
	return find(p.AMM, []byte(seedTokenVault), mint.Bytes(), pool.Bytes())
}

func (p Programs) PoolAuthority() (Address, error) {
	return find(p.AMM, []byte(seedPoolAuthority))
}

func (p Programs) EventAuthority() (Address, error) {
	return find(p.AMM, []byte(seedEventAuthority))
}

// LaunchAccounts are the addresses one launch (a mint pair) touches.
type LaunchAccounts struct {
	Creator            Address
	CreatorPositionNFT Address
	FeePositionOwner   Address
	FeePositionNFT     Address
	FeePosition        Address
	Pool               Address
	TokenAVault        Address
	TokenBVault        Address
}

// Launch derives every address of the launch for mintA/mintB.
func (p Programs) Launch(mintA, mintB solana.PublicKey) (LaunchAccounts, error) {
	var (
		out LaunchAccounts
		err error
	)
	if out.Creator, err = p.Creator(mintB); err != nil {
		return LaunchAccounts{}, err
	}
	if out.CreatorPositionNFT, err = p.PositionMint(out.Creator.Key); err != nil {
		return LaunchAccounts{}, err
	}
	if out.FeePositionOwner, err = p.FeePositionOwner(mintB); err != nil {
		return LaunchAccounts{}, err
	}
	if out.FeePositionNFT, err = p.PositionMint(out.FeePositionOwner.Key); err != nil {
		return LaunchAccounts{}, err
	}
	if out.FeePosition, err = p.Position(out.FeePositionNFT.Key); err != nil {
		return LaunchAccounts{}, err
	}
	if out.Pool, err = p.Pool(mintA, mintB); err != nil {
		return LaunchAccounts{}, err
	}
	if out.TokenAVault, err = p.TokenVault(mintA, out.Pool.Key); err != nil {
		return LaunchAccounts{}, err
	}
	if out.TokenBVault, err = p.TokenVault(mintB, out.Pool.Key); err != nil {
		return LaunchAccounts{}, err
	}
	return out, nil
}
