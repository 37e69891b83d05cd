// Package onchain decodes the bounty program's Anchor accounts.
package onchain

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

const DiscriminatorLength = 8

var ErrDiscriminatorMismatch = errors.New("account discriminator mismatch")

// Discriminator is the 8-byte Anchor prefix of an account type.
func Discriminator(accountName string) [DiscriminatorLength]byte {
	sum := sha256.Sum256([]byte("account:" + accountName))
	var d [DiscriminatorLength]byte
	copy(d[:], sum[:DiscriminatorLength])
	return d
}

var (
	creatorDiscriminator          = Discriminator("Creator")
	feePositionOwnerDiscriminator = Discriminator("InvestorFeePositionOwnerPda")
)

// Creator tracks how many vesting streams a launch has created.
type Creator struct {
	Streams uint8
	Bump    [1]uint8
}

// FeePositionOwner owns the fee position of a quote mint and records the last distribution.
type FeePositionOwner struct {
	AssociatedMint solana.PublicKey
	LastClaimedAt  int64
	Bump           [1]uint8
}

func DecodeCreator(data []byte) (*Creator, error) {
	var c Creator
	if err := decode(data, creatorDiscriminator, &c); err != nil {
		return nil, fmt.Errorf("failed to decode creator: %w", err)
	}
	return &c, nil
}

func DecodeFeePositionOwner(data []byte) (*FeePositionOwner, error) {
	var o FeePositionOwner
	if err := decode(data, feePositionOwnerDiscriminator, &o); err != nil {
		return nil, fmt.Errorf("failed to decode fee position owner: %w", err)
	}
	return &o, nil
}

func decode(data []byte, disc [DiscriminatorLength]byte, v any) error {
	if len(data) < DiscriminatorLength {
		return fmt.Errorf("account data too short: %d bytes", len(data))
	}
	if !bytes.Equal(data[:DiscriminatorLength], disc[:]) {
		return ErrDiscriminatorMismatch
	}
	return bin.NewBorshDecoder(data[DiscriminatorLength:]).Decode(v)
}

// Encode serializes an account with its discriminator, the way the program stores it.
func Encode(accountName string, v any) ([]byte, error) {
	var buf bytes.Buffer
	disc := Discriminator(accountName)
	buf.Write(disc[:])
	if err := bin.NewBorshEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", accountName, err)
	}
	return buf.Bytes(), nil
}
