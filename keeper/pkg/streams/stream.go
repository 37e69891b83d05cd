// Package streams reads and creates the vesting streams that back investor grants.
package streams

import (
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"github.com/malbeclabs/bounty/engine/pkg/vesting"
)

// ErrNoVestedAmount is returned when a grant's stream account cannot be read.
var ErrNoVestedAmount = errors.New("no vested amount")

// CreateParams is the schedule part of a stream account, as written at creation.
type CreateParams struct {
	StartTime               uint64
	NetAmountDeposited      uint64
	Period                  uint64
	AmountPerPeriod         uint64
	Cliff                   uint64
	CliffAmount             uint64
	CancelableBySender      bool
	CancelableByRecipient   bool
	AutomaticWithdrawal     bool
	TransferableBySender    bool
	TransferableByRecipient bool
	CanTopup                bool
	StreamName              [64]byte
	WithdrawFrequency       uint64
}

// Stream is the leading part of a vesting protocol stream account. Fields after the schedule
// are not needed and are left undecoded.
type Stream struct {
	Magic                    uint64
	Version                  uint8
	CreatedAt                uint64
	AmountWithdrawn          uint64
	CanceledAt               uint64
	EndTime                  uint64
	LastWithdrawnAt          uint64
	Sender                   solana.PublicKey
	SenderTokens             solana.PublicKey
	Recipient                solana.PublicKey
	RecipientTokens          solana.PublicKey
	Mint                     solana.PublicKey
	EscrowTokens             solana.PublicKey
	StreamflowTreasury       solana.PublicKey
	StreamflowTreasuryTokens solana.PublicKey
	StreamflowFeeTotal       uint64
	StreamflowFeeWithdrawn   uint64
	StreamflowFeePercent     float32
	Partner                  solana.PublicKey
	PartnerTokens            solana.PublicKey
	PartnerFeeTotal          uint64
	PartnerFeeWithdrawn      uint64
	PartnerFeePercent        float32
	Params                   CreateParams
}

func DecodeStream(data []byte) (*Stream, error) {
	var s Stream
	if err := bin.NewBorshDecoder(data).Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to decode stream: %w", err)
	}
	return &s, nil
}

// Schedule is the stream's release schedule.
func (s *Stream) Schedule() vesting.LinearSchedule {
	return vesting.LinearSchedule{
		StartTime:       int64(s.Params.StartTime),
		Cliff:           int64(s.Params.Cliff),
		CliffAmount:     s.Params.CliffAmount,
		Period:          int64(s.Params.Period),
		AmountPerPeriod: s.Params.AmountPerPeriod,
		NetDeposited:    s.Params.NetAmountDeposited,
	}
}

// Available is the amount vested at ts and not yet withdrawn, which is what the vesting protocol
// reports as vested for a stream.
func (s *Stream) Available(ts int64) uint64 {
	vested := s.Schedule().VestedAmountAt(ts)
	if vested <= s.AmountWithdrawn {
		return 0
	}
	return vested - s.AmountWithdrawn
}

// Grant is the engine view of the stream. Its schedule reports Available, so the locked balance
// is the deposit minus everything vested. Payouts go to the recipient's token account.
func (s *Stream) Grant(id solana.PublicKey) vesting.Grant {
	return vesting.Grant{
		ID:           id,
		NetDeposited: s.Params.NetAmountDeposited,
		Withdrawn:    s.AmountWithdrawn,
		Schedule:     vesting.ScheduleFunc(s.Available),
		Recipient:    s.RecipientTokens,
	}
}
