package streams

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/malbeclabs/bounty/engine/pkg/vesting"
	"github.com/malbeclabs/bounty/keeper/pkg/onchain"
	"github.com/malbeclabs/bounty/keeper/pkg/pda"
)

// Defaults applied to every grant created for a launch.
const (
	DefaultGrantDeposit       uint64 = 1_000_000
	DefaultGrantPeriod               = 30 * 24 * time.Hour
	DefaultGrantAmountPerTick uint64 = 1_000_000
)

type GrantParams struct {
	Creator           solana.PublicKey
	Mint              solana.PublicKey
	Recipient         solana.PublicKey
	RecipientTokens   solana.PublicKey
	Index             uint8
	StartTime         int64
	NetDeposited      uint64
	Period            time.Duration
	AmountPerPeriod   uint64
	Cliff             int64
	CliffAmount       uint64
	WithdrawFrequency time.Duration
}

// DefaultGrantParams returns the launch's standard grant for recipient, starting at now.
func DefaultGrantParams(creator, mint, recipient, recipientTokens solana.PublicKey, index uint8, now int64) GrantParams {
	return GrantParams{
		Creator:           creator,
		Mint:              mint,
		Recipient:         recipient,
		RecipientTokens:   recipientTokens,
		Index:             index,
		StartTime:         now,
		NetDeposited:      DefaultGrantDeposit,
		Period:            DefaultGrantPeriod,
		AmountPerPeriod:   DefaultGrantAmountPerTick,
		WithdrawFrequency: DefaultGrantPeriod,
	}
}

func (p GrantParams) Validate() error {
	if p.NetDeposited == 0 {
		return errors.New("grant deposit must be positive")
	}
	if p.Period < time.Second {
		return errors.New("grant period must be at least one second")
	}
	if p.AmountPerPeriod == 0 {
		return errors.New("grant amount per period must be positive")
	}
	if p.Recipient.IsZero() || p.RecipientTokens.IsZero() {
		return errors.New("grant recipient is required")
	}
	return nil
}

// Schedule is the release schedule the created stream will follow.
func (p GrantParams) Schedule() vesting.LinearSchedule {
	return vesting.LinearSchedule{
		StartTime:       p.StartTime,
		Cliff:           p.Cliff,
		CliffAmount:     p.CliffAmount,
		Period:          int64(p.Period / time.Second),
		AmountPerPeriod: p.AmountPerPeriod,
		NetDeposited:    p.NetDeposited,
	}
}

// Reader lists the grants of a launch. VestedAmountAt reports the vested amount not yet withdrawn.
type Reader interface {
	Grants(ctx context.Context, creator solana.PublicKey) ([]vesting.Grant, error)
	VestedAmountAt(ctx context.Context, grant solana.PublicKey, ts int64) (uint64, error)
}

// Client also creates grants.
type Client interface {
	Reader
	CreateGrant(ctx context.Context, params GrantParams) (solana.PublicKey, error)
}

type AccountReader interface {
	AccountData(ctx context.Context, account solana.PublicKey) ([]byte, error)
	MultipleAccountData(ctx context.Context, accounts []solana.PublicKey) ([][]byte, error)
}

type ChainReaderConfig struct {
	Logger   *slog.Logger
	Accounts AccountReader
	Programs pda.Programs
}

func (cfg *ChainReaderConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Accounts == nil {
		return errors.New("account reader is required")
	}
	if cfg.Programs.Bounty.IsZero() {
		cfg.Programs = pda.DefaultPrograms()
	}
	return nil
}

// ChainReader reads grants from the stream accounts a creator has opened, in creation order.
type ChainReader struct {
	log *slog.Logger
	cfg ChainReaderConfig
}

func NewChainReader(cfg ChainReaderConfig) (*ChainReader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &ChainReader{log: cfg.Logger, cfg: cfg}, nil
}

func (r *ChainReader) Grants(ctx context.Context, creator solana.PublicKey) ([]vesting.Grant, error) {
	// 1. The creator record says how many streams exist.
	data, err := r.cfg.Accounts.AccountData(ctx, creator)
	if err != nil {
		return nil, fmt.Errorf("failed to read creator: %w", err)
	}
	c, err := onchain.DecodeCreator(data)
	if err != nil {
		return nil, err
	}
	if c.Streams == 0 {
		return nil, nil
	}

	// 2. Stream accounts live at metadata PDAs indexed 0..streams-1.
	ids := make([]solana.PublicKey, c.Streams)
	for i := range c.Streams {
		addr, err := r.cfg.Programs.StreamMetadata(creator, i)
		if err != nil {
			return nil, err
		}
		ids[i] = addr.Key
	}
	datas, err := r.cfg.Accounts.MultipleAccountData(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to read streams: %w", err)
	}

	// 3. Every stream must be present; a missing one would silently shrink the locked total.
	grants := make([]vesting.Grant, 0, len(ids))
	for i, d := range datas {
		if d == nil {
			return nil, fmt.Errorf("%w: stream %d (%s) is missing", ErrNoVestedAmount, i, ids[i])
		}
		s, err := DecodeStream(d)
		if err != nil {
			return nil, fmt.Errorf("stream %d (%s): %w", i, ids[i], err)
		}
		grants = append(grants, s.Grant(ids[i]))
	}
	r.log.Debug("streams: loaded grants", "creator", creator, "count", len(grants))
	return grants, nil
}

func (r *ChainReader) VestedAmountAt(ctx context.Context, grant solana.PublicKey, ts int64) (uint64, error) {
	data, err := r.cfg.Accounts.AccountData(ctx, grant)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrNoVestedAmount, err)
	}
	s, err := DecodeStream(data)
	if err != nil {
		return 0, err
	}
	return s.Available(ts), nil
}
