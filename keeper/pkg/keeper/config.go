package keeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/malbeclabs/bounty/engine/pkg/distribution"
	"github.com/malbeclabs/bounty/keeper/pkg/history"
	"github.com/malbeclabs/bounty/keeper/pkg/pda"
	"github.com/malbeclabs/bounty/keeper/pkg/statestore"
	"github.com/malbeclabs/bounty/keeper/pkg/streams"
)

const (
	DefaultInterval     = 5 * time.Minute
	DefaultConcurrency  = 4
	DefaultCycleTimeout = 2 * time.Minute
)

// Token is one launch the keeper distributes fees for. Cycle state is keyed by the quote mint.
type Token struct {
	MintA solana.PublicKey
	MintB solana.PublicKey
	// SettlementAccount is the quote token account the fee position's fees are claimed into.
	SettlementAccount solana.PublicKey
	// CreatorAccount receives the remainder of every cycle.
	CreatorAccount solana.PublicKey
}

func (t Token) Key() string {
	return t.MintB.String()
}

func (t Token) Validate() error {
	if t.MintA.IsZero() || t.MintB.IsZero() {
		return errors.New("token mints are required")
	}
	if t.SettlementAccount.IsZero() {
		return fmt.Errorf("token %s: settlement account is required", t.Key())
	}
	if t.CreatorAccount.IsZero() {
		return fmt.Errorf("token %s: creator account is required", t.Key())
	}
	return nil
}

// ParseTokens parses a comma-separated list of launches, each written as
// mint_a:mint_b:settlement_account:creator_account.
func ParseTokens(s string) ([]Token, error) {
	var tokens []Token
	seen := make(map[string]struct{})
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		if len(parts) != 4 {
			return nil, fmt.Errorf("invalid token %q: want mint_a:mint_b:settlement:creator", entry)
		}
		var keys [4]solana.PublicKey
		for i, p := range parts {
			k, err := solana.PublicKeyFromBase58(strings.TrimSpace(p))
			if err != nil {
				return nil, fmt.Errorf("invalid token %q: %w", entry, err)
			}
			keys[i] = k
		}
		tok := Token{MintA: keys[0], MintB: keys[1], SettlementAccount: keys[2], CreatorAccount: keys[3]}
		if err := tok.Validate(); err != nil {
			return nil, err
		}
		if _, ok := seen[tok.Key()]; ok {
			return nil, fmt.Errorf("duplicate token %s", tok.Key())
		}
		seen[tok.Key()] = struct{}{}
		tokens = append(tokens, tok)
	}
	return tokens, nil
}

// ChainReader reads the settlement balance and the cluster clock.
type ChainReader interface {
	TokenBalance(ctx context.Context, account solana.PublicKey) (uint64, error)
	Now(ctx context.Context) (int64, error)
}

// AccountReader fetches raw account data for reconciliation.
type AccountReader interface {
	AccountData(ctx context.Context, account solana.PublicKey) ([]byte, error)
}

// StateStore holds the per-token cycle state.
type StateStore interface {
	Get(ctx context.Context, token string) (statestore.State, error)
	Seed(ctx context.Context, token string, lastDistributedAt int64) (bool, error)
	WithLock(ctx context.Context, token string, fn func(ctx context.Context, st statestore.State) (statestore.Update, error)) error
}

// FeeClaimer moves the fee position's accrued fees into the token's settlement account.
type FeeClaimer interface {
	ClaimFees(ctx context.Context, tok Token) (solana.Signature, error)
}

// Transfer is one settlement token movement out of the settlement account.
type Transfer struct {
	To     solana.PublicKey
	Amount uint64
}

// Transferer sends a cycle's transfers. Implementations submit them all or none, and treat
// cycleID as an idempotency key: a batch resubmitted under the same cycle ID is not paid twice.
type Transferer interface {
	Transfer(ctx context.Context, tok Token, cycleID uuid.UUID, transfers []Transfer) ([]solana.Signature, error)
}

type HistoryWriter interface {
	InsertCycle(ctx context.Context, c history.CycleRecord) error
}

type Archiver interface {
	Put(ctx context.Context, rec history.CycleRecord, signatures []string) (string, error)
}

type Config struct {
	Logger *slog.Logger
	Clock  clockwork.Clock

	Tokens   []Token
	Engine   *distribution.Engine
	Programs pda.Programs

	State      StateStore
	Chain      ChainReader
	Grants     streams.Reader
	Claimer    FeeClaimer
	Transferer Transferer

	// Accounts enables seeding missing cycle state from the fee position owner account.
	Accounts AccountReader
	// History and Archive are optional sinks written after a cycle commits.
	History HistoryWriter
	Archive Archiver
	// OnCycleError, when set, is called with every failed cycle.
	OnCycleError func(token string, err error)

	Interval     time.Duration
	Concurrency  int
	CycleTimeout time.Duration
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if len(cfg.Tokens) == 0 {
		return errors.New("at least one token is required")
	}
	seen := make(map[string]struct{}, len(cfg.Tokens))
	for _, t := range cfg.Tokens {
		if err := t.Validate(); err != nil {
			return err
		}
		if _, ok := seen[t.Key()]; ok {
			return fmt.Errorf("duplicate token %s", t.Key())
		}
		seen[t.Key()] = struct{}{}
	}
	if cfg.Engine == nil {
		return errors.New("distribution engine is required")
	}
	if cfg.State == nil {
		return errors.New("state store is required")
	}
	if cfg.Chain == nil {
		return errors.New("chain reader is required")
	}
	if cfg.Grants == nil {
		return errors.New("grants reader is required")
	}
	if cfg.Claimer == nil {
		return errors.New("fee claimer is required")
	}
	if cfg.Transferer == nil {
		return errors.New("transferer is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Programs.Bounty.IsZero() {
		cfg.Programs = pda.DefaultPrograms()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.CycleTimeout <= 0 {
		cfg.CycleTimeout = DefaultCycleTimeout
	}
	return nil
}
