package keeper

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/malbeclabs/bounty/engine/pkg/distribution"
	"github.com/malbeclabs/bounty/engine/pkg/vesting"
	"github.com/malbeclabs/bounty/keeper/pkg/history"
	"github.com/malbeclabs/bounty/keeper/pkg/sol"
	"github.com/malbeclabs/bounty/keeper/pkg/statestore"
	bountytesting "github.com/malbeclabs/bounty/utils/pkg/testing"
)

const testNow = int64(1_750_000_000)

type memStore struct {
	mu     sync.Mutex
	states map[string]statestore.State

	// commitErr fails every WithLock after fn succeeds, as a failed COMMIT would.
	commitErr error
}

func newMemStore() *memStore {
	return &memStore{states: make(map[string]statestore.State)}
}

func (s *memStore) Get(_ context.Context, token string) (statestore.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[token]
	if !ok {
		return statestore.State{}, statestore.ErrNotFound
	}
	return st, nil
}

func (s *memStore) Seed(_ context.Context, token string, lastDistributedAt int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.states[token]; ok {
		return false, nil
	}
	s.states[token] = statestore.State{Token: token, LastDistributedAt: lastDistributedAt, SeededFromChain: true}
	return true, nil
}

func (s *memStore) WithLock(ctx context.Context, token string, fn func(ctx context.Context, st statestore.State) (statestore.Update, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[token]
	if !ok {
		st = statestore.State{Token: token}
	}
	upd, err := fn(ctx, st)
	if err != nil {
		return err
	}
	if s.commitErr != nil {
		return s.commitErr
	}
	if upd.LastDistributedAt < st.LastDistributedAt {
		return statestore.ErrRegression
	}
	st.LastDistributedAt = upd.LastDistributedAt
	st.Cycles++
	st.LastOutcome = upd.Outcome
	s.states[token] = st
	return nil
}

type mockChain struct {
	TokenBalanceFunc func(ctx context.Context, account solana.PublicKey) (uint64, error)
	NowFunc          func(ctx context.Context) (int64, error)
}

func (m *mockChain) TokenBalance(ctx context.Context, account solana.PublicKey) (uint64, error) {
	return m.TokenBalanceFunc(ctx, account)
}

func (m *mockChain) Now(ctx context.Context) (int64, error) {
	return m.NowFunc(ctx)
}

type mockGrants struct {
	GrantsFunc func(ctx context.Context, creator solana.PublicKey) ([]vesting.Grant, error)
}

func (m *mockGrants) Grants(ctx context.Context, creator solana.PublicKey) ([]vesting.Grant, error) {
	return m.GrantsFunc(ctx, creator)
}

func (m *mockGrants) VestedAmountAt(context.Context, solana.PublicKey, int64) (uint64, error) {
	return 0, errors.New("not implemented")
}

type mockClaimer struct {
	mu    sync.Mutex
	calls int

	ClaimFeesFunc func(ctx context.Context, tok Token) (solana.Signature, error)
}

func (m *mockClaimer) ClaimFees(ctx context.Context, tok Token) (solana.Signature, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.ClaimFeesFunc == nil {
		return solana.Signature{}, nil
	}
	return m.ClaimFeesFunc(ctx, tok)
}

func (m *mockClaimer) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type mockTransferer struct {
	mu       sync.Mutex
	sent     [][]Transfer
	cycleIDs []uuid.UUID

	TransferFunc func(ctx context.Context, tok Token, cycleID uuid.UUID, transfers []Transfer) ([]solana.Signature, error)
}

func (m *mockTransferer) Transfer(ctx context.Context, tok Token, cycleID uuid.UUID, transfers []Transfer) ([]solana.Signature, error) {
	if m.TransferFunc != nil {
		return m.TransferFunc(ctx, tok, cycleID, transfers)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, transfers)
	m.cycleIDs = append(m.cycleIDs, cycleID)
	return []solana.Signature{{byte(len(m.sent))}}, nil
}

type memHistory struct {
	mu     sync.Mutex
	cycles []history.CycleRecord
	err    error
}

func (h *memHistory) InsertCycle(_ context.Context, c history.CycleRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return h.err
	}
	h.cycles = append(h.cycles, c)
	return nil
}

type memArchive struct {
	mu       sync.Mutex
	receipts map[string][]string
}

func (a *memArchive) Put(_ context.Context, rec history.CycleRecord, signatures []string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.receipts == nil {
		a.receipts = make(map[string][]string)
	}
	a.receipts[rec.CycleID.String()] = signatures
	return rec.CycleID.String(), nil
}

type accountsMap map[solana.PublicKey][]byte

func (a accountsMap) AccountData(_ context.Context, account solana.PublicKey) ([]byte, error) {
	d, ok := a[account]
	if !ok {
		return nil, sol.ErrAccountNotFound
	}
	return d, nil
}

func testToken(name string) Token {
	return Token{
		MintA:             bountytesting.Pubkey(name + "-a"),
		MintB:             bountytesting.Pubkey(name + "-b"),
		SettlementAccount: bountytesting.Pubkey(name + "-settlement"),
		CreatorAccount:    bountytesting.Pubkey(name + "-creator"),
	}
}

func lockedGrant(name string, net, vested uint64) vesting.Grant {
	return vesting.Grant{
		ID:           bountytesting.Pubkey(name),
		NetDeposited: net,
		Schedule:     vesting.ScheduleFunc(func(int64) uint64 { return vested }),
		Recipient:    bountytesting.Pubkey(name + "-ata"),
	}
}

type fixture struct {
	store      *memStore
	chain      *mockChain
	grants     *mockGrants
	claimer    *mockClaimer
	transferer *mockTransferer
	history    *memHistory
	archive    *memArchive
	clock      *clockwork.FakeClock
	balance    uint64
	now        atomic.Int64
}

func newFixture() *fixture {
	f := &fixture{
		store:      newMemStore(),
		claimer:    &mockClaimer{},
		transferer: &mockTransferer{},
		history:    &memHistory{},
		archive:    &memArchive{},
		clock:      clockwork.NewFakeClockAt(time.Unix(testNow, 0)),
		balance:    2_000_000,
	}
	f.now.Store(testNow)
	f.chain = &mockChain{
		TokenBalanceFunc: func(context.Context, solana.PublicKey) (uint64, error) { return f.balance, nil },
		NowFunc:          func(context.Context) (int64, error) { return f.now.Load(), nil },
	}
	f.grants = &mockGrants{
		GrantsFunc: func(context.Context, solana.PublicKey) ([]vesting.Grant, error) {
			return []vesting.Grant{
				lockedGrant("g1", 1000, 1000),
				lockedGrant("g2", 1000, 500),
				lockedGrant("g3", 1000, 0),
			}, nil
		},
	}
	return f
}

func (f *fixture) config(t *testing.T, tokens ...Token) Config {
	t.Helper()
	engine, err := distribution.New(distribution.DefaultConfig())
	require.NoError(t, err)
	return Config{
		Logger:     bountytesting.NewLogger(),
		Clock:      f.clock,
		Tokens:     tokens,
		Engine:     engine,
		State:      f.store,
		Chain:      f.chain,
		Grants:     f.grants,
		Claimer:    f.claimer,
		Transferer: f.transferer,
		History:    f.history,
		Archive:    f.archive,
	}
}

func (f *fixture) keeper(t *testing.T, tokens ...Token) *Keeper {
	t.Helper()
	k, err := New(f.config(t, tokens...))
	require.NoError(t, err)
	return k
}
