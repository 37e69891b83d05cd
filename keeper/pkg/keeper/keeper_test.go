package keeper

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/malbeclabs/bounty/engine/pkg/distribution"
	"github.com/malbeclabs/bounty/engine/pkg/vesting"
	"github.com/malbeclabs/bounty/keeper/pkg/amm"
	"github.com/malbeclabs/bounty/keeper/pkg/onchain"
	"github.com/malbeclabs/bounty/keeper/pkg/pda"
	"github.com/malbeclabs/bounty/keeper/pkg/statestore"
	bountytesting "github.com/malbeclabs/bounty/utils/pkg/testing"
)

func TestBounty_Keeper_Config(t *testing.T) {
	t.Parallel()

	f := newFixture()
	tok := testToken("one")

	cfg := f.config(t, tok)
	require.NoError(t, cfg.Validate())
	require.Equal(t, DefaultInterval, cfg.Interval)
	require.Equal(t, DefaultConcurrency, cfg.Concurrency)
	require.Equal(t, DefaultCycleTimeout, cfg.CycleTimeout)
	require.Equal(t, pda.DefaultPrograms(), cfg.Programs)

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "no logger", mutate: func(c *Config) { c.Logger = nil }},
		{name: "no tokens", mutate: func(c *Config) { c.Tokens = nil }},
		{name: "duplicate token", mutate: func(c *Config) { c.Tokens = []Token{tok, tok} }},
		{name: "missing creator account", mutate: func(c *Config) {
			bad := tok
			bad.CreatorAccount = solana.PublicKey{}
			c.Tokens = []Token{bad}
		}},
		{name: "no engine", mutate: func(c *Config) { c.Engine = nil }},
		{name: "no state", mutate: func(c *Config) { c.State = nil }},
		{name: "no chain", mutate: func(c *Config) { c.Chain = nil }},
		{name: "no grants", mutate: func(c *Config) { c.Grants = nil }},
		{name: "no claimer", mutate: func(c *Config) { c.Claimer = nil }},
		{name: "no transferer", mutate: func(c *Config) { c.Transferer = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := f.config(t, tok)
			tt.mutate(&cfg)
			_, err := New(cfg)
			require.Error(t, err)
		})
	}
}

func TestBounty_Keeper_RunCycle_Distributes(t *testing.T) {
	t.Parallel()

	f := newFixture()
	tok := testToken("one")
	k := f.keeper(t, tok)

	report, err := k.RunCycle(t.Context(), tok)
	require.NoError(t, err)
	require.Equal(t, string(distribution.OutcomeDistributed), report.Status)
	require.Equal(t, uint64(2_000_000), report.Balance)
	require.Equal(t, 1, f.claimer.Calls())

	require.Equal(t, []Transfer{
		{To: bountytesting.Pubkey("g2-ata"), Amount: 66_666},
		{To: bountytesting.Pubkey("g3-ata"), Amount: 133_333},
		{To: tok.CreatorAccount, Amount: 1_800_001},
	}, report.Transfers)
	var sum uint64
	for _, tr := range report.Transfers {
		sum += tr.Amount
	}
	require.Equal(t, report.Balance, sum)

	st, err := f.store.Get(t.Context(), tok.Key())
	require.NoError(t, err)
	require.Equal(t, testNow, st.LastDistributedAt)
	require.Equal(t, int64(1), st.Cycles)
	require.Equal(t, "distributed", st.LastOutcome)

	require.Len(t, f.history.cycles, 1)
	require.Equal(t, report.CycleID, f.history.cycles[0].CycleID)
	require.Equal(t, uint64(199_999), f.history.cycles[0].TotalPaid)
	require.Equal(t, []string{solana.Signature{1}.String()}, f.archive.receipts[report.CycleID.String()])
	require.Equal(t, []uuid.UUID{report.CycleID}, f.transferer.cycleIDs)
}

func TestBounty_Keeper_RunCycle_DryRunRollsBack(t *testing.T) {
	t.Parallel()

	f := newFixture()
	tok := testToken("one")
	cfg := f.config(t, tok)
	cfg.Transferer = &LogTransferer{Logger: bountytesting.NewLogger()}
	k, err := New(cfg)
	require.NoError(t, err)

	report, err := k.RunCycle(t.Context(), tok)
	require.NoError(t, err)
	require.Equal(t, StatusDryRun, report.Status)
	require.Equal(t, distribution.OutcomeDistributed, report.Result.Outcome)
	require.Len(t, report.Transfers, 3)
	require.Empty(t, report.Signatures)

	// Nothing is committed or recorded, so the next cycle is not held back by the cooldown.
	_, err = f.store.Get(t.Context(), tok.Key())
	require.ErrorIs(t, err, statestore.ErrNotFound)
	require.Empty(t, f.history.cycles)
	require.Empty(t, f.archive.receipts)

	report, err = k.RunCycle(t.Context(), tok)
	require.NoError(t, err)
	require.Equal(t, StatusDryRun, report.Status)
	require.Equal(t, 2, f.claimer.Calls())
}

func TestBounty_Keeper_RunCycle_CommitFailsAfterTransfers(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.store.commitErr = errors.New("connection reset by peer")
	tok := testToken("one")
	k := f.keeper(t, tok)

	report, err := k.RunCycle(t.Context(), tok)
	require.ErrorIs(t, err, ErrUncommittedTransfers)
	require.ErrorContains(t, err, report.CycleID.String())
	require.Empty(t, report.Status)

	require.Len(t, f.transferer.sent, 1)
	require.Equal(t, []uuid.UUID{report.CycleID}, f.transferer.cycleIDs)
	require.Empty(t, f.history.cycles)
	_, err = f.store.Get(t.Context(), tok.Key())
	require.ErrorIs(t, err, statestore.ErrNotFound)
}

func TestBounty_Keeper_RunCycle_Cooldown(t *testing.T) {
	t.Parallel()

	f := newFixture()
	tok := testToken("one")
	k := f.keeper(t, tok)

	_, err := k.RunCycle(t.Context(), tok)
	require.NoError(t, err)

	f.now.Add(86_399)
	report, err := k.RunCycle(t.Context(), tok)
	require.NoError(t, err)
	require.Equal(t, StatusCooldown, report.Status)
	require.Equal(t, 1, f.claimer.Calls())
	require.Len(t, f.transferer.sent, 1)

	st, err := f.store.Get(t.Context(), tok.Key())
	require.NoError(t, err)
	require.Equal(t, testNow, st.LastDistributedAt)

	f.now.Add(1)
	report, err = k.RunCycle(t.Context(), tok)
	require.NoError(t, err)
	require.Equal(t, string(distribution.OutcomeDistributed), report.Status)
	require.Equal(t, 2, f.claimer.Calls())
}

func TestBounty_Keeper_RunCycle_Dust(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.balance = 999_999
	tok := testToken("one")
	k := f.keeper(t, tok)

	report, err := k.RunCycle(t.Context(), tok)
	require.NoError(t, err)
	require.Equal(t, string(distribution.OutcomeDust), report.Status)
	require.Empty(t, report.Transfers)
	require.Empty(t, f.transferer.sent)

	st, err := f.store.Get(t.Context(), tok.Key())
	require.NoError(t, err)
	require.Equal(t, testNow, st.LastDistributedAt)
	require.Equal(t, "dust", st.LastOutcome)
}

func TestBounty_Keeper_RunCycle_NothingLocked(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.grants.GrantsFunc = func(context.Context, solana.PublicKey) ([]vesting.Grant, error) {
		return []vesting.Grant{lockedGrant("g1", 1000, 1000)}, nil
	}
	tok := testToken("one")
	k := f.keeper(t, tok)

	report, err := k.RunCycle(t.Context(), tok)
	require.NoError(t, err)
	require.Equal(t, string(distribution.OutcomeNothingLocked), report.Status)
	require.Equal(t, []Transfer{{To: tok.CreatorAccount, Amount: 2_000_000}}, report.Transfers)
}

func TestBounty_Keeper_RunCycle_FailuresKeepState(t *testing.T) {
	t.Parallel()

	tok := testToken("one")
	tests := []struct {
		name    string
		mutate  func(f *fixture)
		wantErr string
	}{
		{
			name: "transfer failure",
			mutate: func(f *fixture) {
				f.transferer.TransferFunc = func(context.Context, Token, uuid.UUID, []Transfer) ([]solana.Signature, error) {
					return nil, errors.New("blockhash expired")
				}
			},
			wantErr: "failed to send transfers",
		},
		{
			name: "claim failure",
			mutate: func(f *fixture) {
				f.claimer.ClaimFeesFunc = func(context.Context, Token) (solana.Signature, error) {
					return solana.Signature{}, errors.New("position not found")
				}
			},
			wantErr: "failed to claim fees",
		},
		{
			name: "grant read failure",
			mutate: func(f *fixture) {
				f.grants.GrantsFunc = func(context.Context, solana.PublicKey) ([]vesting.Grant, error) {
					return nil, errors.New("no vested amount")
				}
			},
			wantErr: "failed to read grants",
		},
		{
			name: "engine overflow",
			mutate: func(f *fixture) {
				f.grants.GrantsFunc = func(context.Context, solana.PublicKey) ([]vesting.Grant, error) {
					return []vesting.Grant{lockedGrant("g1", 1<<63, 0), lockedGrant("g2", 1<<63, 0)}, nil
				}
			},
			wantErr: "failed to run distribution",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture()
			tt.mutate(f)
			k := f.keeper(t, tok)

			report, err := k.RunCycle(t.Context(), tok)
			require.ErrorContains(t, err, tt.wantErr)
			require.Empty(t, report.Status)

			_, err = f.store.Get(t.Context(), tok.Key())
			require.ErrorIs(t, err, statestore.ErrNotFound)
			require.Empty(t, f.history.cycles)
		})
	}
}

func TestBounty_Keeper_RunCycle_SinkErrorsDoNotFail(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.history.err = errors.New("clickhouse down")
	tok := testToken("one")
	k := f.keeper(t, tok)

	report, err := k.RunCycle(t.Context(), tok)
	require.NoError(t, err)
	require.Equal(t, string(distribution.OutcomeDistributed), report.Status)
	require.Len(t, f.archive.receipts, 1)
}

func TestBounty_Keeper_Reconcile(t *testing.T) {
	t.Parallel()

	tok := testToken("one")
	owner, err := pda.DefaultPrograms().FeePositionOwner(tok.MintB)
	require.NoError(t, err)

	encode := func(t *testing.T, mint solana.PublicKey, lastClaimedAt int64) []byte {
		data, err := onchain.Encode("InvestorFeePositionOwnerPda", onchain.FeePositionOwner{
			AssociatedMint: mint,
			LastClaimedAt:  lastClaimedAt,
			Bump:           [1]uint8{owner.Bump},
		})
		require.NoError(t, err)
		return data
	}

	t.Run("seeds from chain", func(t *testing.T) {
		t.Parallel()
		f := newFixture()
		cfg := f.config(t, tok)
		cfg.Accounts = accountsMap{owner.Key: encode(t, tok.MintB, testNow-3_600)}
		k, err := New(cfg)
		require.NoError(t, err)

		report, err := k.RunCycle(t.Context(), tok)
		require.NoError(t, err)
		require.Equal(t, StatusCooldown, report.Status)
		require.Zero(t, f.claimer.Calls())

		st, err := f.store.Get(t.Context(), tok.Key())
		require.NoError(t, err)
		require.True(t, st.SeededFromChain)
		require.Equal(t, testNow-3_600, st.LastDistributedAt)
	})

	t.Run("existing state wins", func(t *testing.T) {
		t.Parallel()
		f := newFixture()
		_, err := f.store.Seed(t.Context(), tok.Key(), testNow-100_000)
		require.NoError(t, err)
		cfg := f.config(t, tok)
		cfg.Accounts = accountsMap{owner.Key: encode(t, tok.MintB, testNow)}
		k, err := New(cfg)
		require.NoError(t, err)

		report, err := k.RunCycle(t.Context(), tok)
		require.NoError(t, err)
		require.Equal(t, string(distribution.OutcomeDistributed), report.Status)
	})

	t.Run("missing account starts empty", func(t *testing.T) {
		t.Parallel()
		f := newFixture()
		cfg := f.config(t, tok)
		cfg.Accounts = accountsMap{}
		k, err := New(cfg)
		require.NoError(t, err)

		report, err := k.RunCycle(t.Context(), tok)
		require.NoError(t, err)
		require.Equal(t, string(distribution.OutcomeDistributed), report.Status)
	})

	t.Run("wrong associated mint", func(t *testing.T) {
		t.Parallel()
		f := newFixture()
		cfg := f.config(t, tok)
		cfg.Accounts = accountsMap{owner.Key: encode(t, bountytesting.Pubkey("other"), testNow)}
		k, err := New(cfg)
		require.NoError(t, err)

		_, err = k.RunCycle(t.Context(), tok)
		require.ErrorContains(t, err, "failed to reconcile cycle state")
	})
}

func TestBounty_Keeper_RunOnce(t *testing.T) {
	t.Parallel()

	f := newFixture()
	good, bad, panicky := testToken("good"), testToken("bad"), testToken("panicky")
	f.claimer.ClaimFeesFunc = func(_ context.Context, tok Token) (solana.Signature, error) {
		switch tok.Key() {
		case bad.Key():
			return solana.Signature{}, errors.New("rpc unavailable")
		case panicky.Key():
			panic("boom")
		}
		return solana.Signature{}, nil
	}

	var (
		mu       sync.Mutex
		reported []string
	)
	cfg := f.config(t, good, bad, panicky)
	cfg.Concurrency = 2
	cfg.OnCycleError = func(token string, err error) {
		mu.Lock()
		reported = append(reported, token)
		mu.Unlock()
	}
	k, err := New(cfg)
	require.NoError(t, err)
	require.False(t, k.Ready())

	err = k.RunOnce(t.Context())
	require.Error(t, err)
	require.ErrorContains(t, err, "rpc unavailable")
	require.ErrorContains(t, err, "cycle panicked")
	require.NotContains(t, err.Error(), good.Key())
	require.ElementsMatch(t, []string{bad.Key(), panicky.Key()}, reported)
	require.True(t, k.Ready())

	st, err := f.store.Get(t.Context(), good.Key())
	require.NoError(t, err)
	require.Equal(t, testNow, st.LastDistributedAt)
}

func TestBounty_Keeper_Start(t *testing.T) {
	t.Parallel()

	f := newFixture()
	tok := testToken("one")
	cfg := f.config(t, tok)
	cfg.Interval = time.Hour
	k, err := New(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	k.Start(ctx)

	waitCtx, waitCancel := context.WithTimeout(ctx, 5*time.Second)
	defer waitCancel()
	require.NoError(t, k.WaitReady(waitCtx))
	require.Equal(t, 1, f.claimer.Calls())

	require.NoError(t, f.clock.BlockUntilContext(waitCtx, 1))
	f.now.Add(86_400)
	f.clock.Advance(time.Hour)
	require.Eventually(t, func() bool { return f.claimer.Calls() == 2 }, 5*time.Second, 10*time.Millisecond)

	t.Run("wait ready honors context", func(t *testing.T) {
		t.Parallel()
		k, err := New(f.config(t, tok))
		require.NoError(t, err)
		ctx, cancel := context.WithCancel(t.Context())
		cancel()
		require.ErrorIs(t, k.WaitReady(ctx), context.Canceled)
	})
}

func TestBounty_Keeper_Transfers(t *testing.T) {
	t.Parallel()

	tok := testToken("one")
	require.Empty(t, Transfers(tok, distribution.Result{Outcome: distribution.OutcomeDust}))

	res := distribution.Result{
		Payouts:          []distribution.Payout{{Recipient: bountytesting.Pubkey("a"), Amount: 5}},
		CreatorRemainder: 0,
	}
	require.Equal(t, []Transfer{{To: bountytesting.Pubkey("a"), Amount: 5}}, Transfers(tok, res))
}

func TestBounty_Keeper_AMMClaimer(t *testing.T) {
	t.Parallel()

	tok := testToken("one")
	client := &amm.DryRunClient{Logger: bountytesting.NewLogger()}
	claimer := &AMMClaimer{Client: client, Programs: pda.DefaultPrograms()}
	_, err := claimer.ClaimFees(t.Context(), tok)
	require.NoError(t, err)

	lt := &LogTransferer{Logger: bountytesting.NewLogger()}
	sigs, err := lt.Transfer(t.Context(), tok, uuid.New(), []Transfer{{To: tok.CreatorAccount, Amount: 1}})
	require.ErrorIs(t, err, ErrDryRun)
	require.Empty(t, sigs)
}

func TestBounty_Keeper_ParseTokens(t *testing.T) {
	t.Parallel()

	a, b, s, c := bountytesting.Pubkey("a"), bountytesting.Pubkey("b"), bountytesting.Pubkey("s"), bountytesting.Pubkey("c")
	b2 := bountytesting.Pubkey("b2")
	entry := func(mintB solana.PublicKey) string {
		return a.String() + ":" + mintB.String() + ":" + s.String() + ":" + c.String()
	}

	tokens, err := ParseTokens(entry(b) + ", " + entry(b2) + ",")
	require.NoError(t, err)
	require.Equal(t, []Token{
		{MintA: a, MintB: b, SettlementAccount: s, CreatorAccount: c},
		{MintA: a, MintB: b2, SettlementAccount: s, CreatorAccount: c},
	}, tokens)

	tokens, err = ParseTokens("")
	require.NoError(t, err)
	require.Empty(t, tokens)

	for name, in := range map[string]string{
		"too few parts": a.String() + ":" + b.String(),
		"bad key":       "x:" + b.String() + ":" + s.String() + ":" + c.String(),
		"duplicate":     entry(b) + "," + entry(b),
		"zero creator":  a.String() + ":" + b.String() + ":" + s.String() + ":" + solana.PublicKey{}.String(),
	} {
		_, err := ParseTokens(in)
		require.Error(t, err, name)
	}
}
