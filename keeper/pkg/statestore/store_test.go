package statestore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	bountytesting "github.com/malbeclabs/bounty/utils/pkg/testing"
)

func TestBounty_StateStore_Config(t *testing.T) {
	_, err := NewStore(StoreConfig{})
	require.ErrorContains(t, err, "logger is required")
	_, err = NewStore(StoreConfig{Logger: bountytesting.NewLogger()})
	require.ErrorContains(t, err, "pool is required")
}

func TestBounty_StateStore_WithLock(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := t.Context()

	_, err := store.Get(ctx, "mintA")
	require.ErrorIs(t, err, ErrNotFound)

	cycleID := uuid.New()
	err = store.WithLock(ctx, "mintA", func(ctx context.Context, st State) (Update, error) {
		require.Equal(t, int64(0), st.LastDistributedAt)
		require.False(t, st.LastCycleID.Valid)
		return Update{LastDistributedAt: 1_700_000_000, CycleID: cycleID, Outcome: "distributed"}, nil
	})
	require.NoError(t, err)

	st, err := store.Get(ctx, "mintA")
	require.NoError(t, err)
	require.Equal(t, int64(1_700_000_000), st.LastDistributedAt)
	require.Equal(t, int64(1), st.Cycles)
	require.Equal(t, cycleID, st.LastCycleID.UUID)
	require.Equal(t, "distributed", st.LastOutcome)

	t.Run("error rolls back", func(t *testing.T) {
		boom := errors.New("transfer failed")
		err := store.WithLock(ctx, "mintA", func(ctx context.Context, st State) (Update, error) {
			return Update{LastDistributedAt: st.LastDistributedAt + 86_400}, boom
		})
		require.ErrorIs(t, err, boom)
		st, err := store.Get(ctx, "mintA")
		require.NoError(t, err)
		require.Equal(t, int64(1_700_000_000), st.LastDistributedAt)
		require.Equal(t, int64(1), st.Cycles)
	})

	t.Run("regression is rejected", func(t *testing.T) {
		err := store.WithLock(ctx, "mintA", func(ctx context.Context, st State) (Update, error) {
			return Update{LastDistributedAt: st.LastDistributedAt - 1, CycleID: uuid.New()}, nil
		})
		require.ErrorIs(t, err, ErrRegression)
	})
}

func TestBounty_StateStore_WithLock_Serializes(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := t.Context()

	var (
		mu      sync.Mutex
		running int
		maxSeen int
		wg      sync.WaitGroup
	)
	errs := make(chan error, 4)
	for i := range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.WithLock(ctx, "mintB", func(ctx context.Context, st State) (Update, error) {
				mu.Lock()
				running++
				maxSeen = max(maxSeen, running)
				mu.Unlock()
				time.Sleep(50 * time.Millisecond)
				mu.Lock()
				running--
				mu.Unlock()
				return Update{LastDistributedAt: st.LastDistributedAt + int64(i) + 1, CycleID: uuid.New()}, nil
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	require.Equal(t, 1, maxSeen)
	st, err := store.Get(ctx, "mintB")
	require.NoError(t, err)
	require.Equal(t, int64(4), st.Cycles)
	require.Equal(t, int64(10), st.LastDistributedAt)
}

func TestBounty_StateStore_SeedAndList(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := t.Context()

	seeded, err := store.Seed(ctx, "mintC", 1_699_000_000)
	require.NoError(t, err)
	require.True(t, seeded)

	seeded, err = store.Seed(ctx, "mintC", 1)
	require.NoError(t, err)
	require.False(t, seeded)

	require.NoError(t, store.WithLock(ctx, "mintD", func(ctx context.Context, st State) (Update, error) {
		return Update{LastDistributedAt: 5, CycleID: uuid.New(), Outcome: "dust"}, nil
	}))

	states, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, states, 2)
	require.Equal(t, "mintC", states[0].Token)
	require.Equal(t, int64(1_699_000_000), states[0].LastDistributedAt)
	require.True(t, states[0].SeededFromChain)
	require.Equal(t, "mintD", states[1].Token)
	require.Equal(t, "dust", states[1].LastOutcome)
}
