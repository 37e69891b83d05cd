package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/malbeclabs/bounty/api/handlers"
	"github.com/malbeclabs/bounty/engine/pkg/distribution"
	"github.com/malbeclabs/bounty/engine/pkg/liquidity"
	"github.com/malbeclabs/bounty/keeper/pkg/history"
	"github.com/malbeclabs/bounty/keeper/pkg/statestore"
	bountytesting "github.com/malbeclabs/bounty/utils/pkg/testing"
)

const testNow = int64(1_750_000_000)

type fakeState map[string]statestore.State

func (f fakeState) Get(_ context.Context, token string) (statestore.State, error) {
	st, ok := f[token]
	if !ok {
		return statestore.State{}, statestore.ErrNotFound
	}
	return st, nil
}

type fakeHistory struct {
	cycles  []history.CycleRecord
	payouts map[uuid.UUID][]history.PayoutRecord
	err     error

	gotLimit int
}

func (f *fakeHistory) RecentCycles(_ context.Context, _ string, limit int) ([]history.CycleRecord, error) {
	f.gotLimit = limit
	return f.cycles, f.err
}

func (f *fakeHistory) PayoutsForCycle(_ context.Context, id uuid.UUID) ([]history.PayoutRecord, error) {
	return f.payouts[id], nil
}

func newTestAPI(t *testing.T, state handlers.StateReader, hist handlers.HistoryReader) http.Handler {
	t.Helper()

	liq, err := liquidity.New(liquidity.DefaultConfig())
	require.NoError(t, err)
	dist, err := distribution.New(distribution.DefaultConfig())
	require.NoError(t, err)
	limiter := handlers.NewRateLimiter(rate.Inf, 1)
	t.Cleanup(limiter.Stop)

	cfg := handlers.Config{
		Logger:       bountytesting.NewLogger(),
		Liquidity:    liq,
		Distribution: dist,
		RateLimiter:  limiter,
		State:        state,
		History:      hist,
	}
	api, err := handlers.New(cfg)
	require.NoError(t, err)
	return api.Router()
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&v))
	return v
}

func TestBounty_API_Config(t *testing.T) {
	t.Parallel()

	_, err := handlers.New(handlers.Config{})
	require.Error(t, err)

	liq, err := liquidity.New(liquidity.DefaultConfig())
	require.NoError(t, err)
	_, err = handlers.New(handlers.Config{Logger: bountytesting.NewLogger(), Liquidity: liq})
	require.Error(t, err)
}

func TestBounty_API_Liquidity(t *testing.T) {
	t.Parallel()

	h := newTestAPI(t, nil, nil)

	t.Run("computes liquidity", func(t *testing.T) {
		t.Parallel()
		rr := do(t, h, http.MethodPost, "/v1/liquidity", handlers.LiquidityRequest{
			TokenAAmount: 1_000_000,
			TokenBAmount: 10_000_000_000,
			SqrtPrice:    "1807843318802272619022",
			SqrtMinPrice: "1543439076647278183710",
			SqrtMaxPrice: "2103297759284363075256",
		})
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		require.Equal(t, "12869777131694584519911491827", decode[handlers.LiquidityResponse](t, rr).Liquidity)
	})

	t.Run("price outside range", func(t *testing.T) {
		t.Parallel()
		rr := do(t, h, http.MethodPost, "/v1/liquidity", handlers.LiquidityRequest{
			TokenAAmount: 1, TokenBAmount: 1, SqrtPrice: "1000", SqrtMinPrice: "1000", SqrtMaxPrice: "2000",
		})
		require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
		require.Equal(t, "invalid_precondition", decode[handlers.ErrorResponse](t, rr).Error)
	})

	t.Run("malformed u128", func(t *testing.T) {
		t.Parallel()
		rr := do(t, h, http.MethodPost, "/v1/liquidity", handlers.LiquidityRequest{
			SqrtPrice: "-1", SqrtMinPrice: "1", SqrtMaxPrice: "2",
		})
		require.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("bad json", func(t *testing.T) {
		t.Parallel()
		req := httptest.NewRequest(http.MethodPost, "/v1/liquidity", bytes.NewBufferString("{"))
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		require.Equal(t, http.StatusBadRequest, rr.Code)
		require.Equal(t, "invalid_request", decode[handlers.ErrorResponse](t, rr).Error)
	})
}

func TestBounty_API_Bootstrap(t *testing.T) {
	t.Parallel()

	h := newTestAPI(t, nil, nil)

	rr := do(t, h, http.MethodPost, "/v1/bootstrap", handlers.BootstrapRequest{CreatorBalance: 10_000_000_000_000})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	resp := decode[handlers.BootstrapResponse](t, rr)
	require.Equal(t, uint64(1_000_000_000_000), resp.TokenAAmount)
	require.Equal(t, liquidity.DefaultPoolAmount, resp.TokenBAmount)
	require.Equal(t, "18078433188022726189", resp.SqrtPrice)
	require.Equal(t, "15434390766472781837", resp.SqrtMinPrice)
	require.Equal(t, "21032977592843630752", resp.SqrtMaxPrice)
	require.Equal(t, "128697771316945845158254241374269", resp.Liquidity)
	require.True(t, decimal.RequireFromString(resp.Price).Equal(decimal.RequireFromString("0.960466301827909563")))

	rr = do(t, h, http.MethodPost, "/v1/bootstrap", handlers.BootstrapRequest{})
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	require.Equal(t, "invalid_precondition", decode[handlers.ErrorResponse](t, rr).Error)
}

func previewGrants() []handlers.GrantInput {
	return []handlers.GrantInput{
		{
			ID: bountytesting.Pubkey("grant-1").String(), Recipient: bountytesting.Pubkey("investor-1").String(),
			NetDeposited: 1000,
			Schedule:     handlers.ScheduleInput{StartTime: testNow - 2000, Period: 1, AmountPerPeriod: 1},
		},
		{
			// 500 vested, 200 of it already withdrawn.
			ID: bountytesting.Pubkey("grant-2").String(), Recipient: bountytesting.Pubkey("investor-2").String(),
			NetDeposited: 1000, Withdrawn: 200,
			Schedule: handlers.ScheduleInput{StartTime: testNow - 500, Period: 1, AmountPerPeriod: 1},
		},
		{
			ID: bountytesting.Pubkey("grant-3").String(), Recipient: bountytesting.Pubkey("investor-3").String(),
			NetDeposited: 1000,
			Schedule:     handlers.ScheduleInput{StartTime: testNow + 10, Period: 1, AmountPerPeriod: 1},
		},
	}
}

func TestBounty_API_DistributionPreview(t *testing.T) {
	t.Parallel()

	h := newTestAPI(t, nil, nil)

	t.Run("distributes", func(t *testing.T) {
		t.Parallel()
		rr := do(t, h, http.MethodPost, "/v1/distribution/preview", handlers.PreviewRequest{
			Now:               testNow,
			SettlementBalance: 2_000_000,
			LastDistributedAt: testNow - 86400,
			Grants:            previewGrants(),
		})
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		resp := decode[handlers.PreviewResponse](t, rr)
		require.Equal(t, "distributed", resp.Outcome)
		require.Equal(t, uint64(3000), resp.InitialLocked)
		require.Equal(t, uint64(1500), resp.TotalLocked)
		require.Equal(t, uint64(200_000), resp.Distributable)
		require.Equal(t, []handlers.PayoutResponse{
			{GrantID: bountytesting.Pubkey("grant-2").String(), Recipient: bountytesting.Pubkey("investor-2").String(), Amount: 66_666},
			{GrantID: bountytesting.Pubkey("grant-3").String(), Recipient: bountytesting.Pubkey("investor-3").String(), Amount: 133_333},
		}, resp.Payouts)
		require.Equal(t, uint64(1_800_001), resp.CreatorRemainder)
		require.Equal(t, testNow, resp.LastDistributedAt)
	})

	t.Run("cooldown", func(t *testing.T) {
		t.Parallel()
		rr := do(t, h, http.MethodPost, "/v1/distribution/preview", handlers.PreviewRequest{
			Now:               testNow,
			SettlementBalance: 2_000_000,
			LastDistributedAt: testNow - 60,
			Grants:            previewGrants(),
		})
		require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
		require.Equal(t, "invalid_precondition", decode[handlers.ErrorResponse](t, rr).Error)
	})

	t.Run("invalid grant key", func(t *testing.T) {
		t.Parallel()
		grants := previewGrants()
		grants[0].ID = "not-a-key"
		rr := do(t, h, http.MethodPost, "/v1/distribution/preview", handlers.PreviewRequest{Now: testNow, Grants: grants})
		require.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestBounty_API_DistributionState(t *testing.T) {
	t.Parallel()

	token := bountytesting.Pubkey("mint-b").String()
	cycleID := uuid.New()
	state := fakeState{token: {
		Token:             token,
		LastDistributedAt: testNow,
		Cycles:            3,
		LastCycleID:       uuid.NullUUID{UUID: cycleID, Valid: true},
		LastOutcome:       "distributed",
		UpdatedAt:         time.Unix(testNow, 0).UTC(),
	}}
	h := newTestAPI(t, state, nil)

	rr := do(t, h, http.MethodGet, "/v1/distribution/"+token+"/state", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	resp := decode[handlers.StateResponse](t, rr)
	require.Equal(t, int64(3), resp.Cycles)
	require.Equal(t, cycleID.String(), resp.LastCycleID)
	require.Equal(t, testNow+86400, resp.NextEligibleAt)

	rr = do(t, h, http.MethodGet, "/v1/distribution/"+bountytesting.Pubkey("other").String()+"/state", nil)
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(t, h, http.MethodGet, "/v1/distribution/nope/state", nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, newTestAPI(t, nil, nil), http.MethodGet, "/v1/distribution/"+token+"/state", nil)
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestBounty_API_DistributionCycles(t *testing.T) {
	t.Parallel()

	token := bountytesting.Pubkey("mint-b").String()
	id := uuid.New()

	t.Run("lists cycles with payouts", func(t *testing.T) {
		t.Parallel()
		hist := &fakeHistory{
			cycles:  []history.CycleRecord{{CycleID: id, Token: token, Outcome: "distributed"}},
			payouts: map[uuid.UUID][]history.PayoutRecord{id: {{CycleID: id, Token: token, Amount: 66_666}}},
		}
		h := newTestAPI(t, nil, hist)

		rr := do(t, h, http.MethodGet, "/v1/distribution/"+token+"/cycles?limit=5000&payouts=true", nil)
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		resp := decode[handlers.ListResponse[history.CycleRecord]](t, rr)
		require.Equal(t, handlers.MaxCyclesLimit, resp.Limit)
		require.Equal(t, handlers.MaxCyclesLimit, hist.gotLimit)
		require.Len(t, resp.Items, 1)
		require.Len(t, resp.Items[0].Payouts, 1)
		require.Equal(t, uint64(66_666), resp.Items[0].Payouts[0].Amount)
	})

	t.Run("empty history", func(t *testing.T) {
		t.Parallel()
		h := newTestAPI(t, nil, &fakeHistory{})
		rr := do(t, h, http.MethodGet, "/v1/distribution/"+token+"/cycles", nil)
		require.Equal(t, http.StatusOK, rr.Code)
		resp := decode[handlers.ListResponse[history.CycleRecord]](t, rr)
		require.Empty(t, resp.Items)
		require.Equal(t, handlers.DefaultCyclesLimit, resp.Limit)
	})

	t.Run("store down", func(t *testing.T) {
		t.Parallel()
		h := newTestAPI(t, nil, &fakeHistory{err: errors.New("dial tcp 127.0.0.1:9000: connect: connection refused")})
		rr := do(t, h, http.MethodGet, "/v1/distribution/"+token+"/cycles", nil)
		require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	})

	t.Run("disabled", func(t *testing.T) {
		t.Parallel()
		rr := do(t, newTestAPI(t, nil, nil), http.MethodGet, "/v1/distribution/"+token+"/cycles", nil)
		require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	})
}
