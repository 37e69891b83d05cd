package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/go-chi/chi/v5"

	"github.com/malbeclabs/bounty/api/metrics"
	"github.com/malbeclabs/bounty/engine/pkg/distribution"
	"github.com/malbeclabs/bounty/engine/pkg/vesting"
	"github.com/malbeclabs/bounty/keeper/pkg/history"
	"github.com/malbeclabs/bounty/keeper/pkg/statestore"
)

type ScheduleInput struct {
	StartTime       int64  `json:"start_time"`
	Cliff           int64  `json:"cliff,omitempty"`
	CliffAmount     uint64 `json:"cliff_amount,omitempty"`
	Period          int64  `json:"period"`
	AmountPerPeriod uint64 `json:"amount_per_period"`
}

type GrantInput struct {
	ID           string        `json:"id"`
	Recipient    string        `json:"recipient"`
	NetDeposited uint64        `json:"net_deposited"`
	Withdrawn    uint64        `json:"withdrawn"`
	Schedule     ScheduleInput `json:"schedule"`
}

type PreviewRequest struct {
	Now               int64        `json:"now"`
	SettlementBalance uint64       `json:"settlement_balance"`
	LastDistributedAt int64        `json:"last_distributed_at"`
	Grants            []GrantInput `json:"grants"`
}

type PayoutResponse struct {
	GrantID   string `json:"grant_id"`
	Recipient string `json:"recipient"`
	Amount    uint64 `json:"amount"`
}

type PreviewResponse struct {
	Outcome           string           `json:"outcome"`
	Payouts           []PayoutResponse `json:"payouts"`
	CreatorRemainder  uint64           `json:"creator_remainder"`
	LastDistributedAt int64            `json:"last_distributed_at"`
	InitialLocked     uint64           `json:"initial_locked"`
	TotalLocked       uint64           `json:"total_locked"`
	ShareBPS          uint64           `json:"share_bps"`
	InvestorFee       uint64           `json:"investor_fee"`
	Distributable     uint64           `json:"distributable"`
}

// toGrant builds a vesting grant whose schedule reports the vested amount not yet withdrawn,
// the same view the keeper reads from chain.
func (g GrantInput) toGrant() (vesting.Grant, error) {
	id, err := solana.PublicKeyFromBase58(g.ID)
	if err != nil {
		return vesting.Grant{}, errors.New("grant id: " + err.Error())
	}
	recipient, err := solana.PublicKeyFromBase58(g.Recipient)
	if err != nil {
		return vesting.Grant{}, errors.New("grant recipient: " + err.Error())
	}
	sched := vesting.LinearSchedule{
		StartTime:       g.Schedule.StartTime,
		Cliff:           g.Schedule.Cliff,
		CliffAmount:     g.Schedule.CliffAmount,
		Period:          g.Schedule.Period,
		AmountPerPeriod: g.Schedule.AmountPerPeriod,
		NetDeposited:    g.NetDeposited,
	}
	withdrawn := g.Withdrawn
	return vesting.Grant{
		ID:           id,
		Recipient:    recipient,
		NetDeposited: g.NetDeposited,
		Withdrawn:    withdrawn,
		Schedule: vesting.ScheduleFunc(func(ts int64) uint64 {
			vested := sched.VestedAmountAt(ts)
			if vested < withdrawn {
				return 0
			}
			return vested - withdrawn
		}),
	}, nil
}

func (a *API) PostDistributionPreview(w http.ResponseWriter, r *http.Request) {
	var req PreviewRequest
	if !decodeBody(w, r, &req) {
		return
	}

	grants := make([]vesting.Grant, 0, len(req.Grants))
	for _, in := range req.Grants {
		g, err := in.toGrant()
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		grants = append(grants, g)
	}

	res, err := a.cfg.Distribution.Run(distribution.Request{
		Now:               req.Now,
		SettlementBalance: req.SettlementBalance,
		Grants:            grants,
		PriorState:        distribution.State{LastDistributedAt: req.LastDistributedAt},
	})
	if err != nil {
		a.writeEngineError(w, err)
		return
	}

	resp := PreviewResponse{
		Outcome:           string(res.Outcome),
		Payouts:           make([]PayoutResponse, 0, len(res.Payouts)),
		CreatorRemainder:  res.CreatorRemainder,
		LastDistributedAt: res.NewState.LastDistributedAt,
		InitialLocked:     res.InitialLocked,
		TotalLocked:       res.TotalLocked,
		ShareBPS:          res.ShareBPS,
		InvestorFee:       res.InvestorFee,
		Distributable:     res.Distributable,
	}
	for _, p := range res.Payouts {
		resp.Payouts = append(resp.Payouts, PayoutResponse{
			GrantID:   p.GrantID.String(),
			Recipient: p.Recipient.String(),
			Amount:    p.Amount,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

type StateResponse struct {
	Token             string    `json:"token"`
	LastDistributedAt int64     `json:"last_distributed_at"`
	NextEligibleAt    int64     `json:"next_eligible_at"`
	Cycles            int64     `json:"cycles"`
	LastCycleID       string    `json:"last_cycle_id,omitempty"`
	LastOutcome       string    `json:"last_outcome,omitempty"`
	SeededFromChain   bool      `json:"seeded_from_chain"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func (a *API) GetDistributionState(w http.ResponseWriter, r *http.Request) {
	if a.cfg.State == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "state store is not configured")
		return
	}
	token := chi.URLParam(r, "token")
	if _, err := solana.PublicKeyFromBase58(token); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "token: "+err.Error())
		return
	}

	st, err := a.cfg.State.Get(r.Context(), token)
	if errors.Is(err, statestore.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "no distribution state for token")
		return
	}
	if err != nil {
		a.writeStoreError(w, "failed to get distribution state", err, "token", token)
		return
	}

	resp := StateResponse{
		Token:             st.Token,
		LastDistributedAt: st.LastDistributedAt,
		Cycles:            st.Cycles,
		LastOutcome:       st.LastOutcome,
		SeededFromChain:   st.SeededFromChain,
		UpdatedAt:         st.UpdatedAt,
	}
	if st.LastDistributedAt > 0 {
		resp.NextEligibleAt = st.LastDistributedAt + int64(a.cfg.Distribution.Config().Cooldown/time.Second)
	}
	if st.LastCycleID.Valid {
		resp.LastCycleID = st.LastCycleID.UUID.String()
	}
	writeJSON(w, http.StatusOK, resp)
}

const (
	DefaultCyclesLimit = history.DefaultRecentLimit
	MaxCyclesLimit     = history.MaxRecentLimit
)

func (a *API) GetDistributionCycles(w http.ResponseWriter, r *http.Request) {
	if a.cfg.History == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "history is not configured")
		return
	}
	token := chi.URLParam(r, "token")
	if _, err := solana.PublicKeyFromBase58(token); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "token: "+err.Error())
		return
	}
	limit := ParseLimit(r, DefaultCyclesLimit, MaxCyclesLimit)
	withPayouts, _ := strconv.ParseBool(r.URL.Query().Get("payouts"))

	start := time.Now()
	cycles, err := a.cfg.History.RecentCycles(r.Context(), token, limit)
	if err == nil && withPayouts {
		for i := range cycles {
			if cycles[i].Payouts, err = a.cfg.History.PayoutsForCycle(r.Context(), cycles[i].CycleID); err != nil {
				break
			}
		}
	}
	metrics.RecordHistoryQuery(time.Since(start), err)
	if err != nil {
		a.writeStoreError(w, "failed to query cycle history", err, "token", token)
		return
	}

	if cycles == nil {
		cycles = []history.CycleRecord{}
	}
	writeJSON(w, http.StatusOK, ListResponse[history.CycleRecord]{Items: cycles, Limit: limit})
}
