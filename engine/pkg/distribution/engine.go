// Package distribution splits settlement-token fee revenue pro-rata across the locked balances of
// vesting grants, under a share cap, a per-cycle cap and a cooldown between cycles.
package distribution

import (
	"fmt"
	"math"
	"math/bits"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/holiman/uint256"

	"github.com/malbeclabs/bounty/engine/pkg/bigmath"
	"github.com/malbeclabs/bounty/engine/pkg/calcerror"
	"github.com/malbeclabs/bounty/engine/pkg/vesting"
)

// State is the persisted per-token cycle record.
type State struct {
	LastDistributedAt int64
}

type Request struct {
	Now               int64
	SettlementBalance uint64
	Grants            []vesting.Grant
	PriorState        State
}

type Payout struct {
	GrantID   solana.PublicKey
	Recipient solana.PublicKey
	Amount    uint64
}

// Outcome describes which path a successful cycle took.
type Outcome string

const (
	OutcomeDistributed   Outcome = "distributed"
	OutcomeDust          Outcome = "dust"
	OutcomeNothingLocked Outcome = "nothing_locked"
)

type Result struct {
	Outcome          Outcome
	Payouts          []Payout
	CreatorRemainder uint64
	NewState         State

	InitialLocked uint64
	TotalLocked   uint64
	ShareBPS      uint64
	InvestorFee   uint64
	Distributable uint64
}

// TotalPaid is the sum of all grant payouts.
func (r Result) TotalPaid() uint64 {
	var sum uint64
	for _, p := range r.Payouts {
		sum += p.Amount
	}
	return sum
}

type Engine struct {
	cfg Config
}

func New(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{cfg: cfg}, nil
}

func (e *Engine) Config() Config {
	return e.cfg
}

// Run executes one distribution cycle. It performs no I/O; the caller supplies the clock reading,
// the settlement balance and the grants, and persists NewState only when Run succeeds.
func (e *Engine) Run(req Request) (Result, error) {
	// 1. Cooldown gate.
	cooldown := int64(e.cfg.Cooldown / time.Second)
	if req.PriorState.LastDistributedAt > math.MaxInt64-cooldown {
		return Result{}, calcerror.Overflow("distribution.Run", "cooldown deadline overflows")
	}
	if next := req.PriorState.LastDistributedAt + cooldown; req.Now < next {
		return Result{}, calcerror.Precondition("distribution.Run", fmt.Sprintf("cooldown active until %d, now %d", next, req.Now))
	}
	res := Result{NewState: State{LastDistributedAt: req.Now}}

	// 2. Dust gate.
	if req.SettlementBalance < e.cfg.DustThreshold {
		res.Outcome = OutcomeDust
		return res, nil
	}

	// 3. Locked balances, all evaluated at the same instant.
	snaps, err := vesting.Snapshot(req.Grants, req.Now)
	if err != nil {
		return Result{}, err
	}
	var initialLocked, totalLocked uint64
	for i, g := range req.Grants {
		var carry uint64
		initialLocked, carry = bits.Add64(initialLocked, g.NetDeposited, 0)
		if carry != 0 {
			return Result{}, calcerror.Overflow("distribution.Run", "initial locked sum exceeds 64 bits")
		}
		totalLocked, carry = bits.Add64(totalLocked, snaps[i].Locked, 0)
		if carry != 0 {
			return Result{}, calcerror.Overflow("distribution.Run", "total locked sum exceeds 64 bits")
		}
	}
	res.InitialLocked = initialLocked
	res.TotalLocked = totalLocked

	// 4. Eligible share fraction.
	if res.ShareBPS, err = ShareBPS(totalLocked, initialLocked, e.cfg.MaxShareBPS); err != nil {
		return Result{}, err
	}

	// 5. Investor quote.
	quote, err := bigmath.MulDiv(uint256.NewInt(req.SettlementBalance), uint256.NewInt(res.ShareBPS), uint256.NewInt(BPSDenominator))
	if err != nil {
		return Result{}, err
	}
	if res.InvestorFee, err = bigmath.Narrow64(quote); err != nil {
		return Result{}, err
	}

	// 6. Daily cap.
	res.Distributable = min(res.InvestorFee, e.cfg.DailyCap)

	// 7. Pro-rata split. Nothing is divided when every grant is fully unlocked.
	if totalLocked == 0 {
		res.Outcome = OutcomeNothingLocked
	} else {
		res.Outcome = OutcomeDistributed
		distributable := uint256.NewInt(res.Distributable)
		total := uint256.NewInt(totalLocked)
		for i, g := range req.Grants {
			locked := snaps[i].Locked
			if locked == 0 {
				continue
			}
			share, err := bigmath.MulDiv(distributable, uint256.NewInt(locked), total)
			if err != nil {
				return Result{}, err
			}
			amount, err := bigmath.Narrow64(share)
			if err != nil {
				return Result{}, err
			}
			if amount == 0 {
				continue
			}
			res.Payouts = append(res.Payouts, Payout{GrantID: g.ID, Recipient: g.Recipient, Amount: amount})
		}
	}

	// 8. Remainder sweep.
	remainder := req.SettlementBalance
	for _, p := range res.Payouts {
		var borrow uint64
		remainder, borrow = bits.Sub64(remainder, p.Amount, 0)
		if borrow != 0 {
			return Result{}, calcerror.Overflow("distribution.Run", "payouts exceed settlement balance")
		}
	}
	res.CreatorRemainder = remainder

	return res, nil
}

// ShareBPS is the eligible investor share in basis points for the given locked totals.
func ShareBPS(totalLocked, initialLocked, maxShareBPS uint64) (uint64, error) {
	if initialLocked == 0 {
		return 0, calcerror.Overflow("distribution.ShareBPS", "initial locked is zero")
	}
	bps, err := bigmath.MulDiv(uint256.NewInt(totalLocked), uint256.NewInt(BPSDenominator), uint256.NewInt(initialLocked))
	if err != nil {
		return 0, err
	}
	return bigmath.Min(bps, uint256.NewInt(maxShareBPS)).Uint64(), nil
}
