// Package vesting computes the locked balance of time-vesting grants.
package vesting

import (
	"fmt"
	"math/bits"

	"github.com/gagliardetto/solana-go"

	"github.com/malbeclabs/bounty/engine/pkg/calcerror"
)

// Schedule reports how much of a grant has vested at a unix timestamp. Implementations must be
// non-decreasing in ts and bounded by the grant's deposited amount.
type Schedule interface {
	VestedAmountAt(ts int64) uint64
}

// ScheduleFunc adapts a plain function to a Schedule.
type ScheduleFunc func(ts int64) uint64

func (f ScheduleFunc) VestedAmountAt(ts int64) uint64 { return f(ts) }

// Grant is a read-only view of one vesting record owned by the vesting protocol.
type Grant struct {
	ID           solana.PublicKey
	NetDeposited uint64
	Withdrawn    uint64
	Schedule     Schedule
	Recipient    solana.PublicKey
}

// LockedSnapshot is a grant's locked balance at one instant of a distribution cycle.
type LockedSnapshot struct {
	GrantID solana.PublicKey
	Locked  uint64
}

// Locked returns net_deposited - vested(now) - withdrawn. Any underflow is a fatal inconsistency
// and is never clamped to zero.
func Locked(g Grant, now int64) (uint64, error) {
	if g.Schedule == nil {
		return 0, calcerror.Precondition("vesting.Locked", fmt.Sprintf("grant %s has no schedule", g.ID))
	}
	vested := g.Schedule.VestedAmountAt(now)

	afterVested, borrow := bits.Sub64(g.NetDeposited, vested, 0)
	if borrow != 0 {
		return 0, calcerror.Overflow("vesting.Locked", fmt.Sprintf("grant %s: vested %d exceeds deposited %d", g.ID, vested, g.NetDeposited))
	}
	locked, borrow := bits.Sub64(afterVested, g.Withdrawn, 0)
	if borrow != 0 {
		return 0, calcerror.Overflow("vesting.Locked", fmt.Sprintf("grant %s: withdrawn %d exceeds unvested %d", g.ID, g.Withdrawn, afterVested))
	}
	return locked, nil
}

// Snapshot evaluates every grant at the same instant.
func Snapshot(grants []Grant, now int64) ([]LockedSnapshot, error) {
	out := make([]LockedSnapshot, 0, len(grants))
	for _, g := range grants {
		locked, err := Locked(g, now)
		if err != nil {
			return nil, err
		}
		out = append(out, LockedSnapshot{GrantID: g.ID, Locked: locked})
	}
	return out, nil
}
