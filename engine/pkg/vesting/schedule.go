package vesting

import "math/bits"

// LinearSchedule is a cliff-then-periodic release schedule, as used by the vesting protocol's
// token streams.
type LinearSchedule struct {
	StartTime       int64
	Cliff           int64 // unix timestamp; zero means the stream starts releasing at StartTime
	CliffAmount     uint64
	Period          int64 // seconds
	AmountPerPeriod uint64
	NetDeposited    uint64
}

// VestedAmountAt returns the cumulative released amount at ts, saturating at NetDeposited.
func (s LinearSchedule) VestedAmountAt(ts int64) uint64 {
	cliff := max(s.StartTime, s.Cliff)
	if ts < cliff {
		return 0
	}

	vested := min(s.CliffAmount, s.NetDeposited)
	if s.Period <= 0 {
		return vested
	}

	periods := uint64((ts - cliff) / s.Period)
	hi, released := bits.Mul64(periods, s.AmountPerPeriod)
	if hi != 0 {
		return s.NetDeposited
	}
	total, carry := bits.Add64(vested, released, 0)
	if carry != 0 || total > s.NetDeposited {
		return s.NetDeposited
	}
	return total
}

// EndTime is the first timestamp at which the schedule is fully vested. It returns false when the
// schedule never releases the full deposit.
func (s LinearSchedule) EndTime() (int64, bool) {
	cliff := max(s.StartTime, s.Cliff)
	remaining := s.NetDeposited - min(s.CliffAmount, s.NetDeposited)
	if remaining == 0 {
		return cliff, true
	}
	if s.Period <= 0 || s.AmountPerPeriod == 0 {
		return 0, false
	}
	periods := (remaining + s.AmountPerPeriod - 1) / s.AmountPerPeriod
	return cliff + int64(periods)*s.Period, true
}
