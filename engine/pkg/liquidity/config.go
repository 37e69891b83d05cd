package liquidity

import (
	"errors"

	"github.com/malbeclabs/bounty/engine/pkg/bigmath"
)

const (
	DefaultCommitmentBPS    uint64 = 1_000
	DefaultPoolAmount       uint64 = 1_000_000_000_000
	DefaultRangeLowerFactor uint64 = 8_367
	DefaultRangeUpperFactor uint64 = 11_402

	// RangeFactorDenominator scales the range factors; 8367/10000 is about sqrt(0.7).
	RangeFactorDenominator uint64 = 10_000
	BPSDenominator         uint64 = 10_000
)

// Protocol-wide sqrt price bounds of the AMM, in Q64.64.
var (
	MinSqrtPrice = bigmath.U128From64(4_295_048_016)
	MaxSqrtPrice = bigmath.MustU128("79226673521066979257578248091")
)

type Config struct {
	// CommitmentBPS is the share of the creator balance committed to the pool at bootstrap.
	CommitmentBPS uint64
	// PoolAmount is the token B side of the bootstrap position.
	PoolAmount uint64

	RangeLowerFactor uint64
	RangeUpperFactor uint64

	MinSqrtPrice bigmath.U128
	MaxSqrtPrice bigmath.U128
}

func DefaultConfig() Config {
	return Config{
		CommitmentBPS:    DefaultCommitmentBPS,
		PoolAmount:       DefaultPoolAmount,
		RangeLowerFactor: DefaultRangeLowerFactor,
		RangeUpperFactor: DefaultRangeUpperFactor,
		MinSqrtPrice:     MinSqrtPrice,
		MaxSqrtPrice:     MaxSqrtPrice,
	}
}

func (cfg *Config) Validate() error {
	if cfg.CommitmentBPS == 0 || cfg.CommitmentBPS > BPSDenominator {
		return errors.New("commitment bps must be between 1 and 10000")
	}
	if cfg.PoolAmount == 0 {
		return errors.New("pool amount is required")
	}
	if cfg.RangeLowerFactor == 0 || cfg.RangeLowerFactor >= cfg.RangeUpperFactor {
		return errors.New("range lower factor must be positive and below the upper factor")
	}
	if bigmath.Cmp128(cfg.MinSqrtPrice, cfg.MaxSqrtPrice) >= 0 {
		return errors.New("min sqrt price must be below max sqrt price")
	}
	return nil
}
