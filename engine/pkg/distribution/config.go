package distribution

import (
	"errors"
	"time"
)

const (
	DefaultDustThreshold uint64 = 1_000_000
	DefaultMaxShareBPS   uint64 = 1_000
	DefaultDailyCap      uint64 = 1_000_000_000
	DefaultCooldown             = 24 * time.Hour

	// BPSDenominator is the basis point scale for share fractions.
	BPSDenominator uint64 = 10_000
)

type Config struct {
	// DustThreshold is the settlement balance below which a cycle pays nothing.
	DustThreshold uint64
	// MaxShareBPS caps the investor share fraction.
	MaxShareBPS uint64
	// DailyCap caps the distributable amount per cycle.
	DailyCap uint64
	// Cooldown is the minimum spacing between two cycles for the same token.
	Cooldown time.Duration
}

func DefaultConfig() Config {
	return Config{
		DustThreshold: DefaultDustThreshold,
		MaxShareBPS:   DefaultMaxShareBPS,
		DailyCap:      DefaultDailyCap,
		Cooldown:      DefaultCooldown,
	}
}

func (cfg *Config) Validate() error {
	if cfg.MaxShareBPS > BPSDenominator {
		return errors.New("max share bps must not exceed 10000")
	}
	if cfg.Cooldown < 0 {
		return errors.New("cooldown must not be negative")
	}
	if cfg.Cooldown%time.Second != 0 {
		return errors.New("cooldown must be a whole number of seconds")
	}
	return nil
}
