// Package history keeps an append-only record of distribution cycles and their payouts in
// ClickHouse.
package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/malbeclabs/bounty/engine/pkg/distribution"
	"github.com/malbeclabs/bounty/keeper/pkg/clickhouse"
)

const (
	cyclesTable  = "fact_distribution_cycles"
	payoutsTable = "fact_distribution_payouts"

	cycleColumns = "cycle_id, token, cycled_at, outcome, settlement_balance, initial_locked, total_locked, " +
		"share_bps, investor_fee, distributable, total_paid, creator_remainder, payout_count"

	payoutColumns = "cycle_id, token, cycled_at, payout_index, grant_id, recipient, amount"

	DefaultRecentLimit = 50
	MaxRecentLimit     = 1_000
)

type PayoutRecord struct {
	CycleID   uuid.UUID `json:"cycle_id"`
	Token     string    `json:"token"`
	CycledAt  time.Time `json:"cycled_at"`
	// Index is the payout's position in the engine's grant order.
	Index     uint32    `json:"index"`
	GrantID   string    `json:"grant_id"`
	Recipient string    `json:"recipient"`
	Amount    uint64    `json:"amount"`
}

type CycleRecord struct {
	CycleID           uuid.UUID `json:"cycle_id"`
	Token             string    `json:"token"`
	CycledAt          time.Time `json:"cycled_at"`
	Outcome           string    `json:"outcome"`
	SettlementBalance uint64    `json:"settlement_balance"`
	InitialLocked     uint64    `json:"initial_locked"`
	TotalLocked       uint64    `json:"total_locked"`
	ShareBPS          uint64    `json:"share_bps"`
	InvestorFee       uint64    `json:"investor_fee"`
	Distributable     uint64    `json:"distributable"`
	TotalPaid         uint64    `json:"total_paid"`
	CreatorRemainder  uint64    `json:"creator_remainder"`
	PayoutCount       uint32    `json:"payout_count"`

	Payouts []PayoutRecord `json:"payouts,omitempty"`
}

// NewCycleRecord flattens an engine result into the rows written for one cycle.
func NewCycleRecord(id uuid.UUID, token string, at time.Time, balance uint64, res distribution.Result) CycleRecord {
	c := CycleRecord{
		CycleID:           id,
		Token:             token,
		CycledAt:          at.UTC(),
		Outcome:           string(res.Outcome),
		SettlementBalance: balance,
		InitialLocked:     res.InitialLocked,
		TotalLocked:       res.TotalLocked,
		ShareBPS:          res.ShareBPS,
		InvestorFee:       res.InvestorFee,
		Distributable:     res.Distributable,
		TotalPaid:         res.TotalPaid(),
		CreatorRemainder:  res.CreatorRemainder,
		PayoutCount:       uint32(len(res.Payouts)),
	}
	for i, p := range res.Payouts {
		c.Payouts = append(c.Payouts, PayoutRecord{
			CycleID:   id,
			Token:     token,
			CycledAt:  c.CycledAt,
			Index:     uint32(i),
			GrantID:   p.GrantID.String(),
			Recipient: p.Recipient.String(),
			Amount:    p.Amount,
		})
	}
	return c
}

type StoreConfig struct {
	Logger *slog.Logger
	Client clickhouse.Client
	Clock  clockwork.Clock
}

func (cfg *StoreConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Client == nil {
		return errors.New("clickhouse client is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return nil
}

type Store struct {
	log *slog.Logger
	cfg StoreConfig
}

func NewStore(cfg StoreConfig) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Store{log: cfg.Logger, cfg: cfg}, nil
}

// InsertCycle appends the cycle row and its payout rows.
func (s *Store) InsertCycle(ctx context.Context, c CycleRecord) error {
	conn, err := s.cfg.Client.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to get clickhouse connection: %w", err)
	}
	defer conn.Close()

	ingestedAt := s.cfg.Clock.Now().UTC()

	if err := writeBatch(ctx, conn, cyclesTable, cycleColumns, 1, func(int) []any {
		return []any{
			c.CycleID,
			c.Token,
			c.CycledAt,
			c.Outcome,
			c.SettlementBalance,
			c.InitialLocked,
			c.TotalLocked,
			c.ShareBPS,
			c.InvestorFee,
			c.Distributable,
			c.TotalPaid,
			c.CreatorRemainder,
			c.PayoutCount,
			ingestedAt,
		}
	}); err != nil {
		return err
	}

	if err := writeBatch(ctx, conn, payoutsTable, payoutColumns, len(c.Payouts), func(i int) []any {
		p := c.Payouts[i]
		return []any{p.CycleID, p.Token, p.CycledAt, p.Index, p.GrantID, p.Recipient, p.Amount, ingestedAt}
	}); err != nil {
		return err
	}

	s.log.Debug("history: cycle recorded", "token", c.Token, "cycleID", c.CycleID, "payouts", len(c.Payouts))
	return nil
}

// writeBatch inserts count rows into table. Each row holds columns followed by ingested_at.
func writeBatch(ctx context.Context, conn clickhouse.Connection, table, columns string, count int, row func(int) []any) error {
	if count == 0 {
		return nil
	}

	batch, err := conn.PrepareBatch(ctx, fmt.Sprintf("INSERT INTO %s (%s, ingested_at)", table, columns))
	if err != nil {
		return fmt.Errorf("failed to prepare batch for %s: %w", table, err)
	}
	defer batch.Close()

	for i := range count {
		if err := batch.Append(row(i)...); err != nil {
			return fmt.Errorf("failed to append row %d to %s: %w", i, table, err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch to %s: %w", table, err)
	}
	return nil
}

// RecentCycles returns the latest cycles of token, newest first. A non-positive limit means
// DefaultRecentLimit.
func (s *Store) RecentCycles(ctx context.Context, token string, limit int) ([]CycleRecord, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	limit = min(limit, MaxRecentLimit)

	conn, err := s.cfg.Client.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get clickhouse connection: %w", err)
	}
	defer conn.Close()

	rows, err := conn.Query(ctx, fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE token = ?
		ORDER BY cycled_at DESC, cycle_id
		LIMIT %d`, cycleColumns, cyclesTable, limit), token)
	if err != nil {
		return nil, fmt.Errorf("failed to query cycles: %w", err)
	}
	defer rows.Close()

	var out []CycleRecord
	for rows.Next() {
		var c CycleRecord
		if err := rows.Scan(
			&c.CycleID,
			&c.Token,
			&c.CycledAt,
			&c.Outcome,
			&c.SettlementBalance,
			&c.InitialLocked,
			&c.TotalLocked,
			&c.ShareBPS,
			&c.InvestorFee,
			&c.Distributable,
			&c.TotalPaid,
			&c.CreatorRemainder,
			&c.PayoutCount,
		); err != nil {
			return nil, fmt.Errorf("failed to scan cycle: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate cycles: %w", err)
	}
	return out, nil
}

// PayoutsForCycle returns the payouts of one cycle in the order the engine produced them.
func (s *Store) PayoutsForCycle(ctx context.Context, cycleID uuid.UUID) ([]PayoutRecord, error) {
	conn, err := s.cfg.Client.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get clickhouse connection: %w", err)
	}
	defer conn.Close()

	rows, err := conn.Query(ctx, fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE cycle_id = ?
		ORDER BY payout_index`, payoutColumns, payoutsTable), cycleID)
	if err != nil {
		return nil, fmt.Errorf("failed to query payouts: %w", err)
	}
	defer rows.Close()

	var out []PayoutRecord
	for rows.Next() {
		var p PayoutRecord
		if err := rows.Scan(&p.CycleID, &p.Token, &p.CycledAt, &p.Index, &p.GrantID, &p.Recipient, &p.Amount); err != nil {
			return nil, fmt.Errorf("failed to scan payout: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate payouts: %w", err)
	}
	return out, nil
}
