// Package statestore persists the per-token distribution cycle state in Postgres. A cycle holds
// the token's row lock from the cooldown read until the new state is committed.
package statestore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound = errors.New("cycle state not found")
	// ErrRegression is returned when an update would move last_distributed_at backwards.
	ErrRegression = errors.New("cycle state must not move backwards")
)

type State struct {
	Token             string
	LastDistributedAt int64
	Cycles            int64
	LastCycleID       uuid.NullUUID
	LastOutcome       string
	SeededFromChain   bool
	UpdatedAt         time.Time
}

// Update is what a locked cycle writes back on success.
type Update struct {
	LastDistributedAt int64
	CycleID           uuid.UUID
	Outcome           string
}

type StoreConfig struct {
	Logger *slog.Logger
	Pool   *pgxpool.Pool
}

func (cfg *StoreConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Pool == nil {
		return errors.New("postgres pool is required")
	}
	return nil
}

type Store struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewStore(cfg StoreConfig) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Store{log: cfg.Logger, pool: cfg.Pool}, nil
}

const selectColumns = `token, last_distributed_at, cycles, last_cycle_id, COALESCE(last_outcome, ''), seeded_from_chain, updated_at`

func scanState(row pgx.Row) (State, error) {
	var s State
	err := row.Scan(&s.Token, &s.LastDistributedAt, &s.Cycles, &s.LastCycleID, &s.LastOutcome, &s.SeededFromChain, &s.UpdatedAt)
	return s, err
}

func (s *Store) Get(ctx context.Context, token string) (State, error) {
	st, err := scanState(s.pool.QueryRow(ctx, `SELECT `+selectColumns+` FROM distribution_cycle_state WHERE token = $1`, token))
	if errors.Is(err, pgx.ErrNoRows) {
		return State{}, ErrNotFound
	}
	if err != nil {
		return State{}, fmt.Errorf("failed to get cycle state: %w", err)
	}
	return st, nil
}

func (s *Store) List(ctx context.Context) ([]State, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+selectColumns+` FROM distribution_cycle_state ORDER BY token`)
	if err != nil {
		return nil, fmt.Errorf("failed to list cycle states: %w", err)
	}
	defer rows.Close()

	var states []State
	for rows.Next() {
		st, err := scanState(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cycle state: %w", err)
		}
		states = append(states, st)
	}
	return states, rows.Err()
}

// Seed creates the token's row from an externally observed timestamp. It reports false when a
// row already exists, in which case nothing changes.
func (s *Store) Seed(ctx context.Context, token string, lastDistributedAt int64) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO distribution_cycle_state (token, last_distributed_at, seeded_from_chain)
		VALUES ($1, $2, TRUE)
		ON CONFLICT (token) DO NOTHING`, token, lastDistributedAt)
	if err != nil {
		return false, fmt.Errorf("failed to seed cycle state: %w", err)
	}
	seeded := tag.RowsAffected() == 1
	if seeded {
		s.log.Info("statestore: seeded cycle state", "token", token, "lastDistributedAt", lastDistributedAt)
	}
	return seeded, nil
}

// WithLock runs fn while holding the token's row lock. A missing row is created with
// last_distributed_at 0. The update fn returns is written in the same transaction; an error
// from fn rolls everything back and leaves the state untouched.
func (s *Store) WithLock(ctx context.Context, token string, fn func(ctx context.Context, st State) (Update, error)) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// 1. Ensure the row exists so there is something to lock.
	if _, err := tx.Exec(ctx, `INSERT INTO distribution_cycle_state (token) VALUES ($1) ON CONFLICT (token) DO NOTHING`, token); err != nil {
		return fmt.Errorf("failed to ensure cycle state row: %w", err)
	}

	// 2. Lock it.
	st, err := scanState(tx.QueryRow(ctx, `SELECT `+selectColumns+` FROM distribution_cycle_state WHERE token = $1 FOR UPDATE`, token))
	if err != nil {
		return fmt.Errorf("failed to lock cycle state: %w", err)
	}
	s.log.Debug("statestore: row locked", "token", token, "lastDistributedAt", st.LastDistributedAt)

	// 3. Run the cycle.
	upd, err := fn(ctx, st)
	if err != nil {
		return err
	}
	if upd.LastDistributedAt < st.LastDistributedAt {
		return fmt.Errorf("%w: %d < %d", ErrRegression, upd.LastDistributedAt, st.LastDistributedAt)
	}

	// 4. Write back and commit.
	if _, err := tx.Exec(ctx, `
		UPDATE distribution_cycle_state
		SET last_distributed_at = $2, cycles = cycles + 1, last_cycle_id = $3, last_outcome = $4, updated_at = now()
		WHERE token = $1`, token, upd.LastDistributedAt, upd.CycleID, upd.Outcome); err != nil {
		return fmt.Errorf("failed to update cycle state: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit cycle state: %w", err)
	}
	return nil
}
