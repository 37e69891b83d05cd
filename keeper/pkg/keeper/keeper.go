// Package keeper runs the periodic fee distribution for a set of launches. Each cycle claims the
// fee position, splits the settlement balance with the distribution engine and pays it out while
// holding the token's cycle state lock.
package keeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/malbeclabs/bounty/engine/pkg/distribution"
	"github.com/malbeclabs/bounty/keeper/pkg/history"
	"github.com/malbeclabs/bounty/keeper/pkg/metrics"
	"github.com/malbeclabs/bounty/keeper/pkg/onchain"
	"github.com/malbeclabs/bounty/keeper/pkg/sol"
	"github.com/malbeclabs/bounty/keeper/pkg/statestore"
)

// Cycle statuses beyond the engine outcomes.
const (
	StatusCooldown = "cooldown"
	StatusDryRun   = "dry_run"
	StatusError    = "error"
	StatusPanic    = "panic"
)

var errCooldown = errors.New("cooldown active")

// ErrUncommittedTransfers is returned when a cycle's transfers went out but its state could not be
// committed. Resending the batch under the same cycle ID is safe.
var ErrUncommittedTransfers = errors.New("transfers sent but cycle state not committed")

// CycleReport describes one cycle of one token.
type CycleReport struct {
	Token      string
	CycleID    uuid.UUID
	Status     string
	Now        int64
	Balance    uint64
	Result     distribution.Result
	Transfers  []Transfer
	Signatures []solana.Signature
}

type Keeper struct {
	log *slog.Logger
	cfg Config

	runMu sync.Mutex

	reconcileMu sync.Mutex
	reconciled  map[string]bool

	readyOnce sync.Once
	readyCh   chan struct{}
}

func New(cfg Config) (*Keeper, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Keeper{
		log:        cfg.Logger,
		cfg:        cfg,
		reconciled: make(map[string]bool),
		readyCh:    make(chan struct{}),
	}, nil
}

// Ready reports whether the first pass over all tokens has completed.
func (k *Keeper) Ready() bool {
	select {
	case <-k.readyCh:
		return true
	default:
		return false
	}
}

func (k *Keeper) WaitReady(ctx context.Context) error {
	select {
	case <-k.readyCh:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("context cancelled while waiting for keeper: %w", ctx.Err())
	}
}

// Start runs a pass immediately and then every Interval until ctx is done.
func (k *Keeper) Start(ctx context.Context) {
	go func() {
		k.log.Info("keeper: starting distribution loop", "interval", k.cfg.Interval, "tokens", len(k.cfg.Tokens))

		k.runPass(ctx)

		ticker := k.cfg.Clock.NewTicker(k.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				k.runPass(ctx)
			}
		}
	}()
}

func (k *Keeper) runPass(ctx context.Context) {
	if err := k.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
		k.log.Warn("keeper: pass completed with failures", "error", err)
	}
}

// RunOnce runs one cycle for every token, at most Concurrency at a time. Failed tokens do not stop
// the others; their errors are joined.
func (k *Keeper) RunOnce(ctx context.Context) error {
	k.runMu.Lock()
	defer k.runMu.Unlock()

	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	g.SetLimit(k.cfg.Concurrency)
	for _, tok := range k.cfg.Tokens {
		g.Go(func() error {
			if err := k.safeCycle(ctx, tok); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("token %s: %w", tok.Key(), err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	k.readyOnce.Do(func() {
		close(k.readyCh)
		k.log.Info("keeper: first pass completed, now ready")
	})
	return errors.Join(errs...)
}

func (k *Keeper) safeCycle(ctx context.Context, tok Token) (err error) {
	defer func() {
		if r := recover(); r != nil {
			k.log.Error("keeper: cycle panicked", "token", tok.Key(), "panic", r)
			metrics.CyclePanicsTotal.Inc()
			metrics.CycleTotal.WithLabelValues(tok.Key(), StatusPanic).Inc()
			err = fmt.Errorf("cycle panicked: %v", r)
			k.reportError(tok, err)
		}
	}()

	report, err := k.RunCycle(ctx, tok)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			k.log.Error("keeper: cycle failed", "token", tok.Key(), "cycleID", report.CycleID, "error", err)
			k.reportError(tok, err)
		}
		return err
	}
	switch report.Status {
	case StatusCooldown:
		k.log.Debug("keeper: cycle skipped, cooldown active", "token", tok.Key())
		return nil
	case StatusDryRun:
		k.log.Info("keeper: dry run cycle rolled back",
			"token", tok.Key(),
			"cycleID", report.CycleID,
			"outcome", report.Result.Outcome,
			"balance", report.Balance,
			"payouts", len(report.Result.Payouts),
			"paid", report.Result.TotalPaid(),
			"remainder", report.Result.CreatorRemainder)
		return nil
	}
	k.log.Info("keeper: cycle completed",
		"token", tok.Key(),
		"cycleID", report.CycleID,
		"status", report.Status,
		"balance", report.Balance,
		"payouts", len(report.Result.Payouts),
		"paid", report.Result.TotalPaid(),
		"remainder", report.Result.CreatorRemainder)
	return nil
}

func (k *Keeper) reportError(tok Token, err error) {
	if k.cfg.OnCycleError != nil {
		k.cfg.OnCycleError(tok.Key(), err)
	}
}

// RunCycle runs one distribution cycle for tok. A cycle inside the cooldown window returns a
// report with StatusCooldown and no error.
func (k *Keeper) RunCycle(ctx context.Context, tok Token) (CycleReport, error) {
	start := k.cfg.Clock.Now()
	report := CycleReport{Token: tok.Key(), CycleID: uuid.New()}

	span := sentry.StartSpan(ctx, "keeper.cycle", sentry.WithDescription(fmt.Sprintf("cycle %s", tok.Key())))
	span.SetTag("token", tok.Key())
	span.SetData("cycle_id", report.CycleID.String())
	ctx = span.Context()
	defer func() {
		status := report.Status
		if status == "" {
			status = StatusError
			span.Status = sentry.SpanStatusInternalError
		} else {
			span.Status = sentry.SpanStatusOK
		}
		span.SetData("status", status)
		span.Finish()
		metrics.RecordCycle(tok.Key(), status, k.cfg.Clock.Since(start))
	}()

	ctx, cancel := context.WithTimeout(ctx, k.cfg.CycleTimeout)
	defer cancel()

	// 1. Seed cycle state from chain the first time the token is seen.
	if err := k.reconcile(ctx, tok); err != nil {
		return report, fmt.Errorf("failed to reconcile cycle state: %w", err)
	}

	creator, err := k.cfg.Programs.Creator(tok.MintB)
	if err != nil {
		return report, err
	}
	cooldown := int64(k.cfg.Engine.Config().Cooldown / time.Second)

	var sent bool
	err = k.cfg.State.WithLock(ctx, tok.Key(), func(ctx context.Context, st statestore.State) (statestore.Update, error) {
		// 2. Cooldown check before touching the chain.
		now, err := k.cfg.Chain.Now(ctx)
		if err != nil {
			return statestore.Update{}, fmt.Errorf("failed to read cluster time: %w", err)
		}
		report.Now = now
		if now-st.LastDistributedAt < cooldown {
			return statestore.Update{}, fmt.Errorf("%w until %d", errCooldown, st.LastDistributedAt+cooldown)
		}

		// 3. Claim fees into the settlement account, then read what is there.
		if _, err := k.cfg.Claimer.ClaimFees(ctx, tok); err != nil {
			return statestore.Update{}, fmt.Errorf("failed to claim fees: %w", err)
		}
		balance, err := k.cfg.Chain.TokenBalance(ctx, tok.SettlementAccount)
		if err != nil {
			return statestore.Update{}, fmt.Errorf("failed to read settlement balance: %w", err)
		}
		report.Balance = balance
		grants, err := k.cfg.Grants.Grants(ctx, creator.Key)
		if err != nil {
			return statestore.Update{}, fmt.Errorf("failed to read grants: %w", err)
		}

		// 4. Split.
		res, err := k.cfg.Engine.Run(distribution.Request{
			Now:               now,
			SettlementBalance: balance,
			Grants:            grants,
			PriorState:        distribution.State{LastDistributedAt: st.LastDistributedAt},
		})
		if err != nil {
			return statestore.Update{}, fmt.Errorf("failed to run distribution: %w", err)
		}
		report.Result = res

		// 5. Pay out. The state only advances once every transfer went through; a failed commit
		// after this point leaves a sent batch, keyed by the cycle ID, behind an unadvanced state.
		report.Transfers = Transfers(tok, res)
		if len(report.Transfers) > 0 {
			sigs, err := k.cfg.Transferer.Transfer(ctx, tok, report.CycleID, report.Transfers)
			if err != nil {
				return statestore.Update{}, fmt.Errorf("failed to send transfers: %w", err)
			}
			report.Signatures = sigs
			sent = true
		}

		return statestore.Update{
			LastDistributedAt: res.NewState.LastDistributedAt,
			CycleID:           report.CycleID,
			Outcome:           string(res.Outcome),
		}, nil
	})
	switch {
	case errors.Is(err, errCooldown):
		report.Status = StatusCooldown
		return report, nil
	case errors.Is(err, ErrDryRun):
		report.Status = StatusDryRun
		return report, nil
	case err != nil && sent:
		k.log.Error("keeper: transfers sent but cycle state not committed",
			"token", tok.Key(), "cycleID", report.CycleID, "signatures", len(report.Signatures), "error", err)
		return report, fmt.Errorf("%w: cycle %s: %w", ErrUncommittedTransfers, report.CycleID, err)
	case err != nil:
		return report, err
	}
	report.Status = string(report.Result.Outcome)

	// 6. Sinks are best effort once the state is committed.
	k.record(ctx, report)
	return report, nil
}

// Transfers lists the movements a result requires: one per payout, then the creator remainder
// when there is one.
func Transfers(tok Token, res distribution.Result) []Transfer {
	out := make([]Transfer, 0, len(res.Payouts)+1)
	for _, p := range res.Payouts {
		out = append(out, Transfer{To: p.Recipient, Amount: p.Amount})
	}
	if res.CreatorRemainder > 0 {
		out = append(out, Transfer{To: tok.CreatorAccount, Amount: res.CreatorRemainder})
	}
	return out
}

func (k *Keeper) record(ctx context.Context, report CycleReport) {
	metrics.RecordDistribution(report.Token, len(report.Result.Payouts), report.Result.TotalPaid(), report.Result.CreatorRemainder, time.Unix(report.Now, 0))

	rec := history.NewCycleRecord(report.CycleID, report.Token, time.Unix(report.Now, 0), report.Balance, report.Result)
	if k.cfg.History != nil {
		if err := k.cfg.History.InsertCycle(ctx, rec); err != nil {
			k.log.Warn("keeper: failed to record cycle history", "token", report.Token, "cycleID", report.CycleID, "error", err)
			metrics.SinkErrorsTotal.WithLabelValues("history").Inc()
		}
	}
	if k.cfg.Archive != nil {
		sigs := make([]string, len(report.Signatures))
		for i, s := range report.Signatures {
			sigs[i] = s.String()
		}
		if _, err := k.cfg.Archive.Put(ctx, rec, sigs); err != nil {
			k.log.Warn("keeper: failed to archive receipt", "token", report.Token, "cycleID", report.CycleID, "error", err)
			metrics.SinkErrorsTotal.WithLabelValues("archive").Inc()
		}
	}
}

// reconcile seeds the token's cycle state from the fee position owner account when the store has
// no row for it yet. It runs once per token per process.
func (k *Keeper) reconcile(ctx context.Context, tok Token) error {
	if k.cfg.Accounts == nil {
		return nil
	}
	k.reconcileMu.Lock()
	done := k.reconciled[tok.Key()]
	k.reconcileMu.Unlock()
	if done {
		return nil
	}

	_, err := k.cfg.State.Get(ctx, tok.Key())
	switch {
	case err == nil:
		k.markReconciled(tok)
		return nil
	case !errors.Is(err, statestore.ErrNotFound):
		return fmt.Errorf("failed to read cycle state: %w", err)
	}

	owner, err := k.cfg.Programs.FeePositionOwner(tok.MintB)
	if err != nil {
		return err
	}
	data, err := k.cfg.Accounts.AccountData(ctx, owner.Key)
	if errors.Is(err, sol.ErrAccountNotFound) {
		k.log.Info("keeper: no fee position owner on chain, starting from empty state", "token", tok.Key(), "owner", owner.Key)
		k.markReconciled(tok)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read fee position owner: %w", err)
	}
	acct, err := onchain.DecodeFeePositionOwner(data)
	if err != nil {
		return err
	}
	if acct.AssociatedMint != tok.MintB {
		return fmt.Errorf("fee position owner %s is associated with %s, not %s", owner.Key, acct.AssociatedMint, tok.MintB)
	}

	if _, err := k.cfg.State.Seed(ctx, tok.Key(), acct.LastClaimedAt); err != nil {
		return err
	}
	k.markReconciled(tok)
	return nil
}

func (k *Keeper) markReconciled(tok Token) {
	k.reconcileMu.Lock()
	k.reconciled[tok.Key()] = true
	k.reconcileMu.Unlock()
}
