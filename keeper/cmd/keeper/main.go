package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"

	"github.com/malbeclabs/bounty/api/handlers"
	"github.com/malbeclabs/bounty/engine/pkg/distribution"
	"github.com/malbeclabs/bounty/engine/pkg/liquidity"
	"github.com/malbeclabs/bounty/keeper/pkg/amm"
	"github.com/malbeclabs/bounty/keeper/pkg/archive"
	"github.com/malbeclabs/bounty/keeper/pkg/clickhouse"
	"github.com/malbeclabs/bounty/keeper/pkg/history"
	"github.com/malbeclabs/bounty/keeper/pkg/keeper"
	"github.com/malbeclabs/bounty/keeper/pkg/metrics"
	"github.com/malbeclabs/bounty/keeper/pkg/pda"
	"github.com/malbeclabs/bounty/keeper/pkg/postgres"
	"github.com/malbeclabs/bounty/keeper/pkg/server"
	"github.com/malbeclabs/bounty/keeper/pkg/sol"
	"github.com/malbeclabs/bounty/keeper/pkg/statestore"
	"github.com/malbeclabs/bounty/keeper/pkg/streams"
	"github.com/malbeclabs/bounty/utils/pkg/logger"
)

// Set by goreleaser.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// .env is optional.
	_ = godotenv.Load()

	verboseFlag := flag.Bool("verbose", false, "enable verbose (debug) logging")
	listenAddrFlag := flag.String("listen-addr", ":8080", "HTTP listen address (or set LISTEN_ADDR env var)")
	solanaRPCURLFlag := flag.String("solana-rpc-url", "", "Solana RPC URL (or set SOLANA_RPC_URL env var)")
	tokensFlag := flag.String("tokens", "", "Comma-separated launches as mint_a:mint_b:settlement:creator (or set KEEPER_TOKENS env var)")
	intervalFlag := flag.Duration("interval", keeper.DefaultInterval, "Interval between distribution passes (or set KEEPER_INTERVAL env var)")
	concurrencyFlag := flag.Int("concurrency", keeper.DefaultConcurrency, "Maximum tokens cycled in parallel (or set KEEPER_CONCURRENCY env var)")
	cycleTimeoutFlag := flag.Duration("cycle-timeout", keeper.DefaultCycleTimeout, "Timeout of a single token cycle")
	corsOriginsFlag := flag.String("cors-origins", "", "Comma-separated allowed CORS origins (or set CORS_ORIGINS env var)")
	sentryDSNFlag := flag.String("sentry-dsn", "", "Sentry DSN (or set SENTRY_DSN env var)")
	flag.Parse()

	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		*listenAddrFlag = v
	}
	if v := os.Getenv("SOLANA_RPC_URL"); v != "" {
		*solanaRPCURLFlag = v
	}
	if v := os.Getenv("KEEPER_TOKENS"); v != "" {
		*tokensFlag = v
	}
	if v := os.Getenv("KEEPER_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid KEEPER_INTERVAL: %w", err)
		}
		*intervalFlag = d
	}
	if v := os.Getenv("KEEPER_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid KEEPER_CONCURRENCY: %w", err)
		}
		*concurrencyFlag = n
	}
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		*corsOriginsFlag = v
	}
	if v := os.Getenv("SENTRY_DSN"); v != "" {
		*sentryDSNFlag = v
	}

	log := logger.New(*verboseFlag)
	metrics.BuildInfo.WithLabelValues(version, commit, date).Set(1)

	if *solanaRPCURLFlag == "" {
		return errors.New("--solana-rpc-url is required")
	}
	tokens, err := keeper.ParseTokens(*tokensFlag)
	if err != nil {
		return fmt.Errorf("failed to parse tokens: %w", err)
	}
	if len(tokens) == 0 {
		return errors.New("--tokens is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *sentryDSNFlag != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              *sentryDSNFlag,
			Release:          version,
			Environment:      os.Getenv("SENTRY_ENVIRONMENT"),
			EnableTracing:    true,
			TracesSampleRate: 0.1,
		}); err != nil {
			return fmt.Errorf("failed to initialize sentry: %w", err)
		}
		defer sentry.Flush(2 * time.Second)
		log.Info("sentry: initialized")
	}

	// Chain readers.
	chain, err := sol.NewReader(sol.ReaderConfig{
		Logger: log,
		RPC:    solanarpc.New(*solanaRPCURLFlag),
	})
	if err != nil {
		return fmt.Errorf("failed to create solana reader: %w", err)
	}
	programs := pda.DefaultPrograms()
	grants, err := streams.NewChainReader(streams.ChainReaderConfig{
		Logger:   log,
		Accounts: chain,
		Programs: programs,
	})
	if err != nil {
		return fmt.Errorf("failed to create grants reader: %w", err)
	}

	// Cycle state.
	pgCfg, err := postgres.LoadConfigFromEnv()
	if err != nil {
		return fmt.Errorf("failed to load postgres config: %w", err)
	}
	pool, err := postgres.NewPool(ctx, log, pgCfg)
	if err != nil {
		return err
	}
	defer pool.Close()
	state, err := statestore.NewStore(statestore.StoreConfig{Logger: log, Pool: pool})
	if err != nil {
		return fmt.Errorf("failed to create state store: %w", err)
	}

	// Optional sinks.
	var (
		historyWriter keeper.HistoryWriter
		historyReader handlers.HistoryReader
		archiver      keeper.Archiver
	)
	if chCfg := clickhouse.LoadConfigFromEnv(); chCfg.Enabled() {
		chClient, err := clickhouse.NewClient(ctx, log, chCfg)
		if err != nil {
			return err
		}
		defer chClient.Close()
		store, err := history.NewStore(history.StoreConfig{Logger: log, Client: chClient})
		if err != nil {
			return fmt.Errorf("failed to create history store: %w", err)
		}
		historyWriter, historyReader = store, store
	} else {
		log.Info("clickhouse: CLICKHOUSE_ADDR not set, cycle history disabled")
	}
	if arCfg := archive.LoadConfigFromEnv(); arCfg.Enabled() {
		s3Client, err := archive.NewS3Client(ctx, arCfg)
		if err != nil {
			return err
		}
		ar, err := archive.New(archive.ArchiveConfig{
			Logger: log,
			Client: s3Client,
			Bucket: arCfg.Bucket,
			Prefix: arCfg.Prefix,
		})
		if err != nil {
			return fmt.Errorf("failed to create receipt archive: %w", err)
		}
		archiver = ar
	}

	distEngine, err := distribution.New(distribution.DefaultConfig())
	if err != nil {
		return err
	}
	liqEngine, err := liquidity.New(liquidity.DefaultConfig())
	if err != nil {
		return err
	}

	k, err := keeper.New(keeper.Config{
		Logger:   log,
		Tokens:   tokens,
		Engine:   distEngine,
		Programs: programs,
		State:    state,
		Chain:    chain,
		Grants:   grants,
		// Claims and transfers are encoded and logged, not submitted. Every cycle ends as dry_run
		// and rolls back, so cycle state, history and payout metrics stay untouched.
		Claimer:      &keeper.AMMClaimer{Client: &amm.DryRunClient{Logger: log}, Programs: programs},
		Transferer:   &keeper.LogTransferer{Logger: log},
		Accounts:     chain,
		History:      historyWriter,
		Archive:      archiver,
		OnCycleError: captureCycleError,
		Interval:     *intervalFlag,
		Concurrency:  *concurrencyFlag,
		CycleTimeout: *cycleTimeoutFlag,
	})
	if err != nil {
		return fmt.Errorf("failed to create keeper: %w", err)
	}

	api, err := handlers.New(handlers.Config{
		Logger:         log,
		Liquidity:      liqEngine,
		Distribution:   distEngine,
		State:          state,
		History:        historyReader,
		AllowedOrigins: splitList(*corsOriginsFlag),
	})
	if err != nil {
		return fmt.Errorf("failed to create api: %w", err)
	}

	srv, err := server.New(server.Config{
		Logger:      log,
		ListenAddr:  *listenAddrFlag,
		VersionInfo: server.VersionInfo{Version: version, Commit: commit, Date: date},
		Readiness:   k,
		API:         api.Router(),
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	log.Info("keeper: starting", "version", version, "tokens", len(tokens), "interval", *intervalFlag)
	log.Warn("keeper: running in dry run mode, transfers are logged and cycles are rolled back")
	k.Start(ctx)
	return srv.Run(ctx)
}

func captureCycleError(token string, err error) {
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("token", token)
		sentry.CaptureException(err)
	})
}

func splitList(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
