package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"

	"github.com/malbeclabs/bounty/admin/internal/admin"
	"github.com/malbeclabs/bounty/engine/pkg/liquidity"
	"github.com/malbeclabs/bounty/keeper/pkg/clickhouse"
	"github.com/malbeclabs/bounty/keeper/pkg/pda"
	"github.com/malbeclabs/bounty/keeper/pkg/pool"
	"github.com/malbeclabs/bounty/keeper/pkg/postgres"
	"github.com/malbeclabs/bounty/keeper/pkg/sol"
	"github.com/malbeclabs/bounty/keeper/pkg/statestore"
	"github.com/malbeclabs/bounty/utils/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	verboseFlag := flag.Bool("verbose", false, "enable verbose (debug) logging")

	// Connections
	solanaRPCURLFlag := flag.String("solana-rpc-url", "", "Solana RPC URL (or set SOLANA_RPC_URL env var)")

	// Commands
	pgMigrateFlag := flag.String("pg-migrate", "", "Run cycle state migrations: up, down or status (POSTGRES_* env vars)")
	clickhouseMigrateFlag := flag.String("clickhouse-migrate", "", "Run history migrations: up, down or status (CLICKHOUSE_* env vars)")
	resetDBFlag := flag.Bool("reset-db", false, "Drop the ClickHouse distribution history tables")
	quoteBootstrapFlag := flag.Bool("quote-bootstrap", false, "Price the bootstrap position for --creator-balance or --token-a-amount")
	quoteLiquidityFlag := flag.Bool("quote-liquidity", false, "Compute deposit liquidity at --sqrt-price within [--sqrt-min-price, --sqrt-max-price]")
	deriveFlag := flag.Bool("derive", false, "Print the program-derived addresses of --mint-a/--mint-b")
	inspectFlag := flag.Bool("inspect", false, "Decode the on-chain launch accounts of --mint-b")
	stateFlag := flag.Bool("state", false, "List the keeper's cycle state")

	// Operator commands (dry run: instructions are encoded and logged, not submitted)
	planBootstrapFlag := flag.Bool("plan-bootstrap", false, "Print the pool --mint-a/--mint-b would open for --creator-balance")
	bootstrapFlag := flag.Bool("bootstrap", false, "Initialize the launch pool for --creator-balance")
	depositFlag := flag.Bool("deposit", false, "Fund the fee position with --token-a-amount/--token-b-amount at the pool prices given by --sqrt-*")
	swapFlag := flag.Bool("swap", false, "Sell --token-a-amount of token A from --payer")
	createGrantFlag := flag.Bool("create-grant", false, "Open the next vesting stream for --recipient (needs --solana-rpc-url)")

	// Command options
	dryRunFlag := flag.Bool("dry-run", false, "Dry run mode - show what would be done without actually executing")
	yesFlag := flag.Bool("yes", false, "Skip confirmation prompt (use with caution)")
	creatorBalanceFlag := flag.Uint64("creator-balance", 0, "Creator token A balance; the committed share is priced")
	tokenAAmountFlag := flag.Uint64("token-a-amount", 0, "Token A amount")
	tokenBAmountFlag := flag.Uint64("token-b-amount", 0, "Token B amount (bootstrap defaults to the pool amount)")
	sqrtPriceFlag := flag.String("sqrt-price", "", "Q64.64 sqrt price")
	sqrtMinPriceFlag := flag.String("sqrt-min-price", "", "Q64.64 sqrt min price")
	sqrtMaxPriceFlag := flag.String("sqrt-max-price", "", "Q64.64 sqrt max price")
	mintAFlag := flag.String("mint-a", "", "Base mint of the launch")
	mintBFlag := flag.String("mint-b", "", "Quote mint of the launch")
	streamsFlag := flag.Int("streams", 0, "Number of stream metadata addresses to derive")
	collectFeeModeFlag := flag.String("collect-fee-mode", "only_b", "Pool collect fee mode for --deposit: only_b or both_token")
	payerFlag := flag.String("payer", "", "Token A payer for --swap")
	recipientFlag := flag.String("recipient", "", "Grant recipient wallet")
	recipientTokensFlag := flag.String("recipient-tokens", "", "Grant recipient token account")

	flag.Parse()

	log := logger.New(*verboseFlag)
	ctx := context.Background()

	if v := os.Getenv("SOLANA_RPC_URL"); v != "" {
		*solanaRPCURLFlag = v
	}

	switch {
	case *pgMigrateFlag != "":
		cfg, err := postgres.LoadConfigFromEnv()
		if err != nil {
			return err
		}
		return admin.PgMigrate(ctx, log, cfg, *pgMigrateFlag)

	case *clickhouseMigrateFlag != "":
		return admin.ClickHouseMigrate(ctx, log, clickhouse.LoadConfigFromEnv(), *clickhouseMigrateFlag)

	case *resetDBFlag:
		cfg := clickhouse.LoadConfigFromEnv()
		if !cfg.Enabled() {
			return errors.New("CLICKHOUSE_ADDR is required for --reset-db")
		}
		return admin.ResetDB(ctx, log, cfg, admin.ResetDBConfig{
			DryRun:      *dryRunFlag,
			SkipConfirm: *yesFlag,
			In:          os.Stdin,
			Out:         os.Stdout,
		})

	case *quoteBootstrapFlag:
		eng, err := liquidity.New(liquidity.DefaultConfig())
		if err != nil {
			return err
		}
		return admin.QuoteBootstrap(os.Stdout, eng, *creatorBalanceFlag, *tokenAAmountFlag, *tokenBAmountFlag)

	case *quoteLiquidityFlag:
		return admin.QuoteLiquidity(os.Stdout, *tokenAAmountFlag, *tokenBAmountFlag, *sqrtPriceFlag, *sqrtMinPriceFlag, *sqrtMaxPriceFlag)

	case *deriveFlag:
		mintA, err := parseKey("--mint-a", *mintAFlag)
		if err != nil {
			return err
		}
		mintB, err := parseKey("--mint-b", *mintBFlag)
		if err != nil {
			return err
		}
		return admin.DeriveLaunch(os.Stdout, pda.DefaultPrograms(), mintA, mintB, *streamsFlag)

	case *inspectFlag:
		mintB, err := parseKey("--mint-b", *mintBFlag)
		if err != nil {
			return err
		}
		if *solanaRPCURLFlag == "" {
			return errors.New("--solana-rpc-url is required for --inspect")
		}
		reader, err := sol.NewReader(sol.ReaderConfig{Logger: log, RPC: solanarpc.New(*solanaRPCURLFlag)})
		if err != nil {
			return err
		}
		return admin.InspectLaunch(ctx, os.Stdout, reader, pda.DefaultPrograms(), mintB)

	case *planBootstrapFlag, *bootstrapFlag, *depositFlag, *swapFlag, *createGrantFlag:
		launch, err := parseLaunch(*mintAFlag, *mintBFlag)
		if err != nil {
			return err
		}
		cfg := admin.OperatorConfig{Logger: log, Programs: pda.DefaultPrograms(), Launch: launch}
		if *solanaRPCURLFlag != "" {
			reader, err := sol.NewReader(sol.ReaderConfig{Logger: log, RPC: solanarpc.New(*solanaRPCURLFlag)})
			if err != nil {
				return err
			}
			cfg.Accounts = reader
		}
		if *depositFlag {
			if cfg.PoolState, err = admin.ParsePoolState(*sqrtPriceFlag, *sqrtMinPriceFlag, *sqrtMaxPriceFlag, *collectFeeModeFlag); err != nil {
				return err
			}
		}
		op, err := admin.NewDryRunOperator(cfg)
		if err != nil {
			return err
		}

		switch {
		case *planBootstrapFlag:
			return admin.PlanBootstrap(os.Stdout, op, launch, *creatorBalanceFlag)
		case *bootstrapFlag:
			return admin.Bootstrap(ctx, os.Stdout, op, launch, *creatorBalanceFlag)
		case *depositFlag:
			return admin.Deposit(ctx, os.Stdout, op, launch, *tokenAAmountFlag, *tokenBAmountFlag)
		case *swapFlag:
			payer, err := parseKey("--payer", *payerFlag)
			if err != nil {
				return err
			}
			return admin.Swap(ctx, os.Stdout, op, launch, payer, *tokenAAmountFlag)
		default:
			recipient, err := parseKey("--recipient", *recipientFlag)
			if err != nil {
				return err
			}
			recipientTokens, err := parseKey("--recipient-tokens", *recipientTokensFlag)
			if err != nil {
				return err
			}
			return admin.CreateGrant(ctx, os.Stdout, op, launch, recipient, recipientTokens)
		}

	case *stateFlag:
		cfg, err := postgres.LoadConfigFromEnv()
		if err != nil {
			return err
		}
		pgPool, err := postgres.NewPool(ctx, log, cfg)
		if err != nil {
			return err
		}
		defer pgPool.Close()
		store, err := statestore.NewStore(statestore.StoreConfig{Logger: log, Pool: pgPool})
		if err != nil {
			return err
		}
		return admin.ListState(ctx, os.Stdout, store)
	}

	flag.Usage()
	return nil
}

func parseLaunch(mintA, mintB string) (pool.Launch, error) {
	a, err := parseKey("--mint-a", mintA)
	if err != nil {
		return pool.Launch{}, err
	}
	b, err := parseKey("--mint-b", mintB)
	if err != nil {
		return pool.Launch{}, err
	}
	return pool.Launch{MintA: a, MintB: b}, nil
}

func parseKey(name, v string) (solana.PublicKey, error) {
	if v == "" {
		return solana.PublicKey{}, fmt.Errorf("%s is required", name)
	}
	k, err := solana.PublicKeyFromBase58(v)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("invalid %s: %w", name, err)
	}
	return k, nil
}
