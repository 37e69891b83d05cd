package admin

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/malbeclabs/bounty/keeper/pkg/clickhouse"
)

// ClickHouseMigrate runs the history migrations in the given direction: up, down or status.
func ClickHouseMigrate(ctx context.Context, log *slog.Logger, cfg clickhouse.Config, direction string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	switch direction {
	case "up":
		return clickhouse.Up(ctx, log, cfg)
	case "down":
		return clickhouse.Down(ctx, log, cfg)
	case "status":
		return clickhouse.Status(ctx, log, cfg)
	default:
		return fmt.Errorf("unknown migration direction %q", direction)
	}
}
