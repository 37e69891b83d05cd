package admin

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/malbeclabs/bounty/keeper/pkg/postgres"
)

// PgMigrate runs the cycle state migrations in the given direction: up, down or status.
func PgMigrate(ctx context.Context, log *slog.Logger, cfg postgres.Config, direction string) error {
	connStr := cfg.ConnString()
	switch direction {
	case "up":
		return postgres.Up(ctx, log, connStr)
	case "down":
		return postgres.Down(ctx, log, connStr)
	case "status":
		return postgres.Status(ctx, log, connStr)
	default:
		return fmt.Errorf("unknown migration direction %q", direction)
	}
}
