package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/malbeclabs/bounty/api/metrics"
	"github.com/malbeclabs/bounty/engine/pkg/distribution"
	"github.com/malbeclabs/bounty/engine/pkg/liquidity"
	"github.com/malbeclabs/bounty/keeper/pkg/history"
	"github.com/malbeclabs/bounty/keeper/pkg/statestore"
)

// StateReader reads per-token cycle state.
type StateReader interface {
	Get(ctx context.Context, token string) (statestore.State, error)
}

// HistoryReader reads recorded cycles.
type HistoryReader interface {
	RecentCycles(ctx context.Context, token string, limit int) ([]history.CycleRecord, error)
	PayoutsForCycle(ctx context.Context, cycleID uuid.UUID) ([]history.PayoutRecord, error)
}

type Config struct {
	Logger       *slog.Logger
	Liquidity    *liquidity.Engine
	Distribution *distribution.Engine

	// State and History are optional; their endpoints answer 503 when unset.
	State   StateReader
	History HistoryReader

	AllowedOrigins []string
	RateLimiter    *RateLimiter
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Liquidity == nil {
		return errors.New("liquidity engine is required")
	}
	if cfg.Distribution == nil {
		return errors.New("distribution engine is required")
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}
	if cfg.RateLimiter == nil {
		// 100 requests per minute per IP with a burst of 20.
		cfg.RateLimiter = NewRateLimiter(rate.Every(time.Minute/100), 20)
	}
	return nil
}

type API struct {
	log *slog.Logger
	cfg Config
}

func New(cfg Config) (*API, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &API{log: cfg.Logger, cfg: cfg}, nil
}

// Router returns the /v1 routes.
func (a *API) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: a.cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	r.Use(metrics.Middleware)

	r.Route("/v1", func(r chi.Router) {
		r.Use(RateLimitMiddleware(a.cfg.RateLimiter))

		r.Post("/liquidity", a.PostLiquidity)
		r.Post("/bootstrap", a.PostBootstrap)
		r.Post("/distribution/preview", a.PostDistributionPreview)
		r.Get("/distribution/{token}/state", a.GetDistributionState)
		r.Get("/distribution/{token}/cycles", a.GetDistributionCycles)
	})
	return r
}
