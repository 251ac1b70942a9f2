package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/qupredict/qupredict/internal/escrow"
	"github.com/qupredict/qupredict/internal/flash"
	"github.com/qupredict/qupredict/internal/oracle"
	"github.com/qupredict/qupredict/internal/pipeline"
	"github.com/qupredict/qupredict/internal/platform/pricefeed"
	"github.com/qupredict/qupredict/internal/platform/qubic"
	"github.com/qupredict/qupredict/internal/server"
	"github.com/qupredict/qupredict/internal/server/handler"
	"github.com/qupredict/qupredict/internal/server/ws"
	"github.com/qupredict/qupredict/internal/service"
	"github.com/qupredict/qupredict/internal/vault"
)

// APIMode serves the HTTP and WebSocket API without running the escrow
// engine. Deposits placed here are picked up by a separate engine process
// sharing the same database and Redis.
func (a *App) APIMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting in API mode")
	g, ctx := errgroup.WithContext(ctx)

	a.startAPI(ctx, g, deps, false, nil, nil)

	return g.Wait()
}

// EngineMode runs the escrow engine, price oracle, flash round scheduler and
// the settlement pipeline, without the HTTP API.
func (a *App) EngineMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting in engine mode")
	g, ctx := errgroup.WithContext(ctx)

	a.startEngine(ctx, g, deps)

	return g.Wait()
}

// FullMode runs everything in one process: the API surface plus the escrow
// engine and schedulers.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting in full mode")
	g, ctx := errgroup.WithContext(ctx)

	feed := a.startEngine(ctx, g, deps)
	a.startAPI(ctx, g, deps, true, feed, feed)

	return g.Wait()
}

// startEngine adds the engine-side goroutines to the errgroup: the escrow
// reconciler, the price oracle, the flash scheduler (when enabled) and the
// settlement pipeline (when enabled). It returns the oracle feed so full mode
// can expose its pause state through the API.
func (a *App) startEngine(ctx context.Context, g *errgroup.Group, deps *Dependencies) *oracle.Feed {
	gateway := qubic.NewClient(
		a.cfg.Gateway.BaseURL,
		a.cfg.Gateway.Timeout.Duration,
		a.cfg.Gateway.RatePerSec,
		a.cfg.Gateway.Burst,
	)

	engine := escrow.NewEngine(
		deps.BetStore,
		deps.MarketStore,
		deps.BetCache,
		deps.LockManager,
		deps.SignalBus,
		deps.AuditStore,
		gateway,
		escrow.Config{
			PollInterval:  a.cfg.Escrow.PollInterval.Duration,
			LockTTL:       a.cfg.Escrow.LockTTL.Duration,
			Treasury:      a.cfg.Escrow.TreasuryAddress,
			VerifyPayouts: a.cfg.Escrow.VerifyPayouts,
		},
		a.logger,
	)
	a.runComponent(ctx, g, deps, "escrow_engine", engine.Run)

	quotes := pricefeed.NewClient(a.cfg.PriceFeed.BaseURL, a.cfg.PriceFeed.Timeout.Duration)
	feed := oracle.NewFeed(
		quotes,
		deps.PriceCache,
		deps.SignalBus,
		oracle.Config{
			PollInterval: a.cfg.Oracle.PollInterval.Duration,
			Pairs:        a.cfg.Oracle.Pairs,
		},
		a.logger,
	)
	a.runComponent(ctx, g, deps, "oracle_feed", feed.Run)

	if a.cfg.Flash.Enabled {
		scheduler := flash.NewScheduler(
			deps.RoundStore,
			deps.WagerStore,
			deps.PriceCache,
			deps.LockManager,
			deps.SignalBus,
			deps.AuditStore,
			flash.Config{
				Pair:       a.cfg.Flash.Pair,
				OpenWindow: a.cfg.Flash.OpenWindow.Duration,
				LockWindow: a.cfg.Flash.LockWindow.Duration,
			},
			a.logger,
		)
		a.runComponent(ctx, g, deps, "flash_scheduler", scheduler.Run)
	}

	if a.cfg.Pipeline.Enabled {
		processor := pipeline.NewSettlementProcessor(deps.SignalBus, deps.Notifier, a.logger)
		archiver := pipeline.NewArchiver(deps.Archiver, a.cfg.Pipeline.ArchiveRetentionDays, a.logger)
		orch := pipeline.NewOrchestrator(processor, archiver, a.cfg.Pipeline.ArchiveCron, a.logger)
		a.runComponent(ctx, g, deps, "pipeline", orch.Run)
	}

	return feed
}

// startAPI adds the HTTP server and WebSocket hub to the errgroup. oracleState
// and oracleCtl are nil when the mode runs no price feed in-process.
func (a *App) startAPI(
	ctx context.Context,
	g *errgroup.Group,
	deps *Dependencies,
	engineRunning bool,
	oracleState handler.OracleState,
	oracleCtl handler.OracleControl,
) {
	if !a.cfg.Server.Enabled {
		a.logger.InfoContext(ctx, "HTTP server disabled by configuration")
		return
	}

	marketSvc := service.NewMarketService(
		deps.MarketStore, deps.MarketCache, deps.SignalBus, deps.AuditStore, a.logger,
	)
	betSvc := service.NewBetService(
		deps.BetStore, deps.MarketStore, deps.BetCache, deps.RateLimiter,
		deps.SignalBus, deps.AuditStore, deps.Vault,
		a.cfg.Escrow.DepositTTL.Duration, a.logger,
	).WithStreakTracker(deps.StreakTracker)
	roundSvc := service.NewRoundService(
		deps.RoundStore, deps.WagerStore, deps.RateLimiter,
		deps.SignalBus, deps.AuditStore, a.cfg.Flash.MinWagerQu, a.logger,
	)

	verifier := &vault.CallbackAuth{
		KeyID:  a.cfg.Oracle.CallbackKeyID,
		Secret: a.cfg.Oracle.CallbackSecret,
	}

	statusH := handler.NewStatusHandler(
		a.cfg.Mode, engineRunning, time.Now().UTC(), a.cfg.Flash.Pair,
		oracleState, deps.BetStore, roundSvc, a.logger,
	)

	hub := ws.NewHub(deps.SignalBus, statusH.Snapshot, a.logger)
	g.Go(func() error {
		return hub.Run(ctx)
	})

	srv := server.NewServer(
		server.Config{
			Port:            a.cfg.Server.Port,
			CORSOrigins:     a.cfg.Server.CORSOrigins,
			APIKey:          a.cfg.Server.APIKey,
			RateLimitPerMin: a.cfg.Server.RateLimitPerMin,
		},
		server.Handlers{
			Health:  handler.NewHealthHandler(),
			Status:  statusH,
			Markets: handler.NewMarketHandler(marketSvc, a.logger),
			Bets:    handler.NewBetHandler(betSvc, a.logger),
			Rounds:  handler.NewRoundHandler(roundSvc, a.cfg.Flash.Pair, a.logger),
			Oracle:  handler.NewOracleHandler(marketSvc, verifier, a.logger),
			Admin:   handler.NewAdminHandler(oracleCtl, deps.AuditStore, a.logger),
		},
		hub,
		deps.RateLimiter,
		a.logger,
	)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("server shutdown failed", slog.String("error", err.Error()))
		}
		return ctx.Err()
	})
}

// runComponent runs a long-lived component under the errgroup and pushes an
// "error" notification when it exits with a real failure. Cancellation on
// shutdown is not a failure.
func (a *App) runComponent(
	ctx context.Context,
	g *errgroup.Group,
	deps *Dependencies,
	name string,
	run func(context.Context) error,
) {
	g.Go(func() error {
		err := run(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			a.logger.ErrorContext(ctx, "component failed",
				slog.String("name", name),
				slog.String("error", err.Error()),
			)
			notifyCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if nerr := deps.Notifier.Notify(notifyCtx, "error", "Component failure", name+": "+err.Error()); nerr != nil {
				a.logger.Warn("failure notification not delivered", slog.String("error", nerr.Error()))
			}
		}
		return err
	})
}
