package app

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/versefi/versequeue/internal/scheduler"
	"github.com/versefi/versequeue/internal/server"
	"github.com/versefi/versequeue/internal/server/handler"
	"github.com/versefi/versequeue/internal/server/ws"
)

// QueueMode runs trade admission and tick processing without the
// liquidation engine.
func (a *App) QueueMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting queue mode")
	return a.run(ctx, deps, true, false)
}

// LiquidationMode runs only the sharded liquidation engine, for dedicated
// keeper nodes.
func (a *App) LiquidationMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting liquidation mode")
	return a.run(ctx, deps, false, true)
}

// FullMode runs both subsystems plus the HTTP server.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")
	return a.run(ctx, deps, true, true)
}

// run assembles the scheduler and, when enabled, the HTTP server, and
// blocks until the context is cancelled.
func (a *App) run(ctx context.Context, deps *Dependencies, withQueue, withLiquidations bool) error {
	g, ctx := errgroup.WithContext(ctx)

	processor := deps.Processor
	engine := deps.Engine
	if !withQueue {
		processor = nil
	}
	if !withLiquidations {
		engine = nil
	}

	schedCfg := scheduler.DefaultConfig()
	schedCfg.TickInterval = a.cfg.Queue.TickInterval.Duration
	schedCfg.CUCeilingPerBatch = a.cfg.Queue.CUCeilingPerBatch
	schedCfg.MaxTradesPerTick = a.cfg.Queue.MaxTradesPerTick

	sched := scheduler.New(schedCfg, processor, engine, deps.Commits, deps.Congestion,
		deps.Clock, deps.EventBus, deps.Claims, deps.Archiver, a.logger)

	g.Go(func() error {
		return sched.Run(ctx)
	})

	if a.cfg.Server.Enabled {
		hub := ws.NewHub(deps.EventBus, a.cfg.Mode, a.logger)
		g.Go(func() error {
			err := hub.Run(ctx)
			if err == context.Canceled {
				return nil
			}
			return err
		})

		handlers := server.Handlers{
			Health: handler.NewHealthHandler(map[string]handler.Pinger{
				"redis":    handler.PingerFunc(deps.Redis.Ping),
				"postgres": handler.PingerFunc(deps.Postgres.Pool().Ping),
			}, a.logger),
			Status: handler.NewStatusHandler(a.cfg.Mode, deps.Admission, deps.Liquidations, deps.Clock),
		}
		if withQueue {
			handlers.Trades = handler.NewTradeHandler(deps.Admission, a.logger)
			handlers.Orders = handler.NewOrderHandler(deps.Admission, a.logger)
		}
		if withLiquidations {
			handlers.Liquidations = handler.NewLiquidationHandler(deps.Liquidations, a.logger)
		}

		srv := server.NewServer(server.Config{
			Port:        a.cfg.Server.Port,
			CORSOrigins: a.cfg.Server.CORSOrigins,
			APIKey:      a.cfg.Server.APIKey,
		}, handlers, hub, a.logger)

		g.Go(func() error {
			return srv.Start()
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}
