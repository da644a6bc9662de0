package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/dscengine/internal/pipeline"
	"github.com/alanyoungcy/dscengine/internal/server"
	"github.com/alanyoungcy/dscengine/internal/server/handler"
	"github.com/alanyoungcy/dscengine/internal/server/ws"
	"github.com/alanyoungcy/dscengine/internal/service"
)

const shutdownTimeout = 10 * time.Second

// ServerMode serves the HTTP API and the event stream hub.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")
	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps)
	return g.Wait()
}

// MonitorMode runs the liquidation monitor only.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")
	g, ctx := errgroup.WithContext(ctx)
	a.startMonitor(ctx, g, deps)
	return g.Wait()
}

// FullMode runs the API, the monitor and, when enabled, the archive cron.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")
	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps)
	a.startMonitor(ctx, g, deps)
	a.startArchiver(ctx, g, deps)
	return g.Wait()
}

func (a *App) accountService(deps *Dependencies) *service.AccountService {
	assets := make(map[common.Address]service.AssetInfo, len(deps.Collateral))
	for _, t := range deps.Collateral {
		assets[t.Address] = service.AssetInfo{Symbol: t.Symbol, Decimals: t.Ledger.Decimals()}
	}
	return service.NewAccountService(deps.Engine, deps.LockManager, deps.AuditStore, deps.Notifier, service.AccountConfig{
		LockTTL:   a.cfg.Engine.LockTTL.Duration,
		LockRetry: a.cfg.Engine.LockRetry.Duration,
		Assets:    assets,
	}, a.logger)
}

// startHTTPServer adds the API server, its graceful shutdown and the ws hub
// to g.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	svc := a.accountService(deps)

	tokens := make([]handler.TokenEntry, 0, len(deps.Collateral)+1)
	for _, t := range deps.Collateral {
		tokens = append(tokens, handler.TokenEntry{Address: t.Address, Ledger: t.Ledger})
	}
	tokens = append(tokens, handler.TokenEntry{Address: deps.DSCAddress, Ledger: deps.Stablecoin})

	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{Mode: a.cfg.Mode, StartedAt: a.startedAt})
	handlers := server.Handlers{
		Health: handler.NewHealthHandler(),
		Status: handler.NewStatusHandler(handler.StatusInfo{
			Mode:         a.cfg.Mode,
			StoreDriver:  a.cfg.Store.Driver,
			RedisEnabled: a.cfg.Redis.Enabled,
			Custody:      deps.Custody.Hex(),
			Collateral:   len(deps.Collateral),
		}, a.startedAt),
		Engine:  handler.NewEngineHandler(svc, a.logger),
		Account: handler.NewAccountHandler(svc, a.logger),
		Events:  handler.NewEventHandler(deps.EventStore, deps.AuditStore, a.logger),
		Tokens:  handler.NewTokenHandler(tokens, deps.Custody, a.cfg.Server.DevFaucet, a.logger),
	}
	if deps.BlobReader != nil {
		handlers.Archive = handler.NewArchiveHandler(deps.BlobReader, a.logger)
	}

	srv := server.NewServer(server.Config{
		Port:             a.cfg.Server.Port,
		CORSOrigins:      a.cfg.Server.CORSOrigins,
		APIKey:           a.cfg.Server.APIKey,
		RateLimit:        a.cfg.Server.RateLimit,
		RateWindow:       a.cfg.Server.RateWindow.Duration,
		SignatureMaxSkew: a.cfg.Server.SignatureMaxSkew.Duration,
		ReadTimeout:      a.cfg.Server.ReadTimeout.Duration,
		WriteTimeout:     a.cfg.Server.WriteTimeout.Duration,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		return hub.Run(ctx)
	})
	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

func (a *App) startMonitor(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	mon := service.NewLiquidationMonitor(deps.Engine, deps.SignalBus, deps.Notifier, a.cfg.Monitor.Interval.Duration, a.logger)
	g.Go(func() error {
		if err := mon.Run(ctx); err != nil {
			return fmt.Errorf("liquidation monitor: %w", err)
		}
		return nil
	})
}

func (a *App) startArchiver(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if deps.Archiver == nil {
		a.logger.InfoContext(ctx, "archiver disabled")
		return
	}
	arch := pipeline.NewArchiver(deps.Archiver, a.cfg.Archive.RetentionDays, a.logger)
	g.Go(func() error {
		err := arch.RunCron(ctx, a.cfg.Archive.Cron)
		if ctx.Err() != nil {
			return nil
		}
		a.logger.ErrorContext(ctx, "archiver stopped", slog.String("error", err.Error()))
		return fmt.Errorf("archiver: %w", err)
	})
}
