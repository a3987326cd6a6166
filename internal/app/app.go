// Package app provides the top-level application lifecycle for the auction
// engine. It wires together the registry, gateway, HTTP server, janitor, and
// notifications, and runs them until the context is cancelled.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/auctionhub/internal/auction"
	"github.com/alanyoungcy/auctionhub/internal/config"
	"github.com/alanyoungcy/auctionhub/internal/domain"
	"github.com/alanyoungcy/auctionhub/internal/server"
	"github.com/alanyoungcy/auctionhub/internal/server/handler"
	"github.com/alanyoungcy/auctionhub/internal/server/ws"
)

// shutdownGrace bounds how long in-flight HTTP requests may run after the
// context is cancelled.
const shutdownGrace = 10 * time.Second

// App is the root application object.
type App struct {
	cfg    *config.Config
	logger *slog.Logger
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires all dependencies, starts the HTTP/WebSocket server and the expiry
// janitor, and blocks until the context is cancelled or a component fails.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting auction engine",
		slog.String("store", a.cfg.Auction.Store),
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	defer cleanup()

	clock := domain.SystemClock()
	validator := auction.NewValidator(clock, a.logger)
	router := ws.NewRouter(a.logger)

	gateway := ws.NewGateway(
		ws.Config{
			MaxMessageBytes:   a.cfg.Gateway.MaxMessageBytes,
			RateLimit:         a.cfg.Gateway.RateLimit,
			RateWindow:        a.cfg.Gateway.RateWindow.Duration,
			ChainID:           a.cfg.Auction.ChainID,
			VerifyingContract: a.cfg.Auction.VerifyingContract,
		},
		deps.Registry, validator, router, deps.SignalBus, deps.Notifier, clock, a.logger,
	)

	srv := server.NewServer(
		server.Config{
			Port:           a.cfg.Server.Port,
			CORSOrigins:    a.cfg.Server.CORSOrigins,
			APIKey:         a.cfg.Server.APIKey,
			RESTRateLimit:  a.cfg.Server.RateLimit,
			RESTRateWindow: a.cfg.Server.RateWindow.Duration,
		},
		server.Handlers{
			Health:   handler.NewHealthHandler(a.logger),
			Auctions: handler.NewAuctionHandler(deps.Registry, a.logger),
		},
		gateway, deps.RateLimiter, a.logger,
	)

	var archiver auction.SnapshotArchiver
	if deps.Archiver != nil {
		archiver = deps.Archiver
	}
	janitor := auction.NewJanitor(deps.Sweeper, archiver, a.cfg.Auction.SweepInterval.Duration, clock, a.logger)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(srv.Start)

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		err := janitor.Run(ctx)
		if err != nil && ctx.Err() != nil {
			return nil
		}
		return err
	})

	return g.Wait()
}
