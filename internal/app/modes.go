package app

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kektech/marketd/internal/server"
	"github.com/kektech/marketd/internal/server/handler"
	"github.com/kektech/marketd/internal/server/ws"
)

// shutdownGrace is how long in-flight HTTP requests get to finish.
const shutdownGrace = 10 * time.Second

// ServerMode runs the HTTP API and WebSocket hub.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps)
	return g.Wait()
}

// SweeperMode runs only the dispute-window sweeper. Useful for a dedicated
// finalization worker alongside API replicas.
func (a *App) SweeperMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting sweeper mode")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return deps.Sweeper.Run(ctx)
	})
	return g.Wait()
}

// FullMode runs the HTTP API, WebSocket hub and the sweeper in one process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return deps.Sweeper.Run(ctx)
	})
	a.startHTTPServer(ctx, g, deps)

	return g.Wait()
}

// startHTTPServer wires the handlers, hub and middleware into an HTTP server
// and registers its lifecycle on the errgroup. It is a no-op when the server
// is disabled in config.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if !a.cfg.Server.Enabled {
		a.logger.InfoContext(ctx, "http server disabled")
		return
	}

	hub := ws.NewHub(deps.SignalBus, a.logger)
	g.Go(func() error {
		err := hub.Run(ctx)
		if err == context.Canceled {
			return nil
		}
		return err
	})

	handlers := server.Handlers{
		Health:     handler.NewHealthHandler(a.logger),
		Markets:    handler.NewMarketHandler(deps.Markets, a.logger),
		Trades:     handler.NewTradeHandler(deps.Markets, a.logger),
		Factory:    handler.NewFactoryHandler(deps.FactorySvc, a.logger),
		Resolution: handler.NewResolutionHandler(deps.Resolution, a.logger),
		Curves:     handler.NewCurveHandler(deps.Curves, a.logger),
		Params:     handler.NewParamHandler(deps.Params, a.logger),
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.apiKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}
