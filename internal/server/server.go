package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/kektech/marketd/internal/domain"
	"github.com/kektech/marketd/internal/server/handler"
	"github.com/kektech/marketd/internal/server/middleware"
	"github.com/kektech/marketd/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled

	// RateLimit requests per RateWindow per client IP; zero disables.
	RateLimit  int
	RateWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health     *handler.HealthHandler
	Markets    *handler.MarketHandler
	Trades     *handler.TradeHandler
	Factory    *handler.FactoryHandler
	Resolution *handler.ResolutionHandler
	Curves     *handler.CurveHandler
	Params     *handler.ParamHandler
}

// Server is the HTTP + WebSocket API server for the market engine.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (CORS, logging, rate limiting, auth) and attaches
// the WebSocket hub. limiter may be nil when rate limiting is disabled.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Market reads.
	mux.HandleFunc("GET /api/markets", handlers.Markets.ListMarkets)
	mux.HandleFunc("GET /api/markets/{id}", handlers.Markets.GetMarket)
	mux.HandleFunc("GET /api/markets/{id}/odds", handlers.Markets.GetOdds)
	mux.HandleFunc("GET /api/markets/{id}/position", handlers.Markets.GetPosition)
	mux.HandleFunc("GET /api/markets/{id}/payout", handlers.Markets.GetPayout)

	// Market creation and lifecycle.
	mux.HandleFunc("POST /api/markets", handlers.Factory.CreateMarket)
	mux.HandleFunc("POST /api/markets/curve", handlers.Factory.CreateMarketWithCurve)
	mux.HandleFunc("POST /api/markets/{id}/approve", handlers.Factory.Approve)
	mux.HandleFunc("POST /api/markets/{id}/activate", handlers.Factory.Activate)
	mux.HandleFunc("GET /api/markets/{id}/bond", handlers.Factory.GetBond)
	mux.HandleFunc("POST /api/markets/{id}/bond-refund", handlers.Factory.RefundBond)
	mux.HandleFunc("GET /api/bonds/total", handlers.Factory.TotalBonds)
	mux.HandleFunc("POST /api/admin/pause", handlers.Factory.Pause)
	mux.HandleFunc("POST /api/admin/unpause", handlers.Factory.Unpause)

	// Trading.
	mux.HandleFunc("POST /api/markets/{id}/bets", handlers.Trades.PlaceBet)
	mux.HandleFunc("POST /api/markets/{id}/sells", handlers.Trades.SellShares)
	mux.HandleFunc("POST /api/markets/{id}/claim", handlers.Trades.ClaimWinnings)
	mux.HandleFunc("POST /api/markets/{id}/refund", handlers.Trades.ClaimRefund)

	// Resolution and disputes.
	mux.HandleFunc("POST /api/markets/{id}/resolve", handlers.Resolution.Resolve)
	mux.HandleFunc("POST /api/markets/{id}/dispute", handlers.Resolution.Dispute)
	mux.HandleFunc("POST /api/markets/{id}/admin-resolve", handlers.Resolution.AdminResolve)
	mux.HandleFunc("POST /api/markets/{id}/cancel", handlers.Resolution.Cancel)

	// Curve catalog.
	mux.HandleFunc("GET /api/curves", handlers.Curves.ListCurves)
	mux.HandleFunc("POST /api/curves", handlers.Curves.RegisterCurve)
	mux.HandleFunc("PUT /api/curves/{id}/status", handlers.Curves.SetCurveStatus)

	// Protocol tunables.
	mux.HandleFunc("GET /api/params", handlers.Params.ListParams)
	mux.HandleFunc("PUT /api/params/{key}", handlers.Params.SetParam)

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain, innermost first.
	var h http.Handler = mux

	h = middleware.Auth(cfg.APIKey)(h)

	if limiter != nil && cfg.RateLimit > 0 {
		window := cfg.RateWindow
		if window <= 0 {
			window = time.Minute
		}
		h = middleware.RateLimit(limiter, cfg.RateLimit, window)(h)
	}

	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
