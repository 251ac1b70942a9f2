// Package server assembles the HTTP API: route table, middleware chain and
// server lifecycle. Handlers live in handler/, the websocket hub in ws/.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/qupredict/qupredict/internal/domain"
	"github.com/qupredict/qupredict/internal/server/handler"
	"github.com/qupredict/qupredict/internal/server/middleware"
	"github.com/qupredict/qupredict/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	// APIKey guards every route except /health and the HMAC-verified oracle
	// callback. Empty disables authentication.
	APIKey string
	// RateLimitPerMin caps requests per client IP per minute; 0 disables.
	RateLimitPerMin int
}

// Handlers aggregates all HTTP handlers that the server registers.
type Handlers struct {
	Health  *handler.HealthHandler
	Status  *handler.StatusHandler
	Markets *handler.MarketHandler
	Bets    *handler.BetHandler
	Rounds  *handler.RoundHandler
	Oracle  *handler.OracleHandler
	Admin   *handler.AdminHandler
}

// Server is the HTTP + WebSocket API server of the qupredict daemon.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered and the middleware
// chain wired: CORS, request logging, rate limiting, then auth. limiter may
// be nil when rate limiting is disabled.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Operational surface.
	mux.HandleFunc("GET /health", handlers.Health.HealthCheck)
	mux.HandleFunc("GET /status", handlers.Status.GetStatus)

	// Bets and escrows.
	mux.HandleFunc("POST /bet", handlers.Bets.PlaceBet)
	mux.HandleFunc("GET /bet/status", handlers.Bets.BetStatus)
	mux.HandleFunc("DELETE /bet", handlers.Bets.CancelBet)

	// Markets.
	mux.HandleFunc("GET /markets", handlers.Markets.ListMarkets)
	mux.HandleFunc("GET /markets/{id}", handlers.Markets.GetMarket)
	mux.HandleFunc("POST /markets", handlers.Markets.CreateMarket)

	// Flash rounds.
	mux.HandleFunc("GET /rounds/current", handlers.Rounds.CurrentRound)
	mux.HandleFunc("GET /rounds", handlers.Rounds.ListRounds)
	mux.HandleFunc("POST /rounds/wager", handlers.Rounds.PlaceWager)

	// Oracle resolution callback (HMAC-authenticated, API-key exempt).
	mux.HandleFunc("POST /oracle/resolution", handlers.Oracle.ResolutionCallback)

	// Operator controls.
	mux.HandleFunc("POST /admin/oracle/pause", handlers.Admin.PauseOracle)
	mux.HandleFunc("POST /admin/oracle/resume", handlers.Admin.ResumeOracle)
	mux.HandleFunc("GET /admin/bets", handlers.Bets.ListBets)
	mux.HandleFunc("POST /admin/markets/{id}/cancel", handlers.Markets.CancelMarket)

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain, innermost first.
	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey, "/health", "/oracle/resolution")(h)
	if limiter != nil && cfg.RateLimitPerMin > 0 {
		h = middleware.RateLimit(limiter, cfg.RateLimitPerMin, time.Minute)(h)
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
		logger:     logger,
	}
}

// Handler exposes the fully wired root handler, middleware included.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
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
