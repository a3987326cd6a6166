package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/auctionhub/internal/domain"
	"github.com/alanyoungcy/auctionhub/internal/server/handler"
	"github.com/alanyoungcy/auctionhub/internal/server/middleware"
	"github.com/alanyoungcy/auctionhub/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port           int
	CORSOrigins    []string
	APIKey         string // if empty, REST authentication is disabled
	RESTRateLimit  int    // requests per RESTRateWindow per client IP; 0 disables
	RESTRateWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health   *handler.HealthHandler
	Auctions *handler.AuctionHandler
}

// Server is the HTTP + WebSocket front of the auction engine. REST endpoints
// are read-only; all mutations flow through the WebSocket gateway.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered. The WebSocket
// endpoint is mounted outside the auth and REST rate-limit middleware: the
// gateway speaks its own admission protocol and enforces its own
// per-connection limits.
func NewServer(cfg Config, handlers Handlers, gateway *ws.Gateway, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	api := http.NewServeMux()

	api.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	api.HandleFunc("GET /api/auctions", handlers.Auctions.ListAuctions)
	api.HandleFunc("GET /api/auctions/{id}", handlers.Auctions.GetAuction)
	api.HandleFunc("GET /api/auctions/{id}/bids", handlers.Auctions.GetAuctionBids)

	var apiChain http.Handler = api
	if limiter != nil && cfg.RESTRateLimit > 0 {
		apiChain = middleware.RateLimit(limiter, cfg.RESTRateLimit, cfg.RESTRateWindow)(apiChain)
	}
	apiChain = middleware.Auth(cfg.APIKey)(apiChain)

	root := http.NewServeMux()
	root.Handle("/api/", apiChain)
	if gateway != nil {
		root.HandleFunc("GET /ws", gateway.HandleWS)
	}

	var h http.Handler = root
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
