package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alanyoungcy/dscengine/internal/domain"
	"github.com/alanyoungcy/dscengine/internal/server/handler"
	"github.com/alanyoungcy/dscengine/internal/server/middleware"
	"github.com/alanyoungcy/dscengine/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // empty disables API-key auth
	RateLimit   int    // requests per RateWindow per client IP; 0 disables
	RateWindow  time.Duration
	// SignatureMaxSkew bounds how far a signed request's timestamp may be
	// from the server clock.
	SignatureMaxSkew time.Duration
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
}

// Handlers aggregates the HTTP handlers the server registers.
type Handlers struct {
	Health  *handler.HealthHandler
	Status  *handler.StatusHandler
	Engine  *handler.EngineHandler
	Account *handler.AccountHandler
	Events  *handler.EventHandler
	Tokens  *handler.TokenHandler
	Archive *handler.ArchiveHandler // optional
}

// Server is the HTTP and WebSocket API of the engine.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
}

// NewServer registers every route and wraps the mux in CORS, logging, rate
// limiting and API-key auth, outermost first. State-changing routes also
// require a request signature.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()
	signed := middleware.Signature(cfg.SignatureMaxSkew, nil)
	post := func(pattern string, fn http.HandlerFunc) {
		mux.Handle("POST "+pattern, signed(fn))
	}

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.HandleFunc("GET /api/status", handlers.Status.GetStatus)

	// Engine operations.
	post("/api/collateral/deposit", handlers.Engine.Deposit)
	post("/api/collateral/redeem", handlers.Engine.Redeem)
	post("/api/collateral/deposit-and-mint", handlers.Engine.DepositAndMint)
	post("/api/collateral/redeem-for-dsc", handlers.Engine.RedeemForDSC)
	post("/api/dsc/mint", handlers.Engine.Mint)
	post("/api/dsc/burn", handlers.Engine.Burn)
	post("/api/liquidations", handlers.Engine.Liquidate)

	// Queries.
	mux.HandleFunc("GET /api/accounts/{address}", handlers.Account.GetAccount)
	mux.HandleFunc("GET /api/accounts/{address}/health-factor", handlers.Account.GetHealthFactor)
	mux.HandleFunc("GET /api/accounts/{address}/collateral/{asset}", handlers.Account.GetCollateral)
	mux.HandleFunc("GET /api/collateral", handlers.Account.ListCollateral)
	mux.HandleFunc("GET /api/valuation/usd", handlers.Account.USDValue)
	mux.HandleFunc("GET /api/valuation/amount", handlers.Account.TokenAmount)
	mux.HandleFunc("GET /api/events", handlers.Events.ListEvents)
	mux.HandleFunc("GET /api/audit", handlers.Events.ListAudit)

	// Tokens.
	mux.HandleFunc("GET /api/tokens", handlers.Tokens.ListTokens)
	mux.HandleFunc("GET /api/tokens/{token}/balances/{address}", handlers.Tokens.GetBalance)
	post("/api/tokens/{token}/approve", handlers.Tokens.Approve)
	post("/api/tokens/{token}/faucet", handlers.Tokens.Faucet)

	if handlers.Archive != nil {
		mux.HandleFunc("GET /api/archive", handlers.Archive.ListArchive)
		mux.HandleFunc("GET /api/archive/{kind}/{file}", handlers.Archive.GetArchive)
	}

	mux.Handle("GET /metrics", promhttp.Handler())
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey)(h)
	h = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateWindow, logger)(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	readTimeout := cfg.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 15 * time.Second
	}
	writeTimeout := cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 30 * time.Second
	}

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           h,
			ReadTimeout:       readTimeout,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      writeTimeout,
			IdleTimeout:       60 * time.Second,
		},
		handler: h,
		logger:  logger,
	}
}

// Handler returns the full middleware chain, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.handler }

// Start listens until the server fails or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones until ctx
// ends.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
