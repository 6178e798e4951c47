// Package server sets up the HTTP server with all routes
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/facilmilha/facilmilha/internal/account"
	"github.com/facilmilha/facilmilha/internal/config"
	"github.com/facilmilha/facilmilha/internal/health"
	"github.com/facilmilha/facilmilha/internal/idgen"
	"github.com/facilmilha/facilmilha/internal/logging"
	"github.com/facilmilha/facilmilha/internal/metrics"
	"github.com/facilmilha/facilmilha/internal/order"
	"github.com/facilmilha/facilmilha/internal/passenger"
	"github.com/facilmilha/facilmilha/internal/payout"
	"github.com/facilmilha/facilmilha/internal/ratelimit"
	"github.com/facilmilha/facilmilha/internal/rating"
	"github.com/facilmilha/facilmilha/internal/realtime"
	"github.com/facilmilha/facilmilha/internal/security"
	"github.com/facilmilha/facilmilha/internal/suitpay"
	"github.com/facilmilha/facilmilha/internal/traces"
	"github.com/facilmilha/facilmilha/internal/validation"
	"github.com/facilmilha/facilmilha/internal/wallet"
	"github.com/facilmilha/facilmilha/internal/webhook"
)

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// PaymentGateway bundles the two calls the marketplace makes against the
// payment provider: charge creation when a buyer pays and PIX cash-out when
// matured funds are released to a seller.
type PaymentGateway interface {
	order.ChargeCreator
	payout.Gateway
}

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg          *config.Config
	accounts     *account.Service
	accountStore account.Store
	wallets      *wallet.Service
	walletStore  wallet.Store
	orders       *order.Service
	passengers   *passenger.Service
	ratings      *rating.Service
	payouts      *payout.Service
	gateway      PaymentGateway
	hub          *realtime.Hub
	healthReg    *health.Registry
	expiryTimer  *order.Timer
	sweepTimer   *payout.Timer
	rateLimiter  *ratelimit.Limiter
	db           *sql.DB // nil if using in-memory
	router       *gin.Engine
	httpSrv      *http.Server
	logger       *slog.Logger
	cancelRunCtx context.CancelFunc // cancels background goroutines started in Run
	tracesStop   func(context.Context) error

	// Health state
	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithGateway sets a custom payment gateway (for testing)
func WithGateway(g PaymentGateway) Option {
	return func(s *Server) {
		s.gateway = g
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, "json"),
	}

	// Apply options first (may set gateway/logger)
	for _, opt := range opts {
		opt(s)
	}

	// Initialize storage (Postgres if DATABASE_URL set, otherwise in-memory)
	var orderStore order.Store
	var passengerStore passenger.Store
	var ratingStore rating.Store
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}

		// Configure connection pool
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		// Test connection
		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		s.db = db
		s.accountStore = account.NewPostgresStore(db)
		s.walletStore = wallet.NewPostgresStore(db)
		orderStore = order.NewPostgresStore(db)
		passengerStore = passenger.NewPostgresStore(db)
		ratingStore = rating.NewPostgresStore(db)
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))
	} else {
		s.accountStore = account.NewMemoryStore()
		s.walletStore = wallet.NewMemoryStore()
		orderStore = order.NewMemoryStore()
		passengerStore = passenger.NewMemoryStore()
		ratingStore = rating.NewMemoryStore()
		s.logger.Info("using in-memory storage (data will not persist)")
	}

	// Create gateway client if not injected
	if s.gateway == nil {
		s.gateway = suitpay.NewClient(
			cfg.SuitPayChargeURL,
			cfg.SuitPayCashOutURL,
			cfg.SuitPayClientID,
			cfg.SuitPayClientSecret,
			cfg.WebhookCallbackURL(),
		)
		if cfg.SuitPayClientID == "" {
			s.logger.Warn("SuitPay credentials not set, gateway calls will be rejected upstream")
		}
	}

	// Realtime hub for WebSocket streaming of marketplace events
	s.hub = realtime.NewHub(s.logger)

	// Services
	s.accounts = account.NewService(s.accountStore)
	s.wallets = wallet.NewService(s.walletStore)
	s.orders = order.NewService(orderStore, &walletLedger{wallets: s.wallets, holdDays: cfg.HoldDays}, order.Config{
		FeeBps:        cfg.FeeBps,
		PaymentWindow: cfg.PaymentWindow,
		ChargeTTL:     cfg.ChargeTTL,
	}).WithCharger(s.gateway, &buyerDirectory{accounts: s.accounts}).WithEvents(s.hub)
	s.passengers = passenger.NewService(passengerStore, s.orders)
	s.ratings = rating.NewService(ratingStore, s.orders)
	s.payouts = payout.NewService(s.walletStore, s.accounts, s.gateway)

	// Background timers: accepted-offer expiry and the payout sweeper
	s.expiryTimer = order.NewTimer(s.orders, cfg.ExpiryInterval, s.logger)
	s.sweepTimer = payout.NewTimer(s.payouts, cfg.SweepInterval, s.logger)

	// Readiness checks
	s.healthReg = health.NewRegistry()
	if s.db != nil {
		s.healthReg.Register("database", func(ctx context.Context) health.Status {
			ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
			defer cancel()
			if err := s.db.PingContext(ctx); err != nil {
				return health.Status{Name: "database", Healthy: false, Detail: err.Error()}
			}
			return health.Status{Name: "database", Healthy: true}
		})
	} else {
		s.healthReg.Register("storage", health.Ping("storage"))
	}

	// Configure gin
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)

	return s, nil
}

// maskDSN hides password in connection string for logging
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

// -----------------------------------------------------------------------------
// Adapters
// -----------------------------------------------------------------------------

// walletLedger adapts the wallet service to the order service's view of the
// escrow ledger. The hold length is fixed at startup.
type walletLedger struct {
	wallets  *wallet.Service
	holdDays int
}

func (l *walletLedger) CreditSale(ctx context.Context, sellerAccountID string, amountCentavos int64, description string) (string, error) {
	txn, err := l.wallets.Credit(ctx, sellerAccountID, amountCentavos, l.holdDays, description)
	if err != nil {
		return "", err
	}
	return txn.ID, nil
}

// buyerDirectory resolves the payer details SuitPay requires on a charge.
type buyerDirectory struct {
	accounts *account.Service
}

func (d *buyerDirectory) BuyerIdentity(ctx context.Context, accountID string) (string, string, error) {
	acct, err := d.accounts.Get(ctx, accountID)
	if err != nil {
		return "", "", err
	}
	return acct.Name, acct.Email, nil
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

func (s *Server) setupMiddleware() {
	// Recovery with logging
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	// Security headers
	s.router.Use(security.HeadersMiddleware())

	// CORS (allow all origins for now - restrict in production)
	s.router.Use(security.CORSMiddleware([]string{"*"}))

	// Request size limit (1MB)
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	// Rate limiting
	rlCfg := ratelimit.DefaultConfig()
	if s.cfg.RateLimitRPS > 0 {
		rlCfg.RequestsPerMinute = s.cfg.RateLimitRPS * 60
		rlCfg.BurstSize = s.cfg.RateLimitRPS
	}
	s.rateLimiter = ratelimit.New(rlCfg)
	s.router.Use(s.rateLimiter.Middleware())

	// Prometheus metrics
	s.router.Use(metrics.Middleware())

	// Request ID
	s.router.Use(s.requestIDMiddleware())

	// Logging
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check for existing request ID (from load balancer, etc.)
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = idgen.New()
		}

		// Add to context
		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		// Set response header
		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		logger := logging.L(c.Request.Context())

		// Log level based on status code
		switch {
		case status >= 500:
			logger.Error("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
				"client_ip", c.ClientIP(),
			)
		case status >= 400:
			logger.Warn("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		default:
			logger.Info("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}
	}
}

// identityMiddleware resolves the calling account from the X-Account-ID
// header set by the upstream auth proxy. Registration and authentication live
// outside this service; by the time a request lands here the identity has
// already been verified.
//
// Outside production, unseen accounts are provisioned on first request (with
// a wallet) so the API is usable without seed data.
func (s *Server) identityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		accountID := c.GetHeader("X-Account-ID")
		if accountID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthenticated",
				"message": "Missing X-Account-ID header",
			})
			return
		}

		if !s.cfg.IsProduction() {
			s.ensureAccount(c.Request.Context(), accountID)
		}

		c.Set("accountID", accountID)
		c.Next()
	}
}

// ensureAccount lazily creates an account and its wallet. Races with a
// concurrent first request are benign: the duplicate create fails and the
// winner's row is used.
func (s *Server) ensureAccount(ctx context.Context, accountID string) {
	if _, err := s.accounts.Get(ctx, accountID); errors.Is(err, account.ErrAccountNotFound) {
		now := time.Now()
		_ = s.accountStore.Create(ctx, &account.Account{
			ID:        accountID,
			Name:      accountID,
			Email:     accountID + "@dev.facilmilha.local",
			CreatedAt: now,
			UpdatedAt: now,
		})
	}
	if _, err := s.wallets.GetByAccount(ctx, accountID); errors.Is(err, wallet.ErrWalletNotFound) {
		_ = s.walletStore.CreateWallet(ctx, &wallet.Wallet{
			ID:        idgen.WithPrefix("wal_"),
			AccountID: accountID,
			UpdatedAt: time.Now(),
		})
	}
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	// Health & metrics endpoints
	s.router.GET("/health", s.healthReg.Handler())
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	// API info
	s.router.GET("/", s.infoHandler)

	// WebSocket for real-time marketplace streaming
	s.router.GET("/ws", func(c *gin.Context) {
		s.hub.HandleWebSocket(c.Writer, c.Request)
	})

	// Gateway webhooks sit outside the identity middleware: SuitPay is not a
	// platform account
	webhookHandler := webhook.NewHandler(s.orders)
	if s.cfg.SuitPayClientSecret != "" {
		webhookHandler = webhookHandler.WithSignatureCheck(s.cfg.SuitPayClientSecret)
	}
	webhookHandler.RegisterRoutes(s.router)

	// V1 API group — everything here runs as a known account
	v1 := s.router.Group("/v1")
	v1.Use(s.identityMiddleware())

	account.NewHandler(s.accounts).RegisterRoutes(v1)
	wallet.NewHandler(s.wallets).RegisterRoutes(v1)
	order.NewHandler(s.orders).RegisterRoutes(v1)
	passenger.NewHandler(s.passengers).RegisterRoutes(v1)
	rating.NewHandler(s.ratings).RegisterRoutes(v1)

	// Operator routes
	admin := v1.Group("/admin")
	payout.NewHandler(s.payouts).RegisterAdminRoutes(admin)
}

// -----------------------------------------------------------------------------
// Handlers
// -----------------------------------------------------------------------------

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (s *Server) infoHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":        "FacilMilha",
		"description": "P2P marketplace for airline-miles flight tickets",
		"version":     "0.1.0",
		"currency":    "BRL",
	})
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the HTTP server with graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	// Create a cancellable context for background goroutines so Shutdown() can stop them.
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	// Tracing (no-op when no OTLP endpoint is configured)
	if stop, err := traces.Init(runCtx, s.cfg.OTLPEndpoint, s.logger); err != nil {
		s.logger.Warn("failed to initialize tracing", "error", err)
	} else {
		s.tracesStop = stop
	}

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Channel to catch server errors
	errChan := make(chan error, 1)

	// Start server in goroutine
	go func() {
		s.logger.Info("starting server",
			"port", s.cfg.Port,
			"env", s.cfg.Env,
		)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Start realtime hub
	go s.hub.Run(runCtx)

	// Start accepted-offer expiry timer
	go s.expiryTimer.Start(runCtx)

	// Start payout sweeper
	go s.sweepTimer.Start(runCtx)

	// Mark as ready after brief delay for startup
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	// Wait for shutdown signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	// Cancel the context for all background goroutines (hub, timers)
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	// Give load balancers time to stop sending traffic
	if s.cfg.IsProduction() {
		time.Sleep(5 * time.Second)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Error("shutdown error", "error", err)
		return err
	}

	// Stop offer expiry timer
	s.expiryTimer.Stop()
	s.logger.Info("offer expiry timer stopped")

	// Stop payout sweeper
	s.sweepTimer.Stop()
	s.logger.Info("payout sweeper stopped")

	// Stop rate limiter cleanup goroutine
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
		s.logger.Info("rate limiter stopped")
	}

	// Flush tracing
	if s.tracesStop != nil {
		if err := s.tracesStop(ctx); err != nil {
			s.logger.Error("traces shutdown error", "error", err)
		}
	}

	// Close database connection pool
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		} else {
			s.logger.Info("database connection closed")
		}
	}

	s.logger.Info("server stopped")
	return nil
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}
