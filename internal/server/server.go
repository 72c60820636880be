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

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/mbd888/safeshield/internal/activity"
	"github.com/mbd888/safeshield/internal/addressbook"
	"github.com/mbd888/safeshield/internal/backend"
	"github.com/mbd888/safeshield/internal/circuitbreaker"
	"github.com/mbd888/safeshield/internal/config"
	"github.com/mbd888/safeshield/internal/health"
	"github.com/mbd888/safeshield/internal/hypernative"
	"github.com/mbd888/safeshield/internal/logging"
	"github.com/mbd888/safeshield/internal/metrics"
	"github.com/mbd888/safeshield/internal/ratelimit"
	"github.com/mbd888/safeshield/internal/realtime"
	"github.com/mbd888/safeshield/internal/security"
	"github.com/mbd888/safeshield/internal/shield"
	"github.com/mbd888/safeshield/internal/traces"
	"github.com/mbd888/safeshield/internal/validation"
	"github.com/mbd888/safeshield/internal/verdict"
	"github.com/mbd888/safeshield/migrations"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// tokenCleanupInterval is how often expired vendor tokens are purged.
const tokenCleanupInterval = 15 * time.Minute

// expiredTokenCleaner is implemented by persistent token stores.
type expiredTokenCleaner interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// circuitReporter is implemented by source clients guarded by a breaker.
type circuitReporter interface {
	CircuitState() circuitbreaker.State
}

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg    *config.Config
	logger *slog.Logger

	db       *sql.DB                    // nil unless DATABASE_URL is set
	sqlite   *addressbook.SQLiteStore   // nil unless SQLITE_PATH is set
	provider activity.Provider          // nil disables activity checks
	closeRPC func()                     // closes a provider dialled by New
	backend  shield.Backend             // injectable for tests
	threat   shield.ThreatAssessor      // injectable for tests
	tokens   hypernative.TokenStore     // vendor tokens by session
	book     addressbook.Store          // address book entries
	verdicts verdict.Store              // overall verdict audit trail
	auth     *hypernative.Authenticator // nil when Hypernative is not configured

	service       *shield.Service
	recorder      *verdict.Recorder
	realtimeHub   *realtime.Hub
	rateLimiter   *ratelimit.Limiter
	health        *health.Registry
	router        *gin.Engine
	httpSrv       *http.Server
	traceShutdown func(context.Context) error
	cancelRunCtx  context.CancelFunc // cancels background goroutines started in Run

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

// WithActivityProvider sets the on-chain activity provider instead of
// dialling RPC_URL (for testing)
func WithActivityProvider(p activity.Provider) Option {
	return func(s *Server) {
		s.provider = p
	}
}

// WithBackend replaces the backend analysis client (for testing)
func WithBackend(b shield.Backend) Option {
	return func(s *Server) {
		s.backend = b
	}
}

// WithThreatAssessor replaces the Hypernative client (for testing)
func WithThreatAssessor(t shield.ThreatAssessor) Option {
	return func(s *Server) {
		s.threat = t
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, cfg.LogFormat),
		health: health.NewRegistry(),
	}

	// Apply options first (may set logger and collaborators)
	for _, opt := range opts {
		opt(s)
	}

	ctx := context.Background()

	if err := s.setupStorage(ctx); err != nil {
		return nil, err
	}

	shutdown, err := traces.Init(ctx, cfg.OTLPEndpoint, s.logger)
	if err != nil {
		s.logger.Warn("failed to initialize tracing", "error", err)
	} else {
		s.traceShutdown = shutdown
	}

	// On-chain activity (dial lazily: ethclient over HTTP does not connect yet)
	if s.provider == nil && cfg.RPCURL != "" {
		dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		p, err := activity.DialEthProvider(dialCtx, cfg.RPCURL)
		cancel()
		if err != nil {
			s.logger.Warn("activity checks disabled", "error", err)
		} else {
			s.provider = p
			s.closeRPC = p.Close
		}
	}
	var activityChecker shield.Activity
	if s.provider != nil {
		activityChecker = activity.NewChecker(s.provider, activity.Options{
			RPS:     cfg.ActivityRPS,
			Workers: cfg.ActivityWorkers,
		})
		provider := s.provider
		s.health.Register("rpc", health.FromPing("rpc", func(ctx context.Context) error {
			_, err := provider.TransactionCount(ctx, common.Address{})
			return err
		}))
		s.logger.Info("activity checks enabled", "rps", cfg.ActivityRPS)
	}

	if s.backend == nil {
		s.backend = backend.NewClient(backend.Config{
			BaseURL: cfg.SafeAPIURL,
			APIKey:  cfg.SafeAPIKey,
		}, s.logger)
	}

	// Hypernative threat analysis
	if cfg.HypernativeEnabled() {
		s.auth = hypernative.NewAuthenticator(hypernative.OAuthConfig{
			ClientID:    cfg.HypernativeClientID,
			AuthURL:     cfg.HypernativeAuthURL,
			TokenURL:    cfg.HypernativeTokenURL,
			RedirectURL: cfg.HypernativeRedirectURL,
		}, s.tokens)
		if s.threat == nil {
			s.threat = hypernative.NewClient(cfg.HypernativeAPIURL)
		}
		s.logger.Info("hypernative threat analysis enabled")
	}

	descriptions := shield.DefaultDescriptions()
	if cfg.DescriptionsFile != "" {
		d, err := shield.LoadDescriptions(cfg.DescriptionsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load descriptions: %w", err)
		}
		descriptions = d
		s.logger.Info("custom descriptions loaded", "file", cfg.DescriptionsFile)
	}

	// Create realtime hub for WebSocket streaming
	s.realtimeHub = realtime.NewHub(s.logger, cfg.CORSOrigins...)

	s.recorder = verdict.NewRecorder(s.verdicts, s.logger)
	deps := shield.Deps{
		Backend:      s.backend,
		AddressBook:  addressbook.NewChecker(s.book),
		Activity:     activityChecker,
		Verdicts:     s.recorder,
		Publisher:    s.realtimeHub,
		Descriptions: descriptions,
		Logger:       s.logger,
	}
	if s.auth != nil {
		deps.Threat = s.threat
		deps.Tokens = s.tokens
	}
	s.service = shield.NewService(deps)

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

// setupStorage picks Postgres when DATABASE_URL is set, SQLite (address
// book only) when SQLITE_PATH is set, and in-memory stores otherwise.
func (s *Server) setupStorage(ctx context.Context) error {
	switch {
	case s.cfg.DatabaseURL != "":
		db, err := sql.Open("postgres", s.cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}

		// Configure connection pool
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := migrations.Up(ctx, db); err != nil {
			_ = db.Close()
			return fmt.Errorf("failed to run migrations: %w", err)
		}

		s.db = db
		s.book = addressbook.NewPostgresStore(db)
		s.verdicts = verdict.NewPostgresStore(db)
		s.tokens = hypernative.NewPostgresTokenStore(db)
		s.health.Register("database", health.FromPing("database", db.PingContext))
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(s.cfg.DatabaseURL))

	case s.cfg.SQLitePath != "":
		store, err := addressbook.NewSQLiteStore(s.cfg.SQLitePath)
		if err != nil {
			return fmt.Errorf("failed to open sqlite: %w", err)
		}
		if err := store.Migrate(ctx); err != nil {
			_ = store.Close()
			return fmt.Errorf("failed to migrate sqlite: %w", err)
		}

		s.sqlite = store
		s.book = store
		s.verdicts = verdict.NewMemoryStore()
		s.tokens = hypernative.NewMemoryTokenStore()
		s.health.Register("database", health.FromPing("database", store.Ping))
		s.logger.Info("using SQLite address book", "path", s.cfg.SQLitePath)

	default:
		s.book = addressbook.NewMemoryStore()
		s.verdicts = verdict.NewMemoryStore()
		s.tokens = hypernative.NewMemoryTokenStore()
		s.logger.Info("using in-memory storage (data will not persist)")
	}
	return nil
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

	s.router.Use(security.HeadersMiddleware())
	s.router.Use(security.CORSMiddleware(s.cfg.CORSOrigins))
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	s.rateLimiter = ratelimit.New(ratelimit.Config{
		RequestsPerMinute: s.cfg.RateLimitRPM,
		BurstSize:         max(s.cfg.RateLimitRPM/6, 1),
	})
	s.router.Use(s.rateLimiter.Middleware())

	s.router.Use(metrics.Middleware())

	// Request ID, context logger and access log
	s.router.Use(logging.Middleware(s.logger))
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	// Health & metrics endpoints
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	// WebSocket for analysis progress (?safe=0x...&chainId=1)
	s.router.GET("/ws", func(c *gin.Context) {
		s.realtimeHub.HandleWebSocket(c.Writer, c.Request)
	})

	v1 := s.router.Group("/v1", validation.PathParamsMiddleware())

	shield.NewHandler(s.service).RegisterRoutes(v1)
	addressbook.NewHandler(s.book).RegisterRoutes(v1)
	verdict.NewHandler(s.verdicts).RegisterRoutes(v1)
	if s.auth != nil {
		hypernative.NewHandler(s.auth, s.cfg.IsProduction()).RegisterRoutes(v1)
	}

	v1.GET("/info", s.infoHandler)
}

// -----------------------------------------------------------------------------
// Handlers
// -----------------------------------------------------------------------------

// HealthResponse for health check endpoints
type HealthResponse struct {
	Status    string          `json:"status"`
	Version   string          `json:"version"`
	Checks    []health.Status `json:"checks,omitempty"`
	Timestamp string          `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	healthy, checks := s.health.CheckAll(c.Request.Context())

	status := "healthy"
	httpStatus := http.StatusOK
	if !healthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, HealthResponse{
		Status:    status,
		Version:   Version,
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

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
	storage := "memory"
	switch {
	case s.db != nil:
		storage = "postgres"
	case s.sqlite != nil:
		storage = "sqlite"
	}
	circuits := gin.H{}
	if b, ok := s.backend.(circuitReporter); ok {
		circuits["backend"] = b.CircuitState().String()
	}
	if t, ok := s.threat.(circuitReporter); ok && s.auth != nil {
		circuits["hypernative"] = t.CircuitState().String()
	}
	c.JSON(http.StatusOK, gin.H{
		"version":     Version,
		"chainId":     s.cfg.ChainID,
		"storage":     storage,
		"activity":    s.provider != nil,
		"hypernative": s.auth != nil,
		"circuits":    circuits,
		"realtime":    s.realtimeHub.Stats(),
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

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      45 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Channel to catch server errors
	errChan := make(chan error, 1)

	go func() {
		s.logger.Info("starting server", "port", s.cfg.Port, "chain_id", s.cfg.ChainID)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	go s.realtimeHub.Run(runCtx)

	if cleaner, ok := s.tokens.(expiredTokenCleaner); ok {
		go s.cleanupTokens(runCtx, cleaner)
	}

	// Mark as ready after brief delay for startup
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	// Wait for shutdown signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

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

// cleanupTokens purges expired vendor tokens until ctx is cancelled.
func (s *Server) cleanupTokens(ctx context.Context, cleaner expiredTokenCleaner) {
	ticker := time.NewTicker(tokenCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := cleaner.DeleteExpired(ctx)
			if err != nil {
				s.logger.Warn("expired token cleanup failed", "error", err)
				continue
			}
			if n > 0 {
				s.logger.Info("expired tokens removed", "count", n)
			}
		}
	}
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	// Cancel the context for all background goroutines (hub, token cleanup)
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	// Give load balancers time to stop sending traffic
	if s.cfg.IsProduction() {
		time.Sleep(5 * time.Second)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			return err
		}
	}

	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}

	if s.closeRPC != nil {
		s.closeRPC()
	}

	if s.traceShutdown != nil {
		if err := s.traceShutdown(ctx); err != nil {
			s.logger.Error("trace shutdown error", "error", err)
		}
	}

	if err := s.recorder.Close(ctx); err != nil {
		s.logger.Error("verdict writes still pending", "error", err)
	}

	if s.sqlite != nil {
		if err := s.sqlite.Close(); err != nil {
			s.logger.Error("sqlite close error", "error", err)
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
