package main

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/evalcore/evalcore/api/handlers"
	"github.com/evalcore/evalcore/config"
	"github.com/evalcore/evalcore/connector"
	"github.com/evalcore/evalcore/conversation"
	"github.com/evalcore/evalcore/definition"
	"github.com/evalcore/evalcore/evaluator"
	"github.com/evalcore/evalcore/execution"
	"github.com/evalcore/evalcore/internal/database"
	"github.com/evalcore/evalcore/internal/metrics"
	"github.com/evalcore/evalcore/internal/server"
	"github.com/evalcore/evalcore/internal/telemetry"
	"github.com/evalcore/evalcore/orchestrator"
	"github.com/evalcore/evalcore/queue"
	"github.com/evalcore/evalcore/runner"
)

// Server wires the Definition Store, Execution Store, Model Connector,
// Evaluator Registry, Runner and Orchestrator into an HTTP API plus a
// background worker pool.
type Server struct {
	cfg        *config.Config
	configPath string
	logger     *zap.Logger
	telemetry  *telemetry.Providers
	db         *gorm.DB

	httpManager    *server.Manager
	metricsManager *server.Manager

	pool   *database.PoolManager
	defs   *definition.Store
	execs  *execution.Store
	conn   *connector.Client
	orch   *orchestrator.Orchestrator
	rdb    *redis.Client

	healthHandler    *handlers.HealthHandler
	suiteHandler     *handlers.SuiteHandler
	executionHandler *handlers.ExecutionHandler

	metricsCollector *metrics.Collector

	hotReloadManager *config.HotReloadManager
	configAPIHandler *config.ConfigAPIHandler

	rateLimiterCancel context.CancelFunc
	workerCancel      context.CancelFunc

	wg sync.WaitGroup
}

// NewServer creates a new server instance bound to cfg.
func NewServer(cfg *config.Config, configPath string, logger *zap.Logger, providers *telemetry.Providers, db *gorm.DB) *Server {
	return &Server{
		cfg:        cfg,
		configPath: configPath,
		logger:     logger,
		telemetry:  providers,
		db:         db,
	}
}

// Start initializes every component and starts both the HTTP and metrics
// servers. The background worker pool is started separately via
// StartWorkers, since a deployment may run API-only or worker-only nodes.
func (s *Server) Start() error {
	s.metricsCollector = metrics.NewCollector("evalcore", s.logger)

	if err := s.initStores(); err != nil {
		return fmt.Errorf("failed to init stores: %w", err)
	}

	if err := s.initHandlers(); err != nil {
		return fmt.Errorf("failed to init handlers: %w", err)
	}

	if err := s.initHotReloadManager(); err != nil {
		return fmt.Errorf("failed to init hot reload manager: %w", err)
	}

	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	s.logger.Info("All servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.Bool("hot_reload_enabled", s.configPath != ""),
	)

	return nil
}

// initStores builds the Definition Store, Execution Store, Model
// Connector, Evaluator Registry, Runner and Orchestrator over the shared
// database connection and Redis client.
func (s *Server) initStores() error {
	if s.db == nil {
		return fmt.Errorf("database connection required")
	}

	pool, err := database.NewPoolManager(s.db, database.PoolConfig{
		MaxIdleConns:        s.cfg.Database.MaxIdleConns,
		MaxOpenConns:        s.cfg.Database.MaxOpenConns,
		ConnMaxLifetime:     s.cfg.Database.ConnMaxLifetime,
		HealthCheckInterval: 30 * time.Second,
	}, s.logger)
	if err != nil {
		return fmt.Errorf("init pool manager: %w", err)
	}
	s.pool = pool

	s.defs = definition.NewStore(pool, s.logger)
	s.execs = execution.NewStore(pool, s.logger)

	transport := connector.NewHTTPTransport(connector.HTTPTransportConfig{
		ProviderName: s.cfg.Connector.ProviderName,
		APIKey:       s.cfg.Connector.APIKey,
		BaseURL:      s.cfg.Connector.BaseURL,
		Timeout:      s.cfg.Connector.Timeout,
	})
	s.conn = connector.NewClient(transport, connector.ClientConfig{
		RateRPS:   s.cfg.Connector.RateRPS,
		RateBurst: s.cfg.Connector.RateBurst,
		MetricsNS: "evalcore",
	}, s.logger)

	evaluator.RegisterDefaults(s.conn, s.cfg.Connector.ProviderName)

	s.rdb = redis.NewClient(&redis.Options{
		Addr:         s.cfg.Redis.Addr,
		Password:     s.cfg.Redis.Password,
		DB:           s.cfg.Redis.DB,
		PoolSize:     s.cfg.Redis.PoolSize,
		MinIdleConns: s.cfg.Redis.MinIdleConns,
	})
	q := queue.New(s.rdb, s.cfg.Redis.QueueKeyPrefix, s.logger)

	conv := conversation.NewConnectorAdapter(s.conn)
	broadcaster := runner.NewBroadcaster(256)
	run := runner.New(s.execs, conv, runner.DefaultConfig(), broadcaster, s.logger)

	s.orch = orchestrator.New(s.defs, s.execs, run, q, orchestrator.Config{
		PerExecutionConcurrency: s.cfg.Orchestrator.PerExecutionConcurrency,
		VisibilityTimeout:       s.cfg.Orchestrator.VisibilityTimeout,
		PollInterval:            s.cfg.Orchestrator.PollInterval,
		CircuitOpen:             func() bool { return false },
	}, s.logger)

	return nil
}

func (s *Server) initHandlers() error {
	s.healthHandler = handlers.NewHealthHandler(s.logger)
	if s.pool != nil {
		s.healthHandler.RegisterCheck(handlers.NewDatabaseHealthCheck("postgres", s.pool.Ping))
	}
	if s.rdb != nil {
		s.healthHandler.RegisterCheck(handlers.NewRedisHealthCheck("redis", func(ctx context.Context) error {
			return s.rdb.Ping(ctx).Err()
		}))
	}

	s.suiteHandler = handlers.NewSuiteHandler(s.defs, s.logger)
	s.executionHandler = handlers.NewExecutionHandler(s.orch, s.execs, s.logger)

	s.logger.Info("Handlers initialized")
	return nil
}

func (s *Server) initHotReloadManager() error {
	opts := []config.HotReloadOption{
		config.WithHotReloadLogger(s.logger),
	}
	if s.configPath != "" {
		opts = append(opts, config.WithConfigPath(s.configPath))
	}

	s.hotReloadManager = config.NewHotReloadManager(s.cfg, opts...)
	s.hotReloadManager.OnChange(func(change config.ConfigChange) {
		s.logger.Info("Configuration changed",
			zap.String("path", change.Path),
			zap.String("source", change.Source),
			zap.Bool("requires_restart", change.RequiresRestart),
		)
	})
	s.hotReloadManager.OnReload(func(oldConfig, newConfig *config.Config) {
		s.logger.Info("Configuration reloaded")
		s.cfg = newConfig
	})

	if err := s.hotReloadManager.Start(context.Background()); err != nil {
		return fmt.Errorf("failed to start hot reload manager: %w", err)
	}

	s.configAPIHandler = config.NewConfigAPIHandler(s.hotReloadManager)
	return nil
}

// startHTTPServer wires every route named by the evaluation API and the
// shared middleware chain, then starts listening.
func (s *Server) startHTTPServer() error {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.healthHandler.HandleHealth)
	mux.HandleFunc("/healthz", s.healthHandler.HandleHealthz)
	mux.HandleFunc("/ready", s.healthHandler.HandleReady)
	mux.HandleFunc("/readyz", s.healthHandler.HandleReady)
	mux.HandleFunc("/version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))

	mux.HandleFunc("POST /api/v1/evaluation/suites", s.suiteHandler.Create)
	mux.HandleFunc("GET /api/v1/evaluation/suites", s.suiteHandler.List)
	mux.HandleFunc("POST /api/v1/evaluation/suites/{suite_id}/evals", s.suiteHandler.AddCase)
	mux.HandleFunc("GET /api/v1/evaluation/suites/{suite_id}/versions/{v1}/diff/{v2}", s.suiteHandler.CompareVersions)
	mux.HandleFunc("POST /api/v1/evaluation/suites/{suite_id}/versions/{version}/restore", s.suiteHandler.Restore)
	mux.HandleFunc("POST /api/v1/evaluation/suites/{suite_id}/execute", s.executionHandler.Start)
	mux.HandleFunc("GET /api/v1/evaluation/executions/{execution_id}/status", s.executionHandler.Status)
	mux.HandleFunc("GET /api/v1/evaluation/executions/{execution_id}/summary", s.executionHandler.Summary)
	mux.HandleFunc("POST /api/v1/evaluation/executions/{execution_id}/cancel", s.executionHandler.Cancel)
	mux.HandleFunc("GET /api/v1/evaluation/executions/{execution_id}/events", s.executionHandler.Events)
	s.logger.Info("Evaluation API routes registered")

	if s.configAPIHandler != nil {
		configAuth := config.NewConfigAPIMiddleware(s.configAPIHandler, s.getFirstAPIKey())
		mux.HandleFunc("/api/v1/config", configAuth.RequireAuth(s.configAPIHandler.HandleConfig))
		mux.HandleFunc("/api/v1/config/reload", configAuth.RequireAuth(s.configAPIHandler.HandleReload))
		mux.HandleFunc("/api/v1/config/fields", configAuth.RequireAuth(s.configAPIHandler.HandleFields))
		mux.HandleFunc("/api/v1/config/changes", configAuth.RequireAuth(s.configAPIHandler.HandleChanges))
		s.logger.Info("Configuration API registered with authentication")
	}

	skipAuthPaths := []string{"/health", "/healthz", "/ready", "/readyz", "/version", "/metrics"}
	rateLimiterCtx, rateLimiterCancel := context.WithCancel(context.Background())
	s.rateLimiterCancel = rateLimiterCancel

	handler := Chain(mux,
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(s.logger),
		MetricsMiddleware(s.metricsCollector),
		CORS(s.cfg.Server.CORSAllowedOrigins),
		RateLimiter(rateLimiterCtx, s.cfg.Server.RateLimitRPS, s.cfg.Server.RateLimitBurst, s.logger),
		JWTAuth(s.cfg.JWT, skipAuthPaths, s.logger),
	)

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     2 * s.cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.httpManager = server.NewManager(handler, serverConfig, s.logger)
	if err := s.httpManager.Start(); err != nil {
		return err
	}

	s.logger.Info("HTTP server started", zap.Int("port", s.cfg.Server.HTTPPort))
	return nil
}

func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.metricsManager = server.NewManager(mux, serverConfig, s.logger)
	if err := s.metricsManager.Start(); err != nil {
		return err
	}

	s.logger.Info("Metrics server started", zap.Int("port", s.cfg.Server.MetricsPort))
	return nil
}

// StartWorkers launches n goroutines each running the Orchestrator's
// dispatch loop against a worker Context Facade, for nodes deployed to
// drain the execution queue rather than serve HTTP.
func (s *Server) StartWorkers(n int) {
	if s.orch == nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.workerCancel = cancel
	for i := 0; i < n; i++ {
		workerID := fmt.Sprintf("worker-%d", i)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.orch.RunWorker(ctx, workerID)
		}()
	}
	s.logger.Info("Worker pool started", zap.Int("workers", n))
}

func (s *Server) getFirstAPIKey() string {
	if len(s.cfg.Server.APIKeys) > 0 {
		return s.cfg.Server.APIKeys[0]
	}
	return ""
}

// WaitForShutdown waits for a termination signal and then shuts down.
func (s *Server) WaitForShutdown() {
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown()
	}
	s.Shutdown()
}

// Shutdown gracefully tears down every running component.
func (s *Server) Shutdown() {
	s.logger.Info("Starting graceful shutdown...")

	ctx := context.Background()

	if s.workerCancel != nil {
		s.workerCancel()
	}
	if s.rateLimiterCancel != nil {
		s.rateLimiterCancel()
	}

	if s.hotReloadManager != nil {
		if err := s.hotReloadManager.Stop(); err != nil {
			s.logger.Error("Hot reload manager shutdown error", zap.Error(err))
		}
	}

	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}

	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("Metrics server shutdown error", zap.Error(err))
		}
	}

	if s.rdb != nil {
		if err := s.rdb.Close(); err != nil {
			s.logger.Error("Redis client close error", zap.Error(err))
		}
	}

	if s.telemetry != nil {
		if err := s.telemetry.Shutdown(ctx); err != nil {
			s.logger.Error("Telemetry shutdown error", zap.Error(err))
		}
	}

	s.wg.Wait()

	s.logger.Info("Graceful shutdown completed")
}
