// =============================================================================
// evalcore entry point
// =============================================================================
// Serves the evaluation orchestration HTTP API, drains the execution
// queue with a background worker pool, and runs database migrations.
//
// Usage:
//
//	evalcore serve                       # start the HTTP API
//	evalcore serve --config config.yaml  # specify a config file
//	evalcore worker                      # drain the execution queue only
//	evalcore version                     # print version information
//	evalcore health                      # check server health
//	evalcore migrate up                  # apply pending migrations
//	evalcore migrate down                # roll back the last migration
//	evalcore migrate status              # show migration status
// =============================================================================

// @title evalcore API
// @version 1.0.0
// @description evalcore is an evaluation orchestration service: define
// @description versioned test suites, run them against a target
// @description conversation system, and track per-evaluator pass rates.
// @description
// @description ## Features
// @description - Suite and test-case definition with version history
// @description - Asynchronous execution over a Redis-backed work queue
// @description - Streaming progress via SSE
// @description - Health monitoring and metrics

// @contact.name evalcore

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /
// @schemes http https

// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key
// @description API key for authentication

package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/evalcore/evalcore/config"
	"github.com/evalcore/evalcore/definition"
	"github.com/evalcore/evalcore/execution"
	"github.com/evalcore/evalcore/internal/telemetry"
)

// =============================================================================
// Version info (build-time injected)
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// =============================================================================
// Main
// =============================================================================

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		runServe(os.Args[2:])
	case "worker":
		runWorker(os.Args[2:])
	case "migrate":
		runMigrate(os.Args[2:])
	case "version":
		printVersion()
	case "health":
		runHealthCheck(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// =============================================================================
// serve command
// =============================================================================

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	fs.Parse(args)

	cfg, logger := loadConfigAndLogger(*configPath)
	defer logger.Sync()

	logger.Info("Starting evalcore",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	otelProviders, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}

	db, err := openDatabase(cfg.Database, logger)
	if err != nil {
		logger.Fatal("Database connection required for serve", zap.Error(err))
	}
	if err := autoMigrateDomainModels(db); err != nil {
		logger.Fatal("Domain model auto-migrate failed", zap.Error(err))
	}

	server := NewServer(cfg, *configPath, logger, otelProviders, db)

	if err := server.Start(); err != nil {
		logger.Fatal("Failed to start server", zap.Error(err))
	}
	server.StartWorkers(cfg.Orchestrator.Workers)

	server.WaitForShutdown()

	logger.Info("evalcore stopped")
}

// =============================================================================
// worker command
// =============================================================================

// runWorker starts the Orchestrator's worker pool without serving the
// HTTP API, for nodes dedicated to draining the execution queue.
func runWorker(args []string) {
	fs := flag.NewFlagSet("worker", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	fs.Parse(args)

	cfg, logger := loadConfigAndLogger(*configPath)
	defer logger.Sync()

	logger.Info("Starting evalcore worker",
		zap.String("version", Version),
		zap.Int("workers", cfg.Orchestrator.Workers),
	)

	otelProviders, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}

	db, err := openDatabase(cfg.Database, logger)
	if err != nil {
		logger.Fatal("Database connection required for worker", zap.Error(err))
	}
	if err := autoMigrateDomainModels(db); err != nil {
		logger.Fatal("Domain model auto-migrate failed", zap.Error(err))
	}

	server := NewServer(cfg, *configPath, logger, otelProviders, db)
	if err := server.initStores(); err != nil {
		logger.Fatal("Failed to init stores", zap.Error(err))
	}
	server.StartWorkers(cfg.Orchestrator.Workers)

	waitForSignal()
	server.Shutdown()

	logger.Info("evalcore worker stopped")
}

// waitForSignal blocks until SIGINT or SIGTERM is received, mirroring
// internal/server.Manager.WaitForShutdown for processes that don't run an
// HTTP server of their own.
func waitForSignal() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)
	<-quit
}

func loadConfigAndLogger(configPath string) (*config.Config, *zap.Logger) {
	loader := config.NewLoader()
	if configPath != "" {
		loader = loader.WithConfigPath(configPath)
	}

	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	return cfg, initLogger(cfg.Log)
}

// autoMigrateDomainModels ensures the Definition and Execution Store
// tables exist. Column-level evolution beyond creation is handled by
// the versioned SQL migrations under internal/migration, not here.
func autoMigrateDomainModels(db *gorm.DB) error {
	return db.AutoMigrate(
		&definition.Suite{},
		&definition.SuiteVersion{},
		&definition.TestCase{},
		&definition.TestCaseVersion{},
		&execution.Execution{},
		&execution.CaseResult{},
	)
}

// =============================================================================
// health command
// =============================================================================

func runHealthCheck(args []string) {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	addr := fs.String("addr", "http://localhost:8080", "Server address")
	fs.Parse(args)

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(*addr + "/health")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Health check failed: status %d\n", resp.StatusCode)
		os.Exit(1)
	}

	fmt.Println("OK")
}

// =============================================================================
// Version and help
// =============================================================================

func printVersion() {
	fmt.Printf("evalcore %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`evalcore - Evaluation Orchestration Core

Usage:
  evalcore <command> [options]

Commands:
  serve     Start the evalcore HTTP API and worker pool
  worker    Start only the execution-queue worker pool
  migrate   Database migration commands
  version   Show version information
  health    Check server health
  help      Show this help message

Options for 'serve' and 'worker':
  --config <path>   Path to configuration file (YAML)

Migration subcommands:
  migrate up        Apply all pending migrations
  migrate down      Rollback the last migration
  migrate status    Show migration status
  migrate version   Show current migration version
  migrate goto <v>  Migrate to a specific version
  migrate force <v> Force set migration version
  migrate reset     Rollback all migrations

Examples:
  evalcore serve
  evalcore serve --config /etc/evalcore/config.yaml
  evalcore worker --config /etc/evalcore/config.yaml
  evalcore migrate up
  evalcore migrate status
  evalcore health --addr http://localhost:8080
  evalcore version`)
}

// =============================================================================
// Logger initialization
// =============================================================================

func initLogger(cfg config.LogConfig) *zap.Logger {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      cfg.Format == "console",
		Encoding:         cfg.Format,
		EncoderConfig:    encoderConfig,
		OutputPaths:      cfg.OutputPaths,
		ErrorOutputPaths: []string{"stderr"},
	}

	if cfg.Format == "console" {
		zapConfig.Encoding = "console"
	} else {
		zapConfig.Encoding = "json"
	}

	logger, err := zapConfig.Build(
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
	if err != nil {
		logger, _ = zap.NewProduction()
	}

	return logger
}

// openDatabase opens a database connection from config.
func openDatabase(dbCfg config.DatabaseConfig, logger *zap.Logger) (*gorm.DB, error) {
	if dbCfg.Driver == "" {
		return nil, fmt.Errorf("database driver not configured")
	}

	var dialector gorm.Dialector
	switch dbCfg.Driver {
	case "postgres":
		dialector = postgres.Open(dbCfg.DSN())
	default:
		return nil, fmt.Errorf("unsupported database driver: %s (supported: postgres)", dbCfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	logger.Info("Database connected", zap.String("driver", dbCfg.Driver))
	return db, nil
}
