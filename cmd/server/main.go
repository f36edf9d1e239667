/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the POS inventory and khata server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env, POS_* environment, then flags)
  2. Build the zap logger
  3. Initialize the store (SQLite or in-memory)
  4. Create metrics, engine and API handler
  5. Optionally seed a demo scenario
  6. Start the low-stock watcher
  7. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (overrides POS_HTTP_PORT)
  -db      SQLite database path (overrides POS_DB_PATH)
  -store   sqlite | memory (overrides POS_STORE)
  -seed    Scenario to load at startup (overrides POS_SEED_SCENARIO)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the low-stock watcher
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection
  5. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/shop.db"

  # Run in memory with demo data
  ./server -store=memory -seed=khata-book

  # Run on different port
  ./server -port=3000

ENVIRONMENT:
  See config/config.go for the full POS_* list.

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/warp/khata-engine/api"
	"github.com/warp/khata-engine/config"
	"github.com/warp/khata-engine/logging"
	"github.com/warp/khata-engine/metrics"
	"github.com/warp/khata-engine/pos"
	"github.com/warp/khata-engine/pos/store"
	"github.com/warp/khata-engine/store/sqlite"
)

// backend is what the server needs from a store.
type backend interface {
	pos.TxStore
	api.Resetter
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Flags
	flag.IntVar(&cfg.HTTPPort, "port", cfg.HTTPPort, "HTTP server port")
	flag.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database path")
	flag.StringVar(&cfg.Store, "store", cfg.Store, "Store backend (sqlite or memory)")
	flag.StringVar(&cfg.SeedScenario, "seed", cfg.SeedScenario, "Scenario to load at startup")
	flag.Parse()

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	// Initialize store
	var (
		db     backend
		health api.Pinger
	)
	switch cfg.Store {
	case config.StoreMemory:
		db = store.NewTxMemory()
	default:
		s, err := sqlite.New(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		defer s.Close()
		db, health = s, s
	}

	m := metrics.New(nil, "")
	engine := pos.NewEngine(db,
		pos.WithPolicy(cfg.Policy),
		pos.WithLogger(logger),
		pos.WithObserver(m),
		pos.WithLocation(loc),
	)

	// Initialize handler
	handler := api.NewHandler(engine, db, loc)

	if cfg.SeedScenario != "" {
		ctx := logging.WithLogger(context.Background(), logger)
		if err := handler.LoadScenarioByID(ctx, cfg.SeedScenario); err != nil {
			return fmt.Errorf("failed to seed scenario %q: %w", cfg.SeedScenario, err)
		}
	}

	watcher := api.NewLowStockWatcher(engine, m, logger.Named("low_stock"), cfg.AlertInterval)
	watcher.Start()
	defer watcher.Stop()

	// Create router
	router := api.NewRouter(handler, api.RouterOptions{
		Logger:  logger,
		Metrics: m.Handler(),
		Health:  health,
	})

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.Int("port", cfg.HTTPPort),
			zap.String("store", cfg.Store),
			zap.Bool("enforce_credit_limit", cfg.Policy.EnforceCreditLimit),
			zap.Bool("reject_overpayment", cfg.Policy.RejectOverpayment),
			zap.Bool("require_full_payment", cfg.Policy.RequireFullPayment),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}
