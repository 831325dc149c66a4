/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the leave management server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env + environment), apply flag overrides
  2. Build the zap logger
  3. Open the SQL store and run migrations (DB_AUTO_MIGRATE)
  4. Pick the per-user lock (in-process or Redis)
  5. Wire leave.Service, auth.Service and the API handler
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (overrides PORT)
  -db      Database DSN (overrides DB_DSN)
           Use ":memory:" for an in-memory SQLite database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database and Redis connections
  4. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/leave.db"

  # Run against PostgreSQL with a Redis lock
  DB_DRIVER=postgres DB_DSN=postgres://... LOCK_BACKEND=redis ./server

ENVIRONMENT:
  See config/config.go for every key and its default.

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlstore/sqlstore.go: Database implementation
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

	"github.com/warp/leave-engine/api"
	"github.com/warp/leave-engine/auth"
	"github.com/warp/leave-engine/config"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/logging"
	"github.com/warp/leave-engine/metrics"
	"github.com/warp/leave-engine/store/redislock"
	"github.com/warp/leave-engine/store/sqlstore"
)

func main() {
	// Flags
	port := flag.Int("port", 0, "HTTP server port (overrides PORT)")
	dsn := flag.String("db", "", "Database DSN (overrides DB_DSN)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *port != 0 {
		cfg.Port = *port
	}
	if *dsn != "" {
		cfg.Database.DSN = *dsn
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	logger, err := logging.New(cfg)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	// Initialize store
	store, err := sqlstore.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer store.Close()

	if cfg.Database.AutoMigrate {
		if err := store.Migrate(); err != nil {
			return err
		}
		logger.Info("migrations applied", zap.String("driver", cfg.Database.Driver))
	}

	opts := []leave.Option{leave.WithLogger(logger.Named("leave"))}

	// Per-user lock
	if cfg.Lock.Backend == config.LockRedis {
		client, err := redislock.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return err
		}
		defer client.Close()
		opts = append(opts, leave.WithLocker(redislock.New(client, cfg.Lock.TTL, logger.Named("lock"))))
		logger.Info("using redis lock", zap.String("addr", cfg.Redis.Addr))
	}

	routerOpts := api.RouterOptions{AllowedOrigins: cfg.CORS.AllowedOrigins}
	if cfg.Metrics.Enabled {
		m := metrics.New()
		opts = append(opts, leave.WithRecorder(m))
		routerOpts.Metrics = m
	}

	leaveSvc := leave.NewService(store, leave.Config{
		AllowOverdraft: cfg.Leave.AllowOverdraft,
		DefaultQuota:   cfg.Leave.DefaultAnnualQuota,
	}, opts...)

	validate := auth.NewValidator()
	authSvc := auth.NewService(leaveSvc, validate, logger.Named("auth"), auth.Config{
		Secret:     cfg.JWT.Secret,
		Expiration: cfg.JWT.Expiration,
		Issuer:     cfg.JWT.Issuer,
	})

	// Initialize handler
	handler := api.NewHandler(leaveSvc, authSvc, validate, logger.Named("http"))
	handler.Ping = store.Ping

	// Create router
	router := api.NewRouter(handler, authSvc, routerOpts)

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.Int("port", cfg.Port),
			zap.String("env", cfg.Env),
			zap.String("db_driver", cfg.Database.Driver),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-quit:
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
