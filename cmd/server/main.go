/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the parcel engine server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env, environment, flags)
  2. Open the store (SQLite or Postgres)
  3. Pick the entity locker (Redis when REDIS_ADDR is set, else in-process)
  4. Register Prometheus metrics
  5. Create API handler and router
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port, overrides PORT
  -db      SQLite database path, overrides DB_PATH
           Use ":memory:" for in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close Redis and database connections
  4. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/parcel.db"

  # Run against Postgres with a shared Redis lock
  DB_DRIVER=postgres DB_HOST=db REDIS_ADDR=redis:6379 ./server

SEE ALSO:
  - config/config.go: Environment variables
  - api/server.go: Router configuration
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/warp/parcel-engine/api"
	"github.com/warp/parcel-engine/config"
	"github.com/warp/parcel-engine/lock"
	"github.com/warp/parcel-engine/metrics"
	"github.com/warp/parcel-engine/parcel"
	"github.com/warp/parcel-engine/store/postgres"
	"github.com/warp/parcel-engine/store/sqlite"
)

type backend interface {
	api.Backend
	Ping(ctx context.Context) error
	Close() error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	port := flag.Int("port", cfg.Port, "HTTP server port")
	dbPath := flag.String("db", cfg.DBPath, "SQLite database path")
	flag.Parse()
	cfg.Port, cfg.DBPath = *port, *dbPath

	logger := config.NewLogger(cfg.LogLevel, cfg.LogFormat)

	store, err := openStore(cfg)
	if err != nil {
		logger.WithField("driver", cfg.DBDriver).Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	deps := parcel.Deps{Log: logger, Now: time.Now}
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer rdb.Close()

		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			logger.WithField("addr", cfg.RedisAddr).Fatalf("Failed to reach redis: %v", err)
		}
		deps.Locker = lock.NewRedis(rdb, cfg.LockTTL, logger)
		logger.WithField("addr", cfg.RedisAddr).Info("using redis entity lock")
	} else {
		deps.Locker = lock.NewLocal()
	}

	metrics.Register(prometheus.DefaultRegisterer)

	handler := api.NewHandler(store, deps)
	router := api.NewRouter(handler, cfg.CORSOrigins)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.WithFields(logrus.Fields{
			"port":   cfg.Port,
			"driver": cfg.DBDriver,
		}).Info("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
		return
	}
	logger.Info("server stopped")
}

func openStore(cfg config.Config) (backend, error) {
	var (
		store backend
		err   error
	)
	switch cfg.DBDriver {
	case config.DriverPostgres:
		store, err = postgres.New(cfg.PostgresDSN())
	default:
		store, err = sqlite.New(cfg.DBPath)
	}
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := store.Ping(ctx); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}
