/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the EnglishHop marketplace server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (env vars, optional .env file)
  2. Build the logger for the environment
  3. Open the store (SQLite when DB_PATH is set, in-memory otherwise)
  4. Create API handler with dependencies
  5. Configure HTTP router
  6. Start server with graceful shutdown

ENVIRONMENT:
  PORT        HTTP server port (default: 8080)
  DB_PATH     SQLite database path; empty runs the in-memory store
  ENV         "development" (default) or "production"
  JWT_SECRET  Token signing secret; required in production

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close the store
  4. Exit

EXAMPLES:
  # Run against a file database
  DB_PATH=./data/marketplace.db ./server

  # Run fully in memory with live change streaming
  ./server

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/englishhop/marketplace/api"
	"github.com/englishhop/marketplace/auth"
	"github.com/englishhop/marketplace/config"
	"github.com/englishhop/marketplace/market"
	memstore "github.com/englishhop/marketplace/market/store"
	"github.com/englishhop/marketplace/store/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log := config.NewLogger(cfg.Env)
	defer log.Sync()

	// Initialize store
	var (
		store  market.TxStore
		closer func() error
	)
	if cfg.DBPath != "" {
		s, err := sqlite.New(cfg.DBPath)
		if err != nil {
			log.Fatal("failed to open database", zap.String("path", cfg.DBPath), zap.Error(err))
		}
		store = s
		closer = s.Close
		log.Info("using sqlite store", zap.String("path", cfg.DBPath))
	} else {
		store = memstore.NewMemory()
		closer = func() error { return nil }
		log.Info("using in-memory store")
	}
	defer closer()

	// Wire services
	authMgr := auth.NewManager([]byte(cfg.JWTSecret), &market.Directory{Store: store})
	handler := api.NewHandler(store, authMgr, log)
	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info("server starting",
			zap.Int("port", cfg.Port),
			zap.String("env", cfg.Env))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}
