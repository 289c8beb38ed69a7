/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the storefront server: configuration, logging,
  database, persistence core, services, router, sweeper, and graceful
  shutdown.

STARTUP SEQUENCE:
  1. Parse flags, load config (YAML + env overrides)
  2. Open SQLite and migrate the schema
  3. Build the executor with the HTTP audit context
  4. Self-check entity schemas and seed default roles
  5. Start the HTTP server; close the readiness barrier once listening
  6. Start the sweeper (readiness barrier + settle delay)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections, drain active requests (30s)
  2. Cancel the sweeper
  3. Close the database

SEE ALSO:
  - api/server.go: Router configuration
  - api/sweeper.go: Background cleanup
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"reflect"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/lumen/storefront-core/api"
	"github.com/lumen/storefront-core/catalog"
	"github.com/lumen/storefront-core/config"
	"github.com/lumen/storefront-core/idempotency"
	"github.com/lumen/storefront-core/persist"
	"github.com/lumen/storefront-core/store/sqlite"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	logger := zap.Must(zap.NewProduction()).Sugar()
	defer logger.Sync()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := sqlite.Open(cfg.DB.Path)
	if err != nil {
		logger.Fatalw("failed to open database", "path", cfg.DB.Path, "error", err)
	}
	defer db.Close()

	ex := persist.NewExecutor(db, api.HTTPAuditContext{}, logger)

	// Entity schema defects are programmer errors; surface them now, not
	// on the first request.
	for _, e := range []persist.Entity{
		catalog.Product{}, catalog.Tag{}, catalog.ProductTag{},
		catalog.Order{}, catalog.OrderItem{},
		catalog.Role{}, catalog.Customer{},
		idempotency.Record{},
	} {
		persist.MustDescribe(reflect.TypeOf(e))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := catalog.SeedRoles(ctx, ex, logger); err != nil {
		logger.Fatalw("failed to seed roles", "error", err)
	}

	products := catalog.NewProductService(ex, logger)
	orders := catalog.NewOrderService(ex, products, logger)
	idemStore := idempotency.NewStore(ex, cfg.Idempotency.TTL, logger)

	handler := api.NewHandler(products, orders, logger)
	router := api.NewRouter(handler, idempotency.Middleware(idemStore, logger), cfg.HTTP.AllowedOrigins)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	ready := make(chan struct{})
	sweeper := api.NewSweeper(ex, idemStore, ready, cfg.Sweeper.Interval, cfg.Sweeper.SettleDelay, logger)
	go sweeper.Run(ctx)

	ln, err := net.Listen("tcp", server.Addr)
	if err != nil {
		logger.Fatalw("failed to listen", "addr", server.Addr, "error", err)
	}

	go func() {
		logger.Infow("server starting", "addr", server.Addr)
		close(ready)
		if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
			logger.Fatalw("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorw("server forced to shutdown", "error", err)
	}
	cancel()

	logger.Info("server stopped")
}
