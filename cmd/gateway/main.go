// Command gateway starts the authenticating front door.
//
// Clients present an API key; the gateway resolves it to a principal, applies
// the key's rate limit, and proxies to the searcher and ingestion services
// with X-Principal pinned to that principal.
//
// Usage:
//
//	go run ./cmd/gateway [-config configs/gateway.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/entity-search/internal/auth/apikey"
	"github.com/Adithya-Monish-Kumar-K/entity-search/internal/auth/ratelimit"
	gwhandler "github.com/Adithya-Monish-Kumar-K/entity-search/internal/gateway/handler"
	"github.com/Adithya-Monish-Kumar-K/entity-search/internal/gateway/router"
	"github.com/Adithya-Monish-Kumar-K/entity-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/entity-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/entity-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/entity-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/entity-search/pkg/postgres"
)

func main() {
	configPath := flag.String("config", "configs/gateway.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting gateway service",
		"port", cfg.Gateway.Port,
		"searcher_url", cfg.Gateway.SearcherURL,
		"ingestion_url", cfg.Gateway.IngestionURL,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(nil)
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer("gateway", cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
	}

	db, err := postgres.New(ctx, cfg.Postgres)
	if err != nil {
		slog.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	store := apikey.NewPostgresStore(db)
	if err := store.EnsureSchema(ctx); err != nil {
		slog.Error("failed to prepare key table", "error", err)
		os.Exit(1)
	}
	validator := apikey.NewValidator(store, cfg.Gateway.KeyCacheSize, cfg.Gateway.KeyCacheTTL)

	limiter := ratelimit.New(cfg.Gateway.RateLimitWindow)
	go limiter.Run(ctx)

	h, err := gwhandler.New(gwhandler.Config{
		SearcherURL:  cfg.Gateway.SearcherURL,
		IngestionURL: cfg.Gateway.IngestionURL,
	})
	if err != nil {
		slog.Error("invalid backend url", "error", err)
		os.Exit(1)
	}

	checker := health.NewChecker()
	checker.Register("searcher", h.SearcherCheck)
	checker.Register("postgres", db.Check)

	chain := router.New(router.Config{
		DefaultRateLimit: cfg.Gateway.DefaultRateLimit,
		AllowedOrigins:   cfg.Gateway.AllowedOrigins,
	}, h, checker, validator, limiter, m)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Gateway.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("gateway service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("gateway service stopped")
}
