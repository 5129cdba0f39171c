// Command ingestion starts the content change ingestion HTTP service.
//
// The service accepts change events via POST /api/v1/events, validates them,
// and publishes them to the content change topic keyed by creator, where the
// searcher's consumer picks them up.
//
// Usage:
//
//	go run ./cmd/ingestion [-config configs/ingestion.yaml]
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

	"github.com/Adithya-Monish-Kumar-K/entity-search/internal/ingestion/handler"
	"github.com/Adithya-Monish-Kumar-K/entity-search/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/entity-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/entity-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/entity-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/entity-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/entity-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/entity-search/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/entity-search/pkg/resilience"
)

func main() {
	configPath := flag.String("config", "configs/ingestion.yaml", "path to config file")
	flag.Parse()
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting ingestion service", "port", cfg.Server.Port)

	m := metrics.New(nil)
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer("ingestion", cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
	}

	topic := cfg.Kafka.Topics.ContentChanges
	producer := kafka.NewProducer(cfg.Kafka, topic)
	defer producer.Close()
	slog.Info("kafka producer initialized", "topic", topic, "brokers", cfg.Kafka.Brokers)

	pub := publisher.New(producer, resilience.RetryConfig{})
	h := handler.New(pub)

	checker := health.NewChecker()
	checker.Register("kafka", func(context.Context) health.ComponentHealth {
		if len(cfg.Kafka.Brokers) == 0 {
			return health.Down("no brokers configured")
		}
		return health.Up(topic)
	})

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/events", h.Events)
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	chain = middleware.Metrics(m)(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()
	slog.Info("ingestion service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("ingestion service stopped")
}
