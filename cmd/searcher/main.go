// Command searcher serves entity-scoped content search.
//
// It consumes content changes from Kafka (and POST /api/v1/events) into the
// index agent, keeps one catalog per entity and content type, loads the
// static book packages, and answers GET /api/v1/search over both.
//
// Usage:
//
//	go run ./cmd/searcher [-config configs/development.yaml]
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
	"time"

	"github.com/Adithya-Monish-Kumar-K/entity-search/internal/access"
	"github.com/Adithya-Monish-Kumar-K/entity-search/internal/agent"
	"github.com/Adithya-Monish-Kumar-K/entity-search/internal/bookindex"
	"github.com/Adithya-Monish-Kumar-K/entity-search/internal/entity"
	"github.com/Adithya-Monish-Kumar-K/entity-search/internal/indexer/catalog"
	"github.com/Adithya-Monish-Kumar-K/entity-search/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/entity-search/internal/ingestion"
	ingesthandler "github.com/Adithya-Monish-Kumar-K/entity-search/internal/ingestion/handler"
	"github.com/Adithya-Monish-Kumar-K/entity-search/internal/intid"
	"github.com/Adithya-Monish-Kumar-K/entity-search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/entity-search/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/entity-search/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/entity-search/internal/searcher/unified"
	"github.com/Adithya-Monish-Kumar-K/entity-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/entity-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/entity-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/entity-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/entity-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/entity-search/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/entity-search/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/entity-search/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/entity-search/pkg/tracing"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	tracing.Configure(cfg.Tracing.Enabled, cfg.Tracing.SampleRate)
	slog.Info("starting search service", "port", cfg.Server.Port, "identity", cfg.Identity.Backend)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(nil)
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer("searcher", cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
	}

	rank, err := ranker.New(cfg.Search.Ranker)
	if err != nil {
		slog.Error("invalid ranker", "error", err)
		os.Exit(1)
	}

	checker := health.NewChecker()
	resolver, closeResolver, err := newResolver(ctx, cfg, m, checker)
	if err != nil {
		slog.Error("failed to create identity resolver", "error", err)
		os.Exit(1)
	}
	defer closeResolver()

	grants := access.NewGrants()
	manager := entity.NewManager(entity.Config{
		NgramMinSize:   cfg.Indexer.NgramMinSize,
		NgramMaxSize:   cfg.Indexer.NgramMaxSize,
		Namespace:      cfg.Identity.Namespace,
		Ranker:         rank,
		SnippetBefore:  cfg.Search.SnippetBefore,
		SnippetAfter:   cfg.Search.SnippetAfter,
		CatalogTimeout: cfg.Search.TimeoutPerCatalog,
	}, catalog.DefaultRegistry(), resolver, grants, m)

	library := bookindex.NewLibrary(bookindex.Config{
		DataDir:       cfg.Books.DataDir,
		NgramMinSize:  cfg.Indexer.NgramMinSize,
		NgramMaxSize:  cfg.Indexer.NgramMaxSize,
		Ranker:        rank,
		SnippetBefore: cfg.Search.SnippetBefore,
		SnippetAfter:  cfg.Search.SnippetAfter,
	}, grants, m)
	loaded, err := library.Load(ctx)
	if err != nil {
		slog.Error("failed to load book packages", "error", err)
		os.Exit(1)
	}
	// published packages are readable by everyone
	for _, pkg := range library.Packages() {
		grants.Allow(pkg, access.Everyone)
	}
	slog.Info("book packages loaded", "count", loaded, "data_dir", cfg.Books.DataDir)
	checker.Register("books", func(context.Context) health.ComponentHealth {
		n := len(library.Packages())
		if n == 0 {
			return health.Degraded("no book packages loaded")
		}
		return health.Up(fmt.Sprintf("%d packages", n))
	})

	var queryCache *cache.QueryCache
	redisClient, err := pkgredis.NewClient(cfg.Redis)
	if err != nil {
		slog.Warn("redis unavailable, search caching disabled", "error", err)
	} else {
		defer redisClient.Close()
		queryCache = cache.New(redisClient, cfg.Redis.CacheTTL, m)
		slog.Info("search cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
	}
	checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
		if redisClient == nil {
			return health.Degraded("not configured")
		}
		if err := redisClient.Ping(ctx); err != nil {
			return health.Degraded(err.Error())
		}
		return health.Up("")
	})

	indexAgent := agent.New(agent.Config{
		Workers:      cfg.Indexer.AgentWorkers,
		WorkerBuffer: cfg.Indexer.AgentWorkerBuffer,
		OnApplied: func(ev ingestion.IndexEvent) {
			if queryCache != nil {
				queryCache.InvalidateEvent(context.Background(), ev)
			}
		},
	}, manager, m)
	indexAgent.Start(ctx)
	checker.Register("index_agent", func(context.Context) health.ComponentHealth {
		if indexAgent.State() != agent.Running {
			return health.Down(indexAgent.State().String())
		}
		return health.Up(fmt.Sprintf("%d pending", indexAgent.Pending()))
	})

	if cfg.Kafka.Enabled {
		kc := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.ContentChanges, consumer.HandleMessage(indexAgent))
		defer kc.Close()
		ic := consumer.New(kc)
		go func() {
			if err := ic.Start(ctx); err != nil {
				slog.Error("content change consumer stopped", "error", err)
			}
		}()
		checker.Register("kafka", func(context.Context) health.ComponentHealth {
			return health.Up(fmt.Sprintf("lag %d", kc.Lag()))
		})
		slog.Info("content change consumer started", "topic", cfg.Kafka.Topics.ContentChanges)
	}

	go maintain(ctx, manager, cfg.Indexer.MaintenanceInterval)

	var searchCache unified.Cache
	if queryCache != nil {
		searchCache = queryCache
	}
	svc := unified.New(unified.Config{MaxResults: cfg.Search.MaxResults}, manager, library, searchCache, m)
	h := handler.New(svc, library, queryCache, handler.Config{
		DefaultLimit: cfg.Search.DefaultLimit,
		MaxResults:   cfg.Search.MaxResults,
	})
	events := ingesthandler.New(indexAgent)

	mux := http.NewServeMux()
	h.Register(mux)
	mux.HandleFunc("POST /api/v1/events", events.Events)
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

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
		summary, err := indexAgent.Close(shutdownCtx)
		if err != nil {
			slog.Error("index agent did not drain", "error", err, "pending", indexAgent.Pending())
		}
		slog.Info("index agent stopped",
			"accepted", summary.Accepted,
			"applied", summary.Applied,
			"failed", summary.Failed,
			"rejected", summary.Rejected,
		)
	}()

	slog.Info("search service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	<-ctx.Done()
	slog.Info("search service stopped")
}

func newResolver(ctx context.Context, cfg *config.Config, m *metrics.Metrics, checker *health.Checker) (intid.Resolver, func(), error) {
	if cfg.Identity.Backend != "postgres" {
		return intid.NewRegistry(cfg.Identity.Namespace, 1), func() {}, nil
	}
	db, err := postgres.New(ctx, cfg.Postgres)
	if err != nil {
		return nil, nil, err
	}
	resolver, err := intid.NewPostgresResolver(db, cfg.Identity.CacheSize, m)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	if err := resolver.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	checker.Register("postgres", db.Check)
	slog.Info("connected to postgres", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
	return resolver, func() { db.Close() }, nil
}

// maintain prunes dangling doc ids on a fixed interval.
func maintain(ctx context.Context, manager *entity.Manager, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pruned, err := manager.Maintain(ctx)
			if err != nil {
				slog.Warn("maintenance interrupted", "pruned", pruned, "error", err)
				continue
			}
			slog.Info("maintenance completed", "pruned", pruned, "entities", len(manager.Entities()))
		}
	}
}
