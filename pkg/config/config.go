// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Postgres, Kafka, Redis, Indexer, Search, Books, etc.).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Postgres PostgresConfig `yaml:"postgres"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Indexer  IndexerConfig  `yaml:"indexer"`
	Search   SearchConfig   `yaml:"search"`
	Books    BooksConfig    `yaml:"books"`
	Identity IdentityConfig `yaml:"identity"`
	Logging  LoggingConfig  `yaml:"logging"`
	Tracing  TracingConfig  `yaml:"tracing"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Gateway  GatewayConfig  `yaml:"gateway"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Enabled       bool        `yaml:"enabled"`
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	ContentChanges string `yaml:"contentChanges"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// IndexerConfig controls the index agent and the per-field index parameters.
type IndexerConfig struct {
	AgentWorkers        int           `yaml:"agentWorkers"`
	AgentWorkerBuffer   int           `yaml:"agentWorkerBuffer"`
	NgramMinSize        int           `yaml:"ngramMinSize"`
	NgramMaxSize        int           `yaml:"ngramMaxSize"`
	MaintenanceInterval time.Duration `yaml:"maintenanceInterval"`
}

// SearchConfig controls query execution limits, ranking and snippets.
type SearchConfig struct {
	MaxResults        int           `yaml:"maxResults"`
	DefaultLimit      int           `yaml:"defaultLimit"`
	Ranker            string        `yaml:"ranker"`
	SnippetBefore     int           `yaml:"snippetBefore"`
	SnippetAfter      int           `yaml:"snippetAfter"`
	TimeoutPerCatalog time.Duration `yaml:"timeoutPerCatalog"`
}

// BooksConfig locates the static book index segments.
type BooksConfig struct {
	DataDir string `yaml:"dataDir"`
}

// IdentityConfig selects the doc-id resolver backend.
type IdentityConfig struct {
	Backend   string `yaml:"backend"`
	Namespace string `yaml:"namespace"`
	CacheSize int    `yaml:"cacheSize"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TracingConfig controls span logging.
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled"`
	Endpoint   string  `yaml:"endpoint"`
	SampleRate float64 `yaml:"sampleRate"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// GatewayConfig controls the authenticating front door. Each API key maps to
// the principal that searches run as.
type GatewayConfig struct {
	Port             int           `yaml:"port"`
	SearcherURL      string        `yaml:"searcherUrl"`
	IngestionURL     string        `yaml:"ingestionUrl"`
	RateLimitWindow  time.Duration `yaml:"rateLimitWindow"`
	DefaultRateLimit int           `yaml:"defaultRateLimit"`
	KeyCacheSize     int           `yaml:"keyCacheSize"`
	KeyCacheTTL      time.Duration `yaml:"keyCacheTTL"`
	AllowedOrigins   []string      `yaml:"allowedOrigins"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with sensible defaults for any
// missing values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the built-in configuration without reading a file or the
// environment.
func Default() *Config {
	return defaultConfig()
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if c.Indexer.NgramMinSize < 1 {
		return fmt.Errorf("indexer.ngramMinSize must be positive, got %d", c.Indexer.NgramMinSize)
	}
	if c.Indexer.NgramMaxSize < c.Indexer.NgramMinSize {
		return fmt.Errorf("indexer.ngramMaxSize (%d) must be >= ngramMinSize (%d)",
			c.Indexer.NgramMaxSize, c.Indexer.NgramMinSize)
	}
	if c.Indexer.AgentWorkers < 1 {
		return fmt.Errorf("indexer.agentWorkers must be positive, got %d", c.Indexer.AgentWorkers)
	}
	switch c.Search.Ranker {
	case "cosine", "bm25":
	default:
		return fmt.Errorf("search.ranker must be cosine or bm25, got %q", c.Search.Ranker)
	}
	if c.Gateway.RateLimitWindow <= 0 {
		return fmt.Errorf("gateway.rateLimitWindow must be positive, got %s", c.Gateway.RateLimitWindow)
	}
	switch c.Identity.Backend {
	case "memory", "postgres":
	default:
		return fmt.Errorf("identity.backend must be memory or postgres, got %q", c.Identity.Backend)
	}
	return nil
}

// defaultConfig returns a Config with defaults for local development.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "entitysearch",
			User:            "entitysearch",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Enabled:       true,
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "entitysearch-indexer",
			Topics: KafkaTopics{
				ContentChanges: "content-changes",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
		},
		Indexer: IndexerConfig{
			AgentWorkers:        4,
			AgentWorkerBuffer:   64,
			NgramMinSize:        3,
			NgramMaxSize:        15,
			MaintenanceInterval: 30 * time.Minute,
		},
		Search: SearchConfig{
			MaxResults:        200,
			DefaultLimit:      20,
			Ranker:            "cosine",
			SnippetBefore:     2,
			SnippetAfter:      5,
			TimeoutPerCatalog: 2 * time.Second,
		},
		Books: BooksConfig{
			DataDir: "data/books",
		},
		Identity: IdentityConfig{
			Backend:   "memory",
			Namespace: "Sessions",
			CacheSize: 10000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:    false,
			SampleRate: 0.1,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
		Gateway: GatewayConfig{
			Port:             8000,
			SearcherURL:      "http://localhost:8080",
			IngestionURL:     "http://localhost:8081",
			RateLimitWindow:  time.Minute,
			DefaultRateLimit: 600,
			KeyCacheSize:     4096,
			KeyCacheTTL:      30 * time.Second,
			AllowedOrigins:   []string{"*"},
		},
	}
}

// applyEnvOverrides reads SP_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SP_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("SP_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("SP_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("SP_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("SP_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("SP_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("SP_POSTGRES_SSLMODE"); v != "" {
		cfg.Postgres.SSLMode = v
	}
	if v := os.Getenv("SP_KAFKA_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.Kafka.Enabled = enabled
		}
	}
	if v := os.Getenv("SP_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("SP_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("SP_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("SP_INDEXER_AGENT_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Indexer.AgentWorkers = n
		}
	}
	if v := os.Getenv("SP_SEARCH_RANKER"); v != "" {
		cfg.Search.Ranker = v
	}
	if v := os.Getenv("SP_BOOKS_DATA_DIR"); v != "" {
		cfg.Books.DataDir = v
	}
	if v := os.Getenv("SP_IDENTITY_BACKEND"); v != "" {
		cfg.Identity.Backend = v
	}
	if v := os.Getenv("SP_IDENTITY_NAMESPACE"); v != "" {
		cfg.Identity.Namespace = v
	}
	if v := os.Getenv("SP_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SP_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("SP_TRACING_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.Tracing.Enabled = enabled
		}
	}
	if v := os.Getenv("SP_GATEWAY_SEARCHER_URL"); v != "" {
		cfg.Gateway.SearcherURL = v
	}
	if v := os.Getenv("SP_GATEWAY_INGESTION_URL"); v != "" {
		cfg.Gateway.IngestionURL = v
	}
}
