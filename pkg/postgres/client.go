// Package postgres opens the lib/pq connection pool shared by the identity
// resolver and the gateway's key store.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/entity-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/entity-search/pkg/health"
)

const connectTimeout = 5 * time.Second

type Client struct {
	DB  *sql.DB
	cfg config.PostgresConfig
}

// New opens the pool and pings it. Unset pool limits fall back to the
// database/sql defaults.
func New(ctx context.Context, cfg config.PostgresConfig) (*Client, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("opening postgres connection: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging postgres %s/%s: %w", cfg.Host, cfg.Database, err)
	}
	return &Client{DB: db, cfg: cfg}, nil
}

// Check reports the pool as a health component. Saturation shows up as
// degraded so a busy pool does not fail readiness.
func (c *Client) Check(ctx context.Context) health.ComponentHealth {
	if err := c.DB.PingContext(ctx); err != nil {
		return health.Down(err.Error())
	}
	stats := c.DB.Stats()
	msg := fmt.Sprintf("%d/%d connections in use", stats.InUse, stats.OpenConnections)
	if c.cfg.MaxOpenConns > 0 && stats.InUse >= c.cfg.MaxOpenConns && stats.WaitCount > 0 {
		return health.Degraded(msg)
	}
	return health.Up(msg)
}

func (c *Client) Close() error {
	return c.DB.Close()
}
