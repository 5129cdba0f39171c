package intid

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Adithya-Monish-Kumar-K/entity-search/internal/content"
	"github.com/Adithya-Monish-Kumar-K/entity-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/entity-search/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/entity-search/pkg/resilience"
)

const schemaDDL = `
CREATE TABLE IF NOT EXISTS content_objects (
	id         BIGSERIAL PRIMARY KEY,
	key        TEXT NOT NULL UNIQUE,
	payload    JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresResolver stores objects in the content_objects table and uses its
// sequence as the id space. Resolved objects are cached in an LRU.
type PostgresResolver struct {
	db      *postgres.Client
	cache   *lru.Cache[ID, *content.Object]
	breaker *resilience.CircuitBreaker
	logger  *slog.Logger
}

// NewPostgresResolver wraps db. When m is set the breaker state is exported
// as a gauge.
func NewPostgresResolver(db *postgres.Client, cacheSize int, m *metrics.Metrics) (*PostgresResolver, error) {
	if cacheSize <= 0 {
		cacheSize = 1024
	}
	cache, err := lru.New[ID, *content.Object](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating object cache: %w", err)
	}
	var breakerConfig resilience.CircuitBreakerConfig
	if m != nil {
		breakerConfig.OnStateChange = func(name string, to resilience.State) {
			m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
		}
	}
	return &PostgresResolver{
		db:      db,
		cache:   cache,
		breaker: resilience.NewCircuitBreaker("identity-postgres", breakerConfig),
		logger:  slog.Default().With("component", "intid-postgres"),
	}, nil
}

// EnsureSchema creates the backing table if it does not exist.
func (p *PostgresResolver) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.DB.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("creating content_objects table: %w", err)
	}
	return nil
}

// ResolveID upserts obj and returns the id of its row.
func (p *PostgresResolver) ResolveID(ctx context.Context, obj *content.Object) (ID, error) {
	if obj.IsEmpty() {
		return 0, fmt.Errorf("resolving id: empty object")
	}
	payload, err := json.Marshal(obj)
	if err != nil {
		return 0, fmt.Errorf("encoding object %s: %w", obj.Key, err)
	}
	var id int64
	err = p.breaker.Do(ctx, func(ctx context.Context) error {
		return p.db.DB.QueryRowContext(ctx,
			`INSERT INTO content_objects (key, payload) VALUES ($1, $2)
			 ON CONFLICT (key) DO UPDATE SET payload = EXCLUDED.payload, updated_at = now()
			 RETURNING id`,
			obj.Key, payload,
		).Scan(&id)
	})
	if err != nil {
		return 0, fmt.Errorf("upserting object %s: %w", obj.Key, err)
	}
	p.cache.Add(ID(id), obj)
	return ID(id), nil
}

func (p *PostgresResolver) LookupID(ctx context.Context, key string) (ID, bool, error) {
	var id int64
	err := p.breaker.Do(ctx, func(ctx context.Context) error {
		err := p.db.DB.QueryRowContext(ctx,
			`SELECT id FROM content_objects WHERE key = $1`, key,
		).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return err
	})
	if err != nil {
		return 0, false, fmt.Errorf("looking up id for %s: %w", key, err)
	}
	if id == 0 {
		return 0, false, nil
	}
	return ID(id), true, nil
}

func (p *PostgresResolver) ResolveObject(ctx context.Context, id ID) (*content.Object, error) {
	if obj, ok := p.cache.Get(id); ok {
		return obj, nil
	}
	var payload []byte
	err := p.breaker.Do(ctx, func(ctx context.Context) error {
		err := p.db.DB.QueryRowContext(ctx,
			`SELECT payload FROM content_objects WHERE id = $1`, int64(id),
		).Scan(&payload)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("loading object %d: %w", id, err)
	}
	if payload == nil {
		return nil, nil
	}
	obj, err := content.Decode(payload)
	if err != nil {
		p.logger.Warn("stored object is unreadable", "id", id, "error", err)
		return nil, err
	}
	p.cache.Add(id, obj)
	return obj, nil
}

// Delete removes the row behind key. The id is not reused.
func (p *PostgresResolver) Delete(ctx context.Context, key string) error {
	var id int64
	err := p.breaker.Do(ctx, func(ctx context.Context) error {
		err := p.db.DB.QueryRowContext(ctx,
			`DELETE FROM content_objects WHERE key = $1 RETURNING id`, key,
		).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("deleting object %s: %w", key, err)
	}
	if id != 0 {
		p.cache.Remove(ID(id))
	}
	return nil
}
