// Package cache memoises façade search responses in Redis, one key space
// per principal so a mutation only evicts the searches it can affect.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/entity-search/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/entity-search/internal/searcher/unified"
	"github.com/Adithya-Monish-Kumar-K/entity-search/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/entity-search/pkg/redis"
)

const keyPrefix = "search:"

// Store is the subset of the Redis client the cache uses.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

type QueryCache struct {
	store   Store
	ttl     time.Duration
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

func New(store Store, ttl time.Duration, m *metrics.Metrics) *QueryCache {
	return &QueryCache{
		store:   store,
		ttl:     ttl,
		metrics: m,
		logger:  slog.Default().With("component", "query-cache"),
	}
}

// Get returns the cached response for principal and fingerprint. Store
// failures are logged and count as misses.
func (c *QueryCache) Get(ctx context.Context, principal, fingerprint string) (*unified.Response, bool) {
	key := BuildKey(principal, fingerprint)
	data, found, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.Error("cache get failed", "key", key, "error", err)
		c.miss()
		return nil, false
	}
	if !found {
		c.miss()
		return nil, false
	}
	var resp unified.Response
	if err := json.Unmarshal([]byte(data), &resp); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.miss()
		return nil, false
	}
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
	return &resp, true
}

func (c *QueryCache) Set(ctx context.Context, principal, fingerprint string, resp *unified.Response) {
	key := BuildKey(principal, fingerprint)
	data, err := json.Marshal(resp)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.store.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute serves from the cache or runs compute once for all
// concurrent callers of the same key.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	principal, fingerprint string,
	compute func() (*unified.Response, error),
) (*unified.Response, bool, error) {
	if resp, ok := c.Get(ctx, principal, fingerprint); ok {
		return resp, true, nil
	}
	key := BuildKey(principal, fingerprint)
	val, err, _ := c.group.Do(key, func() (any, error) {
		resp, err := compute()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, principal, fingerprint, resp)
		return resp, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*unified.Response), false, nil
}

// InvalidatePrincipal drops every cached search of principal.
func (c *QueryCache) InvalidatePrincipal(ctx context.Context, principal string) error {
	deleted, err := c.store.FlushByPattern(ctx, keyPrefix+pkgredis.EscapePattern(principal)+":*")
	if err != nil {
		return fmt.Errorf("invalidating cache of %s: %w", principal, err)
	}
	c.logger.Debug("cache invalidate", "principal", principal, "keys_deleted", deleted)
	return nil
}

// InvalidateEvent drops the cached searches of everyone an applied event
// can change: the creator and the principals the object is shared with.
func (c *QueryCache) InvalidateEvent(ctx context.Context, ev ingestion.IndexEvent) {
	principals := []string{ev.Creator}
	if obj, err := ev.Object(); err == nil {
		principals = append(principals, obj.SharedWith...)
	}
	seen := make(map[string]struct{}, len(principals))
	for _, p := range principals {
		if _, dup := seen[p]; dup || p == "" {
			continue
		}
		seen[p] = struct{}{}
		if err := c.InvalidatePrincipal(ctx, p); err != nil {
			c.logger.Warn("cache invalidation failed", "principal", p, "event_id", ev.ID, "error", err)
		}
	}
}

// Invalidate drops every cached search.
func (c *QueryCache) Invalidate(ctx context.Context) error {
	deleted, err := c.store.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidate", "keys_deleted", deleted)
	return nil
}

func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *QueryCache) miss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}

// BuildKey renders search:<principal>:<hash of fingerprint>.
func BuildKey(principal, fingerprint string) string {
	hash := sha256.Sum256([]byte(fingerprint))
	return fmt.Sprintf("%s%s:%x", keyPrefix, principal, hash[:16])
}
