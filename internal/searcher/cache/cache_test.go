package cache

import (
	"context"
	"errors"
	"path"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/entity-search/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/entity-search/internal/searcher/unified"
	"github.com/Adithya-Monish-Kumar-K/entity-search/pkg/metrics"
)

type memStore struct {
	mu      sync.Mutex
	data    map[string]string
	failGet bool
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string]string)}
}

func (s *memStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failGet {
		return "", false, errors.New("connection refused")
	}
	v, ok := s.data[key]
	return v, ok, nil
}

func (s *memStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = string(value.([]byte))
	return nil
}

func (s *memStore) FlushByPattern(_ context.Context, pattern string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k := range s.data {
		if ok, _ := path.Match(pattern, k); ok {
			delete(s.data, k)
			n++
		}
	}
	return n, nil
}

func response(hits int) *unified.Response {
	return &unified.Response{
		Query:    "divide",
		HitCount: hits,
		Items:    map[string]unified.Item{"k": {Snippet: "DIVIDE", Type: "note", Score: 0.5}},
		Order:    []string{"k"},
	}
}

func TestBuildKey(t *testing.T) {
	a := BuildKey("ichigo", "divide|limit=10")
	assert.Regexp(t, `^search:ichigo:[0-9a-f]{32}$`, a)
	assert.Equal(t, a, BuildKey("ichigo", "divide|limit=10"))
	assert.NotEqual(t, a, BuildKey("rukia", "divide|limit=10"))
	assert.NotEqual(t, a, BuildKey("ichigo", "divide|limit=20"))
}

func TestGetOrCompute(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(newMemStore(), time.Minute, metrics.New(reg))
	calls := 0
	compute := func() (*unified.Response, error) {
		calls++
		return response(3), nil
	}

	resp, hit, err := c.GetOrCompute(context.Background(), "ichigo", "fp", compute)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 3, resp.HitCount)

	resp, hit, err = c.GetOrCompute(context.Background(), "ichigo", "fp", compute)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, response(3), resp)
	assert.Equal(t, 1, calls)

	hits, misses := c.Stats()
	assert.EqualValues(t, 1, hits)
	assert.EqualValues(t, 1, misses)
}

func TestGetOrComputeError(t *testing.T) {
	c := New(newMemStore(), time.Minute, nil)
	_, _, err := c.GetOrCompute(context.Background(), "ichigo", "fp", func() (*unified.Response, error) {
		return nil, errors.New("boom")
	})
	assert.EqualError(t, err, "boom")
	_, ok := c.Get(context.Background(), "ichigo", "fp")
	assert.False(t, ok)
}

func TestStoreFailureFallsThrough(t *testing.T) {
	store := newMemStore()
	store.failGet = true
	c := New(store, time.Minute, nil)
	resp, hit, err := c.GetOrCompute(context.Background(), "ichigo", "fp", func() (*unified.Response, error) {
		return response(1), nil
	})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 1, resp.HitCount)
}

func TestConcurrentComputeCoalesced(t *testing.T) {
	c := New(newMemStore(), time.Minute, nil)
	var calls atomic.Int32
	release := make(chan struct{})
	compute := func() (*unified.Response, error) {
		calls.Add(1)
		<-release
		return response(2), nil
	}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, _, err := c.GetOrCompute(context.Background(), "ichigo", "fp", compute)
			assert.NoError(t, err)
			assert.Equal(t, 2, resp.HitCount)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	assert.LessOrEqual(t, calls.Load(), int32(2))
}

func TestInvalidatePrincipal(t *testing.T) {
	store := newMemStore()
	c := New(store, time.Minute, nil)
	ctx := context.Background()
	c.Set(ctx, "ichigo", "a", response(1))
	c.Set(ctx, "ichigo", "b", response(1))
	c.Set(ctx, "rukia", "a", response(1))

	require.NoError(t, c.InvalidatePrincipal(ctx, "ichigo"))
	_, ok := c.Get(ctx, "ichigo", "a")
	assert.False(t, ok)
	_, ok = c.Get(ctx, "rukia", "a")
	assert.True(t, ok)

	require.NoError(t, c.Invalidate(ctx))
	_, ok = c.Get(ctx, "rukia", "a")
	assert.False(t, ok)
}

func TestInvalidateEvent(t *testing.T) {
	store := newMemStore()
	c := New(store, time.Minute, nil)
	ctx := context.Background()
	for _, p := range []string{"ichigo", "rukia", "renji"} {
		c.Set(ctx, p, "fp", response(1))
	}
	ev := ingestion.NewEvent("ichigo", ingestion.Shared, "note",
		[]byte(`{"key":"n1","body":"bankai","shared_with":["rukia"]}`))
	c.InvalidateEvent(ctx, ev)

	_, ok := c.Get(ctx, "ichigo", "fp")
	assert.False(t, ok)
	_, ok = c.Get(ctx, "rukia", "fp")
	assert.False(t, ok)
	_, ok = c.Get(ctx, "renji", "fp")
	assert.True(t, ok)
}
