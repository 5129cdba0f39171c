package intid

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/entity-search/internal/content"
	"github.com/Adithya-Monish-Kumar-K/entity-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/entity-search/pkg/postgres"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "0xd8:53657373696f6e73", Key(216, "Sessions"))
	assert.Equal(t, "0x1:", Key(1, ""))
}

func TestRegistryAssignsStableIDs(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry("Sessions", 200)

	a, err := r.ResolveID(ctx, &content.Object{Key: "a"})
	require.NoError(t, err)
	b, err := r.ResolveID(ctx, &content.Object{Key: "b"})
	require.NoError(t, err)
	again, err := r.ResolveID(ctx, &content.Object{Key: "a", Body: "changed"})
	require.NoError(t, err)

	assert.Equal(t, ID(200), a)
	assert.Equal(t, ID(201), b)
	assert.Equal(t, a, again)

	obj, err := r.ResolveObject(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, "changed", obj.Body)

	id, ok, err := r.LookupID(ctx, "b")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, b, id)

	_, err = r.ResolveID(ctx, nil)
	assert.Error(t, err)
}

func TestRegistryForget(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry("Sessions", 1)
	id, err := r.ResolveID(ctx, &content.Object{Key: "gone"})
	require.NoError(t, err)

	r.Forget("gone")
	obj, err := r.ResolveObject(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, obj)

	// the id stays reserved for the key
	again, err := r.ResolveID(ctx, &content.Object{Key: "gone"})
	require.NoError(t, err)
	assert.Equal(t, id, again)
}

func TestRegistryConcurrentResolve(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry("Sessions", 1)
	ids := make([]ID, 64)
	var wg sync.WaitGroup
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i], _ = r.ResolveID(ctx, &content.Object{Key: "same"})
		}(i)
	}
	wg.Wait()
	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	assert.Equal(t, 1, r.Len())
}

func TestPostgresResolver(t *testing.T) {
	if os.Getenv("SP_POSTGRES_HOST") == "" {
		t.Skip("SP_POSTGRES_HOST not set")
	}
	cfg, err := config.Load("")
	require.NoError(t, err)
	db, err := postgres.New(context.Background(), cfg.Postgres)
	if err != nil {
		t.Skipf("postgres unavailable: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	p, err := NewPostgresResolver(db, 16, nil)
	require.NoError(t, err)
	require.NoError(t, p.EnsureSchema(ctx))

	obj := &content.Object{Key: "intid-test-key", Type: "note", Creator: "ichigo", Body: "hello"}
	id, err := p.ResolveID(ctx, obj)
	require.NoError(t, err)

	got, ok, err := p.LookupID(ctx, obj.Key)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, id, got)

	loaded, err := p.ResolveObject(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "hello", loaded.Body)

	require.NoError(t, p.Delete(ctx, obj.Key))
	_, ok, err = p.LookupID(ctx, obj.Key)
	require.NoError(t, err)
	assert.False(t, ok)
}
