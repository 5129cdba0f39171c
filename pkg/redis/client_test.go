package redis

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/entity-search/pkg/config"
)

func TestEscapePattern(t *testing.T) {
	assert.Equal(t, "plain", EscapePattern("plain"))
	assert.Equal(t, `a\*b\?c\[d\]`, EscapePattern("a*b?c[d]"))
	assert.Equal(t, `x\\y`, EscapePattern(`x\y`))
}

func newTestClient(t *testing.T) *Client {
	t.Helper()
	addr := os.Getenv("SP_REDIS_ADDR")
	if addr == "" {
		t.Skip("SP_REDIS_ADDR not set")
	}
	c, err := NewClient(config.RedisConfig{Addr: addr, PoolSize: 2})
	if err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestGetSetFlush(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	prefix := fmt.Sprintf("test:%d:", time.Now().UnixNano())

	_, found, err := c.Get(ctx, prefix+"absent")
	require.NoError(t, err)
	assert.False(t, found)

	for i := 0; i < 150; i++ {
		require.NoError(t, c.Set(ctx, fmt.Sprintf("%s%d", prefix, i), "v", time.Minute))
	}
	v, found, err := c.Get(ctx, prefix+"7")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "v", v)

	n, err := c.FlushByPattern(ctx, EscapePattern(prefix)+"*")
	require.NoError(t, err)
	assert.EqualValues(t, 150, n)
}
