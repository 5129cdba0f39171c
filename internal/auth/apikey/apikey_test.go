package apikey

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/entity-search/pkg/errors"
)

type countingStore struct {
	*MemoryStore
	lookups atomic.Int32
}

func (s *countingStore) Lookup(ctx context.Context, hash string) (*KeyInfo, error) {
	s.lookups.Add(1)
	return s.MemoryStore.Lookup(ctx, hash)
}

func TestCreateAndValidate(t *testing.T) {
	ctx := context.Background()
	store := &countingStore{MemoryStore: NewMemoryStore()}
	v := NewValidator(store, 16, time.Minute)

	raw, info, err := v.CreateKey(ctx, " ichigo ", 30, nil)
	require.NoError(t, err)
	assert.Len(t, raw, 64)
	assert.Equal(t, "ichigo", info.Principal)

	got, err := v.Validate(ctx, raw)
	require.NoError(t, err)
	assert.Equal(t, info.ID, got.ID)
	assert.Equal(t, 30, got.RateLimit)

	_, err = v.Validate(ctx, raw)
	require.NoError(t, err)
	assert.Equal(t, int32(1), store.lookups.Load(), "second validation is served from cache")

	_, err = v.Validate(ctx, "not-a-key")
	assert.ErrorIs(t, err, ErrInvalidKey)
	_, err = v.Validate(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestCreateKeyRejectsBadInput(t *testing.T) {
	v := NewValidator(NewMemoryStore(), 0, 0)
	_, _, err := v.CreateKey(context.Background(), "  ", 10, nil)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	_, _, err = v.CreateKey(context.Background(), "rukia", -1, nil)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestRevokeDropsCachedKey(t *testing.T) {
	ctx := context.Background()
	v := NewValidator(NewMemoryStore(), 16, time.Minute)
	raw, _, err := v.CreateKey(ctx, "renji", 0, nil)
	require.NoError(t, err)
	_, err = v.Validate(ctx, raw)
	require.NoError(t, err)

	require.NoError(t, v.RevokeKey(ctx, raw))
	_, err = v.Validate(ctx, raw)
	assert.ErrorIs(t, err, ErrInvalidKey)
	assert.ErrorIs(t, v.RevokeKey(ctx, raw), ErrInvalidKey)
}

func TestExpiredKey(t *testing.T) {
	ctx := context.Background()
	v := NewValidator(NewMemoryStore(), 16, time.Minute)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	v.now = func() time.Time { return now }

	expiry := now.Add(time.Hour)
	raw, _, err := v.CreateKey(ctx, "aizen", 0, &expiry)
	require.NoError(t, err)
	_, err = v.Validate(ctx, raw)
	require.NoError(t, err)

	// the cached entry is rechecked against the clock
	now = now.Add(2 * time.Hour)
	_, err = v.Validate(ctx, raw)
	assert.ErrorIs(t, err, ErrExpiredKey)
	_, err = v.Validate(ctx, raw)
	assert.ErrorIs(t, err, ErrExpiredKey)
}

func TestListKeysNewestFirst(t *testing.T) {
	ctx := context.Background()
	v := NewValidator(NewMemoryStore(), 0, 0)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	v.now = func() time.Time { return now }
	_, _, err := v.CreateKey(ctx, "ichigo", 0, nil)
	require.NoError(t, err)
	now = now.Add(time.Minute)
	_, _, err = v.CreateKey(ctx, "rukia", 0, nil)
	require.NoError(t, err)

	keys, err := v.ListKeys(ctx)
	require.NoError(t, err)
	require.Len(t, keys, 2)
	assert.Equal(t, "rukia", keys[0].Principal)
	assert.Equal(t, "ichigo", keys[1].Principal)
}

func TestHashKey(t *testing.T) {
	assert.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", HashKey("hello"))
}
