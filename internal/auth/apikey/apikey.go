// Package apikey binds API keys to the principal that requests made with them
// act as. Raw keys are generated with crypto/rand and only their SHA-256 hash
// is stored. Validated keys are cached for a short TTL so the gateway does not
// hit the store on every request.
package apikey

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	apperrors "github.com/Adithya-Monish-Kumar-K/entity-search/pkg/errors"
)

var (
	ErrInvalidKey = errors.New("invalid api key")
	ErrExpiredKey = errors.New("api key expired")
)

// KeyInfo describes a key without its secret.
type KeyInfo struct {
	ID        string     `json:"id"`
	Principal string     `json:"principal"`
	RateLimit int        `json:"rate_limit"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

func (k *KeyInfo) expired(now time.Time) bool {
	return k.ExpiresAt != nil && k.ExpiresAt.Before(now)
}

// Store persists active keys by hash. Lookup returns ErrInvalidKey for a hash
// that is unknown or revoked.
type Store interface {
	Lookup(ctx context.Context, hash string) (*KeyInfo, error)
	Insert(ctx context.Context, hash string, info KeyInfo) error
	Deactivate(ctx context.Context, hash string) error
	List(ctx context.Context) ([]KeyInfo, error)
}

type Validator struct {
	store  Store
	cache  *expirable.LRU[string, *KeyInfo]
	now    func() time.Time
	logger *slog.Logger
}

// NewValidator caches up to cacheSize validated keys for ttl. A ttl of zero
// disables caching.
func NewValidator(store Store, cacheSize int, ttl time.Duration) *Validator {
	v := &Validator{
		store:  store,
		now:    time.Now,
		logger: slog.Default().With("component", "apikey-validator"),
	}
	if ttl > 0 {
		if cacheSize <= 0 {
			cacheSize = 1024
		}
		v.cache = expirable.NewLRU[string, *KeyInfo](cacheSize, nil, ttl)
	}
	return v
}

// Validate resolves a raw key to its KeyInfo.
func (v *Validator) Validate(ctx context.Context, rawKey string) (*KeyInfo, error) {
	if rawKey == "" {
		return nil, ErrInvalidKey
	}
	hash := HashKey(rawKey)
	if v.cache != nil {
		if info, ok := v.cache.Get(hash); ok {
			if info.expired(v.now()) {
				v.cache.Remove(hash)
				return nil, ErrExpiredKey
			}
			return info, nil
		}
	}
	info, err := v.store.Lookup(ctx, hash)
	if err != nil {
		return nil, err
	}
	if info.expired(v.now()) {
		return nil, ErrExpiredKey
	}
	if v.cache != nil {
		v.cache.Add(hash, info)
	}
	return info, nil
}

// CreateKey issues a key for principal and returns the raw key. The raw key
// cannot be recovered later.
func (v *Validator) CreateKey(ctx context.Context, principal string, rateLimit int, expiresAt *time.Time) (string, *KeyInfo, error) {
	principal = strings.TrimSpace(principal)
	if principal == "" {
		return "", nil, fmt.Errorf("principal is required: %w", apperrors.ErrInvalidInput)
	}
	if rateLimit < 0 {
		return "", nil, fmt.Errorf("rate limit must not be negative: %w", apperrors.ErrInvalidInput)
	}
	rawKey, err := generateRawKey()
	if err != nil {
		return "", nil, err
	}
	info := KeyInfo{
		ID:        uuid.NewString(),
		Principal: principal,
		RateLimit: rateLimit,
		CreatedAt: v.now().UTC(),
		ExpiresAt: expiresAt,
	}
	if err := v.store.Insert(ctx, HashKey(rawKey), info); err != nil {
		return "", nil, fmt.Errorf("creating api key: %w", err)
	}
	v.logger.Info("api key created", "id", info.ID, "principal", principal, "rate_limit", rateLimit)
	return rawKey, &info, nil
}

// RevokeKey deactivates rawKey and drops it from the cache.
func (v *Validator) RevokeKey(ctx context.Context, rawKey string) error {
	hash := HashKey(rawKey)
	if err := v.store.Deactivate(ctx, hash); err != nil {
		return err
	}
	if v.cache != nil {
		v.cache.Remove(hash)
	}
	v.logger.Info("api key revoked")
	return nil
}

func (v *Validator) ListKeys(ctx context.Context) ([]KeyInfo, error) {
	return v.store.List(ctx)
}

// HashKey returns the SHA-256 hex digest of a raw API key.
func HashKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func generateRawKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating api key: %w", err)
	}
	return hex.EncodeToString(b), nil
}
