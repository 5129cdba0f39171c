package apikey

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/Adithya-Monish-Kumar-K/entity-search/pkg/postgres"
)

const schema = `
CREATE TABLE IF NOT EXISTS principal_keys (
	id         UUID PRIMARY KEY,
	key_hash   TEXT NOT NULL UNIQUE,
	principal  TEXT NOT NULL,
	rate_limit INTEGER NOT NULL DEFAULT 0,
	is_active  BOOLEAN NOT NULL DEFAULT true,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	expires_at TIMESTAMPTZ
)`

// PostgresStore keeps keys in the principal_keys table.
type PostgresStore struct {
	db *postgres.Client
}

func NewPostgresStore(db *postgres.Client) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the principal_keys table if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating principal_keys: %w", err)
	}
	return nil
}

func (s *PostgresStore) Lookup(ctx context.Context, hash string) (*KeyInfo, error) {
	var info KeyInfo
	var expiresAt sql.NullTime
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT id, principal, rate_limit, created_at, expires_at
		 FROM principal_keys
		 WHERE key_hash = $1 AND is_active = true`,
		hash,
	).Scan(&info.ID, &info.Principal, &info.RateLimit, &info.CreatedAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvalidKey
	}
	if err != nil {
		return nil, fmt.Errorf("querying api key: %w", err)
	}
	if expiresAt.Valid {
		info.ExpiresAt = &expiresAt.Time
	}
	return &info, nil
}

func (s *PostgresStore) Insert(ctx context.Context, hash string, info KeyInfo) error {
	var expiry sql.NullTime
	if info.ExpiresAt != nil {
		expiry = sql.NullTime{Time: *info.ExpiresAt, Valid: true}
	}
	_, err := s.db.DB.ExecContext(ctx,
		`INSERT INTO principal_keys (id, key_hash, principal, rate_limit, created_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		info.ID, hash, info.Principal, info.RateLimit, info.CreatedAt, expiry,
	)
	return err
}

func (s *PostgresStore) Deactivate(ctx context.Context, hash string) error {
	result, err := s.db.DB.ExecContext(ctx,
		`UPDATE principal_keys SET is_active = false WHERE key_hash = $1 AND is_active = true`,
		hash,
	)
	if err != nil {
		return fmt.Errorf("revoking api key: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrInvalidKey
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]KeyInfo, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT id, principal, rate_limit, created_at, expires_at
		 FROM principal_keys WHERE is_active = true ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing api keys: %w", err)
	}
	defer rows.Close()

	var keys []KeyInfo
	for rows.Next() {
		var k KeyInfo
		var expiresAt sql.NullTime
		if err := rows.Scan(&k.ID, &k.Principal, &k.RateLimit, &k.CreatedAt, &expiresAt); err != nil {
			return nil, fmt.Errorf("scanning api key row: %w", err)
		}
		if expiresAt.Valid {
			k.ExpiresAt = &expiresAt.Time
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// MemoryStore keeps keys in process for single-node setups and tests.
type MemoryStore struct {
	keys *xsync.MapOf[string, KeyInfo]
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{keys: xsync.NewMapOf[string, KeyInfo]()}
}

func (s *MemoryStore) Lookup(_ context.Context, hash string) (*KeyInfo, error) {
	info, ok := s.keys.Load(hash)
	if !ok {
		return nil, ErrInvalidKey
	}
	return &info, nil
}

func (s *MemoryStore) Insert(_ context.Context, hash string, info KeyInfo) error {
	if _, loaded := s.keys.LoadOrStore(hash, info); loaded {
		return fmt.Errorf("duplicate key hash")
	}
	return nil
}

func (s *MemoryStore) Deactivate(_ context.Context, hash string) error {
	if _, ok := s.keys.LoadAndDelete(hash); !ok {
		return ErrInvalidKey
	}
	return nil
}

func (s *MemoryStore) List(_ context.Context) ([]KeyInfo, error) {
	var keys []KeyInfo
	s.keys.Range(func(_ string, info KeyInfo) bool {
		keys = append(keys, info)
		return true
	})
	sort.Slice(keys, func(i, j int) bool {
		return keys[i].CreatedAt.After(keys[j].CreatedAt)
	})
	return keys, nil
}
