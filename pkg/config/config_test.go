package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Indexer.NgramMinSize)
	assert.Equal(t, "cosine", cfg.Search.Ranker)
	assert.Equal(t, "Sessions", cfg.Identity.Namespace)
	assert.Equal(t, "content-changes", cfg.Kafka.Topics.ContentChanges)
}

func TestLoadYAMLAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.yaml")
	yml := `
search:
  ranker: bm25
  defaultLimit: 5
indexer:
  ngramMinSize: 2
  ngramMaxSize: 8
  maintenanceInterval: 90s
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o644))
	t.Setenv("SP_IDENTITY_NAMESPACE", "Users")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "bm25", cfg.Search.Ranker)
	assert.Equal(t, 5, cfg.Search.DefaultLimit)
	assert.Equal(t, 2, cfg.Indexer.NgramMinSize)
	assert.Equal(t, 90*time.Second, cfg.Indexer.MaintenanceInterval)
	assert.Equal(t, "Users", cfg.Identity.Namespace)
	// untouched sections keep their defaults
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Indexer.NgramMaxSize = 1
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Search.Ranker = "tfidf"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Identity.Backend = "zodb"
	assert.Error(t, cfg.Validate())

	assert.NoError(t, Default().Validate())
}

func TestShippedConfigsLoad(t *testing.T) {
	for _, name := range []string{"development.yaml", "ingestion.yaml", "gateway.yaml"} {
		cfg, err := Load(filepath.Join("..", "..", "configs", name))
		require.NoError(t, err, name)
		assert.NotZero(t, cfg.Server.Port, name)
	}
	cfg, err := Load(filepath.Join("..", "..", "configs", "ingestion.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 8081, cfg.Server.Port)
	assert.Equal(t, 9091, cfg.Metrics.Port)
}
