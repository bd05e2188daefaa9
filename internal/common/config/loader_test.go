package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
app:
  name: pipeline-test
database:
  postgres:
    host: localhost
    port: 5432
    database: explorer
    user: explorer
    password: ${DB_PASSWORD}
  redis:
    address: localhost:6379
apis:
  genai:
    base_url: http://localhost:9999
    model: test-model
    fallback_model: test-model-lite
  search:
    base_url: http://localhost:9998
`

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFromFileAppliesDefaults(t *testing.T) {
	t.Setenv("DB_PASSWORD", "hunter2")

	cfg, err := LoadFromFile(writeConfigFile(t, minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, int64(20<<20), cfg.Server.MaxBodyBytes)
	assert.Equal(t, 50, cfg.Pipeline.Retrieval.RowLimit)
	assert.Equal(t, 30, cfg.Pipeline.Retrieval.MergeCap)
	assert.Equal(t, 1, cfg.Pipeline.Retrieval.MaxHops)
	assert.Equal(t, 1000, cfg.Pipeline.Cleaning.ChunkSize)
	assert.Contains(t, cfg.Pipeline.Cleaning.DuplicateIgnoreFields, "processing_timestamp")
	assert.Equal(t, "info", cfg.Logging.Level)

	assert.Equal(t, "hunter2", cfg.Database.Postgres.Password)
	assert.Contains(t, cfg.Database.Postgres.GetDSN(), "password=hunter2")
	assert.Contains(t, cfg.Database.Postgres.GetDSN(), "sslmode=disable")
}

func TestLoadFromFileRejectsIncompleteConfig(t *testing.T) {
	yaml := `
database:
  postgres:
    host: localhost
    database: explorer
    user: explorer
  redis:
    address: localhost:6379
apis:
  search:
    base_url: http://localhost:9998
`
	_, err := LoadFromFile(writeConfigFile(t, yaml))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "apis.genai.base_url")
}

func TestGenAIModelsChain(t *testing.T) {
	t.Setenv("DB_PASSWORD", "hunter2")

	cfg, err := LoadFromFile(writeConfigFile(t, minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, []string{"test-model", "test-model-lite"}, cfg.APIs.GenAIModels())

	cfg.APIs.GenAI.Models = []string{"explicit-a", "explicit-b"}
	assert.Equal(t, []string{"explicit-a", "explicit-b"}, cfg.APIs.GenAIModels())
}

func TestGetDuration(t *testing.T) {
	assert.Equal(t, 1500*time.Millisecond, GetDuration(1500))
	assert.Equal(t, time.Duration(0), GetDuration(0))
}
