package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			"unknown id strategy",
			func(c *Config) { c.Processing.IDStrategy = "sequential" },
			"unknown id strategy",
		},
		{
			"unknown mode",
			func(c *Config) { c.Processing.Mode = "paragraphs" },
			"unknown segmentation mode",
		},
		{
			"unsupported vector width",
			func(c *Config) { c.Embeddings.Bits = 16 },
			"unsupported vector width",
		},
		{
			"64-bit width rejected before any ingestion",
			func(c *Config) { c.Embeddings.Bits = 64 },
			"32-bit components",
		},
		{
			"zero dimension",
			func(c *Config) { c.Embeddings.Dimension = 0 },
			"dimension must be set",
		},
		{
			"zero batch size",
			func(c *Config) { c.Embeddings.BatchSize = 0 },
			"batch size must be positive",
		},
		{
			"unknown embeddings provider",
			func(c *Config) { c.Embeddings.Provider = "bedrock" },
			"unknown provider",
		},
		{
			"unknown generation provider",
			func(c *Config) { c.Generation.Provider = "bedrock" },
			"unknown provider",
		},
		{
			"overlap not below size",
			func(c *Config) {
				c.Processing.Mode = ModeChunks
				c.Processing.ChunkSize = 100
				c.Processing.ChunkOverlap = 100
			},
			"overlap",
		},
		{
			"reranker without endpoint",
			func(c *Config) { c.Reranker.Enabled = true },
			"no endpoint",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestOverlapOnlyCheckedInChunkMode(t *testing.T) {
	cfg := Default()
	cfg.Processing.Mode = ModePages
	cfg.Processing.ChunkOverlap = cfg.Processing.ChunkSize

	assert.NoError(t, cfg.Validate())
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Retrieval.SimilarityThreshold, cfg.Retrieval.SimilarityThreshold)
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
processing:
  mode: pages
retrieval:
  top_k: 11
  similarity_threshold: 0.5
embeddings:
  batch_pacing_ms: 250
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ModePages, cfg.Processing.Mode)
	assert.Equal(t, 11, cfg.Retrieval.TopK)
	assert.Equal(t, 0.5, cfg.Retrieval.SimilarityThreshold)
	assert.Equal(t, 250*time.Millisecond, cfg.BatchPacing())

	// Untouched sections keep their defaults.
	assert.Equal(t, 40, cfg.Embeddings.BatchSize)
}

func TestLoadInvalidConfigFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("processing:\n  id_strategy: sequential\n"), 0644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown id strategy")
}

func TestLoadResolvesSecretPlaceholders(t *testing.T) {
	t.Setenv("PAPERCHAT_TEST_DSN", "postgres://u:p@db/paperchat")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "database:\n  connection_string: ${PAPERCHAT_TEST_DSN}\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres://u:p@db/paperchat", cfg.Database.ConnectionString)
}

func TestSaveRoundTrips(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg := Default()
	cfg.Retrieval.TopK = 9
	require.NoError(t, cfg.Save())

	path := filepath.Join(os.Getenv("HOME"), ".paperchat", "config.yaml")
	require.FileExists(t, path)

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9, loaded.Retrieval.TopK)
}

func TestLoadMissingSecretFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "reranker:\n  api_key: ${PAPERCHAT_NO_SUCH_VAR}\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PAPERCHAT_NO_SUCH_VAR")
}
