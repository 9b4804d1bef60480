package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := `
server:
  port: 9090
database:
  host: db.internal
  port: 3306
  user: bench
  password: secret
  dbname: bench
  charset: utf8mb4
defaults:
  runs_per_scenario: 6
  max_retries: 2
  temperature: 0.5
models:
  - id: custom-model
    name: Custom
    base_url: https://example.com/v1
    api_key_env: CUSTOM_API_KEY
    supports_strict: true
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 6, cfg.Defaults.RunsPerScenario)
	assert.Equal(t, 2, cfg.Defaults.MaxRetries)
	assert.InDelta(t, 0.5, cfg.Defaults.Temperature, 1e-9)
	assert.Equal(t, "outputs", cfg.Output.Dir, "output dir defaults when omitted")
	require.Len(t, cfg.Models, 1)
	assert.Equal(t, "custom-model", cfg.Models[0].ID)
	assert.True(t, cfg.Models[0].SupportsStrict)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadConfigDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 8080\n"), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Defaults.RunsPerScenario)
}
