package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	assert.NoError(t, Default().Validate())
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
models:
  provider: anthropic
  name: claude-sonnet-4-20250514
store:
  backend: sqlite
  path: /tmp/scribemesh.db
discussion:
  max_turns: 8
  timeout: 90s
stream:
  keepalive_interval: 5s
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "anthropic", cfg.Models.Provider)
	assert.Equal(t, "claude-sonnet-4-20250514", cfg.Models.Name)
	assert.Equal(t, "sqlite", cfg.Store.Backend)
	assert.Equal(t, 8, cfg.Discussion.MaxTurns)
	assert.Equal(t, 90*time.Second, cfg.Discussion.Timeout.Std())
	assert.Equal(t, 5*time.Second, cfg.Stream.KeepaliveInterval.Std())

	// Untouched sections keep their defaults.
	assert.Equal(t, "scribe", cfg.Router.DefaultAgent)
	assert.Equal(t, 64, cfg.Stream.BufferSize)
}

func TestLoadRejectsBadProvider(t *testing.T) {
	path := writeConfig(t, "models:\n  provider: cohere\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidateSqliteNeedsPath(t *testing.T) {
	cfg := Default()
	cfg.Store.Backend = "sqlite"
	assert.Error(t, cfg.Validate())

	cfg.Store.Path = "/tmp/db.sqlite"
	assert.NoError(t, cfg.Validate())
}

func TestValidateDiscussionBounds(t *testing.T) {
	cfg := Default()
	cfg.Discussion.MaxTurns = 0
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Discussion.Timeout = 0
	assert.Error(t, cfg.Validate())
}

func TestEnvOverridesAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-env")
	path := writeConfig(t, "models:\n  provider: openai\n  api_key: sk-file\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sk-env", cfg.Models.APIKey)
}
