package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("REPLICATE_API_TOKEN", "")
	t.Setenv("PORT", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "5001", cfg.Server.Port)
	assert.Equal(t, "https://api.replicate.com", cfg.Replicate.BaseURL)
	assert.Equal(t, 10*time.Second, cfg.Replicate.Timeout)
	assert.Empty(t, cfg.Replicate.APIToken)
	assert.Equal(t, 120*time.Second, cfg.Relay.DownloadTimeout)
	assert.Equal(t, 8192, cfg.Relay.ChunkSize)
	assert.Equal(t, "auralis-generated.mp3", cfg.Relay.Filename)
	assert.Equal(t, []string{"replicate.delivery"}, cfg.Relay.AllowedHosts)
	assert.Equal(t, time.Second, cfg.Poll.MinInterval)
	assert.Equal(t, 30, cfg.RateLimit.WatchPerMinute)
	assert.False(t, cfg.Auth.Enabled)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("REPLICATE_API_TOKEN", "  r8_test  ")
	t.Setenv("REPLICATE_BASE_URL", "http://localhost:9999/")
	t.Setenv("RELAY_ALLOWED_HOSTS", "a.example.com, b.example.com")
	t.Setenv("POLL_MIN_INTERVAL_MS", "250")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "r8_test", cfg.Replicate.APIToken)
	assert.Equal(t, "http://localhost:9999", cfg.Replicate.BaseURL)
	assert.Equal(t, []string{"a.example.com", "b.example.com"}, cfg.Relay.AllowedHosts)
	assert.Equal(t, 250*time.Millisecond, cfg.Poll.MinInterval)
}

func TestLoad_SecretFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	require.NoError(t, os.WriteFile(path, []byte("r8_from_file\n"), 0o600))

	t.Setenv("REPLICATE_API_TOKEN", "")
	t.Setenv("REPLICATE_API_TOKEN_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "r8_from_file", cfg.Replicate.APIToken)
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, splitList([]string{"a,b", " c ", ""}))
	assert.Nil(t, splitList(nil))
}
