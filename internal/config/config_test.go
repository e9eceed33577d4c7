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
	t.Setenv("CHAT_CONFIG_FILE", "")
	t.Setenv("CHAT_API_URL", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:3000/api", cfg.APIBaseURL)
	assert.Equal(t, 10*time.Minute, cfg.RequestTimeout)
	assert.Equal(t, float64(90), cfg.UsageWarnPercent)
	assert.False(t, cfg.TracingEnabled)
}

func TestLoadFileOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat.yaml")
	require.NoError(t, os.WriteFile(path, []byte("chat_api_url: https://chat.example.com/api/\nchat_request_timeout: 5m\nrate_limit_requests: 7\n"), 0o600))

	t.Setenv("CHAT_CONFIG_FILE", path)
	t.Setenv("CHAT_API_URL", "")
	t.Setenv("RATE_LIMIT_REQUESTS", "12")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "https://chat.example.com/api", cfg.APIBaseURL)
	assert.Equal(t, 5*time.Minute, cfg.RequestTimeout)
	// Environment wins over the file.
	assert.Equal(t, 12, cfg.RateLimitRequests)
}

func TestLoadMissingFile(t *testing.T) {
	t.Setenv("CHAT_CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	_, err := Load()
	require.Error(t, err)
}

func TestLoadListEnv(t *testing.T) {
	t.Setenv("CHAT_CONFIG_FILE", "")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://app.example.com, ,http://localhost:5173")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"https://app.example.com", "http://localhost:5173"}, cfg.AllowedOrigins)
}
