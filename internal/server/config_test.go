package server

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, defaultConfig(), *cfg)
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	t.Setenv("SERVER_PORT", ":9090")
	t.Setenv("ALLOWED_ORIGINS", "http://a.example.com, https://b.example.com ,")
	t.Setenv("MAX_MESSAGE_SIZE", "1024")
	t.Setenv("AGENT_QUEUE_DEPTH", "2")
	t.Setenv("DELIVERY_TIMEOUT", "250ms")
	t.Setenv("LOG_LEVEL", "DEBUG")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Port)
	assert.Equal(t, []string{"http://a.example.com", "https://b.example.com"}, cfg.AllowedOrigins)
	assert.EqualValues(t, 1024, cfg.MaxMessageSize)
	assert.Equal(t, 2, cfg.AgentQueueDepth)
	assert.Equal(t, 250*time.Millisecond, cfg.DeliveryTimeout)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadConfigFromEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.env")
	require.NoError(t, os.WriteFile(path, []byte("SERVER_PORT=:7070\nSHUTDOWN_TIMEOUT=9s\n"), 0o600))
	t.Cleanup(func() {
		_ = os.Unsetenv("SERVER_PORT")
		_ = os.Unsetenv("SHUTDOWN_TIMEOUT")
	})

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Port)
	assert.Equal(t, 9*time.Second, cfg.ShutdownTimeout)
}

func TestLoadConfigMissingEnvFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.env"))
	require.Error(t, err)
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{name: "ping not shorter than pong wait", key: "PING_INTERVAL", val: "90s"},
		{name: "unknown log level", key: "LOG_LEVEL", val: "chatty"},
		{name: "unparseable duration", key: "WRITE_WAIT", val: "soon"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			_, err := LoadConfig()
			require.Error(t, err)
		})
	}
}

func TestSanitizeConfigFillsDefaults(t *testing.T) {
	cfg := sanitizeConfig(Config{LogLevel: " WARN "})

	def := defaultConfig()
	assert.Equal(t, def.Port, cfg.Port)
	assert.Equal(t, def.AgentQueueDepth, cfg.AgentQueueDepth)
	assert.Equal(t, def.DeliveryTimeout, cfg.DeliveryTimeout)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Empty(t, cfg.AllowedOrigins)
	require.NoError(t, cfg.Validate())
}

func TestParseOrigins(t *testing.T) {
	assert.Nil(t, parseOrigins("  "))
	assert.Equal(t, []string{"*"}, parseOrigins("*"))
	assert.Equal(t, []string{"http://a", "http://b"}, parseOrigins("http://a,,http://b"))
}
