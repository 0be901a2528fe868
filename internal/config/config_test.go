package config

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	for _, k := range []string{"PORT", "SIGNALING_PORT", "RELAY_MODE", "LOCAL_ADDR", "REDIS_ADDR", "REDIS_DB",
		"RECONNECT_WINDOW", "REQUIRE_RESUME_TOKEN", "LOG_LEVEL", "WRITE_TIMEOUT", "ALLOWED_ORIGINS"} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.RelayAddr())
	assert.Equal(t, ":8081", cfg.SignalingAddr())
	assert.Equal(t, "public", cfg.RelayMode)
	assert.Equal(t, 10*time.Minute, cfg.ReconnectWindow)
	assert.False(t, cfg.RequireResumeToken)
	assert.Equal(t, logrus.DebugLevel, cfg.LogLevel)
	assert.Empty(t, cfg.RedisAddr)
	assert.Empty(t, cfg.AllowedOrigins)
}

func TestLoadAllowedOrigins(t *testing.T) {
	clearEnv(t)
	t.Setenv("ALLOWED_ORIGINS", "https://duel.example.com, ,http://localhost:3000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"https://duel.example.com", "http://localhost:3000"}, cfg.AllowedOrigins)
}

func TestLoadLocalMode(t *testing.T) {
	clearEnv(t)
	t.Setenv("RELAY_MODE", "LOCAL")
	t.Setenv("RECONNECT_WINDOW", "90s")
	t.Setenv("REQUIRE_RESUME_TOKEN", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8082", cfg.RelayAddr())
	assert.Equal(t, 90*time.Second, cfg.ReconnectWindow)
	assert.True(t, cfg.RequireResumeToken)
}

func TestLoadRejectsBadValues(t *testing.T) {
	for key, val := range map[string]string{
		"PORT":             "eighty",
		"RECONNECT_WINDOW": "soon",
		"RELAY_MODE":       "mesh",
		"LOG_LEVEL":        "loud",
	} {
		t.Run(key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(key, val)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
