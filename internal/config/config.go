// Package config reads server and client settings from the environment. The
// binaries import github.com/joho/godotenv/autoload so a local .env file is
// honoured as well.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Config holds every knob the relay and signaling servers read.
type Config struct {
	// Relay listen port (public variant).
	Port int
	// SignalingPort is the signaling server's listen port.
	SignalingPort int
	// RelayMode is "public" or "local".
	RelayMode string
	// LocalAddr is where the local relay variant binds.
	LocalAddr string

	// RedisAddr enables the per-room action log when non-empty.
	RedisAddr string
	RedisDB   int

	ReconnectWindow    time.Duration
	RequireResumeToken bool
	JWTPrivateKeyPath  string
	JWTPublicKeyPath   string

	// AllowedOrigins restricts CORS on the HTTP endpoints; empty allows any.
	AllowedOrigins []string

	WriteTimeout time.Duration
	LogLevel     logrus.Level
}

// Load reads the environment. Unset variables fall back to defaults; malformed
// ones are an error.
func Load() (Config, error) {
	var err error
	cfg := Config{
		RelayMode:         strings.ToLower(getEnv("RELAY_MODE", "public")),
		LocalAddr:         getEnv("LOCAL_ADDR", "127.0.0.1:8082"),
		RedisAddr:         os.Getenv("REDIS_ADDR"),
		JWTPrivateKeyPath: os.Getenv("JWT_PRIVATE_KEY_PATH"),
		JWTPublicKeyPath:  os.Getenv("JWT_PUBLIC_KEY_PATH"),
		AllowedOrigins:    splitList(os.Getenv("ALLOWED_ORIGINS")),
	}

	if cfg.Port, err = getEnvInt("PORT", 8080); err != nil {
		return Config{}, err
	}
	if cfg.SignalingPort, err = getEnvInt("SIGNALING_PORT", 8081); err != nil {
		return Config{}, err
	}
	if cfg.RedisDB, err = getEnvInt("REDIS_DB", 0); err != nil {
		return Config{}, err
	}
	if cfg.ReconnectWindow, err = getEnvDuration("RECONNECT_WINDOW", 10*time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.WriteTimeout, err = getEnvDuration("WRITE_TIMEOUT", 5*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.RequireResumeToken, err = getEnvBool("REQUIRE_RESUME_TOKEN", false); err != nil {
		return Config{}, err
	}
	if cfg.LogLevel, err = logrus.ParseLevel(getEnv("LOG_LEVEL", "debug")); err != nil {
		return Config{}, fmt.Errorf("LOG_LEVEL: %w", err)
	}

	if cfg.RelayMode != "public" && cfg.RelayMode != "local" {
		return Config{}, fmt.Errorf("RELAY_MODE must be public or local, got %q", cfg.RelayMode)
	}
	return cfg, nil
}

// RelayAddr is the listen address of the relay server for the configured mode.
func (c Config) RelayAddr() string {
	if c.RelayMode == "local" {
		return c.LocalAddr
	}
	return fmt.Sprintf(":%d", c.Port)
}

// SignalingAddr is the listen address of the signaling server.
func (c Config) SignalingAddr() string {
	return fmt.Sprintf(":%d", c.SignalingPort)
}

// NewLogger builds the process logger at the configured level.
func (c Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(c.LogLevel)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return logger
}

// getEnv is a helper to read an environment variable or return a default value.
func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func getEnvBool(key string, def bool) (bool, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func getEnvDuration(key string, def time.Duration) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
