package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/lsc-studio/lscauth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"
)

// resolve runs the command with a capturing action and returns the resolved config.
func resolve(t *testing.T, args ...string) serverConfig {
	t.Helper()
	var got serverConfig
	cmd := newCommand()
	cmd.Action = func(_ context.Context, cmd *cli.Command) error {
		got = loadConfig(cmd)
		return nil
	}
	require.NoError(t, cmd.Run(context.Background(), append([]string{"lscauthd"}, args...)))
	return got
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg := resolve(t, "--config", filepath.Join(t.TempDir(), "missing.toml"))

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, 15*time.Minute, cfg.AccessTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.RefreshTTL)
	assert.Equal(t, defaultPurgeInterval, cfg.PurgeInterval)
	assert.Equal(t, 587, cfg.SMTP.Port)
	assert.True(t, cfg.SMTP.TLS)
	assert.Equal(t, "http://localhost:3000", cfg.SMTP.BaseURL)
	assert.Empty(t, cfg.DatabaseURL)
	assert.Empty(t, cfg.RedisURL)
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	t.Setenv("JWT_ACCESS_SECRET", strings.Repeat("a", 32))
	t.Setenv("JWT_ACCESS_EXPIRES_IN", "60")
	t.Setenv("DATABASE_URL", "postgres://auth@localhost/auth")
	t.Setenv("API_KEY_ENV", "live")

	cfg := resolve(t, "--config", filepath.Join(t.TempDir(), "missing.toml"))

	assert.Equal(t, strings.Repeat("a", 32), cfg.AccessSecret)
	assert.Equal(t, time.Minute, cfg.AccessTTL)
	assert.Equal(t, "postgres://auth@localhost/auth", cfg.DatabaseURL)
	assert.Equal(t, "live", cfg.APIKeyEnv)
}

func TestLoadConfigFromTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lscauth.toml")
	content := `
[server]
addr = ":9090"
base_url = "https://app.example.com"

[jwt]
refresh_expires_in = 3600

[smtp]
host = "smtp.example.com"
port = 465

[log]
format = "json"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg := resolve(t, "--config", path)

	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, time.Hour, cfg.RefreshTTL)
	assert.Equal(t, "smtp.example.com", cfg.SMTP.Host)
	assert.Equal(t, 465, cfg.SMTP.Port)
	assert.Equal(t, "https://app.example.com", cfg.SMTP.BaseURL)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestFlagsOverrideEnvironment(t *testing.T) {
	t.Setenv("ADDR", ":7000")
	cfg := resolve(t, "--config", filepath.Join(t.TempDir(), "missing.toml"), "--addr", ":7001")
	assert.Equal(t, ":7001", cfg.Addr)
}

func TestAuthConfigBuildsEngine(t *testing.T) {
	cfg := serverConfig{
		AccessSecret:  strings.Repeat("a", 32),
		RefreshSecret: strings.Repeat("r", 32),
		AccessTTL:     5 * time.Minute,
		APIKeyEnv:     "live",
		BcryptCost:    4,
	}

	authCfg := cfg.authConfig()
	assert.Equal(t, 5*time.Minute, authCfg.JWT.AccessTTL)
	assert.Equal(t, lscauth.DefaultConfig().JWT.RefreshTTL, authCfg.JWT.RefreshTTL)
	assert.Equal(t, "live", authCfg.APIKey.Environment)
	assert.False(t, authCfg.Metrics.Enabled)

	engine, err := lscauth.New().WithConfig(authCfg).WithStore(lscauth.NewMemoryStore()).Build()
	require.NoError(t, err)
	engine.Close()
}

func TestAuthConfigRejectsSharedSecrets(t *testing.T) {
	secret := strings.Repeat("s", 32)
	cfg := serverConfig{AccessSecret: secret, RefreshSecret: secret, BcryptCost: 4}

	_, err := lscauth.New().WithConfig(cfg.authConfig()).WithStore(lscauth.NewMemoryStore()).Build()
	assert.Error(t, err)
}

func TestNewLoggerFormats(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&buf, "warn", "json").Info("hidden")
	newLogger(&buf, "warn", "json").Warn("shown", "key", "value")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
	assert.Contains(t, out, `"key":"value"`)

	buf.Reset()
	newLogger(&buf, "debug", "text").Debug("tinted")
	assert.Contains(t, buf.String(), "tinted")
}
