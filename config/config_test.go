package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumen/storefront-core/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.HTTP.Host)
	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, 15*time.Second, cfg.HTTP.ReadTimeout)
	assert.Equal(t, "storefront.db", cfg.DB.Path)
	assert.Equal(t, time.Hour, cfg.Sweeper.Interval)
	assert.Equal(t, 10*time.Second, cfg.Sweeper.SettleDelay)
	assert.Equal(t, 24*time.Hour, cfg.Idempotency.TTL)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http:
  port: 9090
db:
  path: /tmp/test.db
sweeper:
  interval: 30m
`), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.HTTP.Port)
	assert.Equal(t, "/tmp/test.db", cfg.DB.Path)
	assert.Equal(t, 30*time.Minute, cfg.Sweeper.Interval)
	assert.Equal(t, "0.0.0.0", cfg.HTTP.Host, "untouched keys keep their defaults")
}

func TestLoad_EnvironmentWinsOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("http:\n  port: 9090\n"), 0o644))

	t.Setenv("HTTP_PORT", "7070")
	t.Setenv("SWEEPER_INTERVAL_MINUTES", "5")
	t.Setenv("IDEMPOTENCY_TTL_HOURS", "1")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.HTTP.Port)
	assert.Equal(t, 5*time.Minute, cfg.Sweeper.Interval)
	assert.Equal(t, time.Hour, cfg.Idempotency.TTL)
}

func TestLoad_MalformedEnvIgnored(t *testing.T) {
	t.Setenv("HTTP_PORT", "not-a-number")

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.HTTP.Port)
}

func TestLoad_MissingFileFails(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err, "an explicitly named config file must exist")
}
