package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_CreatesTemplateAndAppliesDefaults(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	require.NoError(t, err)

	_, statErr := os.Stat(filepath.Join(dir, "config.toml"))
	assert.NoError(t, statErr, "template should be written")

	assert.Equal(t, 60*time.Second, cfg.Monitor.Interval)
	assert.Equal(t, 5*time.Second, cfg.Monitor.RetryDelay)
	assert.Equal(t, 3, cfg.Monitor.MaxRetries)
	assert.Equal(t, 24*time.Hour, cfg.Alerts.DedupWindow)
	assert.Equal(t, time.Hour, cfg.Cache.TTL)
	assert.Equal(t, 5, cfg.Cache.BatchSize)
	assert.Equal(t, 100*time.Millisecond, cfg.Render.SlowThreshold)
	assert.Equal(t, 200*time.Millisecond, cfg.Render.Debounce)
	assert.Equal(t, 5*time.Second, cfg.Server.RefreshLimit)
	assert.Equal(t, "mock", cfg.Provider.Kind)
}

func TestLoad_ReadsFileValues(t *testing.T) {
	dir := t.TempDir()
	content := `
[monitor]
interval = "30s"
max_retries = 5

[alerts]
dedup_window = "2h"

[store]
backend = "memory"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(content), 0644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.Monitor.Interval)
	assert.Equal(t, 5, cfg.Monitor.MaxRetries)
	assert.Equal(t, 2*time.Hour, cfg.Alerts.DedupWindow)
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, 5*time.Second, cfg.Monitor.RetryDelay, "unset keys keep defaults")
}

func TestLoad_EnvOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("FII_PROVIDER", "brapi")
	t.Setenv("FII_STORE_PASSPHRASE", "s3cret")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "brapi", cfg.Provider.Kind)
	assert.True(t, cfg.Store.Sealed)
	assert.Equal(t, "s3cret", cfg.Store.Passphrase)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"zero interval", func(c *Config) { c.Monitor.Interval = 0 }, true},
		{"negative retries", func(c *Config) { c.Monitor.MaxRetries = -1 }, true},
		{"unknown provider", func(c *Config) { c.Provider.Kind = "yahoo" }, true},
		{"unknown backend", func(c *Config) { c.Store.Backend = "redis" }, true},
		{"sealed without passphrase", func(c *Config) { c.Store.Sealed = true }, true},
		{"bad notification level", func(c *Config) { c.Notifications.Level = "loud" }, true},
		{"zero batch size", func(c *Config) { c.Cache.BatchSize = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
