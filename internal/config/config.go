// Package config provides configuration management for the FII monitor.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"fii-monitor/internal/logging"
)

// Config holds all application configuration.
type Config struct {
	Monitor       MonitorConfig      `mapstructure:"monitor"`
	Alerts        AlertsConfig       `mapstructure:"alerts"`
	Cache         CacheConfig        `mapstructure:"cache"`
	Render        RenderConfig       `mapstructure:"render"`
	Provider      ProviderConfig     `mapstructure:"provider"`
	Store         StoreConfig        `mapstructure:"store"`
	Server        ServerConfig       `mapstructure:"server"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	Schedule      ScheduleConfig     `mapstructure:"schedule"`
	Log           logging.LogConfig  `mapstructure:"log"`
}

// MonitorConfig controls the polling loop.
type MonitorConfig struct {
	Interval   time.Duration `mapstructure:"interval"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
	MaxRetries int           `mapstructure:"max_retries"`
}

// AlertsConfig controls alert evaluation and history retention.
type AlertsConfig struct {
	DedupWindow  time.Duration `mapstructure:"dedup_window"`
	HistoryLimit int           `mapstructure:"history_limit"`
	DisplayLimit int           `mapstructure:"display_limit"`
}

// CacheConfig controls the data source cache and batching.
type CacheConfig struct {
	TTL        time.Duration `mapstructure:"ttl"`
	BatchSize  int           `mapstructure:"batch_size"`
	BatchPause time.Duration `mapstructure:"batch_pause"`
	Persist    bool          `mapstructure:"persist"`
}

// RenderConfig controls the render scheduler.
type RenderConfig struct {
	FrameInterval    time.Duration `mapstructure:"frame_interval"`
	SlowThreshold    time.Duration `mapstructure:"slow_threshold"`
	MaxChainedPasses int           `mapstructure:"max_chained_passes"`
	Debounce         time.Duration `mapstructure:"debounce"`
}

// ProviderConfig selects the upstream quote source.
type ProviderConfig struct {
	Kind      string        `mapstructure:"kind"` // mock, brapi
	BaseURL   string        `mapstructure:"base_url"`
	Token     string        `mapstructure:"token"`
	Timeout   time.Duration `mapstructure:"timeout"`
	RateLimit float64       `mapstructure:"rate_limit"` // requests per second
}

// StoreConfig selects the key/value backend.
type StoreConfig struct {
	Backend    string `mapstructure:"backend"` // memory, sqlite
	Path       string `mapstructure:"path"`
	Sealed     bool   `mapstructure:"sealed"`
	Passphrase string `mapstructure:"passphrase"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Addr         string        `mapstructure:"addr"`
	DevMode      bool          `mapstructure:"dev_mode"`
	RefreshLimit time.Duration `mapstructure:"refresh_limit"` // per WebSocket client
}

// NotificationConfig holds notification configuration.
type NotificationConfig struct {
	Level    string        `mapstructure:"level"` // all, alerts_only, errors_only
	Terminal bool          `mapstructure:"terminal"`
	Webhook  WebhookConfig `mapstructure:"webhook"`
	NATS     NATSConfig    `mapstructure:"nats"`
}

// WebhookConfig holds webhook notification configuration.
type WebhookConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
}

// NATSConfig holds NATS notification configuration.
type NATSConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	URL           string `mapstructure:"url"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

// ScheduleConfig holds cron expressions for maintenance jobs.
type ScheduleConfig struct {
	CachePurge    string        `mapstructure:"cache_purge"`
	HistoryTrim   string        `mapstructure:"history_trim"`
	PlanReport    string        `mapstructure:"plan_report"`
	HistoryMaxAge time.Duration `mapstructure:"history_max_age"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/fii-monitor"
	}
	return filepath.Join(home, ".config", "fii-monitor")
}

// Default returns the configuration used when no file overrides a key.
func Default() *Config {
	v := viper.New()
	setDefaults(v, DefaultConfigDir())
	cfg := &Config{}
	_ = v.Unmarshal(cfg)
	return cfg
}

func setDefaults(v *viper.Viper, configDir string) {
	v.SetDefault("monitor.interval", 60*time.Second)
	v.SetDefault("monitor.retry_delay", 5*time.Second)
	v.SetDefault("monitor.max_retries", 3)

	v.SetDefault("alerts.dedup_window", 24*time.Hour)
	v.SetDefault("alerts.history_limit", 200)
	v.SetDefault("alerts.display_limit", 50)

	v.SetDefault("cache.ttl", time.Hour)
	v.SetDefault("cache.batch_size", 5)
	v.SetDefault("cache.batch_pause", time.Duration(0))
	v.SetDefault("cache.persist", true)

	v.SetDefault("render.frame_interval", 16*time.Millisecond)
	v.SetDefault("render.slow_threshold", 100*time.Millisecond)
	v.SetDefault("render.max_chained_passes", 10)
	v.SetDefault("render.debounce", 200*time.Millisecond)

	v.SetDefault("provider.kind", "mock")
	v.SetDefault("provider.base_url", "https://brapi.dev/api")
	v.SetDefault("provider.timeout", 10*time.Second)
	v.SetDefault("provider.rate_limit", 5.0)

	v.SetDefault("store.backend", "sqlite")
	v.SetDefault("store.path", filepath.Join(configDir, "fii-monitor.db"))
	v.SetDefault("store.sealed", false)

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.dev_mode", false)
	v.SetDefault("server.refresh_limit", 5*time.Second)

	v.SetDefault("notifications.level", "all")
	v.SetDefault("notifications.terminal", true)
	v.SetDefault("notifications.nats.url", "nats://127.0.0.1:4222")
	v.SetDefault("notifications.nats.subject_prefix", "fii.alerts")

	v.SetDefault("schedule.cache_purge", "@every 1h")
	v.SetDefault("schedule.history_trim", "@daily")
	v.SetDefault("schedule.plan_report", "0 9 1 * *")
	v.SetDefault("schedule.history_max_age", 30*24*time.Hour)

	logDefaults := logging.DefaultLogConfig()
	v.SetDefault("log.level", logDefaults.Level)
	v.SetDefault("log.console", logDefaults.Console)
	v.SetDefault("log.file", logDefaults.File)
	v.SetDefault("log.file_path", filepath.Join(configDir, "logs", "fii-monitor.log"))
	v.SetDefault("log.max_size", logDefaults.MaxSize)
	v.SetDefault("log.max_backups", logDefaults.MaxBackups)
	v.SetDefault("log.max_age", logDefaults.MaxAge)
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory. A .env file in
// the working directory or the config directory is loaded first so that its
// variables take part in environment overrides.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	_ = godotenv.Load()
	_ = godotenv.Load(filepath.Join(configDir, ".env"))

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)
	setDefaults(v, configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config.toml: %w", err)
		}
		if err := createTemplateConfig(configDir); err != nil {
			return nil, fmt.Errorf("creating config template: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FII_PROVIDER"); v != "" {
		cfg.Provider.Kind = v
	}
	if v := os.Getenv("FII_BRAPI_TOKEN"); v != "" {
		cfg.Provider.Token = v
	}
	if v := os.Getenv("FII_STORE_PASSPHRASE"); v != "" {
		cfg.Store.Passphrase = v
		cfg.Store.Sealed = true
	}
	if v := os.Getenv("FII_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("FII_SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("FII_WEBHOOK_URL"); v != "" {
		cfg.Notifications.Webhook.URL = v
		cfg.Notifications.Webhook.Enabled = true
	}
	if v := os.Getenv("FII_NATS_URL"); v != "" {
		cfg.Notifications.NATS.URL = v
		cfg.Notifications.NATS.Enabled = true
	}
	if v := os.Getenv("FII_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Monitor.Interval <= 0 {
		return fmt.Errorf("monitor.interval must be positive")
	}
	if c.Monitor.RetryDelay <= 0 {
		return fmt.Errorf("monitor.retry_delay must be positive")
	}
	if c.Monitor.MaxRetries < 0 {
		return fmt.Errorf("monitor.max_retries must be non-negative")
	}
	if c.Alerts.DedupWindow < 0 {
		return fmt.Errorf("alerts.dedup_window must be non-negative")
	}
	if c.Alerts.HistoryLimit <= 0 || c.Alerts.DisplayLimit <= 0 {
		return fmt.Errorf("alerts history and display limits must be positive")
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be positive")
	}
	if c.Cache.BatchSize <= 0 {
		return fmt.Errorf("cache.batch_size must be positive")
	}
	if c.Render.Debounce < 0 {
		return fmt.Errorf("render.debounce must be non-negative")
	}
	if c.Render.MaxChainedPasses <= 0 {
		return fmt.Errorf("render.max_chained_passes must be positive")
	}

	switch strings.ToLower(c.Provider.Kind) {
	case "mock", "brapi":
	default:
		return fmt.Errorf("invalid provider kind: %s (must be 'mock' or 'brapi')", c.Provider.Kind)
	}
	switch strings.ToLower(c.Store.Backend) {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("invalid store backend: %s (must be 'memory' or 'sqlite')", c.Store.Backend)
	}
	if c.Store.Sealed && c.Store.Passphrase == "" {
		return fmt.Errorf("store.sealed requires a passphrase")
	}
	switch c.Notifications.Level {
	case "", "all", "alerts_only", "errors_only":
	default:
		return fmt.Errorf("invalid notification level: %s", c.Notifications.Level)
	}

	return nil
}
