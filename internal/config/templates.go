package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# FII Monitor Configuration

[monitor]
# Time between polling ticks
interval = "60s"
# Delay before retrying a failed tick
retry_delay = "5s"
# Retries per failure before falling back to the regular interval
max_retries = 3

[alerts]
# Identical notifications for the same rule are suppressed within this window
dedup_window = "24h"
# Notifications kept in history
history_limit = 200
# Notifications shown in listings
display_limit = 50

[cache]
# Validity of fetched fund data
ttl = "1h"
# Tickers requested concurrently per batch
batch_size = 5
# Pause between batches
batch_pause = "0s"
# Persist the fund cache in the store
persist = true

[render]
frame_interval = "16ms"
# Jobs averaging more than this are reported
slow_threshold = "100ms"
max_chained_passes = 10
debounce = "200ms"

[provider]
# Quote source: "mock" or "brapi"
kind = "mock"
base_url = "https://brapi.dev/api"
# Set FII_BRAPI_TOKEN instead of writing the token here
token = ""
timeout = "10s"
rate_limit = 5.0

[store]
# Backend: "memory" or "sqlite"
backend = "sqlite"
# Encrypt portfolio, transactions and alerts with a passphrase (FII_STORE_PASSPHRASE)
sealed = false

[server]
addr = ":8080"
dev_mode = false
# Minimum spacing between refreshes requested by one WebSocket client
refresh_limit = "5s"

[notifications]
# Level: all, alerts_only, errors_only
level = "all"
terminal = true

[notifications.webhook]
enabled = false
url = ""

[notifications.nats]
enabled = false
url = "nats://127.0.0.1:4222"
subject_prefix = "fii.alerts"

[schedule]
cache_purge = "@every 1h"
history_trim = "@daily"
plan_report = "0 9 1 * *"
history_max_age = "720h"

[log]
level = "info"
console = true
file = true
`

func createTemplateConfig(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, "config.toml")
	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}

	return nil
}

// ConfigPath returns the config file location inside configDir.
func ConfigPath(configDir string) string {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}
	return filepath.Join(configDir, "config.toml")
}
