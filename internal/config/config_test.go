package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DUXSOUP_USER_ID", "user-1")
	t.Setenv("DUXSOUP_API_KEY", "secret")

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, "3000", cfg.App.Port)
	assert.Equal(t, 100, cfg.Sync.Visit.DailyLimit)
	assert.Equal(t, 5*time.Second, cfg.Sync.Visit.ItemDelay)
	assert.Equal(t, 200, cfg.Sync.Scan.DailyLimit)
	assert.Equal(t, 3*time.Second, cfg.Sync.Scan.ItemDelay)
	assert.Equal(t, 3, cfg.Sync.MaxAttempts)
	assert.Equal(t, time.Hour, cfg.Sync.Interval)
	assert.Equal(t, WebhookModeDirect, cfg.Webhook.Mode)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfig_EnvOverridesYAML(t *testing.T) {
	dir := t.TempDir()
	yaml := []byte("sync:\n  visit:\n    daily_limit: 42\n  scan:\n    item_delay: 1s\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), yaml, 0o600))
	t.Setenv("SYNC_SCAN_DAILY_LIMIT", "7")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, 42, cfg.Sync.Visit.DailyLimit)
	assert.Equal(t, time.Second, cfg.Sync.Scan.ItemDelay)
	assert.Equal(t, 7, cfg.Sync.Scan.DailyLimit)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
}

func TestValidate(t *testing.T) {
	var cfg Config
	cfg.Sync.MaxAttempts = 3
	cfg.Sync.Visit = KindSettings{DailyLimit: 100, ItemDelay: time.Second}
	cfg.Sync.Scan = KindSettings{DailyLimit: 0, ItemDelay: time.Second}
	cfg.Webhook.Mode = WebhookModeKafka

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duxsoup.user_id is required")
	assert.Contains(t, err.Error(), "sync.scan.daily_limit must be positive")
	assert.Contains(t, err.Error(), "requires kafka.brokers")
}
