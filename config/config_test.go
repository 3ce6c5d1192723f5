package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, body string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "server:\n  data_dir: " + dir + "/data\ndb:\n  file: " + dir + "/db/queue.db\n" + body
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path, dir
}

func TestLoad_Defaults(t *testing.T) {
	path, dir := writeConfigFile(t, "")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, DefaultQueueConfig(), cfg.Queue)
	assert.Equal(t, 8089, cfg.Server.Port)
	assert.Equal(t, "en", cfg.Server.Language)
	assert.Equal(t, 30*time.Second, cfg.API.Timeout)
	assert.Equal(t, "fiscal/sync", cfg.MQTT.Topic)
	assert.Equal(t, "homeassistant", cfg.MQTT.DiscoveryPrefix)
	assert.Equal(t, 24*time.Hour, cfg.Cleanup.Retention)
	assert.True(t, cfg.Connectivity.StartOnline)

	assert.DirExists(t, filepath.Join(dir, "data"))
	assert.DirExists(t, filepath.Join(dir, "db"))
}

func TestLoad_FileAndEnvironment(t *testing.T) {
	path, _ := writeConfigFile(t, `queue:
  max_retries: 5
  retry_delay: 250ms
cache:
  resources:
    receipts:
      ttl: 10m
      cache_list: true
`)
	t.Setenv("FISCAL_SYNC_QUEUE_BATCH_SIZE", "4")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Queue.MaxRetries)
	assert.Equal(t, 250*time.Millisecond, cfg.Queue.RetryDelay)
	assert.Equal(t, 4, cfg.Queue.BatchSize)
	require.Contains(t, cfg.Cache.Resources, "receipts")
	assert.Equal(t, 10*time.Minute, cfg.Cache.Resources["receipts"].TTL)
	assert.True(t, cfg.Cache.Resources["receipts"].CacheList)
}

func TestLoad_RejectsInvalidQueue(t *testing.T) {
	path, _ := writeConfigFile(t, "queue:\n  batch_size: 0\n")

	_, err := Load(path)
	assert.ErrorContains(t, err, "batch_size")
}

func TestQueueConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultQueueConfig().Validate())

	cases := map[string]func(*QueueConfig){
		"negative retries":   func(q *QueueConfig) { q.MaxRetries = -1 },
		"empty queue":        func(q *QueueConfig) { q.MaxQueueSize = 0 },
		"shrinking backoff":  func(q *QueueConfig) { q.BackoffMultiplier = 0.5 },
		"negative delay":     func(q *QueueConfig) { q.RetryDelay = -time.Second },
		"negative max delay": func(q *QueueConfig) { q.MaxRetryDelay = -time.Second },
	}
	for name, mutate := range cases {
		q := DefaultQueueConfig()
		mutate(&q)
		assert.Error(t, q.Validate(), name)
	}
}
