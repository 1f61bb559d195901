package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validConfigYAML = `
server:
  host: "localhost"
  port: 8080
  mode: "test"
spatial:
  base_url: "http://spatial.local:8081"
  timeout: 5s
fetch:
  debounce: 250ms
  max_zoom_for_clusters: 14
  status: "active"
sync:
  retry_delay: 500ms
redis:
  enabled: true
  addr: "localhost:6379"
  ttl: 20s
kafka:
  enabled: true
  brokers: ["b1:9092", "b2:9092"]
log:
  level: "info"
  format: "json"
`

func createTempConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_FromFile_ValidConfig(t *testing.T) {
	cfg, err := Load(createTempConfigFile(t, validConfigYAML))
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, "test", cfg.Server.Mode)
	assert.Equal(t, "http://spatial.local:8081", cfg.Spatial.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.Spatial.Timeout)
	assert.Equal(t, 250*time.Millisecond, cfg.Fetch.Debounce)
	assert.Equal(t, 14.0, cfg.Fetch.Threshold)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, 20*time.Second, cfg.Redis.TTL)
	assert.Equal(t, []string{"b1:9092", "b2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, DefaultKafkaTopic, cfg.Kafka.Topic)
}

func TestLoad_FromFile_FileNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoad_FromFile_InvalidYAML(t *testing.T) {
	_, err := Load(createTempConfigFile(t, "server: ["))
	assert.Error(t, err)
}

func TestLoad_FromFile_ValidationFailure(t *testing.T) {
	_, err := Load(createTempConfigFile(t, "fetch:\n  debounce: 2s\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetch.debounce")
}

func TestLoad_EnvOverride(t *testing.T) {
	path := createTempConfigFile(t, validConfigYAML)
	t.Setenv("MAPSYNC_SERVER_PORT", "9999")
	t.Setenv("MAPSYNC_FETCH_DEBOUNCE", "180ms")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, 180*time.Millisecond, cfg.Fetch.Debounce)
}

func TestLoadFromEnv_NoFile(t *testing.T) {
	t.Setenv("MAPSYNC_SPATIAL_BASE_URL", "https://spatial.example.com")
	t.Setenv("MAPSYNC_FETCH_MAX_ZOOM_FOR_CLUSTERS", "13")
	t.Setenv("MAPSYNC_KAFKA_ENABLED", "true")
	t.Setenv("MAPSYNC_KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "https://spatial.example.com", cfg.Spatial.BaseURL)
	assert.Equal(t, 13.0, cfg.Fetch.Threshold)
	assert.True(t, cfg.Kafka.Enabled)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, DefaultDebounce, cfg.Fetch.Debounce)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestMustLoad(t *testing.T) {
	path := createTempConfigFile(t, validConfigYAML)
	assert.NotPanics(t, func() { MustLoad(path) })
	assert.Panics(t, func() { MustLoad(filepath.Join(t.TempDir(), "none.yaml")) })
}

func TestWatch_MissingFile(t *testing.T) {
	err := Watch(filepath.Join(t.TempDir(), "none.yaml"), func(*Config) {}, nil)
	assert.Error(t, err)
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	path := createTempConfigFile(t, validConfigYAML)

	var (
		mu    sync.Mutex
		level string
	)
	require.NoError(t, Watch(path, func(c *Config) {
		mu.Lock()
		level = c.Log.Level
		mu.Unlock()
	}, nil))

	updated := "spatial:\n  base_url: \"http://spatial.local:8081\"\nlog:\n  level: \"debug\"\n"
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return level == "debug"
	}, 3*time.Second, 20*time.Millisecond)
}

//Personal.AI order the ending
