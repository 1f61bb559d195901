// Package config defines the mapsync configuration tree.  No I/O or parsing
// lives here, only plain data types and validation.
package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/turtacn/mapsync/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/mapsync/pkg/errors"
)

// ServerConfig holds HTTP host tunables.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // "debug" | "release" | "test"
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// AllowedOrigins enables CORS for these origins.  Empty disables CORS.
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string { return fmt.Sprintf("%s:%d", s.Host, s.Port) }

// SpatialConfig locates the remote spatial service.
type SpatialConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	APIKey    string        `mapstructure:"api_key"`
	Timeout   time.Duration `mapstructure:"timeout"`
	RetryMax  int           `mapstructure:"retry_max"`
	RetryWait time.Duration `mapstructure:"retry_wait"`
	UserAgent string        `mapstructure:"user_agent"`
}

// ViewportConfig tunes the viewport tracker.
type ViewportConfig struct {
	EchoWindow time.Duration `mapstructure:"echo_window"`
}

// FetchConfig tunes the spatial fetcher.  Threshold is fixed for the life of
// an engine; changing it requires a restart.
type FetchConfig struct {
	Debounce     time.Duration `mapstructure:"debounce"`
	Timeout      time.Duration `mapstructure:"timeout"`
	Threshold    float64       `mapstructure:"max_zoom_for_clusters"`
	Status       string        `mapstructure:"status"`
	ClusterLimit int           `mapstructure:"cluster_limit"`
	ResultLimit  int           `mapstructure:"result_limit"`
}

// SyncConfig tunes the cross-boundary sync channel.
type SyncConfig struct {
	RetryDelay        time.Duration `mapstructure:"retry_delay"`
	KeepAliveInterval time.Duration `mapstructure:"keep_alive_interval"`
}

// RenderConfig tunes marker projection.
type RenderConfig struct {
	Locale string `mapstructure:"locale"`
}

// RedisConfig holds the optional spatial response cache settings.
type RedisConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	TTL          time.Duration `mapstructure:"ttl"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
}

// KafkaConfig holds the optional visible-set event producer settings.
type KafkaConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	BatchSize    int           `mapstructure:"batch_size"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	RequiredAcks int           `mapstructure:"required_acks"` // -1 all, 0 none, 1 leader
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
	Path      string `mapstructure:"path"`
}

// Config is the root configuration object.
type Config struct {
	Server   ServerConfig      `mapstructure:"server"`
	Spatial  SpatialConfig     `mapstructure:"spatial"`
	Viewport ViewportConfig    `mapstructure:"viewport"`
	Fetch    FetchConfig       `mapstructure:"fetch"`
	Sync     SyncConfig        `mapstructure:"sync"`
	Render   RenderConfig      `mapstructure:"render"`
	Redis    RedisConfig       `mapstructure:"redis"`
	Kafka    KafkaConfig       `mapstructure:"kafka"`
	Metrics  MetricsConfig     `mapstructure:"metrics"`
	Log      logging.LogConfig `mapstructure:"log"`
}

func invalid(format string, args ...interface{}) error {
	return errors.ErrInvalidConfig.WithDetail(fmt.Sprintf(format, args...))
}

// Validate returns the first semantic error found.  Callers treat any error
// as fatal at startup.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return invalid("server.port %d is out of range [1, 65535]", c.Server.Port)
	}
	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		return invalid("server.mode %q is invalid; expected debug|release|test", c.Server.Mode)
	}

	u, err := url.Parse(c.Spatial.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return invalid("spatial.base_url %q must be an absolute URL", c.Spatial.BaseURL)
	}
	if c.Spatial.RetryMax < 0 {
		return invalid("spatial.retry_max must be >= 0, got %d", c.Spatial.RetryMax)
	}

	if c.Fetch.Debounce < MinDebounce || c.Fetch.Debounce > MaxDebounce {
		return invalid("fetch.debounce %s is outside [%s, %s]", c.Fetch.Debounce, MinDebounce, MaxDebounce)
	}
	if c.Fetch.Timeout <= 0 {
		return invalid("fetch.timeout must be positive")
	}
	if c.Fetch.Threshold <= 0 || c.Fetch.Threshold > 24 {
		return invalid("fetch.max_zoom_for_clusters %g is out of range (0, 24]", c.Fetch.Threshold)
	}
	if c.Fetch.ClusterLimit < 1 || c.Fetch.ResultLimit < 1 {
		return invalid("fetch.cluster_limit and fetch.result_limit must be >= 1")
	}

	if c.Sync.RetryDelay <= 0 {
		return invalid("sync.retry_delay must be positive")
	}
	if c.Sync.KeepAliveInterval < 0 {
		return invalid("sync.keep_alive_interval must be >= 0")
	}

	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			return invalid("redis.addr is required when redis is enabled")
		}
		if c.Redis.DB < 0 {
			return invalid("redis.db must be >= 0, got %d", c.Redis.DB)
		}
	}

	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return invalid("kafka.brokers must contain at least one broker when kafka is enabled")
		}
		if c.Kafka.Topic == "" {
			return invalid("kafka.topic is required when kafka is enabled")
		}
		switch c.Kafka.RequiredAcks {
		case -1, 0, 1:
		default:
			return invalid("kafka.required_acks %d is invalid; expected -1|0|1", c.Kafka.RequiredAcks)
		}
	}

	switch c.Log.Level {
	case logging.LevelDebug, logging.LevelInfo, logging.LevelWarn, logging.LevelError:
	default:
		return invalid("log.level %q is invalid; expected debug|info|warn|error", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return invalid("log.format %q is invalid; expected json|console", c.Log.Format)
	}

	return nil
}

//Personal.AI order the ending
