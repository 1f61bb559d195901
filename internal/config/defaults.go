package config

import (
	"time"

	"github.com/spf13/viper"
)

// Default values.
const (
	DefaultServerHost      = "0.0.0.0"
	DefaultServerPort      = 8080
	DefaultServerMode      = "release"
	DefaultReadTimeout     = 15 * time.Second
	DefaultShutdownTimeout = 10 * time.Second

	DefaultSpatialBaseURL = "http://localhost:8081"
	DefaultSpatialTimeout = 10 * time.Second
	DefaultUserAgent      = "mapsync/1.0"

	DefaultEchoWindow = 1500 * time.Millisecond

	DefaultDebounce     = 200 * time.Millisecond
	MinDebounce         = 150 * time.Millisecond
	MaxDebounce         = 300 * time.Millisecond
	DefaultFetchTimeout = 10 * time.Second
	DefaultThreshold    = 15.0
	DefaultStatus       = "active"
	DefaultClusterLimit = 500
	DefaultResultLimit  = 500

	DefaultRetryDelay        = 500 * time.Millisecond
	DefaultKeepAliveInterval = 2 * time.Second

	DefaultLocale = "en-US"

	DefaultRedisAddr     = "localhost:6379"
	DefaultRedisPoolSize = 10
	DefaultRedisTTL      = 30 * time.Second
	DefaultRedisPrefix   = "mapsync:"

	DefaultKafkaBroker       = "localhost:9092"
	DefaultKafkaTopic        = "mapsync.visibleset.v1"
	DefaultKafkaBatchSize    = 100
	DefaultKafkaBatchTimeout = 50 * time.Millisecond
	DefaultKafkaWriteTimeout = 5 * time.Second

	DefaultMetricsNamespace = "mapsync"
	DefaultMetricsPath      = "/metrics"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// ApplyDefaults fills every zero-value field in cfg.  Explicit values win.
// Booleans are left alone: a false Enabled flag is indistinguishable from an
// unset one.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}

	if cfg.Server.Host == "" {
		cfg.Server.Host = DefaultServerHost
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultServerPort
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = DefaultServerMode
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}

	if cfg.Spatial.BaseURL == "" {
		cfg.Spatial.BaseURL = DefaultSpatialBaseURL
	}
	if cfg.Spatial.Timeout == 0 {
		cfg.Spatial.Timeout = DefaultSpatialTimeout
	}
	if cfg.Spatial.UserAgent == "" {
		cfg.Spatial.UserAgent = DefaultUserAgent
	}

	if cfg.Viewport.EchoWindow == 0 {
		cfg.Viewport.EchoWindow = DefaultEchoWindow
	}

	if cfg.Fetch.Debounce == 0 {
		cfg.Fetch.Debounce = DefaultDebounce
	}
	if cfg.Fetch.Timeout == 0 {
		cfg.Fetch.Timeout = DefaultFetchTimeout
	}
	if cfg.Fetch.Threshold == 0 {
		cfg.Fetch.Threshold = DefaultThreshold
	}
	if cfg.Fetch.Status == "" {
		cfg.Fetch.Status = DefaultStatus
	}
	if cfg.Fetch.ClusterLimit == 0 {
		cfg.Fetch.ClusterLimit = DefaultClusterLimit
	}
	if cfg.Fetch.ResultLimit == 0 {
		cfg.Fetch.ResultLimit = DefaultResultLimit
	}

	if cfg.Sync.RetryDelay == 0 {
		cfg.Sync.RetryDelay = DefaultRetryDelay
	}
	if cfg.Sync.KeepAliveInterval == 0 {
		cfg.Sync.KeepAliveInterval = DefaultKeepAliveInterval
	}

	if cfg.Render.Locale == "" {
		cfg.Render.Locale = DefaultLocale
	}

	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = DefaultRedisAddr
	}
	if cfg.Redis.PoolSize == 0 {
		cfg.Redis.PoolSize = DefaultRedisPoolSize
	}
	if cfg.Redis.TTL == 0 {
		cfg.Redis.TTL = DefaultRedisTTL
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = DefaultRedisPrefix
	}

	if len(cfg.Kafka.Brokers) == 0 {
		cfg.Kafka.Brokers = []string{DefaultKafkaBroker}
	}
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = DefaultKafkaTopic
	}
	if cfg.Kafka.BatchSize == 0 {
		cfg.Kafka.BatchSize = DefaultKafkaBatchSize
	}
	if cfg.Kafka.BatchTimeout == 0 {
		cfg.Kafka.BatchTimeout = DefaultKafkaBatchTimeout
	}
	if cfg.Kafka.WriteTimeout == 0 {
		cfg.Kafka.WriteTimeout = DefaultKafkaWriteTimeout
	}

	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultMetricsPath
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}
}

// registerKeys declares every key with viper so AutomaticEnv can resolve it
// during Unmarshal even when no config file mentions the key.
func registerKeys(v *viper.Viper) {
	defaults := map[string]interface{}{
		"server.host":             DefaultServerHost,
		"server.port":             DefaultServerPort,
		"server.mode":             DefaultServerMode,
		"server.read_timeout":     DefaultReadTimeout,
		"server.write_timeout":    time.Duration(0),
		"server.shutdown_timeout": DefaultShutdownTimeout,
		"server.allowed_origins":  []string{},

		"spatial.base_url":   DefaultSpatialBaseURL,
		"spatial.api_key":    "",
		"spatial.timeout":    DefaultSpatialTimeout,
		"spatial.retry_max":  0,
		"spatial.retry_wait": time.Duration(0),
		"spatial.user_agent": DefaultUserAgent,

		"viewport.echo_window": DefaultEchoWindow,

		"fetch.debounce":              DefaultDebounce,
		"fetch.timeout":               DefaultFetchTimeout,
		"fetch.max_zoom_for_clusters": DefaultThreshold,
		"fetch.status":                DefaultStatus,
		"fetch.cluster_limit":         DefaultClusterLimit,
		"fetch.result_limit":          DefaultResultLimit,

		"sync.retry_delay":         DefaultRetryDelay,
		"sync.keep_alive_interval": DefaultKeepAliveInterval,

		"render.locale": DefaultLocale,

		"redis.enabled":       false,
		"redis.addr":          DefaultRedisAddr,
		"redis.password":      "",
		"redis.db":            0,
		"redis.pool_size":     DefaultRedisPoolSize,
		"redis.dial_timeout":  time.Duration(0),
		"redis.read_timeout":  time.Duration(0),
		"redis.write_timeout": time.Duration(0),
		"redis.ttl":           DefaultRedisTTL,
		"redis.key_prefix":    DefaultRedisPrefix,

		"kafka.enabled":       false,
		"kafka.brokers":       []string{DefaultKafkaBroker},
		"kafka.topic":         DefaultKafkaTopic,
		"kafka.batch_size":    DefaultKafkaBatchSize,
		"kafka.batch_timeout": DefaultKafkaBatchTimeout,
		"kafka.write_timeout": DefaultKafkaWriteTimeout,
		"kafka.required_acks": 1,

		"metrics.enabled":   true,
		"metrics.namespace": DefaultMetricsNamespace,
		"metrics.path":      DefaultMetricsPath,

		"log.level":  DefaultLogLevel,
		"log.format": DefaultLogFormat,
	}
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
}

//Personal.AI order the ending
