// Package config provides configuration loading, defaults, and validation for
// the mapsync engine and its HTTP host.
package config

import (
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// envPrefix is the environment variable prefix used by all settings.
const envPrefix = "MAPSYNC"

// newViper builds a Viper instance with YAML file type, MAPSYNC_ env prefix,
// automatic env binding and a "." → "_" key replacer, so that
// "fetch.debounce" resolves to MAPSYNC_FETCH_DEBOUNCE.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	registerKeys(v)
	return v
}

// Load reads the YAML file at configPath, merges MAPSYNC_* environment
// overrides, applies defaults and validates the result.
func Load(configPath string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: failed to read config file %q: %w", configPath, err)
	}

	return unmarshalAndFinalize(v)
}

// LoadFromEnv builds a Config from MAPSYNC_* environment variables alone.
//
//	MAPSYNC_<SECTION>_<FIELD>   e.g.  MAPSYNC_SPATIAL_BASE_URL, MAPSYNC_REDIS_ADDR
func LoadFromEnv() (*Config, error) {
	return unmarshalAndFinalize(newViper())
}

func unmarshalAndFinalize(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal configuration: %w", err)
	}

	// Comma-separated env values arrive as a single element.
	if len(cfg.Kafka.Brokers) == 1 && strings.Contains(cfg.Kafka.Brokers[0], ",") {
		cfg.Kafka.Brokers = splitList(cfg.Kafka.Brokers[0])
	}
	if len(cfg.Server.AllowedOrigins) == 1 && strings.Contains(cfg.Server.AllowedOrigins[0], ",") {
		cfg.Server.AllowedOrigins = splitList(cfg.Server.AllowedOrigins[0])
	}

	ApplyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Watch monitors configPath and invokes onChange with the re-parsed Config on
// every write.  Only the log level is meant to be applied at runtime; the
// caller decides what to pick out of the new value.  Changes that fail to
// parse or validate are reported through onError (when non-nil) and
// onChange is skipped.
//
// Watch returns after the initial read; viper runs the watcher goroutine.
func Watch(configPath string, onChange func(*Config), onError func(error)) error {
	v := newViper()
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("config: failed to read config file %q: %w", configPath, err)
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := unmarshalAndFinalize(v)
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		onChange(cfg)
	})
	v.WatchConfig()
	return nil
}

// MustLoad is Load that panics on error.  main() only.
func MustLoad(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		panic(fmt.Sprintf("config: MustLoad failed: %v", err))
	}
	return cfg
}

//Personal.AI order the ending
