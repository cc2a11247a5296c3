// Package config provides configuration management for the bot fleet.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"
)

// Defaults applied by Normalize when a field is left unset.
const (
	defaultConnectTimeout = 60 * time.Second
	defaultIntervalSecs   = 60
	defaultWindow         = 100
	defaultSyncInterval   = "10m"
	defaultStatusPort     = 9847
)

// Config represents the complete fleet daemon configuration, loaded from a
// YAML file and overlaid with broker credentials from the environment.
type Config struct {
	Environment EnvironmentConfig `yaml:"environment"`
	Broker      BrokerConfig      `yaml:"broker"`
	Storage     StorageConfig     `yaml:"storage"`
	Sync        SyncConfig        `yaml:"sync"`
	Status      StatusConfig      `yaml:"status"`
	Bots        []BotConfig       `yaml:"bots"`
}

// EnvironmentConfig defines process-wide environment settings.
type EnvironmentConfig struct {
	LogLevel string `yaml:"log_level"` // debug | info | warn | error
}

// BrokerConfig defines broker connect settings. Credentials are normally
// supplied via environment variables (MT5_LOGIN, MT5_PASSWORD, ...) rather
// than the YAML file so they never land in version control; any value set
// directly in YAML is used only if the matching env var is absent.
type BrokerConfig struct {
	Path          string `yaml:"path"`
	Login         int64  `yaml:"login"`
	Password      string `yaml:"password"`
	Server        string `yaml:"server"`
	TimeoutMillis int    `yaml:"timeout_ms"`
	SymbolPrefix  string `yaml:"symbol_prefix"`
	SymbolSuffix  string `yaml:"symbol_suffix"`
}

// ConnectTimeout returns the configured broker connect timeout as a
// time.Duration.
func (b BrokerConfig) ConnectTimeout() time.Duration {
	if b.TimeoutMillis <= 0 {
		return defaultConnectTimeout
	}
	return time.Duration(b.TimeoutMillis) * time.Millisecond
}

// StorageConfig defines the trade store's data directory.
type StorageConfig struct {
	DataDir string `yaml:"data_dir"`
}

// SyncConfig defines the Trade Sync Service's polling cadence.
type SyncConfig struct {
	Interval string `yaml:"interval"`
}

// IntervalDuration parses Interval, falling back to defaultSyncInterval on
// an empty or invalid value.
func (s SyncConfig) IntervalDuration() time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(s.Interval))
	if err != nil || d <= 0 {
		d, _ = time.ParseDuration(defaultSyncInterval)
	}
	return d
}

// StatusConfig defines the optional read-only JSON status endpoint.
type StatusConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Port      int    `yaml:"port"`
	AuthToken string `yaml:"auth_token"`
}

// BotConfig describes one bot registration: the strategy class to bind, by
// name, plus its symbol/timeframe/interval/window tuple. The host program
// resolves Strategy by name against its own registry before calling
// fleet.Controller.AddBot — config does not import internal/strategy so it
// stays free of strategy-specific parameters.
type BotConfig struct {
	Strategy        string `yaml:"strategy"`
	Symbol          string `yaml:"symbol"`
	Timeframe       string `yaml:"timeframe"` // e.g. "M1", "M5", "H1"
	IntervalSeconds int    `yaml:"interval_seconds"`
	Window          int    `yaml:"window"`
}

// Load reads and parses the fleet configuration file from configPath, then
// overlays broker credentials from the environment and applies defaults.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "fleet.yaml"
	}

	data, err := os.ReadFile(configPath) // #nosec G304 -- configPath is an operator-supplied config file path
	if err != nil {
		return nil, fmt.Errorf("reading config file %q: %w", configPath, err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config %q: %w", configPath, err)
	}

	cfg.applyEnvOverrides()
	cfg.Normalize()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// applyEnvOverrides lets MT5_* environment variables override whatever the
// YAML file set for broker credentials, matching spec §6's external
// interface table.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("MT5_PATH"); v != "" {
		c.Broker.Path = v
	}
	if v := os.Getenv("MT5_LOGIN"); v != "" {
		if login, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Broker.Login = login
		}
	}
	if v := os.Getenv("MT5_PASSWORD"); v != "" {
		c.Broker.Password = v
	}
	if v := os.Getenv("MT5_SERVER"); v != "" {
		c.Broker.Server = v
	}
	if v := os.Getenv("MT5_TIMEOUT"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			c.Broker.TimeoutMillis = ms
		}
	}
	if v := os.Getenv("MT5_SYMBOL_PREFIX"); v != "" {
		c.Broker.SymbolPrefix = v
	}
	if v := os.Getenv("MT5_SYMBOL_SUFFIX"); v != "" {
		c.Broker.SymbolSuffix = v
	}
}

// Normalize fills in defaults for fields the config file and environment
// both left unset.
func (c *Config) Normalize() {
	if strings.TrimSpace(c.Environment.LogLevel) == "" {
		c.Environment.LogLevel = "info"
	}
	if c.Broker.TimeoutMillis <= 0 {
		c.Broker.TimeoutMillis = int(defaultConnectTimeout / time.Millisecond)
	}
	if strings.TrimSpace(c.Storage.DataDir) == "" {
		c.Storage.DataDir = "data"
	}
	if strings.TrimSpace(c.Sync.Interval) == "" {
		c.Sync.Interval = defaultSyncInterval
	}
	if c.Status.Port == 0 {
		c.Status.Port = defaultStatusPort
	}
	for i := range c.Bots {
		if c.Bots[i].IntervalSeconds <= 0 {
			c.Bots[i].IntervalSeconds = defaultIntervalSecs
		}
		if c.Bots[i].Window <= 0 {
			c.Bots[i].Window = defaultWindow
		}
		if strings.TrimSpace(c.Bots[i].Timeframe) == "" {
			c.Bots[i].Timeframe = "M1"
		}
	}
}

// Validate checks that all configuration values are present and
// consistent. It does not validate that Bots[i].Strategy names a strategy
// the host actually registered; that is a wiring-time concern for cmd/fleetd.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Environment.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("environment.log_level must be one of: debug, info, warn, error")
	}

	if strings.TrimSpace(c.Broker.Path) == "" {
		return fmt.Errorf("broker.path is required (set MT5_PATH)")
	}
	if c.Broker.Login <= 0 {
		return fmt.Errorf("broker.login is required (set MT5_LOGIN)")
	}
	if strings.TrimSpace(c.Broker.Password) == "" {
		return fmt.Errorf("broker.password is required (set MT5_PASSWORD)")
	}
	if strings.TrimSpace(c.Broker.Server) == "" {
		return fmt.Errorf("broker.server is required (set MT5_SERVER)")
	}

	if strings.TrimSpace(c.Storage.DataDir) == "" {
		return fmt.Errorf("storage.data_dir is required")
	}

	if d, err := time.ParseDuration(strings.TrimSpace(c.Sync.Interval)); err != nil || d <= 0 {
		return fmt.Errorf("sync.interval must be a positive duration")
	}

	if c.Status.Enabled && (c.Status.Port <= 0 || c.Status.Port > 65535) {
		return fmt.Errorf("status.port must be between 1 and 65535")
	}

	seen := make(map[string]struct{}, len(c.Bots))
	for i, b := range c.Bots {
		if strings.TrimSpace(b.Strategy) == "" {
			return fmt.Errorf("bots[%d].strategy is required", i)
		}
		if strings.TrimSpace(b.Symbol) == "" {
			return fmt.Errorf("bots[%d].symbol is required", i)
		}
		key := b.Strategy + "|" + b.Symbol + "|" + b.Timeframe
		if _, dup := seen[key]; dup {
			return fmt.Errorf("bots[%d]: duplicate (strategy, symbol, timeframe) %q", i, key)
		}
		seen[key] = struct{}{}
		if b.IntervalSeconds <= 0 {
			return fmt.Errorf("bots[%d].interval_seconds must be > 0", i)
		}
		if b.Window <= 0 {
			return fmt.Errorf("bots[%d].window must be > 0", i)
		}
	}

	return nil
}
