package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Kryon Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Device   DeviceConfig   `yaml:"device"`
	Bus      BusConfig      `yaml:"bus"`
	Database DatabaseConfig `yaml:"database"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// DeviceConfig contains serial device link settings.
type DeviceConfig struct {
	// Port is an explicit serial device path (e.g. "/dev/ttyUSB0").
	// When empty, the link enumerates candidate ports using the vendor
	// allowlist and the persisted device identity.
	Port string `yaml:"port"`

	// AutoConnect attempts a silent reconnection at startup using the
	// previously persisted device identity.
	AutoConnect bool `yaml:"auto_connect"`

	// VendorAllowlist overrides the built-in USB vendor-id allowlist.
	// Values are hex strings (e.g. "1a86", "0403").
	VendorAllowlist []string `yaml:"vendor_allowlist"`

	// DebounceWindowMs is the intensity debounce window in milliseconds.
	// Default: 50.
	DebounceWindowMs int `yaml:"debounce_window_ms"`

	// ReadTimeout is the serial read poll timeout in seconds.
	// Default: 5.
	ReadTimeout int `yaml:"read_timeout"`

	// WatchIntervalMs is how often the removal watcher checks that the
	// device node still exists, in milliseconds. Default: 1000.
	WatchIntervalMs int `yaml:"watch_interval_ms"`
}

// BusConfig contains session bus settings.
type BusConfig struct {
	Broker BusBrokerConfig `yaml:"broker"`
	Auth   BusAuthConfig   `yaml:"auth"`

	// Channel is the logical broadcast channel name shared by all
	// participants. Default: "kryon-session-channel".
	Channel string `yaml:"channel"`

	// Role is the participant role: "controller" or "display".
	Role string `yaml:"role"`

	// PingInterval is the controller liveness probe interval in seconds.
	// Default: 5.
	PingInterval int `yaml:"ping_interval"`

	// PongTimeout is how long the controller waits for a PONG after each
	// ping, in seconds. Default: 2.
	PongTimeout int `yaml:"pong_timeout"`
}

// BusBrokerConfig contains MQTT broker connection details.
type BusBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// BusAuthConfig contains MQTT authentication credentials.
type BusAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// DatabaseConfig contains SQLite settings for the device identity store.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// InfluxDBConfig contains optional telemetry settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: KRYON_SECTION_KEY
// For example: KRYON_DATABASE_PATH, KRYON_BUS_HOST
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Device: DeviceConfig{
			AutoConnect:      true,
			DebounceWindowMs: 50,
			ReadTimeout:      5,
			WatchIntervalMs:  1000,
		},
		Bus: BusConfig{
			Broker: BusBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "kryon-core",
			},
			Channel:      "kryon-session-channel",
			Role:         "controller",
			PingInterval: 5,
			PongTimeout:  2,
		},
		Database: DatabaseConfig{
			Path:        "./data/kryon.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: KRYON_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Device
	if v := os.Getenv("KRYON_DEVICE_PORT"); v != "" {
		cfg.Device.Port = v
	}

	// Bus
	if v := os.Getenv("KRYON_BUS_HOST"); v != "" {
		cfg.Bus.Broker.Host = v
	}
	if v := os.Getenv("KRYON_BUS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Bus.Broker.Port = port
		}
	}
	if v := os.Getenv("KRYON_BUS_USERNAME"); v != "" {
		cfg.Bus.Auth.Username = v
	}
	if v := os.Getenv("KRYON_BUS_PASSWORD"); v != "" {
		cfg.Bus.Auth.Password = v
	}
	if v := os.Getenv("KRYON_BUS_ROLE"); v != "" {
		cfg.Bus.Role = v
	}

	// Database
	if v := os.Getenv("KRYON_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// InfluxDB
	if v := os.Getenv("KRYON_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.Bus.Role != "controller" && c.Bus.Role != "display" {
		errs = append(errs, `bus.role must be "controller" or "display"`)
	}
	if c.Bus.Channel == "" {
		errs = append(errs, "bus.channel is required")
	}
	if c.Bus.Broker.Port < 1 || c.Bus.Broker.Port > 65535 {
		errs = append(errs, "bus.broker.port must be between 1 and 65535")
	}
	if c.Bus.PingInterval <= 0 {
		errs = append(errs, "bus.ping_interval must be positive")
	}
	if c.Bus.PongTimeout <= 0 || c.Bus.PongTimeout >= c.Bus.PingInterval {
		errs = append(errs, "bus.pong_timeout must be positive and shorter than bus.ping_interval")
	}
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}
	if c.Device.DebounceWindowMs < 0 {
		errs = append(errs, "device.debounce_window_ms must not be negative")
	}
	for _, vid := range c.Device.VendorAllowlist {
		if _, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(vid), "0x"), 16, 16); err != nil {
			errs = append(errs, fmt.Sprintf("device.vendor_allowlist entry %q is not a hex vendor id", vid))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetDebounceWindow returns the intensity debounce window as a Duration.
func (c *Config) GetDebounceWindow() time.Duration {
	return time.Duration(c.Device.DebounceWindowMs) * time.Millisecond
}

// GetReadTimeout returns the serial read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.Device.ReadTimeout) * time.Second
}

// GetWatchInterval returns the removal watcher interval as a Duration.
func (c *Config) GetWatchInterval() time.Duration {
	return time.Duration(c.Device.WatchIntervalMs) * time.Millisecond
}

// GetPingInterval returns the liveness probe interval as a Duration.
func (c *Config) GetPingInterval() time.Duration {
	return time.Duration(c.Bus.PingInterval) * time.Second
}

// GetPongTimeout returns the pong wait timeout as a Duration.
func (c *Config) GetPongTimeout() time.Duration {
	return time.Duration(c.Bus.PongTimeout) * time.Second
}
