package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so config files can use "500ms"/"10s" forms;
// yaml.v3 only accepts raw nanosecond integers for time.Duration itself.
type Duration time.Duration

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return fmt.Errorf("duration must be a string like \"10s\"")
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config holds all application configuration.
type Config struct {
	Device    DeviceConfig    `yaml:"device"`
	Reconnect ReconnectConfig `yaml:"reconnect"`
	LogLevel  string          `yaml:"log_level"`
}

// DeviceConfig identifies the vaporizer and bounds the connect handshake.
type DeviceConfig struct {
	Address        string   `yaml:"address"`
	ScanTimeout    Duration `yaml:"scan_timeout"`
	ConnectTimeout Duration `yaml:"connect_timeout"`
}

// ReconnectConfig bounds the automatic reconnect policy.
type ReconnectConfig struct {
	MaxRetries     int      `yaml:"max_retries"`
	BackoffInitial Duration `yaml:"backoff_initial"`
	BackoffMax     Duration `yaml:"backoff_max"`
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "paxctl")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Default returns a Config with sensible default values. The device address
// is intentionally empty; it comes from the config file or the -address
// flag.
func Default() *Config {
	return &Config{
		Device: DeviceConfig{
			ScanTimeout:    Duration(10 * time.Second),
			ConnectTimeout: Duration(15 * time.Second),
		},
		Reconnect: ReconnectConfig{
			MaxRetries:     5,
			BackoffInitial: Duration(500 * time.Millisecond),
			BackoffMax:     Duration(8 * time.Second),
		},
		LogLevel: "info",
	}
}

// Load reads and parses a YAML config file. Missing fields are filled with
// defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return cfg, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if c.Device.ScanTimeout <= 0 {
		return fmt.Errorf("device.scan_timeout must be > 0")
	}

	if c.Device.ConnectTimeout <= 0 {
		return fmt.Errorf("device.connect_timeout must be > 0")
	}

	if c.Reconnect.MaxRetries <= 0 {
		return fmt.Errorf("reconnect.max_retries must be > 0")
	}

	if c.Reconnect.BackoffInitial <= 0 {
		return fmt.Errorf("reconnect.backoff_initial must be > 0")
	}

	if c.Reconnect.BackoffMax < c.Reconnect.BackoffInitial {
		return fmt.Errorf("reconnect.backoff_max must be >= reconnect.backoff_initial")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	return nil
}
