package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	LogLevel    string        `yaml:"log_level"`
	DebugEvents bool          `yaml:"debug_events"` // mirror log records to the host as DEBUG lines
	Backend     string        `yaml:"backend"`      // "tinygo" or "hci"
	HCI         HCIConfig     `yaml:"hci"`
	Scan        ScanConfig    `yaml:"scan"`
	Connect     ConnectConfig `yaml:"connect"`
	GATT        GATTConfig    `yaml:"gatt"`
}

// HCIConfig selects the raw HCI device for the hci backend (Linux only).
type HCIConfig struct {
	DeviceID int `yaml:"device_id"`
}

// ScanConfig holds the advertisement signal window.
type ScanConfig struct {
	InRangeRSSI       int           `yaml:"in_range_rssi"`
	OutOfRangeRSSI    int           `yaml:"out_of_range_rssi"`
	OutOfRangeTimeout time.Duration `yaml:"out_of_range_timeout"`
	SamplingInterval  time.Duration `yaml:"sampling_interval"`
}

// ConnectConfig holds per-robot connection settings.
type ConnectConfig struct {
	Timeout        time.Duration `yaml:"timeout"`
	WriteQueueSize int           `yaml:"write_queue_size"`
}

// GATTConfig names the UART service and its characteristics.
type GATTConfig struct {
	ServiceUUID string `yaml:"service_uuid"`
	TXUUID      string `yaml:"tx_uuid"`
	RXUUID      string `yaml:"rx_uuid"`
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "bluebird-bridge")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Backend:  "tinygo",
		Scan: ScanConfig{
			InRangeRSSI:       -80,
			OutOfRangeRSSI:    -90,
			OutOfRangeTimeout: 5 * time.Second,
			SamplingInterval:  2 * time.Second,
		},
		Connect: ConnectConfig{
			Timeout:        3 * time.Second,
			WriteQueueSize: 64,
		},
		GATT: GATTConfig{
			ServiceUUID: "6e400001-b5a3-f393-e0a9-e50e24dcca9e",
			TXUUID:      "6e400002-b5a3-f393-e0a9-e50e24dcca9e",
			RXUUID:      "6e400003-b5a3-f393-e0a9-e50e24dcca9e",
		},
	}
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults. A leading tilde in path is expanded.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(expandTilde(path))
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
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	switch c.Backend {
	case "tinygo":
	case "hci":
		if c.HCI.DeviceID < 0 {
			return fmt.Errorf("hci.device_id must be >= 0, got %d", c.HCI.DeviceID)
		}
	default:
		return fmt.Errorf("backend must be \"tinygo\" or \"hci\", got %q", c.Backend)
	}

	if c.Scan.InRangeRSSI <= c.Scan.OutOfRangeRSSI {
		return fmt.Errorf("scan.in_range_rssi (%d) must be greater than scan.out_of_range_rssi (%d)",
			c.Scan.InRangeRSSI, c.Scan.OutOfRangeRSSI)
	}
	if c.Scan.OutOfRangeTimeout <= 0 {
		return fmt.Errorf("scan.out_of_range_timeout must be > 0")
	}
	if c.Scan.SamplingInterval <= 0 {
		return fmt.Errorf("scan.sampling_interval must be > 0")
	}

	if c.Connect.Timeout <= 0 {
		return fmt.Errorf("connect.timeout must be > 0")
	}
	if c.Connect.WriteQueueSize <= 0 {
		return fmt.Errorf("connect.write_queue_size must be > 0")
	}

	for key, v := range map[string]string{
		"gatt.service_uuid": c.GATT.ServiceUUID,
		"gatt.tx_uuid":      c.GATT.TXUUID,
		"gatt.rx_uuid":      c.GATT.RXUUID,
	} {
		if _, err := uuid.Parse(v); err != nil {
			return fmt.Errorf("%s: invalid UUID %q: %w", key, v, err)
		}
	}

	return nil
}

// ParseLogLevel maps a log_level value to a slog level. Unknown values
// fall back to info.
func ParseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

const defaultHeader = `# bluebird-bridge configuration
# Durations use Go syntax (e.g. 3s, 500ms). backend is "tinygo" or "hci".
`

// WriteDefault writes the default config to DefaultConfigPath. It returns
// the written path, or "" if a config file already exists.
func WriteDefault() (string, error) {
	path := DefaultConfigPath()
	if _, err := os.Stat(path); err == nil {
		return "", nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("checking %s: %w", path, err)
	}

	data, err := yaml.Marshal(Default())
	if err != nil {
		return "", fmt.Errorf("encoding default config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("creating config dir: %w", err)
	}
	if err := os.WriteFile(path, append([]byte(defaultHeader), data...), 0644); err != nil {
		return "", fmt.Errorf("writing config file: %w", err)
	}
	return path, nil
}

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
