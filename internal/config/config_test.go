package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "info")
	}
	if cfg.Backend != "tinygo" {
		t.Errorf("Backend = %q, want %q", cfg.Backend, "tinygo")
	}
	if cfg.Scan.InRangeRSSI != -80 || cfg.Scan.OutOfRangeRSSI != -90 {
		t.Errorf("Scan RSSI window = [%d, %d], want [-80, -90]", cfg.Scan.InRangeRSSI, cfg.Scan.OutOfRangeRSSI)
	}
	if cfg.Scan.OutOfRangeTimeout != 5*time.Second {
		t.Errorf("Scan.OutOfRangeTimeout = %v, want 5s", cfg.Scan.OutOfRangeTimeout)
	}
	if cfg.Scan.SamplingInterval != 2*time.Second {
		t.Errorf("Scan.SamplingInterval = %v, want 2s", cfg.Scan.SamplingInterval)
	}
	if cfg.Connect.Timeout != 3*time.Second {
		t.Errorf("Connect.Timeout = %v, want 3s", cfg.Connect.Timeout)
	}
	if cfg.Connect.WriteQueueSize != 64 {
		t.Errorf("Connect.WriteQueueSize = %d, want 64", cfg.Connect.WriteQueueSize)
	}
	if cfg.GATT.ServiceUUID != "6e400001-b5a3-f393-e0a9-e50e24dcca9e" {
		t.Errorf("GATT.ServiceUUID = %q", cfg.GATT.ServiceUUID)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config does not validate: %v", err)
	}
}

func TestLoad(t *testing.T) {
	yamlContent := `
log_level: debug
debug_events: true
backend: hci
hci:
  device_id: 1
scan:
  in_range_rssi: -70
  out_of_range_rssi: -85
  out_of_range_timeout: 10s
  sampling_interval: 500ms
connect:
  timeout: 4s
  write_queue_size: 16
`
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "debug")
	}
	if !cfg.DebugEvents {
		t.Error("DebugEvents = false, want true")
	}
	if cfg.Backend != "hci" || cfg.HCI.DeviceID != 1 {
		t.Errorf("Backend = %q/%d, want hci/1", cfg.Backend, cfg.HCI.DeviceID)
	}
	if cfg.Scan.InRangeRSSI != -70 || cfg.Scan.OutOfRangeRSSI != -85 {
		t.Errorf("Scan RSSI window = [%d, %d], want [-70, -85]", cfg.Scan.InRangeRSSI, cfg.Scan.OutOfRangeRSSI)
	}
	if cfg.Scan.OutOfRangeTimeout != 10*time.Second {
		t.Errorf("Scan.OutOfRangeTimeout = %v, want 10s", cfg.Scan.OutOfRangeTimeout)
	}
	if cfg.Scan.SamplingInterval != 500*time.Millisecond {
		t.Errorf("Scan.SamplingInterval = %v, want 500ms", cfg.Scan.SamplingInterval)
	}
	if cfg.Connect.Timeout != 4*time.Second {
		t.Errorf("Connect.Timeout = %v, want 4s", cfg.Connect.Timeout)
	}
	if cfg.Connect.WriteQueueSize != 16 {
		t.Errorf("Connect.WriteQueueSize = %d, want 16", cfg.Connect.WriteQueueSize)
	}
	// Unset sections keep their defaults.
	if cfg.GATT.RXUUID != Default().GATT.RXUUID {
		t.Errorf("GATT.RXUUID = %q, want default", cfg.GATT.RXUUID)
	}
}

func TestLoadExpandsTilde(t *testing.T) {
	tmpHome := t.TempDir()
	t.Setenv("HOME", tmpHome)

	if err := os.WriteFile(filepath.Join(tmpHome, "bridge.yaml"), []byte("log_level: warn\n"), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load("~/bridge.yaml")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "warn")
	}
}

func TestLoadFileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Error("Load() should return error for nonexistent file")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("scan: [unclosed\n"), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	if _, err := Load(cfgPath); err == nil {
		t.Error("Load() should fail on invalid YAML")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid default config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "hci backend",
			modify:  func(c *Config) { c.Backend = "hci" },
			wantErr: false,
		},
		{
			name:    "negative hci device",
			modify:  func(c *Config) { c.Backend = "hci"; c.HCI.DeviceID = -1 },
			wantErr: true,
		},
		{
			name:    "unknown backend",
			modify:  func(c *Config) { c.Backend = "winrt" },
			wantErr: true,
		},
		{
			name:    "invalid log level",
			modify:  func(c *Config) { c.LogLevel = "invalid" },
			wantErr: true,
		},
		{
			name:    "inverted rssi window",
			modify:  func(c *Config) { c.Scan.InRangeRSSI = -95 },
			wantErr: true,
		},
		{
			name:    "equal rssi thresholds",
			modify:  func(c *Config) { c.Scan.InRangeRSSI = -90 },
			wantErr: true,
		},
		{
			name:    "zero out of range timeout",
			modify:  func(c *Config) { c.Scan.OutOfRangeTimeout = 0 },
			wantErr: true,
		},
		{
			name:    "zero sampling interval",
			modify:  func(c *Config) { c.Scan.SamplingInterval = 0 },
			wantErr: true,
		},
		{
			name:    "zero connect timeout",
			modify:  func(c *Config) { c.Connect.Timeout = 0 },
			wantErr: true,
		},
		{
			name:    "zero write queue",
			modify:  func(c *Config) { c.Connect.WriteQueueSize = 0 },
			wantErr: true,
		},
		{
			name:    "bad service uuid",
			modify:  func(c *Config) { c.GATT.ServiceUUID = "not-a-uuid" },
			wantErr: true,
		},
		{
			name:    "empty rx uuid",
			modify:  func(c *Config) { c.GATT.RXUUID = "" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestWriteDefault_CreatesFile(t *testing.T) {
	// Use a temp dir as fake home to avoid touching real config
	tmpHome := t.TempDir()
	t.Setenv("HOME", tmpHome)

	path, err := WriteDefault()
	if err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}

	expectedPath := filepath.Join(tmpHome, ".config", "bluebird-bridge", "config.yaml")
	if path != expectedPath {
		t.Errorf("WriteDefault() path = %q, want %q", path, expectedPath)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read written config: %v", err)
	}
	if !strings.HasPrefix(string(data), "# bluebird-bridge") {
		t.Error("written config should start with header comment")
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("written config is not valid YAML: %v", err)
	}
	if cfg.Connect.Timeout != 3*time.Second {
		t.Errorf("written Connect.Timeout = %v, want 3s", cfg.Connect.Timeout)
	}
	if cfg.Scan.OutOfRangeRSSI != -90 {
		t.Errorf("written Scan.OutOfRangeRSSI = %d, want -90", cfg.Scan.OutOfRangeRSSI)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("written config does not validate: %v", err)
	}
}

func TestWriteDefault_NoOpIfExists(t *testing.T) {
	tmpHome := t.TempDir()
	t.Setenv("HOME", tmpHome)

	configDir := filepath.Join(tmpHome, ".config", "bluebird-bridge")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("failed to create config dir: %v", err)
	}
	existingContent := []byte("backend: hci\n")
	configPath := filepath.Join(configDir, "config.yaml")
	if err := os.WriteFile(configPath, existingContent, 0644); err != nil {
		t.Fatalf("failed to write existing config: %v", err)
	}

	path, err := WriteDefault()
	if err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}
	if path != "" {
		t.Errorf("WriteDefault() path = %q, want empty string for existing file", path)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("failed to read config: %v", err)
	}
	if string(data) != string(existingContent) {
		t.Error("WriteDefault() should not overwrite existing config file")
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"DEBUG", slog.LevelDebug},
		{"unknown", slog.LevelInfo}, // defaults to info
		{"", slog.LevelInfo},        // defaults to info
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := ParseLogLevel(tt.input)
			if got != tt.want {
				t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}
