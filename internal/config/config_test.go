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

	if cfg.StatePath == "" {
		t.Error("StatePath should not be empty")
	}
	if cfg.Transport.Kind != "gatt" {
		t.Errorf("Transport.Kind = %q, want %q", cfg.Transport.Kind, "gatt")
	}
	if cfg.Scan.Attempts != 3 {
		t.Errorf("Scan.Attempts = %d, want 3", cfg.Scan.Attempts)
	}
	if cfg.Print.ChunkSize != 20 {
		t.Errorf("Print.ChunkSize = %d, want 20", cfg.Print.ChunkSize)
	}
	if cfg.Print.Columns != 32 {
		t.Errorf("Print.Columns = %d, want 32", cfg.Print.Columns)
	}
	if cfg.Print.CodePage != "cp437" {
		t.Errorf("Print.CodePage = %q, want %q", cfg.Print.CodePage, "cp437")
	}
	if cfg.Agent.Listen != "127.0.0.1:8765" {
		t.Errorf("Agent.Listen = %q", cfg.Agent.Listen)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "info")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default().Validate() error = %v", err)
	}
}

func TestLoad(t *testing.T) {
	yamlContent := `
state_path: /tmp/posprint-state.yaml
transport:
  kind: serial
  baud_rate: 115200
scan:
  timeout: 8s
  attempts: 2
  printers_only: true
negotiation:
  services: ["0000ff00-0000-1000-8000-00805f9b34fb"]
print:
  chunk_size: 100
  chunk_delay: 5ms
  columns: 48
  code_page: cp850
  thousands_separator: ","
log_level: debug
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

	if cfg.StatePath != "/tmp/posprint-state.yaml" {
		t.Errorf("StatePath = %q", cfg.StatePath)
	}
	if cfg.Transport.Kind != "serial" || cfg.Transport.BaudRate != 115200 {
		t.Errorf("Transport = %+v", cfg.Transport)
	}
	if cfg.Scan.Timeout != 8*time.Second || cfg.Scan.Attempts != 2 || !cfg.Scan.PrintersOnly {
		t.Errorf("Scan = %+v", cfg.Scan)
	}
	if len(cfg.Negotiation.Services) != 1 {
		t.Errorf("Negotiation.Services = %v", cfg.Negotiation.Services)
	}
	if cfg.Print.ChunkSize != 100 || cfg.Print.ChunkDelay != 5*time.Millisecond || cfg.Print.Columns != 48 {
		t.Errorf("Print = %+v", cfg.Print)
	}
	if cfg.Print.ThousandsSeparator != "," {
		t.Errorf("ThousandsSeparator = %q", cfg.Print.ThousandsSeparator)
	}
	// Unset fields keep their defaults.
	if cfg.Print.InitDelay != 100*time.Millisecond {
		t.Errorf("Print.InitDelay = %v, want default 100ms", cfg.Print.InitDelay)
	}
	if cfg.Transport.ConnectTimeout != 10*time.Second {
		t.Errorf("Transport.ConnectTimeout = %v, want default 10s", cfg.Transport.ConnectTimeout)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "debug")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoadExpandsTilde(t *testing.T) {
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("state_path: ~/posprint/state.yaml\n"), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	home, _ := os.UserHomeDir()
	want := filepath.Join(home, "posprint", "state.yaml")
	if cfg.StatePath != want {
		t.Errorf("StatePath = %q, want %q", cfg.StatePath, want)
	}
}

func TestLoadFileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Error("Load() should return error for missing file")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("scan:\n  timeout: [1, 2]\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(cfgPath); err == nil || !strings.Contains(err.Error(), "parsing") {
		t.Errorf("Load() error = %v, want parse error", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{"valid defaults", func(c *Config) {}, false},
		{"empty state path", func(c *Config) { c.StatePath = "" }, true},
		{"bad transport", func(c *Config) { c.Transport.Kind = "usb" }, true},
		{"native transport", func(c *Config) { c.Transport.Kind = "native" }, false},
		{"serial without baud", func(c *Config) {
			c.Transport.Kind = "serial"
			c.Transport.BaudRate = 0
		}, true},
		{"zero connect timeout", func(c *Config) { c.Transport.ConnectTimeout = 0 }, true},
		{"zero scan timeout", func(c *Config) { c.Scan.Timeout = 0 }, true},
		{"zero attempts", func(c *Config) { c.Scan.Attempts = 0 }, true},
		{"negative step", func(c *Config) { c.Scan.TimeoutStep = -time.Second }, true},
		{"bad service uuid", func(c *Config) { c.Negotiation.Services = []string{"ff00"} }, true},
		{"good characteristic uuid", func(c *Config) {
			c.Negotiation.Characteristics = []string{"0000FF02-0000-1000-8000-00805F9B34FB"}
		}, false},
		{"zero chunk size", func(c *Config) { c.Print.ChunkSize = 0 }, true},
		{"huge chunk size", func(c *Config) { c.Print.ChunkSize = 4096 }, true},
		{"negative delay", func(c *Config) { c.Print.ChunkDelay = -time.Millisecond }, true},
		{"zero copies", func(c *Config) { c.Print.Copies = 0 }, true},
		{"narrow paper", func(c *Config) { c.Print.Columns = 10 }, true},
		{"unknown code page", func(c *Config) { c.Print.CodePage = "utf8" }, true},
		{"feed too long", func(c *Config) { c.Print.FeedLines = 300 }, true},
		{"bad listen addr", func(c *Config) { c.Agent.Listen = "8765" }, true},
		{"bad log level", func(c *Config) { c.LogLevel = "verbose" }, true},
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

	expectedPath := filepath.Join(tmpHome, ".config", "posprint", "config.yaml")
	if path != expectedPath {
		t.Errorf("WriteDefault() path = %q, want %q", path, expectedPath)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read written config: %v", err)
	}
	if !strings.HasPrefix(string(data), "# posprint") {
		t.Error("written config should start with header comment")
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("written config is not valid YAML: %v", err)
	}
	if cfg.Print.ChunkDelay != 20*time.Millisecond {
		t.Errorf("written config Print.ChunkDelay = %v, want 20ms", cfg.Print.ChunkDelay)
	}
	if cfg.Transport.Kind != "gatt" {
		t.Errorf("written config Transport.Kind = %q, want gatt", cfg.Transport.Kind)
	}
}

func TestWriteDefault_NoOpIfExists(t *testing.T) {
	tmpHome := t.TempDir()
	t.Setenv("HOME", tmpHome)

	configDir := filepath.Join(tmpHome, ".config", "posprint")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("failed to create config dir: %v", err)
	}
	existingContent := []byte("log_level: debug\n")
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
