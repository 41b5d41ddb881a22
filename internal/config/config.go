package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	LogLevel    string            `yaml:"log_level"`
	StatePath   string            `yaml:"state_path"`
	Transport   TransportConfig   `yaml:"transport"`
	Scan        ScanConfig        `yaml:"scan"`
	Negotiation NegotiationConfig `yaml:"negotiation"`
	Print       PrintConfig       `yaml:"print"`
	Agent       AgentConfig       `yaml:"agent"`
}

// TransportConfig selects and tunes the Bluetooth stack.
type TransportConfig struct {
	Kind           string        `yaml:"kind"` // "gatt", "native" or "serial"
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	BaudRate       int           `yaml:"baud_rate"` // serial only
}

// ScanConfig holds discovery settings.
type ScanConfig struct {
	Timeout      time.Duration `yaml:"timeout"`
	Attempts     int           `yaml:"attempts"`
	TimeoutStep  time.Duration `yaml:"timeout_step"`
	PrintersOnly bool          `yaml:"printers_only"`
	NameFilters  []string      `yaml:"name_filters"`
}

// NegotiationConfig overrides the known printer UUIDs. Empty lists use the
// built-in defaults.
type NegotiationConfig struct {
	Services        []string `yaml:"services"`
	Characteristics []string `yaml:"characteristics"`
}

// PrintConfig holds receipt layout and transmission timing.
type PrintConfig struct {
	ChunkSize          int           `yaml:"chunk_size"`
	InitDelay          time.Duration `yaml:"init_delay"`
	ChunkDelay         time.Duration `yaml:"chunk_delay"`
	CopyDelay          time.Duration `yaml:"copy_delay"`
	Copies             int           `yaml:"copies"`
	Columns            int           `yaml:"columns"`
	CodePage           string        `yaml:"code_page"`
	ThousandsSeparator string        `yaml:"thousands_separator"`
	Footer             string        `yaml:"footer"`
	FeedLines          int           `yaml:"feed_lines"`
}

// AgentConfig holds the local websocket agent settings.
type AgentConfig struct {
	Listen         string   `yaml:"listen"`
	AllowedOrigins []string `yaml:"allowed_origins"` // extra origins besides the agent's own
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "posprint")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Default returns a Config with sensible default values for a 58 mm BLE
// printer.
func Default() *Config {
	home, _ := os.UserHomeDir()
	statePath := filepath.Join(home, ".local", "state", "posprint", "state.yaml")

	return &Config{
		LogLevel:  "info",
		StatePath: statePath,
		Transport: TransportConfig{
			Kind:           "gatt",
			ConnectTimeout: 10 * time.Second,
			BaudRate:       9600,
		},
		Scan: ScanConfig{
			Timeout:     5 * time.Second,
			Attempts:    3,
			TimeoutStep: 2 * time.Second,
		},
		Print: PrintConfig{
			ChunkSize:          20,
			InitDelay:          100 * time.Millisecond,
			ChunkDelay:         20 * time.Millisecond,
			CopyDelay:          time.Second,
			Copies:             1,
			Columns:            32,
			CodePage:           "cp437",
			ThousandsSeparator: ".",
			Footer:             "Thank you for your purchase!",
			FeedLines:          3,
		},
		Agent: AgentConfig{
			Listen: "127.0.0.1:8765",
		},
	}
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults. Tilde (~) in state_path is expanded to the user's home directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.StatePath = expandTilde(cfg.StatePath)

	return cfg, nil
}

// supportedCodePages mirrors the tables the receipt formatter can encode.
var supportedCodePages = map[string]bool{
	"cp437": true, "cp850": true, "cp858": true, "cp866": true, "cp1252": true,
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if c.StatePath == "" {
		return errors.New("state_path must not be empty")
	}

	switch c.Transport.Kind {
	case "gatt", "native", "serial":
	default:
		return fmt.Errorf("transport.kind must be gatt, native, or serial, got %q", c.Transport.Kind)
	}
	if c.Transport.ConnectTimeout <= 0 {
		return errors.New("transport.connect_timeout must be > 0")
	}
	if c.Transport.Kind == "serial" && c.Transport.BaudRate <= 0 {
		return errors.New("transport.baud_rate must be > 0 for the serial transport")
	}

	if c.Scan.Timeout <= 0 {
		return errors.New("scan.timeout must be > 0")
	}
	if c.Scan.Attempts < 1 {
		return errors.New("scan.attempts must be >= 1")
	}
	if c.Scan.TimeoutStep < 0 {
		return errors.New("scan.timeout_step must not be negative")
	}

	for _, u := range append(append([]string{}, c.Negotiation.Services...), c.Negotiation.Characteristics...) {
		if !validUUID(u) {
			return fmt.Errorf("negotiation: %q is not a 128-bit UUID", u)
		}
	}

	if c.Print.ChunkSize < 1 || c.Print.ChunkSize > 512 {
		return fmt.Errorf("print.chunk_size must be between 1 and 512, got %d", c.Print.ChunkSize)
	}
	if c.Print.InitDelay < 0 || c.Print.ChunkDelay < 0 || c.Print.CopyDelay < 0 {
		return errors.New("print delays must not be negative")
	}
	if c.Print.Copies < 1 {
		return errors.New("print.copies must be >= 1")
	}
	if c.Print.Columns < 24 {
		return fmt.Errorf("print.columns must be >= 24, got %d", c.Print.Columns)
	}
	if !supportedCodePages[strings.ToLower(c.Print.CodePage)] {
		return fmt.Errorf("print.code_page %q is not supported", c.Print.CodePage)
	}
	if c.Print.FeedLines < 0 || c.Print.FeedLines > 255 {
		return fmt.Errorf("print.feed_lines must be between 0 and 255, got %d", c.Print.FeedLines)
	}

	if _, _, err := net.SplitHostPort(c.Agent.Listen); err != nil {
		return fmt.Errorf("agent.listen: %w", err)
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	return nil
}

// validUUID accepts the canonical 8-4-4-4-12 hex form.
func validUUID(s string) bool {
	if len(s) != 36 {
		return false
	}
	for i, r := range s {
		switch i {
		case 8, 13, 18, 23:
			if r != '-' {
				return false
			}
		default:
			if !strings.ContainsRune("0123456789abcdefABCDEF", r) {
				return false
			}
		}
	}
	return true
}

// ParseLogLevel maps a config log level to slog. Unknown values fall back
// to info.
func ParseLogLevel(level string) slog.Level {
	switch level {
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

const defaultHeader = `# posprint configuration
# Durations use Go syntax: 500ms, 5s, 1m.
# transport.kind: gatt (BLE via the platform stack), native (Linux HCI),
# or serial (classic SPP printers bound to a serial port).

`

// WriteDefault writes the default config to DefaultConfigPath when no file
// exists there. It returns the written path, or "" if a config was already
// present.
func WriteDefault() (string, error) {
	path := DefaultConfigPath()
	if _, err := os.Stat(path); err == nil {
		return "", nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("creating config dir: %w", err)
	}
	data, err := yaml.Marshal(Default())
	if err != nil {
		return "", fmt.Errorf("encoding default config: %w", err)
	}
	if err := os.WriteFile(path, append([]byte(defaultHeader), data...), 0o644); err != nil {
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
