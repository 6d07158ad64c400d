package wsipc

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	EnvAddr = "WSIPC_ADDR"
	EnvPath = "WSIPC_PATH"
)

// Config configures an IPC instance and its websocket server
type Config struct {
	// Name labels this instance in logs and metrics
	Name string

	// Address the websocket server listens at, e.g. "localhost:5000" or ":0"
	Addr string

	// HTTP path the websocket endpoint is mounted at; the browser client is served
	// at Path+"ipc.js"
	Path string

	// Timeout used by Invoke when the caller passes a timeout <= 0
	InvokeTimeout time.Duration

	Limits Limits

	// Log level name ("debug", "info", ...). Empty keeps the current logger.
	LogLevel string

	// Serve Prometheus metrics at /metrics on the websocket server
	Metrics bool
}

func DefaultConfig() Config {
	return Config{
		Name:          "wsipc",
		Addr:          "localhost:5000",
		Path:          "/ipc/",
		InvokeTimeout: 10 * time.Second,
		Limits:        DefaultLimits,
	}
}

type fileConfig struct {
	Name           string `toml:"name"`
	Addr           string `toml:"addr"`
	Path           string `toml:"path"`
	InvokeTimeout  string `toml:"invoke_timeout"`
	InboxSize      int    `toml:"inbox_size"`
	MaxPending     uint32 `toml:"max_pending"`
	MaxMessageSize int64  `toml:"max_message_size"`
	ReadTimeout    string `toml:"read_timeout"`
	WriteTimeout   string `toml:"write_timeout"`
	LogLevel       string `toml:"log_level"`
	Metrics        bool   `toml:"metrics"`
}

// LoadConfig reads a TOML file on top of DefaultConfig, then applies environment overrides.
// Keys missing from the file keep their defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("load config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("name") {
		cfg.Name = strings.TrimSpace(raw.Name)
	}
	if meta.IsDefined("addr") {
		cfg.Addr = strings.TrimSpace(raw.Addr)
	}
	if meta.IsDefined("path") {
		cfg.Path = strings.TrimSpace(raw.Path)
	}
	if meta.IsDefined("invoke_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.InvokeTimeout))
		if err != nil {
			return Config{}, fmt.Errorf("parse invoke_timeout: %w", err)
		}
		cfg.InvokeTimeout = d
	}
	if meta.IsDefined("read_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.ReadTimeout))
		if err != nil {
			return Config{}, fmt.Errorf("parse read_timeout: %w", err)
		}
		cfg.Limits.ReadTimeout = d
	}
	if meta.IsDefined("write_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.WriteTimeout))
		if err != nil {
			return Config{}, fmt.Errorf("parse write_timeout: %w", err)
		}
		cfg.Limits.WriteTimeout = d
	}
	if meta.IsDefined("inbox_size") {
		cfg.Limits.InboxSize = raw.InboxSize
	}
	if meta.IsDefined("max_pending") {
		cfg.Limits.MaxPending = raw.MaxPending
	}
	if meta.IsDefined("max_message_size") {
		cfg.Limits.MaxMessageSize = raw.MaxMessageSize
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	if meta.IsDefined("metrics") {
		cfg.Metrics = raw.Metrics
	}

	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from WSIPC_* environment variables
func (c *Config) ApplyEnv() {
	if v := strings.TrimSpace(os.Getenv(EnvAddr)); v != "" {
		c.Addr = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvPath)); v != "" {
		c.Path = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		c.LogLevel = v
	}
}

func (c Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("config: addr is required")
	}
	if !strings.HasPrefix(c.Path, "/") {
		return fmt.Errorf("config: path %q must start with /", c.Path)
	}
	if c.InvokeTimeout < 0 {
		return fmt.Errorf("config: invoke_timeout must not be negative")
	}
	if c.Limits.ReadTimeout < 0 || c.Limits.WriteTimeout < 0 {
		return fmt.Errorf("config: read_timeout and write_timeout must not be negative")
	}
	if c.Limits.InboxSize < 0 {
		return fmt.Errorf("config: inbox_size must not be negative")
	}
	if c.LogLevel != "" {
		if _, ok := ParseLevel(c.LogLevel); !ok {
			return fmt.Errorf("config: unknown log_level %q", c.LogLevel)
		}
	}
	return nil
}
