// Package config provides configuration for the statevault store: built-in
// defaults, an optional YAML file, and environment variable overrides, in
// that order of precedence (environment wins).
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables consumed by the store. The master key is the only
// one collaborators are required to know about: its absence means the
// store writes integrity-wrapped plaintext, never an error.
const (
	EnvRoot          = "STATEVAULT_ROOT"
	EnvMasterKey     = "STATEVAULT_MASTER_KEY"
	EnvLockTimeout   = "STATEVAULT_LOCK_TIMEOUT"
	EnvMaxRecordSize = "STATEVAULT_MAX_RECORD_SIZE"
	EnvLogLevel      = "STATEVAULT_LOG_LEVEL"
)

const (
	DefaultLockTimeout   = 30 * time.Second
	DefaultMaxRecordSize = 1 << 20 // 1 MiB per record
)

// Log holds logging configuration.
type Log struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// Config holds everything the store needs to open.
type Config struct {
	Root             string        `yaml:"root"`
	LockTimeout      time.Duration `yaml:"lock_timeout"`
	MaxRecordSize    int64         `yaml:"max_record_size"`
	SecureNamespaces []string      `yaml:"secure_namespaces"`
	Log              Log           `yaml:"log"`

	// MasterKey is the encryption passphrase. Deliberately not read from
	// the YAML file; it comes from the environment, the OS keyring, or an
	// interactive prompt.
	MasterKey []byte `yaml:"-"`
}

// Default returns the built-in configuration. The root defaults to
// ~/.coderelay/state.
func Default() Config {
	root := ".coderelay/state"
	if home, err := os.UserHomeDir(); err == nil {
		root = filepath.Join(home, ".coderelay", "state")
	}
	return Config{
		Root:             root,
		LockTimeout:      DefaultLockTimeout,
		MaxRecordSize:    DefaultMaxRecordSize,
		SecureNamespaces: []string{"auth", "credentials", "secrets"},
		Log:              Log{Level: "info", Format: "text"},
	}
}

// FromEnv returns the default configuration with environment overrides
// applied.
func FromEnv() Config {
	cfg := Default()
	cfg.applyEnv()
	return cfg
}

// Load reads an optional YAML configuration file and applies environment
// overrides on top. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
	} else if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvRoot); v != "" {
		c.Root = v
	}
	if v := os.Getenv(EnvMasterKey); v != "" {
		c.MasterKey = []byte(v)
	}
	if v := os.Getenv(EnvLockTimeout); v != "" {
		switch d, err := time.ParseDuration(v); {
		case err != nil:
			slog.Debug("ignoring unparsable environment override", "var", EnvLockTimeout, "value", v, "error", err)
		case d <= 0:
			slog.Debug("ignoring non-positive environment override", "var", EnvLockTimeout, "value", v)
		default:
			c.LockTimeout = d
		}
	}
	if v := os.Getenv(EnvMaxRecordSize); v != "" {
		switch n, err := strconv.ParseInt(v, 10, 64); {
		case err != nil:
			slog.Debug("ignoring unparsable environment override", "var", EnvMaxRecordSize, "value", v, "error", err)
		case n <= 0:
			slog.Debug("ignoring non-positive environment override", "var", EnvMaxRecordSize, "value", v)
		default:
			c.MaxRecordSize = n
		}
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
}

// IsSecureNamespace reports whether records under the namespace hold
// credentials or other secrets and must be written owner-only.
func (c *Config) IsSecureNamespace(ns string) bool {
	for _, s := range c.SecureNamespaces {
		if strings.EqualFold(s, ns) {
			return true
		}
	}
	return false
}

// Logger builds a slog.Logger from the logging configuration.
func (c *Config) Logger() *slog.Logger {
	var level slog.Level
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.EqualFold(c.Log.Format, "json") {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}
