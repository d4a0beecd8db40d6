package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	if cfg.Root == "" {
		t.Error("default root is empty")
	}
	if cfg.LockTimeout != DefaultLockTimeout {
		t.Errorf("LockTimeout = %v, want %v", cfg.LockTimeout, DefaultLockTimeout)
	}
	if cfg.MaxRecordSize != DefaultMaxRecordSize {
		t.Errorf("MaxRecordSize = %d, want %d", cfg.MaxRecordSize, DefaultMaxRecordSize)
	}
	if !cfg.IsSecureNamespace("auth") {
		t.Error("auth should be a secure namespace by default")
	}
	if cfg.MasterKey != nil {
		t.Error("default config must not carry a master key")
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	if err != nil {
		t.Fatalf("missing file should not be an error: %v", err)
	}
	if cfg.LockTimeout != DefaultLockTimeout {
		t.Errorf("LockTimeout = %v, want default", cfg.LockTimeout)
	}
}

func TestLoadYAMLOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "statevault.yaml")
	content := `
root: /var/lib/coderelay
lock_timeout: 5s
max_record_size: 2048
secure_namespaces: [auth, tokens]
log:
  level: debug
  format: json
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Root != "/var/lib/coderelay" {
		t.Errorf("Root = %q", cfg.Root)
	}
	if cfg.LockTimeout != 5*time.Second {
		t.Errorf("LockTimeout = %v, want 5s", cfg.LockTimeout)
	}
	if cfg.MaxRecordSize != 2048 {
		t.Errorf("MaxRecordSize = %d, want 2048", cfg.MaxRecordSize)
	}
	if !cfg.IsSecureNamespace("tokens") || cfg.IsSecureNamespace("secrets") {
		t.Errorf("SecureNamespaces = %v, file should replace defaults", cfg.SecureNamespaces)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Errorf("Log = %+v", cfg.Log)
	}
}

func TestLoadMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("root: [unclosed"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Error("malformed YAML should be an error")
	}
}

func TestEnvOverridesFileAndDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "statevault.yaml")
	if err := os.WriteFile(path, []byte("root: /from/file\nlock_timeout: 5s\n"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	t.Setenv(EnvRoot, "/from/env")
	t.Setenv(EnvMasterKey, "hunter2")
	t.Setenv(EnvLockTimeout, "250ms")
	t.Setenv(EnvMaxRecordSize, "4096")
	t.Setenv(EnvLogLevel, "error")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Root != "/from/env" {
		t.Errorf("Root = %q, env must win over file", cfg.Root)
	}
	if string(cfg.MasterKey) != "hunter2" {
		t.Errorf("MasterKey = %q", cfg.MasterKey)
	}
	if cfg.LockTimeout != 250*time.Millisecond {
		t.Errorf("LockTimeout = %v, want 250ms", cfg.LockTimeout)
	}
	if cfg.MaxRecordSize != 4096 {
		t.Errorf("MaxRecordSize = %d, want 4096", cfg.MaxRecordSize)
	}
	if cfg.Log.Level != "error" {
		t.Errorf("Log.Level = %q, want error", cfg.Log.Level)
	}
}

// recordingHandler captures log records so tests can assert on them.
type recordingHandler struct {
	mu      sync.Mutex
	records []slog.Record
}

func (h *recordingHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *recordingHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, r)
	return nil
}

func (h *recordingHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *recordingHandler) WithGroup(string) slog.Handler      { return h }

func (h *recordingHandler) mentions(varName string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, r := range h.records {
		found := false
		r.Attrs(func(a slog.Attr) bool {
			if a.Key == "var" && a.Value.String() == varName {
				found = true
				return false
			}
			return true
		})
		if found {
			return true
		}
	}
	return false
}

func TestEnvIgnoresInvalidValues(t *testing.T) {
	t.Setenv(EnvLockTimeout, "not-a-duration")
	t.Setenv(EnvMaxRecordSize, "-5")

	h := &recordingHandler{}
	prev := slog.Default()
	slog.SetDefault(slog.New(h))
	t.Cleanup(func() { slog.SetDefault(prev) })

	cfg := FromEnv()
	if cfg.LockTimeout != DefaultLockTimeout {
		t.Errorf("LockTimeout = %v, invalid env value must be ignored", cfg.LockTimeout)
	}
	if cfg.MaxRecordSize != DefaultMaxRecordSize {
		t.Errorf("MaxRecordSize = %d, non-positive env value must be ignored", cfg.MaxRecordSize)
	}

	// Falling back to defaults must leave a trace at debug level.
	if !h.mentions(EnvLockTimeout) {
		t.Errorf("ignored %s value was not logged", EnvLockTimeout)
	}
	if !h.mentions(EnvMaxRecordSize) {
		t.Errorf("ignored %s value was not logged", EnvMaxRecordSize)
	}
	for _, r := range h.records {
		if r.Level != slog.LevelDebug {
			t.Errorf("env fallback logged at %v, want %v", r.Level, slog.LevelDebug)
		}
	}
}

func TestIsSecureNamespaceCaseInsensitive(t *testing.T) {
	cfg := Default()
	if !cfg.IsSecureNamespace("AUTH") {
		t.Error("namespace match should ignore case")
	}
	if cfg.IsSecureNamespace("session") {
		t.Error("session is not a secure namespace")
	}
}

func TestLoggerLevels(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "bogus", ""} {
		cfg := Default()
		cfg.Log.Level = level
		if cfg.Logger() == nil {
			t.Errorf("Logger() returned nil for level %q", level)
		}
	}
}
