package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"sendit/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("XDG_RUNTIME_DIR", "")
	t.Setenv("SENDIT_SOCKET", "")
	t.Setenv("SENDIT_CONFIG", "")
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantData := filepath.Join(tempHome, ".local", "share", "sendit")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	if cfg.Paths.SocketPath != filepath.Join(wantData, "bridge.sock") {
		t.Fatalf("unexpected socket path: %q", cfg.Paths.SocketPath)
	}
	if cfg.History.Path != filepath.Join(wantData, "history.db") {
		t.Fatalf("unexpected history path: %q", cfg.History.Path)
	}
	if cfg.InboundProgressInterval() != time.Second {
		t.Fatalf("expected 1s inbound progress interval, got %s", cfg.InboundProgressInterval())
	}
	if cfg.CallTimeout() != 0 {
		t.Fatalf("expected no call timeout by default, got %s", cfg.CallTimeout())
	}
	if cfg.Logging.Format != "console" || cfg.Logging.Level != "info" {
		t.Fatalf("unexpected logging defaults: %+v", cfg.Logging)
	}
}

func TestLoadCustomConfig(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("SENDIT_SOCKET", "")

	configPath := filepath.Join(t.TempDir(), "config.toml")
	payload := struct {
		Paths struct {
			DataDir    string `toml:"data_dir"`
			SocketPath string `toml:"socket_path"`
		} `toml:"paths"`
		Sync struct {
			Inbound int `toml:"inbound_progress_interval_ms"`
		} `toml:"sync"`
		Logging struct {
			Format string `toml:"format"`
			Level  string `toml:"level"`
		} `toml:"logging"`
	}{}
	payload.Paths.DataDir = "~/transfers"
	payload.Paths.SocketPath = "/tmp/sendit-test.sock"
	payload.Sync.Inbound = 500
	payload.Logging.Format = " JSON "
	payload.Logging.Level = "DEBUG"

	data, err := toml.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("expected config at %q to exist, got %q (exists=%v)", configPath, resolved, exists)
	}
	if cfg.Paths.DataDir != filepath.Join(tempHome, "transfers") {
		t.Fatalf("unexpected data dir: %q", cfg.Paths.DataDir)
	}
	if cfg.Paths.SocketPath != "/tmp/sendit-test.sock" {
		t.Fatalf("unexpected socket: %q", cfg.Paths.SocketPath)
	}
	if cfg.InboundProgressInterval() != 500*time.Millisecond {
		t.Fatalf("unexpected inbound interval: %s", cfg.InboundProgressInterval())
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("expected normalized logging, got %+v", cfg.Logging)
	}
}

func TestSocketEnvOverride(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("SENDIT_SOCKET", "/tmp/override.sock")

	cfg, _, _, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Paths.SocketPath != "/tmp/override.sock" {
		t.Fatalf("expected env socket override, got %q", cfg.Paths.SocketPath)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	configPath := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(configPath, []byte("[sync]\nthrottle = 3\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	_, _, _, err := config.Load(configPath)
	if err == nil {
		t.Fatal("expected error for unknown key")
	}
	if !strings.Contains(err.Error(), "unknown keys") || !strings.Contains(err.Error(), "throttle") {
		t.Fatalf("expected the unknown key to be named, got %v", err)
	}
}

func TestLoadReportsSyntaxPosition(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	configPath := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(configPath, []byte("[paths]\nsocket_path = \n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	_, _, _, err := config.Load(configPath)
	if err == nil || !strings.Contains(err.Error(), configPath+":2:") {
		t.Fatalf("expected error with line position, got %v", err)
	}
}

func TestConfigEnvSelectsFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("SENDIT_SOCKET", "")
	configPath := filepath.Join(t.TempDir(), "alt.toml")
	if err := os.WriteFile(configPath, []byte("[logging]\nlevel = \"debug\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("SENDIT_CONFIG", configPath)

	cfg, path, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if path != configPath || !exists {
		t.Fatalf("Load used %q (exists=%v), want %q", path, exists, configPath)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("expected level from env-selected file, got %q", cfg.Logging.Level)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{"defaults", func(*config.Config) {}, ""},
		{"bad format", func(c *config.Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"bad level", func(c *config.Config) { c.Logging.Level = "trace" }, "logging.level"},
		{"negative interval", func(c *config.Config) { c.Sync.InboundProgressIntervalMillis = -1 }, "inbound_progress_interval_ms"},
		{"negative call timeout", func(c *config.Config) { c.Bridge.CallTimeoutSeconds = -5 }, "call_timeout_seconds"},
		{"relative ntfy topic", func(c *config.Config) { c.Notifications.NtfyTopic = "my-topic" }, "ntfy_topic"},
		{"long socket", func(c *config.Config) { c.Paths.SocketPath = "/" + strings.Repeat("s", 120) }, "too long"},
		{"missing data dir", func(c *config.Config) { c.Paths.DataDir = "" }, "data_dir"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Paths.SocketPath = "/tmp/sendit.sock"
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestCreateSampleLoads(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("SENDIT_SOCKET", "/tmp/sample.sock")
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("sample config should load: %v", err)
	}
	if !exists {
		t.Fatal("expected sample file to exist")
	}
	if !cfg.History.Enabled {
		t.Fatal("expected history enabled in sample")
	}
}
