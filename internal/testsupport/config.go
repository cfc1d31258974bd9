package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"sendit/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// The bridge socket lives in a short temp directory because unix socket
// paths are limited to 107 bytes.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	sockDir, err := os.MkdirTemp("", "sendit")
	if err != nil {
		t.Fatalf("mkdir socket dir: %v", err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(sockDir) })

	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.SocketPath = filepath.Join(sockDir, "bridge.sock")
	cfgVal.History.Path = filepath.Join(base, "data", "history.db")
	cfgVal.Bridge.EventWaitMillis = 200
	cfgVal.Sync.CancelWaitSeconds = 2

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithNtfyTopic points notifications at topic (usually an httptest server URL).
func WithNtfyTopic(topic string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Notifications.NtfyTopic = topic
	}
}

// WithoutHistory disables the history database.
func WithoutHistory() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.History.Enabled = false
	}
}

// WithProgressIntervals overrides the inbound and outbound progress spacing in milliseconds.
func WithProgressIntervals(inboundMillis, outboundMillis int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Sync.InboundProgressIntervalMillis = inboundMillis
		b.cfg.Sync.OutboundProgressIntervalMillis = outboundMillis
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
