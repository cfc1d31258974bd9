package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and socket configuration.
type Paths struct {
	DataDir    string `toml:"data_dir"`
	LogDir     string `toml:"log_dir"`
	SocketPath string `toml:"socket_path"`
}

// Bridge contains timing for the backend command/event bridge.
type Bridge struct {
	DialTimeoutSeconds int `toml:"dial_timeout_seconds"`
	CallTimeoutSeconds int `toml:"call_timeout_seconds"`
	EventWaitMillis    int `toml:"event_wait_ms"`
	EventBatch         int `toml:"event_batch"`
}

// Sync contains queue reconciliation settings.
type Sync struct {
	InboundProgressIntervalMillis  int `toml:"inbound_progress_interval_ms"`
	OutboundProgressIntervalMillis int `toml:"outbound_progress_interval_ms"`
	CancelWaitSeconds              int `toml:"cancel_wait_seconds"`
}

// History contains configuration for the transfer history database.
type History struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Errors         bool   `toml:"errors"`
	Cancellations  bool   `toml:"cancellations"`
	Completions    bool   `toml:"completions"`
}

// Metrics contains configuration for the Prometheus endpoint.
type Metrics struct {
	Bind string `toml:"bind"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for the SendIt client.
//
// Configuration sections by subsystem:
//   - Paths: data, log, and bridge socket locations
//   - Bridge: backend dial/call timeouts and event long-poll sizing
//   - Sync: progress rate limits and cancel confirmation wait
//   - History: SQLite transfer history
//   - Notifications: ntfy push notification settings
//   - Metrics: Prometheus listener
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Bridge        Bridge        `toml:"bridge"`
	Sync          Sync          `toml:"sync"`
	History       History       `toml:"history"`
	Notifications Notifications `toml:"notifications"`
	Metrics       Metrics       `toml:"metrics"`
	Logging       Logging       `toml:"logging"`
}

// Load locates, parses, and validates a configuration file. It returns the
// config with every path expanded, the file it came from, and whether that
// file existed. A missing file is not an error; defaults are used.
func Load(path string) (*Config, string, bool, error) {
	resolved, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	cfg := Default()
	if exists {
		if err := decodeFile(resolved, &cfg); err != nil {
			return nil, "", false, err
		}
	}
	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolved, exists, nil
}

// decodeFile strictly decodes TOML so a misspelt key fails loudly instead of
// silently falling back to a default.
func decodeFile(path string, cfg *Config) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	dec := toml.NewDecoder(file)
	dec.DisallowUnknownFields()
	err = dec.Decode(cfg)

	var strict *toml.StrictMissingError
	var syntax *toml.DecodeError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &strict):
		return fmt.Errorf("parse config %s: unknown keys:\n%s", path, strict.String())
	case errors.As(err, &syntax):
		row, col := syntax.Position()
		return fmt.Errorf("parse config %s:%d:%d: %w", path, row, col, err)
	default:
		return fmt.Errorf("parse config: %w", err)
	}
}

// DialTimeout returns the bridge dial timeout.
func (c *Config) DialTimeout() time.Duration {
	return time.Duration(c.Bridge.DialTimeoutSeconds) * time.Second
}

// CallTimeout returns the per-command timeout. Zero means no timeout.
func (c *Config) CallTimeout() time.Duration {
	return time.Duration(c.Bridge.CallTimeoutSeconds) * time.Second
}

// EventWait returns how long a single event long-poll may block.
func (c *Config) EventWait() time.Duration {
	return time.Duration(c.Bridge.EventWaitMillis) * time.Millisecond
}

// InboundProgressInterval returns the minimum spacing between applied inbound progress updates per item.
func (c *Config) InboundProgressInterval() time.Duration {
	return time.Duration(c.Sync.InboundProgressIntervalMillis) * time.Millisecond
}

// OutboundProgressInterval returns the minimum spacing between applied outbound progress updates per item.
func (c *Config) OutboundProgressInterval() time.Duration {
	return time.Duration(c.Sync.OutboundProgressIntervalMillis) * time.Millisecond
}

// CancelWait bounds how long the CLI waits for abort confirmations.
func (c *Config) CancelWait() time.Duration {
	return time.Duration(c.Sync.CancelWaitSeconds) * time.Second
}

// Encode renders the configuration as TOML.
func (c *Config) Encode() ([]byte, error) {
	data, err := toml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return data, nil
}
