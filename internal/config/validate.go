package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateBridge(); err != nil {
		return err
	}
	if err := c.validateSync(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.DataDir == "" {
		return errors.New("paths.data_dir must be set")
	}
	if c.Paths.SocketPath == "" {
		return errors.New("paths.socket_path must be set")
	}
	// sun_path is 108 bytes on Linux including the terminator.
	if len(c.Paths.SocketPath) > 107 {
		return fmt.Errorf("paths.socket_path is too long for a unix socket (%d bytes)", len(c.Paths.SocketPath))
	}
	return nil
}

func (c *Config) validateBridge() error {
	if c.Bridge.CallTimeoutSeconds < 0 {
		return errors.New("bridge.call_timeout_seconds must be >= 0")
	}
	if c.Bridge.EventBatch > 10000 {
		return errors.New("bridge.event_batch must be <= 10000")
	}
	return nil
}

func (c *Config) validateSync() error {
	if c.Sync.InboundProgressIntervalMillis < 0 {
		return errors.New("sync.inbound_progress_interval_ms must be >= 0")
	}
	if c.Sync.OutboundProgressIntervalMillis < 0 {
		return errors.New("sync.outbound_progress_interval_ms must be >= 0")
	}
	if c.Sync.CancelWaitSeconds < 0 {
		return errors.New("sync.cancel_wait_seconds must be >= 0")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.NtfyTopic == "" {
		return nil
	}
	parsed, err := url.Parse(c.Notifications.NtfyTopic)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("notifications.ntfy_topic must be a full URL, got %q", c.Notifications.NtfyTopic)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
