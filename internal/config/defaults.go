package config

const (
	defaultConfigPath                     = "~/.config/sendit/config.toml"
	defaultDataDir                        = "~/.local/share/sendit"
	defaultLogDir                         = "~/.local/share/sendit/logs"
	defaultHistoryFile                    = "history.db"
	defaultLogFormat                      = "console"
	defaultLogLevel                       = "info"
	defaultDialTimeoutSeconds             = 5
	defaultEventWaitMillis                = 2000
	defaultEventBatch                     = 256
	defaultInboundProgressIntervalMillis  = 1000
	defaultOutboundProgressIntervalMillis = 250
	defaultCancelWaitSeconds              = 10
	defaultNotifyRequestTimeout           = 10
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:    defaultDataDir,
			LogDir:     defaultLogDir,
			SocketPath: defaultSocketPath(),
		},
		Bridge: Bridge{
			DialTimeoutSeconds: defaultDialTimeoutSeconds,
			EventWaitMillis:    defaultEventWaitMillis,
			EventBatch:         defaultEventBatch,
		},
		Sync: Sync{
			InboundProgressIntervalMillis:  defaultInboundProgressIntervalMillis,
			OutboundProgressIntervalMillis: defaultOutboundProgressIntervalMillis,
			CancelWaitSeconds:              defaultCancelWaitSeconds,
		},
		History: History{
			Enabled: true,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			Errors:         true,
			Cancellations:  true,
			Completions:    true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
