// Package config loads the SendIt client configuration from TOML.
//
// Load resolves the file (--config, $SENDIT_CONFIG, the user default, then
// ./sendit.toml), decodes it strictly, fills defaults, expands every path and
// applies the SENDIT_SOCKET override before validating. Durations are stored
// as integer seconds or milliseconds and read back through accessor methods.
package config
