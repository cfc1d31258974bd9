// Package notifications pushes transfer outcomes to ntfy.
//
// NewService returns a no-op Service when no topic is configured, and a
// Service that suppresses the event groups the config turns off otherwise.
// Forward drains controller notices into a Service so the event loop never
// waits on HTTP.
package notifications
