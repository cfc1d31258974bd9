// Package logging builds the slog loggers used by the client and the
// loopback backend.
//
// Console output puts the component, queue and item key ahead of the message;
// JSON output keeps them as ordinary fields. Warnings and errors go through
// WarnWithContext and ErrorWithContext so they always carry an event_type and
// an operator hint.
package logging
