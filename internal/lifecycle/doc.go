// Package lifecycle turns raw backend events into typed transfer records.
//
// The backend emits string-named events with JSON payloads whose shape
// depends on the event name. Normalize maps every (name, payload) pair to
// exactly one Record; anything it cannot interpret becomes an Unknown record
// carrying the reason, so callers never deal with partially decoded data.
package lifecycle
