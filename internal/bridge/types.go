package bridge

import (
	"encoding/json"
	"time"

	"sendit/internal/reconcile"
)

// ServiceName is the RPC receiver name; methods are addressed as SendIt.<Method>.
const ServiceName = "SendIt"

// Event is one backend lifecycle event as carried on the wire.
type Event struct {
	Seq     uint64          `json:"seq"`
	Name    string          `json:"name"`
	Payload json.RawMessage `json:"payload,omitempty"`
	At      time.Time       `json:"at"`
}

// CallMeta is embedded in every request so the backend can log the caller's
// correlation identifier.
type CallMeta struct {
	CorrelationID string `json:"correlation_id,omitempty"`
}

// PathRequest names one local file.
type PathRequest struct {
	CallMeta
	Path string `json:"path"`
}

// NameRequest names one inbound transfer.
type NameRequest struct {
	CallMeta
	Name string `json:"name"`
}

// TicketRequest carries a redemption ticket.
type TicketRequest struct {
	CallMeta
	Ticket string `json:"ticket"`
}

// EmptyRequest is used by commands without arguments.
type EmptyRequest struct {
	CallMeta
}

// Ack acknowledges a command that returns no data.
type Ack struct {
	OK bool `json:"ok"`
}

// TicketResponse returns a generated ticket.
type TicketResponse struct {
	Ticket string `json:"ticket"`
}

// ValidatePathsRequest lists candidate paths for the drag preview.
type ValidatePathsRequest struct {
	CallMeta
	Paths []string `json:"paths"`
}

// ValidatePathsResponse lists the files the backend accepted.
type ValidatePathsResponse struct {
	Files []reconcile.FileInfo `json:"files"`
}

// EventsRequest asks for events after Since. A positive WaitMillis blocks
// until at least one event exists or the wait elapses.
type EventsRequest struct {
	Since      uint64 `json:"since"`
	Limit      int    `json:"limit"`
	WaitMillis int    `json:"wait_millis"`
}

// EventsResponse returns a batch of events and the cursor for the next call.
type EventsResponse struct {
	Events []Event `json:"events"`
	Next   uint64  `json:"next"`
}
