package lifecycle

// Wire names of backend lifecycle events.
const (
	EventInboundAdded       = "DOWNLOAD_FILE_ADDED"
	EventInboundProgress    = "DOWNLOAD_FILE_PROGRESS"
	EventInboundCompleted   = "DOWNLOAD_FILE_COMPLETED"
	EventInboundError       = "DOWNLOAD_FILE_ERROR"
	EventInboundAborted     = "DOWNLOAD_FILE_ABORTED"
	EventInboundAllComplete = "DOWNLOAD_ALL_COMPLETE"

	EventOutboundAdded     = "UPLOAD_FILE_ADDED"
	EventOutboundProgress  = "UPLOAD_FILE_PROGRESS"
	EventOutboundCompleted = "UPLOAD_FILE_COMPLETED"
	EventOutboundRemoved   = "UPLOAD_FILE_REMOVED"
	EventOutboundError     = "UPLOAD_FILE_ERROR"
)

// EventNames lists every event name Normalize understands.
func EventNames() []string {
	return []string{
		EventInboundAdded,
		EventInboundProgress,
		EventInboundCompleted,
		EventInboundError,
		EventInboundAborted,
		EventInboundAllComplete,
		EventOutboundAdded,
		EventOutboundProgress,
		EventOutboundCompleted,
		EventOutboundRemoved,
		EventOutboundError,
	}
}

// Payload shapes, as the backend serializes them. Backends embedding the
// bridge server publish these.

// InboundAddedPayload announces a file offered by a peer.
type InboundAddedPayload struct {
	Name string `json:"name"`
	Icon string `json:"icon,omitempty"`
	Size uint64 `json:"size"`
}

// InboundProgressPayload reports receive progress. Speed is bytes per microsecond.
type InboundProgressPayload struct {
	Name     string  `json:"name"`
	Progress float64 `json:"progress"`
	Speed    float64 `json:"speed"`
}

// InboundCompletedPayload reports a finished download and where it landed.
type InboundCompletedPayload struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// ErrorPayload reports a failed transfer in either direction.
type ErrorPayload struct {
	Name  string `json:"name"`
	Error string `json:"error"`
}

// AbortedPayload confirms a cancelled download.
type AbortedPayload struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// OutboundAddedPayload announces a local file imported for sending.
type OutboundAddedPayload struct {
	Name string `json:"name"`
	Icon string `json:"icon,omitempty"`
	Path string `json:"path"`
	Size uint64 `json:"size"`
}

// OutboundProgressPayload reports import or send progress. Path may hold the
// full path or only the file name.
type OutboundProgressPayload struct {
	Path     string  `json:"path"`
	Progress float64 `json:"progress"`
}

// NamePayload identifies an outbound file by name.
type NamePayload struct {
	Name string `json:"name"`
}
