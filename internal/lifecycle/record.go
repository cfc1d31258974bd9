package lifecycle

import "sendit/internal/queue"

// Kind classifies a Record.
type Kind string

const (
	KindAdded       Kind = "added"
	KindProgress    Kind = "progress"
	KindCompleted   Kind = "completed"
	KindError       Kind = "error"
	KindAborted     Kind = "aborted"
	KindRemoved     Kind = "removed"
	KindAllComplete Kind = "all_complete"
	KindUnknown     Kind = "unknown"
)

// Terminal reports whether records of this kind end an item's lifecycle.
// Terminal records are never rate-limited.
func (k Kind) Terminal() bool {
	switch k {
	case KindCompleted, KindError, KindAborted, KindRemoved, KindAllComplete:
		return true
	default:
		return false
	}
}

// Record is a normalized lifecycle event. The set of implementations is closed.
type Record interface {
	Kind() Kind
	// Subject returns the queue and item key the record applies to. Records
	// that do not address an item return an empty key.
	Subject() Target
	isRecord()
}

// Target addresses one item in one queue.
type Target struct {
	Queue queue.ID
	Key   string
}

// Added announces a new item.
type Added struct {
	Target
	Size uint64
	Icon string
	Path string
}

// Progress reports a new progress value for an item.
type Progress struct {
	Target
	Progress float64
	Speed    float64
}

// Completed reports that an item finished. Path is set for inbound items.
type Completed struct {
	Target
	Path string
}

// Error reports that the backend gave up on an item.
type Error struct {
	Target
	Reason string
}

// Aborted confirms a cancellation.
type Aborted struct {
	Target
	Reason string
}

// Removed confirms an outbound item was withdrawn.
type Removed struct {
	Target
}

// AllComplete reports that every inbound transfer of the current ticket ended.
type AllComplete struct{}

// Unknown is an event that could not be interpreted.
type Unknown struct {
	Name   string
	Reason string
}

func (t Target) Subject() Target { return t }

func (Added) Kind() Kind       { return KindAdded }
func (Progress) Kind() Kind    { return KindProgress }
func (Completed) Kind() Kind   { return KindCompleted }
func (Error) Kind() Kind       { return KindError }
func (Aborted) Kind() Kind     { return KindAborted }
func (Removed) Kind() Kind     { return KindRemoved }
func (AllComplete) Kind() Kind { return KindAllComplete }
func (Unknown) Kind() Kind     { return KindUnknown }

func (AllComplete) Subject() Target { return Target{Queue: queue.Inbound} }
func (Unknown) Subject() Target     { return Target{} }

func (Added) isRecord()       {}
func (Progress) isRecord()    {}
func (Completed) isRecord()   {}
func (Error) isRecord()       {}
func (Aborted) isRecord()     {}
func (Removed) isRecord()     {}
func (AllComplete) isRecord() {}
func (Unknown) isRecord()     {}
