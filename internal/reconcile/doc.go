// Package reconcile applies normalized lifecycle records to the queue store
// and issues transfer commands to the backend.
//
// The Controller is the only writer of queue items. It rate-limits progress
// per item, lets terminal records through unconditionally, drops records for
// keys that are no longer queued, merges drag-and-drop previews against the
// outbound queue, and runs the two-phase inbound cancellation protocol: a
// cancel request only marks the item, and the item leaves the queue when the
// backend confirms with an aborted or error event.
//
// Commands are fire-and-forget from the queue's point of view. No command
// mutates a queue item directly; the backend's events do.
package reconcile
