// Package queue holds the authoritative in-memory state of the outbound and
// inbound transfer queues.
//
// The Store owns both insertion-ordered queues, the drag-preview set, and the
// "is downloading" flag. Every mutation goes through a Store method under one
// mutex, bumps the state version, and publishes an immutable State to
// watchers. Queue items enforce the completion invariant (Done exactly when
// Progress is 100) and never move backwards except when a whole queue is
// cleared.
//
// The Store performs no I/O. Treat it as the single source of truth for what
// renderers display; the reconcile package decides when to mutate it.
package queue
