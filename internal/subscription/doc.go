// Package subscription runs the single event loop that turns raw backend
// events into lifecycle records and hands them to registered handlers.
//
// Every handler is bound to a context. Once that context is done the handler
// is never called again, even if events for it are already queued.
package subscription
