// Package bridge carries commands and lifecycle events between the sendit
// client and the transfer backend over JSON-RPC on a Unix socket.
//
// The Client implements reconcile.Commander and pumps backend events by
// long-polling SendIt.Events with a sequence cursor. The Server and Hub are
// the adapter a backend process embeds: it registers its command surface and
// publishes lifecycle events into the Hub's bounded ring buffer.
//
// Keep request and response shapes in types.go so both ends stay in step.
package bridge
