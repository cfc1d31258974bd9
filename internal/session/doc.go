// Package session wires a running sendit client together: the bridge
// connection, queue store, controller, subscription loop, history recorder,
// notifications, and metrics.
//
// Only one client per data directory records history; the others run
// without it. The recorder lock is an advisory flock next to the database.
package session
