// Package history persists terminal transfer outcomes and issued tickets in a
// local SQLite database so `sendit history` can show what happened after the
// live queues have been cleared.
//
// The live queues are never rebuilt from this database; it is an audit log.
package history
