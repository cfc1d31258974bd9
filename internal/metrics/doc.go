// Package metrics exports engine counters and queue gauges to Prometheus.
//
// Metrics implements reconcile.Recorder; Observe and Watch keep the queue
// gauges in step with the Store. Server exposes /metrics plus a read-only JSON
// view of the current queue state for local tooling.
package metrics
