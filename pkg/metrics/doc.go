// Package metrics defines and registers mailestd's Prometheus metrics:
// catalogue and index size, per-worker queue depth, kanban occupancy,
// gather progress, monitor event counts, and index maintenance timing.
// Metrics are package-level variables registered at init; Handler()
// returns an HTTP handler exposing them, which mailestd does not serve.
package metrics
