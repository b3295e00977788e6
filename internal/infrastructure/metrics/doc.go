// Package metrics exposes Prometheus counters and gauges for the payflow
// workspace (graph mutations, persistence calls, rejected payloads). Each
// Collector owns its registry so tests and multiple workspaces never collide
// on registration; the server serves it at /metrics.
package metrics
