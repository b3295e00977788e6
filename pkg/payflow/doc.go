// Package payflow provides a minimal public façade for editing and persisting
// payment workflow graphs without importing internal packages. It re-exports
// the core graph types and exposes a Runtime that wires storage, the
// workspace, metrics and the HTTP surface from a config.
package payflow
