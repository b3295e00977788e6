// Package graph provides edge definitions
package graph

import "fmt"

// DefaultEdgeStyle is the rendering tag given to edges drawn without one
const DefaultEdgeStyle = "smoothstep"

// Edge represents a directed connection between two steps
// PRINCIPLES:
// - KISS: Simple edge representation
// - SRP: Only responsible for edge data
type Edge struct {
	ID     string `json:"id" msgpack:"id"`
	Source string `json:"source" msgpack:"source"` // Source node ID
	Target string `json:"target" msgpack:"target"` // Target node ID
	Style  string `json:"type,omitempty" msgpack:"type,omitempty"`
}

// Validate ensures edge integrity
// PRINCIPLES:
// - SRP: Single responsibility - validation only
// - KISS: Simple validation, <10 lines
func (e *Edge) Validate() error {
	if e.ID == "" {
		return ErrInvalidEdgeID
	}
	if e.Source == "" {
		return ErrInvalidSource
	}
	if e.Target == "" {
		return ErrInvalidTarget
	}
	if e.Source == e.Target {
		return ErrSelfLoop
	}
	return nil
}

// Touches reports whether the edge starts or ends at nodeID
func (e *Edge) Touches(nodeID string) bool {
	return e.Source == nodeID || e.Target == nodeID
}

// EdgeID builds the conventional identifier for an edge between two nodes
func EdgeID(source, target string) string {
	return fmt.Sprintf("e%s-%s", source, target)
}
