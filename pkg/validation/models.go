// Package validation provides model definitions with validation tags
package validation

import "github.com/payflow/payflow/internal/core/graph"

// PositionRecord is a canvas position on the wire
type PositionRecord struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// NodeRecord is a node as the rendering surface sends it. Ids are any
// non-empty string and labels are free text.
type NodeRecord struct {
	ID       string         `json:"id" validate:"required"`
	Kind     string         `json:"type" validate:"required,node_kind"`
	Label    string         `json:"label"`
	Position PositionRecord `json:"position"`
}

// ToNode converts the record into a core node
func (r NodeRecord) ToNode() graph.Node {
	return graph.Node{
		ID:       r.ID,
		Kind:     graph.NodeKind(r.Kind),
		Label:    r.Label,
		Position: graph.Position{X: r.Position.X, Y: r.Position.Y},
	}
}

// EdgeRecord is an edge as the rendering surface sends it
type EdgeRecord struct {
	ID     string `json:"id" validate:"required"`
	Source string `json:"source" validate:"required"`
	Target string `json:"target" validate:"required,nefield=Source"`
	Style  string `json:"type,omitempty"`
}

// ToEdge converts the record into a core edge
func (r EdgeRecord) ToEdge() graph.Edge {
	return graph.Edge{ID: r.ID, Source: r.Source, Target: r.Target, Style: r.Style}
}

// SnapshotRecord mirrors graph.Snapshot with validation tags
type SnapshotRecord struct {
	SchemaVersion int          `json:"schema_version" validate:"min=0"`
	Nodes         []NodeRecord `json:"nodes" validate:"dive"`
	Edges         []EdgeRecord `json:"edges" validate:"dive"`
}

// DropNodeRequest adds a node dropped from the palette
type DropNodeRequest struct {
	Kind     string         `json:"type" validate:"required,node_kind"`
	Label    string         `json:"label"`
	Position PositionRecord `json:"position"`
}

// MoveNodeRequest carries a drag's final position
type MoveNodeRequest struct {
	Position PositionRecord `json:"position"`
}

// LabelRequest edits a node label
type LabelRequest struct {
	Label string `json:"label"`
}

// ConnectRequest draws an edge between two nodes
type ConnectRequest struct {
	Source string `json:"source" validate:"required"`
	Target string `json:"target" validate:"required,nefield=Source"`
	Style  string `json:"type,omitempty"`
}

// SelectionRequest selects a node; an empty id clears the selection
type SelectionRequest struct {
	NodeID string `json:"node_id"`
}
