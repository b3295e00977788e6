package validation

import (
	"github.com/payflow/payflow/internal/core/graph"
)

// ValidateSnapshot checks a snapshot loaded from an external source. It
// enforces exactly what the store guarantees for its own state: every node
// has an id and a known kind, ids are unique, and every edge joins two
// distinct nodes that exist. Field failures come back as ValidationErrors
// naming the offending element; referential failures wrap the graph errors.
func ValidateSnapshot(s graph.Snapshot) error {
	rec := SnapshotRecord{
		SchemaVersion: s.SchemaVersion,
		Nodes:         make([]NodeRecord, 0, len(s.Nodes)),
		Edges:         make([]EdgeRecord, 0, len(s.Edges)),
	}
	for _, n := range s.Nodes {
		rec.Nodes = append(rec.Nodes, NodeRecord{
			ID:       n.ID,
			Kind:     string(n.Kind),
			Label:    n.Label,
			Position: PositionRecord{X: n.Position.X, Y: n.Position.Y},
		})
	}
	for _, e := range s.Edges {
		rec.Edges = append(rec.Edges, EdgeRecord{ID: e.ID, Source: e.Source, Target: e.Target, Style: e.Style})
	}
	if err := ValidateWithPlayground(rec); err != nil {
		return err
	}
	return s.Validate()
}
