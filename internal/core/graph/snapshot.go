package graph

import "fmt"

// CurrentSchemaVersion is the snapshot layout written by this build.
// Version 0 marks snapshots persisted before versioning existed and
// decodes as version 1.
const CurrentSchemaVersion = 1

// Snapshot is the persisted form of the whole graph
type Snapshot struct {
	SchemaVersion int    `json:"schema_version" msgpack:"schema_version"`
	Nodes         []Node `json:"nodes" msgpack:"nodes"`
	Edges         []Edge `json:"edges" msgpack:"edges"`
}

// NewSnapshot copies nodes and edges into a snapshot stamped with the
// current schema version.
func NewSnapshot(nodes []Node, edges []Edge) Snapshot {
	return Snapshot{
		SchemaVersion: CurrentSchemaVersion,
		Nodes:         cloneNodes(nodes),
		Edges:         cloneEdges(edges),
	}
}

// Normalize upgrades legacy snapshots and replaces nil sequences with empty ones.
func (s *Snapshot) Normalize() error {
	switch {
	case s.SchemaVersion == 0:
		s.SchemaVersion = CurrentSchemaVersion
	case s.SchemaVersion > CurrentSchemaVersion || s.SchemaVersion < 0:
		return fmt.Errorf("%w: %d", ErrUnsupportedSchema, s.SchemaVersion)
	}
	if s.Nodes == nil {
		s.Nodes = []Node{}
	}
	if s.Edges == nil {
		s.Edges = []Edge{}
	}
	return nil
}

// Validate checks every node and edge and the references between them.
// It is intended for snapshots loaded from storage where the store's
// mutation guards were bypassed.
func (s *Snapshot) Validate() error {
	ids := make(map[string]struct{}, len(s.Nodes))
	for i := range s.Nodes {
		n := &s.Nodes[i]
		if err := n.Validate(); err != nil {
			return fmt.Errorf("node %d: %w", i, err)
		}
		if _, dup := ids[n.ID]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateNode, n.ID)
		}
		ids[n.ID] = struct{}{}
	}

	edgeIDs := make(map[string]struct{}, len(s.Edges))
	for i := range s.Edges {
		e := &s.Edges[i]
		if err := e.Validate(); err != nil {
			return fmt.Errorf("edge %d: %w", i, err)
		}
		if _, dup := edgeIDs[e.ID]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateEdge, e.ID)
		}
		edgeIDs[e.ID] = struct{}{}
		if _, ok := ids[e.Source]; !ok {
			return fmt.Errorf("%w: %s", ErrSourceNodeNotFound, e.Source)
		}
		if _, ok := ids[e.Target]; !ok {
			return fmt.Errorf("%w: %s", ErrTargetNodeNotFound, e.Target)
		}
	}
	return nil
}

func cloneNodes(nodes []Node) []Node {
	out := make([]Node, len(nodes))
	copy(out, nodes)
	return out
}

func cloneEdges(edges []Edge) []Edge {
	out := make([]Edge, len(edges))
	copy(out, edges)
	return out
}
