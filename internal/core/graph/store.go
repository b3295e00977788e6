// Package graph provides the payment workflow graph: its node and edge
// entities and the Store that owns their canonical copies. The package has
// no external dependencies.
package graph

// SelectionPolicy decides what DeleteNode does to the selection
type SelectionPolicy int

const (
	// ClearOnAnyDelete empties the selection on every delete, whichever node
	// was removed.
	ClearOnAnyDelete SelectionPolicy = iota
	// ClearOnMatchingDelete empties the selection only when the selected node
	// is the one removed.
	ClearOnMatchingDelete
)

// Store holds the canonical node sequence, edge sequence and selection.
//
// Every mutation runs to completion and leaves these invariants intact:
// edges reference nodes present in the store (except after a bare
// ReplaceNodes, whose caller is expected to ReplaceEdges too), and the
// selection, when set, is a current copy of a stored node.
//
// Store is not safe for concurrent use; its owner serializes access.
type Store struct {
	nodes    []Node
	edges    []Edge
	selected *Node
	onDelete SelectionPolicy
}

// StoreOption configures a Store
type StoreOption func(*Store)

// WithSeed initializes the store with the given nodes and edges
func WithSeed(nodes []Node, edges []Edge) StoreOption {
	return func(s *Store) {
		s.nodes = cloneNodes(nodes)
		s.edges = cloneEdges(edges)
	}
}

// WithSelectionPolicy overrides the default ClearOnAnyDelete policy
func WithSelectionPolicy(p SelectionPolicy) StoreOption {
	return func(s *Store) {
		s.onDelete = p
	}
}

// NewStore creates an empty store, or a seeded one when WithSeed is given
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		nodes:    []Node{},
		edges:    []Edge{},
		onDelete: ClearOnAnyDelete,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Nodes returns a copy of the node sequence in insertion order
func (s *Store) Nodes() []Node {
	return cloneNodes(s.nodes)
}

// Edges returns a copy of the edge sequence in insertion order
func (s *Store) Edges() []Edge {
	return cloneEdges(s.edges)
}

// Selection returns a copy of the selected node, or nil
func (s *Store) Selection() *Node {
	if s.selected == nil {
		return nil
	}
	n := *s.selected
	return &n
}

// Snapshot returns the current nodes and edges for persistence
func (s *Store) Snapshot() Snapshot {
	return NewSnapshot(s.nodes, s.edges)
}

// Node looks up a node by id
func (s *Store) Node(id string) (Node, bool) {
	i := s.indexOfNode(id)
	if i < 0 {
		return Node{}, false
	}
	return s.nodes[i], true
}

// ReplaceNodes replaces the entire node sequence. A nil slice becomes an
// empty sequence. Edges are left alone.
func (s *Store) ReplaceNodes(nodes []Node) {
	s.nodes = cloneNodes(nodes)
	s.refreshSelection()
}

// ReplaceEdges replaces the entire edge sequence. A nil slice becomes an
// empty sequence.
func (s *Store) ReplaceEdges(edges []Edge) {
	s.edges = cloneEdges(edges)
}

// SetSelection selects the stored node with n's id, or clears the selection
// when n is nil or no such node exists.
func (s *Store) SetSelection(n *Node) {
	if n == nil {
		s.selected = nil
		return
	}
	i := s.indexOfNode(n.ID)
	if i < 0 {
		s.selected = nil
		return
	}
	cur := s.nodes[i]
	s.selected = &cur
}

// AddNode appends n. Identifiers are the caller's responsibility.
func (s *Store) AddNode(n Node) {
	s.nodes = append(s.nodes, n)
}

// UpdateNodeLabel replaces the label of the node with the given id. Unknown
// ids leave the store unchanged.
func (s *Store) UpdateNodeLabel(id, label string) bool {
	return s.updateNode(id, func(n Node) Node { return n.WithLabel(label) })
}

// MoveNode replaces the position of the node with the given id.
func (s *Store) MoveNode(id string, p Position) bool {
	return s.updateNode(id, func(n Node) Node { return n.WithPosition(p) })
}

// DeleteNode removes the node and every edge touching it in one step.
func (s *Store) DeleteNode(id string) bool {
	removed := false
	nodes := make([]Node, 0, len(s.nodes))
	for _, n := range s.nodes {
		if n.ID == id {
			removed = true
			continue
		}
		nodes = append(nodes, n)
	}
	edges := make([]Edge, 0, len(s.edges))
	for _, e := range s.edges {
		if e.Touches(id) {
			continue
		}
		edges = append(edges, e)
	}
	s.nodes = nodes
	s.edges = edges

	switch s.onDelete {
	case ClearOnMatchingDelete:
		if s.selected != nil && s.selected.ID == id {
			s.selected = nil
		}
	default:
		s.selected = nil
	}
	return removed
}

// AddEdge appends e when both endpoints exist, it is not a self-loop, and no
// edge already joins the same source and target. It reports whether the
// edge was added.
func (s *Store) AddEdge(e Edge) bool {
	if e.Validate() != nil {
		return false
	}
	if s.indexOfNode(e.Source) < 0 || s.indexOfNode(e.Target) < 0 {
		return false
	}
	for _, existing := range s.edges {
		if existing.ID == e.ID || (existing.Source == e.Source && existing.Target == e.Target) {
			return false
		}
	}
	s.edges = append(s.edges, e)
	return true
}

// RemoveEdge removes the edge with the given id
func (s *Store) RemoveEdge(id string) bool {
	for i, e := range s.edges {
		if e.ID == id {
			s.edges = append(s.edges[:i:i], s.edges[i+1:]...)
			return true
		}
	}
	return false
}

// Restore validates snap and, if it is sound, replaces nodes and edges as
// one unit and clears the selection. On error nothing changes.
func (s *Store) Restore(snap Snapshot) error {
	if err := snap.Normalize(); err != nil {
		return err
	}
	if err := snap.Validate(); err != nil {
		return err
	}
	s.nodes = cloneNodes(snap.Nodes)
	s.edges = cloneEdges(snap.Edges)
	s.selected = nil
	return nil
}

func (s *Store) updateNode(id string, fn func(Node) Node) bool {
	i := s.indexOfNode(id)
	if i < 0 {
		return false
	}
	nodes := cloneNodes(s.nodes)
	nodes[i] = fn(nodes[i])
	s.nodes = nodes
	if s.selected != nil && s.selected.ID == id {
		cur := nodes[i]
		s.selected = &cur
	}
	return true
}

// refreshSelection re-points the selection at the stored copy, or clears it
// when the selected id is gone.
func (s *Store) refreshSelection() {
	if s.selected == nil {
		return
	}
	s.SetSelection(s.selected)
}

func (s *Store) indexOfNode(id string) int {
	for i := range s.nodes {
		if s.nodes[i].ID == id {
			return i
		}
	}
	return -1
}
