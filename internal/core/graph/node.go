// Package graph provides node definitions
package graph

import "fmt"

// NodeKind represents the type of a payment workflow step
type NodeKind string

const (
	// NodeKindPayment represents a payment amount step
	NodeKindPayment NodeKind = "payment"
	// NodeKindLocation represents a transaction location step
	NodeKindLocation NodeKind = "location"
	// NodeKindGateway represents a payment gateway step
	NodeKindGateway NodeKind = "gateway"
)

// NodeKinds lists every valid kind in palette order.
var NodeKinds = []NodeKind{NodeKindPayment, NodeKindLocation, NodeKindGateway}

// Valid reports whether k is one of the closed set of kinds.
func (k NodeKind) Valid() bool {
	switch k {
	case NodeKindPayment, NodeKindLocation, NodeKindGateway:
		return true
	}
	return false
}

// ParseNodeKind converts a wire value into a NodeKind.
func ParseNodeKind(s string) (NodeKind, error) {
	k := NodeKind(s)
	if !k.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidNodeKind, s)
	}
	return k, nil
}

// Position is a point on the canvas
type Position struct {
	X float64 `json:"x" msgpack:"x"`
	Y float64 `json:"y" msgpack:"y"`
}

// Node represents a step in the payment workflow
// PRINCIPLES:
// - KISS: Plain value type, copied freely
// - SRP: Only responsible for node data
type Node struct {
	ID       string   `json:"id" msgpack:"id"`
	Kind     NodeKind `json:"type" msgpack:"type"`
	Label    string   `json:"label" msgpack:"label"`
	Position Position `json:"position" msgpack:"position"`
}

// Validate ensures node integrity
func (n *Node) Validate() error {
	if n.ID == "" {
		return ErrInvalidNodeID
	}
	if !n.Kind.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidNodeKind, n.Kind)
	}
	return nil
}

// WithLabel returns a copy of the node with the label replaced
func (n Node) WithLabel(label string) Node {
	n.Label = label
	return n
}

// WithPosition returns a copy of the node moved to p
func (n Node) WithPosition(p Position) Node {
	n.Position = p
	return n
}
