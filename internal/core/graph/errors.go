// Package graph defines domain-specific errors
package graph

import "errors"

// Domain errors - DRY principle: defined once, used everywhere
var (
	// Node errors
	ErrInvalidNodeID   = errors.New("invalid node ID")
	ErrInvalidNodeKind = errors.New("invalid node kind")
	ErrDuplicateNode   = errors.New("duplicate node ID")

	// Edge errors
	ErrInvalidEdgeID      = errors.New("invalid edge ID")
	ErrInvalidSource      = errors.New("invalid source node")
	ErrInvalidTarget      = errors.New("invalid target node")
	ErrSourceNodeNotFound = errors.New("source node not found")
	ErrTargetNodeNotFound = errors.New("target node not found")
	ErrDuplicateEdge      = errors.New("duplicate edge ID")
	ErrSelfLoop           = errors.New("self-loops are not allowed")

	// Snapshot errors
	ErrUnsupportedSchema = errors.New("unsupported snapshot schema version")
)
