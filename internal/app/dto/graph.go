package dto

import (
	"time"

	"github.com/payflow/payflow/internal/core/graph"
)

// GraphState is the read-only view handed to the rendering surface
type GraphState struct {
	Nodes     []graph.Node `json:"nodes"`
	Edges     []graph.Edge `json:"edges"`
	Selection *graph.Node  `json:"selection"`
}

// Result reports what one intent did
type Result struct {
	Applied bool       `json:"applied"`
	Message string     `json:"message"`
	State   GraphState `json:"state"`

	// NodeID or EdgeID of an entity the intent created
	CreatedID string `json:"created_id,omitempty"`
}

// SaveOutcome describes a completed save
type SaveOutcome struct {
	Message string    `json:"message"`
	Key     string    `json:"key"`
	SavedAt time.Time `json:"saved_at"`
	Nodes   int       `json:"nodes"`
	Edges   int       `json:"edges"`
	Bytes   int       `json:"bytes"`
}

// SavedFlow describes one snapshot held by the storage backend
type SavedFlow struct {
	Key           string    `json:"key"`
	SchemaVersion int       `json:"schema_version"`
	Codec         string    `json:"codec"`
	Compression   string    `json:"compression"`
	Bytes         int64     `json:"bytes"`
	SavedAt       time.Time `json:"saved_at"`
}
