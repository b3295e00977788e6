// Package checkpoint provides the persisted record of a graph snapshot and
// the Saver interface storage backends implement. It has no external
// dependencies.
package checkpoint

import (
	"time"
)

// Checkpoint is one named, serialized graph snapshot
// PRINCIPLES:
// - KISS: Opaque payload plus the settings needed to decode it
// - SRP: Only responsible for checkpoint data structure
type Checkpoint struct {
	Key           string    `json:"key"`
	SchemaVersion int       `json:"schema_version"`
	Codec         string    `json:"codec"`
	Compression   string    `json:"compression"`
	Data          []byte    `json:"data"`
	SavedAt       time.Time `json:"saved_at"`
}

// Validate ensures checkpoint integrity
func (c *Checkpoint) Validate() error {
	if c.Key == "" {
		return ErrInvalidKey
	}
	if c.Data == nil {
		return ErrNilData
	}
	if c.Codec == "" {
		return ErrInvalidCodec
	}
	return nil
}

// Size returns the payload size in bytes
func (c *Checkpoint) Size() int64 {
	return int64(len(c.Data))
}

// Clone returns a deep copy so callers never share payload buffers with a saver
func (c *Checkpoint) Clone() *Checkpoint {
	out := *c
	out.Data = append([]byte(nil), c.Data...)
	return &out
}
