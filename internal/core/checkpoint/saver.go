// Package checkpoint provides checkpoint persistence interfaces
package checkpoint

import (
	"context"
	"strings"
)

// Saver interface for checkpoint persistence (DIP - Dependency Inversion)
// PRINCIPLES:
// - ISP: Interface segregation with ≤5 methods
// - DIP: Core domain depends on interface, not implementations
type Saver interface {
	// Save persists a checkpoint, overwriting any prior value under its key
	Save(ctx context.Context, cp *Checkpoint) error

	// Load retrieves a checkpoint by key
	Load(ctx context.Context, key string) (*Checkpoint, error)

	// List returns checkpoints matching the filter, newest first
	List(ctx context.Context, filter Filter) ([]*Checkpoint, error)

	// Delete removes a checkpoint by key
	Delete(ctx context.Context, key string) error
}

// Filter for checkpoint queries
type Filter struct {
	KeyPrefix string `json:"key_prefix,omitempty"`
	Limit     int    `json:"limit,omitempty"`
	Offset    int    `json:"offset,omitempty"`
}

// Validate ensures filter parameters are valid
func (f *Filter) Validate() error {
	if f.Limit < 0 {
		return ErrInvalidLimit
	}
	if f.Offset < 0 {
		return ErrInvalidOffset
	}
	return nil
}

// Matches reports whether key passes the prefix filter
func (f *Filter) Matches(key string) bool {
	return strings.HasPrefix(key, f.KeyPrefix)
}

// Page applies offset and limit to an already ordered result set
func (f *Filter) Page(cps []*Checkpoint) []*Checkpoint {
	if f.Offset >= len(cps) {
		return []*Checkpoint{}
	}
	cps = cps[f.Offset:]
	if f.Limit > 0 && f.Limit < len(cps) {
		cps = cps[:f.Limit]
	}
	return cps
}
