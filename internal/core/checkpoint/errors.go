// Package checkpoint defines domain-specific errors
package checkpoint

import "errors"

// Domain errors - DRY principle: defined once, used everywhere
var (
	// Checkpoint validation errors
	ErrInvalidKey         = errors.New("invalid checkpoint key")
	ErrNilData            = errors.New("checkpoint data cannot be nil")
	ErrInvalidCodec       = errors.New("checkpoint codec is required")
	ErrCheckpointNotFound = errors.New("checkpoint not found")

	// Filter validation errors
	ErrInvalidLimit  = errors.New("limit cannot be negative")
	ErrInvalidOffset = errors.New("offset cannot be negative")

	// Capacity errors
	ErrCapacityExceeded = errors.New("checkpoint store capacity exceeded")
)
