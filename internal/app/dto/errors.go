package dto

import "errors"

// Workspace errors surfaced to callers as status messages
var (
	ErrNotFound        = errors.New("no saved flow found")
	ErrTransport       = errors.New("snapshot transport failed")
	ErrMalformedInput  = errors.New("malformed input")
	ErrInvalidSnapshot = errors.New("saved flow is invalid")
)
