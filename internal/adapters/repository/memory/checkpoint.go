// Package memory provides an in-process checkpoint store, used by tests and
// by single-process deployments that accept losing state on restart.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/payflow/payflow/internal/core/checkpoint"
)

// InMemorySaver implements checkpoint.Saver with thread-safe in-memory storage
// PRINCIPLES:
// - KISS: Simple map guarded by a RWMutex
// - SRP: Single responsibility for in-memory checkpoint storage
// - DIP: Implements checkpoint.Saver interface
type InMemorySaver struct {
	mu          sync.RWMutex
	checkpoints map[string]*checkpoint.Checkpoint
	maxBytes    int64
	currentSize int64
	now         func() time.Time
}

// InMemoryConfig holds configuration for InMemorySaver
type InMemoryConfig struct {
	MaxMemoryMB int64 // Maximum payload bytes held, in MB (default 64)
}

// NewInMemorySaver creates a new in-memory checkpoint saver
func NewInMemorySaver(config InMemoryConfig) *InMemorySaver {
	if config.MaxMemoryMB == 0 {
		config.MaxMemoryMB = 64
	}
	return &InMemorySaver{
		checkpoints: make(map[string]*checkpoint.Checkpoint),
		maxBytes:    config.MaxMemoryMB * 1024 * 1024,
		now:         time.Now,
	}
}

// DefaultInMemorySaver creates an InMemorySaver with default configuration
func DefaultInMemorySaver() *InMemorySaver {
	return NewInMemorySaver(InMemoryConfig{})
}

// Save stores a copy of cp, replacing any checkpoint under the same key
func (s *InMemorySaver) Save(_ context.Context, cp *checkpoint.Checkpoint) error {
	if cp == nil {
		return checkpoint.ErrInvalidKey
	}
	if err := cp.Validate(); err != nil {
		return fmt.Errorf("checkpoint validation failed: %w", err)
	}

	stored := cp.Clone()
	if stored.SavedAt.IsZero() {
		stored.SavedAt = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var prev int64
	if old, ok := s.checkpoints[cp.Key]; ok {
		prev = old.Size()
	}
	next := s.currentSize - prev + stored.Size()
	if next > s.maxBytes {
		return fmt.Errorf("%w: %d bytes over %d", checkpoint.ErrCapacityExceeded, next-s.maxBytes, s.maxBytes)
	}

	s.checkpoints[cp.Key] = stored
	s.currentSize = next
	return nil
}

// Load returns a copy of the checkpoint stored under key
func (s *InMemorySaver) Load(_ context.Context, key string) (*checkpoint.Checkpoint, error) {
	if key == "" {
		return nil, checkpoint.ErrInvalidKey
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	cp, ok := s.checkpoints[key]
	if !ok {
		return nil, checkpoint.ErrCheckpointNotFound
	}
	return cp.Clone(), nil
}

// List returns copies of matching checkpoints, newest first
func (s *InMemorySaver) List(_ context.Context, filter checkpoint.Filter) ([]*checkpoint.Checkpoint, error) {
	if err := filter.Validate(); err != nil {
		return nil, fmt.Errorf("filter validation failed: %w", err)
	}

	s.mu.RLock()
	results := make([]*checkpoint.Checkpoint, 0, len(s.checkpoints))
	for key, cp := range s.checkpoints {
		if filter.Matches(key) {
			results = append(results, cp.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(results, func(i, j int) bool {
		if results[i].SavedAt.Equal(results[j].SavedAt) {
			return results[i].Key < results[j].Key
		}
		return results[i].SavedAt.After(results[j].SavedAt)
	})
	return filter.Page(results), nil
}

// Delete removes the checkpoint stored under key
func (s *InMemorySaver) Delete(_ context.Context, key string) error {
	if key == "" {
		return checkpoint.ErrInvalidKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cp, ok := s.checkpoints[key]
	if !ok {
		return checkpoint.ErrCheckpointNotFound
	}
	delete(s.checkpoints, key)
	s.currentSize -= cp.Size()
	return nil
}

// MemoryStats reports what the saver currently holds
type MemoryStats struct {
	Count     int   `json:"count"`
	SizeBytes int64 `json:"size_bytes"`
	MaxBytes  int64 `json:"max_bytes"`
}

// Stats returns memory usage statistics
func (s *InMemorySaver) Stats() MemoryStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return MemoryStats{
		Count:     len(s.checkpoints),
		SizeBytes: s.currentSize,
		MaxBytes:  s.maxBytes,
	}
}

// Close releases nothing; it exists so every saver can be closed uniformly
func (s *InMemorySaver) Close() error {
	return nil
}
