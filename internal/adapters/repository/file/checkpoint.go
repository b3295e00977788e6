// Package file stores each graph checkpoint as a JSON document in a
// directory on local disk. Writes go to a temp file renamed into place so a
// crash never leaves a half-written snapshot.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/payflow/payflow/internal/core/checkpoint"
)

const extension = ".snapshot.json"

// CheckpointSaver implements checkpoint.Saver on a directory
type CheckpointSaver struct {
	dir string
	mu  sync.Mutex
}

// NewCheckpointSaver creates dir if needed and returns a saver rooted there
func NewCheckpointSaver(dir string) (*CheckpointSaver, error) {
	if dir == "" {
		return nil, fmt.Errorf("file saver: directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("file saver: %w", err)
	}
	return &CheckpointSaver{dir: dir}, nil
}

// path escapes key so any string maps to one flat file name
func (s *CheckpointSaver) path(key string) string {
	return filepath.Join(s.dir, url.PathEscape(key)+extension)
}

// Save atomically replaces the file for cp.Key
func (s *CheckpointSaver) Save(_ context.Context, cp *checkpoint.Checkpoint) error {
	if cp == nil {
		return checkpoint.ErrInvalidKey
	}
	if err := cp.Validate(); err != nil {
		return err
	}
	stored := cp.Clone()
	if stored.SavedAt.IsZero() {
		stored.SavedAt = time.Now()
	}
	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path(cp.Key)); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

// Load reads the file for key
func (s *CheckpointSaver) Load(_ context.Context, key string) (*checkpoint.Checkpoint, error) {
	if key == "" {
		return nil, checkpoint.ErrInvalidKey
	}
	return s.read(s.path(key))
}

func (s *CheckpointSaver) read(path string) (*checkpoint.Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, checkpoint.ErrCheckpointNotFound
		}
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	var cp checkpoint.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint %s: %w", filepath.Base(path), err)
	}
	return &cp, nil
}

// List reads every snapshot file whose key matches, newest first
func (s *CheckpointSaver) List(_ context.Context, filter checkpoint.Filter) ([]*checkpoint.Checkpoint, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}

	results := make([]*checkpoint.Checkpoint, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, extension) {
			continue
		}
		key, err := url.PathUnescape(strings.TrimSuffix(name, extension))
		if err != nil || !filter.Matches(key) {
			continue
		}
		cp, err := s.read(filepath.Join(s.dir, name))
		if err != nil {
			return nil, err
		}
		results = append(results, cp)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].SavedAt.Equal(results[j].SavedAt) {
			return results[i].Key < results[j].Key
		}
		return results[i].SavedAt.After(results[j].SavedAt)
	})
	return filter.Page(results), nil
}

// Delete removes the file for key
func (s *CheckpointSaver) Delete(_ context.Context, key string) error {
	if key == "" {
		return checkpoint.ErrInvalidKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path(key)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return checkpoint.ErrCheckpointNotFound
		}
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}

// Close releases nothing; files are closed after every call
func (s *CheckpointSaver) Close() error {
	return nil
}
