// Package redis stores graph checkpoints in Redis. Each checkpoint is a hash
// under "<prefix>:snapshot:<key>"; a sorted set scored by save time indexes
// the keys for List.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/payflow/payflow/internal/core/checkpoint"
)

// Config holds connection settings
type Config struct {
	Addr     string
	Password string
	DB       int
	Prefix   string // Key namespace (default "payflow")
}

// CheckpointSaver implements checkpoint.Saver interface for Redis
type CheckpointSaver struct {
	client goredis.UniversalClient
	prefix string
}

// NewCheckpointSaver wraps an existing client
func NewCheckpointSaver(client goredis.UniversalClient, prefix string) *CheckpointSaver {
	if prefix == "" {
		prefix = "payflow"
	}
	return &CheckpointSaver{client: client, prefix: prefix}
}

// Connect dials Redis and verifies the connection
func Connect(ctx context.Context, cfg Config) (*CheckpointSaver, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to reach redis at %s: %w", cfg.Addr, err)
	}
	return NewCheckpointSaver(client, cfg.Prefix), nil
}

func (s *CheckpointSaver) hashKey(key string) string {
	return s.prefix + ":snapshot:" + key
}

func (s *CheckpointSaver) indexKey() string {
	return s.prefix + ":snapshots"
}

// Save writes the checkpoint hash and its index entry in one transaction
func (s *CheckpointSaver) Save(ctx context.Context, cp *checkpoint.Checkpoint) error {
	if cp == nil {
		return checkpoint.ErrInvalidKey
	}
	if err := cp.Validate(); err != nil {
		return err
	}
	savedAt := cp.SavedAt
	if savedAt.IsZero() {
		savedAt = time.Now()
	}

	_, err := s.client.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.HSet(ctx, s.hashKey(cp.Key), map[string]interface{}{
			"schema_version": cp.SchemaVersion,
			"codec":          cp.Codec,
			"compression":    cp.Compression,
			"data":           cp.Data,
			"saved_at":       savedAt.UnixMilli(),
		})
		p.ZAdd(ctx, s.indexKey(), goredis.Z{Score: float64(savedAt.UnixMilli()), Member: cp.Key})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

// Load retrieves a checkpoint by key
func (s *CheckpointSaver) Load(ctx context.Context, key string) (*checkpoint.Checkpoint, error) {
	if key == "" {
		return nil, checkpoint.ErrInvalidKey
	}
	fields, err := s.client.HGetAll(ctx, s.hashKey(key)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	if len(fields) == 0 {
		return nil, checkpoint.ErrCheckpointNotFound
	}
	return decodeFields(key, fields)
}

// List walks the index newest first and loads each matching checkpoint
func (s *CheckpointSaver) List(ctx context.Context, filter checkpoint.Filter) ([]*checkpoint.Checkpoint, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	keys, err := s.client.ZRevRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}

	results := make([]*checkpoint.Checkpoint, 0, len(keys))
	for _, key := range keys {
		if !filter.Matches(key) {
			continue
		}
		cp, err := s.Load(ctx, key)
		if errors.Is(err, checkpoint.ErrCheckpointNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		results = append(results, cp)
	}
	return filter.Page(results), nil
}

// Delete removes a checkpoint and its index entry
func (s *CheckpointSaver) Delete(ctx context.Context, key string) error {
	if key == "" {
		return checkpoint.ErrInvalidKey
	}
	var del *goredis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		del = p.Del(ctx, s.hashKey(key))
		p.ZRem(ctx, s.indexKey(), key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	if del.Val() == 0 {
		return checkpoint.ErrCheckpointNotFound
	}
	return nil
}

// Close closes the underlying client
func (s *CheckpointSaver) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

func decodeFields(key string, fields map[string]string) (*checkpoint.Checkpoint, error) {
	version, err := strconv.Atoi(fields["schema_version"])
	if err != nil {
		return nil, fmt.Errorf("corrupt checkpoint %q: schema_version: %w", key, err)
	}
	millis, err := strconv.ParseInt(fields["saved_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt checkpoint %q: saved_at: %w", key, err)
	}
	return &checkpoint.Checkpoint{
		Key:           key,
		SchemaVersion: version,
		Codec:         fields["codec"],
		Compression:   fields["compression"],
		Data:          []byte(fields["data"]),
		SavedAt:       time.UnixMilli(millis),
	}, nil
}
