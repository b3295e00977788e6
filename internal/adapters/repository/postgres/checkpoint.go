// Package postgres stores graph checkpoints in PostgreSQL through pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/payflow/payflow/internal/core/checkpoint"
)

// CheckpointSaver implements checkpoint.Saver interface for PostgreSQL
type CheckpointSaver struct {
	pool      *pgxpool.Pool
	tableName string
}

// NewCheckpointSaver creates a new PostgreSQL checkpoint saver
func NewCheckpointSaver(pool *pgxpool.Pool) *CheckpointSaver {
	return &CheckpointSaver{
		pool:      pool,
		tableName: "snapshots",
	}
}

// Connect opens a pool for dsn and ensures the tables exist
func Connect(ctx context.Context, dsn string) (*CheckpointSaver, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach postgres: %w", err)
	}
	s := NewCheckpointSaver(pool)
	if err := s.CreateTables(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Save upserts a checkpoint
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

	query := fmt.Sprintf(`
		INSERT INTO %s (key, schema_version, codec, compression, data, saved_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (key) DO UPDATE SET
			schema_version = EXCLUDED.schema_version,
			codec = EXCLUDED.codec,
			compression = EXCLUDED.compression,
			data = EXCLUDED.data,
			saved_at = EXCLUDED.saved_at
	`, s.tableName)

	_, err := s.pool.Exec(ctx, query,
		cp.Key, cp.SchemaVersion, cp.Codec, cp.Compression, cp.Data, savedAt)
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

	query := fmt.Sprintf(`
		SELECT key, schema_version, codec, compression, data, saved_at
		FROM %s
		WHERE key = $1
	`, s.tableName)

	var cp checkpoint.Checkpoint
	err := s.pool.QueryRow(ctx, query, key).Scan(
		&cp.Key, &cp.SchemaVersion, &cp.Codec, &cp.Compression, &cp.Data, &cp.SavedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, checkpoint.ErrCheckpointNotFound
		}
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	return &cp, nil
}

// List retrieves checkpoints based on filter criteria, newest first
func (s *CheckpointSaver) List(ctx context.Context, filter checkpoint.Filter) ([]*checkpoint.Checkpoint, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	query, args := s.buildListQuery(filter)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	defer rows.Close()

	checkpoints := make([]*checkpoint.Checkpoint, 0)
	for rows.Next() {
		var cp checkpoint.Checkpoint
		if err := rows.Scan(&cp.Key, &cp.SchemaVersion, &cp.Codec, &cp.Compression, &cp.Data, &cp.SavedAt); err != nil {
			return nil, fmt.Errorf("failed to scan checkpoint row: %w", err)
		}
		checkpoints = append(checkpoints, &cp)
	}
	return checkpoints, rows.Err()
}

// Delete removes a checkpoint by key
func (s *CheckpointSaver) Delete(ctx context.Context, key string) error {
	if key == "" {
		return checkpoint.ErrInvalidKey
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE key = $1", s.tableName)
	result, err := s.pool.Exec(ctx, query, key)
	if err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	if result.RowsAffected() == 0 {
		return checkpoint.ErrCheckpointNotFound
	}
	return nil
}

// CreateTables creates the necessary database tables
func (s *CheckpointSaver) CreateTables(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			key VARCHAR(255) PRIMARY KEY,
			schema_version INTEGER NOT NULL,
			codec VARCHAR(32) NOT NULL,
			compression VARCHAR(32) NOT NULL DEFAULT 'none',
			data BYTEA NOT NULL,
			saved_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_%s_saved_at ON %s (saved_at);
	`, s.tableName, s.tableName, s.tableName)

	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	return nil
}

// buildListQuery constructs the SQL query for listing checkpoints
func (s *CheckpointSaver) buildListQuery(filter checkpoint.Filter) (string, []interface{}) {
	query := fmt.Sprintf("SELECT key, schema_version, codec, compression, data, saved_at FROM %s WHERE 1=1", s.tableName)
	args := make([]interface{}, 0)
	argCount := 0

	if filter.KeyPrefix != "" {
		argCount++
		query += fmt.Sprintf(" AND starts_with(key, $%d)", argCount)
		args = append(args, filter.KeyPrefix)
	}

	query += " ORDER BY saved_at DESC, key ASC"

	if filter.Limit > 0 {
		argCount++
		query += fmt.Sprintf(" LIMIT $%d", argCount)
		args = append(args, filter.Limit)
	}

	if filter.Offset > 0 {
		argCount++
		query += fmt.Sprintf(" OFFSET $%d", argCount)
		args = append(args, filter.Offset)
	}

	return query, args
}

// Close closes the database connection pool
func (s *CheckpointSaver) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}
