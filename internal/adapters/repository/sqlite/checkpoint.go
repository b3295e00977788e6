// Package sqlite stores graph checkpoints in a SQLite database through the
// pure-Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/payflow/payflow/internal/core/checkpoint"
	_ "modernc.org/sqlite"
)

// DriverName is the database/sql driver registered by modernc.org/sqlite
const DriverName = "sqlite"

// CheckpointSaver implements checkpoint.Saver interface for SQLite
type CheckpointSaver struct {
	db        *sql.DB
	tableName string
}

// NewCheckpointSaver creates a new SQLite checkpoint saver
func NewCheckpointSaver(db *sql.DB) *CheckpointSaver {
	return &CheckpointSaver{
		db:        db,
		tableName: "snapshots",
	}
}

// Open opens (creating if needed) the database at path and its tables
func Open(ctx context.Context, path string) (*CheckpointSaver, error) {
	db, err := sql.Open(DriverName, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// One writer keeps ":memory:" databases on a single connection
	db.SetMaxOpenConns(1)

	s := NewCheckpointSaver(db)
	if err := s.CreateTables(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// WithTableName allows overriding the default table name with validation.
// Only alphanumeric and underscore are permitted to prevent SQL injection via identifiers.
func (s *CheckpointSaver) WithTableName(name string) *CheckpointSaver {
	if isSafeIdent(name) {
		s.tableName = name
	}
	return s
}

func isSafeIdent(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' {
			continue
		}
		return false
	}
	return true
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
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			schema_version = excluded.schema_version,
			codec = excluded.codec,
			compression = excluded.compression,
			data = excluded.data,
			saved_at = excluded.saved_at
	`, s.tableName)

	_, err := s.db.ExecContext(ctx, query,
		cp.Key, cp.SchemaVersion, cp.Codec, cp.Compression, cp.Data, savedAt.UnixMilli())
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
		WHERE key = ?
	`, s.tableName)

	cp, err := scanCheckpoint(s.db.QueryRowContext(ctx, query, key))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, checkpoint.ErrCheckpointNotFound
		}
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	return cp, nil
}

// List retrieves checkpoints based on filter criteria, newest first
func (s *CheckpointSaver) List(ctx context.Context, filter checkpoint.Filter) ([]*checkpoint.Checkpoint, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	query, args := s.buildListQuery(filter)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	defer rows.Close()

	checkpoints := make([]*checkpoint.Checkpoint, 0)
	for rows.Next() {
		cp, err := scanCheckpoint(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan checkpoint row: %w", err)
		}
		checkpoints = append(checkpoints, cp)
	}
	return checkpoints, rows.Err()
}

// Delete removes a checkpoint by key
func (s *CheckpointSaver) Delete(ctx context.Context, key string) error {
	if key == "" {
		return checkpoint.ErrInvalidKey
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE key = ?", s.tableName)
	result, err := s.db.ExecContext(ctx, query, key)
	if err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return checkpoint.ErrCheckpointNotFound
	}
	return nil
}

// CreateTables creates the necessary database tables
func (s *CheckpointSaver) CreateTables(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			key TEXT PRIMARY KEY,
			schema_version INTEGER NOT NULL,
			codec TEXT NOT NULL,
			compression TEXT NOT NULL DEFAULT 'none',
			data BLOB NOT NULL,
			saved_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_%s_saved_at ON %s (saved_at);
	`, s.tableName, s.tableName, s.tableName)

	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	return nil
}

// buildListQuery constructs the SQL query for listing checkpoints
func (s *CheckpointSaver) buildListQuery(filter checkpoint.Filter) (string, []interface{}) {
	query := fmt.Sprintf("SELECT key, schema_version, codec, compression, data, saved_at FROM %s WHERE 1=1", s.tableName)
	args := make([]interface{}, 0)

	if filter.KeyPrefix != "" {
		query += " AND substr(key, 1, length(?)) = ?"
		args = append(args, filter.KeyPrefix, filter.KeyPrefix)
	}

	query += " ORDER BY saved_at DESC, key ASC"

	if filter.Limit > 0 || filter.Offset > 0 {
		limit := filter.Limit
		if limit == 0 {
			limit = -1 // SQLite: no limit
		}
		query += " LIMIT ? OFFSET ?"
		args = append(args, limit, filter.Offset)
	}

	return query, args
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCheckpoint(row rowScanner) (*checkpoint.Checkpoint, error) {
	var cp checkpoint.Checkpoint
	var savedAt int64
	if err := row.Scan(&cp.Key, &cp.SchemaVersion, &cp.Codec, &cp.Compression, &cp.Data, &savedAt); err != nil {
		return nil, err
	}
	cp.SavedAt = time.UnixMilli(savedAt)
	if cp.Data == nil {
		cp.Data = []byte{}
	}
	return &cp, nil
}

// Close closes the database connection
func (s *CheckpointSaver) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
