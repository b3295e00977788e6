// Package storage builds the checkpoint saver selected by configuration.
package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/payflow/payflow/internal/adapters/repository/file"
	"github.com/payflow/payflow/internal/adapters/repository/memory"
	"github.com/payflow/payflow/internal/adapters/repository/postgres"
	"github.com/payflow/payflow/internal/adapters/repository/redis"
	"github.com/payflow/payflow/internal/adapters/repository/sqlite"
	"github.com/payflow/payflow/internal/core/checkpoint"
	"github.com/payflow/payflow/internal/infrastructure/config"
	"github.com/payflow/payflow/internal/infrastructure/logging"
)

// Saver is a checkpoint.Saver that owns a connection or handle
type Saver interface {
	checkpoint.Saver
	io.Closer
}

// NewSaver opens the backend named by cfg.Storage.Backend. The caller
// closes the returned saver.
func NewSaver(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Saver, error) {
	logger = logging.OrNop(logger)
	sc := cfg.Storage

	var (
		saver Saver
		err   error
	)
	switch sc.Backend {
	case config.BackendMemory:
		saver = memory.NewInMemorySaver(memory.InMemoryConfig{MaxMemoryMB: int64(sc.MaxMemoryMB)})
	case config.BackendFile:
		saver, err = file.NewCheckpointSaver(sc.FileDir)
	case config.BackendSQLite:
		if err = ensureParentDir(sc.SQLitePath); err == nil {
			saver, err = sqlite.Open(ctx, sc.SQLitePath)
		}
	case config.BackendPostgres:
		saver, err = postgres.Connect(ctx, sc.PostgresDSN)
	case config.BackendRedis:
		saver, err = redis.Connect(ctx, redis.Config{Addr: sc.RedisAddr})
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownBackend, sc.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s storage: %w", sc.Backend, err)
	}

	logger.Info("snapshot storage ready",
		zap.String("backend", sc.Backend),
		zap.String("key", sc.SnapshotKey),
	)
	return saver, nil
}

func ensureParentDir(path string) error {
	if path == ":memory:" || path == "" {
		return nil
	}
	return os.MkdirAll(filepath.Dir(path), 0o755)
}
