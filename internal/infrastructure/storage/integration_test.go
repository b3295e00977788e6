//go:build integration

package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/payflow/payflow/internal/core/checkpoint"
	"github.com/payflow/payflow/internal/infrastructure/config"
)

// backends returns every backend reachable from this environment
func backends(t *testing.T) map[string]*config.Config {
	t.Helper()
	dir := t.TempDir()
	out := map[string]*config.Config{}

	memory := config.Default()
	out["memory"] = memory

	file := config.Default()
	file.Storage.Backend = config.BackendFile
	file.Storage.FileDir = filepath.Join(dir, "files")
	out["file"] = file

	sqlite := config.Default()
	sqlite.Storage.Backend = config.BackendSQLite
	sqlite.Storage.SQLitePath = filepath.Join(dir, "payflow.db")
	out["sqlite"] = sqlite

	if dsn := os.Getenv("PAYFLOW_TEST_POSTGRES_DSN"); dsn != "" {
		pg := config.Default()
		pg.Storage.Backend = config.BackendPostgres
		pg.Storage.PostgresDSN = dsn
		out["postgres"] = pg
	}
	if addr := os.Getenv("PAYFLOW_TEST_REDIS_ADDR"); addr != "" {
		rd := config.Default()
		rd.Storage.Backend = config.BackendRedis
		rd.Storage.RedisAddr = addr
		out["redis"] = rd
	}
	return out
}

func TestSaverConformance(t *testing.T) {
	for name, cfg := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			saver, err := NewSaver(ctx, cfg, nil)
			require.NoError(t, err)
			defer saver.Close()

			prefix := fmt.Sprintf("conf-%d-", time.Now().UnixNano())
			key := func(s string) string { return prefix + s }

			t.Run("missing key", func(t *testing.T) {
				_, err := saver.Load(ctx, key("none"))
				assert.ErrorIs(t, err, checkpoint.ErrCheckpointNotFound)
				assert.ErrorIs(t, saver.Delete(ctx, key("none")), checkpoint.ErrCheckpointNotFound)
			})

			t.Run("overwrite keeps last write", func(t *testing.T) {
				for i := 0; i < 3; i++ {
					require.NoError(t, saver.Save(ctx, &checkpoint.Checkpoint{
						Key:           key("flow"),
						SchemaVersion: 1,
						Codec:         "msgpack",
						Compression:   "zstd",
						Data:          []byte{byte(i), 0xff},
					}))
				}
				cp, err := saver.Load(ctx, key("flow"))
				require.NoError(t, err)
				assert.Equal(t, []byte{2, 0xff}, cp.Data)
				assert.Equal(t, "zstd", cp.Compression)
				assert.False(t, cp.SavedAt.IsZero())
			})

			t.Run("list by prefix newest first", func(t *testing.T) {
				base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
				for i, k := range []string{"a", "b", "c"} {
					require.NoError(t, saver.Save(ctx, &checkpoint.Checkpoint{
						Key:     key("list-" + k),
						Codec:   "json",
						Data:    []byte("{}"),
						SavedAt: base.Add(time.Duration(i) * time.Minute),
					}))
				}
				listed, err := saver.List(ctx, checkpoint.Filter{KeyPrefix: key("list-"), Limit: 2})
				require.NoError(t, err)
				require.Len(t, listed, 2)
				assert.Equal(t, key("list-c"), listed[0].Key)
				assert.Equal(t, key("list-b"), listed[1].Key)

				listed, err = saver.List(ctx, checkpoint.Filter{KeyPrefix: key("list-"), Offset: 2})
				require.NoError(t, err)
				require.Len(t, listed, 1)
				assert.Equal(t, key("list-a"), listed[0].Key)
			})

			t.Run("delete", func(t *testing.T) {
				require.NoError(t, saver.Delete(ctx, key("flow")))
				_, err := saver.Load(ctx, key("flow"))
				assert.ErrorIs(t, err, checkpoint.ErrCheckpointNotFound)
			})
		})
	}
}
