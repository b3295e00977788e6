package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/payflow/payflow/internal/core/checkpoint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisCheckpointSaver(t *testing.T) {
	addr := os.Getenv("PAYFLOW_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("Integration test requires Redis (set PAYFLOW_TEST_REDIS_ADDR)")
	}
	ctx := context.Background()

	saver, err := Connect(ctx, Config{Addr: addr, Prefix: "payflow-test"})
	require.NoError(t, err)
	defer saver.Close()
	t.Cleanup(func() { _ = saver.Delete(context.Background(), "flow") })

	cp := &checkpoint.Checkpoint{Key: "flow", SchemaVersion: 1, Codec: "msgpack", Compression: "zstd", Data: []byte{0x00, 0xff, 0x10}}
	require.NoError(t, saver.Save(ctx, cp))

	loaded, err := saver.Load(ctx, "flow")
	require.NoError(t, err)
	assert.Equal(t, cp.Data, loaded.Data)
	assert.Equal(t, "zstd", loaded.Compression)

	listed, err := saver.List(ctx, checkpoint.Filter{KeyPrefix: "flo"})
	require.NoError(t, err)
	require.Len(t, listed, 1)

	require.NoError(t, saver.Delete(ctx, "flow"))
	_, err = saver.Load(ctx, "flow")
	assert.ErrorIs(t, err, checkpoint.ErrCheckpointNotFound)
	assert.ErrorIs(t, saver.Delete(ctx, "flow"), checkpoint.ErrCheckpointNotFound)
}

func TestDecodeFields(t *testing.T) {
	cp, err := decodeFields("flow", map[string]string{
		"schema_version": "1",
		"codec":          "json",
		"compression":    "none",
		"data":           `{"nodes":[]}`,
		"saved_at":       "1700000000000",
	})
	require.NoError(t, err)
	assert.Equal(t, "flow", cp.Key)
	assert.Equal(t, 1, cp.SchemaVersion)
	assert.Equal(t, `{"nodes":[]}`, string(cp.Data))
	assert.True(t, cp.SavedAt.Equal(time.UnixMilli(1_700_000_000_000)))

	_, err = decodeFields("flow", map[string]string{"schema_version": "x", "saved_at": "1"})
	assert.Error(t, err)
}

func TestRedisCheckpointSaver_Keys(t *testing.T) {
	s := NewCheckpointSaver(nil, "")
	assert.Equal(t, "payflow:snapshot:flow", s.hashKey("flow"))
	assert.Equal(t, "payflow:snapshots", s.indexKey())
}

func TestRedisCheckpointSaver_Errors(t *testing.T) {
	ctx := context.Background()
	s := NewCheckpointSaver(nil, "")

	assert.Equal(t, checkpoint.ErrInvalidKey, s.Save(ctx, nil))
	_, err := s.Load(ctx, "")
	assert.Equal(t, checkpoint.ErrInvalidKey, err)
	assert.Equal(t, checkpoint.ErrInvalidKey, s.Delete(ctx, ""))
}
