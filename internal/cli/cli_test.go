package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/payflow/payflow/internal/app/dto"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := New(&out).Execute(context.Background(), args)
	return out.String(), err
}

func TestVersion(t *testing.T) {
	tests := []struct {
		name                string
		version, commit, at string
		want                string
	}{
		{"dev defaults", "dev", "unknown", "unknown", "payflow dev (commit: unknown, built: unknown)\n"},
		{"release", "v1.0.0", "abc123", "2026-01-01", "payflow v1.0.0 (commit: abc123, built: 2026-01-01)\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			SetVersion(tt.version, tt.commit, tt.at)
			t.Cleanup(func() { SetVersion("dev", "unknown", "unknown") })

			out, err := run(t, "version")
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestSeedThenShow(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("PAYFLOW_BACKEND", "file")
	t.Setenv("PAYFLOW_FILE_DIR", dir)
	t.Setenv("PAYFLOW_LOG_LEVEL", "error")

	out, err := run(t, "show")
	require.NoError(t, err)
	assert.Equal(t, "No saved flow found\n", out)

	out, err = run(t, "seed")
	require.NoError(t, err)
	assert.Equal(t, "Flow saved (3 nodes, 2 edges) under key \"flow\"\n", out)

	out, err = run(t, "show")
	require.NoError(t, err)
	var st dto.GraphState
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.Len(t, st.Nodes, 3)
	assert.Equal(t, "RazorPay", st.Nodes[2].Label)
}

func TestBackendFlag(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PAYFLOW_LOG_LEVEL", "error")

	_, err := run(t, "--backend", "tape", "show")
	assert.Error(t, err)

	out, err := run(t, "--backend", "memory", "show")
	require.NoError(t, err)
	assert.Equal(t, "No saved flow found\n", out)
}

func TestServeStopsOnCancel(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PAYFLOW_LOG_LEVEL", "error")
	t.Setenv("PAYFLOW_ADDR", "127.0.0.1:0")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	err := New(&out).Execute(ctx, []string{"serve"})
	assert.NoError(t, err)
}

func TestListThenDelete(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("PAYFLOW_BACKEND", "file")
	t.Setenv("PAYFLOW_FILE_DIR", dir)
	t.Setenv("PAYFLOW_LOG_LEVEL", "error")

	out, err := run(t, "list")
	require.NoError(t, err)
	assert.Equal(t, "No saved flows\n", out)

	_, err = run(t, "seed")
	require.NoError(t, err)
	t.Setenv("PAYFLOW_SNAPSHOT_KEY", "draft")
	_, err = run(t, "seed")
	require.NoError(t, err)

	out, err = run(t, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "flow")
	assert.Contains(t, out, "draft")
	assert.Contains(t, out, "msgpack/zstd")

	out, err = run(t, "list", "--prefix", "dr")
	require.NoError(t, err)
	assert.NotContains(t, out, "flow ")
	assert.Contains(t, out, "draft")

	// explicit key wins over the configured one
	out, err = run(t, "delete", "flow")
	require.NoError(t, err)
	assert.Equal(t, "Saved flow deleted (key \"flow\")\n", out)

	out, err = run(t, "delete", "flow")
	require.NoError(t, err)
	assert.Equal(t, "No saved flow found\n", out)

	out, err = run(t, "delete")
	require.NoError(t, err)
	assert.Equal(t, "Saved flow deleted (key \"draft\")\n", out)
}
