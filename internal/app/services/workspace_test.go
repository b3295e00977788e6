package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/payflow/payflow/internal/adapters/repository/memory"
	"github.com/payflow/payflow/internal/app/dto"
	"github.com/payflow/payflow/internal/core/checkpoint"
	"github.com/payflow/payflow/internal/core/graph"
	"github.com/payflow/payflow/internal/infrastructure/metrics"
	"github.com/payflow/payflow/pkg/serialization"
)

func newTestWorkspace(t *testing.T, opts ...WorkspaceOption) (*Workspace, *memory.InMemorySaver) {
	t.Helper()
	saver := memory.DefaultInMemorySaver()
	return NewWorkspace(NewGateway(saver), opts...), saver
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("n%d", n)
	}
}

func TestWorkspace_StartsWithDefaultFlow(t *testing.T) {
	ws, _ := newTestWorkspace(t)
	nodes, edges := graph.DefaultFlow()

	st := ws.State()
	assert.Equal(t, nodes, st.Nodes)
	assert.Equal(t, edges, st.Edges)
	assert.Nil(t, st.Selection)
}

func TestWorkspace_DeleteNodeScenario(t *testing.T) {
	ws, _ := newTestWorkspace(t)
	nodes, _ := graph.DefaultFlow()
	ws.Select("3")

	res := ws.DeleteNode("2")
	assert.True(t, res.Applied)
	assert.Equal(t, []graph.Node{nodes[0], nodes[2]}, res.State.Nodes)
	assert.Empty(t, res.State.Edges)
	assert.Nil(t, res.State.Selection)
	assert.Equal(t, res.State, ws.State())

	res = ws.DeleteNode("2")
	assert.False(t, res.Applied)
}

func TestWorkspace_EditSelectedLabelScenario(t *testing.T) {
	ws, _ := newTestWorkspace(t)
	require.True(t, ws.Select("1").Applied)

	res := ws.EditLabel("1", "Payment of $999")
	assert.True(t, res.Applied)
	require.NotNil(t, res.State.Selection)
	assert.Equal(t, "Payment of $999", res.State.Selection.Label)
	assert.Equal(t, "Payment of $999", res.State.Nodes[0].Label)

	assert.False(t, ws.EditLabel("missing", "x").Applied)
}

func TestWorkspace_DropNode(t *testing.T) {
	collector := metrics.NewCollector("test")
	ws, _ := newTestWorkspace(t, WithIDGenerator(sequentialIDs()), WithMetrics(collector))

	res, err := ws.DropNode(graph.NodeKindGateway, "", graph.Position{X: 10, Y: 20})
	require.NoError(t, err)
	assert.Equal(t, "n1", res.CreatedID)
	last := res.State.Nodes[len(res.State.Nodes)-1]
	assert.Equal(t, graph.Node{ID: "n1", Kind: graph.NodeKindGateway, Label: "New gateway node", Position: graph.Position{X: 10, Y: 20}}, last)
	assert.Len(t, res.State.Nodes, 4)

	failed, err := ws.DropNode("wallet", "x", graph.Position{})
	assert.ErrorIs(t, err, dto.ErrMalformedInput)
	assert.False(t, failed.Applied)
	assert.Equal(t, "Unknown node type", failed.Message)
	assert.Equal(t, ws.State(), failed.State)
	assert.ErrorIs(t, err, graph.ErrInvalidNodeKind)
	assert.Len(t, ws.State().Nodes, 4)

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.Mutations.WithLabelValues("add_node")))
	assert.Equal(t, 4.0, testutil.ToFloat64(collector.Nodes))
}

func TestWorkspace_DropNodeUsesUUIDs(t *testing.T) {
	ws, _ := newTestWorkspace(t)
	a, err := ws.DropNode(graph.NodeKindPayment, "a", graph.Position{})
	require.NoError(t, err)
	b, err := ws.DropNode(graph.NodeKindPayment, "b", graph.Position{})
	require.NoError(t, err)
	assert.Len(t, a.CreatedID, 36)
	assert.NotEqual(t, a.CreatedID, b.CreatedID)
}

func TestWorkspace_MoveNode(t *testing.T) {
	ws, _ := newTestWorkspace(t)
	res := ws.MoveNode("2", graph.Position{X: 400, Y: 175.5})
	assert.True(t, res.Applied)
	assert.Equal(t, graph.Position{X: 400, Y: 175.5}, res.State.Nodes[1].Position)
	assert.Equal(t, "America", res.State.Nodes[1].Label)

	assert.False(t, ws.MoveNode("9", graph.Position{}).Applied)
}

func TestWorkspace_Connect(t *testing.T) {
	tests := []struct {
		name    string
		source  string
		target  string
		style   string
		applied bool
	}{
		{"new edge", "1", "3", "", true},
		{"custom style", "3", "1", "step", true},
		{"same endpoints", "1", "2", "", false},
		{"self loop", "2", "2", "", false},
		{"unknown source", "9", "1", "", false},
		{"unknown target", "1", "9", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ws, _ := newTestWorkspace(t)
			res := ws.Connect(tt.source, tt.target, tt.style)
			assert.Equal(t, tt.applied, res.Applied)
			if !tt.applied {
				assert.Len(t, res.State.Edges, 2)
				assert.Equal(t, "Connection ignored", res.Message)
				return
			}
			require.Len(t, res.State.Edges, 3)
			e := res.State.Edges[2]
			assert.Equal(t, graph.EdgeID(tt.source, tt.target), e.ID)
			assert.Equal(t, res.CreatedID, e.ID)
			if tt.style == "" {
				assert.Equal(t, graph.DefaultEdgeStyle, e.Style)
			} else {
				assert.Equal(t, tt.style, e.Style)
			}
		})
	}
}

func TestWorkspace_RemoveEdge(t *testing.T) {
	ws, _ := newTestWorkspace(t)
	res := ws.RemoveEdge("e1-2")
	assert.True(t, res.Applied)
	require.Len(t, res.State.Edges, 1)
	assert.Equal(t, "e2-3", res.State.Edges[0].ID)
	assert.Len(t, res.State.Nodes, 3)

	assert.False(t, ws.RemoveEdge("e1-2").Applied)
}

func TestWorkspace_Select(t *testing.T) {
	ws, _ := newTestWorkspace(t)

	res := ws.Select("2")
	assert.True(t, res.Applied)
	require.NotNil(t, res.State.Selection)
	assert.Equal(t, "America", res.State.Selection.Label)

	res = ws.Select("missing")
	assert.False(t, res.Applied)
	assert.Nil(t, res.State.Selection)

	ws.Select("2")
	res = ws.Select("")
	assert.True(t, res.Applied)
	assert.Nil(t, res.State.Selection)
}

func TestWorkspace_ReplaceNodesRaw(t *testing.T) {
	const keepAll = `[{"id":"1","type":"payment"},{"id":"2","type":"location"},{"id":"3","type":"gateway"}]`

	tests := []struct {
		name          string
		payload       string
		strict        bool
		wantErr       bool
		wantNodes     int
		wantEdges     int
		wantMalformed float64
	}{
		{"array", `[{"id":"a","type":"payment","label":"A","position":{"x":1,"y":2}}]`, false, false, 1, 0, 0},
		{"same ids keep edges", keepAll, false, false, 3, 2, 0},
		{"empty array", `[]`, false, false, 0, 0, 0},
		{"object normalizes to empty", `{"id":"a"}`, false, false, 0, 0, 1},
		{"null normalizes to empty", `null`, false, false, 0, 0, 1},
		{"wrong element type normalizes to empty", `[1,2]`, false, false, 0, 0, 1},
		{"unknown kind dropped", `[{"id":"a","type":"bogus"},{"id":"b","type":"payment"}]`, false, false, 1, 0, 1},
		{"missing id dropped", `[{"type":"payment"},{"id":"b","type":"payment"}]`, false, false, 1, 0, 1},
		{"duplicate id dropped", `[{"id":"1","type":"payment"},{"id":"1","type":"gateway"}]`, false, false, 1, 0, 1},
		{"strict rejects object", `{"id":"a"}`, true, true, 3, 2, 1},
		{"strict rejects bad kind", `[{"id":"a","type":"wallet"}]`, true, true, 3, 2, 1},
		{"strict rejects duplicate id", `[{"id":"a","type":"payment"},{"id":"a","type":"gateway"}]`, true, true, 3, 2, 1},
		{"strict accepts array", `[{"id":"a","type":"gateway","label":"A"}]`, true, false, 1, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			collector := metrics.NewCollector("test")
			ws, _ := newTestWorkspace(t, WithStrictInput(tt.strict), WithMetrics(collector))
			before := ws.State()

			res, err := ws.ReplaceNodesRaw([]byte(tt.payload))
			if tt.wantErr {
				assert.ErrorIs(t, err, dto.ErrMalformedInput)
				assert.False(t, res.Applied)
				assert.Equal(t, before, res.State)
			} else {
				require.NoError(t, err)
				assert.True(t, res.Applied)
			}
			assert.Len(t, ws.State().Nodes, tt.wantNodes)
			assert.Len(t, ws.State().Edges, tt.wantEdges)
			assert.Equal(t, tt.wantMalformed, testutil.ToFloat64(collector.Malformed.WithLabelValues("nodes")))
			for _, n := range ws.State().Nodes {
				assert.True(t, n.Kind.Valid(), "node %s has kind %q", n.ID, n.Kind)
			}
		})
	}
}

func TestWorkspace_ReplaceEdgesRaw(t *testing.T) {
	tests := []struct {
		name      string
		payload   string
		strict    bool
		wantErr   bool
		wantEdges []graph.Edge
	}{
		{
			name:      "array",
			payload:   `[{"id":"e1-3","source":"1","target":"3","type":"step"}]`,
			wantEdges: []graph.Edge{{ID: "e1-3", Source: "1", Target: "3", Style: "step"}},
		},
		{
			name:      "string normalizes to empty",
			payload:   `"edges"`,
			wantEdges: []graph.Edge{},
		},
		{
			name:      "dangling and looping edges dropped",
			payload:   `[{"id":"a","source":"1","target":"9"},{"id":"b","source":"2","target":"2"},{"id":"c","source":"1","target":"2"}]`,
			wantEdges: []graph.Edge{{ID: "c", Source: "1", Target: "2"}},
		},
		{
			name:      "duplicate id dropped",
			payload:   `[{"id":"x","source":"1","target":"2"},{"id":"x","source":"2","target":"3"}]`,
			wantEdges: []graph.Edge{{ID: "x", Source: "1", Target: "2"}},
		},
		{
			name:    "strict rejects dangling edge",
			payload: `[{"id":"a","source":"1","target":"9"}]`,
			strict:  true,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ws, _ := newTestWorkspace(t, WithStrictInput(tt.strict))
			before := ws.State()

			res, err := ws.ReplaceEdgesRaw([]byte(tt.payload))
			if tt.wantErr {
				assert.ErrorIs(t, err, dto.ErrMalformedInput)
				assert.ErrorIs(t, err, graph.ErrTargetNodeNotFound)
				assert.Equal(t, before, ws.State())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantEdges, res.State.Edges)
		})
	}
}

func TestWorkspace_ReplaceKeepsSelectionWhenPresent(t *testing.T) {
	ws, _ := newTestWorkspace(t)
	ws.Select("1")

	nodes, _ := graph.DefaultFlow()
	nodes[0].Label = "Renamed"
	res, err := ws.ReplaceNodes(nodes)
	require.NoError(t, err)
	require.NotNil(t, res.State.Selection)
	assert.Equal(t, "Renamed", res.State.Selection.Label)

	res, err = ws.ReplaceNodes(nodes[1:])
	require.NoError(t, err)
	assert.Nil(t, res.State.Selection)
	// e1-2 lost its source with node 1
	assert.Equal(t, []graph.Edge{{ID: "e2-3", Source: "2", Target: "3", Style: graph.DefaultEdgeStyle}}, res.State.Edges)
}

func TestWorkspace_SaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	ws, _ := newTestWorkspace(t, WithIDGenerator(sequentialIDs()))

	_, err := ws.DropNode(graph.NodeKindLocation, "India", graph.Position{X: 400, Y: 150})
	require.NoError(t, err)
	ws.Connect("1", "n1", "")
	saved := ws.State()

	out, err := ws.Save(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Flow saved (4 nodes, 3 edges)", out.Message)

	ws.DeleteNode("1")
	ws.Select("3")
	require.Len(t, ws.State().Nodes, 3)

	res, err := ws.Load(ctx)
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, "Flow loaded (4 nodes, 3 edges)", res.Message)
	assert.Equal(t, saved.Nodes, res.State.Nodes)
	assert.Equal(t, saved.Edges, res.State.Edges)
	assert.Nil(t, res.State.Selection)
}

func TestWorkspace_SaveLoadRoundTripFreeForm(t *testing.T) {
	ctx := context.Background()
	ws, _ := newTestWorkspace(t)

	long := strings.Repeat("x", 201)
	require.True(t, ws.EditLabel("1", long).Applied)
	_, err := ws.ReplaceNodes(append(ws.State().Nodes, graph.Node{
		ID:    "node.1",
		Kind:  graph.NodeKindGateway,
		Label: "Adyen / EU (fallback)",
	}))
	require.NoError(t, err)
	require.True(t, ws.Connect("3", "node.1", "").Applied)
	saved := ws.State()

	_, err = ws.Save(ctx)
	require.NoError(t, err)
	ws.DeleteNode("node.1")

	res, err := ws.Load(ctx)
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, saved.Nodes, res.State.Nodes)
	assert.Equal(t, saved.Edges, res.State.Edges)
	assert.Equal(t, long, res.State.Nodes[0].Label)
}

func TestWorkspace_SavedStateAlwaysLoads(t *testing.T) {
	ctx := context.Background()
	ws, _ := newTestWorkspace(t)

	// lenient replaces that would otherwise leave duplicates, self-loops or
	// dangling edges in the graph
	_, err := ws.ReplaceNodesRaw([]byte(`[{"id":"1","type":"payment"},{"id":"1","type":"gateway"},{"id":"2","type":"bogus"}]`))
	require.NoError(t, err)
	_, err = ws.ReplaceEdgesRaw([]byte(`[{"id":"e","source":"1","target":"1"},{"id":"f","source":"1","target":"3"}]`))
	require.NoError(t, err)

	saved := ws.State()
	_, err = ws.Save(ctx)
	require.NoError(t, err)

	res, err := ws.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, saved.Nodes, res.State.Nodes)
	assert.Equal(t, saved.Edges, res.State.Edges)
}

func TestWorkspace_SavedFlowsAndDiscard(t *testing.T) {
	ctx := context.Background()
	ws, _ := newTestWorkspace(t)
	ws.Select("2")
	before := ws.State()

	res, err := ws.DiscardSaved(ctx)
	assert.ErrorIs(t, err, dto.ErrNotFound)
	assert.Equal(t, "No saved flow found", res.Message)

	_, err = ws.Save(ctx)
	require.NoError(t, err)
	saved, err := ws.SavedFlows(ctx, checkpoint.Filter{})
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.Equal(t, DefaultSnapshotKey, saved[0].Key)
	assert.Equal(t, graph.CurrentSchemaVersion, saved[0].SchemaVersion)

	res, err = ws.DiscardSaved(ctx)
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, "Saved flow deleted", res.Message)
	assert.Equal(t, before, res.State)

	saved, err = ws.SavedFlows(ctx, checkpoint.Filter{})
	require.NoError(t, err)
	assert.Empty(t, saved)
	_, err = ws.Load(ctx)
	assert.ErrorIs(t, err, dto.ErrNotFound)
}

func TestWorkspace_LoadWithoutSave(t *testing.T) {
	ws, _ := newTestWorkspace(t)
	ws.Select("1")
	before := ws.State()

	res, err := ws.Load(context.Background())
	assert.ErrorIs(t, err, dto.ErrNotFound)
	assert.False(t, res.Applied)
	assert.Equal(t, "No saved flow found", res.Message)
	assert.Equal(t, before, ws.State())
}

func TestWorkspace_TransportFailureLeavesStateAlone(t *testing.T) {
	ctx := context.Background()
	ws := NewWorkspace(NewGateway(failingSaver{err: errDiskFull}))
	ws.Select("2")
	before := ws.State()

	out, err := ws.Save(ctx)
	assert.ErrorIs(t, err, dto.ErrTransport)
	assert.Equal(t, "Failed to save flow", out.Message)

	res, err := ws.Load(ctx)
	assert.ErrorIs(t, err, dto.ErrTransport)
	assert.Equal(t, "Failed to load flow", res.Message)
	assert.Equal(t, before, ws.State())
}

func TestWorkspace_LoadRejectsInvalidSnapshots(t *testing.T) {
	tests := []struct {
		name    string
		snap    graph.Snapshot
		wantErr error
	}{
		{
			name: "dangling edge",
			snap: graph.Snapshot{
				SchemaVersion: 1,
				Nodes:         []graph.Node{{ID: "1", Kind: graph.NodeKindPayment}},
				Edges:         []graph.Edge{{ID: "e1-2", Source: "1", Target: "2"}},
			},
			wantErr: graph.ErrTargetNodeNotFound,
		},
		{
			name: "unknown kind",
			snap: graph.Snapshot{
				SchemaVersion: 1,
				Nodes:         []graph.Node{{ID: "1", Kind: "wallet"}},
			},
		},
		{
			name:    "future schema",
			snap:    graph.Snapshot{SchemaVersion: graph.CurrentSchemaVersion + 1},
			wantErr: graph.ErrUnsupportedSchema,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			ws, saver := newTestWorkspace(t)
			before := ws.State()

			data, err := serialization.DefaultSerializer().Serialize(tt.snap)
			require.NoError(t, err)
			require.NoError(t, saver.Save(ctx, &checkpoint.Checkpoint{
				Key:           DefaultSnapshotKey,
				SchemaVersion: tt.snap.SchemaVersion,
				Codec:         "msgpack",
				Compression:   "zstd",
				Data:          data,
			}))

			res, err := ws.Load(ctx)
			assert.ErrorIs(t, err, dto.ErrInvalidSnapshot)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			assert.False(t, res.Applied)
			assert.Equal(t, before, ws.State())
		})
	}
}

func TestWorkspace_LoadLegacySnapshot(t *testing.T) {
	ctx := context.Background()
	ws, saver := newTestWorkspace(t)

	nodes, edges := graph.DefaultFlow()
	legacy := graph.Snapshot{Nodes: nodes[:2], Edges: edges[:1]}
	data, err := serialization.DefaultSerializer().Serialize(legacy)
	require.NoError(t, err)
	require.NoError(t, saver.Save(ctx, &checkpoint.Checkpoint{Key: DefaultSnapshotKey, Codec: "msgpack", Compression: "zstd", Data: data}))

	res, err := ws.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, res.State.Nodes, 2)
	assert.Len(t, res.State.Edges, 1)
}

func TestWorkspace_MatchingDeletePolicy(t *testing.T) {
	store := graph.NewStore(graph.WithSeed(graph.DefaultFlow()), graph.WithSelectionPolicy(graph.ClearOnMatchingDelete))
	ws, _ := newTestWorkspace(t, WithStore(store))
	ws.Select("1")

	res := ws.DeleteNode("3")
	require.NotNil(t, res.State.Selection)
	assert.Equal(t, "1", res.State.Selection.ID)

	res = ws.DeleteNode("1")
	assert.Nil(t, res.State.Selection)
}

func TestWorkspace_ConcurrentIntents(t *testing.T) {
	ctx := context.Background()
	ws, _ := newTestWorkspace(t)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = ws.DropNode(graph.NodeKindPayment, "", graph.Position{})
		}()
		go func() {
			defer wg.Done()
			_, _ = ws.Save(ctx)
		}()
	}
	wg.Wait()

	assert.Len(t, ws.State().Nodes, 53)
	_, err := ws.Load(ctx)
	require.NoError(t, err)
}
