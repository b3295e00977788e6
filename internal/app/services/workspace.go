package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/payflow/payflow/internal/app/dto"
	"github.com/payflow/payflow/internal/core/checkpoint"
	"github.com/payflow/payflow/internal/core/graph"
	"github.com/payflow/payflow/internal/infrastructure/logging"
	"github.com/payflow/payflow/internal/infrastructure/metrics"
	"github.com/payflow/payflow/pkg/validation"
)

// Workspace owns one graph store and applies user intents to it in
// arrival order.
// PRINCIPLES:
// - Single writer: every intent runs under one mutex
// - Persistence I/O never holds the lock and never touches state on failure
// - Callers only ever see copies of the graph
type Workspace struct {
	mu      sync.Mutex
	store   *graph.Store
	gateway *Gateway
	logger  *zap.Logger
	metrics *metrics.Collector
	strict  bool
	newID   func() string
}

// WorkspaceOption configures a Workspace
type WorkspaceOption func(*Workspace)

// WithStore replaces the default store seeded with graph.DefaultFlow
func WithStore(s *graph.Store) WorkspaceOption {
	return func(w *Workspace) {
		if s != nil {
			w.store = s
		}
	}
}

// WithStrictInput rejects replace payloads that are not JSON arrays of
// valid records instead of normalizing them to empty sequences
func WithStrictInput(strict bool) WorkspaceOption {
	return func(w *Workspace) { w.strict = strict }
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) WorkspaceOption {
	return func(w *Workspace) { w.logger = logging.OrNop(l) }
}

// WithMetrics records mutations on c
func WithMetrics(c *metrics.Collector) WorkspaceOption {
	return func(w *Workspace) { w.metrics = c }
}

// WithIDGenerator overrides the uuid generator used for dropped nodes
func WithIDGenerator(fn func() string) WorkspaceOption {
	return func(w *Workspace) {
		if fn != nil {
			w.newID = fn
		}
	}
}

// NewWorkspace creates a workspace persisting through gateway
func NewWorkspace(gateway *Gateway, opts ...WorkspaceOption) *Workspace {
	w := &Workspace{
		store:   graph.NewStore(graph.WithSeed(graph.DefaultFlow())),
		gateway: gateway,
		logger:  zap.NewNop(),
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.metrics.SetGraphSize(len(w.store.Nodes()), len(w.store.Edges()))
	return w
}

// State returns a copy of the current graph
func (w *Workspace) State() dto.GraphState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stateLocked()
}

// DropNode adds a node of kind at pos with a fresh id
func (w *Workspace) DropNode(kind graph.NodeKind, label string, pos graph.Position) (dto.Result, error) {
	if !kind.Valid() {
		return w.failedResult("Unknown node type"), fmt.Errorf("%w: %w: %q", dto.ErrMalformedInput, graph.ErrInvalidNodeKind, kind)
	}
	if label == "" {
		label = fmt.Sprintf("New %s node", kind)
	}
	n := graph.Node{ID: w.newID(), Kind: kind, Label: label, Position: pos}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.store.AddNode(n)
	w.applied("add_node", zap.String("node", n.ID), zap.String("kind", string(kind)))
	res := w.resultLocked(true, fmt.Sprintf("Added %s node", kind))
	res.CreatedID = n.ID
	return res, nil
}

// MoveNode records the final position of a drag
func (w *Workspace) MoveNode(id string, pos graph.Position) dto.Result {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.store.MoveNode(id, pos) {
		return w.resultLocked(false, fmt.Sprintf("Node %s not found", id))
	}
	w.applied("move_node", zap.String("node", id))
	return w.resultLocked(true, "Node moved")
}

// EditLabel replaces the label of node id
func (w *Workspace) EditLabel(id, label string) dto.Result {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.store.UpdateNodeLabel(id, label) {
		return w.resultLocked(false, fmt.Sprintf("Node %s not found", id))
	}
	w.applied("update_label", zap.String("node", id))
	return w.resultLocked(true, "Label updated")
}

// DeleteNode removes node id and its edges
func (w *Workspace) DeleteNode(id string) dto.Result {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.store.DeleteNode(id) {
		return w.resultLocked(false, fmt.Sprintf("Node %s not found", id))
	}
	w.applied("delete_node", zap.String("node", id))
	return w.resultLocked(true, "Node deleted")
}

// Connect draws an edge from source to target. Unknown endpoints,
// self-loops and repeated connections are ignored.
func (w *Workspace) Connect(source, target, style string) dto.Result {
	if style == "" {
		style = graph.DefaultEdgeStyle
	}
	e := graph.Edge{ID: graph.EdgeID(source, target), Source: source, Target: target, Style: style}

	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.store.AddEdge(e) {
		return w.resultLocked(false, "Connection ignored")
	}
	w.applied("add_edge", zap.String("edge", e.ID))
	res := w.resultLocked(true, "Nodes connected")
	res.CreatedID = e.ID
	return res
}

// RemoveEdge deletes edge id
func (w *Workspace) RemoveEdge(id string) dto.Result {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.store.RemoveEdge(id) {
		return w.resultLocked(false, fmt.Sprintf("Edge %s not found", id))
	}
	w.applied("remove_edge", zap.String("edge", id))
	return w.resultLocked(true, "Edge removed")
}

// Select selects node id; an empty id clears the selection
func (w *Workspace) Select(id string) dto.Result {
	w.mu.Lock()
	defer w.mu.Unlock()
	if id == "" {
		w.store.SetSelection(nil)
		return w.resultLocked(true, "Selection cleared")
	}
	w.store.SetSelection(&graph.Node{ID: id})
	if w.store.Selection() == nil {
		return w.resultLocked(false, fmt.Sprintf("Node %s not found", id))
	}
	return w.resultLocked(true, "Node selected")
}

// ReplaceNodes replaces the whole node sequence. Nodes without an id, of an
// unknown kind, or repeating an earlier id are dropped, or the whole call is
// rejected with dto.ErrMalformedInput in strict mode. Edges left without an
// endpoint are removed in the same step.
func (w *Workspace) ReplaceNodes(nodes []graph.Node) (dto.Result, error) {
	kept, err := sanitizeNodes(nodes)
	if err != nil && w.rejectMalformed("nodes", err) {
		return w.failedResult("Payload contains invalid nodes"), err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.store.ReplaceNodes(kept)
	pruned := w.pruneDanglingLocked()
	w.applied("replace_nodes", zap.Int("nodes", len(kept)), zap.Int("pruned_edges", pruned))
	return w.resultLocked(true, "Nodes replaced"), nil
}

// ReplaceEdges replaces the whole edge sequence. Edges without an id, looping
// on one node, repeating an earlier id, or naming a node that is not present
// are dropped, or rejected in strict mode.
func (w *Workspace) ReplaceEdges(edges []graph.Edge) (dto.Result, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	kept, err := sanitizeEdges(edges, nodeIDs(w.store.Nodes()))
	if err != nil && w.rejectMalformed("edges", err) {
		return w.resultLocked(false, "Payload contains invalid edges"), err
	}
	w.store.ReplaceEdges(kept)
	w.applied("replace_edges", zap.Int("edges", len(kept)))
	return w.resultLocked(true, "Edges replaced"), nil
}

// ReplaceNodesRaw replaces nodes from a JSON payload. A payload that is not
// an array of node records becomes an empty sequence, or is rejected with
// dto.ErrMalformedInput in strict mode.
func (w *Workspace) ReplaceNodesRaw(raw []byte) (dto.Result, error) {
	records, err := decodeRecords[validation.NodeRecord](raw, w.strict)
	if err != nil {
		if w.rejectMalformed("nodes", err) {
			return w.malformedResult(), err
		}
	}
	nodes := make([]graph.Node, 0, len(records))
	for _, r := range records {
		nodes = append(nodes, r.ToNode())
	}
	return w.ReplaceNodes(nodes)
}

// ReplaceEdgesRaw replaces edges from a JSON payload, with the same
// malformed-input handling as ReplaceNodesRaw
func (w *Workspace) ReplaceEdgesRaw(raw []byte) (dto.Result, error) {
	records, err := decodeRecords[validation.EdgeRecord](raw, w.strict)
	if err != nil {
		if w.rejectMalformed("edges", err) {
			return w.malformedResult(), err
		}
	}
	edges := make([]graph.Edge, 0, len(records))
	for _, r := range records {
		edges = append(edges, r.ToEdge())
	}
	return w.ReplaceEdges(edges)
}

// Save persists the current graph. State is copied under the lock and
// written without it.
func (w *Workspace) Save(ctx context.Context) (dto.SaveOutcome, error) {
	w.mu.Lock()
	snap := w.store.Snapshot()
	w.mu.Unlock()

	out, err := w.gateway.Save(ctx, snap)
	if err != nil {
		return dto.SaveOutcome{Message: "Failed to save flow"}, err
	}
	return out, nil
}

// Load replaces the graph with the saved snapshot and clears the selection.
// On any error the current graph is left as it was.
func (w *Workspace) Load(ctx context.Context) (dto.Result, error) {
	snap, err := w.gateway.Load(ctx)
	if err != nil {
		msg := "Failed to load flow"
		if errors.Is(err, dto.ErrNotFound) {
			msg = "No saved flow found"
		}
		return w.failedResult(msg), err
	}

	if err := snap.Normalize(); err != nil {
		return w.failedResult("Saved flow uses an unsupported format"), fmt.Errorf("%w: %w", dto.ErrInvalidSnapshot, err)
	}
	if err := validation.ValidateSnapshot(snap); err != nil {
		w.logger.Warn("rejected invalid saved flow", zap.Error(err))
		return w.failedResult("Saved flow is invalid"), fmt.Errorf("%w: %w", dto.ErrInvalidSnapshot, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.store.Restore(snap); err != nil {
		return w.resultLocked(false, "Saved flow is invalid"), fmt.Errorf("%w: %w", dto.ErrInvalidSnapshot, err)
	}
	w.applied("restore", zap.Int("nodes", len(snap.Nodes)), zap.Int("edges", len(snap.Edges)))
	return w.resultLocked(true, fmt.Sprintf("Flow loaded (%d nodes, %d edges)", len(snap.Nodes), len(snap.Edges))), nil
}

// SavedFlows lists what the storage backend holds, newest first
func (w *Workspace) SavedFlows(ctx context.Context, filter checkpoint.Filter) ([]dto.SavedFlow, error) {
	return w.gateway.List(ctx, filter)
}

// DiscardSaved deletes the saved flow. The graph being edited is untouched.
func (w *Workspace) DiscardSaved(ctx context.Context) (dto.Result, error) {
	if err := w.gateway.Discard(ctx); err != nil {
		msg := "Failed to delete saved flow"
		if errors.Is(err, dto.ErrNotFound) {
			msg = "No saved flow found"
		}
		return w.failedResult(msg), err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.resultLocked(true, "Saved flow deleted"), nil
}

// rejectMalformed logs and counts a malformed payload and reports whether
// the caller must reject it
func (w *Workspace) rejectMalformed(target string, err error) bool {
	w.metrics.MalformedPayload(target)
	if w.strict {
		w.logger.Warn("rejected malformed replace payload", zap.String("target", target), zap.Error(err))
		return true
	}
	w.logger.Warn("dropped malformed replace input", zap.String("target", target), zap.Error(err))
	return false
}

func (w *Workspace) malformedResult() dto.Result {
	return w.failedResult("Payload must be a JSON array")
}

func (w *Workspace) failedResult(msg string) dto.Result {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.resultLocked(false, msg)
}

// pruneDanglingLocked removes edges whose source or target is gone and
// reports how many were removed
func (w *Workspace) pruneDanglingLocked() int {
	edges := w.store.Edges()
	kept, err := sanitizeEdges(edges, nodeIDs(w.store.Nodes()))
	if err == nil {
		return 0
	}
	w.store.ReplaceEdges(kept)
	return len(edges) - len(kept)
}

func (w *Workspace) applied(op string, fields ...zap.Field) {
	w.metrics.Mutation(op)
	w.metrics.SetGraphSize(len(w.store.Nodes()), len(w.store.Edges()))
	w.logger.Debug("graph mutated", append([]zap.Field{zap.String("op", op)}, fields...)...)
}

func (w *Workspace) resultLocked(applied bool, msg string) dto.Result {
	return dto.Result{Applied: applied, Message: msg, State: w.stateLocked()}
}

func (w *Workspace) stateLocked() dto.GraphState {
	return dto.GraphState{
		Nodes:     w.store.Nodes(),
		Edges:     w.store.Edges(),
		Selection: w.store.Selection(),
	}
}

// decodeRecords decodes a JSON array of T. In strict mode each record must
// also pass field validation.
func decodeRecords[T any](raw []byte, strict bool) ([]T, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, fmt.Errorf("%w: payload is not a JSON array", dto.ErrMalformedInput)
	}
	var records []T
	if err := json.Unmarshal(trimmed, &records); err != nil {
		return nil, fmt.Errorf("%w: %w", dto.ErrMalformedInput, err)
	}
	if strict {
		for i := range records {
			if err := validation.ValidateWithPlayground(records[i]); err != nil {
				return nil, fmt.Errorf("%w: record %d: %w", dto.ErrMalformedInput, i, err)
			}
		}
	}
	return records, nil
}

// sanitizeNodes keeps the nodes the store can hold: a non-empty id not seen
// before and a known kind. The error joins every rejected record.
func sanitizeNodes(nodes []graph.Node) ([]graph.Node, error) {
	kept := make([]graph.Node, 0, len(nodes))
	seen := make(map[string]struct{}, len(nodes))
	var errs []error
	for i := range nodes {
		n := nodes[i]
		if err := n.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("node %d: %w", i, err))
			continue
		}
		if _, dup := seen[n.ID]; dup {
			errs = append(errs, fmt.Errorf("node %d: %w: %s", i, graph.ErrDuplicateNode, n.ID))
			continue
		}
		seen[n.ID] = struct{}{}
		kept = append(kept, n)
	}
	if len(errs) > 0 {
		return kept, fmt.Errorf("%w: %w", dto.ErrMalformedInput, errors.Join(errs...))
	}
	return kept, nil
}

// sanitizeEdges keeps the edges whose id is unique and whose distinct
// endpoints are both in ids
func sanitizeEdges(edges []graph.Edge, ids map[string]struct{}) ([]graph.Edge, error) {
	kept := make([]graph.Edge, 0, len(edges))
	seen := make(map[string]struct{}, len(edges))
	var errs []error
	for i := range edges {
		e := edges[i]
		if err := e.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("edge %d: %w", i, err))
			continue
		}
		if _, dup := seen[e.ID]; dup {
			errs = append(errs, fmt.Errorf("edge %d: %w: %s", i, graph.ErrDuplicateEdge, e.ID))
			continue
		}
		if _, ok := ids[e.Source]; !ok {
			errs = append(errs, fmt.Errorf("edge %d: %w: %s", i, graph.ErrSourceNodeNotFound, e.Source))
			continue
		}
		if _, ok := ids[e.Target]; !ok {
			errs = append(errs, fmt.Errorf("edge %d: %w: %s", i, graph.ErrTargetNodeNotFound, e.Target))
			continue
		}
		seen[e.ID] = struct{}{}
		kept = append(kept, e)
	}
	if len(errs) > 0 {
		return kept, fmt.Errorf("%w: %w", dto.ErrMalformedInput, errors.Join(errs...))
	}
	return kept, nil
}

func nodeIDs(nodes []graph.Node) map[string]struct{} {
	ids := make(map[string]struct{}, len(nodes))
	for _, n := range nodes {
		ids[n.ID] = struct{}{}
	}
	return ids
}
