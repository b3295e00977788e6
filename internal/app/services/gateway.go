package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/payflow/payflow/internal/app/dto"
	"github.com/payflow/payflow/internal/core/checkpoint"
	"github.com/payflow/payflow/internal/core/graph"
	"github.com/payflow/payflow/internal/infrastructure/logging"
	"github.com/payflow/payflow/internal/infrastructure/metrics"
	"github.com/payflow/payflow/pkg/serialization"
)

// DefaultSnapshotKey is the fixed key the flow is saved under
const DefaultSnapshotKey = "flow"

// Gateway serializes graph snapshots into a checkpoint.Saver and back
// PRINCIPLES:
// - SRP: Only moves snapshots across the storage boundary
// - DIP: Depends on checkpoint.Saver abstraction
// - Holds no graph state; validation on restore belongs to the store
type Gateway struct {
	saver      checkpoint.Saver
	serializer *serialization.Serializer
	key        string
	logger     *zap.Logger
	metrics    *metrics.Collector
	now        func() time.Time
}

// GatewayOption configures a Gateway
type GatewayOption func(*Gateway)

// WithSnapshotKey overrides the key snapshots are stored under
func WithSnapshotKey(key string) GatewayOption {
	return func(g *Gateway) {
		if key != "" {
			g.key = key
		}
	}
}

// WithSerializer overrides the default msgpack+zstd serializer
func WithSerializer(s *serialization.Serializer) GatewayOption {
	return func(g *Gateway) {
		if s != nil {
			g.serializer = s
		}
	}
}

// WithGatewayLogger sets the logger
func WithGatewayLogger(l *zap.Logger) GatewayOption {
	return func(g *Gateway) { g.logger = logging.OrNop(l) }
}

// WithGatewayMetrics records persistence outcomes on c
func WithGatewayMetrics(c *metrics.Collector) GatewayOption {
	return func(g *Gateway) { g.metrics = c }
}

// NewGateway creates a gateway over saver
func NewGateway(saver checkpoint.Saver, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		saver:      saver,
		serializer: serialization.DefaultSerializer(),
		key:        DefaultSnapshotKey,
		logger:     zap.NewNop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Key returns the key snapshots are stored under
func (g *Gateway) Key() string {
	return g.key
}

// Save serializes snap and overwrites the stored snapshot
func (g *Gateway) Save(ctx context.Context, snap graph.Snapshot) (dto.SaveOutcome, error) {
	snap.SchemaVersion = graph.CurrentSchemaVersion

	data, err := g.serializer.Serialize(snap)
	if err != nil {
		g.metrics.PersistenceOp("save", metrics.OutcomeError)
		return dto.SaveOutcome{}, fmt.Errorf("%w: %w", dto.ErrTransport, err)
	}

	cp := &checkpoint.Checkpoint{
		Key:           g.key,
		SchemaVersion: snap.SchemaVersion,
		Codec:         g.serializer.CodecName(),
		Compression:   string(g.serializer.Compression()),
		Data:          data,
		SavedAt:       g.now().UTC(),
	}
	if err := g.saver.Save(ctx, cp); err != nil {
		g.metrics.PersistenceOp("save", metrics.OutcomeError)
		g.logger.Error("failed to save flow", zap.String("key", g.key), zap.Error(err))
		return dto.SaveOutcome{}, fmt.Errorf("%w: %w", dto.ErrTransport, err)
	}

	g.metrics.PersistenceOp("save", metrics.OutcomeOK)
	g.logger.Info("flow saved",
		zap.String("key", g.key),
		zap.Int("nodes", len(snap.Nodes)),
		zap.Int("edges", len(snap.Edges)),
		zap.Int("bytes", len(data)),
	)
	return dto.SaveOutcome{
		Message: fmt.Sprintf("Flow saved (%d nodes, %d edges)", len(snap.Nodes), len(snap.Edges)),
		Key:     g.key,
		SavedAt: cp.SavedAt,
		Nodes:   len(snap.Nodes),
		Edges:   len(snap.Edges),
		Bytes:   len(data),
	}, nil
}

// Load fetches and decodes the stored snapshot. It returns dto.ErrNotFound
// when nothing has been saved under the key, and wraps dto.ErrTransport for
// storage or decoding failures.
func (g *Gateway) Load(ctx context.Context) (graph.Snapshot, error) {
	cp, err := g.saver.Load(ctx, g.key)
	if err != nil {
		if errors.Is(err, checkpoint.ErrCheckpointNotFound) {
			g.metrics.PersistenceOp("load", metrics.OutcomeNotFound)
			return graph.Snapshot{}, dto.ErrNotFound
		}
		g.metrics.PersistenceOp("load", metrics.OutcomeError)
		g.logger.Error("failed to load flow", zap.String("key", g.key), zap.Error(err))
		return graph.Snapshot{}, fmt.Errorf("%w: %w", dto.ErrTransport, err)
	}

	// Decode with the settings the blob was written under
	s, err := g.serializer.WithSettings(cp.Codec, cp.Compression)
	if err != nil {
		g.metrics.PersistenceOp("load", metrics.OutcomeError)
		return graph.Snapshot{}, fmt.Errorf("%w: %w", dto.ErrTransport, err)
	}
	var snap graph.Snapshot
	if err := s.Deserialize(cp.Data, &snap); err != nil {
		g.metrics.PersistenceOp("load", metrics.OutcomeError)
		g.logger.Error("failed to decode flow", zap.String("key", g.key), zap.Error(err))
		return graph.Snapshot{}, fmt.Errorf("%w: %w", dto.ErrTransport, err)
	}
	if snap.SchemaVersion == 0 {
		snap.SchemaVersion = cp.SchemaVersion
	}

	g.metrics.PersistenceOp("load", metrics.OutcomeOK)
	g.logger.Debug("flow loaded",
		zap.String("key", g.key),
		zap.Int("nodes", len(snap.Nodes)),
		zap.Int("edges", len(snap.Edges)),
	)
	return snap, nil
}

// List describes the stored snapshots matching filter, newest first. The
// payloads are not decoded.
func (g *Gateway) List(ctx context.Context, filter checkpoint.Filter) ([]dto.SavedFlow, error) {
	if err := filter.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", dto.ErrMalformedInput, err)
	}
	cps, err := g.saver.List(ctx, filter)
	if err != nil {
		g.metrics.PersistenceOp("list", metrics.OutcomeError)
		g.logger.Error("failed to list saved flows", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", dto.ErrTransport, err)
	}
	g.metrics.PersistenceOp("list", metrics.OutcomeOK)

	out := make([]dto.SavedFlow, 0, len(cps))
	for _, cp := range cps {
		out = append(out, dto.SavedFlow{
			Key:           cp.Key,
			SchemaVersion: cp.SchemaVersion,
			Codec:         cp.Codec,
			Compression:   cp.Compression,
			Bytes:         cp.Size(),
			SavedAt:       cp.SavedAt,
		})
	}
	return out, nil
}

// Discard deletes the stored snapshot, returning dto.ErrNotFound when there
// is none
func (g *Gateway) Discard(ctx context.Context) error {
	if err := g.saver.Delete(ctx, g.key); err != nil {
		if errors.Is(err, checkpoint.ErrCheckpointNotFound) {
			g.metrics.PersistenceOp("delete", metrics.OutcomeNotFound)
			return dto.ErrNotFound
		}
		g.metrics.PersistenceOp("delete", metrics.OutcomeError)
		g.logger.Error("failed to delete flow", zap.String("key", g.key), zap.Error(err))
		return fmt.Errorf("%w: %w", dto.ErrTransport, err)
	}
	g.metrics.PersistenceOp("delete", metrics.OutcomeOK)
	g.logger.Info("flow deleted", zap.String("key", g.key))
	return nil
}
