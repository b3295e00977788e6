package payflow

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/payflow/payflow/internal/adapters/repository/memory"
	"github.com/payflow/payflow/internal/adapters/rest"
	"github.com/payflow/payflow/internal/app/services"
	coregraph "github.com/payflow/payflow/internal/core/graph"
	"github.com/payflow/payflow/internal/infrastructure/config"
	"github.com/payflow/payflow/internal/infrastructure/logging"
	"github.com/payflow/payflow/internal/infrastructure/metrics"
	"github.com/payflow/payflow/internal/infrastructure/storage"
	"github.com/payflow/payflow/pkg/serialization"
)

// Re-export core graph types for convenience
type Node = coregraph.Node
type Edge = coregraph.Edge
type Position = coregraph.Position
type NodeKind = coregraph.NodeKind
type Snapshot = coregraph.Snapshot
type Workspace = services.Workspace

// Node kinds
const (
	NodeKindPayment  = coregraph.NodeKindPayment
	NodeKindLocation = coregraph.NodeKindLocation
	NodeKindGateway  = coregraph.NodeKindGateway
)

// Runtime owns a workspace and the resources behind it
type Runtime struct {
	workspace *services.Workspace
	metrics   *metrics.Collector
	saver     storage.Saver
	logger    *zap.Logger
}

// NewRuntime constructs a runtime over an in-memory store, suitable for
// local usage and tests.
func NewRuntime() *Runtime {
	collector := metrics.NewCollector("payflow")
	saver := memory.DefaultInMemorySaver()
	observeMemory(collector, saver)
	gw := services.NewGateway(saver, services.WithGatewayMetrics(collector))
	return &Runtime{
		workspace: services.NewWorkspace(gw, services.WithMetrics(collector)),
		metrics:   collector,
		saver:     saver,
		logger:    zap.NewNop(),
	}
}

// Open builds a runtime from cfg. The caller must Close it.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Runtime, error) {
	logger = logging.OrNop(logger)

	sc, err := cfg.Storage.SerializerConfig()
	if err != nil {
		return nil, err
	}
	serializer, err := serialization.NewSerializer(sc)
	if err != nil {
		return nil, err
	}

	saver, err := storage.NewSaver(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	collector := metrics.NewCollector("payflow")
	if ms, ok := saver.(*memory.InMemorySaver); ok {
		observeMemory(collector, ms)
	}
	gw := services.NewGateway(saver,
		services.WithSnapshotKey(cfg.Storage.SnapshotKey),
		services.WithSerializer(serializer),
		services.WithGatewayLogger(logger),
		services.WithGatewayMetrics(collector),
	)
	store := coregraph.NewStore(
		coregraph.WithSeed(coregraph.DefaultFlow()),
		coregraph.WithSelectionPolicy(selectionPolicy(cfg.DeletePolicy)),
	)
	ws := services.NewWorkspace(gw,
		services.WithStore(store),
		services.WithStrictInput(cfg.StrictInput),
		services.WithLogger(logger),
		services.WithMetrics(collector),
	)

	return &Runtime{workspace: ws, metrics: collector, saver: saver, logger: logger}, nil
}

// Workspace returns the runtime's workspace
func (rt *Runtime) Workspace() *services.Workspace {
	return rt.workspace
}

// Handler returns the HTTP surface, including /metrics
func (rt *Runtime) Handler() http.Handler {
	return rest.NewRouter(rt.workspace, rt.metrics.Handler(), rt.logger).Setup()
}

// Close releases the storage backend
func (rt *Runtime) Close() error {
	if err := rt.saver.Close(); err != nil {
		return fmt.Errorf("failed to close storage: %w", err)
	}
	return nil
}

func selectionPolicy(name string) coregraph.SelectionPolicy {
	if name == config.DeletePolicyMatching {
		return coregraph.ClearOnMatchingDelete
	}
	return coregraph.ClearOnAnyDelete
}

// observeMemory exports what an in-process saver holds, since nothing else
// can see it
func observeMemory(c *metrics.Collector, s *memory.InMemorySaver) {
	c.ObserveStore(func() (int, int64) {
		st := s.Stats()
		return st.Count, st.SizeBytes
	})
}
